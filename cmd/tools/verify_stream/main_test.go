package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitStreams(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"Account-1", []string{"Account-1"}},
		{" Account-1 , ,Ledger-2,", []string{"Account-1", "Ledger-2"}},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, splitStreams(tt.in))
	}
}
