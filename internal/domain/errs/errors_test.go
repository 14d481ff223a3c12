package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventcore/internal/domain/errs"
)

func TestKindOf(t *testing.T) {
	testCases := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"nil", nil, errs.KindUnknown},
		{"configuration", fmt.Errorf("setup: %w", errs.ErrConfiguration), errs.KindConfiguration},
		{"stream not found", errs.ErrStreamNotFound, errs.KindStreamNotFound},
		{"stream deleted", fmt.Errorf("load: %w", errs.ErrStreamDeleted), errs.KindStreamDeleted},
		{"event conflict", errs.NewConflictError("order-1", 3, 3), errs.KindVersionConflict},
		{"snapshot conflict", errs.NewSnapshotConflictError("order-1", 0, 0), errs.KindSnapshotVersionConflict},
		{"domain", errs.NewDomainError("E42", "insufficient funds"), errs.KindDomain},
		{"anything else", errors.New("connection reset"), errs.KindSystem},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, errs.KindOf(tc.err))
		})
	}
}

func TestConflictError_CarriesVersions(t *testing.T) {
	// Arrange
	err := fmt.Errorf("store: %w", errs.NewConflictError("account-abc", 4, 2))

	// Act
	var conflict *errs.ConflictError
	ok := errors.As(err, &conflict)

	// Assert
	require.True(t, ok)
	assert.Equal(t, 4, conflict.LastVersion)
	assert.Equal(t, 2, conflict.ExpectedVersion)
	assert.ErrorIs(t, err, errs.ErrVersionConflict)
	assert.NotErrorIs(t, err, errs.ErrSnapshotVersionConflict)
	assert.Contains(t, err.Error(), "account-abc")
}

func TestDomainError(t *testing.T) {
	err := errs.NewDomainError("ACC-001", "account closed")

	var domainErr *errs.DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "ACC-001", domainErr.Code)
	assert.ErrorIs(t, err, errs.ErrDomain)
	assert.Equal(t, "domain error ACC-001: account closed", err.Error())
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "version_conflict", errs.KindVersionConflict.String())
	assert.Equal(t, "kind(99)", errs.Kind(99).String())
}
