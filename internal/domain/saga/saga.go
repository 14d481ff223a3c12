// Package saga defines the persisted progress record of a saga run and the
// result shapes reported to callers.
package saga

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// State is the lifecycle state of a saga transaction.
type State string

// Saga states. Transitions only move New -> Active -> Committed|Aborted.
const (
	StateNew       State = "new"
	StateActive    State = "active"
	StateCommitted State = "committed"
	StateAborted   State = "aborted"
)

// IsFinished reports whether the state is terminal.
func (s State) IsFinished() bool {
	return s == StateCommitted || s == StateAborted
}

// StepError is the uniform shape of a failed step, whether the failure came
// from a domain rule or from the infrastructure.
type StepError struct {
	Kind    string `json:"kind"              bson:"kind"`
	Code    string `json:"code,omitempty"    bson:"code,omitempty"`
	Message string `json:"message"           bson:"message"`
	Step    string `json:"step,omitempty"    bson:"step,omitempty"`
}

func (e StepError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s [%s/%s]: %s", e.Step, e.Kind, e.Code, e.Message)
	}
	return fmt.Sprintf("%s [%s]: %s", e.Step, e.Kind, e.Message)
}

// TransactionMeta is the single live progress record for one correlation id.
type TransactionMeta struct {
	ID            string    `json:"id"             bson:"_id"`
	CorrelationID uuid.UUID `json:"correlation_id" bson:"correlation_id"`
	StartedBy     string    `json:"started_by"     bson:"started_by"`
	Step          string    `json:"step"           bson:"step"`
	State         State     `json:"state"          bson:"state"`
	ErrorTrail    string    `json:"error_trail"    bson:"error_trail,omitempty"`
	CreatedOn     time.Time `json:"created_on"     bson:"created_on"`
	ModifiedOn    time.Time `json:"modified_on"    bson:"modified_on"`
}

// NewTransactionMeta creates a New meta for the first step of a saga.
func NewTransactionMeta(correlationID uuid.UUID, startedBy, step string) *TransactionMeta {
	now := time.Now().UTC()
	return &TransactionMeta{
		ID:            uuid.NewUUID().String(),
		CorrelationID: correlationID,
		StartedBy:     startedBy,
		Step:          step,
		State:         StateNew,
		CreatedOn:     now,
		ModifiedOn:    now,
	}
}

// CanExecute reports whether a step may run against this meta.
func (m *TransactionMeta) CanExecute() bool {
	return m.State == StateNew || m.State == StateActive
}

// Advance moves an unfinished meta to step and forces it Active.
func (m *TransactionMeta) Advance(step string) error {
	if m.State.IsFinished() {
		return fmt.Errorf("%w: saga %s is %s", errs.ErrInvalidTransition, m.CorrelationID, m.State)
	}
	m.Step = step
	return m.Activate()
}

// Activate moves New to Active. Active stays Active.
func (m *TransactionMeta) Activate() error {
	switch m.State {
	case StateNew, StateActive:
		m.State = StateActive
		m.ModifiedOn = time.Now().UTC()
		return nil
	default:
		return fmt.Errorf("%w: cannot activate %s saga", errs.ErrInvalidTransition, m.State)
	}
}

// Finish finalizes the meta exactly once. A non-empty trail is serialized
// into ErrorTrail.
func (m *TransactionMeta) Finish(success bool, trail []StepError) error {
	if m.State.IsFinished() {
		return fmt.Errorf("%w: saga %s already %s", errs.ErrInvalidTransition, m.CorrelationID, m.State)
	}

	if len(trail) > 0 {
		data, err := json.Marshal(trail)
		if err != nil {
			return fmt.Errorf("failed to marshal error trail: %w", err)
		}
		m.ErrorTrail = string(data)
	}

	if success {
		m.State = StateCommitted
	} else {
		m.State = StateAborted
	}
	m.ModifiedOn = time.Now().UTC()
	return nil
}

// Errors decodes the persisted error trail.
func (m *TransactionMeta) Errors() ([]StepError, error) {
	if m.ErrorTrail == "" {
		return nil, nil
	}
	var out []StepError
	if err := json.Unmarshal([]byte(m.ErrorTrail), &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal error trail: %w", err)
	}
	return out, nil
}

// TrailEntry records the outcome of one step of a run.
type TrailEntry struct {
	Step    string      `json:"step"`
	Success bool        `json:"success"`
	Errors  []StepError `json:"errors,omitempty"`
}

// Compensation records one compensation that ran after a failure.
type Compensation struct {
	Step   string      `json:"step"`
	Errors []StepError `json:"errors,omitempty"`
}

// Result is what a saga run reports to its caller.
type Result struct {
	CorrelationID uuid.UUID      `json:"correlation_id"`
	Success       bool           `json:"success"`
	State         State          `json:"state"`
	Trail         []TrailEntry   `json:"trail"`
	Compensated   []Compensation `json:"compensated,omitempty"`
}

// Errors concatenates the step errors of the trail in order.
func (r Result) Errors() []StepError {
	var out []StepError
	for _, entry := range r.Trail {
		out = append(out, entry.Errors...)
	}
	return out
}
