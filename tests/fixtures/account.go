// Package fixtures provides a sample event-sourced aggregate for tests.
package fixtures

import (
	"encoding/json"
	"fmt"

	"github.com/lllypuk/eventcore/internal/domain/aggregate"
	"github.com/lllypuk/eventcore/internal/domain/errs"
	"github.com/lllypuk/eventcore/internal/domain/event"
	"github.com/lllypuk/eventcore/internal/domain/uuid"
)

// Account event types
const (
	EventTypeOpened    = "account.opened"
	EventTypeRenamed   = "account.renamed"
	EventTypeDeposited = "account.deposited"
	EventTypeWithdrawn = "account.withdrawn"
	EventTypeClosed    = "account.closed"
)

// Domain error codes
const (
	CodeInsufficientFunds = "ACCOUNT_INSUFFICIENT_FUNDS"
	CodeAccountClosed     = "ACCOUNT_CLOSED"
	CodeInvalidAmount     = "ACCOUNT_INVALID_AMOUNT"
)

// Opened is raised when an account is opened.
type Opened struct {
	event.BaseEvent

	Owner string `json:"owner"`
}

// EventType returns the type tag.
func (*Opened) EventType() string { return EventTypeOpened }

// Renamed is raised when the account owner name changes.
type Renamed struct {
	event.BaseEvent

	Owner string `json:"owner"`
}

// EventType returns the type tag.
func (*Renamed) EventType() string { return EventTypeRenamed }

// Deposited is raised when money is paid in.
type Deposited struct {
	event.BaseEvent

	Amount int64 `json:"amount"`
}

// EventType returns the type tag.
func (*Deposited) EventType() string { return EventTypeDeposited }

// Withdrawn is raised when money is paid out.
type Withdrawn struct {
	event.BaseEvent

	Amount int64 `json:"amount"`
}

// EventType returns the type tag.
func (*Withdrawn) EventType() string { return EventTypeWithdrawn }

// Closed is the tombstone event.
type Closed struct {
	event.BaseEvent
}

// EventType returns the type tag.
func (*Closed) EventType() string { return EventTypeClosed }

// AccountEvents returns the registry of account event variants.
func AccountEvents() *event.Registry {
	return event.MustNewRegistry(
		func() event.DomainEvent { return &Opened{} },
		func() event.DomainEvent { return &Renamed{} },
		func() event.DomainEvent { return &Deposited{} },
		func() event.DomainEvent { return &Withdrawn{} },
		func() event.DomainEvent { return &Closed{} },
	)
}

// Account is a bank account aggregate.
type Account struct {
	aggregate.Root

	owner   string
	balance int64
	closed  bool

	// Applied counts When calls, letting tests observe replay length.
	Applied int
}

// NewAccount is the factory the store uses for blank instances.
func NewAccount() *Account {
	return &Account{Root: aggregate.NewRoot("")}
}

// OpenAccount creates an account and raises Opened.
func OpenAccount(owner string) (*Account, error) {
	a := &Account{Root: aggregate.NewRoot(uuid.NewUUID())}
	if err := aggregate.Raise(a, &Opened{Owner: owner}); err != nil {
		return nil, err
	}
	return a, nil
}

// TypeName returns the aggregate type.
func (a *Account) TypeName() string { return "Account" }

// Owner returns the owner name.
func (a *Account) Owner() string { return a.owner }

// Balance returns the current balance.
func (a *Account) Balance() int64 { return a.balance }

// IsClosed reports whether the account was closed.
func (a *Account) IsClosed() bool { return a.closed }

// Rename changes the owner name.
func (a *Account) Rename(owner string) error {
	if a.closed {
		return errs.NewDomainError(CodeAccountClosed, "account is closed")
	}
	return aggregate.Raise(a, &Renamed{Owner: owner})
}

// Deposit pays money in.
func (a *Account) Deposit(amount int64) error {
	if amount <= 0 {
		return errs.NewDomainError(CodeInvalidAmount, "amount must be positive")
	}
	if a.closed {
		return errs.NewDomainError(CodeAccountClosed, "account is closed")
	}
	return aggregate.Raise(a, &Deposited{Amount: amount})
}

// Withdraw pays money out.
func (a *Account) Withdraw(amount int64) error {
	if amount <= 0 {
		return errs.NewDomainError(CodeInvalidAmount, "amount must be positive")
	}
	if a.balance < amount {
		return errs.NewDomainError(CodeInsufficientFunds,
			fmt.Sprintf("balance %d is less than %d", a.balance, amount))
	}
	return aggregate.Raise(a, &Withdrawn{Amount: amount})
}

// Close raises the tombstone event.
func (a *Account) Close() error {
	if a.closed {
		return errs.NewDomainError(CodeAccountClosed, "account is closed")
	}
	a.SetStatus(aggregate.StatusDeleted)
	return aggregate.Raise(a, &Closed{})
}

// When applies one account event.
func (a *Account) When(evt event.DomainEvent) error {
	switch e := evt.(type) {
	case *Opened:
		a.owner = e.Owner
	case *Renamed:
		a.owner = e.Owner
	case *Deposited:
		a.balance += e.Amount
	case *Withdrawn:
		a.balance -= e.Amount
	case *Closed:
		a.closed = true
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnknownEvent, evt.EventType())
	}
	a.Applied++
	return nil
}

type accountState struct {
	Owner   string `json:"owner"`
	Balance int64  `json:"balance"`
	Closed  bool   `json:"closed"`
}

// SnapshotState serializes the account state.
func (a *Account) SnapshotState() ([]byte, error) {
	return json.Marshal(accountState{Owner: a.owner, Balance: a.balance, Closed: a.closed})
}

// RestoreSnapshot restores the account state.
func (a *Account) RestoreSnapshot(data []byte) error {
	var s accountState
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	a.owner = s.Owner
	a.balance = s.Balance
	a.closed = s.Closed
	return nil
}

// Ledger is an aggregate without snapshot support.
type Ledger struct {
	aggregate.Root

	Entries []string
}

// LedgerEntryAdded records one ledger line.
type LedgerEntryAdded struct {
	event.BaseEvent

	Line string `json:"line"`
}

// EventType returns the type tag.
func (*LedgerEntryAdded) EventType() string { return "ledger.entry_added" }

// LedgerEvents returns the registry of ledger event variants.
func LedgerEvents() *event.Registry {
	return event.MustNewRegistry(func() event.DomainEvent { return &LedgerEntryAdded{} })
}

// NewLedger is the factory for blank ledgers.
func NewLedger() *Ledger { return &Ledger{} }

// TypeName returns the aggregate type.
func (l *Ledger) TypeName() string { return "Ledger" }

// Add raises LedgerEntryAdded.
func (l *Ledger) Add(line string) error {
	if l.GlobalID().IsZero() {
		l.Restore(uuid.NewUUID(), aggregate.StatusActive, l.CreatedOn(), l.ModifiedOn(), l.Version())
	}
	return aggregate.Raise(l, &LedgerEntryAdded{Line: line})
}

// When applies one ledger event.
func (l *Ledger) When(evt event.DomainEvent) error {
	switch e := evt.(type) {
	case *LedgerEntryAdded:
		l.Entries = append(l.Entries, e.Line)
		return nil
	default:
		return fmt.Errorf("%w: %s", errs.ErrUnknownEvent, evt.EventType())
	}
}

var (
	_ aggregate.Aggregate   = (*Account)(nil)
	_ aggregate.Snapshotter = (*Account)(nil)
	_ aggregate.Aggregate   = (*Ledger)(nil)
)
