package service

import "errors"

// Contention and insufficiency outcomes. State is unchanged when one of
// these is returned.
var (
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrBelowMinimum        = errors.New("amount below minimum withdrawal")
)

// Lookup and precondition failures.
var (
	ErrEntryNotFound      = errors.New("ledger entry not found")
	ErrAgentMismatch      = errors.New("ledger entry belongs to another agent")
	ErrAlreadyReverted    = errors.New("ledger entry already reverted")
	ErrNotRevertible      = errors.New("ledger entry cannot be reverted")
	ErrDuplicateSale      = errors.New("sale already posted for order")
	ErrAgentExists        = errors.New("agent already exists")
	ErrAgentNotFound      = errors.New("agent not found")
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrInvalidArgument    = errors.New("invalid argument")
)
