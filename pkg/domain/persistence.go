package domain

import "context"

// Transaction exposes the domain operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateSpace(Space) (Space, error)
	UpdateSpace(id int, mutator func(*Space) error) (Space, error)
	AppendUpdate(id int, event UpdateEvent, appendToImages bool) (Space, error)
	RevertUpdate(id int) (Space, error)
	FindSpace(id int) (Space, bool)
}

// TransactionView provides read-only access to snapshot data for rules.
type TransactionView interface {
	ListSpaces() []Space
	FindSpace(id int) (Space, bool)
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetSpace(id int) (Space, bool)
	ListSpaces() []Space
}
