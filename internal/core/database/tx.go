package database

import (
	"context"
	"sync"

	"gorm.io/gorm"
)

// Transactor runs fn inside a database transaction. Nested calls join the
// outer transaction instead of opening a new one.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type txKey struct{}

type txState struct {
	mu          sync.Mutex
	tx          *gorm.DB
	afterCommit []func()
}

func (s *txState) active() *gorm.DB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tx
}

func activeState(ctx context.Context) (*txState, bool) {
	state, ok := ctx.Value(txKey{}).(*txState)
	if !ok || state.active() == nil {
		return nil, false
	}
	return state, true
}

type GormTransactor struct {
	db *gorm.DB
}

func NewTransactor(db *gorm.DB) *GormTransactor {
	return &GormTransactor{db: db}
}

func (t *GormTransactor) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := activeState(ctx); ok {
		return fn(ctx)
	}

	state := &txState{}
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state.mu.Lock()
		state.tx = tx
		state.mu.Unlock()
		return fn(context.WithValue(ctx, txKey{}, state))
	})

	// contexts derived inside fn may outlive the transaction
	state.mu.Lock()
	state.tx = nil
	hooks := state.afterCommit
	state.afterCommit = nil
	state.mu.Unlock()

	if err != nil {
		return err
	}
	for _, hook := range hooks {
		hook()
	}
	return nil
}

// Conn returns the transaction bound to ctx, or db scoped to ctx when no
// transaction is active. Repositories must route every query through it.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if state, ok := activeState(ctx); ok {
		return state.active()
	}
	return db.WithContext(ctx)
}

// AfterCommit registers hook to run once the outermost transaction commits.
// Hooks are dropped on rollback. Outside a transaction the hook runs at once.
func AfterCommit(ctx context.Context, hook func()) {
	state, ok := activeState(ctx)
	if !ok {
		hook()
		return
	}
	state.mu.Lock()
	state.afterCommit = append(state.afterCommit, hook)
	state.mu.Unlock()
}

// InTransaction reports whether ctx carries an open transaction.
func InTransaction(ctx context.Context) bool {
	_, ok := activeState(ctx)
	return ok
}
