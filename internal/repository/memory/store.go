// Package memory is an in-process implementation of the repository
// contracts. Transactions work on a private snapshot and replay their writes
// onto the shared state at commit, so conflicting commits fail the same way
// guarded SQL statements do.
package memory

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

// ErrTxClosed is returned when a finished transaction is used again.
var ErrTxClosed = errors.New("memory: transaction already closed")

type state struct {
	accounts      map[uuid.UUID]domain.AccountSnapshot
	refreshTokens map[uuid.UUID]domain.RefreshTokenSnapshot
	confirmations map[uuid.UUID]string
	recoverTokens map[uuid.UUID]domain.PasswordRecoverTokenSnapshot
	outbox        []repository.OutboxMessage
}

func newState() *state {
	return &state{
		accounts:      map[uuid.UUID]domain.AccountSnapshot{},
		refreshTokens: map[uuid.UUID]domain.RefreshTokenSnapshot{},
		confirmations: map[uuid.UUID]string{},
		recoverTokens: map[uuid.UUID]domain.PasswordRecoverTokenSnapshot{},
	}
}

func (s *state) clone() *state {
	outbox := make([]repository.OutboxMessage, len(s.outbox))
	for i, m := range s.outbox {
		m.Content = slices.Clone(m.Content)
		if m.ProcessedOnUTC != nil {
			at := *m.ProcessedOnUTC
			m.ProcessedOnUTC = &at
		}
		outbox[i] = m
	}
	return &state{
		accounts:      maps.Clone(s.accounts),
		refreshTokens: maps.Clone(s.refreshTokens),
		confirmations: maps.Clone(s.confirmations),
		recoverTokens: maps.Clone(s.recoverTokens),
		outbox:        outbox,
	}
}

type op func(*state) error

// backend is the view a repository reads and writes through.
type backend interface {
	read(fn func(*state))
	write(o op) error
}

// Store holds the committed state.
type Store struct {
	mu         sync.RWMutex
	current    *state
	commitErrs []error
}

var _ repository.Transactor = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{current: newState()}
}

// FailCommits queues errors returned by the next commit attempts, in order.
// A nil entry lets that attempt through.
func (s *Store) FailCommits(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.commitErrs = append(s.commitErrs, errs...)
}

// Begin snapshots the committed state.
func (s *Store) Begin(ctx context.Context) (repository.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	snapshot := s.current.clone()
	s.mu.RUnlock()

	tx := &Tx{store: s, local: snapshot}
	tx.repos = newRepositories(tx)
	return tx, nil
}

// Repositories reads and writes committed state directly.
func (s *Store) Repositories() repository.Repositories {
	return newRepositories(s)
}

// OutboxMessages returns every committed outbox row, for inspection.
func (s *Store) OutboxMessages() []repository.OutboxMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.clone().outbox
}

func (s *Store) read(fn func(*state)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(s.current)
}

func (s *Store) write(o op) error {
	return s.apply([]op{o})
}

func (s *Store) apply(ops []op) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.current.clone()
	for _, o := range ops {
		if err := o(next); err != nil {
			return err
		}
	}
	s.current = next
	return nil
}

func (s *Store) commit(ops []op) error {
	s.mu.Lock()
	if len(s.commitErrs) > 0 {
		err := s.commitErrs[0]
		s.commitErrs = s.commitErrs[1:]
		if err != nil {
			s.mu.Unlock()
			return err
		}
	}
	s.mu.Unlock()
	return s.apply(ops)
}

// Tx buffers writes until Commit.
type Tx struct {
	mu     sync.Mutex
	store  *Store
	local  *state
	ops    []op
	closed bool
	repos  repository.Repositories
}

func (t *Tx) Repositories() repository.Repositories { return t.repos }

// Commit replays the buffered writes atomically. A failed replay leaves the
// store untouched and closes the transaction, like a failed pgx commit.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxClosed
	}
	t.closed = true
	err := t.store.commit(t.ops)
	t.ops = nil
	return err
}

// Rollback discards the buffered writes. Rolling back twice is a no-op.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.ops = nil
	return nil
}

func (t *Tx) read(fn func(*state)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t.local)
}

func (t *Tx) write(o op) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return ErrTxClosed
	}
	if err := o(t.local); err != nil {
		return err
	}
	t.ops = append(t.ops, o)
	return nil
}
