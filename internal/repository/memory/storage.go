// Package memory keeps everything in process memory.
// Used by tests and by the server when DATABASE_URL is not set.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/authkeeper/internal/models"
	"github.com/nkiryanov/authkeeper/internal/repository"
)

type state struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]models.User
	byEmail map[string]uuid.UUID
	tokens  map[string]models.PasswordResetToken // by token hash

	// Revocations live apart from mu: purge must never block readers
	revocations sync.Map // jti -> models.Revocation
}

// Reverse actions recorded while transaction runs
type undoLog struct {
	fns []func()
}

func (l *undoLog) add(fn func()) {
	if l != nil {
		l.fns = append(l.fns, fn)
	}
}

func (l *undoLog) rollback() {
	for i := len(l.fns) - 1; i >= 0; i-- {
		l.fns[i]()
	}
}

type Storage struct {
	st   *state
	txMu *sync.Mutex
	undo *undoLog // nil outside transaction
}

func NewStorage() *Storage {
	return &Storage{
		st: &state{
			users:   make(map[uuid.UUID]models.User),
			byEmail: make(map[string]uuid.UUID),
			tokens:  make(map[string]models.PasswordResetToken),
		},
		txMu: &sync.Mutex{},
	}
}

func (s *Storage) User() repository.UserRepo {
	return &UserRepo{st: s.st, undo: s.undo}
}

func (s *Storage) Revocation() repository.RevocationRepo {
	return &RevocationRepo{st: s.st, undo: s.undo}
}

func (s *Storage) ResetToken() repository.ResetTokenRepo {
	return &ResetTokenRepo{st: s.st, undo: s.undo}
}

// Transactions are serialized with each other
// Writes made outside of any transaction are not isolated from them
func (s *Storage) InTx(ctx context.Context, fn func(repository.Storage) error) error {
	if s.undo == nil {
		s.txMu.Lock()
		defer s.txMu.Unlock()
	}

	log := &undoLog{}
	err := fn(&Storage{st: s.st, txMu: s.txMu, undo: log})
	if err != nil {
		log.rollback()
		return err
	}

	// Nested transaction: parent rollback has to revert our changes too
	if s.undo != nil {
		s.undo.fns = append(s.undo.fns, log.fns...)
	}

	return nil
}
