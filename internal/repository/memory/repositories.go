package memory

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/identity-service/internal/domain"
	"github.com/spec-kit/identity-service/internal/repository"
)

func newRepositories(b backend) repository.Repositories {
	return repository.Repositories{
		Accounts:           &accountRepository{b: b},
		RefreshTokens:      &refreshTokenRepository{b: b},
		ConfirmationTokens: &confirmationTokenRepository{b: b},
		RecoverTokens:      &recoverTokenRepository{b: b},
		Outbox:             &outboxRepository{b: b},
	}
}

type accountRepository struct{ b backend }

func (r *accountRepository) Add(_ context.Context, account *domain.Account) error {
	snapshot := account.Snapshot()
	return r.b.write(func(s *state) error {
		if _, ok := s.accounts[snapshot.ID]; ok {
			return repository.ErrDuplicate
		}
		for _, existing := range s.accounts {
			if existing.Email == snapshot.Email {
				return repository.ErrDuplicate
			}
		}
		s.accounts[snapshot.ID] = snapshot
		return nil
	})
}

func (r *accountRepository) GetByID(_ context.Context, id uuid.UUID) (*domain.Account, error) {
	var (
		snapshot domain.AccountSnapshot
		found    bool
	)
	r.b.read(func(s *state) { snapshot, found = s.accounts[id] })
	if !found {
		return nil, repository.ErrNotFound
	}
	return domain.RehydrateAccount(snapshot)
}

func (r *accountRepository) GetByEmail(_ context.Context, email string) (*domain.Account, error) {
	email = domain.NormalizeEmail(email)
	var (
		snapshot domain.AccountSnapshot
		found    bool
	)
	r.b.read(func(s *state) {
		for _, a := range s.accounts {
			if a.Email == email {
				snapshot, found = a, true
				return
			}
		}
	})
	if !found {
		return nil, repository.ErrNotFound
	}
	return domain.RehydrateAccount(snapshot)
}

func (r *accountRepository) UpdateStatus(_ context.Context, account *domain.Account) error {
	id, status := account.ID(), account.Status()
	return r.b.write(func(s *state) error {
		stored, ok := s.accounts[id]
		if !ok {
			return repository.ErrNotFound
		}
		stored.Status = status
		s.accounts[id] = stored
		return nil
	})
}

func (r *accountRepository) UpdatePasswordHash(_ context.Context, account *domain.Account) error {
	id, hash := account.ID(), account.PasswordHash()
	return r.b.write(func(s *state) error {
		stored, ok := s.accounts[id]
		if !ok {
			return repository.ErrNotFound
		}
		stored.PasswordHash = hash
		s.accounts[id] = stored
		return nil
	})
}

type refreshTokenRepository struct{ b backend }

func (r *refreshTokenRepository) Add(_ context.Context, token *domain.RefreshToken) error {
	snapshot := token.Snapshot()
	return r.b.write(func(s *state) error { return addRefreshToken(s, snapshot) })
}

func addRefreshToken(s *state, snapshot domain.RefreshTokenSnapshot) error {
	if _, ok := s.refreshTokens[snapshot.ID]; ok {
		return repository.ErrDuplicate
	}
	s.refreshTokens[snapshot.ID] = snapshot
	return nil
}

func (r *refreshTokenRepository) GetNotRevokedToken(_ context.Context, id uuid.UUID) (*domain.RefreshToken, error) {
	var (
		snapshot domain.RefreshTokenSnapshot
		found    bool
	)
	r.b.read(func(s *state) { snapshot, found = s.refreshTokens[id] })
	if !found || snapshot.IsRevoked {
		return nil, repository.ErrNotFound
	}
	return domain.RehydrateRefreshToken(snapshot)
}

func (r *refreshTokenRepository) GetNotRevokedTokensByAccountID(_ context.Context, accountID uuid.UUID) ([]*domain.RefreshToken, error) {
	var snapshots []domain.RefreshTokenSnapshot
	r.b.read(func(s *state) {
		for _, t := range s.refreshTokens {
			if t.AccountID == accountID && !t.IsRevoked {
				snapshots = append(snapshots, t)
			}
		}
	})
	slices.SortFunc(snapshots, func(a, b domain.RefreshTokenSnapshot) int {
		return a.IssuedAt.Compare(b.IssuedAt)
	})

	tokens := make([]*domain.RefreshToken, 0, len(snapshots))
	for _, snapshot := range snapshots {
		token, err := domain.RehydrateRefreshToken(snapshot)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}
	return tokens, nil
}

func (r *refreshTokenRepository) AddTokenAndRevokeOldToken(_ context.Context, newToken, oldToken *domain.RefreshToken) error {
	oldID, snapshot := oldToken.ID(), newToken.Snapshot()
	err := r.b.write(func(s *state) error {
		stored, ok := s.refreshTokens[oldID]
		if !ok || stored.IsRevoked {
			return repository.ErrAlreadyRevoked
		}
		stored.IsRevoked = true
		s.refreshTokens[oldID] = stored
		return addRefreshToken(s, snapshot)
	})
	if err != nil {
		return err
	}
	oldToken.Revoke()
	return nil
}

func (r *refreshTokenRepository) UpdateRevokeStatus(_ context.Context, token *domain.RefreshToken) error {
	id, revoked := token.ID(), token.IsRevoked()
	return r.b.write(func(s *state) error {
		stored, ok := s.refreshTokens[id]
		if !ok {
			return repository.ErrNotFound
		}
		stored.IsRevoked = revoked
		s.refreshTokens[id] = stored
		return nil
	})
}

type confirmationTokenRepository struct{ b backend }

func (r *confirmationTokenRepository) Add(_ context.Context, token *domain.ConfirmationToken) error {
	accountID, hash := token.AccountID(), token.TokenHash()
	return r.b.write(func(s *state) error {
		if _, ok := s.confirmations[accountID]; ok {
			return repository.ErrDuplicate
		}
		s.confirmations[accountID] = hash
		return nil
	})
}

func (r *confirmationTokenRepository) Get(_ context.Context, accountID uuid.UUID) (*domain.ConfirmationToken, error) {
	var (
		hash  string
		found bool
	)
	r.b.read(func(s *state) { hash, found = s.confirmations[accountID] })
	if !found {
		return nil, repository.ErrNotFound
	}
	return domain.NewConfirmationToken(accountID, hash)
}

func (r *confirmationTokenRepository) Delete(_ context.Context, accountID uuid.UUID) error {
	return r.b.write(func(s *state) error {
		if _, ok := s.confirmations[accountID]; !ok {
			return repository.ErrNotFound
		}
		delete(s.confirmations, accountID)
		return nil
	})
}

type recoverTokenRepository struct{ b backend }

func (r *recoverTokenRepository) Add(_ context.Context, token *domain.PasswordRecoverToken) error {
	snapshot := token.Snapshot()
	return r.b.write(func(s *state) error {
		if _, ok := s.recoverTokens[snapshot.ID]; ok {
			return repository.ErrDuplicate
		}
		s.recoverTokens[snapshot.ID] = snapshot
		return nil
	})
}

func (r *recoverTokenRepository) Get(_ context.Context, id, accountID uuid.UUID) (*domain.PasswordRecoverToken, error) {
	var (
		snapshot domain.PasswordRecoverTokenSnapshot
		found    bool
	)
	r.b.read(func(s *state) { snapshot, found = s.recoverTokens[id] })
	if !found || snapshot.AccountID != accountID {
		return nil, repository.ErrNotFound
	}
	return domain.RehydratePasswordRecoverToken(snapshot)
}

func (r *recoverTokenRepository) UpdateAppliedStatus(_ context.Context, token *domain.PasswordRecoverToken) error {
	id, applied := token.ID(), token.IsAlreadyApplied()
	return r.b.write(func(s *state) error {
		stored, ok := s.recoverTokens[id]
		if !ok || stored.IsAlreadyApplied == applied {
			return repository.ErrNotFound
		}
		stored.IsAlreadyApplied = applied
		s.recoverTokens[id] = stored
		return nil
	})
}

type outboxRepository struct{ b backend }

func (r *outboxRepository) Add(_ context.Context, message repository.OutboxMessage) error {
	message.Content = slices.Clone(message.Content)
	message.ProcessedOnUTC = nil
	return r.b.write(func(s *state) error {
		for _, m := range s.outbox {
			if m.EventID == message.EventID {
				return repository.ErrDuplicate
			}
		}
		s.outbox = append(s.outbox, message)
		return nil
	})
}

func (r *outboxRepository) ListUnprocessed(_ context.Context, limit int) ([]repository.OutboxMessage, error) {
	var pending []repository.OutboxMessage
	r.b.read(func(s *state) {
		for _, m := range s.outbox {
			if m.ProcessedOnUTC == nil {
				m.Content = slices.Clone(m.Content)
				pending = append(pending, m)
			}
		}
	})
	slices.SortStableFunc(pending, func(a, b repository.OutboxMessage) int {
		return a.OccurredOnUTC.Compare(b.OccurredOnUTC)
	})
	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (r *outboxRepository) MarkProcessed(_ context.Context, eventID uuid.UUID, processedAt time.Time) error {
	at := processedAt.UTC()
	return r.b.write(func(s *state) error {
		for i := range s.outbox {
			if s.outbox[i].EventID == eventID && s.outbox[i].ProcessedOnUTC == nil {
				s.outbox[i].ProcessedOnUTC = &at
				return nil
			}
		}
		return repository.ErrNotFound
	})
}
