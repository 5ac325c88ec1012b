// Package memory provides in-process user and reset token stores for the
// memory database driver and for tests. A single mutex guards both tables so
// issuance and redemption keep the same all-or-nothing guarantees as the
// MySQL transactions.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fleetportal/passreset/internal/models"
	"github.com/fleetportal/passreset/internal/repository"
	"github.com/fleetportal/passreset/internal/utils"
)

// Store holds users and reset tokens in memory.
type Store struct {
	mu         sync.Mutex
	users      map[int64]*models.User
	tokens     map[int64]*models.ResetToken
	byHash     map[string]int64
	nextUserID int64
	nextToken  int64
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		users:  make(map[int64]*models.User),
		tokens: make(map[int64]*models.ResetToken),
		byHash: make(map[string]int64),
	}
}

// AddUser inserts a user unless the username is taken and returns the stored
// copy. The boolean reports whether a row was inserted.
func (s *Store) AddUser(user models.User) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username {
			c := *existing
			return &c, false
		}
	}

	s.nextUserID++
	user.ID = s.nextUserID
	stored := user
	s.users[user.ID] = &stored
	return &user, true
}

// DeleteUser removes a user and cascades to the user's tokens.
func (s *Store) DeleteUser(userID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.users, userID)
	for id, t := range s.tokens {
		if t.UserID == userID {
			s.deleteToken(id)
		}
	}
}

// User returns a copy of the stored user.
func (s *Store) User(userID int64) (*models.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[userID]
	if !ok {
		return nil, false
	}
	c := *u
	return &c, true
}

// Tokens returns copies of the user's token rows ordered by id.
func (s *Store) Tokens(userID int64) []models.ResetToken {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []models.ResetToken
	for _, t := range s.tokens {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FindByIdentity returns the single user matching all three fields.
func (s *Store) FindByIdentity(ctx context.Context, identity models.Identity) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var match *models.User
	for _, u := range s.users {
		if u.Username == identity.Username && u.Email == identity.Email && u.Phone == identity.Phone {
			if match != nil {
				return nil, repository.ErrUserNotFound
			}
			match = u
		}
	}
	if match == nil {
		return nil, repository.ErrUserNotFound
	}

	c := *match
	return &c, nil
}

// Issue supersedes the user's live tokens and stores the new one.
func (s *Store) Issue(ctx context.Context, token *models.ResetToken) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[token.UserID]; !ok {
		return repository.ErrUserNotFound
	}
	if _, dup := s.byHash[token.TokenHash]; dup {
		return utils.NewDuplicateError("reset token hash collision")
	}

	for id, t := range s.tokens {
		if t.UserID == token.UserID && t.IsLive(token.CreatedAt) {
			s.deleteToken(id)
		}
	}

	s.nextToken++
	token.ID = s.nextToken
	token.IsUsed = false
	token.UsedAt = nil

	stored := *token
	s.tokens[stored.ID] = &stored
	s.byHash[stored.TokenHash] = stored.ID
	return nil
}

// FindLive returns the token if it is unused and unexpired at now.
func (s *Store) FindLive(ctx context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, repository.ErrTokenNotFound
	}
	t := s.tokens[id]
	if !t.IsLive(now) {
		return nil, repository.ErrTokenNotFound
	}

	c := *t
	return &c, nil
}

// Redeem consumes the token and replaces the password under one lock. Nothing
// changes unless both steps can be applied.
func (s *Store) Redeem(ctx context.Context, tokenHash string, userID int64, passwordHash string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byHash[tokenHash]
	if !ok {
		return repository.ErrTokenNotFound
	}
	t := s.tokens[id]
	if t.UserID != userID || !t.IsLive(now) {
		return repository.ErrTokenNotFound
	}

	u, ok := s.users[userID]
	if !ok {
		return repository.ErrUserNotFound
	}

	usedAt := now
	t.IsUsed = true
	t.UsedAt = &usedAt
	u.Password = passwordHash
	return nil
}

// Prune deletes tokens used or expired before cutoff.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, t := range s.tokens {
		usedAt := t.CreatedAt
		if t.UsedAt != nil {
			usedAt = *t.UsedAt
		}
		if (t.IsUsed && usedAt.Before(cutoff)) || t.ExpiresAt.Before(cutoff) {
			s.deleteToken(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) deleteToken(id int64) {
	if t, ok := s.tokens[id]; ok {
		delete(s.byHash, t.TokenHash)
		delete(s.tokens, id)
	}
}
