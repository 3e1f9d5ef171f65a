// Package memory implements the store ports with mutexed maps. It backs
// the engine's test suite and the runnable example; nothing survives a
// restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/awe-platform/authcore/rbac"
	"github.com/awe-platform/authcore/store"
)

// Store is an in-memory implementation of every store port.
type Store struct {
	mu          sync.RWMutex
	users       map[string]*store.User // by id
	byEmail     map[string]string      // email → id
	tokens      map[tokenKey]tokenRow
	onboarding  map[string]bool // userID → completed
	permissions map[rbac.Role][]string

	now func() time.Time
}

type tokenKey struct {
	kind store.TokenKind
	hash string
}

type tokenRow struct {
	userID    string
	expiresAt time.Time
}

// New returns an empty store seeded with the given role catalog. A nil
// catalog is allowed; RolePermissions then returns empty sets.
func New(catalog map[rbac.Role][]string) *Store {
	return &Store{
		users:       make(map[string]*store.User),
		byEmail:     make(map[string]string),
		tokens:      make(map[tokenKey]tokenRow),
		onboarding:  make(map[string]bool),
		permissions: catalog,
		now:         time.Now,
	}
}

// SetClock overrides the time source. Test hook.
func (s *Store) SetClock(now func() time.Time) { s.now = now }

// Ports returns the store wired into the bundle the engine consumes.
func (s *Store) Ports() store.Store {
	return store.Store{Users: s, Tokens: tokens{s}, Roles: s, Onboarding: s}
}

// --- store.Users ---

func (s *Store) Create(_ context.Context, u *store.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	if _, taken := s.byEmail[email]; taken {
		return store.ErrDuplicate
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Email = email
	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

func (s *Store) FindByEmail(_ context.Context, email string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *Store) FindByID(_ context.Context, id string) (*store.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *Store) update(id string, fn func(*store.User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(u)
	return nil
}

func (s *Store) UpdateLastLogin(_ context.Context, id string, at time.Time) error {
	return s.update(id, func(u *store.User) { u.LastLoginAt = at })
}

func (s *Store) SetVerified(_ context.Context, id string) error {
	return s.update(id, func(u *store.User) { u.Verified = true })
}

func (s *Store) SetMFASecret(_ context.Context, id, secret string) error {
	return s.update(id, func(u *store.User) {
		u.MFASecret = secret
		u.MFAConfirmed = false
	})
}

func (s *Store) ConfirmMFA(_ context.Context, id string) error {
	return s.update(id, func(u *store.User) { u.MFAConfirmed = true })
}

func (s *Store) SetImpersonation(_ context.Context, adminID, targetID string) error {
	return s.update(adminID, func(u *store.User) { u.ImpersonatingUserID = targetID })
}

func (s *Store) ClearImpersonation(_ context.Context, adminID string) error {
	return s.update(adminID, func(u *store.User) { u.ImpersonatingUserID = "" })
}

func (s *Store) ResetPassword(_ context.Context, secretHash, newHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey{kind: store.TokenReset, hash: secretHash}
	row, ok := s.tokens[key]
	if !ok || s.now().After(row.expiresAt) {
		delete(s.tokens, key)
		return "", store.ErrNotFound
	}
	u, ok := s.users[row.userID]
	if !ok {
		delete(s.tokens, key)
		return "", store.ErrNotFound
	}
	delete(s.tokens, key)
	u.PasswordHash = newHash
	return u.ID, nil
}

// --- store.Tokens ---

// tokens wraps Store as a store.Tokens; the Users repo already claims the
// Create method name on *Store itself.
type tokens struct{ *Store }

func (t tokens) Create(_ context.Context, kind store.TokenKind, userID, secretHash string, ttl time.Duration) error {
	s := t.Store
	s.mu.Lock()
	defer s.mu.Unlock()
	// one live token per user per kind
	for k, row := range s.tokens {
		if k.kind == kind && row.userID == userID {
			delete(s.tokens, k)
		}
	}
	s.tokens[tokenKey{kind: kind, hash: secretHash}] = tokenRow{
		userID:    userID,
		expiresAt: s.now().Add(ttl),
	}
	return nil
}

func (s *Store) Consume(_ context.Context, kind store.TokenKind, secretHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := tokenKey{kind: kind, hash: secretHash}
	row, ok := s.tokens[key]
	if !ok {
		return "", store.ErrNotFound
	}
	delete(s.tokens, key)
	if s.now().After(row.expiresAt) {
		return "", store.ErrNotFound
	}
	return row.userID, nil
}

// --- store.RoleCatalog ---

func (s *Store) RolePermissions(_ context.Context, role rbac.Role) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	perms := s.permissions[role]
	out := make([]string, len(perms))
	copy(out, perms)
	return out, nil
}

func (s *Store) AllPermissions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := make(map[string]struct{})
	var out []string
	for _, perms := range s.permissions {
		for _, p := range perms {
			if _, dup := seen[p]; dup {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	return out, nil
}

// --- store.Onboarding ---

func (s *Store) Ensure(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.onboarding[userID]; !ok {
		s.onboarding[userID] = false
	}
	return nil
}

func (s *Store) Completed(_ context.Context, userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.onboarding[userID], nil
}

func (s *Store) MarkCompleted(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onboarding[userID] = true
	return nil
}
