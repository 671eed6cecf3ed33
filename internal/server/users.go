package server

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"github.com/freeeve/backstab/internal/model"
	"github.com/freeeve/backstab/internal/protocol"
)

// UserRegistry is the in-memory user database plus the token indexes:
// token -> username for O(1) request auth, and username -> tokens for
// fan-out and revocation. Mutations serialise under the registry's own
// lock, independent of any game lock.
type UserRegistry struct {
	mu     sync.RWMutex
	users  map[string]*model.User
	tokens map[string]string          // token -> username
	byUser map[string]map[string]bool // username -> set of tokens
}

// NewUserRegistry builds an empty registry.
func NewUserRegistry() *UserRegistry {
	return &UserRegistry{
		users:  make(map[string]*model.User),
		tokens: make(map[string]string),
		byUser: make(map[string]map[string]bool),
	}
}

// Load replaces the user database with persisted records.
func (r *UserRegistry) Load(users []model.User) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = make(map[string]*model.User, len(users))
	for i := range users {
		u := users[i]
		r.users[u.Username] = &u
	}
}

// Snapshot returns the user records sorted by username, for persistence.
func (r *UserRegistry) Snapshot() []model.User {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.User, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out
}

// hashPassword derives a salted digest. The salt doubles as the username so
// identical passwords hash differently per account.
func hashPassword(username, password string) string {
	sum := sha256.Sum256([]byte(username + ":" + password))
	return hex.EncodeToString(sum[:])
}

// newToken returns an opaque 128-bit random token, hex encoded.
func newToken() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is unrecoverable for token issuance.
		panic("users: random source unavailable: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// SignIn authenticates a user and mints a fresh token. Unknown usernames
// register on first sign-in; a wrong password on an existing account fails
// with AUTH.
func (r *UserRegistry) SignIn(username, password string) (string, error) {
	if username == "" || password == "" {
		return "", protocol.NewError(protocol.ErrAuth, "username and password required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	hash := hashPassword(username, password)
	u, ok := r.users[username]
	if !ok {
		now := time.Now().UTC()
		u = &model.User{Username: username, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
		r.users[username] = u
	} else if !hmac.Equal([]byte(u.PasswordHash), []byte(hash)) {
		return "", protocol.NewError(protocol.ErrAuth, "wrong password")
	}

	token := newToken()
	r.tokens[token] = username
	if r.byUser[username] == nil {
		r.byUser[username] = make(map[string]bool)
	}
	r.byUser[username][token] = true
	return token, nil
}

// Register verifies credentials without minting a token, creating the
// account on first use. Used by the connection-level login endpoint.
func (r *UserRegistry) Register(username, password string) error {
	if username == "" || password == "" {
		return protocol.NewError(protocol.ErrAuth, "username and password required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	hash := hashPassword(username, password)
	u, ok := r.users[username]
	if !ok {
		now := time.Now().UTC()
		r.users[username] = &model.User{Username: username, PasswordHash: hash, CreatedAt: now, UpdatedAt: now}
		return nil
	}
	if !hmac.Equal([]byte(u.PasswordHash), []byte(hash)) {
		return protocol.NewError(protocol.ErrAuth, "wrong password")
	}
	return nil
}

// Authenticate resolves a token to its username.
func (r *UserRegistry) Authenticate(token string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	username, ok := r.tokens[token]
	if !ok {
		return "", protocol.NewError(protocol.ErrAuth, "unknown token")
	}
	return username, nil
}

// IsModerator reports whether the user holds moderator rights.
func (r *UserRegistry) IsModerator(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	return ok && u.Moderator
}

// SetModerator grants or revokes moderator rights.
func (r *UserRegistry) SetModerator(username string, flag bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[username]; ok {
		u.Moderator = flag
		u.UpdatedAt = time.Now().UTC()
	}
}

// RevokeToken invalidates a single token.
func (r *UserRegistry) RevokeToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if username, ok := r.tokens[token]; ok {
		delete(r.tokens, token)
		delete(r.byUser[username], token)
	}
}

// TokensOf returns all live tokens of a user, for fan-out.
func (r *UserRegistry) TokensOf(username string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for t := range r.byUser[username] {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// DeleteUser removes an account and revokes every token it holds.
// Returns the revoked tokens.
func (r *UserRegistry) DeleteUser(username string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[username]; !ok {
		return nil
	}
	delete(r.users, username)
	var revoked []string
	for t := range r.byUser[username] {
		delete(r.tokens, t)
		revoked = append(revoked, t)
	}
	delete(r.byUser, username)
	sort.Strings(revoked)
	return revoked
}

// Exists reports whether an account exists.
func (r *UserRegistry) Exists(username string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[username]
	return ok
}
