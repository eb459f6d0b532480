// Package session keeps the shopper's session identity and mirrors it to
// local storage, optionally sealed with a secret key.
package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/crypto/nacl/secretbox"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/localstore"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/notify"
)

// StorageKey is the local storage key the identity lives under.
const StorageKey = "session"

const nonceSize = 24

// Identity is what the backend issues on login.
type Identity struct {
	SessionKey string `json:"session_key"`
	UserID     string `json:"user_id"`
	Email      string `json:"email,omitempty"`
	FullName   string `json:"full_name,omitempty"`
}

func (id Identity) valid() bool {
	return id.SessionKey != "" && id.UserID != ""
}

// Authenticator issues and revokes sessions.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (Identity, error)
	Logout(ctx context.Context) error
}

// Manager holds the current identity.
type Manager struct {
	mu       sync.RWMutex
	identity *Identity

	storage  localstore.Storage
	auth     Authenticator
	key      *[32]byte
	log      *logging.Logger
	notifier notify.Notifier
}

// Option configures a Manager.
type Option func(*Manager)

// WithSealKey seals the stored identity with NaCl secretbox.
func WithSealKey(key *[32]byte) Option {
	return func(m *Manager) { m.key = key }
}

func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) { m.log = log }
}

func WithNotifier(n notify.Notifier) Option {
	return func(m *Manager) { m.notifier = n }
}

// NewManager creates a manager and restores any stored identity. A record
// that is missing, corrupt or cannot be opened with the key means no session.
func NewManager(storage localstore.Storage, auth Authenticator, opts ...Option) *Manager {
	m := &Manager{storage: storage, auth: auth}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.NewDefault("session")
	}

	if id, ok := m.restore(context.Background()); ok {
		m.identity = &id
	}
	return m
}

// SetAuthenticator replaces the authenticator. It exists for wiring, where
// the commerce client needs the manager as its session key source.
func (m *Manager) SetAuthenticator(auth Authenticator) {
	m.mu.Lock()
	m.auth = auth
	m.mu.Unlock()
}

// Identity returns the current identity.
func (m *Manager) Identity() (Identity, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return Identity{}, false
	}
	return *m.identity, true
}

// SessionKey returns the current session key or "".
func (m *Manager) SessionKey() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.identity == nil {
		return ""
	}
	return m.identity.SessionKey
}

// Login authenticates against the backend and stores the issued identity.
func (m *Manager) Login(ctx context.Context, email, password string) (Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		se := errors.Validation("Email and password are required")
		notify.Failure(ctx, m.notifier, "session", se.Message)
		return Identity{}, se
	}

	m.mu.RLock()
	auth := m.auth
	m.mu.RUnlock()
	if auth == nil {
		return Identity{}, errors.Internal("no authenticator configured", nil)
	}

	id, err := auth.Login(ctx, email, password)
	if err != nil {
		se := errors.FromRemote(err, "Could not log in, please try again")
		if se.Code == errors.CodeUnauthorized {
			se = errors.Unauthorized("Invalid email or password", err)
		}
		notify.Failure(ctx, m.notifier, "session", se.Message)
		return Identity{}, se
	}
	if !id.valid() {
		se := errors.Transport("", fmt.Errorf("login returned an incomplete identity"))
		notify.Failure(ctx, m.notifier, "session", se.Message)
		return Identity{}, se
	}

	m.Set(ctx, id)
	m.log.WithContext(ctx).WithField("user_id", id.UserID).Info("shopper logged in")
	notify.Success(ctx, m.notifier, "session", "Logged in successfully")
	return id, nil
}

// Logout ends the session. The local identity is cleared even when the
// backend call fails.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.RLock()
	auth := m.auth
	loggedIn := m.identity != nil
	m.mu.RUnlock()

	if loggedIn && auth != nil {
		if err := auth.Logout(ctx); err != nil {
			m.log.WithContext(ctx).WithError(err).Warn("remote logout failed, clearing local session anyway")
		}
	}
	m.Clear(ctx)
	notify.Info(ctx, m.notifier, "session", "Logged out")
	return nil
}

// Set replaces the identity and persists it.
func (m *Manager) Set(ctx context.Context, id Identity) {
	m.mu.Lock()
	m.identity = &id
	m.mu.Unlock()
	m.persist(ctx, id)
}

// Clear forgets the identity locally, for example after the backend reports
// the session expired.
func (m *Manager) Clear(ctx context.Context) {
	m.mu.Lock()
	m.identity = nil
	m.mu.Unlock()
	if err := m.storage.Delete(ctx, StorageKey); err != nil {
		m.log.WithContext(ctx).WithError(err).Warn("local storage delete dropped")
	}
}

func (m *Manager) persist(ctx context.Context, id Identity) {
	if m.key == nil {
		localstore.Persist(ctx, m.storage, StorageKey, id, m.log)
		return
	}

	sealed, err := seal(m.key, id)
	if err == nil {
		err = m.storage.Set(ctx, StorageKey, sealed)
	}
	if err != nil {
		m.log.WithContext(ctx).WithError(err).Warn("local storage write dropped")
	}
}

func (m *Manager) restore(ctx context.Context) (Identity, bool) {
	var id Identity
	if m.key == nil {
		if !localstore.Load(ctx, m.storage, StorageKey, &id) || !id.valid() {
			return Identity{}, false
		}
		return id, true
	}

	raw, err := m.storage.Get(ctx, StorageKey)
	if err != nil || raw == "" {
		return Identity{}, false
	}
	id, err = open(m.key, raw)
	if err != nil || !id.valid() {
		return Identity{}, false
	}
	return id, true
}

func seal(key *[32]byte, id Identity) (string, error) {
	plain, err := json.Marshal(id)
	if err != nil {
		return "", err
	}
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], plain, &nonce, key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func open(key *[32]byte, encoded string) (Identity, error) {
	box, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return Identity{}, err
	}
	if len(box) < nonceSize+secretbox.Overhead {
		return Identity{}, fmt.Errorf("sealed session too short")
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, key)
	if !ok {
		return Identity{}, fmt.Errorf("sealed session does not open")
	}
	var id Identity
	if err := json.Unmarshal(plain, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}
