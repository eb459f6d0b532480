package session

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/localstore"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/notify"
)

type stubAuth struct {
	identity  Identity
	loginErr  error
	logoutErr error
	logouts   int
}

func (s *stubAuth) Login(context.Context, string, string) (Identity, error) {
	return s.identity, s.loginErr
}

func (s *stubAuth) Logout(context.Context) error {
	s.logouts++
	return s.logoutErr
}

type unauthorizedErr struct{}

func (unauthorizedErr) Error() string        { return "401" }
func (unauthorizedErr) IsUnauthorized() bool { return true }

var jane = Identity{SessionKey: "sk-123", UserID: "u-1", Email: "jane@example.com", FullName: "Jane Doe"}

func testKey() *[32]byte {
	var k [32]byte
	for i := range k {
		k[i] = byte(i + 1)
	}
	return &k
}

func newTestManager(storage localstore.Storage, auth Authenticator, opts ...Option) *Manager {
	opts = append([]Option{WithLogger(logging.NewDiscard())}, opts...)
	return NewManager(storage, auth, opts...)
}

func TestLoginStoresIdentity(t *testing.T) {
	storage := localstore.NewMemory()
	rec := notify.NewRecorder(0)
	m := newTestManager(storage, &stubAuth{identity: jane}, WithNotifier(rec))

	_, ok := m.Identity()
	assert.False(t, ok)

	got, err := m.Login(context.Background(), " jane@example.com ", "secret")
	require.NoError(t, err)
	assert.Equal(t, jane, got)
	assert.Equal(t, "sk-123", m.SessionKey())

	reloaded := newTestManager(storage, nil)
	id, ok := reloaded.Identity()
	require.True(t, ok)
	assert.Equal(t, jane, id)

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, notify.LevelSuccess, rec.Events()[0].Level)
}

func TestLoginValidation(t *testing.T) {
	rec := notify.NewRecorder(0)
	m := newTestManager(localstore.NewMemory(), &stubAuth{identity: jane}, WithNotifier(rec))

	_, err := m.Login(context.Background(), "", "secret")
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Len(t, rec.Events(), 1)
}

func TestLoginRejected(t *testing.T) {
	rec := notify.NewRecorder(0)
	m := newTestManager(localstore.NewMemory(), &stubAuth{loginErr: unauthorizedErr{}}, WithNotifier(rec))

	_, err := m.Login(context.Background(), "jane@example.com", "wrong")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeUnauthorized))
	assert.Equal(t, "Invalid email or password", errors.GetServiceError(err).Message)

	_, ok := m.Identity()
	assert.False(t, ok)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, notify.LevelError, rec.Events()[0].Level)
}

func TestLoginTransportFailure(t *testing.T) {
	m := newTestManager(localstore.NewMemory(), &stubAuth{loginErr: stderrors.New("dial tcp: refused")})

	_, err := m.Login(context.Background(), "jane@example.com", "secret")
	assert.True(t, errors.Is(err, errors.CodeTransport))
}

func TestLogoutClearsEvenOnFailure(t *testing.T) {
	storage := localstore.NewMemory()
	auth := &stubAuth{identity: jane, logoutErr: stderrors.New("boom")}
	m := newTestManager(storage, auth)
	m.Set(context.Background(), jane)

	require.NoError(t, m.Logout(context.Background()))
	assert.Equal(t, 1, auth.logouts)
	_, ok := m.Identity()
	assert.False(t, ok)

	_, err := storage.Get(context.Background(), StorageKey)
	assert.ErrorIs(t, err, localstore.ErrNotFound)
}

func TestSealedIdentityRoundTrip(t *testing.T) {
	storage := localstore.NewMemory()
	m := newTestManager(storage, nil, WithSealKey(testKey()))
	m.Set(context.Background(), jane)

	raw, err := storage.Get(context.Background(), StorageKey)
	require.NoError(t, err)
	assert.NotContains(t, raw, "sk-123")

	id, ok := newTestManager(storage, nil, WithSealKey(testKey())).Identity()
	require.True(t, ok)
	assert.Equal(t, jane, id)

	var other [32]byte
	_, ok = newTestManager(storage, nil, WithSealKey(&other)).Identity()
	assert.False(t, ok, "a different key must not open the record")
}

func TestCorruptRecordMeansNoSession(t *testing.T) {
	for _, raw := range []string{"{broken", `{"user_id":"u-1"}`, "null"} {
		storage := localstore.NewMemory()
		require.NoError(t, storage.Set(context.Background(), StorageKey, raw))
		_, ok := newTestManager(storage, nil).Identity()
		assert.False(t, ok, "raw %q", raw)
	}

	storage := localstore.NewMemory()
	require.NoError(t, storage.Set(context.Background(), StorageKey, "not-base64!!"))
	_, ok := newTestManager(storage, nil, WithSealKey(testKey())).Identity()
	assert.False(t, ok)
}
