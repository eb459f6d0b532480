package address

import (
	"context"
	stderrors "errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/notify"
	"github.com/lumen-apothecary/storefront/internal/session"
)

const userID = "u-1"

type staticIdentity struct {
	id session.Identity
	ok bool
}

func (s staticIdentity) Identity() (session.Identity, bool) { return s.id, s.ok }

var loggedIn = staticIdentity{id: session.Identity{SessionKey: "sk", UserID: userID}, ok: true}

// spyBackend wraps a MemoryBackend, counting calls and optionally failing or
// blocking them.
type spyBackend struct {
	*MemoryBackend
	calls int32

	listErr    error
	createErr  error
	updateErr  error
	primaryErr error

	// primaryHook runs inside SetPrimaryAddress before it returns.
	primaryHook func()
	// primaryLags acknowledges SetPrimaryAddress without changing what
	// ListAddresses returns.
	primaryLags bool

	lastCreated SavedAddress
}

func newSpy() *spyBackend {
	return &spyBackend{MemoryBackend: NewMemoryBackend()}
}

func (s *spyBackend) ListAddresses(ctx context.Context, uid string) ([]SavedAddress, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.MemoryBackend.ListAddresses(ctx, uid)
}

func (s *spyBackend) CreateAddress(ctx context.Context, a SavedAddress) (SavedAddress, error) {
	atomic.AddInt32(&s.calls, 1)
	s.lastCreated = a
	if s.createErr != nil {
		return SavedAddress{}, s.createErr
	}
	return s.MemoryBackend.CreateAddress(ctx, a)
}

func (s *spyBackend) UpdateAddress(ctx context.Context, a SavedAddress) (SavedAddress, error) {
	atomic.AddInt32(&s.calls, 1)
	if s.updateErr != nil {
		return SavedAddress{}, s.updateErr
	}
	return s.MemoryBackend.UpdateAddress(ctx, a)
}

func (s *spyBackend) SetPrimaryAddress(ctx context.Context, uid, id string) error {
	atomic.AddInt32(&s.calls, 1)
	if s.primaryHook != nil {
		s.primaryHook()
	}
	if s.primaryErr != nil {
		return s.primaryErr
	}
	if s.primaryLags {
		return nil
	}
	return s.MemoryBackend.SetPrimaryAddress(ctx, uid, id)
}

func (s *spyBackend) callCount() int { return int(atomic.LoadInt32(&s.calls)) }

type rejection struct{ status int }

func (r rejection) Error() string        { return "rejected" }
func (r rejection) IsRejection() bool    { return true }
func (r rejection) IsUnauthorized() bool { return r.status == 401 }

func seedThree(b *spyBackend) {
	b.Seed(
		SavedAddress{ID: "a1", UserID: userID, FullName: "Home", IsPrimary: 1},
		SavedAddress{ID: "a2", UserID: userID, FullName: "Work"},
		SavedAddress{ID: "a3", UserID: userID, FullName: "Parents"},
	)
}

func validForm() FormData {
	return FormData{
		FullName: "  Jane Doe ",
		Address1: "12 Rose Lane",
		Mobile:   "9876543210",
		Email:    "jane@example.com",
		City:     " Pune",
		Pincode:  "411001 ",
	}
}

func newTestManager(b Backend, id IdentityProvider, n notify.Notifier) *Manager {
	return NewManager(b, id, n, WithLogger(logging.NewDiscard()))
}

func primaries(list []SavedAddress) []string {
	var ids []string
	for _, a := range list {
		if a.Primary() {
			ids = append(ids, a.ID)
		}
	}
	return ids
}

func TestFetchFiltersToCurrentUser(t *testing.T) {
	b := newSpy()
	seedThree(b)
	b.Seed(SavedAddress{ID: "x", UserID: "someone-else", IsPrimary: 1})
	m := newTestManager(b, loggedIn, nil)

	assert.Equal(t, StateIdle, m.State(OpFetch))
	list, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 3)
	assert.Equal(t, StateSuccess, m.State(OpFetch))
	assert.Equal(t, []string{"a1"}, primaries(m.Addresses()))
}

func TestFetchNormalizesMultiplePrimaries(t *testing.T) {
	b := newSpy()
	b.Seed(
		SavedAddress{ID: "a1", UserID: userID},
		SavedAddress{ID: "a2", UserID: userID, IsPrimary: 1},
		SavedAddress{ID: "a3", UserID: userID, IsPrimary: 1},
	)
	m := newTestManager(b, loggedIn, nil)

	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a2"}, primaries(m.Addresses()))
}

func TestFetchFailureDegradesSilently(t *testing.T) {
	b := newSpy()
	seedThree(b)
	rec := notify.NewRecorder(0)
	m := newTestManager(b, loggedIn, rec)

	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	require.Len(t, m.Addresses(), 3)

	b.listErr = stderrors.New("connection reset")
	list, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, m.Addresses())
	assert.Equal(t, StateError, m.State(OpFetch))
	assert.Empty(t, rec.Events(), "passive refresh must not notify")
}

func TestMissingIdentityFailsBeforeIO(t *testing.T) {
	b := newSpy()
	rec := notify.NewRecorder(0)
	m := newTestManager(b, staticIdentity{}, rec)
	ctx := context.Background()

	_, err := m.FetchSavedAddresses(ctx)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	err = m.SaveOrUpdateAddress(ctx, validForm(), false, nil)
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	err = m.SetPrimary(ctx, "a1")
	assert.True(t, errors.Is(err, errors.CodeUnauthenticated))

	assert.Equal(t, 0, b.callCount())
	assert.Len(t, rec.Events(), 2, "one notification per user action")
}

func TestSaveAtCapacityMakesNoNetworkCall(t *testing.T) {
	b := newSpy()
	seedThree(b)
	rec := notify.NewRecorder(0)
	m := newTestManager(b, loggedIn, rec)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	before := b.callCount()

	err = m.SaveOrUpdateAddress(context.Background(), validForm(), false, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.CodeCapacityExceeded))
	assert.Equal(t, before, b.callCount())
	assert.Equal(t, StateError, m.State(OpSave))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.LevelError, events[0].Level)
	assert.Equal(t, "You can save up to 3 addresses", events[0].Message)
}

func TestEditAllowedAtCapacity(t *testing.T) {
	b := newSpy()
	seedThree(b)
	m := newTestManager(b, loggedIn, nil)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)

	existing := m.Addresses()[1]
	form := validForm()
	form.FullName = "Office"
	require.NoError(t, m.SaveOrUpdateAddress(context.Background(), form, true, &existing))

	list := m.Addresses()
	require.Len(t, list, 3)
	assert.Equal(t, "Office", list[1].FullName)
	assert.Equal(t, 0, list[1].IsPrimary, "edit keeps the existing flag")
	assert.Equal(t, []string{"a1"}, primaries(list))
}

func TestNewAddressBecomesPrimary(t *testing.T) {
	b := newSpy()
	b.Seed(
		SavedAddress{ID: "a1", UserID: userID, FullName: "Home", IsPrimary: 1},
		SavedAddress{ID: "a2", UserID: userID, FullName: "Work"},
	)
	rec := notify.NewRecorder(0)
	m := newTestManager(b, loggedIn, rec)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.SaveOrUpdateAddress(context.Background(), validForm(), false, nil))

	assert.Equal(t, 1, b.lastCreated.IsPrimary)
	assert.Equal(t, "Jane Doe", b.lastCreated.FullName)
	assert.Equal(t, "Pune", b.lastCreated.City)
	assert.Equal(t, "411001", b.lastCreated.Pincode)
	assert.Equal(t, userID, b.lastCreated.UserID)

	list := m.Addresses()
	require.Len(t, list, 3)
	p := primaries(list)
	require.Len(t, p, 1)
	assert.Equal(t, "Jane Doe", list[2].FullName)
	assert.Equal(t, list[2].ID, p[0])

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, notify.LevelSuccess, events[0].Level)
	assert.Equal(t, StateSuccess, m.State(OpSave))
}

func TestSaveRemoteFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code errors.ErrorCode
	}{
		{"unauthorized", rejection{status: 401}, errors.CodeUnauthorized},
		{"rejected", rejection{status: 422}, errors.CodeRemoteRejected},
		{"transport", stderrors.New("EOF"), errors.CodeTransport},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b := newSpy()
			b.createErr = tc.err
			rec := notify.NewRecorder(0)
			m := newTestManager(b, loggedIn, rec)

			err := m.SaveOrUpdateAddress(context.Background(), validForm(), false, nil)
			assert.True(t, errors.Is(err, tc.code))
			assert.Len(t, rec.Events(), 1)
			assert.Equal(t, StateError, m.State(OpSave))
		})
	}
}

func TestSaveValidatesForm(t *testing.T) {
	b := newSpy()
	m := newTestManager(b, loggedIn, nil)

	err := m.SaveOrUpdateAddress(context.Background(), FormData{FullName: "   "}, false, nil)
	assert.True(t, errors.Is(err, errors.CodeValidation))
	assert.Equal(t, 0, b.callCount())
}

func TestSetPrimaryIsOptimistic(t *testing.T) {
	b := newSpy()
	seedThree(b)
	m := newTestManager(b, loggedIn, nil)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)

	var during []SavedAddress
	var stateDuring OpState
	b.primaryHook = func() {
		during = m.Addresses()
		stateDuring = m.State(OpSetPrimary)
	}

	require.NoError(t, m.SetPrimary(context.Background(), "a3"))

	assert.Equal(t, []string{"a3"}, primaries(during))
	assert.Equal(t, StateLoading, stateDuring)
	assert.Equal(t, []string{"a3"}, primaries(m.Addresses()))
	assert.Equal(t, StateSuccess, m.State(OpSetPrimary))
}

func TestSetPrimarySuccessSurvivesStaleList(t *testing.T) {
	b := newSpy()
	seedThree(b)
	b.primaryLags = true
	rec := notify.NewRecorder(0)
	m := newTestManager(b, loggedIn, rec)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)

	require.NoError(t, m.SetPrimary(context.Background(), "a2"))

	assert.Equal(t, []string{"a2"}, primaries(m.Addresses()))
	assert.Equal(t, StateSuccess, m.State(OpSetPrimary))
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, notify.LevelSuccess, rec.Events()[0].Level)
}

func TestNormalizePrefersMutatedID(t *testing.T) {
	list := []SavedAddress{
		{ID: "a1", IsPrimary: 1},
		{ID: "a2"},
		{ID: "a3", IsPrimary: 1},
	}

	assert.Equal(t, []string{"a1"}, primaries(normalize(list, "")))
	assert.Equal(t, []string{"a2"}, primaries(normalize(list, "a2")))
	assert.Equal(t, []string{"a1"}, primaries(normalize(list, "gone")))
	assert.Empty(t, primaries(normalize([]SavedAddress{{ID: "a1"}}, "")))
}

func TestSetPrimaryFailureReconciles(t *testing.T) {
	b := newSpy()
	seedThree(b)
	b.primaryErr = rejection{status: 500}
	rec := notify.NewRecorder(0)
	m := newTestManager(b, loggedIn, rec)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)

	var during []SavedAddress
	b.primaryHook = func() { during = m.Addresses() }

	err = m.SetPrimary(context.Background(), "a2")
	assert.True(t, errors.Is(err, errors.CodeRemoteRejected))
	assert.Equal(t, []string{"a2"}, primaries(during), "optimistic update happens regardless of outcome")
	assert.Equal(t, []string{"a1"}, primaries(m.Addresses()), "refetch restores the backend's view")
	assert.Equal(t, StateError, m.State(OpSetPrimary))
	assert.Len(t, rec.Events(), 1)
}

func TestSetPrimaryUnknownID(t *testing.T) {
	b := newSpy()
	seedThree(b)
	m := newTestManager(b, loggedIn, nil)
	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	before := m.Addresses()
	calls := b.callCount()

	err = m.SetPrimary(context.Background(), "nope")
	assert.True(t, errors.Is(err, errors.CodeNotFound))
	assert.Equal(t, before, m.Addresses())
	assert.Equal(t, calls, b.callCount())
}

func TestObserverSeesOutcomes(t *testing.T) {
	b := newSpy()
	var outcomes []string
	m := NewManager(b, loggedIn, nil,
		WithLogger(logging.NewDiscard()),
		WithObserver(func(op Operation, s OpState) { outcomes = append(outcomes, string(op)+":"+string(s)) }))

	_, err := m.FetchSavedAddresses(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"fetch:success"}, outcomes)
}

func TestRefresher(t *testing.T) {
	b := newSpy()
	seedThree(b)
	m := newTestManager(b, loggedIn, nil)

	_, err := NewRefresher(m, "not a schedule", logging.NewDiscard())
	assert.Error(t, err)

	r, err := NewRefresher(m, "@every 1h", logging.NewDiscard())
	require.NoError(t, err)
	r.Refresh(context.Background())
	assert.Len(t, m.Addresses(), 3)

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)

	out := NewManager(b, staticIdentity{}, nil, WithLogger(logging.NewDiscard()))
	ro, err := NewRefresher(out, "@every 1h", logging.NewDiscard())
	require.NoError(t, err)
	calls := b.callCount()
	ro.Refresh(context.Background())
	assert.Equal(t, calls, b.callCount())
}
