package address

import (
	"context"
	"sync"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/notify"
	"github.com/lumen-apothecary/storefront/internal/session"
)

// Backend is the remote address store.
type Backend interface {
	ListAddresses(ctx context.Context, userID string) ([]SavedAddress, error)
	CreateAddress(ctx context.Context, addr SavedAddress) (SavedAddress, error)
	UpdateAddress(ctx context.Context, addr SavedAddress) (SavedAddress, error)
	SetPrimaryAddress(ctx context.Context, userID, addressID string) error
}

// IdentityProvider reports who is logged in.
type IdentityProvider interface {
	Identity() (session.Identity, bool)
}

// Operation names a manager operation for state tracking and metrics.
type Operation string

const (
	OpFetch      Operation = "fetch"
	OpSetPrimary Operation = "set_primary"
	OpSave       Operation = "save"
)

// OpState is the progress of the latest call of an operation.
type OpState string

const (
	StateIdle    OpState = "idle"
	StateLoading OpState = "loading"
	StateSuccess OpState = "success"
	StateError   OpState = "error"
)

const topic = "address"

// Manager mirrors the shopper's addresses from the backend. Calls are not
// queued; a slow response may overwrite the result of a newer call.
type Manager struct {
	mu        sync.Mutex
	addresses []SavedAddress
	states    map[Operation]OpState

	backend  Backend
	identity IdentityProvider
	notifier notify.Notifier
	log      *logging.Logger
	observe  func(op Operation, outcome OpState)
}

// Option configures a Manager.
type Option func(*Manager)

func WithLogger(log *logging.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithObserver registers a callback for every finished operation.
func WithObserver(fn func(op Operation, outcome OpState)) Option {
	return func(m *Manager) { m.observe = fn }
}

// NewManager creates a manager with an empty cache.
func NewManager(backend Backend, identity IdentityProvider, notifier notify.Notifier, opts ...Option) *Manager {
	m := &Manager{
		addresses: []SavedAddress{},
		states:    make(map[Operation]OpState),
		backend:   backend,
		identity:  identity,
		notifier:  notifier,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = logging.NewDefault("address")
	}
	return m
}

// Addresses returns a copy of the cached addresses.
func (m *Manager) Addresses() []SavedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SavedAddress, len(m.addresses))
	copy(out, m.addresses)
	return out
}

// State returns the state of the latest call of op.
func (m *Manager) State(op Operation) OpState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.states[op]; ok {
		return s
	}
	return StateIdle
}

func (m *Manager) setState(op Operation, s OpState) {
	m.mu.Lock()
	m.states[op] = s
	m.mu.Unlock()
	if m.observe != nil && s != StateLoading {
		m.observe(op, s)
	}
}

// FetchSavedAddresses refreshes the cache from the backend. A failed call
// empties the cache and is only logged, since refreshes also run in the
// background where nobody is waiting for a message.
func (m *Manager) FetchSavedAddresses(ctx context.Context) ([]SavedAddress, error) {
	id, ok := m.identity.Identity()
	if !ok {
		m.setState(OpFetch, StateError)
		return nil, errors.Unauthenticated("")
	}
	return m.fetch(ctx, id, ""), nil
}

func (m *Manager) fetch(ctx context.Context, id session.Identity, prefer string) []SavedAddress {
	m.setState(OpFetch, StateLoading)

	list, err := m.backend.ListAddresses(ctx, id.UserID)
	if err != nil {
		m.log.WithContext(ctx).
			WithField("user_id", id.UserID).
			WithError(err).
			Warn("fetch saved addresses failed")
		m.mu.Lock()
		m.addresses = []SavedAddress{}
		m.mu.Unlock()
		m.setState(OpFetch, StateError)
		return []SavedAddress{}
	}

	owned := make([]SavedAddress, 0, len(list))
	for _, a := range list {
		if a.UserID == id.UserID {
			owned = append(owned, a)
		}
	}
	owned = normalize(owned, prefer)

	m.mu.Lock()
	m.addresses = owned
	m.mu.Unlock()
	m.setState(OpFetch, StateSuccess)

	out := make([]SavedAddress, len(owned))
	copy(out, owned)
	return out
}

// fail emits the single notification for a failed user action.
func (m *Manager) fail(ctx context.Context, op Operation, err *errors.ServiceError) error {
	m.setState(op, StateError)
	notify.Failure(ctx, m.notifier, topic, err.Message)
	return err
}

// SetPrimary makes addressID the primary address. The cache is updated
// before the backend call; if the call fails the cache is reconciled with a
// fresh fetch.
func (m *Manager) SetPrimary(ctx context.Context, addressID string) error {
	id, ok := m.identity.Identity()
	if !ok {
		return m.fail(ctx, OpSetPrimary, errors.Unauthenticated(""))
	}

	m.mu.Lock()
	found := false
	for _, a := range m.addresses {
		if a.ID == addressID {
			found = true
			break
		}
	}
	if !found {
		m.mu.Unlock()
		return m.fail(ctx, OpSetPrimary, errors.NotFound("address", addressID))
	}
	for i := range m.addresses {
		if m.addresses[i].ID == addressID {
			m.addresses[i].IsPrimary = 1
		} else {
			m.addresses[i].IsPrimary = 0
		}
	}
	m.states[OpSetPrimary] = StateLoading
	m.mu.Unlock()

	if err := m.backend.SetPrimaryAddress(ctx, id.UserID, addressID); err != nil {
		m.log.WithContext(ctx).
			WithField("address_id", addressID).
			WithError(err).
			Warn("set primary address failed, reconciling")
		se := errors.FromRemote(err, "Could not update your primary address")
		m.fetch(ctx, id, "")
		return m.fail(ctx, OpSetPrimary, se)
	}

	m.setState(OpSetPrimary, StateSuccess)
	notify.Success(ctx, m.notifier, topic, "Primary address updated")
	m.fetch(ctx, id, addressID)
	return nil
}

// SaveOrUpdateAddress creates a new address or, in edit mode, updates
// existing. New addresses become primary; edits keep their flag.
func (m *Manager) SaveOrUpdateAddress(ctx context.Context, form FormData, isEditMode bool, existing *SavedAddress) error {
	id, ok := m.identity.Identity()
	if !ok {
		return m.fail(ctx, OpSave, errors.Unauthenticated(""))
	}

	if !isEditMode {
		m.mu.Lock()
		count := len(m.addresses)
		m.mu.Unlock()
		if count >= MaxSavedAddresses {
			return m.fail(ctx, OpSave, errors.CapacityExceeded("addresses", MaxSavedAddresses))
		}
	}
	if isEditMode && (existing == nil || existing.ID == "") {
		return m.fail(ctx, OpSave, errors.Validation("Choose an address to edit"))
	}

	form = form.Trimmed()
	if err := form.Validate(); err != nil {
		return m.fail(ctx, OpSave, errors.GetServiceError(err))
	}

	m.setState(OpSave, StateLoading)

	var (
		saved SavedAddress
		err   error
	)
	if isEditMode {
		payload := form.apply(*existing)
		payload.UserID = id.UserID
		saved, err = m.backend.UpdateAddress(ctx, payload)
	} else {
		payload := form.apply(SavedAddress{UserID: id.UserID, IsPrimary: 1})
		saved, err = m.backend.CreateAddress(ctx, payload)
	}
	if err != nil {
		m.log.WithContext(ctx).
			WithField("edit", isEditMode).
			WithError(err).
			Warn("save address failed")
		return m.fail(ctx, OpSave, errors.FromRemote(err, "Could not save your address"))
	}

	m.setState(OpSave, StateSuccess)
	if isEditMode {
		notify.Success(ctx, m.notifier, topic, "Address updated")
		m.fetch(ctx, id, "")
	} else {
		notify.Success(ctx, m.notifier, topic, "Address saved")
		m.fetch(ctx, id, saved.ID)
	}
	return nil
}
