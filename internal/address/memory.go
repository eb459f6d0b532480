package address

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RejectedError is returned by MemoryBackend for requests a real backend
// would refuse.
type RejectedError struct {
	Message string
}

func (e *RejectedError) Error() string     { return "address backend: " + e.Message }
func (e *RejectedError) IsRejection() bool { return true }

// MemoryBackend is an in-process Backend for local development and tests.
// It enforces the same rules as the remote store: at most
// MaxSavedAddresses per user and a single primary.
type MemoryBackend struct {
	mu     sync.Mutex
	byUser map[string][]SavedAddress
}

// NewMemoryBackend creates an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{byUser: make(map[string][]SavedAddress)}
}

// Seed inserts addresses as-is, assigning ids where missing.
func (b *MemoryBackend) Seed(addrs ...SavedAddress) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range addrs {
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		b.byUser[a.UserID] = append(b.byUser[a.UserID], a)
	}
}

func (b *MemoryBackend) ListAddresses(_ context.Context, userID string) ([]SavedAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.byUser[userID]
	out := make([]SavedAddress, len(list))
	copy(out, list)
	return out, nil
}

func (b *MemoryBackend) CreateAddress(_ context.Context, addr SavedAddress) (SavedAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.byUser[addr.UserID]
	if len(list) >= MaxSavedAddresses {
		return SavedAddress{}, &RejectedError{Message: "address limit reached"}
	}
	addr.ID = uuid.NewString()
	if len(list) == 0 {
		addr.IsPrimary = 1
	}
	if addr.Primary() {
		demote(list, addr.ID)
	}
	b.byUser[addr.UserID] = append(list, addr)
	return addr, nil
}

func (b *MemoryBackend) UpdateAddress(_ context.Context, addr SavedAddress) (SavedAddress, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.byUser[addr.UserID]
	for i := range list {
		if list[i].ID == addr.ID {
			list[i] = addr
			if addr.Primary() {
				demote(list, addr.ID)
			}
			return addr, nil
		}
	}
	return SavedAddress{}, &RejectedError{Message: "address not found"}
}

func (b *MemoryBackend) SetPrimaryAddress(_ context.Context, userID, addressID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.byUser[userID]
	for i := range list {
		if list[i].ID == addressID {
			list[i].IsPrimary = 1
			demote(list, addressID)
			return nil
		}
	}
	return &RejectedError{Message: "address not found"}
}

func demote(list []SavedAddress, keep string) {
	for i := range list {
		if list[i].ID != keep {
			list[i].IsPrimary = 0
		}
	}
}
