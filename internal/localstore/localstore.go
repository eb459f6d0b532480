// Package localstore is the durable key-value storage the storefront uses to
// keep the cart and session identity across restarts.
package localstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/lumen-apothecary/storefront/internal/logging"
)

// ErrNotFound is returned by Get when a key has never been written.
var ErrNotFound = errors.New("localstore: key not found")

// Storage is a string key-value store.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Persist marshals v and writes it under key. It is a best-effort side
// channel: failures are logged and dropped, callers must not assume the
// write happened.
func Persist(ctx context.Context, s Storage, key string, v any, log *logging.Logger) {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.Set(ctx, key, string(data))
	}
	if err != nil && log != nil {
		log.WithContext(ctx).WithError(err).WithField("key", key).Warn("local storage write dropped")
	}
}

// Load reads key and unmarshals it into v. It reports false when the key is
// missing, unreadable or does not decode; v is left untouched in that case.
func Load(ctx context.Context, s Storage, key string, v any) bool {
	raw, err := s.Get(ctx, key)
	if err != nil || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), v) == nil
}
