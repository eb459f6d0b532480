package address

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/lumen-apothecary/storefront/internal/errors"
	"github.com/lumen-apothecary/storefront/internal/logging"
)

// Refresher re-fetches the address cache on a cron schedule while a shopper
// is logged in.
type Refresher struct {
	manager *Manager
	cron    *cron.Cron
	timeout time.Duration
	log     *logging.Logger
}

// NewRefresher schedules refreshes. schedule accepts standard five-field
// expressions and descriptors such as "@every 5m".
func NewRefresher(manager *Manager, schedule string, log *logging.Logger) (*Refresher, error) {
	if log == nil {
		log = logging.NewDefault("address-refresher")
	}
	r := &Refresher{
		manager: manager,
		cron:    cron.New(),
		timeout: 30 * time.Second,
		log:     log,
	}
	if _, err := r.cron.AddFunc(schedule, func() { r.Refresh(context.Background()) }); err != nil {
		return nil, fmt.Errorf("parse refresh schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Refresh runs one refresh. A logged-out shopper is skipped.
func (r *Refresher) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	list, err := r.manager.FetchSavedAddresses(ctx)
	if errors.Is(err, errors.CodeUnauthenticated) {
		r.log.Debug("skipping address refresh, no session")
		return
	}
	r.log.WithField("count", len(list)).Debug("address cache refreshed")
}

// Start runs the schedule in the background.
func (r *Refresher) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running refresh to finish or ctx
// to expire.
func (r *Refresher) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
