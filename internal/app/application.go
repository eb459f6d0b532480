// Package app composes the storefront components into a running process.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lumen-apothecary/storefront/internal/address"
	"github.com/lumen-apothecary/storefront/internal/cart"
	"github.com/lumen-apothecary/storefront/internal/commerce"
	"github.com/lumen-apothecary/storefront/internal/config"
	"github.com/lumen-apothecary/storefront/internal/httpapi"
	"github.com/lumen-apothecary/storefront/internal/localstore"
	"github.com/lumen-apothecary/storefront/internal/logging"
	"github.com/lumen-apothecary/storefront/internal/metrics"
	"github.com/lumen-apothecary/storefront/internal/middleware"
	"github.com/lumen-apothecary/storefront/internal/notify"
	"github.com/lumen-apothecary/storefront/internal/session"
)

const (
	notificationBacklog = 100
	limiterIdle         = 10 * time.Minute
)

// backend is what a commerce backend offers the rest of the application.
type backend interface {
	httpapi.Catalog
	address.Backend
	session.Authenticator
}

// Application ties the storefront components together and manages their
// lifecycle.
type Application struct {
	cfg     *config.Config
	log     *logging.Logger
	manager *manager

	Storage       localstore.Storage
	Metrics       *metrics.Metrics
	Notifications *notify.Recorder
	Hub           *notify.Hub
	Session       *session.Manager
	Cart          *cart.Store
	Addresses     *address.Manager
	Commerce      backend

	handler http.Handler
	server  *http.Server
	closers []func() error
}

// New builds a fully initialised application from cfg.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger) (_ *Application, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logging.New("storefront", cfg.Logging.Level, cfg.Logging.Format)
	}

	a := &Application{
		cfg:           cfg,
		log:           log,
		manager:       &manager{log: log},
		Metrics:       metrics.New(),
		Notifications: notify.NewRecorder(notificationBacklog),
	}

	storage, closeStorage, err := openStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	a.Storage = storage
	a.closers = append(a.closers, closeStorage)
	defer func() {
		if err != nil {
			a.closeAll()
		}
	}()

	cors := middleware.NewCORSMiddleware(cfg.Server.AllowedOrigins)
	a.Hub = notify.NewHub(log, cors.CheckOrigin)
	notifier := notify.Multi{notify.NewLogNotifier(log), a.Notifications, a.Hub}

	sealKey, err := cfg.SessionKey()
	if err != nil {
		return nil, err
	}
	sessionOpts := []session.Option{session.WithLogger(log), session.WithNotifier(notifier)}
	if sealKey != nil {
		sessionOpts = append(sessionOpts, session.WithSealKey(sealKey))
	}
	a.Session = session.NewManager(storage, nil, sessionOpts...)

	switch cfg.Commerce.Backend {
	case config.CommerceRemote:
		retry := commerce.DefaultRetryConfig()
		retry.MaxRetries = cfg.Commerce.MaxRetries
		breaker := commerce.DefaultCircuitBreakerConfig()
		breaker.OnStateChange = func(_, to commerce.CircuitState) {
			a.Metrics.RecordCircuitState(int(to))
		}
		client, err := commerce.New(commerce.Config{
			BaseURL:       cfg.Commerce.BaseURL,
			SessionHeader: cfg.Commerce.SessionHeader,
			Timeout:       cfg.Commerce.Timeout,
			Retry:         retry,
			Breaker:       breaker,
			Session:       a.Session,
			Logger:        log,
			Observe:       a.Metrics.RecordRemoteCall,
		})
		if err != nil {
			return nil, fmt.Errorf("create commerce client: %w", err)
		}
		a.Commerce = client
	default:
		log.Warn("using the in-memory commerce backend; orders are not sent anywhere")
		a.Commerce = commerce.NewMemory()
	}
	a.Session.SetAuthenticator(a.Commerce)

	a.Cart = cart.NewStore(storage,
		cart.WithLogger(log),
		cart.WithNotifier(notifier),
		cart.WithObserver(func(op string) {
			a.Metrics.RecordCartMutation(op, a.Cart.Count())
		}))

	a.Addresses = address.NewManager(a.Commerce, a.Session, notifier,
		address.WithLogger(log),
		address.WithObserver(func(op address.Operation, outcome address.OpState) {
			a.Metrics.RecordAddressOperation(string(op), string(outcome))
		}))

	var limiter *middleware.RateLimiter
	if cfg.Server.RateLimit > 0 {
		limiter = middleware.NewRateLimiter(float64(cfg.Server.RateLimit), cfg.Server.RateBurst, log)
	}

	a.handler = httpapi.NewHandler(httpapi.Deps{
		Cart:          a.Cart,
		Addresses:     a.Addresses,
		Session:       a.Session,
		Catalog:       a.Commerce,
		Notifier:      notifier,
		Notifications: a.Notifications,
		Hub:           a.Hub,
		Metrics:       a.Metrics,
		RateLimiter:   limiter,
		CORS:          cors,
		Logger:        log,
	})

	if limiter != nil {
		stopCleanup := make(chan struct{})
		if err := a.manager.register(funcService{
			name: "rate-limiter-cleanup",
			start: func(context.Context) error {
				limiter.StartCleanup(limiterIdle, stopCleanup)
				return nil
			},
			stop: func(context.Context) error {
				close(stopCleanup)
				return nil
			},
		}); err != nil {
			return nil, err
		}
	}

	if cfg.Address.RefreshSchedule != "" {
		refresher, err := address.NewRefresher(a.Addresses, cfg.Address.RefreshSchedule, log)
		if err != nil {
			return nil, fmt.Errorf("address refresher: %w", err)
		}
		if err := a.manager.register(funcService{
			name: "address-refresher",
			start: func(context.Context) error {
				refresher.Start()
				return nil
			},
			stop: func(ctx context.Context) error {
				refresher.Stop(ctx)
				return nil
			},
		}); err != nil {
			return nil, err
		}
	}

	if err := a.manager.register(funcService{
		name: "notification-hub",
		stop: func(context.Context) error {
			a.Hub.Close()
			return nil
		},
	}); err != nil {
		return nil, err
	}

	return a, nil
}

// Handler returns the HTTP handler serving the storefront API.
func (a *Application) Handler() http.Handler {
	return a.handler
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(svc Service) error {
	return a.manager.register(svc)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.start(ctx)
}

// Stop stops all services and releases storage.
func (a *Application) Stop(ctx context.Context) error {
	err := a.manager.stop(ctx)
	if cerr := a.closeAll(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

func (a *Application) closeAll() error {
	var firstErr error
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.log.WithError(err).Warn("close storage failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	a.closers = nil
	return firstErr
}

// Serve starts the services, listens on ln and blocks until ctx is done or
// the server fails. It always shuts the server and services down before
// returning.
func (a *Application) Serve(ctx context.Context, ln net.Listener) error {
	if err := a.Start(ctx); err != nil {
		return err
	}

	a.server = &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.log.WithField("addr", ln.Addr().String()).Info("storefront listening")
		serveErr <- a.server.Serve(ln)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	grace := a.cfg.Server.ShutdownGrace
	if grace <= 0 {
		grace = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	if err := a.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// ListenAndServe listens on the configured address and calls Serve.
func (a *Application) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", a.cfg.Server.Addr, err)
	}
	return a.Serve(ctx, ln)
}
