package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"family-session/internal/authclient"
	"family-session/internal/config"
	"family-session/internal/event"
	"family-session/internal/kvstore"
	"family-session/internal/logouthook"
	"family-session/internal/session"
	"family-session/internal/tenant"
	"family-session/internal/token"
	"family-session/internal/transport"
)

// Client is the assembled session runtime: persistence, authenticator,
// token manager, authorized transport, session store and tenant resolver,
// with the session's logout registered on the hook.
type Client struct {
	Config       *config.Config
	Store        kvstore.Store
	Auth         *authclient.Client
	Tokens       *token.Manager
	Transport    *transport.Transport
	HTTP         *http.Client
	Associations *authclient.Associations
	Events       *event.InMemoryBus
	Session      *session.Store
	Tenant       *tenant.Resolver

	hook         *logouthook.Hook
	cleanupFuncs []func()
}

type ClientOptions struct {
	// Hook defaults to logouthook.Default.
	Hook *logouthook.Hook
	// KV overrides the store selected by cfg.StoreDriver.
	KV     kvstore.Store
	Base   http.RoundTripper
	Now    func() time.Time
	Logger *slog.Logger
}

// NewClient wires the runtime and hydrates the session from persistence.
func NewClient(ctx context.Context, cfg *config.Config, opts ClientOptions) (*Client, error) {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	hook := opts.Hook
	if hook == nil {
		hook = logouthook.Default
	}

	c := &Client{Config: cfg, hook: hook}

	kv := opts.KV
	if kv == nil {
		store, closeStore, err := kvstore.Open(ctx, cfg, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		kv = store
		c.cleanupFuncs = append(c.cleanupFuncs, closeStore)
	}
	c.Store = kv

	var plain *http.Client
	if opts.Base != nil {
		plain = &http.Client{Transport: opts.Base, Timeout: cfg.APITimeout}
	}
	auth, err := authclient.New(authclient.Options{
		BaseURL:    cfg.APIBaseURL,
		LoginMode:  cfg.LoginMode,
		Timeout:    cfg.APITimeout,
		HTTPClient: plain,
		Logger:     log,
	})
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize auth client: %w", err)
	}
	c.Auth = auth

	c.Tokens = token.NewManager(kv, auth, hook, token.Options{
		SafetyMargin:   cfg.TokenSafetyMargin,
		RefreshTimeout: cfg.RefreshTimeout,
		Now:            opts.Now,
		Logger:         log,
	})

	c.Transport = transport.New(c.Tokens, hook, transport.Options{
		Base:         opts.Base,
		RateLimitRPM: cfg.APIRateLimitRPM,
		Logger:       log,
	})
	c.HTTP = c.Transport.Client(cfg.APITimeout)
	c.Associations = auth.Associations(c.HTTP)

	c.Events = event.NewBus()
	c.Session = session.NewStore(kv, auth, c.Associations, c.Tokens, c.Events, log)

	c.Tenant = tenant.NewResolver(tenant.Options{AutoSelect: cfg.TenantAutoSelect, Logger: log})
	c.cleanupFuncs = append(c.cleanupFuncs, c.Tenant.Attach(c.Events))

	hook.Register(c.Session.LogoutFunc())
	c.cleanupFuncs = append(c.cleanupFuncs, func() { hook.Register(nil) })

	c.Session.Hydrate(ctx)

	return c, nil
}

// Close unregisters the logout hook and releases the store. The persisted
// session is left in place.
func (c *Client) Close() {
	for i := len(c.cleanupFuncs) - 1; i >= 0; i-- {
		c.cleanupFuncs[i]()
	}
	c.cleanupFuncs = nil
}
