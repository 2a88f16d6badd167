package openiap

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openiap/openiap-go/internal/bridge"
	"github.com/openiap/openiap-go/internal/handle"
	"github.com/openiap/openiap-go/internal/native"
)

// Client is a connection to an OpenIAP server through the native core. It
// is safe for concurrent use.
type Client struct {
	id    string
	cfg   *Config
	log   *zap.Logger
	lib   native.Library
	owned bool
	h     *handle.Manager
	reg   *bridge.Registry
	disp  *bridge.Dispatcher
	stats *analytics

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs map[subKey]*Subscription

	closeOnce sync.Once
	closeErr  error
}

// Connect connects to url with the configuration from ConfigFromEnv.
//
// Example:
//
//	client, err := openiap.Connect("grpc://localhost:50051")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
func Connect(url string) (*Client, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	return ConnectWithConfig(url, cfg)
}

// ConnectWithConfig connects to url. An empty url falls back to cfg.URL.
func ConnectWithConfig(url string, cfg *Config) (*Client, error) {
	c, url, err := newClient(url, cfg)
	if err != nil {
		return nil, err
	}
	if err := c.h.Connect(url); err != nil {
		c.stats.trackError("connection_error", "connect")
		c.shutdown()
		return nil, connectionError(url, err)
	}
	c.connected(url)
	return c, nil
}

// ConnectAsync connects to url without blocking the caller.
func ConnectAsync(url string, cfg *Config) *Future[*Client] {
	c, url, err := newClient(url, cfg)
	if err != nil {
		return bridge.Failed[*Client](err)
	}

	id := c.lib.NextRequestID()
	outer := bridge.NewFuture[*Client](c.reg, id, c.cfg.CallbackTimeout)
	if err := c.reg.Register(id, "connect", outer); err != nil {
		c.shutdown()
		return bridge.Failed[*Client](err)
	}
	inner := call[struct{}]{
		op:    "connect",
		async: "connect_async",
		free:  "free_connect_response",
		idArg: true,
		encode: func(a *native.Arena, _ int32) []uintptr {
			return []uintptr{native.Addr(a.CString(url))}
		},
		decode: decodeStatus("connect"),
	}.start(c)

	go func() {
		_, err := inner.Await(context.Background())
		if err != nil {
			var rf *RequestFailedError
			if errors.As(err, &rf) {
				err = &ConnectionError{URL: url, Message: rf.Message, Err: err}
			} else {
				err = &ConnectionError{URL: url, Err: err}
			}
			c.stats.trackError("connection_error", "connect_async")
			c.reg.Reject(id, err)
			c.shutdown()
			return
		}
		c.connected(url)
		if !c.reg.Resolve(id, c) {
			// The caller stopped waiting; nobody owns the client.
			c.Close()
		}
	}()
	return outer
}

func loadLibrary(cfg *Config) (native.Library, bool, error) {
	if cfg.Library != nil {
		return cfg.Library, false, nil
	}
	lib, err := native.Load(cfg.LibraryPath)
	if err != nil {
		return nil, false, err
	}
	lib.SetLogger(cfg.logger())
	return lib, true, nil
}

// newClient creates the native client and the bridge around it. The client
// is not connected.
func newClient(url string, cfg *Config) (*Client, string, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", err
	}
	if url == "" {
		url = cfg.URL
	}
	if url == "" {
		return nil, "", invalid("connect", "url", "is required")
	}
	if cfg.Library == nil && cfg.CallbackTimeout <= 0 {
		return nil, "", invalid("config", "callback_timeout", "must be positive with the native core")
	}

	lib, owned, err := loadLibrary(cfg)
	if err != nil {
		return nil, "", &ConnectionError{URL: url, Err: nativeFailure("load", err)}
	}

	id := uuid.NewString()
	log := cfg.logger().With(zap.String("client_id", id))
	h, err := handle.New(lib, handle.Options{
		AgentName:    cfg.AgentName,
		AgentVersion: cfg.AgentVersion,
		Logger:       log,
	})
	if err != nil {
		if owned {
			lib.Close()
		}
		return nil, "", connectionError(url, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	reg := bridge.NewRegistry(log)
	c := &Client{
		id:     id,
		cfg:    cfg,
		log:    log,
		lib:    lib,
		owned:  owned,
		h:      h,
		reg:    reg,
		disp:   bridge.NewDispatcher(reg, log),
		stats:  newAnalytics(cfg, id, log),
		ctx:    ctx,
		cancel: cancel,
		subs:   make(map[subKey]*Subscription),
	}
	return c, url, nil
}

func (c *Client) connected(url string) {
	if c.cfg.DefaultTimeout > 0 {
		c.SetDefaultTimeout(c.cfg.DefaultTimeout)
	}
	c.stats.trackConnected()
	c.log.Info("connected", zap.String("url", url))
}

// ID is the instance id used in this client's logs.
func (c *Client) ID() string { return c.id }

// Close stops every subscription, fails pending futures with ErrClosed and
// releases the native client. Only the first call has an effect; it returns
// the errors of unregistering subscriptions on the server.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.stopSubscriptions()
		c.shutdown()
		c.log.Info("closed")
	})
	return c.closeErr
}

// stopSubscriptions ends local delivery on the calling goroutine, so a
// callback may close its own client, then unregisters every subscription in
// parallel.
func (c *Client) stopSubscriptions() error {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, s := range c.subs {
		subs = append(subs, s)
	}
	c.mu.Unlock()
	for _, s := range subs {
		s.p.Stop()
	}

	var (
		mu   sync.Mutex
		errs error
		g    errgroup.Group
	)
	for _, s := range subs {
		s := s
		g.Go(func() error {
			if err := s.Close(); err != nil {
				mu.Lock()
				errs = multierr.Append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

// shutdown releases everything newClient created.
func (c *Client) shutdown() {
	c.cancel()
	c.disp.Close()
	c.reg.RejectAll(ErrClosed)
	c.h.Close()
	c.stats.close()
	if c.owned {
		c.lib.Close()
	}
}

// SetAgentName changes the agent name reported to the server.
func (c *Client) SetAgentName(name string) error {
	return c.setString("client_set_agent_name", name)
}

// SetAgentVersion changes the agent version reported to the server.
func (c *Client) SetAgentVersion(version string) error {
	return c.setString("client_set_agent_version", version)
}

func (c *Client) setString(fn, value string) error {
	ptr, release, err := c.h.Acquire()
	if err != nil {
		return err
	}
	defer release()
	var a native.Arena
	defer a.Release()
	if _, err := c.lib.Call(fn, ptr, native.Addr(a.CString(value))); err != nil {
		return nativeFailure(fn, err)
	}
	return nil
}

// SetDefaultTimeout sets the timeout the core applies to server commands.
// It is rounded down to whole seconds.
func (c *Client) SetDefaultTimeout(d time.Duration) error {
	ptr, release, err := c.h.Acquire()
	if err != nil {
		return err
	}
	defer release()
	if _, err := c.lib.Call("client_set_default_timeout", ptr, uintptr(uint32(seconds(d)))); err != nil {
		return nativeFailure("client_set_default_timeout", err)
	}
	return nil
}

// DefaultTimeout returns the timeout the core applies to server commands.
func (c *Client) DefaultTimeout() (time.Duration, error) {
	ptr, release, err := c.h.Acquire()
	if err != nil {
		return 0, err
	}
	defer release()
	v, err := c.lib.Call("client_get_default_timeout", ptr)
	if err != nil {
		return 0, nativeFailure("client_get_default_timeout", err)
	}
	return time.Duration(int32(uint32(v))) * time.Second, nil
}

// User is the identity the client is signed in as.
type User struct {
	ID       string
	Name     string
	Username string
	Email    string
	Roles    []string
}

// User returns the signed in user, or nil if nobody signed in.
func (c *Client) User() (*User, error) {
	ptr, release, err := c.h.Acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	raw, err := c.lib.Call("client_user", ptr)
	if err != nil {
		return nil, nativeFailure("client_user", err)
	}
	block := c.h.Block(raw, "free_user")
	defer block.Release()
	if block.IsNil() {
		return nil, nil
	}
	u, err := decodeUser(native.View[native.User](block))
	if err != nil {
		return nil, nativeFailure("client_user", err)
	}
	return u, nil
}

// EnableTracing configures the core's own logging for the whole process.
// filter uses the core's directive syntax, e.g. "openiap=debug"; mode is
// "new", "enter", "exit", "close", "active", "full" or empty.
func (c *Client) EnableTracing(filter, mode string) error {
	return enableTracing(c.lib, filter, mode)
}

// DisableTracing turns the core's logging off for the whole process.
func (c *Client) DisableTracing() error {
	return disableTracing(c.lib)
}

// EnableTracing loads the core from the environment's configuration and
// enables its logging for the whole process.
func EnableTracing(filter, mode string) error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return enableTracing(lib, filter, mode)
}

// DisableTracing loads the core from the environment's configuration and
// disables its logging for the whole process.
func DisableTracing() error {
	lib, err := processLibrary()
	if err != nil {
		return err
	}
	return disableTracing(lib)
}

func processLibrary() (native.Library, error) {
	cfg, err := ConfigFromEnv()
	if err != nil {
		return nil, err
	}
	lib, err := native.Load(cfg.LibraryPath)
	if err != nil {
		return nil, nativeFailure("load", err)
	}
	return lib, nil
}

func enableTracing(lib native.Library, filter, mode string) error {
	var a native.Arena
	defer a.Release()
	if _, err := lib.Call("enable_tracing", native.Addr(a.CString(filter)), native.Addr(a.CString(mode))); err != nil {
		return nativeFailure("enable_tracing", err)
	}
	return nil
}

func disableTracing(lib native.Library) error {
	if _, err := lib.Call("disable_tracing"); err != nil {
		return nativeFailure("disable_tracing", err)
	}
	return nil
}
