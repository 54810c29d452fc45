package core

import (
	"crypto/tls"
	"net"
	"sync"
	"time"

	"github.com/yourusername/bsrvcore/internal/httpwire"
	"github.com/yourusername/bsrvcore/internal/sockopt"
	"github.com/yourusername/bsrvcore/internal/tlsutil"
	"github.com/yourusername/bsrvcore/internal/workerpool"
)

// LogLevel is the severity of a logged message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Logger is the external sink for server log output. The default is
// NopLogger; the server never requires a concrete sink.
type Logger interface {
	Log(level LogLevel, msg string, fields ...any)
}

// NopLogger discards everything logged to it.
type NopLogger struct{}

// Log implements Logger.
func (NopLogger) Log(LogLevel, string, ...any) {}

// Config holds Server construction parameters. Zero-value fields fall back
// to the documented defaults in DefaultConfig.
type Config struct {
	HeaderReadExpiry       time.Duration
	KeepAliveTimeout       time.Duration
	DefaultSessionTimeout  time.Duration
	SessionCleanerEnabled  bool
	SessionCleanerInterval time.Duration
	Logger                 Logger
	TLSConfig              *tls.Config
}

// DefaultConfig returns the documented default configuration.
func DefaultConfig() Config {
	return Config{
		HeaderReadExpiry:       10 * time.Second,
		KeepAliveTimeout:       30 * time.Second,
		DefaultSessionTimeout:  30 * time.Minute,
		SessionCleanerEnabled:  true,
		SessionCleanerInterval: time.Minute,
		Logger:                 NopLogger{},
	}
}

// Server owns the accept loop(s), the executor pool, the RouteTable, the
// SessionMap, a server-wide Context, and the logger. Configuration mutators
// are fluent (return the Server for chaining) and become no-ops once
// running is true.
type Server struct {
	mu      sync.RWMutex
	running bool

	listeners []net.Listener

	routes    *RouteTable
	sessions  *SessionMap
	ctx       *Context
	pool      *workerpool.Pool
	logger    Logger
	tlsConfig *tls.Config
	metrics   *Metrics

	headerReadExpiry       time.Duration
	keepAliveTimeout       time.Duration
	defaultSessionTimeout  time.Duration
	sessionCleanerEnabled  bool
	sessionCleanerInterval time.Duration
}

// NewServer constructs a Server from cfg, installing the documented JSON
// fallback as the default handler.
func NewServer(cfg Config) *Server {
	if cfg.HeaderReadExpiry <= 0 {
		cfg.HeaderReadExpiry = DefaultConfig().HeaderReadExpiry
	}
	if cfg.KeepAliveTimeout <= 0 {
		cfg.KeepAliveTimeout = DefaultConfig().KeepAliveTimeout
	}
	if cfg.DefaultSessionTimeout <= 0 {
		cfg.DefaultSessionTimeout = DefaultConfig().DefaultSessionTimeout
	}
	if cfg.SessionCleanerInterval <= 0 {
		cfg.SessionCleanerInterval = DefaultConfig().SessionCleanerInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = NopLogger{}
	}

	s := &Server{
		routes:                 NewRouteTable(),
		sessions:               NewSessionMap(cfg.DefaultSessionTimeout),
		ctx:                    NewContext(),
		pool:                   workerpool.New(),
		logger:                 cfg.Logger,
		tlsConfig:              cfg.TLSConfig,
		headerReadExpiry:       cfg.HeaderReadExpiry,
		keepAliveTimeout:       cfg.KeepAliveTimeout,
		defaultSessionTimeout:  cfg.DefaultSessionTimeout,
		sessionCleanerEnabled:  cfg.SessionCleanerEnabled,
		sessionCleanerInterval: cfg.SessionCleanerInterval,
	}
	s.routes.SetDefaultHandler(defaultFallbackHandler)
	s.routes.SetDefaultLimits(Limits{
		MaxBody:     httpwire.DefaultLimits.MaxBody,
		ReadExpiry:  cfg.HeaderReadExpiry,
		WriteExpiry: cfg.HeaderReadExpiry,
	})
	return s
}

// defaultFallbackHandler emits the fixed JSON body for unmatched routes
// with keep-alive disabled, per the configured default-handler semantics.
func defaultFallbackHandler(t *Task) error {
	t.SetStatus(404)
	t.SetHeader(httpwire.HeaderContentType, "application/json")
	t.SetBody(defaultFallbackBody)
	t.SetKeepAlive(false)
	return nil
}

// IsRunning reports whether Start has completed and Stop has not yet run.
// Permitted at all times.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Context returns the server-wide Context. Permitted at all times.
func (s *Server) Context() *Context { return s.ctx }

// Sessions returns the server's SessionMap. Permitted at all times.
func (s *Server) Sessions() *SessionMap { return s.sessions }

// Metrics returns the server's metric set and its Prometheus registry,
// lazily creating and
// registering it on first call. Metrics are purely ambient observability;
// no spec behavior depends on whether this is ever called.
func (s *Server) Metrics() *Metrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.metrics == nil {
		s.metrics = newMetrics()
		s.metrics.bindSessions(s.sessions)
	}
	return s.metrics
}

// GetKeepAliveTimeout returns the configured keep-alive idle timeout.
// Permitted at all times.
func (s *Server) GetKeepAliveTimeout() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.keepAliveTimeout
}

func (s *Server) logError(where string, err error) {
	s.logger.Log(LevelWarn, where+": "+err.Error())
}

// Log forwards to the configured Logger, which may be a no-op by default.
func (s *Server) Log(level LogLevel, msg string, fields ...any) {
	s.logger.Log(level, msg, fields...)
}

// configLocked runs fn under the exclusive configuration lock only if the
// server is not yet running; it is a silent no-op (fluent chain preserved)
// once running is true, matching ConfigurationAfterStart semantics.
func (s *Server) configLocked(fn func()) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return s
	}
	fn()
	return s
}

// Route registers h at target for method. A thin pass-through to the
// RouteTable, gated by the same configuration-lockout rule as other
// mutators.
func (s *Server) Route(method httpwire.Method, target string, h Handler, aspects ...Aspect) *Server {
	return s.configLocked(func() {
		s.routes.AddRoute(method, target, h, aspects...)
	})
}

// RouteWithLimits registers h at target with per-route limit overrides.
func (s *Server) RouteWithLimits(method httpwire.Method, target string, h Handler, limits Limits, aspects ...Aspect) *Server {
	return s.configLocked(func() {
		s.routes.AddRouteWithLimits(method, target, h, limits, aspects...)
	})
}

// ExclusiveRoute registers h at target as an exclusive (prefix-terminating)
// route.
func (s *Server) ExclusiveRoute(method httpwire.Method, target string, h Handler, aspects ...Aspect) *Server {
	return s.configLocked(func() {
		s.routes.AddExclusiveRoute(method, target, h, aspects...)
	})
}

// GlobalAspect registers an aspect that wraps every request on every
// method.
func (s *Server) GlobalAspect(a Aspect) *Server {
	return s.configLocked(func() { s.routes.AddGlobalAspect(a) })
}

// MethodAspect registers an aspect that wraps every request for method.
func (s *Server) MethodAspect(method httpwire.Method, a Aspect) *Server {
	return s.configLocked(func() { s.routes.AddMethodAspect(method, a) })
}

// DefaultHandler overrides the handler used for unmatched routes.
func (s *Server) DefaultHandler(h Handler) *Server {
	return s.configLocked(func() { s.routes.SetDefaultHandler(h) })
}

// DevTLS installs a throwaway self-signed certificate for hosts, for local
// development only. Production deployments should build a *tls.Config
// themselves (e.g. via tlsutil.AutocertConfig) and set it through Config.
func (s *Server) DevTLS(hosts ...string) *Server {
	return s.configLocked(func() {
		cert, err := tlsutil.SelfSigned(hosts...)
		if err != nil {
			s.logError("devtls", err)
			return
		}
		s.tlsConfig = tlsutil.Config(cert)
	})
}

// TLSConfig installs an externally constructed TLS configuration, treating
// TLS context provisioning as the external collaborator the core server
// expects it to be.
func (s *Server) TLSConfig(cfg *tls.Config) *Server {
	return s.configLocked(func() { s.tlsConfig = cfg })
}

// Listen adds a TCP listener address the server will accept on at Start.
func (s *Server) Listen(addr string) *Server {
	return s.configLocked(func() {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.logError("listen", err)
			return
		}
		sockopt.Tune(ln)
		s.listeners = append(s.listeners, ln)
	})
}

// Start refuses if threadCount is 0 or the server is already running.
// Otherwise it transitions to running, begins an accept loop per listener,
// and spawns threadCount workers driving the executor pool.
func (s *Server) Start(threadCount int) bool {
	s.mu.Lock()
	if threadCount == 0 || s.running {
		s.mu.Unlock()
		return false
	}
	s.running = true
	listeners := s.listeners
	s.mu.Unlock()

	s.pool.Start(threadCount)
	if s.sessionCleanerEnabled {
		s.sessions.EnableCleaner(s.sessionCleanerInterval, s.IsRunning)
	}

	for _, ln := range listeners {
		go s.acceptLoop(ln)
	}
	return true
}

func (s *Server) acceptLoop(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if !s.IsRunning() {
				return
			}
			s.logError("accept", err)
			continue
		}
		isTLS := false
		if s.tlsConfig != nil {
			conn = tls.Server(conn, s.tlsConfig)
			isTLS = true
		}
		if s.metrics != nil {
			s.metrics.connectionsActive.Inc()
		}
		c := NewConnection(conn, s, isTLS)
		c.Run()
	}
}

// Stop closes every listener, disables the session cleaner, and stops the
// executor pool (waiting for in-flight work; queued work that has not
// started is not run), then re-opens acceptors at the saved endpoints so a
// subsequent Start serves the same addresses again.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	addrs := make([]string, 0, len(listeners))
	for _, ln := range listeners {
		addrs = append(addrs, ln.Addr().String())
		ln.Close()
	}
	s.sessions.DisableCleaner()
	s.pool.Stop()

	fresh := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			s.logError("relisten", err)
			continue
		}
		sockopt.Tune(ln)
		fresh = append(fresh, ln)
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fresh...)
	s.mu.Unlock()
}

// Post runs fn on the executor pool if the server is running.
func (s *Server) Post(fn func()) { s.pool.Post(fn) }

// SetTimer runs fn on the executor pool after d elapses.
func (s *Server) SetTimer(d time.Duration, fn func()) { s.pool.Schedule(d, fn) }
