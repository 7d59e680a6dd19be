package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepuanant/tickrelay/internal/metrics"
	"github.com/deepuanant/tickrelay/internal/model"
	"github.com/deepuanant/tickrelay/internal/upstream"
)

// Role describes what a connection is used for. Informational only.
type Role string

const (
	RolePriority Role = "priority"
	RoleRotation Role = "rotation"
)

// Errors returned by Ensure.
var (
	// ErrShuttingDown is returned once Shutdown has been called.
	ErrShuttingDown = errors.New("connection: shutting down")

	// ErrConnectFailed is returned after retry exhaustion.
	ErrConnectFailed = errors.New("connection: connect failed")
)

// TickSink receives tick batches from a live connection.
type TickSink func(connID int, ticks []model.Tick)

// Config holds supervisor settings.
type Config struct {
	MaxRetries int           // Dial attempts per Ensure (default: 3)
	RetryDelay time.Duration // Fixed delay between attempts (default: 2s)
}

// DefaultConfig returns the standard retry settings.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
	}
}

// Supervisor creates, tracks, and lazily reconnects upstream connections.
type Supervisor struct {
	cfg    Config
	dialer upstream.Dialer
	sink   TickSink
	logger *slog.Logger

	mu       sync.Mutex
	handles  map[int]*handle
	gens     map[int]uint64
	deadGens map[int]uint64
	dialMu   map[int]*sync.Mutex
	shutdown chan struct{}
	closed   bool
}

// handle pairs a live connection with its generation. The generation guards
// against a stale connection's close event evicting its replacement.
type handle struct {
	conn upstream.Conn
	gen  uint64
}

// NewSupervisor creates a Supervisor. The sink receives every tick batch.
func NewSupervisor(cfg Config, dialer upstream.Dialer, sink TickSink, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultConfig().RetryDelay
	}
	return &Supervisor{
		cfg:      cfg,
		dialer:   dialer,
		sink:     sink,
		logger:   logger,
		handles:  make(map[int]*handle),
		gens:     make(map[int]uint64),
		deadGens: make(map[int]uint64),
		dialMu:   make(map[int]*sync.Mutex),
		shutdown: make(chan struct{}),
	}
}

// Ensure returns a live handle for the given id, dialing one if absent.
// Dialing retries up to MaxRetries with a fixed delay; an auth rejection
// aborts immediately. Returns ErrShuttingDown promptly after Shutdown.
//
// Concurrent Ensure calls for the same id are serialized; distinct ids dial
// independently.
func (s *Supervisor) Ensure(ctx context.Context, id int, role Role) (upstream.Conn, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}

	lock := s.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	if h, ok := s.handles[id]; ok {
		s.mu.Unlock()
		return h.conn, nil
	}
	s.mu.Unlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		if err := s.check(ctx); err != nil {
			return nil, err
		}

		conn, err := s.dial(ctx, id, role)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		metrics.Dials.WithLabelValues("error").Inc()

		if errors.Is(err, upstream.ErrAuth) {
			s.logger.Error("upstream rejected credentials",
				"conn", id,
				"role", role,
				"error", err,
			)
			return nil, err
		}

		s.logger.Warn("upstream dial failed",
			"conn", id,
			"role", role,
			"attempt", attempt,
			"error", err,
		)

		if attempt < s.cfg.MaxRetries {
			select {
			case <-time.After(s.cfg.RetryDelay):
			case <-s.shutdown:
				return nil, ErrShuttingDown
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
	}

	return nil, fmt.Errorf("%w: conn %d after %d attempts: %s",
		ErrConnectFailed, id, s.cfg.MaxRetries, lastErr)
}

// dial performs one connect attempt and registers the handle on success.
func (s *Supervisor) dial(ctx context.Context, id int, role Role) (upstream.Conn, error) {
	s.mu.Lock()
	s.gens[id]++
	gen := s.gens[id]
	s.mu.Unlock()

	events := upstream.Events{
		OnTicks: func(ticks []model.Tick) {
			s.sink(id, ticks)
		},
		OnClose: func(code int, reason string) {
			s.logger.Warn("upstream closed",
				"conn", id,
				"code", code,
				"reason", reason,
			)
			s.drop(id, gen)
		},
		OnError: func(err error) {
			s.logger.Warn("upstream error", "conn", id, "error", err)
			s.drop(id, gen)
		},
	}

	conn, err := s.dialer.Dial(ctx, events)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close()
		return nil, ErrShuttingDown
	}
	if dead, ok := s.deadGens[id]; ok && dead >= gen {
		// The connection died before we could register it.
		delete(s.deadGens, id)
		s.mu.Unlock()
		conn.Close()
		return nil, fmt.Errorf("%w: connection %d closed during dial", upstream.ErrNetwork, id)
	}
	s.handles[id] = &handle{conn: conn, gen: gen}
	s.mu.Unlock()

	metrics.Dials.WithLabelValues("ok").Inc()
	metrics.ConnectedUpstreams.Inc()
	s.logger.Info("upstream connected", "conn", id, "role", role, "generation", gen)
	return conn, nil
}

// drop removes the handle for id if it still belongs to the given generation.
func (s *Supervisor) drop(id int, gen uint64) {
	s.mu.Lock()
	h, ok := s.handles[id]
	if !ok || h.gen != gen {
		if !ok && s.gens[id] == gen {
			// Died mid-dial; let the registration path clean up.
			if s.deadGens[id] < gen {
				s.deadGens[id] = gen
			}
		}
		s.mu.Unlock()
		return
	}
	delete(s.handles, id)
	s.mu.Unlock()

	metrics.ConnectedUpstreams.Dec()
	h.conn.Close()
}

// Live reports whether id currently has a tracked handle.
func (s *Supervisor) Live(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.handles[id]
	return ok
}

// Shutdown raises the process-wide stop signal and closes all handles.
// Subsequent Ensure calls return ErrShuttingDown.
func (s *Supervisor) Shutdown() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.shutdown)
	handles := make([]*handle, 0, len(s.handles))
	for id, h := range s.handles {
		handles = append(handles, h)
		delete(s.handles, id)
	}
	s.mu.Unlock()

	for _, h := range handles {
		metrics.ConnectedUpstreams.Dec()
		h.conn.Close()
	}
	s.logger.Info("connection supervisor stopped")
}

// Done exposes the shutdown signal for callers that select on it.
func (s *Supervisor) Done() <-chan struct{} {
	return s.shutdown
}

func (s *Supervisor) check(ctx context.Context) error {
	select {
	case <-s.shutdown:
		return ErrShuttingDown
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

func (s *Supervisor) idLock(id int) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.dialMu[id]
	if !ok {
		lock = &sync.Mutex{}
		s.dialMu[id] = lock
	}
	return lock
}
