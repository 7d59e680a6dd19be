package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/deepuanant/tickrelay/internal/connection"
	"github.com/deepuanant/tickrelay/internal/metrics"
	"github.com/deepuanant/tickrelay/internal/upstream"
)

// Ensurer obtains live connection handles. Satisfied by *connection.Supervisor.
type Ensurer interface {
	Ensure(ctx context.Context, id int, role connection.Role) (upstream.Conn, error)
}

// WorkerConfig holds per-worker tunables.
type WorkerConfig struct {
	ConnID        int
	Role          connection.Role
	Capacity      int           // N: max subscriptions on the connection
	Stride        int           // Queue positions advanced per cycle (default: 300)
	CycleInterval time.Duration // Sleep between cycles (default: 10s)
	CommandGap    time.Duration // Minimum gap between upstream commands (default: 1s)
}

// Worker drives periodic unsubscribe/subscribe cycles over a rotation queue
// on one connection. The permanent set is re-asserted on every subscribe so a
// freshly reopened connection regains its full state.
type Worker struct {
	cfg       WorkerConfig
	sup       Ensurer
	permanent []uint32
	queue     *ring
	lastBatch []uint32
	lastConn  upstream.Conn
	limiter   *rate.Limiter
	logger    *slog.Logger
}

// NewWorker creates a rotation worker. initialBatch is the window the
// scheduler subscribed at startup; the first rotation cycle unsubscribes it.
func NewWorker(cfg WorkerConfig, sup Ensurer, permanent, rotation, initialBatch []uint32, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandGap <= 0 {
		cfg.CommandGap = time.Second
	}
	return &Worker{
		cfg:       cfg,
		sup:       sup,
		permanent: permanent,
		queue:     newRing(rotation),
		lastBatch: initialBatch,
		limiter:   rate.NewLimiter(rate.Every(cfg.CommandGap), 1),
		logger:    logger.With("conn", cfg.ConnID, "role", cfg.Role),
	}
}

// Run loops until the context is cancelled, the supervisor shuts down, or
// reconnection is exhausted. Command errors within a cycle are logged and the
// worker proceeds; liveness is owned by the supervisor's close/error events.
func (w *Worker) Run(ctx context.Context) error {
	for {
		conn, err := w.sup.Ensure(ctx, w.cfg.ConnID, w.cfg.Role)
		if err != nil {
			if errors.Is(err, connection.ErrShuttingDown) || errors.Is(err, context.Canceled) {
				return nil
			}
			w.logger.Error("giving up on connection", "error", err)
			return err
		}

		// A new handle needs its subscription set asserted when it replaces an
		// earlier one, or when the startup subscription did not happen (no
		// seed batch).
		reopened := conn != w.lastConn && (w.lastConn != nil || len(w.lastBatch) == 0)
		w.lastConn = conn

		capacity := w.cfg.Capacity - len(w.permanent)
		if capacity <= 0 || w.queue.len() == 0 {
			if err := w.sleep(ctx); err != nil {
				return nil
			}
			continue
		}

		if w.queue.len() <= capacity {
			// Everything fits in the window; nothing to rotate. A reopened
			// connection still needs its subscription set re-asserted.
			if reopened {
				w.subscribe(conn, w.queue.window(capacity))
			}
			if err := w.sleep(ctx); err != nil {
				return nil
			}
			continue
		}

		if len(w.lastBatch) > 0 {
			if err := w.wait(ctx); err != nil {
				return nil
			}
			if err := conn.Unsubscribe(w.lastBatch); err != nil {
				metrics.CommandErrors.WithLabelValues("unsubscribe").Inc()
				w.logger.Warn("unsubscribe failed", "count", len(w.lastBatch), "error", err)
			}
		}

		w.queue.advance(clampStride(w.cfg.Stride, w.queue.len()))
		batch := w.queue.window(capacity)

		if err := w.wait(ctx); err != nil {
			return nil
		}
		if w.subscribe(conn, batch) {
			w.lastBatch = batch
		}
		metrics.RotationCycles.WithLabelValues(metrics.ConnLabel(w.cfg.ConnID)).Inc()

		if err := w.sleep(ctx); err != nil {
			return nil
		}
	}
}

// subscribe sends permanent ∪ batch in full mode. Returns false on failure.
func (w *Worker) subscribe(conn upstream.Conn, batch []uint32) bool {
	combined := make([]uint32, 0, len(w.permanent)+len(batch))
	combined = append(combined, w.permanent...)
	combined = append(combined, batch...)
	if len(combined) == 0 {
		return true
	}

	if err := conn.Subscribe(combined); err != nil {
		metrics.CommandErrors.WithLabelValues("subscribe").Inc()
		w.logger.Warn("subscribe failed", "count", len(combined), "error", err)
		return false
	}
	if err := conn.SetModeFull(combined); err != nil {
		metrics.CommandErrors.WithLabelValues("set_mode").Inc()
		w.logger.Warn("set mode failed", "count", len(combined), "error", err)
	}
	w.logger.Debug("rotated subscription",
		"permanent", len(w.permanent),
		"batch", len(batch),
	)
	return true
}

func (w *Worker) sleep(ctx context.Context) error {
	select {
	case <-time.After(w.cfg.CycleInterval):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) wait(ctx context.Context) error {
	return w.limiter.Wait(ctx)
}
