package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/deepuanant/tickrelay/internal/connection"
	"github.com/deepuanant/tickrelay/internal/model"
	"github.com/deepuanant/tickrelay/internal/upstream"
)

// Config holds the scheduler tunables.
type Config struct {
	SymbolsPerConnection int           // N: broker cap per connection (default: 3000)
	Stride               int           // Rotation stride (default: 300)
	CycleInterval        time.Duration // Rotation cycle interval (default: 10s)
	CommandGap           time.Duration // Gap between upstream commands (default: 1s)
}

// DefaultConfig returns the broker-constraint defaults.
func DefaultConfig() Config {
	return Config{
		SymbolsPerConnection: 3000,
		Stride:               300,
		CycleInterval:        10 * time.Second,
		CommandGap:           time.Second,
	}
}

// Scheduler computes the subscription plan, brings up the connections with
// their initial subscription sets, and runs the rotation workers.
type Scheduler struct {
	cfg    Config
	sup    Ensurer
	logger *slog.Logger
}

// New creates a Scheduler.
func New(cfg Config, sup Ensurer, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{cfg: cfg, sup: sup, logger: logger}
}

// Run plans, subscribes, and rotates until ctx is cancelled. An empty catalog
// opens no connections and returns immediately. An authentication rejection
// on initial connect is returned to the caller (startup abort); network
// failures disable the affected connection only.
func (s *Scheduler) Run(ctx context.Context, catalog []model.Instrument) error {
	n := s.cfg.SymbolsPerConnection
	plan := BuildPlan(catalog, n)

	s.logger.Info("subscription plan computed",
		"catalog", len(catalog),
		"priority", len(plan.Priority),
		"leftover", len(plan.Leftover),
		"rotation_2", len(plan.Rotation2),
		"rotation_3", len(plan.Rotation3),
	)

	if plan.Empty() {
		s.logger.Warn("nothing to subscribe, scheduler idle")
		return nil
	}

	type conn struct {
		id        int
		role      connection.Role
		permanent []uint32
		rotation  []uint32
	}
	conns := []conn{
		{id: 1, role: connection.RolePriority, permanent: plan.Priority, rotation: plan.Leftover},
		{id: 2, role: connection.RoleRotation, rotation: plan.Rotation2},
		{id: 3, role: connection.RoleRotation, rotation: plan.Rotation3},
	}

	var wg sync.WaitGroup
	for _, c := range conns {
		if len(c.permanent) == 0 && len(c.rotation) == 0 {
			continue
		}

		initial, err := s.bringUp(ctx, c.id, c.role, c.permanent, c.rotation)
		if err != nil {
			if errors.Is(err, upstream.ErrAuth) {
				return fmt.Errorf("initial connect %d: %w", c.id, err)
			}
			if errors.Is(err, connection.ErrShuttingDown) || errors.Is(err, context.Canceled) {
				return nil
			}
			// Bounded retry already exhausted; leave this connection to the
			// worker's next Ensure, which gives up for good if it fails too.
			// A connection without a rotation queue has no worker and stays
			// down.
			s.logger.Error("initial connect failed", "conn", c.id, "error", err)
		}

		if len(c.rotation) == 0 {
			continue
		}
		w := NewWorker(WorkerConfig{
			ConnID:        c.id,
			Role:          c.role,
			Capacity:      n,
			Stride:        s.cfg.Stride,
			CycleInterval: s.cfg.CycleInterval,
			CommandGap:    s.cfg.CommandGap,
		}, s.sup, c.permanent, c.rotation, initial, s.logger)

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.Run(ctx); err != nil {
				s.logger.Error("rotation worker exited", "error", err)
			}
		}()
	}

	wg.Wait()
	<-ctx.Done()
	return nil
}

// bringUp ensures a connection and subscribes its initial set: the permanent
// tokens plus the first window of the rotation queue. Returns the rotation
// window so the worker can seed its last-batch state.
func (s *Scheduler) bringUp(ctx context.Context, id int, role connection.Role, permanent, rotation []uint32) ([]uint32, error) {
	c, err := s.sup.Ensure(ctx, id, role)
	if err != nil {
		return nil, err
	}

	capacity := s.cfg.SymbolsPerConnection - len(permanent)
	window := rotation
	if len(window) > capacity {
		window = window[:capacity]
	}

	combined := make([]uint32, 0, len(permanent)+len(window))
	combined = append(combined, permanent...)
	combined = append(combined, window...)
	if len(combined) == 0 {
		return nil, nil
	}

	if err := c.Subscribe(combined); err != nil {
		s.logger.Warn("initial subscribe failed", "conn", id, "count", len(combined), "error", err)
		return nil, nil
	}
	if err := c.SetModeFull(combined); err != nil {
		s.logger.Warn("initial set mode failed", "conn", id, "error", err)
	}

	s.logger.Info("initial subscription",
		"conn", id,
		"role", role,
		"permanent", len(permanent),
		"window", len(window),
	)
	return window, nil
}
