package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/deepuanant/tickrelay/internal/connection"
	"github.com/deepuanant/tickrelay/internal/upstream"
)

// command records one upstream call on a fake connection.
type command struct {
	op     string // "subscribe", "unsubscribe", "set_mode"
	tokens []uint32
}

// fakeConn records commands issued against it.
type fakeConn struct {
	mu   sync.Mutex
	cmds []command
}

func (c *fakeConn) record(op string, tokens []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]uint32, len(tokens))
	copy(cp, tokens)
	c.cmds = append(c.cmds, command{op: op, tokens: cp})
}

func (c *fakeConn) Subscribe(tokens []uint32) error   { c.record("subscribe", tokens); return nil }
func (c *fakeConn) Unsubscribe(tokens []uint32) error { c.record("unsubscribe", tokens); return nil }
func (c *fakeConn) SetModeFull(tokens []uint32) error { c.record("set_mode", tokens); return nil }
func (c *fakeConn) Close()                            {}

func (c *fakeConn) commands() []command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]command, len(c.cmds))
	copy(out, c.cmds)
	return out
}

// commandsOf filters the recorded commands by op.
func (c *fakeConn) commandsOf(op string) []command {
	var out []command
	for _, cmd := range c.commands() {
		if cmd.op == op {
			out = append(out, cmd)
		}
	}
	return out
}

// fakeEnsurer hands out connections in sequence; the last one repeats.
type fakeEnsurer struct {
	mu    sync.Mutex
	conns []upstream.Conn
	calls int
	err   error
}

func (e *fakeEnsurer) Ensure(ctx context.Context, id int, role connection.Role) (upstream.Conn, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	i := e.calls - 1
	if i >= len(e.conns) {
		i = len(e.conns) - 1
	}
	return e.conns[i], nil
}

func testWorkerConfig(capacity, stride int) WorkerConfig {
	return WorkerConfig{
		ConnID:        1,
		Role:          connection.RoleRotation,
		Capacity:      capacity,
		Stride:        stride,
		CycleInterval: time.Millisecond,
		CommandGap:    time.Microsecond,
	}
}

// waitFor polls until cond returns true or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func runWorker(t *testing.T, w *Worker) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Error("worker did not stop")
		}
	})
	return cancel
}

func TestWorker_RotationCycle(t *testing.T) {
	// Two priority tokens and five rotation tokens against a 4-slot
	// connection: the first cycle must unsubscribe the initial window
	// {11,12} and subscribe {1,2} plus the next window {13,14}.
	conn := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{conn}}

	w := NewWorker(testWorkerConfig(4, 2), ensurer,
		[]uint32{1, 2},
		[]uint32{11, 12, 13, 14, 15},
		[]uint32{11, 12},
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool { return len(conn.commandsOf("subscribe")) >= 1 })
	cancel()

	unsubs := conn.commandsOf("unsubscribe")
	if len(unsubs) == 0 {
		t.Fatal("expected an unsubscribe of the initial window")
	}
	assertTokens(t, "unsubscribe", unsubs[0].tokens, []uint32{11, 12})

	subs := conn.commandsOf("subscribe")
	assertTokens(t, "subscribe", subs[0].tokens, []uint32{1, 2, 13, 14})

	modes := conn.commandsOf("set_mode")
	if len(modes) == 0 {
		t.Fatal("expected full mode to be requested")
	}
	assertTokens(t, "set_mode", modes[0].tokens, []uint32{1, 2, 13, 14})
}

func TestWorker_StrideWindows(t *testing.T) {
	// Ten rotation tokens, window 4, stride 3: the successive windows are
	// {4..7}, {7..10}, {10,1,2,3}, covering every token within ceil(10/3)
	// cycles of the initial window {1..4}.
	conn := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{conn}}

	w := NewWorker(testWorkerConfig(4, 3), ensurer,
		nil,
		seqTokens(10),
		[]uint32{1, 2, 3, 4},
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool { return len(conn.commandsOf("subscribe")) >= 3 })
	cancel()

	subs := conn.commandsOf("subscribe")
	assertTokens(t, "cycle 1", subs[0].tokens, []uint32{4, 5, 6, 7})
	assertTokens(t, "cycle 2", subs[1].tokens, []uint32{7, 8, 9, 10})
	assertTokens(t, "cycle 3", subs[2].tokens, []uint32{10, 1, 2, 3})

	seen := map[uint32]bool{1: true, 2: true, 3: true, 4: true}
	for _, sub := range subs[:3] {
		for _, token := range sub.tokens {
			seen[token] = true
		}
	}
	if len(seen) != 10 {
		t.Errorf("covered %d tokens, want 10", len(seen))
	}
}

func TestWorker_BatchNeverExceedsCapacity(t *testing.T) {
	conn := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{conn}}

	permanent := []uint32{100, 101}
	w := NewWorker(testWorkerConfig(5, 2), ensurer,
		permanent,
		seqTokens(9),
		[]uint32{1, 2, 3},
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool { return len(conn.commandsOf("subscribe")) >= 4 })
	cancel()

	for _, sub := range conn.commandsOf("subscribe") {
		if len(sub.tokens) > 5 {
			t.Errorf("subscription of %d tokens exceeds capacity 5", len(sub.tokens))
		}
	}
}

func TestWorker_NoRotationWhenQueueFits(t *testing.T) {
	// Queue length equals the window: nothing to rotate, no commands issued.
	conn := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{conn}}

	w := NewWorker(testWorkerConfig(4, 2), ensurer,
		nil,
		seqTokens(4),
		seqTokens(4),
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool {
		ensurer.mu.Lock()
		defer ensurer.mu.Unlock()
		return ensurer.calls >= 3
	})
	cancel()

	if cmds := conn.commands(); len(cmds) != 0 {
		t.Errorf("expected no commands, got %v", cmds)
	}
}

func TestWorker_NoCapacity(t *testing.T) {
	// Permanent set fills the connection: the worker just sleeps.
	conn := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{conn}}

	w := NewWorker(testWorkerConfig(3, 2), ensurer,
		seqTokens(3),
		[]uint32{50, 51},
		nil,
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool {
		ensurer.mu.Lock()
		defer ensurer.mu.Unlock()
		return ensurer.calls >= 3
	})
	cancel()

	if cmds := conn.commands(); len(cmds) != 0 {
		t.Errorf("expected no commands, got %v", cmds)
	}
}

func TestWorker_ReconnectResubscribes(t *testing.T) {
	// After the supervisor hands out a fresh connection, the worker keeps
	// its queue position and re-asserts permanent tokens with the next batch.
	first := &fakeConn{}
	second := &fakeConn{}
	ensurer := &fakeEnsurer{conns: []upstream.Conn{first, second}}

	w := NewWorker(testWorkerConfig(4, 2), ensurer,
		[]uint32{1, 2},
		[]uint32{11, 12, 13, 14, 15},
		[]uint32{11, 12},
		nil,
	)
	cancel := runWorker(t, w)

	waitFor(t, func() bool { return len(second.commandsOf("subscribe")) >= 1 })
	cancel()

	// First cycle on the first connection: window advanced by 2.
	assertTokens(t, "first conn subscribe",
		first.commandsOf("subscribe")[0].tokens, []uint32{1, 2, 13, 14})

	// Second cycle lands on the replacement connection and continues from
	// the advanced position instead of restarting the queue.
	assertTokens(t, "second conn subscribe",
		second.commandsOf("subscribe")[0].tokens, []uint32{1, 2, 15, 11})
}

func TestWorker_StopsOnShutdown(t *testing.T) {
	ensurer := &fakeEnsurer{err: connection.ErrShuttingDown}

	w := NewWorker(testWorkerConfig(4, 2), ensurer, nil, seqTokens(8), nil, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v, want nil on shutdown", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit on shutdown")
	}
}

func TestWorker_GivesUpWhenConnectExhausted(t *testing.T) {
	ensurer := &fakeEnsurer{err: connection.ErrConnectFailed}

	w := NewWorker(testWorkerConfig(4, 2), ensurer, nil, seqTokens(8), nil, nil)

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background()) }()

	select {
	case err := <-done:
		if err == nil {
			t.Error("Run should surface the connect failure")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not give up")
	}
}
