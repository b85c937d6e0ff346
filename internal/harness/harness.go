package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/roach88/cartsync/internal/cart"
	"github.com/roach88/cartsync/internal/cartapi"
	"github.com/roach88/cartsync/internal/engine"
	"github.com/roach88/cartsync/internal/identity"
	"github.com/roach88/cartsync/internal/remote"
	"github.com/roach88/cartsync/internal/snapshot"
	"github.com/roach88/cartsync/internal/store"
	"github.com/roach88/cartsync/internal/testutil"
)

// SettleTimeout bounds each wait for in-flight remote calls.
const SettleTimeout = 5 * time.Second

// Harness executes one scenario.
type Harness struct {
	svc    *remote.Scripted
	kv     *store.Memory
	snap   *snapshot.Adapter
	ctrl   *engine.Controller
	clock  *testutil.DeterministicClock
	logger *slog.Logger

	paused map[remote.Op]bool
	users  map[string]bool

	mu     sync.Mutex
	result *Result
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes controller logs. Default: discarded.
func WithLogger(l *slog.Logger) Option {
	return func(h *Harness) {
		if l != nil {
			h.logger = l
		}
	}
}

// Run executes a scenario and returns its result. An error means the
// scenario could not be executed; failed expectations are reported in the
// result.
//
// Each run gets a fresh remote service and snapshot store.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext is Run with a caller context.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	kv := store.NewMemory()
	clock := testutil.NewDeterministicClock()
	h := &Harness{
		svc:    remote.NewScripted(nil),
		kv:     kv,
		snap:   snapshot.New(kv, snapshot.WithNow(clock.Now)),
		clock:  clock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		paused: make(map[remote.Op]bool),
		users:  make(map[string]bool),
		result: NewResult(),
	}
	for _, opt := range opts {
		opt(h)
	}

	if err := h.setup(ctx, scenario.Initial); err != nil {
		return nil, fmt.Errorf("failed to execute setup: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.ctrl = engine.New(h.svc, h.snap,
		engine.WithLogger(h.logger),
		engine.WithIdentity(identity.User(scenario.Initial.User)),
		engine.WithNow(clock.Now),
		engine.WithOpIDs(testutil.NewSequentialOpIDs("op")),
		engine.WithItemSerialization(scenario.SerializeItems),
		engine.WithObserver(h.recordDispatch),
		engine.WithNotifier(engine.NotifierFunc(h.recordNotice)),
	)
	go h.ctrl.Run(runCtx)
	defer func() {
		cancel()
		<-h.ctrl.Done()
	}()

	if err := h.settle(ctx); err != nil {
		return nil, fmt.Errorf("initial load: %w", err)
	}
	if err := h.executeSteps(ctx, scenario.Steps); err != nil {
		return nil, fmt.Errorf("failed to execute steps: %w", err)
	}
	if err := h.collect(ctx); err != nil {
		return nil, err
	}

	result := h.snapshotResult()
	if scenario.Expect != nil {
		for _, msg := range CheckExpect(result, *scenario.Expect) {
			result.AddError(msg)
		}
	}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, in Initial) error {
	if len(in.Snapshot) > 0 {
		h.snap.Write(ctx, cart.Reduce(cart.Empty(), cart.LoadRecords(in.Snapshot...)))
	}
	// Seed in user order so that remote line ids are stable.
	users := make([]string, 0, len(in.Remote))
	for user := range in.Remote {
		users = append(users, user)
	}
	sort.Strings(users)
	for _, user := range users {
		h.users[user] = true
		if err := h.svc.Seed(ctx, user, in.Remote[user]...); err != nil {
			return err
		}
	}
	if in.User != "" {
		h.users[in.User] = true
	}
	return nil
}

func (h *Harness) executeSteps(ctx context.Context, steps []Step) error {
	for i, step := range steps {
		if err := h.execute(ctx, step); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
		if err := h.settle(ctx); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	// Release anything left paused so the run can finish.
	for op := range h.paused {
		h.svc.Resume(op)
		delete(h.paused, op)
	}
	return h.settle(ctx)
}

func (h *Harness) execute(ctx context.Context, s Step) error {
	switch {
	case s.SignIn != "":
		h.users[s.SignIn] = true
		return h.ctrl.SetIdentity(ctx, identity.User(s.SignIn))
	case s.SignOut:
		return h.ctrl.SetIdentity(ctx, identity.Anonymous)
	case s.Add != nil:
		return h.ctrl.AddToCart(ctx, s.Add.Item, s.Add.Quantity)
	case s.Update != nil:
		return h.ctrl.UpdateQuantity(ctx, s.Update.ID, s.Update.Quantity)
	case s.Remove != "":
		return h.ctrl.RemoveFromCart(ctx, s.Remove)
	case s.Clear:
		return h.ctrl.ClearCart(ctx)
	case s.Sync:
		return h.ctrl.SyncCartWithServer(ctx)
	case s.Fail != nil:
		h.fail(*s.Fail)
	case s.Recover != "":
		h.svc.Recover(remote.Op(s.Recover))
	case s.Pause != "":
		h.svc.Pause(remote.Op(s.Pause))
		h.paused[remote.Op(s.Pause)] = true
	case s.Resume != "":
		h.svc.Resume(remote.Op(s.Resume))
		delete(h.paused, remote.Op(s.Resume))
	case s.Flush:
		// Settled after every step anyway.
	default:
		return errors.New("empty step")
	}
	return nil
}

func (h *Harness) fail(f FailStep) {
	op := remote.Op(f.Op)
	var err error
	if f.Status != 0 || f.Message != "" {
		status := f.Status
		if status == 0 {
			status = http.StatusServiceUnavailable
		}
		msg := f.Message
		if msg == "" {
			msg = http.StatusText(status)
		}
		err = &remote.Error{Op: op, Status: status, Message: msg}
	}
	if f.Always {
		h.svc.FailAlways(op, err)
		return
	}
	for range max(f.Times, 1) {
		h.svc.FailNext(op, err)
	}
}

// settle waits for in-flight remote calls unless an operation is paused.
func (h *Harness) settle(ctx context.Context) error {
	if len(h.paused) > 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, SettleTimeout)
	defer cancel()
	if err := h.ctrl.Flush(ctx); err != nil {
		return fmt.Errorf("settle: %w", err)
	}
	return nil
}

func (h *Harness) collect(ctx context.Context) error {
	users := make([]string, 0, len(h.users))
	for user := range h.users {
		users = append(users, user)
	}
	slices.Sort(users)

	remoteCarts := make(map[string][]cartapi.Line, len(users))
	for _, user := range users {
		lines, err := h.svc.Lines(ctx, user)
		if err != nil {
			return fmt.Errorf("read remote cart %s: %w", user, err)
		}
		remoteCarts[user] = lines
	}

	_, present, err := h.snap.Load(ctx)
	if err != nil {
		// A corrupt snapshot is reported as absent, as the controller
		// would treat it.
		present = false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Calls = h.svc.Calls()
	h.result.State = h.ctrl.State()
	h.result.Phase = h.ctrl.Phase()
	h.result.SnapshotPresent = present
	h.result.Snapshot = h.snap.Read(ctx)
	for user, lines := range remoteCarts {
		h.result.Remote[user] = lines
	}
	return nil
}

func (h *Harness) snapshotResult() *Result {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

func (h *Harness) recordDispatch(d engine.Dispatch) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, dispatchEvent(h.clock.Next(), d))
}

func (h *Harness) recordNotice(n engine.Notice) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Trace = append(h.result.Trace, noticeEvent(h.clock.Next(), n))
}
