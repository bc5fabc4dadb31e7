package orchestrator

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"crosspost/internal/dispatch"
	"crosspost/internal/publish"
	"crosspost/internal/storage"
	logx "crosspost/pkg/logx"
)

type stubTarget struct {
	name      string
	available bool
}

func (s *stubTarget) Name() string           { return s.name }
func (s *stubTarget) Available() bool        { return s.available }
func (s *stubTarget) Limits() publish.Limits { return publish.Limits{} }
func (s *stubTarget) Publish(ctx context.Context, asset publish.Asset, caption string) error {
	return nil
}

// fakeDispatcher records the request and returns a canned result. started is
// closed on entry and release blocks the return, which lets tests observe
// the busy window.
type fakeDispatcher struct {
	mu      sync.Mutex
	reqs    []dispatch.Request
	result  dispatch.Result
	started chan struct{}
	release chan struct{}
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, req dispatch.Request) dispatch.Result {
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.release != nil {
		<-f.release
	}
	return f.result
}

func (f *fakeDispatcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func okResult(names ...string) dispatch.Result {
	outcomes := make(map[string]storage.TargetOutcome, len(names))
	for _, n := range names {
		outcomes[n] = storage.TargetOutcome{Status: storage.OutcomeSuccess}
	}
	return dispatch.Result{Status: storage.StatusCompleted, Outcomes: outcomes}
}

func twoTargetRegistry() *publish.Registry {
	return publish.NewRegistry(logx.Nop(),
		&stubTarget{name: "A", available: true},
		&stubTarget{name: "B", available: true},
	)
}

func tempAsset(t *testing.T) publish.Asset {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asset_test.mp4")
	if err := os.WriteFile(path, []byte("video"), 0o644); err != nil {
		t.Fatal(err)
	}
	return publish.Asset{Path: path, Name: "clip.mp4", Size: 5}
}

func TestBeginNoAvailableTargets(t *testing.T) {
	t.Parallel()
	reg := publish.NewRegistry(logx.Nop(), &stubTarget{name: "A", available: false})
	c := New(reg, &fakeDispatcher{}, nil, logx.Nop())

	_, err := c.Begin(context.Background(), 1, publish.Asset{}, "cap", []string{"A"}, false)
	if !errors.Is(err, ErrNoTargetsAvailable) {
		t.Fatalf("err = %v, want ErrNoTargetsAvailable", err)
	}
}

func TestConfirmWithoutSession(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{}, nil, logx.Nop())

	_, err := c.Confirm(context.Background(), 1)
	if !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestCancelWithoutSessionIsNoOp(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{}, nil, logx.Nop())

	if err := c.Cancel(context.Background(), 1); err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
}

func TestSecondBeginIsBusy(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{}, nil, logx.Nop())
	ctx := context.Background()

	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false); err != nil {
		t.Fatal(err)
	}
	_, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false)
	if !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("err = %v, want ErrSessionBusy", err)
	}
}

func TestBeginIsPerRequester(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{result: okResult("A", "B")}, nil, logx.Nop())
	ctx := context.Background()

	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Begin(ctx, 2, publish.Asset{}, "cap", []string{"A"}, false); err != nil {
		t.Fatalf("second requester blocked: %v", err)
	}
}

func TestConfirmHappyPath(t *testing.T) {
	t.Parallel()
	fd := &fakeDispatcher{result: okResult("A", "B")}
	c := New(twoTargetRegistry(), fd, nil, logx.Nop())
	ctx := context.Background()
	asset := tempAsset(t)

	sess, err := c.Begin(ctx, 7, asset, "my caption", []string{"A", "B"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Targets) != 2 {
		t.Fatalf("session targets = %v, want 2", sess.Targets)
	}

	rec, err := c.Confirm(ctx, 7)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", rec.Status)
	}
	if rec.ID != sess.PostID {
		t.Fatalf("record id = %q, want %q", rec.ID, sess.PostID)
	}
	if fd.calls() != 1 {
		t.Fatalf("dispatch calls = %d, want 1", fd.calls())
	}

	// Session gone and asset released.
	if _, ok := c.ActiveSession(7); ok {
		t.Fatal("session should be gone after confirm")
	}
	if _, err := os.Stat(asset.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("asset should be removed, stat err = %v", err)
	}
}

func TestConfirmPassesSimulatedFlag(t *testing.T) {
	t.Parallel()
	fd := &fakeDispatcher{result: dispatch.Result{
		Status: storage.StatusCompleted,
		Outcomes: map[string]storage.TargetOutcome{
			"A": {Status: storage.OutcomeMockSuccess},
		},
	}}
	c := New(twoTargetRegistry(), fd, nil, logx.Nop())
	ctx := context.Background()

	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, true); err != nil {
		t.Fatal(err)
	}
	rec, err := c.Confirm(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if !rec.Simulated {
		t.Fatal("record should carry the simulated flag")
	}
	fd.mu.Lock()
	req := fd.reqs[0]
	fd.mu.Unlock()
	if !req.Simulated {
		t.Fatal("dispatch request should carry the simulated flag")
	}
}

func TestConcurrentConfirmIsBusy(t *testing.T) {
	t.Parallel()
	fd := &fakeDispatcher{
		result:  okResult("A"),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := New(twoTargetRegistry(), fd, nil, logx.Nop())
	ctx := context.Background()

	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.Confirm(ctx, 1)
		done <- err
	}()
	<-fd.started

	// While the first confirm is mid-dispatch the session is busy for
	// confirm, cancel and a fresh begin alike.
	if _, err := c.Confirm(ctx, 1); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("concurrent confirm err = %v, want ErrSessionBusy", err)
	}
	if err := c.Cancel(ctx, 1); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("concurrent cancel err = %v, want ErrSessionBusy", err)
	}
	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false); !errors.Is(err, ErrSessionBusy) {
		t.Fatalf("concurrent begin err = %v, want ErrSessionBusy", err)
	}

	close(fd.release)
	if err := <-done; err != nil {
		t.Fatalf("first confirm err = %v", err)
	}
}

func TestCancelReleasesSessionAndAsset(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{}, nil, logx.Nop())
	ctx := context.Background()
	asset := tempAsset(t)

	if _, err := c.Begin(ctx, 1, asset, "cap", []string{"A"}, false); err != nil {
		t.Fatal(err)
	}
	if err := c.Cancel(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if _, ok := c.ActiveSession(1); ok {
		t.Fatal("session should be gone after cancel")
	}
	if _, err := os.Stat(asset.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("asset should be removed, stat err = %v", err)
	}

	// The slot is free again.
	if _, err := c.Begin(ctx, 1, publish.Asset{}, "cap", []string{"A"}, false); err != nil {
		t.Fatalf("begin after cancel err = %v", err)
	}
}

func TestBeginFiltersToAvailableTargets(t *testing.T) {
	t.Parallel()
	reg := publish.NewRegistry(logx.Nop(),
		&stubTarget{name: "A", available: true},
		&stubTarget{name: "B", available: false},
	)
	c := New(reg, &fakeDispatcher{}, nil, logx.Nop())

	sess, err := c.Begin(context.Background(), 1, publish.Asset{}, "cap", []string{"A", "B"}, false)
	if err != nil {
		t.Fatal(err)
	}
	if len(sess.Targets) != 1 || sess.Targets[0] != "A" {
		t.Fatalf("session targets = %v, want [A]", sess.Targets)
	}
}

func TestShutdownReleasesAssets(t *testing.T) {
	t.Parallel()
	c := New(twoTargetRegistry(), &fakeDispatcher{}, nil, logx.Nop())
	asset := tempAsset(t)

	if _, err := c.Begin(context.Background(), 1, asset, "cap", []string{"A"}, false); err != nil {
		t.Fatal(err)
	}
	c.Shutdown()

	if _, ok := c.ActiveSession(1); ok {
		t.Fatal("session should be gone after shutdown")
	}
	if _, err := os.Stat(asset.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("asset should be removed, stat err = %v", err)
	}
}
