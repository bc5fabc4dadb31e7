package dispatch

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"crosspost/internal/publish"
	"crosspost/internal/storage"
	logx "crosspost/pkg/logx"
)

// fakeTarget fails the first failN Publish calls, then succeeds.
type fakeTarget struct {
	name  string
	failN int
	err   error
	calls atomic.Int32
	panic bool
}

func (f *fakeTarget) Name() string           { return f.name }
func (f *fakeTarget) Available() bool        { return true }
func (f *fakeTarget) Limits() publish.Limits { return publish.Limits{} }

func (f *fakeTarget) Publish(ctx context.Context, asset publish.Asset, caption string) error {
	n := f.calls.Add(1)
	if f.panic {
		panic("boom")
	}
	if int(n) <= f.failN {
		if f.err != nil {
			return f.err
		}
		return errors.New("transient failure")
	}
	return nil
}

func testEngine() *Engine {
	return New(Config{MaxAttempts: 3, RetryBase: time.Millisecond, SimulatedDelay: time.Millisecond}, logx.Nop())
}

func TestDispatchAllSucceed(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A"}
	b := &fakeTarget{name: "B"}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A", "B"},
		Targets: []publish.Target{a, b},
	})

	if res.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want %q", res.Status, storage.StatusCompleted)
	}
	for _, name := range []string{"A", "B"} {
		if got := res.Outcomes[name].Status; got != storage.OutcomeSuccess {
			t.Fatalf("outcome[%s] = %q, want success", name, got)
		}
	}
}

func TestDispatchAllFail(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", failN: 99}
	b := &fakeTarget{name: "B", failN: 99}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A", "B"},
		Targets: []publish.Target{a, b},
	})

	if res.Status != storage.StatusFailed {
		t.Fatalf("status = %q, want %q", res.Status, storage.StatusFailed)
	}
	if res.Outcomes["A"].Detail == "" {
		t.Fatal("failed outcome should carry a detail")
	}
}

func TestDispatchMixedIsPartial(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A"}
	b := &fakeTarget{name: "B", failN: 99}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A", "B"},
		Targets: []publish.Target{a, b},
	})

	if res.Status != storage.StatusPartial {
		t.Fatalf("status = %q, want %q", res.Status, storage.StatusPartial)
	}
	if got := res.Outcomes["A"].Status; got != storage.OutcomeSuccess {
		t.Fatalf("outcome[A] = %q, want success", got)
	}
	if got := res.Outcomes["B"].Status; got != storage.OutcomeFailed {
		t.Fatalf("outcome[B] = %q, want failed", got)
	}
}

func TestDispatchEmptyTargetSet(t *testing.T) {
	t.Parallel()
	res := testEngine().Dispatch(context.Background(), Request{})
	if res.Status != storage.StatusFailed {
		t.Fatalf("status = %q, want %q", res.Status, storage.StatusFailed)
	}
	if len(res.Outcomes) != 0 {
		t.Fatalf("outcomes = %v, want empty", res.Outcomes)
	}
}

func TestRetryStopsAfterFirstSuccess(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", failN: 1}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A"},
		Targets: []publish.Target{a},
	})

	if res.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	if got := a.calls.Load(); got != 2 {
		t.Fatalf("publish calls = %d, want 2", got)
	}
}

func TestRetryExhaustsAtAttemptCeiling(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", failN: 99}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A"},
		Targets: []publish.Target{a},
	})

	if res.Status != storage.StatusFailed {
		t.Fatalf("status = %q, want failed", res.Status)
	}
	if got := a.calls.Load(); got != 3 {
		t.Fatalf("publish calls = %d, want 3", got)
	}
}

func TestFailedOutcomeDetailIsClassified(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", failN: 99, err: errors.New("401 unauthorized")}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A"},
		Targets: []publish.Target{a},
	})

	detail := res.Outcomes["A"].Detail
	if !strings.Contains(detail, string(publish.KindInvalidCredentials)) {
		t.Fatalf("detail = %q, want invalid_credentials classification", detail)
	}
}

func TestPanickingTargetBecomesFailedOutcome(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", panic: true}
	b := &fakeTarget{name: "B"}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:   []string{"A", "B"},
		Targets: []publish.Target{a, b},
	})

	if res.Status != storage.StatusPartial {
		t.Fatalf("status = %q, want partial", res.Status)
	}
	if !strings.Contains(res.Outcomes["A"].Detail, "panic") {
		t.Fatalf("detail = %q, want panic mention", res.Outcomes["A"].Detail)
	}
}

func TestSimulatedDispatchNeverCallsTargets(t *testing.T) {
	t.Parallel()
	a := &fakeTarget{name: "A", failN: 99}

	res := testEngine().Dispatch(context.Background(), Request{
		Names:     []string{"A", "B"},
		Targets:   []publish.Target{a},
		Simulated: true,
	})

	if got := a.calls.Load(); got != 0 {
		t.Fatalf("publish calls = %d, want 0 in simulated mode", got)
	}
	if res.Status != storage.StatusCompleted {
		t.Fatalf("status = %q, want completed", res.Status)
	}
	for _, name := range []string{"A", "B"} {
		if got := res.Outcomes[name].Status; got != storage.OutcomeMockSuccess {
			t.Fatalf("outcome[%s] = %q, want mock_success", name, got)
		}
	}
}

func TestAggregate(t *testing.T) {
	t.Parallel()
	ok := storage.TargetOutcome{Status: storage.OutcomeSuccess}
	mock := storage.TargetOutcome{Status: storage.OutcomeMockSuccess}
	bad := storage.TargetOutcome{Status: storage.OutcomeFailed}

	cases := []struct {
		name     string
		outcomes map[string]storage.TargetOutcome
		want     storage.Status
	}{
		{"empty", map[string]storage.TargetOutcome{}, storage.StatusFailed},
		{"all ok", map[string]storage.TargetOutcome{"a": ok, "b": ok}, storage.StatusCompleted},
		{"mock counts as ok", map[string]storage.TargetOutcome{"a": mock}, storage.StatusCompleted},
		{"all failed", map[string]storage.TargetOutcome{"a": bad, "b": bad}, storage.StatusFailed},
		{"mixed", map[string]storage.TargetOutcome{"a": ok, "b": bad}, storage.StatusPartial},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Aggregate(tc.outcomes); got != tc.want {
				t.Fatalf("Aggregate = %q, want %q", got, tc.want)
			}
		})
	}
}
