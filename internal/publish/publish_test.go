package publish

import (
	"context"
	"errors"
	"strings"
	"testing"

	logx "crosspost/pkg/logx"
)

type stubTarget struct {
	name      string
	available bool
	limits    Limits
	panicAv   bool
}

func (s *stubTarget) Name() string { return s.name }
func (s *stubTarget) Available() bool {
	if s.panicAv {
		panic("credential store offline")
	}
	return s.available
}
func (s *stubTarget) Limits() Limits { return s.limits }
func (s *stubTarget) Publish(ctx context.Context, asset Asset, caption string) error {
	return nil
}

func TestClassify(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		err  error
		want Kind
	}{
		{"auth substring", errors.New("invalid auth header"), KindInvalidCredentials},
		{"token substring", errors.New("expired token"), KindInvalidCredentials},
		{"forbidden substring", errors.New("Forbidden: bot was blocked"), KindInvalidCredentials},
		{"unauthorized substring", errors.New("401 Unauthorized"), KindInvalidCredentials},
		{"quota substring", errors.New("daily quota exceeded"), KindQuotaExceeded},
		{"limit substring", errors.New("rate limit hit"), KindQuotaExceeded},
		{"anything else", errors.New("connection reset by peer"), KindRejected},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify("Twitter", tc.err)
			if got.Kind != tc.want {
				t.Fatalf("Classify(%q).Kind = %q, want %q", tc.err, got.Kind, tc.want)
			}
			if got.Target != "Twitter" {
				t.Fatalf("Target = %q, want Twitter", got.Target)
			}
			if !errors.Is(got, tc.err) {
				t.Fatal("classified error should wrap the cause")
			}
		})
	}
}

func TestClassifyPassesThroughTypedErrors(t *testing.T) {
	t.Parallel()
	orig := PayloadTooLarge("Instagram", 150.2, 100)
	got := Classify("Instagram", orig)
	if got != orig {
		t.Fatalf("Classify rewrote an already-classified error: %v", got)
	}
}

func TestClassifyNil(t *testing.T) {
	t.Parallel()
	if got := Classify("TikTok", nil); got != nil {
		t.Fatalf("Classify(nil) = %v, want nil", got)
	}
}

func TestIsKind(t *testing.T) {
	t.Parallel()
	err := CredentialMissing("LinkedIn")
	if !IsKind(err, KindCredentialMissing) {
		t.Fatal("IsKind should match the error's kind")
	}
	if IsKind(err, KindQuotaExceeded) {
		t.Fatal("IsKind should not match a different kind")
	}
	if IsKind(errors.New("plain"), KindRejected) {
		t.Fatal("IsKind should not match untyped errors")
	}
}

func TestPrecheck(t *testing.T) {
	t.Parallel()
	mb := int64(1024 * 1024)

	t.Run("unavailable target", func(t *testing.T) {
		t.Parallel()
		tg := &stubTarget{name: "A"}
		err := precheck(tg, Asset{Size: mb})
		if !IsKind(err, KindCredentialMissing) {
			t.Fatalf("err = %v, want credential_missing", err)
		}
	})

	t.Run("payload over ceiling", func(t *testing.T) {
		t.Parallel()
		tg := &stubTarget{name: "A", available: true, limits: Limits{MaxPayloadMB: 100}}
		err := precheck(tg, Asset{Size: 101 * mb})
		if !IsKind(err, KindPayloadTooLarge) {
			t.Fatalf("err = %v, want payload_too_large", err)
		}
		if !strings.Contains(err.Error(), "max 100MB") {
			t.Fatalf("detail = %q, want ceiling mention", err.Error())
		}
	})

	t.Run("payload at ceiling passes", func(t *testing.T) {
		t.Parallel()
		tg := &stubTarget{name: "A", available: true, limits: Limits{MaxPayloadMB: 100}}
		if err := precheck(tg, Asset{Size: 100 * mb}); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	})

	t.Run("zero ceiling is unenforced", func(t *testing.T) {
		t.Parallel()
		tg := &stubTarget{name: "A", available: true}
		if err := precheck(tg, Asset{Size: 5000 * mb}); err != nil {
			t.Fatalf("err = %v, want nil", err)
		}
	})
}

func TestClipCaption(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name    string
		caption string
		n       int
		want    string
	}{
		{"under limit", "hello", 10, "hello"},
		{"at limit", "hello", 5, "hello"},
		{"over limit", "hello world", 5, "hello"},
		{"zero limit unenforced", "hello", 0, "hello"},
		{"multibyte runes", "héllö wörld", 5, "héllö"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := clipCaption(tc.caption, tc.n); got != tc.want {
				t.Fatalf("clipCaption(%q, %d) = %q, want %q", tc.caption, tc.n, got, tc.want)
			}
		})
	}
}

func TestRegistryListOrderAndDedup(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(logx.Nop(),
		&stubTarget{name: "B", available: true},
		&stubTarget{name: "A", available: true},
		&stubTarget{name: "B", available: true}, // duplicate name dropped
		nil,
	)

	got := reg.List()
	want := []string{"B", "A"}
	if len(got) != len(want) {
		t.Fatalf("List = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("List = %v, want %v", got, want)
		}
	}
}

func TestRegistryAvailabilitySurvivesPanic(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(logx.Nop(),
		&stubTarget{name: "A", panicAv: true},
		&stubTarget{name: "B", available: true},
	)

	av := reg.Availability()
	if av["A"] {
		t.Fatal("panicking target should report unavailable")
	}
	if !av["B"] {
		t.Fatal("healthy target should report available")
	}
}

func TestRegistryFilter(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(logx.Nop(),
		&stubTarget{name: "A", available: true},
		&stubTarget{name: "B", available: false},
		&stubTarget{name: "C", available: true},
	)

	got := reg.Filter([]string{"C", "A", "C", "B", "Unknown"})
	want := []string{"C", "A"}
	if len(got) != len(want) {
		t.Fatalf("Filter returned %d targets, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i].Name() != want[i] {
			t.Fatalf("Filter[%d] = %q, want %q", i, got[i].Name(), want[i])
		}
	}
}

func TestSimulatedTargetAvailability(t *testing.T) {
	t.Parallel()
	if NewTikTok(TikTokCredentials{}, logx.Nop()).Available() {
		t.Fatal("TikTok without a token should be unavailable")
	}
	if !NewTikTok(TikTokCredentials{AccessToken: "tok"}, logx.Nop()).Available() {
		t.Fatal("TikTok with a token should be available")
	}
	if NewInstagram(InstagramCredentials{AccessToken: "tok"}, logx.Nop()).Available() {
		t.Fatal("Instagram needs the business account id too")
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()
	cases := []struct {
		status int
		want   Kind
	}{
		{401, KindInvalidCredentials},
		{403, KindInvalidCredentials},
		{429, KindQuotaExceeded},
		{400, KindRejected},
		{500, KindRejected},
	}
	for _, tc := range cases {
		got := statusError("Facebook", tc.status, []byte("body"))
		if got.Kind != tc.want {
			t.Fatalf("statusError(%d).Kind = %q, want %q", tc.status, got.Kind, tc.want)
		}
		if !strings.Contains(got.Detail, "HTTP") {
			t.Fatalf("detail = %q, want status mention", got.Detail)
		}
	}
}

func TestTruncateDetail(t *testing.T) {
	t.Parallel()
	long := strings.Repeat("x", 400)
	got := truncateDetail(long, 300)
	if len(got) != 303 {
		t.Fatalf("len = %d, want 303", len(got))
	}
	if truncateDetail("short", 300) != "short" {
		t.Fatal("short strings should pass through")
	}
}

func TestSimulatedPublishRespectsContext(t *testing.T) {
	t.Parallel()
	tg := NewTikTok(TikTokCredentials{AccessToken: "tok"}, logx.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := tg.Publish(ctx, Asset{Name: "v.mp4", Size: 1}, "caption")
	if err == nil {
		t.Fatal("publish with a cancelled context should fail")
	}
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("err = %T, want *Error", err)
	}
}
