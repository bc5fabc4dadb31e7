package publish

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the closed, target-independent failure taxonomy. Every failure an
// adapter reports is tagged with exactly one Kind so callers never have to
// understand platform-specific error shapes.
type Kind string

const (
	KindCredentialMissing  Kind = "credential_missing"
	KindPayloadTooLarge    Kind = "payload_too_large"
	KindRejected           Kind = "rejected"
	KindInvalidCredentials Kind = "invalid_credentials"
	KindQuotaExceeded      Kind = "quota_exceeded"
)

// Error is a classified per-target publish failure.
type Error struct {
	Target string
	Kind   Kind
	Detail string
	cause  error
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Target, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %s", e.Target, e.Kind, e.Detail)
}

func (e *Error) Unwrap() error { return e.cause }

// IsKind reports whether err carries the given taxonomy kind.
func IsKind(err error, k Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}

func CredentialMissing(target string) *Error {
	return &Error{Target: target, Kind: KindCredentialMissing, Detail: "credentials not configured"}
}

func PayloadTooLarge(target string, sizeMB float64, maxMB int) *Error {
	return &Error{
		Target: target,
		Kind:   KindPayloadTooLarge,
		Detail: fmt.Sprintf("file too large: %.1fMB (max %dMB)", sizeMB, maxMB),
	}
}

func Rejected(target, detail string) *Error {
	return &Error{Target: target, Kind: KindRejected, Detail: detail}
}

// Classify maps an opaque upstream failure onto the taxonomy by inspecting
// its message for known substrings. The upstream APIs return unstructured
// errors, so this is best-effort; the heuristic lives behind this one
// function so it can be replaced by structured error codes later.
func Classify(target string, err error) *Error {
	if err == nil {
		return nil
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "token", "auth", "forbidden", "unauthorized"):
		return &Error{Target: target, Kind: KindInvalidCredentials, Detail: err.Error(), cause: err}
	case containsAny(msg, "quota", "limit"):
		return &Error{Target: target, Kind: KindQuotaExceeded, Detail: err.Error(), cause: err}
	default:
		return &Error{Target: target, Kind: KindRejected, Detail: err.Error(), cause: err}
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
