package social

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// Kind classifies a platform failure. Call sites branch on Kind only; HTTP
// status codes never leave this package.
type Kind string

const (
	KindRateLimited Kind = "rate_limited"
	KindForbidden   Kind = "forbidden"
	KindOther       Kind = "other"
)

// Error is the tagged result of a failed platform call.
type Error struct {
	Kind       Kind
	Op         string
	StatusCode int
	Detail     string

	// ResetAt is when the endpoint's short rate-limit window resets.
	ResetAt *time.Time
	// DailyRemaining and DailyResetAt describe the 24h write quota, when the
	// platform reports it.
	DailyRemaining *int
	DailyResetAt   *time.Time

	Err error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// DailyQuotaExhausted reports whether the error carries a 24h quota signal with
// nothing left.
func (e *Error) DailyQuotaExhausted() bool {
	return e.Kind == KindRateLimited && e.DailyRemaining != nil && *e.DailyRemaining <= 0
}

// RetryAt is the earliest time a call of the same kind may succeed again:
// the daily reset when the daily quota is gone, otherwise the window reset.
func (e *Error) RetryAt() *time.Time {
	if e.DailyQuotaExhausted() && e.DailyResetAt != nil {
		return e.DailyResetAt
	}
	if e.ResetAt != nil {
		return e.ResetAt
	}
	return e.DailyResetAt
}

// AsError extracts a *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// KindOf returns the taxonomy kind of err; anything untagged is KindOther.
func KindOf(err error) Kind {
	if se, ok := AsError(err); ok {
		return se.Kind
	}
	return KindOther
}

func IsRateLimited(err error) bool {
	return err != nil && KindOf(err) == KindRateLimited
}

func IsForbidden(err error) bool {
	return err != nil && KindOf(err) == KindForbidden
}

// Translate turns an HTTP response into nil (2xx) or a tagged *Error. It is the
// only place that inspects status codes and rate-limit headers.
func Translate(op string, resp *http.Response, body []byte) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	e := &Error{
		Op:         op,
		StatusCode: resp.StatusCode,
		Detail:     problemDetail(body),
	}

	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		e.Kind = KindRateLimited
	case http.StatusForbidden, http.StatusUnauthorized:
		e.Kind = KindForbidden
	default:
		e.Kind = KindOther
	}

	h := resp.Header
	e.ResetAt = unixHeader(h, "x-rate-limit-reset")

	remaining, reset := intHeader(h, "x-user-limit-24hour-remaining"), unixHeader(h, "x-user-limit-24hour-reset")
	if remaining == nil {
		remaining, reset = intHeader(h, "x-app-limit-24hour-remaining"), unixHeader(h, "x-app-limit-24hour-reset")
	}
	if remaining != nil && *remaining < 0 {
		zero := 0
		remaining = &zero
	}
	e.DailyRemaining = remaining
	e.DailyResetAt = reset

	return e
}

// Transport wraps a failure that produced no HTTP response at all.
func Transport(op string, err error) error {
	return &Error{Kind: KindOther, Op: op, Err: err}
}

type problem struct {
	Title  string `json:"title"`
	Detail string `json:"detail"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func problemDetail(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	var p problem
	if err := json.Unmarshal(body, &p); err != nil {
		return ""
	}
	switch {
	case p.Detail != "":
		return p.Detail
	case p.Title != "":
		return p.Title
	case len(p.Errors) > 0:
		return p.Errors[0].Message
	}
	return ""
}

func intHeader(h http.Header, key string) *int {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &i
}

func unixHeader(h http.Header, key string) *time.Time {
	v := h.Get(key)
	if v == "" {
		return nil
	}
	secs, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil
	}
	t := time.Unix(secs, 0).UTC()
	return &t
}
