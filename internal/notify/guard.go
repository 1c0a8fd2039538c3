package notify

import (
	"context"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

// OnError names the value a store read falls back to when it fails.
type OnError string

const (
	// ReturnZero treats the read as empty: no records, zero counts, zero streak.
	ReturnZero OnError = "return_zero"
	// ReturnDisabled treats missing preferences as all switches off.
	ReturnDisabled OnError = "return_disabled"
	// AssumeNotSent treats a failed dedup lookup as "not yet sent".
	// A possible duplicate is preferred over a silently dropped notification.
	AssumeNotSent OnError = "assume_not_sent"
)

// Policy pairs an OnError name with the fallback value it stands for.
type Policy[T any] struct {
	OnError  OnError
	Fallback T
}

// Zero is the ReturnZero policy for any T.
func Zero[T any]() Policy[T] {
	var zero T
	return Policy[T]{OnError: ReturnZero, Fallback: zero}
}

var (
	// PreferencesPolicy resolves failed preference reads to nil, which means disabled.
	PreferencesPolicy = Policy[*Preferences]{OnError: ReturnDisabled}
	// AlreadySentPolicy resolves failed dedup lookups to false.
	AlreadySentPolicy = Policy[bool]{OnError: AssumeNotSent, Fallback: false}
)

var storeFallbackCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "practice_engine",
	Subsystem: "notify",
	Name:      "store_fallbacks_total",
	Help:      "Store reads that failed and resolved to their declared fallback.",
}, []string{"op", "policy"})

func init() {
	prometheus.MustRegister(storeFallbackCounter)
}

// Guard runs read and, on error, logs it and returns the policy fallback.
func Guard[T any](ctx context.Context, logger *slog.Logger, op string, policy Policy[T], read func(context.Context) (T, error)) T {
	value, err := read(ctx)
	if err == nil {
		return value
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "store read failed, using fallback",
		"op", op, "policy", string(policy.OnError), "error", err)
	storeFallbackCounter.WithLabelValues(op, string(policy.OnError)).Inc()
	return policy.Fallback
}
