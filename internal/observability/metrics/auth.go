// Package metrics emits the standardised metrics for auth and profile flows.
package metrics

import (
	"time"

	"github.com/fintrack/fintrack-api/internal/observability/statsd"
)

// Profile resolution outcomes.
const (
	ResolutionRemote   = "remote"
	ResolutionFallback = "fallback"
	ResolutionCreated  = "created"
)

// ProfileResolution describes one resolve or lookup call.
type ProfileResolution struct {
	// Tier is "client" for the resolver and "server" for the users table lookup.
	Tier     string
	Result   string
	Failure  string
	Duration time.Duration
}

// EmitProfileResolution records the outcome and latency of a profile resolution.
func EmitProfileResolution(sink statsd.Sink, in ProfileResolution) {
	if sink == nil {
		return
	}
	tags := map[string]string{"tier": in.Tier, "result": in.Result}
	if in.Failure != "" {
		tags["failure"] = in.Failure
	}
	sink.Count("auth.profile_resolution", 1, tags)
	if in.Duration > 0 {
		sink.Timing("auth.profile_resolution.duration", in.Duration, CloneTags(tags))
	}
}

// EmitRateLimitDecision records an allow/deny decision for a named limiter.
func EmitRateLimitDecision(sink statsd.Sink, limiter string, allowed bool) {
	if sink == nil {
		return
	}
	result := "allowed"
	if !allowed {
		result = "denied"
	}
	sink.Count("ratelimit.decision", 1, map[string]string{"limiter": limiter, "result": result})
}

// EmitAuthEvent counts sign-in, sign-up, sign-out and refresh attempts.
func EmitAuthEvent(sink statsd.Sink, action, result string) {
	if sink == nil {
		return
	}
	sink.Count("auth.event", 1, map[string]string{"action": action, "result": result})
}

// Outcomes of an auth state event offered to the synchronization machine.
const (
	SyncAccepted  = "accepted"
	SyncDebounced = "debounced"
	SyncDropped   = "dropped"
	SyncIgnored   = "ignored"
)

// EmitSyncEvent counts auth state events by kind and outcome.
func EmitSyncEvent(sink statsd.Sink, kind, outcome string) {
	if sink == nil {
		return
	}
	sink.Count("authsync.event", 1, map[string]string{"kind": kind, "outcome": outcome})
}

// CloneTags creates a shallow copy of a tag map.
func CloneTags(src map[string]string) map[string]string {
	if len(src) == 0 {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
