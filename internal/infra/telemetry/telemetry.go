package telemetry

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chat"

// Register adds collector to reg. When an equal collector is already registered the existing one is
// returned so independent components can share a registry without coordination.
func Register[T prometheus.Collector](reg prometheus.Registerer, collector T) (T, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	if err := reg.Register(collector); err != nil {
		var already prometheus.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return collector, fmt.Errorf("register collector: %w", err)
		}
		existing, ok := already.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("existing collector has unexpected type %T", already.ExistingCollector)
		}
		return existing, nil
	}

	return collector, nil
}

// ModerationMetrics counts administrative actions by outcome.
type ModerationMetrics struct {
	actions *prometheus.CounterVec
}

// NewModerationMetrics registers chat_moderation_actions_total with reg.
func NewModerationMetrics(reg prometheus.Registerer) (*ModerationMetrics, error) {
	actions, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "moderation",
		Name:      "actions_total",
		Help:      "Total number of administrative actions partitioned by action and outcome.",
	}, []string{"action", "outcome"}))
	if err != nil {
		return nil, fmt.Errorf("moderation actions: %w", err)
	}

	return &ModerationMetrics{actions: actions}, nil
}

// RecordAction increments the counter for one attempted action.
func (m *ModerationMetrics) RecordAction(action, outcome string) {
	if m == nil {
		return
	}
	m.actions.WithLabelValues(action, outcome).Inc()
}

// GuardMetrics counts network-abuse guard decisions.
type GuardMetrics struct {
	checks *prometheus.CounterVec
}

// NewGuardMetrics registers chat_guard_checks_total with reg.
func NewGuardMetrics(reg prometheus.Registerer) (*GuardMetrics, error) {
	checks, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "guard",
		Name:      "checks_total",
		Help:      "Total number of guard checks partitioned by check and result.",
	}, []string{"check", "result"}))
	if err != nil {
		return nil, fmt.Errorf("guard checks: %w", err)
	}

	return &GuardMetrics{checks: checks}, nil
}

// RecordCheck increments the counter for one guard decision.
func (m *GuardMetrics) RecordCheck(check, result string) {
	if m == nil {
		return
	}
	m.checks.WithLabelValues(check, result).Inc()
}

// RateLimitMetrics counts sliding-window decisions taken in front of the HTTP handlers.
type RateLimitMetrics struct {
	decisions *prometheus.CounterVec
}

// NewRateLimitMetrics registers chat_rate_limit_decisions_total with reg.
func NewRateLimitMetrics(reg prometheus.Registerer) (*RateLimitMetrics, error) {
	decisions, err := Register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "rate_limit",
		Name:      "decisions_total",
		Help:      "Total number of rate limit decisions partitioned by rule and decision.",
	}, []string{"rule", "decision"}))
	if err != nil {
		return nil, fmt.Errorf("rate limit decisions: %w", err)
	}

	return &RateLimitMetrics{decisions: decisions}, nil
}

// RecordDecision increments the counter for one rule evaluation.
func (m *RateLimitMetrics) RecordDecision(rule, decision string) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(rule, decision).Inc()
}
