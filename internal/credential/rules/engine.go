// Package rules evaluates a template's issuance rules against the resolved
// claim context and decides whether a credential may be issued.
package rules

import (
	"fmt"
	"log/slog"
	"sort"

	"attestia/internal/credential/expr"
	"attestia/internal/credential/models"
)

// Decision is the engine's verdict for one issuance request.
type Decision struct {
	Allowed bool
	// RejectedBy names the rule that blocked issuance, when Allowed is false
	// and a rule fired.
	RejectedBy string
	// RejectReason is the rule-supplied rejection message, when Allowed is
	// false. Falls back to naming the rule when the rule carries no message.
	RejectReason string
	// Warnings collects messages from issue-with-warning rules, in rule order.
	Warnings []string
	// Quality starts at 1.0 and is degraded once per warning rule.
	Quality float64
}

// DefaultOutcome is applied when no rule's condition matches.
type DefaultOutcome string

const (
	DefaultApprove DefaultOutcome = "approve"
	DefaultReject  DefaultOutcome = "reject"
)

const defaultWarningPenalty = 0.9

// Engine runs issuance rules in priority order. Rules with equal priority
// keep their declared order.
type Engine struct {
	onNoMatch      DefaultOutcome
	warningPenalty float64
	log            *slog.Logger
}

type Option func(*Engine)

// WithWarningPenalty overrides the quality multiplier applied per warning rule.
func WithWarningPenalty(p float64) Option {
	return func(e *Engine) {
		if p > 0 && p <= 1 {
			e.warningPenalty = p
		}
	}
}

func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// NewEngine builds an engine with an explicit no-match outcome. The outcome
// is a deliberate configuration choice, not a silent default.
func NewEngine(onNoMatch DefaultOutcome, opts ...Option) *Engine {
	e := &Engine{
		onNoMatch:      onNoMatch,
		warningPenalty: defaultWarningPenalty,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs the template's rules against ctx.
//
// Rules are evaluated in ascending priority, stable within equal priorities.
// A fired reject rule stops evaluation immediately; a fired issue rule stops
// evaluation and allows issuance. issue-with-warning rules accumulate and
// evaluation continues. If no rule fires the configured no-match outcome
// applies; accumulated warnings are kept either way.
func (e *Engine) Evaluate(rules []models.IssuanceRule, ctx map[string]any) Decision {
	ordered := make([]models.IssuanceRule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})

	decision := Decision{Quality: 1.0}
	for _, rule := range ordered {
		fired, err := expr.EvalBool(rule.Condition, ctx)
		if err != nil {
			// Conditions are parse-checked at registration; an error here
			// means the context produced something unexpected. Treat the
			// rule as not fired.
			e.log.Warn("rule condition evaluation failed",
				slog.String("rule", rule.Name), slog.Any("error", err))
			continue
		}
		if !fired {
			continue
		}

		switch rule.Action {
		case models.ActionReject:
			decision.Allowed = false
			decision.RejectedBy = rule.Name
			decision.RejectReason = rejectReason(rule)
			return decision
		case models.ActionIssue:
			decision.Allowed = true
			return decision
		case models.ActionIssueWithWarning:
			decision.Warnings = append(decision.Warnings, warningMessage(rule))
			decision.Quality *= e.warningPenalty
		}
	}

	decision.Allowed = e.onNoMatch == DefaultApprove
	if !decision.Allowed {
		decision.RejectedBy = "default-on-no-match"
		decision.RejectReason = "no issuance rule matched and the default outcome is reject"
	}
	return decision
}

func rejectReason(rule models.IssuanceRule) string {
	if msg, ok := rule.Params["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("issuance rejected by rule %q", rule.Name)
}

func warningMessage(rule models.IssuanceRule) string {
	if msg, ok := rule.Params["message"].(string); ok && msg != "" {
		return msg
	}
	return fmt.Sprintf("rule %q matched with warning", rule.Name)
}
