package run

import (
	"fmt"
	"strings"
	"time"

	"github.com/gobwas/glob"
)

// Action is the recovery action chosen for a failure.
type Action string

const (
	ActionRetry        Action = "RETRY"
	ActionWaitAndRetry Action = "WAIT_AND_RETRY"
	ActionRestart      Action = "RESTART"
	ActionAskUser      Action = "ASK_USER"
	ActionHeal         Action = "HEAL"
	ActionReplan       Action = "REPLAN"
)

// Error kinds recorded on terminal step results. Every terminal branch of
// the executor sets exactly one of these.
const (
	KindTransient          = "transient"
	KindInfrastructure     = "infrastructure"
	KindLogic              = "logic"
	KindFatal              = "fatal"
	KindMissingInput       = "missing_input"
	KindRecursionExhausted = "recursion_exhausted"
	KindCancelled          = "cancelled"
)

// Strategy is the recovery decision for one failure: an action plus its
// parameters. Strategies are produced fresh per classification and never
// persisted.
type Strategy struct {
	Action     Action
	MaxRetries int
	Backoff    time.Duration
	Reason     string
}

// RouterPatterns configures the failure-text classification patterns. Each
// entry is a glob matched against the lowercased error text; the glob is
// wrapped in "*...*" so plain substrings work as-is.
type RouterPatterns struct {
	Transient      []string `yaml:"transient" json:"transient"`
	Infrastructure []string `yaml:"infrastructure" json:"infrastructure"`
	Fatal          []string `yaml:"fatal" json:"fatal"`
	MissingInput   []string `yaml:"missing_input" json:"missing_input"`
}

// DefaultRouterPatterns returns the built-in classification patterns.
func DefaultRouterPatterns() RouterPatterns {
	return RouterPatterns{
		Transient: []string{
			"timeout", "timed out", "deadline exceeded",
			"connection reset", "connection refused", "broken pipe",
			"temporarily unavailable",
		},
		Infrastructure: []string{
			"rate limit", "too many requests", "429",
			"service unavailable", "upstream", "overloaded", "quota",
			"502", "503", "504",
		},
		Fatal: []string{
			"corrupt", "state corruption", "invariant violated",
			"fatal", "inconsistent state",
		},
		MissingInput: []string{
			"permission denied", "unauthorized", "forbidden",
			"missing required input", "credential", "api key",
		},
	}
}

// Router maps a failure's error text and attempt history to a recovery
// Strategy. Classification is a pure function of its inputs; the router
// holds only compiled patterns, never per-step state. Callers track
// attempt counts and per-step healing history.
type Router struct {
	transient      []glob.Glob
	infrastructure []glob.Glob
	fatal          []glob.Glob
	missingInput   []glob.Glob
}

// NewRouter compiles a router from the given patterns. Empty pattern sets
// fall back to the defaults.
func NewRouter(patterns RouterPatterns) (*Router, error) {
	defaults := DefaultRouterPatterns()
	if len(patterns.Transient) == 0 {
		patterns.Transient = defaults.Transient
	}
	if len(patterns.Infrastructure) == 0 {
		patterns.Infrastructure = defaults.Infrastructure
	}
	if len(patterns.Fatal) == 0 {
		patterns.Fatal = defaults.Fatal
	}
	if len(patterns.MissingInput) == 0 {
		patterns.MissingInput = defaults.MissingInput
	}

	router := &Router{}
	var err error
	if router.transient, err = compilePatterns(patterns.Transient); err != nil {
		return nil, err
	}
	if router.infrastructure, err = compilePatterns(patterns.Infrastructure); err != nil {
		return nil, err
	}
	if router.fatal, err = compilePatterns(patterns.Fatal); err != nil {
		return nil, err
	}
	if router.missingInput, err = compilePatterns(patterns.MissingInput); err != nil {
		return nil, err
	}
	return router, nil
}

func compilePatterns(patterns []string) ([]glob.Glob, error) {
	compiled := make([]glob.Glob, 0, len(patterns))
	for _, pattern := range patterns {
		g, err := glob.Compile("*" + strings.ToLower(pattern) + "*")
		if err != nil {
			return nil, fmt.Errorf("invalid classifier pattern %q: %w", pattern, err)
		}
		compiled = append(compiled, g)
	}
	return compiled, nil
}

func matchAny(globs []glob.Glob, text string) bool {
	for _, g := range globs {
		if g.Match(text) {
			return true
		}
	}
	return false
}

// Decide classifies a failure. First match wins: transient, then
// infrastructure, then fatal, then missing input/permission. Anything else
// routes to self-healing on the first and second heal attempt for a step,
// and escalates to replanning after healing has been tried twice.
// Infrastructure failures are deliberately never routed to self-healing:
// a rate limit is not a logic bug.
func (r *Router) Decide(errorText string, attempt, healAttempts int) Strategy {
	text := strings.ToLower(errorText)

	switch {
	case matchAny(r.transient, text):
		return Strategy{
			Action:     ActionRetry,
			MaxRetries: 3,
			Backoff:    2 * time.Second,
			Reason:     "transient failure, retrying in place",
		}
	case matchAny(r.infrastructure, text):
		return Strategy{
			Action:     ActionWaitAndRetry,
			MaxRetries: 3,
			Backoff:    15 * time.Second,
			Reason:     "infrastructure failure, waiting for upstream to recover",
		}
	case matchAny(r.fatal, text):
		return Strategy{
			Action: ActionRestart,
			Reason: "fatal or state-corrupting failure, restart required",
		}
	case matchAny(r.missingInput, text):
		return Strategy{
			Action: ActionAskUser,
			Reason: "missing permission or required input",
		}
	case healAttempts < 2:
		return Strategy{
			Action: ActionHeal,
			Reason: "unclassified failure, attempting self-healing",
		}
	default:
		return Strategy{
			Action: ActionReplan,
			Reason: "healing already attempted twice, escalating to planner",
		}
	}
}
