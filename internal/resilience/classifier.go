package resilience

import (
	"context"
	"errors"
	"net"
	"os"
	"strings"
	"time"
)

// ErrorKind classifies an execution error and drives retry policy
// selection.
type ErrorKind string

const (
	KindTimeout     ErrorKind = "timeout"
	KindConnection  ErrorKind = "connection"
	KindRateLimited ErrorKind = "rate_limited"
	KindPermission  ErrorKind = "permission"
	KindConfig      ErrorKind = "config"
	KindUnknown     ErrorKind = "unknown"
)

// Rule maps an error shape to a kind and retry policy. Rules are
// evaluated in order; the first match wins.
type Rule struct {
	Kind      ErrorKind
	Retryable bool
	Strategy  Strategy
	Match     func(error) bool
}

// Classifier inspects execution errors against an ordered rule table.
// Pure and deterministic: the same error shape always yields the same
// classification.
type Classifier struct {
	rules []Rule
}

// NewClassifier builds a classifier with the default rule table.
// Custom rules take precedence over the built-in ones.
func NewClassifier(custom ...Rule) *Classifier {
	rules := make([]Rule, 0, len(custom)+5)
	rules = append(rules, custom...)
	rules = append(rules,
		Rule{
			Kind:      KindPermission,
			Retryable: false,
			Match:     matchPermission,
		},
		Rule{
			Kind:      KindConfig,
			Retryable: false,
			Match: matchSubstrings(
				"cannot find module", "cannot find package", "import error",
				"undefined symbol", "invalid config", "missing config",
			),
		},
		Rule{
			Kind:      KindRateLimited,
			Retryable: true,
			Strategy: Strategy{
				MaxAttempts:     4,
				InitialDelay:    10 * time.Second,
				MaxDelay:        5 * time.Minute,
				BackoffMultiple: 2.0,
				Jitter:          true,
			},
			Match: matchSubstrings("429", "rate limit", "too many requests", "quota"),
		},
		Rule{
			Kind:      KindTimeout,
			Retryable: true,
			Strategy: Strategy{
				MaxAttempts:     3,
				InitialDelay:    1 * time.Second,
				MaxDelay:        30 * time.Second,
				BackoffMultiple: 2.0,
				Jitter:          true,
			},
			Match: matchTimeout,
		},
		Rule{
			Kind:      KindConnection,
			Retryable: true,
			Strategy: Strategy{
				MaxAttempts:     5,
				InitialDelay:    1 * time.Second,
				MaxDelay:        60 * time.Second,
				BackoffMultiple: 2.0,
				Jitter:          true,
			},
			Match: matchConnection,
		},
	)
	return &Classifier{rules: rules}
}

// Classify maps an error to its kind, retryability, and retry strategy.
// Unmatched errors fall through to KindUnknown with the conservative
// default strategy.
func (c *Classifier) Classify(err error) (ErrorKind, bool, Strategy) {
	if err == nil {
		return KindUnknown, false, Strategy{MaxAttempts: 1}
	}
	for _, r := range c.rules {
		if r.Match(err) {
			return r.Kind, r.Retryable, r.Strategy
		}
	}
	return KindUnknown, true, DefaultStrategy
}

func matchSubstrings(subs ...string) func(error) bool {
	return func(err error) bool {
		msg := strings.ToLower(err.Error())
		for _, s := range subs {
			if strings.Contains(msg, s) {
				return true
			}
		}
		return false
	}
}

func matchPermission(err error) bool {
	if errors.Is(err, os.ErrPermission) {
		return true
	}
	return matchSubstrings("permission denied", "unauthorized", "forbidden", "403")(err)
}

func matchTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return matchSubstrings("timeout", "timed out", "deadline exceeded")(err)
}

func matchConnection(err error) bool {
	var operr *net.OpError
	if errors.As(err, &operr) {
		return true
	}
	return matchSubstrings(
		"connection refused", "connection reset", "connection error",
		"broken pipe", "no such host", "unexpected eof", "eof",
	)(err)
}
