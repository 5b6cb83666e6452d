package router

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/vietddude/foreman/internal/core/domain"
)

// remediationHints maps classified error kinds to operator guidance
// included in failure notifications.
var remediationHints = map[string]string{
	"timeout":      "check downstream latency: `foreman status`, then inspect the worker log under logs/",
	"connection":   "verify broker availability: `redis-cli ping`, then `foreman status`",
	"rate_limited": "provider quota exhausted; lower target_worker_count or wait for the quota window",
	"permission":   "verify credentials and scopes for the worker environment",
	"config":       "fix the configuration before requeueing; this failure cannot succeed on retry",
}

// formatResult builds the per-result notification text.
func formatResult(result *domain.Result, previewLimit int) string {
	var b strings.Builder

	switch result.Status {
	case domain.ResultSuccess:
		fmt.Fprintf(&b, ":white_check_mark: Task %s completed", result.TaskID)
	case domain.ResultNeedInfo:
		fmt.Fprintf(&b, ":question: Task %s needs input", result.TaskID)
	default:
		fmt.Fprintf(&b, ":x: Task %s failed", result.TaskID)
	}
	fmt.Fprintf(&b, " (worker %s)\n", result.WorkerID)

	if v, ok := result.Metrics["duration_ms"]; ok {
		fmt.Fprintf(&b, "duration: %vms", v)
	}
	if v, ok := result.Metrics["attempts"]; ok {
		fmt.Fprintf(&b, ", attempts: %v", v)
	}
	if v, ok := result.Metrics["files_touched"]; ok {
		fmt.Fprintf(&b, ", files touched: %v", v)
	}
	if v, ok := result.Metrics["output_bytes"]; ok {
		fmt.Fprintf(&b, ", output bytes: %v", v)
	}
	b.WriteString("\n")

	if result.Status == domain.ResultFailure {
		if kind, ok := result.Metrics["error_kind"].(string); ok {
			fmt.Fprintf(&b, "error kind: %s\n", kind)
			if hint, ok := remediationHints[kind]; ok {
				fmt.Fprintf(&b, "suggested remediation: %s\n", hint)
			}
		}
	}

	if result.Content != "" {
		b.WriteString("```\n")
		b.WriteString(truncate(result.Content, previewLimit))
		b.WriteString("\n```")
	}

	return b.String()
}

// formatSummary builds the periodic aggregate report.
func formatSummary(stats Stats) string {
	return fmt.Sprintf(
		":bar_chart: Task summary: %d tasks, %.1f%% success, avg duration %dms",
		stats.Count,
		stats.SuccessRate()*100,
		stats.AvgDurationMillis(),
	)
}

func truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	// Back up to a rune boundary so the cut never splits a multi-byte
	// character.
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "… (truncated)"
}
