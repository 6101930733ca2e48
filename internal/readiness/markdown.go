package readiness

import (
	"fmt"
	"strings"
)

// RenderMarkdown renders Result as Markdown string.
func RenderMarkdown(result *Result) string {
	var sb strings.Builder

	sb.WriteString("# Readiness Report\n\n")
	sb.WriteString(fmt.Sprintf("## Status: %s\n\n", result.Status))

	sb.WriteString("| # | Criterion | Threshold | Actual | Pass |\n")
	sb.WriteString("|---|-----------|-----------|--------|------|\n")
	for i, c := range result.Criteria {
		passStr := "PASS"
		if !c.Pass {
			passStr = "FAIL"
		}
		sb.WriteString(fmt.Sprintf("| %d | %s | %s | %s | %s |\n",
			i+1, c.Name, c.Threshold, c.Actual, passStr))
	}
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("Criteria: %d/%d passed\n\n", result.Passed, result.Total))

	sb.WriteString("## Summary\n\n")
	if result.Status == StatusReady {
		sb.WriteString("All criteria passed.\n")
		return sb.String()
	}
	sb.WriteString("Failing criteria:\n")
	for _, c := range result.Criteria {
		if !c.Pass {
			sb.WriteString(fmt.Sprintf("- %s (actual: %s, required: %s)\n", c.Name, c.Actual, c.Threshold))
		}
	}
	return sb.String()
}
