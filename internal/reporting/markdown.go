package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders the report as a Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Range Segment Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: %d to %d (ms)\n\n", r.WindowStartMs, r.WindowEndMs))

	// Summary
	sb.WriteString("## Summary\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Signal Records | %d |\n", r.Summary.TotalRecords))
	sb.WriteString(fmt.Sprintf("| Segments | %d |\n", r.Summary.TotalSegments))
	sb.WriteString(fmt.Sprintf("| Closed Segments | %d |\n", r.Summary.ClosedSegments))
	sb.WriteString(fmt.Sprintf("| Resets Up | %d |\n", r.Summary.ResetUpCount))
	sb.WriteString(fmt.Sprintf("| Resets Down | %d |\n", r.Summary.ResetDownCount))
	sb.WriteString(fmt.Sprintf("| Mean Segment Duration (ms) | %.0f |\n", r.Summary.MeanSegmentMs))
	sb.WriteString(fmt.Sprintf("| Max Segment Duration (ms) | %d |\n", r.Summary.MaxSegmentMs))
	sb.WriteString(fmt.Sprintf("| Actions | %d |\n", r.Summary.TotalActions))
	sb.WriteString(fmt.Sprintf("| Dry-Run Actions | %d |\n", r.Summary.DryRunActions))
	sb.WriteString(fmt.Sprintf("| Sessions | %d |\n", r.Summary.SessionCount))
	sb.WriteString("\n")

	// Range Segments
	sb.WriteString("## Range Segments\n\n")
	if len(r.Segments) > 0 {
		sb.WriteString("| Start | End | Lower | Upper | Records | Reset | Duration (ms) |\n")
		sb.WriteString("|-------|-----|-------|-------|---------|-------|---------------|\n")
		for _, s := range r.Segments {
			end := fmt.Sprintf("%d", s.EndMs)
			if s.EndMs == 0 {
				end = "open"
			}
			sb.WriteString(fmt.Sprintf("| %d | %s | %.6f | %.6f | %d | %s | %d |\n",
				s.StartMs, end, s.Lower, s.Upper, s.RecordCount, s.Reset, s.DurationMs))
		}
	} else {
		sb.WriteString("No segments in window.\n")
	}
	sb.WriteString("\n")

	// Actions
	sb.WriteString("## Actions\n\n")
	if len(r.Actions) > 0 {
		sb.WriteString("| Executed | Session | Action | Size | Price | Signal | Dry Run |\n")
		sb.WriteString("|----------|---------|--------|------|-------|--------|---------|\n")
		for _, a := range r.Actions {
			sb.WriteString(fmt.Sprintf("| %d | %s | %s | %.6f | %.6f | %d | %t |\n",
				a.ExecutedAtMs, a.SessionID, a.Action, a.Size, a.Price, a.SignalTimeMs, a.DryRun))
		}
	} else {
		sb.WriteString("No actions in window.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
