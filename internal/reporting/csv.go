package reporting

import (
	"fmt"
	"strings"
)

// RenderSegmentsCSV renders segment rows as a CSV string.
func RenderSegmentsCSV(segments []SegmentRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("start_ms,end_ms,lower,upper,record_count,reset,duration_ms\n")

	// Rows
	for _, s := range segments {
		sb.WriteString(fmt.Sprintf("%d,%d,%.6f,%.6f,%d,%s,%d\n",
			s.StartMs,
			s.EndMs,
			s.Lower,
			s.Upper,
			s.RecordCount,
			s.Reset,
			s.DurationMs,
		))
	}

	return sb.String()
}

// RenderActionsCSV renders action rows as a CSV string.
func RenderActionsCSV(actions []ActionRow) string {
	var sb strings.Builder

	// Header
	sb.WriteString("executed_at_ms,session_id,action,size,price,signal_time_ms,dry_run\n")

	// Rows
	for _, a := range actions {
		sb.WriteString(fmt.Sprintf("%d,%s,%s,%.6f,%.6f,%d,%t\n",
			a.ExecutedAtMs,
			a.SessionID,
			a.Action,
			a.Size,
			a.Price,
			a.SignalTimeMs,
			a.DryRun,
		))
	}

	return sb.String()
}
