package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/lodeworks/sluice/metrics"
	"github.com/lodeworks/sluice/types"
)

// SessionReport is the structured JSON report written by --report.
type SessionReport struct {
	SessionID  string  `json:"session_id"`
	RequestID  string  `json:"request_id,omitempty"`
	Outcome    Outcome `json:"outcome"`
	Message    string  `json:"message"`
	ExitCode   int     `json:"exit_code"`
	DurationMs int64   `json:"duration_ms"`
	EventCount int64   `json:"event_count"`

	Components      []ComponentSummary `json:"components"`
	MissingCritical []string           `json:"missing_critical,omitempty"`

	Delivery *ReportDelivery   `json:"delivery"`
	Metrics  *metrics.Snapshot `json:"metrics"`
}

// ComponentSummary is the per-component view in the report.
type ComponentSummary struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Position         string   `json:"position"`
	SizeBytes        int      `json:"size_bytes"`
	Complete         bool     `json:"complete"`
	Streaming        bool     `json:"streaming"`
	Critical         bool     `json:"critical"`
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

// ReportDelivery holds policy stats in the report.
type ReportDelivery struct {
	Policy          string `json:"policy"`
	EventsReceived  int64  `json:"events_received"`
	EventsDelivered int64  `json:"events_delivered"`
	EventsDropped   int64  `json:"events_dropped"`
	Flushes         int64  `json:"flushes"`
	Errors          int64  `json:"errors"`
}

// BuildSessionReport composes a report from a session result.
// policyName is the configured policy ("strict", "streaming", "noop");
// exitCode is the process exit code that will be returned to the caller.
func BuildSessionReport(result *SessionResult, policyName string, exitCode int) *SessionReport {
	report := &SessionReport{
		SessionID:       result.Meta.SessionID,
		RequestID:       result.Meta.RequestID,
		Outcome:         result.Outcome,
		Message:         result.Message,
		ExitCode:        exitCode,
		DurationMs:      result.Duration.Milliseconds(),
		EventCount:      result.EventCount,
		MissingCritical: result.MissingCritical,
		Delivery: &ReportDelivery{
			Policy:          policyName,
			EventsReceived:  result.PolicyStats.TotalEvents,
			EventsDelivered: result.PolicyStats.EventsDelivered,
			EventsDropped:   result.PolicyStats.EventsDropped,
			Flushes:         result.PolicyStats.FlushCount,
			Errors:          result.PolicyStats.Errors,
		},
		Metrics: &result.Metrics,
	}

	report.Components = make([]ComponentSummary, 0, len(result.Components))
	for _, c := range result.Components {
		report.Components = append(report.Components, summarizeComponent(c))
	}

	return report
}

func summarizeComponent(c *types.Component) ComponentSummary {
	return ComponentSummary{
		ID:               c.ID,
		Name:             c.CanonicalName,
		Position:         string(c.Position),
		SizeBytes:        c.SizeBytes,
		Complete:         c.IsComplete,
		Streaming:        c.IsStreaming,
		Critical:         types.IsCriticalName(c.CanonicalName),
		ValidationErrors: c.ValidationErrors,
	}
}

// ExitCodeFor maps an outcome to a process exit code.
func ExitCodeFor(outcome Outcome) int {
	switch outcome {
	case OutcomeSuccess, OutcomeBudgetExceeded:
		// Budget exhaustion is advisory; the extracted components are valid.
		return 0
	case OutcomeParseErrorThreshold:
		return 1
	case OutcomeStreamError:
		return 2
	case OutcomeDeliveryFailure:
		return 3
	case OutcomeCanceled:
		return 4
	default:
		return 2
	}
}

// WriteSessionReport writes the report as JSON to the specified path.
// If path is "-", writes to stderr.
func WriteSessionReport(report *SessionReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}

	if path == "-" {
		return writeSessionReportTo(report, os.Stderr)
	}

	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// writeSessionReportTo writes report JSON to any writer (for testing).
func writeSessionReportTo(report *SessionReport, w io.Writer) error {
	data, err := marshalReport(report)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func marshalReport(report *SessionReport) ([]byte, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal report: %w", err)
	}
	return append(data, '\n'), nil
}
