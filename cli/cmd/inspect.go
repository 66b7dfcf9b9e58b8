package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/lodeworks/sluice/cli/render"
	"github.com/lodeworks/sluice/types"
)

// ComponentView summarizes one component folded from an event log.
type ComponentView struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Position         string `json:"position"`
	Bytes            int    `json:"bytes"`
	Deltas           int    `json:"deltas"`
	Complete         bool   `json:"complete"`
	CompoundComplete bool   `json:"compound_complete"`
	Critical         bool   `json:"critical"`
}

// EventLogView is the response for the inspect events command.
type EventLogView struct {
	Events     int             `json:"events"`
	Components []ComponentView `json:"components"`
	Errors     []string        `json:"errors,omitempty"`
}

// InspectCommand returns the inspect command with subcommands.
// Inspect is read-only: it replays a saved event log, never a live stream.
func InspectCommand() *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a saved extraction artifact",
		Subcommands: []*cli.Command{
			inspectEventsCommand(),
		},
	}
}

func inspectEventsCommand() *cli.Command {
	return &cli.Command{
		Name:      "events",
		Usage:     "Summarize a JSON-lines event log (extract stdout)",
		ArgsUsage: "<events-file>",
		Flags:     ReadOnlyFlags(),
		Action:    inspectEventsAction,
	}
}

func inspectEventsAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("events-file required", 1)
	}
	path := c.Args().First()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer func() { _ = f.Close() }()

	view, err := foldEventLog(f)
	if err != nil {
		return err
	}

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}
	return r.Render(view)
}

// foldEventLog replays a JSON-lines event log into component summaries.
// Replay follows the event ordering guarantee: deltas and the stop for a
// component always come after its start.
func foldEventLog(r io.Reader) (*EventLogView, error) {
	view := &EventLogView{}
	byID := make(map[string]*ComponentView)
	var order []string

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var e types.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("event log line %d: %w", lineNo, err)
		}
		view.Events++

		switch e.Type {
		case types.EventTypeStart:
			if _, seen := byID[e.ComponentID]; !seen {
				order = append(order, e.ComponentID)
			}
			byID[e.ComponentID] = &ComponentView{
				ID:       e.ComponentID,
				Name:     e.ComponentName,
				Position: string(e.Position),
				Critical: e.IsCritical,
			}
		case types.EventTypeDelta:
			if cv, ok := byID[e.ComponentID]; ok {
				cv.Bytes += len(e.Text)
				cv.Deltas++
			}
		case types.EventTypeStop:
			if cv, ok := byID[e.ComponentID]; ok {
				cv.Complete = e.IsComplete
				cv.CompoundComplete = e.IsCompoundComplete
			}
		case types.EventTypeError:
			view.Errors = append(view.Errors, fmt.Sprintf("%s: %s", e.Code, e.Message))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event log: %w", err)
	}

	for _, id := range order {
		view.Components = append(view.Components, *byID[id])
	}
	return view, nil
}
