package cmd

import (
	"github.com/urfave/cli/v2"

	"github.com/lodeworks/sluice/cli/render"
	"github.com/lodeworks/sluice/grammar"
)

// GrammarResponse is the response for the grammar check command.
type GrammarResponse struct {
	Line     string `json:"line"`
	Class    string `json:"class"`
	Kind     string `json:"kind,omitempty"`
	Name     string `json:"name,omitempty"`
	Position string `json:"position,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// GrammarCommand returns the grammar command with subcommands.
// Grammar checks are read-only and never touch a stream.
func GrammarCommand() *cli.Command {
	return &cli.Command{
		Name:  "grammar",
		Usage: "Marker grammar tooling",
		Subcommands: []*cli.Command{
			grammarCheckCommand(),
		},
	}
}

func grammarCheckCommand() *cli.Command {
	return &cli.Command{
		Name:      "check",
		Usage:     "Classify a single line against the marker grammar",
		ArgsUsage: "<line>",
		Flags:     ReadOnlyFlags(),
		Action:    grammarCheckAction,
	}
}

func grammarCheckAction(c *cli.Context) error {
	if c.NArg() < 1 {
		return cli.Exit("line required", 1)
	}
	line := c.Args().First()

	r, err := render.NewRenderer(c)
	if err != nil {
		return err
	}

	return r.Render(classifyLine(line))
}

func classifyLine(line string) GrammarResponse {
	res := grammar.Validate(line)
	resp := GrammarResponse{
		Line:   line,
		Class:  className(res.Class),
		Reason: res.Reason,
	}
	if res.Class == grammar.ClassValid {
		resp.Kind = kindName(res.Kind)
		resp.Name = res.Name
		if res.Kind == grammar.KindStart {
			resp.Position = string(res.Position)
		}
	}
	return resp
}

func className(c grammar.Class) string {
	switch c {
	case grammar.ClassValid:
		return "valid"
	case grammar.ClassIncomplete:
		return "incomplete"
	case grammar.ClassRejected:
		return "rejected"
	default:
		return "text"
	}
}

func kindName(k grammar.Kind) string {
	if k == grammar.KindEnd {
		return "end"
	}
	return "start"
}
