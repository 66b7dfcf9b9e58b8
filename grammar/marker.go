// Package grammar implements the sentinel marker grammar for component
// boundaries in generated code streams.
//
// Marker grammar, applied after whitespace normalization:
//
//	START-line := "/// START" SP Name [SP "position=" Position]
//	END-line   := "/// END" SP Name
//	Name       := UpperAlpha AlnumChar*
//	Position   := "header" | "main" | "footer"   (default "main")
//
// Names conventionally end in one of the structural words "Section",
// "Layout", or "Component"; the suffix is part of the name and carries no
// extra grammar meaning.
package grammar

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/lodeworks/sluice/types"
)

// Sentinel is the three-character prefix that makes a line a marker candidate.
const Sentinel = "///"

// Kind discriminates valid marker results.
type Kind int

// Marker kinds.
const (
	KindStart Kind = iota
	KindEnd
)

// Class classifies a line against the marker grammar.
type Class int

const (
	// ClassText means the line is not a marker candidate at all.
	ClassText Class = iota
	// ClassValid means the line fully matches the START or END grammar.
	ClassValid
	// ClassIncomplete means the line is a sentinel-prefixed proper prefix of
	// a marker and could still become valid with more input. Incomplete
	// lines must be preserved verbatim for re-evaluation.
	ClassIncomplete
	// ClassRejected means the line starts with the sentinel but no extension
	// can make it a valid marker. Rejected lines degrade to plain text.
	ClassRejected
)

// Result is the outcome of validating one line.
type Result struct {
	Class    Class
	Kind     Kind
	Name     string
	Position types.Position
	// Reason explains rejection; empty for other classes.
	Reason string
}

var (
	startRe = regexp.MustCompile(`^/// START ([A-Z][A-Za-z0-9]*)(?: position=(header|main|footer))?$`)
	endRe   = regexp.MustCompile(`^/// END ([A-Z][A-Za-z0-9]*)$`)
	nameRe  = regexp.MustCompile(`^[A-Z][A-Za-z0-9]*$`)
)

// positionAttrs are the fully spelled position attributes, used for
// prefix-extension checks on truncated lines.
var positionAttrs = []string{
	"position=" + string(types.PositionHeader),
	"position=" + string(types.PositionMain),
	"position=" + string(types.PositionFooter),
}

// StructuralSuffixes are the conventional trailing words for component names.
var StructuralSuffixes = []string{"Section", "Layout", "Component"}

// Validate classifies a single line against the marker grammar.
//
// The line is trimmed and whitespace-normalized before matching; the
// caller keeps the verbatim text for the degrade-to-text path. Validate is
// stateless: END-name matching against the open component happens in the
// engine, after alias resolution.
func Validate(line string) Result {
	norm := Normalize(line)

	if !strings.HasPrefix(norm, Sentinel) {
		// A bare prefix of the sentinel itself ("/" or "//") could still
		// grow into a marker.
		if norm != "" && strings.HasPrefix(Sentinel, norm) {
			return Result{Class: ClassIncomplete}
		}
		return Result{Class: ClassText}
	}

	if m := startRe.FindStringSubmatch(norm); m != nil {
		pos, _ := types.ParsePosition(m[2])
		return Result{Class: ClassValid, Kind: KindStart, Name: m[1], Position: pos}
	}
	if m := endRe.FindStringSubmatch(norm); m != nil {
		return Result{Class: ClassValid, Kind: KindEnd, Name: m[1]}
	}

	return classifyPartial(norm)
}

// classifyPartial decides incomplete vs rejected for sentinel-prefixed
// lines that did not fully match.
func classifyPartial(norm string) Result {
	// Truncated keyword: "/// STA", "/// EN", "///".
	if strings.HasPrefix("/// START", norm) || strings.HasPrefix("/// END", norm) {
		return Result{Class: ClassIncomplete}
	}

	if rest, ok := strings.CutPrefix(norm, "/// START "); ok {
		return classifyStartRest(rest)
	}
	if rest, ok := strings.CutPrefix(norm, "/// END "); ok {
		if !nameRe.MatchString(rest) {
			return Result{Class: ClassRejected, Reason: "invalid component name: " + rest}
		}
		// nameRe matched yet endRe did not; unreachable, kept for safety.
		return Result{Class: ClassRejected, Reason: "malformed END marker"}
	}

	return Result{Class: ClassRejected, Reason: "unknown marker keyword"}
}

// classifyStartRest classifies the text after "/// START ".
func classifyStartRest(rest string) Result {
	name, attr, hasAttr := strings.Cut(rest, " ")
	if !nameRe.MatchString(name) {
		return Result{Class: ClassRejected, Reason: "invalid component name: " + name}
	}
	if !hasAttr {
		// nameRe matched without attribute; startRe would have accepted it.
		return Result{Class: ClassRejected, Reason: "malformed START marker"}
	}
	if strings.Contains(attr, " ") {
		return Result{Class: ClassRejected, Reason: "unexpected trailing text: " + attr}
	}
	for _, full := range positionAttrs {
		if attr != full && strings.HasPrefix(full, attr) {
			// "position=hea" may still grow into "position=header".
			return Result{Class: ClassIncomplete}
		}
	}
	return Result{Class: ClassRejected, Reason: "invalid position attribute: " + attr}
}

// Normalize trims the line and collapses every run of whitespace,
// including non-ASCII spaces, to a single ASCII space.
func Normalize(line string) string {
	var b strings.Builder
	b.Grow(len(line))

	inSpace := false
	for _, r := range strings.TrimSpace(line) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace && b.Len() > 0 {
			b.WriteByte(' ')
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String()
}
