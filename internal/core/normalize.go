// Package core implements command normalization for classification.
package core

import (
	"strings"

	shellwords "github.com/mattn/go-shellwords"
)

// NormalizedCommand is the result of preparing a raw command for
// classification. Normalization only trims and splits; it never expands or
// rewrites shell semantics.
type NormalizedCommand struct {
	// Raw is the trimmed input command.
	Raw string
	// Segments are the sub-commands of a compound command, split on the shell
	// operators &&, ||, ;, and |.
	Segments []string
	// IsCompound indicates the command contained more than one segment.
	IsCompound bool
	// ParseError indicates tokenization failed; classification treats the
	// command conservatively in that case.
	ParseError bool
}

// NormalizeCommand trims a raw command and splits compound commands into
// segments for per-segment classification.
func NormalizeCommand(raw string) *NormalizedCommand {
	trimmed := strings.TrimSpace(raw)
	n := &NormalizedCommand{Raw: trimmed}
	if trimmed == "" {
		return n
	}

	segments, parseErr := splitSegments(trimmed)
	n.Segments = segments
	n.ParseError = parseErr
	n.IsCompound = len(segments) > 1
	return n
}

// splitSegments tokenizes the command and splits it at shell control
// operators. The lexer stops at each unquoted operator and reports the
// position, so quoted operators stay inside their segment.
func splitSegments(cmd string) ([]string, bool) {
	lexer := shellwords.NewParser()
	lexer.ParseBacktick = false
	lexer.ParseEnv = false

	var segments []string
	rest := cmd
	for rest != "" {
		tokens, err := lexer.Parse(rest)
		if err != nil {
			// Fall back to a textual split so forbidden patterns still get
			// a chance to match each piece.
			return rawSplit(cmd), true
		}
		if len(tokens) > 0 {
			segments = append(segments, strings.Join(tokens, " "))
		}
		if lexer.Position < 0 {
			break
		}
		rest = strings.TrimLeft(rest[lexer.Position:], "&|;<> \t")
	}

	if len(segments) == 0 {
		segments = []string{cmd}
	}
	return segments, false
}

// rawSplit splits on operator text without quote awareness.
func rawSplit(cmd string) []string {
	seps := []string{"&&", "||", ";", "|"}
	segments := []string{cmd}
	for _, sep := range seps {
		var next []string
		for _, seg := range segments {
			for _, part := range strings.Split(seg, sep) {
				part = strings.TrimSpace(part)
				if part != "" {
					next = append(next, part)
				}
			}
		}
		segments = next
	}
	if len(segments) == 0 {
		return []string{strings.TrimSpace(cmd)}
	}
	return segments
}
