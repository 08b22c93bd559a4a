package projector

import (
	"fmt"
	"html"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DiffMode selects how a changed suggestion is rendered.
type DiffMode string

const (
	// DiffLCS renders a minimal sequence diff.
	DiffLCS DiffMode = "lcs"
	// DiffCharset marks characters by set membership: characters of the
	// original missing from the replacement are deleted, characters of the
	// replacement missing from the original are inserted.
	DiffCharset DiffMode = "charset"
)

func ParseDiffMode(s string) (DiffMode, error) {
	switch DiffMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", DiffLCS:
		return DiffLCS, nil
	case DiffCharset:
		return DiffCharset, nil
	default:
		return "", fmt.Errorf("unknown diff mode %q", s)
	}
}

// Diff computes the edit runs between original and replacement.
func Diff(mode DiffMode, original, replacement string) []diffmatchpatch.Diff {
	if mode == DiffCharset {
		return charsetDiff(original, replacement)
	}
	dmp := diffmatchpatch.New()
	return dmp.DiffMain(original, replacement, false)
}

func charsetDiff(original, replacement string) []diffmatchpatch.Diff {
	inOriginal := runeSet(original)
	inReplacement := runeSet(replacement)

	var diffs []diffmatchpatch.Diff
	var run []rune
	flush := func(op diffmatchpatch.Operation) {
		if len(run) > 0 {
			diffs = append(diffs, diffmatchpatch.Diff{Type: op, Text: string(run)})
			run = run[:0]
		}
	}

	for _, r := range original {
		if inReplacement[r] {
			flush(diffmatchpatch.DiffDelete)
			continue
		}
		run = append(run, r)
	}
	flush(diffmatchpatch.DiffDelete)

	op := diffmatchpatch.DiffEqual
	for _, r := range replacement {
		next := diffmatchpatch.DiffEqual
		if !inOriginal[r] {
			next = diffmatchpatch.DiffInsert
		}
		if next != op {
			flush(op)
			op = next
		}
		run = append(run, r)
	}
	flush(op)
	return diffs
}

func runeSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		set[r] = true
	}
	return set
}

func renderDiff(b *strings.Builder, diffs []diffmatchpatch.Diff) {
	for _, d := range diffs {
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			b.WriteString("<del>")
			b.WriteString(html.EscapeString(d.Text))
			b.WriteString("</del>")
		case diffmatchpatch.DiffInsert:
			b.WriteString("<ins>")
			b.WriteString(html.EscapeString(d.Text))
			b.WriteString("</ins>")
		default:
			b.WriteString(html.EscapeString(d.Text))
		}
	}
}
