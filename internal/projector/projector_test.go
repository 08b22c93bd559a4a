package projector

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sergi/go-diff/diffmatchpatch"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editpool/api/internal/anchor"
	"editpool/api/internal/annotation"
	"editpool/api/internal/document"
)

func commentMarker(id string, state annotation.State) string {
	return fmt.Sprintf(`<span data-annotation-id="%s" data-kind="comment" data-state="%s" class="annotation comment %s">`, id, state, state)
}

func posted(id string, from, to int, text string) annotation.Annotation {
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	return annotation.Annotation{
		ID:        id,
		Kind:      annotation.KindComment,
		Range:     anchor.Range{From: from, To: to},
		Text:      text,
		Author:    "ana",
		State:     annotation.StatePosted,
		CreatedAt: &ts,
	}
}

func TestProjectComment(t *testing.T) {
	doc := document.New("Hello world")
	got := New(DiffLCS).Project(doc, []annotation.Annotation{posted("ann_1", 0, 5, "typo?")})
	want := "<p>" + commentMarker("ann_1", annotation.StatePosted) + "Hello</span> world</p>"
	assert.Equal(t, want, got)
}

func TestProjectParagraphsAndEscaping(t *testing.T) {
	doc := document.New("a < b & \"c\"\n\nend")
	got := New(DiffLCS).Project(doc, nil)
	assert.Equal(t, "<p>a &lt; b &amp; &#34;c&#34;</p><p></p><p>end</p>", got)
}

func TestProjectNestsOverlappingComments(t *testing.T) {
	doc := document.New("Hello world")
	list := []annotation.Annotation{posted("a", 0, 5, ""), posted("b", 2, 8, "")}
	a := commentMarker("a", annotation.StatePosted)
	b := commentMarker("b", annotation.StatePosted)
	want := "<p>" + a + "He</span>" + a + b + "llo</span></span>" + b + " wo</span>rld</p>"
	assert.Equal(t, want, New(DiffLCS).Project(doc, list))
}

func TestProjectSuggestionCharsetDiff(t *testing.T) {
	doc := document.New("Hello world")
	list := []annotation.Annotation{{
		ID:           "s1",
		Kind:         annotation.KindSuggestion,
		Range:        anchor.Range{From: 6, To: 11},
		Text:         "earth",
		OriginalText: "world",
		State:        annotation.StateDraft,
	}}
	got := New(DiffCharset).Project(doc, list)
	want := `<p>Hello <span data-annotation-id="s1" data-kind="suggestion" data-state="draft" data-original="world" class="annotation suggestion draft">` +
		`<del>wo</del><del>ld</del><ins>ea</ins>r<ins>th</ins></span></p>`
	assert.Equal(t, want, got)
}

func TestProjectUnchangedSuggestion(t *testing.T) {
	doc := document.New("Hello world")
	list := []annotation.Annotation{{
		ID: "s1", Kind: annotation.KindSuggestion, Range: anchor.Range{From: 6, To: 11},
		Text: "world", OriginalText: "world", State: annotation.StateDraft,
	}}
	got := New(DiffLCS).Project(doc, list)
	assert.Contains(t, got, `class="annotation suggestion draft">world</span>`)
	assert.NotContains(t, got, "<del>")
}

func TestDiffModes(t *testing.T) {
	collect := func(diffs []diffmatchpatch.Diff) (del, ins, eq string) {
		for _, d := range diffs {
			switch d.Type {
			case diffmatchpatch.DiffDelete:
				del += d.Text
			case diffmatchpatch.DiffInsert:
				ins += d.Text
			default:
				eq += d.Text
			}
		}
		return del, ins, eq
	}

	del, ins, eq := collect(Diff(DiffLCS, "world", "earth"))
	assert.Equal(t, "wold", del)
	assert.Equal(t, "eath", ins)
	assert.Equal(t, "r", eq)

	want := []diffmatchpatch.Diff{
		{Type: diffmatchpatch.DiffDelete, Text: "wo"},
		{Type: diffmatchpatch.DiffDelete, Text: "ld"},
		{Type: diffmatchpatch.DiffInsert, Text: "ea"},
		{Type: diffmatchpatch.DiffEqual, Text: "r"},
		{Type: diffmatchpatch.DiffInsert, Text: "th"},
	}
	assert.Equal(t, want, Diff(DiffCharset, "world", "earth"))

	mode, err := ParseDiffMode("Charset")
	require.NoError(t, err)
	assert.Equal(t, DiffCharset, mode)
	mode, err = ParseDiffMode("")
	require.NoError(t, err)
	assert.Equal(t, DiffLCS, mode)
	_, err = ParseDiffMode("myers")
	assert.Error(t, err)
}

// roundTripFixture covers nesting, anchors on paragraph breaks, an orphaned
// comment, a changed suggestion and a pure insertion.
func roundTripFixture() (*document.Document, []annotation.Annotation) {
	doc := document.New("Hello world\nSecond line\n\nLast")
	ts := time.Date(2026, 2, 3, 4, 5, 6, 0, time.UTC)
	list := []annotation.Annotation{
		posted("c1", 0, 5, "greeting"),
		posted("c2", 3, 14, "spans two paragraphs"),
		posted("c3", 11, 12, "just the break"),
		{ID: "s1", Kind: annotation.KindSuggestion, Range: anchor.Range{From: 19, To: 23}, Text: "lines", OriginalText: "line", Author: "bo", State: annotation.StatePosted, CreatedAt: &ts},
		posted("c4", 23, 25, "empty paragraph"),
		{ID: "c5", Kind: annotation.KindComment, Range: anchor.Range{From: 24, To: 24}, Text: "orphan", State: annotation.StatePosted, Orphaned: true, CreatedAt: &ts},
		{ID: "s2", Kind: annotation.KindSuggestion, Range: anchor.Range{From: 29, To: 29}, Text: "!", Author: "bo", State: annotation.StateDraft},
		{ID: "c6", Kind: annotation.KindComment, Range: anchor.Range{From: 25, To: 29}, Text: "", Author: "ana", State: annotation.StateDraft},
	}
	return doc, list
}

func TestRoundTrip(t *testing.T) {
	for _, mode := range []DiffMode{DiffLCS, DiffCharset} {
		t.Run(string(mode), func(t *testing.T) {
			p := New(mode)
			doc, list := roundTripFixture()
			markup := p.Project(doc, list)

			parsed, anchors, err := Parse(markup)
			require.NoError(t, err)
			assert.Equal(t, doc.String(), parsed.String())
			ranges := map[string]anchor.Range{}
			for _, a := range anchors {
				ranges[a.ID] = a.Range
			}
			for _, a := range list {
				assert.Equal(t, a.Range, ranges[a.ID], "range of %s", a.ID)
			}

			rdoc, rlist, err := Rehydrate(markup, list)
			require.NoError(t, err)
			assert.Equal(t, doc.String(), rdoc.String())
			if diff := cmp.Diff(list, rlist); diff != "" {
				t.Fatalf("rehydrated annotations differ (-want +got):\n%s", diff)
			}
			assert.Equal(t, markup, p.Project(rdoc, rlist))
		})
	}
}

func TestRoundTripWithNUL(t *testing.T) {
	doc := document.New("a\x00bc")
	list := []annotation.Annotation{posted("ann_1", 1, 2, "b")}
	markup := New(DiffLCS).Project(doc, list)

	rdoc, rlist, err := Rehydrate(markup, list)
	require.NoError(t, err)
	assert.Equal(t, "abc", rdoc.String())
	require.Len(t, rlist, 1)
	assert.Equal(t, anchor.Range{From: 1, To: 2}, rlist[0].Range)
}

func TestParseRecoversSuggestionText(t *testing.T) {
	doc, list := roundTripFixture()
	for _, mode := range []DiffMode{DiffLCS, DiffCharset} {
		_, anchors, err := Parse(New(mode).Project(doc, list))
		require.NoError(t, err)
		byID := map[string]Anchor{}
		for _, a := range anchors {
			byID[a.ID] = a
		}
		assert.Equal(t, "lines", byID["s1"].Text)
		assert.Equal(t, "line", byID["s1"].OriginalText)
		assert.Equal(t, "!", byID["s2"].Text)
		assert.Equal(t, "", byID["s2"].OriginalText)
	}
}

func TestParseLegacyMarkup(t *testing.T) {
	markup := `<p>Hello <span data-comment-id="c1" class="comment posted">world</span></p><p><span data-comment-id="c2" class="comment">next</span></p>`
	doc, anchors, err := Parse(markup)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nnext", doc.String())
	require.Len(t, anchors, 2)
	assert.Equal(t, Anchor{ID: "c1", Kind: annotation.KindComment, State: annotation.StatePosted, Range: anchor.Range{From: 6, To: 11}}, anchors[0])
	assert.Equal(t, Anchor{ID: "c2", Kind: annotation.KindComment, State: annotation.StateDraft, Range: anchor.Range{From: 12, To: 16}}, anchors[1])
}

func TestParseLooseMarkup(t *testing.T) {
	cases := []struct {
		name   string
		markup string
		want   string
	}{
		{name: "empty", markup: "", want: ""},
		{name: "bare text", markup: "abc", want: "abc"},
		{name: "line break", markup: "abc<br>def", want: "abc\ndef"},
		{name: "inline formatting", markup: "<p>a <strong>bold</strong> move</p>", want: "a bold move"},
		{name: "nested blocks", markup: "<div><p>one</p><p>two</p></div>", want: "one\ntwo"},
		{name: "whitespace between blocks", markup: "<p>one</p>\n  <p>two</p>", want: "one\ntwo"},
		{name: "entities", markup: "<p>a &lt; b</p>", want: "a < b"},
		{name: "default content", markup: "<p>Start editing...</p>", want: "Start editing..."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			doc, _, err := Parse(tc.markup)
			require.NoError(t, err)
			assert.Equal(t, tc.want, doc.String())
		})
	}
}

func TestParseRejectsMalformedMarkers(t *testing.T) {
	cases := map[string]string{
		"unknown kind":  `<p><span data-annotation-id="x" data-kind="reaction" data-state="posted">a</span></p>`,
		"missing state": `<p><span data-annotation-id="x" data-kind="comment">a</span></p>`,
		"empty id":      `<p><span data-annotation-id="" data-kind="comment" data-state="posted">a</span></p>`,
		"state changes": `<p>` + commentMarker("x", annotation.StatePosted) + `a</span>` + commentMarker("x", annotation.StateDraft) + `b</span></p>`,
	}
	for name, markup := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse(markup)
			require.ErrorIs(t, err, ErrDeserialization)
		})
	}
}

func TestRehydrateMergesRecords(t *testing.T) {
	markup := "<p>" + commentMarker("c1", annotation.StatePosted) + "Hello</span> world</p>" +
		"<p>" + commentMarker("stray", annotation.StatePosted) + "x</span></p>"
	stored := []annotation.Annotation{
		posted("c1", 40, 45, "stale range is replaced"),
		posted("gone", 6, 11, "no marker, range still valid"),
	}
	doc, list, err := Rehydrate(markup, stored)
	require.NoError(t, err)
	assert.Equal(t, "Hello world\nx", doc.String())
	require.Len(t, list, 3)

	assert.Equal(t, anchor.Range{From: 0, To: 5}, list[0].Range)
	assert.Equal(t, "stale range is replaced", list[0].Text)
	assert.Equal(t, "ana", list[0].Author)
	assert.Equal(t, anchor.Range{From: 6, To: 11}, list[1].Range)
	assert.Equal(t, "stray", list[2].ID)
	assert.Equal(t, anchor.Range{From: 12, To: 13}, list[2].Range)
	assert.Empty(t, list[2].Text)

	_, _, err = Rehydrate(markup, []annotation.Annotation{posted("far", 20, 30, "")})
	require.ErrorIs(t, err, ErrDeserialization)

	_, _, err = Rehydrate(markup, []annotation.Annotation{posted("c1", 0, 5, ""), posted("c1", 0, 5, "")})
	require.ErrorIs(t, err, ErrDeserialization)
}

func TestBubbles(t *testing.T) {
	long := posted("long", 0, 1, strings.Join([]string{"1", "2", "3", "4", "5"}, "\n"))
	short := posted("short", 2, 3, "fine")
	draft := annotation.Annotation{ID: "draft", Kind: annotation.KindComment, Range: anchor.Range{From: 0, To: 2}, Text: "a\nb\nc\nd", State: annotation.StateDraft}
	suggestion := annotation.Annotation{ID: "s", Kind: annotation.KindSuggestion, Range: anchor.Range{From: 4, To: 5}, OriginalText: "x", State: annotation.StateDraft}

	bubbles := Bubbles([]annotation.Annotation{long, short, suggestion, draft}, "short", nil)
	require.Len(t, bubbles, 3)

	assert.True(t, bubbles[0].ShowMore)
	assert.Equal(t, "1\n2\n3...", bubbles[0].Preview)
	assert.Equal(t, 80, bubbles[0].Height)
	assert.Equal(t, 5, bubbles[0].Lines)

	assert.False(t, bubbles[1].ShowMore)
	assert.True(t, bubbles[1].Highlighted)
	assert.Equal(t, 40, bubbles[1].Height)

	assert.Equal(t, "draft", bubbles[2].ID)
	assert.True(t, bubbles[2].Editable)
	assert.False(t, bubbles[2].ShowMore)
	assert.Equal(t, 100, bubbles[2].Height)

	expanded := Bubbles([]annotation.Annotation{long}, "", map[string]bool{"long": true})
	require.Len(t, expanded, 1)
	assert.True(t, expanded[0].Expanded)
	assert.False(t, expanded[0].ShowMore)
	assert.Equal(t, 120, expanded[0].Height)
	assert.Equal(t, long.Text, expanded[0].Preview)
}
