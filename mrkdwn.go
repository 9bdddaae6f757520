package pester

import (
	"fmt"
	"strings"

	"github.com/golang-commonmark/markdown"
)

// MarkdownToMrkdwn converts common markdown, as found in pull-request
// descriptions, to Slack mrkdwn. The conversion is lossy: tables and inline
// HTML pass through as text.
func MarkdownToMrkdwn(src string) string {
	md := markdown.New()
	r := new(mrkdwnRenderer)
	r.render(md.Parse([]byte(src)))
	return strings.TrimRight(r.b.String(), "\n")
}

type mrkdwnRenderer struct {
	b         strings.Builder
	listDepth int
	ordinal   int
	ordered   bool
}

// nl ensures the output ends with a line break before a new block starts.
func (r *mrkdwnRenderer) nl() {
	if s := r.b.String(); s != "" && s[len(s)-1] != '\n' {
		r.b.WriteString("\n")
	}
}

// Token types and properties in
// github.com/golang-commonmark/markdown v0.0.0-20180910011815-a8f139058164:
// opening tokens (ParagraphOpen, EmphasisOpen, ...) pair with closing tokens
// at the same level; Inline carries the flattened Children of a block.
func (r *mrkdwnRenderer) render(tokens []markdown.Token) {
	for _, tok := range tokens {
		switch tok := tok.(type) {
		case *markdown.Inline:
			r.render(tok.Children)

		case *markdown.Text:
			r.b.WriteString(tok.Content)

		case *markdown.CodeInline:
			r.b.WriteString("`" + tok.Content + "`")

		case *markdown.CodeBlock:
			r.b.WriteString("```\n" + tok.Content + "```\n")

		case *markdown.Fence:
			r.b.WriteString("```\n" + tok.Content + "```\n")

		case *markdown.Softbreak, *markdown.Hardbreak:
			r.b.WriteString("\n")

		case *markdown.EmphasisOpen, *markdown.EmphasisClose:
			r.b.WriteString("_")

		case *markdown.StrongOpen, *markdown.StrongClose:
			r.b.WriteString("*")

		case *markdown.StrikethroughOpen, *markdown.StrikethroughClose:
			r.b.WriteString("~")

		case *markdown.LinkOpen:
			r.b.WriteString("<" + tok.Href + "|")

		case *markdown.LinkClose:
			r.b.WriteString(">")

		case *markdown.Image:
			r.b.WriteString(tok.Src)

		case *markdown.HeadingOpen:
			r.b.WriteString("*")

		case *markdown.HeadingClose:
			r.b.WriteString("*\n")

		case *markdown.ParagraphOpen:
			// Indentation, if any, is emitted by ListItemOpen.

		case *markdown.ParagraphClose:
			if r.listDepth == 0 {
				r.b.WriteString("\n")
			}

		case *markdown.BulletListOpen:
			r.listDepth++
			r.ordered = false

		case *markdown.OrderedListOpen:
			r.listDepth++
			r.ordered = true
			r.ordinal = 0

		case *markdown.BulletListClose, *markdown.OrderedListClose:
			r.listDepth--
			if r.listDepth == 0 {
				r.b.WriteString("\n")
			}

		case *markdown.ListItemOpen:
			r.nl()
			r.b.WriteString(strings.Repeat("    ", r.listDepth-1))
			if r.ordered {
				r.ordinal++
				fmt.Fprintf(&r.b, "%d. ", r.ordinal)
			} else {
				r.b.WriteString("• ")
			}

		case *markdown.ListItemClose:
			// The next ListItemOpen or the list close supplies the break.

		case *markdown.BlockquoteOpen:
			r.b.WriteString("> ")

		case *markdown.BlockquoteClose:
			r.b.WriteString("\n")

		case *markdown.Hr:
			r.b.WriteString("---\n")
		}
	}
}
