package pester

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMarkdownToMrkdwn(t *testing.T) {
	cases := []struct {
		name string
		src  string
		want string
	}{{
		name: "plain",
		src:  "just some text",
		want: "just some text",
	}, {
		name: "emphasis",
		src:  "**ready** but _slowly_",
		want: "*ready* but _slowly_",
	}, {
		name: "strikethrough",
		src:  "~~wrong~~ right",
		want: "~wrong~ right",
	}, {
		name: "inline code",
		src:  "run `make lint` first",
		want: "run `make lint` first",
	}, {
		name: "link",
		src:  "see [the docs](https://example.org/docs)",
		want: "see <https://example.org/docs|the docs>",
	}, {
		name: "heading",
		src:  "# Rollout plan",
		want: "*Rollout plan*",
	}, {
		name: "bullet list",
		src:  "- one\n- two",
		want: "• one\n• two",
	}, {
		name: "ordered list",
		src:  "1. first\n2. second",
		want: "1. first\n2. second",
	}, {
		name: "nested bullet list",
		src:  "- outer\n    - inner",
		want: "• outer\n    • inner",
	}, {
		name: "fenced code",
		src:  "```\nx := 1\n```",
		want: "```\nx := 1\n```",
	}, {
		name: "blockquote",
		src:  "> as discussed",
		want: "> as discussed",
	}, {
		name: "rule",
		src:  "---",
		want: "---",
	}}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MarkdownToMrkdwn(tc.src)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
