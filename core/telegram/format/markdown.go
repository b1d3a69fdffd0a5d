package format

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MarkdownV1 denotes Telegram markdown version 1.
	MarkdownV1 = 1
	// MarkdownV2 denotes Telegram markdown version 2.
	MarkdownV2 = 2
)

const mdV2Specials = "_*[]()~`>#+-=|{}.!\\"

var (
	mdV1Re = regexp.MustCompile("([_*`\\[\\\\])")
	mdV2Re = regexp.MustCompile("([" + regexp.QuoteMeta(mdV2Specials) + "])")
	codeRe = regexp.MustCompile("([`\\\\])")
)

// EscapeMarkdown escapes special characters for MarkdownV1 or V2.
func EscapeMarkdown(text string, version int) (string, error) {
	switch version {
	case MarkdownV1:
		return mdV1Re.ReplaceAllString(text, `\$1`), nil
	case MarkdownV2:
		return mdV2Re.ReplaceAllString(text, `\$1`), nil
	}
	return "", fmt.Errorf("unsupported markdown version: %d", version)
}

// V2 escapes text for MarkdownV2.
func V2(text string) string {
	return mdV2Re.ReplaceAllString(text, `\$1`)
}

// Code wraps text in a MarkdownV2 inline code span so it can be tapped to copy.
func Code(text string) string {
	return "`" + codeRe.ReplaceAllString(text, `\$1`) + "`"
}

// Bold wraps already-escaped text in MarkdownV2 bold markers.
func Bold(escaped string) string {
	return "*" + escaped + "*"
}

// Lines joins MarkdownV2 fragments with newlines.
func Lines(parts ...string) string {
	return strings.Join(parts, "\n")
}
