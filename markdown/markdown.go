// Package markdown renders the console's restricted Markdown dialect to HTML.
//
// The dialect is deliberately small: fenced code blocks, headings, single-line
// block quotes, flat unordered lists and paragraphs, plus links, inline code,
// bold and italics inside a line. Anything else is rendered as escaped
// paragraph text.
package markdown

import (
	"bytes"
	"context"
	"html"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/a-h/templ"
)

var (
	reHeading    = regexp.MustCompile(`^(#+)\s+(.*)$`)
	reQuote      = regexp.MustCompile(`^>\s?(.*)$`)
	reLink       = regexp.MustCompile(`\[([^\]]+)\]\((https?://[^\s)]+)\)`)
	reInlineCode = regexp.MustCompile("`([^`]+)`")
	reBold       = regexp.MustCompile(`\*\*([^*]+)\*\*`)
	reItalic     = regexp.MustCompile(`_(.+?)_`)
)

const fence = "```"

// Markdown returns a templ.Component that renders md as HTML.
func Markdown(md string) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		var buf bytes.Buffer
		RenderMarkdown(&buf, md)
		_, err := w.Write(buf.Bytes())
		return err
	})
}

// Render returns the HTML representation of md.
func Render(md string) string {
	var buf bytes.Buffer
	RenderMarkdown(&buf, md)
	return buf.String()
}

// RenderMarkdown writes the HTML representation of md to buf. Blocks are
// separated by a single newline.
func RenderMarkdown(buf *bytes.Buffer, md string) {
	md = strings.ReplaceAll(md, "\x00", "�")
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")

	first := true
	emit := func(s string) {
		if !first {
			buf.WriteByte('\n')
		}
		buf.WriteString(s)
		first = false
	}

	inList := false
	inCode := false
	codeLang := ""
	var code []string

	closeList := func() {
		if inList {
			emit("</ul>")
			inList = false
		}
	}
	flushCode := func() {
		attr := ""
		if codeLang != "" {
			attr = ` class="language-` + html.EscapeString(codeLang) + `"`
		}
		emit("<pre><code" + attr + ">" + html.EscapeString(strings.Join(code, "\n")) + "</code></pre>")
		code = code[:0]
		codeLang = ""
		inCode = false
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if inCode {
			if strings.HasPrefix(trimmed, fence) {
				flushCode()
			} else {
				code = append(code, line)
			}
			continue
		}

		if strings.HasPrefix(trimmed, fence) {
			closeList()
			inCode = true
			codeLang = strings.TrimSpace(strings.TrimPrefix(trimmed, fence))
			continue
		}

		if trimmed == "" {
			closeList()
			continue
		}

		if strings.HasPrefix(trimmed, "- ") {
			if !inList {
				emit("<ul>")
				inList = true
			}
			emit("<li>" + FormatInline(trimmed[2:]) + "</li>")
			continue
		}

		closeList()

		if m := reHeading.FindStringSubmatch(trimmed); m != nil {
			level := strconv.Itoa(min(len(m[1]), 6))
			emit("<h" + level + ">" + FormatInline(m[2]) + "</h" + level + ">")
			continue
		}

		if m := reQuote.FindStringSubmatch(trimmed); m != nil {
			emit("<blockquote>" + FormatInline(m[1]) + "</blockquote>")
			continue
		}

		emit("<p>" + FormatInline(trimmed) + "</p>")
	}

	closeList()
	if inCode {
		flushCode()
	}
}

// ApplyOutsideTags applies fn only to text segments outside HTML tags,
// so that formatting regexes never touch URLs inside href attributes, etc.
func ApplyOutsideTags(s string, fn func(string) string) string {
	var buf strings.Builder
	for len(s) > 0 {
		lt := strings.Index(s, "<")
		if lt < 0 {
			buf.WriteString(fn(s))
			break
		}
		if lt > 0 {
			buf.WriteString(fn(s[:lt]))
		}
		gt := strings.Index(s[lt:], ">")
		if gt < 0 {
			buf.WriteString(s[lt:])
			break
		}
		buf.WriteString(s[lt : lt+gt+1])
		s = s[lt+gt+1:]
	}
	return buf.String()
}

// FormatInline escapes s and applies inline spans: links, inline code, bold
// and italics, in that order.
func FormatInline(s string) string {
	escaped := html.EscapeString(s)

	escaped = reLink.ReplaceAllString(escaped,
		`<a href="$2" target="_blank" rel="noopener noreferrer">$1</a>`)

	// Inline code is swapped for placeholders so later spans cannot format
	// its content.
	var codeSpans []string
	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		return reInlineCode.ReplaceAllStringFunc(seg, func(m string) string {
			placeholder := "\x00IC" + strconv.Itoa(len(codeSpans)) + "\x00"
			codeSpans = append(codeSpans, "<code>"+m[1:len(m)-1]+"</code>")
			return placeholder
		})
	})

	escaped = ApplyOutsideTags(escaped, func(seg string) string {
		seg = reBold.ReplaceAllString(seg, "<strong>$1</strong>")
		seg = reItalic.ReplaceAllString(seg, "<em>$1</em>")
		return replaceSingleStar(seg)
	})

	for i, code := range codeSpans {
		escaped = strings.Replace(escaped, "\x00IC"+strconv.Itoa(i)+"\x00", code, 1)
	}
	return escaped
}

// replaceSingleStar turns *text* into <em>text</em> without touching any
// asterisk that is part of a ** run.
func replaceSingleStar(s string) string {
	if !strings.Contains(s, "*") {
		return s
	}
	var b strings.Builder
	i := 0
	for i < len(s) {
		if s[i] == '*' && (i == 0 || s[i-1] != '*') && i+1 < len(s) && s[i+1] != '*' {
			if j := strings.IndexByte(s[i+1:], '*'); j > 0 {
				end := i + 1 + j
				if end+1 >= len(s) || s[end+1] != '*' {
					b.WriteString("<em>")
					b.WriteString(s[i+1 : end])
					b.WriteString("</em>")
					i = end + 1
					continue
				}
			}
		}
		b.WriteByte(s[i])
		i++
	}
	return b.String()
}
