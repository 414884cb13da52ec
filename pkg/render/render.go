// Package render turns final answers into something a terminal or a web page
// can show. Answers are expected to be small HTML snippets but models
// regularly fall back to markdown, so both are accepted.
package render

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

type Format string

const (
	FormatRaw  Format = "raw"
	FormatHTML Format = "html"
	FormatText Format = "text"
)

var ErrUnknownFormat = errors.New("unknown render format")

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatRaw, FormatHTML, FormatText:
		return f, nil
	case "":
		return FormatText, nil
	default:
		return "", errors.Wrap(ErrUnknownFormat, s)
	}
}

var htmlTagPattern = regexp.MustCompile(`(?i)<(p|div|ul|ol|li|strong|em|code|pre|h[1-6]|table|tr|td|th|br|span|a|b|i|blockquote)\b[^>]*>`)

// LooksLikeHTML reports whether s contains at least one common HTML tag.
func LooksLikeHTML(s string) bool {
	return htmlTagPattern.MatchString(s)
}

var md = goldmark.New(goldmark.WithExtensions(extension.GFM))

// MarkdownToHTML converts markdown to an HTML fragment.
func MarkdownToHTML(s string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(s), &buf); err != nil {
		return "", errors.Wrap(err, "could not convert markdown")
	}
	return buf.String(), nil
}

const blockSelector = "p, div, h1, h2, h3, h4, h5, h6, li, tr, pre, blockquote, ul, ol, table"

// HTMLToText strips tags, keeping one line per block element and a dash
// before list items.
func HTMLToText(s string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return "", errors.Wrap(err, "could not parse html")
	}
	doc.Find("script, style").Remove()
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li").Each(func(_ int, sel *goquery.Selection) {
		sel.PrependHtml("- ")
	})
	doc.Find("td, th").Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml(" ")
	})
	doc.Find(blockSelector).Each(func(_ int, sel *goquery.Selection) {
		sel.AppendHtml("\n")
	})
	return normalizeLines(doc.Find("body").Text()), nil
}

// normalizeLines trims every line and collapses runs of blank lines.
func normalizeLines(s string) string {
	var out []string
	blank := false
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// Render converts an answer to f.
func Render(answer string, f Format) (string, error) {
	switch f {
	case FormatRaw:
		return answer, nil
	case FormatHTML:
		if LooksLikeHTML(answer) {
			return answer, nil
		}
		return MarkdownToHTML(answer)
	case FormatText, "":
		html := answer
		if !LooksLikeHTML(answer) {
			var err error
			html, err = MarkdownToHTML(answer)
			if err != nil {
				return "", err
			}
		}
		return HTMLToText(html)
	default:
		return "", errors.Wrap(ErrUnknownFormat, string(f))
	}
}
