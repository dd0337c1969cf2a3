package htmlutil

import (
	"bytes"
	"context"
	"regexp"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/html"
)

var tracer = otel.Tracer("hwtrack.lib.htmlutil")

func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	switch node.Type {
	case html.TextNode:
		buffer.WriteString(node.Data)
		return
	case html.ElementNode:
		if node.Data == "script" || node.Data == "style" {
			return
		}
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
	if node.Type == html.ElementNode && blockElements[node.Data] {
		buffer.WriteByte('\n')
	}
}

var innerWhitespace = regexp.MustCompile(`[ \t\p{Zs}]+`)
var repeatedNewlines = regexp.MustCompile(`\n\s*\n+`)

func removeNonPrintable(s string) string {
	newStr := strings.Builder{}
	for _, c := range s {
		if c == '\n' || unicode.IsPrint(c) {
			newStr.WriteRune(c)
		}
	}
	return newStr.String()
}

// PlainText renders an HTML fragment as plain text, block elements become line breaks
// and runs of whitespace are collapsed. Malformed markup is rendered best effort.
func PlainText(fragment string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}

	var buffer bytes.Buffer
	for _, n := range doc.Selection.Nodes {
		getTextRecursive(n, &buffer)
	}

	text := strings.ReplaceAll(buffer.String(), "\r\n", "\n")
	text = innerWhitespace.ReplaceAllString(text, " ")
	text = removeNonPrintable(text)

	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	text = strings.Join(lines, "\n")
	text = repeatedNewlines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}

// InlineScripts returns the bodies of every <script> element without a src
// attribute, in document order.
func InlineScripts(ctx context.Context, document string) ([]string, error) {
	_, span := tracer.Start(ctx, "InlineScripts")
	defer span.End()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to parse document")
		return nil, err
	}

	scripts := []string{}
	doc.Find("script:not([src])").Each(func(_ int, s *goquery.Selection) {
		scripts = append(scripts, s.Text())
	})
	span.SetAttributes(attribute.Int("count", len(scripts)))

	return scripts, nil
}
