package loader

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"sort"
	"strings"

	"content-server/internal/models"
)

type parsed struct {
	text  string
	title string
}

func (l *Loader) parse(ctx context.Context, ct models.ContentType, data []byte) (parsed, error) {
	switch ct {
	case models.ContentText:
		return parsed{text: string(data)}, nil
	case models.ContentMarkdown:
		text := string(data)
		return parsed{text: text, title: markdownTitle(text)}, nil
	case models.ContentHTML:
		raw := string(data)
		return parsed{text: stripHTML(raw), title: htmlTitle(raw)}, nil
	case models.ContentJSON:
		text, err := jsonText(data)
		return parsed{text: text}, err
	case models.ContentVTT:
		return parsed{text: StripVTT(string(data))}, nil
	case models.ContentPDF:
		text, err := pdfText(ctx, l.runner, data)
		return parsed{text: text}, err
	case models.ContentDOCX:
		return docxText(data)
	default:
		return parsed{}, ErrUnsupported
	}
}

var (
	vttTimestamp  = regexp.MustCompile(`(?m)^[ \t]*\d{2}:\d{2}:\d{2}\.\d{3}\s+-->\s+\d{2}:\d{2}:\d{2}\.\d{3}.*$`)
	vttSeparator  = regexp.MustCompile(`(?m)^---\s*$`)
	multiNewlines = regexp.MustCompile(`\n{3,}`)
)

// StripVTT keeps only the caption text. Everything up to the first "---"
// line is header; cue timing lines are dropped.
func StripVTT(content string) string {
	content = strings.ReplaceAll(content, "\r\n", "\n")

	if loc := vttSeparator.FindStringIndex(content); loc != nil {
		content = content[loc[1]:]
	} else {
		content = strings.TrimPrefix(strings.TrimLeft(content, "\uFEFF"), "WEBVTT")
	}

	content = vttTimestamp.ReplaceAllString(content, "")
	content = multiNewlines.ReplaceAllString(content, "\n\n")
	return strings.TrimSpace(content)
}

// Pre-compiled regular expressions for HTML parsing.
var (
	titleTag          = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	scriptTag         = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleTag          = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	noscriptTag       = regexp.MustCompile(`(?is)<noscript[^>]*>.*?</noscript>`)
	headTag           = regexp.MustCompile(`(?is)<head[^>]*>.*?</head>`)
	htmlComments      = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockElements     = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)>`)
	openBlockElements = regexp.MustCompile(`(?i)<(p|div|h[1-6]|li|tr|blockquote|pre|table|section|article)[^>]*>`)
	breakTags         = regexp.MustCompile(`(?i)<(br|hr)\s*/?>`)
	allTags           = regexp.MustCompile(`<[^>]+>`)
	multiSpaces       = regexp.MustCompile(`[ \t]+`)
)

func htmlTitle(content string) string {
	if m := titleTag.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(html.UnescapeString(m[1]))
	}
	return ""
}

func stripHTML(content string) string {
	for _, re := range []*regexp.Regexp{scriptTag, styleTag, noscriptTag, headTag, htmlComments} {
		content = re.ReplaceAllString(content, "")
	}

	content = openBlockElements.ReplaceAllString(content, "\n")
	content = blockElements.ReplaceAllString(content, "\n")
	content = breakTags.ReplaceAllString(content, "\n")
	content = allTags.ReplaceAllString(content, "")
	content = html.UnescapeString(content)
	content = multiSpaces.ReplaceAllString(content, " ")

	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

func markdownTitle(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(strings.TrimPrefix(line, "#"))
		}
	}
	return ""
}

// jsonText flattens every string value of a JSON document, one per line,
// walking object keys in sorted order.
func jsonText(data []byte) (string, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}

	var out []string
	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case string:
			if s := strings.TrimSpace(t); s != "" {
				out = append(out, s)
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		}
	}
	walk(v)

	return strings.Join(out, "\n"), nil
}

// documentXML represents the structure of word/document.xml.
type documentXML struct {
	Body struct {
		Paragraphs []paragraph `xml:"p"`
	} `xml:"body"`
}

type paragraph struct {
	Runs []run `xml:"r"`
}

type run struct {
	Text []textElement `xml:"t"`
}

type textElement struct {
	Content string `xml:",chardata"`
}

type coreXML struct {
	Title string `xml:"title"`
}

func docxText(data []byte) (parsed, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return parsed{}, fmt.Errorf("invalid docx archive: %w", err)
	}

	var out parsed
	for _, file := range reader.File {
		switch file.Name {
		case "word/document.xml":
			content, err := readZipFile(file)
			if err != nil {
				return parsed{}, err
			}
			var doc documentXML
			if err := xml.Unmarshal(content, &doc); err != nil {
				return parsed{}, fmt.Errorf("invalid document.xml: %w", err)
			}
			var b strings.Builder
			for i, para := range doc.Body.Paragraphs {
				if i > 0 {
					b.WriteString("\n")
				}
				for _, r := range para.Runs {
					for _, t := range r.Text {
						b.WriteString(t.Content)
					}
				}
			}
			out.text = strings.TrimSpace(b.String())
		case "docProps/core.xml":
			content, err := readZipFile(file)
			if err != nil {
				continue
			}
			var core coreXML
			if err := xml.Unmarshal(content, &core); err == nil {
				out.title = strings.TrimSpace(core.Title)
			}
		}
	}
	return out, nil
}

func readZipFile(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", file.Name, err)
	}
	defer rc.Close()

	content, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file.Name, err)
	}
	return content, nil
}
