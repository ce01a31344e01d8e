package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/advocadabra/scr/internal/corpus"
)

// DefaultChunkSize is the maximum number of characters per record.
const DefaultChunkSize = 2000

// ErrUnsupportedFormat is returned for file types Convert cannot read.
var ErrUnsupportedFormat = errors.New("unsupported document format")

// ConvertOptions controls how a document becomes case records.
type ConvertOptions struct {
	// CaseID overrides the ID derived from the file name.
	CaseID    string
	ChunkSize int
	Court     string
	Year      int
	LegalArea string
}

// Convert extracts the text of the document at path and splits it into
// records that share one case_id.
func Convert(path string, opts ConvertOptions) ([]corpus.CaseRecord, error) {
	text, title, err := extract(path)
	if err != nil {
		return nil, err
	}
	if title == "" {
		title = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	caseID := opts.CaseID
	if caseID == "" {
		caseID = slug(strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)))
	}
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	chunks := Chunk(text, size)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%s: no text extracted", path)
	}
	records := make([]corpus.CaseRecord, len(chunks))
	for i, c := range chunks {
		records[i] = corpus.CaseRecord{
			CaseID:    caseID,
			Title:     title,
			RawText:   c,
			Court:     opts.Court,
			Year:      opts.Year,
			LegalArea: opts.LegalArea,
		}
	}
	return records, nil
}

func extract(path string) (text, title string, err error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		text, err = extractPDF(path)
	case ".html", ".htm":
		var b []byte
		if b, err = os.ReadFile(path); err == nil {
			text, title, err = extractHTML(bytes.NewReader(b))
		}
	case ".txt", ".md", ".text", "":
		var b []byte
		b, err = os.ReadFile(path)
		text = string(b)
	default:
		return "", "", fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return "", "", fmt.Errorf("reading %s: %w", path, err)
	}
	return text, title, nil
}

func extractPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// extractHTML returns the visible text and the <title> of an HTML page.
func extractHTML(r io.Reader) (string, string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", "", err
	}

	var (
		sb    strings.Builder
		title string
		walk  func(n *html.Node)
	)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head":
				if n.Data == "head" {
					title = findTitle(n)
				}
				return
			}
		}
		if n.Type == html.TextNode {
			if s := strings.TrimSpace(n.Data); s != "" {
				sb.WriteString(s)
				sb.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String(), title, nil
}

func findTitle(n *html.Node) string {
	if n.Type == html.ElementNode && n.Data == "title" && n.FirstChild != nil {
		return strings.TrimSpace(n.FirstChild.Data)
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := findTitle(c); t != "" {
			return t
		}
	}
	return ""
}

// Chunk collapses whitespace in text and splits it into pieces of at most
// size characters, breaking at a space when one falls in the second half of
// the window.
func Chunk(text string, size int) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= size {
			chunks = append(chunks, string(runes))
			break
		}
		cut := size
		for i := size; i > size/2; i-- {
			if runes[i] == ' ' {
				cut = i
				break
			}
		}
		chunks = append(chunks, strings.TrimSpace(string(runes[:cut])))
		runes = runes[cut:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	return chunks
}

// slug lowercases s and replaces runs of other characters with "_".
func slug(s string) string {
	var sb strings.Builder
	underscore := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			sb.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && sb.Len() > 0 {
			sb.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(sb.String(), "_")
}
