package ingest

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestConvert_Text(t *testing.T) {
	path := writeFile(t, "Smith v Jones (2019).txt", "The court held\n\nthat the   contract was void.")

	recs, err := Convert(path, ConvertOptions{Court: "High Court", Year: 2019})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	r := recs[0]
	if r.CaseID != "smith_v_jones_2019" {
		t.Errorf("CaseID = %q, want smith_v_jones_2019", r.CaseID)
	}
	if r.Title != "Smith v Jones (2019)" {
		t.Errorf("Title = %q", r.Title)
	}
	if r.RawText != "The court held that the contract was void." {
		t.Errorf("RawText = %q", r.RawText)
	}
	if r.Court != "High Court" || r.Year != 2019 {
		t.Errorf("Court/Year = %q/%d", r.Court, r.Year)
	}
}

func TestConvert_HTML(t *testing.T) {
	page := `<html><head><title>Doe v Hospital</title><style>p{color:red}</style></head>
<body><h1>Judgment</h1><script>alert("x")</script><p>The surgeon was <b>negligent</b>.</p></body></html>`
	path := writeFile(t, "judgment.html", page)

	recs, err := Convert(path, ConvertOptions{CaseID: "case_777"})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	if recs[0].CaseID != "case_777" || recs[0].Title != "Doe v Hospital" {
		t.Errorf("record = %+v", recs[0])
	}
	text := recs[0].RawText
	if !strings.Contains(text, "Judgment") || !strings.Contains(text, "negligent") {
		t.Errorf("RawText = %q, want visible text", text)
	}
	if strings.Contains(text, "alert") || strings.Contains(text, "color") {
		t.Errorf("RawText = %q, want script and style dropped", text)
	}
}

func TestConvert_ChunksShareCaseID(t *testing.T) {
	path := writeFile(t, "long.txt", strings.Repeat("word ", 100))

	recs, err := Convert(path, ConvertOptions{ChunkSize: 60})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(recs) < 2 {
		t.Fatalf("got %d records, want several chunks", len(recs))
	}
	for i, r := range recs {
		if r.CaseID != "long" {
			t.Errorf("record %d CaseID = %q, want long", i, r.CaseID)
		}
	}
}

func TestConvert_Unsupported(t *testing.T) {
	path := writeFile(t, "brief.docx", "binary")
	if _, err := Convert(path, ConvertOptions{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestConvert_CorruptPDF(t *testing.T) {
	path := writeFile(t, "broken.pdf", "this is not a pdf")
	if _, err := Convert(path, ConvertOptions{}); err == nil {
		t.Fatal("expected error for corrupt pdf")
	}
}

func TestConvert_EmptyText(t *testing.T) {
	path := writeFile(t, "empty.txt", "  \n\t ")
	if _, err := Convert(path, ConvertOptions{}); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestChunk(t *testing.T) {
	text := strings.Repeat("abcd ", 50) // 250 characters
	chunks := Chunk(text, 40)
	var rebuilt []string
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c); n > 40 {
			t.Errorf("chunk %d has %d characters, want <= 40", i, n)
		}
		if strings.HasPrefix(c, " ") || strings.HasSuffix(c, " ") {
			t.Errorf("chunk %d = %q has surrounding spaces", i, c)
		}
		rebuilt = append(rebuilt, c)
	}
	if got := strings.Join(rebuilt, " "); got != strings.TrimSpace(text) {
		t.Errorf("chunks do not reassemble the text:\n%q", got)
	}

	if got := Chunk("", 10); len(got) != 0 {
		t.Errorf("Chunk(\"\") = %v, want none", got)
	}
	if got := Chunk(strings.Repeat("é", 25), 10); len(got) != 3 || got[2] != strings.Repeat("é", 5) {
		t.Errorf("unbroken text chunks = %v", got)
	}
}
