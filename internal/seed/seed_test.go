package seed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/minhvu/shortreel/internal/provider"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFromFile_TextAndMarkdown(t *testing.T) {
	got, err := FromFile(writeFile(t, "idea.txt", "  a fisherman's last net\n\n  pulls up a locked box  \n"))
	if err != nil {
		t.Fatalf("FromFile: %v", err)
	}
	if got != "a fisherman's last net\npulls up a locked box" {
		t.Errorf("got %q", got)
	}

	if _, err := FromFile(writeFile(t, "idea.md", "# Seed\n\nan old clock repairman")); err != nil {
		t.Errorf("markdown rejected: %v", err)
	}
}

func TestFromFile_Validation(t *testing.T) {
	if _, err := FromFile(writeFile(t, "empty.txt", "  \n \n")); provider.KindOf(err) != provider.KindValidation {
		t.Errorf("empty file: %v", err)
	}
	if _, err := FromFile(writeFile(t, "notes.docx", "x")); provider.KindOf(err) != provider.KindValidation {
		t.Errorf("unsupported type: %v", err)
	}
	if _, err := FromFile(filepath.Join(t.TempDir(), "missing.txt")); provider.KindOf(err) != provider.KindValidation {
		t.Errorf("missing file: %v", err)
	}
}

func TestFromURL_ExtractsReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><head><title>x</title><style>p{color:red}</style></head>
<body><nav>menu items</nav>
<article><h1>The Umbrella Seller</h1><p>He sells umbrellas in a city where it never rains.</p>
<script>console.log("skip me")</script></article>
<footer>copyright</footer></body></html>`))
	}))
	defer srv.Close()

	got, err := FromURL(context.Background(), srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("FromURL: %v", err)
	}
	if !strings.Contains(got, "The Umbrella Seller") || !strings.Contains(got, "never rains") {
		t.Errorf("content missing: %q", got)
	}
	for _, banned := range []string{"menu items", "skip me", "color:red", "copyright"} {
		if strings.Contains(got, banned) {
			t.Errorf("non-content leaked: %q in %q", banned, got)
		}
	}
}

func TestFromURL_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := FromURL(context.Background(), srv.URL, srv.Client()); provider.KindOf(err) != provider.KindNetwork {
		t.Errorf("non-200 status: %v", err)
	}
	if _, err := FromURL(context.Background(), "http://127.0.0.1:1", &http.Client{}); provider.KindOf(err) != provider.KindNetwork {
		t.Errorf("unreachable host: %v", err)
	}
}

func TestCleanCapsSize(t *testing.T) {
	long := strings.Repeat("word ", MaxSeedBytes)
	got, err := clean(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > MaxSeedBytes {
		t.Errorf("len = %d", len(got))
	}
	if strings.HasSuffix(got, " ") {
		t.Error("truncation left a trailing space")
	}
}

func TestCleanTruncatesOnRuneBoundary(t *testing.T) {
	// No spaces anywhere, so the cap cut cannot retreat to a word break.
	// The three-byte runes do not divide the cap evenly, which puts the
	// raw cut in the middle of a rune.
	long := strings.Repeat("ộ", MaxSeedBytes)
	got, err := clean(long)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) > MaxSeedBytes {
		t.Errorf("len = %d", len(got))
	}
	if !utf8.ValidString(got) {
		t.Error("truncation split a multi-byte rune")
	}
}
