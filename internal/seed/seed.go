// Package seed turns files and web pages into seed-idea text for the
// ideation stage. Plain text and markdown are read verbatim, PDFs are
// flattened to text, and URLs are fetched and stripped to their readable
// content.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"

	"github.com/minhvu/shortreel/internal/provider"
)

// MaxSeedBytes caps how much text a single seed may carry. Larger sources
// are truncated, not rejected; the ideation template only needs the gist.
const MaxSeedBytes = 16 * 1024

// FromFile extracts seed text from a local file. Supported extensions are
// .txt, .md, and .pdf; anything else is a validation error, as is an empty
// result.
func FromFile(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return "", provider.Wrap(provider.KindValidation, err, "reading seed file")
		}
		return clean(string(data))
	case ".pdf":
		return fromPDF(path)
	default:
		return "", provider.Errf(provider.KindValidation, "unsupported seed file type %q (use .txt, .md, or .pdf)", filepath.Ext(path))
	}
}

func fromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", provider.Wrap(provider.KindValidation, err, "opening PDF")
	}
	defer f.Close()

	reader, err := r.GetPlainText()
	if err != nil {
		return "", provider.Wrap(provider.KindValidation, err, "extracting PDF text")
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, reader); err != nil {
		return "", fmt.Errorf("reading PDF text: %w", err)
	}
	return clean(buf.String())
}

// FromURL fetches a page and extracts its readable text. Script, style, and
// markup are dropped; block boundaries become line breaks.
func FromURL(ctx context.Context, rawURL string, client *http.Client) (string, error) {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", provider.Wrap(provider.KindValidation, err, "invalid seed URL")
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", provider.Wrap(provider.KindNetwork, err, "fetching seed URL")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", provider.Errf(provider.KindNetwork, "seed URL returned status %d", resp.StatusCode)
	}
	text, err := extractText(resp.Body)
	if err != nil {
		return "", err
	}
	return clean(text)
}

// extractText walks the HTML tree collecting text nodes, skipping script,
// style, and other non-content subtrees.
func extractText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", provider.Wrap(provider.KindValidation, err, "parsing seed page")
	}

	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "nav", "footer":
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				sb.WriteString(t)
				sb.WriteString(" ")
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElement(n.Data) {
			sb.WriteString("\n")
		}
	}
	walk(doc)
	return sb.String(), nil
}

func blockElement(tag string) bool {
	switch tag {
	case "p", "div", "section", "article", "li", "br", "h1", "h2", "h3", "h4", "h5", "h6", "blockquote", "pre", "tr":
		return true
	}
	return false
}

// clean normalizes whitespace, enforces the size cap, and rejects empty
// seeds.
func clean(text string) (string, error) {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if t := strings.TrimSpace(line); t != "" {
			out = append(out, t)
		}
	}
	result := strings.Join(out, "\n")
	if result == "" {
		return "", provider.Errf(provider.KindValidation, "seed source contains no text")
	}
	if len(result) > MaxSeedBytes {
		result = result[:MaxSeedBytes]
		if i := strings.LastIndexByte(result, ' '); i > 0 {
			result = result[:i]
		} else {
			// No space near the cut; back off to a rune boundary so the
			// truncation never leaves a broken UTF-8 sequence.
			for len(result) > 0 {
				r, size := utf8.DecodeLastRuneInString(result)
				if r != utf8.RuneError || size > 1 {
					break
				}
				result = result[:len(result)-1]
			}
		}
	}
	return result, nil
}
