// Package source loads raw question dumps: plain text or JSON files, saved
// HTML pages and pages fetched over HTTP.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	readability "github.com/go-shiori/go-readability"
)

// MaxSize bounds the size of a single source file.
const MaxSize = 64 << 20

// Fence lines such as "```json" or "```" are dropped; the content between
// them is kept.
var reFence = regexp.MustCompile("(?m)^[ \t]*```[A-Za-z0-9_-]*[ \t]*\r?$")

// Clean prepares raw text for extraction: it removes a UTF-8 BOM, markdown
// code fence lines and invalid UTF-8 sequences.
func Clean(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = reFence.ReplaceAllString(text, "")
	return strings.ToValidUTF8(text, "\ufffd")
}

// IsHTML reports whether path names a saved web page.
func IsHTML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".xhtml":
		return true
	}
	return false
}

// IsURL reports whether path is an http(s) address.
func IsURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// Load returns the cleaned text of a file or URL. HTML pages are reduced to
// their readable text first.
func Load(ctx context.Context, path string) (string, error) {
	if IsURL(path) {
		return Fetch(ctx, DefaultClient, path)
	}
	return LoadFile(path)
}

// LoadFile is Load for local files.
func LoadFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	if len(data) > MaxSize {
		return "", fmt.Errorf("%s exceeds %d bytes", path, MaxSize)
	}
	if IsHTML(path) {
		text, err := FromHTML(data, path)
		if err != nil {
			return "", fmt.Errorf("%s: %w", path, err)
		}
		return Clean(text), nil
	}
	return Clean(string(data)), nil
}

// FromHTML extracts the readable text of an HTML page. Pages where the
// article heuristics find nothing fall back to the raw markup, which the
// extractor can still scan for objects.
func FromHTML(page []byte, name string) (string, error) {
	u := &url.URL{Scheme: "file", Path: filepath.ToSlash(name)}
	article, err := readability.FromReader(bytes.NewReader(page), u)
	if err != nil {
		return "", fmt.Errorf("extract page text: %w", err)
	}
	if strings.TrimSpace(article.TextContent) == "" {
		return string(page), nil
	}
	return article.TextContent, nil
}

// DefaultClient is used by Load for URLs.
var DefaultClient = &http.Client{Timeout: 30 * time.Second}

// MaxPageSize bounds the body of a fetched page.
const MaxPageSize = 10 << 20

// Fetch downloads a page and returns its cleaned readable text.
func Fetch(ctx context.Context, client *http.Client, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	// Some hosts refuse clients without a browser user agent.
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", rawURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", rawURL, resp.StatusCode)
	}
	if resp.ContentLength > MaxPageSize {
		return "", fmt.Errorf("fetch %s: content length %d exceeds %d bytes", rawURL, resp.ContentLength, MaxPageSize)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxPageSize+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", rawURL, err)
	}
	if len(body) > MaxPageSize {
		return "", fmt.Errorf("fetch %s: body exceeds %d bytes", rawURL, MaxPageSize)
	}

	if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "html") {
		return Clean(string(body)), nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return "", fmt.Errorf("extract page text: %w", err)
	}
	text := article.TextContent
	if strings.TrimSpace(text) == "" {
		text = string(body)
	}
	return Clean(text), nil
}
