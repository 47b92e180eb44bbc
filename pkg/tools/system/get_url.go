package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	"github.com/minhyannv/toolcall/pkg/progress"
	"github.com/minhyannv/toolcall/pkg/tools"
)

const (
	userAgent        = "toolcall/1.0"
	maxDownloadBytes = 2 << 20
	truncatedMarker  = "... [truncated]"
)

type fetchResult struct {
	URL             string `json:"url"`
	FinalURL        string `json:"final_url,omitempty"`
	StatusCode      int    `json:"status_code"`
	ContentType     string `json:"content_type,omitempty"`
	Title           string `json:"title,omitempty"`
	Content         string `json:"content"`
	ContentLength   int    `json:"content_length"`
	LinesReturned   int    `json:"lines_returned"`
	Truncated       bool   `json:"truncated,omitempty"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

func (s *systemTools) getURL(ctx context.Context, args tools.Args, report *progress.Reporter) (any, error) {
	rawURL := strings.TrimSpace(args.String("url"))
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errors.New("URL must start with http:// or https://")
	}
	for _, name := range []string{"max_length", "max_lines", "timeout"} {
		if args.Int(name) < 0 {
			return nil, fmt.Errorf("%s must not be negative", name)
		}
	}

	report.Start("Fetching URL: " + rawURL)
	start := time.Now()

	timeout := time.Duration(args.Int("timeout")) * time.Second
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	client := *s.client
	if !args.Bool("follow_redirects") {
		client.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	s.ctx.Debugf("[verbose] get_url: url=%s, timeout=%v", rawURL, timeout)
	resp, err := client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("URL fetch timed out after %v", timeout)
		}
		return nil, fmt.Errorf("URL error: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP Error %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	body, bodyTruncated, err := readBody(resp.Body, maxDownloadBytes)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	result := fetchResult{
		URL:           rawURL,
		StatusCode:    resp.StatusCode,
		ContentType:   resp.Header.Get("Content-Type"),
		ContentLength: len(body),
		Truncated:     bodyTruncated,
	}
	if final := resp.Request.URL.String(); final != rawURL {
		result.FinalURL = final
	}

	content := string(body)
	if isHTML(result.ContentType, body) {
		title, text, err := htmlToText(body)
		if err != nil {
			return nil, err
		}
		result.Title = title
		content = text
	}

	content, cut := limitContent(content, args.Int("max_length"), args.Int("max_lines"))
	result.Content = content
	result.Truncated = result.Truncated || cut
	result.LinesReturned = strings.Count(content, "\n") + 1
	result.ExecutionTimeMs = time.Since(start).Milliseconds()

	report.Result(fmt.Sprintf("Fetched %d bytes (%d lines)", result.ContentLength, result.LinesReturned))
	return result, nil
}

// readBody reads at most limit bytes and reports whether more were available.
func readBody(r io.Reader, limit int64) ([]byte, bool, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, false, err
	}
	if int64(len(data)) > limit {
		return data[:limit], true, nil
	}
	return data, false, nil
}

func isHTML(contentType string, body []byte) bool {
	if contentType == "" {
		contentType = http.DetectContentType(body)
	}
	return strings.Contains(strings.ToLower(contentType), "html")
}

// htmlToText returns the page title and the visible text, one block per line.
func htmlToText(body []byte) (string, string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", "", fmt.Errorf("parse html: %w", err)
	}
	title := normalizeWhitespace(doc.Find("title").First().Text())
	doc.Find("script, style, noscript, template, svg, head").Remove()
	doc.Find("br, p, div, li, tr, h1, h2, h3, h4, h5, h6, pre, blockquote, section, article").AfterHtml("\n")

	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if text := normalizeWhitespace(line); text != "" {
			lines = append(lines, text)
		}
	}
	return title, strings.Join(lines, "\n"), nil
}

func normalizeWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			space = true
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	return b.String()
}

// limitContent applies the character limit, then the line limit. Zero means
// no limit.
func limitContent(content string, maxLength, maxLines int) (string, bool) {
	cut := false
	if maxLength > 0 {
		if runes := []rune(content); len(runes) > maxLength {
			content = string(runes[:maxLength]) + truncatedMarker
			cut = true
		}
	}
	if maxLines > 0 {
		if lines := strings.Split(content, "\n"); len(lines) > maxLines {
			content = strings.Join(lines[:maxLines], "\n") + "\n" + truncatedMarker
			cut = true
		}
	}
	return content, cut
}
