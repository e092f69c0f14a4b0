package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/xonecas/niffler/internal/mcp"
	"github.com/xonecas/niffler/internal/store"
	"golang.org/x/net/html"
)

// TextExtraction configures the external text-extraction command fetch uses
// in place of the built-in HTML stripper. Mirrors internal/config.TextExtraction's
// field names; kept separate so internal/tools does not import internal/config.
type TextExtraction struct {
	Enabled           bool
	Command           string
	Mode              string // url, stdin
	FallbackToBuiltin bool
}

var allowedFetchMethods = map[string]bool{
	"GET": true, "POST": true, "PUT": true, "PATCH": true, "DELETE": true, "HEAD": true,
}

const defaultFetchMaxSize = 1 << 20 // 1 MiB

// FetchArgs represents arguments to the fetch tool.
type FetchArgs struct {
	URL           string            `json:"url"`
	Method        string            `json:"method,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	Body          string            `json:"body,omitempty"`
	Timeout       int               `json:"timeout,omitempty"` // seconds
	MaxSize       int               `json:"maxSize,omitempty"` // bytes
	ConvertToText bool              `json:"convertToText,omitempty"`
}

func NewFetchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "fetch",
		Description: `HTTP(S) client restricted to http/https schemes. On HTML responses with convertToText, text is extracted with script/style/noscript/iframe/object/embed stripped and block elements turned into line breaks. Results are cached by URL.`,
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"url":           {"type": "string", "description": "http(s) URL to fetch"},
				"method":        {"type": "string", "enum": ["GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"]},
				"headers":       {"type": "object", "additionalProperties": {"type": "string"}},
				"body":          {"type": "string"},
				"timeout":       {"type": "integer", "description": "Seconds, default 15"},
				"maxSize":       {"type": "integer", "description": "Bytes, default 1048576"},
				"convertToText": {"type": "boolean", "description": "Strip HTML to plain text"}
			},
			"required": ["url"]
		}`),
		Kind: mcp.KindBuiltin,
	}
}

// FetchHandler handles fetch tool calls.
type FetchHandler struct {
	cache          *store.Store
	textExtraction TextExtraction
}

// NewFetchHandler creates a handler for the fetch tool. textExtraction is
// the zero value to use only the built-in HTML-to-text fallback.
func NewFetchHandler(cache *store.Store, textExtraction TextExtraction) *FetchHandler {
	return &FetchHandler{cache: cache, textExtraction: textExtraction}
}

func (h *FetchHandler) Handle(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
	var args FetchArgs
	if err := json.Unmarshal(arguments, &args); err != nil {
		return toolError("Invalid arguments: %v", err), nil
	}
	if args.URL == "" {
		return toolError("url is required"), nil
	}
	if !strings.HasPrefix(args.URL, "http://") && !strings.HasPrefix(args.URL, "https://") {
		return toolError("url scheme must be http or https"), nil
	}

	method := strings.ToUpper(args.Method)
	if method == "" {
		method = "GET"
	}
	if !allowedFetchMethods[method] {
		return toolError("method %q is not allowed", method), nil
	}

	maxSize := args.MaxSize
	if maxSize <= 0 {
		maxSize = defaultFetchMaxSize
	}
	timeout := 15 * time.Second
	if args.Timeout > 0 {
		timeout = time.Duration(args.Timeout) * time.Second
	}

	cacheKey := method + " " + args.URL
	if method == "GET" && args.Body == "" {
		if cached, ok := h.cache.GetFetch(cacheKey); ok {
			log.Debug().Str("url", args.URL).Msg("fetch cache hit")
			return toolText(cached), nil
		}
	}

	client := &http.Client{Timeout: timeout}
	var bodyReader io.Reader
	if args.Body != "" {
		bodyReader = strings.NewReader(args.Body)
	}
	req, err := http.NewRequestWithContext(ctx, method, args.URL, bodyReader)
	if err != nil {
		return toolError("bad request: %v", err), nil
	}
	req.Header.Set("User-Agent", "niffler/0.1")
	req.Header.Set("Accept", "text/html, text/plain;q=0.9, */*;q=0.5")
	for k, v := range args.Headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return toolError("fetch failed: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, int64(maxSize)))
	if err != nil {
		return toolError("read failed: %v", err), nil
	}
	if resp.StatusCode >= 400 {
		return toolError("HTTP %d: %s\n%s", resp.StatusCode, resp.Status, string(body)), nil
	}

	contentType := resp.Header.Get("Content-Type")
	text := string(body)
	if args.ConvertToText && strings.Contains(contentType, "text/html") {
		if h.textExtraction.Enabled && h.textExtraction.Command != "" {
			extracted, err := h.runExternalExtractor(ctx, args.URL, body)
			switch {
			case err == nil:
				text = extracted
			case h.textExtraction.FallbackToBuiltin:
				log.Warn().Err(err).Str("url", args.URL).Msg("external text extractor failed, falling back to built-in")
				text = extractText(body)
			default:
				return toolError("text extraction command failed: %v", err), nil
			}
		} else {
			text = extractText(body)
		}
	}

	if method == "GET" && args.Body == "" {
		h.cache.SetFetch(cacheKey, text)
	}
	return toolText(text), nil
}

// runExternalExtractor runs the configured extractor command and returns its
// stdout as extracted text. In URL mode the command receives the fetched
// URL via {url} substitution and does its own fetching/rendering; in stdin
// mode the already-fetched response body is piped to the command's stdin.
func (h *FetchHandler) runExternalExtractor(ctx context.Context, url string, body []byte) (string, error) {
	parts := strings.Fields(h.textExtraction.Command)
	if len(parts) == 0 {
		return "", fmt.Errorf("textExtraction.command is empty")
	}

	args := make([]string, len(parts)-1)
	for i, p := range parts[1:] {
		args[i] = strings.ReplaceAll(p, "{url}", url)
	}

	cmd := exec.CommandContext(ctx, parts[0], args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if h.textExtraction.Mode == "stdin" {
		cmd.Stdin = bytes.NewReader(body)
	}

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// isSkipTag returns true for tags whose content should be suppressed.
func isSkipTag(tag string) bool {
	switch tag {
	case "script", "style", "noscript", "iframe", "object", "embed":
		return true
	}
	return false
}

// extractText parses HTML and returns visible text content, stripping
// non-content elements and turning block elements into line breaks.
func extractText(data []byte) string {
	tokenizer := html.NewTokenizer(bytes.NewReader(data))
	var b strings.Builder
	skip := 0

	for {
		tt := tokenizer.Next()
		if tt == html.ErrorToken {
			return collapseWhitespace(b.String())
		}
		tn, _ := tokenizer.TagName()
		tag := string(tn)

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			if isSkipTag(tag) {
				skip++
			}
			if isBlockElement(tag) && b.Len() > 0 {
				b.WriteByte('\n')
			}
		case html.EndTagToken:
			if isSkipTag(tag) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(tokenizer.Text())
			}
		}
	}
}

func isBlockElement(tag string) bool {
	switch tag {
	case "p", "div", "br", "h1", "h2", "h3", "h4", "h5", "h6",
		"li", "tr", "td", "th", "blockquote", "pre", "hr",
		"header", "footer", "section", "article", "nav", "main":
		return true
	}
	return false
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	var out []string
	blanks := 0
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			blanks++
			if blanks <= 1 {
				out = append(out, "")
			}
			continue
		}
		blanks = 0
		out = append(out, trimmed)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

// --- Supplemented: web search, kept from the teacher's Exa-backed tool ---

type WebSearchArgs struct {
	Query          string   `json:"query"`
	NumResults     int      `json:"num_results,omitempty"`
	Type           string   `json:"type,omitempty"`
	IncludeDomains []string `json:"include_domains,omitempty"`
}

type exaSearchRequest struct {
	Query          string            `json:"query"`
	Type           string            `json:"type"`
	NumResults     int               `json:"numResults"`
	Contents       exaSearchContents `json:"contents"`
	IncludeDomains []string          `json:"includeDomains,omitempty"`
}

type exaSearchContents struct {
	Text exaTextOptions `json:"text"`
}

type exaTextOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type exaSearchResponse struct {
	Results []exaResult `json:"results"`
}

type exaResult struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Text          string `json:"text"`
	PublishedDate string `json:"publishedDate,omitempty"`
}

func NewWebSearchTool() mcp.Tool {
	return mcp.Tool{
		Name:        "webSearch",
		Description: "Search the web using Exa AI. Use this to look up documentation, APIs, libraries, or current information. Results are cached.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"query":           {"type": "string"},
				"num_results":     {"type": "integer", "description": "Default: 5"},
				"type":            {"type": "string", "enum": ["auto", "fast", "deep"]},
				"include_domains": {"type": "array", "items": {"type": "string"}}
			},
			"required": ["query"]
		}`),
		Kind: mcp.KindBuiltin,
	}
}

const exaDefaultEndpoint = "https://api.exa.ai/search"

// NewWebSearchHandler creates a handler for the webSearch tool. endpoint ""
// uses the Exa default.
func NewWebSearchHandler(cache *store.Store, apiKey, endpoint string) mcp.ToolHandler {
	if endpoint == "" {
		endpoint = exaDefaultEndpoint
	}
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, arguments json.RawMessage) (*mcp.ToolResult, error) {
		var args WebSearchArgs
		if err := json.Unmarshal(arguments, &args); err != nil {
			return toolError("Invalid arguments: %v", err), nil
		}
		if args.Query == "" {
			return toolError("query is required"), nil
		}
		if apiKey == "" {
			return toolError("Exa AI API key not configured (set its apiEnvVar in config)"), nil
		}
		if args.NumResults <= 0 {
			args.NumResults = 5
		}
		if args.Type == "" {
			args.Type = "auto"
		}

		exactKey := fmt.Sprintf("%s|n=%d|t=%s|d=%s",
			args.Query, args.NumResults, args.Type, strings.Join(args.IncludeDomains, ","))

		if cached, ok := cache.GetSearch(exactKey); ok {
			log.Debug().Str("query", args.Query).Msg("webSearch exact cache hit")
			return toolText(cached), nil
		}
		if cached, ok := cache.SearchCachedContent(args.Query); ok {
			log.Debug().Str("query", args.Query).Msg("webSearch content cache hit")
			return toolText(cached), nil
		}

		body := exaSearchRequest{
			Query:          args.Query,
			Type:           args.Type,
			NumResults:     args.NumResults,
			Contents:       exaSearchContents{Text: exaTextOptions{MaxCharacters: 2000}},
			IncludeDomains: args.IncludeDomains,
		}
		bodyJSON, err := json.Marshal(body)
		if err != nil {
			return toolError("marshal failed: %v", err), nil
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyJSON))
		if err != nil {
			return toolError("request failed: %v", err), nil
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", apiKey)

		resp, err := client.Do(req)
		if err != nil {
			return toolError("search failed: %v", err), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return toolError("read response failed: %v", err), nil
		}
		if resp.StatusCode >= 400 {
			return toolError("Exa API error %d: %s", resp.StatusCode, string(respBody)), nil
		}

		var exaResp exaSearchResponse
		if err := json.Unmarshal(respBody, &exaResp); err != nil {
			return toolError("parse response failed: %v", err), nil
		}

		result := formatSearchResults(exaResp.Results)
		cache.SetSearch(exactKey, result)
		return toolText(result), nil
	}
}

func formatSearchResults(results []exaResult) string {
	if len(results) == 0 {
		return "No results found."
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d result(s):\n", len(results))
	for i, r := range results {
		fmt.Fprintf(&b, "\n--- %d. %s ---\n", i+1, r.Title)
		fmt.Fprintf(&b, "URL: %s\n", r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate)
		}
		if r.Text != "" {
			b.WriteString(r.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}
