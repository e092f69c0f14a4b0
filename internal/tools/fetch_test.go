package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestExtractText(t *testing.T) {
	html := `<html><head><style>body{color:red}</style></head><body>
<script>alert(1)</script>
<h1>Title</h1>
<p>First paragraph.</p>
<p>Second paragraph.</p>
</body></html>`

	got := extractText([]byte(html))
	if strings.Contains(got, "alert") {
		t.Fatalf("script content leaked into output: %q", got)
	}
	if strings.Contains(got, "color:red") {
		t.Fatalf("style content leaked into output: %q", got)
	}
	if !strings.Contains(got, "Title") || !strings.Contains(got, "First paragraph.") {
		t.Fatalf("missing expected text: %q", got)
	}
}

func TestIsSkipTagAndBlockElement(t *testing.T) {
	if !isSkipTag("script") || !isSkipTag("style") {
		t.Fatal("expected script/style to be skip tags")
	}
	if isSkipTag("p") {
		t.Fatal("p should not be a skip tag")
	}
	if !isBlockElement("p") || !isBlockElement("div") {
		t.Fatal("expected p/div to be block elements")
	}
	if isBlockElement("span") {
		t.Fatal("span should not be a block element")
	}
}

func TestCollapseWhitespace(t *testing.T) {
	in := "  one  \n\n\n  two  \n   \nthree\n"
	got := collapseWhitespace(in)
	want := "one\n\ntwo\n\nthree"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestFetchHandlerUsesExternalExtractorStdinMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>raw html</p></body></html>"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{
		Enabled: true,
		Command: "cat",
		Mode:    "stdin",
	})

	args, _ := json.Marshal(FetchArgs{URL: srv.URL, ConvertToText: true})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if !strings.Contains(res.Content[0].Text, "<p>raw html</p>") {
		t.Fatalf("expected stdin-piped body echoed verbatim by cat, got %q", res.Content[0].Text)
	}
}

func TestFetchHandlerUsesExternalExtractorURLMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ignored</body></html>"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{
		Enabled: true,
		Command: "echo {url}",
		Mode:    "url",
	})

	args, _ := json.Marshal(FetchArgs{URL: srv.URL, ConvertToText: true})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if !strings.Contains(res.Content[0].Text, srv.URL) {
		t.Fatalf("expected {url} substitution in extractor output, got %q", res.Content[0].Text)
	}
}

func TestFetchHandlerFallsBackToBuiltinOnExtractorFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body><p>fallback text</p></body></html>"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{
		Enabled:           true,
		Command:           "false",
		Mode:              "stdin",
		FallbackToBuiltin: true,
	})

	args, _ := json.Marshal(FetchArgs{URL: srv.URL, ConvertToText: true})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.IsError {
		t.Fatalf("unexpected tool error: %+v", res.Content)
	}
	if !strings.Contains(res.Content[0].Text, "fallback text") {
		t.Fatalf("expected built-in extraction fallback, got %q", res.Content[0].Text)
	}
}

func TestFetchHandlerReturnsErrorWhenExtractorFailsWithoutFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte("<html><body>ignored</body></html>"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{
		Enabled: true,
		Command: "false",
		Mode:    "stdin",
	})

	args, _ := json.Marshal(FetchArgs{URL: srv.URL, ConvertToText: true})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected a tool error when the extractor fails and fallbackToBuiltin is false")
	}
}

func TestFormatSearchResults(t *testing.T) {
	if got := formatSearchResults(nil); got != "No results found." {
		t.Fatalf("got %q", got)
	}

	got := formatSearchResults([]exaResult{{Title: "Doc", URL: "https://example.com", Text: "body text"}})
	if !strings.Contains(got, "Doc") || !strings.Contains(got, "https://example.com") || !strings.Contains(got, "body text") {
		t.Fatalf("missing expected fields: %q", got)
	}
}

func TestFetchHandlerRejectsNonHTTPScheme(t *testing.T) {
	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{})
	args, _ := json.Marshal(FetchArgs{URL: "ftp://example.com"})
	res, err := h.Handle(context.Background(), args)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.IsError {
		t.Fatal("expected error for non-http(s) scheme")
	}
}

func TestFetchHandlerCachesGET(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("hello from server"))
	}))
	defer srv.Close()

	st := openTestStore(t)
	h := NewFetchHandler(st, TextExtraction{})

	args, _ := json.Marshal(FetchArgs{URL: srv.URL})
	res1, err := h.Handle(context.Background(), args)
	if err != nil || res1.IsError {
		t.Fatalf("first fetch failed: %v, %+v", err, res1)
	}

	res2, err := h.Handle(context.Background(), args)
	if err != nil || res2.IsError {
		t.Fatalf("second fetch failed: %v, %+v", err, res2)
	}
	if hits != 1 {
		t.Fatalf("expected server to be hit once due to caching, got %d hits", hits)
	}
	if res1.Content[0].Text != res2.Content[0].Text {
		t.Fatal("cached response should match original")
	}
}
