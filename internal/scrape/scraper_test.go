package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const samplePage = `<!DOCTYPE html>
<html>
<head>
<title>Jane Doe - Acme Corp</title>
<style>body { color: red; }</style>
<script>trackVisitor();</script>
</head>
<body>
<nav><a href="/">Home</a></nav>
<article>
<h1>Jane Doe</h1>
<p>Jane Doe has served as CEO of Acme Corp since 2019.</p>
<p>She previously founded Beta&nbsp;LLC.</p>
</article>
<footer>Copyright 2026</footer>
</body>
</html>`

func TestFetchExtractsText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "Mozilla") {
			t.Errorf("expected desktop user agent, got %q", ua)
		}
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	result := New(nil).Fetch(context.Background(), server.URL)
	if !result.Success {
		t.Fatalf("expected success, got error %q", result.Error)
	}
	if result.Title != "Jane Doe - Acme Corp" {
		t.Errorf("unexpected title %q", result.Title)
	}
	if !strings.Contains(result.Text, "CEO of Acme Corp since 2019") {
		t.Errorf("text missing article content: %q", result.Text)
	}
	if !strings.Contains(result.Text, "Beta LLC") {
		t.Errorf("entities should decode, got %q", result.Text)
	}
	for _, gone := range []string{"trackVisitor", "color: red", "Copyright 2026"} {
		if strings.Contains(result.Text, gone) {
			t.Errorf("stripped content leaked through: %q", gone)
		}
	}
}

func TestFetchBlockedDomain(t *testing.T) {
	result := New(nil).Fetch(context.Background(), "https://www.linkedin.com/in/janedoe")
	if result.Success {
		t.Fatal("blocked domain must not be fetched")
	}
	if result.Error != "domain blocks automated access" {
		t.Errorf("unexpected error %q", result.Error)
	}
}

func TestFetchTruncates(t *testing.T) {
	long := strings.Repeat("word ", 3000)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body><p>" + long + "</p></body></html>"))
	}))
	defer server.Close()

	result := New(nil).Fetch(context.Background(), server.URL)
	if !result.Success {
		t.Fatalf("Fetch: %s", result.Error)
	}
	if len(result.Text) > DefaultMaxLength+3 {
		t.Errorf("text should truncate at %d, got %d", DefaultMaxLength, len(result.Text))
	}
	if !strings.HasSuffix(result.Text, "...") {
		t.Error("truncated text should end with ellipsis")
	}
}

func TestFetchNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	result := New(nil).Fetch(context.Background(), server.URL)
	if result.Success {
		t.Fatal("403 must not be success")
	}
}

func TestBlocked(t *testing.T) {
	cases := map[string]bool{
		"https://www.facebook.com/janedoe": true,
		"https://x.com/janedoe":            true,
		"https://mobile.twitter.com/jd":    true,
		"https://example.com/x.com":        false,
		"https://notx.com/page":            false,
	}
	for u, want := range cases {
		if got := blocked(u); got != want {
			t.Errorf("blocked(%q) = %v, want %v", u, got, want)
		}
	}
}
