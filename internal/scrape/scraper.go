// Package scrape fetches web pages and reduces them to plain text for
// deeper extraction passes.
package scrape

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultMaxLength = 5000

	// Desktop UA; bare Go user agents are refused by most publishers.
	userAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) " +
		"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// blockedDomains refuse automated access outright; skipping them saves
// a timeout per URL.
var blockedDomains = []string{
	"facebook.com",
	"instagram.com",
	"twitter.com",
	"x.com",
	"linkedin.com",
}

var (
	containerRes = []*regexp.Regexp{
		regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script>`),
		regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style>`),
		regexp.MustCompile(`(?is)<nav\b[^>]*>.*?</nav>`),
		regexp.MustCompile(`(?is)<footer\b[^>]*>.*?</footer>`),
		regexp.MustCompile(`(?is)<header\b[^>]*>.*?</header>`),
	}
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{2,}`)
)

// Result is the plain-text content of one fetched page.
type Result struct {
	URL     string
	Title   string
	Text    string
	Success bool
	Error   string
}

// Scraper fetches pages over HTTP with a bounded response size.
type Scraper struct {
	httpClient *http.Client
	maxLength  int
	log        *zap.Logger
}

func New(log *zap.Logger) *Scraper {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scraper{
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxLength:  DefaultMaxLength,
		log:        log,
	}
}

// Fetch retrieves a page and strips it to text. Failures are reported
// in the Result, not as errors; a dead page is ordinary during an
// investigation.
func (s *Scraper) Fetch(ctx context.Context, pageURL string) Result {
	if blocked(pageURL) {
		return Result{URL: pageURL, Error: "domain blocks automated access"}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return Result{URL: pageURL, Error: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		s.log.Debug("scrape failed", zap.String("url", pageURL), zap.Error(err))
		return Result{URL: pageURL, Error: fmt.Sprintf("fetch: %v", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{URL: pageURL, Error: fmt.Sprintf("status %d", resp.StatusCode)}
	}

	// Read at most 1MB; pages past that are never worth it.
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{URL: pageURL, Error: fmt.Sprintf("read body: %v", err)}
	}

	html := string(body)
	title := ""
	if m := titleRe.FindStringSubmatch(html); m != nil {
		title = strings.TrimSpace(m[1])
	}

	text := normalize(html)
	if len(text) > s.maxLength {
		// Back up to a rune boundary so multi-byte text is not split.
		cut := s.maxLength
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}
		text = text[:cut] + "..."
	}

	return Result{URL: pageURL, Title: title, Text: text, Success: true}
}

func blocked(pageURL string) bool {
	u, err := url.Parse(pageURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(u.Hostname())
	for _, d := range blockedDomains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

// normalize strips markup and collapses whitespace.
func normalize(html string) string {
	text := html
	for _, re := range containerRes {
		text = re.ReplaceAllString(text, " ")
	}
	text = tagRe.ReplaceAllString(text, "\n")

	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.TrimSpace(spaceRe.ReplaceAllString(line, " "))
		if line != "" {
			kept = append(kept, line)
		}
	}
	return blankRe.ReplaceAllString(strings.Join(kept, "\n"), "\n")
}
