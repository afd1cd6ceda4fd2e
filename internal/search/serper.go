// Package search provides the Serper web search collaborator.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dossierlabs/dossier/internal/investigation"
	"github.com/dossierlabs/dossier/internal/metrics"
)

const (
	DefaultBaseURL    = "https://google.serper.dev"
	DefaultNumResults = 10
	DefaultTimeout    = 30 * time.Second

	// defaultRate bounds outbound queries; Serper throttles bursty
	// clients well below this.
	defaultRate  = rate.Limit(2)
	defaultBurst = 4
)

// Client searches the web through the Serper API. Transport failures
// degrade to an empty result set: a dead search backend shrinks the
// evidence pool but never aborts an investigation.
type Client struct {
	apiKey     string
	baseURL    string
	numResults int
	country    string
	language   string
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *zap.Logger
}

type serperRequest struct {
	Q   string `json:"q"`
	GL  string `json:"gl"`
	HL  string `json:"hl"`
	Num int    `json:"num"`
}

type serperItem struct {
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`
	Position int    `json:"position"`
}

type serperResponse struct {
	Organic []serperItem `json:"organic"`
	News    []serperItem `json:"news"`
	KnowledgeGraph struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Website     string `json:"website"`
	} `json:"knowledgeGraph"`
}

// NewClient creates a Serper client. An empty apiKey falls back to the
// SERPER_API_KEY environment variable.
func NewClient(apiKey string, log *zap.Logger) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("SERPER_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("serper API key is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Client{
		apiKey:     apiKey,
		baseURL:    DefaultBaseURL,
		numResults: DefaultNumResults,
		country:    "us",
		language:   "en",
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    rate.NewLimiter(defaultRate, defaultBurst),
		log:        log,
	}, nil
}

// WithBaseURL overrides the API endpoint, for tests.
func (c *Client) WithBaseURL(baseURL string) *Client {
	c.baseURL = baseURL
	return c
}

// WithNumResults overrides how many results each query requests.
func (c *Client) WithNumResults(n int) *Client {
	if n > 0 {
		c.numResults = n
	}
	return c
}

// Search runs a web search for the query. The returned slice may be
// empty; it is never an error for a query to find nothing or for the
// backend to be unreachable.
func (c *Client) Search(ctx context.Context, query string) ([]investigation.SearchResult, error) {
	return c.search(ctx, query, "/search")
}

// SearchNews runs a news-specific search.
func (c *Client) SearchNews(ctx context.Context, query string) ([]investigation.SearchResult, error) {
	return c.search(ctx, query, "/news")
}

func (c *Client) search(ctx context.Context, query, endpoint string) ([]investigation.SearchResult, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	body, err := json.Marshal(serperRequest{
		Q:   query,
		GL:  c.country,
		HL:  c.language,
		Num: c.numResults,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal search request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Warn("search request failed", zap.String("query", query), zap.Error(err))
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return []investigation.SearchResult{}, nil
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil || resp.StatusCode != http.StatusOK {
		c.log.Warn("search returned non-success",
			zap.String("query", query),
			zap.Int("status", resp.StatusCode),
		)
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return []investigation.SearchResult{}, nil
	}

	var sr serperResponse
	if err := json.Unmarshal(respBody, &sr); err != nil {
		c.log.Warn("search response malformed", zap.String("query", query), zap.Error(err))
		metrics.SearchesTotal.WithLabelValues("error").Inc()
		return []investigation.SearchResult{}, nil
	}

	now := time.Now()
	var results []investigation.SearchResult

	// Knowledge graph hits lead at full relevance.
	if sr.KnowledgeGraph.Title != "" || sr.KnowledgeGraph.Description != "" {
		title := sr.KnowledgeGraph.Title
		if title == "" {
			title = "Knowledge Graph"
		}
		results = append(results, investigation.SearchResult{
			Query:     query,
			Title:     title,
			Snippet:   sr.KnowledgeGraph.Description,
			URL:       sr.KnowledgeGraph.Website,
			Timestamp: now,
			Relevance: 1.0,
		})
	}

	organic := sr.Organic
	if endpoint == "/news" {
		organic = sr.News
	}
	for _, item := range organic {
		pos := item.Position
		if pos == 0 {
			pos = 10
		}
		results = append(results, investigation.SearchResult{
			Query:     query,
			Title:     item.Title,
			Snippet:   item.Snippet,
			URL:       item.Link,
			Timestamp: now,
			Relevance: float64(pos) / 10,
		})
	}

	metrics.SearchesTotal.WithLabelValues("success").Inc()
	metrics.SearchResultsTotal.Add(float64(len(results)))
	return results, nil
}
