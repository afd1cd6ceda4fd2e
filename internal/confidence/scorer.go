// Package confidence scores evidence by the trustworthiness of its sources.
//
// Sources are classified into three tiers by domain and a finding's
// confidence is seeded from its best source, with a small bonus for
// independent cross-referencing. Classification is pure and memoised
// per URL, so one Scorer may be shared read-heavy across investigations.
package confidence

import (
	"math"
	"net/url"
	"strings"
	"sync"
)

// Tier is a source's trust classification. Lower is more trustworthy.
type Tier int

const (
	Tier1 Tier = 1 // official records, wire services, major press
	Tier2 Tier = 2 // reputable journalism, general references
	Tier3 Tier = 3 // social media, blogs, everything else
)

// Base confidence per tier.
const (
	tier1Base = 0.85
	tier2Base = 0.60
	tier3Base = 0.30
)

// crossRefBonus is added per additional distinct domain, capped at crossRefCap.
const (
	crossRefBonus = 0.10
	crossRefCap   = 0.15
)

var tier1Domains = map[string]struct{}{
	// Government & official
	"sec.gov": {}, "justice.gov": {}, "fbi.gov": {}, "courts.gov": {},
	"state.gov": {}, "treasury.gov": {}, "ftc.gov": {},
	// Wire services
	"reuters.com": {}, "apnews.com": {}, "afp.com": {},
	// Major news
	"nytimes.com": {}, "washingtonpost.com": {}, "wsj.com": {},
	"bbc.com": {}, "bbc.co.uk": {}, "theguardian.com": {},
	"ft.com": {}, "economist.com": {},
	// Business & financial press
	"bloomberg.com": {}, "cnbc.com": {}, "forbes.com": {},
	// Academic
	"nature.com": {}, "science.org": {}, "arxiv.org": {},
	// Professional directories
	"linkedin.com": {}, "crunchbase.com": {},
}

var tier2Domains = map[string]struct{}{
	// Regional / broadcast news
	"latimes.com": {}, "chicagotribune.com": {}, "usatoday.com": {},
	"cnn.com": {}, "foxnews.com": {}, "msnbc.com": {},
	// Tech press
	"techcrunch.com": {}, "wired.com": {}, "arstechnica.com": {},
	"theverge.com": {}, "engadget.com": {},
	// Business press
	"businessinsider.com": {}, "fortune.com": {}, "inc.com": {},
	// General reference
	"wikipedia.org": {}, "britannica.com": {},
}

var tier3Domains = map[string]struct{}{
	"twitter.com": {}, "x.com": {}, "facebook.com": {},
	"reddit.com": {}, "quora.com": {}, "medium.com": {},
}

// Evaluation is the cached classification of one source URL.
type Evaluation struct {
	URL    string
	Domain string
	Tier   Tier
	Base   float64
}

// Scorer classifies sources and computes confidence scores.
// Safe for concurrent use.
type Scorer struct {
	mu    sync.RWMutex
	cache map[string]Evaluation
}

// NewScorer returns a Scorer with an empty memo cache.
func NewScorer() *Scorer {
	return &Scorer{cache: make(map[string]Evaluation)}
}

// Evaluate classifies a single source URL, consulting the cache first.
func (s *Scorer) Evaluate(rawURL string) Evaluation {
	s.mu.RLock()
	ev, ok := s.cache[rawURL]
	s.mu.RUnlock()
	if ok {
		return ev
	}

	domain := extractDomain(rawURL)
	tier := classify(domain)
	ev = Evaluation{
		URL:    rawURL,
		Domain: domain,
		Tier:   tier,
		Base:   tierBase(tier),
	}

	s.mu.Lock()
	s.cache[rawURL] = ev
	s.mu.Unlock()
	return ev
}

// Score computes confidence for a set of source URLs: the base confidence
// of the best tier present, plus crossRefBonus per additional distinct
// domain (capped), clamped to 1.0 and rounded to two decimals. An empty
// source list scores exactly 0.
func (s *Scorer) Score(sourceURLs []string) float64 {
	if len(sourceURLs) == 0 {
		return 0.0
	}

	best := 0.0
	domains := make(map[string]struct{}, len(sourceURLs))
	for _, u := range sourceURLs {
		ev := s.Evaluate(u)
		if ev.Base > best {
			best = ev.Base
		}
		domains[ev.Domain] = struct{}{}
	}

	bonus := math.Min(float64(len(domains)-1)*crossRefBonus, crossRefCap)
	return math.Round(math.Min(best+bonus, 1.0)*100) / 100
}

// Label maps a confidence value to a human-readable band.
func (s *Scorer) Label(confidence float64) string {
	switch {
	case confidence >= 0.8:
		return "HIGH"
	case confidence >= 0.5:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

// NeedsVerification reports whether a finding is uncertain enough to
// warrant a validation pass.
func (s *Scorer) NeedsVerification(confidence float64) bool {
	return confidence < 0.7
}

func tierBase(t Tier) float64 {
	switch t {
	case Tier1:
		return tier1Base
	case Tier2:
		return tier2Base
	default:
		return tier3Base
	}
}

func extractDomain(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	domain := strings.ToLower(parsed.Host)
	domain = strings.TrimPrefix(domain, "www.")
	if i := strings.IndexByte(domain, ':'); i >= 0 {
		domain = domain[:i]
	}
	return domain
}

// classify matches exactly first, then falls back to substring
// containment in either direction, defaulting to tier 3.
func classify(domain string) Tier {
	if domain == "" {
		return Tier3
	}
	if _, ok := tier1Domains[domain]; ok {
		return Tier1
	}
	if _, ok := tier2Domains[domain]; ok {
		return Tier2
	}
	if _, ok := tier3Domains[domain]; ok {
		return Tier3
	}
	for d := range tier1Domains {
		if strings.Contains(domain, d) || strings.Contains(d, domain) {
			return Tier1
		}
	}
	for d := range tier2Domains {
		if strings.Contains(domain, d) || strings.Contains(d, domain) {
			return Tier2
		}
	}
	return Tier3
}
