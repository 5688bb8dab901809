package datasource

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/httpclient"
)

// Fetcher is the subset of the HTTP client used by the resolver.
type Fetcher interface {
	GetBytes(ctx context.Context, rawURL string, ro httpclient.RequestOptions) (httpclient.Payload, error)
}

// DiscoverLinks fetches the landing page and returns matching dataset links.
func DiscoverLinks(ctx context.Context, f Fetcher, d Discovery, period string) ([]RemoteCandidate, error) {
	landing := ExpandPlaceholders(d.LandingPage, period)
	page, err := f.GetBytes(ctx, landing, httpclient.RequestOptions{Accept: "text/html"})
	if err != nil {
		return nil, fmt.Errorf("fetch landing page: %w", err)
	}
	var re *regexp.Regexp
	if d.LinkPattern != "" {
		re, err = regexp.Compile(ExpandPlaceholders(d.LinkPattern, period))
		if err != nil {
			return nil, fmt.Errorf("compile link pattern: %w", err)
		}
	}
	base, err := url.Parse(page.FinalURL)
	if err != nil || page.FinalURL == "" {
		base, _ = url.Parse(landing)
	}
	links, err := ExtractLinks(base, page.Body, re, d.Extensions, Year(period))
	if err != nil {
		return nil, err
	}
	out := make([]RemoteCandidate, 0, len(links))
	for _, l := range links {
		out = append(out, RemoteCandidate{URI: l, Extension: suffixFor("", l)})
	}
	return out, nil
}

// ExtractLinks walks the anchors of an HTML document, resolves them against
// base and keeps those matching pattern and extensions. Links mentioning
// year sort first; document order is kept otherwise.
func ExtractLinks(base *url.URL, body []byte, pattern *regexp.Regexp, extensions []string, year string) ([]string, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse landing page: %w", err)
	}
	exts := map[string]bool{}
	for _, e := range extensions {
		exts["."+strings.TrimPrefix(strings.ToLower(e), ".")] = true
	}

	seen := map[string]bool{}
	var links []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, a := range n.Attr {
				if a.Key != "href" || strings.TrimSpace(a.Val) == "" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(a.Val))
				if err != nil {
					continue
				}
				abs := ref.String()
				if base != nil {
					abs = base.ResolveReference(ref).String()
				}
				if pattern != nil && !pattern.MatchString(abs) {
					continue
				}
				if len(exts) > 0 && !exts[suffixFor("", abs)] {
					continue
				}
				if !seen[abs] {
					seen[abs] = true
					links = append(links, abs)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	if year != "" {
		sort.SliceStable(links, func(i, j int) bool {
			return strings.Contains(links[i], year) && !strings.Contains(links[j], year)
		})
	}
	return links, nil
}
