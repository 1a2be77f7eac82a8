package sources

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/bussola-ai/bussola/pkg/breaker"
)

// techMarkers maps substrings found in a page to a technology label.
// Detection is best-effort; absence of a marker proves nothing.
var techMarkers = map[string]string{
	"wp-content":       "WordPress",
	"shopify":          "Shopify",
	"cdn.shopify.com":  "Shopify",
	"_next/static":     "Next.js",
	"react":            "React",
	"vue":              "Vue",
	"gtag(":            "Google Analytics",
	"googletagmanager": "Google Tag Manager",
	"hotjar":           "Hotjar",
	"hubspot":          "HubSpot",
	"wix.com":          "Wix",
}

// MetadataSource fetches the company homepage and extracts the page
// title, meta/OpenGraph description and a rough technology fingerprint.
// It is the cheapest layer-1 signal and needs no API key.
type MetadataSource struct {
	client  *http.Client
	brk     *breaker.Breaker
	timeout time.Duration
}

// NewMetadataSource creates the web-metadata adapter.
func NewMetadataSource(breakers *breaker.Registry, client *http.Client) *MetadataSource {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &MetadataSource{
		client:  client,
		timeout: 1800 * time.Millisecond,
		brk:     breakers.GetOrCreate(NameMetadata, breaker.ProfileDefault, nil),
	}
}

func (s *MetadataSource) Name() string            { return NameMetadata }
func (s *MetadataSource) Layer() int              { return 1 }
func (s *MetadataSource) Confidence() int         { return 70 }
func (s *MetadataSource) CostEstimate() float64   { return 0 }
func (s *MetadataSource) Timeout() time.Duration  { return s.timeout }
func (s *MetadataSource) Breaker() *breaker.Breaker { return s.brk }

// Enrich fetches https://{domain} and parses the HTML head.
func (s *MetadataSource) Enrich(ctx context.Context, domain string, _ Hints) (*SourceResult, error) {
	start := time.Now()

	body, kind, err := get(ctx, s.client, "https://"+domain, map[string]string{
		"Accept": "text/html,application/xhtml+xml",
	})
	if err != nil {
		return Failed(kind, err.Error(), 0, time.Since(start)), nil
	}

	meta := parseHTMLMetadata(string(body))
	if len(meta) == 0 {
		return Failed(ErrParse, "no extractable metadata", 0, time.Since(start)), nil
	}

	return &SourceResult{
		Success:  true,
		Data:     meta,
		Duration: time.Since(start),
	}, nil
}

// parseHTMLMetadata extracts title, description, og tags and a tech-stack
// guess from an HTML document. Parse errors yield a partial map rather
// than a failure: x/net/html is tolerant of broken markup.
func parseHTMLMetadata(doc string) map[string]any {
	out := make(map[string]any)

	node, err := html.Parse(strings.NewReader(doc))
	if err == nil {
		walkHead(node, out)
	}

	lower := strings.ToLower(doc)
	var stack []string
	seen := make(map[string]bool)
	for marker, label := range techMarkers {
		if strings.Contains(lower, marker) && !seen[label] {
			seen[label] = true
			stack = append(stack, label)
		}
	}
	if len(stack) > 0 {
		out["tech_stack"] = stack
	}

	return out
}

func walkHead(n *html.Node, out map[string]any) {
	if n.Type == html.ElementNode {
		switch n.Data {
		case "title":
			if n.FirstChild != nil && n.FirstChild.Type == html.TextNode {
				title := strings.TrimSpace(n.FirstChild.Data)
				if title != "" {
					out["page_title"] = title
					out["company_name"] = companyNameFromTitle(title)
				}
			}
		case "meta":
			var name, property, content string
			for _, attr := range n.Attr {
				switch attr.Key {
				case "name":
					name = strings.ToLower(attr.Val)
				case "property":
					property = strings.ToLower(attr.Val)
				case "content":
					content = strings.TrimSpace(attr.Val)
				}
			}
			if content == "" {
				break
			}
			switch {
			case name == "description" || property == "og:description":
				if _, ok := out["description"]; !ok {
					out["description"] = content
				}
			case property == "og:site_name":
				out["company_name"] = content
			case property == "og:title":
				if _, ok := out["company_name"]; !ok {
					out["company_name"] = companyNameFromTitle(content)
				}
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHead(c, out)
	}
}

// companyNameFromTitle strips common title suffixes ("Acme | Home",
// "Acme - Official Site") down to the brand segment.
func companyNameFromTitle(title string) string {
	for _, sep := range []string{" | ", " – ", " — ", " - ", " :: "} {
		if idx := strings.Index(title, sep); idx > 0 {
			return strings.TrimSpace(title[:idx])
		}
	}
	return strings.TrimSpace(title)
}
