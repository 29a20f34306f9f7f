package sources

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/types"
)

// maxContactPages bounds the same-host "contact" pages checked for an address.
const maxContactPages = 2

var emailValidator = validator.New()

// HTMLScraper fetches pages directly and extracts links and visible text.
type HTMLScraper struct {
	*client
	maxLinks int
}

// NewHTMLScraper creates a direct page scraper.
func NewHTMLScraper(cfg ServiceConfig, opts ...Option) *HTMLScraper {
	return &HTMLScraper{client: newClient("html", cfg, opts...), maxLinks: 100}
}

// DiscoverPages returns the same-host links found on siteURL.
func (h *HTMLScraper) DiscoverPages(ctx context.Context, siteURL string) ([]string, error) {
	base, err := url.Parse(siteURL)
	if err != nil || base.Host == "" {
		return nil, types.NewInvalidRequestError("invalid site url: " + siteURL).WithSource(h.name)
	}
	doc, err := h.fetch(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	return ExtractLinks(doc, base, h.maxLinks), nil
}

// Scrape returns the visible text of a page.
func (h *HTMLScraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	doc, err := h.fetch(ctx, pageURL)
	if err != nil {
		return "", err
	}
	return ExtractText(doc), nil
}

// ContactEmail implements planner.ContactFinder. The homepage is checked
// first, then up to two same-host pages whose URL mentions "contact".
func (h *HTMLScraper) ContactEmail(ctx context.Context, v planner.Venue) (string, error) {
	if v.Website == "" {
		return "", nil
	}
	base, err := url.Parse(v.Website)
	if err != nil || base.Host == "" {
		return "", types.NewInvalidRequestError("invalid site url: " + v.Website).WithSource(h.name)
	}
	doc, err := h.fetch(ctx, v.Website)
	if err != nil {
		return "", err
	}
	if emails := ExtractEmails(doc); len(emails) > 0 {
		return emails[0], nil
	}

	checked := 0
	for _, link := range ExtractLinks(doc, base, h.maxLinks) {
		if checked == maxContactPages {
			break
		}
		if !strings.Contains(strings.ToLower(link), "contact") {
			continue
		}
		checked++
		page, err := h.fetch(ctx, link)
		if err != nil {
			h.logger.Debug("contact page fetch failed", zap.String("url", link), zap.Error(err))
			continue
		}
		if emails := ExtractEmails(page); len(emails) > 0 {
			return emails[0], nil
		}
	}
	return "", nil
}

func (h *HTMLScraper) fetch(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, types.NewInvalidRequestError(err.Error()).WithSource(h.name)
	}
	req.Header.Set("Accept", "text/html")
	req.Header.Set("User-Agent", "pathfinder/1.0")
	body, err := h.do(req)
	if err != nil {
		return nil, err
	}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, types.WrapError(err, types.ErrMalformedOutput, "parse html").WithSource(h.name)
	}
	return doc, nil
}

// ExtractLinks collects unique absolute links on base's host, in document order.
func ExtractLinks(doc *html.Node, base *url.URL, limit int) []string {
	seen := make(map[string]bool)
	var links []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if limit > 0 && len(links) >= limit {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				ref, err := url.Parse(strings.TrimSpace(attr.Val))
				if err != nil {
					break
				}
				abs := base.ResolveReference(ref)
				abs.Fragment = ""
				if abs.Host != base.Host || (abs.Scheme != "http" && abs.Scheme != "https") {
					break
				}
				if s := abs.String(); !seen[s] {
					seen[s] = true
					links = append(links, s)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links
}

// ExtractEmails collects unique, valid mailto addresses in document order,
// lowercased. Only the first recipient of each link is kept.
func ExtractEmails(doc *html.Node) []string {
	seen := make(map[string]bool)
	var emails []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if addr := mailtoAddress(attr.Val); addr != "" && !seen[addr] {
					seen[addr] = true
					emails = append(emails, addr)
				}
				break
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return emails
}

func mailtoAddress(href string) string {
	href = strings.TrimSpace(href)
	if len(href) < len("mailto:") || !strings.EqualFold(href[:len("mailto:")], "mailto:") {
		return ""
	}
	addr, _, _ := strings.Cut(href[len("mailto:"):], "?")
	if un, err := url.PathUnescape(addr); err == nil {
		addr = un
	}
	addr, _, _ = strings.Cut(addr, ",")
	addr = strings.ToLower(strings.TrimSpace(addr))
	if emailValidator.Var(addr, "required,email") != nil {
		return ""
	}
	return addr
}

// ExtractText returns the visible text of doc with whitespace collapsed.
func ExtractText(doc *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Head, atom.Svg:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				if sb.Len() > 0 {
					sb.WriteByte(' ')
				}
				sb.WriteString(strings.Join(strings.Fields(t), " "))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return sb.String()
}

// FallbackScraper tries the primary scraper first and falls back on error
// or empty results.
type FallbackScraper struct {
	primary   planner.PageScraper
	secondary planner.PageScraper
	logger    *zap.Logger
}

// NewFallbackScraper chains two scrapers.
func NewFallbackScraper(primary, secondary planner.PageScraper, logger *zap.Logger) *FallbackScraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackScraper{primary: primary, secondary: secondary, logger: logger}
}

// DiscoverPages implements planner.PageScraper.
func (f *FallbackScraper) DiscoverPages(ctx context.Context, siteURL string) ([]string, error) {
	links, err := f.primary.DiscoverPages(ctx, siteURL)
	if err == nil && len(links) > 0 {
		return links, nil
	}
	if err != nil {
		f.logger.Debug("primary page discovery failed, falling back", zap.String("url", siteURL), zap.Error(err))
	}
	return f.secondary.DiscoverPages(ctx, siteURL)
}

// Scrape implements planner.PageScraper.
func (f *FallbackScraper) Scrape(ctx context.Context, pageURL string) (string, error) {
	text, err := f.primary.Scrape(ctx, pageURL)
	if err == nil && strings.TrimSpace(text) != "" {
		return text, nil
	}
	if err != nil {
		f.logger.Debug("primary scrape failed, falling back", zap.String("url", pageURL), zap.Error(err))
	}
	return f.secondary.Scrape(ctx, pageURL)
}
