// Package extract implements the extraction engine: pure functions that
// evaluate a job's selector rule pair against fetched documents. No network
// access and no shared state, so engine behavior is fully determined by its
// inputs.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	readability "github.com/go-shiori/go-readability"

	"github.com/sitewatch/sitewatch/internal/domain"
)

// snippetMaxRunes caps the body snippet carried on list items.
const snippetMaxRunes = 200

// Rule evaluation errors.
var (
	// ErrMalformedSelector means a selector does not parse. Fatal to a
	// run: retrying on schedule cannot fix a broken selector.
	ErrMalformedSelector = errors.New("malformed selector")
	// ErrSelectorNotFound means the list selector matched zero nodes.
	// Non-fatal: a deliberately empty page is a degenerate success.
	ErrSelectorNotFound = errors.New("selector matched no nodes")
)

// Item is one candidate entry produced by the list selector, in document
// order.
type Item struct {
	Title       string
	DetailURL   string
	PublishDate *time.Time
	BodySnippet string
}

// CompiledRules holds pre-compiled selectors. Compiling up front surfaces
// malformed selectors before any fetching happens.
type CompiledRules struct {
	list   cascadia.Selector
	detail cascadia.Selector
}

// CompileRules compiles both selectors of a rule pair.
func CompileRules(rules domain.Rules) (*CompiledRules, error) {
	list, err := cascadia.Compile(rules.ListSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: list selector %q: %v", ErrMalformedSelector, rules.ListSelector, err)
	}
	detail, err := cascadia.Compile(rules.DetailSelector)
	if err != nil {
		return nil, fmt.Errorf("%w: detail selector %q: %v", ErrMalformedSelector, rules.DetailSelector, err)
	}
	return &CompiledRules{list: list, detail: detail}, nil
}

// ExtractList applies the list selector to a fetched listing document and
// returns the candidate entries in document order. Relative detail links are
// resolved against baseURL. Returns ErrSelectorNotFound when the selector
// matches nothing.
func ExtractList(body []byte, baseURL string, rules *CompiledRules) ([]Item, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	matches := doc.FindMatcher(rules.list)
	if matches.Length() == 0 {
		return nil, ErrSelectorNotFound
	}

	items := make([]Item, 0, matches.Length())
	matches.Each(func(_ int, sel *goquery.Selection) {
		item := itemFromNode(sel, base)
		if item.Title == "" && item.DetailURL == "" {
			return
		}
		items = append(items, item)
	})

	return items, nil
}

// ExtractDetail applies the detail selector to a fetched detail page and
// returns its body text. When the selector matches nothing the engine falls
// back to readability's main-content extraction, so a slightly wrong detail
// selector degrades instead of dropping the document.
func ExtractDetail(body []byte, pageURL string, rules *CompiledRules) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("parse html: %w", err)
	}

	matched := doc.FindMatcher(rules.detail)
	if matched.Length() > 0 {
		return collapseWhitespace(matched.First().Text()), nil
	}

	return readableBody(body, pageURL)
}

// readableBody extracts main content with readability as a fallback.
func readableBody(body []byte, pageURL string) (string, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return "", fmt.Errorf("parse page url: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", ErrSelectorNotFound
	}

	text := collapseWhitespace(article.TextContent)
	if text == "" {
		return "", ErrSelectorNotFound
	}
	return text, nil
}

// itemFromNode builds an Item from one list selector match.
func itemFromNode(sel *goquery.Selection, base *url.URL) Item {
	item := Item{
		Title:       collapseWhitespace(sel.Text()),
		BodySnippet: snippet(sel.Text()),
		PublishDate: extractDate(sel),
	}

	// The matched node may itself be the anchor, or contain one.
	href, ok := sel.Attr("href")
	if !ok {
		href, ok = sel.Find("a[href]").First().Attr("href")
	}
	if ok {
		if resolved, err := base.Parse(strings.TrimSpace(href)); err == nil {
			item.DetailURL = resolved.String()
		}
	}

	if anchor := sel.Find("a").First(); anchor.Length() > 0 {
		if t := collapseWhitespace(anchor.Text()); t != "" {
			item.Title = t
		}
	}

	return item
}

var datePattern = regexp.MustCompile(`\d{4}[-./]\d{1,2}[-./]\d{1,2}`)

var dateLayouts = []string{"2006-01-02", "2006.01.02", "2006/01/02", "2006-1-2", "2006.1.2", "2006/1/2"}

// extractDate looks for a publish date on the list entry: a <time> element's
// datetime attribute first, then any date-shaped token in the entry text.
func extractDate(sel *goquery.Selection) *time.Time {
	if dt, ok := sel.Find("time[datetime]").First().Attr("datetime"); ok {
		if parsed, err := time.Parse(time.RFC3339, dt); err == nil {
			return &parsed
		}
		if parsed, err := time.Parse("2006-01-02", dt); err == nil {
			return &parsed
		}
	}

	token := datePattern.FindString(sel.Text())
	if token == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if parsed, err := time.Parse(layout, token); err == nil {
			return &parsed
		}
	}
	return nil
}

func snippet(text string) string {
	collapsed := collapseWhitespace(text)
	runes := []rune(collapsed)
	if len(runes) <= snippetMaxRunes {
		return collapsed
	}
	return string(runes[:snippetMaxRunes])
}

var whitespacePattern = regexp.MustCompile(`\s+`)

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}
