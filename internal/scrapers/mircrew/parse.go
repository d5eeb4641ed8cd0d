package mircrew

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"mircrewapi/pkg/htmlutil"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

const (
	titleSelector    = "strong, b, h2, h3, h4, span.title"
	magnetSelector   = `a[href^="magnet:"]`
	fallbackTitle    = "Mircrew magnet"
	thanksIconSelect = "i.fa-thumbs-o-up"
)

func parseDocument(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

func parseLoginTokens(doc *goquery.Document) (loginTokens, error) {
	tokens := loginTokens{
		creationTime: doc.Find("input[name=creation_time]").First().AttrOr("value", ""),
		formToken:    doc.Find("input[name=form_token]").First().AttrOr("value", ""),
	}
	if tokens.creationTime == "" {
		return loginTokens{}, fmt.Errorf("%w: could not find creation_time", ErrAuthentication)
	}
	if tokens.formToken == "" {
		return loginTokens{}, fmt.Errorf("%w: could not find form_token", ErrAuthentication)
	}
	return tokens, nil
}

// isLoggedIn looks for the logout link that phpbb only renders for members.
func isLoggedIn(doc *goquery.Document) bool {
	return doc.Find(`a[href*="mode=logout"]`).Length() > 0
}

func hasQualityKeyword(text string) bool {
	text = strings.ToLower(text)
	for _, keyword := range qualityKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}

func resolveHref(base *url.URL, href string) (*url.URL, error) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

func postUrl(base *url.URL, id string) string {
	u := base.ResolveReference(&url.URL{Path: pathPost})
	u.RawQuery = url.Values{"t": {id}}.Encode()
	return u.String()
}

// parseSearchResults returns the qualifying topics in page order, rows that
// could not be understood are returned as errors instead.
func parseSearchResults(doc *goquery.Document, base *url.URL) ([]PostResult, []error) {
	var results []PostResult
	var skipped []error

	doc.Find("li.row").Each(func(i int, row *goquery.Selection) {
		link := row.Find("a.topictitle").First()
		if link.Length() == 0 {
			link = row.Find("a.row-item-link").First()
		}
		href := link.AttrOr("href", "")
		if href == "" {
			skipped = append(skipped, fmt.Errorf("row %d: no topic link", i))
			return
		}

		title := htmlutil.SelectionText(link)
		if title == "" {
			title = htmlutil.SelectionText(row)
		}
		if !hasQualityKeyword(title) {
			return
		}

		resolved, err := resolveHref(base, href)
		if err != nil {
			skipped = append(skipped, fmt.Errorf("row %d: parse href '%s': %w", i, href, err))
			return
		}
		id := resolved.Query().Get("t")
		if id == "" || !isNumeric(id) {
			skipped = append(skipped, fmt.Errorf("row %d: no topic id in '%s'", i, href))
			return
		}

		results = append(results, PostResult{
			Id:    id,
			Title: title,
			Url:   postUrl(base, id),
		})
	})

	return results, skipped
}

// findThanksUrl returns the "thanks" action of the first post, which
// unlocks hidden content.
func findThanksUrl(doc *goquery.Document, base *url.URL) (string, bool) {
	var out string
	doc.Find(".post").First().Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		if a.Find(thanksIconSelect).Length() == 0 {
			return true
		}
		resolved, err := resolveHref(base, a.AttrOr("href", ""))
		if err != nil {
			return true
		}
		out = resolved.String()
		return false
	})
	return out, out != ""
}

func pageTitle(doc *goquery.Document) string {
	candidates := []*goquery.Selection{
		doc.Find("h2.topic-title").First(),
		doc.Find(".postbody .content p").First(),
		doc.Find("p").First(),
	}
	for _, sel := range candidates {
		text := htmlutil.SelectionText(sel)
		if text != "" {
			return text
		}
	}
	return fallbackTitle
}

// precedingTitle returns the text of the last title element inside dd that
// comes before link in document order.
func precedingTitle(dd *goquery.Selection, link *html.Node) string {
	title := ""
	dd.Find("*").EachWithBreak(func(_ int, el *goquery.Selection) bool {
		node := el.Get(0)
		if node == link {
			return false
		}
		if !el.Is(titleSelector) || el.HasNodes(link).Length() > 0 {
			return true
		}
		text := htmlutil.SelectionText(el)
		if text != "" {
			title = text
		}
		return true
	})
	return title
}

// parseMagnets returns every magnet link of the page in document order.
func parseMagnets(doc *goquery.Document) []MagnetResult {
	var results []MagnetResult
	defaultTitle := pageTitle(doc)

	doc.Find("dd").Each(func(_ int, dd *goquery.Selection) {
		if !strings.Contains(strings.ToLower(htmlutil.SelectionText(dd)), "magnet") {
			return
		}
		link := dd.Find(magnetSelector).First()
		if link.Length() == 0 {
			return
		}

		title := precedingTitle(dd, link.Get(0))
		if title == "" {
			title = defaultTitle
		}
		results = append(results, MagnetResult{
			Title: title,
			Url:   strings.TrimSpace(link.AttrOr("href", "")),
		})
	})

	return results
}

// mergeSetCookies reduces Set-Cookie values (or plain name=value pairs) to a
// single Cookie header value, later duplicates win.
func mergeSetCookies(setCookies ...string) string {
	order := []string{}
	values := map[string]string{}
	for _, raw := range setCookies {
		pair, _, _ := strings.Cut(raw, ";")
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		_, seen := values[name]
		if !seen {
			order = append(order, name)
		}
		values[name] = strings.TrimSpace(value)
	}

	pairs := make([]string, len(order))
	for i, name := range order {
		pairs[i] = name + "=" + values[name]
	}
	return strings.Join(pairs, "; ")
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
