package mircrew

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

var testBaseUrl, _ = url.Parse("https://mircrew-releases.org")

func loadFixture(t *testing.T, name string) *goquery.Document {
	t.Helper()
	contents, err := os.ReadFile(filepath.Join("testdata", name))
	require.Nil(t, err)
	doc, err := parseDocument(contents)
	require.Nil(t, err)
	return doc
}

func parseString(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := parseDocument([]byte(html))
	require.Nil(t, err)
	return doc
}

func TestParseLoginTokens(t *testing.T) {
	tokens, err := parseLoginTokens(loadFixture(t, "login.html"))
	require.Nil(t, err)
	require.Equal(t, "1769295919", tokens.creationTime)
	require.Equal(t, "7886dd58bfce6c6b47c19e6a8c9ceb8c05dc923f", tokens.formToken)

	testCases := []string{
		`<form><input type="hidden" name="form_token" value="abc" /></form>`,
		`<form><input type="hidden" name="creation_time" value="1769295919" /></form>`,
		`<form><input type="hidden" name="creation_time" value="" /><input name="form_token" value="abc" /></form>`,
		`<html></html>`,
	}
	for _, html := range testCases {
		_, err := parseLoginTokens(parseString(t, html))
		require.ErrorIs(t, err, ErrAuthentication, html)
	}
}

func TestIsLoggedIn(t *testing.T) {
	require.True(t, isLoggedIn(loadFixture(t, "index_logged_in.html")))
	require.False(t, isLoggedIn(loadFixture(t, "index_logged_out.html")))
	require.False(t, isLoggedIn(loadFixture(t, "login.html")))
}

func TestHasQualityKeyword(t *testing.T) {
	testCases := []struct {
		text   string
		expect bool
	}{
		{text: "Some Movie 1080p", expect: true},
		{text: "Some Movie SD", expect: false},
		{text: "Some Movie 2160P HDR", expect: true},
		{text: "some movie 4K", expect: true},
		{text: "Show S01 X265 10bit", expect: true},
		{text: "Show S01 720p", expect: true},
		{text: "Show S01 480p", expect: true},
		{text: "Show S01 x264", expect: true},
		{text: "", expect: false},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, hasQualityKeyword(test.text), test.text)
	}
}

func TestParseSearchResults(t *testing.T) {
	results, skipped := parseSearchResults(loadFixture(t, "search.html"), testBaseUrl)

	expected := []PostResult{
		{
			Id:    "456",
			Title: "Stranger Things S04 1080p WEB-DL",
			Url:   "https://mircrew-releases.org/viewtopic.php?t=456",
		},
		{
			Id:    "458",
			Title: "Stranger Things S02 2160p x265",
			Url:   "https://mircrew-releases.org/viewtopic.php?t=458",
		},
	}
	if diff := cmp.Diff(expected, results); diff != "" {
		t.Fatal(diff)
	}
	// one row without a link, one linking to a forum instead of a topic
	require.Len(t, skipped, 2)

	results, skipped = parseSearchResults(parseString(t, "<ul></ul>"), testBaseUrl)
	require.Empty(t, results)
	require.Empty(t, skipped)
}

func TestFindThanksUrl(t *testing.T) {
	thanks, ok := findThanksUrl(loadFixture(t, "post_locked.html"), testBaseUrl)
	require.True(t, ok)
	require.Equal(t, "https://mircrew-releases.org/app.php/thanks/1001?to_id=2&f=51", thanks)

	_, ok = findThanksUrl(loadFixture(t, "post.html"), testBaseUrl)
	require.False(t, ok)
}

func TestParseMagnets(t *testing.T) {
	magnets := parseMagnets(loadFixture(t, "post.html"))
	expected := []MagnetResult{
		{Title: "Episodio 1", Url: "magnet:?xt=urn:btih:AAA111&dn=Stranger.Things.S04E01"},
		{Title: "Stranger Things S04 1080p WEB-DL", Url: "magnet:?xt=urn:btih:BBB222"},
		{Title: "Stranger Things S04 1080p WEB-DL", Url: "magnet:?xt=urn:btih:CCC333"},
	}
	if diff := cmp.Diff(expected, magnets); diff != "" {
		t.Fatal(diff)
	}

	require.Empty(t, parseMagnets(loadFixture(t, "post_locked.html")))
}

func TestPageTitle(t *testing.T) {
	testCases := []struct {
		html   string
		expect string
	}{
		{
			html:   `<h2 class="topic-title">Title 1080p</h2><div class="postbody"><div class="content"><p>Body</p></div></div>`,
			expect: "Title 1080p",
		},
		{
			html:   `<p>Header</p><div class="postbody"><div class="content"><p>Body text</p></div></div>`,
			expect: "Body text",
		},
		{
			html:   "<p>  First\n\t\tparagraph </p>",
			expect: "First paragraph",
		},
		{
			html:   `<div>nothing</div>`,
			expect: "Mircrew magnet",
		},
	}
	for _, test := range testCases {
		require.Equal(t, test.expect, pageTitle(parseString(t, test.html)))
	}
}

func TestMergeSetCookies(t *testing.T) {
	merged := mergeSetCookies(
		"cookieconsent_status=dismiss; Path=/",
		"phpbb3_12hgm_u=1; Path=/",
	)
	require.Equal(t, "cookieconsent_status=dismiss; phpbb3_12hgm_u=1", merged)

	merged = mergeSetCookies(
		"phpbb3_12hgm_u=1",
		"phpbb3_12hgm_sid=abc; Path=/; HttpOnly",
		"phpbb3_12hgm_u=1234; expires=Sun, 24-Jan-2027 12:00:00 GMT; path=/; secure",
		"garbage",
		"",
	)
	require.Equal(t, "phpbb3_12hgm_u=1234; phpbb3_12hgm_sid=abc", merged)
}

func TestPostUrl(t *testing.T) {
	require.Equal(t, "https://mircrew-releases.org/viewtopic.php?t=456", postUrl(testBaseUrl, "456"))
}
