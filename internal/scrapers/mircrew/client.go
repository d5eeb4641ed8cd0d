package mircrew

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"mircrewapi/internal/components/assert"
	"mircrewapi/internal/components/cache"
	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/session"
	"mircrewapi/internal/components/telemetry"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const (
	report_client_new              = "client.new"
	report_client_ensure_logged_in = "client.ensure-logged-in"
	report_client_search_posts     = "client.search-posts"
	report_client_search_skipped   = "client.search-posts.skipped"
	report_client_get_magnets      = "client.get-magnets"
)

var tracer = otel.Tracer("scrapers/mircrew")

type sessionState struct {
	cookie     string
	cookieTime time.Time
	restored   bool
	status     SessionStatus
}

// Client searches the forum and pulls magnets out of posts, logging in
// whenever the current session is stale.
type Client struct {
	baseUrl  *url.URL
	driver   Driver
	creds    Credentials
	cookies  cache.Store
	sessions SessionStore
	clock    chrono.API
	tel      telemetry.API
	logins   metric.Int64Counter

	mu    sync.Mutex
	state sessionState
}

func NewClient(
	ctx context.Context,
	baseUrl string,
	creds Credentials,
	driver Driver,
	cookies cache.Store,
	sessions SessionStore,
	clock chrono.API,
	tel telemetry.API,
) (*Client, error) {
	assert.NotEmpty("base url", baseUrl)
	assert.NotNil(driver)
	assert.NotNil(cookies)
	assert.NotNil(sessions)
	assert.NotNil(clock)
	assert.NotNil(tel)

	tel = telemetry.NewScopedAPI("mircrew", tel)

	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	logins, err := otel.Meter("scrapers/mircrew").Int64Counter(
		"mircrew.logins",
		metric.WithDescription("full login attempts against the forum"),
	)
	if err != nil {
		tel.ReportBroken(report_client_new, fmt.Errorf("create login counter: %w", err))
		return nil, err
	}

	c := &Client{
		baseUrl:  parsedBaseUrl,
		driver:   driver,
		creds:    creds,
		cookies:  cookies,
		sessions: sessions,
		clock:    clock,
		tel:      tel,
		logins:   logins,
	}
	c.restore(ctx)
	return c, nil
}

func (c *Client) restore(ctx context.Context) {
	entry, hasCookie := c.cookies.Get(ctx, cookieCacheKey)
	if hasCookie {
		c.state.cookie = entry.Value
		c.state.cookieTime = entry.CreatedAt
	}

	saved, hasSession := c.sessions.Restore(ctx)
	switch {
	case hasSession:
		c.driver.Restore(saved)
		if !hasCookie {
			// no timestamp, so the session must be probed before it is trusted
			c.state.cookie = saved.CookieHeader()
		}
	case hasCookie:
		c.driver.Restore(session.State{Cookies: session.ParseCookieHeader(entry.Value)})
	}

	if hasCookie || hasSession {
		c.state.restored = true
		c.state.status = SessionRestored
		c.tel.ReportDebug("restored session", "cookie", hasCookie, "session", hasSession)
		return
	}
	c.state.status = NoSession
}

// Status returns the current state of the session.
func (c *Client) Status() SessionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.status
}

func (c *Client) indexUrl() string {
	return c.baseUrl.ResolveReference(&url.URL{Path: pathIndex}).String()
}

// PostUrl returns the canonical url of a thread, postId must be numeric.
func (c *Client) PostUrl(postId string) (string, error) {
	postId = strings.TrimSpace(postId)
	if !isNumeric(postId) {
		return "", fmt.Errorf("%w: '%s'", ErrInvalidPostId, postId)
	}
	return postUrl(c.baseUrl, postId), nil
}

// Login makes sure the client holds a working session.
func (c *Client) Login(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "Login")
	defer span.End()

	err := c.ensureLoggedIn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
	}
	return err
}

func (c *Client) checkAlive(ctx context.Context) (bool, error) {
	body, err := c.driver.Fetch(ctx, c.indexUrl(), "")
	if err != nil {
		return false, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		return false, err
	}
	return isLoggedIn(doc), nil
}

func (c *Client) ensureLoggedIn(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.creds.complete() {
		return fmt.Errorf("%w: username and password are required", ErrConfiguration)
	}

	probed := false
	// rejected is only set when the forum answered and the session was not
	// logged in, a probe that failed to reach the forum proves nothing
	rejected := false
	cookieAge := c.clock.Now().Sub(c.state.cookieTime)
	if c.state.cookie != "" && !c.state.cookieTime.IsZero() && cookieAge < cookieTtl {
		alive, err := c.checkAlive(ctx)
		if err != nil {
			c.tel.ReportWarning(report_client_ensure_logged_in, fmt.Errorf("check fresh cookie: %w", err))
		}
		if alive {
			c.state.status = Authenticated
			return nil
		}
		// the restored session was just checked with the same cookies
		probed = c.state.restored
		rejected = err == nil
	}

	if c.state.restored && !probed {
		alive, err := c.checkAlive(ctx)
		if err != nil {
			c.tel.ReportWarning(report_client_ensure_logged_in, fmt.Errorf("check restored session: %w", err))
		}
		if alive {
			c.tel.ReportDebug("session status", "status", Verified.String())
			c.stampCookie(ctx, c.state.cookie)
			c.state.status = Authenticated
			return nil
		}
		rejected = err == nil
	}

	return c.login(ctx, rejected)
}

// stampCookie makes cookie the current cookie as of now and caches it.
func (c *Client) stampCookie(ctx context.Context, cookie string) {
	c.state.cookie = cookie
	c.state.cookieTime = c.clock.Now()
	if cookie == "" {
		return
	}
	_, err := c.cookies.Set(ctx, cookieCacheKey, cookie, cookieTtl)
	if err != nil {
		c.tel.ReportWarning(report_client_ensure_logged_in, fmt.Errorf("cache cookie: %w", err))
	}
}

// login submits the credentials, sessionRejected tells whether the forum
// itself turned down the restored session.
func (c *Client) login(ctx context.Context, sessionRejected bool) error {
	loginError := func(err error) error {
		c.state.status = LoginFailed
		if c.state.restored && sessionRejected {
			c.forgetSession(ctx)
		}
		c.tel.ReportBroken(report_client_ensure_logged_in, err)
		if errors.Is(err, ErrAuthentication) {
			return fmt.Errorf("mircrew scraper: login failed: %w", err)
		}
		return fmt.Errorf("mircrew scraper: login failed: %w: %w", ErrAuthentication, err)
	}

	c.logins.Add(ctx, 1)
	c.tel.ReportDebug("logging in", "username", c.creds.Username)

	state, err := c.driver.Login(ctx, c.creds)
	if err != nil {
		return loginError(err)
	}
	alive, err := c.checkAlive(ctx)
	if err != nil {
		return loginError(err)
	}
	if !alive {
		return loginError(fmt.Errorf("%w: no logout link after submitting credentials", ErrAuthentication))
	}

	c.stampCookie(ctx, state.CookieHeader())
	err = c.sessions.Save(ctx, state)
	if err != nil {
		c.tel.ReportWarning(report_client_ensure_logged_in, fmt.Errorf("save session: %w", err))
	}
	c.state.restored = false
	c.state.status = Authenticated
	return nil
}

// forgetSession drops a restored session that no longer works.
func (c *Client) forgetSession(ctx context.Context) {
	err := c.sessions.Clear(ctx)
	if err != nil {
		c.tel.ReportWarning(report_client_ensure_logged_in, err)
	}
	err = c.cookies.Delete(ctx, cookieCacheKey)
	if err != nil {
		c.tel.ReportWarning(report_client_ensure_logged_in, err)
	}
	c.state.restored = false
	c.state.cookie = ""
	c.state.cookieTime = time.Time{}
}

func (c *Client) searchPosts(ctx context.Context, query string) ([]PostResult, error) {
	body, err := c.driver.Search(ctx, query)
	if err != nil {
		c.tel.ReportBroken(report_client_search_posts, err, query)
		return nil, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		c.tel.ReportBroken(report_client_search_posts, err, query)
		return nil, err
	}

	results, skipped := parseSearchResults(doc, c.baseUrl)
	for _, err := range skipped {
		c.tel.ReportWarning(report_client_search_posts, err, query)
	}
	c.tel.ReportCount(report_client_search_skipped, int64(len(skipped)))
	return results, nil
}

// SearchPosts returns the threads matching query whose title mentions a
// release quality, in the order the forum lists them.
func (c *Client) SearchPosts(ctx context.Context, query string) ([]PostResult, error) {
	ctx, span := tracer.Start(ctx, "SearchPosts", trace.WithAttributes(
		attribute.String("mircrew.query", query),
	))
	defer span.End()

	err := c.ensureLoggedIn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}
	results, err := c.searchPosts(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("mircrew.results", len(results)))
	return results, nil
}

// Search is SearchPosts followed by GetMagnets on every result.
func (c *Client) Search(ctx context.Context, query string) ([]MagnetResult, error) {
	ctx, span := tracer.Start(ctx, "Search", trace.WithAttributes(
		attribute.String("mircrew.query", query),
	))
	defer span.End()

	err := c.ensureLoggedIn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}
	posts, err := c.searchPosts(ctx, query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return nil, err
	}

	results := []MagnetResult{}
	for _, post := range posts {
		magnets, err := c.extractMagnets(ctx, post.Url)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "extract magnets failed")
			return nil, fmt.Errorf("post %s: %w", post.Id, err)
		}
		results = append(results, magnets...)
	}
	return results, nil
}

// GetMagnets returns the magnet links of a single thread, thanking the
// poster first when the content is hidden behind it.
func (c *Client) GetMagnets(ctx context.Context, postId string) ([]MagnetResult, error) {
	ctx, span := tracer.Start(ctx, "GetMagnets", trace.WithAttributes(
		attribute.String("mircrew.post_id", postId),
	))
	defer span.End()

	pageUrl, err := c.PostUrl(postId)
	if err != nil {
		return nil, err
	}
	err = c.ensureLoggedIn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "login failed")
		return nil, err
	}
	results, err := c.extractMagnets(ctx, pageUrl)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "extract magnets failed")
		return nil, err
	}
	return results, nil
}

func (c *Client) extractMagnets(ctx context.Context, pageUrl string) ([]MagnetResult, error) {
	body, err := c.driver.Fetch(ctx, pageUrl, c.indexUrl())
	if err != nil {
		c.tel.ReportBroken(report_client_get_magnets, err, pageUrl)
		return nil, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		c.tel.ReportBroken(report_client_get_magnets, err, pageUrl)
		return nil, err
	}

	thanksUrl, locked := findThanksUrl(doc, c.baseUrl)
	if locked {
		c.tel.ReportDebug("thanking post to unlock content", "url", pageUrl)
		_, err = c.driver.Fetch(ctx, thanksUrl, pageUrl)
		if err != nil {
			c.tel.ReportWarning(report_client_get_magnets, fmt.Errorf("thanks: %w", err), pageUrl)
		} else {
			body, err = c.driver.Fetch(ctx, pageUrl, pageUrl)
			if err != nil {
				c.tel.ReportBroken(report_client_get_magnets, err, pageUrl)
				return nil, err
			}
			doc, err = parseDocument(body)
			if err != nil {
				c.tel.ReportBroken(report_client_get_magnets, err, pageUrl)
				return nil, err
			}
		}
	}

	results := parseMagnets(doc)
	if results == nil {
		results = []MagnetResult{}
	}
	return results, nil
}

func (c *Client) Close() error {
	return c.driver.Close()
}
