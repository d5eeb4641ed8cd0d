package mircrew

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"mircrewapi/internal/components/assert"
	"mircrewapi/internal/components/session"
	"mircrewapi/internal/components/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"
)

const (
	report_http_driver_login = "http_driver.login"
)

type HttpOption func(*httpOptions)

type httpOptions struct {
	limit   rate.Limit
	burst   int
	timeout time.Duration
}

// WithRateLimit overrides the default of 2 requests per second.
func WithRateLimit(limit rate.Limit, burst int) HttpOption {
	return func(o *httpOptions) {
		o.limit = limit
		o.burst = burst
	}
}

func WithTimeout(timeout time.Duration) HttpOption {
	return func(o *httpOptions) {
		o.timeout = timeout
	}
}

// HttpDriver talks to the forum with plain http requests, it cannot get past
// javascript challenges but is much cheaper than a browser.
type HttpDriver struct {
	baseUrl *url.URL
	http    *resty.Client
	jar     http.CookieJar
	tel     telemetry.API
}

func NewHttpDriver(baseUrl string, tel telemetry.API, options ...HttpOption) (*HttpDriver, error) {
	assert.NotEmpty("base url", baseUrl)
	assert.NotNil(tel)
	tel = telemetry.NewScopedAPI("mircrew_http", tel)

	opts := httpOptions{
		// max burst >= 2 just means that no requests will be dropped
		limit:   2,
		burst:   2,
		timeout: 30 * time.Second,
	}
	for _, apply := range options {
		apply(&opts)
	}

	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(baseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeaders(map[string]string{
		"user-agent":                userAgent,
		"accept":                    acceptHtml,
		"accept-language":           acceptLanguage,
		"cache-control":             "max-age=0",
		"upgrade-insecure-requests": "1",
	})
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(parsedBaseUrl.Hostname()))
	client.SetTimeout(opts.timeout)

	rateLimiter := rate.NewLimiter(opts.limit, opts.burst)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return rateLimiter.Wait(req.Context())
	})

	telemetry.InstrumentResty(client, tel)

	return &HttpDriver{
		baseUrl: parsedBaseUrl,
		http:    client,
		jar:     jar,
		tel:     tel,
	}, nil
}

func (d *HttpDriver) indexUrl() string {
	return d.baseUrl.ResolveReference(&url.URL{Path: pathIndex}).String()
}

func checkResponse(res *resty.Response, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if res.StatusCode() < 200 || res.StatusCode() >= 300 {
		return fmt.Errorf(
			"%w: %s %s: status %d",
			ErrTransport,
			res.Request.Method,
			res.Request.URL,
			res.StatusCode(),
		)
	}
	return nil
}

func (d *HttpDriver) Fetch(ctx context.Context, pageUrl, referer string) ([]byte, error) {
	req := d.http.R().SetContext(ctx)
	if referer != "" {
		req.SetHeader("referer", referer)
	}
	res, err := req.Get(pageUrl)
	err = checkResponse(res, err)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func (d *HttpDriver) Search(ctx context.Context, query string) ([]byte, error) {
	res, err := d.http.R().
		SetContext(ctx).
		SetHeader("referer", d.indexUrl()).
		SetQueryParams(map[string]string{
			"keywords": query,
			"sf":       "titleonly",
			"sr":       "topics",
		}).
		Get(pathSearch)
	err = checkResponse(res, err)
	if err != nil {
		return nil, err
	}
	return res.Body(), nil
}

func (d *HttpDriver) Login(ctx context.Context, creds Credentials) (session.State, error) {
	body, err := d.Fetch(ctx, pathLogin, d.indexUrl())
	if err != nil {
		d.tel.ReportBroken(report_http_driver_login, fmt.Errorf("login page request: %w", err))
		return session.State{}, err
	}
	doc, err := parseDocument(body)
	if err != nil {
		return session.State{}, fmt.Errorf("%w: %w", ErrAuthentication, err)
	}
	tokens, err := parseLoginTokens(doc)
	if err != nil {
		d.tel.ReportBroken(report_http_driver_login, err)
		return session.State{}, err
	}

	res, err := d.http.R().
		SetContext(ctx).
		SetHeader("referer", d.indexUrl()+"?").
		SetFormData(map[string]string{
			"username":      creds.Username,
			"password":      creds.Password,
			"autologin":     "on",
			"login":         "Login",
			"redirect":      "./index.php?",
			"creation_time": tokens.creationTime,
			"form_token":    tokens.formToken,
		}).
		Post(pathLogin)
	err = checkResponse(res, err)
	if err != nil {
		d.tel.ReportBroken(report_http_driver_login, fmt.Errorf("login request: %w", err))
		return session.State{}, err
	}

	// the jar holds cookies set along the redirect chain, the final response
	// may still carry some of its own
	pairs := []string{}
	for _, c := range d.jar.Cookies(d.baseUrl) {
		pairs = append(pairs, c.Name+"="+c.Value)
	}
	pairs = append(pairs, res.Header().Values("Set-Cookie")...)
	cookie := mergeSetCookies(pairs...)
	d.tel.ReportDebug("login cookies captured", "count", len(pairs))

	return session.State{Cookies: session.ParseCookieHeader(cookie)}, nil
}

// Restore replaces the cookies for the forum with the ones in state.
func (d *HttpDriver) Restore(state session.State) {
	cookies := state.HttpCookies()
	for _, c := range cookies {
		// host-only cookies for the configured base url, so a saved domain
		// never prevents the jar from accepting them
		c.Domain = ""
		if c.Path == "" {
			c.Path = "/"
		}
	}
	d.jar.SetCookies(d.baseUrl, cookies)
}

func (d *HttpDriver) Close() error {
	d.http.GetClient().CloseIdleConnections()
	return nil
}
