package mircrew

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"mircrewapi/internal/components/assert"
	"mircrewapi/internal/components/chrono"
	"mircrewapi/internal/components/session"
	"mircrewapi/internal/components/telemetry"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

const (
	report_browser_driver_session    = "browser_driver.session"
	report_browser_driver_screenshot = "browser_driver.screenshot"
	report_browser_driver_teardown   = "browser_driver.teardown"
	report_browser_driver_login      = "browser_driver.login"

	cookieBannerSelector = ".cc-window .cc-dismiss, .cc-window .cc-allow"
)

type BrowserOptions struct {
	// ControlUrl connects to an already running browser instead of launching
	// a local one.
	ControlUrl string
	Headless   bool
	// ScreenshotDir receives a screenshot whenever an operation fails, empty
	// disables screenshots.
	ScreenshotDir string
	Timeout       time.Duration
}

// BrowserDriver drives a real (stealthed) chrome, every call gets its own
// incognito context which is torn down before the call returns.
type BrowserDriver struct {
	baseUrl *url.URL
	opts    BrowserOptions
	clock   chrono.API
	tel     telemetry.API

	mu    sync.Mutex
	state session.State
}

func NewBrowserDriver(baseUrl string, opts BrowserOptions, clock chrono.API, tel telemetry.API) (*BrowserDriver, error) {
	assert.NotEmpty("base url", baseUrl)
	assert.NotNil(clock)
	assert.NotNil(tel)

	parsedBaseUrl, err := url.Parse(baseUrl)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}

	return &BrowserDriver{
		baseUrl: parsedBaseUrl,
		opts:    opts,
		clock:   clock,
		tel:     telemetry.NewScopedAPI("mircrew_browser", tel),
	}, nil
}

func (d *BrowserDriver) resolve(path string) string {
	ref, err := url.Parse(path)
	if err != nil {
		return path
	}
	return d.baseUrl.ResolveReference(ref).String()
}

func (d *BrowserDriver) current() session.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *BrowserDriver) Restore(state session.State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.state = state
}

func (d *BrowserDriver) Close() error {
	return nil
}

type browserSession struct {
	launcher  *launcher.Launcher
	browser   *rod.Browser
	incognito *rod.Browser
	page      *rod.Page
}

type teardownStep struct {
	name  string
	close func(ctx context.Context) error
}

// teardownSteps lists what the session opened, innermost first.
func (s *browserSession) teardownSteps() []teardownStep {
	steps := []teardownStep{}
	if s.page != nil {
		page := s.page
		steps = append(steps, teardownStep{name: "page", close: func(ctx context.Context) error {
			return page.Context(ctx).Close()
		}})
	}
	if s.incognito != nil {
		incognito := s.incognito
		steps = append(steps, teardownStep{name: "incognito context", close: func(ctx context.Context) error {
			return incognito.Context(ctx).Close()
		}})
	}
	// a browser we only connected to belongs to someone else
	if s.launcher != nil {
		if s.browser != nil {
			browser := s.browser
			steps = append(steps, teardownStep{name: "browser", close: func(ctx context.Context) error {
				return browser.Context(ctx).Close()
			}})
		}
		l := s.launcher
		steps = append(steps, teardownStep{name: "launcher", close: func(context.Context) error {
			l.Cleanup()
			return nil
		}})
	}
	return steps
}

// runTeardown runs every step on a fresh context since the operation's
// context may already be past its deadline.
func runTeardown(steps []teardownStep, tel telemetry.API) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	for _, step := range steps {
		err := step.close(ctx)
		if err != nil {
			tel.ReportWarning(report_browser_driver_teardown, fmt.Errorf("close %s: %w", step.name, err))
		}
	}
}

func (d *BrowserDriver) teardown(s *browserSession) {
	runTeardown(s.teardownSteps(), d.tel)
}

func (d *BrowserDriver) open(ctx context.Context) (*browserSession, error) {
	s := &browserSession{}
	fail := func(step string, err error) (*browserSession, error) {
		d.teardown(s)
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, step, err)
	}

	controlUrl := d.opts.ControlUrl
	if controlUrl == "" {
		s.launcher = launcher.New().
			Context(ctx).
			Headless(d.opts.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := s.launcher.Launch()
		if err != nil {
			return fail("launch browser", err)
		}
		controlUrl = u
	}

	s.browser = rod.New().Context(ctx).ControlURL(controlUrl)
	err := s.browser.Connect()
	if err != nil {
		return fail("connect browser", err)
	}
	s.incognito, err = s.browser.Incognito()
	if err != nil {
		return fail("create incognito context", err)
	}
	s.page, err = stealth.Page(s.incognito)
	if err != nil {
		return fail("create page", err)
	}

	state := d.current()
	if len(state.Cookies) > 0 {
		err = s.incognito.SetCookies(toCookieParams(state.Cookies, d.baseUrl))
		if err != nil {
			return fail("restore cookies", err)
		}
	}
	if len(state.Origins) > 0 {
		script, err := localStorageScript(state.Origins)
		if err != nil {
			return fail("restore local storage", err)
		}
		_, err = s.page.EvalOnNewDocument(script)
		if err != nil {
			return fail("restore local storage", err)
		}
	}

	return s, nil
}

// withSession runs fn against a fresh browser session, the session is always
// torn down before returning.
func (d *BrowserDriver) withSession(ctx context.Context, op string, fn func(s *browserSession) error) error {
	ctx, cancel := context.WithTimeout(ctx, d.opts.Timeout)
	defer cancel()

	s, err := d.open(ctx)
	if err != nil {
		d.tel.ReportBroken(report_browser_driver_session, err, op)
		return err
	}
	defer d.teardown(s)

	err = fn(s)
	if err != nil {
		d.screenshot(s, op)
	}
	return err
}

func (d *BrowserDriver) screenshot(s *browserSession, op string) {
	if d.opts.ScreenshotDir == "" || s.page == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	image, err := s.page.Context(ctx).Screenshot(true, nil)
	if err != nil {
		d.tel.ReportWarning(report_browser_driver_screenshot, err, op)
		return
	}

	err = os.MkdirAll(d.opts.ScreenshotDir, 0755)
	if err != nil {
		d.tel.ReportWarning(report_browser_driver_screenshot, err, op)
		return
	}
	path := filepath.Join(
		d.opts.ScreenshotDir,
		fmt.Sprintf("%s-%s.png", op, d.clock.Now().Format("20060102-150405")),
	)
	err = os.WriteFile(path, image, 0644)
	if err != nil {
		d.tel.ReportWarning(report_browser_driver_screenshot, err, op)
		return
	}
	d.tel.ReportDebug("saved failure screenshot", "path", path)
}

func (s *browserSession) navigate(pageUrl, referer string) error {
	if referer != "" {
		cleanup, err := s.page.SetExtraHeaders([]string{"Referer", referer})
		if err == nil {
			defer cleanup()
		}
	}
	err := s.page.Navigate(pageUrl)
	if err != nil {
		return fmt.Errorf("%w: navigate %s: %w", ErrTransport, pageUrl, err)
	}
	err = s.page.WaitLoad()
	if err != nil {
		return fmt.Errorf("%w: load %s: %w", ErrTransport, pageUrl, err)
	}
	return nil
}

func (s *browserSession) html() ([]byte, error) {
	html, err := s.page.HTML()
	if err != nil {
		return nil, fmt.Errorf("%w: read page: %w", ErrTransport, err)
	}
	return []byte(html), nil
}

func (d *BrowserDriver) Fetch(ctx context.Context, pageUrl, referer string) ([]byte, error) {
	var body []byte
	err := d.withSession(ctx, "fetch", func(s *browserSession) error {
		err := s.navigate(d.resolve(pageUrl), referer)
		if err != nil {
			return err
		}
		body, err = s.html()
		return err
	})
	return body, err
}

func (d *BrowserDriver) Search(ctx context.Context, query string) ([]byte, error) {
	var body []byte
	err := d.withSession(ctx, "search", func(s *browserSession) error {
		err := s.navigate(d.resolve(pathSearch), d.resolve(pathIndex))
		if err != nil {
			return err
		}
		field, err := s.page.Element("input[name=keywords]")
		if err != nil {
			return fmt.Errorf("%w: find search field: %w", ErrTransport, err)
		}
		err = field.Input(query)
		if err != nil {
			return fmt.Errorf("%w: type query: %w", ErrTransport, err)
		}

		wait := s.page.WaitNavigation(proto.PageLifecycleEventNameLoad)
		err = s.page.Keyboard.Type(input.Enter)
		if err != nil {
			return fmt.Errorf("%w: submit search: %w", ErrTransport, err)
		}
		wait()

		body, err = s.html()
		return err
	})
	return body, err
}

func (d *BrowserDriver) Login(ctx context.Context, creds Credentials) (session.State, error) {
	var state session.State
	err := d.withSession(ctx, "login", func(s *browserSession) error {
		err := s.navigate(d.resolve(pathLogin), d.resolve(pathIndex))
		if err != nil {
			return err
		}

		has, banner, err := s.page.Has(cookieBannerSelector)
		if err == nil && has {
			err = banner.Click(proto.InputMouseButtonLeft, 1)
			if err != nil {
				d.tel.ReportWarning(report_browser_driver_login, fmt.Errorf("dismiss cookie banner: %w", err))
			}
		}

		fill := func(selector, value string) error {
			el, err := s.page.Element(selector)
			if err != nil {
				return fmt.Errorf("%w: find %s: %w", ErrAuthentication, selector, err)
			}
			return el.Input(value)
		}
		err = fill("input[name=username]", creds.Username)
		if err != nil {
			return err
		}
		err = fill("input[name=password]", creds.Password)
		if err != nil {
			return err
		}
		submit, err := s.page.Element("input[name=login]")
		if err != nil {
			return fmt.Errorf("%w: find login button: %w", ErrAuthentication, err)
		}

		wait := s.page.WaitNavigation(proto.PageLifecycleEventNameLoad)
		err = submit.Click(proto.InputMouseButtonLeft, 1)
		if err != nil {
			return fmt.Errorf("%w: submit login: %w", ErrAuthentication, err)
		}
		wait()

		cookies, err := s.incognito.GetCookies()
		if err != nil {
			return fmt.Errorf("%w: read cookies: %w", ErrTransport, err)
		}
		state.Cookies = fromNetworkCookies(cookies)

		storage, err := s.page.Eval(`() => ({
			origin: location.origin,
			local_storage: Object.keys(localStorage).map((name) => ({
				name: name,
				value: localStorage.getItem(name),
			})),
		})`)
		if err != nil {
			d.tel.ReportWarning(report_browser_driver_login, fmt.Errorf("read local storage: %w", err))
			return nil
		}
		var origin session.Origin
		err = json.Unmarshal([]byte(storage.Value.JSON("", "")), &origin)
		if err != nil {
			d.tel.ReportWarning(report_browser_driver_login, fmt.Errorf("decode local storage: %w", err))
			return nil
		}
		if len(origin.LocalStorage) > 0 {
			state.Origins = []session.Origin{origin}
		}
		return nil
	})
	if err != nil {
		return session.State{}, err
	}

	d.Restore(state)
	return state, nil
}

func toCookieParams(cookies []session.Cookie, base *url.URL) []*proto.NetworkCookieParam {
	out := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		param := &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
		}
		// cookies restored from a plain cookie header have no domain
		if param.Domain == "" {
			param.URL = base.String()
		}
		if param.Path == "" {
			param.Path = "/"
		}
		if !c.Expires.IsZero() {
			param.Expires = proto.TimeSinceEpoch(c.Expires.Unix())
		}
		out = append(out, param)
	}
	return out
}

func fromNetworkCookies(cookies []*proto.NetworkCookie) []session.Cookie {
	out := make([]session.Cookie, 0, len(cookies))
	for _, c := range cookies {
		cookie := session.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		// session cookies report -1
		if c.Expires > 0 {
			cookie.Expires = time.Unix(int64(c.Expires), 0).UTC()
		}
		out = append(out, cookie)
	}
	return out
}

// localStorageScript returns a script that fills localStorage for whichever
// saved origin the document belongs to.
func localStorageScript(origins []session.Origin) (string, error) {
	byOrigin := map[string][]session.StorageItem{}
	for _, o := range origins {
		byOrigin[o.Origin] = append(byOrigin[o.Origin], o.LocalStorage...)
	}
	serialized, err := json.Marshal(byOrigin)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(() => {
	const saved = %s;
	const items = saved[location.origin];
	if (!items) {
		return;
	}
	for (const item of items) {
		try {
			localStorage.setItem(item.name, item.value);
		} catch (e) {}
	}
})();`, serialized), nil
}
