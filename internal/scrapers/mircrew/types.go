package mircrew

import (
	"context"
	"time"

	"mircrewapi/internal/components/session"
)

const (
	DefaultBaseUrl = "https://mircrew-releases.org"

	pathIndex  = "/index.php"
	pathLogin  = "/ucp.php?mode=login"
	pathSearch = "/search.php"
	pathPost   = "/viewtopic.php"

	cookieCacheKey = "mircrew_cookie"
	cookieTtl      = 12 * time.Hour

	userAgent      = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/143.0.0.0 Safari/537.36"
	acceptLanguage = "it-IT,it;q=0.9,en-US;q=0.8,en;q=0.7"
	acceptHtml     = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8"
)

var qualityKeywords = []string{
	"2160p",
	"1080p",
	"720p",
	"480p",
	"4k",
	"x265",
	"x264",
}

// PostResult is a forum thread whose title carries a quality marker.
type PostResult struct {
	Id    string
	Title string
	Url   string
}

// MagnetResult is a single magnet link found in a post, Url always starts
// with "magnet:".
type MagnetResult struct {
	Title string
	Url   string
}

type Credentials struct {
	Username string
	Password string
}

func (c Credentials) complete() bool {
	return c.Username != "" && c.Password != ""
}

type loginTokens struct {
	creationTime string
	formToken    string
}

type SessionStatus int

const (
	NoSession SessionStatus = iota
	SessionRestored
	Verified
	Authenticated
	LoginFailed
)

func (s SessionStatus) String() string {
	switch s {
	case NoSession:
		return "no-session"
	case SessionRestored:
		return "session-restored"
	case Verified:
		return "verified"
	case Authenticated:
		return "authenticated"
	case LoginFailed:
		return "login-failed"
	}
	return "unknown"
}

// Driver fetches forum pages, it is either plain http or a real browser.
//
// note: fault injection point
type Driver interface {
	// Fetch returns the markup of pageUrl.
	Fetch(ctx context.Context, pageUrl, referer string) ([]byte, error)
	// Search returns the markup of the results page for query.
	Search(ctx context.Context, query string) ([]byte, error)
	// Login submits creds and returns the resulting session, it does not check
	// if the session is actually logged in.
	Login(ctx context.Context, creds Credentials) (session.State, error)
	// Restore installs a previously saved session.
	Restore(state session.State)
	Close() error
}

// SessionStore persists the full session between runs.
type SessionStore interface {
	Save(ctx context.Context, state session.State) error
	Restore(ctx context.Context) (session.State, bool)
	Clear(ctx context.Context) error
}
