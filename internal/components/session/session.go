package session

import (
	"net/http"
	"strings"
	"time"
)

// Cookie is a browser cookie as it is persisted between runs.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain,omitempty"`
	Path     string    `json:"path,omitempty"`
	Expires  time.Time `json:"expires,omitempty"`
	Secure   bool      `json:"secure,omitempty"`
	HttpOnly bool      `json:"http_only,omitempty"`
}

type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin holds the localStorage of a single origin (scheme://host).
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"local_storage"`
}

// State is everything needed to resume an authenticated browsing context.
type State struct {
	Cookies []Cookie  `json:"cookies"`
	Origins []Origin  `json:"origins,omitempty"`
	SavedAt time.Time `json:"saved_at"`
}

func (s State) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Origins) == 0
}

// CookieHeader formats the cookies as the value of a Cookie request header,
// later cookies with the same name win.
func (s State) CookieHeader() string {
	order := []string{}
	values := map[string]string{}
	for _, c := range s.Cookies {
		if c.Name == "" {
			continue
		}
		_, seen := values[c.Name]
		if !seen {
			order = append(order, c.Name)
		}
		values[c.Name] = c.Value
	}

	pairs := make([]string, len(order))
	for i, name := range order {
		pairs[i] = name + "=" + values[name]
	}
	return strings.Join(pairs, "; ")
}

func (s State) HttpCookies() []*http.Cookie {
	out := make([]*http.Cookie, len(s.Cookies))
	for i, c := range s.Cookies {
		out[i] = &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	return out
}

func FromHttpCookies(cookies []*http.Cookie) []Cookie {
	out := make([]Cookie, len(cookies))
	for i, c := range cookies {
		out[i] = Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			Secure:   c.Secure,
			HttpOnly: c.HttpOnly,
		}
	}
	return out
}

// ParseCookieHeader is the inverse of CookieHeader, pairs without a name are
// dropped.
func ParseCookieHeader(header string) []Cookie {
	out := []Cookie{}
	for _, pair := range strings.Split(header, ";") {
		name, value, _ := strings.Cut(strings.TrimSpace(pair), "=")
		if name == "" {
			continue
		}
		out = append(out, Cookie{Name: name, Value: value})
	}
	return out
}
