package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/scrapers/mircrew"
	"mircrewapi/internal/service"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	err error
}

func (f fakeService) SearchPosts(ctx context.Context, query string) ([]service.PostItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []service.PostItem{
		{Id: "456", Title: "Title 1080p", Url: "https://example.com/viewtopic.php?t=456"},
	}, nil
}

func (f fakeService) Search(ctx context.Context, query string) ([]service.MagnetItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []service.MagnetItem{
		{Title: "Title 1080p", Url: "magnet:?xt=urn:btih:456"},
	}, nil
}

func (f fakeService) GetMagnets(ctx context.Context, postId string) ([]service.MagnetItem, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []service.MagnetItem{}, nil
}

func (f fakeService) PostUrl(postId string) (string, error) {
	if postId == "bad" {
		return "", fmt.Errorf("%w: '%s'", mircrew.ErrInvalidPostId, postId)
	}
	return "https://example.com/viewtopic.php?t=" + postId, nil
}

func do(t *testing.T, handler http.Handler, target string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, "application/json", rec.Header().Get("content-type"))
	var body map[string]any
	err := json.Unmarshal(rec.Body.Bytes(), &body)
	require.Nil(t, err, rec.Body.String())
	return rec.Code, body
}

func TestRoutes(t *testing.T) {
	handler := NewRouter(fakeService{}, telemetry.NewRecorderAPI())

	testCases := []struct {
		target string
		status int
		body   map[string]any
	}{
		{
			target: "/health",
			status: http.StatusOK,
			body:   map[string]any{"status": "ok"},
		},
		{
			target: "/search?q=stranger",
			status: http.StatusOK,
			body: map[string]any{
				"query": "stranger",
				"results": []any{
					map[string]any{"id": "456", "title": "Title 1080p", "url": "https://example.com/viewtopic.php?t=456"},
				},
			},
		},
		{
			target: "/search/magnets?q=stranger",
			status: http.StatusOK,
			body: map[string]any{
				"query": "stranger",
				"results": []any{
					map[string]any{"title": "Title 1080p", "url": "magnet:?xt=urn:btih:456"},
				},
			},
		},
		{
			target: "/post/456/magnets",
			status: http.StatusOK,
			body: map[string]any{
				"post_id":  "456",
				"post_url": "https://example.com/viewtopic.php?t=456",
				"results":  []any{},
			},
		},
		{
			target: "/search",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "missing query parameter 'q'"},
		},
		{
			target: "/search/magnets?q=",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "missing query parameter 'q'"},
		},
		{
			target: "/post/bad/magnets",
			status: http.StatusBadRequest,
			body:   map[string]any{"error": "mircrew: invalid post id: 'bad'"},
		},
	}

	for _, test := range testCases {
		status, body := do(t, handler, test.target)
		require.Equal(t, test.status, status, test.target)
		if diff := cmp.Diff(test.body, body); diff != "" {
			t.Fatalf("%s: %s", test.target, diff)
		}
	}
}

func TestErrorStatus(t *testing.T) {
	testCases := []struct {
		err    error
		status int
	}{
		{err: fmt.Errorf("%w: username and password are required", mircrew.ErrConfiguration), status: http.StatusInternalServerError},
		{err: fmt.Errorf("login failed: %w", mircrew.ErrAuthentication), status: http.StatusBadGateway},
		{err: fmt.Errorf("%w: status 503", mircrew.ErrTransport), status: http.StatusBadGateway},
		{err: service.ErrEmptyQuery, status: http.StatusBadRequest},
		{err: fmt.Errorf("something else"), status: http.StatusInternalServerError},
	}

	for _, test := range testCases {
		tel := telemetry.NewRecorderAPI()
		handler := NewRouter(fakeService{err: test.err}, tel)

		for _, target := range []string{"/search?q=x", "/search/magnets?q=x", "/post/1/magnets"} {
			status, body := do(t, handler, target)
			require.Equal(t, test.status, status, "%s: %v", target, test.err)
			require.Equal(t, test.err.Error(), body["error"])
			// no partial payloads on failure
			require.NotContains(t, body, "results")
		}
		if test.status >= 500 {
			require.Len(t, tel.Reports("broken"), 3)
		} else {
			require.Empty(t, tel.Reports("broken"))
		}
	}
}
