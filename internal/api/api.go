package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"mircrewapi/internal/components/assert"
	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/scrapers/mircrew"
	"mircrewapi/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	report_api_search         = "api.search"
	report_api_search_magnets = "api.search-magnets"
	report_api_post_magnets   = "api.post-magnets"
)

// SearchAPI is what the routes need from the search service.
type SearchAPI interface {
	SearchPosts(ctx context.Context, query string) ([]service.PostItem, error)
	Search(ctx context.Context, query string) ([]service.MagnetItem, error)
	GetMagnets(ctx context.Context, postId string) ([]service.MagnetItem, error)
	PostUrl(postId string) (string, error)
}

type PostResponseItem struct {
	Id    string `json:"id"`
	Title string `json:"title"`
	Url   string `json:"url"`
}

type MagnetResponseItem struct {
	Title string `json:"title"`
	Url   string `json:"url"`
}

type PostSearchResponse struct {
	Query   string             `json:"query"`
	Results []PostResponseItem `json:"results"`
}

type MagnetSearchResponse struct {
	Query   string               `json:"query"`
	Results []MagnetResponseItem `json:"results"`
}

type PostMagnetsResponse struct {
	PostId  string               `json:"post_id"`
	PostUrl string               `json:"post_url"`
	Results []MagnetResponseItem `json:"results"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type server struct {
	svc SearchAPI
	tel telemetry.API
}

// NewRouter returns the http handler serving the search api.
func NewRouter(svc SearchAPI, tel telemetry.API) http.Handler {
	assert.NotNil(svc)
	assert.NotNil(tel)

	s := server{
		svc: svc,
		tel: telemetry.NewScopedAPI("api", tel),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	// a search visits every matching post, which can take a while
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/search", s.searchPosts)
	r.Get("/search/magnets", s.searchMagnets)
	r.Get("/post/{id}/magnets", s.postMagnets)

	return r
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// statusOf maps an error to the http status it is reported with.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrEmptyQuery),
		errors.Is(err, mircrew.ErrInvalidPostId):
		return http.StatusBadRequest
	case errors.Is(err, mircrew.ErrConfiguration):
		return http.StatusInternalServerError
	case errors.Is(err, mircrew.ErrAuthentication),
		errors.Is(err, mircrew.ErrTransport):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s server) writeError(w http.ResponseWriter, id string, err error) {
	status := statusOf(err)
	if status >= 500 {
		s.tel.ReportBroken(id, err)
	}
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}

func queryParam(r *http.Request) (string, bool) {
	q := r.URL.Query().Get("q")
	return q, q != ""
}

func toMagnetResponse(items []service.MagnetItem) []MagnetResponseItem {
	out := make([]MagnetResponseItem, len(items))
	for i, item := range items {
		out[i] = MagnetResponseItem{Title: item.Title, Url: item.Url}
	}
	return out
}

func (s server) searchPosts(w http.ResponseWriter, r *http.Request) {
	q, ok := queryParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing query parameter 'q'"})
		return
	}
	items, err := s.svc.SearchPosts(r.Context(), q)
	if err != nil {
		s.writeError(w, report_api_search, err)
		return
	}

	res := PostSearchResponse{Query: q, Results: make([]PostResponseItem, len(items))}
	for i, item := range items {
		res.Results[i] = PostResponseItem{Id: item.Id, Title: item.Title, Url: item.Url}
	}
	writeJSON(w, http.StatusOK, res)
}

func (s server) searchMagnets(w http.ResponseWriter, r *http.Request) {
	q, ok := queryParam(r)
	if !ok {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing query parameter 'q'"})
		return
	}
	items, err := s.svc.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, report_api_search_magnets, err)
		return
	}
	writeJSON(w, http.StatusOK, MagnetSearchResponse{
		Query:   q,
		Results: toMagnetResponse(items),
	})
}

func (s server) postMagnets(w http.ResponseWriter, r *http.Request) {
	postId := chi.URLParam(r, "id")
	postUrl, err := s.svc.PostUrl(postId)
	if err != nil {
		s.writeError(w, report_api_post_magnets, err)
		return
	}
	items, err := s.svc.GetMagnets(r.Context(), postId)
	if err != nil {
		s.writeError(w, report_api_post_magnets, err)
		return
	}
	writeJSON(w, http.StatusOK, PostMagnetsResponse{
		PostId:  postId,
		PostUrl: postUrl,
		Results: toMagnetResponse(items),
	})
}
