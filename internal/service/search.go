package service

import (
	"context"
	"errors"
	"strings"

	"mircrewapi/internal/components/assert"
	"mircrewapi/internal/components/telemetry"
	"mircrewapi/internal/scrapers/mircrew"
)

var ErrEmptyQuery = errors.New("query must not be empty")

// Searcher is the part of the mircrew client the service depends on.
//
// note: fault injection point
type Searcher interface {
	SearchPosts(ctx context.Context, query string) ([]mircrew.PostResult, error)
	Search(ctx context.Context, query string) ([]mircrew.MagnetResult, error)
	GetMagnets(ctx context.Context, postId string) ([]mircrew.MagnetResult, error)
	PostUrl(postId string) (string, error)
}

type PostItem struct {
	Id    string
	Title string
	Url   string
}

type MagnetItem struct {
	Title string
	Url   string
}

// SearchService exposes the mircrew client to the http api and the cli.
type SearchService struct {
	client Searcher
	tel    telemetry.API
}

func NewSearchService(client Searcher, tel telemetry.API) SearchService {
	assert.NotNil(client)
	assert.NotNil(tel)
	return SearchService{
		client: client,
		tel:    telemetry.NewScopedAPI("search_service", tel),
	}
}

func normalizeQuery(query string) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	return query, nil
}

func toMagnetItems(results []mircrew.MagnetResult) []MagnetItem {
	items := make([]MagnetItem, len(results))
	for i, r := range results {
		items[i] = MagnetItem{Title: r.Title, Url: r.Url}
	}
	return items
}

// SearchPosts returns the matching threads without visiting them.
func (s SearchService) SearchPosts(ctx context.Context, query string) ([]PostItem, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	results, err := s.client.SearchPosts(ctx, query)
	if err != nil {
		return nil, err
	}
	s.tel.ReportDebug("search posts", "query", query, "results", len(results))

	items := make([]PostItem, len(results))
	for i, r := range results {
		items[i] = PostItem{Id: r.Id, Title: r.Title, Url: r.Url}
	}
	return items, nil
}

// Search returns the magnets of every matching thread.
func (s SearchService) Search(ctx context.Context, query string) ([]MagnetItem, error) {
	query, err := normalizeQuery(query)
	if err != nil {
		return nil, err
	}
	results, err := s.client.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	s.tel.ReportDebug("search magnets", "query", query, "results", len(results))
	return toMagnetItems(results), nil
}

func (s SearchService) GetMagnets(ctx context.Context, postId string) ([]MagnetItem, error) {
	results, err := s.client.GetMagnets(ctx, strings.TrimSpace(postId))
	if err != nil {
		return nil, err
	}
	return toMagnetItems(results), nil
}

func (s SearchService) PostUrl(postId string) (string, error) {
	return s.client.PostUrl(strings.TrimSpace(postId))
}
