package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/web/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLookup struct {
	results map[string]*omdb.Result
	errs    map[string]error
	calls   []string
}

func (f *fakeLookup) Lookup(_ context.Context, title string, _ int, _ omdb.Kind) (*omdb.Result, error) {
	f.calls = append(f.calls, title)
	if err, ok := f.errs[title]; ok {
		return nil, err
	}
	if r, ok := f.results[title]; ok {
		return r, nil
	}
	return nil, omdb.ErrNotFound
}

func ptr[T any](v T) *T {
	return &v
}

func newTestMovieService(lookup MetadataLookup, now time.Time) *MovieService {
	s := NewMovieService(lookup, 0)
	s.now = func() time.Time { return now }
	return s
}

func insertMovie(t *testing.T, m model.Movie) {
	t.Helper()
	require.NoError(t, database.GetDB().Create(&m).Error)
}

func TestNextStep(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	refresh := DefaultRefreshAge
	tests := []struct {
		name    string
		movie   model.Movie
		enabled bool
		want    consolidationStep
	}{
		{"no client", model.Movie{}, false, stepDisabled},
		{"never attempted", model.Movie{}, true, stepLookup},
		{"fresh data", model.Movie{OmdbDataAvailable: true, LastUpdated: ptr(now.Add(-24 * time.Hour))}, true, stepFresh},
		{"stale data", model.Movie{
			OmdbDataAvailable: true,
			LastUpdated:       ptr(now.Add(-40 * 24 * time.Hour)),
			OmdbLastAttempt:   ptr(now.Add(-40 * 24 * time.Hour)),
		}, true, stepLookup},
		{"failed two days ago", model.Movie{OmdbLastAttempt: ptr(now.Add(-48 * time.Hour))}, true, stepRetryLater},
		{"failed eight days ago", model.Movie{OmdbLastAttempt: ptr(now.Add(-8 * 24 * time.Hour))}, true, stepLookup},
		{"available without timestamp", model.Movie{OmdbDataAvailable: true}, true, stepLookup},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextStep(&tt.movie, tt.enabled, refresh, now)
			assert.Equal(t, tt.want, got, "got %s", got)
		})
	}
}

func TestConsolidateSuccessWritesBlock(t *testing.T) {
	setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	lookup := &fakeLookup{results: map[string]*omdb.Result{
		"Sankofa": {ImdbRating: ptr(7.1), ImdbVotes: ptr(1200), Poster: ptr("https://img/p.jpg")},
	}}
	s := newTestMovieService(lookup, now)
	ctx := context.Background()
	insertMovie(t, model.Movie{ShowId: "s1", Type: model.TypeMovie, Title: "Sankofa", ReleaseYear: 1993})

	movie, err := s.GetConsolidatedMovie(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, movie.OmdbDataAvailable)
	assert.Equal(t, 7.1, *movie.ImdbRating)

	stored, err := s.GetMovieById(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, stored.OmdbDataAvailable)
	require.NotNil(t, stored.ImdbVotes)
	assert.Equal(t, 1200, *stored.ImdbVotes)
	assert.Nil(t, stored.BoxOffice)
	require.NotNil(t, stored.LastUpdated)
	assert.WithinDuration(t, now, *stored.LastUpdated, time.Second)

	// fresh data is not looked up again
	_, err = s.GetConsolidatedMovie(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, lookup.calls, 1)
}

func TestConsolidateNotFoundDeletesRow(t *testing.T) {
	setupTestDB(t)
	s := newTestMovieService(&fakeLookup{}, time.Now().UTC())
	ctx := context.Background()
	insertMovie(t, model.Movie{ShowId: "s2", Title: "No Such Title"})

	_, err := s.GetConsolidatedMovie(ctx, "s2")
	assert.True(t, database.IsNotFound(err))

	_, err = s.GetMovieById(ctx, "s2")
	assert.True(t, database.IsNotFound(err))
}

func TestConsolidateFailureRecordsAttempt(t *testing.T) {
	setupTestDB(t)
	now := time.Now().UTC().Truncate(time.Second)
	lookup := &fakeLookup{errs: map[string]error{"Blood & Water": errors.New("omdb: Request limit reached!")}}
	s := newTestMovieService(lookup, now)
	ctx := context.Background()
	insertMovie(t, model.Movie{ShowId: "s3", Type: model.TypeTVShow, Title: "Blood & Water"})

	movie, err := s.GetConsolidatedMovie(ctx, "s3")
	require.NoError(t, err)
	assert.False(t, movie.OmdbDataAvailable)

	stored, err := s.GetMovieById(ctx, "s3")
	require.NoError(t, err)
	require.NotNil(t, stored.OmdbLastAttempt)
	assert.Nil(t, stored.LastUpdated)
	assert.Nil(t, stored.ImdbRating)

	// inside the retry window nothing is asked
	_, err = s.GetConsolidatedMovie(ctx, "s3")
	require.NoError(t, err)
	assert.Len(t, lookup.calls, 1)

	// a week later it is tried again
	s.now = func() time.Time { return now.Add(RetryWindow + time.Hour) }
	_, err = s.GetConsolidatedMovie(ctx, "s3")
	require.NoError(t, err)
	assert.Len(t, lookup.calls, 2)
}

func TestConsolidateKeepsUntitledRows(t *testing.T) {
	setupTestDB(t)
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`{"Response":"False","Error":"Movie not found!"}`))
	}))
	t.Cleanup(srv.Close)

	ctx := context.Background()
	header := "show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description\n"
	_, err := (&SeedService{}).SeedMovies(ctx, strings.NewReader(header+"s9,Movie,,,,,,2001,,,,\n"))
	require.NoError(t, err)

	now := time.Now().UTC().Truncate(time.Second)
	s := newTestMovieService(omdb.NewClient("key", omdb.WithBaseURL(srv.URL)), now)

	movies, _, err := s.GetMoviesPaginated(ctx, entity.NewPage(1, 20))
	require.NoError(t, err)
	assert.Len(t, movies, 1)
	assert.EqualValues(t, 0, atomic.LoadInt32(&hits))

	stored, err := s.GetMovieById(ctx, "s9")
	require.NoError(t, err)
	require.NotNil(t, stored.OmdbLastAttempt)
	assert.False(t, stored.OmdbDataAvailable)

	_, deleted, err := s.RefreshMovie(ctx, "s9")
	assert.ErrorIs(t, err, omdb.ErrEmptyTitle)
	assert.False(t, deleted)
}

func TestConsolidateDisabled(t *testing.T) {
	setupTestDB(t)
	s := NewMovieService(nil, 0)
	insertMovie(t, model.Movie{ShowId: "s4", Title: "Kota Factory"})

	deleted, err := s.Consolidate(context.Background(), &model.Movie{ShowId: "s4", Title: "Kota Factory"})
	require.NoError(t, err)
	assert.False(t, deleted)

	_, _, err = s.RefreshMovie(context.Background(), "s4")
	assert.ErrorIs(t, err, omdb.ErrNoAPIKey)
}

func TestGetMoviesPaginated(t *testing.T) {
	setupTestDB(t)
	lookup := &fakeLookup{results: map[string]*omdb.Result{
		"Alpha": {}, "Bravo": {}, "Delta": {}, "Echo": {},
	}}
	s := newTestMovieService(lookup, time.Now().UTC())
	ctx := context.Background()
	for i, title := range []string{"Echo", "Alpha", "Charlie", "Delta", "Bravo"} {
		insertMovie(t, model.Movie{ShowId: string(rune('a' + i)), Title: title})
	}

	movies, page, err := s.GetMoviesPaginated(ctx, entity.NewPage(1, 3))
	require.NoError(t, err)
	assert.True(t, page.HasNext)
	// Charlie is unknown to OMDB, drops out and Delta fills its place
	require.Len(t, movies, 3)
	assert.Equal(t, "Alpha", movies[0].Title)
	assert.Equal(t, "Bravo", movies[1].Title)
	assert.Equal(t, "Delta", movies[2].Title)

	movies, page, err = s.GetMoviesPaginated(ctx, entity.NewPage(2, 3))
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	require.Len(t, movies, 1)
	assert.Equal(t, "Echo", movies[0].Title)
}

func TestMovieCrud(t *testing.T) {
	setupTestDB(t)
	s := NewMovieService(nil, 0)
	ctx := context.Background()

	_, err := s.CreateMovie(ctx, entity.MovieForm{Title: "  "})
	assert.ErrorIs(t, err, ErrTitleRequired)

	movie, err := s.CreateMovie(ctx, entity.MovieForm{Title: "Midnight Mass", Type: model.TypeTVShow, ReleaseYear: "2021", Cast: "Kate Siegel"})
	require.NoError(t, err)
	assert.Regexp(t, `^m-[0-9a-f-]{36}$`, movie.ShowId)

	_, err = s.CreateMovie(ctx, entity.MovieForm{ShowId: movie.ShowId, Title: "Other"})
	assert.ErrorIs(t, err, ErrShowIdTaken)

	found, page, err := s.ListMovies(ctx, "siegel", entity.NewPage(1, 10))
	require.NoError(t, err)
	assert.False(t, page.HasNext)
	require.Len(t, found, 1)
	assert.Equal(t, "Midnight Mass", found[0].Title)

	require.NoError(t, s.DeleteMovie(ctx, movie.ShowId))
	_, err = s.GetMovieById(ctx, movie.ShowId)
	assert.True(t, database.IsNotFound(err))
}

func TestUpdateMovieResetsEnrichmentOnIdentityChange(t *testing.T) {
	setupTestDB(t)
	s := NewMovieService(nil, 0)
	ctx := context.Background()
	now := time.Now().UTC()
	insertMovie(t, model.Movie{
		ShowId: "s7", Type: model.TypeMovie, Title: "Ganglands", ReleaseYear: 2021,
		ImdbRating: ptr(7.0), OmdbDataAvailable: true, LastUpdated: &now, OmdbLastAttempt: &now,
	})

	updated, err := s.UpdateMovie(ctx, "s7", entity.MovieForm{Type: model.TypeMovie, Title: "Ganglands", ReleaseYear: "2021", Description: "heist"})
	require.NoError(t, err)
	assert.True(t, updated.OmdbDataAvailable, "description edits keep the enrichment")

	_, err = s.UpdateMovie(ctx, "s7", entity.MovieForm{Type: model.TypeTVShow, Title: "Ganglands", ReleaseYear: "2021"})
	require.NoError(t, err)
	stored, err := s.GetMovieById(ctx, "s7")
	require.NoError(t, err)
	assert.Equal(t, model.TypeTVShow, stored.Type)
	assert.False(t, stored.OmdbDataAvailable)
	assert.Nil(t, stored.ImdbRating)
	assert.Nil(t, stored.OmdbLastAttempt)

	_, err = s.UpdateMovie(ctx, "missing", entity.MovieForm{Title: "x"})
	assert.True(t, database.IsNotFound(err))
}

func TestPendingEnrichmentAndStats(t *testing.T) {
	setupTestDB(t)
	now := time.Now().UTC()
	s := newTestMovieService(&fakeLookup{}, now)
	ctx := context.Background()

	insertMovie(t, model.Movie{ShowId: "fresh", Title: "Fresh", OmdbDataAvailable: true, LastUpdated: ptr(now.Add(-time.Hour)), OmdbLastAttempt: ptr(now.Add(-time.Hour))})
	insertMovie(t, model.Movie{ShowId: "new", Title: "New"})
	insertMovie(t, model.Movie{ShowId: "recent-fail", Title: "Recent", OmdbLastAttempt: ptr(now.Add(-24 * time.Hour))})
	insertMovie(t, model.Movie{ShowId: "old-fail", Title: "Old", OmdbLastAttempt: ptr(now.Add(-10 * 24 * time.Hour))})

	pending, err := s.PendingEnrichment(ctx, 10)
	require.NoError(t, err)
	ids := make([]string, 0, len(pending))
	for _, m := range pending {
		ids = append(ids, m.ShowId)
	}
	assert.Equal(t, []string{"new", "old-fail"}, ids)

	stats, err := s.GetConsolidationStats(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 4, stats.Total)
	assert.EqualValues(t, 1, stats.Enriched)
	assert.EqualValues(t, 1, stats.NeverAttempted)
	assert.EqualValues(t, 1, stats.AwaitingRetry)
}
