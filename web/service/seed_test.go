package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleCSV = `show_id,type,title,director,cast,country,date_added,release_year,rating,duration,listed_in,description
s1,Movie,Dick Johnson Is Dead,Kirsten Johnson,,United States,"September 25, 2021",2020,PG-13,90 min,Documentaries,"As her father nears the end of his life, filmmaker Kirsten Johnson stages his death."
s2,TV Show,Blood & Water,,"Ama Qamata, Khosi Ngema",South Africa,"September 24, 2021",2021,TV-MA,2 Seasons,"International TV Shows, TV Dramas","After crossing paths at a party, a Cape Town teen sets out to prove whether a private-school swimming star is her sister."
,Movie,Orphan Row,,,,,2001,,,,
s3,Movie,Undated,,,,,unknown,,,,
`

func TestSeedMovies(t *testing.T) {
	setupTestDB(t)
	s := &SeedService{}
	ctx := context.Background()

	n, err := s.SeedMovies(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	ms := NewMovieService(nil, 0)
	show, err := ms.GetMovieById(ctx, "s2")
	require.NoError(t, err)
	assert.Equal(t, model.TypeTVShow, show.Type)
	assert.Equal(t, "Ama Qamata, Khosi Ngema", show.Cast)
	assert.Equal(t, []string{"International TV Shows", "TV Dramas"}, show.Genres())

	undated, err := ms.GetMovieById(ctx, "s3")
	require.NoError(t, err)
	assert.Zero(t, undated.ReleaseYear)
}

func TestSeedKeepsEnrichment(t *testing.T) {
	setupTestDB(t)
	s := &SeedService{}
	ctx := context.Background()
	now := time.Now().UTC()
	insertMovie(t, model.Movie{
		ShowId: "s1", Title: "Old title", ImdbRating: ptr(7.4),
		OmdbDataAvailable: true, LastUpdated: &now, OmdbLastAttempt: &now,
	})

	_, err := s.SeedMovies(ctx, strings.NewReader(sampleCSV))
	require.NoError(t, err)

	movie, err := NewMovieService(nil, 0).GetMovieById(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "Dick Johnson Is Dead", movie.Title)
	assert.Equal(t, 2020, movie.ReleaseYear)
	assert.True(t, movie.OmdbDataAvailable)
	require.NotNil(t, movie.ImdbRating)
	assert.Equal(t, 7.4, *movie.ImdbRating)
}

func TestSeedBatchesAndDuplicates(t *testing.T) {
	setupTestDB(t)
	var b strings.Builder
	b.WriteString("title,show_id,extra\n")
	for i := 0; i < seedBatchSize+50; i++ {
		fmt.Fprintf(&b, "Title %d,id%d,x\n", i, i)
	}
	b.WriteString("Renamed,id0,x\n")

	path := filepath.Join(t.TempDir(), "titles.csv")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))

	n, err := (&SeedService{}).SeedMoviesFromCSV(context.Background(), path)
	require.NoError(t, err)
	// the trailing duplicate is written a second time
	assert.Equal(t, seedBatchSize+51, n)

	var count int64
	require.NoError(t, database.GetDB().Model(&model.Movie{}).Count(&count).Error)
	assert.EqualValues(t, seedBatchSize+50, count)

	first, err := NewMovieService(nil, 0).GetMovieById(context.Background(), "id0")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", first.Title)
}

func TestSeedErrors(t *testing.T) {
	setupTestDB(t)
	s := &SeedService{}

	_, err := s.SeedMoviesFromCSV(context.Background(), filepath.Join(t.TempDir(), "missing.csv"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	_, err = s.SeedMovies(context.Background(), strings.NewReader("title,year\nx,1\n"))
	assert.ErrorContains(t, err, "show_id")

	n, err := s.SeedMovies(context.Background(), strings.NewReader(""))
	require.NoError(t, err)
	assert.Zero(t, n)
}
