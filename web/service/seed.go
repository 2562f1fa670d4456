package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"

	"gorm.io/gorm/clause"
)

const seedBatchSize = 200

type SeedService struct{}

// SeedMoviesFromCSV upserts every row of the CSV at path into the catalog. Existing rows
// get their catalog columns overwritten while their enrichment block is kept. It returns
// the number of rows written.
func (s *SeedService) SeedMoviesFromCSV(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	n, err := s.SeedMovies(ctx, f)
	if err != nil {
		return n, fmt.Errorf("seed %s: %w", path, err)
	}
	logger.Infof("seeded %d titles from %s", n, path)
	return n, nil
}

// SeedMovies reads a header-driven CSV from r. Columns are matched by name, unknown
// columns are ignored and rows without a show_id are skipped.
func (s *SeedService) SeedMovies(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return 0, nil
	} else if err != nil {
		return 0, err
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))] = i
	}
	if _, ok := index["show_id"]; !ok {
		return 0, errors.New("missing show_id column")
	}

	db := database.GetDB().WithContext(ctx)
	upsert := clause.OnConflict{
		Columns:   []clause.Column{{Name: "show_id"}},
		DoUpdates: clause.AssignmentColumns(model.CatalogColumns),
	}

	total, skipped := 0, 0
	batch := make([]model.Movie, 0, seedBatchSize)
	inBatch := make(map[string]int, seedBatchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := db.Clauses(upsert).Create(&batch).Error; err != nil {
			return err
		}
		total += len(batch)
		batch = batch[:0]
		clear(inBatch)
		return nil
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return total, fmt.Errorf("line %d: %w", line, err)
		}
		movie := movieFromRecord(record, index)
		if movie.ShowId == "" {
			skipped++
			continue
		}
		// postgres rejects an upsert touching the same key twice
		if i, ok := inBatch[movie.ShowId]; ok {
			batch[i] = movie
			continue
		}
		inBatch[movie.ShowId] = len(batch)
		batch = append(batch, movie)
		if len(batch) == seedBatchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}
	if skipped > 0 {
		logger.Warningf("seed skipped %d rows without show_id", skipped)
	}
	return total, nil
}

func movieFromRecord(record []string, index map[string]int) model.Movie {
	field := func(name string) string {
		i, ok := index[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
	year, err := strconv.Atoi(field("release_year"))
	if err != nil {
		year = 0
	}
	return model.Movie{
		ShowId:      field("show_id"),
		Type:        field("type"),
		Title:       field("title"),
		Director:    field("director"),
		Cast:        field("cast"),
		Country:     field("country"),
		DateAdded:   field("date_added"),
		ReleaseYear: year,
		Rating:      field("rating"),
		Duration:    field("duration"),
		ListedIn:    field("listed_in"),
		Description: field("description"),
	}
}
