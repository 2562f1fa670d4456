package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/marquee-app/marquee/database"
	"github.com/marquee-app/marquee/database/model"
	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/omdb"
	"github.com/marquee-app/marquee/web/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// RetryWindow is how long a failed lookup blocks the next attempt.
	RetryWindow       = 7 * 24 * time.Hour
	DefaultRefreshAge = 30 * 24 * time.Hour
)

var (
	ErrTitleRequired = errors.New("title required")
	ErrShowIdTaken   = errors.New("show id already exists")
)

// MetadataLookup is the part of the OMDB client the catalog needs.
type MetadataLookup interface {
	Lookup(ctx context.Context, title string, year int, kind omdb.Kind) (*omdb.Result, error)
}

// ConsolidationStats summarizes the enrichment state of the catalog.
type ConsolidationStats struct {
	Total          int64 `json:"total"`
	Enriched       int64 `json:"enriched"`
	NeverAttempted int64 `json:"never_attempted"`
	AwaitingRetry  int64 `json:"awaiting_retry"`
}

type consolidationStep int

const (
	stepDisabled consolidationStep = iota
	stepFresh
	stepRetryLater
	stepLookup
)

func (s consolidationStep) String() string {
	switch s {
	case stepDisabled:
		return "disabled"
	case stepFresh:
		return "fresh"
	case stepRetryLater:
		return "retry-later"
	case stepLookup:
		return "lookup"
	}
	return "unknown"
}

// nextStep decides what consolidation does with m at now.
func nextStep(m *model.Movie, enabled bool, refreshAge time.Duration, now time.Time) consolidationStep {
	if !enabled {
		return stepDisabled
	}
	if m.OmdbDataAvailable && m.LastUpdated != nil && now.Sub(*m.LastUpdated) < refreshAge {
		return stepFresh
	}
	if m.OmdbLastAttempt != nil && now.Sub(*m.OmdbLastAttempt) < RetryWindow {
		return stepRetryLater
	}
	return stepLookup
}

type MovieService struct {
	lookup     MetadataLookup
	refreshAge time.Duration
	now        func() time.Time
}

// NewMovieService builds the catalog service. A nil lookup disables enrichment.
func NewMovieService(lookup MetadataLookup, refreshAge time.Duration) *MovieService {
	if refreshAge <= 0 {
		refreshAge = DefaultRefreshAge
	}
	return &MovieService{
		lookup:     lookup,
		refreshAge: refreshAge,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (s *MovieService) EnrichmentEnabled() bool {
	return s.lookup != nil
}

func (s *MovieService) CreateMovieTable() error {
	return database.GetDB().AutoMigrate(&model.Movie{})
}

// GetMoviesPaginated returns one page of the catalog ordered by title. Every row is
// consolidated first; rows removed by consolidation are left out and the page is filled
// from the rows that follow.
func (s *MovieService) GetMoviesPaginated(ctx context.Context, page entity.Page) ([]model.Movie, entity.Page, error) {
	kept := make([]model.Movie, 0, page.Size)
	offset := page.Offset()
	page.HasNext = false

	for len(kept) < page.Size {
		need := page.Size - len(kept)
		var batch []model.Movie
		err := database.GetDB().WithContext(ctx).
			Order("title ASC, show_id ASC").
			Limit(need + 1).
			Offset(offset).
			Find(&batch).
			Error
		if err != nil {
			return nil, page, err
		}
		page.HasNext = len(batch) > need
		if page.HasNext {
			batch = batch[:need]
		}

		removed := 0
		for i := range batch {
			deleted, err := s.Consolidate(ctx, &batch[i])
			if err != nil {
				logger.Warningf("consolidate %s: %v", batch[i].ShowId, err)
			}
			if deleted {
				removed++
			} else {
				kept = append(kept, batch[i])
			}
		}
		// deleted rows no longer count towards the offset
		offset += len(batch) - removed
		if !page.HasNext || removed == 0 {
			break
		}
	}
	return kept, page, nil
}

// ListMovies is the admin listing: optional search over title, director and cast, no
// consolidation.
func (s *MovieService) ListMovies(ctx context.Context, q string, page entity.Page) ([]model.Movie, entity.Page, error) {
	query := database.GetDB().WithContext(ctx).Model(&model.Movie{})
	if q = strings.TrimSpace(q); q != "" {
		like := "%" + q + "%"
		query = query.Where(clause.Or(
			clause.Like{Column: clause.Column{Name: "title"}, Value: like},
			clause.Like{Column: clause.Column{Name: "director"}, Value: like},
			clause.Like{Column: clause.Column{Name: "cast"}, Value: like},
		))
	}

	var movies []model.Movie
	err := query.Order("title ASC, show_id ASC").
		Limit(page.Size + 1).
		Offset(page.Offset()).
		Find(&movies).
		Error
	if err != nil {
		return nil, page, err
	}
	if len(movies) > page.Size {
		movies = movies[:page.Size]
		page.HasNext = true
	}
	return movies, page, nil
}

func (s *MovieService) GetMovieById(ctx context.Context, showId string) (*model.Movie, error) {
	movie := &model.Movie{}
	err := database.GetDB().WithContext(ctx).
		Where("show_id = ?", showId).
		First(movie).
		Error
	if err != nil {
		return nil, err
	}
	return movie, nil
}

// GetConsolidatedMovie loads a movie and consolidates it. A row removed by consolidation
// is reported as not found.
func (s *MovieService) GetConsolidatedMovie(ctx context.Context, showId string) (*model.Movie, error) {
	movie, err := s.GetMovieById(ctx, showId)
	if err != nil {
		return nil, err
	}
	deleted, err := s.Consolidate(ctx, movie)
	if err != nil {
		logger.Warningf("consolidate %s: %v", showId, err)
	}
	if deleted {
		return nil, gorm.ErrRecordNotFound
	}
	return movie, nil
}

func applyForm(m *model.Movie, form entity.MovieForm) {
	m.Type = form.Type
	m.Title = form.Title
	m.Director = form.Director
	m.Cast = form.Cast
	m.Country = form.Country
	m.DateAdded = form.DateAdded
	m.ReleaseYear = form.Year()
	m.Rating = form.Rating
	m.Duration = form.Duration
	m.ListedIn = form.ListedIn
	m.Description = form.Description
}

func (s *MovieService) CreateMovie(ctx context.Context, form entity.MovieForm) (*model.Movie, error) {
	form.Trim()
	if form.Title == "" {
		return nil, ErrTitleRequired
	}
	movie := &model.Movie{ShowId: form.ShowId}
	if movie.ShowId == "" {
		movie.ShowId = "m-" + uuid.NewString()
	}
	applyForm(movie, form)

	err := database.GetDB().WithContext(ctx).Create(movie).Error
	if database.IsDuplicate(err) {
		return nil, ErrShowIdTaken
	} else if err != nil {
		return nil, err
	}
	logger.Infof("movie %s created: %s", movie.ShowId, movie.Title)
	return movie, nil
}

// UpdateMovie rewrites the catalog columns. Changing title, type or release year clears
// the enrichment block so the next consolidation looks the title up again.
func (s *MovieService) UpdateMovie(ctx context.Context, showId string, form entity.MovieForm) (*model.Movie, error) {
	form.Trim()
	if form.Title == "" {
		return nil, ErrTitleRequired
	}
	movie, err := s.GetMovieById(ctx, showId)
	if err != nil {
		return nil, err
	}

	identityChanged := movie.Title != form.Title || movie.Type != form.Type || movie.ReleaseYear != form.Year()
	applyForm(movie, form)

	columns := append([]string{}, model.CatalogColumns...)
	if identityChanged {
		clearEnrichment(movie)
		columns = append(columns, model.EnrichmentColumns...)
	}

	err = database.GetDB().WithContext(ctx).
		Model(movie).
		Select(columns).
		Updates(movie).
		Error
	if err != nil {
		return nil, err
	}
	return movie, nil
}

func (s *MovieService) DeleteMovie(ctx context.Context, showId string) error {
	return database.GetDB().WithContext(ctx).
		Where("show_id = ?", showId).
		Delete(&model.Movie{}).
		Error
}

// Consolidate applies the lazy refresh policy to m, updating both the row and m. It
// reports deleted when OMDB no longer knows the title and the row was removed.
func (s *MovieService) Consolidate(ctx context.Context, m *model.Movie) (bool, error) {
	now := s.now()
	step := nextStep(m, s.EnrichmentEnabled(), s.refreshAge, now)
	if step != stepLookup {
		return false, nil
	}
	return s.refresh(ctx, m, now)
}

// RefreshMovie looks the movie up regardless of the refresh and retry windows.
func (s *MovieService) RefreshMovie(ctx context.Context, showId string) (*model.Movie, bool, error) {
	if !s.EnrichmentEnabled() {
		return nil, false, omdb.ErrNoAPIKey
	}
	movie, err := s.GetMovieById(ctx, showId)
	if err != nil {
		return nil, false, err
	}
	deleted, err := s.refresh(ctx, movie, s.now())
	return movie, deleted, err
}

func (s *MovieService) refresh(ctx context.Context, m *model.Movie, now time.Time) (bool, error) {
	result, lookupErr := s.lookup.Lookup(ctx, m.Title, m.ReleaseYear, omdb.KindFor(m.Type))
	db := database.GetDB().WithContext(ctx)

	switch {
	case lookupErr == nil:
		m.ImdbRating = result.ImdbRating
		m.ImdbVotes = result.ImdbVotes
		m.Poster = result.Poster
		m.BoxOffice = result.BoxOffice
		m.OmdbDataAvailable = true
		m.LastUpdated = &now
		m.OmdbLastAttempt = &now
		err := db.Model(&model.Movie{}).
			Where("show_id = ?", m.ShowId).
			Updates(enrichmentFields(m)).
			Error
		return false, err

	case errors.Is(lookupErr, omdb.ErrNotFound):
		logger.Noticef("movie %s (%q) unknown to OMDB, removing it", m.ShowId, m.Title)
		err := db.Where("show_id = ?", m.ShowId).Delete(&model.Movie{}).Error
		if err != nil {
			return false, err
		}
		return true, nil

	default:
		m.OmdbLastAttempt = &now
		err := db.Model(&model.Movie{}).
			Where("show_id = ?", m.ShowId).
			Update("omdb_last_attempt", now).
			Error
		if err != nil {
			return false, errors.Join(lookupErr, err)
		}
		return false, lookupErr
	}
}

func clearEnrichment(m *model.Movie) {
	m.ImdbRating = nil
	m.ImdbVotes = nil
	m.Poster = nil
	m.BoxOffice = nil
	m.OmdbDataAvailable = false
	m.LastUpdated = nil
	m.OmdbLastAttempt = nil
}

func enrichmentFields(m *model.Movie) map[string]any {
	return map[string]any{
		"imdb_rating":         m.ImdbRating,
		"imdb_votes":          m.ImdbVotes,
		"poster":              m.Poster,
		"box_office":          m.BoxOffice,
		"omdb_data_available": m.OmdbDataAvailable,
		"last_updated":        m.LastUpdated,
		"omdb_last_attempt":   m.OmdbLastAttempt,
	}
}

// PendingEnrichment returns up to limit movies that a consolidation would look up now,
// never-attempted and oldest attempts first.
func (s *MovieService) PendingEnrichment(ctx context.Context, limit int) ([]model.Movie, error) {
	now := s.now()
	staleBefore := now.Add(-s.refreshAge)
	retryBefore := now.Add(-RetryWindow)

	var movies []model.Movie
	err := database.GetDB().WithContext(ctx).
		Where("omdb_data_available = ? OR last_updated IS NULL OR last_updated < ?", false, staleBefore).
		Where("omdb_last_attempt IS NULL OR omdb_last_attempt < ?", retryBefore).
		Order("omdb_last_attempt IS NOT NULL, omdb_last_attempt ASC, show_id ASC").
		Limit(limit).
		Find(&movies).
		Error
	return movies, err
}

func (s *MovieService) GetConsolidationStats(ctx context.Context) (*ConsolidationStats, error) {
	db := database.GetDB().WithContext(ctx)
	stats := &ConsolidationStats{}
	retryAfter := s.now().Add(-RetryWindow)

	if err := db.Model(&model.Movie{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Movie{}).
		Where("omdb_data_available = ?", true).
		Count(&stats.Enriched).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Movie{}).
		Where("omdb_last_attempt IS NULL").
		Count(&stats.NeverAttempted).Error; err != nil {
		return nil, err
	}
	if err := db.Model(&model.Movie{}).
		Where("omdb_data_available = ? AND omdb_last_attempt >= ?", false, retryAfter).
		Count(&stats.AwaitingRetry).Error; err != nil {
		return nil, err
	}
	return stats, nil
}
