package job

import (
	"context"
	"errors"
	"time"

	"github.com/marquee-app/marquee/logger"
	"github.com/marquee-app/marquee/util/common"
	"github.com/marquee-app/marquee/web/service"

	"go.uber.org/atomic"
)

const enrichRunTimeout = 10 * time.Minute

// EnrichStats are the cumulative counters shown on the admin dashboard.
type EnrichStats struct {
	Runs     int64     `json:"runs"`
	Enriched int64     `json:"enriched"`
	Removed  int64     `json:"removed"`
	Failed   int64     `json:"failed"`
	LastRun  time.Time `json:"lastRun"`
	Running  bool      `json:"running"`
}

// EnrichResult counts what one run did.
type EnrichResult struct {
	Enriched int
	Removed  int
	Failed   int
}

// EnrichMoviesJob consolidates a batch of catalog entries that are due for an OMDB lookup.
type EnrichMoviesJob struct {
	movieService *service.MovieService
	notifier     *service.Notifier
	batch        int

	running  atomic.Bool
	runs     atomic.Int64
	enriched atomic.Int64
	removed  atomic.Int64
	failed   atomic.Int64
	lastRun  atomic.Time
}

func NewEnrichMoviesJob(movieService *service.MovieService, notifier *service.Notifier, batch int) *EnrichMoviesJob {
	if batch <= 0 {
		batch = 25
	}
	return &EnrichMoviesJob{
		movieService: movieService,
		notifier:     notifier,
		batch:        batch,
	}
}

// Run is called by cron. Overlapping runs are skipped.
func (j *EnrichMoviesJob) Run() {
	defer common.Recover("enrich movies job")
	ctx, cancel := context.WithTimeout(context.Background(), enrichRunTimeout)
	defer cancel()

	res, err := j.RunOnce(ctx, j.batch)
	if err != nil {
		if !errors.Is(err, ErrAlreadyRunning) {
			logger.Warning("enrich movies job err:", err)
		}
		return
	}
	j.notifier.EnrichmentNotify(res.Enriched, res.Removed, res.Failed)
}

var ErrAlreadyRunning = errors.New("enrichment already running")

// RunOnce consolidates up to limit pending movies, the configured batch when limit <= 0.
func (j *EnrichMoviesJob) RunOnce(ctx context.Context, limit int) (EnrichResult, error) {
	var res EnrichResult
	if limit <= 0 {
		limit = j.batch
	}
	if !j.running.CompareAndSwap(false, true) {
		return res, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	pending, err := j.movieService.PendingEnrichment(ctx, limit)
	if err != nil {
		return res, err
	}

	for i := range pending {
		if ctx.Err() != nil {
			break
		}
		deleted, err := j.movieService.Consolidate(ctx, &pending[i])
		switch {
		case err != nil:
			res.Failed++
			logger.Debugf("enrich %s: %v", pending[i].ShowId, err)
		case deleted:
			res.Removed++
		default:
			res.Enriched++
		}
	}

	j.runs.Inc()
	j.enriched.Add(int64(res.Enriched))
	j.removed.Add(int64(res.Removed))
	j.failed.Add(int64(res.Failed))
	j.lastRun.Store(time.Now())

	if len(pending) > 0 {
		logger.Infof("enrichment run: %d enriched, %d removed, %d failed", res.Enriched, res.Removed, res.Failed)
	}
	return res, ctx.Err()
}

func (j *EnrichMoviesJob) Stats() EnrichStats {
	return EnrichStats{
		Runs:     j.runs.Load(),
		Enriched: j.enriched.Load(),
		Removed:  j.removed.Load(),
		Failed:   j.failed.Load(),
		LastRun:  j.lastRun.Load(),
		Running:  j.running.Load(),
	}
}
