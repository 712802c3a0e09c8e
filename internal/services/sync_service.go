package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"example.com/fasttrack/services/delivery/internal/cache"
	"example.com/fasttrack/services/delivery/internal/feed"
	"example.com/fasttrack/services/delivery/internal/localtime"
	"example.com/fasttrack/services/delivery/internal/models"
	"example.com/fasttrack/services/delivery/internal/normalizer"
	"example.com/fasttrack/services/delivery/internal/reconciler"
	"example.com/fasttrack/services/delivery/internal/tracing"
	"example.com/fasttrack/services/delivery/internal/writer"
)

// noteStore loads the reconciler's view of persisted notes.
type noteStore interface {
	StoredNotes(ctx context.Context) (map[string]reconciler.StoredNote, error)
}

// runLog persists reconciliation run records.
type runLog interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Finalize(ctx context.Context, run *models.SyncRun) error
	Latest(ctx context.Context) (*models.SyncRun, error)
	History(ctx context.Context, limit int) ([]models.SyncRun, error)
}

// planApplier executes a reconciliation plan.
type planApplier interface {
	Apply(ctx context.Context, plan reconciler.Plan) writer.Result
}

// columnSet exposes the current column layout.
type columnSet interface {
	Refresh(ctx context.Context) error
	SheetColumns() []string
}

// SyncService runs the sheet reconciliation pipeline. Concurrent triggers,
// manual or scheduled, collapse into a single pass.
type SyncService struct {
	source   feed.Source
	notes    noteStore
	runs     runLog
	applier  planApplier
	registry columnSet
	cache    *cache.RedisCache
	tracer   tracing.Tracer
	logPath  string
	group    singleflight.Group
}

// NewSyncService creates a new sync service
func NewSyncService(
	source feed.Source,
	notes noteStore,
	runs runLog,
	applier planApplier,
	registry columnSet,
	redisCache *cache.RedisCache,
	tracer tracing.Tracer,
	logPath string,
) *SyncService {
	return &SyncService{
		source:   source,
		notes:    notes,
		runs:     runs,
		applier:  applier,
		registry: registry,
		cache:    redisCache,
		tracer:   tracer,
		logPath:  logPath,
	}
}

// Sync runs one reconciliation pass. Callers arriving while a pass is in
// flight share its result instead of starting another.
func (s *SyncService) Sync(ctx context.Context) (*models.SyncRun, error) {
	v, err, shared := s.group.Do("dn-sync", func() (interface{}, error) {
		return s.runOnce(ctx)
	})
	if shared {
		log.Info().Msg("Joined an in-flight reconciliation pass")
	}
	run, _ := v.(*models.SyncRun)
	return run, err
}

// runOnce executes the full pipeline and finalizes the run record exactly
// once, on success and on failure alike.
func (s *SyncService) runOnce(ctx context.Context) (*models.SyncRun, error) {
	txn := s.tracer.StartTransaction("dn-sync")
	defer s.tracer.EndTransaction(txn)

	run := &models.SyncRun{
		ID:        uuid.New(),
		Status:    models.RunRunning,
		StartedAt: localtime.Now(),
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.tracer.RecordError(txn, err)
		return nil, errors.Wrap(err, "failed to create sync run record")
	}

	pipelineErr := s.pipeline(ctx, txn, run)

	now := localtime.Now()
	run.FinishedAt = &now
	if pipelineErr != nil {
		run.Status = models.RunFailed
		msg := pipelineErr.Error()
		run.ErrorMessage = &msg
		trace := fmt.Sprintf("%+v", pipelineErr)
		run.ErrorTrace = &trace
		s.tracer.RecordError(txn, pipelineErr)
	} else {
		run.Status = models.RunSuccess
	}

	if err := s.runs.Finalize(ctx, run); err != nil {
		log.Error().Err(err).Str("run_id", run.ID.String()).Msg("Failed to finalize sync run record")
	}
	s.appendLogLine(run)

	if pipelineErr != nil {
		return run, pipelineErr
	}

	log.Info().
		Str("run_id", run.ID.String()).
		Int("created", run.CreatedCount).
		Int("updated", run.UpdatedCount).
		Int("ignored", run.IgnoredCount).
		Int("skipped", run.SkippedCount).
		Msg("Reconciliation pass finished")
	return run, nil
}

func (s *SyncService) pipeline(ctx context.Context, txn *newrelic.Transaction, run *models.SyncRun) error {
	if err := s.registry.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not refresh dynamic columns, using last known layout")
	}
	cols := s.registry.SheetColumns()

	readSpan := s.tracer.StartSpan("read-feed", txn)
	titles, err := s.source.Worksheets(ctx)
	if err != nil {
		readSpan.End()
		return errors.Wrap(err, "failed to list plan worksheets")
	}

	var rows []normalizer.Row
	skipped := 0
	failedSheets := 0
	for _, title := range titles {
		sheetRows, err := s.source.ReadRows(ctx, title)
		if err != nil {
			log.Error().Err(err).Str("worksheet", title).Msg("Failed to read worksheet, skipping it")
			failedSheets++
			continue
		}
		for _, r := range sheetRows {
			row, reject := normalizer.NormalizeRow(title, r.RowIndex, r.Values, cols)
			if reject != "" {
				skipped++
				log.Debug().
					Str("worksheet", title).
					Int("row", r.RowIndex).
					Str("reason", string(reject)).
					Msg("Skipping feed row")
				continue
			}
			rows = append(rows, row)
		}
	}
	readSpan.End()

	if len(titles) > 0 && failedSheets == len(titles) {
		return errors.New("every plan worksheet failed to read")
	}

	loadSpan := s.tracer.StartSpan("load-stored-notes", txn)
	stored, err := s.notes.StoredNotes(ctx)
	loadSpan.End()
	if err != nil {
		return errors.Wrap(err, "failed to load stored delivery notes")
	}

	plan := reconciler.BuildPlan(rows, stored)

	// Absence from the feed only means deleted when the pull was complete.
	// A failed worksheet would otherwise schedule every note it holds for
	// soft deletion.
	if failedSheets > 0 || len(rows) == 0 {
		if n := len(plan.SoftDeletes); n > 0 {
			log.Warn().Int("count", n).Msg("Skipping soft deletes, the pull was incomplete")
			plan.SoftDeletes = nil
		}
	}

	applySpan := s.tracer.StartSpan("apply-plan", txn)
	result := s.applier.Apply(ctx, plan)
	applySpan.End()

	run.CreatedCount = result.Created
	run.UpdatedCount = result.Updated
	run.IgnoredCount = result.Ignored
	run.SkippedCount = skipped + plan.Duplicates + result.Failed
	run.SyncedCount = result.Created + result.Updated
	msg := fmt.Sprintf("worksheets=%d rows=%d deleted=%d restored=%d", len(titles), len(rows), result.Deleted, result.Restored)
	run.Message = &msg

	if len(result.DNNumbers) > 0 {
		if data, err := json.Marshal(result.DNNumbers); err == nil {
			payload := string(data)
			run.DNNumbersJSON = &payload
		}
	}

	// Stats served from cache are stale after a pass that changed anything.
	if s.cache != nil && run.SyncedCount+result.Deleted > 0 {
		if err := s.cache.Delete(ctx, cache.StatsCacheKey); err != nil {
			log.Warn().Err(err).Msg("Failed to invalidate stats cache")
		}
	}
	return nil
}

// LatestRun returns the most recent run record.
func (s *SyncService) LatestRun(ctx context.Context) (*models.SyncRun, error) {
	return s.runs.Latest(ctx)
}

// RunHistory lists recent runs newest first.
func (s *SyncService) RunHistory(ctx context.Context, limit int) ([]models.SyncRun, error) {
	return s.runs.History(ctx, limit)
}

// LogFilePath is the location of the plain-text sync log artifact.
func (s *SyncService) LogFilePath() string {
	return s.logPath
}

// appendLogLine mirrors each run into the flat sync log file served by the
// API.
func (s *SyncService) appendLogLine(run *models.SyncRun) {
	if s.logPath == "" {
		return
	}
	f, err := os.OpenFile(s.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Warn().Err(err).Str("path", s.logPath).Msg("Could not open sync log file")
		return
	}
	defer f.Close()

	line := fmt.Sprintf("%s [%s] run=%s synced=%d created=%d updated=%d ignored=%d skipped=%d",
		run.StartedAt.Format("2006-01-02 15:04:05"), run.Status, run.ID,
		run.SyncedCount, run.CreatedCount, run.UpdatedCount, run.IgnoredCount, run.SkippedCount)
	if run.ErrorMessage != nil {
		line += " error=" + *run.ErrorMessage
	}
	if _, err := fmt.Fprintln(f, line); err != nil {
		log.Warn().Err(err).Msg("Could not append to sync log file")
	}
}
