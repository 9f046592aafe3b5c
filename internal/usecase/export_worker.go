package usecase

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/pkg/logger"
)

// ExportWorker materializes one export job into <dir>/<job_id>.csv.
//
// The job moves to processing before any I/O and to completed only once the file has
// been flushed, synced, renamed into place and confirmed by stat. Every error, panics
// included, ends the job as failed with the temporary file removed. Nothing is retried.
type ExportWorker struct {
	engine    *QueryEngine
	registry  domrepo.JobRegistry
	events    domrepo.JobEvents
	metrics   domrepo.Metrics
	logger    *logger.Logger
	dir       string
	maxRows   int64
	chunkSize int
}

type ExportWorkerConfig struct {
	Dir       string
	MaxRows   int64
	ChunkSize int
}

func NewExportWorker(
	engine *QueryEngine,
	registry domrepo.JobRegistry,
	events domrepo.JobEvents,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
	cfg ExportWorkerConfig,
) *ExportWorker {
	return &ExportWorker{
		engine:    engine,
		registry:  registry,
		events:    events,
		metrics:   metrics,
		logger:    lgr,
		dir:       cfg.Dir,
		maxRows:   cfg.MaxRows,
		chunkSize: cfg.ChunkSize,
	}
}

// FinalPath is where a completed job's file lives.
func (w *ExportWorker) FinalPath(jobID string) string {
	return filepath.Join(w.dir, jobID+".csv")
}

// Run drives a job to a terminal state. The returned error is the job's failure cause,
// already recorded in the registry.
func (w *ExportWorker) Run(ctx context.Context, job models.ExportJob) (err error) {
	lg := w.logger.With(logger.String("job_id", job.ID), logger.String("kind", string(job.Kind)))

	if cerr := ctx.Err(); cerr != nil {
		err = fmt.Errorf("export cancelled before start: %w", cerr)
		w.metrics.RecordError("export")
		if _, terr := transition(context.WithoutCancel(ctx), w.registry, w.events, lg, &job, models.JobFailed,
			models.JobPayload{Error: err.Error()}); terr != nil {
			lg.Error("record final job state", logger.String("state", string(models.JobFailed)), logger.Error(terr))
		}
		return err
	}

	if _, terr := transition(ctx, w.registry, w.events, lg, &job, models.JobProcessing, models.JobPayload{}); terr != nil {
		return fmt.Errorf("start job: %w", terr)
	}
	w.metrics.RecordJobStarted(string(job.Kind))
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			lg.Error("export panic", logger.String("panic", fmt.Sprint(r)), logger.String("stack", string(debug.Stack())))
			err = fmt.Errorf("internal error: %v", r)
			w.finish(ctx, lg, &job, start, 0, "", err)
		}
	}()

	rows, path, err := w.export(ctx, job)
	w.finish(ctx, lg, &job, start, rows, path, err)
	return err
}

func (w *ExportWorker) finish(ctx context.Context, lg *logger.Logger, job *models.ExportJob, start time.Time, rows int64, path string, cause error) {
	state := models.JobCompleted
	payload := models.JobPayload{FilePath: path, Rows: rows}
	if cause != nil {
		state = models.JobFailed
		payload = models.JobPayload{Error: cause.Error()}
		w.metrics.RecordError("export")
	}
	w.metrics.RecordJobFinished(string(job.Kind), string(state), rows, time.Since(start).Seconds())

	// The registry write must land even if the pool context is being cancelled.
	tctx := context.WithoutCancel(ctx)
	if _, err := transition(tctx, w.registry, w.events, lg, job, state, payload); err != nil {
		lg.Error("record final job state", logger.String("state", string(state)), logger.Error(err))
		return
	}
	if cause != nil {
		lg.Warn("export failed", logger.Error(cause), logger.Duration("elapsed_ms", time.Since(start)))
		return
	}
	lg.Info("export completed",
		logger.Int64("rows", rows),
		logger.String("path", path),
		logger.Duration("elapsed_ms", time.Since(start)))
}

func (w *ExportWorker) export(ctx context.Context, job models.ExportJob) (int64, string, error) {
	var (
		total int64
		err   error
	)
	switch job.Kind {
	case models.ExportTick:
		total, err = w.engine.CountTicks(ctx, job.Params.TickFilter())
	case models.ExportOHLC:
		total, err = w.engine.CountOHLC(ctx, job.Params.OHLCFilter())
	default:
		return 0, "", fmt.Errorf("unknown export kind %q", job.Kind)
	}
	if err != nil {
		return 0, "", fmt.Errorf("count rows: %w", err)
	}
	if total > w.maxRows {
		return 0, "", fmt.Errorf("export of %d rows exceeds the maximum of %d rows; narrow the date range", total, w.maxRows)
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return 0, "", fmt.Errorf("create export dir: %w", err)
	}
	final := w.FinalPath(job.ID)
	tmp := final + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	done := false
	defer func() {
		if !done {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	bw := bufio.NewWriterSize(f, 256<<10)
	cw := csv.NewWriter(bw)
	written, err := w.writeRows(ctx, cw, job)
	if err != nil {
		return 0, "", err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, "", fmt.Errorf("write csv: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return 0, "", fmt.Errorf("flush file: %w", err)
	}
	if err := f.Sync(); err != nil {
		return 0, "", fmt.Errorf("sync file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, "", fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return 0, "", fmt.Errorf("rename export file: %w", err)
	}
	done = true
	if _, err := os.Stat(final); err != nil {
		return 0, "", fmt.Errorf("verify export file: %w", err)
	}
	return written, final, nil
}

func (w *ExportWorker) writeRows(ctx context.Context, cw *csv.Writer, job models.ExportJob) (int64, error) {
	var written int64
	tooMany := func(n int) error {
		written += int64(n)
		if written > w.maxRows {
			return fmt.Errorf("export grew past the maximum of %d rows while running", w.maxRows)
		}
		return nil
	}

	switch job.Kind {
	case models.ExportTick:
		if err := cw.Write(tickCSVHeader); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
		err := w.engine.StreamTicks(ctx, job.Params.TickFilter(), w.chunkSize, func(rows []models.Tick) error {
			if err := tooMany(len(rows)); err != nil {
				return err
			}
			for i := range rows {
				if err := cw.Write(tickCSVRecord(&rows[i])); err != nil {
					return fmt.Errorf("write row: %w", err)
				}
			}
			return nil
		})
		return written, err
	case models.ExportOHLC:
		if err := cw.Write(ohlcCSVHeader); err != nil {
			return 0, fmt.Errorf("write header: %w", err)
		}
		err := w.engine.StreamOHLC(ctx, job.Params.OHLCFilter(), w.chunkSize, func(rows []models.OHLC) error {
			if err := tooMany(len(rows)); err != nil {
				return err
			}
			for i := range rows {
				if err := cw.Write(ohlcCSVRecord(&rows[i])); err != nil {
					return fmt.Errorf("write row: %w", err)
				}
			}
			return nil
		})
		return written, err
	default:
		return 0, fmt.Errorf("unknown export kind %q", job.Kind)
	}
}

// transition records a state change and publishes it. Event delivery is best effort.
func transition(
	ctx context.Context,
	registry domrepo.JobRegistry,
	events domrepo.JobEvents,
	lg *logger.Logger,
	job *models.ExportJob,
	state models.JobState,
	payload models.JobPayload,
) (*models.ExportJob, error) {
	updated, err := registry.Transition(ctx, job.ID, state, payload)
	if err != nil {
		return nil, err
	}
	*job = *updated
	publish(ctx, events, lg, updated)
	return updated, nil
}

func publish(ctx context.Context, events domrepo.JobEvents, lg *logger.Logger, job *models.ExportJob) {
	ev := models.JobEvent{
		JobID:     job.ID,
		Kind:      job.Kind,
		State:     job.State,
		Rows:      job.Rows,
		Error:     job.Error,
		Timestamp: job.UpdatedAt,
	}
	if err := events.Publish(ctx, ev); err != nil {
		lg.Warn("publish job event", logger.String("state", string(job.State)), logger.Error(err))
	}
}
