package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"PriceServer/internal/domain/models"
	domrepo "PriceServer/internal/domain/repository"
	"PriceServer/pkg/logger"
	"PriceServer/pkg/queue"

	"github.com/google/uuid"
)

// Scheduler runs background tasks. *queue.Pool satisfies it.
type Scheduler interface {
	Submit(task queue.Task) error
}

// ExportService is the entry point for export jobs: it registers them, hands them to
// the worker pool and answers status and download queries.
type ExportService struct {
	registry  domrepo.JobRegistry
	worker    *ExportWorker
	scheduler Scheduler
	events    domrepo.JobEvents
	metrics   domrepo.Metrics
	logger    *logger.Logger
	newID     func() string
}

func NewExportService(
	registry domrepo.JobRegistry,
	worker *ExportWorker,
	scheduler Scheduler,
	events domrepo.JobEvents,
	metrics domrepo.Metrics,
	lgr *logger.Logger,
) *ExportService {
	return &ExportService{
		registry:  registry,
		worker:    worker,
		scheduler: scheduler,
		events:    events,
		metrics:   metrics,
		logger:    lgr,
		newID:     func() string { return uuid.NewString() },
	}
}

// ExportStatus is the client view of a job.
type ExportStatus struct {
	JobID       string
	State       models.JobState
	Message     string
	DownloadURL *string
}

// ExportDownload describes the file of a job. Ready is false until the job completes.
type ExportDownload struct {
	Ready       bool
	State       models.JobState
	FilePath    string
	FileName    string
	ContentType string
}

// DownloadURL is the path a completed job's file is served from.
func DownloadURL(jobID string) string {
	return "/prices/export/" + jobID + "/download"
}

func (s *ExportService) SubmitTickExport(ctx context.Context, instrumentID int64, from, to *time.Time) (*models.ExportJob, error) {
	return s.submit(ctx, models.ExportTick, models.ExportParams{
		InstrumentID: instrumentID,
		From:         from,
		To:           to,
	})
}

func (s *ExportService) SubmitOHLCExport(ctx context.Context, instrumentID int64, from, to *time.Time, tf models.TimeFrame, pt models.PriceType) (*models.ExportJob, error) {
	return s.submit(ctx, models.ExportOHLC, models.ExportParams{
		InstrumentID: instrumentID,
		From:         from,
		To:           to,
		TimeFrame:    tf,
		PriceType:    pt,
	})
}

func (s *ExportService) submit(ctx context.Context, kind models.ExportKind, params models.ExportParams) (*models.ExportJob, error) {
	if params.From != nil && params.To != nil && params.From.After(*params.To) {
		return nil, fmt.Errorf("%w: from_date must not be after to_date", domrepo.ErrInvalidInput)
	}

	job := &models.ExportJob{
		ID:     s.newID(),
		Kind:   kind,
		Params: params,
	}
	if err := s.registry.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("register export job: %w", err)
	}
	s.metrics.RecordJobSubmitted(string(kind))
	lg := s.logger.With(logger.String("job_id", job.ID), logger.String("kind", string(kind)))
	publish(ctx, s.events, lg, job)

	snapshot := *job
	task := queue.TaskFunc{
		ID: "export:" + job.ID,
		Fn: func(ctx context.Context) error { return s.worker.Run(ctx, snapshot) },
	}
	if err := s.scheduler.Submit(task); err != nil {
		// The job is already visible as pending; close it out instead of leaving it stuck.
		_, terr := transition(context.WithoutCancel(ctx), s.registry, s.events, lg, job, models.JobFailed,
			models.JobPayload{Error: "scheduling failed: " + err.Error()})
		if terr != nil {
			lg.Error("fail unscheduled job", logger.Error(terr))
		}
		return nil, fmt.Errorf("schedule export job: %w", err)
	}

	lg.Info("export job submitted", logger.Int64("instrument_id", params.InstrumentID))
	return job, nil
}

// Status reports the current state of a job.
func (s *ExportService) Status(ctx context.Context, id string) (*ExportStatus, error) {
	job, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	st := &ExportStatus{JobID: job.ID, State: job.State, Message: string(job.State)}
	switch job.State {
	case models.JobCompleted:
		url := DownloadURL(job.ID)
		st.DownloadURL = &url
	case models.JobFailed:
		st.Message = job.Error
	}
	return st, nil
}

// Download resolves the file of a completed job. A completed job whose file is gone is
// reported as not found and logged as a storage inconsistency.
func (s *ExportService) Download(ctx context.Context, id string) (*ExportDownload, error) {
	job, err := s.registry.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.State != models.JobCompleted {
		return &ExportDownload{Ready: false, State: job.State}, nil
	}

	if _, err := os.Stat(job.FilePath); err != nil {
		s.logger.Error("completed export file missing",
			logger.String("job_id", job.ID),
			logger.String("path", job.FilePath),
			logger.Error(err))
		s.metrics.RecordError("export_file_missing")
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("export file for job %s: %w", job.ID, domrepo.ErrNotFound)
		}
		return nil, fmt.Errorf("stat export file: %w", err)
	}

	return &ExportDownload{
		Ready:       true,
		State:       job.State,
		FilePath:    job.FilePath,
		FileName:    filepath.Base(job.FilePath),
		ContentType: "text/csv",
	}, nil
}
