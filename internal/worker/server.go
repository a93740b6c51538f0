package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/dunamismax/photoflow/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger          *log.Logger
	server          *asynq.Server
	sem             chan struct{}
	localProcessor  *pipeline.Processor
	objectProcessor *pipeline.Processor
	webhookClient   webhookSender
	jobStore        store.JobStore
	usageStore      store.UsageStore
	metrics         *metrics
	tracer          trace.Tracer
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

// NewServer wires the edit-job handler. objectStore may be nil, in which
// case only local_file jobs can run.
func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	objectStore pipeline.ObjectStore,
	webhookClient *webhook.Client,
	jobStore store.JobStore,
	usageStore store.UsageStore,
) (*Server, error) {
	m := newMetrics()
	opts := pipeline.Options{
		MaxPixels: workerCfg.MaxPixels,
		Observe:   m.observeStage,
	}

	localProcessor, err := pipeline.NewLocalProcessor(workerCfg.LocalInputDir, workerCfg.LocalOutputDir, opts)
	if err != nil {
		return nil, fmt.Errorf("initialize local processor: %w", err)
	}

	var objectProcessor *pipeline.Processor
	if objectStore != nil {
		objectProcessor, err = pipeline.NewProcessor(
			pipeline.ObjectStoreFetcher{Storage: objectStore},
			pipeline.ObjectStoreEmitter{Storage: objectStore, OutputPrefix: "outputs"},
			opts,
		)
		if err != nil {
			return nil, fmt.Errorf("initialize object-store processor: %w", err)
		}
	}

	if usageStore == nil {
		if jobAndUsageStore, ok := jobStore.(store.UsageStore); ok {
			usageStore = jobAndUsageStore
		}
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:             make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		localProcessor:  localProcessor,
		objectProcessor: objectProcessor,
		jobStore:        jobStore,
		usageStore:      usageStore,
		metrics:         m,
		tracer:          otel.Tracer("photoflow/worker"),
	}
	if webhookClient != nil {
		s.webhookClient = webhookClient
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeEditImage, s.handleEditImage)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleEditImage(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.JobStatusFailed

	payload, err := queue.ParseEditImagePayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.edit_image", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("job.id", payload.JobID),
		attribute.String("job.source_type", payload.SourceType),
		attribute.Int("job.edit_steps", len(payload.Edits)),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(payload.SourceType, outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(payload.SourceType, outcome).Inc()
	}()

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"working job_id=%s source_type=%s edits=%d object_key=%s",
		payload.JobID,
		payload.SourceType,
		len(payload.Edits),
		payload.ObjectKey,
	)

	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusProcessing)

	request := pipeline.Request{
		JobID:      payload.JobID,
		SourceType: payload.SourceType,
		ObjectKey:  payload.ObjectKey,
		Edits:      payload.Edits,
	}

	result, err := s.process(ctx, request)
	if err != nil {
		s.updateJobStatus(ctx, payload.JobID, domain.JobStatusFailed)
		span.RecordError(err)
		span.SetStatus(codes.Error, "edit failed")
		failed := newJobEvent(payload, domain.JobStatusFailed)
		failed.Error = err.Error()
		_ = s.dispatchWebhook(ctx, payload, webhook.EventJobFailed, failed)
		if permanent(err) {
			return fmt.Errorf("run edits: %w: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("run edits: %w", err)
	}

	s.logger.Printf("processed job_id=%s outputs=%d", payload.JobID, len(result.Outputs))
	s.updateJobStatus(ctx, payload.JobID, domain.JobStatusSucceeded)
	for _, output := range result.Outputs {
		s.metrics.editOutputsTotal.WithLabelValues(output.Action, output.Format).Inc()
	}
	s.recordUsage(ctx, payload, result, time.Since(startedAt))

	outcome = domain.JobStatusSucceeded

	// The outputs and usage log are already written, so a failed notification
	// must not rerun the edits. The webhook client has done its own retries.
	completed := newJobEvent(payload, domain.JobStatusSucceeded)
	completed.Outputs = result.Outputs
	if err := s.dispatchWebhook(ctx, payload, webhook.EventJobCompleted, completed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook dispatch failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	span.SetStatus(codes.Ok, "processed")
	return nil
}

func (s *Server) process(ctx context.Context, req pipeline.Request) (pipeline.Result, error) {
	if strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return s.localProcessor.Process(ctx, req)
	}
	if s.objectProcessor == nil {
		return pipeline.Result{}, fmt.Errorf("%w: %s (no object storage configured)", pipeline.ErrUnsupportedSourceType, req.SourceType)
	}
	return s.objectProcessor.Process(ctx, req)
}

// permanent reports whether retrying the job cannot change the outcome.
func permanent(err error) bool {
	for _, target := range []error{
		codec.ErrImageFormat,
		codec.ErrTooLarge,
		domain.ErrInvalidParameter,
		pipeline.ErrInvalidStepAction,
		pipeline.ErrSourceOutsideRoot,
		pipeline.ErrUnsupportedSourceType,
		storage.ErrObjectNotFound,
		storage.ErrObjectTooLarge,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func (s *Server) updateJobStatus(ctx context.Context, jobID, status string) {
	if s.jobStore == nil {
		return
	}
	if _, err := s.jobStore.UpdateStatus(ctx, jobID, status); err != nil {
		s.logger.Printf("job status update failed job_id=%s status=%s err=%v", jobID, status, err)
	}
}

// jobEvent is the data of job.completed and job.failed deliveries.
type jobEvent struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	SourceType  string            `json:"source_type"`
	ObjectKey   string            `json:"object_key"`
	RequestedAt time.Time         `json:"requested_at"`
	FinishedAt  time.Time         `json:"finished_at"`
	Outputs     []pipeline.Output `json:"outputs,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func newJobEvent(payload queue.EditImagePayload, status string) jobEvent {
	return jobEvent{
		JobID:       payload.JobID,
		Status:      status,
		SourceType:  payload.SourceType,
		ObjectKey:   payload.ObjectKey,
		RequestedAt: payload.RequestedAt,
		FinishedAt:  time.Now().UTC(),
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.EditImagePayload, event string, body jobEvent) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed job_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func (s *Server) recordUsage(ctx context.Context, payload queue.EditImagePayload, result pipeline.Result, computeDuration time.Duration) {
	if s.usageStore == nil {
		return
	}

	userID := strings.TrimSpace(payload.UserID)
	if userID == "" && s.jobStore != nil {
		job, ok, err := s.jobStore.Get(ctx, payload.JobID)
		if err != nil {
			s.logger.Printf("usage lookup failed job_id=%s err=%v", payload.JobID, err)
		} else if ok {
			userID = strings.TrimSpace(job.UserID)
		}
	}
	if userID == "" {
		userID = "anonymous"
	}

	usage := domain.UsageLog{
		UserID:    userID,
		JobID:     payload.JobID,
		CreatedAt: time.Now().UTC(),
	}
	for _, output := range result.Outputs {
		usage.AddOutput(output.Width, output.Height, output.Bytes, result.SourceBytes)
	}
	usage.SetComputeTime(computeDuration)

	if err := s.usageStore.CreateUsageLog(ctx, usage); err != nil {
		s.logger.Printf("usage log write failed job_id=%s err=%v", payload.JobID, err)
		return
	}

	s.metrics.pixelsProcessedTotal.Add(float64(usage.PixelsProcessed))
	s.metrics.bytesSavedTotal.Add(float64(usage.BytesSaved))
	s.metrics.computeTimeMSTotal.Add(float64(usage.ComputeTimeMS))
}
