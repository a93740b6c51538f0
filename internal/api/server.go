package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/codec"
	"github.com/dunamismax/photoflow/internal/pipeline"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/store"
	"github.com/hibiken/asynq"
	"github.com/klauspost/compress/gzhttp"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultMaxBodyBytes = 32 << 20
	maxJobBodyBytes     = 1 << 20
)

var errInvalidJSON = errors.New("invalid JSON body")

type Server struct {
	logger                *log.Logger
	queueClient           queueEnqueuer
	jobStore              store.JobStore
	storage               objectStorage
	presignTTL            time.Duration
	decoder               codec.Decoder
	orchestrator          pipeline.Orchestrator
	localFiles            pipeline.LocalFileFetcher
	maxBodyBytes          int64
	staticDir             string
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	metrics               *metrics
	tracer                trace.Tracer
	compress              func(http.Handler) http.HandlerFunc
	mux                   *http.ServeMux
}

// Options configures NewServer. Only JobStore is required; a nil
// QueueClient disables starting jobs and a nil Storage disables
// s3_presigned sources.
type Options struct {
	QueueClient           queueEnqueuer
	JobStore              store.JobStore
	Storage               objectStorage
	PresignTTL            time.Duration
	MaxBodyBytes          int64
	MaxPixels             int64
	StaticDir             string
	// LocalInputDir bounds local_file sources; empty disables them.
	LocalInputDir         string
	RateLimiter           RateLimiter
	RateLimitUserIDHeader string
	Tracer                trace.Tracer
}

type queueEnqueuer interface {
	EnqueueEditImage(ctx context.Context, payload queue.EditImagePayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	PresignedPutURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
	ObjectExists(ctx context.Context, objectKey string) (bool, error)
}

func NewServer(logger *log.Logger, opts Options) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opts.Storage == nil {
		opts.Storage = unavailableObjectStorage{}
	}
	if opts.QueueClient == nil {
		opts.QueueClient = unavailableQueue{}
	}
	if strings.TrimSpace(opts.RateLimitUserIDHeader) == "" {
		opts.RateLimitUserIDHeader = "X-User-ID"
	}

	m := newMetrics()
	s := &Server{
		logger:                logger,
		queueClient:           opts.QueueClient,
		jobStore:              opts.JobStore,
		storage:               opts.Storage,
		presignTTL:            opts.PresignTTL,
		decoder:               codec.Decoder{MaxPixels: opts.MaxPixels},
		orchestrator:          pipeline.Orchestrator{Observe: m.observeStage},
		localFiles:            pipeline.LocalFileFetcher{Root: opts.LocalInputDir},
		maxBodyBytes:          opts.MaxBodyBytes,
		staticDir:             strings.TrimSpace(opts.StaticDir),
		rateLimiter:           opts.RateLimiter,
		rateLimitUserIDHeader: opts.RateLimitUserIDHeader,
		metrics:               m,
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
	}

	compress, err := gzhttp.NewWrapper(
		gzhttp.MinSize(1024),
		gzhttp.ContentTypes([]string{"application/json"}),
	)
	if err != nil {
		logger.Printf("gzip disabled err=%v", err)
	} else {
		s.compress = compress
	}

	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) PresignedPutURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) ObjectExists(_ context.Context, _ string) (bool, error) {
	return false, errors.New("object storage is unavailable")
}

type unavailableQueue struct{}

func (unavailableQueue) EnqueueEditImage(_ context.Context, _ queue.EditImagePayload) (*asynq.TaskInfo, error) {
	return nil, errors.New("job queue is unavailable")
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	if s.compress != nil {
		h = s.compress(h)
	}
	h = s.withRateLimit(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withTracing(h)
	return withCORS(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.HandleFunc("POST /upload", s.handleUpload)
	s.mux.HandleFunc("POST /process", s.handleProcess)
	s.mux.HandleFunc("POST /transform", s.handleTransform)

	s.mux.HandleFunc("POST /v1/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /v1/jobs/{id}", s.handleGetJob)
	s.mux.HandleFunc("POST /v1/jobs/{id}/start", s.handleStartJob)

	if s.staticDir != "" {
		s.mux.Handle("GET /", http.FileServer(http.Dir(s.staticDir)))
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON reads exactly one JSON value of at most limit bytes. strict
// rejects unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, into any, limit int64, strict bool) error {
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	decoder := json.NewDecoder(r.Body)
	if strict {
		decoder.DisallowUnknownFields()
	}
	if err := decoder.Decode(into); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidJSON, err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("%w: multiple JSON values are not allowed", errInvalidJSON)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeErrorMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
