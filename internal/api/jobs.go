package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/dunamismax/photoflow/internal/id"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/hibiken/asynq"
)

type jobResponse struct {
	JobID      string            `json:"job_id"`
	UserID     string            `json:"user_id,omitempty"`
	Status     string            `json:"status"`
	SourceType string            `json:"source_type"`
	ObjectKey  string            `json:"object_key"`
	WebhookURL string            `json:"webhook_url,omitempty"`
	Edits      []domain.EditStep `json:"edits"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateJobRequest
	if err := decodeJSON(w, r, &req, maxJobBodyBytes, true); err != nil {
		writeErrorMessage(w, editErrorStatus(err), err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeErrorMessage(w, http.StatusBadRequest, err.Error())
		return
	}

	now := time.Now().UTC()
	jobID := id.New()
	sourceType := strings.ToLower(strings.TrimSpace(req.SourceType))
	objectKey := strings.TrimSpace(req.ObjectKey)
	uploadState := "not_required"
	presignedPutURL := ""

	if sourceType == domain.SourceTypeLocalFile {
		if _, err := s.localFiles.Rel(objectKey); err != nil {
			writeErrorMessage(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if sourceType == domain.SourceTypeS3Presigned {
		objectKey = fmt.Sprintf("uploads/%s/source", jobID)
		url, err := s.storage.PresignedPutURL(r.Context(), objectKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("generate presigned url failed job_id=%s err=%v", jobID, err)
			writeErrorMessage(w, http.StatusInternalServerError, "failed to generate upload URL")
			return
		}
		presignedPutURL = url
		uploadState = "ready"
	}

	job := domain.Job{
		ID:         jobID,
		UserID:     strings.TrimSpace(req.UserID),
		Status:     domain.JobStatusCreated,
		SourceType: sourceType,
		WebhookURL: req.WebhookURL,
		Edits:      req.Edits,
		ObjectKey:  objectKey,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobStore.Create(r.Context(), job); err != nil {
		s.logger.Printf("create job failed job_id=%s err=%v", job.ID, err)
		writeErrorMessage(w, http.StatusInternalServerError, "failed to create job")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id": job.ID,
		"status": job.Status,
		"upload": map[string]string{
			"object_key":          job.ObjectKey,
			"presigned_put_url":   presignedPutURL,
			"presigned_url_state": uploadState,
		},
		"start_url":  fmt.Sprintf("/v1/jobs/%s/start", job.ID),
		"status_url": fmt.Sprintf("/v1/jobs/%s", job.ID),
	})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeErrorMessage(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "job not found")
		return
	}

	writeJSON(w, http.StatusOK, jobResponse{
		JobID:      job.ID,
		UserID:     job.UserID,
		Status:     job.Status,
		SourceType: job.SourceType,
		ObjectKey:  job.ObjectKey,
		WebhookURL: job.WebhookURL,
		Edits:      job.Edits,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
	})
}

func (s *Server) handleStartJob(w http.ResponseWriter, r *http.Request) {
	jobID := r.PathValue("id")
	job, ok, err := s.jobStore.Get(r.Context(), jobID)
	if err != nil {
		s.logger.Printf("fetch job failed job_id=%s err=%v", jobID, err)
		writeErrorMessage(w, http.StatusInternalServerError, "failed to load job")
		return
	}
	if !ok {
		writeErrorMessage(w, http.StatusNotFound, "job not found")
		return
	}
	if job.Status != domain.JobStatusCreated {
		writeErrorMessage(w, http.StatusConflict, fmt.Sprintf("job already %s", job.Status))
		return
	}

	if err := s.verifySourceExists(r.Context(), job); err != nil {
		writeErrorMessage(w, http.StatusConflict, err.Error())
		return
	}

	// Queued is recorded before the task exists so a worker that picks it up
	// at once never has its status overwritten by this handler.
	if _, err := s.jobStore.UpdateStatus(r.Context(), job.ID, domain.JobStatusQueued); err != nil {
		s.logger.Printf("update status failed job_id=%s err=%v", job.ID, err)
		writeErrorMessage(w, http.StatusInternalServerError, "failed to queue job")
		return
	}

	taskInfo, err := s.queueClient.EnqueueEditImage(r.Context(), queue.PayloadFromJob(job, time.Now().UTC()))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			// The task already exists and owns the status.
			writeErrorMessage(w, http.StatusConflict, "job already started")
			return
		}
		s.logger.Printf("enqueue failed job_id=%s err=%v", job.ID, err)
		if _, rbErr := s.jobStore.UpdateStatus(context.WithoutCancel(r.Context()), job.ID, domain.JobStatusCreated); rbErr != nil {
			s.logger.Printf("status rollback failed job_id=%s err=%v", job.ID, rbErr)
		}
		writeErrorMessage(w, http.StatusInternalServerError, "failed to enqueue job")
		return
	}
	s.metrics.queueEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"job_id":      job.ID,
		"status":      domain.JobStatusQueued,
		"queue":       taskInfo.Queue,
		"task_id":     taskInfo.ID,
		"state":       taskInfo.State.String(),
		"enqueued_at": taskInfo.NextProcessAt,
	})
}

func (s *Server) verifySourceExists(ctx context.Context, job domain.Job) error {
	switch job.SourceType {
	case domain.SourceTypeLocalFile:
		if _, err := s.localFiles.Stat(job.ObjectKey); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("source object is missing: %s", job.ObjectKey)
			}
			return fmt.Errorf("source object check failed: %w", err)
		}
		return nil
	default:
		exists, err := s.storage.ObjectExists(ctx, job.ObjectKey)
		if err != nil {
			return fmt.Errorf("source object check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("source object is missing: %s", job.ObjectKey)
		}
		return nil
	}
}
