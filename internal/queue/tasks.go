package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dunamismax/photoflow/internal/domain"
	"github.com/hibiken/asynq"
)

const TypeEditImage = "image:edit"

type EditImagePayload struct {
	JobID       string            `json:"job_id"`
	UserID      string            `json:"user_id,omitempty"`
	SourceType  string            `json:"source_type"`
	WebhookURL  string            `json:"webhook_url,omitempty"`
	ObjectKey   string            `json:"object_key"`
	Edits       []domain.EditStep `json:"edits"`
	RequestedAt time.Time         `json:"requested_at"`
}

// PayloadFromJob builds the task payload for a stored job.
func PayloadFromJob(job domain.Job, requestedAt time.Time) EditImagePayload {
	return EditImagePayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		SourceType:  job.SourceType,
		WebhookURL:  job.WebhookURL,
		ObjectKey:   job.ObjectKey,
		Edits:       job.Edits,
		RequestedAt: requestedAt,
	}
}

func NewEditImageTask(payload EditImagePayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		return nil, errors.New("edit payload requires job_id")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal edit payload: %w", err)
	}
	return asynq.NewTask(TypeEditImage, body), nil
}

func ParseEditImagePayload(task *asynq.Task) (EditImagePayload, error) {
	var payload EditImagePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return EditImagePayload{}, fmt.Errorf("unmarshal edit payload: %w", err)
	}
	return payload, nil
}
