package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	JobStatusCreated    = "created"
	JobStatusQueued     = "queued"
	JobStatusProcessing = "processing"
	JobStatusSucceeded  = "succeeded"
	JobStatusFailed     = "failed"

	SourceTypeLocalFile   = "local_file"
	SourceTypeS3Presigned = "s3_presigned"

	ActionProcess   = "process"
	ActionTransform = "transform"
)

type CreateJobRequest struct {
	SourceType string     `json:"source_type"`
	UserID     string     `json:"user_id,omitempty"`
	WebhookURL string     `json:"webhook_url,omitempty"`
	ObjectKey  string     `json:"object_key,omitempty"`
	Edits      []EditStep `json:"edits"`
}

// EditStep is one output of a job. Each step is applied to the original
// source, not to the output of the previous step.
type EditStep struct {
	ID        string                `json:"id"`
	Action    string                `json:"action"`
	Format    string                `json:"format,omitempty"`
	Quality   int                   `json:"quality,omitempty"`
	Adjust    *AdjustmentParameters `json:"adjust,omitempty"`
	Transform *TransformParameters  `json:"transform,omitempty"`
}

type Job struct {
	ID         string
	UserID     string
	Status     string
	SourceType string
	WebhookURL string
	Edits      []EditStep
	ObjectKey  string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (r CreateJobRequest) Validate() error {
	sourceType := strings.ToLower(strings.TrimSpace(r.SourceType))
	if sourceType == "" {
		return fmt.Errorf("%w: source_type is required", ErrInvalidParameter)
	}
	if sourceType != SourceTypeLocalFile && sourceType != SourceTypeS3Presigned {
		return fmt.Errorf("%w: unsupported source_type: %s", ErrInvalidParameter, r.SourceType)
	}
	if sourceType == SourceTypeLocalFile && strings.TrimSpace(r.ObjectKey) == "" {
		return fmt.Errorf("%w: object_key is required for source_type=local_file", ErrInvalidParameter)
	}
	if len(r.Edits) == 0 {
		return fmt.Errorf("%w: edits must contain at least one step", ErrInvalidParameter)
	}

	seen := make(map[string]struct{}, len(r.Edits))
	for i, step := range r.Edits {
		id := strings.TrimSpace(step.ID)
		if id == "" {
			return fmt.Errorf("%w: edits[%d].id is required", ErrInvalidParameter, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: edits[%d].id %q is duplicated", ErrInvalidParameter, i, id)
		}
		seen[id] = struct{}{}

		if err := step.Validate(); err != nil {
			return fmt.Errorf("edits[%d]: %w", i, err)
		}
	}
	return nil
}

func (s EditStep) Validate() error {
	switch strings.ToLower(strings.TrimSpace(s.Action)) {
	case ActionProcess:
		if s.Adjust == nil {
			return fmt.Errorf("%w: action=process requires adjust", ErrInvalidParameter)
		}
	case ActionTransform:
		if s.Transform == nil {
			return fmt.Errorf("%w: action=transform requires transform", ErrInvalidParameter)
		}
	case "":
		return fmt.Errorf("%w: action is required", ErrInvalidParameter)
	default:
		return fmt.Errorf("%w: unsupported action %q", ErrInvalidParameter, s.Action)
	}
	if s.Quality < 0 || s.Quality > 100 {
		return fmt.Errorf("%w: quality must be within 0-100", ErrInvalidParameter)
	}
	return nil
}
