package queue

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dunamismax/photoflow/internal/domain"
)

func TestEditImageTaskRoundTrip(t *testing.T) {
	payload := EditImagePayload{
		JobID:      "job-123",
		UserID:     "user-9",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job-123/source",
		Edits: []domain.EditStep{
			{
				ID:     "mono",
				Action: domain.ActionProcess,
				Adjust: &domain.AdjustmentParameters{Grayscale: true, Contrast: 30},
			},
			{
				ID:        "turned",
				Action:    domain.ActionTransform,
				Transform: &domain.TransformParameters{Rotate: 180, Crop: &domain.CropRect{W: 10, H: 10}},
			},
		},
		RequestedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	task, err := NewEditImageTask(payload)
	if err != nil {
		t.Fatalf("NewEditImageTask returned error: %v", err)
	}
	if task.Type() != TypeEditImage {
		t.Fatalf("expected task type %q, got %q", TypeEditImage, task.Type())
	}

	parsed, err := ParseEditImagePayload(task)
	if err != nil {
		t.Fatalf("ParseEditImagePayload returned error: %v", err)
	}

	if diff := cmp.Diff(payload, parsed); diff != "" {
		t.Fatalf("payload mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEditImageTaskRequiresJobID(t *testing.T) {
	if _, err := NewEditImageTask(EditImagePayload{}); err == nil {
		t.Fatal("expected error for missing job_id")
	}
}

func TestPayloadFromJob(t *testing.T) {
	job := domain.Job{
		ID:         "job-1",
		UserID:     "u",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  "/in.png",
		WebhookURL: "https://example.test/hook",
		Edits:      []domain.EditStep{{ID: "a", Action: domain.ActionProcess}},
	}
	now := time.Now().UTC()

	got := PayloadFromJob(job, now)
	if got.JobID != "job-1" || got.UserID != "u" || got.WebhookURL != job.WebhookURL || len(got.Edits) != 1 {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if !got.RequestedAt.Equal(now) {
		t.Fatalf("expected requested_at %v, got %v", now, got.RequestedAt)
	}
}
