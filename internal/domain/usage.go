package domain

import "time"

// UsageLog is the accounting record written once per completed job.
type UsageLog struct {
	UserID          string    `json:"user_id"`
	JobID           string    `json:"job_id"`
	Steps           int       `json:"steps"`
	PixelsProcessed int64     `json:"pixels_processed"`
	BytesSaved      int64     `json:"bytes_saved"`
	ComputeTimeMS   int64     `json:"compute_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}

// AddOutput accounts for one encoded edit step. Every step is derived from
// the same source, so savings are measured per step and never negative.
func (u *UsageLog) AddOutput(width, height, outputBytes, sourceBytes int) {
	u.Steps++
	u.PixelsProcessed += int64(width) * int64(height)
	if saved := sourceBytes - outputBytes; saved > 0 {
		u.BytesSaved += int64(saved)
	}
}

// SetComputeTime records d in whole milliseconds, at least 1.
func (u *UsageLog) SetComputeTime(d time.Duration) {
	u.ComputeTimeMS = max(d.Milliseconds(), 1)
}
