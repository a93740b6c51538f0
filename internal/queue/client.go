package queue

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
)

const (
	editMaxRetry  = 5
	editTimeout   = 3 * time.Minute
	editRetention = 24 * time.Hour
)

type Client struct {
	client *asynq.Client
	queue  string
}

func NewClient(redisOpt asynq.RedisClientOpt, queueName string) *Client {
	return &Client{
		client: asynq.NewClient(redisOpt),
		queue:  queueName,
	}
}

// EnqueueEditImage schedules a job. The job id doubles as the asynq task
// id, so starting the same job twice is rejected with asynq.ErrTaskIDConflict.
// Finished tasks are retained for a day, which keeps that guarantee after
// the job completes.
func (c *Client) EnqueueEditImage(ctx context.Context, payload EditImagePayload) (*asynq.TaskInfo, error) {
	task, err := NewEditImageTask(payload)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(
		ctx,
		task,
		asynq.Queue(c.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(editMaxRetry),
		asynq.Timeout(editTimeout),
		asynq.Retention(editRetention),
	)
}

func (c *Client) Close() error {
	return c.client.Close()
}
