package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// RedisQueue list-backed job queue. Producers push after their database
// transaction commits; the worker command consumes.
type RedisQueue struct {
	client *redis.Client
	prefix string
}

// JobMessage one queued job
type JobMessage struct {
	JobID    string                 `json:"job_id"`
	Kind     string                 `json:"kind"` // notification | receipt
	HostelID uint                   `json:"hostel_id"`
	UserID   uint                   `json:"user_id"`
	Payload  map[string]interface{} `json:"payload"`
	Created  int64                  `json:"created"`
}

// Config redis connection settings
type Config struct {
	Host     string
	Port     int
	Password string
	DB       int
	Prefix   string
}

func NewRedisQueue(config *Config) *RedisQueue {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", config.Host, config.Port),
		Password: config.Password,
		DB:       config.DB,
	})
	return NewRedisQueueWithClient(client, config.Prefix)
}

// NewRedisQueueWithClient wraps an existing client
func NewRedisQueueWithClient(client *redis.Client, prefix string) *RedisQueue {
	if prefix == "" {
		prefix = "hostelops:queue"
	}
	return &RedisQueue{
		client: client,
		prefix: prefix,
	}
}

func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Enqueue pushes a job onto the queue of its kind and records its status hash
func (q *RedisQueue) Enqueue(ctx context.Context, msg *JobMessage) error {
	if msg.Created == 0 {
		msg.Created = time.Now().Unix()
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal job: %w", err)
	}

	if err := q.client.LPush(ctx, q.getQueueKey(msg.Kind), data).Err(); err != nil {
		return fmt.Errorf("enqueue job: %w", err)
	}

	jobKey := q.getJobKey(msg.JobID)
	jobInfo := map[string]interface{}{
		"job_id":    msg.JobID,
		"kind":      msg.Kind,
		"hostel_id": msg.HostelID,
		"status":    "queued",
		"queued_at": msg.Created,
	}
	if err := q.client.HSet(ctx, jobKey, jobInfo).Err(); err != nil {
		return fmt.Errorf("record job status: %w", err)
	}
	q.client.Expire(ctx, jobKey, 24*time.Hour)

	return nil
}

// Dequeue blocks up to timeout for the next job of kind. Nil when the wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, kind string, timeout time.Duration) (*JobMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.getQueueKey(kind)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue job: %w", err)
	}

	var msg JobMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &msg, nil
}

// GetJobStatus returns the status hash of a job
func (q *RedisQueue) GetJobStatus(ctx context.Context, jobID string) (map[string]string, error) {
	result, err := q.client.HGetAll(ctx, q.getJobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get job status: %w", err)
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("job %s not found", jobID)
	}
	return result, nil
}

// SetJobStatus updates the status field of a job's hash
func (q *RedisQueue) SetJobStatus(ctx context.Context, jobID, status string) error {
	jobKey := q.getJobKey(jobID)
	if err := q.client.HSet(ctx, jobKey, "status", status, "updated_at", time.Now().Unix()).Err(); err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	return nil
}

// Len number of jobs waiting in the queue of kind
func (q *RedisQueue) Len(ctx context.Context, kind string) (int64, error) {
	return q.client.LLen(ctx, q.getQueueKey(kind)).Result()
}

func (q *RedisQueue) getQueueKey(kind string) string {
	return fmt.Sprintf("%s:%s", q.prefix, kind)
}

func (q *RedisQueue) getJobKey(jobID string) string {
	return fmt.Sprintf("%s:job:%s", q.prefix, jobID)
}
