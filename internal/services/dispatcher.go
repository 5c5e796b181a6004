package services

import (
	"context"
	"sync"
	"time"

	"hostelops/pkg/logger"
	"hostelops/pkg/metrics"
	"hostelops/pkg/queue"

	"github.com/sirupsen/logrus"
)

// Job kinds produced by QueueNotifier
const (
	JobKindNotification = "notification"
	JobKindReceipt      = "receipt"
)

// Job statuses written back to the queue
const (
	JobStatusDelivered = "delivered"
	JobStatusFailed    = "failed"
)

// JobSource is the consuming side of the job queue
type JobSource interface {
	Dequeue(ctx context.Context, kind string, timeout time.Duration) (*queue.JobMessage, error)
	SetJobStatus(ctx context.Context, jobID, status string) error
}

// Delivery hands one job to the outside world (push, SMS, e-mail, PDF renderer)
type Delivery interface {
	Deliver(ctx context.Context, job *queue.JobMessage) error
}

// LogDelivery writes the job to the log. It is the delivery used until a
// real channel is configured.
type LogDelivery struct{}

func (LogDelivery) Deliver(ctx context.Context, job *queue.JobMessage) error {
	logger.GetLogger().WithFields(logrus.Fields{
		"job_id":    job.JobID,
		"kind":      job.Kind,
		"hostel_id": job.HostelID,
		"user_id":   job.UserID,
		"event":     job.Payload["type"],
	}).Info("job delivered")
	return nil
}

// Dispatcher drains the notification and receipt queues, one goroutine per kind
type Dispatcher struct {
	source   JobSource
	delivery Delivery
	kinds    []string
	wait     time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(source JobSource, delivery Delivery) *Dispatcher {
	return &Dispatcher{
		source:   source,
		delivery: delivery,
		kinds:    []string{JobKindNotification, JobKindReceipt},
		wait:     5 * time.Second,
	}
}

// Run blocks until ctx is cancelled and every consumer has returned
func (d *Dispatcher) Run(ctx context.Context) {
	for _, kind := range d.kinds {
		d.wg.Add(1)
		go func(kind string) {
			defer d.wg.Done()
			d.consume(ctx, kind)
		}(kind)
	}
	d.wg.Wait()
}

func (d *Dispatcher) consume(ctx context.Context, kind string) {
	log := logger.GetLogger().WithField("kind", kind)
	log.Info("consumer started")
	for {
		if ctx.Err() != nil {
			log.Info("consumer stopped")
			return
		}
		if _, err := d.ProcessOne(ctx, kind); err != nil && ctx.Err() == nil {
			log.Errorf("dequeue failed: %v", err)
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessOne handles at most one job of kind. It reports whether a job was
// taken; delivery failures are recorded on the job, not returned.
func (d *Dispatcher) ProcessOne(ctx context.Context, kind string) (bool, error) {
	job, err := d.source.Dequeue(ctx, kind, d.wait)
	if err != nil {
		return false, err
	}
	if job == nil {
		return false, nil
	}

	status := JobStatusDelivered
	if err := d.delivery.Deliver(ctx, job); err != nil {
		status = JobStatusFailed
		logger.GetLogger().WithField("job_id", job.JobID).Warnf("delivery failed: %v", err)
	}
	metrics.JobsProcessed.WithLabelValues(kind, status).Inc()

	if err := d.source.SetJobStatus(ctx, job.JobID, status); err != nil {
		logger.GetLogger().WithField("job_id", job.JobID).Warnf("record job status: %v", err)
	}
	return true, nil
}
