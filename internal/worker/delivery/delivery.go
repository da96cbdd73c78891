package delivery

import (
	"context"
	"encoding/json"

	"github.com/shifohub/patient-comms/internal/outbound"
	"github.com/shifohub/patient-comms/pkg/logging"
)

type jobQueue interface {
	Receive(ctx context.Context, maxMessages int, waitSeconds int) ([]outbound.QueueMessage, error)
	Delete(ctx context.Context, receiptHandle string) error
}

type messageStore interface {
	Get(ctx context.Context, id string) (*outbound.Message, error)
}

type deliveryExecutor interface {
	Execute(ctx context.Context, msg *outbound.Message) error
}

// Worker consumes immediate delivery jobs from the queue and runs the
// delivery executor on each. Jobs for missing records are dropped.
type Worker struct {
	queue    jobQueue
	store    messageStore
	executor deliveryExecutor
	logger   *logging.Logger
	batch    int
	wait     int
}

// NewWorker builds the delivery worker.
func NewWorker(queue jobQueue, store messageStore, executor deliveryExecutor, logger *logging.Logger) *Worker {
	if queue == nil || store == nil || executor == nil {
		panic("delivery: missing dependency")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Worker{
		queue:    queue,
		store:    store,
		executor: executor,
		logger:   logger,
		batch:    10,
		wait:     20,
	}
}

// Run long-polls the queue until ctx ends.
func (w *Worker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		msgs, err := w.queue.Receive(ctx, w.batch, w.wait)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("queue receive failed", "error", err)
			continue
		}
		for _, qm := range msgs {
			w.handle(ctx, qm)
		}
	}
}

func (w *Worker) handle(ctx context.Context, qm outbound.QueueMessage) {
	var job outbound.Job
	if err := json.Unmarshal([]byte(qm.Body), &job); err != nil {
		w.logger.Error("malformed delivery job", "error", err, "queue_message_id", qm.ID)
		w.ack(ctx, qm)
		return
	}

	msg, err := w.store.Get(ctx, job.MessageID)
	if err != nil {
		w.logger.Error("outbound record lookup failed", "error", err, "message_id", job.MessageID)
		w.ack(ctx, qm)
		return
	}

	if err := w.executor.Execute(ctx, msg); err != nil {
		// The record already carries the failure; do not redeliver.
		w.logger.Error("delivery failed", "error", err, "message_id", msg.ID)
	}
	w.ack(ctx, qm)
}

func (w *Worker) ack(ctx context.Context, qm outbound.QueueMessage) {
	if err := w.queue.Delete(ctx, qm.ReceiptHandle); err != nil {
		w.logger.Error("queue delete failed", "error", err, "queue_message_id", qm.ID)
	}
}
