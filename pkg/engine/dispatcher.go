package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/queue"
	"github.com/notifico-tech/notifico/pkg/store"
)

// Dispatcher matches incoming event requests to pipelines and enqueues the
// initial task for each match.
type Dispatcher struct {
	pipelineStore store.PipelineStore
	pipelineQueue queue.Queue
	logger        *slog.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(pipelines store.PipelineStore, pipelineQueue queue.Queue) *Dispatcher {
	return &Dispatcher{
		pipelineStore: pipelines,
		pipelineQueue: pipelineQueue,
		logger:        slog.Default().With("component", "dispatcher"),
	}
}

// ProcessEventRequest resolves the request's event against the project's
// pipelines and enqueues one initial task per match. When the request carries
// recipients, a synthetic core.set_recipients step is prepended to each
// task's step list. A queue send failure propagates to the caller.
func (d *Dispatcher) ProcessEventRequest(ctx context.Context, req models.EventRequest) error {
	pipelines, err := d.pipelineStore.PipelinesForEvent(ctx, req.ProjectID, req.Event)
	if err != nil {
		return fmt.Errorf("pipeline lookup failed: %w", err)
	}
	if len(pipelines) == 0 {
		d.logger.Info("Event matched no pipelines",
			"project_id", req.ProjectID, "event", req.Event)
		return nil
	}

	for _, pipeline := range pipelines {
		steps := pipeline.Steps.Clone()
		if len(req.Recipients) > 0 {
			setRecipients, err := models.NewStep(map[string]any{
				"step":       "core.set_recipients",
				"recipients": req.Recipients,
			})
			if err != nil {
				return fmt.Errorf("failed to build recipient step: %w", err)
			}
			steps = append(models.StepList{setRecipients}, steps...)
		}

		pctx, err := models.NewPipelineContext(req.ProjectID, req.ID, req.Event, steps, req.Context)
		if err != nil {
			return err
		}

		if _, err := d.pipelineQueue.Send(ctx, queue.Object(pctx)); err != nil {
			return fmt.Errorf("%w: %v", ErrQueueSend, err)
		}
		d.logger.Debug("Pipeline task enqueued",
			"pipeline_id", pipeline.ID,
			"notification_id", pctx.NotificationID,
			"event", req.Event)
	}
	return nil
}

// EventConsumer drains the events queue into the dispatcher. It is the
// brokered counterpart of the ingest surface calling the dispatcher directly.
type EventConsumer struct {
	events     queue.Queue
	dispatcher *Dispatcher
	logger     *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewEventConsumer creates a consumer over the events queue.
func NewEventConsumer(events queue.Queue, dispatcher *Dispatcher) *EventConsumer {
	return &EventConsumer{
		events:     events,
		dispatcher: dispatcher,
		logger:     slog.Default().With("component", "event-consumer"),
		stopCh:     make(chan struct{}),
	}
}

// Start begins the receive loop in a goroutine.
func (c *EventConsumer) Start(ctx context.Context) {
	c.wg.Add(1)
	go c.run(ctx)
}

// Stop signals the loop to stop and waits for the in-flight request.
func (c *EventConsumer) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *EventConsumer) run(ctx context.Context) {
	defer c.wg.Done()

	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()
	go func() {
		select {
		case <-c.stopCh:
			cancelRecv()
		case <-recvCtx.Done():
		}
	}()

	for {
		delivery, err := c.events.Receive(recvCtx)
		if err != nil {
			if recvCtx.Err() != nil || err == queue.ErrClosed {
				return
			}
			c.logger.Error("Events queue receive failed", "error", err)
			continue
		}

		var req models.EventRequest
		if err := delivery.Item.Decode(&req); err != nil {
			c.logger.Error("Dropping malformed event request", "error", err)
			if ackErr := delivery.Ack(ctx, queue.OutcomeRejected); ackErr != nil {
				c.logger.Warn("Failed to reject malformed event request", "error", ackErr)
			}
			continue
		}

		err = c.dispatcher.ProcessEventRequest(ctx, req)
		outcome := queue.OutcomeAccepted
		if err != nil {
			// Store and queue failures are worth a redelivery; the
			// request itself is well-formed.
			outcome = queue.OutcomeReleased
			c.logger.Error("Event request processing failed",
				"event", req.Event, "error", err)
		}
		if ackErr := delivery.Ack(ctx, outcome); ackErr != nil {
			c.logger.Warn("Failed to ack event request", "error", ackErr)
		}
	}
}
