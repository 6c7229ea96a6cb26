package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/notifico-tech/notifico/pkg/models"
	"github.com/notifico-tech/notifico/pkg/queue"
)

// Executor runs pipeline tasks from the pipeline queue on a fixed worker
// pool. Each worker dequeues one task at a time, interprets its steps through
// the engine, and signals the outcome back via the delivery's ack handle.
type Executor struct {
	engine    *Engine
	pipelines queue.Queue
	workers   int
	logger    *slog.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	started  bool
}

// DefaultWorkerCount is used when the tuning file does not set one.
const DefaultWorkerCount = 4

// NewExecutor creates an executor with the given worker count (<= 0 selects
// the default).
func NewExecutor(eng *Engine, pipelines queue.Queue, workers int) *Executor {
	if workers <= 0 {
		workers = DefaultWorkerCount
	}
	return &Executor{
		engine:    eng,
		pipelines: pipelines,
		workers:   workers,
		logger:    slog.Default().With("component", "executor"),
		stopCh:    make(chan struct{}),
	}
}

// Start spawns the worker goroutines. Safe to call once.
func (x *Executor) Start(ctx context.Context) {
	if x.started {
		x.logger.Warn("Executor already started, ignoring duplicate Start call")
		return
	}
	x.started = true
	x.logger.Info("Starting pipeline executor", "workers", x.workers)

	for i := 0; i < x.workers; i++ {
		x.wg.Add(1)
		go x.run(ctx, i)
	}
}

// Stop signals the workers to stop and waits for in-flight tasks to finish.
// The hard deadline is the caller's responsibility (context on Start plus a
// timeout around Stop).
func (x *Executor) Stop() {
	x.stopOnce.Do(func() { close(x.stopCh) })
	x.wg.Wait()
	x.logger.Info("Pipeline executor stopped")
}

// run is one worker's dequeue loop. Receives are cancelled on stop; the task
// in flight is allowed to complete.
func (x *Executor) run(ctx context.Context, id int) {
	defer x.wg.Done()
	log := x.logger.With("worker", id)

	recvCtx, cancelRecv := context.WithCancel(ctx)
	defer cancelRecv()
	go func() {
		select {
		case <-x.stopCh:
			cancelRecv()
		case <-recvCtx.Done():
		}
	}()

	for {
		delivery, err := x.pipelines.Receive(recvCtx)
		if err != nil {
			if recvCtx.Err() != nil || err == queue.ErrClosed {
				return
			}
			log.Error("Pipeline queue receive failed", "error", err)
			continue
		}

		var pctx models.PipelineContext
		if err := delivery.Item.Decode(&pctx); err != nil {
			log.Error("Dropping malformed pipeline task", "error", err)
			if ackErr := delivery.Ack(ctx, queue.OutcomeRejected); ackErr != nil {
				log.Warn("Failed to reject malformed task", "error", ackErr)
			}
			continue
		}

		err = x.RunTask(ctx, &pctx)
		outcome := queue.OutcomeAccepted
		if err != nil && IsTransient(err) {
			outcome = queue.OutcomeReleased
		}
		if ackErr := delivery.Ack(ctx, outcome); ackErr != nil {
			log.Warn("Failed to ack pipeline task",
				"notification_id", pctx.NotificationID, "error", ackErr)
		}
	}
}

// RunTask interprets the task's steps starting at its current step number.
// A continue outcome advances the step number; interrupt stops the task
// cleanly; an error stops the task and is returned (the engine never retries
// a step). No reference to pctx is retained after return.
func (x *Executor) RunTask(ctx context.Context, pctx *models.PipelineContext) error {
	log := x.logger.With(
		"notification_id", pctx.NotificationID,
		"event", pctx.EventName,
		"project_id", pctx.ProjectID)

	for {
		step, ok := pctx.CurrentStep()
		if !ok {
			log.Debug("Pipeline task complete", "steps", len(pctx.Pipeline))
			return nil
		}

		outcome, err := x.engine.Execute(ctx, pctx, step)
		if err != nil {
			tag, _ := step.Tag()
			stepErr := &StepError{Tag: tag, Index: pctx.StepNumber, Err: err}
			log.Error("Pipeline step failed",
				"step", tag,
				"step_number", pctx.StepNumber,
				"transient", IsTransient(err),
				"error", err)
			if IsTransient(err) {
				return Transient(stepErr)
			}
			return stepErr
		}

		switch outcome {
		case OutcomeContinue:
			pctx.StepNumber++
		case OutcomeInterrupt:
			log.Debug("Pipeline task interrupted", "step_number", pctx.StepNumber)
			return nil
		default:
			return fmt.Errorf("unknown step outcome %d", outcome)
		}
	}
}
