package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var _ SchedulerInterface = (*Scheduler)(nil)

// SweepTask runs one sweep as a scheduler task.
type SweepTask struct {
	Task
	sweeper *Sweeper
}

func NewSweepTask(sweeper *Sweeper) *SweepTask {
	return &SweepTask{
		Task:    NewTask(TaskTypeSweep, ""),
		sweeper: sweeper,
	}
}

func (t *SweepTask) Execute(ctx context.Context) error {
	result := t.sweeper.Run(ctx)
	if result.Cancelled {
		return ctx.Err()
	}
	return nil
}

// Scheduler runs a sweep at startup and then every interval. A single worker
// drains the queue so sweeps never overlap within the process.
type Scheduler struct {
	sweeper   *Sweeper
	interval  time.Duration
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	taskQueue chan TaskInterface
}

func NewScheduler(sweeper *Sweeper, interval time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		sweeper:   sweeper,
		interval:  interval,
		ctx:       ctx,
		cancel:    cancel,
		taskQueue: make(chan TaskInterface, 1),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueue("startup")

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueue("interval")
			}
		}
	}()
}

// Stop cancels the running sweep between feeds or batches and waits for the
// worker to exit.
func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueSweep() error {
	return s.EnqueueTask(NewSweepTask(s.sweeper))
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
	}

	select {
	case s.taskQueue <- task:
		return nil
	default:
		return fmt.Errorf("task queue is full")
	}
}

func (s *Scheduler) enqueue(trigger string) {
	if err := s.EnqueueSweep(); err != nil {
		slog.Debug("Sweep not enqueued", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	task.Start()

	if err := task.Execute(s.ctx); err != nil {
		slog.Warn("Task interrupted", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration(), "error", err)
		return
	}

	slog.Debug("Task finished", "type", string(task.GetType()), "id", task.GetID(), "duration", task.GetDuration())
}
