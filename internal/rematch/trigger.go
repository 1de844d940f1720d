// Package rematch recomputes match records off the request path.
//
// Profile updates and job postings hand a task to the Trigger's queue and
// return immediately. A small worker pool drains the queue, scoring each
// (student, job) pair independently: a failing pair is logged and skipped.
// When the queue is full the task is dropped with a warning; the nightly
// sweep re-enqueues every open job so dropped work converges.
package rematch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/justsurfingit/campus-job-board/internal/errors"
	"github.com/justsurfingit/campus-job-board/internal/logger"
	"github.com/justsurfingit/campus-job-board/internal/models"
)

// Store is the match persistence the trigger needs. *services.MatchService implements it.
type Store interface {
	Student(ctx context.Context, studentID uint) (*models.Student, error)
	Job(ctx context.Context, jobID uint) (*models.Job, error)
	CandidateStudents(ctx context.Context) ([]models.Student, error)
	OpenJobs(ctx context.Context) ([]models.Job, error)
	Recalculate(ctx context.Context, student *models.Student, job *models.Job) (*models.MatchRecord, error)
}

type Kind int

const (
	KindStudent Kind = iota
	KindJob
)

func (k Kind) String() string {
	if k == KindJob {
		return "job"
	}
	return "student"
}

// Task asks for every pair involving one student or one job to be rescored.
type Task struct {
	Kind Kind
	ID   uint
}

// Options configures the worker pool.
type Options struct {
	Workers   int
	QueueSize int
	SweepCron string // empty disables the sweep
}

// Result summarizes one recalculation.
type Result struct {
	Scored  int // records created or updated
	Skipped int // below the creation threshold
	Failed  int
}

func (r *Result) add(o Result) {
	r.Scored += o.Scored
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

// Stats are cumulative counters since the trigger was created.
type Stats struct {
	Enqueued     uint64
	Dropped      uint64
	Processed    uint64
	PairsScored  uint64
	PairsFailed  uint64
	TasksAborted uint64
}

// Trigger queues and runs match recalculation.
type Trigger struct {
	store Store
	opts  Options
	queue chan Task
	log   *zap.SugaredLogger

	enqueued, dropped, processed     atomic.Uint64
	pairsScored, pairsFailed, aborts atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	cron    *cron.Cron
	wg      sync.WaitGroup
	started bool
}

func New(store Store, opts Options, log *zap.SugaredLogger) *Trigger {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Trigger{
		store: store,
		opts:  opts,
		queue: make(chan Task, opts.QueueSize),
		log:   logger.Component(log, "rematch"),
	}
}

// StudentChanged queues a recalculation of the student against every open job.
func (t *Trigger) StudentChanged(studentID uint) {
	t.Enqueue(Task{Kind: KindStudent, ID: studentID})
}

// JobChanged queues a recalculation of every candidate against the job.
func (t *Trigger) JobChanged(jobID uint) {
	t.Enqueue(Task{Kind: KindJob, ID: jobID})
}

// Enqueue never blocks. It reports false when the queue is full and the task was dropped.
func (t *Trigger) Enqueue(task Task) bool {
	select {
	case t.queue <- task:
		t.enqueued.Add(1)
		return true
	default:
		t.dropped.Add(1)
		t.log.Warnw("Rematch queue full, dropping task", "kind", task.Kind.String(), "id", task.ID)
		return false
	}
}

// Start launches the workers and, if configured, the sweep schedule.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return errors.New("rematch trigger already started")
	}

	var c *cron.Cron
	if t.opts.SweepCron != "" {
		c = cron.New()
		if _, err := c.AddFunc(t.opts.SweepCron, func() { t.Sweep(ctx) }); err != nil {
			return errors.Wrapf(err, "invalid sweep schedule %q", t.opts.SweepCron)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	for i := 0; i < t.opts.Workers; i++ {
		t.wg.Add(1)
		go t.worker(ctx, i)
	}
	if c != nil {
		c.Start()
		t.cron = c
	}
	t.started = true

	t.log.Infow("Rematch workers started", "workers", t.opts.Workers, "queue_size", t.opts.QueueSize, "sweep", t.opts.SweepCron)
	return nil
}

// Stop halts the sweep and waits for the workers. Queued tasks are abandoned.
func (t *Trigger) Stop() {
	t.mu.Lock()
	if !t.started {
		t.mu.Unlock()
		return
	}
	t.started = false
	cancel, c := t.cancel, t.cron
	t.mu.Unlock()

	if c != nil {
		<-c.Stop().Done()
	}
	cancel()
	t.wg.Wait()
	t.log.Infow("Rematch workers stopped", "pending", len(t.queue))
}

// Sweep re-enqueues every open job.
func (t *Trigger) Sweep(ctx context.Context) {
	jobs, err := t.store.OpenJobs(ctx)
	if err != nil {
		t.log.Errorw("Rematch sweep failed to list jobs", logger.FieldError, err)
		return
	}
	queued := 0
	for _, job := range jobs {
		if t.Enqueue(Task{Kind: KindJob, ID: job.ID}) {
			queued++
		}
	}
	t.log.Infow("Rematch sweep queued jobs", logger.FieldCount, queued, "open_jobs", len(jobs))
}

func (t *Trigger) worker(ctx context.Context, id int) {
	defer t.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case task := <-t.queue:
			t.run(ctx, id, task)
		}
	}
}

func (t *Trigger) run(ctx context.Context, worker int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			t.aborts.Add(1)
			t.log.Errorw("Rematch task panicked", "worker", worker, "kind", task.Kind.String(), "id", task.ID, "panic", r)
		}
	}()

	started := time.Now()
	var (
		res Result
		err error
	)
	switch task.Kind {
	case KindJob:
		res, err = t.RecalculateForJob(ctx, task.ID)
	default:
		res, err = t.RecalculateForStudent(ctx, task.ID)
	}
	t.processed.Add(1)
	if err != nil {
		t.aborts.Add(1)
		t.log.Warnw("Rematch task failed", "kind", task.Kind.String(), "id", task.ID, logger.FieldError, err)
		return
	}
	t.log.Debugw("Rematch task done", "kind", task.Kind.String(), "id", task.ID,
		"scored", res.Scored, "skipped", res.Skipped, "failed", res.Failed,
		logger.FieldDurationMS, time.Since(started).Milliseconds())
}

// RecalculateForStudent rescores the student against every open job.
func (t *Trigger) RecalculateForStudent(ctx context.Context, studentID uint) (Result, error) {
	student, err := t.store.Student(ctx, studentID)
	if err != nil {
		return Result{}, err
	}
	jobs, err := t.store.OpenJobs(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i := range jobs {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		t.scorePair(ctx, student, &jobs[i], &res)
	}
	return res, nil
}

// RecalculateForJob rescores every student with an active CV against the job.
// Inactive jobs are left alone.
func (t *Trigger) RecalculateForJob(ctx context.Context, jobID uint) (Result, error) {
	job, err := t.store.Job(ctx, jobID)
	if err != nil {
		return Result{}, err
	}
	if !job.Active {
		return Result{}, nil
	}
	students, err := t.store.CandidateStudents(ctx)
	if err != nil {
		return Result{}, err
	}

	var res Result
	for i := range students {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		t.scorePair(ctx, &students[i], job, &res)
	}
	return res, nil
}

// RecalculateAll rescores every open job against every candidate.
func (t *Trigger) RecalculateAll(ctx context.Context) (Result, error) {
	jobs, err := t.store.OpenJobs(ctx)
	if err != nil {
		return Result{}, err
	}
	var total Result
	for _, job := range jobs {
		res, err := t.RecalculateForJob(ctx, job.ID)
		total.add(res)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (t *Trigger) scorePair(ctx context.Context, student *models.Student, job *models.Job, res *Result) {
	rec, err := t.store.Recalculate(ctx, student, job)
	switch {
	case err != nil:
		res.Failed++
		t.pairsFailed.Add(1)
		t.log.Warnw("Failed to rescore pair",
			logger.FieldStudentID, student.ID, logger.FieldJobID, job.ID, logger.FieldError, err)
	case rec == nil:
		res.Skipped++
	default:
		res.Scored++
		t.pairsScored.Add(1)
	}
}

// Stats returns a snapshot of the counters.
func (t *Trigger) Stats() Stats {
	return Stats{
		Enqueued:     t.enqueued.Load(),
		Dropped:      t.dropped.Load(),
		Processed:    t.processed.Load(),
		PairsScored:  t.pairsScored.Load(),
		PairsFailed:  t.pairsFailed.Load(),
		TasksAborted: t.aborts.Load(),
	}
}
