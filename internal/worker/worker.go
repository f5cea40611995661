// Package worker implements the per-session crawl loop: pull a task, pause,
// fetch the model page, extract its listings and classify them.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/classify"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/extract"
)

// Queue is the consumer side of the shared task queue.
type Queue interface {
	Dequeue(ctx context.Context) (crawler.Task, error)
}

// Limiter paces requests across workers.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Classifier decides which raw records are parts.
type Classifier interface {
	Classify(raw crawler.RawRecord, task crawler.Task) classify.Outcome
}

// Config controls Worker behavior.
type Config struct {
	// MinDelay and MaxDelay bound the random pause before every request.
	MinDelay time.Duration
	MaxDelay time.Duration
	// RequestTimeout bounds one page fetch.
	RequestTimeout time.Duration
	// ReadySelector is waited on before extraction; empty means "body".
	ReadySelector string
	// Settle is an extra pause after the page is ready.
	Settle    time.Duration
	Selectors extract.Selectors
}

// Result is the outcome of one task.
type Result struct {
	Task     crawler.Task
	Parts    []crawler.Part
	Raw      int
	Rejected map[classify.Verdict]int
	// Err is a *crawler.TaskFetchError or *crawler.ExtractionError.
	Err      error
	Duration time.Duration
}

// Worker owns one session for its whole life.
type Worker struct {
	id         int
	session    crawler.Session
	queue      Queue
	classifier Classifier
	limiter    Limiter
	pauser     pauser
	cfg        Config
	logger     *zap.Logger
}

// New constructs a Worker. limiter may be nil.
func New(
	id int,
	session crawler.Session,
	queue Queue,
	classifier Classifier,
	limiter Limiter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	cfg.Selectors = cfg.Selectors.WithDefaults()
	return &Worker{
		id:         id,
		session:    session,
		queue:      queue,
		classifier: classifier,
		limiter:    limiter,
		pauser:     timerPauser{},
		cfg:        cfg,
		logger:     logger.With(zap.Int("worker", id)),
	}
}

// Run consumes tasks until the queue is drained, sending one Result per task.
// It returns nil once the queue is closed and empty, or the context error when
// the run is cancelled. Cancellation is checked between tasks.
func (w *Worker) Run(ctx context.Context, out chan<- Result) error {
	for {
		task, err := w.queue.Dequeue(ctx)
		if errors.Is(err, crawler.ErrQueueClosed) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("worker %d dequeue: %w", w.id, err)
		}
		res := w.Process(ctx, task)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case out <- res:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Process handles one task. Failures are returned in Result.Err, never
// retried.
func (w *Worker) Process(ctx context.Context, task crawler.Task) Result {
	start := time.Now()
	res := Result{Task: task, Rejected: map[classify.Verdict]int{}}

	w.pauser.Pause(ctx, jitter(w.cfg.MinDelay, w.cfg.MaxDelay))
	if w.limiter != nil {
		if err := w.limiter.Wait(ctx, task.URL); err != nil {
			res.Err = &crawler.TaskFetchError{Task: task, Err: err}
			return w.done(res, start)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.RequestTimeout)
	doc, err := w.session.Fetch(fetchCtx, task.URL, crawler.WaitCondition{
		Selector: w.cfg.ReadySelector,
		Timeout:  w.cfg.RequestTimeout,
		Settle:   w.cfg.Settle,
	})
	cancel()
	if err != nil {
		res.Err = &crawler.TaskFetchError{Task: task, Err: err}
		return w.done(res, start)
	}
	if doc.URL == "" {
		doc.URL = task.URL
	}

	records, err := extract.Listings(doc, w.cfg.Selectors)
	if err != nil {
		res.Err = &crawler.ExtractionError{Task: task, Err: err}
		return w.done(res, start)
	}
	res.Raw = len(records)
	for _, raw := range records {
		out := w.classifier.Classify(raw, task)
		if !out.Accepted() {
			res.Rejected[out.Verdict]++
			continue
		}
		res.Parts = append(res.Parts, out.Part)
	}
	return w.done(res, start)
}

func (w *Worker) done(res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	fields := []zap.Field{
		zap.String("brand", res.Task.Brand),
		zap.String("model", res.Task.Model),
		zap.String("url", res.Task.URL),
	}
	if res.Err != nil {
		w.logger.Warn("task failed", append(fields, zap.Error(res.Err))...)
		return res
	}
	w.logger.Debug("task done", append(fields, zap.Int("raw", res.Raw), zap.Int("parts", len(res.Parts)))...)
	return res
}
