// Package dispatcher runs a fixed pool of workers over one shared task queue
// and collects their results.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/parts-catalog-crawler/internal/classify"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
	"github.com/JakeFAU/parts-catalog-crawler/internal/queue/memory"
	"github.com/JakeFAU/parts-catalog-crawler/internal/worker"
)

// Config controls the pool.
type Config struct {
	// Concurrency is the number of workers, each with its own session.
	Concurrency int
	// ProgressEvery logs a progress line every N processed tasks.
	ProgressEvery int
	// MaxRPS caps requests per second to each host, shared by all workers;
	// 0 disables.
	MaxRPS float64
	Worker worker.Config
}

// Result aggregates one crawl phase.
type Result struct {
	Parts []crawler.Part
	// Completed counts tasks that fetched and extracted cleanly.
	Completed int
	Failed    int
	Raw       int
	Rejected  map[classify.Verdict]int
}

// Pool owns the worker fan-out.
type Pool struct {
	driver     crawler.Driver
	classifier worker.Classifier
	emitter    progress.Emitter
	clock      crawler.Clock
	cfg        Config
	logger     *zap.Logger
}

// New creates a Pool. A nil emitter discards progress events.
func New(
	driver crawler.Driver,
	classifier worker.Classifier,
	emitter progress.Emitter,
	clock crawler.Clock,
	cfg Config,
	logger *zap.Logger,
) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if emitter == nil {
		emitter = progress.NopEmitter{}
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.ProgressEvery <= 0 {
		cfg.ProgressEvery = 10
	}
	return &Pool{
		driver:     driver,
		classifier: classifier,
		emitter:    emitter,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run processes every task and returns once the queue is drained and all
// in-flight tasks finished. Per-task failures are counted, not returned. The
// only errors are session setup failures and cancellation; in the latter case
// the partial Result is returned alongside ctx's error.
func (p *Pool) Run(ctx context.Context, runID string, tasks []crawler.Task) (Result, error) {
	res := Result{Parts: []crawler.Part{}, Rejected: map[classify.Verdict]int{}}
	if len(tasks) == 0 {
		return res, nil
	}
	workers := min(p.cfg.Concurrency, len(tasks))

	sessions, err := p.openSessions(ctx, workers)
	if err != nil {
		return res, err
	}
	defer p.closeSessions(sessions)

	queue := memory.NewQueue(len(tasks))
	for _, task := range tasks {
		if err := queue.Enqueue(ctx, task); err != nil {
			queue.Close()
			return res, fmt.Errorf("enqueue tasks: %w", err)
		}
	}
	queue.Close()

	var limiter worker.Limiter
	if p.cfg.MaxRPS > 0 {
		limiter = ratelimit.New(ratelimit.Config{
			RPS:   p.cfg.MaxRPS,
			Burst: 1,
			OnDelay: func(host string, waited time.Duration) {
				p.logger.Debug("request paced", zap.String("host", host), zap.Duration("waited", waited))
			},
		})
	}

	p.emit(progress.Event{RunID: runID, Stage: progress.StageRunStart, Total: len(tasks)})
	p.logger.Info("crawl started", zap.Int("tasks", len(tasks)), zap.Int("workers", workers))

	workerLog := p.logger.Named("worker")
	results := make(chan worker.Result, workers)
	g, gctx := errgroup.WithContext(ctx)
	for i, session := range sessions {
		w := worker.New(i, session, queue, p.classifier, limiter, p.cfg.Worker, workerLog)
		g.Go(func() error { return w.Run(gctx, results) })
	}
	waitErr := make(chan error, 1)
	go func() {
		waitErr <- g.Wait()
		close(results)
	}()

	for r := range results {
		p.collect(&res, r)
		p.emitTask(runID, r)
		processed := res.Completed + res.Failed
		if processed%p.cfg.ProgressEvery == 0 || processed == len(tasks) {
			p.logger.Info("progress",
				zap.Int("completed", processed),
				zap.Int("total", len(tasks)),
				zap.Int("parts", len(res.Parts)),
			)
		}
	}

	if err := <-waitErr; err != nil {
		if ctx.Err() != nil {
			return res, fmt.Errorf("crawl interrupted: %w", ctx.Err())
		}
		return res, err
	}
	return res, nil
}

func (p *Pool) collect(res *Result, r worker.Result) {
	res.Raw += r.Raw
	for v, n := range r.Rejected {
		res.Rejected[v] += n
	}
	if r.Err != nil {
		res.Failed++
		return
	}
	res.Completed++
	res.Parts = append(res.Parts, r.Parts...)
}

func (p *Pool) emitTask(runID string, r worker.Result) {
	evt := progress.Event{
		RunID: runID,
		Stage: progress.StageTaskDone,
		Brand: r.Task.Brand,
		Model: r.Task.Model,
		URL:   r.Task.URL,
		Raw:   r.Raw,
		Parts: len(r.Parts),
		Dur:   r.Duration,
	}
	for _, n := range r.Rejected {
		evt.Rejected += n
	}
	if r.Err != nil {
		evt.Stage = progress.StageTaskFailed
		evt.Note = r.Err.Error()
	}
	p.emit(evt)
}

func (p *Pool) emit(evt progress.Event) {
	evt.TS = time.Now().UTC()
	if p.clock != nil {
		evt.TS = p.clock.Now().UTC()
	}
	p.emitter.Emit(evt)
}

// openSessions opens n sessions or none: on failure the ones already opened
// are closed.
func (p *Pool) openSessions(ctx context.Context, n int) ([]crawler.Session, error) {
	sessions := make([]crawler.Session, 0, n)
	for range n {
		s, err := p.driver.NewSession(ctx)
		if err != nil {
			p.closeSessions(sessions)
			var setupErr *crawler.SetupError
			if errors.As(err, &setupErr) {
				return nil, err
			}
			return nil, &crawler.SetupError{Component: "session", Err: err}
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

func (p *Pool) closeSessions(sessions []crawler.Session) {
	for i, s := range sessions {
		if err := s.Close(); err != nil {
			p.logger.Warn("session close failed", zap.Int("worker", i), zap.Error(err))
		}
	}
}
