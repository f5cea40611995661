// Package pipeline runs one end-to-end crawl: discover the navigation menu,
// crawl every model page, reconcile against the previous snapshot, then
// persist and announce the result.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/parts-catalog-crawler/internal/classify"
	"github.com/JakeFAU/parts-catalog-crawler/internal/crawler"
	"github.com/JakeFAU/parts-catalog-crawler/internal/dispatcher"
	"github.com/JakeFAU/parts-catalog-crawler/internal/navigation"
	"github.com/JakeFAU/parts-catalog-crawler/internal/progress"
	"github.com/JakeFAU/parts-catalog-crawler/internal/reconcile"
	"github.com/JakeFAU/parts-catalog-crawler/internal/report"
	"github.com/JakeFAU/parts-catalog-crawler/internal/worker"
)

// Config controls a run.
type Config struct {
	RootURL string
	// Topic receives the changeset notification; empty disables publishing.
	Topic string
	// ArchivePrevious copies the superseded snapshot to the blob store.
	ArchivePrevious bool
	Navigation      navigation.Config
	Pool            dispatcher.Config
}

// Deps are the collaborators of a run. Blobs and Publisher may be nil.
type Deps struct {
	Driver     crawler.Driver
	Store      crawler.Store
	Blobs      crawler.BlobStore
	Publisher  crawler.Publisher
	Emitter    progress.Emitter
	Clock      crawler.Clock
	IDs        crawler.IDGenerator
	Hasher     crawler.Hasher
	Classifier worker.Classifier
}

// Summary describes a finished (or aborted) run.
type Summary struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time

	Brands        int
	Categories    int
	Models        int
	DroppedModels int

	Tasks     int
	Completed int
	Failed    int
	Raw       int
	Rejected  map[classify.Verdict]int
	// Parts is the number of accepted listings this run.
	Parts int

	// Snapshot is the size of the merged snapshot.
	Snapshot       int
	SnapshotDigest string
	Added          int
	Removed        int
	Updated        int
	Unchanged      int

	DiagnosticURI string
	ArchiveURI    string
	ReportURI     string
	MessageID     string
}

// Duration is the wall time of the run.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Notification is the Pub/Sub payload announcing a changeset.
type Notification struct {
	RunID          string    `json:"run_id"`
	GeneratedAt    time.Time `json:"generated_at"`
	Added          int       `json:"added"`
	Removed        int       `json:"removed"`
	Updated        int       `json:"updated"`
	Unchanged      int       `json:"unchanged"`
	SnapshotSHA256 string    `json:"snapshot_sha256,omitempty"`
}

// Pipeline wires the stages of a run together.
type Pipeline struct {
	cfg        Config
	deps       Deps
	discoverer *navigation.Discoverer
	pool       *dispatcher.Pool
	logger     *zap.Logger
}

// New validates deps and builds a Pipeline.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Pipeline, error) {
	if deps.Driver == nil {
		return nil, errors.New("driver is required")
	}
	if deps.Store == nil {
		return nil, errors.New("store is required")
	}
	if deps.Clock == nil {
		return nil, errors.New("clock is required")
	}
	if deps.IDs == nil {
		return nil, errors.New("id generator is required")
	}
	if deps.Classifier == nil {
		deps.Classifier = classify.New(classify.DefaultRules(), deps.Clock)
	}
	if deps.Emitter == nil {
		deps.Emitter = progress.NopEmitter{}
	}
	if cfg.RootURL == "" {
		return nil, errors.New("root url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		cfg:        cfg,
		deps:       deps,
		discoverer: navigation.NewDiscoverer(cfg.Navigation, logger.Named("navigation")),
		pool:       dispatcher.New(deps.Driver, deps.Classifier, deps.Emitter, deps.Clock, cfg.Pool, logger.Named("pool")),
		logger:     logger.Named("pipeline"),
	}, nil
}

// Run executes one crawl. A *crawler.NavigationNotFoundError, a
// *crawler.SetupError, a root fetch failure or cancellation aborts the run
// before anything is reconciled or written; the partial Summary is still
// returned. Failures persisting results are logged and do not fail the run.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	runID, err := p.deps.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	sum := Summary{RunID: runID, StartedAt: p.deps.Clock.Now(), Rejected: map[classify.Verdict]int{}}
	log := p.logger.With(zap.String("run_id", runID))
	log.Info("run started", zap.String("root_url", p.cfg.RootURL))

	nav, err := p.discover(ctx, runID, &sum, log)
	if err != nil {
		return p.abort(sum, err, log)
	}
	if err := ctx.Err(); err != nil {
		return p.abort(sum, fmt.Errorf("crawl interrupted: %w", err), log)
	}

	if err := p.deps.Store.SaveNavigation(ctx, nav.Navigation); err != nil {
		log.Error("save navigation failed", zap.Error(err))
	}

	res, err := p.pool.Run(ctx, runID, nav.Tasks)
	sum.Completed, sum.Failed, sum.Raw, sum.Parts = res.Completed, res.Failed, res.Raw, len(res.Parts)
	sum.Rejected = res.Rejected
	if err != nil {
		return p.abort(sum, err, log)
	}
	if err := ctx.Err(); err != nil {
		return p.abort(sum, fmt.Errorf("crawl interrupted: %w", err), log)
	}

	previous := p.loadPrevious(ctx, log)
	if p.cfg.ArchivePrevious && len(previous) > 0 {
		sum.ArchiveURI = p.putJSON(ctx, path.Join("archive", runID, "parts.json"), previous, log)
	}

	merged, cs := reconcile.Reconcile(res.Parts, previous)
	cs.RunID = runID
	cs.GeneratedAt = p.deps.Clock.Now()
	parts := merged.Parts()
	sum.Snapshot = len(parts)
	sum.Added, sum.Removed, sum.Updated, sum.Unchanged = len(cs.Added), len(cs.Removed), len(cs.Updated), cs.Unchanged

	if err := p.deps.Store.SaveSnapshot(ctx, parts); err != nil {
		log.Error("save snapshot failed", zap.Error(err))
	}
	if err := p.deps.Store.SaveChangeset(ctx, cs); err != nil {
		log.Error("save changeset failed", zap.Error(err))
	}
	sum.SnapshotDigest = p.digest(parts, log)
	sum.FinishedAt = p.deps.Clock.Now()

	sum.ReportURI = p.writeReport(ctx, sum, cs, log)
	sum.MessageID = p.publish(ctx, sum, cs, log)

	p.emitDone(sum, "")
	log.Info("run finished",
		zap.Int("tasks", sum.Tasks),
		zap.Int("completed", sum.Completed),
		zap.Int("failed", sum.Failed),
		zap.Int("raw", sum.Raw),
		zap.Int("parts", sum.Parts),
		zap.Int("snapshot", sum.Snapshot),
		zap.Int("added", sum.Added),
		zap.Int("removed", sum.Removed),
		zap.Int("updated", sum.Updated),
		zap.Int("unchanged", sum.Unchanged),
		zap.Duration("duration", sum.Duration()),
	)
	return sum, nil
}

func (p *Pipeline) discover(ctx context.Context, runID string, sum *Summary, log *zap.Logger) (navigation.Result, error) {
	session, err := p.deps.Driver.NewSession(ctx)
	if err != nil {
		var setupErr *crawler.SetupError
		if errors.As(err, &setupErr) {
			return navigation.Result{}, err
		}
		return navigation.Result{}, &crawler.SetupError{Component: "session", Err: err}
	}
	defer func() {
		if err := session.Close(); err != nil {
			log.Warn("discovery session close failed", zap.Error(err))
		}
	}()

	res, err := p.discoverer.Discover(ctx, session, p.cfg.RootURL)
	if err != nil {
		var navErr *crawler.NavigationNotFoundError
		if errors.As(err, &navErr) {
			sum.DiagnosticURI = p.dumpDiagnostic(ctx, runID, navErr.Content, log)
		}
		return navigation.Result{}, err
	}
	sum.Brands = len(res.Navigation.Brands)
	sum.Categories = len(res.Navigation.Categories)
	sum.Models = len(res.Navigation.Models)
	sum.DroppedModels = res.DroppedModels
	sum.Tasks = len(res.Tasks)
	return res, nil
}

func (p *Pipeline) abort(sum Summary, err error, log *zap.Logger) (Summary, error) {
	sum.FinishedAt = p.deps.Clock.Now()
	p.emitDone(sum, err.Error())
	log.Error("run aborted", zap.Error(err), zap.Duration("duration", sum.Duration()))
	return sum, err
}

func (p *Pipeline) dumpDiagnostic(ctx context.Context, runID string, content []byte, log *zap.Logger) string {
	if p.deps.Blobs == nil {
		return ""
	}
	name := path.Join("diagnostics", runID, "root.html")
	uri, err := p.deps.Blobs.PutObject(ctx, name, "text/html; charset=utf-8", bytes.NewReader(content))
	if err != nil {
		log.Error("diagnostic dump failed", zap.String("path", name), zap.Error(err))
		return ""
	}
	log.Warn("navigation page dumped for diagnosis", zap.String("uri", uri))
	return uri
}

// loadPrevious treats a missing or unreadable snapshot as empty.
func (p *Pipeline) loadPrevious(ctx context.Context, log *zap.Logger) []crawler.Part {
	previous, err := p.deps.Store.LoadSnapshot(ctx)
	switch {
	case errors.Is(err, crawler.ErrNotFound):
		log.Info("no previous snapshot, starting fresh")
		return nil
	case err != nil:
		log.Warn("previous snapshot unreadable, treating as empty", zap.Error(err))
		return nil
	}
	return previous
}

func (p *Pipeline) putJSON(ctx context.Context, name string, v any, log *zap.Logger) string {
	if p.deps.Blobs == nil {
		return ""
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Error("encode artifact failed", zap.String("path", name), zap.Error(err))
		return ""
	}
	uri, err := p.deps.Blobs.PutObject(ctx, name, "application/json", bytes.NewReader(data))
	if err != nil {
		log.Error("write artifact failed", zap.String("path", name), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) digest(parts []crawler.Part, log *zap.Logger) string {
	if p.deps.Hasher == nil {
		return ""
	}
	data, err := json.Marshal(parts)
	if err != nil {
		log.Warn("encode snapshot for digest failed", zap.Error(err))
		return ""
	}
	sum, err := p.deps.Hasher.Hash(data)
	if err != nil {
		log.Warn("snapshot digest failed", zap.Error(err))
		return ""
	}
	return sum
}

func (p *Pipeline) writeReport(ctx context.Context, sum Summary, cs crawler.Changeset, log *zap.Logger) string {
	if p.deps.Blobs == nil {
		return ""
	}
	var buf bytes.Buffer
	if err := report.WriteChangeset(&buf, sum.Stats(), cs); err != nil {
		log.Error("render report failed", zap.Error(err))
		return ""
	}
	name := path.Join("reports", sum.RunID, "changeset.md")
	uri, err := p.deps.Blobs.PutObject(ctx, name, "text/markdown; charset=utf-8", &buf)
	if err != nil {
		log.Error("write report failed", zap.String("path", name), zap.Error(err))
		return ""
	}
	return uri
}

func (p *Pipeline) publish(ctx context.Context, sum Summary, cs crawler.Changeset, log *zap.Logger) string {
	if p.cfg.Topic == "" || p.deps.Publisher == nil {
		return ""
	}
	id, err := p.deps.Publisher.Publish(ctx, p.cfg.Topic, Notification{
		RunID:          cs.RunID,
		GeneratedAt:    cs.GeneratedAt,
		Added:          len(cs.Added),
		Removed:        len(cs.Removed),
		Updated:        len(cs.Updated),
		Unchanged:      cs.Unchanged,
		SnapshotSHA256: sum.SnapshotDigest,
	})
	if err != nil {
		log.Error("publish changeset failed", zap.String("topic", p.cfg.Topic), zap.Error(err))
		return ""
	}
	return id
}

func (p *Pipeline) emitDone(sum Summary, note string) {
	rejected := 0
	for _, n := range sum.Rejected {
		rejected += n
	}
	p.deps.Emitter.Emit(progress.Event{
		RunID:    sum.RunID,
		TS:       sum.FinishedAt.UTC(),
		Stage:    progress.StageRunDone,
		Total:    sum.Tasks,
		Raw:      sum.Raw,
		Parts:    sum.Parts,
		Rejected: rejected,
		Dur:      max(sum.Duration(), 0),
		Note:     note,
	})
}

// Stats converts the summary for the Markdown report.
func (s Summary) Stats() report.Stats {
	rejected := make(map[string]int, len(s.Rejected))
	for v, n := range s.Rejected {
		rejected[string(v)] = n
	}
	return report.Stats{
		RunID:     s.RunID,
		StartedAt: s.StartedAt,
		Duration:  s.Duration(),
		Tasks:     s.Tasks,
		Completed: s.Completed,
		Failed:    s.Failed,
		Raw:       s.Raw,
		Parts:     s.Parts,
		Snapshot:  s.Snapshot,
		Rejected:  rejected,
	}
}
