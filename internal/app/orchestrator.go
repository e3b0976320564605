package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shelfscan/shelfscan/internal/analyzer"
	"github.com/shelfscan/shelfscan/internal/discovery"
	"github.com/shelfscan/shelfscan/internal/export"
	"github.com/shelfscan/shelfscan/internal/genai"
	"github.com/shelfscan/shelfscan/internal/logging"
	"github.com/shelfscan/shelfscan/internal/metrics"
	"github.com/shelfscan/shelfscan/internal/model"
	"github.com/shelfscan/shelfscan/internal/report"
	"github.com/shelfscan/shelfscan/internal/scrape"
	"github.com/shelfscan/shelfscan/internal/session"
	"github.com/shelfscan/shelfscan/internal/store"
	"github.com/shelfscan/shelfscan/internal/urlutil"
	"github.com/shelfscan/shelfscan/internal/webclient"
)

// Mode selects the analysis flow for a run.
type Mode string

const (
	ModeMultiPage  Mode = "multi-page"
	ModeSinglePage Mode = "single-page"
)

type JobEventType string

const (
	JobEventStatus   JobEventType = "status"
	JobEventProgress JobEventType = "progress"
	JobEventResult   JobEventType = "result"
)

type JobEvent struct {
	JobID string       `json:"job_id"`
	Type  JobEventType `json:"type"`

	// For status changes
	Status JobStatus `json:"status,omitempty"`
	Error  string    `json:"error,omitempty"`

	// For progress (multi-page flow only)
	Processed int `json:"processed,omitempty"`
	Total     int `json:"total,omitempty"`
}

type JobStatus string

const (
	JobPending  JobStatus = "pending"
	JobRunning  JobStatus = "running"
	JobDone     JobStatus = "done"
	JobFailed   JobStatus = "failed"
	JobCanceled JobStatus = "canceled"
)

// Job is one in-flight or finished analysis run.
type Job struct {
	ID        string        `json:"id"`
	Mode      Mode          `json:"mode"`
	URL       string        `json:"url"`
	UserID    string        `json:"user_id"`
	RecordID  string        `json:"record_id"`
	Status    JobStatus     `json:"status"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Events    chan JobEvent `json:"-"`

	Result *model.AnalysisResult `json:"result,omitempty"`
}

var (
	ErrNotSignedIn    = errors.New("sign-in required")
	ErrEstimatorUnset = errors.New("no model credentials configured")

	// ErrScreenshotUnavailable rejects single-page starts when the configured
	// webclient backend cannot render screenshots.
	ErrScreenshotUnavailable = errors.New("single-page analysis needs a rendering backend (set SHELFSCAN_WEBCLIENT=chromedp)")
)

// Orchestrator wires the pipeline together and tracks jobs.
type Orchestrator struct {
	cfg    *Config
	logger logging.Logger

	wc         webclient.WebClient
	scraper    *scrape.Scraper
	discoverer *discovery.Discoverer
	estimator  genai.Estimator
	analyzer   *analyzer.Analyzer
	store      *store.Store
	sessions   *session.Manager

	jobsMu     sync.Mutex
	jobs       map[string]*Job
	jobCancels map[string]context.CancelFunc
}

// NewOrchestrator constructs the full pipeline from config.
func NewOrchestrator(cfg *Config, logger logging.Logger) (*Orchestrator, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.ExpandDataDir(); err != nil {
		return nil, fmt.Errorf("expand data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "screenshots"), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}

	wc, err := webclient.New(cfg.WebClientCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("new webclient: %w", err)
	}

	scraper, err := scrape.NewScraper(wc, cfg.PageCacheSize, logger)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("new scraper: %w", err)
	}

	estimator, err := genai.NewOpenAIClient(cfg.GenAICfg, logger)
	if err != nil {
		wc.Close()
		return nil, fmt.Errorf("new estimator: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.DataDir, "shelfscan.db"), logger)
	if err != nil {
		wc.Close()
		_ = estimator.Close()
		return nil, fmt.Errorf("open store: %w", err)
	}

	disc := discovery.New(cfg.DiscoveryCfg, scraper, logger)
	anl := analyzer.New(cfg.AnalyzerCfg, scraper, disc, estimator, nil, logger)
	sessions := session.NewManager(session.NewStaticProvider(cfg.AuthTokens), logger)

	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		wc:         wc,
		scraper:    scraper,
		discoverer: disc,
		estimator:  estimator,
		analyzer:   anl,
		store:      st,
		sessions:   sessions,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}, nil
}

// NewOrchestratorWith injects pre-built collaborators; used by tests. A nil
// webclient skips the screenshot capability check.
func NewOrchestratorWith(cfg *Config, wc webclient.WebClient, anl *analyzer.Analyzer, st *store.Store, sessions *session.Manager, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:        cfg,
		logger:     logger,
		wc:         wc,
		analyzer:   anl,
		store:      st,
		sessions:   sessions,
		jobs:       make(map[string]*Job),
		jobCancels: make(map[string]context.CancelFunc),
	}
}

// Sessions exposes the session manager for the HTTP layer.
func (o *Orchestrator) Sessions() *session.Manager {
	return o.sessions
}

func (o *Orchestrator) emitJobEvent(jobID string, ev JobEvent) {
	o.jobsMu.Lock()
	job, ok := o.jobs[jobID]
	o.jobsMu.Unlock()
	if !ok || job == nil || job.Events == nil {
		return
	}

	// Non-blocking send; drop if buffer is full.
	select {
	case job.Events <- ev:
	default:
	}
}

func (o *Orchestrator) setJobStatus(jobID string, status JobStatus, errMsg string) {
	o.jobsMu.Lock()
	if j, ok := o.jobs[jobID]; ok {
		j.Status = status
		if errMsg != "" {
			j.Error = errMsg
		}
	}
	o.jobsMu.Unlock()
	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: status, Error: errMsg})
}

// StartAnalysis validates the URL, creates the record and launches the run
// in the background. The returned Job carries the event channel.
func (o *Orchestrator) StartAnalysis(ctx context.Context, userID, rawURL string, mode Mode) (*Job, error) {
	if userID == "" {
		return nil, ErrNotSignedIn
	}
	if mode != ModeSinglePage {
		mode = ModeMultiPage
	}
	if mode == ModeSinglePage && o.wc != nil && !webclient.CanScreenshot(o.wc) {
		return nil, ErrScreenshotUnavailable
	}

	canon, err := urlutil.ValidateInput(rawURL)
	if err != nil {
		return nil, err
	}

	rec, err := o.store.Create(ctx, userID, canon)
	if err != nil {
		return nil, err
	}

	jobID := uuid.New().String()
	job := &Job{
		ID:        jobID,
		Mode:      mode,
		URL:       canon,
		UserID:    userID,
		RecordID:  rec.ID,
		Status:    JobPending,
		StartedAt: time.Now().UTC(),
		Events:    make(chan JobEvent, 16),
	}

	o.jobsMu.Lock()
	o.jobs[jobID] = job
	o.jobsMu.Unlock()

	jobCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	o.jobsMu.Lock()
	o.jobCancels[jobID] = cancel
	o.jobsMu.Unlock()

	o.emitJobEvent(jobID, JobEvent{JobID: jobID, Type: JobEventStatus, Status: JobPending})

	go o.runAnalysis(jobCtx, job)

	snapshot := *job
	return &snapshot, nil
}

func (o *Orchestrator) runAnalysis(ctx context.Context, job *Job) {
	start := time.Now()

	defer func() {
		o.jobsMu.Lock()
		if j, ok := o.jobs[job.ID]; ok {
			j.EndedAt = time.Now().UTC()
		}
		delete(o.jobCancels, job.ID)
		events := job.Events
		o.jobsMu.Unlock()

		// Close events channel so websocket loops terminate cleanly.
		if events != nil {
			close(events)
		}

		metrics.RunDuration.WithLabelValues(string(job.Mode)).Observe(time.Since(start).Seconds())
	}()

	o.setJobStatus(job.ID, JobRunning, "")
	if err := o.store.MarkAnalyzing(ctx, job.RecordID); err != nil {
		o.logger.Warn("mark analyzing failed",
			logging.Field{Key: "record_id", Value: job.RecordID},
			logging.Field{Key: "error", Value: err.Error()})
	}

	var (
		result *model.AnalysisResult
		shot   []byte
		runErr error
	)

	switch job.Mode {
	case ModeSinglePage:
		result, shot, runErr = o.analyzer.AnalyzePage(ctx, job.URL)
	default:
		result, runErr = o.analyzer.AnalyzeSite(ctx, job.URL, func(processed, total int) {
			o.emitJobEvent(job.ID, JobEvent{
				JobID: job.ID, Type: JobEventProgress, Processed: processed, Total: total,
			})
		})
	}

	// Store writes after the run must survive job cancellation.
	persistCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if ctx.Err() != nil {
		// A canceled run keeps the pages that finished before the cancel hit;
		// the record only fails when nothing completed.
		if result != nil && result.Status != model.ResultFailed {
			if err := o.store.Complete(persistCtx, job.RecordID, result, ""); err != nil {
				o.logger.Error("persist partial result failed",
					logging.Field{Key: "record_id", Value: job.RecordID},
					logging.Field{Key: "error", Value: err.Error()})
			}
			o.jobsMu.Lock()
			if j, ok := o.jobs[job.ID]; ok {
				j.Result = result
			}
			o.jobsMu.Unlock()
		} else {
			o.failRecord(persistCtx, job.RecordID, "analysis canceled")
		}
		o.setJobStatus(job.ID, JobCanceled, ctx.Err().Error())
		metrics.Runs.WithLabelValues(string(job.Mode), string(JobCanceled)).Inc()
		return
	}

	if runErr != nil {
		o.failRecord(persistCtx, job.RecordID, runErr.Error())
		o.setJobStatus(job.ID, JobFailed, runErr.Error())
		metrics.Runs.WithLabelValues(string(job.Mode), string(JobFailed)).Inc()
		return
	}

	screenshotRef := o.saveScreenshot(job.RecordID, shot)

	// A database write failure is logged but the user still gets the result.
	if err := o.store.Complete(persistCtx, job.RecordID, result, screenshotRef); err != nil {
		o.logger.Error("persist result failed",
			logging.Field{Key: "record_id", Value: job.RecordID},
			logging.Field{Key: "error", Value: err.Error()})
	}

	o.jobsMu.Lock()
	if j, ok := o.jobs[job.ID]; ok {
		j.Result = result
	}
	o.jobsMu.Unlock()

	o.setJobStatus(job.ID, JobDone, "")
	o.emitJobEvent(job.ID, JobEvent{JobID: job.ID, Type: JobEventResult, Status: JobDone})
	metrics.Runs.WithLabelValues(string(job.Mode), string(JobDone)).Inc()
}

func (o *Orchestrator) failRecord(ctx context.Context, recordID, msg string) {
	if err := o.store.Fail(ctx, recordID, msg); err != nil {
		o.logger.Warn("mark failed failed",
			logging.Field{Key: "record_id", Value: recordID},
			logging.Field{Key: "error", Value: err.Error()})
	}
}

// saveScreenshot writes the single-page flow's capture under the data dir
// and returns its reference; failures are logged only.
func (o *Orchestrator) saveScreenshot(recordID string, shot []byte) string {
	if len(shot) == 0 {
		return ""
	}
	path := filepath.Join(o.cfg.DataDir, "screenshots", recordID+".png")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		o.logger.Warn("save screenshot failed",
			logging.Field{Key: "path", Value: path},
			logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	return path
}

// CancelJob cancels a running job. The run goroutine persists the pages
// finished so far, or marks the record failed when none completed.
func (o *Orchestrator) CancelJob(jobID string) {
	o.jobsMu.Lock()
	cancel := o.jobCancels[jobID]
	o.jobsMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// GetJob returns a snapshot of the job taken under the lock; the run
// goroutine keeps mutating the live object, so callers must never see it.
func (o *Orchestrator) GetJob(jobID string) *Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	j, ok := o.jobs[jobID]
	if !ok {
		return nil
	}
	snapshot := *j
	return &snapshot
}

// ListJobs returns snapshots of every tracked job.
func (o *Orchestrator) ListJobs() []*Job {
	o.jobsMu.Lock()
	defer o.jobsMu.Unlock()
	out := make([]*Job, 0, len(o.jobs))
	for _, j := range o.jobs {
		snapshot := *j
		out = append(out, &snapshot)
	}
	return out
}

// GetRecord returns a record if it belongs to userID.
func (o *Orchestrator) GetRecord(ctx context.Context, userID, recordID string) (*model.AnalysisRecord, error) {
	rec, err := o.store.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, store.ErrRecordNotFound
	}
	return rec, nil
}

// History lists a user's records, newest first.
func (o *Orchestrator) History(ctx context.Context, userID string, limit int) ([]model.AnalysisRecord, error) {
	return o.store.ListByUser(ctx, userID, limit)
}

// ExportCSV renders a record's page results as a CSV download. A record with
// no result yields (nil, "", nil): nothing to download.
func (o *Orchestrator) ExportCSV(ctx context.Context, userID, recordID string) ([]byte, string, error) {
	result, err := o.recordResult(ctx, userID, recordID)
	if err != nil {
		return nil, "", err
	}
	if result == nil {
		return nil, "", nil
	}
	data, err := export.CSV(result)
	if err != nil || data == nil {
		return nil, "", err
	}
	return data, export.Filename(time.Now()), nil
}

// CompareRecords diffs two completed records owned by the same user.
func (o *Orchestrator) CompareRecords(ctx context.Context, userID, beforeID, afterID string) (*report.Comparison, error) {
	before, err := o.recordResult(ctx, userID, beforeID)
	if err != nil {
		return nil, err
	}
	after, err := o.recordResult(ctx, userID, afterID)
	if err != nil {
		return nil, err
	}
	if before == nil || after == nil {
		return nil, errors.New("both records need a completed result to compare")
	}
	return report.Compare(before, after), nil
}

// recordResult loads and unmarshals a record's detail blob; nil when the
// record has none.
func (o *Orchestrator) recordResult(ctx context.Context, userID, recordID string) (*model.AnalysisResult, error) {
	rec, err := o.GetRecord(ctx, userID, recordID)
	if err != nil {
		return nil, err
	}
	if rec.Detail == "" {
		return nil, nil
	}
	var result model.AnalysisResult
	if err := json.Unmarshal([]byte(rec.Detail), &result); err != nil {
		return nil, fmt.Errorf("decode stored result: %w", err)
	}
	return &result, nil
}

// Close releases every component. Running jobs are canceled.
func (o *Orchestrator) Close() error {
	o.jobsMu.Lock()
	for _, cancel := range o.jobCancels {
		cancel()
	}
	o.jobsMu.Unlock()

	var firstErr error
	if o.wc != nil {
		if err := o.wc.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.estimator != nil {
		if err := o.estimator.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if o.store != nil {
		if err := o.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
