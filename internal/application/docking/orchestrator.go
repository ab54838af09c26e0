// Package docking drives one docking run end to end: it stages the uploads,
// walks the run through its state machine by invoking the external tools,
// parses the scores and aggregates the poses into ranked complexes.
package docking

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domainDock "github.com/turtacn/DockPipe/internal/domain/docking"
	"github.com/turtacn/DockPipe/internal/domain/structure"
	"github.com/turtacn/DockPipe/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/DockPipe/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/DockPipe/internal/infrastructure/staging"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolchain"
	"github.com/turtacn/DockPipe/internal/infrastructure/toolexec"
	"github.com/turtacn/DockPipe/pkg/errors"
)

// Request is the input of one run.
type Request struct {
	// RunID is optional; a UUID is generated when empty.
	RunID    string
	Ligand   string
	Receptor string

	// Center and Size, when both set, replace box estimation.
	Center *domainDock.Vec3
	Size   *domainDock.Vec3
}

// ArtifactExporter copies finished artifacts somewhere durable and returns a
// download URL per base name.
type ArtifactExporter interface {
	Export(ctx context.Context, runID string, paths []string) (map[string]string, error)
}

// RunReport is the outcome of a run.  On failure it is returned alongside
// the error with FailedStep and Error set.
type RunReport struct {
	RunID     string                  `json:"run_id"`
	Stage     domainDock.Stage        `json:"stage"`
	Dir       string                  `json:"dir,omitempty"`
	Box       domainDock.SearchBox    `json:"box"`
	BoxSource string                  `json:"box_source,omitempty"`
	Scores    *domainDock.Scores      `json:"scores,omitempty"`
	Poses     []domainDock.RankedPose `json:"poses,omitempty"`
	Complexes []string                `json:"complexes,omitempty"`
	Archive   string                  `json:"archive,omitempty"`
	TopPose   string                  `json:"top_pose,omitempty"`
	Exports   map[string]string       `json:"exports,omitempty"`
	History   []domainDock.Transition `json:"history"`
	Elapsed   time.Duration           `json:"elapsed"`

	FailedStep domainDock.Step `json:"failed_step,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func (r *RunReport) payload() kafka.RunPayload {
	p := kafka.RunPayload{
		RunID:      r.RunID,
		Stage:      string(r.Stage),
		FailedStep: string(r.FailedStep),
		Error:      r.Error,
		Center:     r.Box.Center,
		Size:       r.Box.Size,
		Archive:    r.Archive,
		TopPose:    r.TopPose,
		Exports:    r.Exports,
		ElapsedMs:  r.Elapsed.Milliseconds(),
	}
	for i, pose := range r.Poses {
		pp := kafka.PosePayload{Index: pose.Index, Affinity: pose.Affinity}
		if i < len(r.Complexes) {
			pp.Complex = r.Complexes[i]
		}
		p.Poses = append(p.Poses, pp)
	}
	if best, ok := r.Scores.Best(); ok {
		v := best.Affinity
		p.BestAffinity = &v
	}
	return p
}

// dropLocalPaths clears every path into a removed run directory.  Exported
// URLs stay.
func (r *RunReport) dropLocalPaths() {
	r.Dir = ""
	r.Complexes = nil
	r.Archive = ""
	r.TopPose = ""
	for i := range r.Poses {
		r.Poses[i].PoseFile = ""
	}
}

// StageError names the step a run failed in.
type StageError struct {
	Stage domainDock.Step
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ─────────────────────────────────────────────────────────────────────────────
// Orchestrator
// ─────────────────────────────────────────────────────────────────────────────

// Orchestrator runs docking pipelines.  Runs do not share state except the
// options and toolchain, which Reload swaps atomically between runs.
type Orchestrator struct {
	invoker  toolexec.Invoker
	sink     EventSink
	exporter ArtifactExporter
	metrics  *prometheus.DockingMetrics
	logger   logging.Logger

	mu    sync.RWMutex
	tools *toolchain.Toolchain
	opts  Options
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithEventSink replaces the default LogSink.
func WithEventSink(s EventSink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithExporter enables artifact export after successful runs.
func WithExporter(e ArtifactExporter) Option {
	return func(o *Orchestrator) { o.exporter = e }
}

// WithMetrics records run-level metrics.
func WithMetrics(m *prometheus.DockingMetrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// NewOrchestrator wires an orchestrator.  Without WithEventSink, events go
// to a LogSink on logger.
func NewOrchestrator(tools *toolchain.Toolchain, invoker toolexec.Invoker, opts Options, logger logging.Logger, options ...Option) *Orchestrator {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	o := &Orchestrator{
		invoker: invoker,
		logger:  logger.Named("orchestrator"),
		tools:   tools,
		opts:    opts,
	}
	for _, opt := range options {
		opt(o)
	}
	if o.sink == nil {
		o.sink = NewLogSink(logger)
	}
	return o
}

// Reload swaps the toolchain and options used by subsequent runs.  A nil
// toolchain keeps the current one.
func (o *Orchestrator) Reload(tools *toolchain.Toolchain, opts Options) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if tools != nil {
		o.tools = tools
	}
	o.opts = opts
	o.logger.Info("orchestrator options reloaded")
}

// Options returns the options the next run will use.
func (o *Orchestrator) Options() Options {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.opts
}

func (o *Orchestrator) snapshot() (*toolchain.Toolchain, Options) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.tools, o.opts
}

// runState carries everything one run touches.
type runState struct {
	req    Request
	opts   Options
	tools  *toolchain.Toolchain
	ws     *staging.Workspace
	run    *domainDock.Run
	report *RunReport
	logger logging.Logger

	ligandUpload   string
	receptorUpload string

	// mu pairs reading the current stage with advancing it so concurrent
	// preparation steps report the right From.
	mu sync.Mutex
}

// Run executes the pipeline for req.  The returned report is non-nil whenever
// a workspace was created, including on failure; the error is then an
// ErrCodeStageFailed AppError wrapping a *StageError.
func (o *Orchestrator) Run(ctx context.Context, req Request) (*RunReport, error) {
	if req.Ligand == "" || req.Receptor == "" {
		return nil, errors.InvalidParam("ligand and receptor are required")
	}
	if (req.Center == nil) != (req.Size == nil) {
		return nil, errors.InvalidParam("center and size must be given together")
	}
	if req.RunID == "" {
		req.RunID = staging.NewRunID()
	} else if err := staging.ValidateRunID(req.RunID); err != nil {
		return nil, err
	}

	tools, opts := o.snapshot()
	if req.Center == nil && opts.BoxSource == BoxSourceLigand {
		if _, _, err := structure.FormatFromPath(req.Ligand); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeBadRequest,
				"ligand format cannot seed the search box; pass --center/--size or use box_source receptor")
		}
	}
	ws, err := staging.Open(opts.StagingRoot, req.RunID, opts.KeepStaging)
	if err != nil {
		return nil, err
	}

	st := &runState{
		req:    req,
		opts:   opts,
		tools:  tools,
		ws:     ws,
		run:    domainDock.NewRun(req.RunID),
		report: &RunReport{RunID: req.RunID, Dir: ws.Dir()},
		logger: o.logger.With(logging.RunID(req.RunID)),
	}
	st.logger.Info("run started",
		logging.String("ligand", req.Ligand),
		logging.String("receptor", req.Receptor),
		logging.String("dir", ws.Dir()))

	runErr := o.execute(ctx, st)
	report := o.finish(ctx, st, runErr)

	if err := ws.Cleanup(); err != nil {
		st.logger.Warn("workspace cleanup failed", logging.Err(err))
	} else if !opts.KeepStaging {
		report.dropLocalPaths()
	}

	if runErr != nil {
		return report, errors.Wrap(runErr, errors.ErrCodeStageFailed, "run "+req.RunID+" failed")
	}
	return report, nil
}

// execute walks the state machine.  The returned error is always a
// *StageError.
func (o *Orchestrator) execute(ctx context.Context, st *runState) error {
	if err := o.stageInputs(st); err != nil {
		return err
	}
	if err := o.prepare(ctx, st); err != nil {
		return err
	}
	if err := o.dock(ctx, st); err != nil {
		return err
	}
	poseFiles, err := o.split(ctx, st)
	if err != nil {
		return err
	}
	return o.aggregate(ctx, st, poseFiles)
}

func (o *Orchestrator) stageInputs(st *runState) error {
	var err error
	if st.ligandUpload, err = st.ws.StageLigand(st.req.Ligand); err != nil {
		return &StageError{Stage: domainDock.StepLigandConversion, Err: err}
	}
	if st.receptorUpload, err = st.ws.StageReceptor(st.req.Receptor); err != nil {
		return &StageError{Stage: domainDock.StepReceptorPrep, Err: err}
	}
	return nil
}

// prepare runs ligand conversion, receptor preparation and box computation,
// in that order or concurrently with ParallelPrep.
func (o *Orchestrator) prepare(ctx context.Context, st *runState) error {
	steps := []func(context.Context) error{
		func(ctx context.Context) error { return o.convertLigand(ctx, st) },
		func(ctx context.Context) error { return o.prepareReceptor(ctx, st) },
		func(ctx context.Context) error { return o.computeBox(ctx, st) },
	}

	if !st.opts.ParallelPrep {
		for _, step := range steps {
			if err := step(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, step := range steps {
		step := step
		g.Go(func() error { return step(gctx) })
	}
	return g.Wait()
}

func (o *Orchestrator) convertLigand(ctx context.Context, st *runState) error {
	inv := st.tools.Convert(st.ligandUpload, st.ws.LigandConverted())
	return o.invokeStep(ctx, st, domainDock.StepLigandConversion, domainDock.StageLigandConverted, inv)
}

func (o *Orchestrator) prepareReceptor(ctx context.Context, st *runState) error {
	inv := st.tools.PrepareReceptor(st.receptorUpload, st.ws.ReceptorPrepared())
	return o.invokeStep(ctx, st, domainDock.StepReceptorPrep, domainDock.StageReceptorPrepared, inv)
}

func (o *Orchestrator) computeBox(ctx context.Context, st *runState) error {
	start := time.Now()
	box, source, err := o.resolveBox(st)
	if err != nil {
		return &StageError{Stage: domainDock.StepBox, Err: err}
	}
	st.report.Box = box
	st.report.BoxSource = source
	st.logger.Info("search box computed",
		logging.String("source", source),
		logging.String("center", box.Center.String()),
		logging.String("size", box.Size.String()))
	return o.advance(ctx, st, domainDock.StepBox, domainDock.StageBoxComputed, "", time.Since(start))
}

func (o *Orchestrator) resolveBox(st *runState) (domainDock.SearchBox, string, error) {
	if st.req.Center != nil && st.req.Size != nil {
		box, err := domainDock.ManualBox(*st.req.Center, *st.req.Size)
		return box, boxSourceManual, err
	}
	src := st.receptorUpload
	if st.opts.BoxSource == BoxSourceLigand {
		src = st.ligandUpload
	}
	s, err := structure.ParseFile(src)
	if err != nil {
		return domainDock.SearchBox{}, st.opts.BoxSource, err
	}
	box, err := domainDock.EstimateBox(s, st.opts.Padding)
	return box, st.opts.BoxSource, err
}

func (o *Orchestrator) dock(ctx context.Context, st *runState) error {
	inv := st.tools.Dock(toolchain.EngineParams{
		Receptor:       st.ws.ReceptorPrepared(),
		Ligand:         st.ws.LigandConverted(),
		Box:            st.report.Box,
		Out:            st.ws.DockedOutput(),
		Log:            st.ws.DockingLog(),
		Exhaustiveness: st.opts.Exhaustiveness,
		NumModes:       st.opts.NumModes,
		CPU:            st.opts.CPU,
		Seed:           st.opts.Seed,
	})
	inv.Timeout = st.opts.Timeout
	return o.invokeStep(ctx, st, domainDock.StepDocking, domainDock.StageDocked, inv)
}

func (o *Orchestrator) split(ctx context.Context, st *runState) ([]string, error) {
	inv := st.tools.Split(st.ws.DockedOutput(), st.ws.PosePrefix())
	res := o.invoker.Invoke(ctx, inv)
	if !res.OK() {
		return nil, &StageError{Stage: domainDock.StepSplit, Err: res.Err()}
	}
	files, err := st.ws.PoseFiles()
	if err != nil {
		return nil, &StageError{Stage: domainDock.StepSplit, Err: err}
	}
	if len(files) == 0 {
		return nil, &StageError{
			Stage: domainDock.StepSplit,
			Err:   errors.New(errors.ErrCodeNoPoses, "pose splitter produced no files").WithDetail(st.ws.PosesDir()),
		}
	}
	return files, o.advance(ctx, st, domainDock.StepSplit, domainDock.StageSplit, inv.Tool, res.Duration)
}

// invokeStep runs inv and advances to stage on success.
func (o *Orchestrator) invokeStep(ctx context.Context, st *runState, step domainDock.Step, stage domainDock.Stage, inv toolexec.Invocation) error {
	res := o.invoker.Invoke(ctx, inv)
	if !res.OK() {
		return &StageError{Stage: step, Err: res.Err()}
	}
	return o.advance(ctx, st, step, stage, inv.Tool, res.Duration)
}

func (o *Orchestrator) advance(ctx context.Context, st *runState, step domainDock.Step, to domainDock.Stage, tool string, d time.Duration) error {
	st.mu.Lock()
	from := st.run.Stage()
	err := st.run.Advance(to)
	st.mu.Unlock()
	if err != nil {
		return &StageError{Stage: step, Err: err}
	}
	o.emit(ctx, st, StageEvent{
		RunID:    st.run.ID(),
		From:     from,
		To:       to,
		Step:     step,
		Tool:     tool,
		Duration: d,
		At:       time.Now().UTC(),
	})
	return nil
}

func (o *Orchestrator) emit(ctx context.Context, st *runState, ev StageEvent) {
	if err := o.sink.Publish(ctx, ev); err != nil {
		st.logger.Warn("stage event not delivered", logging.Stage(string(ev.To)), logging.Err(err))
	}
}

// finish records the terminal state, exports artifacts, emits the report
// and updates run metrics.
func (o *Orchestrator) finish(ctx context.Context, st *runState, runErr error) *RunReport {
	r := st.report
	if runErr != nil {
		var se *StageError
		step := domainDock.StepAggregate
		if errors.As(runErr, &se) {
			step = se.Stage
		}
		from := st.run.Stage()
		if err := st.run.Fail(step, runErr); err != nil {
			st.logger.Warn("cannot record failure", logging.Err(err))
		}
		o.emit(ctx, st, StageEvent{
			RunID: st.run.ID(),
			From:  from,
			To:    domainDock.StageFailed,
			Step:  step,
			Err:   runErr,
			At:    time.Now().UTC(),
		})
		r.FailedStep = step
		r.Error = runErr.Error()
	} else if o.exporter != nil {
		o.export(ctx, st)
	}

	r.Stage = st.run.Stage()
	r.History = st.run.History()
	r.Elapsed = st.run.Elapsed()

	if err := o.sink.PublishReport(ctx, r); err != nil {
		st.logger.Warn("run report not delivered", logging.Err(err))
	}
	if o.metrics != nil {
		if runErr != nil {
			prometheus.RecordRunFailure(o.metrics, string(r.FailedStep), r.Elapsed)
		} else {
			best, _ := r.Scores.Best()
			skipped := 0
			if r.Scores != nil {
				skipped = len(r.Scores.Skipped)
			}
			prometheus.RecordRunSuccess(o.metrics, len(r.Poses), best.Affinity, skipped, r.Elapsed)
		}
	}
	return r
}

func (o *Orchestrator) export(ctx context.Context, st *runState) {
	r := st.report
	var paths []string
	for _, p := range []string{r.Archive, r.TopPose, st.ws.DockedOutput(), st.ws.DockingLog()} {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err == nil {
			paths = append(paths, p)
		}
	}
	urls, err := o.exporter.Export(ctx, st.run.ID(), paths)
	if o.metrics != nil {
		prometheus.RecordArtifactUpload(o.metrics, err)
	}
	if err != nil {
		st.logger.Warn("artifact export incomplete", logging.Err(err))
	}
	if len(urls) > 0 {
		r.Exports = urls
	}
}
