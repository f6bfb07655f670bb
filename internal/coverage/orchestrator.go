// Package coverage drives an instrumentation run: validate the module,
// resolve its symbols and dependencies, rewrite it and write it back, all
// file access going through the retry executor.
package coverage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/psantana5/covrun/internal/framework"
	"github.com/psantana5/covrun/internal/symbols"
	"github.com/psantana5/covrun/pkg/retry"
)

const tracerName = "github.com/psantana5/covrun/internal/coverage"

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithReadPolicy sets the policy for existence checks and reads.
func WithReadPolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.readPolicy = p
	}
}

// WithWritePolicy sets the policy for writing the instrumented module.
func WithWritePolicy(p retry.Policy) Option {
	return func(o *Orchestrator) {
		o.writePolicy = p
	}
}

// WithBackup copies the original module and symbol file into dir before
// writing. An empty dir means <module dir>/.covrun-backup.
func WithBackup(dir string) Option {
	return func(o *Orchestrator) {
		o.backup = true
		o.backupDir = dir
	}
}

// Orchestrator runs instrumentation passes. Runs share no mutable state,
// so Run may be called concurrently.
type Orchestrator struct {
	deps        Dependencies
	readPolicy  retry.Policy
	writePolicy retry.Policy
	backup      bool
	backupDir   string
	tracer      trace.Tracer
}

// NewOrchestrator wires deps. Missing optional collaborators are replaced
// by no-ops.
func NewOrchestrator(deps Dependencies, opts ...Option) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = nopLogger{}
	}
	o := &Orchestrator{
		deps:        deps,
		readPolicy:  retry.DefaultPolicy(),
		writePolicy: retry.DefaultPolicy(),
		tracer:      otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Target names the files of one run.
type Target struct {
	ModulePath string
	// SymbolPath defaults to the module path with a .pdb extension.
	SymbolPath string
}

// Run instruments modulePath with its default symbol path.
func (o *Orchestrator) Run(ctx context.Context, modulePath string) *Outcome {
	return o.RunTarget(ctx, Target{ModulePath: modulePath})
}

// RunTarget instruments t. ctx only carries trace spans; a run is never
// cancelled part way.
func (o *Orchestrator) RunTarget(ctx context.Context, t Target) *Outcome {
	r := &run{
		o:     o,
		stage: StageIdle,
		outcome: &Outcome{
			RunID:      uuid.NewString(),
			ModulePath: t.ModulePath,
			StartedAt:  time.Now(),
		},
	}
	r.fields = map[string]interface{}{"run_id": r.outcome.RunID, "module": t.ModulePath}

	ctx, span := o.tracer.Start(ctx, "coverage.run", trace.WithAttributes(
		attribute.String("covrun.module", t.ModulePath),
		attribute.String("covrun.run_id", r.outcome.RunID),
	))
	defer span.End()

	r.execute(ctx, t)

	out := r.outcome
	out.Stage = r.failedAt
	if out.Stage == "" {
		out.Stage = StageDone
	}
	out.Success = out.Err == nil
	for _, d := range out.Diagnostics {
		if d.Severity == SeverityError {
			out.Success = false
		}
	}
	out.Duration = time.Since(out.StartedAt)

	span.SetAttributes(attribute.Bool("covrun.success", out.Success), attribute.Int("covrun.retries", out.Retries))
	if !out.Success {
		span.SetStatus(codes.Error, out.Diagnostics[0].Message)
	}
	if o.deps.Metrics != nil {
		o.deps.Metrics.ObserveRun(out.Success, out.Unresolved, out.Duration)
	}
	o.deps.Logger.Info("instrumentation finished", r.with(map[string]interface{}{
		"success":  out.Success,
		"retries":  out.Retries,
		"duration": out.Duration.String(),
	}))
	return out
}

// run is the state of one pass.
type run struct {
	o        *Orchestrator
	stage    Stage
	failedAt Stage
	outcome  *Outcome
	warnings []Diagnostic
	fields   map[string]interface{}
}

func (r *run) with(extra map[string]interface{}) map[string]interface{} {
	f := make(map[string]interface{}, len(r.fields)+len(extra))
	for k, v := range r.fields {
		f[k] = v
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

func (r *run) enter(to Stage) error {
	if err := ValidateTransition(r.stage, to); err != nil {
		return err
	}
	r.o.deps.Logger.Debug("entering stage", r.with(map[string]interface{}{"from": string(r.stage), "to": string(to)}))
	r.stage = to
	return nil
}

func (r *run) warn(msg string) {
	r.warnings = append(r.warnings, Diagnostic{Severity: SeverityWarning, Message: msg})
	r.o.deps.Logger.Warn(msg, r.fields)
}

// fail ends the run: the error message leads the diagnostics, earlier
// warnings follow.
func (r *run) fail(err error) {
	stage := r.stage
	var se *StageError
	if errors.As(err, &se) {
		stage = se.Stage
	} else {
		err = &StageError{Stage: stage, Err: err}
	}
	r.failedAt = stage
	r.outcome.Err = err

	msg := err.Error()
	r.o.deps.Logger.Error(msg, r.with(map[string]interface{}{"stage": string(stage)}))
	r.outcome.Diagnostics = append([]Diagnostic{{Severity: SeverityError, Message: msg}}, r.warnings...)

	if r.stage != StageDone {
		if terr := r.enter(StageDone); terr != nil {
			r.o.deps.Logger.Error(terr.Error(), r.fields)
		}
	}
}

// policy returns p reporting retries of op to the log and metrics.
func (r *run) policy(p retry.Policy, op string) retry.Policy {
	return p.With(retry.WithObserver(retry.ObserverFunc(func(attempt int, err error, delay time.Duration) {
		r.outcome.Retries++
		r.o.deps.Logger.Info("retrying after transient failure", r.with(map[string]interface{}{
			"op":      op,
			"attempt": attempt + 1,
			"delay":   delay.String(),
			"error":   err.Error(),
		}))
		if r.o.deps.Metrics != nil {
			r.o.deps.Metrics.ObserveRetry(op)
		}
	})))
}

func notFound(path string) error {
	return fmt.Errorf("Module test path '%s' not found", path)
}

func (r *run) execute(ctx context.Context, t Target) {
	deps := r.o.deps
	if deps.FileSystem == nil || deps.Symbols == nil || deps.Instrumenter == nil {
		r.stage = StageValidating
		r.fail(errors.New("orchestrator is missing a required collaborator"))
		return
	}

	steps := []struct {
		stage Stage
		fn    func(context.Context, *runData) error
	}{
		{StageValidating, r.validate},
		{StageResolving, r.resolve},
		{StageInstrumenting, r.instrument},
		{StageWriting, r.write},
	}

	data := &runData{target: t}
	if data.target.SymbolPath == "" && t.ModulePath != "" {
		data.target.SymbolPath = symbols.DefaultSymbolPath(t.ModulePath)
	}

	for _, step := range steps {
		if err := r.enter(step.stage); err != nil {
			r.fail(err)
			return
		}
		sctx, span := r.o.tracer.Start(ctx, "coverage."+string(step.stage))
		err := step.fn(sctx, data)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		if err != nil {
			r.fail(err)
			return
		}
	}

	if err := r.enter(StageDone); err != nil {
		r.fail(err)
		return
	}
	r.outcome.Diagnostics = append([]Diagnostic(nil), r.warnings...)
}

type runData struct {
	target    Target
	symbols   *symbols.SymbolMap
	original  []byte
	rewritten []byte
}

func (r *run) validate(_ context.Context, d *runData) error {
	path := d.target.ModulePath
	if path == "" {
		return notFound(path)
	}
	// Exists cannot fail: FileSystem implementations count any error other
	// than not-exist (a lock, say) as present, which is where lock
	// tolerance comes from here. The policy only wraps the call.
	exists, err := retry.Do(r.policy(r.o.readPolicy, "exists"), func() (bool, error) {
		return r.o.deps.FileSystem.Exists(path), nil
	})
	if err != nil {
		return err
	}
	if !exists {
		return notFound(path)
	}
	return nil
}

func (r *run) resolve(_ context.Context, d *runData) error {
	m, report, err := retry.DoWithReport(r.policy(r.o.readPolicy, "symbols"), func() (*symbols.SymbolMap, error) {
		return r.o.deps.Symbols.Resolve(d.target.ModulePath, d.target.SymbolPath)
	})
	if err != nil {
		return err
	}
	if report.SkippedMissingDirectory {
		return notFound(d.target.ModulePath)
	}
	if m == nil {
		m = &symbols.SymbolMap{ModulePath: d.target.ModulePath}
	}
	d.symbols = m

	if r.o.deps.Resolvers == nil {
		return nil
	}

	var resolver DependencyResolver
	for i := range m.Dependencies {
		dep := &m.Dependencies[i]
		if dep.Local() {
			continue
		}
		if resolver == nil {
			resolver, err = r.o.deps.Resolvers(d.target.ModulePath)
			if err != nil {
				return err
			}
		}

		res, err := resolver.TryResolve(framework.Request{
			Library:   dep.Name,
			Version:   dep.Version,
			ModuleDir: filepath.Dir(d.target.ModulePath),
		})
		if err != nil {
			return err
		}
		if !res.Resolved {
			r.outcome.Unresolved++
			r.warn(fmt.Sprintf("Unable to resolve dependency '%s' (%s)", dep.Name, dep.Version))
			continue
		}
		dep.Resolved = res.Paths
		if res.Ambiguous {
			r.warn(fmt.Sprintf("Dependency '%s' resolved to multiple framework assemblies", dep.Name))
		}
		r.o.deps.Logger.Debug("dependency resolved", r.with(map[string]interface{}{"dependency": dep.Name, "paths": res.Paths}))
	}
	return nil
}

func (r *run) instrument(_ context.Context, d *runData) error {
	path := d.target.ModulePath
	data, report, err := retry.DoWithReport(r.policy(r.o.readPolicy, "read"), func() ([]byte, error) {
		return r.readAll(path)
	})
	if err != nil {
		return err
	}
	if report.SkippedMissingDirectory {
		return notFound(path)
	}
	d.original = data

	out, err := r.o.deps.Instrumenter.Instrument(data, d.symbols)
	if err != nil {
		return err
	}
	if out == nil {
		return errors.New("instrumenter returned no module")
	}

	for _, dep := range d.symbols.Dependencies {
		if dep.Required && !dep.Local() && len(dep.Resolved) == 0 {
			return fmt.Errorf("Required dependency '%s' could not be resolved", dep.Name)
		}
	}
	d.rewritten = out
	return nil
}

func (r *run) write(_ context.Context, d *runData) error {
	if r.o.backup {
		dir, err := r.backupOriginals(d)
		if err != nil {
			return err
		}
		r.outcome.BackupDir = dir
	}

	path := d.target.ModulePath
	report, err := r.writeFile(r.o.writePolicy, "write", path, d.rewritten)
	if err != nil {
		return err
	}
	if report.SkippedMissingDirectory {
		return fmt.Errorf("unable to write '%s': directory no longer exists", path)
	}
	r.o.deps.Logger.Debug("module written", r.with(map[string]interface{}{"bytes": len(d.rewritten)}))
	return nil
}

func (r *run) readAll(path string) ([]byte, error) {
	rc, err := r.o.deps.FileSystem.OpenRead(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func (r *run) writeFile(p retry.Policy, op, path string, data []byte) (retry.Report, error) {
	_, report, err := retry.DoWithReport(r.policy(p, op), func() (struct{}, error) {
		return struct{}{}, r.o.deps.FileSystem.Write(path, data)
	})
	return report, err
}
