package validator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mobilebench/benchval/internal/container"
	"github.com/mobilebench/benchval/internal/dataset"
	"github.com/mobilebench/benchval/internal/repo"
	"github.com/mobilebench/benchval/internal/stubgen"
	"github.com/mobilebench/benchval/internal/testrun"
)

// Options configures a batch run.
type Options struct {
	// RunID namespaces this batch; shared with the container manager so
	// container names and progress rows line up. Generated when empty.
	RunID           string
	OutputDir       string
	WorkDir         string
	TestTimeout     time.Duration
	Workers         int
	EnableStubs     bool
	Resume          bool
	CheckpointEvery int
}

func (o *Options) normalize() {
	if o.RunID == "" {
		o.RunID = uuid.NewString()
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.TestTimeout <= 0 {
		o.TestTimeout = 30 * time.Minute
	}
	if o.CheckpointEvery <= 0 {
		o.CheckpointEvery = 10
	}
}

// Containers is the container lifecycle surface the pipeline needs. The
// concrete Docker-backed Manager implements it; tests substitute fakes.
type Containers interface {
	container.Execer
	EnsureImage(ctx context.Context) error
	Create(ctx context.Context, instanceID string) (string, error)
	CopyIn(ctx context.Context, instanceID, hostDir, destPath string) error
	PrepareForTests(ctx context.Context, instanceID, workspace string) error
	Cleanup(ctx context.Context, instanceID string) error
	CleanupAll(ctx context.Context) []error
}

// Verify the Docker manager satisfies the pipeline surface.
var _ Containers = (*container.Manager)(nil)

// Validator runs instances through the validation pipeline.
type Validator struct {
	opts       Options
	runID      string
	repos      *repo.Manager
	containers Containers
	runner     *testrun.Runner
	stubs      stubgen.Generator
	progress   *ProgressStore
	log        *DebugLogger
}

// New assembles a validator around an existing container manager and
// progress store.
func New(opts Options, containers Containers, progress *ProgressStore, log *DebugLogger) *Validator {
	opts.normalize()
	if log == nil {
		log = NopLogger()
	}
	return &Validator{
		opts:       opts,
		runID:      opts.RunID,
		repos:      repo.NewManager(),
		containers: containers,
		runner:     testrun.NewRunner(containers),
		stubs:      stubgen.NewSignatureGenerator(),
		progress:   progress,
		log:        log,
	}
}

// RunID identifies this batch; container names embed it.
func (v *Validator) RunID() string {
	return v.runID
}

// pipelineStep pairs a stage function with a name for logging.
type pipelineStep struct {
	name string
	fn   func(context.Context, *instanceState) error
}

// ValidateInstance drives one instance through every stage. The container
// and the host workspace are torn down on every exit path; the result is
// persisted whether the instance succeeded or not.
func (v *Validator) ValidateInstance(ctx context.Context, in dataset.Instance) *Result {
	st := &instanceState{instance: in, result: newResult(in.InstanceID)}
	start := time.Now()

	defer func() {
		// Teardown runs on its own context so a canceled run still
		// cleans up.
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := v.containers.Cleanup(cleanupCtx, in.InstanceID); err != nil {
			v.log.Log("[%s] container cleanup: %v", in.InstanceID, err)
		}
		if st.hostDir != "" {
			if err := repo.Cleanup(st.hostDir); err != nil {
				v.log.Log("[%s] workspace cleanup: %v", in.InstanceID, err)
			}
		}
	}()

	steps := []pipelineStep{
		{"clone", v.stepClone},
		{"configure", v.stepConfigure},
		{"provision", v.stepProvision},
		{"checkout", v.stepCheckout},
		{"test-patch", v.stepTestPatch},
		{"pre-tests", v.stepPreTests},
		{"post-workspace", v.stepPostWorkspace},
		{"solution-patch", v.stepSolutionPatch},
		{"post-tests", v.stepPostTests},
		{"transitions", v.stepTransitions},
	}

	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			st.result.fail(fmt.Errorf("interrupted before %s: %w", step.name, err))
			break
		}
		if err := step.fn(ctx, st); err != nil {
			v.log.Log("[%s] step %s failed: %v", in.InstanceID, step.name, err)
			st.result.fail(fmt.Errorf("%s: %w", step.name, err))
			break
		}
	}

	st.result.TotalDurationSecs = time.Since(start).Seconds()
	v.persist(st.result, ctx.Err() != nil)
	return st.result
}

// persist writes the instance artifacts and records progress. An
// interrupted instance never reaches the progress store, so a resumed run
// picks it up again instead of skipping work that never happened.
// Persistence failures are logged, never fatal to the batch.
func (v *Validator) persist(r *Result, interrupted bool) {
	if r.Stage == StageTransitionsComputed {
		r.Stage = StagePersisted
	}
	if err := SaveInstance(v.opts.OutputDir, r); err != nil {
		v.log.Log("[%s] persist artifacts: %v", r.InstanceID, err)
		return
	}
	if interrupted {
		v.log.Log("[%s] interrupted, leaving progress unrecorded", r.InstanceID)
		return
	}
	if v.progress != nil {
		if err := v.progress.Record(v.runID, r); err != nil {
			v.log.Log("[%s] persist progress: %v", r.InstanceID, err)
		}
	}
}

// Run validates every instance with a bounded worker pool. With Resume
// set, instances already recorded in the progress store are skipped and
// their persisted results folded into the summary. The returned summary is
// written to the output directory along with the plain-text report.
func (v *Validator) Run(ctx context.Context, instances []dataset.Instance) (Summary, error) {
	start := time.Now()

	if err := v.containers.EnsureImage(ctx); err != nil {
		return Summary{}, fmt.Errorf("ensure build image: %w", err)
	}

	var done map[string]bool
	if v.opts.Resume && v.progress != nil {
		var err error
		if done, err = v.progress.Completed(); err != nil {
			return Summary{}, fmt.Errorf("load progress: %w", err)
		}
	}

	results := make([]*Result, len(instances))
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		completed int
	)
	sem := make(chan struct{}, v.opts.Workers)

	for i, in := range instances {
		if _, ok := done[in.InstanceID]; ok {
			v.log.Log("[%s] already completed, skipping", in.InstanceID)
			if prev, err := LoadInstanceResult(v.opts.OutputDir, in.InstanceID); err == nil {
				results[i] = prev
			} else {
				r := newResult(in.InstanceID)
				r.Success = done[in.InstanceID]
				r.Stage = StagePersisted
				results[i] = r
			}
			continue
		}

		wg.Add(1)
		go func(i int, in dataset.Instance) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				mu.Lock()
				results[i] = newResult(in.InstanceID).fail(ctx.Err())
				mu.Unlock()
				return
			}

			r := v.ValidateInstance(ctx, in)

			// checkpoint reads every slot, so the write happens under the
			// same lock.
			mu.Lock()
			results[i] = r
			completed++
			if completed%v.opts.CheckpointEvery == 0 {
				v.checkpoint(results, start)
			}
			mu.Unlock()
		}(i, in)
	}
	wg.Wait()

	// Interrupt teardown: remove anything a mid-flight instance left
	// registered.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	for _, err := range v.containers.CleanupAll(cleanupCtx) {
		v.log.Log("cleanup: %v", err)
	}

	summary := buildSummary(compact(results), time.Since(start))
	if err := SaveSummary(v.opts.OutputDir, summary); err != nil {
		return summary, err
	}
	return summary, ctx.Err()
}

// checkpoint writes an intermediate summary so progress is inspectable
// mid-run. Callers hold mu.
func (v *Validator) checkpoint(results []*Result, start time.Time) {
	summary := buildSummary(compact(results), time.Since(start))
	if err := SaveSummary(v.opts.OutputDir, summary); err != nil {
		v.log.Log("checkpoint: %v", err)
	}
}

func compact(results []*Result) []*Result {
	out := make([]*Result, 0, len(results))
	for _, r := range results {
		if r != nil {
			out = append(out, r)
		}
	}
	return out
}
