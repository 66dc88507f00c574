// pkg/pipeline/pipeline.go
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/apifunc/go-apifunc/pkg/middleware/metrics"
)

// StageError annotates a stage failure with its position and name. The
// pipeline run it came from produced no partial result.
type StageError struct {
	Index int
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s) failed: %v", e.Index+1, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type entry struct {
	stage   Stage
	timeout time.Duration // 0 = no per-stage deadline
}

// Orchestrator sequences stage invocations into one linear pipeline run.
// The stage list is append-only and fixed relative to any Execute call in
// flight; concurrent Execute calls are independent.
type Orchestrator struct {
	log     *zap.Logger
	entries []entry
}

func New(log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Orchestrator{log: log}
}

// AddStage appends a stage. Chainable.
func (o *Orchestrator) AddStage(s Stage) *Orchestrator {
	return o.AddStageWithTimeout(s, 0)
}

// AddStageWithTimeout appends a stage with a per-invocation deadline.
func (o *Orchestrator) AddStageWithTimeout(s Stage, timeout time.Duration) *Orchestrator {
	o.entries = append(o.entries, entry{stage: s, timeout: timeout})
	return o
}

// Len reports the number of stages.
func (o *Orchestrator) Len() int { return len(o.entries) }

// StageNames lists stages in execution order.
func (o *Orchestrator) StageNames() []string {
	names := make([]string, len(o.entries))
	for i, e := range o.entries {
		names[i] = e.stage.Name()
	}
	return names
}

// Execute threads input through every stage strictly in append order. The
// first failing stage aborts the run; later stages are never invoked. A
// zero-stage pipeline returns its input unchanged.
func (o *Orchestrator) Execute(ctx context.Context, input any) (any, error) {
	runID := uuid.NewString()
	log := o.log.With(zap.String("run", runID))

	current := input
	for i, e := range o.entries {
		log.Info("executing stage",
			zap.Int("index", i+1),
			zap.Int("total", len(o.entries)),
			zap.String("stage", e.stage.Name()),
		)

		stageCtx := ctx
		cancel := func() {}
		if e.timeout > 0 {
			stageCtx, cancel = context.WithTimeout(ctx, e.timeout)
		}
		started := time.Now()
		out, err := e.stage.Process(stageCtx, current)
		cancel()
		metrics.ObserveStage(e.stage.Name(), err, time.Since(started))

		if err != nil {
			metrics.ObservePipelineRun(err)
			log.Error("stage failed",
				zap.Int("index", i+1),
				zap.String("stage", e.stage.Name()),
				zap.Error(err),
			)
			return nil, &StageError{Index: i, Stage: e.stage.Name(), Err: err}
		}
		current = out
	}
	metrics.ObservePipelineRun(nil)
	return current, nil
}

// StartAll starts every owned endpoint stage in append order, stopping the
// ones already started if one fails.
func (o *Orchestrator) StartAll() error {
	for i, e := range o.entries {
		lc, ok := e.stage.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				if prev, ok := o.entries[j].stage.(Lifecycle); ok {
					_ = prev.Stop()
				}
			}
			return fmt.Errorf("start stage %q: %w", e.stage.Name(), err)
		}
	}
	return nil
}

// StopAll stops every owned endpoint stage exactly once, in reverse append
// order so the most recently acquired listener is released first. Exhaustive:
// every stage is told to stop even after an error; the first error wins.
func (o *Orchestrator) StopAll() error {
	var first error
	for i := len(o.entries) - 1; i >= 0; i-- {
		lc, ok := o.entries[i].stage.(Lifecycle)
		if !ok {
			continue
		}
		if err := lc.Stop(); err != nil && first == nil {
			first = fmt.Errorf("stop stage %q: %w", o.entries[i].stage.Name(), err)
		}
	}
	return first
}
