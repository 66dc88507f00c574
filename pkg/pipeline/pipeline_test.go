package pipeline_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/apifunc/go-apifunc/pkg/pipeline"
)

func appendStage(t *testing.T, suffix string) pipeline.Stage {
	t.Helper()
	s, err := pipeline.NewFuncStage("append"+suffix, func(in string) string { return in + " " + suffix }, "text")
	require.NoError(t, err)
	return s
}

func TestExecuteEmptyPipelineIsIdentity(t *testing.T) {
	out, err := pipeline.New(nil).Execute(context.Background(), "unchanged")
	require.NoError(t, err)
	require.Equal(t, "unchanged", out)
}

func TestExecuteOrderPreserved(t *testing.T) {
	orch := pipeline.New(nil).
		AddStage(appendStage(t, "step1")).
		AddStage(appendStage(t, "step2"))

	out, err := orch.Execute(context.Background(), "start")
	require.NoError(t, err)
	require.Equal(t, "start step1 step2", out)
	require.Equal(t, []string{"appendstep1", "appendstep2"}, orch.StageNames())
}

func TestExecuteAbortsOnFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	thirdRan := false

	first := appendStage(t, "one")
	second, err := pipeline.NewFuncStage("explode", func(string) (string, error) { return "", boom }, "text")
	require.NoError(t, err)
	third, err := pipeline.NewFuncStage("after", func(in string) string {
		thirdRan = true
		return in
	}, "text")
	require.NoError(t, err)

	orch := pipeline.New(nil).AddStage(first).AddStage(second).AddStage(third)

	out, err := orch.Execute(context.Background(), "x")
	require.Nil(t, out)

	var se *pipeline.StageError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 1, se.Index)
	require.Equal(t, "explode", se.Stage)
	require.ErrorIs(t, err, boom)
	require.False(t, thirdRan, "stages after a failure must not run")
}

// lcStage records lifecycle transitions for ordering assertions.
type lcStage struct {
	name     string
	startErr error
	events   *[]string
}

func (s *lcStage) Name() string { return s.name }

func (s *lcStage) Process(_ context.Context, in any) (any, error) { return in, nil }

func (s *lcStage) Start() error {
	*s.events = append(*s.events, "start:"+s.name)
	return s.startErr
}

func (s *lcStage) Stop() error {
	*s.events = append(*s.events, "stop:"+s.name)
	return nil
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	var events []string
	a := &lcStage{name: "a", events: &events}
	b := &lcStage{name: "b", events: &events, startErr: errors.New("bind failed")}

	orch := pipeline.New(nil).AddStage(a).AddStage(b)
	err := orch.StartAll()
	require.ErrorContains(t, err, `start stage "b"`)
	require.Equal(t, []string{"start:a", "start:b", "stop:a"}, events)
}

func TestStopAllReverseOrder(t *testing.T) {
	var events []string
	a := &lcStage{name: "a", events: &events}
	b := &lcStage{name: "b", events: &events}

	orch := pipeline.New(nil).AddStage(a).AddStage(b)
	require.NoError(t, orch.StartAll())
	events = events[:0]

	require.NoError(t, orch.StopAll())
	require.Equal(t, []string{"stop:b", "stop:a"}, events)
}

func TestPerStageTimeout(t *testing.T) {
	deadlineSeen := false
	probe := probeStage{onProcess: func(ctx context.Context) {
		_, deadlineSeen = ctx.Deadline()
	}}

	orch := pipeline.New(nil).AddStageWithTimeout(&probe, 50*time.Millisecond)
	_, err := orch.Execute(context.Background(), "x")
	require.NoError(t, err)
	require.True(t, deadlineSeen, "stage context must carry the configured deadline")
}

type probeStage struct {
	onProcess func(ctx context.Context)
}

func (p *probeStage) Name() string { return "probe" }

func (p *probeStage) Process(ctx context.Context, in any) (any, error) {
	p.onProcess(ctx)
	return in, nil
}
