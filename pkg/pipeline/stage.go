// pkg/pipeline/stage.go
package pipeline

import (
	"context"

	"github.com/apifunc/go-apifunc/pkg/descriptor"
)

// Stage is one unit of a pipeline: a local functor wrapper, an owned
// service endpoint, or a client handle to a remote stage service. The
// orchestrator never learns which.
type Stage interface {
	Name() string
	Process(ctx context.Context, input any) (any, error)
}

// Lifecycle is implemented by stages that own a network listener. StartAll
// and StopAll touch only stages that implement it.
type Lifecycle interface {
	Start() error
	Stop() error
}

// funcStage wraps a plain function as an in-process stage.
type funcStage struct {
	d *descriptor.Descriptor
}

// NewFuncStage wraps fn as a local stage with no network resources.
// Parameter names follow the descriptor.Describe convention.
func NewFuncStage(name string, fn any, paramNames ...string) (Stage, error) {
	d, err := descriptor.Describe(name, fn, paramNames...)
	if err != nil {
		return nil, err
	}
	return &funcStage{d: d}, nil
}

func (s *funcStage) Name() string { return s.d.Name }

func (s *funcStage) Process(_ context.Context, input any) (any, error) {
	return s.d.Call(input)
}
