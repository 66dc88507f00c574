// core/router.go
package core

import (
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"

	"github.com/apifunc/go-apifunc/pkg/middleware/logger"
	hmetrics "github.com/apifunc/go-apifunc/pkg/middleware/metrics"
	"github.com/apifunc/go-apifunc/pkg/pipeline"
	"github.com/apifunc/go-apifunc/pkg/registry"
	"github.com/apifunc/go-apifunc/pkg/relay"
	httpx "github.com/apifunc/go-apifunc/pkg/transport/httpx"
)

// BuildDeps carries everything the gateway router needs.
type BuildDeps struct {
	Orchestrator *pipeline.Orchestrator
	Registry     *registry.Registry
	LogMW        *logger.Middleware
	Metrics      http.Handler
	Relay        relay.Client
	ForwardTopic string // publish final outputs here when Relay is set
	Router       httpx.Router
}

// BuildRouter assembles the pipeline gateway: heartbeat, metrics scrape,
// stage listing and the execute surface.
func BuildRouter(d BuildDeps) http.Handler {
	r := d.Router
	r.Use(chimd.RequestID, chimd.Recoverer, chimd.Heartbeat("/ping"))
	if d.LogMW != nil {
		r.Use(d.LogMW.Middleware())
	}
	r.Use(hmetrics.Collect())

	if d.Metrics != nil {
		r.Handle(http.MethodGet, "/metrics", d.Metrics)
	}
	r.Get("/pipeline/stages", stagesHandler(d))
	r.Post("/pipeline/execute", executeHandler(d))

	return r.Mux()
}
