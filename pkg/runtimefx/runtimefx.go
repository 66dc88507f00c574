// pkg/runtimefx/runtimefx.go
package runtimefx

import (
	"context"
	"net/http"
	"os"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/apifunc/go-apifunc/pkg/contract"
	"github.com/apifunc/go-apifunc/pkg/core"
	"github.com/apifunc/go-apifunc/pkg/descriptor"
	"github.com/apifunc/go-apifunc/pkg/endpoint"
	"github.com/apifunc/go-apifunc/pkg/manifest"
	"github.com/apifunc/go-apifunc/pkg/middleware/logger"
	"github.com/apifunc/go-apifunc/pkg/middleware/metrics"
	"github.com/apifunc/go-apifunc/pkg/pipeline"
	"github.com/apifunc/go-apifunc/pkg/protogen"
	"github.com/apifunc/go-apifunc/pkg/registry"
	"github.com/apifunc/go-apifunc/pkg/relay"
	"github.com/apifunc/go-apifunc/pkg/transport/httpx"
)

// ---------- Options ----------

type Config struct {
	Service         string // for logs/metrics tags only
	ManifestEnv     string // e.g., APIFUNC_MANIFEST
	DefaultManifest string // e.g., "apifunc.toml"
	ForwardTopicEnv string // e.g., APIFUNC_FORWARD_TOPIC
}

type Option func(*Config)

func WithService(s string) Option            { return func(c *Config) { c.Service = s } }
func WithManifestEnv(k string) Option        { return func(c *Config) { c.ManifestEnv = k } }
func WithDefaultManifest(path string) Option { return func(c *Config) { c.DefaultManifest = path } }

func defaultConfig() Config {
	return Config{
		Service:         "apifunc",
		ManifestEnv:     "APIFUNC_MANIFEST",
		DefaultManifest: "apifunc.toml",
		ForwardTopicEnv: "APIFUNC_FORWARD_TOPIC",
	}
}

// ---------- Function table ----------

// Func is one registrable transform: the function value plus its declared
// parameter names (descriptor.Describe convention).
type Func struct {
	Fn     any
	Params []string
}

// FuncSet maps manifest stage names to their implementations. Supplied by
// the application alongside the Module.
type FuncSet map[string]Func

// ---------- Public Fx module ----------

// Module returns a complete Fx option set; supply a FuncSet and add
// app-specific fx.Invoke(...) alongside.
func Module(opts ...Option) fx.Option {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return fx.Options(
		logger.Module,
		fx.Provide(fx.Annotate(metrics.ProvideMetrics, fx.ResultTags(`name:"metrics"`))),
		fx.Provide(httpx.NewChi),
		fx.Provide(func() Config { return cfg }),
		fx.Provide(provideManifest),
		fx.Provide(provideCompiler),
		fx.Provide(provideRegistry),
		fx.Provide(provideOrchestrator),
		fx.Provide(provideRelayClient),
		fx.Provide(fx.Annotate(
			provideRouter,
			fx.ParamTags(``, ``, ``, ``, `name:"metrics"`, ``, ``), // cfg,orch,reg,lm,m,rel,r
			fx.ResultTags(`name:"app"`),
		)),
		fx.Invoke(registerHooks),
	)
}

// ---------- Providers ----------

func provideManifest(cfg Config, zl *zap.Logger) (manifest.Config, error) {
	path := envOr(cfg.ManifestEnv, cfg.DefaultManifest)
	man, err := manifest.Load(path)
	if err != nil {
		zl.Error("manifest load failed", zap.Error(err), zap.String("path", path))
		return manifest.Config{}, err
	}
	zl.Info("manifest loaded",
		zap.String("path", path),
		zap.String("proto_dir", man.ProtoDir),
		zap.String("generated_dir", man.GeneratedDir),
		zap.Int("stages", len(man.Stages)),
	)
	return man, nil
}

func provideCompiler(man manifest.Config, zl *zap.Logger) *protogen.Compiler {
	c := protogen.NewCompiler(man.ProtoDir, man.GeneratedDir, zl)
	c.IncludeDir = man.IncludeDir
	if man.Protoc != "" {
		c.Protoc = man.Protoc
	}
	return c
}

func provideRegistry(c *protogen.Compiler, man manifest.Config, zl *zap.Logger) *registry.Registry {
	return registry.New(c, man.MaxWorkers, zl)
}

// provideOrchestrator registers every manifest stage and assembles the
// pipeline in manifest order: networked stages get a compiled endpoint,
// targeted stages get a remote client, local stages stay in-process
// function wrappers.
func provideOrchestrator(man manifest.Config, comp *protogen.Compiler, reg *registry.Registry, funcs FuncSet, zl *zap.Logger) (*pipeline.Orchestrator, error) {
	orch := pipeline.New(zl)
	for _, st := range man.Stages {
		f, ok := funcs[st.Name]
		if !ok {
			return nil, &registry.UnknownFunctionError{Name: st.Name}
		}

		timeout := time.Duration(st.TimeoutMS) * time.Millisecond

		if st.Mode == manifest.ModeLocal {
			stage, err := pipeline.NewFuncStage(st.Name, f.Fn, f.Params...)
			if err != nil {
				return nil, err
			}
			orch.AddStageWithTimeout(stage, timeout)
			continue
		}

		if st.Remote() {
			d, err := descriptor.Describe(st.Name, f.Fn, f.Params...)
			if err != nil {
				return nil, err
			}
			b, err := comp.Compile(d, contract.Generate(d))
			if err != nil {
				return nil, err
			}
			orch.AddStageWithTimeout(endpoint.NewRemoteClient(st.Name, st.Target, b), timeout)
			continue
		}

		r, err := reg.Register(st.Name, f.Fn, endpoint.Options{
			Port:       st.Port,
			Mode:       endpoint.ModeNetworked,
			MaxWorkers: man.MaxWorkers,
		}, f.Params...)
		if err != nil {
			return nil, err
		}
		orch.AddStageWithTimeout(r.Endpoint, timeout)
	}
	return orch, nil
}

func provideRelayClient() (relay.Client, error) {
	return relay.NewForwardRelayFromEnv()
}

func provideRouter(
	cfg Config,
	orch *pipeline.Orchestrator,
	reg *registry.Registry,
	lm *logger.Middleware,
	/* name:"metrics" */ m http.Handler,
	rel relay.Client,
	r httpx.Router,
) http.Handler {
	return core.BuildRouter(core.BuildDeps{
		Orchestrator: orch,
		Registry:     reg,
		LogMW:        lm,
		Metrics:      m,
		Relay:        rel,
		ForwardTopic: os.Getenv(cfg.ForwardTopicEnv),
		Router:       r,
	})
}

// ---------- Lifecycle (endpoints + gateway server) ----------

type serverDeps struct {
	fx.In
	Logger *zap.Logger
	App    http.Handler `name:"app"`
}

func registerHooks(lc fx.Lifecycle, cfg Config, man manifest.Config, orch *pipeline.Orchestrator, d serverDeps) {
	srv := &http.Server{
		Addr:         man.Listen,
		Handler:      d.App,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if err := orch.StartAll(); err != nil {
				return err
			}
			d.Logger.Info("gateway starting",
				zap.String("service", cfg.Service),
				zap.String("addr", man.Listen),
			)
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					d.Logger.Fatal("gateway failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Logger.Info("gateway stopping", zap.String("service", cfg.Service))
			err := srv.Shutdown(ctx)
			if serr := orch.StopAll(); serr != nil && err == nil {
				err = serr
			}
			return err
		},
	})
}

// ---------- tiny helpers ----------

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
