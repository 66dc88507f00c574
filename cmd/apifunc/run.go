// cmd/apifunc/run.go
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/apifunc/go-apifunc/pkg/render"
	"github.com/apifunc/go-apifunc/pkg/runtimefx"
)

var (
	runManifest string
	runServer   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pipeline services and HTTP gateway from a manifest",
	RunE: func(cmd *cobra.Command, args []string) error {
		if runManifest != "" {
			os.Setenv("APIFUNC_MANIFEST", runManifest)
		}
		app := fx.New(
			runtimefx.Module(runtimefx.WithService("apifunc")),
			fx.Supply(builtinFuncs()),
		)
		if !runServer {
			// Dry start: compile every contract, bind every port, shut down.
			ctx := cmd.Context()
			if err := app.Start(ctx); err != nil {
				return err
			}
			return app.Stop(ctx)
		}
		app.Run()
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&runManifest, "manifest", "m", "", "manifest path (default: $APIFUNC_MANIFEST or apifunc.toml)")
	runCmd.Flags().BoolVar(&runServer, "server", true, "serve in the foreground until interrupted")
}

// builtinFuncs exposes the stock report transforms so a manifest can
// reference them without any embedding code.
func builtinFuncs() runtimefx.FuncSet {
	return runtimefx.FuncSet{
		"json_to_html": {Fn: render.JSONToHTML, Params: []string{"json_data"}},
		"html_to_pdf":  {Fn: render.HTMLToPDF, Params: []string{"html_content"}},
	}
}
