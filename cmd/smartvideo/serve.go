package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smartvideo/smartvideo/internal/api"
	"github.com/smartvideo/smartvideo/internal/log"
	"github.com/smartvideo/smartvideo/internal/media"
	"github.com/smartvideo/smartvideo/internal/store"
)

var (
	serveListen   string
	serveNoWarmup bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Run the HTTP API server.

Endpoints:
  GET    /api/health           tool availability and versions
  POST   /api/upload           multipart video upload
  GET    /api/videos           list stored videos
  GET    /api/videos/{id}      download a stored video
  GET    /api/videos/{id}/info container and stream metadata
  DELETE /api/videos/{id}      remove a stored video
  POST   /api/extract          cut a clip, returns an output id
  GET    /api/outputs/{id}     download an extracted clip

The listen address comes from --listen, SMARTVIDEO_LISTEN, or the
config file, in that order.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, settings, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.EnsureDirectories(); err != nil {
			return err
		}

		// Re-apply verbosity now that config file settings are known.
		level := determineLogLevel(quietFlag, verboseFlag, debugFlag, settings.LogLevel)
		log.SetDefault(log.New(log.NewHandler(os.Stderr, level, settings.LogFormat)))
		logger := log.Default()

		reg, err := newRegistry(cfg, settings)
		if err != nil {
			return err
		}
		lib, err := store.New(cfg, store.WithLogger(logger), store.WithMaxUploadBytes(settings.MaxUpload))
		if err != nil {
			return err
		}
		prober := media.NewProber(reg, media.WithLogger(logger))
		clipper := media.NewClipper(reg, media.WithLogger(logger))

		listen := serveListen
		if listen == "" {
			listen = settings.Listen
		}
		srv, err := api.New(listen, api.Deps{
			Tools:   reg,
			Library: lib,
			Clipper: clipper,
			Prober:  prober,
		}, api.WithLogger(logger))
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := srv.Start(ctx); err != nil {
			return err
		}
		printInfof("smartvideo API listening on %s\n", srv.Addr())

		if !serveNoWarmup {
			go func() {
				if _, err := reg.ResolveAll(ctx); err != nil {
					logger.Warn("tool warmup failed, clips will retry on demand", "error", err)
				}
			}()
		}

		<-ctx.Done()
		printInfo("Shutting down...")
		srv.Stop()
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "Bind address, e.g. 127.0.0.1:8765")
	serveCmd.Flags().BoolVar(&serveNoWarmup, "no-warmup", false, "Do not resolve tools at startup")
	rootCmd.AddCommand(serveCmd)
}
