package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teranos/jobd/am"
	"github.com/teranos/jobd/async"
	"github.com/teranos/jobd/detect"
	"github.com/teranos/jobd/errors"
	"github.com/teranos/jobd/logger"
	"github.com/teranos/jobd/server"
)

// ServerCmd starts the jobd HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   "Start the jobd HTTP API",
	Long: `Start the jobd HTTP API and the in-memory job queue.

The config file (project am.toml, else ~/.jobd/am.toml) is watched while the
server runs. Retention limits, run timeout, log level, CORS origins, rate
limits and the default list page size are applied without a restart.

Examples:
  jobd server                 # Listen on server.host:server.port
  jobd server --port 9000     # Override the port
  JOBD_LOG_LEVEL=debug jobd server`,
	RunE: runServer,
}

var (
	serverPort    int
	serverNoWatch bool
)

func init() {
	ServerCmd.Flags().IntVar(&serverPort, "port", 0, "Port to listen on (overrides config)")
	ServerCmd.Flags().BoolVar(&serverNoWatch, "no-watch", false, "Do not reload configuration on file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	if serverPort != 0 {
		local := *cfg
		local.Server.Port = serverPort
		cfg = &local
	}

	detector := detect.NewDetector(detect.Config{
		MinScore:      cfg.Detect.MinScore,
		EdgeThreshold: cfg.Detect.EdgeThreshold,
		ModelVersion:  cfg.Detect.ModelVersion,
	})

	registry := async.NewHandlerRegistry()
	registry.Register(detect.NewHandler(detector))

	queue := async.NewQueue(async.NewRegistryExecutor(registry), async.Config{
		TTL:           cfg.Jobs.TTL(),
		MaxItems:      cfg.Jobs.MaxItems,
		RunTimeout:    cfg.Jobs.RunTimeout(),
		MaxConcurrent: cfg.Jobs.MaxConcurrent,
	})
	srv := server.New(queue, detector, cfg)

	watchPath := configFileInUse()
	var watcher *am.ConfigWatcher
	if !serverNoWatch && watchPath != "" {
		watcher, err = am.NewConfigWatcher(watchPath)
		if err != nil {
			logger.Warnw("Config hot reload disabled", logger.FieldFile, watchPath, logger.FieldError, err)
			watcher = nil
		} else {
			watcher.OnReload(func(next *am.Config) error {
				queue.SetPolicy(async.RetentionPolicy{
					TTL:      next.Jobs.TTL(),
					MaxItems: next.Jobs.MaxItems,
				}, next.Jobs.RunTimeout())
				srv.ApplyConfig(next)
				if next.Detect != cfg.Detect {
					logger.Warnw("Detect settings changed; restart jobd to apply them")
				}
				return logger.SetLevel(next.Log.Level)
			})
		}
	}

	printStartupBanner(cfg, watchPath, watcher != nil)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(cfg.Server.Addr())
	})
	if watcher != nil {
		g.Go(watcher.Run)
	}
	g.Go(func() error {
		<-gctx.Done()
		// A second Ctrl+C now kills the process
		stop()
		pterm.Info.Println("Shutting down gracefully (press Ctrl+C again to force)...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout())
		defer cancel()

		if watcher != nil {
			if err := watcher.Stop(); err != nil {
				logger.Warnw("Config watcher did not stop cleanly", logger.FieldError, err)
			}
		}
		serverErr := srv.Shutdown(shutdownCtx)
		queueErr := queue.Close(shutdownCtx)
		return errors.CombineErrors(serverErr, queueErr)
	})

	if err := g.Wait(); err != nil {
		return errors.Wrap(err, "server stopped with error")
	}
	pterm.Success.Println("Server stopped cleanly")
	return nil
}

// configFileInUse returns the highest-precedence config file that exists
func configFileInUse() string {
	if project := am.ProjectConfigPath(); project != "" {
		return project
	}
	if user := am.UserConfigPath(); user != "" {
		if _, err := os.Stat(user); err == nil {
			return user
		}
	}
	return ""
}
