package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/koustreak/relicmart/internal/auth"
	"github.com/koustreak/relicmart/internal/config"
	"github.com/koustreak/relicmart/internal/connmgr"
	"github.com/koustreak/relicmart/internal/database"
	"github.com/koustreak/relicmart/internal/database/mysql"
	"github.com/koustreak/relicmart/internal/database/postgres"
	"github.com/koustreak/relicmart/internal/filestore"
	"github.com/koustreak/relicmart/internal/filestore/minio"
	"github.com/koustreak/relicmart/internal/item"
	"github.com/koustreak/relicmart/internal/logger"
	"github.com/koustreak/relicmart/internal/metrics"
	"github.com/koustreak/relicmart/internal/schema"
	"github.com/koustreak/relicmart/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

type serveFlags struct {
	addr      string
	logLevel  string
	logFormat string
}

func getServeCmd(root *rootOptions) *cobra.Command {
	flags := &serveFlags{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		Long: `Run the HTTP server.

If the configuration names a database, it is connected at startup. A
failure there is logged and the server starts without an active database;
item routes answer 503 until POST /db/config succeeds.

Examples:
  relicmart serve
  relicmart serve --config relicmart.yaml --addr :8080`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			flags.apply(cmd, cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (overrides server.addr)")
	cmd.Flags().StringVar(&flags.logLevel, "log-level", "", "log level (overrides log.level)")
	cmd.Flags().StringVar(&flags.logFormat, "log-format", "", "json or console (overrides log.format)")

	return cmd
}

func (f *serveFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = f.addr
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = f.logLevel
	}
	if cmd.Flags().Changed("log-format") {
		cfg.Log.Format = f.logFormat
	}
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		TimeFormat: "rfc3339",
		Output:     os.Stdout,
	})
	logger.SetGlobal(log)

	met := metrics.New()
	mgr := connmgr.New(connmgr.Options{
		Openers: map[database.Driver]database.Opener{
			database.DriverPostgres: postgres.Open,
			database.DriverMySQL:    mysql.Open,
		},
		Provisioner: schema.NewProvisioner(log),
		Pool:        cfg.Pool.Options(),
		Logger:      log,
		Recorder:    met,
	})

	authn, err := auth.New(cfg.Auth)
	if err != nil {
		return err
	}

	opts := server.Options{
		Manager:     mgr,
		Items:       item.NewRepository(mgr, log),
		Auth:        authn,
		Metrics:     met,
		Logger:      log,
		CORSOrigins: cfg.Server.CORSOrigins,
		DBLimit:     rate.Limit(cfg.Limits.DBPerSecond),
		DBBurst:     cfg.Limits.DBBurst,
	}

	if cfg.Filestore.Enabled() {
		store, err := minio.New(ctx, cfg.Filestore)
		if err != nil {
			return err
		}
		defer store.Close()
		opts.Images = filestore.NewImages(store, cfg.Filestore, log)
		log.With().Str("endpoint", cfg.Filestore.Endpoint).Str("bucket", cfg.Filestore.Bucket).
			Logger().Info("image store ready")
	}

	if cfg.Database != nil {
		if err := mgr.Reconfigure(ctx, *cfg.Database); err != nil {
			log.ErrorWith("bootstrap database rejected, starting without one", err, nil)
		}
	} else {
		log.Info("no bootstrap database configured, waiting for POST /db/config")
	}

	if authn.Enabled() {
		log.Info("admin routes require a bearer token")
	}

	srv := server.New(opts).HTTPServer(cfg.Server.Addr, cfg.Server.ReadHeaderTimeout)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.With().Str("addr", cfg.Server.Addr).Str("version", Version).Logger().Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		var errList []error
		if err := srv.Shutdown(shutdownCtx); err != nil {
			errList = append(errList, err)
		}
		// In-flight requests are done; now the active pool can go.
		if err := mgr.Close(shutdownCtx); err != nil {
			errList = append(errList, err)
		}
		return errors.Join(errList...)
	})

	if err := g.Wait(); err != nil {
		log.ErrorWith("server stopped with error", err, nil)
		return err
	}
	log.Info("server stopped")
	return nil
}
