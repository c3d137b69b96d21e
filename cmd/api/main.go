package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"scorevera/config"
	"scorevera/db"
	"scorevera/logging"
	"scorevera/migrations"
)

const shutdownTimeout = 15 * time.Second

// cli carries state shared by every subcommand once the root pre-run has
// loaded configuration.
type cli struct {
	v       *viper.Viper
	cfgFile string
	cfg     config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	root := &cobra.Command{
		Use:           "scorevera",
		Short:         "Credit dispute round and deadline backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.init()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default: ./scorevera.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("log-format", "json", "log format (json, console)")
	_ = c.v.BindPFlag("logging.level", root.PersistentFlags().Lookup("log-level"))
	_ = c.v.BindPFlag("logging.format", root.PersistentFlags().Lookup("log-format"))

	root.AddCommand(c.serveCmd(), c.migrateCmd(), c.relayCmd())
	return root
}

func (c *cli) init() error {
	if err := config.Init(c.v, c.cfgFile); err != nil {
		return err
	}
	c.cfg = config.Load(c.v)
	logger, err := logging.New(c.cfg.Logging.Level, c.cfg.Logging.Format)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

func (c *cli) serveCmd() *cobra.Command {
	var (
		memory    bool
		withRelay bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (and the outbox relay)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.cfg.Validate(memory); err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := buildApp(ctx, c.cfg, memory, c.logger)
			if err != nil {
				return err
			}
			defer a.close()

			srv := &http.Server{
				Addr:              c.cfg.HTTP.Addr,
				Handler:           a.server.Routes(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				c.logger.Info("http server listening", zap.String("addr", srv.Addr), zap.Bool("memory", memory))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("http server: %w", err)
				}
				return nil
			})
			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})
			if withRelay && a.relay != nil {
				g.Go(func() error {
					if err := a.relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
						return err
					}
					return nil
				})
			}
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&memory, "memory", false, "keep all state in process (development only)")
	cmd.Flags().BoolVar(&withRelay, "relay", true, "run the outbox relay alongside the server")
	return cmd
}

func (c *cli) migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			pool, err := db.NewPool(cmd.Context(), c.cfg.Database.URL, c.cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool, c.logger)
			if err != nil {
				return err
			}
			c.logger.Info("migrations complete", zap.Int("applied", len(applied)))
			return nil
		},
	}
}

func (c *cli) relayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Run only the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Database.URL == "" {
				return errors.New("database.url is required")
			}
			pool, err := db.NewPool(cmd.Context(), c.cfg.Database.URL, c.cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			a := &app{}
			defer a.close()
			relay, err := buildRelay(c.cfg, pool, c.logger, a)
			if err != nil {
				return err
			}
			if err := relay.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
