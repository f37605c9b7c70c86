package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/dropstage/dropstage/internal/api"
	"github.com/dropstage/dropstage/pkg/generator"
)

// DefaultListenAddr is the job API's default listen address.
const DefaultListenAddr = ":8080"

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var (
		addr      string
		poolPath  string
		noCache   bool
		redisAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job API",
		Long: `Run the HTTP job API.

The serve command exposes channel rendering over HTTP: POST /jobs submits a
channel run, GET /jobs/{id} polls its status, and GET /healthz reports
liveness. Jobs execute sequentially on a background worker.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			runner, err := c.newRunner(noCache, redisAddr)
			if err != nil {
				return err
			}

			srv := api.NewServer(runner, nil, c.Logger)
			if poolPath != "" {
				pool, err := generator.LoadPool(cmd.Context(), poolPath, runner.Cache)
				if err != nil {
					return err
				}
				srv.Pool = pool
			}
			srv.Start(cmd.Context())

			httpSrv := &http.Server{
				Addr:              addr,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-cmd.Context().Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := httpSrv.Shutdown(shutdownCtx); err != nil {
					c.Logger.Warn("shutdown", "err", err)
				}
			}()

			c.Logger.Info("serving job API", "addr", addr)
			if err := httpSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", DefaultListenAddr, "listen address")
	cmd.Flags().StringVar(&poolPath, "pool", "", "asset pool for jobs whose channel does not name one")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the asset cache")
	cmd.Flags().StringVar(&redisAddr, "redis", "", "redis address for the asset cache (host:port)")

	return cmd
}
