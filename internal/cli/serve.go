package cli

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
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/meridian/internal/httpapi"
)

var (
	serveAddr  string
	serveWatch bool
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the timeline over HTTP and websocket",
	Long: `Start the HTTP API. Clients drive the conversation with REST calls
under /api and receive every timeline snapshot on the /ws websocket.

With --watch (or scenarios.watch in .meridian.yaml), scenario files are
reloaded when they change on disk.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Timeline == nil {
			return fmt.Errorf("timeline not initialized")
		}
		addr := serveAddr
		if addr == "" && Config != nil {
			addr = Config.ServerAddr
		}
		if addr == "" {
			addr = ":8080"
		}
		watch := serveWatch || (Config != nil && Config.Scenarios.Watch)

		ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, addr, watch)
	},
}

// runServer serves the API until ctx is done, then shuts down gracefully.
func runServer(ctx context.Context, addr string, watch bool) error {
	log := logger()
	srv := httpapi.NewServer(addr, httpapi.Deps{
		Timeline:    Timeline,
		Health:      Intelligence,
		Transcripts: Transcripts,
		Decisions:   Decisions,
		Logger:      log,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Warn("http server shutdown", zap.Error(err))
		}
		return nil
	})

	if watch && Scenarios != nil {
		g.Go(func() error {
			return Scenarios.Watch(gctx, func(err error) {
				if err != nil {
					log.Warn("scenario reload failed", zap.Error(err))
					return
				}
				log.Info("scenarios reloaded", zap.Int("count", len(Scenarios.List())))
			})
		})
	}

	return g.Wait()
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default from server.addr)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Reload scenario files when they change")
	rootCmd.AddCommand(serveCmd)
}
