package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpserver "architect-studio/internal/infra/http"
)

var watchAddr string

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"serve"},
	Short:   "Resume recorded jobs and serve workspace status until interrupted",
	Long: `Re-attach to every job a previous process recorded as active, follow them
to completion and expose /health, /metrics and /api/v1/workspaces on the
status address.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchAddr, "addr", "", "Status server address (default http.addr from config)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.studio.Resume(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "following %d recorded job(s)\n", n)

	addr := watchAddr
	if addr == "" {
		addr = a.cfg.HTTP.Addr
	}
	srv := httpserver.NewServer(a.studio, a.log)
	bound, err := srv.Start(addr)
	if err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "status: http://%s/api/v1/workspaces\n", bound)

	<-ctx.Done()
	a.log.Info().Msg("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
