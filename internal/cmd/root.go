package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cfgPath   string
	devMode   bool
	projectID string
	roomID    string

	buildVersion = "dev"
	buildCommit  = "none"
)

var rootCmd = &cobra.Command{
	Use:   "studio",
	Short: "Drive AI room-design generation jobs from the terminal",
	Long: `studio submits generation jobs to the design studio API, follows them to
completion and reconciles the results into the local workspace.

Examples:
  studio generate 2d --project p1 --room r1 --prompt "warm scandinavian living room"
  studio generate 3d --project p1 --room r1 --model "Marble 0.1-mini"
  studio chat --project p1 --room r1 "make the sofa green"
  studio watch`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "studio.yaml", "Path to config file")
	rootCmd.PersistentFlags().BoolVar(&devMode, "dev", false, "Development mode (debug logs, unredacted credentials)")
	rootCmd.PersistentFlags().StringVarP(&projectID, "project", "p", "", "Project id")
	rootCmd.PersistentFlags().StringVarP(&roomID, "room", "r", "", "Room id (omit for project-level jobs)")
}

// Execute runs the root command until it returns or the process is
// interrupted.
func Execute(version, commit string) error {
	if version != "" {
		buildVersion = version
	}
	if commit != "" {
		buildCommit = commit
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}
