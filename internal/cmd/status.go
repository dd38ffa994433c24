package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <job-id>",
	Short: "Print the current server snapshot of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		job, err := a.api.GetJob(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	},
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print the room's chat transcript",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := workspaceRef()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer a.Close()

		msgs, err := a.api.ListMessages(cmd.Context(), ref.ProjectID, ref.RoomID)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range msgs {
			ts := ""
			if !m.CreatedAt.IsZero() {
				ts = m.CreatedAt.Local().Format("2006-01-02 15:04") + " "
			}
			fmt.Fprintf(out, "%s%s: %s\n", ts, m.Role, m.Content)
			for _, u := range m.ImageURLs {
				fmt.Fprintf(out, "    %s\n", u)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, historyCmd)
}
