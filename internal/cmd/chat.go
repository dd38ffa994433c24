package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	chatImages []string
	chatWait   bool
)

var chatCmd = &cobra.Command{
	Use:   "chat <message>",
	Short: "Send a message to the room assistant and stream the reply",
	Long: `Send a message to the room's design assistant. The reply is streamed as it
arrives. When the assistant starts a render, the command keeps following it
unless --wait=false is given.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runChat,
}

func init() {
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().StringSliceVar(&chatImages, "image", nil, "Image URL to attach (repeatable)")
	chatCmd.Flags().BoolVar(&chatWait, "wait", true, "Follow renders the assistant starts")
}

func runChat(cmd *cobra.Command, args []string) error {
	ref, err := workspaceRef()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	a, err := newApp(ctx, out)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.studio.SendChat(ctx, ref, strings.Join(args, " "), chatImages)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, res.Content)
	if res.Partial {
		fmt.Fprintln(out, "(connection dropped; reply may be incomplete)")
	}

	ws := a.studio.Workspace(ref)
	if !chatWait || ws.Pipeline().Idle() {
		return nil
	}
	fmt.Fprintf(out, "following %s\n", ws.Pipeline())
	return waitIdle(ctx, ws, out)
}
