package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var exportBundle bool

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Save the room's 3D scene locally",
	Long: `Save the Blender-compatible export of the room's finished 3D scene into
the download directory. With --bundle the server's zip of splat and
panorama assets is saved instead.

Examples:
  studio export -p p1 -r r1
  studio export -p p1 -r r1 --bundle`,
	Args: cobra.NoArgs,
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

		path, err := a.exporter.Export(cmd.Context(), ref, exportBundle)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "saved %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().BoolVar(&exportBundle, "bundle", false, "Save the zipped asset bundle instead of the single export file")
}
