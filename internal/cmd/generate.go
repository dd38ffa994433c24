package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"architect-studio/internal/domain/model"
	"architect-studio/internal/usecase"
)

var (
	genPrompt   string
	genRefs     []string
	genModel    string
	genDownload  bool
	genDetach    bool
	genPreflight bool
)

var generateCmd = &cobra.Command{
	Use:   "generate <2d|3d|artifact|zoning|technical-info>",
	Short: "Submit a generation job and follow it to completion",
	Long: `Submit a generation job for the selected workspace and wait until the
result is reconciled. Interrupting the command leaves the job recorded as
active; "studio watch" picks it up again.

Examples:
  studio generate 2d -p p1 -r r1 --prompt "loft with concrete floors" --ref https://cdn/ref.png
  studio generate 3d -p p1 -r r1 --model "Marble 0.1-mini"
  studio generate artifact -p p1 -r r1 --download
  studio generate zoning -p p1 --download
  studio generate zoning -p p1 -r r1 --preflight`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)
	generateCmd.Flags().StringVar(&genPrompt, "prompt", "", "Prompt for 2D renders")
	generateCmd.Flags().StringSliceVar(&genRefs, "ref", nil, "Reference image URL (repeatable)")
	generateCmd.Flags().StringVar(&genModel, "model", "", "3D model ("+model.Model3DQuality+" or "+model.Model3DFast+")")
	generateCmd.Flags().BoolVar(&genDownload, "download", false, "Save the finished document (or 3D scene export) locally")
	generateCmd.Flags().BoolVar(&genDetach, "detach", false, "Return after submission without waiting")
	generateCmd.Flags().BoolVar(&genPreflight, "preflight", false, "For reports: show what is still missing instead of submitting")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	jt, ok := model.ParseJobType(args[0])
	if !ok {
		return fmt.Errorf("unknown job type %q", args[0])
	}
	ref, err := workspaceRef()
	if err != nil {
		return err
	}
	if jt == model.JobTypeTechnicalInfoReport {
		ref.RoomID = ""
	}

	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()

	if genPreflight {
		p, err := a.studio.Preflight(ctx, ref, jt)
		if err != nil {
			return err
		}
		printPreflight(cmd.OutOrStdout(), p)
		return nil
	}

	jobID, err := a.studio.Generate(ctx, usecase.GenerateParams{
		Workspace:          ref,
		Type:               jt,
		Prompt:             genPrompt,
		ReferenceImageURLs: genRefs,
		Model:              genModel,
		Download:           genDownload,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "submitted %s job %s\n", jt, jobID)
	if genDetach {
		return nil
	}

	ws := a.studio.Workspace(ref)
	if err := waitIdle(ctx, ws, cmd.OutOrStdout()); err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), ws, jt)
	return nil
}

// waitIdle blocks until the workspace pipeline returns to idle, printing
// 3D progress as it changes.
func waitIdle(ctx context.Context, ws *model.Workspace, out io.Writer) error {
	t := time.NewTicker(250 * time.Millisecond)
	defer t.Stop()
	last := -1
	for {
		if ws.Pipeline().Idle() {
			if last >= 0 {
				fmt.Fprintln(out)
			}
			return nil
		}
		if p, ok := ws.Progress(); ok && int(p.Percent) != last {
			last = int(p.Percent)
			fmt.Fprintf(out, "\r%s", formatProgress(p))
		}
		select {
		case <-ctx.Done():
			if last >= 0 {
				fmt.Fprintln(out)
			}
			if errors.Is(ctx.Err(), context.Canceled) {
				fmt.Fprintln(out, "interrupted; the job stays recorded for `studio watch`")
			}
			return ctx.Err()
		case <-t.C:
		}
	}
}

func formatProgress(p model.Progress) string {
	if p.Overdue {
		return fmt.Sprintf("3D scene %3.0f%%  taking longer than usual (%s elapsed)   ", p.Percent, p.Elapsed.Round(time.Second))
	}
	return fmt.Sprintf("3D scene %3.0f%%  about %s left   ", p.Percent, p.Remaining.Round(time.Second))
}

func printResult(out io.Writer, ws *model.Workspace, jt model.JobType) {
	switch jt {
	case model.JobTypeImage2D:
		for _, u := range ws.Images() {
			fmt.Fprintln(out, u)
		}
	case model.JobTypeModel3D:
		if r := ws.Room(); r != nil && r.WorldLabs != nil {
			fmt.Fprintf(out, "viewer: %s\n", r.WorldLabs.ViewerURL())
		}
	case model.JobTypeArtifact:
		if r := ws.Room(); r != nil && r.ArtifactURL != "" {
			fmt.Fprintf(out, "artifact: %s\n", r.ArtifactURL)
		}
	case model.JobTypeZoningReport, model.JobTypeTechnicalInfoReport:
		if rec := ws.Project().Report(jt); rec != nil && rec.ReportPDFURL != "" {
			fmt.Fprintf(out, "report: %s\n", rec.ReportPDFURL)
		}
	}
}

func printPreflight(out io.Writer, p *model.Preflight) {
	fmt.Fprintf(out, "outcome: %s\n", p.Outcome())
	if p.Ready() {
		fmt.Fprintln(out, "nothing missing; ready to generate")
	}
	for _, q := range p.MissingQuestions {
		fmt.Fprintf(out, "  ? %s\n", q)
	}
	for _, c := range p.Checks {
		fmt.Fprintf(out, "  %-10s %s%s\n", c.Status, c.Name, checkValues(c))
	}
	for _, n := range p.Notes {
		fmt.Fprintf(out, "  note: %s\n", n)
	}
}

func checkValues(c model.PreflightCheck) string {
	if c.Required == nil && c.Proposed == nil {
		return ""
	}
	val := func(f *float64) string {
		if f == nil {
			return "?"
		}
		return strconv.FormatFloat(*f, 'f', -1, 64)
	}
	return fmt.Sprintf(" (required %s, proposed %s)", val(c.Required), val(c.Proposed))
}
