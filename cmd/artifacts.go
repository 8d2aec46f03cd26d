package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/andresmejia3/proctor/internal/store"
	"github.com/andresmejia3/proctor/internal/utils"
	"github.com/spf13/cobra"
)

var resetYes bool

var artifactsCmd = &cobra.Command{
	Use:   "artifacts",
	Short: "Inspect or clear stored anomaly screenshots",
}

var artifactsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored screenshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withArtifacts(cmd.Context(), func(s store.Artifacts) error {
			return runList(cmd.Context(), s, os.Stdout)
		})
	},
}

var artifactsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete all stored screenshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes && !confirm(bufio.NewReader(os.Stdin), "⚠️  Are you sure you want to delete all stored screenshots?") {
			fmt.Println("Aborted.")
			return nil
		}
		return withArtifacts(cmd.Context(), func(s store.Artifacts) error {
			fmt.Println("🗑️  Clearing screenshots...")
			if err := s.Reset(cmd.Context()); err != nil {
				utils.ShowError("Failed to reset artifacts", err, "")
				return errAlreadyReported
			}
			fmt.Println("✨ Artifact store cleared.")
			return nil
		})
	},
}

func init() {
	artifactsResetCmd.Flags().BoolVarP(&resetYes, "yes", "y", false, "Skip the confirmation prompt")
	artifactsCmd.AddCommand(artifactsListCmd, artifactsResetCmd)
	rootCmd.AddCommand(artifactsCmd)
}

func withArtifacts(ctx context.Context, fn func(store.Artifacts) error) error {
	s, err := openArtifacts(ctx, cfg)
	if err != nil {
		utils.ShowError("Artifact store unavailable", err, "")
		return errAlreadyReported
	}
	// Use Background here because ctx might be cancelled already (due to Ctrl+C)
	defer s.Close(context.Background())
	return fn(s)
}

func runList(ctx context.Context, s store.Artifacts, out io.Writer) error {
	items, err := s.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list artifacts: %w", err)
	}
	if len(items) == 0 {
		fmt.Fprintln(out, "No screenshots stored.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tCREATED\tURL")
	fmt.Fprintln(w, "----\t----\t-------\t---")
	for _, it := range items {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", it.Name, it.Size, it.CreatedAt.Local().Format("2006-01-02 15:04"), it.URL)
	}
	return w.Flush()
}

func confirm(r *bufio.Reader, prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	res, _ := r.ReadString('\n')
	res = strings.TrimSpace(strings.ToLower(res))
	return res == "y" || res == "yes"
}
