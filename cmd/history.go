package cmd

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teachrad/radcase-console/internal/store"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history <case-id>",
	Short: "Show the local activity trail for a case",
	Long: `Print the session actions recorded on this machine for one case: opens,
explicit saves, submissions, and feedback flags, newest first.`,
	Args: cobra.ExactArgs(1),
	RunE: runHistory,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "Maximum entries to show")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()

	caseID, err := strconv.Atoi(args[0])
	if err != nil || caseID <= 0 {
		return fmt.Errorf("invalid case id %q", args[0])
	}

	dbFile := resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path)
	st, err := store.NewStore(dbFile)
	if err != nil {
		return fmt.Errorf("open journal %s: %w", dbFile, err)
	}
	defer st.Close()

	entries, err := st.ListActivity(ctx, caseID, historyLimit)
	if err != nil {
		return fmt.Errorf("list activity: %w", err)
	}
	if len(entries) == 0 {
		fmt.Printf("No recorded activity for case %d.\n", caseID)
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "WHEN\tACTION\tREPORT\tDETAIL")
	for _, a := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.CreatedAt.Format("2006-01-02 15:04"), a.Action, a.ReportID, a.Detail)
	}
	return nil
}
