package cmd

import (
	"fmt"
	"log"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teachrad/radcase-console/internal/store"
)

var listRecent bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available teaching cases",
	Long: `List teaching cases from the remote store, or with --recent the cases
opened most recently on this machine from the local journal.`,
	RunE: runList,
}

func init() {
	listCmd.Flags().BoolVar(&listRecent, "recent", false, "List recently opened cases from the local journal")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := log.New(os.Stderr, "[list] ", log.LstdFlags)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	defer w.Flush()

	if listRecent {
		dbFile := resolvePathRelativeToBase(getWorkingDir(), cfg.Database.Path)
		st, err := store.NewStore(dbFile)
		if err != nil {
			return fmt.Errorf("open journal %s: %w", dbFile, err)
		}
		defer st.Close()

		recent, err := st.RecentCases(ctx, 20)
		if err != nil {
			return fmt.Errorf("list recent cases: %w", err)
		}
		if len(recent) == 0 {
			fmt.Println("No recently opened cases.")
			return nil
		}
		fmt.Fprintln(w, "CASE\tTITLE\tOPENED\tLAST OPENED")
		for _, rc := range recent {
			fmt.Fprintf(w, "%d\t%s\t%d\t%s\n", rc.CaseID, rc.Title, rc.OpenCount, rc.LastOpened.Format("2006-01-02 15:04"))
		}
		return nil
	}

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}
	cases, err := client.ListCases(ctx)
	if err != nil {
		return fmt.Errorf("list cases: %w", err)
	}
	if len(cases) == 0 {
		fmt.Println("No cases available.")
		return nil
	}
	fmt.Fprintln(w, "ID\tTITLE\tMODALITY\tIMAGING")
	for _, cs := range cases {
		imaging := "series"
		if cs.HasImaging() {
			imaging = "single image"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", cs.ID, cs.Title, cs.Modality, imaging)
	}
	return nil
}
