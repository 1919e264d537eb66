package cmd

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teachrad/radcase-console/internal/upload"
)

var (
	uploadWatch    bool
	uploadPatterns []string
)

var uploadCmd = &cobra.Command{
	Use:   "upload <case-id> <directory>",
	Short: "Upload DICOM files from a directory to a case",
	Long: `Scan a directory for DICOM files and upload them to the given case. With
--watch the command keeps running and uploads new files as they appear,
batching bursts so an export that drops a whole study lands as one request.`,
	Args: cobra.ExactArgs(2),
	RunE: runUpload,
}

func init() {
	uploadCmd.Flags().BoolVar(&uploadWatch, "watch", false, "Keep watching the directory and upload new files")
	uploadCmd.Flags().StringSliceVar(&uploadPatterns, "pattern", nil, "File patterns to upload (default *.dcm,*.dicom)")
	rootCmd.AddCommand(uploadCmd)
}

func runUpload(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg := GetConfig()
	logger := log.New(os.Stderr, "[upload] ", log.LstdFlags)

	caseID, err := strconv.Atoi(args[0])
	if err != nil || caseID <= 0 {
		return fmt.Errorf("invalid case id %q", args[0])
	}
	dir := args[1]
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}

	client, err := newAPIClient(cfg, logger)
	if err != nil {
		return err
	}

	patterns := uploadPatterns
	if len(patterns) == 0 {
		patterns = cfg.Upload.Patterns
	}

	lastPct := -1
	fu := upload.NewFolderUploader(client, upload.Options{
		Dir:      dir,
		CaseID:   caseID,
		Watch:    uploadWatch,
		Patterns: patterns,
		Logger:   logger,
		Progress: func(percent int) {
			if percent != lastPct {
				lastPct = percent
				fmt.Fprintf(os.Stderr, "\rUploading... %d%%", percent)
				if percent >= 100 {
					fmt.Fprintln(os.Stderr)
				}
			}
		},
		SettleDelay: cfg.Upload.Settle,
	})

	if uploadWatch {
		logger.Printf("Watching %s for case %d (Ctrl+C to stop)", dir, caseID)
	}
	if err := fu.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("upload: %w", err)
	}

	t := fu.Totals()
	fmt.Printf("Uploaded %d batch(es): %d file(s), %d processed, %d skipped, %d errored, %d series created, %d image(s) created\n",
		t.Batches, t.TotalFiles, t.Processed, t.Skipped, t.Errored, t.SeriesCreated, t.ImagesCreated)
	return nil
}
