package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/exporter"
)

func newExportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Run a full export, rebuilding the dataset from scratch",
		Long:  "Export extracts every message from the local store, assigns fresh dense ids, and replaces the dataset file. The previous dataset is backed up first.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.setup(true)
			if err != nil {
				return err
			}
			defer env.close()

			summary, err := env.exp.RunFull(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(app, "full export", env.cfg.DatasetPath(), summary)
		},
	}
}

func printSummary(app *App, mode, datasetPath string, s *exporter.Summary) error {
	if app.JSON {
		return writeJSON(s)
	}
	fmt.Printf("%s complete: %s\n", mode, datasetPath)

	w := newTabWriter()
	fmt.Fprintf(w, "rows fetched\t%d\n", s.RowsFetched)
	fmt.Fprintf(w, "messages\t%d\n", s.Messages)
	fmt.Fprintf(w, "decoded from body\t%d\n", s.DecodedFromBody)
	fmt.Fprintf(w, "empty text\t%d\n", s.EmptyText)
	fmt.Fprintf(w, "new contacts\t%d\n", s.NewContacts)
	fmt.Fprintf(w, "new messages\t%d\n", s.NewMessages)
	fmt.Fprintf(w, "duplicates skipped\t%d\n", s.Duplicates)
	if s.ImagesProcessed > 0 || s.ImagesSkipped > 0 {
		fmt.Fprintf(w, "images processed\t%d\n", s.ImagesProcessed)
		fmt.Fprintf(w, "images skipped\t%d\n", s.ImagesSkipped)
	}
	if s.UnboundAttachments > 0 || s.UnresolvedPlaceholders > 0 {
		fmt.Fprintf(w, "unbound attachments\t%d\n", s.UnboundAttachments)
		fmt.Fprintf(w, "unresolved placeholders\t%d\n", s.UnresolvedPlaceholders)
	}
	return w.Flush()
}
