package cli

import (
	"github.com/spf13/cobra"
)

func newAttachmentsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "attachments",
		Short: "Process image attachments into web-ready copies",
		Long:  "Attachments copies image files out of the OS-managed store, converts HEIC originals to JPEG, links each image to its message, and rewrites the dataset's image list.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.setup(false)
			if err != nil {
				return err
			}
			defer env.close()

			summary, err := env.exp.RunAttachments(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(app, "attachment processing", env.cfg.DatasetPath(), summary)
		},
	}
}
