package cli

import (
	"github.com/spf13/cobra"
)

func newUpdateCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "update",
		Short: "Fold newly arrived messages into the existing dataset",
		Long:  "Update extracts only rows newer than the dataset's latest message, remaps them onto existing stable ids, and appends. Existing ids never change. With no prior dataset this runs a full export.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.setup(false)
			if err != nil {
				return err
			}
			defer env.close()

			summary, err := env.exp.RunUpdate(cmd.Context())
			if err != nil {
				return err
			}
			return printSummary(app, "update", env.cfg.DatasetPath(), summary)
		},
	}
}
