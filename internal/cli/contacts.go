package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newContactsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "contacts",
		Short: "Re-resolve unresolved contact names in the dataset",
		Long:  "Contacts retries name resolution for dataset contacts still displaying a raw phone number or email, using the mapping store and the OS contact directory. Messages are untouched.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.setup(false)
			if err != nil {
				return err
			}
			defer env.close()

			updated, err := env.exp.RunContacts(cmd.Context())
			if err != nil {
				return err
			}
			if app.JSON {
				return writeJSON(map[string]int{"updated": updated})
			}
			fmt.Printf("resolved %d contact name(s)\n", updated)
			return nil
		},
	}
}
