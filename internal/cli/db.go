package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chatvault/chatvault/internal/chatdb"
)

type dbInfo struct {
	Path     string        `json:"path"`
	ReadOnly bool          `json:"readOnly"`
	Counts   chatdb.Counts `json:"counts"`
}

func newDBCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Message store helpers",
	}

	cmd.AddCommand(newDBInfoCmd(app))
	return cmd
}

func newDBInfoCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show resolved store path and table counts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env, err := app.setup(true)
			if err != nil {
				return err
			}
			defer env.close()

			counts, err := env.store.Counts(cmd.Context())
			if err != nil {
				return err
			}

			info := dbInfo{Path: env.dbPath, ReadOnly: true, Counts: counts}
			if app.JSON {
				return writeJSON(info)
			}

			fmt.Printf("Path: %s\n", info.Path)
			fmt.Printf("Read-only: %t\n", info.ReadOnly)
			w := newTabWriter()
			fmt.Fprintf(w, "messages\t%d\n", counts.Messages)
			fmt.Fprintf(w, "chats\t%d\n", counts.Chats)
			fmt.Fprintf(w, "handles\t%d\n", counts.Handles)
			fmt.Fprintf(w, "attachments\t%d\n", counts.Attachments)
			return w.Flush()
		},
	}
}
