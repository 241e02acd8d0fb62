package commands

import (
	"github.com/spf13/cobra"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/output"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// NewUpgradeCmd applies pending schema migrations. CheckSchemaVersion points
// operators here when the binary is newer than the on-disk schema.
func NewUpgradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upgrade",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, err := app.GetDBPath()
			if err != nil {
				return cmdErr(err)
			}

			db, err := store.OpenDB(dbPath)
			if err != nil {
				return cmdErr(err)
			}
			defer func() { _ = store.CloseDB(db) }()

			before, _, err := store.SchemaVersion(db)
			if err != nil {
				return cmdErr(err)
			}

			if err := store.MigrateDB(db, dbPath); err != nil {
				return cmdErr(err)
			}

			after, latest, err := store.SchemaVersion(db)
			if err != nil {
				return cmdErr(err)
			}

			type resp struct {
				DBPath        string `json:"db_path"`
				BeforeVersion int64  `json:"before_version"`
				AfterVersion  int64  `json:"after_version"`
				LatestKnown   int64  `json:"latest_known"`
				Applied       bool   `json:"applied"`
			}
			return output.PrintSuccess(resp{
				DBPath:        dbPath,
				BeforeVersion: before,
				AfterVersion:  after,
				LatestKnown:   latest,
				Applied:       after != before,
			})
		},
	}
	cmd.Annotations = map[string]string{"mutates": "true"}
	return cmd
}
