package commands

import (
	"github.com/spf13/cobra"

	"github.com/oremus-labs/research-orchestrator/internal/app"
	"github.com/oremus-labs/research-orchestrator/internal/output"
	"github.com/oremus-labs/research-orchestrator/internal/store"
)

// NewDoctorCmd checks configuration, database connectivity, and runs the
// same consistency checks the Rescue Sweeper acts on (spec §4.3), so an
// operator can see what the next sweep would touch before it runs.
func NewDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, database connectivity, and job consistency",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbPath, dbSource, err := app.ResolveDBPathDetailed()
			if err != nil {
				return cmdErr(err)
			}

			var (
				dbOK        bool
				dbErr       string
				queryOK     bool
				queryErr    string
				diagnostics []store.Diagnostic
				diagErr     string
			)

			db, err := store.InitDBWithPath(dbPath)
			if err != nil {
				dbErr = err.Error()
			} else {
				dbOK = true
				defer func() { _ = db.Close() }()
			}

			if dbOK {
				var one int
				if err := db.QueryRow("SELECT 1").Scan(&one); err != nil {
					queryErr = err.Error()
				} else {
					queryOK = true
				}

				settings := app.EffectiveSettings()
				diags, err := store.RunDiagnostics(db, settings.Rescue.StartSeconds, settings.Rescue.HeartbeatSeconds, settings.Rescue.GraceSeconds)
				if err != nil {
					diagErr = err.Error()
				} else {
					diagnostics = diags
				}
			} else {
				queryErr = "db not available"
			}

			hint := ""
			if !dbOK {
				hint = "If this is running in a sandboxed environment, set db_path to a writable location or use --db-path."
			}

			type resp struct {
				DBPath      string             `json:"db_path"`
				DBSource    string             `json:"db_source"`
				DBOK        bool               `json:"db_ok"`
				DBErr       string             `json:"db_error,omitempty"`
				QueryOK     bool               `json:"query_ok"`
				QueryErr    string             `json:"query_error,omitempty"`
				Diagnostics []store.Diagnostic `json:"diagnostics,omitempty"`
				DiagErr     string             `json:"diagnostics_error,omitempty"`
				Hint        string             `json:"hint,omitempty"`
			}
			return output.PrintSuccess(resp{
				DBPath:      dbPath,
				DBSource:    dbSource,
				DBOK:        dbOK,
				DBErr:       dbErr,
				QueryOK:     queryOK,
				QueryErr:    queryErr,
				Diagnostics: diagnostics,
				DiagErr:     diagErr,
				Hint:        hint,
			})
		},
	}
	return cmd
}
