package app

import (
	"os"
	"path/filepath"
)

// ConfigDir returns ~/.config/research-orchestrator/ on all platforms.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "research-orchestrator"), nil
}

// EnsureConfigDir creates the config directory and default config.yaml if missing.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0750); err != nil {
		return err
	}

	configFile := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return os.WriteFile(configFile, []byte(defaultConfig), 0600)
	}
	return nil
}

const defaultConfig = `# research-orchestrator configuration
# Run: research --help

# Optional: override the SQLite database location.
# Can also be set via RESEARCH_DB_PATH or --db-path.
# db_path: ~/.config/research-orchestrator/orchestrator.db

# max_concurrent: 4
# max_steps: 12
# max_job_seconds: 3600
# max_llm_tokens: 200000
# max_context: 32000
# max_notes_for_synth: 60
# warm_notes_limit: 20
# warm_importance_min: 3
#
# rescue:
#   start_seconds: 120
#   heartbeat_seconds: 90
#   grace_seconds: 30
#
# features:
#   longform_enabled: false
#
# iteration:
#   max_iterations: 3
#   token_budget: 8000
#
# artifacts_dir: ~/.config/research-orchestrator/artifacts
#
# gateway:
#   primary_search_url: http://localhost:8090/search
#   workflow_search_url: http://localhost:8090/search/workflow
#   fetch_url: http://localhost:8090/fetch
#   chat_url: http://localhost:8090/chat
#   embed_url: http://localhost:8090/embed
`
