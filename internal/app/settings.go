package app

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// RescueSettings controls the Rescue Sweeper's staleness thresholds (spec §4.3).
type RescueSettings struct {
	StartSeconds     int `yaml:"start_seconds"`
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
	GraceSeconds     int `yaml:"grace_seconds"`
}

// FeatureSettings toggles optional pipeline behavior (spec §4.1, §7).
type FeatureSettings struct {
	LongformEnabled bool `yaml:"longform_enabled"`
}

// IterationSettings bounds the critic/revise loop during synthesis (spec §4.2).
type IterationSettings struct {
	MaxIterations int `yaml:"max_iterations"`
	TokenBudget   int `yaml:"token_budget"`
}

// GatewaySettings addresses the Tool Gateway's external collaborators: the
// search, fetch, chat, and embedding endpoints it fronts (spec §4.4, §6).
// These are thin HTTP endpoints, not vendor SDKs — the services behind them
// are specified only at their interface and are out of this system's scope.
type GatewaySettings struct {
	PrimarySearchURL  string `yaml:"primary_search_url"`
	WorkflowSearchURL string `yaml:"workflow_search_url"`
	FetchURL          string `yaml:"fetch_url"`
	ChatURL           string `yaml:"chat_url"`
	EmbedURL          string `yaml:"embed_url"`
}

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	DBPath            string            `yaml:"db_path"`
	ArtifactsDir      string            `yaml:"artifacts_dir"`
	MaxConcurrent     int               `yaml:"max_concurrent"`
	MaxSteps          int               `yaml:"max_steps"`
	MaxJobSeconds     int               `yaml:"max_job_seconds"`
	MaxLLMTokens      int               `yaml:"max_llm_tokens"`
	MaxContext        int               `yaml:"max_context"`
	MaxNotesForSynth  int               `yaml:"max_notes_for_synth"`
	WarmNotesLimit    int               `yaml:"warm_notes_limit"`
	WarmImportanceMin int               `yaml:"warm_importance_min"`
	Rescue            RescueSettings    `yaml:"rescue"`
	Features          FeatureSettings   `yaml:"features"`
	Iteration         IterationSettings `yaml:"iteration"`
	Gateway           GatewaySettings   `yaml:"gateway"`
}

const (
	defaultMaxConcurrent     = 4
	defaultMaxSteps          = 12
	defaultMaxJobSeconds     = 3600
	defaultMaxLLMTokens      = 200000
	defaultMaxContext        = 32000
	defaultMaxNotesForSynth  = 60
	defaultWarmNotesLimit    = 20
	defaultWarmImportanceMin = 3
	defaultRescueStartSec    = 120
	defaultRescueHeartbeat   = 90
	defaultRescueGrace       = 30
	defaultMaxIterations     = 3
	defaultIterationTokens   = 8000
)

// EffectiveSettings returns validated runtime settings with defaults applied
// over whatever config.yaml supplied (spec §4.3, §7 configuration surface).
func EffectiveSettings() Settings {
	cfg := Settings{
		MaxConcurrent:     defaultMaxConcurrent,
		MaxSteps:          defaultMaxSteps,
		MaxJobSeconds:     defaultMaxJobSeconds,
		MaxLLMTokens:      defaultMaxLLMTokens,
		MaxContext:        defaultMaxContext,
		MaxNotesForSynth:  defaultMaxNotesForSynth,
		WarmNotesLimit:    defaultWarmNotesLimit,
		WarmImportanceMin: defaultWarmImportanceMin,
		Rescue: RescueSettings{
			StartSeconds:     defaultRescueStartSec,
			HeartbeatSeconds: defaultRescueHeartbeat,
			GraceSeconds:     defaultRescueGrace,
		},
		Iteration: IterationSettings{
			MaxIterations: defaultMaxIterations,
			TokenBudget:   defaultIterationTokens,
		},
	}

	s, err := LoadSettings()
	if err != nil {
		return cfg
	}

	if s.MaxConcurrent > 0 {
		cfg.MaxConcurrent = s.MaxConcurrent
	}
	if s.MaxSteps > 0 {
		cfg.MaxSteps = s.MaxSteps
	}
	if s.MaxJobSeconds > 0 {
		cfg.MaxJobSeconds = s.MaxJobSeconds
	}
	if s.MaxLLMTokens > 0 {
		cfg.MaxLLMTokens = s.MaxLLMTokens
	}
	if s.MaxContext > 0 {
		cfg.MaxContext = s.MaxContext
	}
	if s.MaxNotesForSynth > 0 {
		cfg.MaxNotesForSynth = s.MaxNotesForSynth
	}
	if s.WarmNotesLimit > 0 {
		cfg.WarmNotesLimit = s.WarmNotesLimit
	}
	if s.WarmImportanceMin > 0 {
		cfg.WarmImportanceMin = s.WarmImportanceMin
	}
	if s.Rescue.StartSeconds > 0 {
		cfg.Rescue.StartSeconds = s.Rescue.StartSeconds
	}
	if s.Rescue.HeartbeatSeconds > 0 {
		cfg.Rescue.HeartbeatSeconds = s.Rescue.HeartbeatSeconds
	}
	if s.Rescue.GraceSeconds > 0 {
		cfg.Rescue.GraceSeconds = s.Rescue.GraceSeconds
	}
	cfg.Features.LongformEnabled = s.Features.LongformEnabled
	if s.Iteration.MaxIterations > 0 {
		cfg.Iteration.MaxIterations = s.Iteration.MaxIterations
	}
	if s.Iteration.TokenBudget > 0 {
		cfg.Iteration.TokenBudget = s.Iteration.TokenBudget
	}
	if s.ArtifactsDir != "" {
		cfg.ArtifactsDir = s.ArtifactsDir
	}
	cfg.Gateway = s.Gateway

	return cfg
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// dbPathOverrideMu and dbPathOverride implement a mutex-protected process-wide override for CLI --db-path.
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	dbPathOverrideMu sync.RWMutex
	dbPathOverride   string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	dbPathOverrideMu.Lock()
	dbPathOverride = path
	dbPathOverrideMu.Unlock()
}

func getDBPathOverride() string {
	dbPathOverrideMu.RLock()
	v := dbPathOverride
	dbPathOverrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/research-orchestrator/config.yaml
// 2) /etc/research-orchestrator/config.yaml
// 3) ./config.yaml (lowest priority; allows repo-local overrides if desired)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		if s, err := loadSettingsFile(filepath.Join(dir, "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile(filepath.Join(string(os.PathSeparator), "etc", "research-orchestrator", "config.yaml")); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}

		if s, err := loadSettingsFile("config.yaml"); err == nil {
			settings = s
			return
		} else if err != nil && !errors.Is(err, os.ErrNotExist) {
			settingsErr = err
			return
		}
	})

	return settings, settingsErr
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
