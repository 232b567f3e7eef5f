package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all harvestd configuration.
// Priority: env vars > config file > defaults.
type Config struct {
	ListenAddr string `yaml:"listen_addr"`
	DBPath     string `yaml:"db_path"`
	LogLevel   string `yaml:"log_level"`

	Worklist struct {
		Items []string `yaml:"items"`
		File  string   `yaml:"file"`
	} `yaml:"worklist"`

	Scorer struct {
		Endpoint  string `yaml:"endpoint"`
		ScorePath string `yaml:"score_path"`
	} `yaml:"scorer"`

	Vault struct {
		Endpoint string `yaml:"endpoint"`
	} `yaml:"vault"`

	Ledger struct {
		Backend   string   `yaml:"backend"` // "sql" or "tigerbeetle"
		ClusterID string   `yaml:"cluster_id"`
		Addresses []string `yaml:"addresses"`
		Sessions  int      `yaml:"sessions"`
	} `yaml:"ledger"`

	DecisionRule   string `yaml:"decision_rule"`
	MaxTransitions int    `yaml:"max_transitions"`
	Schedule       string `yaml:"schedule"`
}

func defaultConfig() Config {
	var cfg Config
	cfg.ListenAddr = ":4700"
	cfg.DBPath = "harvest.db"
	cfg.LogLevel = "info"
	cfg.Ledger.Backend = "sql"
	// The shipped ceiling covers a full default worklist; the engine's
	// built-in default is tighter.
	cfg.MaxTransitions = 200
	return cfg
}

// loadConfig layers the YAML file (if present) and HARVEST_* env vars over
// the defaults, then validates.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}

	applyEnv(&cfg)

	if cfg.Worklist.File == "" && len(cfg.Worklist.Items) == 0 {
		return cfg, fmt.Errorf("worklist.items or worklist.file is required")
	}
	if cfg.Ledger.Backend != "sql" && cfg.Ledger.Backend != "tigerbeetle" {
		return cfg, fmt.Errorf("ledger.backend must be \"sql\" or \"tigerbeetle\", got %q", cfg.Ledger.Backend)
	}
	if cfg.Ledger.Backend == "tigerbeetle" && len(cfg.Ledger.Addresses) == 0 {
		return cfg, fmt.Errorf("ledger.addresses is required for the tigerbeetle backend")
	}
	if cfg.MaxTransitions < 0 {
		return cfg, fmt.Errorf("max_transitions must not be negative")
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("HARVEST_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("HARVEST_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("HARVEST_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("HARVEST_WORKLIST_FILE"); v != "" {
		cfg.Worklist.File = v
	}
	if v := os.Getenv("HARVEST_WORKLIST_ITEMS"); v != "" {
		cfg.Worklist.Items = splitList(v)
	}
	if v := os.Getenv("HARVEST_SCORER_ENDPOINT"); v != "" {
		cfg.Scorer.Endpoint = v
	}
	if v := os.Getenv("HARVEST_VAULT_ENDPOINT"); v != "" {
		cfg.Vault.Endpoint = v
	}
	if v := os.Getenv("HARVEST_LEDGER_BACKEND"); v != "" {
		cfg.Ledger.Backend = v
	}
	if v := os.Getenv("HARVEST_LEDGER_ADDRESSES"); v != "" {
		cfg.Ledger.Addresses = splitList(v)
	}
	if v := os.Getenv("HARVEST_DECISION_RULE"); v != "" {
		cfg.DecisionRule = v
	}
	if v := os.Getenv("HARVEST_MAX_TRANSITIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTransitions = n
		}
	}
	if v := os.Getenv("HARVEST_SCHEDULE"); v != "" {
		cfg.Schedule = v
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseClusterID converts a config cluster_id string to uint32.
func parseClusterID(value string) (uint32, error) {
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid cluster_id: %w", err)
	}
	return uint32(parsed), nil
}
