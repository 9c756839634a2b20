// Package config loads and validates opensecagentd's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full daemon configuration (spec.md §6).
type Config struct {
	Agent         AgentConfig             `yaml:"agent"`
	Environment   string                  `yaml:"environment"`
	ActionTierMax int                     `yaml:"action_tier_max"`
	MaintenanceWindows []MaintenanceWindow `yaml:"maintenance_windows"`
	ScanLevel     string                  `yaml:"scan_level"`
	ScanFrequencies map[string]ScanFrequency `yaml:"scan_frequencies"`
	Collector     CollectorConfig         `yaml:"collector"`
	Detector      DetectorConfig          `yaml:"detector"`
	Notifications NotificationsConfig     `yaml:"notifications"`
	LLM           LLMConfig               `yaml:"llm"`
	LLMAgent      LLMAgentConfig          `yaml:"llm_agent"`
	Audit         AuditConfig             `yaml:"audit"`
	Activity      ActivityConfig          `yaml:"activity"`
	Execution     ExecutionConfig         `yaml:"execution"`
	Prompts       map[string]string       `yaml:"prompts"`
}

// AgentConfig holds filesystem locations and identity.
type AgentConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
	DataDir string `yaml:"data_dir"`
	LogDir  string `yaml:"log_dir"`
	RunDir  string `yaml:"run_dir"`
}

// MaintenanceWindow is a config-file absolute UTC instant range.
type MaintenanceWindow struct {
	Start time.Time `yaml:"start"`
	End   time.Time `yaml:"end"`
}

// ScanFrequency bundles the five interval knobs a scan_level preset supplies.
type ScanFrequency struct {
	HostIntervalSec     int `yaml:"host_interval_sec"`
	DockerIntervalSec   int `yaml:"docker_interval_sec"`
	DriftIntervalSec    int `yaml:"drift_interval_sec"`
	DetectorIntervalSec int `yaml:"detector_interval_sec"`
	LLMScanIntervalSec  int `yaml:"llm_scan_interval_sec"`
}

// CollectorConfig configures inventory collection and the drift monitor.
type CollectorConfig struct {
	HostIntervalSec   int      `yaml:"host_interval_sec"`
	DockerIntervalSec int      `yaml:"docker_interval_sec"`
	DriftIntervalSec  int      `yaml:"drift_interval_sec"`
	CriticalFiles     []string `yaml:"critical_files"`
}

// DetectorConfig configures detector thresholds, enable flags, and scan roots.
type DetectorConfig struct {
	DetectorIntervalSec    int      `yaml:"detector_interval_sec"`
	AuthFailureThreshold   int      `yaml:"auth_failure_threshold"`
	AuthFailureWindowSec   int      `yaml:"auth_failure_window_sec"`
	BaselineLearningDays   int      `yaml:"baseline_learning_days"`

	NewPortsEnabled      bool `yaml:"new_ports_enabled"`
	NewContainersEnabled bool `yaml:"new_containers_enabled"`
	NewAdminsEnabled     bool `yaml:"new_admins_enabled"`
	AuthFailureEnabled   bool `yaml:"auth_failure_enabled"`

	ResourceDetectorEnabled bool    `yaml:"resource_detector_enabled"`
	ResourceCPUPercent      float64 `yaml:"resource_cpu_percent"`
	ResourceMemoryPercent   float64 `yaml:"resource_memory_percent"`

	NetworkDetectorEnabled  bool    `yaml:"network_detector_enabled"`
	NetworkMBPerSecThreshold float64 `yaml:"network_mb_per_sec_threshold"`

	NginxAuditEnabled   bool     `yaml:"nginx_audit_enabled"`
	NginxConfigPaths    []string `yaml:"nginx_config_paths"`
	NginxCheckSecurity  bool     `yaml:"nginx_check_security"`

	FirewallAuditEnabled  bool `yaml:"firewall_audit_enabled"`
	FirewallRequireActive bool `yaml:"firewall_require_active"`

	NpmAuditEnabled  bool     `yaml:"npm_audit_enabled"`
	NpmAuditPaths    []string `yaml:"npm_audit_paths"`
	NpmAuditMaxDepth int      `yaml:"npm_audit_max_depth"`

	PhpScanEnabled  bool     `yaml:"php_scan_enabled"`
	PhpScanPaths    []string `yaml:"php_scan_paths"`
	PhpScanMaxDepth int      `yaml:"php_scan_max_depth"`
	PhpScanMaxFiles int      `yaml:"php_scan_max_files"`
	PhpScanMaxBytes int64    `yaml:"php_scan_max_bytes"`
}

// NotificationsConfig configures the reporter's external Mailer port.
type NotificationsConfig struct {
	Provider          string       `yaml:"provider"`
	AdminEmails       []string     `yaml:"admin_emails"`
	SMTP              SMTPConfig   `yaml:"smtp"`
	Resend            ResendConfig `yaml:"resend"`
	ImmediateSeverities []string   `yaml:"immediate_severities"`
	Digest            DigestConfig `yaml:"digest"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	UseTLS   bool   `yaml:"use_tls"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type ResendConfig struct {
	APIKey string `yaml:"api_key"`
	From   string `yaml:"from"`
}

type DigestConfig struct {
	Enabled bool `yaml:"enabled"`
	HourUTC int  `yaml:"hour_utc"`
	Minute  int  `yaml:"minute"`
}

// LLMConfig configures the Chat port and the incident summarizer.
type LLMConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Provider      string   `yaml:"provider"`
	APIKey        string   `yaml:"api_key"`
	Model         string   `yaml:"model"`
	ModelScan     string   `yaml:"model_scan"`
	ModelResolve  string   `yaml:"model_resolve"`
	BaseURL       string   `yaml:"base_url"`
	MaxTokens     int      `yaml:"max_tokens"`
	RedactPatterns []string `yaml:"redact_patterns"`
}

// LLMAgentConfig configures the bounded agent loop.
type LLMAgentConfig struct {
	Enabled            bool `yaml:"enabled"`
	RunOnIncident      bool `yaml:"run_on_incident"`
	RunIntervalSec     int  `yaml:"run_interval_sec"`
	AgentMaxIterations int  `yaml:"agent_max_iterations"`
	// ThreatContextLimit caps how many recent threat records are loaded into
	// the agent's system prompt as history.
	ThreatContextLimit int `yaml:"threat_context_limit"`
}

type AuditConfig struct {
	File        string `yaml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb"`
	RetainDays  int    `yaml:"retain_days"`
}

type ActivityConfig struct {
	Enabled bool   `yaml:"enabled"`
	File    string `yaml:"file"`
}

// ExecutionConfig controls how whitelisted LLM-agent commands run locally.
type ExecutionConfig struct {
	RunAs string `yaml:"run_as"`
}

// Default returns a config populated with the documented defaults
// (matches original_source/opensecagent/config.py's _default_config()).
func Default() Config {
	return Config{
		Agent: AgentConfig{
			Name:    "opensecagent",
			Version: "0.1.0",
			DataDir: "/var/lib/opensecagent",
			LogDir:  "/var/log/opensecagent",
			RunDir:  "/run/opensecagent",
		},
		Environment:   "prod",
		ActionTierMax: 1,
		ScanFrequencies: map[string]ScanFrequency{
			"quick":    {600, 120, 600, 120, 7200},
			"standard": {300, 60, 300, 60, 3600},
			"deep":     {180, 45, 180, 45, 1800},
		},
		Collector: CollectorConfig{
			HostIntervalSec:   300,
			DockerIntervalSec: 60,
			DriftIntervalSec:  300,
			CriticalFiles: []string{
				"/etc/passwd", "/etc/group", "/etc/sudoers",
				"/etc/ssh/sshd_config", "/etc/hosts", "/etc/crontab",
			},
		},
		Detector: DetectorConfig{
			DetectorIntervalSec:  60,
			AuthFailureThreshold: 5,
			AuthFailureWindowSec: 300,
			BaselineLearningDays: 3,

			NewPortsEnabled:      true,
			NewContainersEnabled: true,
			NewAdminsEnabled:     true,
			AuthFailureEnabled:   true,

			ResourceDetectorEnabled: true,
			ResourceCPUPercent:      90,
			ResourceMemoryPercent:   90,

			NetworkDetectorEnabled:   true,
			NetworkMBPerSecThreshold: 100,

			NginxAuditEnabled:  true,
			NginxConfigPaths:   []string{"/etc/nginx/nginx.conf"},
			NginxCheckSecurity: true,

			FirewallAuditEnabled:  true,
			FirewallRequireActive: true,

			NpmAuditEnabled:  true,
			NpmAuditPaths:    []string{"/var/www", "/opt", "/home"},
			NpmAuditMaxDepth: 4,

			PhpScanEnabled:  true,
			PhpScanPaths:    []string{"/var/www", "/home"},
			PhpScanMaxDepth: 6,
			PhpScanMaxFiles: 500,
			PhpScanMaxBytes: 100 * 1024,
		},
		Notifications: NotificationsConfig{
			Provider: "smtp",
			SMTP: SMTPConfig{
				Port:   587,
				UseTLS: true,
				From:   "OpenSecAgent <noreply@localhost>",
			},
			ImmediateSeverities: []string{"P1", "P2"},
			Digest:              DigestConfig{Enabled: true, HourUTC: 8, Minute: 0},
		},
		LLM: LLMConfig{
			Enabled:   false,
			Provider:  "openai",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
			RedactPatterns: []string{"password", "secret", "token", "key", "credential"},
		},
		Audit: AuditConfig{
			File:       "/var/log/opensecagent/audit.jsonl",
			MaxSizeMB:  100,
			RetainDays: 90,
		},
		Activity: ActivityConfig{
			Enabled: true,
			File:    "/var/log/opensecagent/activity.jsonl",
		},
		LLMAgent: LLMAgentConfig{
			Enabled:            false,
			RunOnIncident:      true,
			AgentMaxIterations: 10,
			ThreatContextLimit: 15,
		},
	}
}

// Load reads path (if non-empty and it exists), deep-merges it over Default(),
// applies environment overrides, then returns the result alongside any
// validation warnings (non-fatal; see Validate).
func Load(path string) (*Config, []string, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("OPENSECAGENT_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnvOverrides(&cfg)
	clamp(&cfg)

	return &cfg, Validate(&cfg), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENSECAGENT_DATA_DIR"); v != "" {
		cfg.Agent.DataDir = v
	}
	if v := os.Getenv("OPENSECAGENT_LOG_DIR"); v != "" {
		cfg.Agent.LogDir = v
	}
	if v := os.Getenv("OPENSECAGENT_ACTION_TIER_MAX"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ActionTierMax = n
		}
	}
	if v := os.Getenv("OPENSECAGENT_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
		cfg.LLM.Enabled = true
	}
	if v := os.Getenv("OPENSECAGENT_LLM_AGENT_ENABLED"); v != "" {
		cfg.LLMAgent.Enabled = !isFalsy(v)
	}
}

// clamp brings out-of-range numeric fields back into their documented bounds
// rather than rejecting the whole file.
func clamp(cfg *Config) {
	if cfg.ActionTierMax < 0 || cfg.ActionTierMax > 3 {
		cfg.ActionTierMax = 1
	}
	if cfg.Detector.AuthFailureThreshold <= 0 {
		cfg.Detector.AuthFailureThreshold = 5
	}
	if cfg.Detector.AuthFailureWindowSec <= 0 {
		cfg.Detector.AuthFailureWindowSec = 300
	}
	if cfg.LLMAgent.AgentMaxIterations <= 0 {
		cfg.LLMAgent.AgentMaxIterations = 10
	}
	if cfg.LLMAgent.ThreatContextLimit <= 0 {
		cfg.LLMAgent.ThreatContextLimit = 15
	}
}

// Validate returns human-readable warnings for configuration problems that
// are advisory for the daemon (it still starts) but fatal for a dedicated
// validate command.
func Validate(cfg *Config) []string {
	var errs []string
	if cfg.Agent.DataDir == "" {
		errs = append(errs, "agent.data_dir is required")
	}
	if cfg.Agent.LogDir == "" {
		errs = append(errs, "agent.log_dir is required")
	}
	if cfg.ActionTierMax < 0 || cfg.ActionTierMax > 3 {
		errs = append(errs, "action_tier_max must be 0, 1, 2, or 3")
	}
	if cfg.LLM.Enabled && cfg.LLM.APIKey == "" {
		errs = append(errs, "llm.enabled is true but llm.api_key is empty")
	}
	if cfg.ScanLevel != "" {
		if _, ok := cfg.ScanFrequencies[cfg.ScanLevel]; !ok {
			errs = append(errs, fmt.Sprintf("scan_level %q has no matching scan_frequencies entry", cfg.ScanLevel))
		}
	}
	return errs
}

// EffectiveIntervals resolves the five scheduling intervals, preferring a
// named scan_level preset over the collector/detector/llm_agent sections.
func (c *Config) EffectiveIntervals() ScanFrequency {
	if c.ScanLevel != "" {
		if freq, ok := c.ScanFrequencies[c.ScanLevel]; ok {
			return freq
		}
	}
	return ScanFrequency{
		HostIntervalSec:     c.Collector.HostIntervalSec,
		DockerIntervalSec:   c.Collector.DockerIntervalSec,
		DriftIntervalSec:    c.Collector.DriftIntervalSec,
		DetectorIntervalSec: c.Detector.DetectorIntervalSec,
		LLMScanIntervalSec:  c.LLMAgent.RunIntervalSec,
	}
}

func isFalsy(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "false" || v == "0" || v == "no"
}
