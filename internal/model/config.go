package model

import "time"

// Config is the complete veracity configuration
type Config struct {
	LLM       LLMConfig       `yaml:"llm" json:"llm"`
	Audit     AuditConfig     `yaml:"audit" json:"audit"`
	Dispatch  DispatchConfig  `yaml:"dispatch" json:"dispatch"`
	Broadcast BroadcastConfig `yaml:"broadcast" json:"broadcast"`
	Server    ServerConfig    `yaml:"server" json:"server"`
	Cache     CacheConfig     `yaml:"cache" json:"cache"`
}

// LLMConfig configures the completion backend used by the decomposer
// and verifier stages
type LLMConfig struct {
	Provider          string  `yaml:"provider" json:"provider"` // openai, anthropic, ollama
	Model             string  `yaml:"model" json:"model"`
	APIKey            string  `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	BaseURL           string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Timeout           int     `yaml:"timeout" json:"timeout"` // seconds, per completion call
	MaxTokens         int     `yaml:"max_tokens" json:"max_tokens"`
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// AuditConfig tunes the pipeline stages
type AuditConfig struct {
	TopK               int     `yaml:"top_k" json:"top_k"`                             // Evidence passages per claim
	RelevanceThreshold float64 `yaml:"relevance_threshold" json:"relevance_threshold"` // Minimum similarity to keep
	ClaimFanout        int     `yaml:"claim_fanout" json:"claim_fanout"`               // Concurrent claims per job
	DegradedUnknownMin int     `yaml:"degraded_unknown_min" json:"degraded_unknown_min"`
	DegradedTotalMax   int     `yaml:"degraded_total_max" json:"degraded_total_max"`
}

// DispatchConfig bounds the worker pool
type DispatchConfig struct {
	Workers      int           `yaml:"workers" json:"workers"`
	QueueSize    int           `yaml:"queue_size" json:"queue_size"`
	SubmitWait   time.Duration `yaml:"submit_wait" json:"submit_wait"` // Max blocking before Busy
	RetentionTTL time.Duration `yaml:"retention_ttl" json:"retention_ttl"`
}

// BroadcastConfig bounds the result hub
type BroadcastConfig struct {
	HistorySize     int           `yaml:"history_size" json:"history_size"`
	MetricsInterval time.Duration `yaml:"metrics_interval" json:"metrics_interval"`
}

// ServerConfig configures the HTTP surface
type ServerConfig struct {
	Addr string `yaml:"addr" json:"addr"`
}

// CacheConfig controls the decomposition cache
type CacheConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	TTL     time.Duration `yaml:"ttl" json:"ttl"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "ollama",
			Model:             "llama3.2",
			BaseURL:           "",
			Timeout:           30,
			MaxTokens:         1024,
			RequestsPerSecond: 5,
			Burst:             5,
		},
		Audit: AuditConfig{
			TopK:               3,
			RelevanceThreshold: 0.3,
			ClaimFanout:        4,
			DegradedUnknownMin: 3,
			DegradedTotalMax:   5,
		},
		Dispatch: DispatchConfig{
			Workers:      10,
			QueueSize:    50,
			SubmitWait:   200 * time.Millisecond,
			RetentionTTL: 30 * time.Minute,
		},
		Broadcast: BroadcastConfig{
			HistorySize:     100,
			MetricsInterval: 10 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":8090",
		},
		Cache: CacheConfig{
			Enabled: true,
			TTL:     15 * time.Minute,
		},
	}
}
