// Package config loads process configuration from the environment (and
// an optional .env file) using viper, the way the teacher's CLI
// tooling already does elsewhere in this corpus.
package config

import (
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds every environment-driven value the core honors (spec §6).
type Config struct {
	Port string
	Host string

	DatabasePath string
	ArtifactDir  string
	VoiceDir     string

	// Synthesis engine.
	Device            string
	CPUFallback       bool
	EngineURL         string
	SynthTimeout      time.Duration
	MaxConcurrentJobs int
	QueueCapacity     int
	VisibilityTimeout time.Duration
	ShutdownGrace     time.Duration
	LogLevel          string

	RequestTimeout time.Duration
	BrokerURL      string
	StoreURL       string
}

// Load reads configuration from the environment, an optional .env file,
// and built-in defaults, in that order of precedence.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	v := viper.New()
	v.SetEnvPrefix("VOXFORGE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("port", "8080")
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("database_path", "data/voxforge.db")
	v.SetDefault("artifact_dir", "data/artifacts")
	v.SetDefault("voice_dir", "data/voice_profiles")
	v.SetDefault("device", "cpu")
	v.SetDefault("cpu_fallback", false)
	v.SetDefault("engine_url", "http://127.0.0.1:8020")
	v.SetDefault("synth_timeout_seconds", 300)
	v.SetDefault("max_concurrent_jobs", 2)
	v.SetDefault("queue_capacity", 256)
	v.SetDefault("visibility_timeout_seconds", 300)
	v.SetDefault("shutdown_grace_seconds", 30)
	v.SetDefault("log_level", "info")
	v.SetDefault("request_timeout_seconds", 120)
	v.SetDefault("broker_url", "")
	v.SetDefault("store_url", "")

	return &Config{
		Port:              v.GetString("port"),
		Host:              v.GetString("host"),
		DatabasePath:      v.GetString("database_path"),
		ArtifactDir:       v.GetString("artifact_dir"),
		VoiceDir:          v.GetString("voice_dir"),
		Device:            v.GetString("device"),
		CPUFallback:       v.GetBool("cpu_fallback"),
		EngineURL:         v.GetString("engine_url"),
		SynthTimeout:      time.Duration(v.GetInt("synth_timeout_seconds")) * time.Second,
		MaxConcurrentJobs: v.GetInt("max_concurrent_jobs"),
		QueueCapacity:     v.GetInt("queue_capacity"),
		VisibilityTimeout: time.Duration(v.GetInt("visibility_timeout_seconds")) * time.Second,
		ShutdownGrace:     time.Duration(v.GetInt("shutdown_grace_seconds")) * time.Second,
		LogLevel:          v.GetString("log_level"),
		RequestTimeout:    time.Duration(v.GetInt("request_timeout_seconds")) * time.Second,
		BrokerURL:         v.GetString("broker_url"),
		StoreURL:          v.GetString("store_url"),
	}
}
