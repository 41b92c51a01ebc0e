package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kozaktomas/lab-access/internal/constants"
	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var modelsYAML []byte

type Config struct {
	Database  DatabaseConfig
	Inference InferenceConfig
	Match     MatchConfig
	Model     ModelProfile
	Access    AccessConfig
	Log       LogConfig
	Web       WebConfig
}

type DatabaseConfig struct {
	Driver       string // "sqlite" (default) or "postgres"
	URL          string // SQLite file path or PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type InferenceConfig struct {
	Backend           string  // "http" (default) or "dlib"
	URL               string  // inference server, defaults to http://localhost:8000
	DlibModelsDir     string  // directory with dlib model files (dlib backend only)
	MinDetectionScore float64 // detections below this confidence are dropped
}

type MatchConfig struct {
	Threshold float64 // strict L2 threshold, overrides the profile when set
	Index     string  // "linear" (default) or "hnsw"
	IndexPath string  // where the hnsw index is loaded from and saved to, empty keeps it in memory
}

type AccessConfig struct {
	AdminPasscode string // required for roster operations over HTTP
	ScanDebugDir  string // when set, the last scanned frame is written here
}

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json or console
}

type WebConfig struct {
	Host string
	Port int
	// AllowedOrigins receive CORS headers; localhost is always allowed.
	AllowedOrigins []string
}

// ModelProfile describes the embedding model the pipeline is configured for.
type ModelProfile struct {
	Name              string     `yaml:"-"`
	InputSize         int        `yaml:"input_size"`
	EmbeddingDim      int        `yaml:"embedding_dim"`
	DistanceThreshold float64    `yaml:"distance_threshold"`
	Mean              [3]float32 `yaml:"mean"`
	Std               [3]float32 `yaml:"std"`
	L2Normalize       bool       `yaml:"l2_normalize"`
}

type profilesFile struct {
	Profiles map[string]ModelProfile `yaml:"profiles"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

// envList splits a comma separated variable, dropping empty items.
func envList(key string) []string {
	var out []string
	for item := range strings.SplitSeq(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// ParseProfiles parses a model profile document.
func ParseProfiles(data []byte) (map[string]ModelProfile, error) {
	var f profilesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse model profiles: %w", err)
	}
	for name, p := range f.Profiles {
		p.Name = name
		if p.InputSize <= 0 {
			p.InputSize = constants.DefaultCanonicalSize
		}
		if p.DistanceThreshold <= 0 {
			p.DistanceThreshold = constants.DefaultDistanceThreshold
		}
		if p.EmbeddingDim <= 0 {
			return nil, fmt.Errorf("profile %q: embedding_dim must be positive", name)
		}
		for i := range p.Std {
			if p.Std[i] == 0 {
				p.Std[i] = 1
			}
		}
		f.Profiles[name] = p
	}
	return f.Profiles, nil
}

// loadProfiles returns the embedded profiles, merged with MODELS_FILE when set.
func loadProfiles() (map[string]ModelProfile, error) {
	profiles, err := ParseProfiles(modelsYAML)
	if err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded models.yaml: " + err.Error())
	}

	path := os.Getenv("MODELS_FILE")
	if path == "" {
		return profiles, nil
	}
	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config
	if err != nil {
		return nil, fmt.Errorf("read models file: %w", err)
	}
	extra, err := ParseProfiles(data)
	if err != nil {
		return nil, err
	}
	for name, p := range extra {
		profiles[name] = p
	}
	return profiles, nil
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	profiles, err := loadProfiles()
	if err != nil {
		return nil, err
	}

	profileName := envString("MODEL_PROFILE", constants.DefaultModelProfile)
	profile, ok := profiles[profileName]
	if !ok {
		return nil, fmt.Errorf("unknown model profile %q", profileName)
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Driver:       strings.ToLower(envString("DATABASE_DRIVER", "sqlite")),
			URL:          envString("DATABASE_URL", "lab-access.db"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Inference: InferenceConfig{
			Backend:           strings.ToLower(envString("INFERENCE_BACKEND", "http")),
			URL:               os.Getenv("INFERENCE_URL"),
			DlibModelsDir:     envString("DLIB_MODELS_DIR", "models"),
			MinDetectionScore: envFloat("MIN_DETECTION_SCORE", constants.MinDetectionScore),
		},
		Match: MatchConfig{
			Threshold: envFloat("MATCH_THRESHOLD", profile.DistanceThreshold),
			Index:     strings.ToLower(envString("MATCH_INDEX", "linear")),
			IndexPath: os.Getenv("MATCH_INDEX_PATH"),
		},
		Model: profile,
		Access: AccessConfig{
			AdminPasscode: os.Getenv("ADMIN_PASSCODE"),
			ScanDebugDir:  os.Getenv("SCAN_DEBUG_DIR"),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", "console"),
		},
		Web: WebConfig{
			Host: envString("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),

			AllowedOrigins: envList("WEB_ALLOWED_ORIGINS"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks enum-like settings.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want sqlite or postgres)", c.Database.Driver)
	}
	switch c.Inference.Backend {
	case "http", "dlib":
	default:
		return fmt.Errorf("unsupported INFERENCE_BACKEND %q (want http or dlib)", c.Inference.Backend)
	}
	switch c.Match.Index {
	case "linear", "hnsw":
	default:
		return fmt.Errorf("unsupported MATCH_INDEX %q (want linear or hnsw)", c.Match.Index)
	}
	return nil
}
