package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"DATABASE_DRIVER", "DATABASE_URL", "MODEL_PROFILE", "MATCH_THRESHOLD",
		"MATCH_INDEX", "INFERENCE_BACKEND", "MODELS_FILE", "WEB_PORT",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Database.Driver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.Database.Driver)
	}
	if cfg.Model.Name != "facenet-vggface2" {
		t.Errorf("expected default profile, got %q", cfg.Model.Name)
	}
	if cfg.Model.InputSize != 160 {
		t.Errorf("expected input size 160, got %d", cfg.Model.InputSize)
	}
	if cfg.Match.Threshold != 0.6 {
		t.Errorf("expected threshold 0.6, got %v", cfg.Match.Threshold)
	}
	if cfg.Match.Index != "linear" {
		t.Errorf("expected linear index, got %q", cfg.Match.Index)
	}
	if cfg.Web.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Web.Port)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("MODELS_FILE", "")
	t.Setenv("DATABASE_DRIVER", "POSTGRES")
	t.Setenv("MODEL_PROFILE", "dlib-resnet")
	t.Setenv("MATCH_THRESHOLD", "0.45")
	t.Setenv("MATCH_INDEX", "hnsw")
	t.Setenv("WEB_ALLOWED_ORIGINS", "https://door.example.org, ,https://kiosk.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("expected postgres driver, got %q", cfg.Database.Driver)
	}
	if cfg.Model.EmbeddingDim != 128 {
		t.Errorf("expected dim 128, got %d", cfg.Model.EmbeddingDim)
	}
	if cfg.Match.Threshold != 0.45 {
		t.Errorf("expected threshold 0.45, got %v", cfg.Match.Threshold)
	}
	if len(cfg.Web.AllowedOrigins) != 2 || cfg.Web.AllowedOrigins[1] != "https://kiosk.example.org" {
		t.Errorf("unexpected allowed origins %q", cfg.Web.AllowedOrigins)
	}
}

func TestLoad_InvalidThresholdFallsBack(t *testing.T) {
	t.Setenv("MODELS_FILE", "")
	t.Setenv("MODEL_PROFILE", "")
	t.Setenv("MATCH_THRESHOLD", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Match.Threshold != 0.6 {
		t.Errorf("expected fallback threshold 0.6, got %v", cfg.Match.Threshold)
	}
}

func TestLoad_UnknownProfile(t *testing.T) {
	t.Setenv("MODELS_FILE", "")
	t.Setenv("MODEL_PROFILE", "does-not-exist")

	if _, err := Load(); err == nil {
		t.Error("expected error for unknown profile")
	}
}

func TestLoad_UnsupportedDriver(t *testing.T) {
	t.Setenv("MODELS_FILE", "")
	t.Setenv("MODEL_PROFILE", "")
	t.Setenv("DATABASE_DRIVER", "mysql")

	if _, err := Load(); err == nil {
		t.Error("expected error for unsupported driver")
	}
}

func TestLoad_ModelsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := []byte(`profiles:
  arcface:
    input_size: 112
    embedding_dim: 512
    distance_threshold: 1.1
    mean: [0.5, 0.5, 0.5]
    std: [0.5, 0.5, 0.5]
    l2_normalize: true
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MODELS_FILE", path)
	t.Setenv("MODEL_PROFILE", "arcface")
	t.Setenv("MATCH_THRESHOLD", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Model.InputSize != 112 || !cfg.Model.L2Normalize {
		t.Errorf("unexpected profile: %+v", cfg.Model)
	}
	if cfg.Match.Threshold != 1.1 {
		t.Errorf("expected threshold from profile, got %v", cfg.Match.Threshold)
	}
}

func TestParseProfiles(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{
			name: "defaults filled in",
			data: "profiles:\n  small:\n    embedding_dim: 64\n",
		},
		{
			name:    "missing dim",
			data:    "profiles:\n  broken:\n    input_size: 100\n",
			wantErr: true,
		},
		{
			name:    "invalid yaml",
			data:    "profiles: [",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profiles, err := ParseProfiles([]byte(tt.data))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseProfiles() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			p := profiles["small"]
			if p.InputSize != 160 || p.DistanceThreshold != 0.6 || p.Std[0] != 1 {
				t.Errorf("defaults not applied: %+v", p)
			}
		})
	}
}
