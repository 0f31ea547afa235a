package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("CARRENTAL_TEST_SECRET", "s3cret")

	yamlContent := `
auth:
  jwt_secret: "${CARRENTAL_TEST_SECRET}"
database:
  path: "test.db"
rates:
  ttl: 2m
cars:
  - id: 1
    owner_id: "owner-1"
    brand: "Toyota"
    model: "Corolla"
    location: "Belgrade"
    price_per_day: 45
    is_available: true
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected expanded jwt secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Rates.TTL != 2*time.Minute {
		t.Errorf("expected rates ttl 2m, got %s", cfg.Rates.TTL)
	}
	if len(cfg.Cars) != 1 || cfg.Cars[0].PricePerDay != 45 {
		t.Errorf("expected 1 car priced 45, got %+v", cfg.Cars)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	car := models.Car{ID: 1, OwnerID: "o", Brand: "Fiat", PricePerDay: 20}

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{
			name: "valid config",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "secret"},
				Database: DatabaseConfig{Path: "path"},
				Cars:     []models.Car{car},
			},
			wantErr: false,
		},
		{
			name: "placeholder secret",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "CHANGE_ME"},
				Database: DatabaseConfig{Path: "path"},
			},
			wantErr: true,
		},
		{
			name: "missing database",
			cfg: Config{
				Auth: AuthConfig{JWTSecret: "secret"},
			},
			wantErr: true,
		},
		{
			name: "duplicate car id",
			cfg: Config{
				Auth:     AuthConfig{JWTSecret: "secret"},
				Database: DatabaseConfig{Path: "path"},
				Cars:     []models.Car{car, car},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.GRPC.Port != 8081 {
		t.Errorf("expected default gRPC port 8081, got %d", cfg.API.GRPC.Port)
	}
	if cfg.Booking.MaxBookingDays != models.DefaultMaxBookingDays {
		t.Errorf("expected default max booking days %d, got %d", models.DefaultMaxBookingDays, cfg.Booking.MaxBookingDays)
	}
	if cfg.Rates.TTL != 10*time.Minute {
		t.Errorf("expected default rates ttl 10m, got %s", cfg.Rates.TTL)
	}
	if cfg.Events.Exchange == "" {
		t.Error("expected default events exchange")
	}
	if cfg.Worker.BackoffFactor != 2 {
		t.Errorf("expected default backoff factor 2, got %v", cfg.Worker.BackoffFactor)
	}
}

func TestValidateCars(t *testing.T) {
	tests := []struct {
		name    string
		cars    []models.Car
		wantErr bool
	}{
		{
			name: "Valid cars",
			cars: []models.Car{
				{ID: 1, OwnerID: "a", PricePerDay: 10},
				{ID: 2, OwnerID: "a", PricePerDay: 12},
			},
		},
		{
			name:    "ID 0",
			cars:    []models.Car{{ID: 0, OwnerID: "a", PricePerDay: 10}},
			wantErr: true,
		},
		{
			name:    "No owner",
			cars:    []models.Car{{ID: 3, PricePerDay: 10}},
			wantErr: true,
		},
		{
			name:    "Free car",
			cars:    []models.Car{{ID: 4, OwnerID: "a"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCars(tt.cars)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCars() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
