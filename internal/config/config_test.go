package config

import (
	"os"
	"path/filepath"
	"testing"

	"agendamento/internal/models"
)

func TestLoadConfig(t *testing.T) {
	// Create a temporary config file
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("AGENDAMENTO_TEST_SECRET", "s3cret")

	yamlContent := `
database:
  path: "test.db"
api:
  auth:
    jwt_secret: "${AGENDAMENTO_TEST_SECRET}"
resources:
  - id: TABLETS
    capacity: 30
    requires_room: true
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.API.Auth.JWTSecret != "s3cret" {
		t.Errorf("expected expanded jwt secret, got %q", cfg.API.Auth.JWTSecret)
	}

	catalog, err := cfg.Catalog()
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	tablets, _ := catalog.Get(models.ResourceTablets)
	if tablets.Capacity != 30 {
		t.Errorf("expected tablets capacity 30, got %d", tablets.Capacity)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		cfg := Config{
			Database: DatabaseConfig{Path: "path"},
			API:      APIConfig{Auth: APIAuthConfig{JWTSecret: "secret"}},
		}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "missing jwt secret",
			mutate:  func(c *Config) { c.API.Auth.JWTSecret = "" },
			wantErr: true,
		},
		{
			name:    "unsorted time slots",
			mutate:  func(c *Config) { c.Booking.TimeSlots = []string{"08:20", "07:30"} },
			wantErr: true,
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Booking.Timezone = "Mars/Olympus" },
			wantErr: true,
		},
		{
			name: "unknown resource",
			mutate: func(c *Config) {
				c.Resources = []models.Resource{{ID: "PRINTER", Capacity: 1}}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default HTTP port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Booking.MaxBookingDays != models.DefaultMaxBookingDays {
		t.Errorf("expected default max booking days %d, got %d", models.DefaultMaxBookingDays, cfg.Booking.MaxBookingDays)
	}
	if len(cfg.Booking.TimeSlots) != len(models.DefaultTimeSlots) {
		t.Errorf("expected %d default time slots, got %d", len(models.DefaultTimeSlots), len(cfg.Booking.TimeSlots))
	}
	if cfg.Booking.DefaultCancelNote != models.DefaultCancelNote {
		t.Errorf("unexpected default cancel note %q", cfg.Booking.DefaultCancelNote)
	}
	if !cfg.IsAdminRole("admin") {
		t.Error("expected ADMIN to be an admin role by default")
	}
}

func TestValidateResources(t *testing.T) {
	tests := []struct {
		name      string
		resources []models.Resource
		wantErr   bool
	}{
		{
			name:      "No overrides",
			resources: nil,
			wantErr:   false,
		},
		{
			name: "Valid overrides",
			resources: []models.Resource{
				{ID: models.ResourceTablets, Capacity: 35, RequiresRoom: true},
				{ID: models.ResourceDataShow, Capacity: 2, RequiresRoom: true},
			},
			wantErr: false,
		},
		{
			name: "Duplicate ID",
			resources: []models.Resource{
				{ID: models.ResourceTablets, Capacity: 40},
				{ID: models.ResourceTablets, Capacity: 20},
			},
			wantErr: true,
		},
		{
			name: "Zero capacity",
			resources: []models.Resource{
				{ID: models.ResourceLousaSala17, Capacity: 0},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateResources(tt.resources)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateResources() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
