package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/goncalojustino/tempusfugit-public-sub000/internal/models"
	"github.com/goncalojustino/tempusfugit-public-sub000/internal/schedule"
)

type Config struct {
	App        AppConfig            `yaml:"app"`
	Facility   FacilityConfig       `yaml:"facility"`
	Database   DatabaseConfig       `yaml:"database"`
	Redis      RedisConfig          `yaml:"redis"`
	Monitoring MonitoringConfig     `yaml:"monitoring"`
	Logging    LoggingConfig        `yaml:"logging"`
	API        APIConfig            `yaml:"api"`
	Engine     EngineConfig         `yaml:"engine"`
	Templates  []TemplateConfig     `yaml:"templates"`
	Resources  []models.Resource    `yaml:"resources"`
	Caps       []models.CapRule     `yaml:"caps"`
	Cutoffs    []models.CutoffRule  `yaml:"cutoffs"`
	Rates      []models.PriceRate   `yaml:"rates"`
	Approval   models.ApprovalRules `yaml:"approval"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

// FacilityConfig pins the civil timezone every grid, cap window and cutoff is
// evaluated in.
type FacilityConfig struct {
	Timezone string `yaml:"timezone"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
	HealthCheckPort   int  `yaml:"health_check_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	Port      int                `yaml:"port"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIAuthConfig struct {
	Enabled      bool           `yaml:"enabled"`
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type EngineConfig struct {
	CreateRetries     int `yaml:"create_retries"`
	SheetCacheTTLSecs int `yaml:"sheet_cache_ttl_seconds"`
	InvalidatorQueue  int `yaml:"invalidator_queue"`
}

// TemplateConfig is the YAML shape of a weekday grid template. Band bounds
// are civil "HH:MM" strings.
type TemplateConfig struct {
	Name  string       `yaml:"name"`
	Bands []BandConfig `yaml:"bands"`
}

type BandConfig struct {
	Start       string `yaml:"start"`
	End         string `yaml:"end"`
	Label       string `yaml:"label"`
	StepMinutes int    `yaml:"step_minutes"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional; env vars referenced from the YAML may come from the
	// real environment instead.
	_ = godotenv.Load(".env")

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "tempusfugit"
	}
	if c.Facility.Timezone == "" {
		c.Facility.Timezone = "UTC"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.API.Enabled && !c.API.Auth.Enabled {
		c.API.Auth.Enabled = true
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Engine.CreateRetries == 0 {
		c.Engine.CreateRetries = models.DefaultCreateRetries
	}
	if c.Engine.SheetCacheTTLSecs == 0 {
		c.Engine.SheetCacheTTLSecs = models.DefaultSheetCacheTTL
	}

	for i := range c.Resources {
		if c.Resources[i].AdvanceDays == 0 {
			c.Resources[i].AdvanceDays = models.DefaultAdvanceDays
		}
		if c.Resources[i].Status == "" {
			c.Resources[i].Status = models.ResourceStatusOK
		}
	}
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if _, err := time.LoadLocation(c.Facility.Timezone); err != nil {
		return fmt.Errorf("facility timezone %q: %w", c.Facility.Timezone, err)
	}
	if c.Redis.Enabled && c.Redis.Address == "" {
		return errors.New("redis.address is required when redis is enabled")
	}
	if c.API.Enabled && c.API.Auth.Enabled && len(c.API.Auth.APIKeys) == 0 {
		return errors.New("api auth is enabled but no api keys are configured")
	}

	if err := ValidateResources(c.Resources, c.Templates); err != nil {
		return err
	}
	if _, err := c.GridTemplates(); err != nil {
		return err
	}
	return nil
}

// ValidateResources checks ids are unique and every resource references a
// declared template.
func ValidateResources(resources []models.Resource, templates []TemplateConfig) error {
	names := make(map[string]bool, len(templates))
	for _, tpl := range templates {
		names[tpl.Name] = true
	}

	ids := make(map[int64]bool, len(resources))
	for _, r := range resources {
		if r.ID == 0 {
			return fmt.Errorf("resource %q has invalid ID 0", r.Name)
		}
		if ids[r.ID] {
			return fmt.Errorf("duplicate resource ID found: %d", r.ID)
		}
		ids[r.ID] = true
		if !names[r.Template] {
			return fmt.Errorf("resource %q references unknown template %q", r.Name, r.Template)
		}
		if r.DefaultProbe != "" && len(r.Probes) > 0 && !r.HasProbe(r.DefaultProbe) {
			return fmt.Errorf("resource %q default probe %q is not in its probe list", r.Name, r.DefaultProbe)
		}
	}
	return nil
}

// Location resolves the facility timezone. Call after Validate.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Facility.Timezone)
}

// SheetCacheTTL returns the day sheet TTL as a duration.
func (c *Config) SheetCacheTTL() time.Duration {
	return time.Duration(c.Engine.SheetCacheTTLSecs) * time.Second
}

// GridTemplates converts the YAML template shapes into schedule templates.
func (c *Config) GridTemplates() ([]schedule.Template, error) {
	out := make([]schedule.Template, 0, len(c.Templates))
	for _, tpl := range c.Templates {
		bands := make([]schedule.Band, 0, len(tpl.Bands))
		for i, b := range tpl.Bands {
			sh, sm, err := parseClock(b.Start)
			if err != nil {
				return nil, fmt.Errorf("template %q band %d start: %w", tpl.Name, i, err)
			}
			eh, em, err := parseClock(b.End)
			if err != nil {
				return nil, fmt.Errorf("template %q band %d end: %w", tpl.Name, i, err)
			}
			bands = append(bands, schedule.Band{
				StartHour:   sh,
				StartMinute: sm,
				EndHour:     eh,
				EndMinute:   em,
				Label:       b.Label,
				StepMinutes: b.StepMinutes,
			})
		}
		out = append(out, schedule.Template{Name: tpl.Name, Bands: bands})
	}
	return out, nil
}

// parseClock parses a civil "HH:MM" string.
func parseClock(s string) (hour, minute int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%q is not HH:MM", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%q has invalid hour", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%q has invalid minute", s)
	}
	return hour, minute, nil
}
