package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"readTimeout"`
		WriteTimeout    time.Duration `yaml:"writeTimeout"`
		ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
		MaxUploadBytes  int64         `yaml:"maxUploadBytes"`
		AllowedOrigins  []string      `yaml:"allowedOrigins"`
	} `yaml:"server"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Database struct {
		Driver      string `yaml:"driver"` // mysql | postgres | redis | memory
		Host        string `yaml:"host"`
		Port        int    `yaml:"port"`
		User        string `yaml:"user"`
		Password    string `yaml:"password"`
		Name        string `yaml:"name"`
		SSLMode     string `yaml:"sslMode"`
		AutoMigrate bool   `yaml:"autoMigrate"`
	} `yaml:"database"`

	Redis struct {
		Addr      string        `yaml:"addr"`
		Password  string        `yaml:"password"`
		DB        int           `yaml:"db"`
		RecordTTL time.Duration `yaml:"recordTTL"`
	} `yaml:"redis"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
		Containers struct {
			Images    string `yaml:"images"`
			Templates string `yaml:"templates"`
			Packages  string `yaml:"packages"`
		} `yaml:"containers"`
	} `yaml:"minio"`

	AI struct {
		Provider   string        `yaml:"provider"` // openai | azure
		APIKey     string        `yaml:"apiKey"`
		Endpoint   string        `yaml:"endpoint"`
		Model      string        `yaml:"model"`
		APIVersion string        `yaml:"apiVersion"`
		MaxRetries int           `yaml:"maxRetries"`
		Timeout    time.Duration `yaml:"timeout"`
	} `yaml:"ai"`

	GitHub struct {
		Owner         string `yaml:"owner"`
		Repo          string `yaml:"repo"`
		Token         string `yaml:"token"`
		Branch        string `yaml:"branch"`
		PathPrefix    string `yaml:"pathPrefix"`
		FileName      string `yaml:"fileName"`
		CommitMessage string `yaml:"commitMessage"`
		RegistryURL   string `yaml:"registryUrl"`
		BaseURL       string `yaml:"baseUrl"`
	} `yaml:"github"`

	Workflow struct {
		CallTimeout       time.Duration `yaml:"callTimeout"`
		ImageURLExpiry    time.Duration `yaml:"imageUrlExpiry"`
		TemplateURLExpiry time.Duration `yaml:"templateUrlExpiry"`
		PackageURLExpiry  time.Duration `yaml:"packageUrlExpiry"`
		UpsertRetries     int           `yaml:"upsertRetries"`
	} `yaml:"workflow"`

	Demo struct {
		Author     string `yaml:"author"`
		Source     string `yaml:"source"`
		Website    string `yaml:"website"`
		DemoGuide  string `yaml:"demoGuide"`
		Prereqs    string `yaml:"prereqs"`
		Cost       string `yaml:"cost"`
		DeployTime string `yaml:"deployTime"`
	} `yaml:"demo"`

	Auth struct {
		APIKeys map[string]string `yaml:"apiKeys"`
	} `yaml:"auth"`

	RateLimit struct {
		Capacity   int `yaml:"capacity"`
		RefillRate int `yaml:"refillRate"`
	} `yaml:"rateLimit"`

	Feedback struct {
		Path string `yaml:"path"`
	} `yaml:"feedback"`
}

// Load baca file config.yaml. Variabel dari .env (kalau ada) dipakai untuk ${VAR}.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands ${VAR} references, decodes YAML and fills defaults.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// completions are slow
		c.Server.WriteTimeout = 3 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Server.MaxUploadBytes == 0 {
		c.Server.MaxUploadBytes = 20 << 20
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"*"}
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Minio.Containers.Images == "" {
		c.Minio.Containers.Images = "images"
	}
	if c.Minio.Containers.Templates == "" {
		c.Minio.Containers.Templates = "arm-templates"
	}
	if c.Minio.Containers.Packages == "" {
		c.Minio.Containers.Packages = "demo-packages"
	}
	if c.AI.Provider == "" {
		c.AI.Provider = "openai"
	}
	if c.AI.MaxRetries == 0 {
		c.AI.MaxRetries = 2
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 2 * time.Minute
	}
	if c.GitHub.Branch == "" {
		c.GitHub.Branch = "main"
	}
	if c.GitHub.PathPrefix == "" {
		c.GitHub.PathPrefix = "BicepDemoRegistry"
	}
	if c.GitHub.FileName == "" {
		c.GitHub.FileName = "bicepTemplate.bicep"
	}
	if c.GitHub.CommitMessage == "" {
		c.GitHub.CommitMessage = "Add new Bicep template"
	}
	if c.GitHub.RegistryURL == "" && c.GitHub.Owner != "" && c.GitHub.Repo != "" {
		c.GitHub.RegistryURL = fmt.Sprintf("https://github.com/%s/%s/tree/%s/%s",
			c.GitHub.Owner, c.GitHub.Repo, c.GitHub.Branch, c.GitHub.PathPrefix)
	}
	if c.Workflow.CallTimeout == 0 {
		c.Workflow.CallTimeout = 30 * time.Second
	}
	if c.Workflow.ImageURLExpiry == 0 {
		c.Workflow.ImageURLExpiry = 5 * 365 * 24 * time.Hour
	}
	if c.Workflow.TemplateURLExpiry == 0 {
		c.Workflow.TemplateURLExpiry = 24 * time.Hour
	}
	if c.Workflow.PackageURLExpiry == 0 {
		c.Workflow.PackageURLExpiry = 24 * time.Hour
	}
	if c.Workflow.UpsertRetries == 0 {
		c.Workflow.UpsertRetries = 3
	}
	if c.Demo.Author == "" {
		c.Demo.Author = "Scribble to Azure"
	}
	if c.Demo.Cost == "" {
		c.Demo.Cost = "0"
	}
	if c.Demo.DeployTime == "" {
		c.Demo.DeployTime = "10"
	}
	if c.RateLimit.Capacity == 0 {
		c.RateLimit.Capacity = 60
	}
	if c.RateLimit.RefillRate == 0 {
		c.RateLimit.RefillRate = 1
	}
	if c.Feedback.Path == "" {
		c.Feedback.Path = "data/feedback.json"
	}
}

func (c *Config) validate() error {
	var errs []error
	switch c.Database.Driver {
	case "mysql", "postgres", "redis", "memory":
	default:
		errs = append(errs, fmt.Errorf("database.driver %q not supported", c.Database.Driver))
	}
	if c.Database.Driver == "redis" && c.Redis.Addr == "" {
		errs = append(errs, errors.New("redis.addr is required for the redis driver"))
	}
	switch c.AI.Provider {
	case "openai":
	case "azure":
		if c.AI.Endpoint == "" {
			errs = append(errs, errors.New("ai.endpoint is required for azure"))
		}
	default:
		errs = append(errs, fmt.Errorf("ai.provider %q not supported", c.AI.Provider))
	}
	if c.AI.MaxRetries < 0 {
		errs = append(errs, errors.New("ai.maxRetries must not be negative"))
	}
	return errors.Join(errs...)
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

// PostgresDSN builds a lib/pq connection string.
func (c *Config) PostgresDSN() string {
	parts := []string{
		"host=" + c.Database.Host,
		fmt.Sprintf("port=%d", c.Database.Port),
		"user=" + c.Database.User,
		"password=" + c.Database.Password,
		"dbname=" + c.Database.Name,
		"sslmode=" + c.Database.SSLMode,
	}
	return strings.Join(parts, " ")
}
