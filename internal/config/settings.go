package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

// Default values used when the environment does not override them.
const (
	DefaultMunicipalityIBGECode = "3121605"
	DefaultDataRoot             = "data"
	DefaultConfigRoot           = "configs"
	DefaultRequestTimeout       = 30 * time.Second
	DefaultHTTPMaxRetries       = 3
	DefaultHTTPBackoff          = 1500 * time.Millisecond
	DefaultPipelineVersion      = "0.1.0"
	DefaultOrchestratorName     = "prefect"
	DefaultIBGEAPIBaseURL       = "https://servicodados.ibge.gov.br/api/v1"
	DefaultTSECKANBaseURL       = "https://dadosabertos.tse.jus.br/api/3/action"
	DefaultLogLevel             = "info"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")

	ibgeCodeRe = regexp.MustCompile(`^\d{7}$`)
	validate   = validator.New()
)

// Settings is the typed configuration shared by every connector, report and CLI.
type Settings struct {
	DatabaseURL          string `validate:"required"`
	MunicipalityIBGECode string `validate:"required,len=7,numeric"`

	DataRoot   string `validate:"required"`
	ConfigRoot string `validate:"required"`

	RequestTimeout        time.Duration `validate:"gt=0"`
	HTTPMaxRetries        int           `validate:"gte=0,lte=20"`
	HTTPBackoff           time.Duration `validate:"gte=0"`
	HTTPRequestsPerSecond float64       `validate:"gte=0"`

	PipelineVersion  string `validate:"required"`
	OrchestratorName string `validate:"required"`

	IBGEAPIBaseURL string `validate:"required,url"`
	TSECKANBaseURL string `validate:"required,url"`

	LogLevel string `validate:"oneof=debug info warn error"`

	// Optional S3/MinIO mirror of the bronze tree.
	BronzeS3Bucket    string
	BronzeS3Region    string
	BronzeS3Endpoint  string
	BronzeS3PathStyle bool

	// Optional node-exporter textfile target for run metrics.
	MetricsTextfile string
}

// Load reads .env.local / .env (when present) and then the process environment.
//
// Environment variables:
//   - DATABASE_URL: warehouse DSN (required)
//   - MUNICIPALITY_IBGE_CODE: 7-digit IBGE code scoping every run (default 3121605)
//   - DATA_ROOT: base of bronze/, manifests/, manual/, raw/bootstrap/, reports/ (default data)
//   - CONFIG_ROOT: directory holding catalogs and YAML configs (default configs)
//   - REQUEST_TIMEOUT_SECONDS, HTTP_MAX_RETRIES, HTTP_BACKOFF_SECONDS, HTTP_REQUESTS_PER_SECOND
//   - PIPELINE_VERSION, ORCHESTRATOR_NAME: manifest provenance
//   - IBGE_API_BASE_URL, TSE_CKAN_BASE_URL: source roots
//   - LOG_LEVEL: debug, info, warn or error
//   - BRONZE_S3_BUCKET, BRONZE_S3_REGION, BRONZE_S3_ENDPOINT, BRONZE_S3_PATH_STYLE
//   - METRICS_TEXTFILE
func Load() (Settings, error) {
	for _, f := range []string{".env.local", ".env"} {
		if _, err := os.Stat(f); err == nil {
			_ = godotenv.Load(f)
		}
	}
	return LoadFromEnv()
}

// LoadFromEnv builds Settings from the environment only.
func LoadFromEnv() (Settings, error) {
	s := Settings{
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		MunicipalityIBGECode: envString("MUNICIPALITY_IBGE_CODE", DefaultMunicipalityIBGECode),
		DataRoot:             envString("DATA_ROOT", DefaultDataRoot),
		ConfigRoot:           envString("CONFIG_ROOT", DefaultConfigRoot),
		PipelineVersion:      envString("PIPELINE_VERSION", DefaultPipelineVersion),
		OrchestratorName:     envString("ORCHESTRATOR_NAME", DefaultOrchestratorName),
		IBGEAPIBaseURL:       strings.TrimRight(envString("IBGE_API_BASE_URL", DefaultIBGEAPIBaseURL), "/"),
		TSECKANBaseURL:       strings.TrimRight(envString("TSE_CKAN_BASE_URL", DefaultTSECKANBaseURL), "/"),
		LogLevel:             strings.ToLower(envString("LOG_LEVEL", DefaultLogLevel)),
		BronzeS3Bucket:       strings.TrimSpace(os.Getenv("BRONZE_S3_BUCKET")),
		BronzeS3Region:       strings.TrimSpace(os.Getenv("BRONZE_S3_REGION")),
		BronzeS3Endpoint:     strings.TrimSpace(os.Getenv("BRONZE_S3_ENDPOINT")),
		MetricsTextfile:      strings.TrimSpace(os.Getenv("METRICS_TEXTFILE")),
	}

	var err error
	if s.RequestTimeout, err = envSeconds("REQUEST_TIMEOUT_SECONDS", DefaultRequestTimeout); err != nil {
		return s, err
	}
	if s.HTTPBackoff, err = envSeconds("HTTP_BACKOFF_SECONDS", DefaultHTTPBackoff); err != nil {
		return s, err
	}
	if s.HTTPMaxRetries, err = envInt("HTTP_MAX_RETRIES", DefaultHTTPMaxRetries); err != nil {
		return s, err
	}
	if s.HTTPRequestsPerSecond, err = envFloat("HTTP_REQUESTS_PER_SECOND", 0); err != nil {
		return s, err
	}
	if v := strings.TrimSpace(os.Getenv("BRONZE_S3_PATH_STYLE")); v != "" {
		if s.BronzeS3PathStyle, err = strconv.ParseBool(v); err != nil {
			return s, errs.Errorf(errs.KindConfiguration, "BRONZE_S3_PATH_STYLE: %v", err)
		}
	}
	return s, nil
}

// Validate checks that the settings are usable by the core.
func (s Settings) Validate() error {
	if s.DatabaseURL == "" {
		return errs.E(errs.KindConfiguration, "validate settings", ErrMissingDatabaseURL)
	}
	if !ibgeCodeRe.MatchString(s.MunicipalityIBGECode) {
		return errs.Errorf(errs.KindConfiguration, "MUNICIPALITY_IBGE_CODE must have 7 digits (got %q)", s.MunicipalityIBGECode)
	}
	if err := validate.Struct(s); err != nil {
		return errs.E(errs.KindConfiguration, "validate settings", err)
	}
	return nil
}

func (s Settings) BronzeRoot() string    { return filepath.Join(s.DataRoot, "bronze") }
func (s Settings) ManifestsRoot() string { return filepath.Join(s.DataRoot, "manifests") }
func (s Settings) ManualRoot() string    { return filepath.Join(s.DataRoot, "manual") }
func (s Settings) BootstrapRoot() string { return filepath.Join(s.DataRoot, "raw", "bootstrap") }
func (s Settings) ReportsRoot() string   { return filepath.Join(s.DataRoot, "reports") }

// CatalogPath returns the per-connector catalog YAML path.
func (s Settings) CatalogPath(job string) string {
	return filepath.Join(s.ConfigRoot, "catalogs", job+".yml")
}

func (s Settings) RegistryPath() string   { return filepath.Join(s.ConfigRoot, "connectors.yml") }
func (s Settings) ThresholdsPath() string { return filepath.Join(s.ConfigRoot, "quality_thresholds.yml") }
func (s Settings) ContractsPath() string  { return filepath.Join(s.ConfigRoot, "schema_contracts.yml") }

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errs.Errorf(errs.KindConfiguration, "%s: %v", key, err)
	}
	return n, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errs.Errorf(errs.KindConfiguration, "%s: %v", key, err)
	}
	return f, nil
}

func envSeconds(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, errs.Errorf(errs.KindConfiguration, "%s: %v", key, err)
	}
	return time.Duration(f * float64(time.Second)), nil
}

// String redacts the DSN so settings can be logged.
func (s Settings) String() string {
	dsn := "<unset>"
	if s.DatabaseURL != "" {
		dsn = "<redacted>"
	}
	return fmt.Sprintf("municipality=%s data_root=%s config_root=%s database=%s", s.MunicipalityIBGECode, s.DataRoot, s.ConfigRoot, dsn)
}
