package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/logging"
)

// ErrConfiguration marks errors that must abort a run before any network
// activity: bad settings, missing catalogs, missing destination directory.
var ErrConfiguration = errors.New("configuration error")

// Job names.
const (
	JobLoTSSDR3    = "lotss-dr3"
	JobMaNGACube   = "manga-cube"
	JobMaNGAPipe3D = "manga-pipe3d"
)

// DefaultUserAgent is the browser identifier the archives accept.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/130.0.0.0 Safari/537.36 Edg/130.0.0.0"

type Config struct {
	Job    string         `yaml:"job"`
	Sample int            `yaml:"sample"` // -1 = all requests, otherwise only this index
	Log    logging.Config `yaml:"log"`

	Catalogs   CatalogsConfig            `yaml:"catalogs"`
	Output     OutputConfig              `yaml:"output"`
	HTTP       HTTPConfig                `yaml:"http"`
	Archives   ArchivesConfig            `yaml:"archives"`
	Match      MatchConfig               `yaml:"match"`
	MaNGA      MaNGAConfig               `yaml:"manga"`
	Templates  map[string]TemplateConfig `yaml:"templates"`
	Checkpoint CheckpointConfig          `yaml:"checkpoint"`
	Audit      AuditConfig               `yaml:"audit"`
	Metadata   MetadataConfig            `yaml:"metadata"`
	Metrics    MetricsConfig             `yaml:"metrics"`
	Report     ReportConfig              `yaml:"report"`
}

type CatalogsConfig struct {
	Footprints string `yaml:"footprints"` // LoTSS field list (html or csv)
	Targets    string `yaml:"targets"`    // DAPall FITS
	Pipe3D     string `yaml:"pipe3d"`     // Pipe3D summary FITS
}

type OutputConfig struct {
	Backend  string `yaml:"backend"` // "local" | "s3" | "gcs" | "blob"
	Dir      string `yaml:"dir"`
	Bucket   string `yaml:"bucket"`
	URL      string `yaml:"url"` // raw gocloud bucket URL for "blob"
	Prefix   string `yaml:"prefix"`
	Endpoint string `yaml:"endpoint"`
	Region   string `yaml:"region"`
}

type HTTPConfig struct {
	Timeout    time.Duration `yaml:"timeout"`
	ChunkSize  int           `yaml:"chunk_size"`
	UserAgent  string        `yaml:"user_agent"`
	RateLimit  float64       `yaml:"rate_limit"` // requests per second, 0 = unlimited
	VerifyGzip bool          `yaml:"verify_gzip"`
}

type ArchiveConfig struct {
	BaseURL  string `yaml:"base_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type ArchivesConfig struct {
	LoTSS ArchiveConfig `yaml:"lotss"`
	SDSS  ArchiveConfig `yaml:"sdss"`
}

type MatchConfig struct {
	RadiusDeg float64 `yaml:"radius_deg"`
}

type MaNGAConfig struct {
	DAPType        string `yaml:"dap_type"` // "SPX" | "VOR10" | "HYB10"
	RequireDAPDone bool   `yaml:"require_dapdone"`
}

// TemplateConfig overrides the URL and/or key template of a resource kind.
type TemplateConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

type CheckpointConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Resume  bool   `yaml:"resume"`
}

type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Dir      string `yaml:"dir"`
	Endpoint string `yaml:"endpoint"`
}

type MetadataConfig struct {
	Driver string `yaml:"driver"` // "" | "postgres" | "sqlite"
	DSN    string `yaml:"dsn"`
	Strict bool   `yaml:"strict"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

type ReportConfig struct {
	ParquetPath string `yaml:"parquet_path"`
}

// Defaults returns a Config with every optional setting filled in.
func Defaults() Config {
	return Config{
		Job:    JobLoTSSDR3,
		Sample: -1,
		Log:    logging.Config{Format: "text", Level: "info"},
		Output: OutputConfig{Backend: "local"},
		HTTP: HTTPConfig{
			Timeout:   540 * time.Second,
			ChunkSize: 8192,
			UserAgent: DefaultUserAgent,
		},
		Archives: ArchivesConfig{
			LoTSS: ArchiveConfig{BaseURL: "https://lofar-surveys.org/downloads"},
			SDSS:  ArchiveConfig{BaseURL: "https://data.sdss.org/sas"},
		},
		Match: MatchConfig{RadiusDeg: 2.2},
		MaNGA: MaNGAConfig{DAPType: "SPX", RequireDAPDone: true},
		Checkpoint: CheckpointConfig{
			Dir: "./state",
		},
		Audit: AuditConfig{
			Dir: "./audit",
		},
		Metrics: MetricsConfig{Address: ":9090"},
	}
}

// Load reads the YAML file at path (optional), applies environment
// overrides, then the given overrides (command-line flags), and validates
// the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: read %s: %v", ErrConfiguration, path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("%w: parse %s: %v", ErrConfiguration, path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks settings that can be verified without touching the
// filesystem or the network.
func (c Config) Validate() error {
	var problems []string

	switch c.Job {
	case JobLoTSSDR3:
		if c.Catalogs.Footprints == "" {
			problems = append(problems, "catalogs.footprints is required for "+c.Job)
		}
		if c.Catalogs.Targets == "" {
			problems = append(problems, "catalogs.targets is required for "+c.Job)
		}
		if !(c.Match.RadiusDeg > 0) || math.IsInf(c.Match.RadiusDeg, 0) {
			problems = append(problems, fmt.Sprintf("match.radius_deg must be positive, got %v", c.Match.RadiusDeg))
		}
	case JobMaNGACube:
		if c.Catalogs.Targets == "" {
			problems = append(problems, "catalogs.targets is required for "+c.Job)
		}
		switch c.MaNGA.DAPType {
		case "SPX", "VOR10", "HYB10":
		default:
			problems = append(problems, fmt.Sprintf("manga.dap_type must be SPX, VOR10 or HYB10, got %q", c.MaNGA.DAPType))
		}
	case JobMaNGAPipe3D:
		if c.Catalogs.Pipe3D == "" {
			problems = append(problems, "catalogs.pipe3d is required for "+c.Job)
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown job %q", c.Job))
	}

	switch c.Output.Backend {
	case "local":
		if c.Output.Dir == "" {
			problems = append(problems, "output.dir is required for the local backend")
		}
	case "s3", "gcs":
		if c.Output.Bucket == "" {
			problems = append(problems, "output.bucket is required for the "+c.Output.Backend+" backend")
		}
	case "blob":
		if c.Output.URL == "" {
			problems = append(problems, "output.url is required for the blob backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown output backend %q", c.Output.Backend))
	}

	if c.HTTP.Timeout <= 0 {
		problems = append(problems, "http.timeout must be positive")
	}
	if c.HTTP.ChunkSize <= 0 {
		problems = append(problems, "http.chunk_size must be positive")
	}
	if c.HTTP.RateLimit < 0 {
		problems = append(problems, "http.rate_limit must not be negative")
	}
	if c.Sample < -1 {
		problems = append(problems, "sample must be -1 or a request index")
	}

	switch c.Metadata.Driver {
	case "":
	case "postgres", "sqlite":
		if c.Metadata.DSN == "" {
			problems = append(problems, "metadata.dsn is required for driver "+c.Metadata.Driver)
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown metadata driver %q", c.Metadata.Driver))
	}

	if c.Checkpoint.Enabled && c.Checkpoint.Dir == "" {
		problems = append(problems, "checkpoint.dir is required when checkpointing is enabled")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Job = getenvDefault("SKYFETCH_JOB", cfg.Job)
	cfg.Log.Level = getenvDefault("SKYFETCH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getenvDefault("SKYFETCH_LOG_FORMAT", cfg.Log.Format)
	cfg.Catalogs.Footprints = getenvDefault("SKYFETCH_FOOTPRINTS", cfg.Catalogs.Footprints)
	cfg.Catalogs.Targets = getenvDefault("SKYFETCH_TARGETS", cfg.Catalogs.Targets)
	cfg.Catalogs.Pipe3D = getenvDefault("SKYFETCH_PIPE3D", cfg.Catalogs.Pipe3D)
	cfg.Output.Dir = getenvDefault("SKYFETCH_OUTPUT_DIR", cfg.Output.Dir)
	cfg.Metadata.DSN = getenvDefault("SKYFETCH_METADATA_DSN", cfg.Metadata.DSN)

	cfg.Archives.LoTSS.Username = getenvDefault("LOTSS_USERNAME", cfg.Archives.LoTSS.Username)
	cfg.Archives.LoTSS.Password = getenvDefault("LOTSS_PASSWORD", cfg.Archives.LoTSS.Password)
	cfg.Archives.SDSS.Username = getenvDefault("SDSS_USERNAME", cfg.Archives.SDSS.Username)
	cfg.Archives.SDSS.Password = getenvDefault("SDSS_PASSWORD", cfg.Archives.SDSS.Password)

	if v := os.Getenv("SKYFETCH_SAMPLE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: SKYFETCH_SAMPLE: %v", ErrConfiguration, err)
		}
		cfg.Sample = n
	}
	if v := os.Getenv("SKYFETCH_RADIUS_DEG"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%w: SKYFETCH_RADIUS_DEG: %v", ErrConfiguration, err)
		}
		cfg.Match.RadiusDeg = r
	}
	if os.Getenv("SKYFETCH_RESUME") == "true" {
		cfg.Checkpoint.Enabled = true
		cfg.Checkpoint.Resume = true
	}
	return nil
}

func getenvDefault(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
