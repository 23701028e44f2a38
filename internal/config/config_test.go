package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeYAML(t, `
job: lotss-dr3
catalogs:
  footprints: fields.html
  targets: dapall.fits
output:
  dir: /data/lotss
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 540*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 8192, cfg.HTTP.ChunkSize)
	assert.Equal(t, DefaultUserAgent, cfg.HTTP.UserAgent)
	assert.Equal(t, 2.2, cfg.Match.RadiusDeg)
	assert.Equal(t, -1, cfg.Sample)
	assert.Equal(t, "https://lofar-surveys.org/downloads", cfg.Archives.LoTSS.BaseURL)
	assert.Equal(t, "https://data.sdss.org/sas", cfg.Archives.SDSS.BaseURL)
	assert.Equal(t, "local", cfg.Output.Backend)
	assert.Equal(t, "SPX", cfg.MaNGA.DAPType)
	assert.True(t, cfg.MaNGA.RequireDAPDone)
}

func TestLoadParsesDurationsAndTemplates(t *testing.T) {
	path := writeYAML(t, `
job: manga-pipe3d
catalogs:
  pipe3d: SDSS17Pipe3D.fits
output:
  dir: /data/pipe3d
http:
  timeout: 90s
  rate_limit: 2.5
templates:
  manga-pipe3d-cube:
    url: "{base}/mirror/{plate}-{ifu}.fits.gz"
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 90*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2.5, cfg.HTTP.RateLimit)
	assert.Equal(t, "{base}/mirror/{plate}-{ifu}.fits.gz", cfg.Templates["manga-pipe3d-cube"].URL)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SKYFETCH_JOB", JobMaNGACube)
	t.Setenv("SKYFETCH_TARGETS", "dapall.fits")
	t.Setenv("SKYFETCH_OUTPUT_DIR", "/data/cubes")
	t.Setenv("SKYFETCH_SAMPLE", "3")
	t.Setenv("SDSS_USERNAME", "sdss")
	t.Setenv("SDSS_PASSWORD", "secret")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, JobMaNGACube, cfg.Job)
	assert.Equal(t, "/data/cubes", cfg.Output.Dir)
	assert.Equal(t, 3, cfg.Sample)
	assert.Equal(t, "sdss", cfg.Archives.SDSS.Username)
	assert.Equal(t, "secret", cfg.Archives.SDSS.Password)
}

func TestEnvBadSample(t *testing.T) {
	t.Setenv("SKYFETCH_SAMPLE", "three")
	_, err := Load("")
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestLoadOverridesWinOverFileAndEnv(t *testing.T) {
	t.Setenv("SKYFETCH_SAMPLE", "3")
	path := writeYAML(t, `
job: manga-cube
catalogs:
  targets: dapall.fits
  pipe3d: pipe3d.fits
output:
  dir: /data/cubes
`)
	cfg, err := Load(path, func(c *Config) {
		c.Job = JobMaNGAPipe3D
		c.Sample = -1
	})
	require.NoError(t, err)
	assert.Equal(t, JobMaNGAPipe3D, cfg.Job)
	assert.Equal(t, -1, cfg.Sample)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Defaults()
		cfg.Catalogs.Footprints = "fields.csv"
		cfg.Catalogs.Targets = "dapall.fits"
		cfg.Output.Dir = "/data"
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults with inputs", func(*Config) {}, true},
		{"unknown job", func(c *Config) { c.Job = "lotss-dr4" }, false},
		{"missing footprints", func(c *Config) { c.Catalogs.Footprints = "" }, false},
		{"zero radius", func(c *Config) { c.Match.RadiusDeg = 0 }, false},
		{"negative radius", func(c *Config) { c.Match.RadiusDeg = -1 }, false},
		{"missing output dir", func(c *Config) { c.Output.Dir = "" }, false},
		{"s3 without bucket", func(c *Config) { c.Output.Backend = "s3" }, false},
		{"blob with url", func(c *Config) { c.Output.Backend = "blob"; c.Output.URL = "mem://" }, true},
		{"bad dap type", func(c *Config) { c.Job = JobMaNGACube; c.MaNGA.DAPType = "SPX2" }, false},
		{"zero chunk", func(c *Config) { c.HTTP.ChunkSize = 0 }, false},
		{"sample below -1", func(c *Config) { c.Sample = -2 }, false},
		{"sqlite without dsn", func(c *Config) { c.Metadata.Driver = "sqlite" }, false},
		{"unknown metadata driver", func(c *Config) { c.Metadata.Driver = "mysql"; c.Metadata.DSN = "x" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrConfiguration)
			}
		})
	}
}
