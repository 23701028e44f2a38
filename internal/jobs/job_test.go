package jobs

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/archive"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/catalog/catalogtest"
	"github.com/withObsrvr/obsrvr-sky-fetcher/internal/config"
)

func plan(t *testing.T, cfg config.Config) Plan {
	t.Helper()
	reg, err := archive.NewRegistry(nil)
	require.NoError(t, err)
	job, err := NewJob(cfg, reg)
	require.NoError(t, err)
	p, err := job.Plan(context.Background())
	require.NoError(t, err)
	return p
}

func TestLoTSSPlanFieldsInFirstSeenOrder(t *testing.T) {
	cfg := baseConfig(t, config.JobLoTSSDR3, "https://lofar.example")
	cfg.Archives.LoTSS.Username = "surveys"
	cfg.Archives.LoTSS.Password = "secret"
	cfg.Catalogs.Footprints = writeFootprints(t, "Field name,RA,Dec\nP1,10.0,20.0\nP2,50.0,20.0\nP3,90.0,20.0\n")
	cfg.Catalogs.Targets = writeDAPall(t,
		catalogtest.DAPallRow(1, 1, 50.5, 20.0, true),
		catalogtest.DAPallRow(1, 2, 10.5, 20.0, true),
		catalogtest.DAPallRow(1, 3, 49.5, 20.0, true),
		catalogtest.DAPallRow(1, 4, 300.0, -60.0, true),
	)

	p := plan(t, cfg)
	assert.Equal(t, 4, p.Targets)
	assert.Equal(t, 3, p.Covered)
	require.Len(t, p.Requests, 2)
	assert.Equal(t, "P2", p.Requests[0].Target)
	assert.Equal(t, "P1", p.Requests[1].Target)

	chains := p.Requests[0].Chains
	require.Len(t, chains, 2)
	mosaic, rms := chains[0], chains[1]
	require.Len(t, mosaic, 2)
	assert.Equal(t, "https://lofar.example/DR3/mosaics/P2/mosaic-blanked.fits", mosaic[0].URL)
	assert.Equal(t, "https://lofar.example/DR2/mosaics/P2/mosaic-blanked.fits", mosaic[1].URL)
	assert.Equal(t, "P2_high_mosaic.fits", mosaic[0].Key)
	assert.Equal(t, mosaic[0].Key, mosaic[1].Key)
	assert.Equal(t, "DR3", mosaic[0].Release)
	require.NotNil(t, mosaic[0].Auth)
	assert.Equal(t, "surveys", mosaic[0].Auth.Username)

	require.Len(t, rms, 2)
	assert.Equal(t, "https://lofar.example/DR3/mosaics/P2/mosaic-blanked--final.rms.fits", rms[0].URL)
	assert.Equal(t, "https://lofar.example/DR2/mosaics/P2/mosaic.rms.fits", rms[1].URL)
	assert.Equal(t, "P2_rms.fits", rms[0].Key)
}

func TestMaNGACubePlan(t *testing.T) {
	cfg := baseConfig(t, config.JobMaNGACube, "https://sas.example")
	cfg.MaNGA.DAPType = "HYB10"
	cfg.Catalogs.Targets = writeDAPall(t,
		catalogtest.DAPallRow(8485, 1901, 0, 0, true),
		catalogtest.DAPallRow(8485, 1902, 0, 0, false),
	)

	p := plan(t, cfg)
	require.Len(t, p.Requests, 1)
	task := p.Requests[0].Chains[0][0]
	assert.Equal(t, "8485-1901", p.Requests[0].Target)
	assert.Equal(t, "https://sas.example/dr17/manga/spectro/analysis/v3_1_1/3.1.0/HYB10-MILESHC-MASTARSSP/8485/1901/"+
		"manga-8485-1901-LOGCUBE-HYB10-MILESHC-MASTARSSP.fits.gz", task.URL)
	assert.Equal(t, "manga-8485-1901-LOGCUBE-HYB10-MILESHC-MASTARSSP.fits.gz", task.Key)
	assert.Nil(t, task.Auth)

	cfg.MaNGA.RequireDAPDone = false
	p = plan(t, cfg)
	assert.Len(t, p.Requests, 2)
}

func TestPipe3DPlan(t *testing.T) {
	cfg := baseConfig(t, config.JobMaNGAPipe3D, "https://sas.example")
	cfg.Catalogs.Pipe3D = writePipe3D(t, []any{int32(7443), int32(12701)})

	p := plan(t, cfg)
	require.Len(t, p.Requests, 1)
	task := p.Requests[0].Chains[0][0]
	assert.Equal(t, "https://sas.example/dr17/manga/spectro/pipe3d/v3_1_1/3.1.1/7443/manga-7443-12701.Pipe3D.cube.fits.gz", task.URL)
	assert.Equal(t, "manga-7443-12701.Pipe3D.cube.fits.gz", task.Key)
	assert.Equal(t, "manga-pipe3d-cube", task.Kind)
}

func TestNewJobUnknown(t *testing.T) {
	reg, err := archive.NewRegistry(nil)
	require.NoError(t, err)
	_, err = NewJob(config.Config{Job: "vlass"}, reg)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}
