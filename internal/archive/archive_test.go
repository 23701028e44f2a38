package archive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	got, err := Expand("{base}/{field}/image.fits", Vars{"base": "https://example.org", "field": "F1"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.org/F1/image.fits", got)

	_, err = Expand("{base}/{plate}", Vars{"base": "x"})
	assert.ErrorIs(t, err, ErrUnknownPlaceholder)

	_, err = Expand("{base/x", Vars{"base": "x"})
	assert.ErrorIs(t, err, ErrMalformedTemplate)

	_, err = Expand("base}/x", Vars{})
	assert.ErrorIs(t, err, ErrMalformedTemplate)
}

func TestPlaceholders(t *testing.T) {
	names, err := Placeholders("manga-{plate}-{ifu}-LOGCUBE-{daptype}-{plate}")
	require.NoError(t, err)
	assert.Equal(t, []string{"plate", "ifu", "daptype"}, names)
}

func TestBuiltinLoTSSChains(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	vars := Vars{"base": "https://lofar-surveys.org/downloads", "field": "P000+23"}

	chain, err := reg.Chain(MosaicChain...)
	require.NoError(t, err)
	targets, err := chain.Expand(vars)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "https://lofar-surveys.org/downloads/DR3/mosaics/P000+23/mosaic-blanked.fits", targets[0].URL)
	assert.Equal(t, "https://lofar-surveys.org/downloads/DR2/mosaics/P000+23/mosaic-blanked.fits", targets[1].URL)
	assert.Equal(t, "P000+23_high_mosaic.fits", targets[0].Key)
	assert.Equal(t, targets[0].Key, targets[1].Key)
	assert.Equal(t, "DR2", targets[1].Release)

	chain, err = reg.Chain(RMSChain...)
	require.NoError(t, err)
	targets, err = chain.Expand(vars)
	require.NoError(t, err)
	assert.Equal(t, "https://lofar-surveys.org/downloads/DR3/mosaics/P000+23/mosaic-blanked--final.rms.fits", targets[0].URL)
	assert.Equal(t, "https://lofar-surveys.org/downloads/DR2/mosaics/P000+23/mosaic.rms.fits", targets[1].URL)
	assert.Equal(t, "P000+23_rms.fits", targets[1].Key)
}

func TestBuiltinMaNGA(t *testing.T) {
	reg, err := NewRegistry(nil)
	require.NoError(t, err)

	vars := Vars{"base": "https://data.sdss.org/sas", "plate": "8485", "ifu": "1901", "daptype": "SPX"}

	res, err := reg.Get(MaNGADAPLogcube)
	require.NoError(t, err)
	tgt, err := res.Expand(vars)
	require.NoError(t, err)
	assert.Equal(t,
		"https://data.sdss.org/sas/dr17/manga/spectro/analysis/v3_1_1/3.1.0/SPX-MILESHC-MASTARSSP/8485/1901/manga-8485-1901-LOGCUBE-SPX-MILESHC-MASTARSSP.fits.gz",
		tgt.URL)
	assert.Equal(t, "manga-8485-1901-LOGCUBE-SPX-MILESHC-MASTARSSP.fits.gz", tgt.Key)
	assert.Equal(t, SDSS, tgt.Archive)

	res, err = reg.Get(MaNGAPipe3DCube)
	require.NoError(t, err)
	tgt, err = res.Expand(vars)
	require.NoError(t, err)
	assert.Equal(t,
		"https://data.sdss.org/sas/dr17/manga/spectro/pipe3d/v3_1_1/3.1.1/8485/manga-8485-1901.Pipe3D.cube.fits.gz",
		tgt.URL)
	assert.Equal(t, "manga-8485-1901.Pipe3D.cube.fits.gz", tgt.Key)
}

func TestRegistryOverrides(t *testing.T) {
	reg, err := NewRegistry(map[string]Override{
		string(LoTSSDR3Mosaic): {URL: "{base}/{field}/image.fits", Key: "{field}_image.fits"},
	})
	require.NoError(t, err)

	res, err := reg.Get(LoTSSDR3Mosaic)
	require.NoError(t, err)
	tgt, err := res.Expand(Vars{"base": "http://mirror", "field": "F1"})
	require.NoError(t, err)
	assert.Equal(t, "http://mirror/F1/image.fits", tgt.URL)
	assert.Equal(t, "F1_image.fits", tgt.Key)

	_, err = NewRegistry(map[string]Override{"lotss-dr4-mosaic": {URL: "{base}"}})
	assert.Error(t, err)

	_, err = NewRegistry(map[string]Override{string(MaNGAPipe3DCube): {URL: "{base}/{field}"}})
	assert.ErrorIs(t, err, ErrUnknownPlaceholder)
}

func TestChainRejectsDivergingKeys(t *testing.T) {
	reg, err := NewRegistry(map[string]Override{
		string(LoTSSDR2Mosaic): {Key: "{field}_dr2.fits"},
	})
	require.NoError(t, err)

	chain, err := reg.Chain(MosaicChain...)
	require.NoError(t, err)
	_, err = chain.Expand(Vars{"base": "b", "field": "F"})
	assert.ErrorIs(t, err, ErrMalformedTemplate)
}
