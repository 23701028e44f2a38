// Package archive describes where each kind of remote file lives and where
// it lands locally.
package archive

import (
	"fmt"
	"sort"
)

type Kind string

const (
	LoTSSDR3Mosaic  Kind = "lotss-dr3-mosaic"
	LoTSSDR2Mosaic  Kind = "lotss-dr2-mosaic"
	LoTSSDR3RMS     Kind = "lotss-dr3-rms"
	LoTSSDR2RMS     Kind = "lotss-dr2-rms"
	MaNGADAPLogcube Kind = "manga-dap-logcube"
	MaNGAPipe3DCube Kind = "manga-pipe3d-cube"
)

// Archives.
const (
	LoTSS = "lotss"
	SDSS  = "sdss"
)

// Resource is one remote file variant. URL and Key are templates; Key is
// relative to the destination root.
type Resource struct {
	Kind    Kind
	Archive string
	Release string
	URL     string
	Key     string
}

// Target is a Resource with its templates expanded.
type Target struct {
	Kind    Kind
	Archive string
	Release string
	URL     string
	Key     string
}

func (r Resource) Expand(vars Vars) (Target, error) {
	url, err := Expand(r.URL, vars)
	if err != nil {
		return Target{}, fmt.Errorf("%s url: %w", r.Kind, err)
	}
	key, err := Expand(r.Key, vars)
	if err != nil {
		return Target{}, fmt.Errorf("%s key: %w", r.Kind, err)
	}
	return Target{Kind: r.Kind, Archive: r.Archive, Release: r.Release, URL: url, Key: key}, nil
}

// Chain is a primary resource followed by fallbacks that write the same key.
type Chain []Resource

func (c Chain) Expand(vars Vars) ([]Target, error) {
	targets := make([]Target, 0, len(c))
	for _, r := range c {
		t, err := r.Expand(vars)
		if err != nil {
			return nil, err
		}
		if len(targets) > 0 && t.Key != targets[0].Key {
			return nil, fmt.Errorf("%w: chain %s writes %q but fallback %s writes %q",
				ErrMalformedTemplate, targets[0].Kind, targets[0].Key, t.Kind, t.Key)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

var builtin = []Resource{
	{
		Kind: LoTSSDR3Mosaic, Archive: LoTSS, Release: "DR3",
		URL: "{base}/DR3/mosaics/{field}/mosaic-blanked.fits",
		Key: "{field}_high_mosaic.fits",
	},
	{
		Kind: LoTSSDR2Mosaic, Archive: LoTSS, Release: "DR2",
		URL: "{base}/DR2/mosaics/{field}/mosaic-blanked.fits",
		Key: "{field}_high_mosaic.fits",
	},
	{
		Kind: LoTSSDR3RMS, Archive: LoTSS, Release: "DR3",
		URL: "{base}/DR3/mosaics/{field}/mosaic-blanked--final.rms.fits",
		Key: "{field}_rms.fits",
	},
	{
		Kind: LoTSSDR2RMS, Archive: LoTSS, Release: "DR2",
		URL: "{base}/DR2/mosaics/{field}/mosaic.rms.fits",
		Key: "{field}_rms.fits",
	},
	{
		Kind: MaNGADAPLogcube, Archive: SDSS, Release: "DR17",
		URL: "{base}/dr17/manga/spectro/analysis/v3_1_1/3.1.0/{daptype}-MILESHC-MASTARSSP/{plate}/{ifu}/" +
			"manga-{plate}-{ifu}-LOGCUBE-{daptype}-MILESHC-MASTARSSP.fits.gz",
		Key: "manga-{plate}-{ifu}-LOGCUBE-{daptype}-MILESHC-MASTARSSP.fits.gz",
	},
	{
		Kind: MaNGAPipe3DCube, Archive: SDSS, Release: "DR17",
		URL: "{base}/dr17/manga/spectro/pipe3d/v3_1_1/3.1.1/{plate}/manga-{plate}-{ifu}.Pipe3D.cube.fits.gz",
		Key: "manga-{plate}-{ifu}.Pipe3D.cube.fits.gz",
	},
}

// Override replaces the URL and/or key template of a built-in kind.
type Override struct {
	URL string
	Key string
}

// Registry resolves kinds to resources, built-ins first, overrides applied.
type Registry struct {
	resources map[Kind]Resource
}

// NewRegistry validates overrides against the built-in kinds. An override
// may only use placeholders its built-in kind already uses.
func NewRegistry(overrides map[string]Override) (*Registry, error) {
	reg := &Registry{resources: make(map[Kind]Resource, len(builtin))}
	for _, r := range builtin {
		reg.resources[r.Kind] = r
	}

	names := make([]string, 0, len(overrides))
	for name := range overrides {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		o := overrides[name]
		r, ok := reg.resources[Kind(name)]
		if !ok {
			return nil, fmt.Errorf("template override for unknown kind %q", name)
		}
		allowed, err := placeholderSet(r.URL, r.Key)
		if err != nil {
			return nil, err
		}
		if o.URL != "" {
			r.URL = o.URL
		}
		if o.Key != "" {
			r.Key = o.Key
		}
		used, err := placeholderSet(r.URL, r.Key)
		if err != nil {
			return nil, fmt.Errorf("template override %s: %w", name, err)
		}
		for p := range used {
			if _, ok := allowed[p]; !ok {
				return nil, fmt.Errorf("template override %s: %w {%s}", name, ErrUnknownPlaceholder, p)
			}
		}
		reg.resources[r.Kind] = r
	}
	return reg, nil
}

func placeholderSet(tmpls ...string) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	for _, t := range tmpls {
		names, err := Placeholders(t)
		if err != nil {
			return nil, err
		}
		for _, n := range names {
			set[n] = struct{}{}
		}
	}
	return set, nil
}

func (r *Registry) Get(kind Kind) (Resource, error) {
	res, ok := r.resources[kind]
	if !ok {
		return Resource{}, fmt.Errorf("unknown resource kind %q", kind)
	}
	return res, nil
}

// Chain builds a fallback chain from kinds, primary first.
func (r *Registry) Chain(kinds ...Kind) (Chain, error) {
	chain := make(Chain, 0, len(kinds))
	for _, k := range kinds {
		res, err := r.Get(k)
		if err != nil {
			return nil, err
		}
		chain = append(chain, res)
	}
	return chain, nil
}

// Fallback chains of the LoTSS job.
var (
	MosaicChain = []Kind{LoTSSDR3Mosaic, LoTSSDR2Mosaic}
	RMSChain    = []Kind{LoTSSDR3RMS, LoTSSDR2RMS}
)
