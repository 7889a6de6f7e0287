package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGoldie(t *testing.T) *goldie.Goldie {
	t.Helper()
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

func TestNumber_AnnotatesMarkerLinesOnly(t *testing.T) {
	c := Number([]string{
		"# comment --lua-desync=not-a-strategy",
		"",
		"--lua-desync=fake",
		"--filter-tcp=443",
		"--lua-desync=split:pos=2",
	}, "")

	assert.Equal(t, []string{
		"# comment --lua-desync=not-a-strategy",
		"",
		"--lua-desync=fake:strategy=1",
		"--filter-tcp=443",
		"--lua-desync=split:pos=2:strategy=2",
	}, c.Lines())
	assert.Equal(t, 2, c.Count())
	assert.Equal(t, []Entry{
		{Number: 1, Args: "--lua-desync=fake"},
		{Number: 2, Args: "--lua-desync=split:pos=2"},
	}, c.Entries())
}

func TestNumber_Deterministic(t *testing.T) {
	lines := []string{"--lua-desync=a", "x", "--lua-desync=b", "--lua-desync=c"}
	a := Number(lines, DefaultMarker).Bytes()
	b := Number(lines, DefaultMarker).Bytes()
	assert.Equal(t, a, b)
}

func TestNumber_MarkerCountEqualsDistinctNumbers(t *testing.T) {
	var lines []string
	markers := 0
	for i := 0; i < 50; i++ {
		switch i % 3 {
		case 0:
			lines = append(lines, "--lua-desync=fake:repeats="+strings.Repeat("1", i%5+1))
			markers++
		case 1:
			lines = append(lines, "# note")
		default:
			lines = append(lines, "")
		}
	}

	c := Number(lines, DefaultMarker)
	distinct := map[int]bool{}
	for _, e := range c.Entries() {
		distinct[e.Number] = true
	}
	assert.Len(t, distinct, markers)
	assert.Equal(t, markers, c.Count())
}

func TestNumber_RenumberingIsIdempotent(t *testing.T) {
	first := Number([]string{"--lua-desync=a", "--lua-desync=b"}, DefaultMarker)
	second := Number(first.Lines(), DefaultMarker)
	assert.Equal(t, first.Lines(), second.Lines())
}

func TestNumber_CustomMarker(t *testing.T) {
	c := Number([]string{"--dpi-desync=fake", "--lua-desync=x"}, "--dpi-desync=")
	assert.Equal(t, []string{"--dpi-desync=fake:strategy=1", "--lua-desync=x"}, c.Lines())
}

func TestCatalog_Lookup(t *testing.T) {
	c := Number([]string{"--lua-desync=a", "--lua-desync=b"}, DefaultMarker)

	e, ok := c.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "--lua-desync=b", e.Args)

	_, ok = c.Lookup(0)
	assert.False(t, ok)
	_, ok = c.Lookup(3)
	assert.False(t, ok)
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.txt"), DefaultMarker)
	assert.ErrorIs(t, err, ErrTemplateMissing)
}

func TestLoad_Golden(t *testing.T) {
	c, err := Load("testdata/tls-template.txt", DefaultMarker)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "tls-catalog", c.Bytes())
}

func TestBuildSet_TLSAndHTTP(t *testing.T) {
	out := t.TempDir()
	res, err := BuildSet(BuildOptions{
		TLSTemplate:  "testdata/tls-template.txt",
		HTTPTemplate: "testdata/http-template.txt",
		OutputDir:    out,
	})
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 3, res.TLS.Count())
	require.NotNil(t, res.HTTP)
	assert.Equal(t, 2, res.HTTP.Count())

	conf, err := os.ReadFile(res.ConfigPath)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "engine-conf", conf)

	assert.FileExists(t, filepath.Join(out, TLSCatalogFile))
	assert.FileExists(t, filepath.Join(out, HTTPCatalogFile))
	assert.NoFileExists(t, filepath.Join(out, ConfigFile+".tmp"))
}

func TestBuildSet_MissingHTTPDegradesToTLSOnly(t *testing.T) {
	out := t.TempDir()
	res, err := BuildSet(BuildOptions{
		TLSTemplate:  "testdata/tls-template.txt",
		HTTPTemplate: filepath.Join(out, "missing-http.txt"),
		OutputDir:    out,
	})
	require.NoError(t, err)
	assert.Nil(t, res.HTTP)
	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], "TLS only")

	conf, err := os.ReadFile(res.ConfigPath)
	require.NoError(t, err)
	newGoldie(t).Assert(t, "tls-catalog", conf)
}

func TestBuildSet_MissingTLSIsFatal(t *testing.T) {
	out := t.TempDir()
	_, err := BuildSet(BuildOptions{
		TLSTemplate:  filepath.Join(out, "missing-tls.txt"),
		HTTPTemplate: "testdata/http-template.txt",
		OutputDir:    out,
	})
	assert.ErrorIs(t, err, ErrTemplateMissing)
}
