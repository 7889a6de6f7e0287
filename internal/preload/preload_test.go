package preload

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/bypassd/internal/model"
)

func sampleRecords() []model.HistoryRecord {
	return []model.HistoryRecord{
		{Domain: "a.com", Strategy: 3, Counters: model.Counters{Successes: 5, Failures: 1}},
		{Domain: "a.com", Strategy: 7, Counters: model.Counters{Successes: 0, Failures: 4}},
		{Domain: "b.net", Strategy: 12, Counters: model.Counters{Successes: 2, Failures: 0}},
	}
}

func TestRender_Golden(t *testing.T) {
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "history-preload", Render(sampleRecords()))
}

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preload.lua")

	n, err := Write(path, sampleRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, sampleRecords(), got)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_Empty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preload.lua")

	n, err := Write(path, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, err := Read(path)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestRead_EscapedDomain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "preload.lua")
	odd := "we\"ird\\dom\x01ain9.com"

	_, err := Write(path, []model.HistoryRecord{
		{Domain: odd, Strategy: 1, Counters: model.Counters{Successes: 1}},
	})
	require.NoError(t, err)

	got, err := Read(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, odd, got[0].Domain)
}

func TestRead_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"lock preload", `lock_preload("a.com", 3)`},
		{"zero strategy", `history_preload("a.com", 0, 1, 1)`},
		{"negative counter", `history_preload("a.com", 2, -1, 1)`},
		{"wrong type", `history_preload(5, 2, 1, 1)`},
		{"missing args", `history_preload("a.com", 2)`},
		{"stdlib call", `os.exit(1)`},
		{"syntax", `history_preload("a.com", 2, 1, 1`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "preload.lua")
			require.NoError(t, os.WriteFile(path, []byte(tt.body+"\n"), 0o644))

			_, err := Read(path)
			assert.Error(t, err)
		})
	}
}

func TestRead_MissingFile(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "absent.lua"))
	assert.Error(t, err)
}
