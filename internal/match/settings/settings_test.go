package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeOnlyTouchesSetFields(t *testing.T) {
	base := Defaults()
	setSeconds := 180
	sd := true

	got := base.Merge(Patch{SetDurationSeconds: &setSeconds, SuddenDeath: &sd})

	assert.Equal(t, 180, got.SetDurationSeconds)
	assert.True(t, got.SuddenDeath)
	assert.Equal(t, base.MatchDurationSeconds, got.MatchDurationSeconds)
	assert.Equal(t, base.Alerts, got.Alerts)
	assert.Equal(t, base.Messages, got.Messages)
	assert.Equal(t, base.Voice, got.Voice)
}

func TestMergeEmptyPatchIsIdentity(t *testing.T) {
	base := Defaults()
	assert.True(t, Patch{}.Empty())
	assert.Equal(t, base, base.Merge(Patch{}))
}

func TestValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.Alerts.Whistle = "vuvuzela"
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.SetDurationSeconds = -1
	assert.Error(t, bad.Validate())

	bad = cfg
	bad.Voice.Volume = 1.5
	assert.Error(t, bad.Validate())
}

func TestLoadDefaultsFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	content := "match_duration_seconds: 900\nset_duration_seconds: 180\nwhistle: double\nsudden_death_message: \"Golden point!\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := LoadDefaults(path)
	require.NoError(t, err)
	assert.Equal(t, 900, cfg.MatchDurationSeconds)
	assert.Equal(t, 180, cfg.SetDurationSeconds)
	assert.Equal(t, WhistleDouble, cfg.Alerts.Whistle)
	assert.Equal(t, "Golden point!", cfg.Messages.SuddenDeath)
	assert.Equal(t, Defaults().Messages.SetEnded, cfg.Messages.SetEnded)
}

func TestLoadDefaultsRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "defaults.yaml")
	require.NoError(t, os.WriteFile(path, []byte("whistle: kazoo\n"), 0o600))

	_, err := LoadDefaults(path)
	assert.Error(t, err)
}

func TestLoadDefaultsEmptyPath(t *testing.T) {
	cfg, err := LoadDefaults("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}
