package config

import (
	"path/filepath"
	"testing"

	"hitomidl/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCreatesDefaultsWhenMissing(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	cfg := store.Get()
	assert.Equal(t, domain.DefaultDirFmt, cfg.DirFmt)
	assert.Equal(t, domain.DownloadFormatWebp.String(), cfg.DownloadFormat)
}

// TestNewDerivesAbsoluteDownloadAndExportDirsFromAppDataDir guards against
// the first-ever config.json persisting downloadDir/exportDir as "": both
// are typed abs path (§3), so a fresh store must anchor them under dir
// rather than leaving the zero value for viper (or a later reload) to
// carry forward.
func TestNewDerivesAbsoluteDownloadAndExportDirsFromAppDataDir(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	cfg := store.Get()
	require.NotEmpty(t, cfg.DownloadDir)
	require.NotEmpty(t, cfg.ExportDir)
	assert.True(t, filepath.IsAbs(cfg.DownloadDir))
	assert.True(t, filepath.IsAbs(cfg.ExportDir))
	assert.Equal(t, filepath.Join(dir, "download"), cfg.DownloadDir)
	assert.Equal(t, filepath.Join(dir, "export"), cfg.ExportDir)
}

func TestSaveRoundTrips(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	want := domain.Config{
		DownloadDir:      "/downloads",
		ExportDir:        "/exports",
		DownloadFormat:   domain.DownloadFormatAvif.String(),
		ProxyMode:        domain.ProxyModeCustom.String(),
		ProxyHost:        "127.0.0.1",
		ProxyPort:        8080,
		DirFmt:           "{title}",
		EnableFileLogger: true,
		LogMaxSize:       10,
		LogMaxBackups:    2,
	}

	require.NoError(t, store.Save(want))

	reloaded, err := New(dir)
	require.NoError(t, err)

	assert.Equal(t, want, reloaded.Get())
}

func TestSaveRejectsOutOfRangePort(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	cfg := store.Get()
	cfg.ProxyPort = 99999

	err = store.Save(cfg)
	require.Error(t, err)
}

func TestSaveRejectsCustomProxyWithoutHost(t *testing.T) {
	dir := t.TempDir()

	store, err := New(dir)
	require.NoError(t, err)

	cfg := store.Get()
	cfg.ProxyMode = domain.ProxyModeCustom.String()
	cfg.ProxyHost = ""

	err = store.Save(cfg)
	require.Error(t, err)
}
