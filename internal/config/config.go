// Package config implements C6's config store: a JSON file at
// {appData}/config.json, loaded at startup, written atomically on every
// in-process mutation, and hot-reloaded on external edits via fsnotify.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"hitomidl/internal/domain"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const fileName = "config.json"

// Store owns the process-wide Config and keeps it in sync with disk.
type Store struct {
	mu   sync.Mutex
	cfg  *domain.Config
	path string // directory containing config.json
}

// New loads (or creates with defaults) config.json under appDataDir.
func New(appDataDir string) (*Store, error) {
	if err := os.MkdirAll(appDataDir, 0o755); err != nil {
		return nil, domain.NewIOError("could not create config directory", err)
	}

	s := &Store{path: appDataDir}

	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigName("config")
	v.AddConfigPath(appDataDir)
	setDefaults(v, appDataDir)

	cfgPath := filepath.Join(appDataDir, fileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		s.cfg = domain.Defaults(appDataDir)
		if err := s.writeAtomic(s.cfg); err != nil {
			return nil, err
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, domain.NewIOError("could not read config.json", err)
	}

	cfg := domain.Defaults(appDataDir)
	if err := v.Unmarshal(cfg); err != nil {
		return nil, domain.NewParseError("could not parse config.json", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s.cfg = cfg
	return s, nil
}

func setDefaults(v *viper.Viper, appDataDir string) {
	d := domain.Defaults(appDataDir)
	v.SetDefault("downloadDir", d.DownloadDir)
	v.SetDefault("exportDir", d.ExportDir)
	v.SetDefault("downloadFormat", d.DownloadFormat)
	v.SetDefault("proxyMode", d.ProxyMode)
	v.SetDefault("proxyHost", d.ProxyHost)
	v.SetDefault("proxyPort", d.ProxyPort)
	v.SetDefault("dirFmt", d.DirFmt)
	v.SetDefault("enableFileLogger", d.EnableFileLogger)
	v.SetDefault("logMaxSize", d.LogMaxSize)
	v.SetDefault("logMaxBackups", d.LogMaxBackups)
}

// Get returns a copy of the current config.
func (s *Store) Get() domain.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.cfg
}

// Save validates and persists cfg, replacing the in-memory copy only after
// the bytes are durably on disk, per the save-then-emit ordering in §5.
func (s *Store) Save(cfg domain.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := s.writeAtomic(&cfg); err != nil {
		return err
	}

	s.mu.Lock()
	s.cfg = &cfg
	s.mu.Unlock()

	return nil
}

// writeAtomic serialises cfg and replaces config.json via temp+rename, so
// a reader never observes a partially-written file.
func (s *Store) writeAtomic(cfg *domain.Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return domain.NewIOError("could not marshal config", err)
	}

	cfgPath := filepath.Join(s.path, fileName)
	tmp, err := os.CreateTemp(s.path, "config-*.json.tmp")
	if err != nil {
		return domain.NewIOError("could not create temp config file", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewIOError("could not write temp config file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return domain.NewIOError("could not flush temp config file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return domain.NewIOError("could not close temp config file", err)
	}

	if err := os.Rename(tmpPath, cfgPath); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(domain.NewIOError("could not replace config.json", err), "atomic rename")
	}

	return nil
}

// Watch installs an fsnotify watcher (via viper.WatchConfig) that reloads
// config.json whenever it is modified externally, invoking onChange with
// the freshly loaded config (§4.6, §6 configChangedEvent).
func (s *Store) Watch(onChange func(domain.Config)) error {
	v := viper.New()
	v.SetConfigType("json")
	v.SetConfigName("config")
	v.AddConfigPath(s.path)
	setDefaults(v, s.path)

	if err := v.ReadInConfig(); err != nil {
		return domain.NewIOError("could not read config.json for watch", err)
	}

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg := domain.Defaults(s.path)
		if err := v.Unmarshal(cfg); err != nil {
			return
		}
		if err := cfg.Validate(); err != nil {
			return
		}

		s.mu.Lock()
		s.cfg = cfg
		s.mu.Unlock()

		onChange(*cfg)
	})

	return nil
}
