// Package config loads and guards video.json: a
// single-writer, many-reader store of named output presets.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/viper"

	"github.com/nomusic/nomusic/domain/model"
)

// PresetManager owns the process-wide PresetStore, loaded once at
// startup via viper and mutated only through Update: single-writer,
// many-reader.
type PresetManager struct {
	mu       sync.RWMutex
	store    *model.PresetStore
	v        *viper.Viper
	filePath string
}

// NewPresetManager loads filePath (video.json) via viper, falling back
// to DefaultPresetStore if the file does not exist yet.
func NewPresetManager(filePath string) (*PresetManager, error) {
	v := viper.New()
	v.SetConfigFile(filePath)
	v.SetConfigType("json")

	m := &PresetManager{v: v, filePath: filePath}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok || os.IsNotExist(err) {
			m.store = model.DefaultPresetStore()
			return m, nil
		}
		return nil, err
	}

	var s model.PresetStore
	if err := v.Unmarshal(&s); err != nil {
		return nil, err
	}
	if s.Presets == nil {
		s.Presets = model.DefaultPresetStore().Presets
	}
	m.store = &s
	return m, nil
}

// Resolve returns the effective Preset for name (or the current
// preset, if name is empty).
func (m *PresetManager) Resolve(name string) (model.Preset, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.store.Resolve(name)
}

// Snapshot returns a copy of the whole store for inspection (e.g. a
// config-show CLI command).
func (m *PresetManager) Snapshot() model.PresetStore {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return *m.store
}

// Update applies mutate to the store under the single-writer lock and
// persists the result atomically.
func (m *PresetManager) Update(mutate func(*model.PresetStore)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	mutate(m.store)
	return m.writeLocked()
}

func (m *PresetManager) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.filePath), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(m.store, "", "  ")
	if err != nil {
		return err
	}
	tmpPath := m.filePath + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmpPath, m.filePath)
}
