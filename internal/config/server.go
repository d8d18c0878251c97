package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds process-wide settings: listen address, directory
// layout and worker pool sizes. Loaded via viper so the same NOMUSIC_*
// env vars and an optional config file both work (mirrors the way
// PresetManager loads video.json).
type ServerConfig struct {
	Addr  string `mapstructure:"addr"`
	State string `mapstructure:"state_dir"` // parent dir for download_queue.json, library.json, video.json

	TempRoot    string `mapstructure:"temp_root"`
	DownloadDir string `mapstructure:"download_dir"`
	NomusicDir  string `mapstructure:"nomusic_dir"`
	ToolsDir    string `mapstructure:"tools_dir"`

	SeparationWorkers int    `mapstructure:"separation_workers"`
	DownloadWorkers   int    `mapstructure:"download_workers"`
	DemucsWorkers     int    `mapstructure:"demucs_workers"`
	FolderWorkers     int    `mapstructure:"folder_workers"`
	DemucsModel       string `mapstructure:"demucs_model"`

	Development bool `mapstructure:"development"`
}

// LoadServerConfig reads NOMUSIC_*-prefixed environment variables (and
// configFile, when non-empty) into a ServerConfig, applying the
// documented defaults for anything unset.
func LoadServerConfig(configFile string) (ServerConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("NOMUSIC")
	v.AutomaticEnv()

	v.SetDefault("addr", ":8787")
	v.SetDefault("state_dir", "./state")
	v.SetDefault("temp_root", "./state/tmp")
	v.SetDefault("download_dir", "./download")
	v.SetDefault("nomusic_dir", "./nomusic")
	v.SetDefault("tools_dir", "")
	v.SetDefault("separation_workers", 1)
	v.SetDefault("download_workers", 1)
	v.SetDefault("demucs_workers", 2)
	v.SetDefault("folder_workers", 1)
	v.SetDefault("demucs_model", "htdemucs")
	v.SetDefault("development", false)

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return ServerConfig{}, err
			}
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

// PresetFile is the video.json path under a ServerConfig's state dir.
func (c ServerConfig) PresetFile() string { return filepath.Join(c.State, "video.json") }

// QueueFile is the download_queue.json path under a ServerConfig's state dir.
func (c ServerConfig) QueueFile() string { return filepath.Join(c.State, "download_queue.json") }

// LibraryFile is the library.json path under a ServerConfig's state dir.
func (c ServerConfig) LibraryFile() string { return filepath.Join(c.State, "library.json") }
