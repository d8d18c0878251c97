package model

// VideoSettings is the video leg of a Preset's remux configuration.
type VideoSettings struct {
	Codec   string  `json:"codec" mapstructure:"codec"`     // e.g. "copy", "h264", "hevc"
	Bitrate *string `json:"bitrate,omitempty" mapstructure:"bitrate"` // nullable; nil means "use source"
}

// AudioSettings is the audio leg of a Preset's remux configuration.
type AudioSettings struct {
	Codec   string `json:"codec" mapstructure:"codec"`
	Bitrate string `json:"bitrate" mapstructure:"bitrate"`
}

// OutputSettings names the final container format.
type OutputSettings struct {
	Format string `json:"format" mapstructure:"format"` // e.g. "mp4", "mkv", "m4a"
}

// Preset is a named bundle of output codec/bitrate/container settings
// applied at the Remux phase.
type Preset struct {
	Name   string         `json:"name" mapstructure:"name"`
	Video  VideoSettings  `json:"video" mapstructure:"video"`
	Audio  AudioSettings  `json:"audio" mapstructure:"audio"`
	Output OutputSettings `json:"output" mapstructure:"output"`
}

// CopyVideo reports whether the preset wants the video stream
// re-containered without re-encoding.
func (p Preset) CopyVideo() bool {
	return p.Video.Codec == "" || p.Video.Codec == "copy"
}

// PresetStore is the on-disk shape of video.json: a map of named
// presets, a selector naming the active one, and optional top-level
// overrides layered on top of the selected preset.
type PresetStore struct {
	Presets       map[string]Preset `json:"presets" mapstructure:"presets"`
	CurrentPreset string            `json:"current_preset" mapstructure:"current_preset"`
	Video         *VideoSettings    `json:"video,omitempty" mapstructure:"video"`
	Audio         *AudioSettings    `json:"audio,omitempty" mapstructure:"audio"`
	Output        *OutputSettings   `json:"output,omitempty" mapstructure:"output"`
}

// DefaultPresetStore returns the built-in preset set used when no
// video.json exists yet.
func DefaultPresetStore() *PresetStore {
	return &PresetStore{
		Presets: map[string]Preset{
			"default": {
				Name:   "default",
				Video:  VideoSettings{Codec: "copy"},
				Audio:  AudioSettings{Codec: "aac", Bitrate: "192k"},
				Output: OutputSettings{Format: "mp4"},
			},
			"audio-only": {
				Name:   "audio-only",
				Video:  VideoSettings{Codec: "copy"},
				Audio:  AudioSettings{Codec: "aac", Bitrate: "192k"},
				Output: OutputSettings{Format: "m4a"},
			},
		},
		CurrentPreset: "default",
	}
}

// Resolve returns the effective Preset: the named preset (or the
// current one, if name is empty) with any top-level overrides applied.
func (s *PresetStore) Resolve(name string) (Preset, bool) {
	if name == "" {
		name = s.CurrentPreset
	}
	p, ok := s.Presets[name]
	if !ok {
		return Preset{}, false
	}
	if s.Video != nil {
		p.Video = *s.Video
	}
	if s.Audio != nil {
		p.Audio = *s.Audio
	}
	if s.Output != nil {
		p.Output = *s.Output
	}
	return p, true
}
