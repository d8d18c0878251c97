package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nomusic/nomusic/domain/model"
)

// remux combines the normalized vocal track with the original video
// stream (copying it when the preset allows, else re-encoding), or
// simply transcodes audio-only input to the preset's container. The
// output is written under nomusicDir, a directory that outlives the
// job's own TempDir: cleanupTemp only ever removes TempDir's working
// subdirectories, never nomusicDir, so the published result stays on
// disk for as long as the Job stays Completed.
func (p *pipeline) remux(ctx context.Context, originalInput, normalizedAudio string, mediaProbe *model.MediaProbe, preset model.Preset) (string, error) {
	if err := os.MkdirAll(p.nomusicDir, 0o755); err != nil {
		return "", err
	}
	stem := stemName(originalInput)
	finalPath := filepath.Join(p.nomusicDir, fmt.Sprintf("nomusic-%s.%s", stem, preset.Output.Format))

	args := []string{"-y"}

	if mediaProbe.IsVideo {
		args = append(args, "-i", originalInput, "-i", normalizedAudio)
		args = append(args, "-map", "0:v:0", "-map", "1:a:0")
		if preset.CopyVideo() {
			args = append(args, "-c:v", "copy")
		} else {
			args = append(args, "-c:v", preset.Video.Codec)
			if preset.Video.Bitrate != nil {
				args = append(args, "-b:v", *preset.Video.Bitrate)
			}
		}
	} else {
		args = append(args, "-i", normalizedAudio)
	}

	args = append(args, "-c:a", preset.Audio.Codec, "-b:a", preset.Audio.Bitrate)
	if mediaProbe.IsVideo {
		args = append(args, "-shortest")
	}
	args = append(args, finalPath)

	if err := p.ffmpeg.Execute(ctx, args); err != nil {
		return "", err
	}
	return finalPath, nil
}

func stemName(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
