package audio

import (
	"context"

	"github.com/melophonic/audiotest/pkg/logger"
)

// Bounce mixes a backing track and a recorded take, both starting at the
// beginning of the timeline, into a single M4A file at outputPath.
//
// Problems with either source are logged and the source is left out of
// the mix. The export result is delivered only through completion.
func Bounce(ctx context.Context, backingPath, recordingPath, outputPath string, completion ExportCompletion) *ExportSession {
	log := logger.FromContext(ctx).WithComponent("bounce")

	comp := NewComposition()
	backingTrack := comp.AddTrack()
	recordingTrack := comp.AddTrack()

	if Reachable(backingPath) {
		insertWhole(log, backingTrack, backingPath, "backing")
	} else {
		log.Warn().Str("path", backingPath).Msg("Backing audio not reachable")
	}

	insertWhole(log, recordingTrack, recordingPath, "recording")

	exporter := newExportSession(comp, PresetAppleM4A, FormatM4A)
	exporter.OutputPath = outputPath
	exporter.ExportAsync(ctx, completion)
	return exporter
}

func insertWhole(log *logger.Logger, track *CompositionTrack, path, role string) {
	asset, err := OpenAsset(path)
	if err != nil {
		log.Warn().Err(err).Str("role", role).Str("path", path).Msg("Could not open audio")
		return
	}
	if len(asset.AudioTracks()) == 0 {
		log.Warn().Str("role", role).Str("path", path).Msg("Audio has no tracks")
		return
	}
	if err := track.InsertTimeRange(asset, 0, asset.Duration, 0); err != nil {
		log.Error().Err(err).Str("role", role).Msg("Error adding track to composition")
	}
}
