package studio

import (
	"path/filepath"

	"github.com/melophonic/audiotest/pkg/library"
	"github.com/melophonic/audiotest/pkg/logger"
	"github.com/melophonic/audiotest/pkg/player"
	"github.com/melophonic/audiotest/pkg/recorder"
)

// NewPlayer opens path on the configured output device
func (st *Studio) NewPlayer(path string, delegate player.Delegate) (*player.Tracked, error) {
	p, err := player.New(path,
		player.WithOutput(st.cfg.Devices.OutputFormat, st.cfg.Devices.OutputDevice),
		player.WithDelegate(delegate),
	)
	if err != nil {
		return nil, err
	}
	return player.Track(p), nil
}

// NewRecorder prepares a take in the documents directory. Successful
// takes are catalogued before delegate is told.
func (st *Studio) NewRecorder(delegate recorder.Delegate) (*recorder.Tracked, error) {
	ext := st.settings.Format().Extension()
	path := filepath.Join(st.library.Dir(), library.UniqueFileName(library.RecordingAudioName, ext))

	r, err := recorder.New(path, st.settings,
		recorder.WithInput(st.cfg.Devices.InputFormat, st.cfg.Devices.InputDevice),
		recorder.WithDelegate(st.catalogingDelegate(delegate)),
	)
	if err != nil {
		return nil, err
	}
	return recorder.Track(r), nil
}

func (st *Studio) catalogingDelegate(inner recorder.Delegate) recorder.Delegate {
	base := catalogingDelegate{studio: st, inner: inner}
	if u, ok := inner.(recorder.UpdateDelegate); ok {
		return updatingCatalogDelegate{catalogingDelegate: base, update: u}
	}
	return base
}

type catalogingDelegate struct {
	studio *Studio
	inner  recorder.Delegate
}

func (d catalogingDelegate) RecorderDidFinishRecording(r *recorder.Recorder, successfully bool) {
	if successfully {
		if err := d.studio.CatalogRecording(r.Path()); err != nil {
			logger.WithComponent("studio").Warn().Err(err).Msg("Failed to catalog recording")
		}
	}
	if d.inner != nil {
		d.inner.RecorderDidFinishRecording(r, successfully)
	}
}

type updatingCatalogDelegate struct {
	catalogingDelegate
	update recorder.UpdateDelegate
}

func (d updatingCatalogDelegate) RecorderUpdateTime(r *recorder.Recorder) {
	d.update.RecorderUpdateTime(r)
}
