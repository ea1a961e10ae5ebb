// Package studio is the recording helper: it prepares the audio session,
// hands out take locations and settings, and bounces takes over the
// backing track.
package studio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/melophonic/audiotest/pkg/audio"
	"github.com/melophonic/audiotest/pkg/config"
	"github.com/melophonic/audiotest/pkg/library"
	"github.com/melophonic/audiotest/pkg/logger"
	"github.com/melophonic/audiotest/pkg/publish"
	"github.com/melophonic/audiotest/pkg/session"
)

// Option configures a Studio
type Option func(*Studio)

// WithSession replaces the session built from configuration
func WithSession(s *session.Session) Option {
	return func(st *Studio) { st.session = s }
}

// WithPublisher sets the publisher used for bounces
func WithPublisher(p *publish.Publisher) Option {
	return func(st *Studio) { st.publisher = p }
}

// Studio ties the session, library, catalog and exporter together
type Studio struct {
	cfg       *config.Config
	session   *session.Session
	library   *library.Library
	catalog   *library.Catalog
	publisher *publish.Publisher
	settings  audio.RecordingSettings
}

// New sets the session category, activates the session and requests
// record permission, reporting the answer to completion. Session
// problems are logged and do not fail New.
func New(ctx context.Context, cfg *config.Config, completion func(allowed bool), opts ...Option) (*Studio, error) {
	log := logger.FromContext(ctx).WithComponent("studio")

	settings, err := cfg.RecordingSettings()
	if err != nil {
		return nil, err
	}

	st := &Studio{cfg: cfg, settings: settings}
	for _, opt := range opts {
		opt(st)
	}

	if st.session == nil {
		sessionOpts, err := cfg.SessionOptions()
		if err != nil {
			return nil, err
		}
		st.session = session.New(sessionOpts...)
	}

	st.setupSession(log, completion)

	st.library = library.New(cfg.Library.DocumentsDir)

	catalog, err := library.OpenCatalog(cfg.Library.CatalogDB)
	if err != nil {
		_ = st.session.SetActive(false)
		return nil, err
	}
	st.catalog = catalog

	if st.publisher == nil && cfg.PublishEnabled() {
		p, err := publish.New(ctx, cfg.Publish)
		if err != nil {
			log.Warn().Err(err).Msg("Publishing disabled")
		} else {
			st.publisher = p
		}
	}

	log.Debug().
		Str("documents", st.library.Dir()).
		Str("catalog", cfg.Library.CatalogDB).
		Str("publish", cfg.Publish.String()).
		Msg("Studio ready")
	return st, nil
}

func (st *Studio) setupSession(log *logger.Logger, completion func(bool)) {
	category, options, err := st.cfg.SessionCategory()
	if err == nil {
		err = st.session.SetCategory(category, options)
	}
	if err != nil {
		log.Error().Err(err).Msg("Error setting audio session category")
	}

	if err := st.session.SetActive(true); err != nil {
		log.Error().Err(err).Msg("Error activating audio session")
	}

	st.session.RequestRecordPermission(completion)
}

func (st *Studio) Session() *session.Session { return st.session }
func (st *Studio) Library() *library.Library { return st.library }
func (st *Studio) Catalog() *library.Catalog { return st.catalog }

// Publisher is nil when publishing is not configured
func (st *Studio) Publisher() *publish.Publisher { return st.publisher }

// DocumentPath returns a new take location for baseName
func (st *Studio) DocumentPath(baseName string) string {
	return st.library.DocumentPath(baseName)
}

// RecordingSettings returns the configured take encoding
func (st *Studio) RecordingSettings() audio.RecordingSettings {
	return st.settings
}

// IsHeadsetConnected reports whether headphones are on the current route
func (st *Studio) IsHeadsetConnected(ctx context.Context) bool {
	return st.session.IsHeadsetConnected(ctx)
}

// Bounce mixes backing and recording into output. When the export
// completes the bounce is catalogued and, if enabled, published before
// completion is called.
func (st *Studio) Bounce(ctx context.Context, backing, recording, output string, completion audio.ExportCompletion) *audio.ExportSession {
	log := logger.FromContext(ctx).WithComponent("studio")

	return audio.Bounce(ctx, backing, recording, output, func(status audio.ExportStatus, err error) {
		switch status {
		case audio.StatusCompleted:
			st.catalogBounce(ctx, log, backing, recording, output)
		case audio.StatusFailed:
			st.catalogFailure(log, recording, err)
		case audio.StatusCancelled:
			// a timed out bounce counts as an attempt, a user cancel does not
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				st.catalogFailure(log, recording, ctx.Err())
			}
		}
		if completion != nil {
			completion(status, err)
		}
	})
}

func (st *Studio) catalogFailure(log *logger.Logger, recording string, cause error) {
	failure, err := st.catalog.RecordFailed(recording, cause)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to record failed bounce")
		return
	}
	log.Debug().Str("recording", recording).Int("retry_count", failure.RetryCount).Msg("Recorded failed bounce")
}

func (st *Studio) catalogBounce(ctx context.Context, log *logger.Logger, backing, recording, output string) {
	take := describe(output, library.KindBounce)
	take.BackingPath = backing

	if st.cfg.Bounce.Publish && st.publisher != nil {
		url, err := st.publisher.Publish(ctx, output)
		if err != nil {
			log.Error().Err(err).Str("output", output).Msg("Failed to publish bounce")
		} else {
			take.PublishedURL = url
		}
	}

	if err := st.catalog.RecordBounce(recording, take); err != nil {
		log.Warn().Err(err).Msg("Failed to catalog bounce")
	}
}

// BounceTake bounces recording over the configured backing track into
// a new BouncedAudio file and waits for the result.
func (st *Studio) BounceTake(ctx context.Context, recording string) (string, error) {
	output := st.DocumentPath(library.BouncedAudioName)

	type result struct {
		status audio.ExportStatus
		err    error
	}
	done := make(chan result, 1)
	exporter := st.Bounce(ctx, st.cfg.Bounce.BackingPath, recording, output, func(status audio.ExportStatus, err error) {
		done <- result{status, err}
	})

	var res result
	select {
	case res = <-done:
	case <-ctx.Done():
		exporter.Cancel()
		res = <-done
	}

	if res.status != audio.StatusCompleted {
		if res.err == nil {
			res.err = fmt.Errorf("export ended with status %s", res.status)
		}
		return "", res.err
	}
	return output, nil
}

// CatalogRecording stores a finished take
func (st *Studio) CatalogRecording(path string) error {
	if !audio.Reachable(path) {
		return fmt.Errorf("recording not found: %s", path)
	}
	return st.catalog.RecordTake(describe(path, library.KindRecording))
}

// Close releases the catalog and deactivates the session
func (st *Studio) Close() error {
	var errs []error
	if st.catalog != nil {
		if err := st.catalog.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close catalog: %w", err))
		}
	}
	if err := st.session.SetActive(false); err != nil {
		errs = append(errs, fmt.Errorf("deactivate session: %w", err))
	}
	return errors.Join(errs...)
}

func describe(path string, kind library.Kind) *library.Take {
	take := &library.Take{
		Path:      path,
		Kind:      kind,
		CreatedAt: time.Now(),
	}
	if info, err := os.Stat(path); err == nil {
		take.Size = info.Size()
		take.CreatedAt = info.ModTime()
	}
	if asset, err := audio.OpenAsset(path); err == nil {
		take.Duration = asset.Duration
	}
	return take
}
