package audio

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"github.com/melophonic/audiotest/pkg/logger"
)

// ErrNoAudioTracks is returned when a source carries no audio stream
var ErrNoAudioTracks = errors.New("source has no audio tracks")

// probe is swapped in tests
var probe = func(path string) (string, error) {
	return ffmpeg.Probe(path)
}

// Track describes one audio stream of an asset
type Track struct {
	Index      int
	Codec      string
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Asset is a probed media file
type Asset struct {
	Path     string
	Format   Format
	Duration time.Duration
	BitRate  int
	Size     int64

	tracks []Track
}

// Reachable reports whether path names an existing regular file
func Reachable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// OpenAsset probes path with ffprobe
func OpenAsset(path string) (*Asset, error) {
	log := logger.WithComponent("asset").WithField("file", filepath.Base(path))

	if !Reachable(path) {
		return nil, fmt.Errorf("file does not exist: %s", path)
	}

	data, err := probe(path)
	if err != nil {
		log.Debug().Err(err).Msg("Probe failed")
		return nil, fmt.Errorf("failed to probe file: %w", err)
	}

	asset, err := parseProbe(path, data)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Dur("duration", asset.Duration).
		Int("audio_tracks", len(asset.tracks)).
		Msg("Asset opened")
	return asset, nil
}

// AudioTracks returns the audio streams in stream order
func (a *Asset) AudioTracks() []Track {
	out := make([]Track, len(a.tracks))
	copy(out, a.tracks)
	return out
}

type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
		BitRate  string `json:"bit_rate"`
		Size     string `json:"size"`
	} `json:"format"`
	Streams []struct {
		Index      int    `json:"index"`
		CodecName  string `json:"codec_name"`
		CodecType  string `json:"codec_type"`
		SampleRate string `json:"sample_rate"`
		Channels   int    `json:"channels"`
		Duration   string `json:"duration"`
	} `json:"streams"`
}

func parseProbe(path, data string) (*Asset, error) {
	var out probeOutput
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, fmt.Errorf("failed to parse probe JSON: %w", err)
	}

	asset := &Asset{
		Path:     path,
		Format:   DetectFormat(path),
		Duration: parseSeconds(out.Format.Duration),
	}
	if v, err := strconv.ParseInt(out.Format.BitRate, 10, 64); err == nil {
		asset.BitRate = int(v)
	}
	if v, err := strconv.ParseInt(out.Format.Size, 10, 64); err == nil {
		asset.Size = v
	}

	for _, s := range out.Streams {
		if s.CodecType != "audio" {
			continue
		}
		tr := Track{
			Index:    s.Index,
			Codec:    s.CodecName,
			Channels: s.Channels,
			Duration: parseSeconds(s.Duration),
		}
		if v, err := strconv.Atoi(s.SampleRate); err == nil {
			tr.SampleRate = v
		}
		if tr.Duration == 0 {
			tr.Duration = asset.Duration
		}
		asset.tracks = append(asset.tracks, tr)
	}

	return asset, nil
}

func parseSeconds(s string) time.Duration {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}

// formatSeconds renders d the way ffmpeg accepts time offsets
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', 3, 64)
}
