package audio

import (
	"fmt"
	"strconv"

	"github.com/go-playground/validator/v10"
	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// Quality is the encoder quality, on the same 0-127 scale as the raw
// encoder quality values of the recording framework.
type Quality int

const (
	QualityMin    Quality = 0
	QualityLow    Quality = 0x20
	QualityMedium Quality = 0x40
	QualityHigh   Quality = 0x60
	QualityMax    Quality = 0x7F
)

func (q Quality) String() string {
	switch {
	case q >= QualityMax:
		return "max"
	case q >= QualityHigh:
		return "high"
	case q >= QualityMedium:
		return "medium"
	case q >= QualityLow:
		return "low"
	default:
		return "min"
	}
}

// ParseQuality accepts a quality name or a raw 0-127 value
func ParseQuality(s string) (Quality, error) {
	switch s {
	case "min":
		return QualityMin, nil
	case "low":
		return QualityLow, nil
	case "medium":
		return QualityMedium, nil
	case "high":
		return QualityHigh, nil
	case "max":
		return QualityMax, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > int(QualityMax) {
		return 0, fmt.Errorf("invalid quality %q", s)
	}
	return Quality(v), nil
}

// Codec names an encoder
type Codec string

const (
	CodecAAC  Codec = "aac"
	CodecPCM  Codec = "pcm"
	CodecFLAC Codec = "flac"
)

// RecordingSettings describe how a take is encoded
type RecordingSettings struct {
	Codec      Codec   `mapstructure:"codec" validate:"oneof=aac pcm flac"`
	SampleRate int     `mapstructure:"sample_rate" validate:"oneof=8000 11025 16000 22050 24000 32000 44100 48000"`
	Channels   int     `mapstructure:"channels" validate:"min=1,max=2"`
	Quality    Quality `mapstructure:"quality" validate:"min=0,max=127"`
}

// DefaultRecordingSettings returns AAC, 16 kHz, mono, low quality
func DefaultRecordingSettings() RecordingSettings {
	return RecordingSettings{
		Codec:      CodecAAC,
		SampleRate: 16000,
		Channels:   1,
		Quality:    QualityLow,
	}
}

var validate = validator.New()

// Validate checks the settings against the supported encoder ranges
func (s RecordingSettings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return fmt.Errorf("invalid recording settings: %w", err)
	}
	return nil
}

// Format is the container the codec is written into
func (s RecordingSettings) Format() Format {
	switch s.Codec {
	case CodecPCM:
		return FormatWAV
	case CodecFLAC:
		return FormatFLAC
	default:
		return FormatM4A
	}
}

// BitRate returns the AAC bit rate in bits per second
func (s RecordingSettings) BitRate() int {
	var perChannel int
	switch {
	case s.Quality >= QualityMax:
		perChannel = 128000
	case s.Quality >= QualityHigh:
		perChannel = 96000
	case s.Quality >= QualityMedium:
		perChannel = 64000
	case s.Quality >= QualityLow:
		perChannel = 32000
	default:
		perChannel = 24000
	}
	channels := s.Channels
	if channels < 1 {
		channels = 1
	}
	return perChannel * channels
}

// OutputArgs renders the encoder arguments for ffmpeg
func (s RecordingSettings) OutputArgs() ffmpeg.KwArgs {
	args := ffmpeg.KwArgs{
		"ar": strconv.Itoa(s.SampleRate),
		"ac": strconv.Itoa(s.Channels),
	}
	switch s.Codec {
	case CodecPCM:
		args["acodec"] = "pcm_s16le"
		args["f"] = "wav"
	case CodecFLAC:
		args["acodec"] = "flac"
		args["f"] = "flac"
	default:
		args["acodec"] = "aac"
		args["b:a"] = strconv.Itoa(s.BitRate())
		args["f"] = "ipod"
	}
	return args
}
