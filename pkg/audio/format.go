package audio

import (
	"path/filepath"
	"strings"
)

// Format identifies an audio container
type Format string

const (
	FormatWAV  Format = "wav"
	FormatMP3  Format = "mp3"
	FormatM4A  Format = "m4a"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
)

// DetectFormat detects the audio format from a file extension
func DetectFormat(filePath string) Format {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".wav":
		return FormatWAV
	case ".mp3":
		return FormatMP3
	case ".m4a", ".mp4":
		return FormatM4A
	case ".aac":
		return FormatAAC
	case ".flac":
		return FormatFLAC
	default:
		return ""
	}
}

// MimeType returns the MIME type for the audio format
func MimeType(format Format) string {
	switch format {
	case FormatWAV:
		return "audio/wav"
	case FormatMP3:
		return "audio/mpeg"
	case FormatM4A:
		return "audio/mp4"
	case FormatAAC:
		return "audio/aac"
	case FormatFLAC:
		return "audio/flac"
	default:
		return "application/octet-stream"
	}
}

// Extension returns the file extension, without the dot, for the format
func (f Format) Extension() string {
	if f == "" {
		return string(FormatM4A)
	}
	return string(f)
}
