package audio

import "testing"

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		name     string
		filePath string
		want     Format
	}{
		{name: "wav file", filePath: "take.wav", want: FormatWAV},
		{name: "m4a file", filePath: "RecordingAudio_1.m4a", want: FormatM4A},
		{name: "mp4 container", filePath: "take.mp4", want: FormatM4A},
		{name: "raw aac", filePath: "take.aac", want: FormatAAC},
		{name: "flac file", filePath: "take.flac", want: FormatFLAC},
		{name: "uppercase extension", filePath: "TAKE.MP3", want: FormatMP3},
		{name: "unsupported extension", filePath: "notes.txt", want: ""},
		{name: "no extension", filePath: "take", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectFormat(tt.filePath); got != tt.want {
				t.Errorf("DetectFormat() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMimeType(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{FormatWAV, "audio/wav"},
		{FormatMP3, "audio/mpeg"},
		{FormatM4A, "audio/mp4"},
		{FormatAAC, "audio/aac"},
		{FormatFLAC, "audio/flac"},
		{"unknown", "application/octet-stream"},
	}

	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			if got := MimeType(tt.format); got != tt.want {
				t.Errorf("MimeType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFormatExtension(t *testing.T) {
	if got := Format("").Extension(); got != "m4a" {
		t.Errorf("empty format extension = %q, want m4a", got)
	}
	if got := FormatWAV.Extension(); got != "wav" {
		t.Errorf("wav extension = %q, want wav", got)
	}
}
