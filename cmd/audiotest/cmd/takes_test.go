package cmd

import (
	"testing"
	"time"

	"github.com/melophonic/audiotest/pkg/library"
)

func TestTakeRows(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	takes := []*library.Take{
		{Path: "/docs/RecordingAudio_A.m4a", Kind: library.KindRecording, Duration: 3 * time.Second, Size: 2048, CreatedAt: created},
		{Path: "/docs/BouncedAudio_B.m4a", Kind: library.KindBounce, RecordingPath: "/docs/RecordingAudio_A.m4a", CreatedAt: created, PublishedURL: "https://x/y"},
	}

	all := takeRows(takes, "")
	if len(all) != 2 {
		t.Fatalf("takeRows() = %d rows, want 2", len(all))
	}
	if all[0][1] != "RecordingAudio_A.m4a" || all[0][2] != "00:03.0" || all[0][3] != "2.0 KiB" {
		t.Errorf("recording row = %v", all[0])
	}
	if all[1][5] != "RecordingAudio_A.m4a" || all[1][6] != "https://x/y" {
		t.Errorf("bounce row = %v", all[1])
	}

	bounces := takeRows(takes, library.KindBounce)
	if len(bounces) != 1 || bounces[0][0] != "bounce" {
		t.Errorf("takeRows(bounce) = %v", bounces)
	}
}
