package recorder

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/melophonic/audiotest/pkg/audio"
)

// TestHelperProcess stands in for ffmpeg when run through helperCommand
func TestHelperProcess(t *testing.T) {
	if os.Getenv("AUDIOTEST_HELPER_PROCESS") != "1" {
		return
	}
	output := os.Getenv("AUDIOTEST_HELPER_OUTPUT")

	switch os.Getenv("AUDIOTEST_HELPER_MODE") {
	case "capture":
		// write after the quit key, like ffmpeg finalizing the container
		r := bufio.NewReader(os.Stdin)
		for {
			b, err := r.ReadByte()
			if err != nil || b == 'q' {
				break
			}
		}
		if err := os.WriteFile(output, []byte("m4a"), 0o644); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "limit":
		time.Sleep(100 * time.Millisecond)
		if err := os.WriteFile(output, []byte("m4a"), 0o644); err != nil {
			os.Exit(2)
		}
		os.Exit(0)
	case "deaf":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	case "fail":
		os.Exit(1)
	}
	os.Exit(3)
}

func helperCommand(mode, output string) commandFunc {
	return func(ctx context.Context, args []string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"AUDIOTEST_HELPER_PROCESS=1",
			"AUDIOTEST_HELPER_MODE="+mode,
			"AUDIOTEST_HELPER_OUTPUT="+output,
		)
		return cmd
	}
}

type finish struct {
	recorder     *Recorder
	successfully bool
}

type recordingDelegate struct {
	finished chan finish
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{finished: make(chan finish, 4)}
}

func (d *recordingDelegate) RecorderDidFinishRecording(r *Recorder, successfully bool) {
	d.finished <- finish{r, successfully}
}

type updatingDelegate struct {
	*recordingDelegate
	updates atomic.Int32
}

func (d *updatingDelegate) RecorderUpdateTime(*Recorder) {
	d.updates.Add(1)
}

func newTestRecorder(t *testing.T, mode string, d Delegate) *Recorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "takes", "RecordingAudio_X.m4a")
	r, err := New(path, audio.DefaultRecordingSettings(), WithDelegate(d), WithStopTimeout(500*time.Millisecond))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	r.command = helperCommand(mode, path)
	return r
}

func awaitFinish(t *testing.T, d *recordingDelegate) finish {
	t.Helper()
	select {
	case f := <-d.finished:
		return f
	case <-time.After(10 * time.Second):
		t.Fatal("delegate was not called")
	}
	return finish{}
}

func TestNewRejectsInvalidSettings(t *testing.T) {
	settings := audio.DefaultRecordingSettings()
	settings.Channels = 6
	if _, err := New("/tmp/x.m4a", settings); err == nil {
		t.Error("New() expected error for 6 channels")
	}
}

func TestArgs(t *testing.T) {
	r, err := New("/docs/RecordingAudio_X.m4a", audio.DefaultRecordingSettings(), WithInput("alsa", "hw:1"))
	if err != nil {
		t.Fatal(err)
	}

	args := strings.Join(r.args(3*time.Second), " ")
	for _, want := range []string{"-f alsa -i hw:1", "-ar 16000", "-ac 1", "-acodec aac", "-b:a 32000", "-t 3.000", "/docs/RecordingAudio_X.m4a", "-y"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}
	if strings.Contains(strings.Join(r.args(0), " "), "-t ") {
		t.Error("args contain -t without a limit")
	}
}

func TestStopFinalizes(t *testing.T) {
	d := newRecordingDelegate()
	r := newTestRecorder(t, "capture", d)

	if err := r.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if !r.IsRecording() {
		t.Error("IsRecording() = false after Record")
	}
	time.Sleep(30 * time.Millisecond)
	if r.CurrentTime() <= 0 {
		t.Error("CurrentTime() not advancing")
	}

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	f := awaitFinish(t, d)
	if !f.successfully || f.recorder != r {
		t.Errorf("finish = %+v, want successful", f)
	}
	if !audio.Reachable(r.Path()) {
		t.Error("recording file missing after Stop")
	}
	if r.CurrentTime() != 0 {
		t.Errorf("CurrentTime() = %v when stopped, want 0", r.CurrentTime())
	}

	if err := r.DeleteRecording(); err != nil {
		t.Fatalf("DeleteRecording() error = %v", err)
	}
	if audio.Reachable(r.Path()) {
		t.Error("file still present after DeleteRecording")
	}
}

func TestRecordForDurationEndsOnItsOwn(t *testing.T) {
	d := newRecordingDelegate()
	r := newTestRecorder(t, "limit", d)

	if err := r.RecordForDuration(100 * time.Millisecond); err != nil {
		t.Fatalf("RecordForDuration() error = %v", err)
	}
	if f := awaitFinish(t, d); !f.successfully {
		t.Error("successfully = false")
	}
	r.Wait()
	if r.IsRecording() {
		t.Error("IsRecording() = true after limit")
	}
}

func TestStopKillsUnresponsiveFFmpeg(t *testing.T) {
	d := newRecordingDelegate()
	r := newTestRecorder(t, "deaf", d)

	if err := r.Record(); err != nil {
		t.Fatal(err)
	}
	if err := r.Stop(); err == nil {
		t.Error("Stop() expected timeout error")
	}
	if f := awaitFinish(t, d); f.successfully {
		t.Error("successfully = true for killed ffmpeg")
	}
}

func TestFailedRecording(t *testing.T) {
	d := newRecordingDelegate()
	r := newTestRecorder(t, "fail", d)

	if err := r.Record(); err != nil {
		t.Fatal(err)
	}
	if f := awaitFinish(t, d); f.successfully {
		t.Error("successfully = true for failed ffmpeg")
	}
}

func TestDeleteWhileRecording(t *testing.T) {
	r := newTestRecorder(t, "capture", newRecordingDelegate())
	if err := r.Record(); err != nil {
		t.Fatal(err)
	}
	defer r.Stop()

	if err := r.DeleteRecording(); !errors.Is(err, ErrRecording) {
		t.Errorf("DeleteRecording() error = %v, want %v", err, ErrRecording)
	}
}

func TestTrackedCallsRecorderUpdate(t *testing.T) {
	d := &updatingDelegate{recordingDelegate: newRecordingDelegate()}
	tr := Track(newTestRecorder(t, "capture", d))

	if err := tr.Record(); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	link := tr.Link()
	if link == nil {
		t.Fatal("link not started for UpdateDelegate")
	}

	deadline := time.Now().Add(2 * time.Second)
	for d.updates.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if d.updates.Load() == 0 {
		t.Error("RecorderUpdateTime was never called")
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	awaitFinish(t, d.recordingDelegate)
	if link.IsValid() {
		t.Error("link still valid after Stop")
	}
	if tr.Link() != nil {
		t.Error("Link() not cleared after Stop")
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestTrackedWithoutUpdateDelegate(t *testing.T) {
	tr := Track(newTestRecorder(t, "capture", newRecordingDelegate()))
	if err := tr.Record(); err != nil {
		t.Fatal(err)
	}
	defer tr.Close()

	if tr.Link() != nil {
		t.Error("link started for a delegate without RecorderUpdateTime")
	}
}
