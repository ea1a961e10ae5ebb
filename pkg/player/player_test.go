package player

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"sync"
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
	switch os.Getenv("AUDIOTEST_HELPER_MODE") {
	case "ok":
		time.Sleep(150 * time.Millisecond)
		os.Exit(0)
	case "fail":
		os.Exit(1)
	case "hang":
		time.Sleep(30 * time.Second)
		os.Exit(0)
	}
	os.Exit(3)
}

func helperCommand(mode string) commandFunc {
	return func(ctx context.Context, args []string) *exec.Cmd {
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(),
			"AUDIOTEST_HELPER_PROCESS=1",
			"AUDIOTEST_HELPER_MODE="+mode,
		)
		return cmd
	}
}

type finish struct {
	player       *Player
	successfully bool
}

type recordingDelegate struct {
	finished chan finish
}

func newRecordingDelegate() *recordingDelegate {
	return &recordingDelegate{finished: make(chan finish, 4)}
}

func (d *recordingDelegate) PlayerDidFinishPlaying(p *Player, successfully bool) {
	d.finished <- finish{p, successfully}
}

type updatingDelegate struct {
	*recordingDelegate
	updates atomic.Int32
}

func (d *updatingDelegate) PlayerUpdateTime(*Player) {
	d.updates.Add(1)
}

func newTestPlayer(mode string, d Delegate) *Player {
	p := NewWithAsset(&audio.Asset{Path: "/docs/take.m4a", Duration: 2 * time.Second}, WithDelegate(d))
	p.command = helperCommand(mode)
	return p
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

func TestArgs(t *testing.T) {
	p := NewWithAsset(&audio.Asset{Path: "/docs/take.m4a", Duration: 2 * time.Second}, WithOutput("alsa", "hw:0"))
	p.SetCurrentTime(1500 * time.Millisecond)

	args := strings.Join(p.args(), " ")
	for _, want := range []string{"-ss 1.500", "-i /docs/take.m4a", "-f alsa", "-device hw:0", "-nostats"} {
		if !strings.Contains(args, want) {
			t.Errorf("args %q missing %q", args, want)
		}
	}

	p.SetCurrentTime(0)
	if strings.Contains(strings.Join(p.args(), " "), "-ss") {
		t.Error("args contain -ss at position zero")
	}
}

func TestSetCurrentTimeClamps(t *testing.T) {
	p := NewWithAsset(&audio.Asset{Path: "/docs/take.m4a", Duration: 2 * time.Second})
	p.SetCurrentTime(-time.Second)
	if p.CurrentTime() != 0 {
		t.Errorf("CurrentTime() = %v, want 0", p.CurrentTime())
	}
	p.SetCurrentTime(5 * time.Second)
	if p.CurrentTime() != 2*time.Second {
		t.Errorf("CurrentTime() = %v, want 2s", p.CurrentTime())
	}
}

func TestPlayFinishes(t *testing.T) {
	d := newRecordingDelegate()
	p := newTestPlayer("ok", d)

	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if !p.IsPlaying() {
		t.Error("IsPlaying() = false after Play")
	}
	if err := p.Play(); err != nil {
		t.Errorf("second Play() error = %v", err)
	}

	f := awaitFinish(t, d)
	if !f.successfully || f.player != p {
		t.Errorf("finish = %+v, want successful", f)
	}
	p.Wait()
	if p.IsPlaying() {
		t.Error("IsPlaying() = true after finish")
	}
	if p.CurrentTime() != 0 {
		t.Errorf("CurrentTime() = %v after finish, want 0", p.CurrentTime())
	}
}

func TestPlayFails(t *testing.T) {
	d := newRecordingDelegate()
	p := newTestPlayer("fail", d)

	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if f := awaitFinish(t, d); f.successfully {
		t.Error("successfully = true for failed playback")
	}
}

func TestStopSkipsDelegate(t *testing.T) {
	d := newRecordingDelegate()
	p := newTestPlayer("hang", d)

	if err := p.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if p.IsPlaying() {
		t.Error("IsPlaying() = true after Stop")
	}
	if p.CurrentTime() <= 0 {
		t.Errorf("CurrentTime() = %v after Stop, want kept position", p.CurrentTime())
	}

	select {
	case f := <-d.finished:
		t.Errorf("delegate called after Stop: %+v", f)
	case <-time.After(100 * time.Millisecond):
	}

	if err := p.Stop(); err != nil {
		t.Errorf("Stop() on stopped player error = %v", err)
	}
}

func TestTrackedUpdatesWithUpdateDelegate(t *testing.T) {
	d := &updatingDelegate{recordingDelegate: newRecordingDelegate()}
	tp := Track(newTestPlayer("ok", d))

	if err := tp.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	awaitFinish(t, d.recordingDelegate)
	tp.Wait()

	if d.updates.Load() == 0 {
		t.Error("PlayerUpdateTime was never called")
	}
	if tp.Link() != nil {
		t.Error("link still set after playback finished")
	}

	after := d.updates.Load()
	time.Sleep(50 * time.Millisecond)
	if d.updates.Load() != after {
		t.Error("updates continued after playback finished")
	}
}

func TestTrackedWithoutUpdateDelegate(t *testing.T) {
	d := newRecordingDelegate()
	tp := Track(newTestPlayer("hang", d))

	if err := tp.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	defer tp.Close()

	if tp.Link() != nil {
		t.Error("link started for a delegate without PlayerUpdateTime")
	}
}

func TestTrackedStopInvalidates(t *testing.T) {
	d := &updatingDelegate{recordingDelegate: newRecordingDelegate()}
	tp := Track(newTestPlayer("hang", d))

	if err := tp.Play(); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	link := tp.Link()
	if link == nil {
		t.Fatal("link not started")
	}

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = tp.Stop()
		}()
	}
	wg.Wait()

	if link.IsValid() {
		t.Error("link still valid after Stop")
	}
	if err := tp.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
