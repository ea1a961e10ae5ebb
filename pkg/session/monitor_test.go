package session

import (
	"testing"

	"github.com/pilebones/go-udev/netlink"
)

func TestSoundMatcher(t *testing.T) {
	tests := []struct {
		name   string
		action netlink.KObjAction
		env    map[string]string
		want   bool
	}{
		{
			name:   "sound card added",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "sound", "DEVPATH": "/devices/pci0000:00/0000:00:1f.3/sound/card0"},
			want:   true,
		},
		{
			name:   "jack input device",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "input", "DEVPATH": "/devices/pci0000:00/0000:00:1f.3/sound/card0/input12"},
			want:   true,
		},
		{
			name:   "jack event node",
			action: netlink.REMOVE,
			env:    map[string]string{"SUBSYSTEM": "input", "DEVPATH": "/devices/pci0000:00/0000:00:1f.3/sound/card0/input12/event12"},
			want:   true,
		},
		{
			name:   "keyboard",
			action: netlink.ADD,
			env:    map[string]string{"SUBSYSTEM": "input", "DEVPATH": "/devices/platform/i8042/serio0/input/input3"},
			want:   false,
		},
		{
			name:   "sound bind",
			action: netlink.BIND,
			env:    map[string]string{"SUBSYSTEM": "sound", "DEVPATH": "/devices/pci0000:00/0000:00:1f.3/sound/card0"},
			want:   false,
		},
		{
			name:   "block device",
			action: netlink.CHANGE,
			env:    map[string]string{"SUBSYSTEM": "block", "DEVPATH": "/devices/virtual/block/loop0"},
			want:   false,
		},
	}

	m := soundMatcher()
	if err := m.Compile(); err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev := netlink.UEvent{Action: tt.action, Env: tt.env}
			if got := m.Evaluate(ev); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}
