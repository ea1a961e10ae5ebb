package session

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/melophonic/audiotest/pkg/logger"
)

// PermissionMode decides how record permission is answered
type PermissionMode string

const (
	PermissionAuto    PermissionMode = "auto"
	PermissionGranted PermissionMode = "granted"
	PermissionDenied  PermissionMode = "denied"
)

// ParsePermissionMode converts a configuration value to a PermissionMode
func ParsePermissionMode(s string) (PermissionMode, error) {
	switch m := PermissionMode(strings.ToLower(s)); m {
	case PermissionAuto, PermissionGranted, PermissionDenied:
		return m, nil
	case "":
		return PermissionAuto, nil
	}
	return "", fmt.Errorf("unknown permission mode %q", s)
}

// RequestRecordPermission answers on a new goroutine whether the process
// may capture audio.
func (s *Session) RequestRecordPermission(completion func(allowed bool)) {
	s.mu.Lock()
	mode, dir := s.permission, s.deviceDir
	s.mu.Unlock()

	go func() {
		allowed := recordPermission(mode, dir)
		logger.WithComponent("session").Debug().
			Str("mode", string(mode)).
			Bool("allowed", allowed).
			Msg("Record permission resolved")
		if completion != nil {
			completion(allowed)
		}
	}()
}

func recordPermission(mode PermissionMode, deviceDir string) bool {
	switch mode {
	case PermissionGranted:
		return true
	case PermissionDenied:
		return false
	}

	// ALSA capture nodes are named pcmC<card>D<device>c
	nodes, err := filepath.Glob(filepath.Join(deviceDir, "pcmC*D*c"))
	if err != nil {
		return false
	}
	for _, node := range nodes {
		if unix.Access(node, unix.R_OK|unix.W_OK) == nil {
			return true
		}
	}
	return false
}
