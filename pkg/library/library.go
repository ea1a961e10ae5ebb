package library

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/melophonic/audiotest/pkg/logger"
)

const (
	// DefaultExtension is the extension of every generated take
	DefaultExtension = "m4a"

	BackingAudioName   = "BackingAudio"
	RecordingAudioName = "RecordingAudio"
	BouncedAudioName   = "BouncedAudio"
)

// ErrNoDocumentsDir is returned when the documents directory cannot be found
var ErrNoDocumentsDir = errors.New("documents directory not found")

// DocumentsDir resolves the user's documents directory. It is never created.
func DocumentsDir(override string) (string, error) {
	dir := override
	if dir == "" {
		dir = os.Getenv("XDG_DOCUMENTS_DIR")
	}
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrNoDocumentsDir, err)
		}
		dir = filepath.Join(home, "Documents")
	}

	info, err := os.Stat(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoDocumentsDir, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrNoDocumentsDir, dir)
	}
	return filepath.Abs(dir)
}

// Library generates file locations inside the documents directory
type Library struct {
	dir string
}

// New creates a library rooted at the documents directory. A lookup
// failure is logged and the working directory is used instead.
func New(override string) *Library {
	dir, err := DocumentsDir(override)
	if err != nil {
		logger.WithComponent("library").Error().Err(err).Msg("Error accessing documents folder")
		dir, _ = os.Getwd()
	}
	return &Library{dir: dir}
}

// Dir returns the documents directory
func (l *Library) Dir() string {
	return l.dir
}

// DocumentPath returns a fresh path <dir>/<baseName>_<uniqueId>.m4a
func (l *Library) DocumentPath(baseName string) string {
	return filepath.Join(l.dir, UniqueFileName(baseName, DefaultExtension))
}

// UniqueFileName returns <baseName>_<uniqueId>.<ext>
func UniqueFileName(baseName, ext string) string {
	id := strings.ToUpper(uuid.NewString())
	return fmt.Sprintf("%s_%s.%s", baseName, id, strings.TrimPrefix(ext, "."))
}

// BaseName extracts the base name of a generated file name, or "" when
// name was not generated by UniqueFileName.
func BaseName(name string) string {
	name = filepath.Base(name)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	i := strings.LastIndexByte(stem, '_')
	if i <= 0 {
		return ""
	}
	if _, err := uuid.Parse(stem[i+1:]); err != nil {
		return ""
	}
	return stem[:i]
}

// FileURL renders path as a file:// URL
func FileURL(path string) *url.URL {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
}
