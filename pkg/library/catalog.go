package library

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketTakes   = "takes"
	bucketBounced = "bounced"
	bucketFailed  = "failed"
)

// Kind tells recordings and bounces apart
type Kind string

const (
	KindRecording Kind = "recording"
	KindBounce    Kind = "bounce"
)

// Take is a catalogued audio file
type Take struct {
	Path          string        `json:"path"`
	Kind          Kind          `json:"kind"`
	CreatedAt     time.Time     `json:"created_at"`
	Duration      time.Duration `json:"duration"`
	Size          int64         `json:"size"`
	BackingPath   string        `json:"backing_path,omitempty"`
	RecordingPath string        `json:"recording_path,omitempty"`
	PublishedURL  string        `json:"published_url,omitempty"`
}

// Failure records a failed bounce of a recording
type Failure struct {
	RecordingPath string    `json:"recording_path"`
	FailedAt      time.Time `json:"failed_at"`
	Error         string    `json:"error"`
	RetryCount    int       `json:"retry_count"`
}

// Catalog is the persistent index of takes, stored in BoltDB
type Catalog struct {
	db *bolt.DB
}

// OpenCatalog opens or creates the catalog database at path
func OpenCatalog(path string) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create catalog directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketTakes, bucketBounced, bucketFailed} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("failed to create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Catalog{db: db}, nil
}

// RecordTake stores or replaces a take
func (c *Catalog) RecordTake(take *Take) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket([]byte(bucketTakes)), take.Path, take)
	})
}

// RecordBounce stores a bounce made from recordingPath and clears any
// earlier failure of that recording.
func (c *Catalog) RecordBounce(recordingPath string, bounce *Take) error {
	bounce.Kind = KindBounce
	bounce.RecordingPath = recordingPath

	return c.db.Update(func(tx *bolt.Tx) error {
		if err := putJSON(tx.Bucket([]byte(bucketTakes)), bounce.Path, bounce); err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketBounced)).Put([]byte(recordingPath), []byte(bounce.Path)); err != nil {
			return fmt.Errorf("failed to store bounce link: %w", err)
		}
		return tx.Bucket([]byte(bucketFailed)).Delete([]byte(recordingPath))
	})
}

// RecordFailed stores a failed bounce attempt, counting retries
func (c *Catalog) RecordFailed(recordingPath string, cause error) (*Failure, error) {
	failure := &Failure{
		RecordingPath: recordingPath,
		FailedAt:      time.Now(),
	}
	if cause != nil {
		failure.Error = cause.Error()
	}

	err := c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketFailed))
		if existing := bucket.Get([]byte(recordingPath)); existing != nil {
			var prev Failure
			if err := json.Unmarshal(existing, &prev); err == nil {
				failure.RetryCount = prev.RetryCount + 1
			}
		}
		return putJSON(bucket, recordingPath, failure)
	})
	if err != nil {
		return nil, err
	}
	return failure, nil
}

// Get returns the take stored for path, or nil when there is none
func (c *Catalog) Get(path string) (*Take, error) {
	var take *Take
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketTakes)).Get([]byte(path))
		if data == nil {
			return nil
		}
		take = &Take{}
		if err := json.Unmarshal(data, take); err != nil {
			return fmt.Errorf("failed to unmarshal take: %w", err)
		}
		return nil
	})
	return take, err
}

// BouncePath returns the bounce made from recordingPath, or ""
func (c *Catalog) BouncePath(recordingPath string) (string, error) {
	var path string
	err := c.db.View(func(tx *bolt.Tx) error {
		path = string(tx.Bucket([]byte(bucketBounced)).Get([]byte(recordingPath)))
		return nil
	})
	return path, err
}

// IsBounced reports whether recordingPath has been bounced
func (c *Catalog) IsBounced(recordingPath string) (bool, error) {
	path, err := c.BouncePath(recordingPath)
	return path != "", err
}

// Failure returns the last failure of recordingPath, or nil
func (c *Catalog) Failure(recordingPath string) (*Failure, error) {
	var failure *Failure
	err := c.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket([]byte(bucketFailed)).Get([]byte(recordingPath))
		if data == nil {
			return nil
		}
		failure = &Failure{}
		if err := json.Unmarshal(data, failure); err != nil {
			return fmt.Errorf("failed to unmarshal failure: %w", err)
		}
		return nil
	})
	return failure, err
}

// List returns every take, oldest first
func (c *Catalog) List() ([]*Take, error) {
	var takes []*Take
	err := c.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketTakes)).ForEach(func(_, v []byte) error {
			var take Take
			if err := json.Unmarshal(v, &take); err != nil {
				return fmt.Errorf("failed to unmarshal take: %w", err)
			}
			takes = append(takes, &take)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(takes, func(i, j int) bool {
		return takes[i].CreatedAt.Before(takes[j].CreatedAt)
	})
	return takes, nil
}

// SetPublishedURL records where a take was published
func (c *Catalog) SetPublishedURL(path, url string) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketTakes))
		data := bucket.Get([]byte(path))
		if data == nil {
			return fmt.Errorf("take not found: %s", path)
		}
		var take Take
		if err := json.Unmarshal(data, &take); err != nil {
			return fmt.Errorf("failed to unmarshal take: %w", err)
		}
		take.PublishedURL = url
		return putJSON(bucket, path, &take)
	})
}

// Close closes the underlying database
func (c *Catalog) Close() error {
	return c.db.Close()
}

func putJSON(bucket *bolt.Bucket, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := bucket.Put([]byte(key), data); err != nil {
		return fmt.Errorf("failed to store %s: %w", key, err)
	}
	return nil
}
