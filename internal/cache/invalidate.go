package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const replySuffix = ".reply.json"

// ClearDir empties dir, creating it when missing.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeByAge deletes cached pages and model replies saved more than maxAge
// ago and returns how many entries went. Entries whose timestamp cannot be
// read are judged by file modification time. A missing dir is not an error.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	cutoff := time.Now().UTC().Add(-maxAge)
	removed := 0
	for _, d := range entries {
		if d.IsDir() {
			continue
		}
		name := d.Name()
		path := filepath.Join(dir, name)
		var companion string
		switch {
		case strings.HasSuffix(name, metaSuffix):
			companion = strings.TrimSuffix(path, metaSuffix) + bodySuffix
		case strings.HasSuffix(name, replySuffix):
		default:
			continue
		}
		if !savedBefore(path, d, cutoff) {
			continue
		}
		removed++
		_ = os.Remove(path)
		if companion != "" {
			_ = os.Remove(companion)
		}
	}
	return removed, nil
}

// savedBefore reads the saved_at stamp shared by PageEntry and Reply.
func savedBefore(path string, d fs.DirEntry, cutoff time.Time) bool {
	var stamp struct {
		SavedAt time.Time `json:"saved_at"`
	}
	if b, err := os.ReadFile(path); err == nil && json.Unmarshal(b, &stamp) == nil && !stamp.SavedAt.IsZero() {
		return stamp.SavedAt.Before(cutoff)
	}
	info, err := d.Info()
	return err == nil && info.ModTime().Before(cutoff)
}
