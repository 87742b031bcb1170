package store

import (
	"context"
	"encoding/json"
	"os"
	"path"
	"path/filepath"
	"sort"

	"github.com/go-logr/logr"
)

// Prefix is the key prefix every archived diagram is stored under.
const Prefix = "archive/"

type UploadParams struct {
	Name        string
	Data        []byte
	ContentType string
	Metadata    map[string]string
}

type Uploader interface {
	Upload(context.Context, UploadParams) error
}

// Entry is an archived diagram as seen by List.
type Entry struct {
	Name     string
	Metadata map[string]string
}

type Lister interface {
	List(context.Context) ([]Entry, error)
}

// Invalidator drops cached copies of the given paths from a CDN.
type Invalidator interface {
	Invalidate(ctx context.Context, paths []string) error
}

// FileUploader archives into a local directory, keeping the metadata in a
// JSON file next to each object.
type FileUploader struct {
	Dir string
}

func (u *FileUploader) Upload(ctx context.Context, params UploadParams) error {
	log := logr.FromContextOrDiscard(ctx).WithName("file")
	target := filepath.Join(u.Dir, filepath.FromSlash(params.Name))
	log.Info("writing", "file", target)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	meta, err := json.Marshal(params.Metadata)
	if err != nil {
		return err
	}
	if err := os.WriteFile(target, params.Data, 0o644); err != nil {
		return err
	}
	return os.WriteFile(target+".json", meta, 0o644)
}

func (u *FileUploader) List(ctx context.Context) ([]Entry, error) {
	logr.FromContextOrDiscard(ctx).WithName("file").Info("listing", "dir", u.Dir)

	matches, err := filepath.Glob(filepath.Join(u.Dir, filepath.FromSlash(Prefix), "*.svg"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)

	entries := make([]Entry, 0, len(matches))
	for _, m := range matches {
		raw, err := os.ReadFile(m + ".json")
		if err != nil {
			return nil, err
		}
		var meta map[string]string
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Name: path.Join(Prefix, filepath.Base(m)), Metadata: meta})
	}
	return entries, nil
}
