package store

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/google/uuid"
)

// FeedPath is invalidated whenever the archive changes.
const FeedPath = "/feed.rss"

// Archiver records generated diagrams in an Uploader. It implements
// controller.Recorder.
type Archiver struct {
	Uploader    Uploader
	Invalidator Invalidator
	Now         func() time.Time
}

func (a *Archiver) Record(ctx context.Context, rec controller.Record) error {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	date := now().UTC()
	name := fmt.Sprintf("%s%s-%s.svg", Prefix, date.Format("20060102T150405"), uuid.NewString()[:8])

	log.FromContextOrDiscard(ctx).WithGroup("archive").Info("archiving circuit", "name", name)
	err := a.Uploader.Upload(ctx, UploadParams{
		Name:        name,
		Data:        rec.SVG,
		ContentType: "image/svg+xml",
		Metadata:    EncodeMetadata(rec.Prompt, rec.Generator, date),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", name, err)
	}

	if a.Invalidator != nil {
		if err := a.Invalidator.Invalidate(ctx, []string{FeedPath}); err != nil {
			return fmt.Errorf("failed to invalidate feed: %w", err)
		}
	}
	return nil
}

// EncodeMetadata builds object metadata. The prompt is escaped because S3
// user metadata only carries US-ASCII.
func EncodeMetadata(prompt, generator string, date time.Time) map[string]string {
	return map[string]string{
		"prompt":    url.QueryEscape(prompt),
		"generator": generator,
		"date":      date.Format(time.RFC3339),
	}
}

// Metadata is the decoded form of EncodeMetadata.
type Metadata struct {
	Prompt    string
	Generator string
	Date      time.Time
}

func DecodeMetadata(m map[string]string) (Metadata, error) {
	prompt, err := url.QueryUnescape(m["prompt"])
	if err != nil {
		return Metadata{}, fmt.Errorf("bad prompt metadata: %w", err)
	}
	date, err := time.Parse(time.RFC3339, m["date"])
	if err != nil {
		return Metadata{}, fmt.Errorf("bad date metadata: %w", err)
	}
	return Metadata{Prompt: prompt, Generator: m["generator"], Date: date}, nil
}
