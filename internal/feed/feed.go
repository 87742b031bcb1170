package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/store"
	"github.com/gorilla/feeds"
	"github.com/samber/do"
)

type Generator struct {
	lister store.Lister
	site   string
}

func New(lister store.Lister, site string) *Generator {
	return &Generator{lister: lister, site: strings.TrimRight(site, "/")}
}

func NewGenerator(i *do.Injector) (*Generator, error) {
	lister := do.MustInvoke[store.Lister](i)
	if lister == nil {
		return nil, nil
	}
	return New(lister, do.MustInvokeNamed[string](i, "site_url")), nil
}

// Generate renders the archive as an RSS document, newest first.
func (g *Generator) Generate(ctx context.Context) ([]byte, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("feed")
	logger.Info("generating rss feed")

	feed := feeds.Feed{
		Title:       "Circuit Craft AI",
		Description: "Circuit diagrams generated from plain language",
		Link:        &feeds.Link{Href: g.site},
		Updated:     time.Now(),
	}

	entries, err := g.lister.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		meta, err := store.DecodeMetadata(e.Metadata)
		if err != nil {
			logger.Warn("skipping archive entry", "name", e.Name, "error", err)
			continue
		}
		feed.Add(&feeds.Item{
			Title:       meta.Prompt,
			Description: fmt.Sprintf("generated by %s", meta.Generator),
			Link:        &feeds.Link{Href: g.site + "/" + e.Name},
			Id:          e.Name,
			Created:     meta.Date,
			Updated:     meta.Date,
		})
	}

	feed.Sort(func(a, b *feeds.Item) bool {
		return a.Updated.After(b.Updated)
	})
	rss, err := feed.ToRss()
	return []byte(rss), err
}
