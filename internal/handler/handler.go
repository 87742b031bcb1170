package handler

import (
	"context"
	"html/template"
	"net/http"
	"path"
	"strings"

	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/controller"
	"github.com/dmorgan81/circuitcraft/internal/feed"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/dmorgan81/circuitcraft/internal/page"
	"github.com/dmorgan81/circuitcraft/internal/prompt"
	"github.com/dmorgan81/circuitcraft/internal/result"
	"github.com/dmorgan81/circuitcraft/internal/session"
	"github.com/dmorgan81/circuitcraft/internal/store"
	"github.com/samber/do"
	"github.com/samber/lo"
)

const alreadyRunningMessage = "a circuit is already being generated, please wait"

type Handler struct {
	sessions    *session.Manager
	templator   *page.Templator
	randomizer  *prompt.Randomizer
	registry    *result.Registry
	feed        *feed.Generator
	resultsPath string
	archiveDir  string
}

func NewHandler(i *do.Injector) (*Handler, error) {
	return &Handler{
		sessions:    do.MustInvoke[*session.Manager](i),
		templator:   do.MustInvoke[*page.Templator](i),
		randomizer:  do.MustInvoke[*prompt.Randomizer](i),
		registry:    do.MustInvoke[*result.Registry](i),
		feed:        do.MustInvoke[*feed.Generator](i),
		resultsPath: strings.TrimRight(do.MustInvokeNamed[string](i, "results_path"), "/"),
		archiveDir:  do.MustInvokeNamed[string](i, "archive_dir"),
	}, nil
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.index)
	mux.HandleFunc("POST /generate", h.generate)
	mux.HandleFunc("GET "+h.resultsPath+"/{id}", h.result)
	mux.HandleFunc("GET "+store.FeedPath, h.rss)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if h.archiveDir != "" {
		mux.Handle("GET /archive/{name}", svgOnly(http.FileServer(http.Dir(h.archiveDir))))
	}
	return mux
}

// svgOnly hides the metadata sidecars stored next to archived diagrams.
func svgOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if path.Ext(r.PathValue("name")) != ".svg" {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) session(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(session.CookieName); err == nil {
		id = c.Value
	}
	s := h.sessions.Get(r.Context(), id)
	if s.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    s.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s
}

func (h *Handler) index(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s := h.session(w, r)
	c := s.Controller

	params := page.Params{
		Prompt:      c.Prompt(),
		Placeholder: h.randomizer.Randomize(ctx),
		Generators: lo.Map(circuit.Generators(), func(name string, _ int) page.Option {
			return page.Option{Name: name, Selected: name == c.Generator()}
		}),
		InFlight:      c.State() == controller.InFlight,
		Notifications: s.Flash.Drain(),
	}
	if res := c.Result(); res != nil {
		// Handle URLs are minted by the registry or are base64 data URLs.
		params.ResultURL = template.URL(res.URL())
	}

	html, err := h.templator.Template(ctx, params)
	if err != nil {
		log.FromContextOrDiscard(ctx).Error("rendering page failed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(html)
}

func (h *Handler) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.FromContextOrDiscard(ctx).WithGroup("handler")
	s := h.session(w, r)
	c := s.Controller

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	defer http.Redirect(w, r, "/", http.StatusSeeOther)

	if c.State() == controller.InFlight {
		s.Flash.Notify(ctx, notify.Error(alreadyRunningMessage))
		return
	}
	if name := r.PostFormValue("generator_name"); name != "" {
		if err := c.SetGenerator(name); err != nil {
			s.Flash.Notify(ctx, notify.Error(err.Error()))
			return
		}
	}

	// A started submission runs to completion even if the browser goes away.
	if err := c.Submit(context.WithoutCancel(ctx), r.PostFormValue("prompt")); err != nil {
		logger.Info("submission failed", "session", s.ID, "error", err)
	}
}

func (h *Handler) result(w http.ResponseWriter, r *http.Request) {
	svg, ok := h.registry.Lookup(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", result.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=3600")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	_, _ = w.Write(svg)
}

func (h *Handler) rss(w http.ResponseWriter, r *http.Request) {
	if h.feed == nil {
		http.NotFound(w, r)
		return
	}
	rss, err := h.feed.Generate(r.Context())
	if err != nil {
		log.FromContextOrDiscard(r.Context()).Error("generating feed failed", "error", err)
		http.Error(w, http.StatusText(http.StatusBadGateway), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	_, _ = w.Write(rss)
}
