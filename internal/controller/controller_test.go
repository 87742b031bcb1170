package controller

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/dmorgan81/circuitcraft/internal/result"
)

type backend struct {
	calls   atomic.Int32
	mu      sync.Mutex
	prompts []string
	status  int
	body    string
}

func newBackend(t *testing.T, status int, body string) (*backend, *httptest.Server) {
	t.Helper()
	b := &backend{status: status, body: body}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.calls.Add(1)
		b.mu.Lock()
		b.prompts = append(b.prompts, r.FormValue("prompt"))
		status, body := b.status, b.body
		b.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func (b *backend) respond(status int, body string) {
	b.mu.Lock()
	b.status, b.body = status, body
	b.mu.Unlock()
}

func (b *backend) prompt(i int) string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.prompts[i]
}

func newController(srv *httptest.Server, reg *result.Registry, recorder Recorder) (*Controller, *notify.Flash) {
	flash := &notify.Flash{}
	gen := &circuit.HTTPGenerator{Client: srv.Client(), BaseURL: srv.URL}
	return New(gen, reg, flash, recorder), flash
}

func TestSubmitRejectsEmptyInput(t *testing.T) {
	b, srv := newBackend(t, 200, "<svg/>")
	reg := result.NewRegistry("/results")
	c, flash := newController(srv, reg, nil)
	c.SetPrompt("draft")

	for _, in := range []string{"", " ", "\t\n", "   \r\n  "} {
		err := c.Submit(context.Background(), in)

		var cerr *circuit.Error
		if !errors.As(err, &cerr) || cerr.Kind != circuit.EmptyInput {
			t.Errorf("Submit(%q) = %v, want EmptyInput", in, err)
		}
		notes := flash.Drain()
		if len(notes) != 1 {
			t.Errorf("Submit(%q) produced %d notifications, want 1", in, len(notes))
		}
	}
	if got := b.calls.Load(); got != 0 {
		t.Errorf("backend called %d times, want 0", got)
	}
	if c.Prompt() != "draft" || c.State() != Idle || c.Result() != nil {
		t.Errorf("state changed: prompt=%q state=%v result=%v", c.Prompt(), c.State(), c.Result())
	}
}

func TestSubmitSuccess(t *testing.T) {
	b, srv := newBackend(t, 200, "<svg>A</svg>")
	reg := result.NewRegistry("/results")
	c, flash := newController(srv, reg, nil)

	if err := c.Submit(context.Background(), "battery, resistor and LED in series"); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if got := b.calls.Load(); got != 1 {
		t.Errorf("backend called %d times, want 1", got)
	}
	if got := b.prompt(0); got != "battery, resistor and LED in series" {
		t.Errorf("backend saw prompt %q", got)
	}
	h := c.Result()
	if h == nil {
		t.Fatal("expected a result handle")
	}
	if string(h.SVG()) != "<svg>A</svg>" {
		t.Errorf("SVG = %q", h.SVG())
	}
	served, ok := reg.Lookup(strings.TrimPrefix(h.URL(), "/results/"))
	if !ok || string(served) != "<svg>A</svg>" {
		t.Errorf("registry serves %q, %v", served, ok)
	}
	if c.State() != Idle {
		t.Errorf("State = %v, want Idle", c.State())
	}
	if c.Prompt() != "battery, resistor and LED in series" {
		t.Errorf("Prompt = %q", c.Prompt())
	}
	if notes := flash.Drain(); len(notes) != 0 {
		t.Errorf("unexpected notifications %+v", notes)
	}
}

func TestSubmitServerErrorNotifiesDetail(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		check func(string) bool
	}{
		{"structured detail", `{"detail":"backend overloaded"}`, func(m string) bool { return m == "backend overloaded" }},
		{"unparseable body", `Internal Server Error`, func(m string) bool { return strings.Contains(m, "500") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv := newBackend(t, 500, tt.body)
			reg := result.NewRegistry("/results")
			c, flash := newController(srv, reg, nil)

			err := c.Submit(context.Background(), "x")
			var cerr *circuit.Error
			if !errors.As(err, &cerr) || cerr.Kind != circuit.ServerError {
				t.Fatalf("Submit = %v, want ServerError", err)
			}
			notes := flash.Drain()
			if len(notes) != 1 {
				t.Fatalf("got %d notifications, want 1", len(notes))
			}
			if !tt.check(notes[0].Message) {
				t.Errorf("message = %q", notes[0].Message)
			}
			if c.Result() != nil {
				t.Error("failed submission must not set a result")
			}
			if c.State() != Idle {
				t.Errorf("State = %v, want Idle", c.State())
			}
		})
	}
}

func TestSubmitTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	reg := result.NewRegistry("/results")
	c, flash := newController(srv, reg, nil)

	err := c.Submit(context.Background(), "x")
	var cerr *circuit.Error
	if !errors.As(err, &cerr) || cerr.Kind != circuit.TransportFailure {
		t.Fatalf("Submit = %v, want TransportFailure", err)
	}
	if notes := flash.Drain(); len(notes) != 1 {
		t.Errorf("got %d notifications, want 1", len(notes))
	}
	if c.State() != Idle {
		t.Errorf("State = %v, want Idle", c.State())
	}
}

func TestSubmitFailureClearsPreviousResult(t *testing.T) {
	b, srv := newBackend(t, 200, "<svg>A</svg>")
	reg := result.NewRegistry("/results")
	c, _ := newController(srv, reg, nil)

	if err := c.Submit(context.Background(), "first"); err != nil {
		t.Fatal(err)
	}
	b.respond(500, `{"detail":"nope"}`)
	if err := c.Submit(context.Background(), "second"); err == nil {
		t.Fatal("expected failure")
	}
	if c.Result() != nil {
		t.Error("previous result should be cleared at submission start")
	}
	if reg.Len() != 0 {
		t.Errorf("registry holds %d objects, want 0", reg.Len())
	}
}

func TestSequentialSubmissionsReleasePreviousHandle(t *testing.T) {
	_, srv := newBackend(t, 200, "<svg>A</svg>")
	reg := result.NewRegistry("/results")
	c, _ := newController(srv, reg, nil)
	ctx := context.Background()

	if err := c.Submit(ctx, "same prompt"); err != nil {
		t.Fatal(err)
	}
	first := c.Result()
	if err := c.Submit(ctx, "same prompt"); err != nil {
		t.Fatal(err)
	}
	second := c.Result()

	if first == second || first.URL() == second.URL() {
		t.Fatal("identical prompts should produce independent handles")
	}
	if _, ok := reg.Lookup(strings.TrimPrefix(first.URL(), "/results/")); ok {
		t.Error("first handle should be released")
	}
	if _, ok := reg.Lookup(strings.TrimPrefix(second.URL(), "/results/")); !ok {
		t.Error("second handle should be live")
	}
	if reg.Len() != 1 {
		t.Errorf("registry holds %d objects, want 1", reg.Len())
	}
	if string(first.SVG()) != "<svg>A</svg>" || string(second.SVG()) != "<svg>A</svg>" {
		t.Error("handles should keep their own content")
	}
}

func TestCloseReleasesResult(t *testing.T) {
	b, srv := newBackend(t, 200, "<svg>A</svg>")
	reg := result.NewRegistry("/results")
	c, flash := newController(srv, reg, nil)

	if err := c.Submit(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	if reg.Len() != 0 {
		t.Errorf("registry holds %d objects after Close", reg.Len())
	}
	if c.Result() != nil {
		t.Error("Close should clear the result")
	}
	if err := c.Submit(context.Background(), "y"); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if b.calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", b.calls.Load())
	}
	if notes := flash.Drain(); len(notes) != 0 {
		t.Errorf("closed controller should not notify, got %+v", notes)
	}
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(ctx context.Context, req circuit.Request) ([]byte, error) {
	close(g.started)
	<-g.release
	return []byte("<svg/>"), nil
}

func TestStateIsInFlightWhileGenerating(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	reg := result.NewRegistry("/results")
	c := New(gen, reg, &notify.Flash{}, nil)

	done := make(chan error)
	go func() { done <- c.Submit(context.Background(), "x") }()

	<-gen.started
	if c.State() != InFlight {
		t.Errorf("State = %v, want InFlight", c.State())
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	close(gen.release)

	if err := <-done; !errors.Is(err, ErrClosed) {
		t.Errorf("Submit = %v, want ErrClosed", err)
	}
	if reg.Len() != 0 {
		t.Errorf("result allocated for closed controller")
	}
	if c.State() != Idle {
		t.Errorf("State = %v, want Idle", c.State())
	}
}

type recorderFunc func(context.Context, Record) error

func (f recorderFunc) Record(ctx context.Context, r Record) error { return f(ctx, r) }

func TestRecorderSeesSuccessOnly(t *testing.T) {
	b, srv := newBackend(t, 200, "<svg>A</svg>")
	reg := result.NewRegistry("/results")
	var records []Record
	c, flash := newController(srv, reg, recorderFunc(func(_ context.Context, r Record) error {
		records = append(records, r)
		return errors.New("archive offline")
	}))
	if err := c.SetGenerator(circuit.OpenAI); err != nil {
		t.Fatal(err)
	}

	if err := c.Submit(context.Background(), "x"); err != nil {
		t.Fatalf("recorder failure must not fail the submission: %v", err)
	}
	b.respond(500, "")
	_ = c.Submit(context.Background(), "y")

	if len(records) != 1 {
		t.Fatalf("got %d records, want 1", len(records))
	}
	if records[0].Prompt != "x" || records[0].Generator != circuit.OpenAI || string(records[0].SVG) != "<svg>A</svg>" {
		t.Errorf("record = %+v", records[0])
	}
	if notes := flash.Drain(); len(notes) != 1 {
		t.Errorf("got %d notifications, want 1 (the server error)", len(notes))
	}
}

func TestSetGenerator(t *testing.T) {
	c := New(nil, nil, &notify.Flash{}, nil)
	if c.Generator() != circuit.DefaultGenerator {
		t.Errorf("Generator = %q", c.Generator())
	}
	if err := c.SetGenerator("image_vision_v1"); err == nil {
		t.Error("expected error for unknown generator")
	}
	if c.Generator() != circuit.DefaultGenerator {
		t.Errorf("failed SetGenerator changed selection to %q", c.Generator())
	}
	if err := c.SetGenerator(circuit.LLM); err != nil || c.Generator() != circuit.LLM {
		t.Errorf("SetGenerator(LLM) = %v, Generator = %q", err, c.Generator())
	}
}

func TestFactory(t *testing.T) {
	_, srv := newBackend(t, 200, "<svg/>")
	f := &Factory{
		Generator:        &circuit.HTTPGenerator{Client: srv.Client(), BaseURL: srv.URL},
		Encoder:          result.DataURLEncoder{},
		DefaultGenerator: circuit.LLM,
	}
	c := f.New(&notify.Flash{})
	if c.Generator() != circuit.LLM {
		t.Errorf("Generator = %q", c.Generator())
	}
	if err := c.Submit(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(c.Result().URL(), "data:image/svg+xml;base64,") {
		t.Errorf("URL = %q", c.Result().URL())
	}
}

func TestDataURLResultReadableDuringResubmit(t *testing.T) {
	_, srv := newBackend(t, 200, "<svg/>")
	c := New(&circuit.HTTPGenerator{Client: srv.Client(), BaseURL: srv.URL}, result.DataURLEncoder{}, &notify.Flash{}, nil)
	if err := c.Submit(context.Background(), "x"); err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
			}
			if res := c.Result(); res != nil && !strings.HasPrefix(res.URL(), "data:") {
				t.Errorf("URL = %q", res.URL())
				return
			}
		}
	}()
	for range 5 {
		if err := c.Submit(context.Background(), "y"); err != nil {
			t.Error(err)
		}
	}
	close(stop)
	wg.Wait()
}
