// Package controller holds the state behind the circuit form: the prompt being
// edited, the diagram currently on display and whether a generation request is
// outstanding.
package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmorgan81/circuitcraft/internal/circuit"
	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/dmorgan81/circuitcraft/internal/result"
	"github.com/samber/do"
)

type State int

const (
	Idle State = iota
	InFlight
)

func (s State) String() string {
	if s == InFlight {
		return "InFlight"
	}
	return "Idle"
}

var ErrClosed = errors.New("controller closed")

// Record describes a successfully generated diagram.
type Record struct {
	Prompt    string
	Generator string
	SVG       []byte
}

// Recorder is told about every successful generation.
type Recorder interface {
	Record(context.Context, Record) error
}

// Controller runs one submission at a time on behalf of a single user. It does
// not reject overlapping Submit calls; callers disable their submit control
// while State reports InFlight. Overlapping submissions have no ordering
// guarantee.
type Controller struct {
	generator circuit.Generator
	encoder   result.Encoder
	notifier  notify.Notifier
	recorder  Recorder

	mu            sync.Mutex
	prompt        string
	generatorName string
	current       result.Handle
	state         State
	closed        bool
}

// New returns an idle controller. recorder may be nil.
func New(generator circuit.Generator, encoder result.Encoder, notifier notify.Notifier, recorder Recorder) *Controller {
	return &Controller{
		generator:     generator,
		encoder:       encoder,
		notifier:      notifier,
		recorder:      recorder,
		generatorName: circuit.DefaultGenerator,
	}
}

// Submit validates promptText, asks the generator for a diagram and makes the
// result current. Every failure is reported to the notifier exactly once and
// also returned.
func (c *Controller) Submit(ctx context.Context, promptText string) error {
	logger := log.FromContextOrDiscard(ctx).WithGroup("controller")

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if strings.TrimSpace(promptText) == "" {
		c.mu.Unlock()
		err := circuit.NewEmptyInputError()
		logger.Info("rejected empty prompt")
		c.notifier.Notify(ctx, notify.Error(err.Message))
		return err
	}

	c.prompt = promptText
	c.state = InFlight
	c.releaseLocked()
	req := circuit.Request{GeneratorName: c.generatorName, Prompt: promptText}
	c.mu.Unlock()

	logger.Info("submitting prompt", "generator_name", req.GeneratorName)
	svg, err := c.generator.Generate(ctx, req)

	c.mu.Lock()
	c.state = Idle
	if err != nil {
		c.mu.Unlock()
		cerr := circuit.AsError(err)
		logger.Error("generation failed", "kind", cerr.Kind.String(), "status", cerr.Status, "error", cerr)
		c.notifier.Notify(ctx, notify.Error(cerr.Message))
		return cerr
	}
	if c.closed {
		c.mu.Unlock()
		logger.Info("discarding result for closed controller")
		return ErrClosed
	}
	handle := c.encoder.Encode(svg)
	c.releaseLocked()
	c.current = handle
	c.mu.Unlock()

	logger.Info("circuit ready", "bytes", len(svg))
	if c.recorder != nil {
		rec := Record{Prompt: req.Prompt, Generator: req.GeneratorName, SVG: svg}
		if err := c.recorder.Record(ctx, rec); err != nil {
			logger.Error("recording circuit failed", "error", err)
		}
	}
	return nil
}

func (c *Controller) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prompt
}

// SetPrompt mirrors the user's edits of the prompt field.
func (c *Controller) SetPrompt(prompt string) {
	c.mu.Lock()
	c.prompt = prompt
	c.mu.Unlock()
}

func (c *Controller) Generator() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generatorName
}

func (c *Controller) SetGenerator(name string) error {
	if !circuit.ValidGenerator(name) {
		return fmt.Errorf("unknown generator %q", name)
	}
	c.mu.Lock()
	c.generatorName = name
	c.mu.Unlock()
	return nil
}

// Result returns the current diagram, or nil.
func (c *Controller) Result() result.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Close releases the current diagram. Later submissions fail with ErrClosed.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.releaseLocked()
	return nil
}

func (c *Controller) releaseLocked() {
	if c.current != nil {
		c.current.Release()
		c.current = nil
	}
}

// Factory builds controllers that share a generator, encoder and recorder.
type Factory struct {
	Generator        circuit.Generator
	Encoder          result.Encoder
	Recorder         Recorder
	DefaultGenerator string
}

func NewFactory(i *do.Injector) (*Factory, error) {
	name := do.MustInvokeNamed[string](i, "generator_name")
	if !circuit.ValidGenerator(name) {
		return nil, fmt.Errorf("unknown generator %q", name)
	}
	return &Factory{
		Generator:        do.MustInvoke[circuit.Generator](i),
		Encoder:          do.MustInvoke[result.Encoder](i),
		Recorder:         do.MustInvoke[Recorder](i),
		DefaultGenerator: name,
	}, nil
}

func (f *Factory) New(notifier notify.Notifier) *Controller {
	c := New(f.Generator, f.Encoder, notifier, f.Recorder)
	if f.DefaultGenerator != "" {
		c.generatorName = f.DefaultGenerator
	}
	return c
}
