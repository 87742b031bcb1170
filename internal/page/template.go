package page

import (
	"bytes"
	"context"
	_ "embed"
	"html/template"
	"sync"

	"github.com/dmorgan81/circuitcraft/internal/notify"
	"github.com/go-logr/logr"
	"github.com/samber/do"
)

//go:embed assets/index.html
var indexTmpl string

type Option struct {
	Name     string
	Selected bool
}

type Params struct {
	Prompt        string
	Placeholder   string
	Generators    []Option
	InFlight      bool
	ResultURL     template.URL
	Notifications []notify.Notification
}

type Templator struct {
	tmpl *template.Template
	once sync.Once
}

func NewTemplator(*do.Injector) (*Templator, error) {
	return &Templator{}, nil
}

func (g *Templator) Template(ctx context.Context, params Params) ([]byte, error) {
	g.once.Do(func() {
		g.tmpl = template.Must(template.New("index").Parse(indexTmpl))
	})

	log := logr.FromContextOrDiscard(ctx).WithName("templator")
	log.V(1).Info("rendering page", "in_flight", params.InFlight, "has_result", params.ResultURL != "")

	var data bytes.Buffer
	if err := g.tmpl.Execute(&data, params); err != nil {
		return nil, err
	}
	return data.Bytes(), nil
}
