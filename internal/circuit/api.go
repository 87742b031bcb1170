package circuit

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/dmorgan81/circuitcraft/internal/log"
	"github.com/samber/do"
	"github.com/samber/lo"
	"github.com/tidwall/gjson"
)

const generatePath = "/api/v1/circuits/generate-and-render"

// maxErrorBody bounds how much of a failed response is inspected for a detail message.
const maxErrorBody = 1 << 20

type HTTPGenerator struct {
	Client  *http.Client
	BaseURL string
}

func NewHTTPGenerator(i *do.Injector) (Generator, error) {
	return &HTTPGenerator{
		Client:  do.MustInvoke[*http.Client](i),
		BaseURL: do.MustInvokeNamed[string](i, "api_url"),
	}, nil
}

func (g *HTTPGenerator) Generate(ctx context.Context, req Request) ([]byte, error) {
	logger := log.FromContextOrDiscard(ctx).WithGroup("generator").With("generator_name", req.GeneratorName)
	logger.Info("generating circuit via " + g.BaseURL)

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("generator_name", req.GeneratorName); err != nil {
		return nil, newTransportError(err)
	}
	if err := writer.WriteField("prompt", req.Prompt); err != nil {
		return nil, newTransportError(err)
	}
	if err := writer.Close(); err != nil {
		return nil, newTransportError(err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(g.BaseURL, "/")+generatePath, body)
	if err != nil {
		return nil, newTransportError(err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "image/svg+xml, application/json")

	resp, err := g.client().Do(httpReq)
	if err != nil {
		logger.Error("request failed", "error", err)
		return nil, newTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		logger.Warn("generation rejected", "status", resp.StatusCode)
		return nil, newServerError(resp.StatusCode, detailMessage(data))
	}

	svg, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportError(err)
	}
	logger.Info("received circuit", "bytes", len(svg), "content-type", resp.Header.Get("Content-Type"))
	return svg, nil
}

func (g *HTTPGenerator) client() *http.Client {
	return lo.Ternary(g.Client != nil, g.Client, http.DefaultClient)
}

// detailMessage extracts the human readable "detail" of an error body. Validation
// failures carry a list of objects whose "msg" fields are joined.
func detailMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	detail := gjson.GetBytes(body, "detail")
	switch {
	case detail.Type == gjson.String:
		return detail.Str
	case detail.IsArray():
		msgs := lo.FilterMap(detail.Array(), func(r gjson.Result, _ int) (string, bool) {
			msg := r.Get("msg")
			return msg.Str, msg.Type == gjson.String && msg.Str != ""
		})
		return strings.Join(msgs, "; ")
	}
	return ""
}
