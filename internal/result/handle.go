package result

import (
	"encoding/base64"
	"fmt"

	"github.com/samber/do"
)

const ContentType = "image/svg+xml"

// Encoding names accepted by NewEncoder.
const (
	ObjectURL = "object"
	DataURL   = "data"
)

// Handle references a displayable SVG image. Release frees whatever backs URL
// and is safe to call more than once.
type Handle interface {
	URL() string
	SVG() []byte
	Release()
}

// Encoder wraps a freshly generated SVG document into a Handle.
type Encoder interface {
	Encode(svg []byte) Handle
}

func NewEncoder(i *do.Injector) (Encoder, error) {
	switch encoding := do.MustInvokeNamed[string](i, "result_encoding"); encoding {
	case ObjectURL, "":
		return do.MustInvoke[*Registry](i), nil
	case DataURL:
		return DataURLEncoder{}, nil
	default:
		return nil, fmt.Errorf("unknown result encoding %q", encoding)
	}
}

// DataURLEncoder inlines the document as a base64 data URL. Nothing outside the
// handle holds the bytes, so Release has nothing to free.
type DataURLEncoder struct{}

func (DataURLEncoder) Encode(svg []byte) Handle {
	return dataHandle{
		url: "data:" + ContentType + ";base64," + base64.StdEncoding.EncodeToString(svg),
		svg: svg,
	}
}

// dataHandle is immutable and may be read while its owner releases it.
type dataHandle struct {
	url string
	svg []byte
}

func (h dataHandle) URL() string { return h.url }
func (h dataHandle) SVG() []byte { return h.svg }
func (dataHandle) Release() {}
