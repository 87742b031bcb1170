package circuit

import (
	"context"
	"errors"
	"fmt"

	"github.com/samber/lo"
)

// Generator names accepted by the generate-and-render endpoint for text prompts.
const (
	GeminiPro = "text_gemini_pro_v1"
	OpenAI    = "text_openai_v1"
	LLM       = "text_llm_v1"

	DefaultGenerator = GeminiPro
)

var generators = []string{GeminiPro, OpenAI, LLM}

// Generators returns the selectable generator names, default first.
func Generators() []string {
	return append([]string(nil), generators...)
}

func ValidGenerator(name string) bool {
	return lo.Contains(generators, name)
}

type Request struct {
	GeneratorName string
	Prompt        string
}

// Generator turns a prompt into rendered SVG markup.
type Generator interface {
	Generate(context.Context, Request) ([]byte, error)
}

type ErrorKind int

const (
	EmptyInput ErrorKind = iota + 1
	TransportFailure
	ServerError
)

func (k ErrorKind) String() string {
	switch k {
	case EmptyInput:
		return "EmptyInput"
	case TransportFailure:
		return "TransportFailure"
	case ServerError:
		return "ServerError"
	default:
		return "Unknown"
	}
}

const (
	emptyInputMessage = "please describe the circuit you want to build"
	transportMessage  = "failed to reach the circuit generation service"
)

// Error is a failed submission attempt. Message is what the user sees.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewEmptyInputError() *Error {
	return &Error{Kind: EmptyInput, Message: emptyInputMessage}
}

// AsError returns err as an *Error, treating anything unclassified as a
// transport failure.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newTransportError(err)
}

func newTransportError(err error) *Error {
	return &Error{Kind: TransportFailure, Message: transportMessage, Err: err}
}

func newServerError(status int, message string) *Error {
	return &Error{
		Kind:    ServerError,
		Status:  status,
		Message: lo.Ternary(message != "", message, fmt.Sprintf("HTTP error! status: %d", status)),
	}
}
