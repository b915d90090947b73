package gateway

import (
	"context"
	"errors"
	"net"
)

// Kind classifies a failure the way it is shown to the learner.
type Kind string

const (
	KindConnectivity Kind = "connectivity"
	KindUpstreamDown Kind = "upstream_down"
	KindTimeout      Kind = "timeout"
	KindMalformed    Kind = "malformed"
	KindValidation   Kind = "validation"
	KindServer       Kind = "server"
)

const (
	MsgConnectivity   = "Cannot connect to the backend server. Please make sure it is running."
	MsgUpstreamDown   = "The AI service is not connected. Please start Ollama and try again."
	MsgTimeout        = "The request timed out. Try a shorter input or try again later."
	MsgInvalidReply   = "Invalid response received from server"
	MsgInvalidQuiz    = "Invalid quiz data received from server"
	MsgNotResponding  = "Server is not responding correctly"
	MsgEmptyInput     = "Please enter some text before submitting"
	MsgGenericFailure = "Something went wrong while talking to the AI service"
)

// Error is the terminal failure of one gateway interaction. Nothing retries it.
type Error struct {
	Kind    Kind
	Message string
	Status  int // upstream HTTP status when known
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error of the given kind.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Validation is shorthand for a client-side rejection; no request was sent.
func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Message: message}
}

// KindOf returns the kind of err, or "" when err is not a gateway error.
func KindOf(err error) Kind {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Kind
	}
	return ""
}

// MessageOf returns the learner-facing message for err.
func MessageOf(err error) string {
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	if err == nil {
		return ""
	}
	return MsgGenericFailure
}

// FromError turns an arbitrary provider failure into an *Error. Errors that
// already carry a kind pass through; timeouts and network failures keep their
// own kinds; anything else is a server error with message as the learner text.
func FromError(ctx context.Context, err error, message string) error {
	if err == nil {
		return nil
	}
	var gwErr *Error
	if errors.As(err, &gwErr) {
		return gwErr
	}
	if isTimeout(ctx, err) {
		return NewError(KindTimeout, MsgTimeout, err)
	}
	var netErr net.Error
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.As(err, &netErr) {
		return NewError(KindConnectivity, MsgConnectivity, err)
	}
	if message == "" {
		message = MsgGenericFailure
	}
	return NewError(KindServer, message, err)
}

// classifyTransport maps a failed round trip onto connectivity or timeout.
func classifyTransport(ctx context.Context, err error) *Error {
	if isTimeout(ctx, err) {
		return NewError(KindTimeout, MsgTimeout, err)
	}
	return NewError(KindConnectivity, MsgConnectivity, err)
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
