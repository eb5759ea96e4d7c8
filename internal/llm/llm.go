// Package llm wraps language model providers behind a pull-based stream of
// text fragments.
package llm

import (
	"context"
	stderrors "errors"
	"io"
	"net"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"

	"github.com/hpungsan/testsmith/internal/errors"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one chat turn.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// System, User and Assistant build messages.
func System(s string) Message    { return Message{Role: RoleSystem, Content: s} }
func User(s string) Message      { return Message{Role: RoleUser, Content: s} }
func Assistant(s string) Message { return Message{Role: RoleAssistant, Content: s} }

// Stream yields reply fragments. Next returns io.EOF after the last
// fragment; any other error is a STREAM_ERROR.
type Stream interface {
	Next(ctx context.Context) (string, error)
	Close() error
}

// Prime reads the first fragment of s so that a request the provider
// rejects fails here rather than on the caller's first Next. The SDK streams
// only send the HTTP request when first read. On failure s is closed. The
// returned stream replays the fragment it read.
func Prime(ctx context.Context, s Stream) (Stream, error) {
	frag, err := s.Next(ctx)
	if err == io.EOF {
		return &primedStream{Stream: s, eof: true, pending: true}, nil
	}
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return &primedStream{Stream: s, first: frag, pending: true}, nil
}

type primedStream struct {
	Stream
	first   string
	pending bool
	eof     bool
}

func (p *primedStream) Next(ctx context.Context) (string, error) {
	if p.eof {
		return "", io.EOF
	}
	if p.pending {
		p.pending = false
		return p.first, nil
	}
	return p.Stream.Next(ctx)
}

// Model sends a conversation and streams the reply.
type Model interface {
	Name() string
	Stream(ctx context.Context, messages []Message) (Stream, error)
}

// eventStream is the shape shared by the SDK server-sent-event streams.
type eventStream[T any] interface {
	Next() bool
	Current() T
	Err() error
	Close() error
}

// sdkStream adapts an SDK event stream. decode extracts the text of one
// event, or an error when the event ends the reply abnormally.
type sdkStream[T any] struct {
	events eventStream[T]
	decode func(T) (string, error)
	got    bool
	done   bool
}

func newSDKStream[T any](events eventStream[T], decode func(T) (string, error)) *sdkStream[T] {
	return &sdkStream[T]{events: events, decode: decode}
}

func (s *sdkStream[T]) Next(ctx context.Context) (string, error) {
	if s.done {
		return "", io.EOF
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	for s.events.Next() {
		text, err := s.decode(s.events.Current())
		if err != nil {
			s.done = true
			return "", err
		}
		if text != "" {
			s.got = true
			return text, nil
		}
	}
	s.done = true
	if err := s.events.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", classify(err)
	}
	if !s.got {
		return "", errors.NewStreamError(errors.ReasonNoResponse, stderrors.New("model returned an empty reply"))
	}
	return "", io.EOF
}

func (s *sdkStream[T]) Close() error {
	return s.events.Close()
}

// classify maps a provider failure to a STREAM_ERROR reason.
func classify(err error) error {
	var sErr *errors.SmithError
	if stderrors.As(err, &sErr) {
		return err
	}

	if status, ok := statusOf(err); ok {
		return errors.NewStreamError(reasonForStatus(status, err.Error()), err)
	}

	var netErr net.Error
	if stderrors.As(err, &netErr) || stderrors.Is(err, io.ErrUnexpectedEOF) || stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewStreamError(errors.ReasonNoResponse, err)
	}
	return errors.NewStreamError(errors.ReasonUnknown, err)
}

// statusOf extracts the HTTP status from the SDK API error types.
func statusOf(err error) (int, bool) {
	var aErr *anthropic.Error
	if stderrors.As(err, &aErr) {
		return aErr.StatusCode, true
	}
	var oErr *openai.Error
	if stderrors.As(err, &oErr) {
		return oErr.StatusCode, true
	}
	return 0, false
}

func reasonForStatus(status int, body string) errors.StreamReason {
	switch {
	case strings.Contains(body, "off_topic"):
		return errors.ReasonOffTopic
	case status == 400 || status == 413 || status == 422:
		return errors.ReasonInvalidRequest
	case status == 401 || status == 403 || status == 404 || status == 405:
		return errors.ReasonNotSupported
	case status == 408 || status == 429 || status >= 500:
		return errors.ReasonNoResponse
	}
	return errors.ReasonUnknown
}
