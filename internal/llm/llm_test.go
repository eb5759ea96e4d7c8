package llm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/url"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/openai/openai-go/v3"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/testsmith/internal/config"
	"github.com/hpungsan/testsmith/internal/errors"
)

type fakeEvents struct {
	items  []string
	pos    int
	err    error
	closed bool
}

func (f *fakeEvents) Next() bool {
	if f.pos >= len(f.items) {
		return false
	}
	f.pos++
	return true
}

func (f *fakeEvents) Current() string { return f.items[f.pos-1] }
func (f *fakeEvents) Err() error      { return f.err }
func (f *fakeEvents) Close() error    { f.closed = true; return nil }

func passthrough(s string) (string, error) {
	if s == "REFUSE" {
		return "", errors.NewStreamError(errors.ReasonOffTopic, nil)
	}
	return s, nil
}

func drain(t *testing.T, s Stream) ([]string, error) {
	t.Helper()
	var out []string
	for {
		frag, err := s.Next(context.Background())
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		out = append(out, frag)
	}
}

func TestSDKStream(t *testing.T) {
	t.Run("skips empty events", func(t *testing.T) {
		ev := &fakeEvents{items: []string{"", "a", "", "b"}}
		s := newSDKStream[string](ev, passthrough)
		got, err := drain(t, s)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, got)

		_, err = s.Next(context.Background())
		require.Equal(t, io.EOF, err)
		require.NoError(t, s.Close())
		require.True(t, ev.closed)
	})

	t.Run("empty reply is no_response", func(t *testing.T) {
		_, err := drain(t, newSDKStream[string](&fakeEvents{items: []string{""}}, passthrough))
		require.True(t, errors.Is(err, errors.ErrStream))
		require.Equal(t, errors.ReasonNoResponse, errors.Reason(err))
	})

	t.Run("decode error stops the stream", func(t *testing.T) {
		got, err := drain(t, newSDKStream[string](&fakeEvents{items: []string{"a", "REFUSE", "b"}}, passthrough))
		require.Equal(t, []string{"a"}, got)
		require.Equal(t, errors.ReasonOffTopic, errors.Reason(err))
	})

	t.Run("transport error is classified", func(t *testing.T) {
		got, err := drain(t, newSDKStream[string](&fakeEvents{items: []string{"a"}, err: io.ErrUnexpectedEOF}, passthrough))
		require.Equal(t, []string{"a"}, got)
		require.Equal(t, errors.ReasonNoResponse, errors.Reason(err))
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := newSDKStream[string](&fakeEvents{items: []string{"a"}}, passthrough).Next(ctx)
		require.ErrorIs(t, err, context.Canceled)
	})
}

func apiRequest(t *testing.T) *http.Request {
	t.Helper()
	u, err := url.Parse("https://api.example.test/v1/messages")
	require.NoError(t, err)
	return &http.Request{Method: http.MethodPost, URL: u}
}

func TestClassify(t *testing.T) {
	req := apiRequest(t)
	anthropicErr := func(status int) error {
		return &anthropic.Error{StatusCode: status, Request: req, Response: &http.Response{StatusCode: status}}
	}
	openaiErr := func(status int) error {
		return &openai.Error{StatusCode: status, Request: req, Response: &http.Response{StatusCode: status}}
	}

	tests := []struct {
		name string
		err  error
		want errors.StreamReason
	}{
		{"anthropic 400", anthropicErr(400), errors.ReasonInvalidRequest},
		{"anthropic 404", anthropicErr(404), errors.ReasonNotSupported},
		{"anthropic 529", anthropicErr(529), errors.ReasonNoResponse},
		{"openai 405", openaiErr(405), errors.ReasonNotSupported},
		{"openai 429", openaiErr(429), errors.ReasonNoResponse},
		{"openai 418", openaiErr(418), errors.ReasonUnknown},
		{"deadline", context.DeadlineExceeded, errors.ReasonNoResponse},
		{"plain", stderrors.New("boom"), errors.ReasonUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify(tt.err)
			require.True(t, errors.Is(err, errors.ErrStream))
			require.Equal(t, tt.want, errors.Reason(err))
			require.ErrorIs(t, err, tt.err)
		})
	}

	typed := errors.NewStreamError(errors.ReasonOffTopic, nil)
	require.Same(t, typed, classify(typed))
}

func TestReasonForStatus_OffTopicBody(t *testing.T) {
	require.Equal(t, errors.ReasonOffTopic, reasonForStatus(400, `{"error":{"code":"off_topic"}}`))
}

func TestDecodeAnthropicEvent(t *testing.T) {
	var delta anthropic.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"hello"}}`), &delta))
	text, err := decodeAnthropicEvent(delta)
	require.NoError(t, err)
	require.Equal(t, "hello", text)

	var start anthropic.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`), &start))
	text, err = decodeAnthropicEvent(start)
	require.NoError(t, err)
	require.Empty(t, text)

	var refusal anthropic.MessageStreamEventUnion
	require.NoError(t, json.Unmarshal([]byte(`{"type":"message_delta","delta":{"stop_reason":"refusal","stop_sequence":null},"usage":{"output_tokens":1}}`), &refusal))
	_, err = decodeAnthropicEvent(refusal)
	require.Equal(t, errors.ReasonOffTopic, errors.Reason(err))
}

func TestDecodeOpenAIChunk(t *testing.T) {
	var chunk openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{"content":"hi"},"finish_reason":null}]}`), &chunk))
	text, err := decodeOpenAIChunk(chunk)
	require.NoError(t, err)
	require.Equal(t, "hi", text)

	var filtered openai.ChatCompletionChunk
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","object":"chat.completion.chunk","created":1,"model":"m","choices":[{"index":0,"delta":{},"finish_reason":"content_filter"}]}`), &filtered))
	_, err = decodeOpenAIChunk(filtered)
	require.Equal(t, errors.ReasonOffTopic, errors.Reason(err))

	text, err = decodeOpenAIChunk(openai.ChatCompletionChunk{})
	require.NoError(t, err)
	require.Empty(t, text)
}

func TestAnthropicParams(t *testing.T) {
	a := NewAnthropic(AnthropicConfig{APIKey: "k", Model: "claude-test", MaxTokens: 100})
	params, err := a.params([]Message{
		System("be terse"),
		Assistant("old answer 1"),
		Assistant("old answer 2"),
		User("write a test"),
	})
	require.NoError(t, err)
	require.Len(t, params.System, 1)
	require.Equal(t, "be terse", params.System[0].Text)
	require.Len(t, params.Messages, 2)
	require.Equal(t, anthropic.MessageParamRole("assistant"), params.Messages[0].Role)
	require.Equal(t, "old answer 1\n\nold answer 2", params.Messages[0].Content[0].OfText.Text)
	require.Equal(t, int64(100), params.MaxTokens)

	_, err = a.params([]Message{System("only system")})
	require.Equal(t, errors.ReasonInvalidRequest, errors.Reason(err))
}

func TestOpenAIParams(t *testing.T) {
	o := NewOpenAI(OpenAIConfig{APIKey: "k", Model: "gpt-test", MaxTokens: 50})
	params, err := o.params([]Message{System("s"), Assistant("a"), User("u")})
	require.NoError(t, err)
	require.Len(t, params.Messages, 3)
	require.NotNil(t, params.Messages[0].OfSystem)
	require.NotNil(t, params.Messages[1].OfAssistant)
	require.NotNil(t, params.Messages[2].OfUser)

	_, err = o.params([]Message{{Role: "tool", Content: "x"}})
	require.Equal(t, errors.ReasonInvalidRequest, errors.Reason(err))
}

func TestScripted(t *testing.T) {
	m := &Scripted{Replies: [][]string{{"a", "b"}, {"c"}}}
	ctx := context.Background()

	for _, want := range [][]string{{"a", "b"}, {"c"}, {"c"}} {
		s, err := m.Stream(ctx, []Message{User("q")})
		require.NoError(t, err)
		got, err := drain(t, s)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Len(t, m.Calls(), 3)
	require.Equal(t, "scripted", m.Name())
}

func TestScripted_Failures(t *testing.T) {
	ctx := context.Background()
	boom := errors.NewStreamError(errors.ReasonNoResponse, nil)

	_, err := (&Scripted{Err: boom}).Stream(ctx, nil)
	require.Same(t, boom, err)

	s, err := (&Scripted{Replies: [][]string{{"a", "b", "c"}}, FailAfter: 2, StreamErr: boom}).Stream(ctx, nil)
	require.NoError(t, err)
	got, err := drain(t, s)
	require.Equal(t, []string{"a", "b"}, got)
	require.Same(t, boom, err)
}

func TestPrime(t *testing.T) {
	ctx := context.Background()

	t.Run("replays the first fragment", func(t *testing.T) {
		ev := &fakeEvents{items: []string{"", "a", "b"}}
		s, err := Prime(ctx, newSDKStream[string](ev, passthrough))
		require.NoError(t, err)
		got, err := drain(t, s)
		require.NoError(t, err)
		require.Equal(t, []string{"a", "b"}, got)
		require.NoError(t, s.Close())
		require.True(t, ev.closed)
	})

	t.Run("request failure surfaces and closes", func(t *testing.T) {
		ev := &fakeEvents{err: stderrors.New("404 Not Found")}
		s, err := Prime(ctx, newSDKStream[string](ev, passthrough))
		require.Nil(t, s)
		require.True(t, errors.Is(err, errors.ErrStream))
		require.True(t, ev.closed)
	})

	t.Run("empty stream stays at EOF", func(t *testing.T) {
		s, err := Prime(ctx, &scriptedStream{})
		require.NoError(t, err)
		got, err := drain(t, s)
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("scripted failure on the first fragment", func(t *testing.T) {
		boom := errors.NewStreamError(errors.ReasonNotSupported, nil)
		raw, err := (&Scripted{Replies: [][]string{{"a"}}, StreamErr: boom}).Stream(ctx, nil)
		require.NoError(t, err)
		_, err = Prime(ctx, raw)
		require.Same(t, boom, err)
	})
}

func TestScripted_Placeholder(t *testing.T) {
	s, err := (&Scripted{}).Stream(context.Background(), []Message{System("x"), User("login page\nmore")})
	require.NoError(t, err)
	got, err := drain(t, s)
	require.NoError(t, err)
	require.Contains(t, got[2], "test('login page'")
}

func TestNew(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.UpgradeModel = "big"

	m, err := New(cfg, "")
	require.NoError(t, err)
	require.IsType(t, &Anthropic{}, m)
	require.Equal(t, cfg.Model, m.Name())

	cfg.Provider = config.ProviderOpenAI
	m, err = New(cfg, "gpt")
	require.NoError(t, err)
	require.IsType(t, &OpenAI{}, m)
	require.Equal(t, "gpt", m.Name())

	cfg.Provider = "bogus"
	_, err = New(cfg, "")
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))

	cfg.Provider = config.ProviderScripted
	sel := NewSelector(cfg)
	up, ok, err := sel.Upgrade(cfg.Model)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "big", up.Name())

	_, ok, err = sel.Upgrade("big")
	require.NoError(t, err)
	require.False(t, ok)
}
