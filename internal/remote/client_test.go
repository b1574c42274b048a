// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/storyloom/internal/model"
)

// newTestServer serves handler and returns a client for it plus a hit counter.
func newTestServer(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	client := NewClient(Config{
		BaseURL:   srv.URL,
		Timeout:   5 * time.Second,
		RetryMax:  2,
		RetryWait: 10 * time.Millisecond,
	})
	return client, &hits
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	io.WriteString(w, body)
}

// =============================================================================
// CHAT TESTS
// =============================================================================

func TestChat_Success(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathChat, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "Hello", body["message"])
		assert.Equal(t, "Hello", body["content"])
		assert.Equal(t, "narrator", body["author"])
		assert.Equal(t, []any{}, body["history"])
		assert.Equal(t, []any{"storm"}, body["selectedKeywords"])

		writeJSON(w, 200, `{"messages":[{"id":"1","author":"narrator","content":"Hello"}],
			"keywords":[{"text":"sword","category":"item","weight":0.8}]}`)
	})

	resp, err := client.Chat(context.Background(), ChatRequest{
		Message:          "Hello",
		Author:           model.AuthorNarrator,
		SelectedKeywords: []string{"storm"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, model.Turn{ID: "1", Author: model.AuthorNarrator, Content: "Hello"}, resp.Messages[0])
	assert.Equal(t, []model.Keyword{{Text: "sword", Category: "item", Weight: 0.8}}, resp.Keywords)
}

func TestChat_WrappedDialogShape(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"llm_response":{"messages":[
			{"id":5,"speaker":"Mira","text":"Who goes there?"},
			{"author":"narrator","content":"Silence."}]}}`)
	})

	resp, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, "5", resp.Messages[0].ID)
	assert.Equal(t, model.Author("Mira"), resp.Messages[0].Author)
	assert.Equal(t, "Who goes there?", resp.Messages[0].Content)
	assert.Empty(t, resp.Messages[1].ID, "missing id left for the caller")
	assert.Empty(t, resp.Keywords)
}

func TestChat_ErrorBody(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, `{"error":"model overloaded"}`)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.False(t, errors.Is(err, ErrNotTransmitted))
	assert.Equal(t, "model overloaded", UserMessage(err))
}

func TestChat_ServerErrorIsNotRetried(t *testing.T) {
	client, hits := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 500, `{"detail":"boom"}`)
	})

	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 500, te.StatusCode)
	assert.Equal(t, "boom", te.Message)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits), "chat must not be retried")
}

func TestChat_MalformedResponse(t *testing.T) {
	for name, body := range map[string]string{
		"missing messages": `{"keywords":[]}`,
		"messages not list": `{"messages":"hello"}`,
		"not an object":     `["hello"]`,
		"bad keywords":      `{"messages":[],"keywords":"sword"}`,
	} {
		t.Run(name, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, 200, body)
			})
			_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
			var me *MalformedResponseError
			assert.True(t, errors.As(err, &me))
			assert.True(t, errors.Is(err, ErrTransport))
		})
	}
}

func TestChat_UnreachableIsNotTransmitted(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	client := NewClient(Config{BaseURL: base, Timeout: 2 * time.Second})
	_, err := client.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, ErrNotTransmitted))
}

func TestChat_CanceledContextIsNotTransmitted(t *testing.T) {
	client := NewClient(Config{BaseURL: "http://127.0.0.1:1", RateLimit: 0.001})
	ctx, cancel := context.WithCancel(context.Background())

	// Drain the single burst token, then wait with a canceled context.
	client.limiter.Allow()
	cancel()

	_, err := client.Chat(ctx, ChatRequest{Message: "hi"})
	assert.True(t, errors.Is(err, ErrNotTransmitted))
}

// =============================================================================
// IMAGE AND AUDIO TESTS
// =============================================================================

func TestGenerateImage_ResponseShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"urls", `{"urls":["a.png","","b.png"],"prompt":"castle"}`, []string{"a.png", "b.png"}},
		{"url", `{"url":"c.png","prompt":"castle"}`, []string{"c.png"}},
		{"image_url", `{"image_url":"d.png"}`, []string{"d.png"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, PathImageGenerate, r.URL.Path)
				writeJSON(w, 200, tc.body)
			})
			res, err := client.GenerateImage(context.Background(), ImageRequest{})
			require.NoError(t, err)
			assert.Equal(t, tc.want, res.URLs)
		})
	}
}

func TestGenerateImage_NoURLsIsMalformed(t *testing.T) {
	for _, body := range []string{`{"urls":[]}`, `{"prompt":"x"}`, `{"urls":"a.png"}`} {
		client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, 200, body)
		})
		_, err := client.GenerateImage(context.Background(), ImageRequest{})
		var me *MalformedResponseError
		assert.True(t, errors.As(err, &me), body)
	}
}

func TestGenerateImage_Workflow(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathImageComfyUI, r.URL.Path)
		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `{"nodes":{"6":{"text":"%POS%"}}}`, string(body["workflow"]))
		assert.JSONEq(t, `"%POS%"`, string(body["positivePromptPlaceholder"]))
		assert.JSONEq(t, `[]`, string(body["history"]))
		writeJSON(w, 200, `{"urls":["w.png"],"prompt":"p"}`)
	})

	res, err := client.GenerateImage(context.Background(), ImageRequest{
		Workflow: &Workflow{
			Graph:               json.RawMessage(`{"nodes":{"6":{"text":"%POS%"}}}`),
			PositivePlaceholder: "%POS%",
			NegativePlaceholder: "%NEG%",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "p", res.Prompt)
}

func TestSynthesizeAudio(t *testing.T) {
	client, _ := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body AudioRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if body.Text == "" {
			writeJSON(w, 200, `{}`)
			return
		}
		writeJSON(w, 200, `{"url":"/static/audio/1.mp3"}`)
	})

	u, err := client.SynthesizeAudio(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, "/static/audio/1.mp3", u)

	_, err = client.SynthesizeAudio(context.Background(), "")
	var me *MalformedResponseError
	assert.True(t, errors.As(err, &me))
}

// =============================================================================
// RETRY POLICY TESTS
// =============================================================================

func TestShouldRetry(t *testing.T) {
	idem := context.WithValue(context.Background(), idempotentKey{}, true)
	plain := context.Background()

	respFor := func(ctx context.Context, status int) *resty.Response {
		return &resty.Response{
			Request:     resty.New().R().SetContext(ctx),
			RawResponse: &http.Response{StatusCode: status},
		}
	}

	assert.True(t, shouldRetry(respFor(idem, 503), nil))
	assert.True(t, shouldRetry(respFor(idem, 429), nil))
	assert.False(t, shouldRetry(respFor(idem, 501), nil))
	assert.False(t, shouldRetry(respFor(idem, 400), nil))
	assert.False(t, shouldRetry(respFor(plain, 503), nil), "non-idempotent never retried")
	assert.False(t, shouldRetry(nil, errors.New("x")))
}
