package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completionServer(t *testing.T, check func(body map[string]any)) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, "/chat/completions")
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if check != nil {
			check(body)
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-3.5-turbo-0125",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": `{"college_major": "N/A"}`},
			}},
			"usage": map[string]any{"prompt_tokens": 900, "completion_tokens": 60, "total_tokens": 960},
		})
	}))
}

func TestComplete(t *testing.T) {
	srv := completionServer(t, func(body map[string]any) {
		assert.Equal(t, "gpt-3.5-turbo-0125", body["model"])
		assert.InDelta(t, 0.0, body["temperature"], 0.0001)
		assert.InDelta(t, 200.0, body["max_completion_tokens"], 0.0001)

		msgs := body["messages"].([]any)
		require.Len(t, msgs, 2)
		assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
		assert.Equal(t, "Act as a summarizer", msgs[0].(map[string]any)["content"])
		assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
	})
	defer srv.Close()

	temp := 0.0
	client := NewClient("sk-test", WithBaseURL(srv.URL))
	resp, err := client.Complete(context.Background(), ChatRequest{
		Model:       "gpt-3.5-turbo-0125",
		System:      "Act as a summarizer",
		User:        "Extract ONLY...",
		Temperature: &temp,
		MaxTokens:   200,
	})
	require.NoError(t, err)
	assert.Equal(t, `{"college_major": "N/A"}`, resp.Content)
	assert.Equal(t, "stop", resp.FinishReason)
	assert.Equal(t, int64(900), resp.PromptTokens)
	assert.Equal(t, int64(60), resp.CompletionTokens)
}

func TestComplete_NoSystem(t *testing.T) {
	srv := completionServer(t, func(body map[string]any) {
		msgs := body["messages"].([]any)
		require.Len(t, msgs, 1)
		_, hasTemp := body["temperature"]
		assert.False(t, hasTemp)
	})
	defer srv.Close()

	client := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), ChatRequest{Model: "gpt-4o-mini", User: "hi"})
	require.NoError(t, err)
}

func TestComplete_ErrorStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	client := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), ChatRequest{Model: "gpt-3.5-turbo-0125", User: "hi"})
	require.Error(t, err)
	assert.Equal(t, http.StatusTooManyRequests, StatusCode(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestComplete_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","model":"m","choices":[]}`))
	}))
	defer srv.Close()

	client := NewClient("sk-test", WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), ChatRequest{Model: "m", User: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}
