//go:build !integration

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/config"
	"github.com/sells-group/bioextract/internal/registry"
)

// testConfig returns a complete configuration pointing the LLM at llmURL
// and the store at a temporary SQLite file.
func testConfig(t *testing.T, llmURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Store: config.StoreConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "test.db")},
		Search: config.SearchConfig{
			Provider: "google", GoogleKey: "g-key", GoogleCX: "g-cx", GoogleURL: "http://127.0.0.1:1",
			RatePerSec: 100, Burst: 10, Concurrency: 2, TimeoutSecs: 5,
		},
		Fetch: config.FetchConfig{
			TimeoutSecs: 5, MaxBodyBytes: 1 << 20, MaxPDFBytes: 1 << 20, PdfToTextPath: "pdftotext",
		},
		LLM: config.LLMConfig{
			Provider: "openai", Model: "gpt-3.5-turbo-0125", OpenAIKey: "sk-test", OpenAIURL: llmURL,
			System: "Act as a summarizer", MaxTokens: 400, RatePerSec: 100, Burst: 10, Concurrency: 2, TimeoutSecs: 5,
		},
		Pipeline: config.PipelineConfig{
			Schema: registry.SchemaSummary, MaxSourcesPerCandidate: 4, MaxPromptLength: 12000,
			RetryCount: 0, FocusWords: 400, Concurrency: 2, CandidateTimeoutSecs: 30,
		},
		Log: config.LogConfig{Level: "error", Format: "console"},
	}
}

// completionServer answers every chat completion with answer.
func completionServer(t *testing.T, answer string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": 1700000000,
			"model":   "gpt-3.5-turbo-0125",
			"choices": []map[string]any{{
				"index":         0,
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": answer},
			}},
			"usage": map[string]any{"prompt_tokens": 900, "completion_tokens": 60, "total_tokens": 960},
		})
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func TestPipelineEnv_Close_Nil(t *testing.T) {
	pe := &pipelineEnv{}
	assert.NotPanics(t, func() {
		pe.Close()
	})
}

func TestInitPipeline(t *testing.T) {
	cfg = testConfig(t, "http://127.0.0.1:1")
	schema, ok := registry.Builtin(registry.SchemaCandidateBio)
	require.True(t, ok)

	env, err := initPipeline(context.Background(), schema)
	require.NoError(t, err)
	defer env.Close()

	assert.NotNil(t, env.Coordinator)
	assert.NotNil(t, env.Budget)
	assert.Equal(t, schema, env.Schema)
	assert.NoError(t, env.Ctx.Err())

	env.Close()
	assert.Error(t, env.Ctx.Err(), "closing releases the budget context")
}

func TestInitPipeline_MissingCredentials(t *testing.T) {
	cfg = testConfig(t, "")
	cfg.LLM.OpenAIKey = ""
	schema, _ := registry.Builtin(registry.SchemaSummary)

	_, err := initPipeline(context.Background(), schema)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.openai_api_key")
}

func TestInitSearchProvider(t *testing.T) {
	cfg = testConfig(t, "")

	p, err := initSearchProvider()
	require.NoError(t, err)
	assert.Equal(t, "google", p.Name())

	cfg.Search.Provider = "jina"
	p, err = initSearchProvider()
	require.NoError(t, err)
	assert.Equal(t, "jina", p.Name())

	cfg.Search.Provider = "bing"
	_, err = initSearchProvider()
	assert.Error(t, err)
}

func TestInitLLM(t *testing.T) {
	cfg = testConfig(t, "")

	llm, err := initLLM()
	require.NoError(t, err)
	assert.Equal(t, "openai", llm.Name())

	cfg.LLM.Provider = "anthropic"
	cfg.LLM.AnthropicURL = "http://127.0.0.1:1"
	llm, err = initLLM()
	require.NoError(t, err)
	assert.Equal(t, "anthropic", llm.Name())

	cfg.LLM.Provider = "mistral"
	_, err = initLLM()
	assert.Error(t, err)
}
