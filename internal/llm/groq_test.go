package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroqGenerateContent(t *testing.T) {
	t.Run("Success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer test_key", r.Header.Get("Authorization"))
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

			var req groqRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "test-model", req.Model)
			assert.Equal(t, "json_object", req.ResponseFormat["type"])
			if assert.Len(t, req.Messages, 1) {
				assert.Equal(t, "plan please", req.Messages[0].Content)
			}

			w.WriteHeader(http.StatusOK)
			fmt.Fprintln(w, `{
				"model": "test-model",
				"choices": [{"message": {"role": "assistant", "content": "{\"days\": []}"}}],
				"usage": {"prompt_tokens": 120, "completion_tokens": 30, "total_tokens": 150}
			}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", "test-model", server.URL)
		resp, err := client.GenerateContent(context.Background(), "plan please")
		require.NoError(t, err)

		assert.Equal(t, `{"days": []}`, resp.Content)
		assert.Equal(t, 120, resp.Usage.PromptTokens)
		assert.Equal(t, 30, resp.Usage.CompletionTokens)
		assert.Equal(t, 150, resp.Usage.TotalTokens)
		assert.Equal(t, "test-model", resp.Usage.Model)
	})

	t.Run("RateLimited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintln(w, `{"error": {"message": "rate limit reached"}}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", "test-model", server.URL)
		_, err := client.GenerateContent(context.Background(), "plan please")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status=429")
	})

	t.Run("NoChoices", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintln(w, `{"choices": []}`)
		}))
		defer server.Close()

		client := newGroqClient("test_key", "test-model", server.URL)
		_, err := client.GenerateContent(context.Background(), "plan please")
		assert.EqualError(t, err, "no content generated")
	})
}
