package google

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Corphon/DragonSwordMap/internal/llm"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	p, err := llm.GetProvider("google", map[string]string{
		"api_key":  "test-key",
		"model":    "gemini-test",
		"base_url": "https://gemini.test/v1beta",
	})
	require.NoError(t, err)
	gp := p.(*Provider)
	httpmock.ActivateNonDefault(gp.client)
	t.Cleanup(httpmock.DeactivateAndReset)
	return gp
}

func TestInitializeRequiresKey(t *testing.T) {
	_, err := llm.GetProvider("google", map[string]string{})
	assert.Error(t, err)
}

func TestCompleteTextSendsHistoryAndSystemInstruction(t *testing.T) {
	p := newTestProvider(t)

	var captured generateRequest
	httpmock.RegisterResponder(http.MethodPost, "https://gemini.test/v1beta/models/gemini-test:generateContent",
		func(req *http.Request) (*http.Response, error) {
			assert.Equal(t, "test-key", req.URL.Query().Get("key"))
			require.NoError(t, json.NewDecoder(req.Body).Decode(&captured))
			return httpmock.NewJsonResponse(http.StatusOK, map[string]interface{}{
				"candidates": []map[string]interface{}{{
					"content":      map[string]interface{}{"role": "model", "parts": []map[string]string{{"text": "오르비스는 "}, {"text": "고대의 도시라네."}}},
					"finishReason": "STOP",
				}},
			})
		})

	resp, err := p.CompleteText(context.Background(), llm.CompletionRequest{
		Prompt:       "오르비스에 대해 알려줘.",
		SystemPrompt: "대현자",
		Temperature:  0.7,
		History: []llm.Message{
			{Role: llm.RoleUser, Content: "안녕"},
			{Role: llm.RoleAssistant, Content: "반갑네"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "오르비스는 고대의 도시라네.", resp.Text)
	assert.Equal(t, "gemini-test", resp.ModelName)

	require.NotNil(t, captured.SystemInstruction)
	assert.Equal(t, "대현자", captured.SystemInstruction.Parts[0].Text)
	assert.InDelta(t, 0.7, captured.GenerationConfig.Temperature, 1e-6)
	require.Len(t, captured.Contents, 3)
	assert.Equal(t, "user", captured.Contents[0].Role)
	assert.Equal(t, "model", captured.Contents[1].Role)
	assert.Equal(t, "오르비스에 대해 알려줘.", captured.Contents[2].Parts[0].Text)
}

func TestCompleteTextAPIError(t *testing.T) {
	p := newTestProvider(t)
	httpmock.RegisterResponder(http.MethodPost, "=~generateContent",
		httpmock.NewStringResponder(http.StatusTooManyRequests, `{"error":{"message":"quota exceeded"}}`))

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestCompleteTextNoCandidates(t *testing.T) {
	p := newTestProvider(t)
	httpmock.RegisterResponder(http.MethodPost, "=~generateContent",
		httpmock.NewStringResponder(http.StatusOK, `{"candidates":[]}`))

	_, err := p.CompleteText(context.Background(), llm.CompletionRequest{Prompt: "hi"})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}
