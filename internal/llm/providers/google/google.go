// internal/llm/providers/google/google.go
package google

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/Corphon/DragonSwordMap/internal/llm"
)

// DefaultBaseURL Gemini REST 接口地址
const DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

func init() {
	llm.Register("google", func() llm.Provider {
		return &Provider{
			models: []string{
				"gemini-2.0-flash",
				"gemini-2.5-flash",
				"gemini-2.5-pro",
			},
			baseURL: DefaultBaseURL,
		}
	})
}

type Provider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	models       []string
}

func (p *Provider) Initialize(config map[string]string) error {
	apiKey, exists := config["api_key"]
	if !exists || apiKey == "" {
		return errors.New("google_api密钥未提供")
	}

	p.apiKey = apiKey
	p.client = &http.Client{Timeout: 60 * time.Second}

	if model := config["model"]; model != "" {
		p.defaultModel = model
	} else {
		p.defaultModel = "gemini-2.0-flash"
	}

	if baseURL := config["base_url"]; baseURL != "" {
		p.baseURL = baseURL
	}
	if p.baseURL == "" {
		p.baseURL = DefaultBaseURL
	}

	return nil
}

func (p *Provider) GetName() string {
	return "google gemini"
}

func (p *Provider) GetSupportedModels() []string {
	return append([]string(nil), p.models...)
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	SystemInstruction *content         `json:"systemInstruction,omitempty"`
	Contents          []content        `json:"contents"`
	GenerationConfig  generationConfig `json:"generationConfig"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	UsageMetadata struct {
		TotalTokenCount int `json:"totalTokenCount"`
	} `json:"usageMetadata"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// buildRequest 历史消息中 assistant 映射为 Gemini 的 model 角色
func buildRequest(req llm.CompletionRequest) generateRequest {
	body := generateRequest{
		GenerationConfig: generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		},
	}
	if req.SystemPrompt != "" {
		body.SystemInstruction = &content{Parts: []part{{Text: req.SystemPrompt}}}
	}
	for _, m := range req.History {
		role := "user"
		if m.Role == llm.RoleAssistant {
			role = "model"
		}
		body.Contents = append(body.Contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	body.Contents = append(body.Contents, content{Role: "user", Parts: []part{{Text: req.Prompt}}})
	return body
}

func (p *Provider) CompleteText(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	jsonData, err := json.Marshal(buildRequest(req))
	if err != nil {
		return nil, err
	}

	apiURL := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, bytes.NewReader(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, err
	}

	var response generateResponse
	if httpResp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &response) == nil && response.Error != nil {
			return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, response.Error.Message)
		}
		return nil, fmt.Errorf("google gemini API错误(%d): %s", httpResp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, &response); err != nil {
		return nil, err
	}
	if len(response.Candidates) == 0 {
		return nil, llm.ErrEmptyResponse
	}

	var resultText string
	for _, pt := range response.Candidates[0].Content.Parts {
		resultText += pt.Text
	}

	return &llm.CompletionResponse{
		Text:         resultText,
		FinishReason: response.Candidates[0].FinishReason,
		TokensUsed:   response.UsageMetadata.TotalTokenCount,
		ModelName:    model,
		ProviderName: p.GetName(),
	}, nil
}
