// internal/llm/interface.go
package llm

import (
	"context"
	"errors"
	"sort"
	"sync"
)

// 错误定义
var (
	ErrUnknownProvider = errors.New("未知的AI提供者")
	ErrEmptyResponse   = errors.New("模型未返回任何内容")
)

// Role 对话角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message 一条历史消息
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// 请求参数标准化
type CompletionRequest struct {
	Prompt       string    `json:"prompt"`
	SystemPrompt string    `json:"system_prompt,omitempty"`
	History      []Message `json:"history,omitempty"`
	MaxTokens    int       `json:"max_tokens,omitempty"`
	Temperature  float32   `json:"temperature,omitempty"`
	Model        string    `json:"model,omitempty"`
}

// 响应结构标准化
type CompletionResponse struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
	TokensUsed   int    `json:"tokens_used,omitempty"`
	ModelName    string `json:"model_name,omitempty"`
	ProviderName string `json:"provider_name,omitempty"`
}

// Provider 定义所有LLM提供者必须实现的接口
type Provider interface {
	// 初始化提供者，传入配置
	Initialize(config map[string]string) error

	// 获取提供者名称
	GetName() string

	// 获取支持的模型列表
	GetSupportedModels() []string

	// 文本生成
	CompleteText(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// ProviderFactory 提供者工厂
type ProviderFactory func() Provider

var (
	providersMu sync.RWMutex
	providers   = make(map[string]ProviderFactory)
)

// Register 注册提供者工厂
func Register(name string, factory ProviderFactory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers[name] = factory
}

// GetProvider 创建指定名称的提供者实例
func GetProvider(name string, config map[string]string) (Provider, error) {
	providersMu.RLock()
	factory, exists := providers[name]
	providersMu.RUnlock()
	if !exists {
		return nil, ErrUnknownProvider
	}

	provider := factory()
	if err := provider.Initialize(config); err != nil {
		return nil, err
	}
	return provider, nil
}

// ListProviders 返回所有已注册的提供者名称
func ListProviders() []string {
	providersMu.RLock()
	defer providersMu.RUnlock()

	names := make([]string, 0, len(providers))
	for name := range providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
