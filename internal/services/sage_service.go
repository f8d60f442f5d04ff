// internal/services/sage_service.go
package services

import (
	"context"
	"strings"
	"sync"

	"github.com/Corphon/DragonSwordMap/internal/llm"
	"github.com/Corphon/DragonSwordMap/internal/utils"
)

// SageSystemInstruction 大贤者的角色设定
const SageSystemInstruction = `당신은 '드래곤소드'라는 판타지 대륙의 모든 지식과 전설을 알고 있는 '대현자'입니다.
사용자가 대륙의 지명이나 역사에 대해 물으면, 장엄하고 신비로운 말투로 대답하세요.
대화의 맥락은 항상 이 판타지 세계관 내에 머물러야 합니다.`

// 大贤者的默认回复
const (
	SageEmptyReply    = "대현자가 깊은 생각에 잠겨 답변을 하지 못하고 있네."
	SageFallbackReply = "대현자의 지혜가 잠시 흐릿해졌구나. 나중에 다시 물어보게나."
)

// SageTemperature 生成温度
const SageTemperature = 0.7

// SageService 大贤者问答。任何失败都返回默认回复，不向调用方报错
type SageService struct {
	mu           sync.RWMutex
	provider     llm.Provider
	providerName string
	logger       *utils.Logger
	metrics      *utils.MetricsCollector
}

// NewSageService 创建服务，provider 为 nil 时只返回默认回复
func NewSageService(providerName string, config map[string]string, metrics *utils.MetricsCollector) *SageService {
	s := &SageService{
		logger:  utils.GetLogger().Module("sage"),
		metrics: metrics,
	}
	_ = s.Configure(providerName, config)
	return s
}

// Configure 切换提供者，失败时保持离线
func (s *SageService) Configure(providerName string, config map[string]string) error {
	provider, err := llm.GetProvider(providerName, config)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.provider = nil
		s.providerName = providerName
		s.logger.Warn("大贤者未就绪", map[string]interface{}{"provider": providerName, "error": err.Error()})
		return err
	}
	s.provider = provider
	s.providerName = providerName
	return nil
}

// SetProvider 直接指定提供者
func (s *SageService) SetProvider(name string, provider llm.Provider) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.provider = provider
	s.providerName = name
}

// Ready 是否已配置可用的提供者
func (s *SageService) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.provider != nil
}

// Ask 携带历史对话提问
func (s *SageService) Ask(ctx context.Context, prompt string, history []llm.Message) string {
	s.mu.RLock()
	provider := s.provider
	s.mu.RUnlock()

	if provider == nil {
		s.metrics.RecordSageRequest("offline")
		return SageFallbackReply
	}

	resp, err := provider.CompleteText(ctx, llm.CompletionRequest{
		Prompt:       prompt,
		SystemPrompt: SageSystemInstruction,
		History:      history,
		Temperature:  SageTemperature,
	})
	if err != nil {
		s.metrics.RecordSageRequest("error")
		s.logger.Warn("大贤者请求失败", map[string]interface{}{"error": err.Error()})
		return SageFallbackReply
	}

	s.metrics.RecordSageRequest("success")
	if strings.TrimSpace(resp.Text) == "" {
		return SageEmptyReply
	}
	return resp.Text
}
