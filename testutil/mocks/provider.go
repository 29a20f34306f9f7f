// MockProvider 是 llm.Provider 的可编排实现。
//
// 支持固定响应、按调用序号失败与自定义处理函数。
package mocks

import (
	"context"
	"errors"
	"sync"

	"github.com/BaSui01/pathfinder/llm"
)

// ErrMock 是未编排调用的默认错误
var ErrMock = errors.New("mock: unscripted call")

// MockProvider 模拟模型服务
type MockProvider struct {
	mu sync.Mutex

	response   string
	err        error
	failAfter  int
	completion func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

	calls []*llm.ChatRequest
}

// NewMockProvider 返回固定回复 "Mock response" 的 Provider
func NewMockProvider() *MockProvider {
	return &MockProvider{response: "Mock response"}
}

// WithResponse 设置固定回复
func (m *MockProvider) WithResponse(text string) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.response = text
	return m
}

// WithError 每次调用都返回 err
func (m *MockProvider) WithError(err error) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
	return m
}

// WithFailAfter 前 n 次成功，之后返回 ErrMock
func (m *MockProvider) WithFailAfter(n int) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

// WithCompletionFunc 自定义处理函数，优先于固定回复
func (m *MockProvider) WithCompletionFunc(fn func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)) *MockProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completion = fn
	return m
}

// Name 实现 llm.Provider
func (m *MockProvider) Name() string { return "mock" }

// HealthCheck 实现 llm.Provider
func (m *MockProvider) HealthCheck(context.Context) (*llm.HealthStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &llm.HealthStatus{Healthy: m.err == nil}, m.err
}

// Completion 实现 llm.Provider
func (m *MockProvider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	n := len(m.calls)
	fn, text, err, failAfter := m.completion, m.response, m.err, m.failAfter
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return nil, err
	}
	if failAfter > 0 && n > failAfter {
		return nil, ErrMock
	}
	return &llm.ChatResponse{Provider: "mock", Model: req.Model, Text: text, FinishReason: "STOP"}, nil
}

// Calls 返回收到的请求副本
func (m *MockProvider) Calls() []*llm.ChatRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*llm.ChatRequest(nil), m.calls...)
}

// CallCount 调用次数
func (m *MockProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}
