package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/BaSui01/pathfinder/planner"
)

// MockIdentity 同时实现 planner.ProfileService、ConsentService 与 CalendarChecker
type MockIdentity struct {
	mu sync.Mutex

	profiles map[string]*planner.Profile
	statuses []planner.ApprovalStatus
	busy     bool

	polls    int
	bindings []string
	sent     []planner.EmailMessage
}

// NewMockIdentity 默认立即批准、日历空闲
func NewMockIdentity() *MockIdentity {
	return &MockIdentity{
		profiles: make(map[string]*planner.Profile),
		statuses: []planner.ApprovalStatus{planner.ApprovalApproved},
	}
}

// WithProfile 登记用户资料
func (m *MockIdentity) WithProfile(p planner.Profile) *MockIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = &p
	return m
}

// WithApprovals 依次返回的审批状态，最后一个会重复
func (m *MockIdentity) WithApprovals(statuses ...planner.ApprovalStatus) *MockIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = statuses
	return m
}

// WithBusy 设置日历冲突
func (m *MockIdentity) WithBusy(busy bool) *MockIdentity {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.busy = busy
	return m
}

// Profile 实现 planner.ProfileService
func (m *MockIdentity) Profile(_ context.Context, userID string) (*planner.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, ErrMock
}

// RequestApproval 实现 planner.ConsentService
func (m *MockIdentity) RequestApproval(_ context.Context, _ string, bindingMessage string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bindings = append(m.bindings, bindingMessage)
	return "auth-req-1", nil
}

// PollApproval 实现 planner.ConsentService
func (m *MockIdentity) PollApproval(ctx context.Context, _ string) (planner.ApprovalStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.statuses) == 0 {
		return planner.ApprovalError, nil
	}
	i := min(m.polls, len(m.statuses)-1)
	m.polls++
	return m.statuses[i], nil
}

// SendEmail 实现 planner.ConsentService
func (m *MockIdentity) SendEmail(_ context.Context, _ string, msg planner.EmailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// HasConflict 实现 planner.CalendarChecker
func (m *MockIdentity) HasConflict(context.Context, string, time.Time, time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.busy, nil
}

// Sent 已发送的邮件
func (m *MockIdentity) Sent() []planner.EmailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]planner.EmailMessage(nil), m.sent...)
}

// Bindings 已发起的审批绑定消息
func (m *MockIdentity) Bindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.bindings...)
}
