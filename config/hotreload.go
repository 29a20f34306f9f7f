// 配置热重载管理器。
//
// 只有日志级别与 Pipeline 参数可在运行时生效，其余字段的变更会被记录并标记为需要重启。
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"reflect"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// redacted 替换敏感值
const redacted = "[REDACTED]"

// ConfigChange 一次字段变更
type ConfigChange struct {
	Timestamp       time.Time `json:"timestamp"`
	Source          string    `json:"source"`
	Path            string    `json:"path"`
	OldValue        any       `json:"old_value,omitempty"`
	NewValue        any       `json:"new_value,omitempty"`
	RequiresRestart bool      `json:"requires_restart"`
	Applied         bool      `json:"applied"`
	Error           string    `json:"error,omitempty"`
}

// ConfigSnapshot 历史快照
type ConfigSnapshot struct {
	Config    *Config   `json:"-"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Version   int       `json:"version"`
	Checksum  string    `json:"checksum"`
}

// RollbackEvent 回滚事件
type RollbackEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason"`
	Version   int       `json:"version"`
	Error     error     `json:"-"`
	// Restored 是回滚后生效的配置；回调内不要再调用管理器方法
	Restored *Config `json:"-"`
}

type (
	// ReloadCallback 在新配置生效后调用；返回错误会触发自动回滚
	ReloadCallback func(oldConfig, newConfig *Config) error
	// RollbackCallback 回滚后调用
	RollbackCallback func(event RollbackEvent)
	// ValidateFunc 在应用前额外校验
	ValidateFunc func(newConfig *Config) error
)

// FieldInfo 描述一个已登记字段
type FieldInfo struct {
	Path            string `json:"path"`
	Description     string `json:"description"`
	RequiresRestart bool   `json:"requires_restart"`
	Sensitive       bool   `json:"sensitive"`
}

// 未登记的字段一律视为需要重启
var fieldRegistry = func() map[string]FieldInfo {
	m := make(map[string]FieldInfo)
	hot := func(path, desc string) { m[path] = FieldInfo{Path: path, Description: desc} }
	restart := func(path, desc string) { m[path] = FieldInfo{Path: path, Description: desc, RequiresRestart: true} }
	secret := func(path, desc string) {
		m[path] = FieldInfo{Path: path, Description: desc, RequiresRestart: true, Sensitive: true}
	}

	hot("Log.Level", "Log level (debug, info, warn, error)")

	hot("Pipeline.MaxRetries", "Retries after a review veto")
	hot("Pipeline.VetoMode", "retry or log_only")
	hot("Pipeline.MaxSteps", "Graph step limit per request")
	hot("Pipeline.StageTimeout", "Per-stage deadline")
	hot("Pipeline.CallTimeout", "Per external call deadline")
	hot("Pipeline.Concurrency", "Per-venue fan-out width")
	hot("Pipeline.DefaultLocation", "Search location when none is given")
	hot("Pipeline.DefaultStyle", "Aesthetic style when none is given")
	hot("Pipeline.SourceLimit", "Results requested per venue source")
	hot("Pipeline.CandidateCap", "Maximum candidates after discovery")
	hot("Pipeline.DedupMeters", "Duplicate venue radius")
	hot("Pipeline.AestheticThreshold", "Minimum vibe score kept by the filter")
	hot("Pipeline.ReviewTopK", "Venues inspected by review")
	hot("Pipeline.MinViable", "Viable venues needed to avoid a veto")
	hot("Pipeline.ExplainTopK", "Ranked venues given explanations")
	hot("Pipeline.Weights.Aesthetic", "Synthesis weight")
	hot("Pipeline.Weights.Cost", "Synthesis weight")
	hot("Pipeline.Weights.Review", "Synthesis weight")
	hot("Pipeline.Penalties.High", "Risk penalty")
	hot("Pipeline.Penalties.Medium", "Risk penalty")
	hot("Pipeline.Penalties.Low", "Risk penalty")
	hot("Pipeline.Penalties.Cap", "Risk penalty cap")
	hot("Pipeline.Consent.Enabled", "Request consent after synthesis")

	restart("Server.HTTPPort", "HTTP server port")
	restart("Server.MetricsPort", "Metrics server port")
	restart("Database.Driver", "Risk log database driver")
	restart("Database.Host", "Database host")
	restart("Redis.Addr", "Redis address")
	restart("LLM.Model", "Model name")

	secret("Server.AdminAPIKey", "Admin API key")
	secret("LLM.APIKey", "LLM API key")
	secret("Sources.GooglePlaces.APIKey", "Google Places key")
	secret("Sources.Yelp.APIKey", "Yelp key")
	secret("Sources.Firecrawl.APIKey", "Firecrawl key")
	secret("Sources.Mapbox.APIKey", "Mapbox token")
	secret("Sources.OpenWeather.APIKey", "OpenWeather key")
	secret("Sources.PredictHQ.APIKey", "PredictHQ token")
	secret("Identity.ClientSecret", "Auth0 client secret")
	secret("JWT.Secret", "JWT signing secret")
	secret("Database.Password", "Database password")
	secret("Redis.Password", "Redis password")
	return m
}()

// Fields 返回登记字段的副本
func Fields() map[string]FieldInfo {
	out := make(map[string]FieldInfo, len(fieldRegistry))
	for k, v := range fieldRegistry {
		out[k] = v
	}
	return out
}

// IsHotReloadable 字段能否在运行时生效
func IsHotReloadable(path string) bool {
	f, ok := fieldRegistry[path]
	return ok && !f.RequiresRestart
}

// HotReloadOption 配置 HotReloadManager
type HotReloadOption func(*HotReloadManager)

// WithHotReloadLogger 设置记录器
func WithHotReloadLogger(logger *zap.Logger) HotReloadOption {
	return func(m *HotReloadManager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithConfigPath 设置需要监听的配置文件
func WithConfigPath(path string) HotReloadOption {
	return func(m *HotReloadManager) { m.configPath = path }
}

// WithEnvPrefixForReload 设置重新加载时使用的环境变量前缀
func WithEnvPrefixForReload(prefix string) HotReloadOption {
	return func(m *HotReloadManager) { m.envPrefix = prefix }
}

// WithMaxHistorySize 设置历史快照数量
func WithMaxHistorySize(size int) HotReloadOption {
	return func(m *HotReloadManager) {
		if size > 0 {
			m.maxHistory = size
		}
	}
}

// WithValidateFunc 设置应用前校验钩子
func WithValidateFunc(fn ValidateFunc) HotReloadOption {
	return func(m *HotReloadManager) { m.validate = fn }
}

// HotReloadManager 持有当前配置，负责重载、历史和回滚
type HotReloadManager struct {
	mu         sync.RWMutex
	config     *Config
	configPath string
	envPrefix  string
	logger     *zap.Logger

	validate   ValidateFunc
	history    []ConfigSnapshot
	maxHistory int
	changeLog  []ConfigChange

	reloadCallbacks   []ReloadCallback
	rollbackCallbacks []RollbackCallback

	watcher *FileWatcher
}

// NewHotReloadManager 以 cfg 作为版本 1 创建管理器
func NewHotReloadManager(cfg *Config, opts ...HotReloadOption) *HotReloadManager {
	m := &HotReloadManager{
		config:     cfg,
		envPrefix:  DefaultEnvPrefix,
		logger:     zap.NewNop(),
		maxHistory: 10,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With(zap.String("component", "config_reload"))
	m.pushHistory(cfg, "init")
	return m
}

// Start 监听配置文件；没有配置路径时什么也不做
func (m *HotReloadManager) Start(ctx context.Context) error {
	if m.configPath == "" {
		return nil
	}
	w, err := NewFileWatcher([]string{m.configPath}, WithWatcherLogger(m.logger), WithDebounceDelay(500*time.Millisecond))
	if err != nil {
		return err
	}
	w.OnChange(func(ev FileEvent) {
		if ev.Op != FileOpWrite && ev.Op != FileOpCreate {
			return
		}
		if err := m.ReloadFromFile(); err != nil {
			m.logger.Error("config reload failed, keeping current config", zap.Error(err))
		}
	})
	if err := w.Start(ctx); err != nil {
		return err
	}
	m.mu.Lock()
	m.watcher = w
	m.mu.Unlock()
	return nil
}

// Stop 停止文件监听
func (m *HotReloadManager) Stop() error {
	m.mu.Lock()
	w := m.watcher
	m.watcher = nil
	m.mu.Unlock()
	if w == nil {
		return nil
	}
	return w.Stop()
}

// OnReload 注册重载回调
func (m *HotReloadManager) OnReload(cb ReloadCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloadCallbacks = append(m.reloadCallbacks, cb)
}

// OnRollback 注册回滚回调
func (m *HotReloadManager) OnRollback(cb RollbackCallback) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rollbackCallbacks = append(m.rollbackCallbacks, cb)
}

// ReloadFromFile 按 默认值 → 文件 → 环境变量 重新加载并应用
func (m *HotReloadManager) ReloadFromFile() error {
	if m.configPath == "" {
		return fmt.Errorf("no config path set")
	}
	cfg, err := NewLoader().WithConfigPath(m.configPath).WithEnvPrefix(m.envPrefix).Load()
	if err != nil {
		return err
	}
	return m.ApplyConfig(cfg, "file")
}

// ApplyConfig 校验并应用新配置。回调失败时自动回滚到旧配置。
func (m *HotReloadManager) ApplyConfig(newConfig *Config, source string) error {
	if err := newConfig.Validate(); err != nil {
		m.recordRejected(source, err)
		return fmt.Errorf("invalid config: %w", err)
	}
	if m.validate != nil {
		if err := m.validate(newConfig); err != nil {
			m.recordRejected(source, err)
			return fmt.Errorf("config validation failed: %w", err)
		}
	}

	m.mu.Lock()
	oldConfig := m.config
	changes := diffConfigs(oldConfig, newConfig, source)
	m.config = newConfig
	m.pushHistory(newConfig, source)
	m.appendChanges(changes...)
	callbacks := append([]ReloadCallback(nil), m.reloadCallbacks...)
	m.mu.Unlock()

	restart := false
	for _, c := range changes {
		restart = restart || c.RequiresRestart
		m.logger.Info("config changed",
			zap.String("path", c.Path),
			zap.Any("old", c.OldValue),
			zap.Any("new", c.NewValue),
			zap.Bool("requires_restart", c.RequiresRestart),
		)
	}

	if err := runReloadCallbacks(callbacks, oldConfig, newConfig); err != nil {
		m.mu.Lock()
		if m.config == newConfig {
			m.rollbackLocked(oldConfig, "reload callback failed", err)
		}
		m.mu.Unlock()
		return fmt.Errorf("config applied but callback failed: %w", err)
	}

	if restart {
		m.logger.Warn("some configuration changes take effect only after restart")
	}
	m.logger.Info("configuration reloaded", zap.String("source", source), zap.Int("changes", len(changes)))
	return nil
}

// UpdateField 修改一个可热重载字段。值经由 JSON 转换为字段类型。
func (m *HotReloadManager) UpdateField(path string, value any) error {
	if !IsHotReloadable(path) {
		return fmt.Errorf("field %s is not hot-reloadable", path)
	}
	next := m.GetConfig()
	if err := setByPath(reflect.ValueOf(next).Elem(), path, value); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return m.ApplyConfig(next, "api")
}

// Rollback 回到上一个历史版本
func (m *HotReloadManager) Rollback() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.history) < 2 {
		return fmt.Errorf("no previous config available for rollback")
	}
	prev := m.history[len(m.history)-2]
	m.rollbackLocked(prev.Config, "manual rollback", nil)
	return nil
}

// RollbackToVersion 回到指定版本
func (m *HotReloadManager) RollbackToVersion(version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.history {
		if s.Version == version {
			m.rollbackLocked(s.Config, fmt.Sprintf("rollback to version %d", version), nil)
			return nil
		}
	}
	return fmt.Errorf("config version %d not found in history", version)
}

// GetConfig 返回当前配置的深拷贝
func (m *HotReloadManager) GetConfig() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneConfig(m.config)
}

// CurrentVersion 当前版本号
func (m *HotReloadManager) CurrentVersion() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.history[len(m.history)-1].Version
}

// History 返回历史快照（不含配置正文）
func (m *HotReloadManager) History() []ConfigSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConfigSnapshot, len(m.history))
	copy(out, m.history)
	return out
}

// ChangeLog 返回最近 limit 条变更，limit <= 0 返回全部
func (m *HotReloadManager) ChangeLog(limit int) []ConfigChange {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.changeLog) {
		limit = len(m.changeLog)
	}
	out := make([]ConfigChange, limit)
	copy(out, m.changeLog[len(m.changeLog)-limit:])
	return out
}

// SanitizedConfig 返回脱敏后的配置视图
func (m *HotReloadManager) SanitizedConfig() map[string]any {
	return Sanitize(m.GetConfig())
}

// Sanitize 将配置转换为 map 并替换所有敏感字段
func Sanitize(cfg *Config) map[string]any {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil
	}
	for path, f := range fieldRegistry {
		if f.Sensitive {
			redactPath(out, strings.Split(path, "."))
		}
	}
	return out
}

func redactPath(m map[string]any, parts []string) {
	v, ok := m[parts[0]]
	if !ok {
		return
	}
	if len(parts) == 1 {
		if s, ok := v.(string); ok && s != "" {
			m[parts[0]] = redacted
		}
		return
	}
	if nested, ok := v.(map[string]any); ok {
		redactPath(nested, parts[1:])
	}
}

// --- 内部实现 ---

func (m *HotReloadManager) recordRejected(source string, err error) {
	m.mu.Lock()
	m.appendChanges(ConfigChange{Timestamp: time.Now(), Source: source, Path: "(validation)", Error: err.Error()})
	m.mu.Unlock()
	m.logger.Warn("config rejected", zap.String("source", source), zap.Error(err))
}

func (m *HotReloadManager) appendChanges(changes ...ConfigChange) {
	m.changeLog = append(m.changeLog, changes...)
	if len(m.changeLog) > 1000 {
		m.changeLog = m.changeLog[len(m.changeLog)-1000:]
	}
}

func (m *HotReloadManager) pushHistory(cfg *Config, source string) {
	version := 1
	if n := len(m.history); n > 0 {
		version = m.history[n-1].Version + 1
	}
	m.history = append(m.history, ConfigSnapshot{
		Config:    cloneConfig(cfg),
		Timestamp: time.Now(),
		Source:    source,
		Version:   version,
		Checksum:  checksum(cfg),
	})
	if len(m.history) > m.maxHistory {
		m.history = m.history[len(m.history)-m.maxHistory:]
	}
}

// rollbackLocked 调用方必须持有写锁。回滚本身作为新版本入历史。
func (m *HotReloadManager) rollbackLocked(target *Config, reason string, cause error) {
	restored := cloneConfig(target)
	m.config = restored
	m.pushHistory(restored, "rollback")
	version := m.history[len(m.history)-1].Version
	m.appendChanges(ConfigChange{Timestamp: time.Now(), Source: "rollback", Path: "(rollback)", Applied: true, Error: reason})

	event := RollbackEvent{Timestamp: time.Now(), Reason: reason, Version: version, Error: cause, Restored: cloneConfig(restored)}
	for _, cb := range m.rollbackCallbacks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Error("rollback callback panicked", zap.Any("panic", r))
				}
			}()
			cb(event)
		}()
	}
	m.logger.Warn("configuration rolled back", zap.String("reason", reason), zap.Int("version", version))
}

func runReloadCallbacks(callbacks []ReloadCallback, oldConfig, newConfig *Config) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reload callback panicked: %v", r)
		}
	}()
	for _, cb := range callbacks {
		if err := cb(oldConfig, newConfig); err != nil {
			return err
		}
	}
	return nil
}

// diffConfigs 按字段路径比较两份配置，敏感值被替换
func diffConfigs(oldConfig, newConfig *Config, source string) []ConfigChange {
	var changes []ConfigChange
	now := time.Now()
	var walk func(prefix string, a, b reflect.Value)
	walk = func(prefix string, a, b reflect.Value) {
		t := a.Type()
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if !f.IsExported() {
				continue
			}
			path := f.Name
			if prefix != "" {
				path = prefix + "." + f.Name
			}
			av, bv := a.Field(i), b.Field(i)
			if av.Kind() == reflect.Struct {
				walk(path, av, bv)
				continue
			}
			if reflect.DeepEqual(av.Interface(), bv.Interface()) {
				continue
			}
			info, known := fieldRegistry[path]
			c := ConfigChange{
				Timestamp:       now,
				Source:          source,
				Path:            path,
				OldValue:        av.Interface(),
				NewValue:        bv.Interface(),
				RequiresRestart: !known || info.RequiresRestart,
				Applied:         true,
			}
			if info.Sensitive {
				c.OldValue, c.NewValue = redacted, redacted
			}
			changes = append(changes, c)
		}
	}
	walk("", reflect.ValueOf(oldConfig).Elem(), reflect.ValueOf(newConfig).Elem())
	return changes
}

// setByPath 定位点分隔路径上的字段，经 JSON 将 value 转为字段类型。
// 时长字段接受 "30s" 这样的字符串。
func setByPath(v reflect.Value, path string, value any) error {
	for _, part := range strings.Split(path, ".") {
		if v.Kind() != reflect.Struct {
			return fmt.Errorf("not a struct at %s", part)
		}
		v = v.FieldByName(part)
		if !v.IsValid() {
			return fmt.Errorf("field not found: %s", part)
		}
	}
	if s, ok := value.(string); ok && v.Type() == reflect.TypeOf(time.Duration(0)) {
		d, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		v.SetInt(int64(d))
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	ptr := reflect.New(v.Type())
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return fmt.Errorf("type mismatch: expected %s", v.Type())
	}
	v.Set(ptr.Elem())
	return nil
}

func cloneConfig(cfg *Config) *Config {
	data, err := json.Marshal(cfg)
	if err != nil {
		return cfg
	}
	var out Config
	if err := json.Unmarshal(data, &out); err != nil {
		return cfg
	}
	return &out
}

func checksum(cfg *Config) string {
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	h := fnv.New64a()
	_, _ = h.Write(data)
	return fmt.Sprintf("%016x", h.Sum64())
}
