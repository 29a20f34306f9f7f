// 配置热重载测试。
package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/pathfinder/planner"
)

func newTestManager(t *testing.T, opts ...HotReloadOption) *HotReloadManager {
	t.Helper()
	opts = append([]HotReloadOption{WithHotReloadLogger(zap.NewNop())}, opts...)
	return NewHotReloadManager(DefaultConfig(), opts...)
}

func findChange(changes []ConfigChange, path string) (ConfigChange, bool) {
	for _, c := range changes {
		if c.Path == path {
			return c, true
		}
	}
	return ConfigChange{}, false
}

func TestHotReloadManager_ApplyConfig(t *testing.T) {
	m := newTestManager(t)
	require.Equal(t, 1, m.CurrentVersion())

	next := DefaultConfig()
	next.Pipeline.MaxRetries = 1
	next.Server.HTTPPort = 9000
	next.LLM.APIKey = "secret-key"

	require.NoError(t, m.ApplyConfig(next, "test"))
	assert.Equal(t, 2, m.CurrentVersion())
	assert.Equal(t, 1, m.GetConfig().Pipeline.MaxRetries)

	changes := m.ChangeLog(0)
	retries, ok := findChange(changes, "Pipeline.MaxRetries")
	require.True(t, ok)
	assert.False(t, retries.RequiresRestart)
	assert.Equal(t, 2, retries.OldValue)
	assert.Equal(t, 1, retries.NewValue)

	port, ok := findChange(changes, "Server.HTTPPort")
	require.True(t, ok)
	assert.True(t, port.RequiresRestart)

	key, ok := findChange(changes, "LLM.APIKey")
	require.True(t, ok)
	assert.Equal(t, redacted, key.OldValue)
	assert.Equal(t, redacted, key.NewValue)
}

func TestHotReloadManager_RejectsInvalidConfig(t *testing.T) {
	m := newTestManager(t)

	bad := DefaultConfig()
	bad.Pipeline.VetoMode = "shrug"
	err := m.ApplyConfig(bad, "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "veto_mode")

	assert.Equal(t, 1, m.CurrentVersion())
	assert.Equal(t, planner.VetoModeRetry, m.GetConfig().Pipeline.VetoMode)

	log := m.ChangeLog(0)
	require.Len(t, log, 1)
	assert.Equal(t, "(validation)", log[0].Path)
	assert.False(t, log[0].Applied)
}

func TestHotReloadManager_ValidateFunc(t *testing.T) {
	m := newTestManager(t, WithValidateFunc(func(c *Config) error {
		if c.Pipeline.DefaultLocation == "" {
			return errors.New("default location required")
		}
		return nil
	}))

	next := DefaultConfig()
	next.Pipeline.DefaultLocation = ""
	require.Error(t, m.ApplyConfig(next, "test"))
	assert.Equal(t, "Toronto", m.GetConfig().Pipeline.DefaultLocation)
}

func TestHotReloadManager_CallbackFailureRollsBack(t *testing.T) {
	tests := []struct {
		name string
		cb   ReloadCallback
	}{
		{"error", func(_, _ *Config) error { return errors.New("rebuild failed") }},
		{"panic", func(_, _ *Config) error { panic("boom") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestManager(t)
			m.OnReload(tt.cb)

			var events []RollbackEvent
			m.OnRollback(func(e RollbackEvent) { events = append(events, e) })

			next := DefaultConfig()
			next.Pipeline.MaxRetries = 0
			err := m.ApplyConfig(next, "test")
			require.Error(t, err)

			assert.Equal(t, 2, m.GetConfig().Pipeline.MaxRetries)
			require.Len(t, events, 1)
			assert.Equal(t, 3, events[0].Version)
			require.NotNil(t, events[0].Restored)
			assert.Equal(t, 2, events[0].Restored.Pipeline.MaxRetries)
		})
	}
}

func TestHotReloadManager_ReloadCallbackSeesBothConfigs(t *testing.T) {
	m := newTestManager(t)
	var oldRetries, newRetries int
	m.OnReload(func(oldCfg, newCfg *Config) error {
		oldRetries, newRetries = oldCfg.Pipeline.MaxRetries, newCfg.Pipeline.MaxRetries
		return nil
	})

	next := DefaultConfig()
	next.Pipeline.MaxRetries = 0
	require.NoError(t, m.ApplyConfig(next, "test"))
	assert.Equal(t, 2, oldRetries)
	assert.Equal(t, 0, newRetries)
}

func TestHotReloadManager_UpdateField(t *testing.T) {
	m := newTestManager(t)

	// JSON 数字以 float64 到达
	require.NoError(t, m.UpdateField("Pipeline.MaxRetries", float64(3)))
	assert.Equal(t, 3, m.GetConfig().Pipeline.MaxRetries)

	require.NoError(t, m.UpdateField("Pipeline.StageTimeout", "45s"))
	assert.Equal(t, 45*time.Second, m.GetConfig().Pipeline.StageTimeout)

	require.NoError(t, m.UpdateField("Pipeline.Weights.Cost", 0.5))
	assert.InDelta(t, 0.5, m.GetConfig().Pipeline.Weights.Cost, 1e-9)

	require.NoError(t, m.UpdateField("Log.Level", "debug"))
	assert.Equal(t, "debug", m.GetConfig().Log.Level)

	err := m.UpdateField("Server.HTTPPort", float64(9999))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not hot-reloadable")

	require.Error(t, m.UpdateField("Pipeline.MaxRetries", "many"))
	require.Error(t, m.UpdateField("Pipeline.VetoMode", "sometimes"))
	assert.Equal(t, planner.VetoModeRetry, m.GetConfig().Pipeline.VetoMode)
}

func TestHotReloadManager_Rollback(t *testing.T) {
	m := newTestManager(t)
	require.Error(t, m.Rollback())

	require.NoError(t, m.UpdateField("Pipeline.DefaultLocation", "Ottawa"))
	require.NoError(t, m.UpdateField("Pipeline.DefaultLocation", "Halifax"))
	assert.Equal(t, 3, m.CurrentVersion())

	require.NoError(t, m.Rollback())
	assert.Equal(t, "Ottawa", m.GetConfig().Pipeline.DefaultLocation)
	assert.Equal(t, 4, m.CurrentVersion())

	require.NoError(t, m.RollbackToVersion(1))
	assert.Equal(t, "Toronto", m.GetConfig().Pipeline.DefaultLocation)
	assert.Error(t, m.RollbackToVersion(42))
}

func TestHotReloadManager_HistoryIsBounded(t *testing.T) {
	m := newTestManager(t, WithMaxHistorySize(3))
	for i := 0; i < 5; i++ {
		require.NoError(t, m.UpdateField("Pipeline.CandidateCap", float64(5+i)))
	}
	history := m.History()
	require.Len(t, history, 3)
	assert.Equal(t, 6, history[2].Version)
	assert.Equal(t, 4, history[0].Version)
	assert.NotEmpty(t, history[0].Checksum)
}

func TestHotReloadManager_GetConfigReturnsCopy(t *testing.T) {
	m := newTestManager(t)
	cfg := m.GetConfig()
	cfg.Pipeline.MaxRetries = 99
	assert.Equal(t, 2, m.GetConfig().Pipeline.MaxRetries)
}

func TestSanitize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LLM.APIKey = "g-key"
	cfg.Sources.Yelp.APIKey = "y-key"
	cfg.Identity.ClientSecret = "shh"
	cfg.Server.AdminAPIKey = "admin"

	out := Sanitize(cfg)
	require.NotNil(t, out)

	llmSection := out["LLM"].(map[string]any)
	assert.Equal(t, redacted, llmSection["APIKey"])
	assert.Equal(t, "gemini-2.5-flash", llmSection["Model"])

	yelp := out["Sources"].(map[string]any)["Yelp"].(map[string]any)
	assert.Equal(t, redacted, yelp["APIKey"])

	// 空值保持为空，方便判断是否已配置
	places := out["Sources"].(map[string]any)["GooglePlaces"].(map[string]any)
	assert.Equal(t, "", places["APIKey"])

	assert.Equal(t, redacted, out["Identity"].(map[string]any)["ClientSecret"])
	assert.Equal(t, redacted, out["Server"].(map[string]any)["AdminAPIKey"])
}

func TestIsHotReloadable(t *testing.T) {
	assert.True(t, IsHotReloadable("Pipeline.MaxRetries"))
	assert.True(t, IsHotReloadable("Log.Level"))
	assert.False(t, IsHotReloadable("Server.HTTPPort"))
	assert.False(t, IsHotReloadable("LLM.APIKey"))
	assert.False(t, IsHotReloadable("Unknown.Field"))

	fields := Fields()
	assert.True(t, fields["JWT.Secret"].Sensitive)
	delete(fields, "JWT.Secret")
	assert.Contains(t, Fields(), "JWT.Secret")
}

func TestHotReloadManager_ReloadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: debug\npipeline:\n  max_retries: 1\n"), 0o644))

	m := newTestManager(t, WithConfigPath(path), WithEnvPrefixForReload("PATHFINDER_RELOAD_TEST"))
	require.NoError(t, m.ReloadFromFile())

	cfg := m.GetConfig()
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 1, cfg.Pipeline.MaxRetries)

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  veto_mode: never\n"), 0o644))
	require.Error(t, m.ReloadFromFile())
	assert.Equal(t, 1, m.GetConfig().Pipeline.MaxRetries)

	require.Error(t, newTestManager(t).ReloadFromFile())
}

func TestHotReloadManager_WatchesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_retries: 2\n"), 0o644))

	m := newTestManager(t, WithConfigPath(path), WithEnvPrefixForReload("PATHFINDER_RELOAD_TEST"))
	var mu sync.Mutex
	reloaded := 0
	m.OnReload(func(_, _ *Config) error {
		mu.Lock()
		reloaded++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Start(ctx))
	defer func() { _ = m.Stop() }()

	require.NoError(t, os.WriteFile(path, []byte("pipeline:\n  max_retries: 0\n"), 0o644))

	assert.Eventually(t, func() bool {
		return m.GetConfig().Pipeline.MaxRetries == 0
	}, 5*time.Second, 50*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, reloaded, 1)
}
