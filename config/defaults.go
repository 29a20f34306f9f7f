// =============================================================================
// 📦 Pathfinder 默认配置
// =============================================================================
// 外部服务的 API Key 默认均为空，对应协作者在启动时不会被注入
// =============================================================================
package config

import (
	"time"

	"github.com/BaSui01/pathfinder/identity"
	"github.com/BaSui01/pathfinder/planner"
	"github.com/BaSui01/pathfinder/sources"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Log:       DefaultLogConfig(),
		LLM:       DefaultLLMConfig(),
		Sources:   sources.DefaultConfig(),
		Identity:  identity.DefaultConfig(),
		Redis:     DefaultRedisConfig(),
		Database:  DefaultDatabaseConfig(),
		Telemetry: DefaultTelemetryConfig(),
		JWT:       JWTConfig{},
		Pipeline:  planner.DefaultConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    5,
		RateLimitBurst:  10,
	}
}

// DefaultLLMConfig 返回默认模型配置
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		Provider:    "gemini",
		Model:       "gemini-2.5-flash",
		Timeout:     60 * time.Second,
		MaxRetries:  0,
		Temperature: 0.2,
		MaxTokens:   2048,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "postgres",
		Host:            "localhost",
		Port:            5432,
		User:            "pathfinder",
		Name:            "pathfinder",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:        "info",
		Format:       "json",
		OutputPaths:  []string{"stdout"},
		EnableCaller: true,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "pathfinder",
		SampleRate:   0.1,
	}
}
