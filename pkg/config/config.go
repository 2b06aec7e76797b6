package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"gopkg.in/yaml.v3"

	"github.com/betbot/tradedash/pkg/marketspec"
)

const (
	DefaultAPIBaseURL            = "http://localhost:8000/api/v1"
	DefaultPollInterval          = 5000 * time.Millisecond
	DefaultRequestTimeout        = 10 * time.Second
	DefaultTradesLimit           = 10
	DefaultChartLimit            = 100
	DefaultSymbol                = "BTCUSDT"
	DefaultExchange              = "binance"
	DefaultTimeframe             = "1h"
	DefaultCurrency              = "ILS"
	DefaultStrategiesRefresh     = 30 * time.Second
	MinPollInterval              = 250 * time.Millisecond
	maxTradesLimit, maxChartBars = 500, 1000
)

// APIConfig 后端 API 配置
type APIConfig struct {
	BaseURL         string
	RequestTimeout  time.Duration // 单个轮询周期的请求截止时间
	RateLimitPerSec float64       // 0 表示不限制
}

// PollConfig 组合轮询配置
type PollConfig struct {
	Interval    time.Duration
	TradesLimit int
}

// ChartConfig 行情图配置
type ChartConfig struct {
	Symbol    string
	Exchange  string
	Timeframe string
	Limit     int
}

// StrategiesConfig 策略管理配置
type StrategiesConfig struct {
	RefreshInterval  time.Duration     // 定时重新拉取列表，0 表示关闭
	ParametersSchema string            // parameters 的 JSON Schema 文件（可选）
	MetricsFields    map[string]string // 展示名 -> jsonpath
}

// Config 运行配置
type Config struct {
	API           APIConfig
	Poll          PollConfig
	Chart         ChartConfig
	Strategies    StrategiesConfig
	Currency      string
	LogLevel      string
	LogFile       string
	MetricsListen string // 为空则不启动 /debug/vars
}

var globalConfig *Config
var configFilePath string

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	return configFilePath
}

// ConfigFile 配置文件结构（用于 YAML/JSON 解析）
type ConfigFile struct {
	API struct {
		BaseURL          string  `yaml:"base_url" json:"base_url"`
		RequestTimeoutMs int     `yaml:"request_timeout_ms" json:"request_timeout_ms"`
		RateLimitPerSec  float64 `yaml:"rate_limit_per_sec" json:"rate_limit_per_sec"`
	} `yaml:"api" json:"api"`
	Poll struct {
		IntervalMs  int `yaml:"interval_ms" json:"interval_ms"`
		TradesLimit int `yaml:"trades_limit" json:"trades_limit"`
	} `yaml:"poll" json:"poll"`
	Chart struct {
		Symbol    string `yaml:"symbol" json:"symbol"`
		Exchange  string `yaml:"exchange" json:"exchange"`
		Timeframe string `yaml:"timeframe" json:"timeframe"`
		Limit     int    `yaml:"limit" json:"limit"`
	} `yaml:"chart" json:"chart"`
	Strategies struct {
		RefreshIntervalMs *int              `yaml:"refresh_interval_ms" json:"refresh_interval_ms"`
		ParametersSchema  string            `yaml:"parameters_schema" json:"parameters_schema"`
		MetricsFields     map[string]string `yaml:"metrics_fields" json:"metrics_fields"`
	} `yaml:"strategies" json:"strategies"`
	Display struct {
		Currency string `yaml:"currency" json:"currency"`
	} `yaml:"display" json:"display"`
	LogLevel      string `yaml:"log_level" json:"log_level"`
	LogFile       string `yaml:"log_file" json:"log_file"`
	MetricsListen string `yaml:"metrics_listen" json:"metrics_listen"`
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(configFilePath)
}

// LoadFromFile 从指定文件加载配置。优先级：环境变量 > 配置文件 > 默认值
func LoadFromFile(filePath string) (*Config, error) {
	cf := &ConfigFile{}
	if filePath != "" {
		loaded, err := loadConfigFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("load config file %s: %w", filePath, err)
		}
		cf = loaded
	}

	refresh := DefaultStrategiesRefresh
	if cf.Strategies.RefreshIntervalMs != nil {
		refresh = time.Duration(*cf.Strategies.RefreshIntervalMs) * time.Millisecond
	}

	config := &Config{
		API: APIConfig{
			BaseURL:         getValueFromSources(cf.API.BaseURL, "TRADEDASH_API_URL", DefaultAPIBaseURL),
			RequestTimeout:  msFromSources(cf.API.RequestTimeoutMs, "TRADEDASH_REQUEST_TIMEOUT_MS", DefaultRequestTimeout),
			RateLimitPerSec: parseFloatEnv("TRADEDASH_RATE_LIMIT", cf.API.RateLimitPerSec),
		},
		Poll: PollConfig{
			Interval:    msFromSources(cf.Poll.IntervalMs, "TRADEDASH_POLL_INTERVAL_MS", DefaultPollInterval),
			TradesLimit: intFromSources(cf.Poll.TradesLimit, "TRADEDASH_TRADES_LIMIT", DefaultTradesLimit),
		},
		Chart: ChartConfig{
			Symbol:    getValueFromSources(cf.Chart.Symbol, "TRADEDASH_SYMBOL", DefaultSymbol),
			Exchange:  getValueFromSources(cf.Chart.Exchange, "TRADEDASH_EXCHANGE", DefaultExchange),
			Timeframe: getValueFromSources(cf.Chart.Timeframe, "TRADEDASH_TIMEFRAME", DefaultTimeframe),
			Limit:     intFromSources(cf.Chart.Limit, "TRADEDASH_CHART_LIMIT", DefaultChartLimit),
		},
		Strategies: StrategiesConfig{
			RefreshInterval:  refresh,
			ParametersSchema: getValueFromSources(cf.Strategies.ParametersSchema, "TRADEDASH_PARAMETERS_SCHEMA", ""),
			MetricsFields:    cf.Strategies.MetricsFields,
		},
		Currency:      strings.ToUpper(getValueFromSources(cf.Display.Currency, "TRADEDASH_CURRENCY", DefaultCurrency)),
		LogLevel:      getValueFromSources(cf.LogLevel, "LOG_LEVEL", "info"),
		LogFile:       getValueFromSources(cf.LogFile, "LOG_FILE", ""),
		MetricsListen: getValueFromSources(cf.MetricsListen, "METRICS_LISTEN", ""),
	}

	globalConfig = config
	configFilePath = filePath
	return config, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON）
func loadConfigFile(filePath string) (*ConfigFile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var configFile ConfigFile
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &configFile); err != nil {
			return nil, fmt.Errorf("parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s (supported: .yaml, .yml, .json)", ext)
	}

	return &configFile, nil
}

// Get 获取全局配置（如果已加载）
func Get() *Config {
	return globalConfig
}

// Validate 验证配置
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("api.base_url is not a valid absolute URL: %q", c.API.BaseURL)
	}
	if c.Poll.Interval < MinPollInterval {
		return fmt.Errorf("poll.interval_ms must be at least %d", MinPollInterval.Milliseconds())
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout_ms must be greater than 0")
	}
	if c.API.RateLimitPerSec < 0 {
		return fmt.Errorf("api.rate_limit_per_sec cannot be negative")
	}
	if c.Poll.TradesLimit < 1 || c.Poll.TradesLimit > maxTradesLimit {
		return fmt.Errorf("poll.trades_limit must be between 1 and %d", maxTradesLimit)
	}
	if c.Chart.Limit < 1 || c.Chart.Limit > maxChartBars {
		return fmt.Errorf("chart.limit must be between 1 and %d", maxChartBars)
	}
	if _, err := marketspec.New(c.Chart.Symbol, c.Chart.Exchange, c.Chart.Timeframe); err != nil {
		return fmt.Errorf("chart: %w", err)
	}
	if c.Strategies.RefreshInterval < 0 {
		return fmt.Errorf("strategies.refresh_interval_ms cannot be negative")
	}
	if money.GetCurrency(c.Currency) == nil {
		return fmt.Errorf("unknown display.currency: %q", c.Currency)
	}
	return nil
}

// ChartKey 返回初始行情窗口（Validate 之后调用）
func (c *Config) ChartKey() (marketspec.Key, error) {
	return marketspec.New(c.Chart.Symbol, c.Chart.Exchange, c.Chart.Timeframe)
}

// getValueFromSources 环境变量 > 配置文件 > 默认值
func getValueFromSources(configValue, envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if configValue != "" {
		return configValue
	}
	return defaultValue
}

func intFromSources(configValue int, envKey string, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return parseIntEnv(envKey, defaultValue)
}

func msFromSources(configMs int, envKey string, defaultValue time.Duration) time.Duration {
	ms := int(defaultValue.Milliseconds())
	if configMs != 0 {
		ms = configMs
	}
	return time.Duration(parseIntEnv(envKey, ms)) * time.Millisecond
}

// parseIntEnv 解析整数环境变量
func parseIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

// parseFloatEnv 解析浮点数环境变量
func parseFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}
