package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config 配置文件结构体
type Config struct {
	Version string `yaml:"version"`

	Sqlite struct {
		Dsn    string `yaml:"dsn"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`

	Log struct {
		Level  string   `yaml:"level"`
		Writer []string `yaml:"writer"`
		File   string   `yaml:"file"`
	} `yaml:"log"`

	Chat struct {
		BaseURL         string `yaml:"baseURL"`
		Model           string `yaml:"model"`
		VisionModel     string `yaml:"visionModel"`
		VisionMaxTokens int    `yaml:"visionMaxTokens"`
	} `yaml:"chat"`

	Speech struct {
		Model  string   `yaml:"model"`
		Speed  float64  `yaml:"speed"`
		Player []string `yaml:"player"`
	} `yaml:"speech"`

	DevTools struct {
		URL            string `yaml:"url"`
		Target         string `yaml:"target"`
		PollIntervalMS int    `yaml:"pollIntervalMS"`
	} `yaml:"devtools"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	c := &Config{Version: "1.0.0"}

	c.Sqlite.Dsn = "pagepilot.sqlite3"
	c.Sqlite.Prefix = "pagepilot_"

	c.Log.Level = "info"
	c.Log.Writer = []string{"file"}
	c.Log.File = "pagepilot.log"

	c.Chat.BaseURL = "https://api.openai.com/v1"
	c.Chat.Model = "gpt-4o-mini"
	c.Chat.VisionModel = "gpt-4o"
	c.Chat.VisionMaxTokens = 1000

	c.Speech.Model = "tts-1"
	c.Speech.Speed = 1.0
	c.Speech.Player = []string{"ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet"}

	c.DevTools.URL = "http://127.0.0.1:9222"
	c.DevTools.PollIntervalMS = 2000
	return c
}

// Load 读取 YAML 配置文件并覆盖默认值；path 为空时直接返回默认配置
func Load(path string) (*Config, error) {
	c := NewConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	if c.Chat.BaseURL == "" {
		return fmt.Errorf("chat.baseURL 不能为空")
	}
	if c.DevTools.PollIntervalMS <= 0 {
		return fmt.Errorf("devtools.pollIntervalMS 必须大于 0")
	}
	if c.Speech.Speed <= 0 {
		return fmt.Errorf("speech.speed 必须大于 0")
	}
	return nil
}
