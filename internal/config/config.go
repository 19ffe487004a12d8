// Package config 配置管理模块
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"
)

// DefaultCountdownEndDate 默认倒计时截止时间
const DefaultCountdownEndDate = "2026-05-20T00:00:00Z"

// Config 全局配置结构
type Config struct {
	Debug  bool   `json:"debug"`
	LogDir string `json:"log_dir"`

	Server    ServerConfig    `json:"server"`
	Countdown CountdownConfig `json:"countdown"`
	SMTP      SMTPConfig      `json:"smtp"`
	Telegram  TelegramConfig  `json:"telegram"`
	Storage   StorageConfig   `json:"storage"`
	Backup    BackupConfig    `json:"backup"`
	Worker    WorkerConfig    `json:"worker"`
}

// ServerConfig HTTP 服务配置
type ServerConfig struct {
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	PublicDir    string   `json:"public_dir"`
	AllowOrigins []string `json:"allow_origins"`
}

// CountdownConfig 倒计时配置
type CountdownConfig struct {
	EndDate      string `json:"end_date"`
	FallbackDays int    `json:"fallback_days"`

	fallbackDaysSet bool // 显式配置过（允许为 0）
}

// UnmarshalJSON 记录 fallback_days 是否出现在配置文件中
func (c *CountdownConfig) UnmarshalJSON(data []byte) error {
	type plain CountdownConfig
	var v struct {
		plain
		FallbackDays *int `json:"fallback_days"`
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*c = CountdownConfig(v.plain)
	if v.FallbackDays != nil {
		c.FallbackDays = *v.FallbackDays
		c.fallbackDaysSet = true
	}
	return nil
}

// SMTPConfig 邮件通知配置
type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Secure   *bool  `json:"secure"`
	User     string `json:"user"`
	Password string `json:"password"`
	From     string `json:"from"`
	To       string `json:"to"`
}

// TelegramConfig Telegram 通知配置
type TelegramConfig struct {
	BotToken    string `json:"bot_token"`
	AdminChatID int64  `json:"admin_chat_id"`
	Commands    bool   `json:"commands"` // 是否开启管理员命令轮询
}

// StorageConfig 数据文件配置
type StorageConfig struct {
	DataDir string `json:"data_dir"`
}

// BackupConfig 数据快照配置
type BackupConfig struct {
	Enabled  bool   `json:"enabled"`
	Dir      string `json:"dir"`
	KeepDays int    `json:"keep_days"`
	At       string `json:"at"`
}

// WorkerConfig 异步通知协程池配置
type WorkerConfig struct {
	Workers int `json:"workers"`
}

var (
	cfg     *Config
	cfgLock sync.RWMutex
)

// Load 加载配置
// 依次读取 .env、JSON 配置文件（可选）、环境变量，最后填充默认值
func Load(path string) (*Config, error) {
	loadDotEnv()

	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("解析配置文件失败: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	config.applyEnv(os.LookupEnv)

	// 设置默认值
	config.setDefaults()

	cfgLock.Lock()
	cfg = &config
	cfgLock.Unlock()

	return &config, nil
}

// Get 获取全局配置（线程安全）
func Get() *Config {
	cfgLock.RLock()
	defer cfgLock.RUnlock()
	return cfg
}

// loadDotEnv 加载 .env 文件，后加载的覆盖先加载的
func loadDotEnv() {
	var paths []string
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, ".env"))
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(dir, ".env"), filepath.Join(dir, "scripts", ".env"))
	}

	seen := make(map[string]bool)
	for _, p := range paths {
		if seen[p] {
			continue
		}
		seen[p] = true
		if _, err := os.Stat(p); err != nil {
			continue
		}
		_ = godotenv.Overload(p)
	}
}

// lookupFunc 与 os.LookupEnv 签名一致，便于测试注入
type lookupFunc func(string) (string, bool)

// firstEnv 按别名顺序返回第一个非空的环境变量
func firstEnv(lookup lookupFunc, keys ...string) (string, bool) {
	for _, key := range keys {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), true
		}
	}
	return "", false
}

// applyEnv 环境变量覆盖配置文件
func (c *Config) applyEnv(lookup lookupFunc) {
	if v, ok := firstEnv(lookup, "HOST"); ok {
		c.Server.Host = v
	}
	if v, ok := firstEnv(lookup, "PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v, ok := firstEnv(lookup, "PUBLIC_DIR"); ok {
		c.Server.PublicDir = v
	}

	if v, ok := firstEnv(lookup, "COUNTDOWN_END_DATE"); ok {
		c.Countdown.EndDate = v
	}
	if v, ok := firstEnv(lookup, "COUNTDOWN_FALLBACK_DAYS"); ok {
		if days, err := strconv.Atoi(v); err == nil {
			c.Countdown.FallbackDays = days
			c.Countdown.fallbackDaysSet = true
		}
	}

	if v, ok := firstEnv(lookup, "SMTP_HOST", "EMAIL_HOST"); ok {
		c.SMTP.Host = v
	}
	if v, ok := firstEnv(lookup, "SMTP_PORT", "EMAIL_PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			c.SMTP.Port = port
		}
	}
	if v, ok := firstEnv(lookup, "SMTP_SECURE"); ok {
		secure := v != "false"
		c.SMTP.Secure = &secure
	}
	if v, ok := firstEnv(lookup, "SMTP_USER", "SMTP_LOGIN", "EMAIL_USER", "SMTP_USERNAME"); ok {
		c.SMTP.User = v
	}
	if v, ok := firstEnv(lookup, "SMTP_PASS", "SMTP_PASSWORD", "EMAIL_PASS", "SMTP_SECRET"); ok {
		c.SMTP.Password = v
	}
	if v, ok := firstEnv(lookup, "EMAIL_FROM", "SMTP_USER", "SMTP_LOGIN", "EMAIL_SENDER"); ok {
		c.SMTP.From = v
	}
	if v, ok := firstEnv(lookup, "ADMIN_EMAIL", "EMAIL_TO", "SMTP_TO"); ok {
		c.SMTP.To = v
	}

	if v, ok := firstEnv(lookup, "TELEGRAM_BOT_TOKEN"); ok {
		c.Telegram.BotToken = v
	}
	if v, ok := firstEnv(lookup, "TELEGRAM_ADMIN_CHAT_ID"); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Telegram.AdminChatID = id
		}
	}
	if v, ok := firstEnv(lookup, "TELEGRAM_COMMANDS"); ok {
		c.Telegram.Commands = v == "true" || v == "1"
	}

	if v, ok := firstEnv(lookup, "DATA_DIR"); ok {
		c.Storage.DataDir = v
	}

	if v, ok := firstEnv(lookup, "BACKUP_ENABLED"); ok {
		c.Backup.Enabled = v == "true" || v == "1"
	}
	if v, ok := firstEnv(lookup, "BACKUP_DIR"); ok {
		c.Backup.Dir = v
	}
	if v, ok := firstEnv(lookup, "BACKUP_KEEP_DAYS"); ok {
		if days, err := strconv.Atoi(v); err == nil {
			c.Backup.KeepDays = days
		}
	}
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 4001
	}
	if c.Server.PublicDir == "" {
		c.Server.PublicDir = "./public"
	}
	if len(c.Server.AllowOrigins) == 0 {
		c.Server.AllowOrigins = []string{"*"}
	}
	if c.Countdown.EndDate == "" {
		c.Countdown.EndDate = DefaultCountdownEndDate
	}
	if !c.Countdown.fallbackDaysSet && c.Countdown.FallbackDays == 0 {
		c.Countdown.FallbackDays = 195
	}
	if c.SMTP.Port == 0 {
		c.SMTP.Port = 465
	}
	if c.SMTP.To == "" {
		c.SMTP.To = c.SMTP.From
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "./data"
	}
	if c.Backup.Dir == "" {
		c.Backup.Dir = "./backups"
	}
	if c.Backup.KeepDays == 0 {
		c.Backup.KeepDays = 7
	}
	if c.Backup.At == "" {
		c.Backup.At = "03:00"
	}
	if c.Worker.Workers <= 0 {
		c.Worker.Workers = 2
	}
}

// Addr 监听地址
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Enabled 邮件配置是否完整
func (s SMTPConfig) Enabled() bool {
	return s.Host != "" && s.User != "" && s.Password != "" && s.To != ""
}

// IsSecure 是否使用 SSL 直连，未显式配置时 587 端口走 STARTTLS
func (s SMTPConfig) IsSecure() bool {
	if s.Secure != nil {
		return *s.Secure
	}
	return s.Port != 587
}

// Sender 发件人地址
func (s SMTPConfig) Sender() string {
	if s.From != "" {
		return s.From
	}
	return s.User
}

// Enabled Telegram 通知是否可用
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.AdminChatID != 0
}
