// Package config предоставляет управление конфигурацией приложения
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Виды источника страницы расписания.
const (
	SourceKindHTTP = "http"
	SourceKindFile = "file"
)

// Server содержит конфигурацию HTTP-сервера управления
type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	// CycleTTL - сколько хранятся записи о циклах, запущенных через API.
	CycleTTL time.Duration `yaml:"cycle_ttl"`
}

// Telegram содержит конфигурацию бота
type Telegram struct {
	Token          string  `yaml:"token"`
	AdminIDs       []int64 `yaml:"admin_ids"`
	ParseMode      string  `yaml:"parse_mode"`
	SendRate       float64 `yaml:"send_rate"` // сообщений в секунду, 0 - без ограничения
	SendBurst      int     `yaml:"send_burst"`
	UpdatesTimeout int     `yaml:"updates_timeout"` // секунды long polling
}

// Source содержит конфигурацию источника страниц
type Source struct {
	Kind        string        `yaml:"kind"` // http, file
	DayURL      string        `yaml:"day_url"`
	WeekURL     string        `yaml:"week_url"`
	DayPath     string        `yaml:"day_path"`
	WeekPath    string        `yaml:"week_path"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
	MaxRetries  int           `yaml:"max_retries"`
}

// WeekEnabled сообщает, настроен ли недельный источник.
func (s Source) WeekEnabled() bool {
	if s.Kind == SourceKindFile {
		return s.WeekPath != ""
	}
	return s.WeekURL != ""
}

// Refresh содержит конфигурацию цикла обновления
type Refresh struct {
	Interval   time.Duration `yaml:"interval"`
	RunOnStart bool          `yaml:"run_on_start"`
	RetainDays int           `yaml:"retain_days"`
	StateFile  string        `yaml:"state_file"`
	Groups     []string      `yaml:"groups"` // пусто - все группы
}

// Dispatch содержит конфигурацию рассылки
type Dispatch struct {
	Workers         int `yaml:"workers"`
	RenderCacheSize int `yaml:"render_cache_size"`
}

// Antispam содержит конфигурацию защиты от флуда
type Antispam struct {
	MaxUpdates      int           `yaml:"max_updates"`
	Window          time.Duration `yaml:"window"`
	BanDuration     time.Duration `yaml:"ban_duration"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// Storage содержит конфигурацию хранилища подписчиков
type Storage struct {
	DataDir string `yaml:"data_dir"`
}

// Logging содержит конфигурацию логирования
type Logging struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// Daemon содержит настройки запуска в фоне
type Daemon struct {
	PIDFile string `yaml:"pid_file"`
	LogFile string `yaml:"log_file"`
	WorkDir string `yaml:"work_dir"`
}

// Config содержит конфигурацию приложения
type Config struct {
	Server   Server   `yaml:"server"`
	Telegram Telegram `yaml:"telegram"`
	Source   Source   `yaml:"source"`
	Refresh  Refresh  `yaml:"refresh"`
	Dispatch Dispatch `yaml:"dispatch"`
	Antispam Antispam `yaml:"antispam"`
	Storage  Storage  `yaml:"storage"`
	Logging  Logging  `yaml:"logging"`
	Daemon   Daemon   `yaml:"daemon"`
}

// LoadConfig загружает конфигурацию из YAML-файла, .env и переменных окружения.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
// Переменные окружения имеют приоритет над файлом.
func LoadConfig(filename string) (*Config, error) {
	// .env необязателен
	_ = godotenv.Load()

	cfg := Default()
	if filename != "" {
		if err := loadFromYAML(filename, cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("не удалось применить переменные окружения: %w", err)
	}

	return cfg, nil
}

// loadFromYAML накладывает YAML-файл на cfg
func loadFromYAML(filename string, cfg *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("не удалось прочитать файл конфигурации %s: %w", filename, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("не удалось разобрать YAML конфигурацию: %w", err)
	}

	return nil
}

// applyEnv применяет переопределения из переменных окружения
func applyEnv(cfg *Config) error {
	if v := os.Getenv("TIMETABLE_BOT_TOKEN"); v != "" {
		cfg.Telegram.Token = v
	}
	if v := os.Getenv("TIMETABLE_ADMIN_IDS"); v != "" {
		ids, err := parseIDs(v)
		if err != nil {
			return fmt.Errorf("недопустимый TIMETABLE_ADMIN_IDS: %w", err)
		}
		cfg.Telegram.AdminIDs = ids
	}
	if v := os.Getenv("TIMETABLE_SOURCE_URL"); v != "" {
		cfg.Source.DayURL = v
	}
	if v := os.Getenv("TIMETABLE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("недопустимый SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	return nil
}

// parseIDs разбирает список идентификаторов через запятую
func parseIDs(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Address возвращает адрес сервера в формате "host:port"
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Validate проверяет, являются ли значения конфигурации допустимыми
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port должен быть действительным номером порта (1-65535)")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout должно быть положительным")
	}

	if c.Telegram.Token == "" {
		return fmt.Errorf("telegram.token не может быть пустым")
	}
	if c.Telegram.SendRate < 0 {
		return fmt.Errorf("telegram.send_rate должно быть неотрицательным (0 для отсутствия ограничений)")
	}
	if c.Telegram.SendRate > 0 && c.Telegram.SendBurst <= 0 {
		return fmt.Errorf("telegram.send_burst должно быть положительным")
	}
	switch c.Telegram.ParseMode {
	case "", "Markdown", "MarkdownV2", "HTML":
	default:
		return fmt.Errorf("telegram.parse_mode должен быть одним из: Markdown, MarkdownV2, HTML")
	}

	switch c.Source.Kind {
	case SourceKindHTTP:
		if c.Source.DayURL == "" {
			return fmt.Errorf("source.day_url не может быть пустым для source.kind=http")
		}
		if c.Source.HTTPTimeout <= 0 {
			return fmt.Errorf("source.http_timeout должно быть положительным")
		}
	case SourceKindFile:
		if c.Source.DayPath == "" {
			return fmt.Errorf("source.day_path не может быть пустым для source.kind=file")
		}
	default:
		return fmt.Errorf("source.kind должен быть одним из: http, file")
	}
	if c.Source.MaxRetries < 0 {
		return fmt.Errorf("source.max_retries должно быть неотрицательным")
	}

	if c.Refresh.Interval <= 0 {
		return fmt.Errorf("refresh.interval должно быть положительным")
	}
	if c.Refresh.RetainDays <= 0 {
		return fmt.Errorf("refresh.retain_days должно быть положительным целым числом")
	}

	if c.Dispatch.Workers <= 0 {
		return fmt.Errorf("dispatch.workers должно быть положительным")
	}

	if c.Antispam.MaxUpdates <= 0 {
		return fmt.Errorf("antispam.max_updates должно быть положительным")
	}
	if c.Antispam.Window <= 0 || c.Antispam.BanDuration <= 0 || c.Antispam.CleanupInterval <= 0 {
		return fmt.Errorf("antispam.window, antispam.ban_duration и antispam.cleanup_interval должны быть положительными")
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
		// all good
	default:
		return fmt.Errorf("logging.level должен быть одним из: debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format должен быть одним из: json, text")
	}

	return nil
}
