package jobs

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vladislavdragonenkov/crm/internal/api"
)

// Транспорты API для клиента задач.
const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// Config - настройки задач. Порядок применения: DefaultConfig, YAML-файл, окружение.
type Config struct {
	APIURL               string            `yaml:"api_url"`
	APITransport         string            `yaml:"api_transport"`
	APIGRPCAddr          string            `yaml:"api_grpc_addr"`
	APITimeout           time.Duration     `yaml:"api_timeout"`
	APIRetries           int               `yaml:"api_retries"`
	LogDir               string            `yaml:"log_dir"`
	ReminderLookbackDays int               `yaml:"reminder_lookback_days"`
	PushgatewayURL       string            `yaml:"pushgateway_url"`
	LogLevel             string            `yaml:"log_level"`
	Schedules            map[string]string `yaml:"schedules"`
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		APIURL:               "http://localhost:8000/graphql",
		APITransport:         TransportHTTP,
		APIGRPCAddr:          "localhost:50051",
		APITimeout:           10 * time.Second,
		APIRetries:           3,
		LogDir:               "/tmp",
		ReminderLookbackDays: 7,
		LogLevel:             "info",
		Schedules:            DefaultSchedules(),
	}
}

// LoadConfig собирает конфигурацию. path может быть пустым.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("CRM_API_URL", &c.APIURL)
	str("CRM_API_TRANSPORT", &c.APITransport)
	str("CRM_API_GRPC_ADDR", &c.APIGRPCAddr)
	str("CRM_LOG_DIR", &c.LogDir)
	str("CRM_PUSHGATEWAY_URL", &c.PushgatewayURL)
	str("CRM_LOG_LEVEL", &c.LogLevel)

	if v, ok := lookup("CRM_API_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("CRM_API_TIMEOUT: %w", err)
		}
		c.APITimeout = d
	}
	for key, dst := range map[string]*int{
		"CRM_API_RETRIES":            &c.APIRetries,
		"CRM_REMINDER_LOOKBACK_DAYS": &c.ReminderLookbackDays,
	} {
		if v, ok := lookup(key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.APITransport {
	case TransportHTTP:
		if c.APIURL == "" {
			errs = append(errs, errors.New("api_url is required for http transport"))
		}
	case TransportGRPC:
		if c.APIGRPCAddr == "" {
			errs = append(errs, errors.New("api_grpc_addr is required for grpc transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported api transport %q", c.APITransport))
	}
	if c.APITimeout <= 0 {
		errs = append(errs, errors.New("api_timeout must be positive"))
	}
	if c.APIRetries < 1 {
		errs = append(errs, errors.New("api_retries must be at least 1"))
	}
	if c.ReminderLookbackDays < 0 {
		errs = append(errs, errors.New("reminder_lookback_days cannot be negative"))
	}
	if c.LogDir == "" {
		errs = append(errs, errors.New("log_dir is required"))
	}
	return errors.Join(errs...)
}

// RetryConfig переводит настройки в политику повторов клиента.
func (c Config) RetryConfig() api.RetryConfig {
	cfg := api.DefaultRetryConfig()
	cfg.MaxAttempts = c.APIRetries
	cfg.AttemptTimeout = c.APITimeout
	return cfg
}

// Dial создаёт клиент CRM под выбранный транспорт. closeFn освобождает соединение.
func (c Config) Dial() (client *api.Client, closeFn func() error, err error) {
	opts := []api.ClientOption{api.WithRetryConfig(c.RetryConfig())}

	switch c.APITransport {
	case TransportGRPC:
		conn, err := api.DialGRPC(c.APIGRPCAddr)
		if err != nil {
			return nil, nil, fmt.Errorf("dial grpc %s: %w", c.APIGRPCAddr, err)
		}
		return api.NewClient(api.NewGRPCTransport(conn), opts...), conn.Close, nil
	default:
		return api.NewClient(api.NewHTTPTransport(c.APIURL, nil), opts...), func() error { return nil }, nil
	}
}
