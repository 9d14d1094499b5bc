package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	// 백엔드 API 설정
	API struct {
		BaseURL string        `envconfig:"COCKPIT_API_URL" default:"http://localhost:8000/api/v1"`
		Timeout time.Duration `envconfig:"COCKPIT_API_TIMEOUT" default:"10s"`
	}

	// 토큰 저장소 설정
	Secret struct {
		Path       string `envconfig:"COCKPIT_SECRET_PATH" default:".cockpit/secrets.yaml"`
		Passphrase string `envconfig:"COCKPIT_SECRET_PASSPHRASE"`
		Memory     bool   `envconfig:"COCKPIT_SECRET_MEMORY" default:"false"`
	}

	// 포트폴리오 캐시 설정
	Portfolio struct {
		MaxAge time.Duration `envconfig:"PORTFOLIO_MAX_AGE" default:"30s"`
	}

	// 백그라운드 갱신 설정
	Refresh struct {
		Interval time.Duration `envconfig:"REFRESH_INTERVAL" default:"1m"`
	}

	// 디스코드 웹훅 설정 (비어 있으면 알림 없음)
	Discord struct {
		Webhook      string `envconfig:"DISCORD_WEBHOOK"`
		ErrorWebhook string `envconfig:"DISCORD_ERROR_WEBHOOK"`
	}

	// 로그 설정
	Log struct {
		Level string `envconfig:"LOG_LEVEL" default:"info"`
	}

	// 개발용 가짜 서버 설정
	MockAPI struct {
		Addr      string        `envconfig:"MOCKAPI_ADDR" default:":8000"`
		Email     string        `envconfig:"MOCKAPI_EMAIL" default:"admin@example.com"`
		Password  string        `envconfig:"MOCKAPI_PASSWORD" default:"changethis"`
		FullName  string        `envconfig:"MOCKAPI_FULL_NAME" default:"Admin"`
		JWTSecret string        `envconfig:"MOCKAPI_JWT_SECRET"`
		TokenTTL  time.Duration `envconfig:"MOCKAPI_TOKEN_TTL" default:"24h"`
	}
}

// ValidateConfig는 설정이 유효한지 확인합니다.
func ValidateConfig(cfg *Config) error {
	u, err := url.Parse(cfg.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("COCKPIT_API_URL이 올바른 http(s) 주소가 아닙니다: %q", cfg.API.BaseURL)
	}

	if cfg.API.Timeout < time.Second || cfg.API.Timeout > time.Minute {
		return fmt.Errorf("COCKPIT_API_TIMEOUT은 1초 이상 1분 이하이어야 합니다")
	}

	if !cfg.Secret.Memory {
		if cfg.Secret.Path == "" {
			return fmt.Errorf("COCKPIT_SECRET_PATH가 필요합니다")
		}
		if cfg.Secret.Passphrase == "" {
			return fmt.Errorf("COCKPIT_SECRET_PASSPHRASE가 필요합니다 (또는 COCKPIT_SECRET_MEMORY=true)")
		}
	}

	if cfg.Portfolio.MaxAge < 0 {
		return fmt.Errorf("PORTFOLIO_MAX_AGE는 0 이상이어야 합니다")
	}

	if cfg.Refresh.Interval < 10*time.Second {
		return fmt.Errorf("REFRESH_INTERVAL은 10초 이상이어야 합니다")
	}

	for name, hook := range map[string]string{
		"DISCORD_WEBHOOK":       cfg.Discord.Webhook,
		"DISCORD_ERROR_WEBHOOK": cfg.Discord.ErrorWebhook,
	} {
		if hook == "" {
			continue
		}
		if u, err := url.Parse(hook); err != nil || u.Scheme != "https" {
			return fmt.Errorf("%s는 https 주소이어야 합니다", name)
		}
	}

	if _, err := ParseLevel(cfg.Log.Level); err != nil {
		return err
	}

	return nil
}

// ValidateMockAPI는 가짜 서버 실행에 필요한 설정을 확인합니다.
func ValidateMockAPI(cfg *Config) error {
	if cfg.MockAPI.Email == "" || cfg.MockAPI.Password == "" {
		return fmt.Errorf("MOCKAPI_EMAIL과 MOCKAPI_PASSWORD가 필요합니다")
	}
	if len(cfg.MockAPI.JWTSecret) < 16 {
		return fmt.Errorf("MOCKAPI_JWT_SECRET은 16자 이상이어야 합니다")
	}
	if cfg.MockAPI.TokenTTL < time.Minute {
		return fmt.Errorf("MOCKAPI_TOKEN_TTL은 1분 이상이어야 합니다")
	}
	return nil
}

// ParseLevel은 LOG_LEVEL 값을 slog 레벨로 변환합니다.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.TrimSpace(level))); err != nil {
		return 0, fmt.Errorf("LOG_LEVEL이 올바르지 않습니다: %q", level)
	}
	return l, nil
}

// Load는 환경변수에서 설정을 로드합니다. 검증은 호출자가 용도에 맞게 수행합니다.
// .env 파일이 없으면 환경변수만 사용합니다.
func Load(files ...string) (*Config, error) {
	if err := godotenv.Load(files...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf(".env 파일 로드 실패: %w", err)
	}

	var cfg Config
	// 환경변수를 구조체로 파싱
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("환경변수 처리 실패: %w", err)
	}

	return &cfg, nil
}

// LoadConfig는 환경변수에서 설정을 로드하고 검증합니다.
func LoadConfig(files ...string) (*Config, error) {
	cfg, err := Load(files...)
	if err != nil {
		return nil, err
	}

	// 설정값 검증
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("설정값 검증 실패: %w", err)
	}

	return cfg, nil
}
