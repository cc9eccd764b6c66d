package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type JWTConfig struct {
	SecretKey        string        `mapstructure:"secretKey"`
	Issuer           string        `mapstructure:"issuer"`
	Audience         string        `mapstructure:"audience"`
	AccessTokenTTL   time.Duration `mapstructure:"accessTokenTTL"`
	RefreshTokenDays int           `mapstructure:"refreshTokenDays"`
}

// RefreshTokenTTL converts the configured day count into a duration.
func (j JWTConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(j.RefreshTokenDays) * 24 * time.Hour
}

type RemoteServiceConfig struct {
	BaseURL string `mapstructure:"baseURL"`
}

type ServicesConfig struct {
	Timeout      time.Duration       `mapstructure:"timeout"`
	Organization RemoteServiceConfig `mapstructure:"organization"`
	Project      RemoteServiceConfig `mapstructure:"project"`
	Task         RemoteServiceConfig `mapstructure:"task"`
}

type DeletionConfig struct {
	// AdminCheckPolicy is "fail-open" or "fail-closed".
	AdminCheckPolicy string `mapstructure:"adminCheckPolicy"`
}

type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqpURL"`
	Exchange string `mapstructure:"exchange"`
}

type ObservabilityConfig struct {
	ServiceName string `mapstructure:"serviceName"`
	MetricsPort string `mapstructure:"metricsPort"`
}

type Config struct {
	Mode         string `mapstructure:"mode"`
	Dotenv       string `mapstructure:"dotenv"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	} `mapstructure:"repositories"`
	Server struct {
		HTTPPort       string        `mapstructure:"HTTPPort"`
		Timeout        time.Duration `mapstructure:"HTTPTimeout"`
		AllowedOrigins []string      `mapstructure:"allowedOrigins"`
	} `mapstructure:"server"`
	JWT           JWTConfig           `mapstructure:"jwt"`
	Services      ServicesConfig      `mapstructure:"services"`
	Deletion      DeletionConfig      `mapstructure:"deletion"`
	Events        EventsConfig        `mapstructure:"events"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// APP_JWT_SECRETKEY overrides jwt.secretKey, and so on.
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %w", err)
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err = config.Validate(); err != nil {
		return Config{}, err
	}
	fmt.Println("Successfully loaded app configs...")
	return config, nil
}

// Validate rejects configurations the services cannot start with.
func (c Config) Validate() error {
	if c.JWT.SecretKey == "" {
		return fmt.Errorf("jwt.secretKey must be set")
	}
	if c.JWT.AccessTokenTTL <= 0 {
		return fmt.Errorf("jwt.accessTokenTTL must be positive")
	}
	if c.JWT.RefreshTokenDays <= 0 {
		return fmt.Errorf("jwt.refreshTokenDays must be positive")
	}
	switch c.Deletion.AdminCheckPolicy {
	case "", "fail-open", "fail-closed":
	default:
		return fmt.Errorf("deletion.adminCheckPolicy must be fail-open or fail-closed, got %q", c.Deletion.AdminCheckPolicy)
	}
	return nil
}
