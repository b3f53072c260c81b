package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Addr        string `envconfig:"ADDR" default:":8080"`
	DatabaseDSN string `envconfig:"DB_DSN" required:"true"`
	JWTSecret   string `envconfig:"JWT_SECRET" required:"true"`

	// Empty RedisAddr runs the fan-out broker in-process (single node).
	RedisAddr string `envconfig:"REDIS_ADDR"`

	MediaDir     string `envconfig:"MEDIA_DIR" default:"./media"`
	MediaBaseURL string `envconfig:"MEDIA_BASE_URL" default:"/media"`

	// StrictThreadRefs requires reply/forward actors to be participants of
	// the referenced message's chat, not only the target chat.
	StrictThreadRefs bool `envconfig:"STRICT_THREAD_REFS"`

	Development bool `envconfig:"DEV_MODE"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
