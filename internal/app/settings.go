package app

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// ServeSettings are the server process settings read from the environment.
type ServeSettings struct {
	Addr             string        `env:"ARCADE_ADDR" envDefault:"127.0.0.1:8080"`
	BasePath         string        `env:"ARCADE_BASE_PATH" envDefault:"/v0"`
	JWTSecret        string        `env:"ARCADE_JWT_SECRET"`
	AllowActorHeader bool          `env:"ARCADE_ALLOW_ACTOR_HEADER" envDefault:"true"`
	ShutdownTimeout  time.Duration `env:"ARCADE_SHUTDOWN_TIMEOUT" envDefault:"10s"`
	Webhooks         bool          `env:"ARCADE_WEBHOOKS" envDefault:"true"`
}

// LoadServeSettings parses ServeSettings from the environment.
func LoadServeSettings() (ServeSettings, error) {
	var s ServeSettings
	if err := env.Parse(&s); err != nil {
		return s, fmt.Errorf("parse env: %w", err)
	}
	return s, nil
}
