package config

import (
	"errors"
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Authentication methods for the broker session.
const (
	AuthMethodAPI      = "API"
	AuthMethodEnctoken = "ENCTOKEN"
)

// Credentials are the broker credentials, environment-only so they never end
// up in a config file.
type Credentials struct {
	AuthMethod     string `env:"AUTH_METHOD"`
	APIKey         string `env:"API_KEY"`
	APISecret      string `env:"API_SECRET"`
	AccessTokenDir string `env:"ACCESS_TOKEN_DIR" envDefault:"AccessToken"`
	Enctoken       string `env:"ENCTOKEN"`
	UserID         string `env:"USERID"`
	AppEnv         string `env:"APP_ENV"`
}

// LoadCredentials parses the credentials from the environment.
func LoadCredentials() (*Credentials, error) {
	var creds Credentials
	if err := env.Parse(&creds); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return &creds, nil
}

// Validate checks that the selected auth method has what it needs.
func (c *Credentials) Validate() error {
	switch c.AuthMethod {
	case AuthMethodAPI:
		if c.APIKey == "" {
			return errors.New("API_KEY is required for AUTH_METHOD=API")
		}
	case AuthMethodEnctoken:
		if c.Enctoken == "" {
			return errors.New("ENCTOKEN is required for AUTH_METHOD=ENCTOKEN")
		}
		if c.UserID == "" {
			return errors.New("USERID is required for AUTH_METHOD=ENCTOKEN")
		}
	case "":
		return errors.New("AUTH_METHOD is required (API or ENCTOKEN)")
	default:
		return fmt.Errorf("invalid AUTH_METHOD %q (want API or ENCTOKEN)", c.AuthMethod)
	}
	return nil
}
