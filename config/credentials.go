package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/viper"
)

// Credentials holds the Bybit API key pair. The zero value means public,
// unsigned requests.
type Credentials struct {
	APIKey    string
	APISecret string
}

// Empty reports whether no usable key pair is configured.
func (c Credentials) Empty() bool {
	return c.APIKey == "" || c.APISecret == ""
}

// LoadCredentials reads api_key / api_secret from a dotenv file, lets
// BYBIT_API_KEY / BYBIT_API_SECRET override them and, in prod, falls back to
// SSM Parameter Store for anything still missing. A missing env file is not
// an error.
func LoadCredentials(envFile, env string) (Credentials, error) {
	var creds Credentials

	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			v := viper.New()
			v.SetConfigFile(envFile)
			v.SetConfigType("env")
			if err := v.ReadInConfig(); err != nil {
				return Credentials{}, fmt.Errorf("read env file %s: %w", envFile, err)
			}
			creds.APIKey = v.GetString("api_key")
			creds.APISecret = v.GetString("api_secret")
		} else if !errors.Is(err, fs.ErrNotExist) {
			return Credentials{}, fmt.Errorf("stat env file %s: %w", envFile, err)
		}
	}

	if key := os.Getenv("BYBIT_API_KEY"); key != "" {
		creds.APIKey = key
	}
	if secret := os.Getenv("BYBIT_API_SECRET"); secret != "" {
		creds.APISecret = secret
	}

	if env == "prod" {
		if creds.APIKey == "" {
			creds.APIKey = getParameterStoreValue("BYBIT_API_KEY", true)
		}
		if creds.APISecret == "" {
			creds.APISecret = getParameterStoreValue("BYBIT_API_SECRET", true)
		}
	}

	return creds, nil
}
