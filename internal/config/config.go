/*
Copyright 2026 Google LLC

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package config resolves the settings used to talk to the Music Analytics
// API.
//
// Sources are layered, each overriding the previous one for keys they share:
//  1. Built-in defaults
//  2. JSON config file
//  3. Environment variables (upper-cased key names, e.g. ISSUER_ID)
//  4. Explicit overrides, usually command line flags
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

const (
	KeyAPIBaseURL      = "api_base_url"
	KeyIssuerID        = "issuer_id"
	KeyJWTExpireSec    = "jwt_expire_sec"
	KeyKeyID           = "key_id"
	KeyPrivKeyPath     = "privkey_path"
	KeyOut             = "out"
	KeyVerifySSL       = "verify_ssl"
	KeyDatabase        = "database"
	KeyRetries         = "retries"
	KeyRetryDelay      = "retry_delay"
	KeyRequestInterval = "request_interval"
	KeyUserAgent       = "user_agent"
)

const (
	DefaultAPIBaseURL   = "https://musicanalytics.apple.com"
	DefaultJWTExpireSec = 1200
	DefaultUserAgent    = "apple-music-reports/1.0"
)

// RequiredKeys must be non-empty once every source has been merged.
var RequiredKeys = []string{
	KeyAPIBaseURL,
	KeyIssuerID,
	KeyJWTExpireSec,
	KeyKeyID,
	KeyPrivKeyPath,
}

// ErrInvalidConfig is wrapped by every error returned from Resolve.
var ErrInvalidConfig = errors.New("invalid configuration")

// MissingKeyError reports a required key that no source provided.
type MissingKeyError struct {
	Key string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("Missing configuration item: %s", e.Key)
}

func (e *MissingKeyError) Unwrap() error {
	return ErrInvalidConfig
}

type Settings struct {
	APIBaseURL  string
	IssuerID    string
	KeyID       string
	PrivKeyPath string
	JWTExpire   time.Duration

	// Out overrides where reports are written. Empty means the default
	// file name in the working directory.
	Out string

	VerifySSL bool

	// Database is the download history path. Empty disables history.
	Database string

	Retries         int
	RetryDelay      time.Duration
	RequestInterval time.Duration
	UserAgent       string

	// File is the config file that was read, if any.
	File string
}

// Source describes where Resolve should look for settings.
type Source struct {
	// Path of a JSON config file. Empty skips the file step.
	Path string

	// Explicit marks Path as chosen by the user. When false, a missing file
	// at Path is ignored rather than treated as an error.
	Explicit bool

	// Overrides win over every other source.
	Overrides map[string]any

	// Lenient skips the required-key check, for operations that never call
	// the API.
	Lenient bool
}

// Resolve merges all sources into Settings. Each call starts from a fresh
// viper instance, so nothing leaks between invocations.
func Resolve(src Source) (Settings, error) {
	v := viper.New()
	v.SetDefault(KeyAPIBaseURL, DefaultAPIBaseURL)
	v.SetDefault(KeyJWTExpireSec, DefaultJWTExpireSec)
	v.SetDefault(KeyVerifySSL, true)
	v.SetDefault(KeyRetries, 0)
	v.SetDefault(KeyRetryDelay, time.Second)
	v.SetDefault(KeyRequestInterval, time.Second)
	v.SetDefault(KeyUserAgent, DefaultUserAgent)

	file, err := readFile(v, src)
	if err != nil {
		return Settings{}, err
	}

	for _, key := range RequiredKeys {
		if err := v.BindEnv(key, strings.ToUpper(key)); err != nil {
			return Settings{}, fmt.Errorf("%w: binding %s: %v", ErrInvalidConfig, key, err)
		}
	}

	for key, value := range src.Overrides {
		v.Set(key, value)
	}

	for _, key := range RequiredKeys {
		if !src.Lenient && strings.TrimSpace(v.GetString(key)) == "" {
			return Settings{}, &MissingKeyError{Key: key}
		}
	}

	expireSec, err := strconv.Atoi(strings.TrimSpace(v.GetString(KeyJWTExpireSec)))
	if err != nil || expireSec <= 0 {
		return Settings{}, fmt.Errorf("%w: %s must be a positive number of seconds, got %q",
			ErrInvalidConfig, KeyJWTExpireSec, v.GetString(KeyJWTExpireSec))
	}

	retries := v.GetInt(KeyRetries)
	if retries < 0 {
		return Settings{}, fmt.Errorf("%w: %s must not be negative, got %d", ErrInvalidConfig, KeyRetries, retries)
	}

	keyPath, err := homedir.Expand(v.GetString(KeyPrivKeyPath))
	if err != nil {
		return Settings{}, fmt.Errorf("%w: expanding %s: %v", ErrInvalidConfig, KeyPrivKeyPath, err)
	}

	return Settings{
		APIBaseURL:      strings.TrimRight(v.GetString(KeyAPIBaseURL), "/"),
		IssuerID:        v.GetString(KeyIssuerID),
		KeyID:           v.GetString(KeyKeyID),
		PrivKeyPath:     keyPath,
		JWTExpire:       time.Duration(expireSec) * time.Second,
		Out:             v.GetString(KeyOut),
		VerifySSL:       v.GetBool(KeyVerifySSL),
		Database:        v.GetString(KeyDatabase),
		Retries:         retries,
		RetryDelay:      v.GetDuration(KeyRetryDelay),
		RequestInterval: v.GetDuration(KeyRequestInterval),
		UserAgent:       v.GetString(KeyUserAgent),
		File:            file,
	}, nil
}

func readFile(v *viper.Viper, src Source) (string, error) {
	if src.Path == "" {
		return "", nil
	}

	path, err := homedir.Expand(src.Path)
	if err != nil {
		return "", fmt.Errorf("%w: expanding config path: %v", ErrInvalidConfig, err)
	}

	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !src.Explicit {
			return "", nil
		}
		return "", fmt.Errorf("%w: reading config file: %v", ErrInvalidConfig, err)
	}

	v.SetConfigFile(path)
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		return "", fmt.Errorf("%w: reading config file %s: %v", ErrInvalidConfig, path, err)
	}
	return v.ConfigFileUsed(), nil
}
