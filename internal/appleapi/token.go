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
package appleapi

import (
	"crypto/elliptic"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim Apple expects on API tokens.
const Audience = "appstoreconnect-v1"

// refreshMargin is how long before exp a cached token stops being reused.
const refreshMargin = time.Minute

var (
	ErrReadKey   = errors.New("reading private key")
	ErrSignToken = errors.New("signing token")
)

// Token is a signed JWT and the window it is valid for.
type Token struct {
	Signed   string
	IssuedAt time.Time
	Exp      time.Time
}

// usable reports whether t can still be presented at now. Tokens shorter
// than twice the margin are reused for half their lifetime.
func (t Token) usable(now time.Time) bool {
	if t.Signed == "" {
		return false
	}
	margin := refreshMargin
	if life := t.Exp.Sub(t.IssuedAt); life < 2*margin {
		margin = life / 2
	}
	return now.Add(margin).Before(t.Exp)
}

type TokenConfig struct {
	PrivKeyPath string
	KeyID       string
	IssuerID    string
	Lifetime    time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

// TokenIssuer mints ES256 tokens for the Music Analytics API. A minted token
// is cached and handed out again until it gets close to expiring.
type TokenIssuer struct {
	cfg TokenConfig

	mu     sync.Mutex
	cached Token
}

func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &TokenIssuer{cfg: cfg}
}

// Token returns the signed token string, minting a new one if needed.
func (i *TokenIssuer) Token() (string, error) {
	tok, err := i.Current()
	if err != nil {
		return "", err
	}
	return tok.Signed, nil
}

// Current returns the cached token with its validity window.
func (i *TokenIssuer) Current() (Token, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	now := i.cfg.Now()
	if i.cached.usable(now) {
		return i.cached, nil
	}

	tok, err := i.mint(now)
	if err != nil {
		return Token{}, err
	}
	i.cached = tok
	return tok, nil
}

func (i *TokenIssuer) mint(now time.Time) (Token, error) {
	pemBytes, err := os.ReadFile(i.cfg.PrivKeyPath)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrReadKey, err)
	}

	key, err := jwt.ParseECPrivateKeyFromPEM(pemBytes)
	if err != nil {
		return Token{}, fmt.Errorf("%w: parsing %s: %w", ErrSignToken, i.cfg.PrivKeyPath, err)
	}
	if key.Curve != elliptic.P256() {
		return Token{}, fmt.Errorf("%w: ES256 needs a P-256 key, got %s", ErrSignToken, key.Curve.Params().Name)
	}

	// Apple rejects fractional timestamps.
	now = now.Truncate(time.Second)
	exp := now.Add(i.cfg.Lifetime)

	token := jwt.NewWithClaims(jwt.SigningMethodES256, jwt.MapClaims{
		"iss": i.cfg.IssuerID,
		"exp": exp.Unix(),
		"aud": Audience,
	})
	token.Header["kid"] = i.cfg.KeyID
	token.Header["typ"] = "JWT"

	signed, err := token.SignedString(key)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %w", ErrSignToken, err)
	}

	return Token{Signed: signed, IssuedAt: now, Exp: exp}, nil
}
