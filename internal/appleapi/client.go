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

// Package appleapi talks to Apple's Music Analytics API. Every request
// carries a short-lived ES256 bearer token minted by TokenIssuer.
package appleapi

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Method is one of the HTTP verbs the client is allowed to send.
type Method int

const (
	MethodGet Method = iota
	MethodPut
	MethodPost
	MethodPatch
	MethodDelete
	MethodHead
)

var methodNames = map[Method]string{
	MethodGet:    http.MethodGet,
	MethodPut:    http.MethodPut,
	MethodPost:   http.MethodPost,
	MethodPatch:  http.MethodPatch,
	MethodDelete: http.MethodDelete,
	MethodHead:   http.MethodHead,
}

func (m Method) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return fmt.Sprintf("Method(%d)", int(m))
}

// ParseMethod maps a verb name, in any case, to a Method.
func ParseMethod(s string) (Method, error) {
	for m, name := range methodNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("Invalid HTTP verb: %q", s)
}

// Response is the raw result of a request. Body is never interpreted.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// TokenSource hands out bearer tokens.
type TokenSource interface {
	Token() (string, error)
}

type ClientConfig struct {
	BaseURL   string
	VerifySSL bool
	UserAgent string

	// Retries is the number of extra attempts after a transport error or a
	// 5xx response. Zero sends each request exactly once.
	Retries    int
	RetryDelay time.Duration

	Logger *zerolog.Logger
}

type Client struct {
	http    *resty.Client
	tokens  TokenSource
	baseURL string
	retries int
	delay   time.Duration
	log     zerolog.Logger
}

func NewClient(tokens TokenSource, cfg ClientConfig) *Client {
	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	}

	cli := resty.New()
	if !cfg.VerifySSL {
		//nolint:gosec // opt-in via verify_ssl=false
		cli.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	if cfg.UserAgent != "" {
		cli.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		http:    cli,
		tokens:  tokens,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		retries: max(cfg.Retries, 0),
		delay:   cfg.RetryDelay,
		log:     log,
	}
}

// serverError marks a 5xx response so retry-go treats it as retryable.
type serverError struct {
	code int
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server returned HTTP %d", e.code)
}

// Do sends a signed request. Any status code is returned as a Response;
// only transport and token failures are errors.
func (c *Client) Do(ctx context.Context, method Method, target string, body []byte, headers map[string]string) (Response, error) {
	if _, ok := methodNames[method]; !ok {
		return Response{}, fmt.Errorf("Invalid HTTP verb: %s", method)
	}

	var resp Response
	err := retry.Do(
		func() error {
			token, err := c.tokens.Token()
			if err != nil {
				return fmt.Errorf("issuing token: %w", err)
			}

			req := c.http.R().
				SetContext(ctx).
				SetHeaders(headers).
				SetAuthToken(token)
			if body != nil {
				req.SetBody(body)
			}

			r, err := req.Execute(method.String(), target)
			if err != nil {
				return err
			}

			resp = Response{
				StatusCode: r.StatusCode(),
				Header:     r.Header(),
				Body:       string(r.Body()),
			}
			if resp.StatusCode >= 500 {
				return &serverError{code: resp.StatusCode}
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.retries)+1),
		retry.Delay(c.delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, ErrReadKey) && !errors.Is(err, ErrSignToken)
		}),
		retry.OnRetry(func(n uint, err error) {
			// retry-go also calls this after the final attempt.
			if n >= uint(c.retries) {
				return
			}
			c.log.Warn().Err(err).Uint("attempt", n+1).Str("method", method.String()).Str("url", target).Msg("Music Analytics API errored, retrying")
		}),
	)

	var se *serverError
	if errors.As(err, &se) {
		return resp, nil
	}
	if err != nil {
		return Response{}, fmt.Errorf("%s %s: %w", method, target, err)
	}

	c.log.Debug().Str("method", method.String()).Str("url", target).Int("status", resp.StatusCode).Int("bytes", len(resp.Body)).Msg("request complete")
	return resp, nil
}

// InReviewURL is the endpoint for the in-review report of one reporting day.
func (c *Client) InReviewURL(reportingDay string) string {
	return c.baseURL + "/reports/in-review/v1?rptg_date=" + url.QueryEscape(reportingDay)
}

// InReviewReport fetches the in-review report for a YYYY-MM-DD reporting day.
func (c *Client) InReviewReport(ctx context.Context, reportingDay string) (Response, error) {
	return c.Do(ctx, MethodGet, c.InReviewURL(reportingDay), nil, nil)
}
