package appleapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ademuri/apple-music-reports/internal/testkeys"
)

type staticTokens struct {
	token string
	err   error
	calls atomic.Int32
}

func (s *staticTokens) Token() (string, error) {
	s.calls.Add(1)
	return s.token, s.err
}

func TestParseMethod(t *testing.T) {
	for _, name := range []string{"get", "PUT", "Post", "patch", "DELETE", "head"} {
		m, err := ParseMethod(name)
		require.NoError(t, err, name)
		assert.True(t, strings.EqualFold(name, m.String()), "%s parsed as %s", name, m)
	}

	m, err := ParseMethod("get")
	require.NoError(t, err)
	assert.Equal(t, MethodGet, m)

	_, err = ParseMethod("options")
	assert.Error(t, err)
	_, err = ParseMethod("")
	assert.Error(t, err)
}

func TestInReviewReport(t *testing.T) {
	const body = "a\tb\tc\n1\t2\t3\n"
	var gotAuth, gotPath, gotQuery, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		gotQuery = r.URL.Query().Get("rptg_date")
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/tab-separated-values")
		io.WriteString(w, body)
	}))
	defer srv.Close()

	tokens := &staticTokens{token: "signed.jwt.token"}
	client := NewClient(tokens, ClientConfig{BaseURL: srv.URL + "/", VerifySSL: true, UserAgent: "test-agent"})

	resp, err := client.InReviewReport(context.Background(), "2022-11-10")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, body, resp.Body, "body must be returned verbatim")
	assert.Equal(t, "text/tab-separated-values", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Bearer signed.jwt.token", gotAuth)
	assert.Equal(t, "/reports/in-review/v1", gotPath)
	assert.Equal(t, "2022-11-10", gotQuery)
	assert.Equal(t, "test-agent", gotUA)
}

func TestInReviewReportWithIssuer(t *testing.T) {
	key := testkeys.ECP256()
	issuer := NewTokenIssuer(TokenConfig{
		PrivKeyPath: testkeys.WriteFile(t, "AuthKey.p8", testkeys.PKCS8(t, key)),
		KeyID:       "KEY",
		IssuerID:    "ISSUER",
		Lifetime:    20 * time.Minute,
	})

	var claims jwt.MapClaims
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("Authorization")[len("Bearer "):]
		claims = jwt.MapClaims{}
		_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
			return &key.PublicKey, nil
		})
		if err != nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		io.WriteString(w, "ok")
	}))
	defer srv.Close()

	client := NewClient(issuer, ClientConfig{BaseURL: srv.URL, VerifySSL: true})
	resp, err := client.InReviewReport(context.Background(), "2022-11-10")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ISSUER", claims["iss"])
}

func TestDoReturnsNon2xx(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "no such report", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true, Retries: 3})
	resp, err := client.InReviewReport(context.Background(), "2022-11-10")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "no such report\n", resp.Body)
	assert.EqualValues(t, 1, hits.Load(), "4xx must not be retried")
}

func TestDoRetriesServerErrors(t *testing.T) {
	t.Run("recovers", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if hits.Add(1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			io.WriteString(w, "done")
		}))
		defer srv.Close()

		tokens := &staticTokens{token: "t"}
		client := NewClient(tokens, ClientConfig{BaseURL: srv.URL, VerifySSL: true, Retries: 2, RetryDelay: time.Millisecond})
		resp, err := client.InReviewReport(context.Background(), "2022-11-10")
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "done", resp.Body)
		assert.EqualValues(t, 3, hits.Load())
		assert.EqualValues(t, 3, tokens.calls.Load(), "every attempt asks for a token")
	})

	t.Run("exhausted", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		}))
		defer srv.Close()

		client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true, Retries: 2, RetryDelay: time.Millisecond})
		resp, err := client.InReviewReport(context.Background(), "2022-11-10")
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
		assert.EqualValues(t, 3, hits.Load())
	})

	t.Run("no-retries-by-default", func(t *testing.T) {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			hits.Add(1)
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer srv.Close()

		client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true})
		resp, err := client.InReviewReport(context.Background(), "2022-11-10")
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
		assert.EqualValues(t, 1, hits.Load())
	})
}

func TestDoTokenError(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	tokens := &staticTokens{err: ErrSignToken}
	client := NewClient(tokens, ClientConfig{BaseURL: srv.URL, VerifySSL: true, Retries: 3, RetryDelay: time.Millisecond})
	_, err := client.InReviewReport(context.Background(), "2022-11-10")
	assert.ErrorIs(t, err, ErrSignToken)
	assert.EqualValues(t, 0, hits.Load())
	assert.EqualValues(t, 1, tokens.calls.Load(), "signing errors are not retried")
}

func TestDoTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: url, VerifySSL: true})
	_, err := client.InReviewReport(context.Background(), "2022-11-10")
	assert.Error(t, err)
}

func TestDoTLSVerification(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "secure")
	}))
	defer srv.Close()

	verifying := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true})
	_, err := verifying.InReviewReport(context.Background(), "2022-11-10")
	assert.Error(t, err, "self-signed certificate must be rejected")

	insecure := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: false})
	resp, err := insecure.InReviewReport(context.Background(), "2022-11-10")
	require.NoError(t, err)
	assert.Equal(t, "secure", resp.Body)
}

func TestDoVerbs(t *testing.T) {
	var gotMethod, gotBody, gotHeader, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		gotHeader = r.Header.Get("X-Extra")
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true})
	for m, name := range methodNames {
		var body []byte
		if m == MethodPut || m == MethodPost || m == MethodPatch {
			body = []byte(`{"k":"v"}`)
		}

		resp, err := client.Do(context.Background(), m, srv.URL+"/x", body, map[string]string{
			"X-Extra":       "1",
			"Authorization": "Basic overridden",
		})
		require.NoError(t, err, name)
		assert.Equal(t, http.StatusAccepted, resp.StatusCode, name)
		assert.Equal(t, name, gotMethod)
		assert.Equal(t, string(body), gotBody, name)
		assert.Equal(t, "1", gotHeader, name)
		assert.Equal(t, "Bearer t", gotAuth, name)
	}

	_, err := client.Do(context.Background(), Method(42), srv.URL, nil, nil)
	assert.Error(t, err)
}

func TestDoContextCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(&staticTokens{token: "t"}, ClientConfig{BaseURL: srv.URL, VerifySSL: true})
	_, err := client.InReviewReport(ctx, "2022-11-10")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
