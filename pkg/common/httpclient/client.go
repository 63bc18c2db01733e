package httpclient

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// New creates an HTTP client for downloading study protocols and media.
func New(timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// OAuth2Credentials configures client-credentials access to a protected study server.
type OAuth2Credentials struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
}

func (c OAuth2Credentials) Enabled() bool {
	return c.TokenURL != "" && c.ClientID != ""
}

// NewAuthenticated wraps New with a token source when credentials are set;
// otherwise it returns the plain client.
func NewAuthenticated(ctx context.Context, timeout time.Duration, creds OAuth2Credentials) *http.Client {
	base := New(timeout)
	if !creds.Enabled() {
		return base
	}
	cc := &clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
		Scopes:       creds.Scopes,
	}
	client := cc.Client(context.WithValue(ctx, oauth2.HTTPClient, base))
	client.Timeout = timeout
	return client
}

// Retry executes fn with simple exponential backoff retry semantics.
func Retry(ctx context.Context, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts <= 1 {
		return fn()
	}

	var err error
	delay := baseDelay
	for i := 0; i < attempts; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err = fn()
		if err == nil {
			return nil
		}
		if !IsRetriable(err) {
			return err
		}

		if i == attempts-1 {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}

		delay *= 2
		if delay > 2*time.Second {
			delay = 2 * time.Second
		}
	}

	return err
}

// IsRetriable determines if the error is worth retrying.
func IsRetriable(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Code >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return "unexpected status " + http.StatusText(e.Code) + " from " + e.URL
}

// Fetch GETs url and returns at most maxBytes of the body. Non-2xx responses
// come back as *StatusError.
func Fetch(ctx context.Context, client *http.Client, url string, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{URL: url, Code: resp.StatusCode}
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBytes))
}
