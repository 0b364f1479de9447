// Package e2e drives a running optin server through godog scenarios.
package e2e

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// TestContext is one simulated browser: a cookie jar plus the last response.
type TestContext struct {
	BaseURL string

	client     *http.Client
	lastStatus int
	lastBody   []byte
	lastHeader http.Header
}

// NewTestContext creates a browser pointed at baseURL.
func NewTestContext(baseURL string) *TestContext {
	return &TestContext{BaseURL: strings.TrimRight(baseURL, "/")}
}

// Reset drops all cookies, starting a fresh visitor.
func (tc *TestContext) Reset() error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return err
	}
	tc.client = &http.Client{
		Jar:     jar,
		Timeout: 10 * time.Second,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	tc.lastStatus, tc.lastBody, tc.lastHeader = 0, nil, nil
	return nil
}

// GET loads a page or JSON endpoint.
func (tc *TestContext) GET(path string) error {
	req, err := http.NewRequest(http.MethodGet, tc.BaseURL+path, nil)
	if err != nil {
		return err
	}
	return tc.do(req)
}

// POSTForm submits a banner form the way htmx does.
func (tc *TestContext) POSTForm(path string, form url.Values) error {
	req, err := http.NewRequest(http.MethodPost, tc.BaseURL+path, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("HX-Request", "true")
	return tc.do(req)
}

func (tc *TestContext) do(req *http.Request) error {
	req.Header.Set("User-Agent", "Mozilla/5.0 (X11; Linux x86_64; rv:128.0) Gecko/20100101 Firefox/128.0")
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastStatus, tc.lastBody, tc.lastHeader = resp.StatusCode, body, resp.Header
	return nil
}

// GetLastResponseStatus returns the status code of the last response.
func (tc *TestContext) GetLastResponseStatus() int { return tc.lastStatus }

// GetLastResponseBody returns the body of the last response.
func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetLastResponseHeader returns a header of the last response.
func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.lastHeader == nil {
		return ""
	}
	return tc.lastHeader.Get(name)
}

func (tc *TestContext) responseStatusShouldBe(expected int) error {
	if tc.lastStatus != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, tc.lastStatus, tc.lastBody)
	}
	return nil
}
