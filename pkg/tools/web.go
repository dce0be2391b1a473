// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tools

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebSettings configures a web_request tool instance.
type WebSettings struct {
	Timeout         time.Duration `yaml:"timeout"`
	MaxResponseSize int64         `yaml:"max_response_size"`
	AllowedDomains  []string      `yaml:"allowed_domains"`
	DeniedDomains   []string      `yaml:"denied_domains"`
	AllowedMethods  []string      `yaml:"allowed_methods"`
	UserAgent       string        `yaml:"user_agent"`
}

// Web makes HTTP requests to external services, with domain and method
// allowlists and a response size cap.
type Web struct {
	name     string
	settings WebSettings
	client   *http.Client
}

// NewWeb creates a web request tool.
func NewWeb(name string, settings WebSettings) *Web {
	if settings.Timeout <= 0 {
		settings.Timeout = 30 * time.Second
	}
	if settings.MaxResponseSize <= 0 {
		settings.MaxResponseSize = 5 * 1024 * 1024
	}
	if settings.UserAgent == "" {
		settings.UserAgent = "switchboard"
	}

	return &Web{
		name:     name,
		settings: settings,
		client:   &http.Client{Timeout: settings.Timeout},
	}
}

func (t *Web) Name() string { return t.name }

func (t *Web) Description() string {
	return "Make HTTP requests to external APIs and web services"
}

// Call performs the request described by args: url, optional method, headers
// and body.
func (t *Web) Call(ctx context.Context, args map[string]any) (map[string]any, error) {
	urlStr, ok := args["url"].(string)
	if !ok || urlStr == "" {
		return nil, fmt.Errorf("url parameter is required")
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if err := t.validateDomain(parsedURL.Host); err != nil {
		return nil, err
	}

	method := "GET"
	if m, ok := args["method"].(string); ok && m != "" {
		method = strings.ToUpper(m)
	}
	if err := t.validateMethod(method); err != nil {
		return nil, err
	}

	var body io.Reader
	if b, ok := args["body"].(string); ok && b != "" {
		body = bytes.NewReader([]byte(b))
	}

	req, err := http.NewRequestWithContext(ctx, method, urlStr, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", t.settings.UserAgent)
	if headers, ok := args["headers"].(map[string]any); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, t.settings.MaxResponseSize+1)
	responseBody, err := io.ReadAll(limited)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(responseBody)) > t.settings.MaxResponseSize {
		return nil, fmt.Errorf("response too large: exceeds %d bytes", t.settings.MaxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("request failed with status %s", resp.Status)
	}

	return map[string]any{
		"url":          urlStr,
		"method":       method,
		"status_code":  resp.StatusCode,
		"content_type": resp.Header.Get("Content-Type"),
		"size":         len(responseBody),
		"body":         string(responseBody),
	}, nil
}

func (t *Web) validateDomain(host string) error {
	// Deny rules take precedence over allow rules.
	for _, denied := range t.settings.DeniedDomains {
		if matchesDomain(host, denied) {
			return fmt.Errorf("domain not allowed: %s (matches deny rule: %s)", host, denied)
		}
	}
	if len(t.settings.AllowedDomains) > 0 {
		for _, allowed := range t.settings.AllowedDomains {
			if matchesDomain(host, allowed) {
				return nil
			}
		}
		return fmt.Errorf("domain not allowed: %s (not in allowed list)", host)
	}
	return nil
}

func (t *Web) validateMethod(method string) error {
	if len(t.settings.AllowedMethods) == 0 {
		return nil
	}
	for _, allowed := range t.settings.AllowedMethods {
		if strings.EqualFold(method, allowed) {
			return nil
		}
	}
	return fmt.Errorf("HTTP method not allowed: %s (allowed: %v)", method, t.settings.AllowedMethods)
}

func matchesDomain(host, pattern string) bool {
	if idx := strings.Index(host, ":"); idx != -1 {
		host = host[:idx]
	}
	if host == pattern {
		return true
	}
	// Wildcard match (e.g. "*.example.com").
	if strings.HasPrefix(pattern, "*.") {
		return strings.HasSuffix(host, pattern[1:])
	}
	return false
}
