/* Copyright (c) 2025 the plugin-bt authors
 * SPDX-License-Identifier: MIT */
package jira

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ligoj/plugin-bt/internal/config"
)

type Client struct {
	baseURL string
	token   string
	user    string
	pass    string
	http    *http.Client
	log     zerolog.Logger
	apiVer  string
}

func NewClient(cfg config.Config, log zerolog.Logger) *Client {
	return &Client{
		baseURL: cfg.JiraBaseURL,
		token:   cfg.JiraPAT,
		user:    cfg.JiraUsername,
		pass:    cfg.JiraPassword,
		http:    &http.Client{Timeout: cfg.HTTPTimeout},
		log:     log,
		apiVer:  cfg.JiraAPIVersion,
	}
}

func (c *Client) apiURL(path string, q url.Values) string {
	base := strings.TrimRight(c.baseURL, "/")
	if !strings.HasPrefix(path, "/") { path = "/" + path }
	u := base + path
	if len(q) > 0 { u = u + "?" + q.Encode() }
	return u
}

func (c *Client) apiPath(suffix string) string {
	ver := c.apiVer
	if ver == "" { ver = "2" }
	return "/rest/api/" + ver + suffix
}

func (c *Client) do(ctx context.Context, method, u string, body any, out any) error {
	if c.baseURL == "" { return errors.New("jira: empty baseURL") }
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil { return err }
		payload = b
	}
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		var r io.Reader
		if payload != nil { r = strings.NewReader(string(payload)) }
		req, err := http.NewRequestWithContext(ctx, method, u, r)
		if err != nil { return err }
		if payload != nil { req.Header.Set("Content-Type", "application/json") }
		if c.token != "" {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else if c.user != "" && c.pass != "" {
			req.SetBasicAuth(c.user, c.pass)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
		} else {
			b, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()
			if readErr != nil { return readErr }
			if resp.StatusCode >= 300 {
				apiErr := fmt.Errorf("jira api status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
				// retry on 429/5xx
				if resp.StatusCode != 429 && resp.StatusCode < 500 { return apiErr }
				lastErr = apiErr
			} else {
				return json.Unmarshal(b, out)
			}
		}
		// backoff
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	return lastErr
}

// Search runs a paged JQL search with full fields.
func (c *Client) Search(ctx context.Context, jql string, startAt, max int) (map[string]any, error) {
	if jql == "" { return nil, errors.New("jira: empty jql") }
	q := url.Values{}
	q.Set("jql", jql)
	q.Set("fields", "*all")
	if startAt > 0 { q.Set("startAt", strconv.Itoa(startAt)) }
	if max > 0 { q.Set("maxResults", strconv.Itoa(max)) }
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, c.apiURL(c.apiPath("/search"), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Issue fetches a single issue with full fields and its changelog.
func (c *Client) Issue(ctx context.Context, key string) (map[string]any, error) {
	if key == "" { return nil, errors.New("jira: empty issue key") }
	q := url.Values{}
	q.Set("fields", "*all")
	q.Set("expand", "changelog")
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Changelog pages through the changelog of one issue.
func (c *Client) Changelog(ctx context.Context, key string, startAt, max int) (map[string]any, error) {
	if key == "" { return nil, errors.New("jira: empty issue key") }
	q := url.Values{}
	if startAt > 0 { q.Set("startAt", strconv.Itoa(startAt)) }
	if max > 0 { q.Set("maxResults", strconv.Itoa(max)) }
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, c.apiURL(c.apiPath("/issue/"+url.PathEscape(key)+"/changelog"), q), nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// catalog fetches one of the flat tracker catalogs (status, priority,
// issuetype, resolution) as an id to display-name mapping.
func (c *Client) catalog(ctx context.Context, path string) (map[int]string, error) {
	var entries []map[string]any
	if err := c.do(ctx, http.MethodGet, c.apiURL(c.apiPath(path), nil), nil, &entries); err != nil {
		return nil, err
	}
	out := make(map[int]string, len(entries))
	for _, e := range entries {
		id, err := strconv.Atoi(asString(e["id"]))
		if err != nil { continue }
		out[id] = asString(e["name"])
	}
	return out, nil
}

func (c *Client) Statuses(ctx context.Context) (map[int]string, error) {
	return c.catalog(ctx, "/status")
}

func (c *Client) Priorities(ctx context.Context) (map[int]string, error) {
	return c.catalog(ctx, "/priority")
}

func (c *Client) IssueTypes(ctx context.Context) (map[int]string, error) {
	return c.catalog(ctx, "/issuetype")
}

func (c *Client) Resolutions(ctx context.Context) (map[int]string, error) {
	return c.catalog(ctx, "/resolution")
}

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}
