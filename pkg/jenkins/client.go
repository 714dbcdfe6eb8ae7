// Package jenkins is a minimal client for the Jenkins JSON remote API,
// scoped to the queries the dashboard needs: job listings, recent builds,
// single build details, server info and build triggering.
package jenkins

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rarya-JNPR/Pipeline-Reliability-Dashboard/pkg/config"
)

// Job is one entry of the top-level job listing.
type Job struct {
	Name      string `json:"name"`
	URL       string `json:"url"`
	Color     string `json:"color"`
	LastBuild *Build `json:"lastBuild"`
}

// Build is one build record. Timestamp and Duration are epoch/interval
// milliseconds as Jenkins reports them.
type Build struct {
	Number    int      `json:"number"`
	Timestamp int64    `json:"timestamp"`
	Result    string   `json:"result"`
	Duration  int64    `json:"duration"`
	URL       string   `json:"url"`
	Causes    []Cause  `json:"causes"`
	Actions   []Action `json:"actions"`
}

// Cause describes why a build started. Which field is populated depends on
// the cause type (manual, SCM, upstream).
type Cause struct {
	UserID           string `json:"userId"`
	UserName         string `json:"userName"`
	ShortDescription string `json:"shortDescription"`
}

// Action is a build action entry; trigger metadata sometimes nests here
// instead of the top-level causes list.
type Action struct {
	UserID   string  `json:"userId"`
	UserName string  `json:"userName"`
	Causes   []Cause `json:"causes"`
}

// ServerInfo carries the subset of the root API used by the health probe.
type ServerInfo struct {
	Version  string `json:"version"`
	NodeName string `json:"nodeName"`
}

type crumb struct {
	Crumb             string `json:"crumb"`
	CrumbRequestField string `json:"crumbRequestField"`
}

// Client talks to one Jenkins instance with basic auth and a bounded
// request timeout.
type Client struct {
	baseURL  string
	username string
	apiToken string
	http     *http.Client
}

// NewClient builds a client from configuration. Returns nil when no base
// URL is configured, which disables all Jenkins-backed features.
func NewClient(cfg config.JenkinsConfig) *Client {
	if cfg.BaseURL == "" {
		return nil
	}
	return &Client{
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		username: cfg.Username,
		apiToken: cfg.APIToken,
		http:     &http.Client{Timeout: cfg.Timeout()},
	}
}

// BaseURL returns the configured Jenkins root URL without trailing slash.
func (c *Client) BaseURL() string { return c.baseURL }

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("build jenkins request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.username != "" && c.apiToken != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("jenkins request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("jenkins request %s: status %d: %s", endpoint, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode jenkins response: %w", err)
	}
	return nil
}

// Jobs lists all jobs with their last build.
func (c *Client) Jobs(ctx context.Context) ([]Job, error) {
	var payload struct {
		Jobs []Job `json:"jobs"`
	}
	endpoint := "/api/json?tree=jobs[name,url,color,lastBuild[number,timestamp,result,duration]]"
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	return payload.Jobs, nil
}

// Builds returns up to limit most recent builds of a job.
func (c *Client) Builds(ctx context.Context, jobName string, limit int) ([]Build, error) {
	var payload struct {
		Builds []Build `json:"builds"`
	}
	endpoint := fmt.Sprintf("/job/%s/api/json?tree=builds[number,timestamp,result,duration,url,actions[*],causes[*]]",
		url.PathEscape(jobName))
	if err := c.get(ctx, endpoint, &payload); err != nil {
		return nil, err
	}
	if limit > 0 && len(payload.Builds) > limit {
		payload.Builds = payload.Builds[:limit]
	}
	return payload.Builds, nil
}

// BuildDetails fetches a single build.
func (c *Client) BuildDetails(ctx context.Context, jobName string, number int) (*Build, error) {
	var build Build
	endpoint := fmt.Sprintf("/job/%s/%d/api/json?tree=number,timestamp,result,duration,url,actions[*],causes[*]",
		url.PathEscape(jobName), number)
	if err := c.get(ctx, endpoint, &build); err != nil {
		return nil, err
	}
	return &build, nil
}

// Info returns server version information.
func (c *Client) Info(ctx context.Context) (*ServerInfo, error) {
	var info ServerInfo
	if err := c.get(ctx, "/api/json?tree=version,nodeName", &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TriggerBuild starts a build, passing parameters when supplied. A CSRF
// crumb is fetched first; crumb failures are ignored because instances with
// CSRF protection disabled reject the crumb endpoint.
func (c *Client) TriggerBuild(ctx context.Context, jobName string, params map[string]string) error {
	endpoint := fmt.Sprintf("%s/job/%s/build", c.baseURL, url.PathEscape(jobName))
	if len(params) > 0 {
		values := url.Values{}
		for k, v := range params {
			values.Set(k, v)
		}
		endpoint = fmt.Sprintf("%s/job/%s/buildWithParameters?%s", c.baseURL, url.PathEscape(jobName), values.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build trigger request: %w", err)
	}
	if c.username != "" && c.apiToken != "" {
		req.SetBasicAuth(c.username, c.apiToken)
	}
	if cr, err := c.fetchCrumb(ctx); err == nil && cr.CrumbRequestField != "" {
		req.Header.Set(cr.CrumbRequestField, cr.Crumb)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("trigger build %s: %w", jobName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("trigger build %s: status %d", jobName, resp.StatusCode)
	}
	return nil
}

func (c *Client) fetchCrumb(ctx context.Context) (*crumb, error) {
	var cr crumb
	if err := c.get(ctx, "/crumbIssuer/api/json", &cr); err != nil {
		return nil, err
	}
	return &cr, nil
}

// Healthy probes connectivity within the given timeout budget.
func (c *Client) Healthy(ctx context.Context) (*ServerInfo, error) {
	probeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.Info(probeCtx)
}
