package sonar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// DefaultPageSize is the number of components requested per page.
const DefaultPageSize = 500

const componentTreePath = "/api/measures/component_tree"

// Client talks to the measures API of a SonarQube server.
type Client struct {
	Endpoint string
	Token    string
	PageSize int
	Debug    bool
	client   *http.Client
}

// Measure is a single metric value reported for a component.
type Measure struct {
	Metric string `json:"metric"`
	Value  string `json:"value"`
}

// Component is a file or folder node of the analysed project tree.
type Component struct {
	Key       string    `json:"key,omitempty"`
	Name      string    `json:"name,omitempty"`
	Qualifier string    `json:"qualifier,omitempty"`
	Path      string    `json:"path"`
	Measures  []Measure `json:"measures"`
}

// MeasureValue returns the value of metric, or "" when it is not reported.
// A metric listed more than once resolves to its last entry.
func (c Component) MeasureValue(metric string) string {
	for i := len(c.Measures) - 1; i >= 0; i-- {
		if c.Measures[i].Metric == metric {
			return c.Measures[i].Value
		}
	}
	return ""
}

type componentTreeResponse struct {
	Components []Component `json:"components"`
}

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	detail := strings.TrimSpace(e.Body)
	if detail != "" {
		return fmt.Sprintf("sonar error: %s: %s", e.Status, detail)
	}
	return fmt.Sprintf("sonar error: %s", e.Status)
}

// NewClient builds a client for the server at endpoint.
func NewClient(endpoint, token string) *Client {
	if endpoint == "" {
		endpoint = "http://localhost:9000"
	}
	return &Client{
		Endpoint: strings.TrimRight(endpoint, "/"),
		Token:    token,
		PageSize: DefaultPageSize,
		client: &http.Client{
			Timeout: time.Minute,
		},
	}
}

// SetHTTPClient replaces the underlying HTTP client.
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.client = hc
}

// SetDebugLogging enables or disables verbose logging for requests/responses.
func (c *Client) SetDebugLogging(enabled bool) {
	c.Debug = enabled
}

func (c *Client) getHTTPClient() *http.Client {
	if c.client != nil {
		return c.client
	}
	c.client = &http.Client{Timeout: time.Minute}
	return c.client
}

func (c *Client) pageSize() int {
	if c.PageSize > 0 {
		return c.PageSize
	}
	return DefaultPageSize
}

// ComponentTree fetches every component of project together with the
// requested metrics. Pages are requested until one comes back empty or short.
func (c *Client) ComponentTree(ctx context.Context, project string, metricKeys []string) ([]Component, error) {
	if project == "" {
		return nil, errors.New("project key required")
	}
	size := c.pageSize()
	var all []Component
	for page := 1; ; page++ {
		components, err := c.componentTreePage(ctx, project, metricKeys, size, page)
		if err != nil {
			return nil, err
		}
		if len(components) == 0 {
			break
		}
		all = append(all, components...)
		if len(components) < size {
			break
		}
	}
	return all, nil
}

func (c *Client) componentTreePage(ctx context.Context, project string, metricKeys []string, size, page int) ([]Component, error) {
	params := url.Values{}
	params.Set("component", project)
	params.Set("metricKeys", strings.Join(metricKeys, ","))
	params.Set("ps", strconv.Itoa(size))
	params.Set("p", strconv.Itoa(page))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.Endpoint+componentTreePath+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.Token)
	req.Header.Set("Accept", "application/json")
	c.logf("GET %s page=%d", componentTreePath, page)

	resp, err := c.getHTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("request page %d: %w", page, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read page %d: %w", page, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, Body: string(body)}
	}
	c.logf("page=%d status=%d bytes=%d", page, resp.StatusCode, len(body))

	var decoded componentTreeResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode page %d: %w", page, err)
	}
	return decoded.Components, nil
}

func (c *Client) logf(format string, args ...interface{}) {
	if !c.Debug {
		return
	}
	log.Printf("[sonar] "+format, args...)
}
