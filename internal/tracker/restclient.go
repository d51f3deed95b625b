package tracker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RESTClient talks to a tracker's JSON API. Both migration endpoints expose
// the same generic shape (list with offset/limit paging, create by POST), so
// one client serves as Source and Target; the concrete field mapping of each
// tracker is carried opaquely in Entity.Fields.
type RESTClient struct {
	baseURL  string
	apiToken string
	http     *http.Client
}

// NewRESTClient creates a client for a tracker API endpoint
func NewRESTClient(cfg Config) (*RESTClient, error) {
	base, err := cleanBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid tracker endpoint: %w", err)
	}

	return &RESTClient{
		baseURL:  base,
		apiToken: cfg.APIToken,
		http:     &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// cleanBaseURL validates the endpoint and strips any trailing slash
func cleanBaseURL(endpoint string) (string, error) {
	if endpoint == "" {
		return "", fmt.Errorf("endpoint cannot be empty")
	}

	parsed, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to parse endpoint URL: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("endpoint must be an http(s) URL")
	}

	return strings.TrimRight(endpoint, "/"), nil
}

// CountEntities returns the total count reported by the collection endpoint
func (c *RESTClient) CountEntities(ctx context.Context, entityType string) (int64, error) {
	var out struct {
		Total int64 `json:"total"`
	}

	path := fmt.Sprintf("/%s?offset=0&limit=1", url.PathEscape(entityType))
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", entityType, err)
	}

	return out.Total, nil
}

// ListEntities returns one page of entities of a type
func (c *RESTClient) ListEntities(ctx context.Context, entityType string, offset, limit int) ([]Entity, error) {
	var out struct {
		Items []map[string]any `json:"items"`
	}

	path := fmt.Sprintf("/%s?offset=%d&limit=%d", url.PathEscape(entityType), offset, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", entityType, err)
	}

	entities := make([]Entity, 0, len(out.Items))
	for _, item := range out.Items {
		entities = append(entities, Entity{
			ID:     stringField(item, "id"),
			Type:   entityType,
			Fields: item,
		})
	}

	return entities, nil
}

// CreateEntity writes one entity into the target system
func (c *RESTClient) CreateEntity(ctx context.Context, entity Entity) error {
	path := "/" + url.PathEscape(entity.Type)
	if err := c.doJSON(ctx, http.MethodPost, path, entity.Fields, nil); err != nil {
		return fmt.Errorf("failed to create %s %s: %w", entity.Type, entity.ID, err)
	}
	return nil
}

func (c *RESTClient) doJSON(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func stringField(item map[string]any, key string) string {
	switch v := item[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatInt(int64(v), 10)
	default:
		return ""
	}
}
