package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *[]map[string]any) {
	t.Helper()

	issues := []map[string]any{
		{"id": "1", "subject": "first"},
		{"id": "2", "subject": "second"},
		{"id": "3", "subject": "third"},
	}
	var created []map[string]any

	mux := http.NewServeMux()
	mux.HandleFunc("/issues", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		switch r.Method {
		case http.MethodGet:
			offset, limit := 0, len(issues)
			fmt.Sscan(r.URL.Query().Get("offset"), &offset)
			fmt.Sscan(r.URL.Query().Get("limit"), &limit)

			end := offset + limit
			if offset > len(issues) {
				offset = len(issues)
			}
			if end > len(issues) {
				end = len(issues)
			}

			json.NewEncoder(w).Encode(map[string]any{
				"total": len(issues),
				"items": issues[offset:end],
			})

		case http.MethodPost:
			var fields map[string]any
			if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
				http.Error(w, "bad payload", http.StatusBadRequest)
				return
			}
			created = append(created, fields)
			w.WriteHeader(http.StatusCreated)
		}
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &created
}

func TestRESTClientListAndCount(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	client, err := NewRESTClient(Config{BaseURL: server.URL, APIToken: "secret"})
	require.NoError(t, err)

	ctx := context.Background()

	total, err := client.CountEntities(ctx, "issues")
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	entities, err := client.ListEntities(ctx, "issues", 1, 2)
	require.NoError(t, err)
	require.Len(t, entities, 2)
	assert.Equal(t, "2", entities[0].ID)
	assert.Equal(t, "issues", entities[0].Type)
	assert.Equal(t, "second", entities[0].Fields["subject"])
}

func TestRESTClientCreateEntity(t *testing.T) {
	t.Parallel()

	server, created := newTestServer(t)
	client, err := NewRESTClient(Config{BaseURL: server.URL, APIToken: "secret"})
	require.NoError(t, err)

	err = client.CreateEntity(context.Background(), Entity{
		ID:     "9",
		Type:   "issues",
		Fields: map[string]any{"id": "9", "subject": "new issue"},
	})
	require.NoError(t, err)
	require.Len(t, *created, 1)
	assert.Equal(t, "new issue", (*created)[0]["subject"])
}

func TestRESTClientAuthFailureSurfacesStatus(t *testing.T) {
	t.Parallel()

	server, _ := newTestServer(t)
	client, err := NewRESTClient(Config{BaseURL: server.URL, APIToken: "wrong"})
	require.NoError(t, err)

	_, err = client.CountEntities(context.Background(), "issues")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestNewRESTClientValidation(t *testing.T) {
	t.Parallel()

	_, err := NewRESTClient(Config{BaseURL: ""})
	assert.Error(t, err)

	_, err = NewRESTClient(Config{BaseURL: "ftp://example.com"})
	assert.Error(t, err)

	client, err := NewRESTClient(Config{BaseURL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", client.baseURL)
}
