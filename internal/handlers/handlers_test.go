package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"blackhole/internal/agents"
	"blackhole/internal/database"
	"blackhole/internal/extract/extracttest"
)

type fixedStatus struct{ st database.Status }

func (s fixedStatus) Status() database.Status { return s.st }

type staticStore struct{ store database.Store }

func (s staticStore) Connect(context.Context) database.Store { return s.store }

func setupTestApp(t *testing.T, withStore bool) *fiber.App {
	t.Helper()
	l := logrus.New()
	l.SetOutput(io.Discard)

	deps := agents.Deps{Logger: logrus.NewEntry(l)}
	if withStore {
		deps.Store = staticStore{database.NewMemoryStore("test_db")}
	}
	manager := agents.NewDefaultManager(deps)
	if !withStore {
		manager = agents.NewManager(nil)
		manager.Register(agents.KindPDF, agents.NewPDFAgent(deps))
	}

	app := fiber.New()
	status := fixedStatus{database.Status{Status: database.StatusConnected, ReadyState: 1, Host: "memory", Name: "test_db"}}
	Setup(app, NewHealthHandler(status, manager), NewProcessHandler(manager, 1<<20))
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp, decode(t, resp)
}

func decode(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealth(t *testing.T) {
	app := setupTestApp(t, true)
	resp, body := doJSON(t, app, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "connected", body["database"].(map[string]interface{})["status"])
	assert.Len(t, body["agents"], 4)
}

func TestHealthDegraded(t *testing.T) {
	manager := agents.NewManager(nil)
	app := fiber.New()
	Setup(app, NewHealthHandler(fixedStatus{database.Status{Status: database.StatusDisconnected}}, manager), NewProcessHandler(manager, 0))

	_, body := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, "degraded", body["status"])
}

func TestProcessJSON(t *testing.T) {
	app := setupTestApp(t, true)

	req := agents.Request{Type: "auto", Payload: agents.Input{
		File:  &agents.File{Name: "a.pdf", Type: "application/pdf", Data: extracttest.TextPDF("Hello from the archive")},
		Query: "ignored",
	}}
	resp, body := doJSON(t, app, http.MethodPost, "/api/process", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := body["result"].(map[string]interface{})
	assert.Equal(t, agents.NamePDF, result["agent"])
	assert.Equal(t, "completed", result["metadata"].(map[string]interface{})["status"])
	assert.Contains(t, result["output"].(map[string]interface{})["extracted_text"], "Hello from the archive")
}

func TestProcessErrors(t *testing.T) {
	app := setupTestApp(t, true)

	tests := []struct {
		name   string
		req    agents.Request
		status int
		kind   string
	}{
		{"unknown type", agents.Request{Type: "video"}, http.StatusNotFound, "unknown_agent"},
		{"ambiguous", agents.Request{Type: "auto", Payload: agents.Input{Text: "just text"}}, http.StatusBadRequest, "ambiguous_input"},
		{"invalid", agents.Request{Type: "search"}, http.StatusBadRequest, "validation_error"},
		{"processing", agents.Request{Type: "pdf", Payload: agents.Input{File: &agents.File{Name: "x.bin", Data: []byte{1, 2, 3}}}}, http.StatusUnprocessableEntity, "processing_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, app, http.MethodPost, "/api/process", tt.req)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.kind, body["error_kind"])
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestProcessRejectsMalformedJSON(t *testing.T) {
	app := setupTestApp(t, true)
	req := httptest.NewRequest(http.MethodPost, "/api/process", bytes.NewBufferString("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func multipartBody(t *testing.T, filename string, data []byte, fields map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if data != nil {
		part, err := w.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write(data)
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestProcessMultipartUpload(t *testing.T) {
	app := setupTestApp(t, true)

	body, contentType := multipartBody(t, "scan.png", extracttest.PNG(16, 16), map[string]string{"title": "Scan"})
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := decode(t, resp)["result"].(map[string]interface{})
	assert.Equal(t, agents.NameImage, result["agent"])
	assert.Equal(t, true, result["output"].(map[string]interface{})["placeholder"])
}

func TestProcessMultipartErrors(t *testing.T) {
	app := setupTestApp(t, true)

	body, contentType := multipartBody(t, "", nil, map[string]string{"type": "pdf"})
	req := httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, contentType = multipartBody(t, "big.pdf", make([]byte, 2<<20), nil)
	req = httptest.NewRequest(http.MethodPost, "/api/process", body)
	req.Header.Set(fiber.HeaderContentType, contentType)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestStats(t *testing.T) {
	app := setupTestApp(t, true)
	_, _ = doJSON(t, app, http.MethodPost, "/api/process", agents.Request{Type: "search", Payload: agents.Input{Query: "anything"}})

	resp, body := doJSON(t, app, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total_documents"])
	assert.Equal(t, float64(1), body["search_agents"])
}

func TestStatsWithoutStore(t *testing.T) {
	app := setupTestApp(t, false)
	resp, _ := doJSON(t, app, http.MethodGet, "/api/stats", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
