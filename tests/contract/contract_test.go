// Package contract checks live responses against docs/api/openapi.yaml.
//
// By default the public routes run in-process. Set API_BASE_URL to point
// the suite at a deployed instance and TEST_TOKEN to include the routes
// that need a session.
package contract

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/gorillamux"

	"github.com/smartdiet/smartdiet/internal/assistant"
	"github.com/smartdiet/smartdiet/internal/handler"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/server"
)

// suite is one target plus the parsed OpenAPI document.
type suite struct {
	baseURL string
	token   string
	doc     *openapi3.T
	router  routers.Router
	client  *http.Client
}

func newSuite(t *testing.T) *suite {
	t.Helper()

	baseURL := strings.TrimRight(os.Getenv("API_BASE_URL"), "/")
	if baseURL == "" {
		srv := httptest.NewServer(publicRouter())
		t.Cleanup(srv.Close)
		baseURL = srv.URL
	}

	docPath := os.Getenv("OPENAPI_SPEC_PATH")
	if docPath == "" {
		wd, err := os.Getwd()
		if err != nil {
			t.Fatalf("getwd: %v", err)
		}
		docPath = filepath.Join(wd, "..", "..", "docs", "api", "openapi.yaml")
	}

	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromFile(docPath)
	if err != nil {
		t.Fatalf("load %s: %v", docPath, err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		t.Fatalf("openapi document invalid: %v", err)
	}
	doc.Servers = openapi3.Servers{{URL: baseURL}}
	router, err := gorillamux.NewRouter(doc)
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	return &suite{
		baseURL: baseURL,
		token:   os.Getenv("TEST_TOKEN"),
		doc:     doc,
		router:  router,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// publicRouter serves the routes that work without Postgres or Redis.
func publicRouter() http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return server.NewRouter(server.Handlers{
		Root:      handler.New(),
		Health:    handler.NewHealthHandler(nil, nil),
		Metrics:   handler.NewMetricsHandler(metrics.NewInMemory()),
		Assistant: handler.NewAssistantHandler(assistant.NewService(assistant.Config{Logger: logger}), logger),
	}, server.RouterConfig{
		Logger:      logger,
		MaxBodySize: 1 << 20,
	})
}

// call is one request in a table.
type call struct {
	method      string
	path        string
	contentType string
	body        string
	authed      bool
}

// do sends c and returns the response with its body already read.
func (s *suite) do(t *testing.T, c call) (*http.Request, *http.Response, []byte) {
	t.Helper()

	if c.authed && s.token == "" {
		t.Skip("TEST_TOKEN not set")
	}
	req, err := http.NewRequest(c.method, s.baseURL+c.path, strings.NewReader(c.body))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if c.contentType != "" {
		req.Header.Set("Content-Type", c.contentType)
	}
	if c.authed {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		t.Skipf("server not available: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return req, resp, body
}

// matchesDocument validates a response against its documented schema.
func (s *suite) matchesDocument(t *testing.T, req *http.Request, resp *http.Response, body []byte) {
	t.Helper()

	route, params, err := s.router.FindRoute(req)
	if err != nil {
		t.Fatalf("%s %s is not documented: %v", req.Method, req.URL.Path, err)
	}
	input := &openapi3filter.ResponseValidationInput{
		RequestValidationInput: &openapi3filter.RequestValidationInput{
			Request:    req,
			PathParams: params,
			Route:      route,
		},
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   io.NopCloser(bytes.NewReader(body)),
	}
	if err := openapi3filter.ValidateResponse(context.Background(), input); err != nil {
		t.Errorf("response does not match document: %v", err)
	}
}

func TestDocumentCoversRoutes(t *testing.T) {
	s := newSuite(t)

	for _, path := range []string{
		"/",
		"/chat",
		"/mealplan",
		"/healthz",
		"/readyz",
		"/api/v1/auth/signup",
		"/api/v1/auth/login",
		"/api/v1/me/diet-plan",
		"/api/v1/conversations/{patientID}/messages",
		"/api/v1/webhooks",
	} {
		if s.doc.Paths.Find(path) == nil {
			t.Errorf("path %s missing from document", path)
		}
	}

	for _, path := range []string{"/", "/healthz", "/readyz"} {
		t.Run("GET "+path, func(t *testing.T) {
			_, resp, _ := s.do(t, call{method: http.MethodGet, path: path})
			if resp.StatusCode == http.StatusNotFound {
				t.Errorf("GET %s is documented but returned 404", path)
			}
		})
	}
}

func TestSuccessResponsesMatchDocument(t *testing.T) {
	s := newSuite(t)

	testCases := []struct {
		name string
		call call
	}{
		{"index", call{method: http.MethodGet, path: "/"}},
		{"healthz", call{method: http.MethodGet, path: "/healthz"}},
		{"chat", call{method: http.MethodPost, path: "/chat", contentType: "application/json",
			body: `{"message":"hello"}`}},
		{"chat with profile", call{method: http.MethodPost, path: "/chat", contentType: "application/json",
			body: `{"message":"what should I eat for breakfast","userProfile":{"age":"34","weight":82,"goal":"weight loss"}}`}},
		{"mealplan", call{method: http.MethodPost, path: "/mealplan", contentType: "application/json",
			body: `{"height":"172","weight":70,"age":30,"gender":"female","goal":"maintain"}`}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req, resp, body := s.do(t, tc.call)
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("status %d: %s", resp.StatusCode, body)
			}
			s.matchesDocument(t, req, resp, body)
		})
	}
}

func TestErrorsUseEnvelope(t *testing.T) {
	s := newSuite(t)

	testCases := []struct {
		name   string
		call   call
		status int
	}{
		{"no session", call{method: http.MethodGet, path: "/api/v1/me"}, http.StatusUnauthorized},
		{"unknown route", call{method: http.MethodGet, path: "/no-such-route"}, http.StatusNotFound},
		{"chat as text", call{method: http.MethodPost, path: "/chat", contentType: "text/plain", body: "hi"}, http.StatusUnsupportedMediaType},
		{"blank chat message", call{method: http.MethodPost, path: "/chat", contentType: "application/json", body: `{"message":"  "}`}, http.StatusBadRequest},
		{"mealplan without height", call{method: http.MethodPost, path: "/mealplan", contentType: "application/json", body: `{"weight":70}`}, http.StatusBadRequest},
		{"unknown nutritionist", call{method: http.MethodGet, path: "/api/v1/nutritionists/nonexistent-id-12345", authed: true}, http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, body := s.do(t, tc.call)
			if resp.StatusCode != tc.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tc.status)
			}
			assertEnvelope(t, resp, body)
		})
	}
}

func assertEnvelope(t *testing.T, resp *http.Response, body []byte) {
	t.Helper()

	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Errorf("error Content-Type = %q, want application/json", ct)
		return
	}
	var envelope struct {
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Errorf("error body is not JSON: %v (%s)", err, body)
		return
	}
	switch {
	case envelope.Error == nil:
		t.Errorf("missing error object: %s", body)
	case envelope.Error.Code == "" || envelope.Error.Message == "":
		t.Errorf("error object needs code and message: %s", body)
	}
}

func TestContentTypes(t *testing.T) {
	s := newSuite(t)

	for path, want := range map[string]string{
		"/healthz": "application/json",
		"/readyz":  "application/json",
		"/metrics": "text/plain",
	} {
		t.Run(path, func(t *testing.T) {
			_, resp, _ := s.do(t, call{method: http.MethodGet, path: path})
			if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, want) {
				t.Errorf("Content-Type = %q, want %s", ct, want)
			}
		})
	}
}
