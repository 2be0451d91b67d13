//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/webhook"
)

const testPassword = "e2e-secret"

type webhookRequest struct {
	Headers http.Header
	Body    []byte
}

// TestE2ESmoke walks a patient and a nutritionist through the core flow.
// The server must run with WEBHOOK_ALLOW_PRIVATE=true so the local
// receiver is an accepted target.
func TestE2ESmoke(t *testing.T) {
	baseURL := envOrDefault("SMARTDIET_BASE_URL", "http://localhost:8080")
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Fatalf("DATABASE_URL is required for e2e tests")
	}

	suffix := time.Now().UnixNano()
	patient := signup(t, baseURL, dto.SignupRequest{
		Role:            model.RolePatient,
		Email:           fmt.Sprintf("e2e-patient-%d@example.com", suffix),
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Name:            "E2E Patient",
		Age:             31,
		HeightCM:        168,
		WeightKG:        70,
		FitnessGoal:     "maintain",
	})
	medicalID := fmt.Sprintf("E2E-%d", suffix)
	doctor := signup(t, baseURL, dto.SignupRequest{
		Role:            model.RoleDoctor,
		Email:           fmt.Sprintf("e2e-doctor-%d@example.com", suffix),
		Password:        testPassword,
		ConfirmPassword: testPassword,
		Name:            "E2E Doctor",
		MedicalID:       medicalID,
		Specialization:  "Sports nutrition",
	})

	verifyDoctor(t, dbURL, doctor.User.ID)
	doctorToken := login(t, baseURL, dto.LoginRequest{
		Role:       model.RoleDoctor,
		Identifier: medicalID,
		Password:   testPassword,
	})

	webhookURL, deliveries, shutdown := startWebhookReceiver(t)
	defer shutdown()
	secret := createWebhookEndpoint(t, baseURL, doctorToken, webhookURL)

	var pending model.PendingRequest
	path := fmt.Sprintf("%s/api/v1/nutritionists/%s/requests", baseURL, doctor.User.ID)
	if status := doJSON(t, http.MethodPost, path, patient.Token, dto.NutritionistRequest{Message: "e2e"}, &pending); status != http.StatusCreated {
		t.Fatalf("expected 201 from nutritionist request, got %d", status)
	}

	waitForWebhookDelivery(t, deliveries, secret, pending.ID)

	approve := fmt.Sprintf("%s/api/v1/requests/%s/approve", baseURL, pending.ID)
	if status := doJSON(t, http.MethodPost, approve, doctorToken, nil, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from approve, got %d", status)
	}

	plan := dto.DietPlanRequest{PlanName: "E2E plan", CalorieTarget: 2000, Breakfast: "Oats"}
	planURL := fmt.Sprintf("%s/api/v1/patients/%s/diet-plan", baseURL, patient.User.ID)
	if status := doJSON(t, http.MethodPut, planURL, doctorToken, plan, nil); status != http.StatusOK {
		t.Fatalf("expected 200 from diet plan save, got %d", status)
	}

	var active map[string]any
	if status := doJSON(t, http.MethodGet, baseURL+"/api/v1/me/diet-plan", patient.Token, nil, &active); status != http.StatusOK {
		t.Fatalf("expected 200 from active diet plan, got %d", status)
	}
	if active["plan_name"] != "E2E plan" {
		t.Fatalf("unexpected active plan: %v", active)
	}
}

// TestE2EAssistant checks the public assistant forms.
func TestE2EAssistant(t *testing.T) {
	baseURL := envOrDefault("SMARTDIET_BASE_URL", "http://localhost:8080")

	var reply struct {
		Reply  string `json:"reply"`
		Source string `json:"source"`
	}
	if status := doJSON(t, http.MethodPost, baseURL+"/chat", "", map[string]any{"message": "hello"}, &reply); status != http.StatusOK {
		t.Fatalf("expected 200 from /chat, got %d", status)
	}
	if reply.Reply == "" || reply.Source == "" {
		t.Fatalf("chat reply missing fields: %+v", reply)
	}

	var plan struct {
		MealPlan string `json:"mealplan"`
		Plan     struct {
			BMI   float64 `json:"bmi"`
			Meals []any   `json:"meals"`
		} `json:"plan"`
	}
	body := map[string]any{"height": "175", "weight": 80, "age": 40, "goal": "weight loss"}
	if status := doJSON(t, http.MethodPost, baseURL+"/mealplan", "", body, &plan); status != http.StatusOK {
		t.Fatalf("expected 200 from /mealplan, got %d", status)
	}
	if plan.MealPlan == "" || plan.Plan.BMI <= 0 || len(plan.Plan.Meals) == 0 {
		t.Fatalf("meal plan missing fields: %+v", plan)
	}
}

func envOrDefault(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func signup(t *testing.T, baseURL string, req dto.SignupRequest) dto.AuthResponse {
	t.Helper()

	var resp dto.AuthResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/signup", "", req, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from %s signup, got %d", req.Role, status)
	}
	if resp.Token == "" || resp.User == nil {
		t.Fatalf("signup response missing fields")
	}
	return resp
}

func login(t *testing.T, baseURL string, req dto.LoginRequest) string {
	t.Helper()

	var resp dto.AuthResponse
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/auth/login", "", req, &resp)
	if status != http.StatusOK {
		t.Fatalf("expected 200 from login, got %d", status)
	}
	return resp.Token
}

// verifyDoctor approves a doctor directly, standing in for an admin review.
func verifyDoctor(t *testing.T, dbURL, doctorID string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	defer repo.Close()

	err = repo.UpdateVerificationStatus(ctx, doctorID,
		[]model.VerificationStatus{model.VerificationUnverified}, model.VerificationVerified, "e2e")
	if err != nil {
		t.Fatalf("verify doctor: %v", err)
	}
}

func startWebhookReceiver(t *testing.T) (string, <-chan webhookRequest, func()) {
	t.Helper()

	received := make(chan webhookRequest, 4)

	listener, err := net.Listen("tcp", "0.0.0.0:0")
	if err != nil {
		t.Fatalf("listen webhook: %v", err)
	}

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		select {
		case received <- webhookRequest{Headers: r.Header.Clone(), Body: body}:
		default:
		}
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(listener)
	}()

	port := listener.Addr().(*net.TCPAddr).Port
	host := envOrDefault("E2E_WEBHOOK_HOST", "host.docker.internal")
	url := fmt.Sprintf("http://%s:%d/webhook", host, port)

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}

	return url, received, shutdown
}

func createWebhookEndpoint(t *testing.T, baseURL, token, targetURL string) string {
	t.Helper()

	payload := map[string]any{
		"target_url":  targetURL,
		"event_types": []string{string(model.EventTypeRequestCreated)},
		"name":        "e2e-webhook",
	}

	var resp model.WebhookEndpointCreated
	status := doJSON(t, http.MethodPost, baseURL+"/api/v1/webhooks", token, payload, &resp)
	if status != http.StatusCreated {
		t.Fatalf("expected 201 from webhook create, got %d", status)
	}
	if resp.ID == "" || resp.Secret == "" {
		t.Fatalf("webhook create response missing fields")
	}
	return resp.Secret
}

func waitForWebhookDelivery(t *testing.T, deliveries <-chan webhookRequest, secret, requestID string) {
	t.Helper()

	select {
	case req := <-deliveries:
		if req.Headers.Get(webhook.HeaderDeliveryID) == "" {
			t.Fatalf("missing %s header", webhook.HeaderDeliveryID)
		}
		if got := req.Headers.Get(webhook.HeaderEvent); got != string(model.EventTypeRequestCreated) {
			t.Fatalf("unexpected %s header %q", webhook.HeaderEvent, got)
		}
		err := webhook.VerifySignatureHeader(secret, req.Headers.Get(webhook.HeaderSignature), req.Body, webhook.DefaultReplayWindow)
		if err != nil {
			t.Fatalf("signature check: %v", err)
		}

		var payload struct {
			EventType string                   `json:"event_type"`
			Data      model.RequestCreatedData `json:"data"`
		}
		if err := json.Unmarshal(req.Body, &payload); err != nil {
			t.Fatalf("decode webhook payload: %v", err)
		}
		if payload.Data.RequestID != requestID {
			t.Fatalf("unexpected request_id %q in webhook payload", payload.Data.RequestID)
		}
	case <-time.After(15 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}
}

func doJSON(t *testing.T, method, url, token string, body any, out any) int {
	t.Helper()

	var buf io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		buf = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, url, buf)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(token) != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 15 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request %s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		decoder := json.NewDecoder(resp.Body)
		if err := decoder.Decode(out); err != nil && resp.ContentLength != 0 {
			t.Fatalf("decode response: %v", err)
		}
	}

	return resp.StatusCode
}

// TestE2ERateLimiting validates that repeated logins from one address
// return 429 with rate limit headers.
func TestE2ERateLimiting(t *testing.T) {
	baseURL := envOrDefault("SMARTDIET_BASE_URL", "http://localhost:8080")

	client := &http.Client{Timeout: 10 * time.Second}
	body := `{"role":"patient","identifier":"nobody@example.com","password":"wrong-password"}`

	var lastResp *http.Response
	for i := 0; i < 40; i++ {
		req, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/login", strings.NewReader(body))
		if err != nil {
			t.Fatalf("create request: %v", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		if resp.StatusCode == http.StatusTooManyRequests {
			lastResp = resp
			break
		}
		resp.Body.Close()
	}

	if lastResp == nil {
		t.Fatalf("expected 429 after burst, but never hit rate limit")
	}
	defer lastResp.Body.Close()

	if lastResp.Header.Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header on 429 response")
	}
	if remaining := lastResp.Header.Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining=0, got %s", remaining)
	}
	if lastResp.Header.Get("Retry-After") == "" {
		t.Error("missing Retry-After header on 429 response")
	}

	var errResp map[string]any
	if err := json.NewDecoder(lastResp.Body).Decode(&errResp); err != nil {
		t.Fatalf("decode 429 response: %v", err)
	}
	if errResp["error"] == nil {
		t.Error("429 response missing 'error' field")
	}
}

// TestE2ENoSecretsInResponses validates that tokens and passwords are
// never echoed back.
func TestE2ENoSecretsInResponses(t *testing.T) {
	baseURL := envOrDefault("SMARTDIET_BASE_URL", "http://localhost:8080")

	client := &http.Client{Timeout: 10 * time.Second}

	fakeToken := "sd_live_fake_" + strings.Repeat("x", 32)
	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/me", nil)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+fakeToken)

	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401 for a fake token, got %d", resp.StatusCode)
	}
	if strings.Contains(string(body), fakeToken) {
		t.Error("SECURITY: error response leaked the Authorization header value")
	}

	password := fmt.Sprintf("pw-%d", time.Now().UnixNano())
	signupBody, _ := json.Marshal(dto.SignupRequest{
		Role:            model.RolePatient,
		Email:           fmt.Sprintf("e2e-secret-%d@example.com", time.Now().UnixNano()),
		Password:        password,
		ConfirmPassword: password,
		Name:            "Secret Keeper",
	})
	req2, err := http.NewRequest(http.MethodPost, baseURL+"/api/v1/auth/signup", bytes.NewReader(signupBody))
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	req2.Header.Set("Content-Type", "application/json")

	resp2, err := client.Do(req2)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	body2, _ := io.ReadAll(resp2.Body)
	resp2.Body.Close()

	if strings.Contains(string(body2), password) {
		t.Error("SECURITY: signup response echoed the password")
	}
	if strings.Contains(string(body2), "password_hash") {
		t.Error("SECURITY: signup response exposed the password hash")
	}
}
