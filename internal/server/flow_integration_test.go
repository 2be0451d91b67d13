//go:build integration

package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/smartdiet/smartdiet/internal/assistant"
	"github.com/smartdiet/smartdiet/internal/auth"
	"github.com/smartdiet/smartdiet/internal/cache"
	"github.com/smartdiet/smartdiet/internal/document"
	"github.com/smartdiet/smartdiet/internal/export"
	"github.com/smartdiet/smartdiet/internal/handler"
	"github.com/smartdiet/smartdiet/internal/handler/dto"
	"github.com/smartdiet/smartdiet/internal/mealstream"
	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/model"
	"github.com/smartdiet/smartdiet/internal/repository"
	"github.com/smartdiet/smartdiet/internal/service"
	"github.com/smartdiet/smartdiet/internal/testutil"
)

type flowEnv struct {
	ctx    context.Context
	repo   *repository.Repository
	router http.Handler
}

func newFlowEnv(t *testing.T) *flowEnv {
	t.Helper()

	ctx := context.Background()
	dbURL := testutil.RequireEnv(t, "DATABASE_URL")
	redisURL := testutil.RequireEnv(t, "REDIS_URL")

	repo, err := repository.New(ctx, dbURL)
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(repo.Close)

	testutil.FreshDatabase(t, repo.Pool())

	cacheClient, err := cache.New(ctx, redisURL)
	if err != nil {
		t.Fatalf("connect redis: %v", err)
	}
	t.Cleanup(func() {
		_ = cacheClient.Close()
	})
	testutil.FreshRedis(t, cacheClient.Client())

	identity, _, err := document.GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}
	vault, err := document.NewVault(document.Options{Identity: identity, Compression: "zstd"})
	if err != nil {
		t.Fatalf("new vault: %v", err)
	}

	logger := discardLogger()
	recorder := metrics.NewInMemory()
	mealRepo := repository.NewMealLogRepository(repo)

	account := service.NewAccountService(repo, cacheClient, logger, recorder, time.Hour, "test")
	profile := service.NewProfileService(repo, cacheClient, logger)
	verification := service.NewVerificationService(repo, cacheClient, vault, logger, recorder, 1<<20)
	care := service.NewCareService(repo, nil, logger, recorder)
	dietPlans := service.NewDietPlanService(repo, care, logger, recorder)
	chat := service.NewChatService(repo, cacheClient, care, nil, logger, recorder)
	progress := service.NewProgressService(mealRepo, care, mealstream.NewPublisher(cacheClient.Client(), logger, recorder), logger, recorder)
	reviews := service.NewReviewService(repo, care, logger, recorder)
	consultations := service.NewConsultationService(repo, care, nil, logger, recorder)

	router := NewRouter(Handlers{
		Root:         handler.New(),
		Health:       handler.NewHealthHandler(repo, cacheClient),
		Account:      handler.NewAccountHandler(account, logger),
		Profile:      handler.NewProfileHandler(profile, logger),
		Verification: handler.NewVerificationHandler(verification, logger),
		Admin:        handler.NewAdminHandler(verification, logger),
		Care:         handler.NewCareHandler(care, logger),
		DietPlan:     handler.NewDietPlanHandler(dietPlans, logger),
		Chat:         handler.NewChatHandler(chat, logger),
		Progress:     handler.NewProgressHandler(progress, logger),
		Review:       handler.NewReviewHandler(reviews, logger),
		Consultation: handler.NewConsultationHandler(consultations, logger),
		Assistant:    handler.NewAssistantHandler(assistant.NewService(assistant.Config{Logger: logger}), logger),
	}, RouterConfig{
		Logger:      logger,
		Sessions:    repo,
		Cache:       cacheClient,
		Limiter:     cacheClient,
		Metrics:     recorder,
		MaxBodySize: 1 << 20,
	})

	return &flowEnv{ctx: ctx, repo: repo, router: router}
}

func (e *flowEnv) do(t *testing.T, method, path, token string, body any, dst any) int {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if dst != nil && rec.Code < 300 {
		if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
			t.Fatalf("%s %s: decode response: %v", method, path, err)
		}
	}
	return rec.Code
}

func (e *flowEnv) signup(t *testing.T, req dto.SignupRequest) dto.AuthResponse {
	t.Helper()
	var res dto.AuthResponse
	if code := e.do(t, http.MethodPost, "/api/v1/auth/signup", "", req, &res); code != http.StatusCreated {
		t.Fatalf("signup %s: status %d", req.Role, code)
	}
	return res
}

func TestIntegrationFlow_PatientAndNutritionist(t *testing.T) {
	env := newFlowEnv(t)

	patient := env.signup(t, dto.SignupRequest{
		Role:            model.RolePatient,
		Email:           "pat@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Pat Patient",
		Age:             34,
		HeightCM:        170,
		WeightKG:        72,
		FitnessGoal:     "lose weight",
	})
	doctor := env.signup(t, dto.SignupRequest{
		Role:            model.RoleDoctor,
		Email:           "doc@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Dr Diet",
		MedicalID:       "MED-1001",
		Specialization:  "Clinical nutrition",
	})

	// Unverified doctors cannot see requests.
	if code := env.do(t, http.MethodGet, "/api/v1/requests", doctor.Token, nil, nil); code != http.StatusForbidden {
		t.Fatalf("unverified doctor: expected 403, got %d", code)
	}
	if err := env.repo.UpdateVerificationStatus(env.ctx, doctor.User.ID,
		[]model.VerificationStatus{model.VerificationUnverified}, model.VerificationVerified, ""); err != nil {
		t.Fatalf("verify doctor: %v", err)
	}

	// Re-login so the session reflects the new status.
	var relogin dto.AuthResponse
	if code := env.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Role:       model.RoleDoctor,
		Identifier: "MED-1001",
		Password:   "secret1",
	}, &relogin); code != http.StatusOK {
		t.Fatalf("doctor login: status %d", code)
	}
	doctorToken := relogin.Token

	var pending model.PendingRequest
	path := "/api/v1/nutritionists/" + doctor.User.ID + "/requests"
	if code := env.do(t, http.MethodPost, path, patient.Token, dto.NutritionistRequest{Message: "Hi"}, &pending); code != http.StatusCreated {
		t.Fatalf("request nutritionist: status %d", code)
	}
	if code := env.do(t, http.MethodPost, path, patient.Token, nil, nil); code != http.StatusConflict {
		t.Fatalf("duplicate request: expected 409, got %d", code)
	}

	var requests struct {
		Data []model.PendingRequest `json:"data"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/requests", doctorToken, nil, &requests); code != http.StatusOK {
		t.Fatalf("list requests: status %d", code)
	}
	if len(requests.Data) != 1 || requests.Data[0].ID != pending.ID {
		t.Fatalf("unexpected requests: %+v", requests.Data)
	}

	var assignment model.Assignment
	if code := env.do(t, http.MethodPost, "/api/v1/requests/"+pending.ID+"/approve", doctorToken, nil, &assignment); code != http.StatusOK {
		t.Fatalf("approve: status %d", code)
	}
	if assignment.Status != model.AssignmentApproved {
		t.Fatalf("expected approved assignment, got %s", assignment.Status)
	}

	planPath := "/api/v1/patients/" + patient.User.ID + "/diet-plan"
	if code := env.do(t, http.MethodPut, planPath, doctorToken, dto.DietPlanRequest{
		PlanName:      "Balanced start",
		CalorieTarget: 1800,
		Breakfast:     "Oats",
		Notes:         "**Drink water**",
	}, nil); code != http.StatusOK {
		t.Fatalf("save plan: status %d", code)
	}

	var plan service.DietPlanView
	if code := env.do(t, http.MethodGet, "/api/v1/me/diet-plan", patient.Token, nil, &plan); code != http.StatusOK {
		t.Fatalf("active plan: status %d", code)
	}
	if plan.PlanName != "Balanced start" || plan.NotesHTML == "" {
		t.Errorf("unexpected plan view: %+v", plan)
	}

	msgPath := "/api/v1/conversations/" + patient.User.ID + "/messages"
	if code := env.do(t, http.MethodPost, msgPath, patient.Token, dto.MessageRequest{Text: "<b>Hello</b> doctor"}, nil); code != http.StatusCreated {
		t.Fatalf("send message: status %d", code)
	}
	var messages struct {
		Data []model.ChatMessage `json:"data"`
	}
	if code := env.do(t, http.MethodGet, msgPath, doctorToken, nil, &messages); code != http.StatusOK {
		t.Fatalf("list messages: status %d", code)
	}
	if len(messages.Data) != 1 || messages.Data[0].Text != "Hello doctor" {
		t.Errorf("unexpected messages: %+v", messages.Data)
	}

	// Role guards.
	if code := env.do(t, http.MethodGet, "/api/v1/requests", patient.Token, nil, nil); code != http.StatusForbidden {
		t.Errorf("patient listing requests: expected 403, got %d", code)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/admin/verifications", doctorToken, nil, nil); code != http.StatusForbidden {
		t.Errorf("doctor on admin route: expected 403, got %d", code)
	}
}

func TestIntegrationFlow_Logout(t *testing.T) {
	env := newFlowEnv(t)

	user := env.signup(t, dto.SignupRequest{
		Role:            model.RoleUser,
		Email:           "someone@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Some One",
	})

	if code := env.do(t, http.MethodGet, "/api/v1/me", user.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	if code := env.do(t, http.MethodPost, "/api/v1/auth/logout", user.Token, nil, nil); code != http.StatusNoContent {
		t.Fatalf("logout: status %d", code)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/me", user.Token, nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("after logout: expected 401, got %d", code)
	}
}

// approvedPair signs up a verified doctor and a patient assigned to them and
// returns both tokens and the doctor's id.
func (e *flowEnv) approvedPair(t *testing.T) (patientToken, doctorToken, doctorID string) {
	t.Helper()

	patient := e.signup(t, dto.SignupRequest{
		Role:            model.RolePatient,
		Email:           "pair-patient@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Pair Patient",
	})
	doctor := e.signup(t, dto.SignupRequest{
		Role:            model.RoleDoctor,
		Email:           "pair-doctor@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Dr Pair",
		MedicalID:       "MED-2002",
	})
	if err := e.repo.UpdateVerificationStatus(e.ctx, doctor.User.ID,
		[]model.VerificationStatus{model.VerificationUnverified}, model.VerificationVerified, ""); err != nil {
		t.Fatalf("verify doctor: %v", err)
	}
	var login dto.AuthResponse
	if code := e.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Role:       model.RoleDoctor,
		Identifier: "pair-doctor@example.com",
		Password:   "secret1",
	}, &login); code != http.StatusOK {
		t.Fatalf("doctor login: status %d", code)
	}

	var pending model.PendingRequest
	if code := e.do(t, http.MethodPost, "/api/v1/nutritionists/"+doctor.User.ID+"/requests", patient.Token, nil, &pending); code != http.StatusCreated {
		t.Fatalf("request nutritionist: status %d", code)
	}
	if code := e.do(t, http.MethodPost, "/api/v1/requests/"+pending.ID+"/approve", login.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("approve: status %d", code)
	}
	return patient.Token, login.Token, doctor.User.ID
}

func ptr[T any](v T) *T { return &v }

func TestIntegrationFlow_DietPlanHistory(t *testing.T) {
	env := newFlowEnv(t)
	patientToken, doctorToken, _ := env.approvedPair(t)

	var me model.User
	if code := env.do(t, http.MethodGet, "/api/v1/me", patientToken, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	planPath := "/api/v1/patients/" + me.ID + "/diet-plan"

	if code := env.do(t, http.MethodPut, planPath, doctorToken, dto.DietPlanRequest{
		PlanName:  "Plan A",
		Breakfast: "Oats",
		Notes:     "- walk\n  - 20 minutes\n\n    water = 2l",
	}, nil); code != http.StatusOK {
		t.Fatalf("save plan A: status %d", code)
	}
	// created_at orders history; keep the two saves apart.
	time.Sleep(10 * time.Millisecond)
	if code := env.do(t, http.MethodPut, planPath, doctorToken, dto.DietPlanRequest{
		PlanName: "Plan B",
		Lunch:    "Soup",
	}, nil); code != http.StatusOK {
		t.Fatalf("save plan B: status %d", code)
	}

	var active service.DietPlanView
	if code := env.do(t, http.MethodGet, "/api/v1/me/diet-plan", patientToken, nil, &active); code != http.StatusOK {
		t.Fatalf("active plan: status %d", code)
	}
	if active.PlanName != "Plan B" || active.Status != model.DietPlanActive {
		t.Errorf("active plan = %s (%s), want Plan B", active.PlanName, active.Status)
	}

	var history struct {
		Data []model.DietPlan `json:"data"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/me/diet-plan/history", patientToken, nil, &history); code != http.StatusOK {
		t.Fatalf("history: status %d", code)
	}
	if len(history.Data) != 1 {
		t.Fatalf("history should list only the superseded plan, got %+v", history.Data)
	}
	if got := history.Data[0]; got.PlanName != "Plan A" || got.Status != model.DietPlanArchived {
		t.Errorf("history entry = %s (%s), want archived Plan A", got.PlanName, got.Status)
	}
	if !strings.Contains(history.Data[0].Notes, "\n  - 20 minutes\n\n    water = 2l") {
		t.Errorf("notes lost their Markdown structure: %q", history.Data[0].Notes)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me/diet-plan/export", nil)
	req.Header.Set("Authorization", "Bearer "+patientToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status %d: %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != export.ContentType {
		t.Errorf("export Content-Type = %q", ct)
	}
	f, err := excelize.OpenReader(rec.Body)
	if err != nil {
		t.Fatalf("open export: %v", err)
	}
	defer f.Close()
	rows, err := f.GetRows("History")
	if err != nil {
		t.Fatalf("history sheet: %v", err)
	}
	if len(rows) != 2 || rows[1][0] != "Plan A" || rows[1][1] != string(model.DietPlanArchived) {
		t.Errorf("unexpected history rows: %v", rows)
	}
}

func TestIntegrationFlow_ConcurrentDietPlanSaves(t *testing.T) {
	env := newFlowEnv(t)
	patientToken, doctorToken, _ := env.approvedPair(t)

	var me model.User
	if code := env.do(t, http.MethodGet, "/api/v1/me", patientToken, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}
	planPath := "/api/v1/patients/" + me.ID + "/diet-plan"

	const saves = 8
	codes := make([]int, saves)
	var wg sync.WaitGroup
	for i := 0; i < saves; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			body, _ := json.Marshal(dto.DietPlanRequest{PlanName: "Plan", Dinner: "Fish"})
			req := httptest.NewRequest(http.MethodPut, planPath, bytes.NewReader(body))
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set("Authorization", "Bearer "+doctorToken)
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			codes[i] = rec.Code
		}(i)
	}
	wg.Wait()

	for i, code := range codes {
		if code != http.StatusOK {
			t.Errorf("save %d: status %d", i, code)
		}
	}

	var history struct {
		Data []model.DietPlan `json:"data"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/me/diet-plan/history", patientToken, nil, &history); code != http.StatusOK {
		t.Fatalf("history: status %d", code)
	}
	if len(history.Data) != saves-1 {
		t.Errorf("history = %d plans, want %d", len(history.Data), saves-1)
	}
	if code := env.do(t, http.MethodGet, "/api/v1/me/diet-plan", patientToken, nil, nil); code != http.StatusOK {
		t.Errorf("active plan: status %d", code)
	}
}

func TestIntegrationFlow_Reviews(t *testing.T) {
	env := newFlowEnv(t)
	patientToken, doctorToken, doctorID := env.approvedPair(t)
	reviewsPath := "/api/v1/nutritionists/" + doctorID + "/reviews"

	var review model.Review
	if code := env.do(t, http.MethodPost, reviewsPath, patientToken, dto.ReviewRequest{
		Rating:  ptr(4),
		Title:   ptr("Helpful"),
		Content: ptr("Clear <i>advice</i>"),
	}, &review); code != http.StatusCreated {
		t.Fatalf("create review: status %d", code)
	}
	if review.Content != "Clear advice" {
		t.Errorf("review content not cleaned: %q", review.Content)
	}
	if code := env.do(t, http.MethodPost, reviewsPath, patientToken, dto.ReviewRequest{Rating: ptr(5)}, nil); code != http.StatusConflict {
		t.Errorf("second review: expected 409, got %d", code)
	}
	if code := env.do(t, http.MethodPost, reviewsPath, patientToken, dto.ReviewRequest{Rating: ptr(9)}, nil); code != http.StatusBadRequest {
		t.Errorf("out of range rating: expected 400, got %d", code)
	}

	if code := env.do(t, http.MethodPatch, "/api/v1/reviews/"+review.ID, patientToken, dto.ReviewRequest{Rating: ptr(5)}, &review); code != http.StatusOK {
		t.Fatalf("update review: status %d", code)
	}
	if review.Rating != 5 || review.Title != "Helpful" {
		t.Errorf("partial update lost fields: %+v", review)
	}
	if code := env.do(t, http.MethodDelete, "/api/v1/reviews/"+review.ID, doctorToken, nil, nil); code == http.StatusNoContent {
		t.Error("only the author may delete a review")
	}

	var list service.ReviewList
	if code := env.do(t, http.MethodGet, reviewsPath+"?rating=5", patientToken, nil, &list); code != http.StatusOK {
		t.Fatalf("list reviews: status %d", code)
	}
	if list.Summary.Total != 1 || list.Summary.Average != 5 || len(list.Reviews) != 1 {
		t.Errorf("unexpected review list: %+v", list)
	}
	if code := env.do(t, http.MethodGet, reviewsPath+"?rating=3", patientToken, nil, &list); code != http.StatusOK || len(list.Reviews) != 0 {
		t.Errorf("rating filter: status %d, %d reviews", code, len(list.Reviews))
	}

	if code := env.do(t, http.MethodDelete, "/api/v1/reviews/"+review.ID, patientToken, nil, nil); code != http.StatusNoContent {
		t.Errorf("delete review: status %d", code)
	}
}

func TestIntegrationFlow_Consultations(t *testing.T) {
	env := newFlowEnv(t)
	patientToken, doctorToken, _ := env.approvedPair(t)

	if code := env.do(t, http.MethodPost, "/api/v1/me/consultations", patientToken, dto.ConsultationRequest{
		ScheduledAt: time.Now().Add(-time.Hour),
	}, nil); code != http.StatusBadRequest {
		t.Errorf("past booking: expected 400, got %d", code)
	}

	var booked model.Consultation
	if code := env.do(t, http.MethodPost, "/api/v1/me/consultations", patientToken, dto.ConsultationRequest{
		ScheduledAt: time.Now().Add(48 * time.Hour).Truncate(time.Minute),
		Notes:       "First check-in",
	}, &booked); code != http.StatusCreated {
		t.Fatalf("book: status %d", code)
	}
	if booked.DurationMinutes != 30 || booked.Status != model.ConsultationBooked {
		t.Errorf("unexpected booking: %+v", booked)
	}

	var upcoming struct {
		Data []model.Consultation `json:"data"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/consultations", doctorToken, nil, &upcoming); code != http.StatusOK {
		t.Fatalf("doctor upcoming: status %d", code)
	}
	if len(upcoming.Data) != 1 || upcoming.Data[0].ID != booked.ID {
		t.Errorf("doctor should see the booking: %+v", upcoming.Data)
	}

	cancelPath := "/api/v1/consultations/" + booked.ID + "/cancel"
	var cancelled model.Consultation
	if code := env.do(t, http.MethodPost, cancelPath, doctorToken, nil, &cancelled); code != http.StatusOK {
		t.Fatalf("cancel: status %d", code)
	}
	if cancelled.Status != model.ConsultationCancelled {
		t.Errorf("status = %s, want cancelled", cancelled.Status)
	}
	if code := env.do(t, http.MethodPost, cancelPath, patientToken, nil, nil); code != http.StatusConflict {
		t.Errorf("second cancel: expected 409, got %d", code)
	}
}

func TestIntegrationFlow_ChatStream(t *testing.T) {
	env := newFlowEnv(t)
	patientToken, doctorToken, _ := env.approvedPair(t)

	var me model.User
	if code := env.do(t, http.MethodGet, "/api/v1/me", patientToken, nil, &me); code != http.StatusOK {
		t.Fatalf("me: status %d", code)
	}

	srv := httptest.NewServer(env.router)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(env.ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/conversations/"+me.ID+"/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+doctorToken)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("stream status %d", resp.StatusCode)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(resp.Body)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	// The retry hint is flushed once the subscription is live.
	waitFor(t, lines, "retry:")

	msgPath := "/api/v1/conversations/" + me.ID + "/messages"
	if code := env.do(t, http.MethodPost, msgPath, patientToken, dto.MessageRequest{Text: "streamed hello"}, nil); code != http.StatusCreated {
		t.Fatalf("send message: status %d", code)
	}

	waitFor(t, lines, "event: message")
	if data := waitFor(t, lines, "data: "); !strings.Contains(data, "streamed hello") {
		t.Errorf("unexpected event data: %s", data)
	}
}

// waitFor returns the first line with prefix, failing if the stream ends.
func waitFor(t *testing.T, lines <-chan string, prefix string) string {
	t.Helper()
	for line := range lines {
		if strings.HasPrefix(line, prefix) {
			return line
		}
	}
	t.Fatalf("stream closed before %q", prefix)
	return ""
}

// upload posts one verification document as multipart form data.
func (e *flowEnv) upload(t *testing.T, token, category, name string, content []byte) (int, dto.DocumentResponse) {
	t.Helper()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("category", category); err != nil {
		t.Fatalf("write field: %v", err)
	}
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write(content); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/verification/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	var doc dto.DocumentResponse
	if rec.Code == http.StatusCreated {
		if err := json.NewDecoder(rec.Body).Decode(&doc); err != nil {
			t.Fatalf("decode document: %v", err)
		}
	}
	return rec.Code, doc
}

func TestIntegrationFlow_DoctorVerification(t *testing.T) {
	env := newFlowEnv(t)

	doctor := env.signup(t, dto.SignupRequest{
		Role:            model.RoleDoctor,
		Email:           "verify-me@example.com",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Name:            "Dr Verify",
		MedicalID:       "MED-3003",
	})

	admin := testutil.NewTestUser(t, model.RoleAdmin)
	hash, err := auth.HashPassword("admin-secret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	admin.PasswordHash = hash
	if err := env.repo.CreateUser(env.ctx, admin); err != nil {
		t.Fatalf("create admin: %v", err)
	}
	var adminLogin dto.AuthResponse
	if code := env.do(t, http.MethodPost, "/api/v1/auth/login", "", dto.LoginRequest{
		Role:       model.RoleAdmin,
		Identifier: admin.Email,
		Password:   "admin-secret",
	}, &adminLogin); code != http.StatusOK {
		t.Fatalf("admin login: status %d", code)
	}

	if code := env.do(t, http.MethodPost, "/api/v1/verification/submit", doctor.Token, nil, nil); code != http.StatusConflict {
		t.Errorf("submit without documents: expected 409, got %d", code)
	}

	pdf := []byte("%PDF-1.4\n1 0 obj << /Type /Catalog >> endobj\n%%EOF\n")
	var certificate dto.DocumentResponse
	for i, category := range []string{"certificate", "government_id", "medical_id"} {
		content := append([]byte{}, pdf...)
		content = append(content, byte('a'+i))
		code, doc := env.upload(t, doctor.Token, category, category+".pdf", content)
		if code != http.StatusCreated {
			t.Fatalf("upload %s: status %d", category, code)
		}
		if doc.ContentType != "application/pdf" || doc.SizeBytes != int64(len(content)) {
			t.Errorf("unexpected document: %+v", doc)
		}
		if i == 0 {
			certificate = doc
		}
	}
	if code, _ := env.upload(t, doctor.Token, "certificate", "again.pdf", append(append([]byte{}, pdf...), 'a')); code != http.StatusConflict {
		t.Errorf("duplicate upload: expected 409, got %d", code)
	}
	if code, _ := env.upload(t, doctor.Token, "certificate", "notes.txt", []byte("plain text is not accepted")); code == http.StatusCreated {
		t.Error("text upload should be rejected")
	}

	if code := env.do(t, http.MethodPost, "/api/v1/verification/submit", doctor.Token, nil, nil); code != http.StatusAccepted {
		t.Fatalf("submit: status %d", code)
	}
	if code, _ := env.upload(t, doctor.Token, "certificate", "late.pdf", append(append([]byte{}, pdf...), 'z')); code != http.StatusConflict {
		t.Errorf("upload while pending: expected 409, got %d", code)
	}

	var pending struct {
		Data []dto.PendingDoctorResponse `json:"data"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/admin/verifications", adminLogin.Token, nil, &pending); code != http.StatusOK {
		t.Fatalf("list pending: status %d", code)
	}
	if len(pending.Data) != 1 || len(pending.Data[0].Documents) != 3 {
		t.Fatalf("unexpected pending list: %+v", pending.Data)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin/documents/"+certificate.ID, nil)
	req.Header.Set("Authorization", "Bearer "+adminLogin.Token)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !bytes.Equal(rec.Body.Bytes(), append(append([]byte{}, pdf...), 'a')) {
		t.Errorf("download: status %d, %d bytes", rec.Code, rec.Body.Len())
	}

	if code := env.do(t, http.MethodPost, "/api/v1/admin/verifications/"+doctor.User.ID+"/approve", adminLogin.Token, nil, nil); code != http.StatusOK {
		t.Fatalf("approve: status %d", code)
	}

	var stats struct {
		Total          int            `json:"total"`
		ByRole         map[string]int `json:"by_role"`
		ByVerification map[string]int `json:"doctors_by_verification"`
	}
	if code := env.do(t, http.MethodGet, "/api/v1/admin/stats", adminLogin.Token, nil, &stats); code != http.StatusOK {
		t.Fatalf("stats: status %d", code)
	}
	if stats.Total != 2 || stats.ByRole["doctor"] != 1 || stats.ByRole["admin"] != 1 || stats.ByVerification["verified"] != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
