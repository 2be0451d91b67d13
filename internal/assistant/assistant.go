package assistant

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/smartdiet/smartdiet/internal/metrics"
	"github.com/smartdiet/smartdiet/internal/textutil"
)

// Reply sources reported to clients and metrics.
const (
	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceCache    = "cache"
)

const maxReplyLength = 4000

// ResultCache stores meal plans by key.
type ResultCache interface {
	GetAssistantResult(ctx context.Context, key string, dst any) error
	SetAssistantResult(ctx context.Context, key string, value any, ttl time.Duration) error
}

// MealPlanResult is the body returned by POST /mealplan.
type MealPlanResult struct {
	MealPlan string `json:"mealplan" cbor:"1,keyasint"`
	Plan     Plan   `json:"plan" cbor:"2,keyasint"`
	Source   string `json:"source" cbor:"3,keyasint"`
}

// Config wires a Service.
type Config struct {
	Generator Generator // nil disables the LLM
	Cache     ResultCache
	Logger    *slog.Logger
	Metrics   metrics.Recorder
	CacheTTL  time.Duration
	// CacheKeySalt separates cache namespaces, typically the model name.
	CacheKeySalt string
}

// Service answers chat and meal-plan requests.
type Service struct {
	generator Generator
	cache     ResultCache
	logger    *slog.Logger
	metrics   metrics.Recorder
	ttl       time.Duration
	hashKey   [32]byte
}

// NewService creates an assistant service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := cfg.Metrics
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Service{
		generator: cfg.Generator,
		cache:     cfg.Cache,
		logger:    logger,
		metrics:   recorder,
		ttl:       cfg.CacheTTL,
		hashKey:   blake3.Sum256([]byte("smartdiet assistant cache v1\x00" + cfg.CacheKeySalt)),
	}
}

// Chat answers a chatbot message.
func (s *Service) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveAssistantDuration(time.Since(start)) }()

	if s.generator != nil {
		text, err := s.generator.Generate(ctx, buildChatPrompt(req))
		if err == nil {
			reply := textutil.Truncate(textutil.Condense(strings.ReplaceAll(text, "```", "")), maxReplyLength)
			if reply != "" {
				s.metrics.IncAssistantReply(SourceLLM)
				return &ChatReply{Reply: reply, Source: SourceLLM}, nil
			}
		}
		s.logger.Warn("assistant chat fell back to local responder", "error", err)
	}

	s.metrics.IncAssistantReply(SourceFallback)
	return &ChatReply{Reply: LocalReply(req.Message), Source: SourceFallback}, nil
}

// MealPlan returns a plan for req, from cache when an equal request was
// answered within the cache TTL.
func (s *Service) MealPlan(ctx context.Context, req MealPlanRequest) (*MealPlanResult, error) {
	if err := req.Normalize(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { s.metrics.ObserveAssistantDuration(time.Since(start)) }()

	key := s.cacheKey(req)
	if s.cache != nil {
		var cached MealPlanResult
		if err := s.cache.GetAssistantResult(ctx, key, &cached); err == nil {
			cached.Source = SourceCache
			s.metrics.IncAssistantReply(SourceCache)
			return &cached, nil
		}
	}

	base := BuildPlan(req)
	result := &MealPlanResult{Plan: base, Source: SourceFallback}

	if s.generator != nil {
		plan, err := s.generatePlan(ctx, req, base)
		if err == nil {
			result.Plan = plan
			result.Source = SourceLLM
		} else {
			s.logger.Warn("assistant meal plan fell back to local planner", "error", err)
		}
	}
	result.MealPlan = result.Plan.Text()
	s.metrics.IncAssistantReply(result.Source)

	// Fallback plans are cheap to rebuild; only LLM answers are cached.
	if s.cache != nil && result.Source == SourceLLM && s.ttl > 0 {
		if err := s.cache.SetAssistantResult(ctx, key, result, s.ttl); err != nil {
			s.logger.Warn("failed to cache meal plan", "error", err)
		}
	}
	return result, nil
}

type llmPlan struct {
	Meals []PlannedMeal `json:"meals"`
	Tips  []string      `json:"tips"`
}

func (s *Service) generatePlan(ctx context.Context, req MealPlanRequest, base Plan) (Plan, error) {
	text, err := s.generator.Generate(ctx, buildMealPlanPrompt(req, base))
	if err != nil {
		return Plan{}, err
	}
	var parsed llmPlan
	if err := json.Unmarshal([]byte(cleanLLMResponse(text)), &parsed); err != nil {
		return Plan{}, fmt.Errorf("parse meal plan: %w", err)
	}

	plan := base
	plan.Meals = nil
	for _, m := range parsed.Meals {
		desc := textutil.Truncate(textutil.CleanText(m.Description), 300)
		mealType := strings.ToLower(strings.TrimSpace(m.Type))
		if desc == "" || mealType == "" {
			continue
		}
		plan.Meals = append(plan.Meals, PlannedMeal{Type: mealType, Description: desc, Calories: max(m.Calories, 0)})
	}
	if len(plan.Meals) == 0 {
		return Plan{}, errors.New("meal plan has no meals")
	}
	for _, tip := range parsed.Tips {
		if tip = textutil.Truncate(textutil.CleanText(tip), 300); tip != "" {
			plan.Tips = append(plan.Tips, tip)
		}
	}
	return plan, nil
}

func (s *Service) cacheKey(req MealPlanRequest) string {
	hasher, err := blake3.NewKeyed(s.hashKey[:])
	if err != nil {
		panic("assistant: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	fmt.Fprintf(hasher, "h=%.1f\x00w=%.1f\x00a=%.0f\x00g=%s\x00goal=%s\x00c=%s",
		float64(req.Height), float64(req.Weight), float64(req.Age), req.Gender, req.Goal, req.Conditions)
	return "mealplan:" + hex.EncodeToString(hasher.Sum(nil)[:16])
}
