package assistant

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMatchIntent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		message string
		want    Intent
	}{
		{"Hello!", IntentGreeting},
		{"hi there", IntentGreeting},
		{"How do I lose weight?", IntentLoseWeight},
		{"tips for weight loss", IntentLoseWeight},
		{"What should I eat today", IntentHealthyFood},
		{"I want to gain weight", IntentGainWeight},
		{"How many CALORIES in rice", IntentCalorie},
		{"any recipe for dinner", IntentRecipe},
		{"this is about something else", IntentDefault},
		{"", IntentDefault},
	}

	for _, tc := range tests {
		t.Run(tc.message, func(t *testing.T) {
			t.Parallel()
			if got := MatchIntent(tc.message); got != tc.want {
				t.Errorf("MatchIntent(%q) = %s, want %s", tc.message, got, tc.want)
			}
		})
	}
}

func TestMatchIntent_WholeWordsOnly(t *testing.T) {
	t.Parallel()

	// "this" and "which" contain "hi" but are not greetings.
	if got := MatchIntent("which fruit has vitamin c"); got != IntentDefault {
		t.Errorf("got %s, want default", got)
	}
}

func TestLocalReply(t *testing.T) {
	t.Parallel()

	if got := LocalReply("hello"); !strings.HasPrefix(got, "Hello there!") {
		t.Errorf("greeting reply = %q", got)
	}
	if got := LocalReply("quantum physics"); got != defaultReply {
		t.Errorf("default reply = %q", got)
	}
	if got := LocalReply("calorie surplus"); !strings.Contains(got, "Calorie needs") {
		t.Errorf("calorie reply = %q", got)
	}
}

func TestNumber_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	var req MealPlanRequest
	body := `{"height":"170","weight":65.5,"age":null,"goal":"Weight loss","conditions":""}`
	if err := json.Unmarshal([]byte(body), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.Height != 170 || req.Weight != 65.5 || req.Age != 0 {
		t.Errorf("unexpected numbers: %+v", req)
	}

	empty := `{"height":"  "}`
	if err := json.Unmarshal([]byte(empty), &req); err != nil || req.Height != 0 {
		t.Errorf("blank string should decode to zero, got %v %v", req.Height, err)
	}

	bad := `{"height":"tall"}`
	if err := json.Unmarshal([]byte(bad), &req); err == nil {
		t.Error("expected error for non numeric string")
	}
}

func TestChatRequest_Normalize(t *testing.T) {
	t.Parallel()

	req := ChatRequest{UserProfile: Profile{MealRequest: "  <b>recipe</b> please "}}
	if err := req.Normalize(); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if req.Message != "recipe please" {
		t.Errorf("Message = %q", req.Message)
	}

	empty := ChatRequest{Message: "<br>"}
	if err := empty.Normalize(); err != ErrEmptyMessage {
		t.Errorf("err = %v, want ErrEmptyMessage", err)
	}

	long := ChatRequest{Message: strings.Repeat("a", MaxMessageLength+1)}
	if err := long.Normalize(); err != ErrMessageTooLong {
		t.Errorf("err = %v, want ErrMessageTooLong", err)
	}
}

func TestMealPlanRequest_Normalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  MealPlanRequest
		want error
	}{
		{"valid", MealPlanRequest{Height: 170, Weight: 70}, nil},
		{"missing height", MealPlanRequest{Weight: 70}, ErrInvalidMeasure},
		{"negative weight", MealPlanRequest{Height: 170, Weight: -1}, ErrInvalidMeasure},
		{"too tall", MealPlanRequest{Height: 400, Weight: 70}, ErrMeasureOutRange},
		{"too old", MealPlanRequest{Height: 170, Weight: 70, Age: 150}, ErrMeasureOutRange},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			req := tc.req
			if err := req.Normalize(); err != tc.want {
				t.Errorf("Normalize() = %v, want %v", err, tc.want)
			}
		})
	}
}
