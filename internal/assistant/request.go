// Package assistant answers the public chatbot and meal-plan forms.
//
// A Gemini model answers when an API key is configured. Any LLM failure, or
// no key at all, falls back to a local keyword responder and a deterministic
// calorie planner, so both routes always answer.
package assistant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/smartdiet/smartdiet/internal/textutil"
)

// Input limits.
const (
	MaxMessageLength = 2000
	MaxFieldLength   = 200
)

// Validation errors.
var (
	ErrEmptyMessage    = errors.New("message is required")
	ErrMessageTooLong  = errors.New("message is too long")
	ErrInvalidMeasure  = errors.New("height and weight must be positive numbers")
	ErrMeasureOutRange = errors.New("height or weight out of range")
)

// Number accepts a JSON number or a numeric string, since HTML forms post
// their values as strings. Empty strings and null decode to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*n = 0
			return nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = Number(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = Number(f)
	return nil
}

// Profile is the optional context the chat form sends with a message.
type Profile struct {
	Age         Number `json:"age"`
	Gender      string `json:"gender"`
	Height      Number `json:"height"`
	Weight      Number `json:"weight"`
	Allergies   string `json:"allergies"`
	Goal        string `json:"goal"`
	HealthIssue string `json:"healthIssue"`
	MealRequest string `json:"mealRequest"`
}

// ChatRequest is the body of POST /chat.
type ChatRequest struct {
	Message     string  `json:"message"`
	UserProfile Profile `json:"userProfile"`
}

// Normalize cleans free text and picks the question to answer. The chat
// form sends the question in userProfile.mealRequest when message is empty.
func (r *ChatRequest) Normalize() error {
	r.Message = textutil.CleanText(r.Message)
	p := &r.UserProfile
	p.Gender = cleanField(p.Gender)
	p.Allergies = cleanField(p.Allergies)
	p.Goal = cleanField(p.Goal)
	p.HealthIssue = cleanField(p.HealthIssue)
	p.MealRequest = textutil.CleanText(p.MealRequest)

	if r.Message == "" {
		r.Message = p.MealRequest
	}
	if r.Message == "" {
		return ErrEmptyMessage
	}
	if textutil.Length(r.Message) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// ChatReply is the body returned by POST /chat.
type ChatReply struct {
	Reply  string `json:"reply"`
	Source string `json:"source"`
}

// MealPlanRequest is the body of POST /mealplan.
type MealPlanRequest struct {
	Height     Number `json:"height"`
	Weight     Number `json:"weight"`
	Age        Number `json:"age"`
	Gender     string `json:"gender"`
	Goal       string `json:"goal"`
	Conditions string `json:"conditions"`
}

// Normalize validates measurements and lower-cases free text so equal
// requests share a cache entry.
func (r *MealPlanRequest) Normalize() error {
	if r.Height <= 0 || r.Weight <= 0 {
		return ErrInvalidMeasure
	}
	if r.Height < 50 || r.Height > 272 || r.Weight < 20 || r.Weight > 400 || r.Age < 0 || r.Age > 120 {
		return ErrMeasureOutRange
	}
	r.Gender = strings.ToLower(cleanField(r.Gender))
	r.Goal = strings.ToLower(cleanField(r.Goal))
	r.Conditions = strings.ToLower(cleanField(r.Conditions))
	return nil
}

func cleanField(s string) string {
	return textutil.Truncate(textutil.CleanText(s), MaxFieldLength)
}
