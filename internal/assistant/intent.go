package assistant

import (
	"regexp"
	"strings"
)

// Intent is a topic the local responder recognises.
type Intent string

const (
	IntentGreeting    Intent = "greeting"
	IntentLoseWeight  Intent = "lose_weight"
	IntentHealthyFood Intent = "healthy_food"
	IntentGainWeight  Intent = "gain_weight"
	IntentCalorie     Intent = "calorie"
	IntentRecipe      Intent = "recipe"
	IntentDefault     Intent = "default"
)

type intentRule struct {
	intent   Intent
	patterns []*regexp.Regexp
	reply    string
}

func words(phrases ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(phrases))
	for i, p := range phrases {
		out[i] = regexp.MustCompile(`\b` + regexp.QuoteMeta(p) + `\b`)
	}
	return out
}

// Rules are checked in order; the first match wins.
var intentRules = []intentRule{
	{
		intent:   IntentGreeting,
		patterns: words("hello", "hi", "hey", "good morning", "good evening"),
		reply:    "Hello there! How can I assist you with your diet and nutrition today?",
	},
	{
		intent:   IntentLoseWeight,
		patterns: words("lose weight", "weight loss", "losing weight", "slim down"),
		reply: "For healthy weight loss, focus on a balanced diet with plenty of vegetables, lean proteins and whole grains. " +
			"Aim for a calorie deficit of 300-500 calories per day and combine it with regular exercise.",
	},
	{
		intent:   IntentHealthyFood,
		patterns: words("healthy food", "healthy foods", "what should i eat", "eat healthy"),
		reply: "Some of the healthiest foods include leafy greens, berries, fatty fish, nuts, whole grains and legumes. " +
			"Would you like recommendations for a specific meal?",
	},
	{
		intent:   IntentGainWeight,
		patterns: words("gain weight", "weight gain", "bulk up", "build muscle"),
		reply: "For healthy weight gain, build meals around lean proteins, healthy fats, whole grains and starchy vegetables. " +
			"Aim for a surplus of 300-500 calories per day and pair it with strength training so the gain is mostly muscle.",
	},
	{
		intent:   IntentCalorie,
		patterns: words("calorie", "calories", "kcal"),
		reply: "Calorie needs vary by age, sex and activity level. On average women need 1,600-2,400 calories a day and men 2,000-3,000. " +
			"Share your height, weight and goal for a personal estimate.",
	},
	{
		intent:   IntentRecipe,
		patterns: words("recipe", "recipes", "meal idea", "meal ideas"),
		reply: "Here's a healthy recipe idea: quinoa salad with chickpeas, cucumber, cherry tomatoes and a lemon-tahini dressing. " +
			"It is high in protein and fiber.",
	},
}

const defaultReply = "I'm here to help with diet and nutrition advice. Could you tell me more about your specific question or goals?"

// MatchIntent classifies message by whole-word keyword match.
func MatchIntent(message string) Intent {
	lower := strings.ToLower(message)
	for _, rule := range intentRules {
		for _, re := range rule.patterns {
			if re.MatchString(lower) {
				return rule.intent
			}
		}
	}
	return IntentDefault
}

// LocalReply answers message without an LLM.
func LocalReply(message string) string {
	intent := MatchIntent(message)
	for _, rule := range intentRules {
		if rule.intent == intent {
			return rule.reply
		}
	}
	return defaultReply
}
