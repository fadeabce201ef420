package nlu

import "strings"

// wakeTokens are stripped from the front of an utterance, longest first so
// "hey barnabee" wins over "barnabee".
var wakeTokens = []string{
	"hey barnabee",
	"ok barnabee",
	"barnabee",
}

// politePrefixes are removed once, after the wake token.
var politePrefixes = []string{
	"please",
	"can you",
	"could you",
	"would you",
}

// Normalize produces the form consumed by the classifier cascade.
// Order matters: wake token, politeness prefix, whitespace folding,
// trailing punctuation. The raw utterance is preserved on the request for
// handlers that quote the speaker back.
func Normalize(raw string) string {
	text := strings.ToLower(strings.TrimSpace(raw))

	for _, wake := range wakeTokens {
		if strings.HasPrefix(text, wake) {
			text = strings.TrimPrefix(text, wake)
			// Optional separator after the wake token
			text = strings.TrimLeft(text, ",. ")
			break
		}
	}

	for _, prefix := range politePrefixes {
		if strings.HasPrefix(text, prefix+" ") {
			text = strings.TrimPrefix(text, prefix+" ")
			break // One removal only
		}
	}

	text = strings.Join(strings.Fields(text), " ")
	text = strings.TrimRight(text, ".!?")
	return strings.TrimSpace(text)
}
