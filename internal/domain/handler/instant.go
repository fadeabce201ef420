package handler

import (
	"context"
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
)

// jokes and facts are static datasets; selection is seeded by request id
// so the same request always gets the same line.
var jokes = []string{
	"Why don't bees ever get stuck in traffic? They always take the buzz lane.",
	"I asked the smart fridge for a joke. It gave me the cold shoulder.",
	"Why did the light bulb fail its exam? It wasn't too bright.",
	"What do you call a house that plays music? A humble a-bode.",
	"Why was the thermostat so calm? It knew how to keep its cool.",
}

var facts = []string{
	"Honeybees communicate the direction of food with a waggle dance.",
	"The first thermostat was invented in 1883 by Warren Johnson.",
	"Sound travels about four times faster in water than in air.",
	"A group of owls is called a parliament.",
	"Octopuses have three hearts and blue blood.",
}

var (
	clockArithRe = regexp.MustCompile(`\b(?:what time (?:will it be|is it)) in (\d+) (hour|hours|minute|minutes)\b`)
	mathRe       = regexp.MustCompile(`(-?\d+(?:\.\d+)?) ?(\+|-|\*|/|plus|minus|times|divided by) ?(-?\d+(?:\.\d+)?)`)
	unitRe       = regexp.MustCompile(`\b(?:convert )?(-?\d+(?:\.\d+)?) ?(celsius|fahrenheit|kilometers|km|miles|meters|feet|kilograms|kg|pounds|lbs?)\b.*?\b(?:to|in|into) (celsius|fahrenheit|kilometers|km|miles|meters|feet|kilograms|kg|pounds|lbs?)\b`)
)

// InstantHandler answers from pure functions: no network, no storage.
type InstantHandler struct {
	now func() time.Time
}

// NewInstantHandler creates the handler with the wall clock.
func NewInstantHandler() *InstantHandler {
	return &InstantHandler{now: time.Now}
}

// SetClock overrides the clock. Tests only.
func (h *InstantHandler) SetClock(now func() time.Time) { h.now = now }

func (h *InstantHandler) Name() string { return "instant" }

func (h *InstantHandler) Handle(_ context.Context, inv *Invocation) entity.HandlerResult {
	text := inv.Request.Text()
	switch inv.Classification.SubCategory {
	case "time":
		if offset, ok := parseClockArith(text); ok {
			return ok200(fmt.Sprintf("It will be %s.", h.now().Add(offset).Format("3:04 PM")))
		}
		return ok200(fmt.Sprintf("It's %s.", h.now().Format("3:04 PM")))
	case "date":
		return ok200(fmt.Sprintf("Today is %s.", h.now().Format("Monday, January 2")))
	case "math":
		if answer, ok := evalArithmetic(text); ok {
			return ok200(answer)
		}
		return entity.HandlerResult{
			Text:   "I couldn't work that one out.",
			Status: entity.HandlerPartial,
		}
	case "convert":
		if answer, ok := convertUnits(text); ok {
			return ok200(answer)
		}
		return entity.HandlerResult{
			Text:   "I couldn't work out that conversion.",
			Status: entity.HandlerPartial,
		}
	case "joke":
		return ok200(pick(jokes, inv.Request.ID))
	case "fact":
		return ok200(pick(facts, inv.Request.ID))
	case "repeat":
		if inv.Conversation != nil {
			if last := inv.Conversation.LastResponse(); last != "" {
				return ok200(last)
			}
		}
		return ok200("I haven't said anything yet.")
	}

	// Unmatched sub-categories still answer something sensible.
	if offset, ok := parseClockArith(text); ok {
		return ok200(fmt.Sprintf("It will be %s.", h.now().Add(offset).Format("3:04 PM")))
	}
	return ok200(fmt.Sprintf("It's %s.", h.now().Format("3:04 PM")))
}

func ok200(text string) entity.HandlerResult {
	return entity.HandlerResult{Text: text, Status: entity.HandlerOK}
}

// pick selects a line deterministically from the request id.
func pick(dataset []string, requestID string) string {
	h := fnv.New32a()
	h.Write([]byte(requestID))
	return dataset[int(h.Sum32())%len(dataset)]
}

func parseClockArith(text string) (time.Duration, bool) {
	m := clockArithRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	if strings.HasPrefix(m[2], "hour") {
		return time.Duration(n) * time.Hour, true
	}
	return time.Duration(n) * time.Minute, true
}

// evalArithmetic answers a single binary operation. Division by zero is
// reported, not computed.
func evalArithmetic(text string) (string, bool) {
	m := mathRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	a, errA := strconv.ParseFloat(m[1], 64)
	b, errB := strconv.ParseFloat(m[3], 64)
	if errA != nil || errB != nil {
		return "", false
	}

	var result float64
	switch m[2] {
	case "+", "plus":
		result = a + b
	case "-", "minus":
		result = a - b
	case "*", "times":
		result = a * b
	case "/", "divided by":
		if b == 0 {
			return "You can't divide by zero.", true
		}
		result = a / b
	default:
		return "", false
	}

	if result == float64(int64(result)) {
		return fmt.Sprintf("That's %d.", int64(result)), true
	}
	return fmt.Sprintf("That's %.2f.", result), true
}

func convertUnits(text string) (string, bool) {
	m := unitRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	value, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return "", false
	}
	from, to := canonicalUnit(m[2]), canonicalUnit(m[3])

	out, ok := convert(value, from, to)
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%s %s is %.1f %s.", m[1], from, out, to), true
}

func canonicalUnit(u string) string {
	switch u {
	case "km":
		return "kilometers"
	case "kg":
		return "kilograms"
	case "lb", "lbs":
		return "pounds"
	}
	return u
}

func convert(v float64, from, to string) (float64, bool) {
	type pair struct{ from, to string }
	switch (pair{from, to}) {
	case pair{"celsius", "fahrenheit"}:
		return v*9/5 + 32, true
	case pair{"fahrenheit", "celsius"}:
		return (v - 32) * 5 / 9, true
	case pair{"kilometers", "miles"}:
		return v * 0.621371, true
	case pair{"miles", "kilometers"}:
		return v / 0.621371, true
	case pair{"meters", "feet"}:
		return v * 3.28084, true
	case pair{"feet", "meters"}:
		return v / 3.28084, true
	case pair{"kilograms", "pounds"}:
		return v * 2.20462, true
	case pair{"pounds", "kilograms"}:
		return v / 2.20462, true
	}
	return 0, false
}
