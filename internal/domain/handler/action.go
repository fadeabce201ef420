package handler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/barnabee/barnabee/internal/domain/entity"
	"github.com/barnabee/barnabee/internal/domain/home"
	"go.uber.org/zap"
)

var (
	conjunctionRe = regexp.MustCompile(`\s+(?:and|then)\s+`)
	timerRe       = regexp.MustCompile(`(?:set|start) a timer (?:for )?(\d+) (second|seconds|minute|minutes|hour|hours)(?: (?:for|called|named) (.+))?$`)
	cancelTimerRe = regexp.MustCompile(`(?:cancel|stop) (?:the |my )?(?:(.+) )?timer$`)
	setpointRe    = regexp.MustCompile(`^set (?:the )?((?:.+ )?(?:thermostat|temperature|heat(?:ing)?)) (?:to|at) (\d+)(?: degrees)?$`)
	articleRe     = regexp.MustCompile(`^(?:the|my|all|all the) `)
	placeRe       = regexp.MustCompile(`^(.*?) (?:in|on) (?:the )?(.+)$`)
)

// verbService maps a command verb to the platform service it implies.
// Domain comes from the resolved entity, not the verb.
var verbService = map[string]string{
	"turn on":    "turn_on",
	"switch on":  "turn_on",
	"turn off":   "turn_off",
	"switch off": "turn_off",
	"open":       "open_cover",
	"close":      "close_cover",
	"lock":       "lock",
	"unlock":     "unlock",
	"start":      "turn_on",
	"stop":       "turn_off",
	"play":       "media_play",
	"pause":      "media_pause",
	"dim":        "turn_on",
	"brighten":   "turn_on",
	"activate":   "turn_on",
	"deactivate": "turn_off",
}

// pluralDomainHints narrows area expansion: "lights in kitchen" only
// expands to light entities.
var pluralDomainHints = map[string]string{
	"light": "light", "lights": "light", "lamp": "light", "lamps": "light",
	"blind": "cover", "blinds": "cover", "curtain": "cover", "curtains": "cover",
	"lock": "lock", "locks": "lock",
	"speaker": "media_player", "speakers": "media_player", "music": "media_player",
	"thermostat": "climate", "heating": "climate",
}

type clause struct {
	verb   string
	target string
}

// ActionHandler resolves action utterances into platform service calls,
// snapshots prior state for undo, and fans the calls out concurrently.
type ActionHandler struct {
	registry *home.Registry
	platform home.Platform
	undo     *home.UndoStore
	timers   *home.TimerPool
	logger   *zap.Logger
	now      func() time.Time
}

// NewActionHandler creates the handler.
func NewActionHandler(registry *home.Registry, platform home.Platform, undo *home.UndoStore, timers *home.TimerPool, logger *zap.Logger) *ActionHandler {
	return &ActionHandler{
		registry: registry,
		platform: platform,
		undo:     undo,
		timers:   timers,
		logger:   logger.With(zap.String("component", "action-handler")),
		now:      time.Now,
	}
}

func (h *ActionHandler) Name() string { return "action" }

func (h *ActionHandler) Handle(ctx context.Context, inv *Invocation) entity.HandlerResult {
	text := inv.Request.Text()

	if inv.Classification.SubCategory == "undo" || text == "undo that" || text == "undo" || text == "undo it" {
		return h.handleUndo(ctx, inv)
	}
	if m := timerRe.FindStringSubmatch(text); m != nil {
		return h.handleTimer(ctx, inv, m)
	}
	if m := cancelTimerRe.FindStringSubmatch(text); m != nil {
		return h.handleCancelTimer(ctx, inv, m[1])
	}
	if m := setpointRe.FindStringSubmatch(text); m != nil {
		if res := h.handleSetpoint(ctx, inv, m[1], m[2]); res != nil {
			return *res
		}
	}

	clauses := splitClauses(text)
	if len(clauses) == 0 {
		return entity.HandlerResult{
			Text:   "I'm not sure what you'd like me to do.",
			Status: entity.HandlerPartial,
		}
	}

	var calls []entity.ServiceCall
	var targets []entity.HomeEntity
	var blocked, unresolved []string
	for _, cl := range clauses {
		resolved := h.resolveClause(ctx, cl)
		if len(resolved) == 0 {
			unresolved = append(unresolved, cl.target)
			continue
		}
		service := verbService[cl.verb]
		for _, e := range resolved {
			if inv.Overrides.DomainBlocked(e.Domain) {
				blocked = append(blocked, e.Name)
				continue
			}
			call := entity.ServiceCall{
				Domain:  e.Domain,
				Service: adaptService(service, e.Domain),
				Target:  e.EntityID,
			}
			if cl.verb == "dim" {
				call.Data = map[string]any{"brightness_pct": 30}
			}
			if cl.verb == "brighten" {
				call.Data = map[string]any{"brightness_pct": 100}
			}
			calls = append(calls, call)
			targets = append(targets, e)
		}
	}

	if len(calls) == 0 {
		if len(blocked) > 0 {
			return entity.HandlerResult{
				Text:   "That's not allowed right now.",
				Status: entity.HandlerPartial,
				Diagnostics: map[string]string{
					"blocked": strings.Join(blocked, ","),
				},
			}
		}
		return entity.HandlerResult{
			Text:        fmt.Sprintf("I couldn't find anything called %s.", strings.Join(unresolved, " or ")),
			Status:      entity.HandlerPartial,
			Diagnostics: map[string]string{"unresolved": strings.Join(unresolved, ",")},
		}
	}

	// Snapshot prior state before any call goes out.
	snapshots := h.snapshot(ctx, targets)

	results := h.dispatch(ctx, calls)

	var succeeded, failed []string
	for i, err := range results {
		name := targets[i].Name
		if err != nil {
			h.logger.Warn("Service call failed",
				zap.String("entity_id", calls[i].Target),
				zap.String("service", calls[i].Service),
				zap.Error(err),
			)
			failed = append(failed, name)
		} else {
			succeeded = append(succeeded, name)
		}
	}

	if len(succeeded) > 0 {
		h.undo.Ring(inv.Request.ConversationID).Push(home.UndoSlot{
			ActionKind: clauses[0].verb,
			Snapshots:  snapshots,
			CreatedAt:  h.now(),
		})
	}

	return summarize(succeeded, failed, unresolved)
}

// resolveClause maps one clause target to entities. A "<things> in the
// <place>" phrase resolves by area with a domain hint; otherwise the whole
// phrase goes through registry resolution.
func (h *ActionHandler) resolveClause(ctx context.Context, cl clause) []entity.HomeEntity {
	target := articleRe.ReplaceAllString(cl.target, "")

	if m := placeRe.FindStringSubmatch(target); m != nil {
		hint := pluralDomainHints[strings.TrimSpace(m[1])]
		if got := h.registry.ByArea(ctx, m[2], hint); len(got) > 0 {
			return got
		}
	}
	if hint, ok := pluralDomainHints[target]; ok && strings.HasSuffix(target, "s") {
		// Bare plural ("the lights") targets the speaker's whole home; the
		// registry expands it per area elsewhere, so resolve everything in
		// the hinted domain.
		return h.registry.Resolve(ctx, target, hint)
	}
	return h.registry.Resolve(ctx, target, "")
}

// snapshot reads each target's current state. Read failures degrade to a
// state-only snapshot so undo can still flip the power state.
func (h *ActionHandler) snapshot(ctx context.Context, targets []entity.HomeEntity) []entity.EntityState {
	snapshots := make([]entity.EntityState, 0, len(targets))
	for _, e := range targets {
		st, err := h.platform.GetState(ctx, e.EntityID)
		if err != nil {
			h.logger.Warn("State snapshot failed", zap.String("entity_id", e.EntityID), zap.Error(err))
			snapshots = append(snapshots, entity.EntityState{EntityID: e.EntityID, State: "unknown"})
			continue
		}
		snapshots = append(snapshots, *st)
	}
	return snapshots
}

// dispatch fans the calls out concurrently and rejoins. results[i]
// corresponds to calls[i].
func (h *ActionHandler) dispatch(ctx context.Context, calls []entity.ServiceCall) []error {
	results := make([]error, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(i int, call entity.ServiceCall) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					results[i] = fmt.Errorf("service call panicked: %v", r)
				}
			}()
			results[i] = h.platform.CallService(ctx, call)
		}(i, call)
	}
	wg.Wait()
	return results
}

func (h *ActionHandler) handleUndo(ctx context.Context, inv *Invocation) entity.HandlerResult {
	slot, ok := h.undo.Ring(inv.Request.ConversationID).Pop()
	if !ok {
		return entity.HandlerResult{
			Text:   "There's nothing to undo.",
			Status: entity.HandlerPartial,
		}
	}

	if slot.ActionKind == "timer_cancelled" {
		return h.restartTimer(ctx, inv, slot)
	}
	if slot.TimerSlot != "" {
		if err := h.platform.CallService(ctx, entity.ServiceCall{
			Domain: "timer", Service: "cancel", Target: slot.TimerSlot,
		}); err != nil {
			h.logger.Warn("Timer cancel failed", zap.String("slot", slot.TimerSlot), zap.Error(err))
			return entity.HandlerResult{Text: "I couldn't cancel that timer.", Status: entity.HandlerFailed}
		}
		h.timers.Release(slot.TimerSlot)
		return ok200("Timer cancelled.")
	}

	calls := make([]entity.ServiceCall, 0, len(slot.Snapshots))
	for _, snap := range slot.Snapshots {
		if call, ok := inverseCall(snap); ok {
			calls = append(calls, call)
		}
	}
	if len(calls) == 0 {
		return entity.HandlerResult{Text: "I can't undo that one.", Status: entity.HandlerPartial}
	}

	results := h.dispatch(ctx, calls)
	failed := 0
	for i, err := range results {
		if err != nil {
			failed++
			h.logger.Warn("Undo call failed", zap.String("entity_id", calls[i].Target), zap.Error(err))
		}
	}
	if failed == len(calls) {
		return entity.HandlerResult{Text: "I couldn't undo that.", Status: entity.HandlerFailed}
	}
	if failed > 0 {
		return entity.HandlerResult{Text: "Undone, though part of it didn't take.", Status: entity.HandlerPartial}
	}
	return ok200("Undone.")
}

// restartTimer undoes a cancellation: it re-acquires a slot under the old
// label and starts it with the duration that was left when the timer was
// cancelled.
func (h *ActionHandler) restartTimer(ctx context.Context, inv *Invocation, prev home.UndoSlot) entity.HandlerResult {
	d := prev.TimerDuration.Round(time.Second)
	slot, err := h.timers.Acquire(prev.TimerLabel, d, h.now())
	if err != nil {
		return entity.HandlerResult{
			Text:   "All my timers are busy right now.",
			Status: entity.HandlerFailed,
		}
	}
	if err := h.platform.CallService(ctx, entity.ServiceCall{
		Domain:  "timer",
		Service: "start",
		Target:  slot,
		Data:    map[string]any{"duration": d.String()},
	}); err != nil {
		h.timers.Release(slot)
		h.logger.Warn("Timer restart failed", zap.String("slot", slot), zap.Error(err))
		return entity.HandlerResult{Text: "I couldn't restart that timer.", Status: entity.HandlerFailed}
	}

	h.undo.Ring(inv.Request.ConversationID).Push(home.UndoSlot{
		ActionKind:    "timer",
		TimerSlot:     slot,
		TimerLabel:    prev.TimerLabel,
		TimerDuration: d,
		CreatedAt:     h.now(),
	})
	return ok200(fmt.Sprintf("Timer's back on with %s left.", speakDuration(d)))
}

func (h *ActionHandler) handleTimer(ctx context.Context, inv *Invocation, m []string) entity.HandlerResult {
	n, _ := strconv.Atoi(m[1])
	var d time.Duration
	switch {
	case strings.HasPrefix(m[2], "second"):
		d = time.Duration(n) * time.Second
	case strings.HasPrefix(m[2], "minute"):
		d = time.Duration(n) * time.Minute
	default:
		d = time.Duration(n) * time.Hour
	}
	label := strings.TrimSpace(m[3])
	if label == "" {
		label = inv.Request.ConversationID
	}

	slot, err := h.timers.Acquire(label, d, h.now())
	if err != nil {
		return entity.HandlerResult{
			Text:   "All my timers are busy right now.",
			Status: entity.HandlerFailed,
		}
	}
	if err := h.platform.CallService(ctx, entity.ServiceCall{
		Domain:  "timer",
		Service: "start",
		Target:  slot,
		Data:    map[string]any{"duration": d.String()},
	}); err != nil {
		h.timers.Release(slot)
		h.logger.Warn("Timer start failed", zap.String("slot", slot), zap.Error(err))
		return entity.HandlerResult{Text: "I couldn't start that timer.", Status: entity.HandlerFailed}
	}

	h.undo.Ring(inv.Request.ConversationID).Push(home.UndoSlot{
		ActionKind:    "timer",
		TimerSlot:     slot,
		TimerLabel:    label,
		TimerDuration: d,
		CreatedAt:     h.now(),
	})
	return ok200(fmt.Sprintf("Timer set for %d %s.", n, m[2]))
}

func (h *ActionHandler) handleCancelTimer(ctx context.Context, inv *Invocation, label string) entity.HandlerResult {
	label = strings.TrimSpace(label)
	if label == "" {
		label = inv.Request.ConversationID
	}
	slot, ok := h.timers.FindByLabel(label)
	if !ok {
		return entity.HandlerResult{Text: "I don't have a timer running for that.", Status: entity.HandlerPartial}
	}
	if err := h.platform.CallService(ctx, entity.ServiceCall{
		Domain: "timer", Service: "cancel", Target: slot,
	}); err != nil {
		h.logger.Warn("Timer cancel failed", zap.String("slot", slot), zap.Error(err))
		return entity.HandlerResult{Text: "I couldn't cancel that timer.", Status: entity.HandlerFailed}
	}
	lease, _ := h.timers.Release(slot)

	// The timer-create slot would re-cancel a slot the pool already handed
	// back; drop it and record the cancellation itself so undo restarts the
	// timer with whatever was left on it.
	ring := h.undo.Ring(inv.Request.ConversationID)
	ring.Remove(func(s home.UndoSlot) bool {
		return s.ActionKind == "timer" && s.TimerSlot == slot
	})
	if remaining := lease.Remaining(h.now()); remaining > 0 {
		ring.Push(home.UndoSlot{
			ActionKind:    "timer_cancelled",
			TimerLabel:    lease.Label,
			TimerDuration: remaining,
			CreatedAt:     h.now(),
		})
	}
	return ok200("Timer cancelled.")
}

// handleSetpoint serves "set the thermostat to 72". Generic nouns resolve
// to every climate entity; a named noun ("set the hallway thermostat to
// 68") goes through normal resolution. A nil return means the utterance is
// not a setpoint command after all and falls through to clause parsing.
func (h *ActionHandler) handleSetpoint(ctx context.Context, inv *Invocation, noun, degrees string) *entity.HandlerResult {
	noun = strings.TrimSpace(noun)
	temp, err := strconv.Atoi(degrees)
	if err != nil {
		return nil
	}

	var targets []entity.HomeEntity
	switch noun {
	case "thermostat", "temperature", "heat", "heating":
		targets = h.registry.ByDomain(ctx, "climate")
	default:
		for _, e := range h.registry.Resolve(ctx, noun, "climate") {
			if e.Domain == "climate" {
				targets = append(targets, e)
			}
		}
	}
	if len(targets) == 0 {
		return nil
	}
	if inv.Overrides.DomainBlocked("climate") {
		res := entity.HandlerResult{
			Text:        "That's not allowed right now.",
			Status:      entity.HandlerPartial,
			Diagnostics: map[string]string{"blocked": "climate"},
		}
		return &res
	}

	snapshots := h.snapshot(ctx, targets)
	calls := make([]entity.ServiceCall, 0, len(targets))
	for _, e := range targets {
		calls = append(calls, entity.ServiceCall{
			Domain:  "climate",
			Service: "set_temperature",
			Target:  e.EntityID,
			Data:    map[string]any{"temperature": temp},
		})
	}

	results := h.dispatch(ctx, calls)
	var succeeded, failed []string
	for i, err := range results {
		if err != nil {
			h.logger.Warn("Setpoint call failed", zap.String("entity_id", calls[i].Target), zap.Error(err))
			failed = append(failed, targets[i].Name)
		} else {
			succeeded = append(succeeded, targets[i].Name)
		}
	}
	if len(succeeded) > 0 {
		h.undo.Ring(inv.Request.ConversationID).Push(home.UndoSlot{
			ActionKind: "set",
			Snapshots:  snapshots,
			CreatedAt:  h.now(),
		})
	}
	if len(succeeded) == 0 {
		res := entity.HandlerResult{
			Text:        fmt.Sprintf("I couldn't manage that; %s didn't respond.", joinNames(failed)),
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"failed": strings.Join(failed, ",")},
		}
		return &res
	}
	res := ok200(fmt.Sprintf("Set %s to %d.", joinNames(succeeded), temp))
	return &res
}

// speakDuration renders a duration the way a person would say it.
func speakDuration(d time.Duration) string {
	d = d.Round(time.Second)
	var parts []string
	if h := int(d.Hours()); h > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", h, pluralUnit(h, "hour")))
		d -= time.Duration(h) * time.Hour
	}
	if m := int(d.Minutes()); m > 0 {
		parts = append(parts, fmt.Sprintf("%d %s", m, pluralUnit(m, "minute")))
		d -= time.Duration(m) * time.Minute
	}
	if s := int(d.Seconds()); s > 0 || len(parts) == 0 {
		parts = append(parts, fmt.Sprintf("%d %s", s, pluralUnit(s, "second")))
	}
	return strings.Join(parts, " and ")
}

func pluralUnit(n int, unit string) string {
	if n == 1 {
		return unit
	}
	return unit + "s"
}

// splitClauses breaks a compound command on conjunctions and carries the
// verb into verb-less continuations ("turn on lights and play music" vs
// "turn on the lights and the fan").
func splitClauses(text string) []clause {
	parts := conjunctionRe.Split(text, -1)
	var out []clause
	lastVerb := ""
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		verb, rest := leadingVerb(part)
		if verb == "" {
			if lastVerb == "" {
				continue
			}
			verb, rest = lastVerb, part
		}
		lastVerb = verb
		if rest == "" {
			continue
		}
		out = append(out, clause{verb: verb, target: rest})
	}
	return out
}

// leadingVerb matches the longest known verb phrase at the start of a
// clause. Two-word forms ("turn on") take precedence over one-word forms.
func leadingVerb(text string) (string, string) {
	best := ""
	for verb := range verbService {
		if text == verb {
			if len(verb) > len(best) {
				best = verb
			}
			continue
		}
		if strings.HasPrefix(text, verb+" ") && len(verb) > len(best) {
			best = verb
		}
	}
	if best == "" {
		return "", text
	}
	return best, strings.TrimSpace(strings.TrimPrefix(text, best))
}

// adaptService fixes verb/domain mismatches: "open the garage" resolves a
// cover verb, but the same verb against a lock means unlock.
func adaptService(service, domain string) string {
	switch domain {
	case "cover":
		switch service {
		case "turn_on":
			return "open_cover"
		case "turn_off":
			return "close_cover"
		}
	case "lock":
		switch service {
		case "open_cover", "turn_on":
			return "unlock"
		case "close_cover", "turn_off":
			return "lock"
		}
	case "media_player":
		switch service {
		case "turn_on":
			return "media_play"
		case "turn_off":
			return "media_pause"
		}
	default:
		switch service {
		case "open_cover":
			return "turn_on"
		case "close_cover":
			return "turn_off"
		}
	}
	return service
}

// inverseCall derives the service call that restores a snapshot. Lights
// restore brightness and color, climate restores setpoint and mode, covers
// restore position.
func inverseCall(snap entity.EntityState) (entity.ServiceCall, bool) {
	domain := entity.DomainOf(snap.EntityID)
	switch domain {
	case "light":
		if snap.State == "off" {
			return entity.ServiceCall{Domain: "light", Service: "turn_off", Target: snap.EntityID}, true
		}
		data := map[string]any{}
		for _, attr := range []string{"brightness", "color_temp", "rgb_color"} {
			if v, ok := snap.Attributes[attr]; ok {
				data[attr] = v
			}
		}
		call := entity.ServiceCall{Domain: "light", Service: "turn_on", Target: snap.EntityID}
		if len(data) > 0 {
			call.Data = data
		}
		return call, true
	case "climate":
		data := map[string]any{}
		for _, attr := range []string{"temperature", "hvac_mode", "fan_mode"} {
			if v, ok := snap.Attributes[attr]; ok {
				data[attr] = v
			}
		}
		if len(data) == 0 {
			data["hvac_mode"] = snap.State
		}
		return entity.ServiceCall{Domain: "climate", Service: "set_temperature", Target: snap.EntityID, Data: data}, true
	case "cover":
		if pos, ok := snap.Attributes["current_position"]; ok {
			return entity.ServiceCall{
				Domain: "cover", Service: "set_cover_position", Target: snap.EntityID,
				Data: map[string]any{"position": pos},
			}, true
		}
		if snap.State == "open" {
			return entity.ServiceCall{Domain: "cover", Service: "open_cover", Target: snap.EntityID}, true
		}
		return entity.ServiceCall{Domain: "cover", Service: "close_cover", Target: snap.EntityID}, true
	case "lock":
		if snap.State == "locked" {
			return entity.ServiceCall{Domain: "lock", Service: "lock", Target: snap.EntityID}, true
		}
		return entity.ServiceCall{Domain: "lock", Service: "unlock", Target: snap.EntityID}, true
	case "":
		return entity.ServiceCall{}, false
	}
	// Generic on/off domains.
	switch snap.State {
	case "on":
		return entity.ServiceCall{Domain: domain, Service: "turn_on", Target: snap.EntityID}, true
	case "off":
		return entity.ServiceCall{Domain: domain, Service: "turn_off", Target: snap.EntityID}, true
	}
	return entity.ServiceCall{}, false
}

func summarize(succeeded, failed, unresolved []string) entity.HandlerResult {
	switch {
	case len(failed) == 0 && len(unresolved) == 0:
		return ok200(fmt.Sprintf("Done, %s.", joinNames(succeeded)))
	case len(succeeded) == 0:
		return entity.HandlerResult{
			Text:        fmt.Sprintf("I couldn't manage that; %s didn't respond.", joinNames(append(failed, unresolved...))),
			Status:      entity.HandlerFailed,
			Diagnostics: map[string]string{"failed": strings.Join(failed, ",")},
		}
	default:
		return entity.HandlerResult{
			Text:        fmt.Sprintf("Done with %s, but %s didn't respond.", joinNames(succeeded), joinNames(append(failed, unresolved...))),
			Status:      entity.HandlerPartial,
			Diagnostics: map[string]string{"failed": strings.Join(append(failed, unresolved...), ",")},
		}
	}
}

func joinNames(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	case 2:
		return names[0] + " and " + names[1]
	default:
		return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
	}
}
