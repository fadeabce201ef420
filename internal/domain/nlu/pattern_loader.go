package nlu

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// patternFile is the on-disk shape of patterns.yaml. The declarative file is
// authoritative; the built-in seed is only used when no file is configured.
//
//	groups:
//	  emergency:
//	    - id: smoke
//	      regex: (smoke|fire)\b
//	      sub_category: fire
//	      confidence: 0.98
type patternFile struct {
	Groups map[string][]PatternSpec `yaml:"groups"`
}

// LoadPatternFile parses a YAML pattern file into specs, preserving the
// declared order within each group.
func LoadPatternFile(path string) ([]PatternSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pattern file: %w", err)
	}

	var file patternFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse pattern file: %w", err)
	}

	var specs []PatternSpec
	for _, g := range groupOrder {
		for _, spec := range file.Groups[string(g)] {
			spec.Group = g
			specs = append(specs, spec)
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("pattern file %s declares no patterns", path)
	}
	return specs, nil
}

// PatternWatcher hot-reloads the pattern file on change with
// swap-on-validate semantics: an invalid new set is rejected and the active
// set retained.
type PatternWatcher struct {
	path     string
	matcher  *PatternMatcher
	watcher  *fsnotify.Watcher
	stopCh   chan struct{}
	onReload func()
	logger   *zap.Logger
}

// OnReload registers a callback fired after each successful swap. Must be
// set before Start.
func (w *PatternWatcher) OnReload(fn func()) { w.onReload = fn }

// NewPatternWatcher creates a watcher on the pattern file's directory
// (editors replace files, so watching the file inode directly misses writes).
func NewPatternWatcher(path string, matcher *PatternMatcher, logger *zap.Logger) (*PatternWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	return &PatternWatcher{
		path:    path,
		matcher: matcher,
		watcher: fsw,
		stopCh:  make(chan struct{}),
		logger:  logger.With(zap.String("component", "pattern-watcher")),
	}, nil
}

// Start blocks, applying reloads until Stop is called.
func (w *PatternWatcher) Start() {
	w.logger.Info("Pattern watcher started", zap.String("path", w.path))
	for {
		select {
		case <-w.stopCh:
			w.watcher.Close()
			w.logger.Info("Pattern watcher stopped")
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Pattern watcher error", zap.Error(err))
		}
	}
}

// Stop signals the watcher to shut down.
func (w *PatternWatcher) Stop() {
	close(w.stopCh)
}

func (w *PatternWatcher) reload() {
	specs, err := LoadPatternFile(w.path)
	if err != nil {
		w.logger.Warn("Pattern reload failed, keeping active set", zap.Error(err))
		return
	}
	set, warnings := NewPatternSet(specs)
	for _, warning := range warnings {
		w.logger.Warn("Pattern disabled", zap.String("detail", warning))
	}
	if err := w.matcher.Swap(set); err == nil {
		w.logger.Info("Pattern set reloaded", zap.Int("patterns", set.Len()))
		if w.onReload != nil {
			w.onReload()
		}
	}
}

// SeedPatterns is the built-in pattern set, loaded when no pattern file is
// configured. It covers the intents the assistant must classify without a
// model call.
func SeedPatterns() []PatternSpec {
	group := func(g PatternGroup, specs ...PatternSpec) []PatternSpec {
		for i := range specs {
			specs[i].Group = g
		}
		return specs
	}

	var specs []PatternSpec
	specs = append(specs, group(GroupEmergency,
		PatternSpec{ID: "emergency.fire", Regex: `\b(smoke|fire|burning)\b`, SubCategory: "fire", Confidence: 0.98},
		PatternSpec{ID: "emergency.intruder", Regex: `\b(intruder|break[- ]?in|burglar)\b`, SubCategory: "intruder", Confidence: 0.97},
		PatternSpec{ID: "emergency.medical", Regex: `\b(hurt|injured|bleeding|can'?t breathe|chest pain)\b`, SubCategory: "medical", Confidence: 0.97},
		PatternSpec{ID: "emergency.help", Regex: `^help\b|\bcall for help\b`, SubCategory: "general", Confidence: 0.95},
	)...)
	specs = append(specs, group(GroupInstant,
		PatternSpec{ID: "instant.time", Regex: `\bwhat time is it\b|\bwhat'?s the time\b|\bcurrent time\b`, SubCategory: "time", Confidence: 0.97},
		PatternSpec{ID: "instant.date", Regex: `\bwhat('?s| is) (the date|today'?s date)\b|\bwhat day is (it|today)\b`, SubCategory: "date", Confidence: 0.96},
		PatternSpec{ID: "instant.math", Regex: `\bwhat('?s| is) \d+(\.\d+)? ?(\+|-|\*|/|plus|minus|times|divided by) ?\d+`, SubCategory: "math", Confidence: 0.95},
		PatternSpec{ID: "instant.convert", Regex: `\bconvert \d+(\.\d+)? \w+ (to|into) \w+`, SubCategory: "convert", Confidence: 0.93},
		PatternSpec{ID: "instant.joke", Regex: `\btell me a joke\b|\bmake me laugh\b|\banother joke\b`, SubCategory: "joke", Confidence: 0.95},
		PatternSpec{ID: "instant.fact", Regex: `\btell me a (fun |random )?fact\b`, SubCategory: "fact", Confidence: 0.95},
		PatternSpec{ID: "instant.repeat", Regex: `\b(say that again|repeat that|what did you say)\b`, SubCategory: "repeat", Confidence: 0.95},
	)...)
	specs = append(specs, group(GroupGesture,
		PatternSpec{ID: "gesture.greeting", Regex: `^(hi|hello|hey|good (morning|afternoon|evening))\b`, SubCategory: "greeting", Confidence: 0.92},
		PatternSpec{ID: "gesture.thanks", Regex: `^(thanks|thank you|cheers)\b`, SubCategory: "thanks", Confidence: 0.92},
		PatternSpec{ID: "gesture.goodnight", Regex: `^good night\b|^goodnight\b`, SubCategory: "goodnight", Confidence: 0.92},
	)...)
	specs = append(specs, group(GroupAction,
		PatternSpec{ID: "action.undo", Regex: `^undo( that| it)?$|^never ?mind,? undo\b`, SubCategory: "undo", Confidence: 0.96},
		PatternSpec{ID: "action.turn_on", Regex: `^(turn|switch) on\b|^turn .* on$`, SubCategory: "turn_on", Confidence: 0.94},
		PatternSpec{ID: "action.turn_off", Regex: `^(turn|switch) off\b|^turn .* off$`, SubCategory: "turn_off", Confidence: 0.94},
		PatternSpec{ID: "action.dim", Regex: `^(dim|brighten)\b|\bset .* brightness\b`, SubCategory: "brightness", Confidence: 0.92},
		PatternSpec{ID: "action.lock", Regex: `^(lock|unlock)\b`, SubCategory: "lock", Confidence: 0.93},
		PatternSpec{ID: "action.cover", Regex: `^(open|close)\b.*\b(blinds?|curtains?|garage|shades?|covers?)\b`, SubCategory: "cover", Confidence: 0.92},
		PatternSpec{ID: "action.climate", Regex: `\bset (the )?(temperature|thermostat)\b|\b(warmer|cooler) in here\b`, SubCategory: "climate", Confidence: 0.92},
		PatternSpec{ID: "action.media", Regex: `^(play|pause|stop|resume|skip)\b.*\b(music|song|playlist|radio)?\b|^play\b`, SubCategory: "media", Confidence: 0.9},
		PatternSpec{ID: "action.timer", Regex: `\bset a timer\b|\bstart a \d+ ?(second|minute|hour) timer\b|\bcancel (the |my )?timer\b`, SubCategory: "timer", Confidence: 0.93},
	)...)
	specs = append(specs, group(GroupMemory,
		PatternSpec{ID: "memory.store", Regex: `^remember( that)?\b|\bdon'?t forget that\b`, SubCategory: "store", Confidence: 0.95},
		PatternSpec{ID: "memory.forget", Regex: `^forget( that| about)?\b`, SubCategory: "forget", Confidence: 0.94},
		PatternSpec{ID: "memory.recall", Regex: `^what('?s| is) my\b|\bdo you remember\b|\bwhat did i (say|tell you) about\b`, SubCategory: "recall", Confidence: 0.93},
	)...)
	specs = append(specs, group(GroupQuery,
		PatternSpec{ID: "query.state", Regex: `^(is|are) the .* (on|off|open|closed|locked|unlocked)`, SubCategory: "state", Confidence: 0.9},
		PatternSpec{ID: "query.weather", Regex: `\b(weather|temperature outside|forecast)\b`, SubCategory: "weather", Confidence: 0.9},
		PatternSpec{ID: "query.general", Regex: `^(what|where|when|who|which|how)\b`, SubCategory: "general", Confidence: 0.85},
	)...)
	return specs
}
