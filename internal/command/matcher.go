// Package command turns recognized speech into gesture actions.
//
// A [Matcher] holds the configured phrases for each action. Matching runs in
// two stages over normalized text (see [Normalize]):
//
//  1. Exact: the phrase occurs in the transcript on word boundaries.
//  2. Fuzzy: every window of the transcript with as many words as the phrase
//     is compared to it. A window whose words share a Double Metaphone code
//     with the phrase's words, position by position, and whose words are
//     within one rune of the phrase words' lengths, is accepted when its
//     Jaro-Winkler similarity reaches the phonetic threshold. Other windows
//     must reach the higher fuzzy threshold.
//
// A [Router] feeds transcripts through a Matcher and dispatches at most one
// action per utterance.
package command

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/voxctl/internal/action"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
)

// Command binds spoken phrases to an action.
type Command struct {
	Action  action.ActionType
	Phrases []string
}

// Match describes a successful match.
type Match struct {
	Action action.ActionType

	// Phrase is the configured phrase that matched, normalized.
	Phrase string

	// Score is 1 for exact matches, else the Jaro-Winkler similarity.
	Score float64

	// Exact reports whether the phrase occurred verbatim.
	Exact bool
}

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for phonetically aligned
// windows. Default: 0.80.
func WithPhoneticThreshold(v float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = v }
}

// WithFuzzyThreshold sets the minimum similarity for windows without phonetic
// alignment. Default: 0.92.
func WithFuzzyThreshold(v float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = v }
}

type phrase struct {
	action action.ActionType
	text   string
	words  []string
	runes  []int
	codes  []map[string]struct{}
}

// Matcher maps transcripts to actions. It is immutable after construction
// and safe for concurrent use.
type Matcher struct {
	phrases           []phrase
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// NewMatcher compiles cmds. Every action must be valid and every phrase must
// contain at least one word after normalization.
func NewMatcher(cmds []Command, opts ...Option) (*Matcher, error) {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	if err := m.compile(cmds); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Matcher) compile(cmds []Command) error {
	var errs []error
	for i, c := range cmds {
		if !c.Action.Valid() {
			errs = append(errs, fmt.Errorf("command: commands[%d]: %w: %q", i, action.ErrUnknownAction, c.Action))
			continue
		}
		if len(c.Phrases) == 0 {
			errs = append(errs, fmt.Errorf("command: commands[%d] (%s): no phrases", i, c.Action))
		}
		for j, p := range c.Phrases {
			text := Normalize(p)
			if text == "" {
				errs = append(errs, fmt.Errorf("command: commands[%d].phrases[%d]: empty after normalization", i, j))
				continue
			}
			words := strings.Fields(text)
			runes := make([]int, len(words))
			codes := make([]map[string]struct{}, len(words))
			for k, w := range words {
				runes[k] = utf8.RuneCountInString(w)
				codes[k] = wordCodes(w)
			}
			m.phrases = append(m.phrases, phrase{action: c.Action, text: text, words: words, runes: runes, codes: codes})
		}
	}
	return errors.Join(errs...)
}

// Len returns the number of compiled phrases.
func (m *Matcher) Len() int { return len(m.phrases) }

// Match finds the best action for text. Exact matches win over fuzzy ones;
// among exact matches the longest phrase wins.
func (m *Matcher) Match(text string) (Match, bool) {
	norm := Normalize(text)
	if norm == "" || len(m.phrases) == 0 {
		return Match{}, false
	}

	var best Match
	padded := " " + norm + " "
	for _, p := range m.phrases {
		if strings.Contains(padded, " "+p.text+" ") {
			if !best.Exact || len(p.text) > len(best.Phrase) {
				best = Match{Action: p.action, Phrase: p.text, Score: 1, Exact: true}
			}
		}
	}
	if best.Exact {
		return best, true
	}

	words := strings.Fields(norm)
	found := false
	for _, p := range m.phrases {
		score, ok := m.fuzzy(words, p)
		if ok && score > best.Score {
			best = Match{Action: p.action, Phrase: p.text, Score: score}
			found = true
		}
	}
	return best, found
}

// fuzzy returns the best accepted window score for p.
func (m *Matcher) fuzzy(words []string, p phrase) (float64, bool) {
	n := len(p.words)
	concat := strings.Join(p.words, "")
	var (
		best float64
		ok   bool
	)
	accept := func(score float64, aligned bool) {
		threshold := m.fuzzyThreshold
		if aligned {
			threshold = m.phoneticThreshold
		}
		if score >= threshold && score > best {
			best, ok = score, true
		}
	}

	for i := 0; i+n <= len(words); i++ {
		window := words[i : i+n]
		joined := strings.Join(window, " ")
		score := matchr.JaroWinkler(joined, p.text, false)
		if n > 1 {
			if s := matchr.JaroWinkler(strings.Join(window, ""), concat, false); s > score {
				score = s
			}
		}
		accept(score, aligned(window, p))
	}
	// Multi-word phrases spoken as one run-together word.
	if n > 1 {
		for _, w := range words {
			if d := len(w) - len(concat); d < -1 || d > 1 {
				continue
			}
			accept(matchr.JaroWinkler(w, concat, false), false)
		}
	}
	return best, ok
}

// aligned reports whether every window word shares a phonetic code with the
// phrase word at the same position and is within one rune of its length.
// Double Metaphone codes are truncated to four characters.
func aligned(window []string, p phrase) bool {
	for i, w := range window {
		if d := utf8.RuneCountInString(w) - p.runes[i]; d < -1 || d > 1 {
			return false
		}
		if !overlap(wordCodes(w), p.codes[i]) {
			return false
		}
	}
	return true
}

func wordCodes(w string) map[string]struct{} {
	codes := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(w)
	if p != "" {
		codes[p] = struct{}{}
	}
	if s != "" {
		codes[s] = struct{}{}
	}
	return codes
}

func overlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
