// Package shortcuts holds the active key-combination to action bindings.
// The binding set is swapped atomically on update so the input listener
// never observes a partially applied change.
package shortcuts

import (
	"fmt"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/hirawatt/sahayak/internal/protocol"
)

// Shortcut is one key-combination binding. Unique by Action.
type Shortcut struct {
	Action      protocol.Action `json:"action"`
	Key         string          `json:"key"`
	Modifiers   []string        `json:"modifiers"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
}

// Combo renders the binding as a human-readable combination string.
func (s Shortcut) Combo() string {
	parts := append(append([]string(nil), s.Modifiers...), s.Key)
	return strings.Join(parts, "+")
}

// PersistFunc is called with the full binding set after every mutation.
type PersistFunc func([]Shortcut) error

// Registry owns the binding set and answers held-key lookups.
type Registry struct {
	bindings atomic.Pointer[bindingSet]
	persist  PersistFunc
}

// bindingSet is an immutable compiled view of the shortcuts. Each combo
// slot lists the rawcode variants that satisfy it (left/right modifiers).
type bindingSet struct {
	shortcuts []Shortcut
	compiled  []compiledCombo
}

type compiledCombo struct {
	action protocol.Action
	slots  [][]uint16
}

// NewRegistry creates a registry seeded with the given shortcuts. persist
// may be nil when changes should not be written anywhere (tests).
func NewRegistry(list []Shortcut, persist PersistFunc) (*Registry, error) {
	r := &Registry{persist: persist}
	set, err := compile(list)
	if err != nil {
		return nil, err
	}
	r.bindings.Store(set)
	return r, nil
}

// Defaults returns the stock binding table used when no persisted
// configuration exists.
func Defaults() []Shortcut {
	return []Shortcut{
		{Action: protocol.ActionToggleAIAssist, Key: "1", Modifiers: []string{"ctrl", "shift"}, Description: "Toggle AI Assist overlay", Enabled: true},
		{Action: protocol.ActionToggleQuickCapture, Key: "2", Modifiers: []string{"ctrl", "shift"}, Description: "Toggle Quick Capture overlay", Enabled: true},
		{Action: protocol.ActionToggleAutoContext, Key: "o", Modifiers: []string{"ctrl", "shift"}, Description: "Toggle Auto Context overlay", Enabled: true},
	}
}

// All returns a copy of the current binding set.
func (r *Registry) All() []Shortcut {
	set := r.bindings.Load()
	out := make([]Shortcut, len(set.shortcuts))
	copy(out, set.shortcuts)
	return out
}

// Get returns the binding for an action.
func (r *Registry) Get(action protocol.Action) (Shortcut, bool) {
	for _, s := range r.bindings.Load().shortcuts {
		if s.Action == action {
			return s, true
		}
	}
	return Shortcut{}, false
}

// Update replaces the binding for action, validating the combination and
// rejecting conflicts with other enabled bindings, then persists the set.
func (r *Registry) Update(action protocol.Action, key string, modifiers []string) error {
	if err := Validate(key, modifiers); err != nil {
		return err
	}

	cur := r.bindings.Load().shortcuts
	next := make([]Shortcut, 0, len(cur)+1)
	found := false
	for _, s := range cur {
		if s.Action == action {
			s.Key = key
			s.Modifiers = append([]string(nil), modifiers...)
			found = true
		} else if sameCombo(s, key, modifiers) {
			return fmt.Errorf("shortcut %s already bound to %s", s.Combo(), s.Action)
		}
		next = append(next, s)
	}
	if !found {
		next = append(next, Shortcut{Action: action, Key: key, Modifiers: append([]string(nil), modifiers...), Enabled: true})
	}

	set, err := compile(next)
	if err != nil {
		return err
	}
	r.bindings.Store(set)
	if r.persist != nil {
		return r.persist(next)
	}
	return nil
}

// SetEnabled toggles a binding without changing its keys.
func (r *Registry) SetEnabled(action protocol.Action, enabled bool) error {
	cur := r.bindings.Load().shortcuts
	next := make([]Shortcut, len(cur))
	copy(next, cur)
	found := false
	for i := range next {
		if next[i].Action == action {
			next[i].Enabled = enabled
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no shortcut for action %s", action)
	}
	set, err := compile(next)
	if err != nil {
		return err
	}
	r.bindings.Store(set)
	if r.persist != nil {
		return r.persist(next)
	}
	return nil
}

// Match reports the action whose combo exactly matches the held rawcode
// set: every combo slot is satisfied by a held code and every held code
// belongs to a slot. Extra held keys defeat the match so a combo cannot
// fire while the user is typing through it.
func (r *Registry) Match(held map[uint16]struct{}) (protocol.Action, bool) {
	for _, c := range r.bindings.Load().compiled {
		if matchCombo(c.slots, held) {
			return c.action, true
		}
	}
	return "", false
}

func matchCombo(slots [][]uint16, held map[uint16]struct{}) bool {
	if len(held) != len(slots) {
		return false
	}
	used := make(map[uint16]bool, len(held))
	for _, variants := range slots {
		hit := false
		for _, code := range variants {
			if _, ok := held[code]; ok && !used[code] {
				used[code] = true
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	return true
}

// Validate checks that a key name and its modifiers are all known.
func Validate(key string, modifiers []string) error {
	if rawcodesFor(key) == nil {
		return fmt.Errorf("unknown key %q", key)
	}
	for _, m := range modifiers {
		switch normalizeKey(m) {
		case "ctrl", "alt", "shift", "super":
		default:
			return fmt.Errorf("unknown modifier %q", m)
		}
	}
	return nil
}

func sameCombo(s Shortcut, key string, modifiers []string) bool {
	if normalizeKey(s.Key) != normalizeKey(key) || len(s.Modifiers) != len(modifiers) {
		return false
	}
	a := normalizedSorted(s.Modifiers)
	b := normalizedSorted(modifiers)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalizedSorted(names []string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = normalizeKey(n)
	}
	sort.Strings(out)
	return out
}

func compile(list []Shortcut) (*bindingSet, error) {
	set := &bindingSet{shortcuts: list}
	for _, s := range list {
		if !s.Enabled {
			continue
		}
		slots := make([][]uint16, 0, len(s.Modifiers)+1)
		for _, m := range s.Modifiers {
			codes := rawcodesFor(m)
			if codes == nil {
				return nil, fmt.Errorf("shortcut %s: unknown modifier %q", s.Action, m)
			}
			slots = append(slots, codes)
		}
		codes := rawcodesFor(s.Key)
		if codes == nil {
			return nil, fmt.Errorf("shortcut %s: unknown key %q", s.Action, s.Key)
		}
		slots = append(slots, codes)
		set.compiled = append(set.compiled, compiledCombo{action: s.Action, slots: slots})
	}
	return set, nil
}
