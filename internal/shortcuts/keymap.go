package shortcuts

import (
	"fmt"
	"strings"
)

// rawcodes maps a normalized key name to the keyboard rawcodes that
// satisfy it. Modifiers map to both their left and right variants, so a
// combo written as "ctrl" matches whichever side was pressed.
var rawcodes = buildKeymap()

func buildKeymap() map[string][]uint16 {
	m := map[string][]uint16{
		"ctrl":  {162, 163},
		"alt":   {164, 165},
		"shift": {160, 161},
		"super": {91, 92},

		"space":     {32},
		"enter":     {13},
		"escape":    {27},
		"tab":       {9},
		"backspace": {8},
		"delete":    {46},
		"left":      {37},
		"up":        {38},
		"right":     {39},
		"down":      {40},
	}
	for c := byte('a'); c <= 'z'; c++ {
		m[string(c)] = []uint16{uint16(c - 'a' + 65)}
	}
	for c := byte('0'); c <= '9'; c++ {
		m[string(c)] = []uint16{uint16(c - '0' + 48)}
	}
	for i := 1; i <= 12; i++ {
		m[fmt.Sprintf("f%d", i)] = []uint16{uint16(111 + i)}
	}
	return m
}

// normalizeKey canonicalizes user-supplied key names, accepting the
// aliases the configuration file historically allowed.
func normalizeKey(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "win", "cmd", "meta":
		return "super"
	case "esc":
		return "escape"
	case "return":
		return "enter"
	case "del":
		return "delete"
	}
	return name
}

// rawcodesFor returns the rawcode variants for a key name, or nil when
// the name is unknown.
func rawcodesFor(name string) []uint16 {
	return rawcodes[normalizeKey(name)]
}
