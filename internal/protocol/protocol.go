// Package protocol defines the message types exchanged between the
// coordination core and presentation clients, plus the normalized trigger
// type that all input sources (hotkeys, websocket clients, REST calls)
// are reduced to before the orchestrator sees them.
package protocol

import "time"

// OverlayID names a presentation surface whose visibility the core tracks.
type OverlayID string

const (
	OverlayAIAssist     OverlayID = "ai_assist"
	OverlayAutoContext  OverlayID = "auto_context"
	OverlayQuickCapture OverlayID = "quick_capture"
)

// Overlays lists every overlay in a fixed order.
func Overlays() []OverlayID {
	return []OverlayID{OverlayAIAssist, OverlayAutoContext, OverlayQuickCapture}
}

// Valid reports whether id names a known overlay.
func (id OverlayID) Valid() bool {
	switch id {
	case OverlayAIAssist, OverlayAutoContext, OverlayQuickCapture:
		return true
	}
	return false
}

// Action is a named user intent bound to a shortcut or sent by a client.
type Action string

const (
	ActionToggleAIAssist     Action = "toggle_ai_assist"
	ActionToggleAutoContext  Action = "toggle_auto_context"
	ActionToggleQuickCapture Action = "toggle_quick_capture"
)

// OverlayForAction resolves a control action to the overlay it targets.
func OverlayForAction(a Action) (OverlayID, bool) {
	switch a {
	case ActionToggleAIAssist:
		return OverlayAIAssist, true
	case ActionToggleAutoContext:
		return OverlayAutoContext, true
	case ActionToggleQuickCapture:
		return OverlayQuickCapture, true
	}
	return "", false
}

// Op is the transition requested by a trigger.
type Op int

const (
	OpToggle Op = iota
	OpShow
	OpHide
	// OpCaptureOnly requests a fresh context snapshot without touching
	// any overlay state.
	OpCaptureOnly
)

func (op Op) String() string {
	switch op {
	case OpToggle:
		return "toggle"
	case OpShow:
		return "show"
	case OpHide:
		return "hide"
	case OpCaptureOnly:
		return "capture_only"
	}
	return "unknown"
}

// Origin tags where a trigger came from. Used only for diagnostics;
// handling is identical for all origins.
type Origin string

const (
	OriginHotkey Origin = "hotkey"
	OriginClient Origin = "client"
	OriginAPI    Origin = "api"
)

// Trigger is the single normalized request type consumed by the
// orchestrator. Reply, when non-nil, receives exactly one envelope once
// the trigger has fully settled; it must be buffered with capacity 1.
type Trigger struct {
	Overlay OverlayID
	Op      Op
	Origin  Origin
	// RetainImage asks a capture-only trigger to keep the screenshot
	// bytes on the snapshot instead of dropping them after OCR.
	RetainImage bool
	Reply       chan Envelope
}

// Envelope is the outbound wrapper for every event and acknowledgement.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

// StateChange is the envelope payload for an overlay visibility change.
type StateChange struct {
	Action    string `json:"action"`
	State     bool   `json:"state"`
	OverlayID string `json:"overlay_id"`
}

// StateChangeFor builds the payload for an overlay's new visibility,
// using the show_*/hide_* action names the frontend matches on.
func StateChangeFor(id OverlayID, visible bool) StateChange {
	verb := "hide_"
	if visible {
		verb = "show_"
	}
	return StateChange{
		Action:    verb + string(id),
		State:     visible,
		OverlayID: string(id),
	}
}

// Context is the envelope payload carrying a context snapshot. Fields are
// pointers so sub-sources that failed or were skipped serialize as null.
type Context struct {
	SelectedText *string   `json:"selected_text"`
	OCRText      *string   `json:"ocr_text"`
	SourceURL    *string   `json:"source_url"`
	CapturedAt   time.Time `json:"captured_at"`
}

// ControlMessage is the inbound JSON sent by presentation clients over
// the persistent connection.
type ControlMessage struct {
	Type   string `json:"type"`
	Action Action `json:"action"`
}

// ControlOverlayAction is the only control message type currently accepted.
const ControlOverlayAction = "overlay_action"
