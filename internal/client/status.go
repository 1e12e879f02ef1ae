package client

import (
	"fmt"
	"strconv"
	"time"
)

// Status is a state reported by the controller to its panel.
type Status string

const (
	StatusStarting   Status = "starting"
	StatusDisabled   Status = "disabled"
	StatusConnecting Status = "connecting"
	StatusConnected  Status = "connected"
	StatusStarted    Status = "started"
	StatusRetry      Status = "retry"
	StatusError      Status = "error"
)

// Action names the button a panel should offer next to a status.
type Action string

const (
	ActionNone   Action = ""
	ActionEnable Action = "enable"
	ActionRetry  Action = "retry"
)

// StatusEvent is the user-facing description of a status.
type StatusEvent struct {
	Type   Status
	Text   string
	Action Action
}

// DescribeStatus maps a status to its text and action. delay is only used
// for StatusRetry. It panics on a status it does not know.
func DescribeStatus(st Status, delay time.Duration) StatusEvent {
	switch st {
	case StatusStarting:
		return StatusEvent{Type: st, Text: "Starting"}
	case StatusDisabled:
		return StatusEvent{Type: st, Text: "Disabled for this site", Action: ActionEnable}
	case StatusConnecting:
		return StatusEvent{Type: st, Text: "Connecting"}
	case StatusConnected:
		return StatusEvent{Type: st, Text: "Connected"}
	case StatusStarted:
		return StatusEvent{Type: st, Text: "Started"}
	case StatusRetry:
		return StatusEvent{Type: st, Text: "Failed to connect, retrying in " + formatSeconds(delay) + "s"}
	case StatusError:
		return StatusEvent{Type: st, Text: "Error connecting", Action: ActionRetry}
	}
	panic(fmt.Sprintf("client: unknown status %q", string(st)))
}

// formatSeconds renders whole milliseconds as seconds without trailing
// zeros: 4500ms is "4.5", 2000ms is "2".
func formatSeconds(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Milliseconds())/1000, 'f', -1, 64)
}
