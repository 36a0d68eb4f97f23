package ui

import (
	"time"

	"github.com/flight-control/mixerd/internal/commands"
)

// PollMsg asks the model to fetch outputs again.
type PollMsg struct {
	At  time.Time
	Gen int
}

// OutputsMsg carries the result of one poll.
type OutputsMsg struct {
	Output commands.MixOutput
	Err    error
	At     time.Time
	Gen    int
}
