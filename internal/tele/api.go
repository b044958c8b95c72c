package tele

import (
	"context"

	tele_config "github.com/temoto/vitals/internal/tele/config"
	"github.com/temoto/vitals/log2"
)

// State is retained agent status, published only on change.
type State string

const (
	StateInvalid  State = ""
	StateBoot     State = "boot"
	StateLinkUp   State = "link-up"
	StateLinkDown State = "link-down"
	StateStopping State = "stopping"
	StateOffline  State = "offline" // broker last will
)

// Delivery summarizes one dispatch attempt.
type Delivery struct {
	Delivered  bool   `json:"delivered"`
	Status     int    `json:"status,omitempty"`
	Reason     string `json:"reason,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

const (
	EventError    = "error"
	EventDispatch = "dispatch"
)

type Event struct {
	Kind     string    `json:"kind"`
	Agent    string    `json:"agent"`
	Time     int64     `json:"time"` // unix milliseconds
	Message  string    `json:"message,omitempty"`
	Delivery *Delivery `json:"delivery,omitempty"`
}

// Teler is agent status reporter.
type Teler interface {
	Init(context.Context, *log2.Log, tele_config.Config) error
	Close()
	State(State)
	Error(error)
	Dispatched(Delivery)
}

type Noop struct{}

var _ Teler = Noop{} // compile-time interface test

func (Noop) Init(context.Context, *log2.Log, tele_config.Config) error { return nil }
func (Noop) Close()                                                    {}
func (Noop) State(State)                                               {}
func (Noop) Error(error)                                               {}
func (Noop) Dispatched(Delivery)                                       {}
