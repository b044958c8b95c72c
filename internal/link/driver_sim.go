package link

import (
	"sync"
)

// Sim is in-process radio for development hosts and tests.
// Association completes after Polls calls to Up() following Begin().
type Sim struct {
	mu      sync.Mutex
	Polls   int
	Fail    bool // Begin never leads to association
	Quality Info

	up      bool
	pending int
	begun   int
}

var _ Driver = &Sim{}

func NewSim(polls int) *Sim {
	return &Sim{
		Polls:   polls,
		Quality: Info{SSID: "sim", Addr: "10.0.0.2", RSSI: -50},
	}
}

func (self *Sim) String() string { return "sim" }

func (self *Sim) Begin(ssid, password string) error {
	self.mu.Lock()
	defer self.mu.Unlock()
	self.begun++
	if ssid != "" {
		self.Quality.SSID = ssid
	}
	self.pending = self.Polls
	if self.Polls <= 0 && !self.Fail {
		self.up = true
	}
	return nil
}

func (self *Sim) Up() bool {
	self.mu.Lock()
	defer self.mu.Unlock()
	if !self.up && !self.Fail && self.begun > 0 && self.pending > 0 {
		self.pending--
		if self.pending == 0 {
			self.up = true
		}
	}
	return self.up
}

func (self *Sim) Info() Info {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.Quality
}

// Drop simulates loss of signal.
func (self *Sim) Drop() {
	self.mu.Lock()
	self.up = false
	self.pending = 0
	self.mu.Unlock()
}

// Raise makes link up without Begin.
func (self *Sim) Raise() {
	self.mu.Lock()
	self.up = true
	self.mu.Unlock()
}

// Begun returns count of Begin() calls.
func (self *Sim) Begun() int {
	self.mu.Lock()
	defer self.mu.Unlock()
	return self.begun
}
