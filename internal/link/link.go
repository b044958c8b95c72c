// Package link owns wireless connectivity state.
//
// Manager contract:
// - Connect() is the only blocking call, bounded by Attempts*AttemptDelay
// - Status() never blocks, it only observes driver and may surface loss of signal
// - no background reconnect, caller decides when to Connect() again
package link

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vitals/log2"
)

const (
	DefaultAttempts     = 30
	DefaultAttemptDelay = 500 * time.Millisecond
)

var ErrConnectExhausted = fmt.Errorf("link connect attempts exhausted")

type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Info is link quality metadata, observability only.
type Info struct {
	SSID string
	Addr string
	RSSI int // dBm
}

type Status struct {
	State State
	Info  Info // valid when State=Connected
}

func (s Status) String() string {
	if s.State != Connected {
		return s.State.String()
	}
	return fmt.Sprintf("connected ssid=%s addr=%s rssi=%ddBm", s.Info.SSID, s.Info.Addr, s.Info.RSSI)
}

// Driver is radio specific part.
type Driver interface {
	// Begin starts association, must not block for long.
	Begin(ssid, password string) error
	Up() bool
	Info() Info
	String() string
}

type Config struct {
	SSID         string
	Password     string
	Attempts     int
	AttemptDelay time.Duration
}

type Manager struct {
	config Config
	driver Driver
	log    *log2.Log
	sleep  func(context.Context, time.Duration) error

	mu    sync.Mutex
	state State
}

func NewManager(config Config, driver Driver, log *log2.Log) *Manager {
	if config.Attempts <= 0 {
		config.Attempts = DefaultAttempts
	}
	if config.AttemptDelay <= 0 {
		config.AttemptDelay = DefaultAttemptDelay
	}
	return &Manager{
		config: config,
		driver: driver,
		log:    log,
		sleep:  sleepContext,
		state:  Disconnected,
	}
}

// SetSleep replaces delay between attempts, for tests.
func (self *Manager) SetSleep(f func(context.Context, time.Duration) error) { self.sleep = f }

func (self *Manager) Driver() Driver { return self.driver }

// Connect establishes link unless already Connected.
// Exhausted attempts leave state Disconnected and return error with cause ErrConnectExhausted.
func (self *Manager) Connect(ctx context.Context) error {
	if self.Status().State == Connected {
		return nil
	}
	self.setState(Connecting)
	self.log.Infof("link connecting ssid=%s driver=%s", self.config.SSID, self.driver.String())

	if err := self.driver.Begin(self.config.SSID, self.config.Password); err != nil {
		// still poll, radio may associate on its own after failed command
		self.log.Errorf("link begin driver=%s err=%v", self.driver.String(), err)
	}

	attempts := 0
	for !self.driver.Up() && attempts < self.config.Attempts {
		if err := self.sleep(ctx, self.config.AttemptDelay); err != nil {
			self.setState(Disconnected)
			return errors.Annotate(err, "link connect")
		}
		attempts++
		self.log.Debugf("link poll attempt=%d/%d", attempts, self.config.Attempts)
	}

	if !self.driver.Up() {
		self.setState(Disconnected)
		return errors.Annotatef(ErrConnectExhausted, "ssid=%s attempts=%d delay=%s",
			self.config.SSID, attempts, self.config.AttemptDelay)
	}
	self.setState(Connected)
	self.log.Infof("link %s", self.Status().String())
	return nil
}

// Status reports current state, surfacing loss of signal observed on driver.
func (self *Manager) Status() Status {
	self.mu.Lock()
	if self.state == Connected && !self.driver.Up() {
		self.state = Disconnected
		self.mu.Unlock()
		self.log.Infof("link lost ssid=%s", self.config.SSID)
		return Status{State: Disconnected}
	}
	s := Status{State: self.state}
	self.mu.Unlock()
	if s.State == Connected {
		s.Info = self.driver.Info()
	}
	return s
}

func (self *Manager) setState(s State) {
	self.mu.Lock()
	self.state = s
	self.mu.Unlock()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
