package tele

import (
	"context"
	"encoding/json"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	tele_config "github.com/temoto/vitals/internal/tele/config"
	"github.com/temoto/vitals/log2"
)

const (
	DefaultNetworkTimeout = 30 * time.Second
	DefaultQueueSize      = 32
)

// Tele contract:
// - Init() fails only with invalid config, network issues ignored
// - State/Error/Dispatched never block, messages go to bounded in-memory queue
// - queue overflow drops newest message, nothing is persisted
// - Close() flushes queue within network timeout per message
// - current state is republished after broker (re)connect or failed send
type Tele struct {
	config    tele_config.Config
	log       *log2.Log
	transport Transporter
	outCh     chan outMsg
	stopCh    chan struct{}
	doneCh    chan struct{}
	dropped   uint32

	stateMu      sync.Mutex
	currentState State
	stateStale   bool // broker may not have currentState
}

type outMsg struct {
	state   bool
	payload []byte
}

var _ Teler = &Tele{}

func New() *Tele { return &Tele{} }

func NewWithTransporter(trans Transporter) *Tele { return &Tele{transport: trans} }

func (self *Tele) Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config) error {
	self.config = teleConfig
	self.log = log.Clone(log2.LInfo)
	// own errors must not loop back into Error()
	self.log.SetErrorFunc(nil)
	if self.config.LogDebug {
		self.log.SetLevel(log2.LDebug)
	}
	if !self.config.Enabled {
		return nil
	}
	if self.config.AgentID == "" {
		return errors.NotValidf("tele agent id empty")
	}
	if _, err := url.ParseRequestURI(self.config.MqttBroker); err != nil {
		return errors.Annotatef(err, "tele mqtt_broker=%s", self.config.MqttBroker)
	}

	size := self.config.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	// transport may call republishState as soon as Init starts connecting
	self.outCh = make(chan outMsg, size)
	self.stopCh = make(chan struct{})
	self.doneCh = make(chan struct{})

	// test code sets .transport
	if self.transport == nil { // production path
		self.transport = &transportMqtt{}
	}
	if err := self.transport.Init(ctx, self.log, self.config, []byte(StateOffline), self.republishState); err != nil {
		self.stopCh = nil
		return errors.Annotate(err, "tele transport")
	}
	go self.worker()
	self.State(StateBoot)
	return nil
}

func (self *Tele) Close() {
	if self.stopCh == nil {
		return
	}
	select {
	case <-self.stopCh:
		return
	default:
	}
	close(self.stopCh)
	<-self.doneCh
	self.transport.Close()
	if n := atomic.LoadUint32(&self.dropped); n != 0 {
		self.log.Infof("tele closed dropped=%d", n)
	}
}

func (self *Tele) State(s State) {
	if !self.config.Enabled {
		return
	}
	self.stateMu.Lock()
	send := self.currentState != s || self.stateStale
	self.currentState = s
	self.stateStale = false
	self.stateMu.Unlock()
	if send {
		self.log.Debugf("tele state=%s", s)
		self.push(outMsg{state: true, payload: []byte(s)})
	}
}

// republishState runs after broker connect: last-will or nothing may be retained now.
func (self *Tele) republishState() {
	self.stateMu.Lock()
	s := self.currentState
	self.stateStale = false
	self.stateMu.Unlock()
	if s != "" {
		self.log.Debugf("tele republish state=%s", s)
		self.push(outMsg{state: true, payload: []byte(s)})
	}
}

func (self *Tele) Error(e error) {
	if !self.config.Enabled || e == nil {
		return
	}
	self.log.Debugf("tele error=%s", errors.ErrorStack(e))
	self.pushEvent(Event{Kind: EventError, Message: e.Error()})
}

func (self *Tele) Dispatched(d Delivery) {
	if !self.config.Enabled {
		return
	}
	self.pushEvent(Event{Kind: EventDispatch, Delivery: &d})
}

// Dropped counts messages lost to queue overflow.
func (self *Tele) Dropped() uint32 { return atomic.LoadUint32(&self.dropped) }

func (self *Tele) pushEvent(ev Event) {
	ev.Agent = self.config.AgentID
	if ev.Time == 0 {
		ev.Time = time.Now().UnixNano() / int64(time.Millisecond)
	}
	b, err := json.Marshal(ev)
	if err != nil {
		self.log.Infof("CRITICAL tele event=%#v marshal err=%v", ev, err)
		return
	}
	self.push(outMsg{payload: b})
}

func (self *Tele) push(m outMsg) {
	select {
	case <-self.stopCh:
		return
	default:
	}
	select {
	case self.outCh <- m:
	default:
		atomic.AddUint32(&self.dropped, 1)
		self.log.Debugf("tele queue full, dropped payload=%s", m.payload)
	}
}

func (self *Tele) worker() {
	defer close(self.doneCh)
	for {
		select {
		case m := <-self.outCh:
			self.send(m)
		case <-self.stopCh:
			for {
				select {
				case m := <-self.outCh:
					self.send(m)
				default:
					return
				}
			}
		}
	}
}

func (self *Tele) send(m outMsg) {
	var ok bool
	if m.state {
		ok = self.transport.SendState(m.payload)
	} else {
		ok = self.transport.SendEvent(m.payload)
	}
	if !ok {
		self.log.Debugf("tele send lost payload=%s", m.payload)
		if m.state {
			self.stateMu.Lock()
			self.stateStale = true
			self.stateMu.Unlock()
		}
	}
}
