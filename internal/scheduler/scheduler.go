// Package scheduler is the cooperative control loop.
//
// One goroutine calls Tick repeatedly with short yield in between.
// Each Tick either does nothing (interval not elapsed),
// reconnects the link (skipping production) or produces and dispatches one reading.
// No error terminates the loop.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vitals/helpers"
	"github.com/temoto/vitals/internal/dispatch"
	"github.com/temoto/vitals/internal/link"
	"github.com/temoto/vitals/internal/responder"
	"github.com/temoto/vitals/internal/tele"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

const (
	DefaultInterval = 5 * time.Second
	DefaultTick     = 100 * time.Millisecond

	backoffMin = 1 * time.Second
)

// Linker is what scheduler needs from link.Manager.
type Linker interface {
	Connect(ctx context.Context) error
	Status() link.Status
}

type Dispatcher interface {
	Dispatch(ctx context.Context, r vitals.Reading) dispatch.Outcome
}

type Config struct {
	Interval time.Duration
	Tick     time.Duration
	// BackoffMax>0 spaces reconnect attempts exponentially up to this delay.
	BackoffMax time.Duration
	// Async runs dispatch in background, one in flight at most.
	Async bool
}

type Stat struct {
	Ticks       uint64
	Connects    uint64
	Productions uint64
	Dispatches  uint64
	Delivered   uint64
	Failed      uint64
	Skipped     uint64 // produced but not dispatched, previous dispatch in flight
}

func (s Stat) String() string {
	return fmt.Sprintf("ticks=%d connects=%d productions=%d dispatches=%d delivered=%d failed=%d skipped=%d",
		s.Ticks, s.Connects, s.Productions, s.Dispatches, s.Delivered, s.Failed, s.Skipped)
}

type Scheduler struct {
	// Optional, replace before first Tick.
	Clock  Clock
	Latest *responder.Latest
	Tele   tele.Teler

	config     Config
	link       Linker
	source     vitals.Source
	dispatcher Dispatcher
	log        *log2.Log
	backoff    *helpers.Backoff

	hasLast  bool
	last     time.Duration
	inflight *helpers.Future
	stat     Stat
}

func New(config Config, lm Linker, source vitals.Source, d Dispatcher, log *log2.Log) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultInterval
	}
	if config.Tick <= 0 {
		config.Tick = DefaultTick
	}
	self := &Scheduler{
		Clock:      NewMonotonicClock(),
		Tele:       tele.Noop{},
		config:     config,
		link:       lm,
		source:     source,
		dispatcher: d,
		log:        log,
	}
	if config.BackoffMax > 0 {
		min := backoffMin
		if min > config.BackoffMax {
			min = config.BackoffMax
		}
		self.backoff = helpers.NewBackoff(min, config.BackoffMax)
	}
	return self
}

func (self *Scheduler) Config() Config { return self.config }

// Stat is not synchronized, call from loop goroutine or after Run returned.
func (self *Scheduler) Stat() Stat { return self.stat }

// Tick is one control loop body. Only Connect may block for long.
func (self *Scheduler) Tick(ctx context.Context) {
	self.stat.Ticks++
	self.pollDispatch()

	if self.hasLast && self.Clock.Now()-self.last < self.config.Interval {
		return
	}

	status := self.link.Status()
	if status.State != link.Connected {
		self.Tele.State(tele.StateLinkDown)
		self.reconnect(ctx)
		// reconnect attempts keep production cadence
		self.markLast()
		return
	}

	self.Tele.State(tele.StateLinkUp)
	self.produce(ctx)
	self.markLast()
}

// Run calls Tick until ctx is done.
func (self *Scheduler) Run(ctx context.Context) {
	self.log.Infof("scheduler run interval=%s tick=%s async=%t backoff_max=%s",
		self.config.Interval, self.config.Tick, self.config.Async, self.config.BackoffMax)
	t := time.NewTimer(self.config.Tick)
	defer t.Stop()
	for {
		self.Tick(ctx)
		if !t.Stop() {
			select {
			case <-t.C:
			default:
			}
		}
		t.Reset(self.config.Tick)
		select {
		case <-ctx.Done():
			self.drain()
			self.log.Infof("scheduler stop %s", self.stat.String())
			return
		case <-t.C:
		}
	}
}

// Once connects if needed, produces and dispatches one reading synchronously.
func (self *Scheduler) Once(ctx context.Context) (vitals.Reading, dispatch.Outcome, error) {
	if self.link.Status().State != link.Connected {
		self.stat.Connects++
		if err := self.link.Connect(ctx); err != nil {
			return vitals.Reading{}, dispatch.Outcome{}, errors.Annotate(err, "once")
		}
	}
	r, err := self.source.Produce(ctx)
	if err != nil {
		return vitals.Reading{}, dispatch.Outcome{}, errors.Annotatef(err, "once source=%s", self.source.String())
	}
	self.stat.Productions++
	self.store(r)
	o := self.dispatcher.Dispatch(ctx, r)
	self.outcome(o)
	return r, o, nil
}

func (self *Scheduler) markLast() {
	self.last = self.Clock.Now()
	self.hasLast = true
}

func (self *Scheduler) reconnect(ctx context.Context) {
	if self.backoff != nil {
		if d := self.backoff.DelayBefore(); d != 0 {
			self.log.Debugf("scheduler link reconnect backoff remaining=%s", d)
			return
		}
	}
	self.stat.Connects++
	err := self.link.Connect(ctx)
	if self.backoff != nil {
		self.backoff.Update(err == nil)
	}
	if err != nil {
		self.log.Error(errors.Annotate(err, "scheduler link"))
		return
	}
	self.Tele.State(tele.StateLinkUp)
	self.log.Infof("scheduler link %s, production resumes next interval", self.link.Status().String())
}

func (self *Scheduler) produce(ctx context.Context) {
	r, err := self.source.Produce(ctx)
	if err != nil {
		self.log.Error(errors.Annotatef(err, "scheduler produce source=%s", self.source.String()))
		return
	}
	self.stat.Productions++
	self.store(r)

	if !self.config.Async {
		self.outcome(self.dispatcher.Dispatch(ctx, r))
		return
	}
	if self.inflight != nil {
		self.stat.Skipped++
		self.log.Infof("scheduler previous dispatch in flight, reading=(%s) not dispatched", r.String())
		return
	}
	f := helpers.NewFuture()
	self.inflight = f
	go func() { f.Complete(self.dispatcher.Dispatch(ctx, r)) }()
}

func (self *Scheduler) store(r vitals.Reading) {
	if self.Latest != nil {
		self.Latest.Store(r, time.Now())
	}
}

// pollDispatch collects async outcome without blocking.
func (self *Scheduler) pollDispatch() {
	if self.inflight == nil || !self.inflight.Done() {
		return
	}
	f := self.inflight
	self.inflight = nil
	self.outcome(f.Result().(dispatch.Outcome))
}

func (self *Scheduler) drain() {
	if self.inflight == nil {
		return
	}
	<-self.inflight.Completed()
	self.pollDispatch()
}

func (self *Scheduler) outcome(o dispatch.Outcome) {
	self.stat.Dispatches++
	if o.Delivered {
		self.stat.Delivered++
		self.log.Debugf("scheduler outcome %s", o.String())
	} else {
		self.stat.Failed++
		self.log.Infof("scheduler outcome %s, reading dropped", o.String())
	}
	d := tele.Delivery{
		Delivered:  o.Delivered,
		Status:     o.Status,
		DurationMs: int64(o.Duration / time.Millisecond),
	}
	if !o.Delivered {
		d.Reason = o.Reason.String()
	}
	if o.Err != nil {
		d.Error = o.Err.Error()
	}
	self.Tele.Dispatched(d)
}
