package state

import (
	"context"
	"fmt"

	"github.com/temoto/vitals/helpers"
	"github.com/temoto/vitals/helpers/actionlist"
	"github.com/temoto/vitals/log2"
)

// Implemented by subsystems
type Systemer interface {
	String() string
	Start(context.Context) error
	Validate(context.Context) error
	Stop(context.Context) error
}

// Lifecycle runs registered callbacks concurrently per phase.
type Lifecycle struct {
	Log        *log2.Log
	OnValidate actionlist.List
	OnStart    actionlist.List
	OnStop     actionlist.List
}

func NewLifecycle(log *log2.Log) *Lifecycle {
	return &Lifecycle{Log: log}
}

func (self *Lifecycle) RegisterValidate(fun actionlist.Func, tag string) {
	self.OnValidate.Append(fun, tag+":validate")
}
func (self *Lifecycle) RegisterStop(fun actionlist.Func, tag string) {
	self.OnStop.Append(fun, tag+":stop")
}
func (self *Lifecycle) RegisterSystem(s Systemer) {
	self.OnValidate.Append(s.Validate, fmt.Sprintf("sys:%s:validate", s.String()))
	self.OnStart.Append(s.Start, fmt.Sprintf("sys:%s:start", s.String()))
	self.OnStop.Append(s.Stop, fmt.Sprintf("sys:%s:stop", s.String()))
}

func (self *Lifecycle) Validate(ctx context.Context) error {
	self.Log.Debugf("lifecycle validate n=%d", self.OnValidate.Len())
	return helpers.FoldErrors(self.OnValidate.Do(ctx))
}

func (self *Lifecycle) Start(ctx context.Context) error {
	self.Log.Debugf("lifecycle start n=%d", self.OnStart.Len())
	return helpers.FoldErrors(self.OnStart.Do(ctx))
}

func (self *Lifecycle) Stop(ctx context.Context) error {
	self.Log.Debugf("lifecycle stop n=%d", self.OnStop.Len())
	return helpers.FoldErrors(self.OnStop.Do(ctx))
}
