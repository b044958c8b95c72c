// Package dispatch delivers one reading per call to the collector.
//
// Contract:
// - exactly one attempt per Dispatch call, retry is caller's business
// - any HTTP response counts as Delivered unless policy is 2xx
// - no response (dial, DNS, timeout) is Failed with ReasonTransport
// - every attempt is logged
package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

const (
	DefaultTimeout = 3 * time.Second

	maxResponseLog = 4 << 10
)

type Reason int

const (
	ReasonNone Reason = iota
	ReasonTransport
	ReasonApplication
)

func (r Reason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonTransport:
		return "transport"
	case ReasonApplication:
		return "application"
	}
	return fmt.Sprintf("Reason(%d)", int(r))
}

// Policy decides which HTTP responses count as delivered.
type Policy string

const (
	PolicyAny     Policy = "any"
	PolicyStrict2 Policy = "2xx"
)

// Outcome of one attempt. Consumed immediately, never stored.
type Outcome struct {
	Delivered bool
	Status    int // HTTP status, 0 if no response
	Reason    Reason
	Err       error
	Duration  time.Duration
}

func Delivered(status int) Outcome { return Outcome{Delivered: true, Status: status} }
func Failed(reason Reason, status int, err error) Outcome {
	return Outcome{Reason: reason, Status: status, Err: err}
}

func (o Outcome) String() string {
	if o.Delivered {
		return fmt.Sprintf("delivered status=%d", o.Status)
	}
	return fmt.Sprintf("failed reason=%s status=%d err=%v", o.Reason, o.Status, o.Err)
}

// Sender performs one wire attempt of already encoded body.
type Sender interface {
	Send(ctx context.Context, body []byte) Outcome
	Close() error
}

type Config struct {
	Destination Destination
	Timeout     time.Duration
	Policy      Policy
}

type Dispatcher struct {
	dest   Destination
	sender Sender
	log    *log2.Log
}

// New builds dispatcher with production sender for destination kind.
func New(config Config, log *log2.Log) (*Dispatcher, error) {
	if err := config.Destination.Validate(); err != nil {
		return nil, err
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	var sender Sender
	switch config.Destination.Kind {
	case KindBroker, KindDirect:
		policy := config.Policy
		switch policy {
		case "":
			policy = PolicyAny
		case PolicyAny, PolicyStrict2:
		default:
			return nil, errors.NotValidf("collector.success=%q", policy)
		}
		sender = NewHTTPSender(config.Destination, &http.Client{Timeout: config.Timeout}, policy)
	case KindAMQP:
		sender = NewAMQPSender(config.Destination, config.Timeout)
	}
	return NewWithSender(config.Destination, sender, log), nil
}

func NewWithSender(dest Destination, sender Sender, log *log2.Log) *Dispatcher {
	return &Dispatcher{dest: dest, sender: sender, log: log}
}

func (self *Dispatcher) Destination() Destination { return self.dest }

func (self *Dispatcher) Close() error { return self.sender.Close() }

// Dispatch encodes and sends reading once.
func (self *Dispatcher) Dispatch(ctx context.Context, r vitals.Reading) Outcome {
	body, err := self.dest.Encode(r)
	if err != nil {
		// not a delivery problem but reading is lost all the same
		o := Failed(ReasonTransport, 0, err)
		self.log.Errorf("dispatch encode reading=(%s) err=%v", r.String(), err)
		return o
	}
	self.log.Infof("dispatch kind=%s url=%s reading=(%s)", self.dest.Kind, self.dest.URL(), r.String())

	start := time.Now()
	o := self.sender.Send(ctx, body)
	o.Duration = time.Since(start)

	switch {
	case o.Delivered && (o.Status == 0 || o.Status/100 == 2):
		self.log.Infof("dispatch %s duration=%s", o.String(), o.Duration)
	case o.Delivered:
		// application level error, visible but not a delivery failure
		self.log.Infof("dispatch %s duration=%s collector responded non-success", o.String(), o.Duration)
	default:
		self.log.Errorf("dispatch %s duration=%s", o.String(), o.Duration)
	}
	return o
}

type HTTPSender struct {
	dest   Destination
	client *http.Client
	policy Policy
}

var _ Sender = &HTTPSender{}

func NewHTTPSender(dest Destination, client *http.Client, policy Policy) *HTTPSender {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPSender{dest: dest, client: client, policy: policy}
}

func (self *HTTPSender) Close() error {
	self.client.CloseIdleConnections()
	return nil
}

func (self *HTTPSender) Send(ctx context.Context, body []byte) Outcome {
	url := self.dest.URL()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Failed(ReasonTransport, 0, errors.Annotatef(err, "request url=%s", url))
	}
	req.Header.Set("Content-Type", self.dest.ContentType())

	resp, err := self.client.Do(req)
	if err != nil {
		return Failed(ReasonTransport, 0, errors.Annotatef(err, "post url=%s", url))
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseLog))
	// drain for connection reuse
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode <= 0 {
		return Failed(ReasonTransport, resp.StatusCode, errors.Errorf("invalid status=%d", resp.StatusCode))
	}
	if self.policy == PolicyStrict2 && resp.StatusCode/100 != 2 {
		return Failed(ReasonApplication, resp.StatusCode,
			errors.Errorf("collector status=%d response=%s", resp.StatusCode, bytes.TrimSpace(respBody)))
	}
	return Delivered(resp.StatusCode)
}
