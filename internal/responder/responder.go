// Package responder serves the most recent reading to pull clients.
package responder

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/juju/errors"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

const (
	Path          = "/vitals"
	DefaultListen = ":80"
)

type latestValue struct {
	reading  vitals.Reading
	produced time.Time
}

// Latest is single-slot holder of last produced reading.
// Single writer (scheduler), many readers (HTTP handlers).
type Latest struct {
	v atomic.Value // latestValue
}

func (self *Latest) Store(r vitals.Reading, produced time.Time) {
	self.v.Store(latestValue{reading: r, produced: produced})
}

// Load returns ok=false until first Store.
func (self *Latest) Load() (r vitals.Reading, produced time.Time, ok bool) {
	lv, ok := self.v.Load().(latestValue)
	if !ok {
		return vitals.Reading{}, time.Time{}, false
	}
	return lv.reading, lv.produced, true
}

// Handler answers GET with latest reading JSON or 204 before first production.
func Handler(latest *Latest, log *log2.Log) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet && req.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		r, produced, ok := latest.Load()
		if !ok {
			log.Debugf("responder %s no reading yet", req.RemoteAddr)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		b, err := json.Marshal(r)
		if err != nil {
			log.Errorf("responder encode err=%v", err)
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		if !produced.IsZero() {
			w.Header().Set("Last-Modified", produced.UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(http.StatusOK)
		if req.Method == http.MethodGet {
			_, _ = w.Write(b)
		}
		log.Debugf("responder %s served reading=(%s)", req.RemoteAddr, r.String())
	})
}

type Server struct {
	log    *log2.Log
	srv    *http.Server
	ln     net.Listener
	doneCh chan struct{}
}

func NewServer(listen string, latest *Latest, log *log2.Log) *Server {
	if listen == "" {
		listen = DefaultListen
	}
	mux := http.NewServeMux()
	mux.Handle(Path, Handler(latest, log))
	return &Server{
		log: log,
		srv: &http.Server{
			Addr:              listen,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      5 * time.Second,
		},
	}
}

// Start binds listener synchronously so errors surface at startup,
// then serves on background goroutine.
func (self *Server) Start() error {
	ln, err := net.Listen("tcp", self.srv.Addr)
	if err != nil {
		return errors.Annotatef(err, "responder listen=%s", self.srv.Addr)
	}
	self.ln = ln
	self.doneCh = make(chan struct{})
	self.log.Infof("responder listen=%s path=%s", ln.Addr().String(), Path)
	go func() {
		defer close(self.doneCh)
		if err := self.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			self.log.Errorf("responder serve err=%v", err)
		}
	}()
	return nil
}

// Addr is bound listener address, valid after Start.
func (self *Server) Addr() string {
	if self.ln == nil {
		return self.srv.Addr
	}
	return self.ln.Addr().String()
}

func (self *Server) Stop(ctx context.Context) error {
	if self.doneCh == nil {
		return nil
	}
	err := self.srv.Shutdown(ctx)
	<-self.doneCh
	return errors.Annotate(err, "responder shutdown")
}
