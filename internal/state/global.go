package state

import (
	"context"
	"fmt"
	"io"

	"github.com/juju/errors"
	"github.com/temoto/alive/v2"
	"github.com/temoto/vitals/helpers"
	"github.com/temoto/vitals/internal/dispatch"
	"github.com/temoto/vitals/internal/link"
	"github.com/temoto/vitals/internal/responder"
	"github.com/temoto/vitals/internal/scheduler"
	"github.com/temoto/vitals/internal/tele"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

// Global is explicit home of everything process wide.
// Single writer per field: Init fills them, afterwards read-only
// except Latest (scheduler writes, responder reads).
type Global struct {
	Alive     *alive.Alive
	Config    *Config
	Lifecycle *Lifecycle
	Log       *log2.Log
	Tele      tele.Teler

	Link       *link.Manager
	Source     vitals.Source
	Dispatcher *dispatch.Dispatcher
	Latest     *responder.Latest
	Responder  *responder.Server // nil unless responder.enable
	Scheduler  *scheduler.Scheduler
}

const ContextKey = "run/state-global"

func GetGlobal(ctx context.Context) *Global {
	v := ctx.Value(ContextKey)
	if v == nil {
		panic(fmt.Sprintf("context['%s'] is nil", ContextKey))
	}
	if g, ok := v.(*Global); ok {
		return g
	}
	panic(fmt.Sprintf("context['%s'] expected type *Global actual=%#v", ContextKey, v))
}

func NewContext(log *log2.Log, teler tele.Teler) (context.Context, *Global) {
	if log == nil {
		panic("code error NewContext() log=nil")
	}
	if teler == nil {
		teler = tele.Noop{}
	}

	g := &Global{
		Alive:     alive.NewAlive(),
		Lifecycle: NewLifecycle(log),
		Log:       log,
		Tele:      teler,
		Latest:    &responder.Latest{},
	}
	ctx := context.Background()
	ctx = context.WithValue(ctx, log2.ContextKey, log)
	ctx = context.WithValue(ctx, ContextKey, g)
	return ctx, g
}

// If `Init` fails, consider `Global` is in broken state.
func (g *Global) Init(ctx context.Context, cfg *Config) error {
	g.Config = cfg
	if cfg.Agent.LogDebug {
		g.Log.SetLevel(log2.LDebug)
	}
	if err := cfg.Validate(); err != nil {
		return errors.Annotate(err, "config")
	}

	// Since tele is remote error reporting mechanism, it must be inited before anything else
	if err := g.Tele.Init(ctx, g.Log, cfg.Tele); err != nil {
		return errors.Annotate(err, "tele init")
	}
	g.Log.SetErrorFunc(g.Tele.Error)
	g.Log.Debugf("config: agent.id=%s", cfg.Agent.ID)

	errs := make([]error, 0)

	g.Link = link.NewManager(cfg.LinkConfig(), g.newLinkDriver(), g.Log)

	source, err := g.newSource()
	if err != nil {
		errs = append(errs, err)
	}
	g.Source = source

	g.Dispatcher, err = dispatch.New(cfg.DispatchConfig(), g.Log)
	if err != nil {
		errs = append(errs, errors.Annotate(err, "dispatch"))
	}

	if cfg.Responder.Enable {
		g.Responder = responder.NewServer(cfg.Responder.Listen, g.Latest, g.Log)
	}

	if err := helpers.FoldErrors(errs); err != nil {
		return err
	}
	g.Scheduler = scheduler.New(cfg.SchedulerConfig(), g.Link, g.Source, g.Dispatcher, g.Log)
	g.Scheduler.Latest = g.Latest
	g.Scheduler.Tele = g.Tele

	g.registerSystems()
	return nil
}

func (g *Global) MustInit(ctx context.Context, cfg *Config) {
	err := g.Init(ctx, cfg)
	if err != nil {
		g.Log.Fatal(errors.ErrorStack(err))
	}
}

// Error logs err annotated with optional format and args; the log hook forwards it to tele.
func (g *Global) Error(err error, args ...interface{}) {
	if err != nil {
		if len(args) != 0 {
			msg, ok := args[0].(string)
			if !ok {
				msg = fmt.Sprint(args[0])
			}
			args = args[1:]
			err = errors.Annotatef(err, msg, args...)
		}
		g.Log.Error(err)
	}
}

func (g *Global) newLinkDriver() link.Driver {
	switch g.Config.Link.Driver {
	case LinkDriverSysfs:
		return link.NewSysfs(g.Config.Link.Interface, g.Config.Link.ConnectCommand)
	default:
		g.Log.Infof("warning: link.driver=%s radio is simulated, set link.driver=%s on device", LinkDriverSim, LinkDriverSysfs)
		return link.NewSim(g.Config.Link.SimPolls)
	}
}

func (g *Global) newSource() (vitals.Source, error) {
	switch g.Config.Source.Kind {
	case SourceModbus:
		s, err := vitals.NewModbus(g.Config.ModbusConfig())
		return s, errors.Annotate(err, "source")
	default:
		return vitals.NewSynthetic(g.Config.Source.Seed), nil
	}
}

func (g *Global) registerSystems() {
	l := g.Lifecycle
	l.RegisterValidate(func(context.Context) error { return g.Config.Validate() }, "config")
	if g.Responder != nil {
		l.RegisterSystem(&system{
			name:  "responder",
			start: func(context.Context) error { return g.Responder.Start() },
			stop:  g.Responder.Stop,
		})
	}
	l.RegisterStop(func(context.Context) error { return g.Dispatcher.Close() }, "dispatch")
	if c, ok := g.Source.(io.Closer); ok {
		l.RegisterStop(func(context.Context) error { return c.Close() }, "source")
	}
	l.RegisterStop(func(context.Context) error {
		g.Tele.State(tele.StateStopping)
		g.Tele.Close()
		return nil
	}, "tele")
}

// system adapts plain funcs to Systemer, nil func is no-op.
type system struct {
	name     string
	validate func(context.Context) error
	start    func(context.Context) error
	stop     func(context.Context) error
}

func (s *system) String() string { return s.name }

func (s *system) Validate(ctx context.Context) error { return callOptional(ctx, s.validate) }
func (s *system) Start(ctx context.Context) error    { return callOptional(ctx, s.start) }
func (s *system) Stop(ctx context.Context) error     { return callOptional(ctx, s.stop) }

func callOptional(ctx context.Context, f func(context.Context) error) error {
	if f == nil {
		return nil
	}
	return f(ctx)
}
