package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/daemon"
	"github.com/juju/errors"
	"github.com/spf13/cobra"
	"github.com/temoto/vitals/helpers"
	"github.com/temoto/vitals/internal/state"
	"github.com/temoto/vitals/internal/tele"
	"github.com/temoto/vitals/internal/vitals"
	"github.com/temoto/vitals/log2"
)

const stopTimeout = 10 * time.Second

type options struct {
	configPath string
	debug      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "vitals",
		Short:         "vitals telemetry agent",
		Version:       BuildVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "vitals.hcl", "config file, .hcl or .yaml")
	root.PersistentFlags().BoolVar(&opts.debug, "debug", false, "debug log level")
	root.AddCommand(newRunCmd(opts), newOnceCmd(opts), newConfigCmd(opts))
	return root
}

func newLog(w io.Writer, opts *options, underSystemd bool) *log2.Log {
	log := log2.NewWriter(w, log2.LInfo)
	if opts.debug {
		log.SetLevel(log2.LDebug)
	}
	if w == os.Stderr {
		log.SetFlags(log2.ServiceFlags(underSystemd))
	}
	return log
}

func setup(log *log2.Log, opts *options, teler tele.Teler) (context.Context, *state.Global, error) {
	config, err := state.ReadConfig(log, state.NewOsFullReader(), opts.configPath)
	if err != nil {
		return nil, nil, errors.Annotate(err, "config")
	}
	ctx, g := state.NewContext(log, teler)
	if err := g.Init(ctx, config); err != nil {
		return nil, nil, err
	}
	return ctx, g, nil
}

func newRunCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "run control loop until SIGINT/SIGTERM",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			// we're under systemd, assume systemd journal logging, remove timestamp
			underSystemd := sdnotify("start")
			log := newLog(cmd.ErrOrStderr(), opts, underSystemd)
			log.Infof("vitals version=%s", BuildVersion)

			ctx, g, err := setup(log, opts, tele.New())
			if err != nil {
				return err
			}
			if err := g.Lifecycle.Validate(ctx); err != nil {
				return errors.Annotate(err, "validate")
			}
			if err := g.Lifecycle.Start(ctx); err != nil {
				return errors.Annotate(err, "start")
			}
			sdnotify(daemon.SdNotifyReady)

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case sig := <-sigCh:
					log.Infof("signal=%v stopping", sig)
					g.Alive.Stop()
				case <-g.Alive.StopChan():
				}
			}()

			runCtx, cancel := helpers.AliveContext(ctx, g.Alive)
			defer cancel()
			g.Alive.Add(1)
			g.Scheduler.Run(runCtx)
			g.Alive.Done()
			g.Alive.Stop()

			sdnotify(daemon.SdNotifyStopping)
			stopCtx, stopCancel := context.WithTimeout(ctx, stopTimeout)
			defer stopCancel()
			err = g.Lifecycle.Stop(stopCtx)
			g.Alive.Wait()
			return errors.Annotate(err, "stop")
		},
	}
}

type onceResult struct {
	Agent     string          `json:"agent"`
	Reading   *vitals.Reading `json:"reading,omitempty"`
	Delivered bool            `json:"delivered"`
	Status    int             `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`
	Duration  string          `json:"duration"`
}

func newOnceCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "connect, produce and dispatch one reading, print outcome",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLog(cmd.ErrOrStderr(), opts, false)
			ctx, g, err := setup(log, opts, tele.Noop{})
			if err != nil {
				return err
			}
			defer func() {
				g.Error(g.Lifecycle.Stop(ctx), "lifecycle stop")
			}()

			r, o, onceErr := g.Scheduler.Once(ctx)
			result := onceResult{
				Agent:     g.Config.Agent.ID,
				Delivered: o.Delivered,
				Status:    o.Status,
				Duration:  o.Duration.String(),
			}
			switch {
			case onceErr != nil: // no reading produced
				result.Error = onceErr.Error()
			case o.Err != nil:
				result.Reading = &r
				result.Error = o.Err.Error()
			default:
				result.Reading = &r
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return errors.Trace(err)
			}
			if onceErr != nil {
				return onceErr
			}
			if !o.Delivered {
				return errors.Errorf("dispatch %s", o.String())
			}
			return nil
		},
	}
}

func newConfigCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "print effective configuration, secrets masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log := newLog(cmd.ErrOrStderr(), opts, false)
			config, err := state.ReadConfig(log, state.NewOsFullReader(), opts.configPath)
			if err != nil {
				return errors.Annotate(err, "config")
			}
			b, err := config.Masked().YAML()
			if err != nil {
				return err
			}
			if _, err := cmd.OutOrStdout().Write(b); err != nil {
				return errors.Trace(err)
			}
			return errors.Annotate(config.Validate(), "config invalid")
		},
	}
}

func sdnotify(s string) bool {
	ok, err := daemon.SdNotify(false, s)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sdnotify:", errors.ErrorStack(err))
	}
	return ok
}
