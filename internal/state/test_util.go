package state

import (
	"context"
	"testing"

	"github.com/temoto/vitals/internal/tele"
	"github.com/temoto/vitals/log2"
)

// NewTestContext builds Global from inline HCL config with sim link,
// Noop tele and log routed to t.Logf.
func NewTestContext(t testing.TB, confString string) (context.Context, *Global) {
	fs := NewMockFullReader(map[string]string{
		"test-inline": confString,
	})

	log := log2.NewTest(t, log2.LDebug)
	// log := log2.NewStderr(log2.LDebug) // useful with panics
	log.SetFlags(log2.LTestFlags)
	ctx, g := NewContext(log, tele.Noop{})
	g.MustInit(ctx, MustReadConfig(log, fs, "test-inline"))
	return ctx, g
}
