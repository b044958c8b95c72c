package tele

import (
	"context"

	tele_config "github.com/temoto/vitals/internal/tele/config"
	"github.com/temoto/vitals/log2"
)

// Tele transport contract:
// - Init fails only with invalid config, ignores network errors
// - application may start without network available
// - Send* return within network timeout, false means message is lost
// - no store and forward, status is best effort
// - onConnect is called after every (re)connect, retained state may be stale then
type Transporter interface {
	Init(ctx context.Context, log *log2.Log, teleConfig tele_config.Config, willPayload []byte, onConnect func()) error
	SendState(payload []byte) bool
	SendEvent(payload []byte) bool
	Close()
}
