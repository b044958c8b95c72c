// vitals is device-resident telemetry agent: keeps wireless link up,
// produces vitals reading every interval and relays it to collector.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/juju/errors"
)

var BuildVersion string = "unknown" // set by ldflags -X

func main() {
	root := newRootCmd()
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", errors.ErrorStack(err))
		os.Exit(1)
	}
}
