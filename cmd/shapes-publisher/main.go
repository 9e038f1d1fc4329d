// Command shapes-publisher writes one square moving along a sine wave to a
// shapes domain, once per second.
package main

import (
	"os"

	"github.com/jilio/shapes/internal/cli"
)

func main() {
	streams := cli.StdStreams()
	os.Exit(cli.Main(cli.NewPublisherCommand(streams), streams.Err))
}
