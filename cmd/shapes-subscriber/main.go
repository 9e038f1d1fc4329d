// Command shapes-subscriber shows the squares published on a shapes domain,
// one row per color, with instance lifecycle changes logged below.
package main

import (
	"os"

	"github.com/jilio/shapes/internal/cli"
)

func main() {
	streams := cli.StdStreams()
	os.Exit(cli.Main(cli.NewSubscriberCommand(streams), streams.Err))
}
