// Package cli holds the cobra commands of the shapes publisher and
// subscriber and the bootstrap code they share.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jilio/shapes/internal/config"
)

// Version is reported by --version.
var Version = "dev"

// Streams are the standard streams a command talks to.
type Streams struct {
	In  *os.File
	Out io.Writer
	Err io.Writer
}

// StdStreams returns the process streams.
func StdStreams() Streams {
	return Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
}

// ApplicationError is a failure while the application was running, as
// opposed to a usage error.
type ApplicationError struct {
	Application string
	Err         error
}

func (e *ApplicationError) Error() string {
	return fmt.Sprintf("Exception in run_%s_application(): %v", e.Application, e.Err)
}

func (e *ApplicationError) Unwrap() error {
	return e.Err
}

// commonOptions are the flags both commands accept.
type commonOptions struct {
	domainID    uint32
	sampleCount uint64
	configPath  string
	transport   string
	busDir      string
	busURL      string
	verbosity   string
	telemetry   bool
	writeConfig string
}

func (o *commonOptions) addFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Uint32VarP(&o.domainID, "domain-id", "d", 0, "domain id")
	f.Uint64VarP(&o.sampleCount, "sample-count", "s", 0, "number of samples to process, 0 means unlimited")
	f.StringVar(&o.configPath, "config", config.DefaultPath, "configuration file")
	f.StringVar(&o.transport, "transport", "", "bus transport (memory, sqlite, http)")
	f.StringVar(&o.busDir, "bus-dir", "", "directory of the sqlite bus databases")
	f.StringVar(&o.busURL, "bus-url", "", "base URL of the durable streams server")
	f.StringVarP(&o.verbosity, "verbosity", "v", "", "logging verbosity (silent, exception, warning, status_local, status_remote, status_all)")
	f.BoolVar(&o.telemetry, "telemetry", false, "export traces and metrics to the telemetry file")
	f.StringVar(&o.writeConfig, "write-config", "", "write the effective configuration to this file and exit")
}

// loadConfig reads the configuration file and applies the flags the user
// set on top of it.
func (o *commonOptions) loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}

	f := cmd.Flags()
	if f.Changed("transport") {
		cfg.Bus.Transport = o.transport
	}
	if f.Changed("bus-dir") {
		cfg.Bus.Dir = o.busDir
	}
	if f.Changed("bus-url") {
		cfg.Bus.URL = o.busURL
	}
	if f.Changed("verbosity") {
		cfg.Logging.Level = o.verbosity
	}
	if f.Changed("telemetry") {
		cfg.Telemetry.Enabled = o.telemetry
	}
	return cfg, nil
}

// writeConfigIfAsked saves cfg when --write-config was given and reports
// whether the command should stop there.
func (o *commonOptions) writeConfigIfAsked(cmd *cobra.Command, cfg *config.Config) (bool, error) {
	if o.writeConfig == "" {
		return false, nil
	}
	if err := cfg.Save(o.writeConfig); err != nil {
		return true, err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote configuration to %s\n", o.writeConfig)
	return true, nil
}
