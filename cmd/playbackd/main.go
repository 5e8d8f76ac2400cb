// Command playbackd plays a project headless: audio goes to a simulated or
// recording device and frames go to a remote preview or a snapshot file.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configDir string
	logsDir   string
	logLevel  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:   "playbackd",
		Short: "Headless playback engine for reelcut projects",
		Long: `playbackd loads a YAML project and runs the playback engine against it:
the audio server drives the clock into an output device and the frame
server renders the frames under the playhead.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.configDir, "config", "c", ".",
		"Directory containing playback.cfg.json")
	root.PersistentFlags().StringVar(&opts.logsDir, "logs-dir", "",
		"Directory for the session log (overrides logsDir; empty uses config)")
	root.PersistentFlags().StringVarP(&opts.logLevel, "log-level", "l", "",
		"Log level: debug, info, warn or error (empty uses config)")

	root.AddCommand(newPlayCmd(opts))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
