package main

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/TheMichaelB/credvault/internal/dbconn"
	"github.com/TheMichaelB/credvault/internal/events"
	"github.com/TheMichaelB/credvault/internal/secure"
)

var pingCmd = &cobra.Command{
	Use:   "ping <profile>",
	Short: "Connect to a profile's database and check it responds",
	Example: `  credvault ping reporting
  CREDVAULT_KEY=... credvault ping reporting --timeout 3s`,
	Args: cobra.ExactArgs(1),
	RunE: runPing,
}

var pingTimeout time.Duration

func init() {
	rootCmd.AddCommand(pingCmd)

	pingCmd.Flags().DurationVar(&pingTimeout, "timeout", dbconn.DefaultPingTimeout,
		"Give up after this long")
}

func runPing(cmd *cobra.Command, args []string) error {
	p, err := store.Get(args[0])
	if err != nil {
		return err
	}

	ctx := events.WithProfile(cmd.Context(), p.Name)
	events.FromContext(ctx).WithField("timeout", pingTimeout.String()).Debug("Pinging database")
	conn := connector.WithPingTimeout(pingTimeout)

	var latency time.Duration
	err = withKey(p.Password.Source, func(key *secure.Buffer) error {
		var err error
		latency, err = conn.Ping(ctx, p, key)
		return err
	})

	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(map[string]interface{}{
			"success":    true,
			"profile":    p.Name,
			"latency_ms": latency.Milliseconds(),
		})
		return nil
	}
	printSuccess("%s is reachable (%s)", p.Name, latency.Round(time.Millisecond))
	return nil
}
