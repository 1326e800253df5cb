// Command rouch runs a one-shot pull replication from SOURCE to TARGET,
// both CouchDB-compatible database URLs.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/rouchdb/replicator"
	"github.com/rouchdb/replicator/logger"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rouch SOURCE TARGET",
		Short:         "Pull-replicate a CouchDB-compatible database",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			source, target := args[0], args[1]

			if _, err := url.ParseRequestURI(source); err != nil {
				return fmt.Errorf("invalid source url: %w", err)
			}
			if _, err := url.ParseRequestURI(target); err != nil {
				return fmt.Errorf("invalid target url: %w", err)
			}

			log := logrus.New()
			log.SetLevel(logrus.DebugLevel)

			r, err := replicator.New(source, target)
			if err != nil {
				return err
			}
			r.SetLogger(logger.NewLogrus(log))

			return r.Pull(context.Background())
		},
	}

	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
