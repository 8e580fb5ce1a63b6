// Package cmd implements tradecored's command-line surface: a cobra root
// command carrying the shared --config flag and a serve subcommand that
// runs the matching/ledger/account/wallet/admin stack until signaled,
// in the style of VictorVVedtion-perp-dex/cmd/perpdexd/cmd's root+subcommand
// shape and web3guy0-polybot/cmd/polybot/main.go's logging/config wiring
// order.
package cmd

import (
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// exitCode classifies a fatal error by the exit code it should produce
// (spec §6: "0 normal, 1 configuration error, 2 persistence unavailable, 3
// engine halted on fatal alert").
type exitCode int

const (
	exitOK exitCode = iota
	exitConfigError
	exitPersistenceUnavailable
	exitEngineHalted
)

// codedError pairs an error with the process exit code it should produce.
type codedError struct {
	code exitCode
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "tradecored",
		Short:         "tradecored runs the matching engine and account ledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.AddCommand(newServeCmd(&configPath))
	return root
}

// Execute runs the root command and returns the process exit code dictated
// by spec §6, logging the triggering error at error level first.
func Execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		var ce *codedError
		if errors.As(err, &ce) {
			log.Error().Err(ce.err).Int("exit_code", int(ce.code)).Msg("tradecored exiting")
			return int(ce.code)
		}
		log.Error().Err(err).Msg("tradecored exiting")
		return int(exitConfigError)
	}
	return int(exitOK)
}
