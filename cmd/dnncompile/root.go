package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.New()

var logLevel string

// NewRootCmd builds the dnncompile command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dnncompile",
		Short: "Ahead-of-time compiler for a systolic-array CNN accelerator",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			log.SetLevel(lvl)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "logrus level (debug, info, warn, error)")

	cmd.AddCommand(newCompileCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBenchCmd())

	return cmd
}
