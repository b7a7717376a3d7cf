package main

import (
	"fmt"

	kratosecho "github.com/atjeff/kratos-echo"

	"github.com/spf13/cobra"
)

var keyLive bool

var keyCmd = &cobra.Command{
	Use:   "key <host>",
	Short: "Print a publishable key for a Kratos host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := kratosecho.KeyTest
		if keyLive {
			kind = kratosecho.KeyLive
		}
		key := kratosecho.EncodeKey(kind, args[0])
		if _, err := kratosecho.ParseKey(key); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), key)
		return err
	},
}

func init() {
	keyCmd.Flags().BoolVar(&keyLive, "live", false, "print a pk_live_ key")
}
