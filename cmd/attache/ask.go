package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAskCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ask <request>",
		Short: "Answer a single request and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runOnce(cmd, a, strings.Join(args, " "))
		},
	}
}

func runOnce(cmd *cobra.Command, a *app, text string) error {
	reply, err := a.dispatcher.Handle(cmd.Context(), text)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	return nil
}
