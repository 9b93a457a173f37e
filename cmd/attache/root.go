package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	cyan   = color.New(color.FgCyan).SprintFunc()
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "attache",
		Short: "Personal assistant for email, WhatsApp and LinkedIn",
		Long: `Attaché turns plain requests like "send an email to sam about the offsite"
into real service calls. Email, WhatsApp and LinkedIn switch on based on
which credentials are present in the environment (or a .env file).`,
		Example: `  attache                          interactive chat
  attache read my recent emails    one-shot request
  attache serve                    HTTP API on :8000`,
		Args:         cobra.ArbitraryArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()
			if len(args) > 0 {
				return runOnce(cmd, a, strings.Join(args, " "))
			}
			return runChat(cmd, a)
		},
	}

	root.AddCommand(newChatCommand())
	root.AddCommand(newAskCommand())
	root.AddCommand(newServeCommand())
	return root
}
