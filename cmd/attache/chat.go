package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newChatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Chat with the assistant interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := buildApp()
			if err != nil {
				return err
			}
			defer a.Close()
			return runChat(cmd, a)
		},
	}
}

func runChat(cmd *cobra.Command, a *app) error {
	out := cmd.OutOrStdout()
	printBanner(out)
	printStatus(out, a)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(out, green("You: "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch strings.ToLower(line) {
		case "quit", "exit":
			fmt.Fprintln(out, "Goodbye!")
			return nil
		case "help":
			printHelp(out)
			continue
		case "status":
			printStatus(out, a)
			continue
		case "clear":
			fmt.Fprint(out, "\033[2J\033[H")
			printBanner(out)
			continue
		}

		reply, err := a.dispatcher.Handle(cmd.Context(), line)
		if err != nil {
			a.log.Error().Err(err).Msg("handle failed")
			fmt.Fprintf(out, "%s something went wrong, please try again\n\n", red("Attaché:"))
			continue
		}
		fmt.Fprintf(out, "%s %s\n\n", cyan("Attaché:"), reply)
	}
}

func printBanner(w io.Writer) {
	fmt.Fprintln(w, cyan(`
  ╭─────────────────────────────────────────────╮
  │  Attaché · email · WhatsApp · LinkedIn      │
  │  type 'help' for commands, 'quit' to leave  │
  ╰─────────────────────────────────────────────╯`))
}

func printStatus(w io.Writer, a *app) {
	fmt.Fprintf(w, "%s %s\n", bold("model:"), a.model)
	for _, name := range a.active {
		fmt.Fprintf(w, "  %s %s\n", green("●"), name)
	}
	for _, name := range a.inactive {
		fmt.Fprintf(w, "  %s %s (no credentials)\n", yellow("○"), name)
	}
	fmt.Fprintf(w, "%s %d\n\n", bold("actions:"), len(a.dispatcher.Actions()))
}

func printHelp(w io.Writer) {
	fmt.Fprintln(w, bold("Try things like:"))
	fmt.Fprintln(w, `  send an email to sam@example.com about friday's demo
  how many unread emails do I have?
  search emails for the travel itinerary
  whatsapp +66 81 234 5678 that I'm running late
  post on linkedin: shipped a new release today
  show my linkedin profile`)
	fmt.Fprintf(w, "%s help · status · clear · quit\n\n", bold("Commands:"))
}
