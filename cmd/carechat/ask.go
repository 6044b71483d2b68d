package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var askCmd = &cobra.Command{
	Use:   "ask <message>",
	Short: "Send one message in a new conversation and print the reply",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		driver, err := newDriver()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		session, err := driver.CreateConversation(ctx)
		if err != nil {
			return err
		}

		reply, err := driver.SendAndAwaitReply(ctx, session, strings.Join(args, " "))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), reply)
		return nil
	},
}
