package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive conversation",
	RunE:  runChat,
}

// sender delivers one user message and returns the assistant's reply.
type sender func(ctx context.Context, text string) (string, error)

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	var send sender
	if server != "" {
		client, err := DialServer(ctx, server)
		if err != nil {
			return err
		}
		defer client.Close()
		send = client.Send
		logger.Debug("connected to server", zap.String("session_id", client.SessionID))
	} else {
		driver, err := newDriver()
		if err != nil {
			return err
		}
		session, err := driver.CreateConversation(ctx)
		if err != nil {
			return err
		}
		send = func(ctx context.Context, text string) (string, error) {
			return driver.SendAndAwaitReply(ctx, session, text)
		}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, statusStyle.Render("Type a message and press Enter. /quit to exit."))
	return chatLoop(ctx, cmd.InOrStdin(), out, send)
}

// chatLoop reads one message per line until EOF, /quit or cancellation.
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, send sender) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "/quit" {
			return nil
		}

		reply, err := send(ctx, input)
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			fmt.Fprintln(out, errorStyle.Render(err.Error()))
			continue
		}
		fmt.Fprintln(out, replyStyle.Render(reply))
	}
}
