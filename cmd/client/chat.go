package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"ulift/internal/roster"
)

var chatHost string

var errChatLost = errors.New("chat connection lost")

var chatCmd = &cobra.Command{
	Use:   "chat NAME",
	Short: "Log into the chat and print the roster until interrupted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := strings.TrimSpace(args[0])
		if name == "" {
			return fmt.Errorf("name required")
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		l := roster.NewListener(roster.Options{
			URL:    roster.ChatAddress(chatHost, cfg.Chat.Port, cfg.Chat.Path, cfg.Chat.Secure),
			Logger: logger,
		})
		return watchRoster(ctx, l, name, cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatHost, "host", "localhost", "host serving the uLift pages")
}

// watchRoster logs in under name and prints every roster until ctx ends or
// the chat service drops the connection.
func watchRoster(ctx context.Context, l *roster.Listener, name string, out io.Writer) error {
	defer l.Close()

	updates, cancel := l.State().Subscribe()
	defer cancel()

	if err := l.Open(ctx); err != nil {
		return err
	}
	if err := l.Login(ctx, name); err != nil {
		return err
	}
	fmt.Fprintf(out, "logged in as %s, waiting for users (Ctrl+C to quit)\n", name)

	lost := l.Done()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-lost:
			return errChatLost
		case users := <-updates:
			fmt.Fprintf(out, "online (%d): %s\n", len(users), strings.Join(users, ", "))
		}
	}
}
