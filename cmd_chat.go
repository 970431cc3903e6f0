package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chative-food/server/internal/agent/graph"
	"github.com/chative-food/server/internal/agent/model"
	errx "github.com/chative-food/server/internal/core/error"
	"github.com/chative-food/server/internal/domain"
)

var chatPhone string

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Chat with the assistant from the terminal",
	Long:  "chat reads one message per line from stdin and prints each reply. Type /reset to start over or /exit to quit.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !domain.ValidCustomerPhone(chatPhone) {
			return fmt.Errorf("invalid --phone %q", chatPhone)
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		a, err := newApp(ctx, cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		runner, err := a.runner(ctx)
		if err != nil {
			return err
		}

		s := &chatSession{
			phone:  chatPhone,
			runner: runner,
			reset:  a.reset,
		}
		return s.run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	chatCmd.Flags().StringVar(&chatPhone, "phone", "+919589883539", "phone number identifying the conversation")
}

// reset clears the stored conversation and any draft for phone.
func (a *app) reset(ctx context.Context, phone string) error {
	if err := a.history.ClearHistory(ctx, phone); err != nil {
		return err
	}
	if err := a.drafts.Discard(ctx, phone); err != nil && !errors.Is(err, errx.ErrNoActiveDraft) {
		return err
	}
	return nil
}

type chatSession struct {
	phone  string
	runner graph.Runner
	reset  func(ctx context.Context, phone string) error
}

func (s *chatSession) run(ctx context.Context, r io.Reader, out io.Writer) error {
	in := bufio.NewScanner(r)
	fmt.Fprintf(out, "Chatting as %s. Type /reset to start over or /exit to quit.\n> ", s.phone)
	for in.Scan() {
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			fmt.Fprint(out, "> ")
			continue
		case "/exit", "/quit":
			return nil
		case "/reset":
			if err := s.reset(ctx, s.phone); err != nil {
				return err
			}
			fmt.Fprint(out, "Conversation cleared.\n> ")
			continue
		}

		res, err := s.runner.Invoke(ctx, model.QueryInput{ConversationID: s.phone, Query: line})
		if err != nil {
			fmt.Fprintf(out, "! %s (%v)\n> ", errx.TurnFailedMessage, err)
			continue
		}
		fmt.Fprintf(out, "%s\n> ", res.Reply)
	}
	return in.Err()
}
