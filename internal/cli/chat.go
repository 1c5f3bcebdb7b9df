package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-query-pipeline/integrations/chatstores/sqlite"
	"github.com/askiada/go-query-pipeline/internal/config"
	"github.com/askiada/go-query-pipeline/pkg/chatstore"
	"github.com/askiada/go-query-pipeline/pkg/llm"
)

// ErrChatAction is returned when chat gets no message and no action flag.
var ErrChatAction = errors.New("a message or an action flag is required")

type chatFlags struct {
	session string
	system  string
	history bool
	list    bool
	reset   bool
	undo    bool
	drop    int
}

func newChatCmd(a *app) *cobra.Command {
	flags := &chatFlags{}

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the configured model, keeping the conversation in the sqlite chat store",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.chat(cmd, args, flags)
		},
	}

	cmd.Flags().StringVarP(&flags.session, "session", "s", "default", "Conversation key")
	cmd.Flags().StringVar(&flags.system, "system", "", "System prompt of a new conversation")
	cmd.Flags().BoolVar(&flags.history, "history", false, "Print the conversation")
	cmd.Flags().BoolVar(&flags.list, "list", false, "List the conversation keys")
	cmd.Flags().BoolVar(&flags.reset, "reset", false, "Delete the conversation")
	cmd.Flags().BoolVar(&flags.undo, "undo", false, "Delete the last question and its answer")
	cmd.Flags().IntVar(&flags.drop, "drop", -1, "Delete the message at this position")

	return cmd
}

func openChatStore(ctx context.Context, cfg config.Store) (*sqlite.SQLiteChatStore, error) {
	store, err := sqlite.Open(ctx, cfg.Path, sqlite.WithTable(cfg.ChatTable))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open chat store %s", cfg.Path)
	}

	return store, nil
}

func (a *app) chat(cmd *cobra.Command, args []string, flags *chatFlags) (err error) {
	ctx := cmd.Context()

	store, err := openChatStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			err = multierror.Append(err, cerr).ErrorOrNil()
		}
	}()

	switch {
	case flags.list:
		return listChats(ctx, cmd, store)
	case flags.history:
		return printChat(ctx, cmd, store, flags.session)
	case flags.reset:
		msgs, err := store.DeleteMessages(ctx, flags.session)
		if err != nil {
			return err
		}
		a.status(cmd, color.FgGreen, "Deleted %d messages of %s", len(msgs), flags.session)

		return nil
	case flags.undo:
		return a.undoChat(ctx, cmd, store, flags.session)
	case flags.drop >= 0:
		msg, err := store.DeleteMessage(ctx, flags.session, flags.drop)
		if err != nil {
			return err
		}
		if msg == nil {
			a.status(cmd, color.FgYellow, "No message %d in %s", flags.drop, flags.session)

			return nil
		}
		a.status(cmd, color.FgGreen, "Deleted %s message %d of %s", msg.Role, flags.drop, flags.session)

		return nil
	case len(args) == 0:
		return ErrChatAction
	}

	model, err := newLLM(a.cfg.LLM)
	if err != nil {
		return err
	}

	answer, err := converse(ctx, store, model, flags.session, flags.system, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), answer.Content) //nolint:errcheck

	return nil
}

// converse sends the conversation key followed by question to model and stores the question
// and the answer. The system prompt only starts a new conversation.
func converse(ctx context.Context, store chatstore.ChatStore, model llm.LLM, key, system, question string) (*llm.ChatMessage, error) {
	history, err := store.GetMessages(ctx, key)
	if err != nil {
		return nil, err
	}

	if len(history) == 0 && system != "" {
		history = []llm.ChatMessage{{Role: llm.RoleSystem, Content: system}}

		err = store.SetMessages(ctx, key, history)
		if err != nil {
			return nil, err
		}
	}

	userMsg := llm.ChatMessage{Role: llm.RoleUser, Content: question}

	resp, err := model.Chat(ctx, append(history, userMsg))
	if err != nil {
		return nil, errors.Wrap(err, "unable to chat")
	}

	for _, msg := range []llm.ChatMessage{userMsg, resp.Message} {
		err = store.AddMessage(ctx, key, msg)
		if err != nil {
			return nil, err
		}
	}

	return &resp.Message, nil
}

func (a *app) undoChat(ctx context.Context, cmd *cobra.Command, store chatstore.ChatStore, key string) error {
	msgs, err := store.GetMessages(ctx, key)
	if err != nil {
		return err
	}

	removed := 0
	for i := len(msgs) - 1; i >= 0 && removed < 2 && msgs[i].Role != llm.RoleSystem; i-- {
		_, err = store.DeleteLastMessage(ctx, key)
		if err != nil {
			return err
		}
		removed++
	}

	a.status(cmd, color.FgGreen, "Deleted %d messages of %s", removed, key)

	return nil
}

func listChats(ctx context.Context, cmd *cobra.Command, store chatstore.ChatStore) error {
	keys, err := store.GetKeys(ctx)
	if err != nil {
		return err
	}

	for _, key := range keys {
		fmt.Fprintln(cmd.OutOrStdout(), key) //nolint:errcheck
	}

	return nil
}

func printChat(ctx context.Context, cmd *cobra.Command, store chatstore.ChatStore, key string) error {
	msgs, err := store.GetMessages(ctx, key)
	if err != nil {
		return err
	}

	roleColor := color.New(color.FgCyan)
	for _, msg := range msgs {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", roleColor.Sprint(msg.Role), msg.Content) //nolint:errcheck
	}

	return nil
}
