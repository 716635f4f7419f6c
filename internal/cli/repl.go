package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/jedib0t/go-pretty/v6/text"

	"finpal/internal/agent"
)

// exitWords end a chat session.
var exitWords = map[string]bool{
	"exit":    true,
	"quit":    true,
	"bye":     true,
	"goodbye": true,
}

// IsExitCommand reports whether input ends a chat session.
func IsExitCommand(input string) bool {
	return exitWords[strings.ToLower(strings.TrimSpace(input))]
}

// LineReader yields one line of user input per call. *readline.Instance
// implements it.
type LineReader interface {
	Readline() (string, error)
}

// Chatter answers one chat message.
type Chatter interface {
	Chat(ctx context.Context, sessionID, message string) (*agent.Reply, error)
}

// NewReadline creates a line editor with history kept in the temp dir.
func NewReadline(prompt string) (*readline.Instance, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            prompt,
		HistoryFile:       filepath.Join(os.TempDir(), ".finpal_chat_history"),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline instance: %w", err)
	}
	return rl, nil
}

// ChatLoop is an interactive chat session.
type ChatLoop struct {
	In        LineReader
	Out       io.Writer
	Chat      Chatter
	SessionID string
	// ShowToolCalls prints each tool call before the answer.
	ShowToolCalls bool
}

// Run reads messages until an exit word, EOF or ctx ends. Chat errors are
// printed and the loop continues.
func (l *ChatLoop) Run(ctx context.Context) error {
	fmt.Fprintln(l.Out, text.FgHiBlack.Sprint("Type a message, or 'exit' to quit."))
	for {
		if ctx.Err() != nil {
			return nil
		}

		line, err := l.In.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(l.Out, "Goodbye!")
			return nil
		}
		if err != nil {
			return fmt.Errorf("readline error: %w", err)
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if IsExitCommand(input) {
			fmt.Fprintln(l.Out, "Goodbye!")
			return nil
		}

		reply, err := l.Chat.Chat(ctx, l.SessionID, input)
		if err != nil {
			fmt.Fprintln(l.Out, text.FgRed.Sprint("Sorry, an error occurred: ")+err.Error())
			continue
		}
		if l.ShowToolCalls {
			for _, call := range reply.ToolCalls {
				fmt.Fprintf(l.Out, "%s %s(%s)\n", text.FgHiBlack.Sprint("→"), call.Name, call.Arguments)
			}
		}
		fmt.Fprintln(l.Out, reply.Text)
		fmt.Fprintln(l.Out)
	}
}
