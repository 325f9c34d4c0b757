package shell

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
)

func defaultCommands() []*Command {
	return []*Command{
		{
			Name:  "chat",
			Usage: "chat [text...]",
			Help:  "Send the text to the chat client, " + DefaultChatText + " by default",
			Run:   runChat,
		},
		{
			Name:  "tools",
			Usage: "tools",
			Help:  "List the tools of the MCP servers",
			Run:   runTools,
		},
		{
			Name:  "call",
			Usage: "call <tool> [json]",
			Help:  "Call the tool with the JSON arguments",
			Run:   runCall,
		},
		{
			Name:  "reset",
			Usage: "reset",
			Help:  "Remove the chat history",
			Run:   runReset,
		},
		{
			Name:  "help",
			Usage: "help [command]",
			Help:  "Show the commands",
			Run:   runHelp,
		},
		{
			Name:  "exit",
			Usage: "exit",
			Help:  "Exit the shell",
			Run:   runExit,
		},
		{
			Name:  "quit",
			Usage: "quit",
			Help:  "Exit the shell",
			Run:   runExit,
		},
	}
}

// runChat writes the chat content unchanged
func runChat(ctx context.Context, s *Shell, args []string, out io.Writer) error {
	// the default applies only when the text is omitted
	text := DefaultChatText
	if len(args) > 0 {
		text = strings.Join(args, " ")
	}
	content, err := s.handler.Chat(ctx, text)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, content)
	return errors.WithStack(err)
}

func runTools(ctx context.Context, s *Shell, _ []string, out io.Writer) error {
	list, err := s.handler.Tools(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Fprintln(out, "No tools")
		return nil
	}
	for _, tool := range list {
		descr, _, _ := strings.Cut(strings.TrimSpace(tool.Description()), "\n")
		fmt.Fprintf(out, "%s: %s\n", tool.Name(), descr)
	}
	return nil
}

func runCall(ctx context.Context, s *Shell, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New("usage: call <tool> [json]")
	}
	input := strings.Join(args[1:], " ")
	if strings.TrimSpace(input) == "" {
		input = "{}"
	}
	res, err := s.handler.CallTool(ctx, args[0], input)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, res)
	return errors.WithStack(err)
}

func runReset(ctx context.Context, s *Shell, _ []string, out io.Writer) error {
	if err := s.handler.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Chat history removed")
	return nil
}

func runHelp(_ context.Context, s *Shell, args []string, out io.Writer) error {
	if len(args) > 0 {
		cmd, ok := s.commands[strings.ToLower(args[0])]
		if !ok {
			return errors.Wrapf(ErrUnknownCommand, "%q", args[0])
		}
		fmt.Fprintf(out, "%s\n  %s\n", cmd.Usage, cmd.Help)
		return nil
	}

	fmt.Fprintln(out, "Commands:")
	for _, cmd := range s.Commands() {
		fmt.Fprintf(out, "  %-20s %s\n", cmd.Usage, cmd.Help)
	}
	return nil
}

func runExit(context.Context, *Shell, []string, io.Writer) error {
	return ErrExit
}
