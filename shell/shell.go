package shell

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/chzyer/readline"
	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/chatmodel"
	"github.com/effective-security/mcpchat/tools"
	"github.com/effective-security/xlog"
	"github.com/google/shlex"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "shell")

// DefaultChatText is sent by the chat command without arguments
const DefaultChatText = "Hello MCP Client"

// DefaultPrompt is the prompt of the interactive shell
const DefaultPrompt = "shell:> "

var (
	// ErrExit is returned by the exit and quit commands
	ErrExit = errors.New("exit")
	// ErrUnknownCommand is returned for the command not in the command table
	ErrUnknownCommand = errors.New("unknown command")
)

//go:generate mockgen -source=shell.go -destination=../mocks/mockshell/shell_mock.gen.go -package mockshell

// Handler executes the commands of the shell
type Handler interface {
	// Chat sends the text to the chat client and returns its content
	Chat(ctx context.Context, text string) (string, error)
	// Tools returns the tools of the MCP servers
	Tools(ctx context.Context) ([]tools.ITool, error)
	// CallTool calls the tool with the JSON input
	CallTool(ctx context.Context, name, input string) (string, error)
	// Reset removes the chat history
	Reset(ctx context.Context) error
}

// Command of the shell
type Command struct {
	Name  string
	Usage string
	Help  string
	Run   func(ctx context.Context, s *Shell, args []string, out io.Writer) error
}

// Shell dispatches the command lines to the Handler
type Shell struct {
	handler     Handler
	prompt      string
	historyFile string
	commands    map[string]*Command
}

// Option configures the Shell
type Option func(*Shell)

// WithPrompt sets the prompt of the interactive shell
func WithPrompt(prompt string) Option {
	return func(s *Shell) {
		if prompt != "" {
			s.prompt = prompt
		}
	}
}

// WithHistoryFile sets the file of the readline history
func WithHistoryFile(file string) Option {
	return func(s *Shell) {
		s.historyFile = file
	}
}

// WithCommand adds or replaces the command
func WithCommand(cmd *Command) Option {
	return func(s *Shell) {
		s.commands[cmd.Name] = cmd
	}
}

// New returns the shell with the default commands
func New(h Handler, opts ...Option) *Shell {
	s := &Shell{
		handler:  h,
		prompt:   DefaultPrompt,
		commands: make(map[string]*Command),
	}
	for _, cmd := range defaultCommands() {
		s.commands[cmd.Name] = cmd
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the handler of the commands
func (s *Shell) Handler() Handler {
	return s.handler
}

// Commands returns the commands sorted by name
func (s *Shell) Commands() []*Command {
	list := make([]*Command, 0, len(s.commands))
	for _, cmd := range s.commands {
		list = append(list, cmd)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Name < list[j].Name
	})
	return list
}

// Execute runs the command, args[0] is the command name
func (s *Shell) Execute(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return nil
	}
	cmd, ok := s.commands[strings.ToLower(args[0])]
	if !ok {
		return errors.Wrapf(ErrUnknownCommand, "%q, try help", args[0])
	}
	return cmd.Run(ctx, s, args[1:], out)
}

// ExecuteLine splits the line as the shell words and runs the command
func (s *Shell) ExecuteLine(ctx context.Context, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return nil
	}
	args, err := shlex.Split(line)
	if err != nil {
		return errors.Wrap(err, "invalid command line")
	}
	return s.Execute(ctx, args, out)
}

// Run reads the commands from in until exit or EOF.
// The command errors are printed to out and the shell continues.
// All commands of the run share the same chat.
func (s *Shell) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	if chatmodel.GetChatContext(ctx) == nil {
		ctx = chatmodel.WithChatContext(ctx, chatmodel.NewChatContext(chatmodel.DefaultTenantID, chatmodel.NewChatID(), nil))
	}

	if f, ok := in.(*os.File); ok && readline.IsTerminal(int(f.Fd())) {
		return s.runTerminal(ctx, out)
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if exit := s.runLine(ctx, scanner.Text(), out); exit {
			return nil
		}
	}
	return errors.WithStack(scanner.Err())
}

func (s *Shell) runTerminal(ctx context.Context, out io.Writer) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          s.prompt,
		HistoryFile:     s.historyFile,
		AutoComplete:    s.completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
		Stdout:          out,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create readline")
	}
	defer rl.Close()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if exit := s.runLine(ctx, line, out); exit {
			return nil
		}
	}
}

func (s *Shell) runLine(ctx context.Context, line string, out io.Writer) (exit bool) {
	err := s.ExecuteLine(ctx, line, out)
	if errors.Is(err, ErrExit) {
		return true
	}
	if err != nil {
		logger.ContextKV(ctx, xlog.DEBUG,
			"line", line,
			"err", err.Error())
		fmt.Fprintf(out, "Error: %s\n", err.Error())
	}
	return false
}

func (s *Shell) completer() *readline.PrefixCompleter {
	var items []readline.PrefixCompleterInterface
	for _, cmd := range s.Commands() {
		items = append(items, readline.PcItem(cmd.Name))
	}
	return readline.NewPrefixCompleter(items...)
}
