package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/effective-security/mcpchat/app"
	"github.com/effective-security/mcpchat/encoding"
	"github.com/effective-security/mcpchat/shell"
	"github.com/effective-security/xlog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var logger = xlog.NewPackageLogger("github.com/effective-security/mcpchat", "cmd")

// Version is set at build time with -ldflags "-X main.Version=..."
var Version = "dev"

const envPrefix = "MCPCHAT"

const (
	flagConfig   = "config"
	flagEnvFile  = "env-file"
	flagLogLevel = "log-level"
	flagFormat   = "format"
	flagTrace    = "trace"
	flagStartup  = "startup"
	flagHistory  = "history"
)

var logLevels = map[string]xlog.LogLevel{
	"ERROR":   xlog.ERROR,
	"WARNING": xlog.WARNING,
	"NOTICE":  xlog.NOTICE,
	"INFO":    xlog.INFO,
	"DEBUG":   xlog.DEBUG,
	"TRACE":   xlog.TRACE,
}

var _ shell.Handler = (*app.App)(nil)

type cli struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	v *viper.Viper
	// appOpts are added to the options of the App
	appOpts []app.Option
}

func newCLI(stdin io.Reader, stdout, stderr io.Writer) *cli {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return &cli{
		stdin:  stdin,
		stdout: stdout,
		stderr: stderr,
		v:      v,
	}
}

func (c *cli) rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcpchat",
		Short: "MCP chat client",
		Long: `MCP chat client connects to the configured MCP servers,
prints the list of tools and the collections of the mydb database.

The flags can be set with the MCPCHAT_ environment variables,
for example MCPCHAT_CONFIG or MCPCHAT_LOG_LEVEL.`,
		Args:              cobra.NoArgs,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.preRun,
		RunE:              c.runStartup,
	}
	cmd.SetIn(c.stdin)
	cmd.SetOut(c.stdout)
	cmd.SetErr(c.stderr)

	f := cmd.PersistentFlags()
	f.StringP(flagConfig, "c", "", "path to the config file")
	f.String(flagEnvFile, ".env", "path to the file with the environment variables")
	f.String(flagLogLevel, "WARNING", "log level: ERROR, WARNING, NOTICE, INFO, DEBUG, TRACE")
	f.StringP(flagFormat, "f", "", "output format: "+strings.Join(formatNames(), ", "))
	f.Bool(flagTrace, false, "print the trace of the chat runs to stderr")

	cmd.AddCommand(
		c.shellCmd(),
		c.chatCmd(),
		c.versionCmd(),
	)
	return cmd
}

func (c *cli) shellCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell",
		Args:  cobra.NoArgs,
		RunE:  c.runShell,
	}
	cmd.Flags().Bool(flagStartup, false, "run the startup sequence before the shell")
	cmd.Flags().String(flagHistory, "", "path to the history file of the shell")
	return cmd
}

func (c *cli) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [text...]",
		Short: "Send the text to the chat client, " + shell.DefaultChatText + " by default",
		RunE:  c.runChat,
	}
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.stdout, "mcpchat %s\n", Version)
			return errors.WithStack(err)
		},
	}
}

func (c *cli) preRun(cmd *cobra.Command, _ []string) error {
	if err := c.v.BindPFlags(cmd.Flags()); err != nil {
		return errors.Wrap(err, "failed to bind flags")
	}

	envFile := c.v.GetString(flagEnvFile)
	if envFile != "" {
		err := godotenv.Load(envFile)
		// the default file is optional
		if err != nil && (cmd.Flags().Changed(flagEnvFile) || !errors.Is(err, os.ErrNotExist)) {
			return errors.Wrapf(err, "failed to load env file %q", envFile)
		}
	}

	level, ok := logLevels[strings.ToUpper(c.v.GetString(flagLogLevel))]
	if !ok {
		return errors.Newf("unsupported log level: %q", c.v.GetString(flagLogLevel))
	}
	xlog.SetFormatter(xlog.NewStringFormatter(c.stderr))
	xlog.SetGlobalLogLevel(level)
	return nil
}

func (c *cli) newApp(ctx context.Context) (*app.App, error) {
	cfg, err := app.LoadConfig(c.v.GetString(flagConfig))
	if err != nil {
		return nil, err
	}

	var opts []app.Option
	if name := c.v.GetString(flagFormat); name != "" {
		format, err := encoding.ParseFormat(name)
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithFormat(format))
	}
	if c.v.GetBool(flagTrace) {
		opts = append(opts, app.WithTrace(c.stderr))
	}
	opts = append(opts, c.appOpts...)

	return app.New(ctx, cfg, opts...)
}

// withApp runs fn and closes the App
func (c *cli) withApp(ctx context.Context, fn func(a *app.App) error) (err error) {
	a, err := c.newApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.Close(); cerr != nil {
			logger.KV(xlog.WARNING, "reason", "close", "err", cerr.Error())
			err = errors.Join(err, cerr)
		}
	}()
	return fn(a)
}

func (c *cli) runStartup(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	return c.withApp(ctx, func(a *app.App) error {
		return a.Startup(ctx, c.stdout)
	})
}

func (c *cli) runShell(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	startup, _ := cmd.Flags().GetBool(flagStartup)
	history, _ := cmd.Flags().GetString(flagHistory)

	return c.withApp(ctx, func(a *app.App) error {
		if startup {
			if err := a.Startup(ctx, c.stdout); err != nil {
				return err
			}
		}
		sh := shell.New(a, shell.WithHistoryFile(history))
		return sh.Run(ctx, c.stdin, c.stdout)
	})
}

func (c *cli) runChat(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	return c.withApp(ctx, func(a *app.App) error {
		return shell.New(a).Execute(ctx, append([]string{"chat"}, args...), c.stdout)
	})
}

func formatNames() []string {
	var names []string
	for _, f := range encoding.Formats() {
		names = append(names, string(f))
	}
	return names
}
