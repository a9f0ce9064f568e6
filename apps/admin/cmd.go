package main

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"

	"github.com/elecmate/sitebrief/core"
	"github.com/elecmate/sitebrief/core/briefing"
	"github.com/elecmate/sitebrief/core/share"
)

var (
	isTerminalFunc = term.IsTerminal // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf   *core.Config
	logger core.Logger

	// db is the postgres connection goose migrates; gormDB is set instead for sqlite.
	db     *sql.DB
	gormDB *gorm.DB

	svc       *briefing.Service
	templates *share.Templates
	notifier  share.Notifier
	clipboard share.Clipboard
	opener    share.Opener

	out io.Writer // stdout when nil
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "SiteBrief administration",
		Version:       cli.conf.Build,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(cli.migrateCmd())
	root.AddCommand(cli.tokenCmd())
	root.AddCommand(cli.shareCmd())
	root.AddCommand(cli.revokeCmd())
	return root
}

func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if cli.out != nil {
		root.SetOut(cli.out)
	}
	if len(args) < 2 {
		_ = root.Usage()
		return errHelp
	}
	root.SetArgs(args[1:])
	return root.Execute()
}

// usageErr prints the command usage and reports errHelp.
func usageErr(cmd *cobra.Command) error {
	_ = cmd.Usage()
	return errHelp
}

// stdoutIsTerminal reports whether cmd writes to an interactive terminal.
func stdoutIsTerminal(cmd *cobra.Command) bool {
	out, ok := cmd.OutOrStdout().(*os.File)
	return ok && isTerminalFunc(int(out.Fd()))
}

func printf(cmd *cobra.Command, format string, a ...interface{}) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, a...)
}
