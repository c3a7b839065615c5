package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/transmute/internal/lsp"
)

// NewLSPCommand creates the LSP command
func NewLSPCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the transmute Language Server Protocol (LSP) server.

The server checks open Go documents against the code constraints and
publishes violations as diagnostics; hovering a flagged line explains the
rule and how to fix it.

The LSP server communicates via JSON-RPC over stdin/stdout and logs to
stderr. It is typically started automatically by your editor/IDE.`,
		Args: cobra.NoArgs,
		RunE: runLSP,
	}
}

func runLSP(cmd *cobra.Command, args []string) error {
	e, err := loadEnv(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	enforcer, err := e.enforcer()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return lsp.NewServer(enforcer, e.logger.Named("lsp")).Run(ctx)
}
