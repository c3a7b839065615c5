package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/transmute/internal/server"
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Long: `Serve schema inference, pattern analysis, validation and generation over
HTTP. Generation progress streams over a websocket at /v1/generate/stream.

Requests under /v1 require a bearer token or an API key when
server.jwt_secret or server.api_key_hashes are configured. Without a store
DSN, runs are not recorded; without an LLM API key, generation answers 503.`,
		Example: `  transmute serve
  transmute serve --addr :9090
  TRANSMUTE_SERVER_JWT_SECRET=s3cret transmute serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := loadEnv(cmd)
			if err != nil {
				return err
			}
			defer e.close()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			v, release, err := e.validator(ctx)
			if err != nil {
				return err
			}
			defer release()

			deps := server.Deps{
				Parser:      e.parser(),
				Validator:   v,
				MaxAttempts: e.cfg.Generator.MaxAttempts,
				PackageName: e.cfg.Generator.PackageName,
				TypeName:    e.cfg.Generator.TypeName,
				Warnings:    e.cfg.WarningOptions(),
				Logger:      e.logger.Named("server"),
			}

			st, err := e.openStore(ctx)
			if err != nil {
				return err
			}
			if st != nil {
				defer st.Close()
				deps.Store = st
			}

			if gen, err := e.generator(); err != nil {
				e.logger.Warn("generation disabled", zap.Error(err))
			} else {
				deps.Generator = gen
			}

			sc := e.cfg.Server
			if addr != "" {
				sc.Addr = addr
			}
			srv := server.New(deps, server.Options{
				Addr:            sc.Addr,
				ReadTimeout:     sc.ReadTimeout,
				WriteTimeout:    sc.WriteTimeout,
				ShutdownTimeout: sc.ShutdownTimeout,
				MaxBodyBytes:    sc.MaxBodyBytes,
				Auth:            server.NewAuthenticator(sc.JWTSecret, sc.APIKeyHashes),
			})
			return srv.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default: server.addr)")
	return cmd
}
