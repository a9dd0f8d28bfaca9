package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonathan/prompt-workbench/internal/config"
	"github.com/jonathan/prompt-workbench/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long: `Start an HTTP server that exposes the workbench over REST and server-sent events.

Run history endpoints need DATABASE_URL. Setting JWT_SECRET enables bearer authentication; tokens are issued
by POST /auth/token for WORKBENCH_ADMIN_USER with the bcrypt hash in WORKBENCH_ADMIN_PASSWORD_HASH
(see "workbench hash-password").`,
	RunE: runServe,
}

var servePort int

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (default: PORT env var or 8080)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	a, err := newApp(cmd, appOptions{models: true, history: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var jwtCfg *config.JWTConfig
	var passwords *config.PasswordConfig
	if config.JWTSecretConfigured() {
		if jwtCfg, err = config.NewJWTConfig(); err != nil {
			return fmt.Errorf("failed to load JWT config: %w", err)
		}
		if passwords, err = config.NewPasswordConfig(); err != nil {
			return fmt.Errorf("failed to load password config: %w", err)
		}
	} else {
		a.logger.Warn("JWT_SECRET not set; API authentication is disabled")
	}
	if !a.svc.HasStore() {
		a.logger.Warn("DATABASE_URL not set; run history endpoints are unavailable")
	}

	srvCfg := server.ConfigFromEnv(a.env.Server, jwtCfg, passwords)
	if cmd.Flags().Changed("port") {
		srvCfg.Port = servePort
	}
	srvCfg.Logger = a.logger

	srv, err := server.New(a.svc, srvCfg)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return srv.Start(ctx)
}
