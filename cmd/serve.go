package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/lab-access/internal/logger"
	"github.com/kozaktomas/lab-access/internal/web"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the Lab Access HTTP API.
Door terminals post frames to /api/v1/labs/{labID}/scan. Roster, lab and audit
endpoints require the X-Admin-Passcode header matching ADMIN_PASSCODE.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if port := mustGetInt(cmd, "port"); port > 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}
	if cfg.Access.AdminPasscode == "" {
		logger.Warning("ADMIN_PASSCODE is not set, roster endpoints are disabled")
	}

	a, err := openApp(context.Background(), cfg)
	if err != nil {
		return err
	}

	server := web.NewServer(cfg, a.svc, a.store, a.healthChecks())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		logger.Info("shutting down")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Lab Access on http://%s:%d\n", cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	serveErr := server.Start()
	if serveErr == nil {
		// Wait for in-flight scans to record their events
		<-done
	}
	if err := a.Close(); err != nil {
		logger.Error("failed to release resources", zap.Error(err))
	}
	if serveErr != nil {
		return fmt.Errorf("starting server: %w", serveErr)
	}
	return nil
}
