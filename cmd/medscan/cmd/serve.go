package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/medscan/internal/recognize"
	"github.com/MeKo-Tech/medscan/internal/record"
	"github.com/MeKo-Tech/medscan/internal/server"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the label verification HTTP server",
	Long: `Start an HTTP server exposing the verification pipeline.

The server provides the following endpoints:
  POST /verify          - Verify one uploaded label image
  POST /extract         - Extract label fields from an image
  POST /sessions        - Start a capture session
  GET  /sessions/{id}   - Inspect a capture session
  GET  /sessions/{id}/stream - Stream frames over WebSocket
  GET  /health          - Health check endpoint
  GET  /metrics         - Prometheus metrics

Examples:
  medscan serve
  medscan serve --port 8080
  medscan serve --host 0.0.0.0 --record-endpoint http://records.internal/api/doses`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}
		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}
		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}
		maxUploadMB := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadMB, _ = cmd.Flags().GetInt("max-upload-size")
		}
		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}
		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}
		ratePerMinute := cfg.Server.RatePerMinute
		if cmd.Flags().Changed("rate-per-minute") {
			ratePerMinute, _ = cmd.Flags().GetInt("rate-per-minute")
		}
		recordEndpoint := cfg.Records.Endpoint
		if cmd.Flags().Changed("record-endpoint") {
			recordEndpoint, _ = cmd.Flags().GetString("record-endpoint")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		var emitter record.Emitter = record.Nop{}
		if recordEndpoint != "" {
			emitter = record.NewHTTPEmitter(recordEndpoint,
				time.Duration(cfg.Records.TimeoutSec)*time.Second)
		}

		srv := server.NewServer(server.Config{
			Host:          host,
			Port:          port,
			CORSOrigin:    corsOrigin,
			MaxUploadMB:   int64(maxUploadMB),
			TimeoutSec:    timeout,
			RatePerMinute: ratePerMinute,
			Capture:       cfg.ToCaptureConfig(),
			DriftWindow:   cfg.ToScheduleWindow(),
		}, recognize.NewTesseract(cfg.ToRecognizerConfig()), emitter)

		mux := http.NewServeMux()
		srv.SetupRoutes(mux)

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
			WriteTimeout:      time.Duration(timeout) * time.Second,
		}

		go func() {
			slog.Info("Starting verification server", "host", host, "port", port)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)

		select {
		case sig := <-sigChan:
			slog.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			slog.Info("Context cancelled, initiating shutdown")
		}

		slog.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(),
			time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("HTTP server shutdown error", "error", err)
		} else {
			slog.Info("HTTP server shutdown completed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 30, "request timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Int("rate-per-minute", 60, "maximum scan requests per minute per client (0 disables)")
	serveCmd.Flags().String("record-endpoint", "", "URL to deliver dose records to")
}
