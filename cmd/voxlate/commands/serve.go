package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voxlate/voxlate/pkg/realtime"
	"github.com/voxlate/voxlate/pkg/relay"
	"github.com/voxlate/voxlate/pkg/server"
	"github.com/voxlate/voxlate/pkg/translate"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translation web server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if serveAddr != "" {
			cfg.Addr = serveAddr
		}

		var opts []translate.Option
		if cfg.BaseURL != "" {
			opts = append(opts, translate.WithBaseURL(cfg.BaseURL))
		}

		model := cfg.Model
		if model == "" {
			model = realtime.DefaultModel
		}

		srv := server.New(server.Config{
			Addr:        cfg.Addr,
			Translator:  translate.NewTranslator(cfg.APIKey, opts...),
			Transcriber: translate.NewTranscriber(cfg.APIKey, opts...),
			Synthesizer: translate.NewSynthesizer(cfg.APIKey, opts...),
			Relay: &relay.Handler{
				APIKey: cfg.APIKey,
				Model:  model,
			},
		})

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			errCh <- srv.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "error", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}
