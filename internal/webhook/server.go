package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Serve runs the HTTP server until ctx is cancelled, then drains in-flight requests.
func (g *Gateway) Serve(ctx context.Context, addr string, readTimeout time.Duration) error {
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           g.Router(),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		g.logger.Info().Str("addr", addr).Str("path", g.opts.Path).Msg("webhook gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok && err != nil {
			return fmt.Errorf("webhook server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown webhook server: %w", err)
	}
	g.logger.Info().Msg("webhook gateway stopped")
	return nil
}
