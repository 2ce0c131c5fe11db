package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/7blacky7/rocal/envconfig"
)

// Serve bedient ln, bis ctx endet.
func Serve(ctx context.Context, ln net.Listener) error {
	slog.Info("server config", "env", envconfig.Values())

	s := New(ln.Addr())
	srvr := &http.Server{
		Handler:           s.GenerateRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srvr.Serve(ln) }()
	slog.Info(fmt.Sprintf("Listening on %s", ln.Addr()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srvr.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
