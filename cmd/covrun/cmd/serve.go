package cmd

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/covrun/internal/config"
	"github.com/psantana5/covrun/internal/history"
	"github.com/psantana5/covrun/internal/server"
	"github.com/psantana5/covrun/pkg/shutdown"
	covtls "github.com/psantana5/covrun/pkg/tls"
	"github.com/psantana5/covrun/pkg/tracing"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the covrun HTTP API",
	Long: `Serves instrumentation, resolution and history over HTTP:

  POST /v1/instrument      {"module": "...", "symbols": "..."}
  GET  /v1/resolve         ?module=..&library=..&version=..
  GET  /v1/history         ?limit=n
  GET  /v1/history/{id}
  GET  /v1/failures
  GET  /metrics
  GET  /health

With server.api_key_hashes set, /v1 routes need "Authorization: Bearer <key>"
(see covrun config apikey). server.tls_cert and server.tls_key switch to HTTPS.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    "covrun",
		ServiceVersion: Version,
		Environment:    "production",
		OTLPEndpoint:   a.cfg.Tracing.Endpoint,
		Enabled:        a.cfg.Tracing.Enabled,
	}, a.logger)
	if err != nil {
		return err
	}

	deps, err := a.dependencies()
	if err != nil {
		return err
	}
	opts, err := a.runOptions(a.cfg.Backup.Enabled)
	if err != nil {
		return err
	}

	handler := server.NewHandler(deps, a.logger)
	handler.SetRunOptions(opts...)
	handler.SetResolverOptions(a.resolverOptions()...)
	handler.SetGatherer(a.registry)
	if a.history != nil {
		handler.SetHistory(a.history)
	}

	scfg := server.Config{
		Addr:      a.cfg.Server.Addr,
		RateLimit: a.cfg.Server.RateLimit,
		Burst:     a.cfg.Server.Burst,
	}
	if serveAddr != "" {
		if err := config.CheckListenAddr(serveAddr, len(a.cfg.Server.APIKeyHashes) > 0); err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		scfg.Addr = serveAddr
	}
	if len(a.cfg.Server.APIKeyHashes) > 0 {
		auth, err := server.NewKeyAuth(a.cfg.Server.APIKeyHashes)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		scfg.Auth = auth
	}
	var traced *tracing.Provider
	if a.cfg.Tracing.Enabled {
		traced = provider
	}
	router, limiter := server.NewRouter(handler, scfg, traced)
	srv := server.NewServer(scfg, router)
	if a.cfg.Server.TLSCert != "" {
		tlsCfg, err := covtls.LoadServerConfig(a.cfg.Server.TLSCert, a.cfg.Server.TLSKey, a.cfg.Server.ClientCA)
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		srv.TLSConfig = tlsCfg
	}

	stopCleanup := make(chan struct{})
	if limiter != nil {
		go func() {
			ticker := time.NewTicker(time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					limiter.Cleanup(10 * time.Minute)
				case <-stopCleanup:
					return
				}
			}
		}()
	}

	// Registered in start order, run in reverse.
	mgr := shutdown.New(30*time.Second, a.logger)
	mgr.Register("tracer", provider.Shutdown)
	if a.history != nil {
		rcfg, ok, err := a.cfg.ToRetention()
		if err != nil {
			return &ExitError{Code: 2, Err: err}
		}
		if ok {
			retention := history.NewRetention(rcfg, a.history, a.logger)
			retention.Start()
			mgr.Register("history retention", retention.Stop)
		}
	}
	mgr.Register("limiter cleanup", func(context.Context) error {
		close(stopCleanup)
		return nil
	})
	mgr.Register("in-flight runs", shutdown.WaitFor(func() bool { return handler.InFlight() == 0 }, 100*time.Millisecond))
	mgr.Register("http server", shutdown.StopHTTPServer(srv))

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var listenErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.logger.Info("covrun API listening", map[string]interface{}{
			"addr": scfg.Addr,
			"tls":  srv.TLSConfig != nil,
			"auth": scfg.Auth != nil,
		})
		var err error
		if srv.TLSConfig != nil {
			// Certificates are already loaded into TLSConfig.
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErr = err
			// A failed listener stops the process like a signal does.
			cancel()
		}
	}()

	errs := mgr.WaitWithContext(waitCtx)
	<-done
	if listenErr != nil {
		return listenErr
	}
	return errors.Join(errs...)
}
