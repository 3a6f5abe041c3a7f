package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/cpuprof/internal/filter"
	"github.com/getsentry/cpuprof/internal/httputil"
	"github.com/getsentry/cpuprof/internal/storageprovider"
	"github.com/getsentry/cpuprof/internal/storageutil"
)

type environment struct {
	config ServiceConfig

	storage      storageutil.ObjectHandler
	closeStorage func() error

	set      *filter.Set
	sessions *sessions
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve profile analyses over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return serve(cmd.Context())
	},
}

func newEnvironment(ctx context.Context, config ServiceConfig) (*environment, error) {
	storage, closeStorage, err := storageprovider.Open(ctx, config.ProfilesBucketURL)
	if err != nil {
		return nil, err
	}
	return &environment{
		config:       config,
		storage:      storage,
		closeStorage: closeStorage,
		set:          filter.NewSet(),
		sessions:     newSessions(),
	}, nil
}

func (e *environment) shutdown() {
	err := e.closeStorage()
	if err != nil {
		sentry.CaptureException(err)
	}
	sentry.Flush(5 * time.Second)
}

func (e *environment) newRouter() (*httprouter.Router, error) {
	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, err
	}

	routes := []struct {
		method  string
		path    string
		handler http.HandlerFunc
	}{
		{http.MethodPost, "/profiles", e.postProfile},
		{http.MethodGet, "/profiles/:profile_id/trees/:tree/nodes/:node", e.getNode},
		{http.MethodGet, "/profiles/:profile_id/trees/:tree/values/:value", e.getValue},
		{http.MethodGet, "/profiles/:profile_id/trees/:tree/top", e.getTop},
		{http.MethodGet, "/profiles/:profile_id/trees/:tree/export", e.getExport},
		{http.MethodPut, "/profiles/:profile_id/range", e.putRange},
		{http.MethodDelete, "/profiles/:profile_id/range", e.deleteRange},
		{http.MethodPut, "/profiles/:profile_id/convolution", e.putConvolution},
		{http.MethodDelete, "/profiles/:profile_id/convolution", e.deleteConvolution},
		{http.MethodDelete, "/profiles/:profile_id", e.deleteProfile},
		{http.MethodGet, "/health", e.getHealth},
	}

	router := httprouter.New()

	for _, route := range routes {
		handlerFunc := httputil.DecompressPayload(route.handler)
		handler := compress(handlerFunc)

		router.Handler(route.method, route.path, handler)
	}

	return router, nil
}

func serve(ctx context.Context) error {
	env, err := newEnvironment(ctx, config)
	if err != nil {
		return err
	}

	err = sentry.Init(sentry.ClientOptions{
		Dsn:              config.SentryDSN,
		EnableTracing:    true,
		Environment:      config.Environment,
		Release:          release,
		TracesSampleRate: 1.0,
		BeforeSend:       httputil.SetHTTPStatusCodeTag,
	})
	if err != nil {
		return err
	}

	router, err := env.newRouter()
	if err != nil {
		sentry.CaptureException(err)
		return err
	}

	server := http.Server{
		Addr:    ":" + config.Port,
		Handler: sentryhttp.New(sentryhttp.Options{}).Handle(router),
	}

	waitForShutdown := make(chan struct{})
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c

		cctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(cctx); err != nil {
			sentry.CaptureException(err)
			log.Err(err).Msg("error shutting down server")
		}

		close(waitForShutdown)
	}()

	log.Info().Str("port", config.Port).Str("backend", config.Backend).Msg("serving")
	err = server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		sentry.CaptureException(err)
		log.Err(err).Msg("server failed")
		return err
	}

	<-waitForShutdown

	// Shutdown the rest of the environment after the HTTP connections are closed
	env.shutdown()
	return nil
}

func (e *environment) getHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
