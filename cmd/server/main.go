package main

import (
	"context"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/joho/godotenv"
	"github.com/jrsteele09/dashboard-gateway/internal/config"
	"github.com/jrsteele09/dashboard-gateway/internal/errors"
	"github.com/jrsteele09/dashboard-gateway/server"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var errPanicRecovered = errors.New("panic recovered")

type flags struct {
	port     string
	upstream string
	frontend string
	envFile  string
	logLevel string
}

func main() {
	var f flags
	rootCmd := &cobra.Command{
		Use:   "dashboard-gateway",
		Short: "Same-origin session gateway for the dashboard",
		Long: `dashboard-gateway serves the dashboard pages and proxies API calls to the
upstream REST API. It keeps the refresh credential in an HttpOnly cookie and
handles login, refresh and logout on behalf of the browser.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(f)
		},
	}
	rootCmd.Flags().StringVar(&f.port, "port", "", "listen port (overrides "+config.PortEnvVar+")")
	rootCmd.Flags().StringVar(&f.upstream, "upstream", "", "upstream API base URL (overrides "+config.UpstreamBaseURLEnvVar+")")
	rootCmd.Flags().StringVar(&f.frontend, "frontend", "", "frontend URL pages are proxied to (overrides "+config.FrontendURLEnvVar+")")
	rootCmd.Flags().StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.Flags().StringVar(&f.logLevel, "log-level", "", "log level (overrides "+config.LogLevelEnvVar+")")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serve(f flags) error {
	if err := godotenv.Load(f.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", f.envFile, err)
	}
	c := config.New(
		config.Override{Name: config.PortEnvVar, Value: f.port},
		config.Override{Name: config.UpstreamBaseURLEnvVar, Value: f.upstream},
		config.Override{Name: config.FrontendURLEnvVar, Value: f.frontend},
		config.Override{Name: config.LogLevelEnvVar, Value: f.logLevel},
	)
	setupLogging(c)

	for {
		err := run(c)
		if !errors.Is(err, errPanicRecovered) {
			if err != nil {
				return err
			}
			break
		}
		log.Error().Msg("Restarting server after panic")
		time.Sleep(1 * time.Second)
	}
	log.Info().Msg("Server stopped")
	return nil
}

func setupLogging(c config.Config) {
	level, err := zerolog.ParseLevel(c.GetLogLevel())
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if c.GetEnv() == "DEV" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}
	zerolog.DefaultContextLogger = &log.Logger
}

func run(c config.Config) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Recovered from panic")
			returnError = errPanicRecovered
		}
	}()

	displayAppname(c.GetAppName())
	handler, err := server.New(c)
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              c.GetPort(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(httpServer)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal():
	}
	return shutdown(httpServer)
}

func listenAndServe(server *http.Server) error {
	log.Info().Str("addr", server.Addr).Msg("Server listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal() <-chan os.Signal {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	return stop
}

func shutdown(server *http.Server) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
