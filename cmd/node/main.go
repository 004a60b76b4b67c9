// Command node is a render node: it listens for driver connections and
// renders the rows they ask for with all of its threads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/marben/distfrac/internal/config"
	"github.com/marben/distfrac/internal/logging"
	"github.com/marben/distfrac/internal/metrics"
	"github.com/marben/distfrac/node"
	"github.com/marben/distfrac/protocol"
)

const shutdownTimeout = 5 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stderr)
	stop()
	if err != nil {
		log.Fatalf("run: %+v", err)
	}
}

type options struct {
	host     string
	port     int
	threads  int
	bunch    int
	http     string
	logLevel string
	logFile  string
}

// parseFlags returns flag.ErrHelp when usage was requested.
func parseFlags(args []string, stderr io.Writer) (options, error) {
	if err := config.LoadDotEnv(); err != nil {
		return options{}, fmt.Errorf("load .env: %w", err)
	}
	env := config.NodeFromEnv(protocol.DefaultPort, node.DefaultBunchGroups)

	var o options
	fs := flag.NewFlagSet("node", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.host, "h", env.Host, "address to bind, empty for all interfaces")
	fs.IntVar(&o.port, "p", env.Port, "port to listen on")
	fs.IntVar(&o.threads, "t", env.Threads, "number of render threads")
	fs.IntVar(&o.bunch, "b", env.Bunch, "bunches per claim suggested to drivers")
	fs.StringVar(&o.http, "http", env.HTTP, "address for /ws, /metrics and /healthz, empty disables")
	fs.StringVar(&o.logLevel, "log-level", env.LogLevel, "debug, info, warn or error")
	fs.StringVar(&o.logFile, "log-file", env.LogFile, "also write JSON logs to this file")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: node [-h host] [-p port] [-t threads] [-b bunch] [-http addr]\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	switch {
	case o.port < 0 || o.port > 65535:
		return options{}, fmt.Errorf("invalid port %d", o.port)
	case o.threads < 1:
		return options{}, fmt.Errorf("invalid thread count %d", o.threads)
	case o.bunch < 1:
		return options{}, fmt.Errorf("invalid bunch count %d", o.bunch)
	}
	return o, nil
}

// run serves until ctx is canceled. Asking for help is not an error.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	o, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, closeLog := logging.New(logging.Config{Level: o.logLevel, File: o.logFile, Console: stderr})
	defer closeLog()

	m := metrics.NewNode()
	srv := node.New(node.Config{
		Threads:     o.threads,
		BunchGroups: o.bunch,
		Logger:      logger,
		Metrics:     m,
	})

	// Step 1: bind both listeners up front
	addr := net.JoinHostPort(o.host, strconv.Itoa(o.port))
	tcpListener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("net.Listen: %w", err)
	}

	var httpListener net.Listener
	if o.http != "" {
		if httpListener, err = net.Listen("tcp", o.http); err != nil {
			tcpListener.Close()
			return fmt.Errorf("net.Listen http: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errs := make(chan error, 3)

	// Step 2: raw TCP, the native transport
	logger.Info("tcp listening",
		zap.Stringer("addr", tcpListener.Addr()),
		zap.Int("threads", o.threads),
		zap.Int("bunch", o.bunch))
	wg.Go(func() {
		if err := srv.Serve(ctx, tcpListener, "tcp"); err != nil {
			errs <- fmt.Errorf("serve tcp: %w", err)
		}
	})

	// Step 3: websocket connections plus metrics and health, behind one http server
	if httpListener != nil {
		ws := node.NewWSListener(ctx, httpListener.Addr().String(), logger)
		hs := node.NewHTTPServer(o.http, srv.HTTPHandler(ws))
		logger.Info("http listening", zap.Stringer("addr", httpListener.Addr()))

		wg.Go(func() {
			if err := srv.Serve(ctx, ws, "ws"); err != nil {
				errs <- fmt.Errorf("serve ws: %w", err)
			}
		})
		wg.Go(func() {
			if err := hs.Serve(httpListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errs <- fmt.Errorf("http server: %w", err)
			}
		})
		wg.Go(func() {
			<-ctx.Done()
			sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer scancel()
			if err := hs.Shutdown(sctx); err != nil {
				logger.Warn("http shutdown", zap.Error(err))
			}
		})
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errs:
		logger.Error("node failed", zap.Error(runErr))
	}
	cancel()
	wg.Wait()
	return runErr
}
