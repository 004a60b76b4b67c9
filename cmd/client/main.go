// Command client renders a fractal on a set of nodes and saves the image.
//
//	client -config render.yaml
//	client -o seahorse.tif -preset seahorse-valley -ss 4 10.0.0.5 10.0.0.6:7400
//	client -ping 10.0.0.5 ws://10.0.0.6:8080/ws
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/internal/config"
	"github.com/marben/distfrac/internal/logging"
	"github.com/marben/distfrac/netrender"
	"github.com/marben/distfrac/output"
	"github.com/marben/distfrac/protocol"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		log.Fatalf("run: %+v", err)
	}
}

type options struct {
	config     string
	output     string
	width      int
	height     int
	ss         int
	bunchRows  int
	groups     int
	preset     string
	params     string
	saveParams string
	ping       bool
	logLevel   string
	endpoints  []string
}

func parseFlags(args []string, stderr io.Writer) (options, *config.RenderFile, error) {
	var o options
	fs := flag.NewFlagSet("client", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.config, "config", "", "render file (YAML)")
	fs.StringVar(&o.output, "o", "", "output image, format by extension (.tif .png .jpg .bmp)")
	fs.IntVar(&o.width, "width", 0, "image width")
	fs.IntVar(&o.height, "height", 0, "image height")
	fs.IntVar(&o.ss, "ss", 0, "supersampling factor, a power of two")
	fs.IntVar(&o.bunchRows, "bunch", 0, "rows per bunch")
	fs.IntVar(&o.groups, "groups", 0, "bunches per claim, 0 asks each node")
	fs.StringVar(&o.preset, "preset", "", "named region of the Mandelbrot set")
	fs.StringVar(&o.params, "params", "", "binary parameter file to render")
	fs.StringVar(&o.saveParams, "save-params", "", "write the rendered parameters to this file")
	fs.BoolVar(&o.ping, "ping", false, "only check that the nodes answer")
	fs.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: client [flags] [node ...]\n\nNodes are host[:port] or ws:// URLs.\n\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	o.endpoints = fs.Args()

	var (
		rf  *config.RenderFile
		err error
	)
	if o.config != "" {
		rf, err = config.LoadRenderFile(o.config)
	} else {
		rf, err = config.ParseRenderFile(nil)
	}
	if err != nil {
		return options{}, nil, err
	}

	// flags override the render file
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })
	if set["o"] {
		rf.Output = o.output
	}
	if set["width"] {
		rf.Width = o.width
	}
	if set["height"] {
		rf.Height = o.height
	}
	if set["ss"] {
		rf.Supersampling = o.ss
	}
	if set["bunch"] {
		rf.BunchRows = o.bunchRows
	}
	if set["groups"] {
		rf.BunchGroups = o.groups
	}
	if set["preset"] {
		rf.Fractal.Preset = o.preset
	}
	if set["params"] {
		rf.ParamsFile = o.params
	}
	if len(o.endpoints) == 0 {
		o.endpoints = rf.Nodes
	}
	if len(o.endpoints) == 0 {
		return options{}, nil, errors.New("no nodes given")
	}
	if err := rf.Validate(); err != nil {
		return options{}, nil, err
	}
	if _, err := output.FormatOf(rf.Output); err != nil {
		return options{}, nil, err
	}
	return o, rf, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	o, rf, err := parseFlags(args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return nil
	}
	if err != nil {
		return err
	}

	logger, closeLog := logging.New(logging.Config{Level: o.logLevel, Console: stderr})
	defer closeLog()

	if o.ping {
		return ping(ctx, o.endpoints, stdout)
	}

	// Step 1: build the parameters
	p, err := rf.Parameters()
	if err != nil {
		return err
	}
	logger.Info("parameters", zap.Stringer("params", p))
	if o.saveParams != "" {
		if err := fractal.SaveParameters(o.saveParams, p); err != nil {
			return fmt.Errorf("save parameters: %w", err)
		}
		fmt.Fprintf(stdout, "Parameters saved to %s\n", o.saveParams)
	}

	// Step 2: render on the nodes and save the image
	res, err := netrender.Render(ctx, netrender.Settings{
		Endpoints:     o.endpoints,
		Params:        p,
		Supersampling: rf.Supersampling,
		BunchRows:     rf.BunchRows,
		BunchGroups:   rf.BunchGroups,
		Output:        rf.Output,
		Console:       netrender.NewConsole(stdout),
		Logger:        logger,
	})
	if err != nil {
		if res.Job != nil {
			return fmt.Errorf("render %s with %d of %d rows done: %w", res.Status, res.DoneRows, res.Job.Height(), err)
		}
		return fmt.Errorf("render %s: %w", res.Status, err)
	}

	fmt.Fprintf(stdout, "%dx%d image saved to %s (xxh3 %016x)\n",
		res.Job.Width(), res.Job.Height(), rf.Output, fractal.Checksum(res.Job.Pixels))
	return nil
}

// ping checks every endpoint and fails if any of them does not answer.
func ping(ctx context.Context, endpoints []string, stdout io.Writer) error {
	var failed int
	for i, ep := range endpoints {
		took, err := pingOne(ctx, ep, int32(i+1))
		if err != nil {
			failed++
			fmt.Fprintf(stdout, "%s: %v\n", ep, err)
			continue
		}
		fmt.Fprintf(stdout, "%s: ok in %s\n", ep, took.Round(time.Microsecond))
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d nodes did not answer", failed, len(endpoints))
	}
	return nil
}

func pingOne(ctx context.Context, ep string, challenge int32) (time.Duration, error) {
	dctx, cancel := context.WithTimeout(ctx, netrender.DefaultDialTimeout)
	defer cancel()
	c, err := protocol.Dial(dctx, ep)
	if err != nil {
		return 0, err
	}
	defer c.Abort()

	start := time.Now()
	got, err := c.Ping(challenge)
	if err != nil {
		return 0, err
	}
	took := time.Since(start)
	if got != challenge+1 {
		return 0, fmt.Errorf("ping: sent %d, got %d", challenge, got)
	}
	return took, c.Close()
}
