// Command render draws a fractal with the local CPUs only.
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
	"runtime"
	"syscall"
	"time"

	"go.uber.org/zap"

	fractal "github.com/marben/distfrac"
	"github.com/marben/distfrac/internal/config"
	"github.com/marben/distfrac/internal/logging"
	"github.com/marben/distfrac/output"
	"github.com/marben/distfrac/render"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	if err != nil {
		log.Fatalf("run: %+v", err)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		cfgPath  string
		out      string
		width    int
		height   int
		ss       int
		threads  int
		bunch    int
		preset   string
		params   string
		logLevel string
	)
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfgPath, "config", "", "render file (YAML), nodes are ignored")
	fs.StringVar(&out, "o", "", "output image, format by extension (.tif .png .jpg .bmp)")
	fs.IntVar(&width, "width", 0, "image width")
	fs.IntVar(&height, "height", 0, "image height")
	fs.IntVar(&ss, "ss", 0, "supersampling factor, a power of two")
	fs.IntVar(&threads, "t", 0, "render threads, 0 for all CPUs")
	fs.IntVar(&bunch, "bunch", 0, "rows per bunch")
	fs.StringVar(&preset, "preset", "", "named region of the Mandelbrot set")
	fs.StringVar(&params, "params", "", "binary parameter file to render")
	fs.StringVar(&logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	var (
		rf  *config.RenderFile
		err error
	)
	if cfgPath != "" {
		rf, err = config.LoadRenderFile(cfgPath)
	} else {
		rf, err = config.ParseRenderFile(nil)
	}
	if err != nil {
		return err
	}
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "o":
			rf.Output = out
		case "width":
			rf.Width = width
		case "height":
			rf.Height = height
		case "ss":
			rf.Supersampling = ss
		case "t":
			rf.Threads = threads
		case "bunch":
			rf.BunchRows = bunch
		case "preset":
			rf.Fractal.Preset = preset
		case "params":
			rf.ParamsFile = params
		}
	})
	if err := rf.Validate(); err != nil {
		return err
	}
	if _, err := output.FormatOf(rf.Output); err != nil {
		return err
	}
	if rf.Threads == 0 {
		rf.Threads = runtime.NumCPU()
	}

	logger, closeLog := logging.New(logging.Config{Level: logLevel, Console: stderr})
	defer closeLog()

	p, err := rf.Parameters()
	if err != nil {
		return err
	}

	job := fractal.NewJob(p, rf.Supersampling, 0)
	started := time.Now()
	err = render.Render(ctx, rf.Threads, job, render.Options{
		BunchRows: rf.BunchRows,
		OnProgress: func(worker, percent int) {
			fmt.Fprintf(stdout, "\r%3d%%", percent)
		},
		Logger: logger,
	})
	fmt.Fprintln(stdout)
	if err != nil {
		return fmt.Errorf("render: %w", err)
	}
	logger.Info("rendered",
		zap.Stringer("job", job),
		zap.Int("threads", rf.Threads),
		zap.Duration("elapsed", time.Since(started)))

	if err := output.Save(rf.Output, job.Pixels, job.Width(), job.Height()); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%dx%d image saved to %s in %.3f seconds (xxh3 %016x)\n",
		job.Width(), job.Height(), rf.Output, time.Since(started).Seconds(), fractal.Checksum(job.Pixels))
	return nil
}
