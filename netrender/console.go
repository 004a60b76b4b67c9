package netrender

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Console receives the human-readable transcript of a run: one line per
// connection event. A nil *Console discards everything.
type Console struct {
	mu sync.Mutex
	w  io.Writer

	who     func(a ...any) string
	failure func(a ...any) string
	success func(a ...any) string
}

func NewConsole(w io.Writer) *Console {
	return &Console{
		w:       w,
		who:     color.New(color.FgCyan).SprintFunc(),
		failure: color.New(color.FgRed, color.Bold).SprintFunc(),
		success: color.New(color.FgGreen).SprintFunc(),
	}
}

func (c *Console) println(who, line string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, "%s %s %s\n", time.Now().Format("15:04:05.000"), c.who("["+who+"]"), line)
}

func (c *Console) Event(who, format string, args ...any) {
	c.println(who, fmt.Sprintf(format, args...))
}

func (c *Console) Failure(who, format string, args ...any) {
	if c == nil {
		return
	}
	c.println(who, c.failure(fmt.Sprintf(format, args...)))
}

func (c *Console) Success(who, format string, args ...any) {
	if c == nil {
		return
	}
	c.println(who, c.success(fmt.Sprintf(format, args...)))
}
