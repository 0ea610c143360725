package replay

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"strconv"

	"pairs-systemv1/internal/model"
)

// Recorder writes ticks as NDJSON lines ({"s","p","q","T"}) that Replayer
// can read back.
type Recorder struct {
	w *bufio.Writer
}

// NewRecorder wraps w. Call Flush (or let Run return) before closing w.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{w: bufio.NewWriter(w)}
}

// Write appends one tick line.
func (r *Recorder) Write(t model.Tick) error {
	line := `{"s":` + strconv.Quote(t.Symbol) +
		`,"p":"` + strconv.FormatFloat(t.Price, 'f', -1, 64) +
		`","q":"` + strconv.FormatFloat(t.Size, 'f', -1, 64) +
		`","T":` + strconv.FormatInt(t.TS.UnixMilli(), 10) + "}\n"
	if _, err := r.w.WriteString(line); err != nil {
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

// Flush writes buffered lines.
func (r *Recorder) Flush() error {
	return r.w.Flush()
}

// Run records ticks from ch until ctx is cancelled or ch is closed.
func (r *Recorder) Run(ctx context.Context, ch <-chan model.Tick) {
	defer func() {
		if err := r.Flush(); err != nil {
			log.Printf("[record] flush: %v", err)
		}
	}()
	for {
		select {
		case <-ctx.Done():
			return
		case t, ok := <-ch:
			if !ok {
				return
			}
			if err := r.Write(t); err != nil {
				log.Printf("[record] %v", err)
				return
			}
		}
	}
}
