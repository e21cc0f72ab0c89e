// internal/ingest/reader.go
package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/goburrow/serial"

	"github.com/tamzrod/ct-gateway/internal/config"
	"github.com/tamzrod/ct-gateway/internal/history"
	"github.com/tamzrod/ct-gateway/internal/telemetry"
)

const (
	idleDelay  = 100 * time.Millisecond
	errorDelay = time.Second
	stopGrace  = 2 * time.Second
)

// Sink receives every parsed reading. The protocol manager implements
// this.
type Sink interface {
	Deliver(r telemetry.Reading) error
}

// Reader owns the serial connection: it reads lines, parses them into
// readings, feeds the retention buffer and the daily log, and hands
// each reading to the sink. One background goroutine; cooperative
// stop.
type Reader struct {
	cfg  config.SerialConfig
	log  *slog.Logger
	buf  *telemetry.Buffer
	hist *history.Writer
	sink Sink

	// open is the port factory; tests inject an in-memory port.
	open func(config.SerialConfig) (io.ReadWriteCloser, error)
	now  func() time.Time

	mu      sync.Mutex
	running bool
	port    io.ReadWriteCloser
	stop    chan struct{}
	done    chan struct{}

	idleDelay  time.Duration
	errorDelay time.Duration
}

func New(cfg config.SerialConfig, log *slog.Logger, buf *telemetry.Buffer, hist *history.Writer, sink Sink) *Reader {
	return &Reader{
		cfg:        cfg,
		log:        log.With("component", "ingest"),
		buf:        buf,
		hist:       hist,
		sink:       sink,
		open:       openSerial,
		now:        time.Now,
		idleDelay:  idleDelay,
		errorDelay: errorDelay,
	}
}

func openSerial(cfg config.SerialConfig) (io.ReadWriteCloser, error) {
	return serial.Open(&serial.Config{
		Address:  cfg.Port,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.ByteSize,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  time.Duration(cfg.TimeoutMs) * time.Millisecond,
	})
}

// Config returns the connection parameters in use. Pure.
func (r *Reader) Config() config.SerialConfig { return r.cfg }

// TestConnection opens the port and immediately closes it again,
// reporting whether the link can be established. Never leaves the port
// open.
func (r *Reader) TestConnection() (bool, string) {
	port, err := r.open(r.cfg)
	if err != nil {
		return false, fmt.Sprintf("serial open failed on %s: %v", r.cfg.Port, err)
	}
	port.Close()
	return true, fmt.Sprintf("serial connection ok on %s", r.cfg.Port)
}

// Start opens the port and launches the ingestion goroutine. It
// reports false without error when already running.
func (r *Reader) Start() (bool, error) {
	r.mu.Lock()

	if r.running {
		r.mu.Unlock()
		return false, nil
	}

	port, err := r.open(r.cfg)
	if err != nil {
		r.mu.Unlock()
		r.log.Error("serial open failed", "port", r.cfg.Port, "err", err)
		return false, fmt.Errorf("ingest: open %s: %w", r.cfg.Port, err)
	}

	r.port = port
	r.running = true
	r.stop = make(chan struct{})
	r.done = make(chan struct{})
	stop, done := r.stop, r.done
	r.mu.Unlock()

	go r.ingestLoop(port, stop, done)
	r.log.Info("ingestion started", "port", r.cfg.Port, "baud", r.cfg.BaudRate)
	return true, nil
}

// Stop signals the ingestion goroutine and closes the port. Safe at
// any time; waits a bounded grace period for the loop to exit.
func (r *Reader) Stop() {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return
	}
	r.running = false
	close(r.stop)
	if r.port != nil {
		r.port.Close()
		r.port = nil
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
	case <-time.After(stopGrace):
		r.log.Warn("ingest loop did not exit in time")
	}
	r.log.Info("ingestion stopped")
}

func (r *Reader) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running
}

func (r *Reader) ingestLoop(port io.Reader, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	lines := newLineScanner(port)

	for {
		select {
		case <-stop:
			return
		default:
		}

		line, err := lines.Next()
		if err != nil {
			select {
			case <-stop:
				return
			default:
			}
			r.log.Error("serial read failed", "err", err)
			if !sleepOrStop(stop, r.errorDelay) {
				return
			}
			continue
		}

		if line != "" {
			r.handleLine(line)
			continue
		}

		if !sleepOrStop(stop, r.idleDelay) {
			return
		}
	}
}

func (r *Reader) handleLine(line string) {
	reading := telemetry.Parse(line, r.now())
	r.buf.Append(reading)

	if err := r.hist.Append(reading); err != nil {
		r.log.Warn("daily log write failed", "err", err)
	}
	if err := r.sink.Deliver(reading); err != nil {
		r.log.Warn("uplink delivery failed", "err", err)
	}
}

func sleepOrStop(stop <-chan struct{}, d time.Duration) bool {
	select {
	case <-stop:
		return false
	case <-time.After(d):
		return true
	}
}

// ---- lock-protected buffer views for the dashboard client ----

func (r *Reader) LatestData() []telemetry.Reading { return r.buf.Snapshot() }
func (r *Reader) DataCount() int                  { return r.buf.Len() }
func (r *Reader) ClearData()                      { r.buf.Clear() }

// Status is a point-in-time view of the reader.
type Status struct {
	Running   bool
	Connected bool
	Port      string
	BaudRate  int
	Parity    string
	StopBits  int
	ByteSize  int
	TimeoutMs int
	DataCount int
}

func (r *Reader) Status() Status {
	r.mu.Lock()
	running := r.running
	connected := r.port != nil
	r.mu.Unlock()

	return Status{
		Running:   running,
		Connected: connected,
		Port:      r.cfg.Port,
		BaudRate:  r.cfg.BaudRate,
		Parity:    r.cfg.Parity,
		StopBits:  r.cfg.StopBits,
		ByteSize:  r.cfg.ByteSize,
		TimeoutMs: r.cfg.TimeoutMs,
		DataCount: r.buf.Len(),
	}
}
