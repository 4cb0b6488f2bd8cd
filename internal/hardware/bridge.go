package hardware

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/iliyamo/cinema-seat-access/internal/logger"
)

// ErrUnavailable is returned by Send while no board is connected.
var ErrUnavailable = errors.New("hardware: bridge not connected")

// ErrNoPort is returned by DiscoverPort when no candidate port exists.
var ErrNoPort = errors.New("hardware: no controller port found")

// Config selects and parameterizes the serial port.  An empty Port means
// auto-discovery.
type Config struct {
	Port       string
	BaudRate   int
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

// Opener opens a named port.  It is swapped out in tests.
type Opener func(name string, baud int) (io.ReadWriteCloser, error)

// Bridge owns the serial connection to the board.  Run keeps the
// connection alive; Send writes commands while it is up.
type Bridge struct {
	cfg      Config
	log      *logger.Logger
	open     Opener
	discover func() (string, error)
	wait     func(ctx context.Context, d time.Duration) bool

	mu   sync.Mutex
	port io.ReadWriteCloser
}

// Option customizes a Bridge.
type Option func(*Bridge)

// WithOpener replaces the serial opener.
func WithOpener(o Opener) Option { return func(b *Bridge) { b.open = o } }

// WithDiscovery replaces port discovery.
func WithDiscovery(d func() (string, error)) Option { return func(b *Bridge) { b.discover = d } }

// NewBridge builds a bridge.  It does not touch the port until Run.
func NewBridge(cfg Config, log *logger.Logger, opts ...Option) *Bridge {
	if cfg.BaudRate <= 0 {
		cfg.BaudRate = 9600
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	b := &Bridge{
		cfg:      cfg,
		log:      log.Component("hardware"),
		open:     openSerial,
		discover: DiscoverPort,
		wait:     sleepCtx,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

func openSerial(name string, baud int) (io.ReadWriteCloser, error) {
	return serial.Open(name, &serial.Mode{BaudRate: baud})
}

// knownVIDs are the USB vendor ids of the boards and adapters we expect:
// Arduino, WCH (CH340) and FTDI.
var knownVIDs = map[string]bool{"2341": true, "1A86": true, "0403": true}

// DiscoverPort lists the serial ports and returns the first one that
// looks like a controller board.
func DiscoverPort() (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", err
	}
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		product := strings.ToLower(p.Product)
		if knownVIDs[strings.ToUpper(p.VID)] ||
			strings.Contains(product, "arduino") ||
			strings.Contains(product, "ch340") ||
			strings.Contains(product, "ftdi") {
			return p.Name, nil
		}
	}
	return "", ErrNoPort
}

// Connected reports whether a board is currently attached.
func (b *Bridge) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.port != nil
}

// Send writes one command line.  It never retries; callers log failures
// and carry on.
func (b *Bridge) Send(line string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.port == nil {
		return ErrUnavailable
	}
	if _, err := io.WriteString(b.port, line+"\n"); err != nil {
		return fmt.Errorf("hardware: write %q: %w", line, err)
	}
	b.log.Debug("sent", "line", line)
	return nil
}

// Run connects to the board and feeds every received line to onLine
// until ctx is cancelled.  Failed attempts are retried with exponential
// backoff capped at cfg.MaxBackoff; a connection that came up restarts
// the backoff at cfg.MinBackoff.
func (b *Bridge) Run(ctx context.Context, onLine func(line string)) {
	backoff := b.cfg.MinBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		connected, err := b.session(ctx, onLine)
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = b.cfg.MinBackoff
		}
		if err != nil {
			b.log.Warn("controller link down", "error", err, "retry_in", backoff.String())
		}
		if !b.wait(ctx, backoff) {
			return
		}
		backoff = min(backoff*2, b.cfg.MaxBackoff)
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// session runs one connection from open to read failure.  connected
// reports whether the port was opened.
func (b *Bridge) session(ctx context.Context, onLine func(line string)) (connected bool, err error) {
	name := b.cfg.Port
	if name == "" {
		found, err := b.discover()
		if err != nil {
			return false, err
		}
		name = found
	}
	port, err := b.open(name, b.cfg.BaudRate)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", name, err)
	}
	b.mu.Lock()
	b.port = port
	b.mu.Unlock()
	b.log.Info("controller connected", "port", name, "baud", b.cfg.BaudRate)

	stop := context.AfterFunc(ctx, func() { _ = port.Close() })
	defer stop()
	defer func() {
		b.mu.Lock()
		b.port = nil
		b.mu.Unlock()
		_ = port.Close()
	}()

	scanner := bufio.NewScanner(port)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		b.log.Debug("received", "line", line)
		onLine(line)
	}
	if err := scanner.Err(); err != nil {
		return true, err
	}
	return true, io.EOF
}
