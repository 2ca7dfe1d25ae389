package listener

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
)

// tcpQueueSize bounds the per-connection backlog of parsed lines awaiting a
// buffer slot; a connection stuck behind a full buffer for slowConsumerLimit
// is closed rather than left to grow unbounded.
const tcpQueueSize = 1024

const slowConsumerLimit = 30 * time.Second

// TCPConfig configures the syslog TCP listener.
type TCPConfig struct {
	Addr     string
	SourceID string
}

// TCPListener accepts newline-delimited syslog frames over persistent TCP
// connections.
type TCPListener struct {
	cfg     TCPConfig
	buf     *buffer.Buffer
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	ln     net.Listener
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewTCPListener(cfg TCPConfig, buf *buffer.Buffer, log *logging.Logger, m *metrics.Metrics) *TCPListener {
	return &TCPListener{cfg: cfg, buf: buf, log: log, metrics: m}
}

func (l *TCPListener) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", l.cfg.Addr)
	if err != nil {
		return err
	}
	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.ln = ln
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.acceptLoop(runCtx, ln)
	return nil
}

func (l *TCPListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	ln := l.ln
	l.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}

	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()

	graceCtx, cancel := context.WithTimeout(ctx, gracePeriod)
	defer cancel()
	select {
	case <-done:
		return nil
	case <-graceCtx.Done():
		return graceCtx.Err()
	}
}

func (l *TCPListener) acceptLoop(ctx context.Context, ln net.Listener) {
	defer l.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				continue
			}
		}
		l.wg.Add(1)
		go l.handleConn(ctx, conn)
	}
}

func (l *TCPListener) handleConn(ctx context.Context, conn net.Conn) {
	defer l.wg.Done()
	defer conn.Close()

	lines := make(chan string, tcpQueueSize)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-lines:
				if !ok {
					return
				}
				rec := parseSyslogFrame(l.cfg.SourceID, line)
				accepted := 0
				if l.buf != nil && l.buf.Add(rec) {
					accepted = 1
				}
				if l.metrics != nil {
					l.metrics.RecordIngest(l.cfg.SourceID, accepted, 1-accepted)
				}
			}
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		select {
		case lines <- scanner.Text():
		case <-time.After(slowConsumerLimit):
			if l.log != nil {
				l.log.Warn2(ctx, "closing slow syslog TCP connection", map[string]interface{}{
					"source": l.cfg.SourceID, "remote": conn.RemoteAddr().String(),
				})
			}
			close(lines)
			<-done
			return
		case <-ctx.Done():
			close(lines)
			<-done
			return
		}
	}
	close(lines)
	<-done
}
