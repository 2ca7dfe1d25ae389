// Package listener implements the Network Listeners: syslog over UDP/TCP and
// an HTTP log-intake receiver, each feeding parsed records into the shared
// ingestion buffer.
package listener

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
	"github.com/ozkanpakdil/grepwise-sub005/internal/logging"
	"github.com/ozkanpakdil/grepwise-sub005/internal/metrics"
	"github.com/ozkanpakdil/grepwise-sub005/internal/record"
)

// MaxUDPFrameBytes is the largest syslog datagram accepted; oversize
// datagrams are silently dropped (with a metric increment) rather than
// truncated, since truncating would corrupt the frame.
const MaxUDPFrameBytes = 64 * 1024

// gracePeriod bounds how long Stop waits for in-flight work to finish.
const gracePeriod = 5 * time.Second

// UDPConfig configures the syslog UDP listener.
type UDPConfig struct {
	Addr     string // e.g. ":514"
	SourceID string
}

// UDPListener accepts one syslog frame per UDP datagram.
type UDPListener struct {
	cfg     UDPConfig
	buf     *buffer.Buffer
	log     *logging.Logger
	metrics *metrics.Metrics

	mu     sync.Mutex
	conn   *net.UDPConn
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

func NewUDPListener(cfg UDPConfig, buf *buffer.Buffer, log *logging.Logger, m *metrics.Metrics) *UDPListener {
	return &UDPListener{cfg: cfg, buf: buf, log: log, metrics: m}
}

// Start binds the UDP socket and begins accepting datagrams.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.cfg.Addr)
	if err != nil {
		return err
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	l.mu.Lock()
	l.conn = conn
	l.cancel = cancel
	l.mu.Unlock()

	l.wg.Add(1)
	go l.acceptLoop(runCtx, conn)
	return nil
}

// Stop closes the socket and waits up to the grace period for the accept
// loop to exit.
func (l *UDPListener) Stop(ctx context.Context) error {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	conn := l.conn
	l.mu.Unlock()
	if conn != nil {
		_ = conn.Close()
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

func (l *UDPListener) acceptLoop(ctx context.Context, conn *net.UDPConn) {
	defer l.wg.Done()
	frame := make([]byte, MaxUDPFrameBytes+1)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, _, err := conn.ReadFromUDP(frame)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			continue
		}
		if n > MaxUDPFrameBytes {
			if l.metrics != nil {
				l.metrics.RecordIngest(l.cfg.SourceID, 0, 1)
			}
			if l.log != nil {
				l.log.Warn2(ctx, "dropped oversize syslog UDP datagram", map[string]interface{}{
					"source": l.cfg.SourceID, "bytes": n,
				})
			}
			continue
		}

		rec := parseSyslogFrame(l.cfg.SourceID, string(frame[:n]))
		accepted := 0
		if l.buf != nil && l.buf.Add(rec) {
			accepted = 1
		}
		if l.metrics != nil {
			l.metrics.RecordIngest(l.cfg.SourceID, accepted, 1-accepted)
		}
	}
}

// parseSyslogFrame tries RFC5424 first (it has an unambiguous VERSION
// field after PRI), falling back to RFC3164.
func parseSyslogFrame(source, frame string) record.Record {
	now := record.NowMillis()
	if looksLikeRFC5424(frame) {
		return record.ParseRFC5424(source, frame, now)
	}
	return record.ParseRFC3164(source, frame, now)
}

func looksLikeRFC5424(frame string) bool {
	end := -1
	for i, c := range frame {
		if c == '>' {
			end = i
			break
		}
		if i > 5 {
			break
		}
	}
	if end < 0 || end+1 >= len(frame) {
		return false
	}
	return frame[end+1] == '1' && (end+2 >= len(frame) || frame[end+2] == ' ')
}
