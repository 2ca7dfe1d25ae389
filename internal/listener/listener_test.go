package listener

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ozkanpakdil/grepwise-sub005/internal/buffer"
)

func freeAddr(t *testing.T) string {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func waitForRecords(t *testing.T, buf *buffer.Buffer, n int) {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if buf.Size() >= n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d records, got %d", n, buf.Size())
}

func TestUDPListener_ParsesFrameIntoBuffer(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewUDPListener(UDPConfig{Addr: addr, SourceID: "syslog-udp"}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	_, err = conn.Write([]byte("<34>1 2024-01-01T00:00:00Z host app 123 - - failed login"))
	require.NoError(t, err)

	waitForRecords(t, buf, 1)
	recs := buf.Drain(10)
	require.Len(t, recs, 1)
	require.Equal(t, "failed login", recs[0].Message)
}

func TestUDPListener_DropsOversizeFrame(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewUDPListener(UDPConfig{Addr: addr, SourceID: "syslog-udp"}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	conn, err := net.Dial("udp", addr)
	require.NoError(t, err)
	oversize := bytes.Repeat([]byte("a"), MaxUDPFrameBytes+10)
	_, err = conn.Write(oversize)
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, buf.Size())
}

func TestTCPListener_ParsesNewlineFramedLines(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewTCPListener(TCPConfig{Addr: addr, SourceID: "syslog-tcp"}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()
	_, err = conn.Write([]byte("<34>1 2024-01-01T00:00:00Z host app 123 - - one\n<34>1 2024-01-01T00:00:01Z host app 123 - - two\n"))
	require.NoError(t, err)

	waitForRecords(t, buf, 2)
}

func TestHTTPListener_AcceptsSingleRecord(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewHTTPListener(HTTPConfig{Addr: addr}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(fmt.Sprintf("http://%s/api/logs/app1", addr), "application/json",
		bytes.NewBufferString(`{"message":"hello","level":"ERROR"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	recs := buf.Drain(10)
	require.Len(t, recs, 1)
	require.Equal(t, "hello", recs[0].Message)
	require.Equal(t, "app1", recs[0].Source)
}

func TestHTTPListener_RejectsMissingAuthToken(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	lookup := func(sourceID string) SourceAuth { return SourceAuth{RequireAuth: true, Token: "secret"} }
	l := NewHTTPListener(HTTPConfig{Addr: addr, Lookup: lookup}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(fmt.Sprintf("http://%s/api/logs/app1", addr), "application/json",
		bytes.NewBufferString(`{"message":"hello"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestHTTPListener_RejectsOversizeBody(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewHTTPListener(HTTPConfig{Addr: addr}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	oversize := bytes.Repeat([]byte("a"), MaxIntakeBodyBytes+10)
	resp, err := http.Post(fmt.Sprintf("http://%s/api/logs/app1", addr), "application/json", bytes.NewReader(oversize))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestHTTPListener_AcceptsBatch(t *testing.T) {
	addr := freeAddr(t)
	buf := buffer.New(buffer.DefaultConfig(), nil, nil)
	l := NewHTTPListener(HTTPConfig{Addr: addr}, buf, nil, nil)

	require.NoError(t, l.Start(context.Background()))
	defer l.Stop(context.Background())
	time.Sleep(50 * time.Millisecond)

	resp, err := http.Post(fmt.Sprintf("http://%s/api/logs/app1/batch", addr), "application/json",
		bytes.NewBufferString(`[{"message":"one"},{"message":"two"}]`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	waitForRecords(t, buf, 2)
}
