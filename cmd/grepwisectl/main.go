// Command grepwisectl is the administrative CLI for GrepWise: it has no
// interactive shell, only two subcommands (enable-syslog, send-logs), each
// exiting 0 on success, 1 on bad arguments, 2 when the backend is
// unreachable, and 3 on an API-level error. Styled on the teacher's slctl
// (cmd/slctl/main.go): stdlib flag.FlagSet per subcommand, a thin
// apiClient wrapping net/http.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

const (
	exitOK          = 0
	exitBadArgs     = 1
	exitUnreachable = 2
	exitAPIError    = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitBadArgs)
	}

	var code int
	switch os.Args[1] {
	case "enable-syslog":
		code = runEnableSyslog(os.Args[2:])
	case "send-logs":
		code = runSendLogs(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
		code = exitOK
	default:
		fmt.Fprintf(os.Stderr, "grepwisectl: unknown command %q\n", os.Args[1])
		printUsage()
		code = exitBadArgs
	}
	os.Exit(code)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, `grepwisectl - GrepWise administrative CLI

Usage:
  grepwisectl enable-syslog -H <base-url> -P <port> -p TCP|UDP -f RFC5424|RFC3164 -i <id> -n <name> [-S]
  grepwisectl send-logs -H <host> -P <port> -p tcp|udp -s <path> [-r <rate>] [-l <loops>] [-x]

Exit codes: 0 success, 1 bad arguments, 2 backend unreachable, 3 API error.`)
}

type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{baseURL: baseURL, http: &http.Client{}}
}

// apiErrorBody mirrors internal/httpapi's {error,kind,correlationId} shape.
type apiErrorBody struct {
	Error         string `json:"error"`
	Kind          string `json:"kind"`
	CorrelationID string `json:"correlationId"`
}

func newJSONBody(raw []byte) io.Reader {
	return bytes.NewReader(raw)
}

func decodeAPIError(resp *http.Response) error {
	var body apiErrorBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body.Error != "" {
		return fmt.Errorf("%s (%s, correlationId=%s)", body.Error, body.Kind, body.CorrelationID)
	}
	return fmt.Errorf("unexpected status %d", resp.StatusCode)
}
