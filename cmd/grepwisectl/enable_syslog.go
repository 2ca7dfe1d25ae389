package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"
)

// runEnableSyslog implements `enable-syslog`: it creates a SYSLOG-kind
// source via the REST API and, unless -S is given, starts it. An existing
// source is not updated: an id that is already registered is reported as
// an API error.
func runEnableSyslog(args []string) int {
	fs := flag.NewFlagSet("enable-syslog", flag.ContinueOnError)
	baseURL := fs.String("H", "http://localhost:8080", "GrepWise API base URL")
	port := fs.Int("P", 0, "syslog port to listen on")
	proto := fs.String("p", "UDP", "TCP or UDP")
	format := fs.String("f", "RFC5424", "RFC5424 or RFC3164")
	id := fs.String("i", "", "source id (generated if omitted)")
	name := fs.String("n", "", "source name")
	skipStart := fs.Bool("S", false, "create the source but do not start it")
	if err := fs.Parse(args); err != nil {
		return exitBadArgs
	}

	if *port <= 0 {
		fmt.Fprintln(os.Stderr, "enable-syslog: -P port is required")
		return exitBadArgs
	}
	if *proto != "TCP" && *proto != "UDP" {
		fmt.Fprintln(os.Stderr, "enable-syslog: -p must be TCP or UDP")
		return exitBadArgs
	}
	if *format != "RFC5424" && *format != "RFC3164" {
		fmt.Fprintln(os.Stderr, "enable-syslog: -f must be RFC5424 or RFC3164")
		return exitBadArgs
	}
	if *name == "" {
		*name = fmt.Sprintf("syslog-%d", *port)
	}

	client := newAPIClient(*baseURL)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	payload := map[string]interface{}{
		"id": *id, "name": *name, "kind": "SYSLOG", "enabled": !*skipStart,
		"port": *port, "proto": *proto, "format": *format,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enable-syslog:", err)
		return exitAPIError
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.baseURL+"/api/sources", newJSONBody(raw))
	if err != nil {
		fmt.Fprintln(os.Stderr, "enable-syslog:", err)
		return exitAPIError
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.http.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "enable-syslog: backend unreachable:", err)
		return exitUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		fmt.Fprintln(os.Stderr, "enable-syslog:", decodeAPIError(resp))
		return exitAPIError
	}

	fmt.Printf("source %q enabled (port=%d proto=%s format=%s)\n", *name, *port, *proto, *format)
	return exitOK
}
