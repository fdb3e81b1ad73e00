package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/berfenger/serial2govee/internal/core/port"

	"gopkg.in/yaml.v3"
)

const (
	exitHTTPFailure  = 2
	exitWriteFailure = 3
)

type outputFormat string

const (
	formatJSON outputFormat = "json"
	formatYAML outputFormat = "yaml"
)

type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

func parseFormat(value string) (outputFormat, error) {
	switch outputFormat(value) {
	case formatJSON, formatYAML:
		return outputFormat(value), nil
	}
	return "", fmt.Errorf("unknown format %q, expected json or yaml", value)
}

// dump fetches the listing, prints it indented to stdout and writes it to outPath.
func dump(ctx context.Context, lister port.DeviceLister, outPath string, format outputFormat, stdout io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	body, err := lister.ListDevices(ctx)
	if err != nil {
		return &exitError{code: exitHTTPFailure, err: fmt.Errorf("HTTP request failed: %w", err)}
	}

	pretty := prettyJSON(body)
	fmt.Fprintln(stdout, string(pretty))

	out := pretty
	if format == formatYAML {
		out, err = toYAML(body)
		if err != nil {
			return &exitError{code: exitWriteFailure, err: fmt.Errorf("converting to yaml: %w", err)}
		}
	}
	if err := os.WriteFile(outPath, out, 0o644); err != nil {
		return &exitError{code: exitWriteFailure, err: fmt.Errorf("failed to write %s: %w", outPath, err)}
	}

	fmt.Fprintf(stdout, "Wrote response to %s\n", outPath)
	return nil
}

// prettyJSON keeps the key order of the response. Bodies that are not JSON are
// returned unchanged.
func prettyJSON(body []byte) []byte {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(body), "", "  "); err != nil {
		return body
	}
	return buf.Bytes()
}

func toYAML(body []byte) ([]byte, error) {
	var value any
	if err := json.Unmarshal(body, &value); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(value); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
