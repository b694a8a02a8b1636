package api

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// LogFileName is the default name of the request/response dump file.
const LogFileName = "api.log"

// maxLoggedBody caps how much of a JSON body ends up in the log.
const maxLoggedBody = 256 * 1024

// LoggingTransport wraps an http.RoundTripper and appends a dump of every
// exchange to a log file. Only JSON bodies are logged; model and image
// downloads are recorded by their headers so the stream is never buffered.
type LoggingTransport struct {
	Transport http.RoundTripper
	logFile   *os.File
	mu        sync.Mutex
	writer    *bufio.Writer
}

// NewLoggingTransport opens logFilePath for appending.
func NewLoggingTransport(transport http.RoundTripper, logFilePath string) (*LoggingTransport, error) {
	f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open API log file %s: %w", logFilePath, err)
	}
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &LoggingTransport{
		Transport: transport,
		logFile:   f,
		writer:    bufio.NewWriter(f),
	}, nil
}

// RoundTrip executes a single HTTP transaction, logging details.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()

	var entry strings.Builder
	// Dump a clone so the bearer token never reaches the file.
	logged := req.Clone(req.Context())
	if logged.Header.Get("Authorization") != "" {
		logged.Header.Set("Authorization", "Bearer [redacted]")
	}
	if reqDump, err := httputil.DumpRequestOut(logged, false); err != nil {
		log.WithError(err).Debug("Failed to dump API request for logging")
		fmt.Fprintf(&entry, "--- Request (%s) ---\n%s %s\n", start.Format(time.RFC3339), req.Method, req.URL)
	} else {
		fmt.Fprintf(&entry, "--- Request (%s) ---\n%s\n", start.Format(time.RFC3339), reqDump)
	}

	resp, err := t.Transport.RoundTrip(req)
	duration := time.Since(start)

	if err != nil {
		fmt.Fprintf(&entry, "--- Response Error (Duration: %v) ---\n%v\n", duration, err)
		t.write(entry.String())
		return resp, err
	}

	contentType := resp.Header.Get("Content-Type")
	headers, dumpErr := httputil.DumpResponse(resp, false)
	if dumpErr != nil {
		headers = []byte(resp.Status)
	}
	fmt.Fprintf(&entry, "--- Response Headers (Duration: %v) ---\n%s\n", duration, headers)

	if strings.HasPrefix(contentType, "application/json") {
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			log.WithError(readErr).Error("Failed to read response body for logging")
			fmt.Fprintf(&entry, "(Body read failed: %v)\n", readErr)
			t.write(entry.String())
			return nil, readErr
		}
		resp.Body = io.NopCloser(bytes.NewReader(body))
		logBody := body
		if len(logBody) > maxLoggedBody {
			logBody = logBody[:maxLoggedBody]
		}
		fmt.Fprintf(&entry, "--- Response Body (%d bytes) ---\n%s\n", len(body), logBody)
	} else {
		fmt.Fprintf(&entry, "(Body not logged, type %q)\n", contentType)
	}

	t.write(entry.String())
	return resp, nil
}

func (t *LoggingTransport) write(s string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.writer.WriteString(s + "\n"); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing to API log file: %v\n", err)
		return
	}
	if err := t.writer.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error flushing API log file: %v\n", err)
	}
}

// Close flushes and closes the underlying log file.
func (t *LoggingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	errFlush := t.writer.Flush()
	errClose := t.logFile.Close()
	if errFlush != nil {
		return fmt.Errorf("failed to flush API log buffer: %w", errFlush)
	}
	return errClose
}
