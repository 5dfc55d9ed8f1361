package proxy

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/kx0101/perfgate/internal/models"
)

type CaptureConfig struct {
	ListenAddr string
	Upstream   string
	OutputFile string
	Stream     bool
	TLSCert    string
	TLSKey     string
	Logger     *slog.Logger
}

// Recorder appends RecordedCalls as NDJSON. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	w      *bufio.Writer
	stream io.Writer
}

func NewRecorder(w io.Writer, stream io.Writer) *Recorder {
	return &Recorder{w: bufio.NewWriter(w), stream: stream}
}

func (r *Recorder) Record(call models.RecordedCall) error {
	data, err := json.Marshal(call)
	if err != nil {
		return fmt.Errorf("encoding recorded call: %w", err)
	}
	data = append(data, '\n')

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.w.Write(data); err != nil {
		return err
	}

	if err := r.w.Flush(); err != nil {
		return err
	}

	if r.stream != nil {
		_, _ = r.stream.Write(data)
	}

	return nil
}

type captureKey struct{}

type capture struct {
	start time.Time
	body  []byte
}

// NewHandler forwards every request to upstream and records it once the
// upstream response headers arrive. Overlapping requests are therefore written
// in response order; Timestamp is the request start, which input.ParseCalls
// sorts on.
func NewHandler(upstream *url.URL, rec *Recorder, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(upstream)
			pr.Out.Host = upstream.Host
		},
		ModifyResponse: func(resp *http.Response) error {
			c, ok := resp.Request.Context().Value(captureKey{}).(*capture)
			if !ok {
				return nil
			}

			latency := float64(time.Since(c.start).Microseconds()) / 1000
			call := models.RecordedCall{
				URL:       recordedURL(upstream, resp.Request.URL),
				Method:    resp.Request.Method,
				Status:    resp.StatusCode,
				LatencyMs: &latency,
				Timestamp: c.start.UTC(),
			}

			if len(c.body) > 0 {
				body := string(c.body)
				call.PostData = &body
			}

			if err := rec.Record(call); err != nil {
				logger.Error("failed to record call", "method", call.Method, "url", call.URL, "error", err)
				return nil
			}

			logger.Debug("recorded call", "method", call.Method, "url", call.URL, "status", call.Status, "latency_ms", latency)
			return nil
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		c := &capture{start: time.Now()}

		if req.Body != nil {
			body, err := io.ReadAll(req.Body)
			if err != nil {
				http.Error(w, "failed to read request body", http.StatusBadRequest)
				return
			}
			c.body = body
			req.Body = io.NopCloser(bytes.NewReader(body))
		}

		proxy.ServeHTTP(w, req.WithContext(context.WithValue(req.Context(), captureKey{}, c)))
	})
}

// recordedURL is the URL as the upstream application saw it.
func recordedURL(upstream, out *url.URL) string {
	u := *out
	u.Scheme = upstream.Scheme
	u.Host = upstream.Host
	u.User = nil
	return u.String()
}

// StartReverseProxy serves until ctx is cancelled, then drains in-flight
// requests.
func StartReverseProxy(ctx context.Context, config *CaptureConfig) error {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rawUp := strings.TrimSpace(config.Upstream)
	if rawUp == "" {
		return fmt.Errorf("upstream is empty")
	}

	upURL, err := url.Parse(rawUp)
	if err != nil {
		return fmt.Errorf("invalid upstream URL: %w", err)
	}

	if upURL.Scheme == "" || upURL.Host == "" {
		return fmt.Errorf("invalid upstream URL %q: scheme and host are required", rawUp)
	}

	out, err := os.OpenFile(config.OutputFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("opening capture output: %w", err)
	}
	defer func() {
		if err := out.Close(); err != nil {
			logger.Error("failed to close capture output", "error", err)
		}
	}()

	var stream io.Writer
	if config.Stream {
		stream = os.Stdout
	}

	server := &http.Server{
		Addr:              config.ListenAddr,
		Handler:           NewHandler(upURL, NewRecorder(out, stream), logger),
		ReadTimeout:       5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
	}

	if config.TLSCert != "" && config.TLSKey != "" {
		server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("capture proxy listening", "listen", config.ListenAddr, "upstream", upURL.String(), "output", config.OutputFile)

		if server.TLSConfig != nil {
			errCh <- server.ListenAndServeTLS(config.TLSCert, config.TLSKey)
			return
		}
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("capture proxy shutting down")
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down capture proxy: %w", err)
	}

	return nil
}
