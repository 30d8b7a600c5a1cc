// Package proxy implements the forwarding capture proxy.
package proxy

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/HakAl/spindle/internal/capture"
	"github.com/HakAl/spindle/internal/config"
	"github.com/HakAl/spindle/internal/journal"
	"github.com/HakAl/spindle/internal/store"
	"github.com/google/uuid"
)

// Server forwards every request to a fixed upstream host verbatim while
// teeing streaming response chunks into a per-request block assembler.
type Server struct {
	cfg      *config.Config
	logger   *slog.Logger
	upstream *url.URL
	server   *http.Server
	client   *http.Client
	journal  *journal.Journal
	store    store.Store

	// onSpindle is called for each sealed spindle (e.g. live feed broadcast).
	onSpindle func(*store.Spindle)
}

// ServerConfig holds dependencies for creating a proxy Server.
type ServerConfig struct {
	Config    *config.Config
	Logger    *slog.Logger
	Journal   *journal.Journal
	Store     store.Store
	OnSpindle func(*store.Spindle)
}

// New creates a new proxy Server.
func New(cfg ServerConfig) (*Server, error) {
	if cfg.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Journal == nil {
		return nil, fmt.Errorf("journal is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	upstream, err := url.Parse(cfg.Config.Proxy.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("parsing upstream URL: %w", err)
	}
	if upstream.Scheme == "" || upstream.Host == "" {
		return nil, fmt.Errorf("upstream URL %q must include scheme and host", cfg.Config.Proxy.UpstreamURL)
	}

	// HTTP client for forwarding requests
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: false,
		},
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Transport: transport,
		// Don't follow redirects - let the client handle them
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
		Timeout: 0, // Per-request contexts carry the upper bound
	}

	p := &Server{
		cfg:       cfg.Config,
		logger:    cfg.Logger,
		upstream:  upstream,
		client:    client,
		journal:   cfg.Journal,
		store:     cfg.Store,
		onSpindle: cfg.OnSpindle,
	}

	p.server = &http.Server{
		Addr:         cfg.Config.Proxy.Listen,
		Handler:      p,
		ReadTimeout:  0, // No timeout for streaming
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	return p, nil
}

// Serve starts the proxy server and blocks until the context is cancelled.
func (p *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", p.server.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return p.ServeListener(ctx, ln)
}

// ServeListener starts the proxy server using the provided listener.
func (p *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		p.logger.Info("shutting down proxy")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = p.server.Shutdown(shutdownCtx)
	}()

	p.logger.Info("proxy listening", "addr", ln.Addr().String(), "upstream", p.upstream.String())
	if err := p.server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}

	return nil
}

// ServeHTTP handles incoming HTTP requests of any method and path.
func (p *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	connectionID := uuid.New().String()
	p.logger.Debug("incoming request",
		"connection_id", connectionID, "method", r.Method, "path", r.URL.Path)

	var sessionID *string
	if v := r.Header.Get(p.cfg.Proxy.SessionHeader); v != "" {
		sessionID = &v
	}

	// Forward to the fixed upstream, preserving path and query string
	outURL := *p.upstream
	outURL.Path = singleJoiningSlash(p.upstream.Path, r.URL.Path)
	outURL.RawQuery = r.URL.RawQuery

	ctx, cancel := context.WithTimeout(r.Context(), p.cfg.Proxy.UpstreamTimeout())
	defer cancel()

	outReq, err := http.NewRequestWithContext(ctx, r.Method, outURL.String(), r.Body)
	if err != nil {
		p.logger.Error("failed to create upstream request", "connection_id", connectionID, "error", err)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	copyHeaders(outReq.Header, r.Header)
	removeHopByHopHeaders(outReq.Header)
	outReq.Header.Del("Host") // net/http sets Host from the URL
	// Strip Accept-Encoding so upstream sends uncompressed responses.
	// The extraction path needs plaintext to parse SSE frames.
	outReq.Header.Del("Accept-Encoding")
	outReq.Header.Del("Content-Length")
	outReq.ContentLength = r.ContentLength

	resp, err := p.client.Do(outReq)
	if err != nil {
		// No response headers were sent yet; surface an error to the client
		if errors.Is(err, context.DeadlineExceeded) {
			p.logger.Error("upstream call exceeded timeout", "connection_id", connectionID)
			http.Error(w, "Gateway timeout", http.StatusGatewayTimeout)
		} else {
			p.logger.Error("failed to forward request", "connection_id", connectionID, "error", err)
			http.Error(w, "Bad gateway", http.StatusBadGateway)
		}
		return
	}
	defer resp.Body.Close()

	isSSE := strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream")

	// Copy all upstream response headers back before streaming the body
	copyHeaders(w.Header(), resp.Header)
	removeHopByHopHeaders(w.Header())
	w.WriteHeader(resp.StatusCode)

	dump := p.openDump(connectionID)
	if dump != nil {
		defer dump.Close()
	}

	if isSSE {
		p.streamWithCapture(connectionID, sessionID, resp.Body, w, dump)
		return
	}

	// Non-streaming: relay the full body as a single unit
	out := io.Writer(w)
	if dump != nil {
		out = io.MultiWriter(w, dump)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		p.logger.Debug("error copying response", "connection_id", connectionID, "error", err)
	}
}

// streamWithCapture forwards the upstream body chunk-by-chunk while
// feeding a copy of each chunk to this request's assembler. The client
// write happens first and is never gated by extraction or persistence.
func (p *Server) streamWithCapture(connectionID string, sessionID *string, body io.Reader, w http.ResponseWriter, dump io.Writer) {
	asm := capture.NewAssembler(connectionID, sessionID, p.logger)
	client := newFlushWriter(w)

	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if _, err := client.Write(chunk); err != nil {
				p.logger.Debug("client write failed, closing stream",
					"connection_id", connectionID, "error", err)
				// Client is gone; the assembler state dies with this request
				break
			}
			if dump != nil {
				if _, err := dump.Write(chunk); err != nil {
					p.logger.Warn("raw dump write failed", "connection_id", connectionID, "error", err)
					dump = nil
				}
			}

			forward, sealed := asm.ProcessChunk(chunk)
			_ = forward // identical to chunk; already written above
			for _, sp := range sealed {
				p.dispatch(sp)
			}
		}
		if readErr != nil {
			if readErr != io.EOF {
				p.logger.Debug("error reading upstream stream",
					"connection_id", connectionID, "error", readErr)
			}
			break
		}
	}

	for _, sp := range asm.Finish() {
		p.dispatch(sp)
	}
}

// dispatch hands a sealed spindle to the journal, the store, and the
// live feed. All three are best-effort side channels.
func (p *Server) dispatch(sp *store.Spindle) {
	p.journal.Log(sp)

	if p.store != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := p.store.SaveSpindle(ctx, sp); err != nil {
				p.logger.Error("failed to save spindle", "spindle_id", sp.ID, "error", err)
			}
		}()
	}

	if p.onSpindle != nil {
		p.onSpindle(sp)
	}
}

// singleJoiningSlash joins base and request paths without doubling the slash.
func singleJoiningSlash(a, b string) string {
	aslash := strings.HasSuffix(a, "/")
	bslash := strings.HasPrefix(b, "/")
	switch {
	case aslash && bslash:
		return a + b[1:]
	case !aslash && !bslash && b != "":
		return a + "/" + b
	}
	return a + b
}

// copyHeaders copies headers from src to dst.
func copyHeaders(dst, src http.Header) {
	for name, values := range src {
		for _, value := range values {
			dst.Add(name, value)
		}
	}
}

// hopByHopHeaders are headers that should not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// removeHopByHopHeaders removes hop-by-hop headers from the header map.
func removeHopByHopHeaders(h http.Header) {
	// Get Connection header value before we delete it
	conn := h.Get("Connection")

	for _, header := range hopByHopHeaders {
		h.Del(header)
	}

	// Also remove headers listed in Connection header
	if conn != "" {
		for _, f := range strings.Split(conn, ",") {
			if f = strings.TrimSpace(f); f != "" {
				h.Del(f)
			}
		}
	}
}

// flushWriter wraps an io.Writer and flushes after each write if
// possible, so streamed chunks reach the client without buffering delay.
type flushWriter struct {
	w       io.Writer
	flusher http.Flusher
}

func newFlushWriter(w io.Writer) *flushWriter {
	fw := &flushWriter{w: w}
	if f, ok := w.(http.Flusher); ok {
		fw.flusher = f
	}
	return fw
}

func (f *flushWriter) Write(p []byte) (n int, err error) {
	n, err = f.w.Write(p)
	if err == nil && f.flusher != nil {
		f.flusher.Flush()
	}
	return n, err
}
