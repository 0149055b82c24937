// Package proxy implements the host-facing HTTP surface: the admin
// endpoints and the DICOMweb reverse proxy (spec §4.8/§6.2), following the
// plain net/http.ServeMux + manual path-segment parsing style used for the
// broker's HTTP surface rather than a router framework.
package proxy

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rhavekost/dicomweb-oauth-broker/internal/config"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/errs"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/metrics"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/ratelimit"
	"github.com/rhavekost/dicomweb-oauth-broker/internal/tokenmanager"
	"github.com/rhavekost/dicomweb-oauth-broker/pkg/logging"
)

const (
	statusPathPrefix  = "/dicomweb-oauth/status"
	serversPathPrefix = "/dicomweb-oauth/servers"
	proxyPathPrefix   = "/oauth-dicom-web/servers/"
)

// Handler serves the admin and proxy endpoints for one broker instance.
type Handler struct {
	pluginVersion string
	cfg           config.GlobalConfig
	managers      map[string]*tokenmanager.Manager
	limiter       *ratelimit.Limiter
	metrics       *metrics.Registry

	upstream func(serverCfg config.ServerConfig) http.Handler
}

// New constructs the admin+proxy Handler for the given servers and their
// already-built Token Managers.
func New(pluginVersion string, cfg config.GlobalConfig, managers map[string]*tokenmanager.Manager, limiter *ratelimit.Limiter, reg *metrics.Registry) *Handler {
	h := &Handler{
		pluginVersion: pluginVersion,
		cfg:           cfg,
		managers:      managers,
		limiter:       limiter,
		metrics:       reg,
	}
	h.upstream = func(serverCfg config.ServerConfig) http.Handler {
		return newReverseProxy(serverCfg)
	}
	return h
}

// Mux builds the http.ServeMux routing table for §6.2's four surfaces.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc(statusPathPrefix, h.handleStatus)
	mux.HandleFunc(serversPathPrefix, h.handleServersOrTest)
	mux.HandleFunc(serversPathPrefix+"/", h.handleServersOrTest)
	mux.HandleFunc(proxyPathPrefix, h.handleProxy)
	return mux
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErrorEnvelope(w, http.StatusMethodNotAllowed, h.pluginVersion, "method not allowed", "InvalidRequest")
		return
	}

	data := map[string]interface{}{
		"status":             "ok",
		"token_managers":     len(h.managers),
		"servers_configured": len(h.cfg.Servers),
		"servers":            serverNames(h.cfg),
	}
	writeEnvelope(w, http.StatusOK, h.pluginVersion, data)
}

// handleServersOrTest dispatches GET /dicomweb-oauth/servers and
// POST /dicomweb-oauth/servers/{name}/test, since both share the same
// path prefix.
func (h *Handler) handleServersOrTest(w http.ResponseWriter, r *http.Request) {
	tail := strings.TrimPrefix(r.URL.Path, serversPathPrefix)
	tail = strings.Trim(tail, "/")

	if tail == "" {
		if r.Method != http.MethodGet {
			writeErrorEnvelope(w, http.StatusMethodNotAllowed, h.pluginVersion, "method not allowed", "InvalidRequest")
			return
		}
		writeEnvelope(w, http.StatusOK, h.pluginVersion, map[string]interface{}{"servers": serverNames(h.cfg)})
		return
	}

	segments := strings.Split(tail, "/")
	if len(segments) != 2 || segments[1] != "test" || r.Method != http.MethodPost {
		writeErrorEnvelope(w, http.StatusBadRequest, h.pluginVersion, "unknown route", "InvalidRequest")
		return
	}

	name := segments[0]
	mgr, ok := h.managers[name]
	if !ok {
		writeErrorEnvelope(w, http.StatusBadRequest, h.pluginVersion, "unknown server: "+name, "InvalidServerName")
		return
	}

	token, err := mgr.GetToken(r.Context())
	if err != nil {
		h.writeTokenError(w, name, err)
		return
	}

	data := map[string]interface{}{
		"server":        name,
		"token_preview": maskToken(token),
		"breaker_state": mgr.BreakerState().String(),
	}
	if expiresIn, ok := mgr.CachedExpiresIn(); ok {
		data["expires_in"] = int(expiresIn.Seconds())
	}
	writeEnvelope(w, http.StatusOK, h.pluginVersion, data)
}

func maskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:4] + "..." + token[len(token)-4:]
}

func serverNames(cfg config.GlobalConfig) []string {
	names := make([]string, 0, len(cfg.Servers))
	for name := range cfg.Servers {
		names = append(names, name)
	}
	return names
}

// handleProxy implements spec §4.8: rate limiting, token acquisition,
// forwarded request construction, and streaming response relay.
func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, proxyPathPrefix)
	segments := strings.SplitN(rest, "/", 2)
	name := segments[0]
	remainingPath := ""
	if len(segments) == 2 {
		remainingPath = segments[1]
	}

	serverCfg, ok := h.cfg.Servers[name]
	if !ok {
		writeErrorEnvelope(w, http.StatusBadRequest, h.pluginVersion, "unknown server: "+name, "InvalidServerName")
		return
	}

	clientKey := clientIdentity(r)
	if h.limiter != nil {
		decision := h.limiter.CheckAndRecord(clientKey)
		if !decision.Admitted {
			if h.metrics != nil {
				h.metrics.RateLimitRejectedTotal.WithLabelValues("client_ip").Inc()
			}
			logging.Audit(logging.SecurityEvent{
				Kind:   logging.EventRateLimitExceeded,
				Server: name,
				Fields: map[string]string{"client": clientKey},
			})
			writeEnvelope(w, http.StatusTooManyRequests, h.pluginVersion, map[string]interface{}{
				"error":          "rate limit exceeded",
				"error_type":     "RateLimitExceeded",
				"max_requests":   decision.Limit,
				"window_seconds": int(decision.Window.Seconds()),
			})
			return
		}
	}

	mgr, ok := h.managers[name]
	if !ok {
		writeErrorEnvelope(w, http.StatusBadRequest, h.pluginVersion, "unknown server: "+name, "InvalidServerName")
		return
	}

	token, err := mgr.GetToken(r.Context())
	if err != nil {
		h.writeTokenError(w, name, err)
		return
	}

	start := time.Now()
	rp := h.upstream(serverCfg)
	recorder := &statusRecordingWriter{ResponseWriter: w}

	r2 := r.Clone(r.Context())
	r2.URL.Path = "/" + remainingPath
	r2.URL.RawPath = ""
	r2.Header.Del("Authorization")
	r2.Header.Del("Host")
	r2.Header.Set("Authorization", "Bearer "+token)

	rp.ServeHTTP(recorder, r2)

	if recorder.status/100 == 2 {
		logging.Info(name, "upstream %s /%s succeeded with status %d; response relayed verbatim", r.Method, remainingPath, recorder.status)
	}

	if h.metrics != nil {
		statusClass := strconv.Itoa(recorder.status/100) + "xx"
		h.metrics.HTTPRequestTotal.WithLabelValues(name, r.Method, statusClass).Inc()
		h.metrics.UpstreamRequestDuration.WithLabelValues(name, r.Method, statusClass).Observe(time.Since(start).Seconds())
	}
}

// clientIdentity resolves the rate-limit key for an inbound proxy request:
// the originating client IP (spec §4.8).
func clientIdentity(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func (h *Handler) writeTokenError(w http.ResponseWriter, server string, err error) {
	status, errorType := classifyTokenError(err)
	logging.Error(server, err, "token acquisition failed for proxied request")
	writeErrorEnvelope(w, status, h.pluginVersion, err.Error(), errorType)
}

// classifyTokenError maps the errors that can cross the Token Manager
// boundary onto HTTP status codes, per spec §6.2/§7.
func classifyTokenError(err error) (int, string) {
	switch e := err.(type) {
	case *errs.CircuitOpen:
		return http.StatusServiceUnavailable, e.Kind()
	case *errs.RetriesExhausted:
		return http.StatusServiceUnavailable, e.Kind()
	case *errs.TokenValidationFailed:
		return http.StatusBadGateway, e.Kind()
	case *errs.TokenAcquisitionFailed:
		return http.StatusBadGateway, e.Kind()
	default:
		return http.StatusInternalServerError, "InternalError"
	}
}

// statusRecordingWriter captures the response status code written by the
// reverse proxy so it can be attached to metrics after the fact.
type statusRecordingWriter struct {
	http.ResponseWriter
	status int
}

func (s *statusRecordingWriter) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecordingWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	return s.ResponseWriter.Write(b)
}
