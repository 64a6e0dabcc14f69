package directory

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"privmsg/internal/domain"
	"privmsg/internal/metrics"
	"privmsg/internal/util/ratelimiter"
)

// maxBodyBytes bounds request bodies accepted by the server.
const maxBodyBytes = 1 << 20

// ServerOptions configures NewServer. Zero values disable the optional parts.
type ServerOptions struct {
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Limiter *ratelimiter.MapLimiter
	Now     func() time.Time
}

// Server is an in-memory keydir. It only ever holds public keys and
// ciphertext envelopes.
type Server struct {
	opts ServerOptions
	mux  *http.ServeMux

	mu    sync.RWMutex
	keys  map[domain.UserID]domain.PublishedKey
	queue map[domain.UserID][]domain.Envelope
}

// NewServer returns a ready Server.
func NewServer(opts ServerOptions) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:  opts,
		mux:   http.NewServeMux(),
		keys:  make(map[domain.UserID]domain.PublishedKey),
		queue: make(map[domain.UserID][]domain.Envelope),
	}
	s.route("PUT /keys/{user}", "/keys", s.putKey)
	s.route("GET /keys/{user}", "/keys", s.getKey)
	s.route("POST /msg/{user}", "/msg", s.postMsg)
	s.route("GET /msg/{user}", "/msg", s.getMsg)
	s.route("POST /msg/{user}/ack", "/msg/ack", s.ackMsg)
	if opts.Metrics != nil {
		s.mux.Handle("GET /metrics", opts.Metrics.Handler())
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

// route registers h behind rate limiting, access logging and metrics.
func (s *Server) route(pattern, label string, h http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := s.opts.Now()
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		if !s.opts.Limiter.Allow(remoteHost(r), start) {
			http.Error(rw, "rate limited", http.StatusTooManyRequests)
		} else {
			r.Body = http.MaxBytesReader(rw, r.Body, maxBodyBytes)
			h(rw, r)
		}
		s.opts.Metrics.DirectoryRequest(label, strconv.Itoa(rw.status))
		s.opts.Logger.Info("access",
			"method", r.Method,
			"route", label,
			"user_id", r.PathValue("user"),
			"status", rw.status,
			"bytes", rw.bytes,
			"duration", s.opts.Now().Sub(start),
		)
	})
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	var key domain.PublishedKey
	if err := json.NewDecoder(r.Body).Decode(&key); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if key.User != user || key.Public.IsZero() {
		http.Error(w, "key does not match user", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.keys[user] = key
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	s.mu.RLock()
	key, ok := s.keys[user]
	s.mu.RUnlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, key)
}

func (s *Server) postMsg(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	var env domain.Envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if env.To != user {
		http.Error(w, "recipient does not match path", http.StatusBadRequest)
		return
	}
	if env.Ciphertext == "" || env.SchemeVersion <= 0 {
		http.Error(w, "only encrypted envelopes are accepted", http.StatusUnprocessableEntity)
		return
	}
	if env.Timestamp == 0 {
		env.Timestamp = s.opts.Now().Unix()
	}
	s.mu.Lock()
	s.queue[user] = append(s.queue[user], env)
	s.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) getMsg(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "bad limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	s.mu.RLock()
	q := s.queue[user]
	if limit == 0 || limit > len(q) {
		limit = len(q)
	}
	out := append([]domain.Envelope{}, q[:limit]...)
	s.mu.RUnlock()
	writeJSON(w, out)
}

func (s *Server) ackMsg(w http.ResponseWriter, r *http.Request) {
	user := domain.UserID(r.PathValue("user"))
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Count < 0 {
		http.Error(w, "bad ack", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	q := s.queue[user]
	if body.Count >= len(q) {
		delete(s.queue, user)
	} else {
		s.queue[user] = append([]domain.Envelope(nil), q[body.Count:]...)
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += n
	return n, err
}
