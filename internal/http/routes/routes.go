package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog/hlog"

	"github.com/briangreenhill/mikud/internal/jobs"
	"github.com/briangreenhill/mikud/israelpost"
)

const (
	maxRequestBytes = 64 << 10
	maxPrefetch     = 100
)

// Lookuper resolves a zipcode for an address
type Lookuper interface {
	Lookup(ctx context.Context, addr *israelpost.Address) (string, error)
}

// Enqueuer puts prefetch tasks on the job queue; *asynq.Client satisfies it
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type Server struct {
	Router *chi.Mux
	Lookup Lookuper
	Queue  Enqueuer // nil disables prefetch
}

type ServerOptions struct {
	Lookup Lookuper
	Queue  Enqueuer
	// RequestTimeout bounds a whole request; it should exceed the upstream timeout
	RequestTimeout time.Duration
}

func New(opts ServerOptions) *Server {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if opts.RequestTimeout > 0 {
		r.Use(chimw.Timeout(opts.RequestTimeout))
	}

	s := &Server{Router: r, Lookup: opts.Lookup, Queue: opts.Queue}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("ok")); err != nil {
			hlog.FromRequest(r).Warn().Err(err).Msg("write health check response")
		}
	})

	r.Route("/v1", func(v1 chi.Router) {
		v1.Get("/zipcode", s.handleLookupQuery)
		v1.Post("/zipcode", s.handleLookupJSON)
		v1.Post("/prefetch", s.handlePrefetch)
	})

	return s
}

type zipcodeResponse struct {
	Zipcode string `json:"zipcode"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Kind   string `json:"kind"`
	Status int    `json:"status,omitempty"`
	Code   string `json:"code,omitempty"`
}

type prefetchResponse struct {
	TaskIDs []string `json:"task_ids"`
}

func (s *Server) handleLookupQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	addr := &israelpost.Address{
		City:        q.Get("city"),
		Street:      q.Get("street"),
		HouseNumber: israelpost.FlexString(q.Get("house")),
		Entrance:    israelpost.FlexString(q.Get("entrance")),
	}
	s.lookup(w, r, addr)
}

func (s *Server) handleLookupJSON(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		writeError(w, r, &israelpost.Error{Kind: israelpost.KindInvalidInput, Err: err})
		return
	}
	addr, err := israelpost.ParseAddress(body)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.lookup(w, r, addr)
}

func (s *Server) lookup(w http.ResponseWriter, r *http.Request, addr *israelpost.Address) {
	zip, err := s.Lookup.Lookup(r.Context(), addr)
	if err != nil {
		writeError(w, r, err)
		return
	}
	hlog.FromRequest(r).Debug().Str("zipcode", zip).Str("city", addr.City).Msg("zipcode resolved")
	writeJSON(w, r, http.StatusOK, zipcodeResponse{Zipcode: zip})
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	if s.Queue == nil {
		http.Error(w, "prefetch requires the redis cache backend", http.StatusServiceUnavailable)
		return
	}

	var addrs []israelpost.Address
	dec := json.NewDecoder(io.LimitReader(r.Body, maxRequestBytes))
	if err := dec.Decode(&addrs); err != nil {
		writeError(w, r, &israelpost.Error{Kind: israelpost.KindInvalidInput, Err: err})
		return
	}
	if len(addrs) == 0 || len(addrs) > maxPrefetch {
		http.Error(w, "expected between 1 and 100 addresses", http.StatusBadRequest)
		return
	}

	logger := hlog.FromRequest(r)
	ids := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		if addr.IsBlank() {
			continue
		}
		task, id, err := jobs.NewPrefetchTask(addr)
		if err != nil {
			logger.Error().Err(err).Msg("build prefetch task")
			http.Error(w, "failed to queue prefetch job", http.StatusInternalServerError)
			return
		}
		info, err := s.Queue.EnqueueContext(r.Context(), task)
		if err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
			logger.Error().Err(err).Msg("enqueue prefetch task")
			http.Error(w, "failed to queue prefetch job", http.StatusInternalServerError)
			return
		}
		if info != nil {
			logger.Debug().Str("task_id", info.ID).Str("queue", info.Queue).Msg("prefetch queued")
		}
		ids = append(ids, id)
	}
	writeJSON(w, r, http.StatusAccepted, prefetchResponse{TaskIDs: ids})
}

// statusFor maps a lookup failure onto the HTTP status we answer with
func statusFor(kind israelpost.Kind) int {
	switch kind {
	case israelpost.KindInvalidInput:
		return http.StatusBadRequest
	case israelpost.KindAddressNotFound:
		return http.StatusNotFound
	case israelpost.KindTimeout:
		return http.StatusGatewayTimeout
	case israelpost.KindBotProtection, israelpost.KindServiceUnavailable:
		return http.StatusServiceUnavailable
	case israelpost.KindNetworkUnavailable,
		israelpost.KindHTTPError,
		israelpost.KindUpstreamError,
		israelpost.KindMalformedZip,
		israelpost.KindUnexpectedFormat:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse{Error: err.Error(), Kind: israelpost.KindOf(err).String()}
	var e *israelpost.Error
	if errors.As(err, &e) {
		resp.Status = e.StatusCode
		resp.Code = e.Code
	}
	status := statusFor(israelpost.KindOf(err))

	ev := hlog.FromRequest(r).Info()
	if status >= 500 {
		ev = hlog.FromRequest(r).Warn()
	}
	ev.Err(err).Str("kind", resp.Kind).Int("status", status).Msg("zipcode lookup failed")
	writeJSON(w, r, status, resp)
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("write response")
	}
}
