package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"spectral/internal/api"
	"spectral/internal/blob"
	"spectral/internal/config"
	"spectral/internal/logging"
	"spectral/internal/ratings"
	"spectral/internal/services"
)

const mediaRoutePrefix = "/media"

type httpServer struct {
	bind           string
	log            *slog.Logger
	svc            *api.Service
	daemon         *Daemon
	moderatorToken string
	cacheSeconds   int
	mediaDir       string
	blobs          *blob.FileStore

	listener net.Listener
	server   *http.Server
}

func newHTTPServer(cfg *config.Config, svc *api.Service, d *Daemon, logger *slog.Logger) *httpServer {
	srv := &httpServer{
		bind:           strings.TrimSpace(cfg.Paths.APIBind),
		log:            logging.NewComponentLogger(logger, "daemon.http"),
		svc:            svc,
		daemon:         d,
		moderatorToken: strings.TrimSpace(cfg.API.ModeratorToken),
		cacheSeconds:   cfg.API.PublicCacheSecs,
		mediaDir:       cfg.Paths.MediaDir,
	}
	if srv.cacheSeconds <= 0 {
		srv.cacheSeconds = 86400
	}
	if blobs, err := blob.NewFileStore(cfg.Paths.MediaDir, mediaRoutePrefix); err == nil {
		srv.blobs = blobs
	}

	srv.server = &http.Server{
		Handler:           srv.routes(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *httpServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestID)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/healthz", s.handleHealthz)
		r.Get("/status", s.handleStatus)

		r.Route("/encounters", func(r chi.Router) {
			r.Post("/", s.handleSubmit)
			r.Get("/", s.handleSearch)
			r.Get("/{id}", s.handleGet)
			r.Post("/{id}/ratings", s.handleRate)
			r.Post("/{id}/verifications", s.handleVerify)
		})

		r.Route("/moderation", func(r chi.Router) {
			r.Use(s.requireModerator)
			r.Get("/pending", s.handleListPending)
			r.Post("/encounters/{id}/approve", s.handleApprove)
			r.Post("/encounters/{id}/reject", s.handleReject)
			r.Post("/encounters/{id}/enhance", s.handleEnhance)
		})
	})

	r.Handle(mediaRoutePrefix+"/*", http.StripPrefix(mediaRoutePrefix+"/",
		http.FileServer(http.Dir(s.mediaDir))))
	return r
}

func (s *httpServer) start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return services.Wrap(services.ErrUnavailable, "daemon", "listen", "api bind failed", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("api server error", logging.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.log.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *httpServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *httpServer) addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *httpServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *httpServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running:      status.Running,
		Address:      status.Address,
		QueueReady:   status.Queue.Ready,
		QueueLeased:  status.Queue.Leased,
		QueueDead:    status.Queue.Dead,
		DatabasePath: status.DatabasePath,
	})
}

func (s *httpServer) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if !s.decode(w, r, &body) {
		return
	}
	encounterTime, err := parseEncounterTime(body.EncounterTime)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp, err := s.svc.Submit(r.Context(), api.SubmitRequest{
		Title:         body.Title,
		AuthorName:    body.AuthorName,
		DeviceID:      body.DeviceID,
		Latitude:      body.Latitude,
		Longitude:     body.Longitude,
		Address:       body.Address,
		Story:         body.Story,
		EncounterTime: encounterTime,
		Public:        body.Public,
		ImageCount:    body.ImageCount,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, submitResponse{
		ID:         resp.ID,
		Status:     string(resp.Status),
		UploadURLs: s.keysToURLs(resp.UploadKeys),
	})
}

func (s *httpServer) handleGet(w http.ResponseWriter, r *http.Request) {
	enc, err := s.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "max-age="+strconv.Itoa(s.cacheSeconds))
	s.writeJSON(w, http.StatusOK, s.encounterView(enc))
}

func (s *httpServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	lat, latErr := strconv.ParseFloat(query.Get("lat"), 64)
	lon, lonErr := strconv.ParseFloat(query.Get("lon"), 64)
	radius, radiusErr := strconv.ParseFloat(query.Get("radius_km"), 64)
	if latErr != nil || lonErr != nil || radiusErr != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "daemon", "search",
			"lat, lon, and radius_km query parameters are required", nil))
		return
	}
	limit, _ := strconv.Atoi(query.Get("limit"))

	resp, err := s.svc.Search(r.Context(), api.SearchRequest{
		Latitude:  lat,
		Longitude: lon,
		RadiusKm:  radius,
		Limit:     limit,
		Token:     query.Get("token"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	results := make([]searchResultView, 0, len(resp.Results))
	for _, result := range resp.Results {
		results = append(results, searchResultView{
			Encounter:      s.encounterView(result.Encounter),
			DistanceMeters: result.DistanceMeters,
		})
	}
	s.writeJSON(w, http.StatusOK, searchResponse{
		Results:   results,
		Count:     resp.Count,
		NextToken: resp.NextToken,
	})
}

func (s *httpServer) handleRate(w http.ResponseWriter, r *http.Request) {
	var body rateRequest
	if !s.decode(w, r, &body) {
		return
	}
	if err := s.svc.Rate(r.Context(), chi.URLParam(r, "id"), body.DeviceID, body.Rating); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *httpServer) handleVerify(w http.ResponseWriter, r *http.Request) {
	var body verifyRequest
	if !s.decode(w, r, &body) {
		return
	}
	result, err := s.svc.Verify(r.Context(), ratings.VerificationInput{
		EncounterID: chi.URLParam(r, "id"),
		Latitude:    body.Latitude,
		Longitude:   body.Longitude,
		Spookiness:  body.Spookiness,
		Note:        body.Note,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, verifyResponse{
		ID:             result.ID,
		TimeMatched:    result.TimeMatched,
		DistanceMeters: result.DistanceMeters,
	})
}

func (s *httpServer) handleListPending(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	resp, err := s.svc.ListPending(r.Context(), limit, query.Get("token"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	encounters := make([]encounterView, 0, len(resp.Encounters))
	for _, enc := range resp.Encounters {
		encounters = append(encounters, s.encounterView(enc))
	}
	s.writeJSON(w, http.StatusOK, listPendingResponse{
		Encounters: encounters,
		Count:      resp.Count,
		NextToken:  resp.NextToken,
	})
}

func (s *httpServer) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.svc.Approve(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moderationResponse{ID: id, Status: "approved"})
}

func (s *httpServer) handleReject(w http.ResponseWriter, r *http.Request) {
	var body rejectRequest
	if !s.decode(w, r, &body) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.svc.Reject(r.Context(), id, body.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, moderationResponse{ID: id, Status: "rejected"})
}

func (s *httpServer) handleEnhance(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	queued, status, err := s.svc.Enhance(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, enhanceResponse{ID: id, Queued: queued, Status: string(status)})
}

func parseEncounterTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, nil
	}
	parsed, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, services.Wrap(services.ErrValidation, "daemon", "submit",
			"encounterTime must be RFC 3339", err)
	}
	return parsed, nil
}

func (s *httpServer) keysToURLs(keys []string) []string {
	urls := make([]string, 0, len(keys))
	for _, key := range keys {
		if s.blobs != nil {
			urls = append(urls, s.blobs.URL(key))
			continue
		}
		urls = append(urls, key)
	}
	return urls
}

func (s *httpServer) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := decoder.Decode(into); err != nil {
		s.writeError(w, r, services.Wrap(services.ErrValidation, "daemon", "decode",
			"request body is not valid JSON", err))
		return false
	}
	return true
}

func (s *httpServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log.Error("failed to encode response", logging.Error(err))
	}
}

// writeError renders the uniform error envelope from the classified error.
func (s *httpServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := services.HTTPStatus(err)
	code := services.Code(err)
	if status >= http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed",
			logging.Error(err),
			logging.String("path", r.URL.Path))
	}
	s.writeJSON(w, status, errorEnvelope{Error: errorBody{Code: code, Message: err.Error()}})
}
