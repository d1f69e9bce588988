// Package server exposes region assembly over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/slidetools/slidestitch/internal/assemble"
	"github.com/slidetools/slidestitch/internal/autodetect"
	"github.com/slidetools/slidestitch/internal/cache"
	"github.com/slidetools/slidestitch/internal/client"
	"github.com/slidetools/slidestitch/internal/fetch"
	"github.com/slidetools/slidestitch/pkg/mask"
	"github.com/slidetools/slidestitch/pkg/raster"
	"github.com/slidetools/slidestitch/pkg/slide"
)

// Server holds the shared session and tile cache behind the HTTP API.
type Server struct {
	startTime time.Time
	version   string
	client    *client.Client
	cache     *cache.Cache
}

// New creates a server instance backed by one client session and one
// cache directory shared across requests.
func New(version string, c *client.Client, tileCache *cache.Cache) *Server {
	return &Server{
		startTime: time.Now(),
		version:   version,
		client:    c,
		cache:     tileCache,
	}
}

// Routes mounts the API endpoints on a fresh router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)

	r.Get("/health", s.getHealth)
	r.Post("/region", s.createRegion)
	return r
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    int       `json:"uptime"`
	Version   string    `json:"version"`
}

type sliceSpec struct {
	Path      string `json:"path"`
	Mime      string `json:"mime"`
	ServerURL string `json:"server_url"`
}

type slideSpec struct {
	ID      int64      `json:"id"`
	Width   int        `json:"width"`
	Height  int        `json:"height"`
	MaxZoom int        `json:"max_zoom"`
	Path    string     `json:"path"`
	Mime    string     `json:"mime"`
	Slice   *sliceSpec `json:"slice,omitempty"`
}

type regionSpec struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type regionRequest struct {
	Slide    slideSpec    `json:"slide"`
	Region   regionSpec   `json:"region"`
	Zoom     int          `json:"zoom"`
	Protocol string       `json:"protocol"`
	Polygon  [][2]float64 `json:"polygon,omitempty"`
	Workers  int          `json:"workers"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

type tileErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message"`
	Col       int    `json:"col"`
	Row       int    `json:"row"`
	RequestID string `json:"request_id,omitempty"`
}

func (s *Server) getHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Uptime:    int(time.Since(s.startTime).Seconds()),
		Version:   s.version,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Printf("encoding health response: %v", err)
	}
}

func (s *Server) createRegion(w http.ResponseWriter, r *http.Request) {
	requestID := middleware.GetReqID(r.Context())

	var req regionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_JSON", "invalid JSON in request body", requestID)
		return
	}
	if err := validateRegionRequest(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
		return
	}

	sl, err := slide.NewSlide(slide.Slide{
		ID:        req.Slide.ID,
		Width:     req.Slide.Width,
		Height:    req.Slide.Height,
		MaxZoom:   req.Slide.MaxZoom,
		Zoom:      req.Zoom,
		Path:      req.Slide.Path,
		Mime:      req.Slide.Mime,
		ServerURL: s.client.BaseURL(),
		Slice:     sliceRef(req.Slide.Slice),
	})
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), requestID)
		return
	}

	fetcher, err := s.selectFetcher(r, req.Protocol, sl)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), requestID)
		return
	}

	assembler := &assemble.Assembler{Cache: s.cache, Fetcher: fetcher, Workers: req.Workers}
	region := slide.Region{X: req.Region.X, Y: req.Region.Y, W: req.Region.Width, H: req.Region.Height}

	out, err := assembler.AssembleCached(r.Context(), sl, region, polygon(req.Polygon))
	if err != nil {
		s.handleAssemblyError(w, err, requestID)
		return
	}

	data, err := raster.EncodePNG(out)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to encode region", requestID)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("X-Request-ID", requestID)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		log.Printf("writing region response: %v", err)
	}
}

func (s *Server) selectFetcher(r *http.Request, protocol string, sl *slide.Slide) (fetch.Fetcher, error) {
	if protocol == "" || protocol == "auto" {
		f, _, err := autodetect.Detect(r.Context(), s.client, sl)
		return f, err
	}
	return fetch.ByName(protocol, s.client)
}

func validateRegionRequest(req *regionRequest) error {
	if req.Slide.ID == 0 {
		return fmt.Errorf("slide.id is required")
	}
	if req.Slide.Width <= 0 || req.Slide.Height <= 0 {
		return fmt.Errorf("slide dimensions must be positive")
	}
	if req.Region.Width <= 0 || req.Region.Height <= 0 {
		return fmt.Errorf("region width and height must be positive")
	}
	if req.Region.X < 0 || req.Region.Y < 0 {
		return fmt.Errorf("region offset must not be negative")
	}
	if req.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	return nil
}

func sliceRef(s *sliceSpec) *slide.SliceRef {
	if s == nil {
		return nil
	}
	return &slide.SliceRef{Path: s.Path, Mime: s.Mime, ServerURL: s.ServerURL}
}

func polygon(points [][2]float64) mask.Polygon {
	if len(points) == 0 {
		return nil
	}
	p := make(mask.Polygon, len(points))
	for i, pt := range points {
		p[i] = mask.Point{X: pt[0], Y: pt[1]}
	}
	return p
}

func (s *Server) handleAssemblyError(w http.ResponseWriter, err error, requestID string) {
	var ee *assemble.ExtractionError
	if errors.As(err, &ee) {
		resp := tileErrorResponse{
			Error:     "TILE_EXTRACTION_ERROR",
			Message:   ee.Error(),
			Col:       ee.Col,
			Row:       ee.Row,
			RequestID: requestID,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		json.NewEncoder(w).Encode(resp)
		return
	}
	s.writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error(), requestID)
}

func (s *Server) writeError(w http.ResponseWriter, status int, code, message, requestID string) {
	resp := errorResponse{
		Error:     code,
		Message:   message,
		RequestID: requestID,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
