// Package httpapi exposes the generation daemon over HTTP: JSON endpoints for
// the generate operations, multipart upload for image-to-mesh, artifact
// downloads, and the status/health/metrics surface.
package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"forged/internal/manager"
	"forged/pkg/types"
)

// Service defines the manager methods required by the HTTP layer.
type Service interface {
	GenerateImage(ctx context.Context, req manager.ImageRequest) (manager.Result, error)
	GenerateMesh(ctx context.Context, req manager.MeshRequest) (manager.Result, error)
	GeneratePipeline(ctx context.Context, req manager.PipelineRequest) (manager.PipelineResult, error)
	Status() types.StatusResponse
	Ready() bool
}

// FileStore defines the artifact store methods required by the HTTP layer.
type FileStore interface {
	NewJobID() string
	OutputFile(name string) string
	JobDir(jobID string) (string, error)
	TempFile(jobID, suffix string) string
	Resolve(jobID, filename string) (string, error)
}

// Options configures the HTTP layer.
type Options struct {
	Store  FileStore
	Models []types.Model

	// MaxBodyBytes caps JSON request bodies. Default 1 MiB.
	MaxBodyBytes int64
	// MaxUploadBytes caps multipart uploads. Default 20 MiB.
	MaxUploadBytes int64
	// MeshSteps is the reconstruction step count for uploaded images.
	MeshSteps int
	// ImageGuidance is the guidance scale passed to the image model.
	ImageGuidance float64
	// CORSOrigins enables CORS for the listed origins when non-empty.
	CORSOrigins []string

	Logger zerolog.Logger
}

const (
	defaultMaxBodyBytes   = 1 << 20
	defaultMaxUploadBytes = 20 << 20
	defaultMeshSteps      = 75
	defaultGuidance       = 7.5

	imageArtifactExt = ".png"
	meshArtifactExt  = ".glb"
)

type server struct {
	svc Service
	st  FileStore
	opt Options
	log zerolog.Logger
}

// New builds the router.
func New(svc Service, opt Options) http.Handler {
	if opt.MaxBodyBytes <= 0 {
		opt.MaxBodyBytes = defaultMaxBodyBytes
	}
	if opt.MaxUploadBytes <= 0 {
		opt.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opt.MeshSteps <= 0 {
		opt.MeshSteps = defaultMeshSteps
	}
	if opt.ImageGuidance <= 0 {
		opt.ImageGuidance = defaultGuidance
	}
	s := &server{svc: svc, st: opt.Store, opt: opt, log: opt.Logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(MetricsMiddleware)
	r.Use(s.accessLog)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if len(opt.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: opt.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type"},
			MaxAge:         300,
		}))
	}

	r.Post("/generate/image", s.handleGenerateImage)
	r.Post("/generate/mesh", s.handleGenerateMesh)
	r.Post("/generate/full", s.handleGenerateFull)
	r.Get("/status", s.handleStatus)
	r.Get("/models", s.handleModels)
	r.Get("/download/{jobID}/{filename}", s.handleDownload)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}

func (s *server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req types.GenerateImageRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validateImageRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := s.st.NewJobID()
	filename := jobID + imageArtifactExt
	res, err := s.svc.GenerateImage(r.Context(), manager.ImageRequest{
		JobID:      jobID,
		Prompt:     req.Prompt,
		OutputPath: s.st.OutputFile(filename),
		Width:      req.Width,
		Height:     req.Height,
		Steps:      req.Steps,
		Guidance:   s.opt.ImageGuidance,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse(jobID, res))
}

func (s *server) handleGenerateMesh(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opt.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body or upload too large")
		return
	}
	file, hdr, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "image file is required")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	if ext != ".png" && ext != ".jpg" && ext != ".jpeg" {
		writeError(w, http.StatusBadRequest, "image must be a .png, .jpg or .jpeg file")
		return
	}

	jobID := s.st.NewJobID()
	tempPath := s.st.TempFile(jobID, ext)
	if err := saveUpload(tempPath, file); err != nil {
		s.log.Error().Err(err).Str("path", tempPath).Msg("save upload")
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer os.Remove(tempPath)

	res, err := s.svc.GenerateMesh(r.Context(), manager.MeshRequest{
		JobID:      jobID,
		ImagePath:  tempPath,
		OutputPath: s.st.OutputFile(jobID + meshArtifactExt),
		Steps:      s.opt.MeshSteps,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse(jobID, res))
}

func (s *server) handleGenerateFull(w http.ResponseWriter, r *http.Request) {
	var req types.GeneratePipelineRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := validatePipelineRequest(&req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	jobID := s.st.NewJobID()
	jobDir, err := s.st.JobDir(jobID)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", jobID).Msg("create job dir")
		writeError(w, http.StatusInternalServerError, "failed to create job directory")
		return
	}
	res, err := s.svc.GeneratePipeline(r.Context(), manager.PipelineRequest{
		JobID:     jobID,
		Prompt:    req.Prompt,
		Steps:     req.Steps,
		OutputDir: jobDir,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PipelineResponse{
		JobID:     jobID,
		ImagePath: downloadPath(jobID, res.Image.Artifact.Path),
		MeshPath:  downloadPath(jobID, res.Mesh.Artifact.Path),
		Stages: map[string]types.GenerateResponse{
			manager.StageImage: generateResponse(jobID, res.Image),
			manager.StageMesh:  generateResponse(jobID, res.Mesh),
		},
		TotalMS:   res.Elapsed.Milliseconds(),
		VRAMAfter: res.VRAMAfter,
	})
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Status())
}

func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.ModelsResponse{Models: s.opt.Models})
}

func (s *server) handleDownload(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	filename := chi.URLParam(r, "filename")
	path, err := s.st.Resolve(jobID, filename)
	if err != nil {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	http.ServeFile(w, r, path)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Status()
	writeJSON(w, http.StatusOK, types.HealthResponse{
		Status:          "healthy",
		GPUAvailable:    st.VRAM.Available,
		GPUName:         st.VRAM.DeviceName,
		VRAMTotalBytes:  st.VRAM.TotalBytes,
		VRAMFreeBytes:   st.VRAM.FreeBytes,
		Models:          st.Models,
		GenerationCount: st.GenerationCount,
	})
}

func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.svc.Ready() {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	w.Write([]byte("stopping"))
}

// decodeJSON enforces the content type and body cap, reporting false after
// writing the error response.
func (s *server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		writeError(w, http.StatusUnsupportedMediaType, "Content-Type must be application/json")
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.opt.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// accessLog emits one structured line per request.
func (s *server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(sr, r)
		if r.URL.Path == "/metrics" || r.URL.Path == "/healthz" {
			return
		}
		ev := s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", sr.status).
			Dur("dur", time.Since(start))
		if rid := middleware.GetReqID(r.Context()); rid != "" {
			ev = ev.Str("request_id", rid)
		}
		ev.Msg("http request")
	})
}

func generateResponse(jobID string, res manager.Result) types.GenerateResponse {
	return types.GenerateResponse{
		JobID:         jobID,
		Path:          downloadPath(jobID, res.Artifact.Path),
		GenerationMS:  res.Elapsed.Milliseconds(),
		FileSizeBytes: res.Artifact.SizeBytes,
		VRAMAfter:     res.VRAMAfter,
	}
}

func downloadPath(jobID, artifactPath string) string {
	if artifactPath == "" {
		return ""
	}
	return "/download/" + jobID + "/" + filepath.Base(artifactPath)
}

func saveUpload(path string, src io.Reader) error {
	dst, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(path)
		return err
	}
	return dst.Close()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
