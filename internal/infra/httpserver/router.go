package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	appanalysis "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application/analysis"
	appfeedback "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/application/feedback"
	domai "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/ai"
	domain "github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/domain/analysis"
	"github.com/ghoshdipanjan/ScribbleToAzureRiches/internal/middleware"
)

const maxFeedbackRunes = 4000

// Deps is everything the HTTP surface needs.
type Deps struct {
	Analysis *appanalysis.Service
	Feedback *appfeedback.Service
	Log      *zap.Logger

	Checkers       map[string]middleware.HealthChecker
	AllowedOrigins []string
	MaxUploadBytes int64

	// APIKeys enables bearer auth when non-empty.
	APIKeys map[string]string
	// Limiter enables per-client rate limiting when set.
	Limiter *middleware.RateLimiter
	// TrustedHosts are object store hosts the registry may fetch from.
	TrustedHosts []string
}

type Router struct {
	analysis     *appanalysis.Service
	feedback     *appfeedback.Service
	log          *zap.Logger
	maxUpload    int64
	trustedHosts []string
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	maxUpload := d.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	r := &Router{
		analysis:     d.Analysis,
		feedback:     d.Feedback,
		log:          log,
		maxUpload:    maxUpload,
		trustedHosts: d.TrustedHosts,
	}

	origins := d.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	mux := chi.NewRouter()
	mux.Use(chimw.RequestID)
	mux.Use(chimw.RealIP)
	mux.Use(chimw.Recoverer)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.Logging(log))
	mux.Use(middleware.Metrics)
	if len(d.APIKeys) > 0 {
		mux.Use(middleware.APIKeyAuth(d.APIKeys))
	}
	if d.Limiter != nil {
		mux.Use(middleware.RateLimit(d.Limiter))
	}

	mux.Get("/health", middleware.HealthHandler(d.Checkers))
	mux.Get("/healthz", middleware.LivenessHandler)
	mux.Get("/readyz", middleware.ReadinessHandler)
	mux.Handle("/metrics", promhttp.Handler())

	mux.Route("/v1", func(rt chi.Router) {
		rt.Post("/analyses", r.wrap(r.handleStart))
		rt.Route("/analyses/{id}", func(rt chi.Router) {
			rt.Get("/", r.wrap(r.handleGet))
			rt.Delete("/", r.wrap(r.handleDelete))
			rt.Get("/architecture", r.wrap(r.handleArchitecture))
			rt.Get("/templates", r.wrap(r.handleTemplates))
			rt.Post("/demo", r.wrap(r.handleDemo))
		})
		rt.Post("/registry", r.wrap(r.handlePublish))
		rt.Post("/feedback", r.wrap(r.handleFeedbackSubmit))
		rt.Get("/feedback", r.wrap(r.handleFeedbackList))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		err := h(w, req)
		if err == nil {
			return
		}
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			r.log.Error("request failed",
				zap.String("path", req.URL.Path),
				zap.String("request_id", chimw.GetReqID(req.Context())),
				zap.Error(err))
		}
		writeJSON(w, status, map[string]string{"error": err.Error()})
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, domai.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	case appanalysis.IsSoft(err), errors.Is(err, domain.ErrNoTemplateAvailable):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrConcurrentUpdate):
		return http.StatusConflict
	case domain.IsUpstream(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(w http.ResponseWriter, req *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, req.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		return domain.Invalid("body", "invalid JSON: %v", err)
	}
	return nil
}

func analysisID(req *http.Request) (string, error) {
	id := chi.URLParam(req, "id")
	if err := middleware.ValidateAnalysisID(id); err != nil {
		return "", domain.Invalid("id", "%v", err)
	}
	return id, nil
}

// POST /v1/analyses (multipart, field "uploadFile")
func (r *Router) handleStart(w http.ResponseWriter, req *http.Request) error {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUpload)
	if err := req.ParseMultipartForm(r.maxUpload); err != nil {
		return domain.Invalid("uploadFile", "invalid upload: %v", err)
	}
	file, header, err := req.FormFile("uploadFile")
	if err != nil {
		return domain.Invalid("uploadFile", "image is required")
	}
	defer file.Close()
	if err := middleware.ValidateImageName(header.Filename); err != nil {
		return domain.Invalid("uploadFile", "%v", err)
	}

	res, err := r.analysis.StartAnalysis(req.Context(), file, header.Filename)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, res)
	return nil
}

// GET /v1/analyses/{id}
func (r *Router) handleGet(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	rec, err := r.analysis.GetAnalysis(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, rec)
	return nil
}

// DELETE /v1/analyses/{id}
func (r *Router) handleDelete(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	ok, err := r.analysis.DeleteAnalysis(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": ok})
	return nil
}

// GET /v1/analyses/{id}/architecture
func (r *Router) handleArchitecture(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	text, err := r.analysis.GetArchitectureDetail(req.Context(), id)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"architectureDetail": text})
	return nil
}

// GET /v1/analyses/{id}/templates?mode=single|multiple
func (r *Router) handleTemplates(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	mode, err := appanalysis.ParseMode(req.URL.Query().Get("mode"))
	if err != nil {
		return err
	}
	b, err := r.analysis.GetTemplates(req.Context(), id, mode)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"templateName":        b.Name,
		"templateDescription": b.Description,
		"bicepTemplate":       b.BicepTemplate,
		"armTemplate":         b.ArmTemplate,
		"armUrl":              b.ArmURL,
	})
	return nil
}

// POST /v1/analyses/{id}/demo
// Body: {"title": "", "description": "", "imageUrl": ""}, all optional
func (r *Router) handleDemo(w http.ResponseWriter, req *http.Request) error {
	id, err := analysisID(req)
	if err != nil {
		return err
	}
	var body struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		ImageURL    string `json:"imageUrl"`
	}
	if req.ContentLength != 0 {
		if err := decodeBody(w, req, &body); err != nil {
			return err
		}
	}
	link, err := r.analysis.PackageDemoBundle(req.Context(), id,
		middleware.SanitizeString(body.Title),
		middleware.SanitizeString(body.Description),
		strings.TrimSpace(body.ImageURL))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, map[string]string{"zipUrl": link})
	return nil
}

// POST /v1/registry
// Body: {"template": "<link or bicep text>", "architectureName": "..."}
func (r *Router) handlePublish(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Template         string `json:"template"`
		ArchitectureName string `json:"architectureName"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	ref := strings.TrimSpace(body.Template)
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if err := middleware.ValidateTemplateLink(ref, r.trustedHosts...); err != nil {
			return domain.Invalid("template", "%v", err)
		}
	}
	res, err := r.analysis.PublishToRegistry(req.Context(), ref, middleware.SanitizeString(body.ArchitectureName))
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, res)
	return nil
}

// POST /v1/feedback
// Body: {"type": "issue", "text": "..."}
func (r *Router) handleFeedbackSubmit(w http.ResponseWriter, req *http.Request) error {
	var body struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if err := decodeBody(w, req, &body); err != nil {
		return err
	}
	if err := middleware.ValidateFeedbackType(body.Type); err != nil {
		return domain.Invalid("type", "%v", err)
	}
	text := middleware.TruncateString(middleware.SanitizeString(body.Text), maxFeedbackRunes)
	e, err := r.feedback.Submit(req.Context(), strings.ToLower(body.Type), text)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusCreated, e)
	return nil
}

// GET /v1/feedback
func (r *Router) handleFeedbackList(w http.ResponseWriter, req *http.Request) error {
	list, err := r.feedback.List(req.Context())
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, list)
	return nil
}
