// Package diagnostics serves a local, read-mostly HTTP view of the overlay's
// runtime: bus services, container registrations and the content cache.
package diagnostics

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/km-arc/go-overlay/framework/container"
	"github.com/km-arc/go-overlay/framework/content"
	"github.com/km-arc/go-overlay/framework/events"
	gohttp "github.com/km-arc/go-overlay/framework/http"
	"github.com/km-arc/go-overlay/framework/metrics"
	"github.com/km-arc/go-overlay/routing"
)

// RouterServiceID is the container ID of the diagnostics router.
const RouterServiceID = "router"

// Handler holds the handlers. The content manager and the metrics
// collector are optional; their routes answer 503 and 404 without them.
type Handler struct {
	container *container.Container
	bus       *events.Bus
	content   *content.Manager
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// New creates a Handler over c and its bus.
func New(c *container.Container, manager *content.Manager, m *metrics.Collector, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		container: c,
		bus:       c.Bus(),
		content:   manager,
		metrics:   m,
		logger:    logger,
	}
}

// NewRouter builds a router with every diagnostics route registered. Its
// signature fits container.Constructor.
func NewRouter(c *container.Container, manager *content.Manager, m *metrics.Collector, logger *zap.Logger) *routing.Router {
	r := routing.New(logger)
	New(c, manager, m, logger).Routes(r)
	return r
}

// Routes registers the handlers on r.
//
//	GET    /healthz
//	GET    /services
//	GET    /services/{name}
//	POST   /services/{name}/status
//	GET    /registrations
//	GET    /content
//	POST   /content/select
//	DELETE /content/cache
//	POST   /theme
//	GET    /metrics
func (h *Handler) Routes(r *routing.Router) {
	r.Get("/healthz", h.Health)

	r.Prefix("/services", func(s *routing.Router) {
		s.Get("/", h.ListServices)
		s.Get("/{name}", h.ShowService)
		s.Post("/{name}/status", h.UpdateStatus)
	})
	r.Get("/registrations", h.ListRegistrations)

	r.Prefix("/content", func(c *routing.Router) {
		c.Get("/", h.ShowContent)
		c.Post("/select", h.SelectContent)
		c.Delete("/cache", h.ClearCache)
	})
	r.Post("/theme", h.ChangeTheme)

	r.Handle("/metrics", h.metrics.Handler())
}

// ── Views ────────────────────────────────────────────────────────────────────

type serviceView struct {
	Name      string         `json:"name"`
	Type      string         `json:"type"`
	Status    events.Status  `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type registrationView struct {
	ID           string   `json:"id"`
	Kind         string   `json:"kind"`
	Singleton    bool     `json:"singleton"`
	AutoRegister bool     `json:"autoRegister"`
	Critical     bool     `json:"critical"`
	Dependencies []string `json:"dependencies"`
	Tags         []string `json:"tags"`
	Instantiated bool     `json:"instantiated"`
}

type contentView struct {
	Initialized bool     `json:"initialized"`
	Theme       string   `json:"theme"`
	CachedKeys  []string `json:"cachedKeys"`
	Current     string   `json:"current,omitempty"`
}

func (h *Handler) service(name string) (serviceView, bool) {
	st, ok := h.bus.GetServiceStatus(name)
	if !ok {
		return serviceView{}, false
	}
	return serviceView{
		Name:      name,
		Type:      fmt.Sprintf("%T", h.bus.GetService(name)),
		Status:    st.Status,
		Timestamp: st.Timestamp,
		Metadata:  st.Metadata,
	}, true
}

// ── Health ───────────────────────────────────────────────────────────────────

// Health answers 200 while every critical service published on the bus is
// ready, 503 otherwise.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)

	var notReady []string
	for _, reg := range h.container.Registrations() {
		if !reg.IsCritical() {
			continue
		}
		if st, ok := h.bus.GetServiceStatus(reg.ID); ok && st.Status != events.StatusReady {
			notReady = append(notReady, reg.ID)
		}
	}

	body := map[string]any{
		"status":   "ok",
		"services": len(h.bus.ListServices()),
	}
	if len(notReady) > 0 {
		body["status"] = "degraded"
		body["notReady"] = notReady
		res.JSON(http.StatusServiceUnavailable, body)
		return
	}
	res.JSON(http.StatusOK, body)
}

// ── Services ─────────────────────────────────────────────────────────────────

// ListServices lists every bus service with its status.
func (h *Handler) ListServices(w http.ResponseWriter, r *http.Request) {
	names := h.bus.ListServices()
	out := make([]serviceView, 0, len(names))
	for _, name := range names {
		if v, ok := h.service(name); ok {
			out = append(out, v)
		}
	}
	gohttp.NewResponse(w).Success(out)
}

// ShowService describes one bus service, 404 when unknown.
func (h *Handler) ShowService(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	name := routing.Param(r, "name")

	v, ok := h.service(name)
	if !ok {
		res.NotFound(fmt.Sprintf("Service %q is not registered.", name))
		return
	}
	res.Success(v)
}

type statusRequest struct {
	Status   string         `json:"status" validate:"required,slug,max=64"`
	Metadata map[string]any `json:"metadata"`
}

// UpdateStatus sets the status of a bus service, which resolves matching
// EnsureService waiters.
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	req := gohttp.NewRequest(r)
	res := gohttp.NewResponse(w)
	name := req.RouteParam("name")

	var body statusRequest
	errs, err := req.BindValid(&body)
	if err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	if errs.Has() {
		res.ValidationError(errs)
		return
	}

	if !h.bus.UpdateServiceStatus(name, events.Status(body.Status), body.Metadata) {
		res.NotFound(fmt.Sprintf("Service %q is not registered.", name))
		return
	}
	h.logger.Info("service status set over diagnostics",
		zap.String("service", name),
		zap.String("status", body.Status),
	)
	v, _ := h.service(name)
	res.Success(v)
}

// ── Registrations ────────────────────────────────────────────────────────────

// ListRegistrations lists the container registrations.
func (h *Handler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	regs := h.container.Registrations()
	out := make([]registrationView, 0, len(regs))
	for _, reg := range regs {
		out = append(out, registrationView{
			ID:           reg.ID,
			Kind:         reg.Kind.String(),
			Singleton:    reg.Singleton,
			AutoRegister: reg.AutoRegister,
			Critical:     reg.IsCritical(),
			Dependencies: nonNil(reg.Dependencies),
			Tags:         nonNil(reg.Tags),
			Instantiated: reg.Instantiated,
		})
	}
	gohttp.NewResponse(w).Success(out)
}

// ── Content ──────────────────────────────────────────────────────────────────

// ShowContent describes the content cache. With Accept: text/html it
// renders the current content instead.
func (h *Handler) ShowContent(w http.ResponseWriter, r *http.Request) {
	req := gohttp.NewRequest(r)
	res := gohttp.NewResponse(w)
	if h.content == nil {
		res.ServiceUnavailable("Content manager is not available.")
		return
	}

	html, err := h.content.RenderCurrent()
	if err != nil {
		h.logger.Error("failed to render current content", zap.Error(err))
		res.Error(http.StatusInternalServerError, "Failed to render current content.")
		return
	}

	if req.WantsHTML() {
		if html == "" {
			res.NotFound("No current content.")
			return
		}
		res.HTML(http.StatusOK, html)
		return
	}

	res.Success(contentView{
		Initialized: h.content.Initialized(),
		Theme:       h.content.Theme(),
		CachedKeys:  nonNil(h.content.CachedKeys()),
		Current:     html,
	})
}

type authorRequest struct {
	Name      string `json:"name" validate:"max=128"`
	Username  string `json:"username" validate:"max=64"`
	AvatarURL string `json:"avatarUrl" validate:"omitempty,url"`
	Verified  bool   `json:"verified"`
}

type selectRequest struct {
	ID     string        `json:"id" validate:"required_without=PostID,max=256"`
	PostID string        `json:"postId" validate:"max=256"`
	Text   string        `json:"text"`
	Author authorRequest `json:"author"`
}

func (s selectRequest) payload() content.Payload {
	return content.Payload{
		ID:     s.ID,
		PostID: s.PostID,
		Text:   s.Text,
		Author: content.Author(s.Author),
	}
}

// SelectContent publishes content:selected, exactly as a page script would.
func (h *Handler) SelectContent(w http.ResponseWriter, r *http.Request) {
	req := gohttp.NewRequest(r)
	res := gohttp.NewResponse(w)

	var body selectRequest
	errs, err := req.BindValid(&body)
	if err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	if errs.Has() {
		res.ValidationError(errs)
		return
	}

	p := body.payload()
	key, _ := p.Key()
	h.bus.Publish(content.EventContentSelected, p)
	res.Accepted(map[string]any{"event": content.EventContentSelected, "key": key})
}

// ClearCache empties the content cache.
func (h *Handler) ClearCache(w http.ResponseWriter, r *http.Request) {
	res := gohttp.NewResponse(w)
	if h.content == nil {
		res.ServiceUnavailable("Content manager is not available.")
		return
	}
	h.content.ClearCache()
	res.NoContent()
}

type themeRequest struct {
	Theme string `json:"theme" validate:"omitempty,slug,max=32"`
}

// ChangeTheme publishes theme:changed. An empty theme restores the default.
func (h *Handler) ChangeTheme(w http.ResponseWriter, r *http.Request) {
	req := gohttp.NewRequest(r)
	res := gohttp.NewResponse(w)

	var body themeRequest
	errs, err := req.BindValid(&body)
	if err != nil {
		res.Error(http.StatusBadRequest, err.Error())
		return
	}
	if errs.Has() {
		res.ValidationError(errs)
		return
	}

	h.bus.Publish(content.EventThemeChanged, content.ThemeChange{Theme: body.Theme})
	out := map[string]any{"event": content.EventThemeChanged}
	if h.content != nil {
		out["theme"] = h.content.Theme()
	}
	res.Accepted(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
