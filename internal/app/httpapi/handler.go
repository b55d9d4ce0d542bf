package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	app "github.com/coopenergy/platform/internal/app"
	"github.com/coopenergy/platform/internal/app/domain/exclusive"
	"github.com/coopenergy/platform/internal/app/domain/plantconfig"
	"github.com/coopenergy/platform/internal/app/domain/plantgroup"
	"github.com/coopenergy/platform/internal/app/domain/vendor"
	"github.com/coopenergy/platform/internal/app/metrics"
	"github.com/coopenergy/platform/internal/app/services/cooperatives"
	"github.com/coopenergy/platform/internal/app/services/plantconfigs"
	"github.com/coopenergy/platform/internal/app/services/plantgroups"
	"github.com/coopenergy/platform/internal/app/services/vendors"
	"github.com/coopenergy/platform/internal/errors"
	"github.com/coopenergy/platform/pkg/logger"
)

// Options configures the HTTP handler. Zero values disable the optional
// pieces.
type Options struct {
	// Debug exposes internal error messages in responses.
	Debug   bool
	Log     *logger.Logger
	Audit   *AuditLog
	Limiter *RateLimiter
	// Ready reports backing-store health for /healthz.
	Ready func(ctx context.Context) error
}

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app   *app.Application
	log   *logger.Logger
	debug bool
	audit *AuditLog
	ready func(ctx context.Context) error
	now   func() time.Time
}

// NewHandler returns a router exposing the REST API.
func NewHandler(application *app.Application, opts Options) http.Handler {
	log := opts.Log
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{
		app:   application,
		log:   log,
		debug: opts.Debug,
		audit: opts.Audit,
		ready: opts.Ready,
		now:   time.Now,
	}

	r := chi.NewRouter()
	r.Use(requestID, h.logRequests, h.recoverer, metrics.InstrumentHandler)
	if opts.Limiter != nil {
		r.Use(opts.Limiter.Handler)
	}
	r.Use(h.auditWrites)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeServiceError(w, errors.NotFound("route", r.URL.Path), "route "+r.URL.Path+" not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		svcErr := &errors.ServiceError{Code: errors.CodeBadRequest, HTTPStatus: http.StatusMethodNotAllowed}
		writeServiceError(w, svcErr, "method "+r.Method+" not allowed")
	})

	r.Get("/healthz", h.health)
	r.Handle("/metrics", metrics.Handler())
	r.Get("/audit", h.listAudit)

	r.Route("/cooperatives", func(r chi.Router) {
		r.Post("/", h.createCooperative)
		r.Get("/", h.listCooperatives)
		r.Get("/{id}", h.getCooperative)
		r.Post("/{id}/plants", h.createPlant)
		r.Get("/{id}/plants", h.listPlants)
	})

	r.Route("/plant-configs", func(r chi.Router) {
		r.Post("/", h.createPlantConfig)
		r.Put("/{id}", h.updatePlantConfig)
		mountFlagRoutes(r, h, h.plantConfigRoutes())
	})

	r.Route("/plant-groups", func(r chi.Router) {
		r.Post("/", h.createPlantGroup)
		r.Put("/{id}", h.updatePlantGroup)
		mountFlagRoutes(r, h, h.plantGroupRoutes())
	})

	r.Route("/vendors", func(r chi.Router) {
		r.Post("/", h.createVendor)
		r.Put("/{id}", h.updateVendor)
		r.Post("/{id}/verify", h.setVendorVerified(true))
		r.Post("/{id}/unverify", h.setVendorVerified(false))
		mountFlagRoutes(r, h, h.vendorRoutes())
	})

	return r
}

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	if h.ready != nil {
		if err := h.ready(r.Context()); err != nil {
			h.log.WithError(err).Warn("health check failed")
			h.writeError(w, r, errors.Unavailable("store unavailable", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "")
}

func (h *handler) listAudit(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		writeJSON(w, http.StatusOK, []AuditEntry{}, "")
		return
	}
	writeJSON(w, http.StatusOK, h.audit.listLimit(queryInt(r, "limit", 0)), "")
}

// flagRoutes describes the endpoints shared by every flag-bearing
// collection.
type flagRoutes[T any] struct {
	label      string
	scopeParam string
	flagName   string
	aliases    []string

	get     func(context.Context, string) (T, error)
	list    func(context.Context, string) ([]T, error)
	remove  func(context.Context, string) error
	promote func(context.Context, string) (T, error)
	demote  func(context.Context, string) (T, error)
	toggle  func(context.Context, string) (T, error)
	holder  func(context.Context, string) (T, error)
	stats   func(context.Context, string) (exclusive.Statistics, error)
}

func mountFlagRoutes[T any](r chi.Router, h *handler, fr flagRoutes[T]) {
	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		rows, err := fr.list(req.Context(), req.URL.Query().Get(fr.scopeParam))
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, rows, "")
	})

	r.Get("/statistics", func(w http.ResponseWriter, req *http.Request) {
		stats, err := fr.stats(req.Context(), req.URL.Query().Get(fr.scopeParam))
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, stats, "")
	})

	r.Get("/get-default/{scope}", func(w http.ResponseWriter, req *http.Request) {
		row, err := fr.holder(req.Context(), chi.URLParam(req, "scope"))
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, row, "")
	})

	r.Get("/{id}", func(w http.ResponseWriter, req *http.Request) {
		row, err := fr.get(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, row, "")
	})

	r.Delete("/{id}", func(w http.ResponseWriter, req *http.Request) {
		if err := fr.remove(req.Context(), chi.URLParam(req, "id")); err != nil {
			h.writeError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, nil, fr.label+" deleted")
	})

	mutation := func(fn func(context.Context, string) (T, error), message string) http.HandlerFunc {
		return func(w http.ResponseWriter, req *http.Request) {
			row, err := fn(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				h.writeError(w, req, err)
				return
			}
			writeJSON(w, http.StatusOK, row, message)
		}
	}

	promote := mutation(fr.promote, fr.label+" set as "+fr.flagName)
	demote := mutation(fr.demote, fr.label+" is no longer "+fr.flagName)
	r.Post("/{id}/set-as-default", promote)
	r.Post("/{id}/remove-default", demote)
	for _, alias := range fr.aliases {
		r.Post("/{id}/set-as-"+alias, promote)
		r.Post("/{id}/remove-"+alias, demote)
	}
	r.Post("/{id}/toggle-active", mutation(fr.toggle, fr.label+" activation toggled"))
}

func (h *handler) plantConfigRoutes() flagRoutes[plantconfig.Config] {
	svc := h.app.PlantConfigs
	return flagRoutes[plantconfig.Config]{
		label:      "plant config",
		scopeParam: "cooperative_id",
		flagName:   "default",
		get:        svc.Get,
		list:       svc.List,
		remove:     svc.Delete,
		promote:    svc.SetAsDefault,
		demote:     svc.RemoveDefault,
		toggle:     svc.ToggleActive,
		holder:     svc.GetDefault,
		stats:      svc.Statistics,
	}
}

func (h *handler) plantGroupRoutes() flagRoutes[plantgroup.Group] {
	svc := h.app.PlantGroups
	return flagRoutes[plantgroup.Group]{
		label:      "plant group",
		scopeParam: "cooperative_id",
		flagName:   "default",
		get:        svc.Get,
		list:       svc.List,
		remove:     svc.Delete,
		promote:    svc.SetAsDefault,
		demote:     svc.RemoveDefault,
		toggle:     svc.ToggleActive,
		holder:     svc.GetDefault,
		stats:      svc.Statistics,
	}
}

func (h *handler) vendorRoutes() flagRoutes[vendor.Vendor] {
	svc := h.app.Vendors
	return flagRoutes[vendor.Vendor]{
		label:      "vendor",
		scopeParam: "category",
		flagName:   "preferred",
		aliases:    []string{"preferred"},
		get:        svc.Get,
		list:       svc.List,
		remove:     svc.Delete,
		promote:    svc.SetAsPreferred,
		demote:     svc.RemovePreferred,
		toggle:     svc.ToggleActive,
		holder:     svc.GetPreferred,
		stats:      svc.Statistics,
	}
}

// createPlantConfigRequest also accepts the short "default" field.
type createPlantConfigRequest struct {
	plantconfigs.CreateInput
	Default *bool `json:"default,omitempty"`
}

func (h *handler) createPlantConfig(w http.ResponseWriter, r *http.Request) {
	var req createPlantConfigRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := req.CreateInput
	if req.Default != nil {
		in.IsDefault = in.IsDefault || *req.Default
	}
	cfg, err := h.app.PlantConfigs.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cfg, "plant config created")
}

func (h *handler) updatePlantConfig(w http.ResponseWriter, r *http.Request) {
	var in plantconfigs.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	cfg, err := h.app.PlantConfigs.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg, "plant config updated")
}

type createPlantGroupRequest struct {
	plantgroups.CreateInput
	Default *bool `json:"default,omitempty"`
}

func (h *handler) createPlantGroup(w http.ResponseWriter, r *http.Request) {
	var req createPlantGroupRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := req.CreateInput
	if req.Default != nil {
		in.IsDefault = in.IsDefault || *req.Default
	}
	grp, err := h.app.PlantGroups.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, grp, "plant group created")
}

func (h *handler) updatePlantGroup(w http.ResponseWriter, r *http.Request) {
	var in plantgroups.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	grp, err := h.app.PlantGroups.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, grp, "plant group updated")
}

// createVendorRequest accepts "preferred" and "default" as aliases of
// is_preferred.
type createVendorRequest struct {
	vendors.CreateInput
	Preferred *bool `json:"preferred,omitempty"`
	Default   *bool `json:"default,omitempty"`
}

func (h *handler) createVendor(w http.ResponseWriter, r *http.Request) {
	var req createVendorRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	in := req.CreateInput
	for _, flag := range []*bool{req.Preferred, req.Default} {
		if flag != nil {
			in.IsPreferred = in.IsPreferred || *flag
		}
	}
	v, err := h.app.Vendors.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v, "vendor created")
}

func (h *handler) updateVendor(w http.ResponseWriter, r *http.Request) {
	var in vendors.UpdateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	v, err := h.app.Vendors.Update(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v, "vendor updated")
}

func (h *handler) setVendorVerified(verified bool) http.HandlerFunc {
	message := "vendor verified"
	if !verified {
		message = "vendor unverified"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		v, err := h.app.Vendors.SetVerified(r.Context(), chi.URLParam(r, "id"), verified)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, v, message)
	}
}

func (h *handler) createCooperative(w http.ResponseWriter, r *http.Request) {
	var in cooperatives.CreateInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	coop, err := h.app.Cooperatives.Create(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, coop, "cooperative created")
}

func (h *handler) listCooperatives(w http.ResponseWriter, r *http.Request) {
	coops, err := h.app.Cooperatives.List(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coops, "")
}

func (h *handler) getCooperative(w http.ResponseWriter, r *http.Request) {
	coop, err := h.app.Cooperatives.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, coop, "")
}

func (h *handler) createPlant(w http.ResponseWriter, r *http.Request) {
	var in cooperatives.CreatePlantInput
	if err := decodeJSON(r.Body, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := h.app.Cooperatives.CreatePlant(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p, "plant created")
}

func (h *handler) listPlants(w http.ResponseWriter, r *http.Request) {
	plants, err := h.app.Cooperatives.ListPlants(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, plants, "")
}
