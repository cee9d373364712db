package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/flowtap/flowcore/pkg/command"
	"github.com/flowtap/flowcore/pkg/entities"
	"github.com/flowtap/flowcore/pkg/export"
	"github.com/flowtap/flowcore/pkg/flow"
	"github.com/flowtap/flowcore/pkg/query"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// mountAPI wires every spec.md §6 verb the Dispatcher implements onto a
// plain REST surface. This is a thin JSON-in/JSON-out shim; all actual
// logic lives in pkg/command.
func mountAPI(r chi.Router, d *command.Dispatcher) {
	r.Get("/api/flows", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		pageSize, _ := strconv.Atoi(q.Get("pageSize"))
		res, err := d.QueryFlows(req.Context(), command.QueryFlowsRequest{
			Filter:   q.Get("filter"),
			SortBy:   query.SortField(q.Get("sortBy")),
			Desc:     q.Get("desc") == "true",
			Page:     page,
			PageSize: pageSize,
		})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/api/flows/{id}", func(w http.ResponseWriter, req *http.Request) {
		id, err := ulid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		f, err := d.GetFlowDetail(req.Context(), id)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errBody(err))
			return
		}
		if f == nil {
			writeJSON(w, http.StatusNotFound, errBody(nil))
			return
		}
		writeJSON(w, http.StatusOK, f)
	})

	r.Get("/api/flows/search", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		if limit <= 0 {
			limit = 50
		}
		res, err := d.SearchFlows(req.Context(), q.Get("q"), limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/api/stats", func(w http.ResponseWriter, req *http.Request) {
		res, err := d.GetFlowStats(req.Context(), command.GetFlowStatsRequest{Filter: req.URL.Query().Get("filter")})
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/api/filter/parse", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Expression string }
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, d.ParseFilter(body.Expression))
	})

	r.Post("/api/flows/export", func(w http.ResponseWriter, req *http.Request) {
		var body command.ExportFlowsRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		res, err := d.ExportFlows(req.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/api/flows/{id}/star", func(w http.ResponseWriter, req *http.Request) {
		id, err := ulid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		if err := d.ToggleFlowStar(id); err != nil {
			writeJSON(w, http.StatusNotFound, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Put("/api/flows/{id}/annotations", func(w http.ResponseWriter, req *http.Request) {
		id, err := ulid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		var annotations flow.Annotations
		if err := json.NewDecoder(req.Body).Decode(&annotations); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		if err := d.UpdateFlowAnnotations(id, annotations); err != nil {
			writeJSON(w, http.StatusNotFound, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	r.Post("/api/flows/replay/batch", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			IDs    []ulid.ULID
			Config flow.Request
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		res, err := d.BatchReplayFlows(req.Context(), body.IDs, body.Config)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/api/flows/diff", func(w http.ResponseWriter, req *http.Request) {
		var body command.DiffFlowsRequest
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		res, err := d.DiffFlows(req.Context(), body)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Post("/api/flows/batch/star", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			IDs     []ulid.ULID
			Starred bool
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, d.BatchStar(body.IDs, body.Starred))
	})

	r.Post("/api/flows/batch/delete", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ IDs []ulid.ULID }
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, d.BatchDelete(body.IDs))
	})

	r.Post("/api/flows/batch/export", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			IDs     []ulid.ULID
			Format  export.Format
			Options export.Options
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		res, err := d.BatchExport(req.Context(), body.IDs, body.Format, body.Options)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, res)
	})

	r.Get("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, d.ListSessions())
	})

	r.Post("/api/sessions", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Name string }
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, d.CreateSession(body.Name))
	})

	r.Get("/api/quick-filters", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, d.ListQuickFilters())
	})

	r.Post("/api/quick-filters", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Name, Expression string }
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		qf, err := d.SaveQuickFilter(body.Name, body.Expression)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, qf)
	})

	r.Post("/api/quick-filters/import", func(w http.ResponseWriter, req *http.Request) {
		var body struct{ Name, Expression string }
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		qf, err := d.ImportQuickFilter(body.Name, body.Expression)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, qf)
	})

	r.Get("/api/quick-filters/{id}/export", func(w http.ResponseWriter, req *http.Request) {
		id, err := uuid.Parse(chi.URLParam(req, "id"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		qf, err := d.ExportQuickFilter(id)
		if err != nil {
			writeJSON(w, http.StatusNotFound, errBody(err))
			return
		}
		writeJSON(w, http.StatusOK, qf)
	})

	r.Get("/api/bookmarks", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, d.ListBookmarks())
	})

	r.Get("/api/notifications", func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, d.GetNotificationConfig())
	})

	r.Put("/api/notifications", func(w http.ResponseWriter, req *http.Request) {
		var cfg entities.NotificationConfig
		if err := json.NewDecoder(req.Body).Decode(&cfg); err != nil {
			writeJSON(w, http.StatusBadRequest, errBody(err))
			return
		}
		d.UpdateNotificationConfig(cfg)
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})
}

func errBody(err error) map[string]string {
	if err == nil {
		return map[string]string{"error": "not found"}
	}
	return map[string]string{"error": err.Error()}
}
