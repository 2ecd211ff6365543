package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/platinummonkey/stager/pkg/app"
	"github.com/platinummonkey/stager/pkg/droplet"
	"github.com/platinummonkey/stager/pkg/httputil"
	"github.com/platinummonkey/stager/pkg/plugins"
	"github.com/platinummonkey/stager/pkg/service"
	"github.com/platinummonkey/stager/pkg/tasks"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// submitStaging handles POST /api/v1/stagings
func (s *Server) submitStaging(w http.ResponseWriter, r *http.Request) {
	var req service.Request
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	task, err := s.svc.Submit(r.Context(), req)
	switch {
	case err == nil:
		httputil.WriteAccepted(w, "/api/v1/stagings/"+task.ID, task)
	case errors.Is(err, service.ErrInvalidRequest):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, service.ErrBusy), errors.Is(err, service.ErrShuttingDown):
		w.Header().Set("Retry-After", "30")
		httputil.WriteServiceUnavailable(w, err.Error())
	default:
		s.log.WithError(err).Error("Failed to submit staging request")
		httputil.WriteInternalError(w, err)
	}
}

// listStagings handles GET /api/v1/stagings?limit=N
func (s *Server) listStagings(w http.ResponseWriter, r *http.Request) {
	limit, err := httputil.ParseQueryInt(r, "limit", defaultListLimit)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if limit < 1 || limit > maxListLimit {
		limit = defaultListLimit
	}

	list, err := s.svc.List(r.Context(), limit)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, ListTasksResponse{Tasks: list, Count: len(list)})
}

// getStaging handles GET /api/v1/stagings/{id}
func (s *Server) getStaging(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, task)
}

// getDroplet handles GET /api/v1/stagings/{id}/droplet
func (s *Server) getDroplet(w http.ResponseWriter, r *http.Request) {
	task, ok := s.lookupTask(w, r)
	if !ok {
		return
	}
	if task.State != tasks.StateDone {
		httputil.WriteErrorMessage(w, http.StatusConflict, "staging task is "+string(task.State))
		return
	}

	url, err := s.svc.DropletURL(r.Context(), task, s.presignExpiry)
	if errors.Is(err, droplet.ErrDropletNotFound) {
		httputil.WriteNotFoundError(w, err.Error())
		return
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteSuccess(w, DropletResponse{
		Key:       task.DropletKey,
		Sha256:    task.DropletSHA,
		URL:       url,
		ExpiresAt: time.Now().UTC().Add(s.presignExpiry),
	})
}

// listPlugins handles GET /api/v1/plugins
func (s *Server) listPlugins(w http.ResponseWriter, r *http.Request) {
	infos := s.svc.Plugins()
	httputil.WriteSuccess(w, ListPluginsResponse{Plugins: infos, Count: len(infos)})
}

// planStaging handles POST /api/v1/plans. It validates the plugin set an
// app would stage with, without staging anything.
func (s *Server) planStaging(w http.ResponseWriter, r *http.Request) {
	var desc app.Descriptor
	if !httputil.ParseJSONOrError(w, r, &desc) {
		return
	}

	set, err := s.svc.Plan(desc)
	if err != nil {
		if reason := plugins.ValidationReason(err); reason != "" {
			httputil.WriteUnprocessable(w, err, map[string]string{"reason": reason})
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}

	features := make([]string, len(set.Features))
	for i, p := range set.Features {
		features[i] = p.Name()
	}
	httputil.WriteSuccess(w, PlanResponse{
		Framework: set.Framework.Name(),
		Features:  features,
		Order:     set.Names(),
	})
}

func (s *Server) lookupTask(w http.ResponseWriter, r *http.Request) (*tasks.Task, bool) {
	id, ok := httputil.ParsePathStringOrError(w, r, "id")
	if !ok {
		return nil, false
	}

	task, err := s.svc.Get(r.Context(), id)
	if errors.Is(err, tasks.ErrTaskNotFound) {
		httputil.WriteNotFoundError(w, "staging task not found")
		return nil, false
	}
	if err != nil {
		httputil.WriteInternalError(w, err)
		return nil, false
	}
	return task, true
}
