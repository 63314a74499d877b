package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/domain/camera"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) cameraRoutes(api *mux.Router) {
	r := api.PathPrefix("/cameras").Subrouter()
	r.HandleFunc("/", h.listCameras).Methods(http.MethodGet)
	r.HandleFunc("/", h.createCamera).Methods(http.MethodPost)
	r.HandleFunc("/status/", h.cameraStatuses).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/", h.getCamera).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/", h.updateCamera).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/{id:[0-9]+}/", h.deleteCamera).Methods(http.MethodDelete)
	r.HandleFunc("/{id:[0-9]+}/stream/", h.cameraStream).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/settings/", h.cameraSettings).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/settings/", h.updateCameraSettings).Methods(http.MethodPut, http.MethodPatch)
}

func (h *handler) listCameras(w http.ResponseWriter, r *http.Request) {
	pr := httputil.ParsePageRequest(r)
	cams, total, err := h.deps.Cameras.List(r.Context(), principal(r), pr.Size, pr.Offset())
	if err != nil {
		fail(w, err)
		return
	}
	out := make([]camera.Summary, 0, len(cams))
	for _, c := range cams {
		out = append(out, c.Summarize())
	}
	page(w, r, pr, total, out, "Cameras retrieved successfully.")
}

func (h *handler) createCamera(w http.ResponseWriter, r *http.Request) {
	var patch camera.Patch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}
	cam, err := h.deps.Cameras.Create(r.Context(), principal(r), patch)
	if err != nil {
		fail(w, err)
		return
	}
	created(w, cam, "Camera created successfully.")
}

func (h *handler) getCamera(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	cam, err := h.deps.Cameras.Get(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, cam, "Camera retrieved successfully.")
}

func (h *handler) updateCamera(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	var patch camera.Patch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}
	cam, err := h.deps.Cameras.Update(r.Context(), principal(r), id, patch, partial(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, cam, "Camera updated successfully.")
}

func (h *handler) deleteCamera(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Cameras.Delete(r.Context(), principal(r), id); err != nil {
		fail(w, err)
		return
	}
	ok(w, nil, "Camera deleted successfully.")
}

func (h *handler) cameraStream(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	info, err := h.deps.Cameras.Stream(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, info, "Camera stream URL retrieved successfully.")
}

func (h *handler) cameraStatuses(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.deps.Cameras.Statuses(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, statuses, "Camera statuses retrieved successfully.")
}

func (h *handler) cameraSettings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.Cameras.Settings(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Camera settings retrieved successfully.")
}

func (h *handler) updateCameraSettings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	var patch camera.SettingsPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.Cameras.UpdateSettings(r.Context(), principal(r), id, patch)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Camera settings updated successfully.")
}
