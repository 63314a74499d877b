package httpapi

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/domain/alert"
	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/services/alerts"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) alertRoutes(api *mux.Router) {
	r := api.PathPrefix("/alerts").Subrouter()
	r.HandleFunc("/", h.listAlerts).Methods(http.MethodGet)
	r.HandleFunc("/", h.createAlert).Methods(http.MethodPost)
	r.HandleFunc("/summary/", h.alertSummary).Methods(http.MethodGet)
	r.HandleFunc("/stream/", h.alertStream).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/", h.getAlert).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/status/", h.updateAlertStatus).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/{id:[0-9]+}/video/", h.alertVideo).Methods(http.MethodGet)
}

func (h *handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	pr := httputil.ParsePageRequest(r)
	q := r.URL.Query()
	items, total, err := h.deps.Alerts.List(r.Context(), principal(r), alerts.Query{
		Status:    q.Get("status"),
		Type:      q.Get("type"),
		Severity:  q.Get("severity"),
		CameraID:  queryInt64(r, "camera_id"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
		Limit:     pr.Size,
		Offset:    pr.Offset(),
	})
	if err != nil {
		fail(w, err)
		return
	}
	page(w, r, pr, total, items, "Alerts retrieved successfully.")
}

func (h *handler) createAlert(w http.ResponseWriter, r *http.Request) {
	in, err := h.alertInput(w, r)
	if err != nil {
		fail(w, err)
		return
	}
	detail, err := h.deps.Alerts.Create(r.Context(), principal(r), in)
	if err != nil {
		h.removeUploads(in.VideoFile, in.Thumbnail)
		fail(w, err)
		return
	}
	created(w, detail, "Alert created successfully.")
}

// alertInput reads a JSON or multipart alert payload. Multipart uploads are
// stored before the alert is validated.
func (h *handler) alertInput(w http.ResponseWriter, r *http.Request) (alerts.CreateInput, error) {
	var in alerts.CreateInput
	if !isMultipart(r) {
		return in, httputil.DecodeJSON(r, &in)
	}
	if err := parseMultipart(w, r); err != nil {
		return in, err
	}
	str := func(name string) string {
		if v := formString(r, name); v != nil {
			return *v
		}
		return ""
	}
	in.Title = str("title")
	in.Description = str("description")
	in.AlertType = alert.Type(str("alert_type"))
	in.Status = alert.Status(str("status"))
	in.Severity = alert.Severity(str("severity"))
	in.Location = str("location")
	in.Notes = str("notes")
	if v := formBool(r, "is_test"); v != nil {
		in.IsTest = *v
	}
	conf, err := formFloat(r, "confidence")
	if err != nil {
		return in, err
	}
	if conf != nil {
		in.Confidence = *conf
	}
	cam, err := formInt64(r, "camera")
	if err != nil {
		return in, err
	}
	if cam != nil {
		in.CameraID = *cam
	}
	if raw := str("detection_time"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return in, apperrors.Validation(apperrors.Field("detection_time", "Datetime has wrong format."))
		}
		in.DetectionTime = &t
	}

	if in.VideoFile, err = h.saveUpload(r, "video_file", media.AlertVideos); err != nil {
		return in, err
	}
	if in.Thumbnail, err = h.saveUpload(r, "thumbnail", media.AlertThumbnails); err != nil {
		h.removeUploads(in.VideoFile)
		return in, err
	}
	return in, nil
}

func (h *handler) removeUploads(paths ...string) {
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := h.deps.Files.Remove(p); err != nil {
			h.log.WithError(err).WithField("file", p).Warn("remove upload")
		}
	}
}

func (h *handler) getAlert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	detail, err := h.deps.Alerts.Get(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, detail, "Alert retrieved successfully.")
}

func (h *handler) updateAlertStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	var in struct {
		Status alert.Status `json:"status"`
		Notes  string       `json:"notes"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	detail, err := h.deps.Alerts.UpdateStatus(r.Context(), principal(r), id, in.Status, in.Notes)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, detail, "Alert status updated to "+string(detail.Status)+".")
}

func (h *handler) alertSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.deps.Alerts.Summary(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, summary, "Alert summary retrieved successfully.")
}

func (h *handler) alertVideo(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	path, err := h.deps.Alerts.VideoPath(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	f, err := os.Open(path)
	if err != nil {
		fail(w, apperrors.New(http.StatusInternalServerError, apperrors.CodeInternal, "Error streaming video.", err.Error()))
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		fail(w, apperrors.Internal("", err))
		return
	}
	name := filepath.Base(path)
	w.Header().Set("Content-Disposition", `inline; filename="`+strings.ReplaceAll(name, `"`, "")+`"`)
	if strings.EqualFold(filepath.Ext(name), ".mp4") {
		w.Header().Set("Content-Type", "video/mp4")
	}
	http.ServeContent(w, r, name, info.ModTime(), f)
}

func (h *handler) alertStream(w http.ResponseWriter, r *http.Request) {
	if h.deps.Hub == nil {
		fail(w, apperrors.Unavailable("Realtime alerts are not enabled.", nil))
		return
	}
	h.deps.Hub.ServeWS(w, r, principal(r))
}
