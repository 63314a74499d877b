package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/services/notifications"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) notificationRoutes(api *mux.Router) {
	r := api.PathPrefix("/notifications").Subrouter()
	r.HandleFunc("/settings/", h.notificationSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings/", h.updateNotificationSettings).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/test/", h.testNotification).Methods(http.MethodPost)
	r.HandleFunc("/logs/", h.notificationLogs).Methods(http.MethodGet)
}

func (h *handler) notificationSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Notifications.Settings(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Notification settings retrieved successfully.")
}

// updateNotificationSettings decodes the body onto the stored settings, so
// absent fields keep their values.
func (h *handler) updateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	st, err := h.deps.Notifications.Settings(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	if err := httputil.DecodeJSON(r, &st); err != nil {
		fail(w, err)
		return
	}
	st, err = h.deps.Notifications.SaveSettings(r.Context(), principal(r), st)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Notification settings updated successfully.")
}

func (h *handler) testNotification(w http.ResponseWriter, r *http.Request) {
	var in notifications.TestInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	// A failed delivery comes back as a 500 carrying the log entry.
	log, err := h.deps.Notifications.SendTest(r.Context(), principal(r), in)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, log, "Test "+string(log.NotificationType)+" notification sent successfully.")
}

func (h *handler) notificationLogs(w http.ResponseWriter, r *http.Request) {
	pr := httputil.ParsePageRequest(r)
	logs, total, err := h.deps.Notifications.Logs(r.Context(), principal(r), pr.Size, pr.Offset())
	if err != nil {
		fail(w, err)
		return
	}
	page(w, r, pr, total, logs, "Notification logs retrieved successfully.")
}
