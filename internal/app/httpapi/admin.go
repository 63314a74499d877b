package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	domain "github.com/R3E-Network/sentinel/internal/app/domain/admin"
	adminsvc "github.com/R3E-Network/sentinel/internal/app/services/admin"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) adminRoutes(r *mux.Router) {
	r.HandleFunc("/users/", h.listUsers).Methods(http.MethodGet)
	r.HandleFunc("/users/{id:[0-9]+}/", h.getUser).Methods(http.MethodGet)
	r.HandleFunc("/users/{id:[0-9]+}/", h.updateUser).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/users/{id:[0-9]+}/", h.deleteUser).Methods(http.MethodDelete)
	r.HandleFunc("/users/{id:[0-9]+}/activate/", h.setUserActive(true)).Methods(http.MethodPost)
	r.HandleFunc("/users/{id:[0-9]+}/deactivate/", h.setUserActive(false)).Methods(http.MethodPost)

	r.HandleFunc("/system-status/status/", h.systemStatus).Methods(http.MethodGet)

	r.HandleFunc("/subscription/", h.listPlans).Methods(http.MethodGet)
	r.HandleFunc("/subscription/", h.createPlan).Methods(http.MethodPost)
	r.HandleFunc("/subscription/user_subscription/", h.userSubscription).Methods(http.MethodGet)
	r.HandleFunc("/subscription/{id:[0-9]+}/", h.getPlan).Methods(http.MethodGet)
	r.HandleFunc("/subscription/{id:[0-9]+}/", h.updatePlan).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/subscription/{id:[0-9]+}/", h.deletePlan).Methods(http.MethodDelete)
	r.HandleFunc("/subscription/{id:[0-9]+}/update_user_subscription/", h.updateUserSubscription).Methods(http.MethodPut, http.MethodPatch)

	r.HandleFunc("/settings/", h.listSettings).Methods(http.MethodGet)
	r.HandleFunc("/settings/", h.createSetting).Methods(http.MethodPost)
	r.HandleFunc("/settings/by_category/", h.settingsByCategory).Methods(http.MethodGet)
	r.HandleFunc("/settings/{id:[0-9]+}/", h.getSetting).Methods(http.MethodGet)
	r.HandleFunc("/settings/{id:[0-9]+}/", h.updateSetting).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/settings/{id:[0-9]+}/", h.deleteSetting).Methods(http.MethodDelete)

	r.HandleFunc("/detectors/", h.listDetectors).Methods(http.MethodGet)
	r.HandleFunc("/detectors/validate/", h.validateDetectors).Methods(http.MethodGet)
	r.HandleFunc("/detectors/{key}/config/", h.updateDetectorConfig).Methods(http.MethodPatch, http.MethodPut)

	r.HandleFunc("/audit/", h.auditEntries).Methods(http.MethodGet)
}

// --- users --------------------------------------------------------------------

func (h *handler) listUsers(w http.ResponseWriter, r *http.Request) {
	pr := httputil.ParsePageRequest(r)
	q := adminsvc.UserQuery{
		Role:     r.URL.Query().Get("role"),
		IsActive: queryBool(r, "is_active"),
		Search:   strings.TrimSpace(r.URL.Query().Get("search")),
		Limit:    pr.Size,
		Offset:   pr.Offset(),
	}
	users, total, err := h.deps.Admin.ListUsers(r.Context(), principal(r), q)
	if err != nil {
		fail(w, err)
		return
	}
	page(w, r, pr, total, users, "Users retrieved successfully.")
}

func (h *handler) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	u, err := h.deps.Admin.GetUser(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, u, "User retrieved successfully.")
}

func (h *handler) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	var patch adminsvc.UserPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}
	u, err := h.deps.Admin.UpdateUser(r.Context(), principal(r), id, patch)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, u, "User updated successfully.")
}

func (h *handler) deleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Admin.DeleteUser(r.Context(), principal(r), id); err != nil {
		fail(w, err)
		return
	}
	ok(w, nil, "User deleted successfully.")
}

func (h *handler) setUserActive(active bool) http.HandlerFunc {
	message := "User deactivated successfully."
	if active {
		message = "User activated successfully."
	}
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := pathID(r, "id")
		if err != nil {
			fail(w, err)
			return
		}
		u, err := h.deps.Admin.SetActive(r.Context(), principal(r), id, active)
		if err != nil {
			fail(w, err)
			return
		}
		ok(w, u, message)
	}
}

func (h *handler) systemStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.deps.Admin.SystemStatus(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, status, "System status retrieved successfully.")
}

// --- plans and subscriptions -----------------------------------------------------

func (h *handler) listPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.deps.Admin.ListPlans(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, plans, "Subscription plans retrieved successfully.")
}

func (h *handler) createPlan(w http.ResponseWriter, r *http.Request) {
	plan := domain.NewPlan()
	if err := httputil.DecodeJSON(r, &plan); err != nil {
		fail(w, err)
		return
	}
	plan.ID = 0
	plan, err := h.deps.Admin.SavePlan(r.Context(), principal(r), plan)
	if err != nil {
		fail(w, err)
		return
	}
	created(w, plan, "Subscription plan created successfully.")
}

func (h *handler) getPlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	plan, err := h.deps.Admin.GetPlan(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, plan, "Subscription plan retrieved successfully.")
}

func (h *handler) updatePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	plan, err := h.deps.Admin.GetPlan(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	if err := httputil.DecodeJSON(r, &plan); err != nil {
		fail(w, err)
		return
	}
	plan.ID = id
	plan, err = h.deps.Admin.SavePlan(r.Context(), principal(r), plan)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, plan, "Subscription plan updated successfully.")
}

func (h *handler) deletePlan(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Admin.DeletePlan(r.Context(), principal(r), id); err != nil {
		fail(w, err)
		return
	}
	ok(w, nil, "Subscription plan deleted successfully.")
}

func (h *handler) userSubscription(w http.ResponseWriter, r *http.Request) {
	view, err := h.deps.Admin.UserSubscription(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, view, "Subscription details retrieved successfully.")
}

// updateUserSubscription decodes the body onto the user's subscription, or a
// fresh one when the user has none yet.
func (h *handler) updateUserSubscription(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	sub, _, err := h.deps.Admin.Subscription(r.Context(), principal(r), userID)
	if err != nil {
		fail(w, err)
		return
	}
	if err := httputil.DecodeJSON(r, &sub); err != nil {
		fail(w, err)
		return
	}
	sub.UserID = userID
	view, err := h.deps.Admin.SaveSubscription(r.Context(), principal(r), sub)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, view, "Subscription updated successfully.")
}

// --- settings -----------------------------------------------------------------

func (h *handler) listSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.deps.Admin.ListSettings(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, settings, "Settings retrieved successfully.")
}

func (h *handler) settingsByCategory(w http.ResponseWriter, r *http.Request) {
	grouped, err := h.deps.Admin.SettingsByCategory(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, grouped, "Settings retrieved successfully.")
}

func (h *handler) createSetting(w http.ResponseWriter, r *http.Request) {
	st := domain.Setting{IsEditable: true}
	if err := httputil.DecodeJSON(r, &st); err != nil {
		fail(w, err)
		return
	}
	st.ID = 0
	st, err := h.deps.Admin.CreateSetting(r.Context(), principal(r), st)
	if err != nil {
		fail(w, err)
		return
	}
	created(w, st, "Setting created successfully.")
}

func (h *handler) getSetting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.Admin.GetSetting(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Setting retrieved successfully.")
}

func (h *handler) updateSetting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	st, err := h.deps.Admin.GetSetting(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	if err := httputil.DecodeJSON(r, &st); err != nil {
		fail(w, err)
		return
	}
	st, err = h.deps.Admin.UpdateSetting(r.Context(), principal(r), id, st)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, st, "Setting updated successfully.")
}

func (h *handler) deleteSetting(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Admin.DeleteSetting(r.Context(), principal(r), id); err != nil {
		fail(w, err)
		return
	}
	ok(w, nil, "Setting deleted successfully.")
}

// --- detectors ----------------------------------------------------------------

func (h *handler) listDetectors(w http.ResponseWriter, r *http.Request) {
	dets, err := h.deps.Admin.ListDetectors(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, dets, "Detectors retrieved successfully.")
}

func (h *handler) validateDetectors(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.Admin.ValidateDetectors(r.Context(), principal(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, res, "Detector models validated.")
}

func (h *handler) updateDetectorConfig(w http.ResponseWriter, r *http.Request) {
	var patch adminsvc.DetectorPatch
	if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}
	det, err := h.deps.Admin.UpdateDetectorConfig(r.Context(), principal(r), mux.Vars(r)["key"], patch)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, det, "Detector configuration updated successfully.")
}
