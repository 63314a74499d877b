package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/media"
	"github.com/R3E-Network/sentinel/internal/app/services/accounts"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) authRoutes(api *mux.Router) {
	r := api.PathPrefix("/auth").Subrouter()
	r.HandleFunc("/register/", h.register).Methods(http.MethodPost)
	r.HandleFunc("/test-register/", h.register).Methods(http.MethodPost)
	r.HandleFunc("/login/", h.login).Methods(http.MethodPost)
	r.HandleFunc("/logout/", h.logout).Methods(http.MethodPost)
	r.HandleFunc("/token/refresh/", h.refresh).Methods(http.MethodPost)
	r.HandleFunc("/user/", h.currentUser).Methods(http.MethodGet)
	r.HandleFunc("/user/", h.updateCurrentUser).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/change-password/", h.changePassword).Methods(http.MethodPost)
}

func (h *handler) register(w http.ResponseWriter, r *http.Request) {
	var in accounts.RegisterInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	res, err := h.deps.Accounts.Register(r.Context(), in)
	if err != nil {
		fail(w, err)
		return
	}
	created(w, res, "User registered successfully.")
}

func (h *handler) login(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	res, err := h.deps.Accounts.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, res, "User logged in successfully.")
}

type refreshBody struct {
	Refresh string `json:"refresh"`
}

func (h *handler) logout(w http.ResponseWriter, r *http.Request) {
	var in refreshBody
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Accounts.Logout(r.Context(), in.Refresh); err != nil {
		fail(w, err)
		return
	}
	ok(w, map[string]interface{}{}, "User logged out successfully.")
}

// refresh answers with a bare {"access": ...} object like other JWT refresh
// endpoints; errors still use the envelope.
func (h *handler) refresh(w http.ResponseWriter, r *http.Request) {
	var in refreshBody
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	access, err := h.deps.Accounts.Refresh(r.Context(), in.Refresh)
	if err != nil {
		fail(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (h *handler) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.deps.Accounts.Get(r.Context(), principal(r).UserID)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, user, "User details retrieved successfully.")
}

func (h *handler) updateCurrentUser(w http.ResponseWriter, r *http.Request) {
	var patch accounts.ProfilePatch
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			fail(w, err)
			return
		}
		patch.FullName = formString(r, "full_name")
		patch.PhoneNumber = formString(r, "phone_number")
		rel, err := h.saveUpload(r, "profile_picture", media.ProfilePictures)
		if err != nil {
			fail(w, err)
			return
		}
		if rel != "" {
			patch.ProfilePicture = &rel
		}
	} else if err := httputil.DecodeJSON(r, &patch); err != nil {
		fail(w, err)
		return
	}

	// PUT requires the full profile; PATCH applies what was sent.
	if !partial(r) && patch.FullName == nil {
		empty := ""
		patch.FullName = &empty
	}
	user, err := h.deps.Accounts.UpdateProfile(r.Context(), principal(r).UserID, patch)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, user, "User details updated successfully.")
}

func (h *handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var in accounts.ChangePasswordInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Accounts.ChangePassword(r.Context(), principal(r).UserID, in); err != nil {
		fail(w, err)
		return
	}
	ok(w, map[string]interface{}{}, "Password changed successfully.")
}
