package httpapi

import (
	"net/http"
	"path/filepath"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/sentinel/internal/app/services/faces"
	apperrors "github.com/R3E-Network/sentinel/internal/errors"
	"github.com/R3E-Network/sentinel/internal/httputil"
)

func (h *handler) faceRoutes(api *mux.Router) {
	r := api.PathPrefix("/faces").Subrouter()
	r.HandleFunc("/", h.listFaces).Methods(http.MethodGet)
	r.HandleFunc("/", h.createFace).Methods(http.MethodPost)
	r.HandleFunc("/verify/", h.verifyFace).Methods(http.MethodPost)
	r.HandleFunc("/{id:[0-9]+}/", h.getFace).Methods(http.MethodGet)
	r.HandleFunc("/{id:[0-9]+}/", h.updateFace).Methods(http.MethodPut, http.MethodPatch)
	r.HandleFunc("/{id:[0-9]+}/", h.deleteFace).Methods(http.MethodDelete)
}

func (h *handler) listFaces(w http.ResponseWriter, r *http.Request) {
	pr := httputil.ParsePageRequest(r)
	q := r.URL.Query()
	list, total, err := h.deps.Faces.List(r.Context(), principal(r), faces.Query{
		Name:     q.Get("name"),
		Role:     q.Get("role"),
		IsActive: queryBool(r, "is_active"),
		Limit:    pr.Size,
		Offset:   pr.Offset(),
	})
	if err != nil {
		fail(w, err)
		return
	}
	page(w, r, pr, total, list, "Authorized faces retrieved successfully.")
}

// faceInput reads a face payload. Multipart requests may carry face_image;
// JSON requests only update the text fields.
func faceInput(w http.ResponseWriter, r *http.Request) (faces.Input, func(), error) {
	var in faces.Input
	done := func() {}
	if !isMultipart(r) {
		return in, done, httputil.DecodeJSON(r, &in)
	}
	if err := parseMultipart(w, r); err != nil {
		return in, done, err
	}
	in.Name = formString(r, "name")
	in.Description = formString(r, "description")
	in.Role = formString(r, "role")
	in.AccessLevel = formString(r, "access_level")
	in.IsActive = formBool(r, "is_active")

	upload, closer, err := formUpload(r, "face_image")
	if err != nil {
		return in, done, err
	}
	in.Image = upload
	return in, closer, nil
}

// formUpload opens a multipart file field. A missing field yields nil.
func formUpload(r *http.Request, field string) (*faces.Upload, func(), error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, func() {}, nil
	}
	if err != nil {
		return nil, func() {}, apperrors.Validation(apperrors.Field(field, "The submitted data was not a file."))
	}
	return &faces.Upload{Filename: filepath.Base(header.Filename), Content: file}, func() { file.Close() }, nil
}

func (h *handler) createFace(w http.ResponseWriter, r *http.Request) {
	in, done, err := faceInput(w, r)
	defer done()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := h.deps.Faces.Create(r.Context(), principal(r), in)
	if err != nil {
		fail(w, err)
		return
	}
	created(w, f, "Authorized face created successfully.")
}

func (h *handler) getFace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	f, err := h.deps.Faces.Get(r.Context(), principal(r), id)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, f, "Authorized face retrieved successfully.")
}

func (h *handler) updateFace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	in, done, err := faceInput(w, r)
	defer done()
	if err != nil {
		fail(w, err)
		return
	}
	f, err := h.deps.Faces.Update(r.Context(), principal(r), id, in, partial(r))
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, f, "Authorized face updated successfully.")
}

func (h *handler) deleteFace(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		fail(w, err)
		return
	}
	if err := h.deps.Faces.Delete(r.Context(), principal(r), id); err != nil {
		fail(w, err)
		return
	}
	ok(w, nil, "Authorized face deleted successfully.")
}

func (h *handler) verifyFace(w http.ResponseWriter, r *http.Request) {
	if !isMultipart(r) {
		fail(w, apperrors.Validation(apperrors.Field("face_image", "No file was submitted.")))
		return
	}
	if err := parseMultipart(w, r); err != nil {
		fail(w, err)
		return
	}
	var in faces.VerifyInput
	var err error
	if in.CameraID, err = formInt64(r, "camera_id"); err != nil {
		fail(w, err)
		return
	}
	if in.Threshold, err = formFloat(r, "confidence_threshold"); err != nil {
		fail(w, err)
		return
	}
	upload, done, err := formUpload(r, "face_image")
	defer done()
	if err != nil {
		fail(w, err)
		return
	}
	in.Image = upload

	res, err := h.deps.Faces.Verify(r.Context(), principal(r), in)
	if err != nil {
		fail(w, err)
		return
	}
	ok(w, res.VerifyResult, res.Message)
}
