package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/resumekit/resumekit/internal/http/middleware"
	"github.com/resumekit/resumekit/internal/http/response"
	"github.com/resumekit/resumekit/internal/observability"
	"github.com/resumekit/resumekit/internal/service"
)

type ResumeHandler struct {
	resumes *service.ResumeService
}

func NewResumeHandler(resumes *service.ResumeService) *ResumeHandler {
	return &ResumeHandler{resumes: resumes}
}

func (h *ResumeHandler) Create(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	var input service.ResumeInput
	if !decodeJSON(w, r, &input) {
		return
	}
	resume, err := h.resumes.Create(r.Context(), accountID, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "resume.created", "account_id", accountID, "resume_id", resume.ID)
	response.JSON(w, r, http.StatusCreated, resume)
}

func (h *ResumeHandler) Get(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	resume, err := h.resumes.Get(r.Context(), accountID, resumeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, resume)
}

func (h *ResumeHandler) List(w http.ResponseWriter, r *http.Request) {
	accountID, ok := middleware.AccountIDFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	result, err := h.resumes.List(r.Context(), accountID, page, pageSize)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, result)
}

func (h *ResumeHandler) Update(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	var input service.ResumeInput
	if !decodeJSON(w, r, &input) {
		return
	}
	resume, err := h.resumes.Update(r.Context(), accountID, resumeID, input)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, resume)
}

func (h *ResumeHandler) Delete(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	if err := h.resumes.Delete(r.Context(), accountID, resumeID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "resume.deleted", "account_id", accountID, "resume_id", resumeID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

// UploadPhoto reads the multipart "photo" part and attaches it to the
// resume, replacing any previous photo.
func (h *ResumeHandler) UploadPhoto(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	file, header, err := r.FormFile("photo")
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "missing photo upload", nil)
		return
	}
	defer func() { _ = file.Close() }()

	key, err := h.resumes.AttachPhoto(r.Context(), accountID, resumeID, file, header.Size)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "resume.photo.uploaded", "account_id", accountID, "resume_id", resumeID)
	response.JSON(w, r, http.StatusOK, map[string]string{"photo_key": key})
}

func (h *ResumeHandler) DeletePhoto(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	if err := h.resumes.DetachPhoto(r.Context(), accountID, resumeID); err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.Audit(r, "resume.photo.deleted", "account_id", accountID, "resume_id", resumeID)
	response.JSON(w, r, http.StatusOK, map[string]string{"status": "deleted"})
}

func (h *ResumeHandler) PhotoURL(w http.ResponseWriter, r *http.Request) {
	accountID, resumeID, ok := h.resumeScope(w, r)
	if !ok {
		return
	}
	url, err := h.resumes.PhotoURL(r.Context(), accountID, resumeID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]string{"url": url})
}

func (h *ResumeHandler) resumeScope(w http.ResponseWriter, r *http.Request) (accountID, resumeID uint, ok bool) {
	accountID, authed := middleware.AccountIDFromContext(r.Context())
	if !authed {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing auth context", nil)
		return 0, 0, false
	}
	id64, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid resume id", nil)
		return 0, 0, false
	}
	return accountID, uint(id64), true
}
