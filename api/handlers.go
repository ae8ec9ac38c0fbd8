package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"golang.org/x/text/language"

	"github.com/jaliph/residence-companion/crop"
	"github.com/jaliph/residence-companion/device"
	"github.com/jaliph/residence-companion/documents"
	"github.com/jaliph/residence-companion/events"
	"github.com/jaliph/residence-companion/i18n"
	"github.com/jaliph/residence-companion/media"
	"github.com/jaliph/residence-companion/models"
	"github.com/jaliph/residence-companion/review"
	"github.com/jaliph/residence-companion/search"
	"github.com/jaliph/residence-companion/store"
	"github.com/jaliph/residence-companion/utils"
	"github.com/jaliph/residence-companion/wizard"
)

// Handler handles HTTP requests
type Handler struct {
	wizards  *wizard.Manager
	registry *store.Registry
	inbox    *store.Inbox
	search   *search.Service
	bus      *events.Bus
	defaults wizard.Options
}

// NewHandler creates a new API handler. defaults seeds the options of every
// new wizard session; requests may override capture mode, liveness and locale.
func NewHandler(wizards *wizard.Manager, registry *store.Registry, inbox *store.Inbox, searchService *search.Service, bus *events.Bus, defaults wizard.Options) *Handler {
	if defaults.Locale == language.Und {
		defaults.Locale = i18n.English
	}
	return &Handler{
		wizards:  wizards,
		registry: registry,
		inbox:    inbox,
		search:   searchService,
		bus:      bus,
		defaults: defaults,
	}
}

// wizardResponse carries a wizard session snapshot
type wizardResponse struct {
	Status      string             `json:"status"`
	Disposition review.Disposition `json:"disposition,omitempty"`
	Session     wizard.View        `json:"session"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.Logger.Warn("Failed to encode response", "error", err)
	}
}

// locale picks the response language from ?lang=, then Accept-Language
func (h *Handler) locale(r *http.Request) language.Tag {
	if lang := r.URL.Query().Get("lang"); lang != "" {
		return i18n.Match(lang)
	}
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		return i18n.Match(accept)
	}
	return h.defaults.Locale
}

// classify maps a domain error to an HTTP status and a user-facing notice
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, media.ErrCameraUnavailable):
		return http.StatusServiceUnavailable, i18n.NoticeCameraUnavailable
	case errors.Is(err, media.ErrPermissionDenied):
		return http.StatusConflict, i18n.NoticePermissionDenied
	case errors.Is(err, media.ErrInvalidImage), errors.Is(err, media.ErrUnsupportedMedia):
		return http.StatusBadRequest, i18n.NoticeInvalidImage
	case errors.Is(err, wizard.ErrDocumentRequired), errors.Is(err, wizard.ErrDocumentTypeRequired):
		return http.StatusBadRequest, i18n.NoticeDocumentRequired
	case errors.Is(err, wizard.ErrLivenessRequired):
		return http.StatusBadRequest, i18n.NoticeLivenessRequired
	case errors.Is(err, wizard.ErrSubmissionFailed):
		return http.StatusBadGateway, i18n.NoticeSubmissionFailed
	case errors.Is(err, search.ErrEmptySearchInput):
		return http.StatusBadRequest, i18n.NoticeEmptySearch
	case errors.Is(err, search.ErrPendingReviewBlocksAction):
		return http.StatusConflict, i18n.NoticePendingReview
	case errors.Is(err, search.ErrVerificationRequiredBlocksAction):
		return http.StatusConflict, i18n.NoticeVerificationRequired
	case errors.Is(err, wizard.ErrUnknownDocumentType),
		errors.Is(err, wizard.ErrCaptureModeMismatch),
		errors.Is(err, review.ErrUnknownAction),
		errors.Is(err, crop.ErrEmptySelection),
		errors.Is(err, search.ErrInvalidResult),
		errors.Is(err, store.ErrMalformedDescription),
		errors.Is(err, events.ErrInvalidPayload):
		return http.StatusBadRequest, ""
	case errors.Is(err, wizard.ErrNotOnReviewStep),
		errors.Is(err, wizard.ErrSubmissionInProgress),
		errors.Is(err, store.ErrRequestLeaving):
		return http.StatusConflict, ""
	case errors.Is(err, wizard.ErrSessionNotFound),
		errors.Is(err, wizard.ErrSessionExpired),
		errors.Is(err, wizard.ErrSessionClosed),
		errors.Is(err, store.ErrCompanionNotFound),
		errors.Is(err, store.ErrRequestNotFound):
		return http.StatusNotFound, ""
	case errors.Is(err, events.ErrOriginNotAllowed):
		return http.StatusForbidden, ""
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout, ""
	}
	return http.StatusInternalServerError, ""
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, notice := classify(err)
	response := models.APIResponse{
		Status: "error",
		Error:  err.Error(),
	}
	if notice != "" {
		response.Notice = i18n.Notice(h.locale(r), notice)
	}
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, response)
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, models.APIResponse{
		Status: "error",
		Error:  message,
	})
}

// decodeBody parses a JSON body. An empty body is allowed when optional is set.
func decodeBody(r *http.Request, v any, optional bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if optional && errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// imagePayload accepts a data URI or a bare base64 string
func imagePayload(s string) []byte {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		return []byte(s)
	}
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw
	}
	return []byte(s)
}

// HandleHealth handles the /health endpoint
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.APIResponse{
		Status:  "ok",
		Message: "Residence companion service is running",
	})
}

// HandleDocumentTypes handles GET /document-types
func (h *Handler) HandleDocumentTypes(w http.ResponseWriter, r *http.Request) {
	lang := h.locale(r).String()
	var types []models.DocumentType
	for _, d := range documents.All() {
		types = append(types, models.DocumentType{
			ID:    d.ID,
			Name:  d.Name(lang),
			Label: d.Label(),
			Icon:  d.IconToken,
		})
	}
	writeJSON(w, http.StatusOK, models.DocumentTypesResponse{Status: "success", Types: types})
}

// HandleCreateWizard handles POST /wizard
func (h *Handler) HandleCreateWizard(w http.ResponseWriter, r *http.Request) {
	var request models.CreateWizardRequest
	if err := decodeBody(r, &request, true); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}

	opts := h.defaults
	opts.FromSearch = request.FromSearch
	opts.Platform = device.Detect(r.UserAgent())
	opts.Locale = h.locale(r)
	if request.Locale != "" {
		opts.Locale = i18n.Match(request.Locale)
	}
	if request.CaptureMode != "" {
		mode, err := wizard.ParseCaptureMode(request.CaptureMode)
		if err != nil {
			badRequest(w, err.Error())
			return
		}
		opts.CaptureMode = mode
	}
	if request.RequireLiveness != nil {
		opts.RequireLiveness = *request.RequireLiveness
	}

	session, expiresAt := h.wizards.Create(opts)
	writeJSON(w, http.StatusCreated, models.CreateWizardResponse{
		Status:    "success",
		Token:     session.Token,
		ExpiresAt: expiresAt,
	})
}

// session resolves the {token} route variable
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*wizard.Session, bool) {
	session, err := h.wizards.Get(mux.Vars(r)["token"])
	if err != nil {
		h.writeError(w, r, err)
		return nil, false
	}
	return session, true
}

func (h *Handler) writeSession(w http.ResponseWriter, session *wizard.Session) {
	writeJSON(w, http.StatusOK, wizardResponse{Status: "success", Session: session.View()})
}

// wizardAction wraps a session operation that needs no request body
func (h *Handler) wizardAction(op func(*wizard.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		session, ok := h.session(w, r)
		if !ok {
			return
		}
		if err := op(session); err != nil {
			h.writeError(w, r, err)
			return
		}
		h.writeSession(w, session)
	}
}

// HandleGetWizard handles GET /wizard/{token}
func (h *Handler) HandleGetWizard(w http.ResponseWriter, r *http.Request) {
	if session, ok := h.session(w, r); ok {
		h.writeSession(w, session)
	}
}

// HandleCloseWizard handles DELETE /wizard/{token}
func (h *Handler) HandleCloseWizard(w http.ResponseWriter, r *http.Request) {
	if err := h.wizards.Close(mux.Vars(r)["token"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{
		Status:  "success",
		Message: "Wizard session closed",
	})
}

func (h *Handler) handleUpload(w http.ResponseWriter, r *http.Request, upload func(*wizard.Session, []byte) error) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var request models.UploadRequest
	if err := decodeBody(r, &request, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	if err := upload(session, imagePayload(request.Image)); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, session)
}

// HandleUploadDocument handles POST /wizard/{token}/document/upload
func (h *Handler) HandleUploadDocument(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, (*wizard.Session).UploadDocument)
}

// HandleUploadLiveness handles POST /wizard/{token}/liveness/upload
func (h *Handler) HandleUploadLiveness(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, (*wizard.Session).UploadLiveness)
}

// HandleCaptureDocument handles POST /wizard/{token}/document/capture
func (h *Handler) HandleCaptureDocument(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var request models.CaptureRequest
	if err := decodeBody(r, &request, true); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}

	var sel *crop.Selection
	if request.Selection != nil {
		sel = &crop.Selection{
			X:      request.Selection.X,
			Y:      request.Selection.Y,
			Width:  request.Selection.Width,
			Height: request.Selection.Height,
		}
	}
	displayed := crop.Size{Width: request.DisplayedWidth, Height: request.DisplayedHeight}
	if err := session.CaptureDocument(r.Context(), sel, displayed); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, session)
}

// HandleCaptureLiveness handles POST /wizard/{token}/liveness/capture
func (h *Handler) HandleCaptureLiveness(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := session.CaptureLiveness(r.Context()); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, session)
}

// HandleSelectDocumentType handles POST /wizard/{token}/document/type
func (h *Handler) HandleSelectDocumentType(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var request models.SelectTypeRequest
	if err := decodeBody(r, &request, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	if err := session.SelectDocumentType(request.TypeID); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeSession(w, session)
}

// HandleSubmitWizard handles POST /wizard/{token}/submit
func (h *Handler) HandleSubmitWizard(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(w, r)
	if !ok {
		return
	}
	var request models.SubmitRequest
	if err := decodeBody(r, &request, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	action, err := review.ParseAction(request.Action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	disposition, err := session.Submit(r.Context(), action)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wizardResponse{
		Status:      "success",
		Disposition: disposition,
		Session:     session.View(),
	})
}

// HandleGetCompanions handles GET /companions
func (h *Handler) HandleGetCompanions(w http.ResponseWriter, r *http.Request) {
	companions, err := h.registry.List()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	for i := range companions {
		companions[i].IDNumber = store.MaskIdentifier(companions[i].IDNumber)
	}
	if companions == nil {
		companions = []models.Companion{}
	}
	writeJSON(w, http.StatusOK, models.CompanionsResponse{
		Status:     "success",
		Companions: companions,
		Count:      len(companions),
	})
}

// HandleDeleteCompanion handles DELETE /companions/{id}
func (h *Handler) HandleDeleteCompanion(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.registry.Remove(id); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{
		Status:  "success",
		Message: "Companion removed",
	})
}

// HandleGetFriendRequests handles GET /friend-requests
func (h *Handler) HandleGetFriendRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.inbox.List()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pending, err := h.inbox.PendingCount()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if requests == nil {
		requests = []models.FriendRequest{}
	}
	writeJSON(w, http.StatusOK, models.FriendRequestsResponse{
		Status:       "success",
		Requests:     requests,
		PendingCount: pending,
	})
}

// HandlePostFriendRequest handles POST /friend-requests. The request is
// published on the event bus under the caller's Origin header.
func (h *Handler) HandlePostFriendRequest(w http.ResponseWriter, r *http.Request) {
	var request models.FriendRequest
	if err := decodeBody(r, &request, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	if request.Status == "" {
		request.Status = models.RequestPending
	}
	request.Leaving = false

	origin := r.Header.Get("Origin")
	if err := h.bus.Publish(origin, events.AddFriendRequest{Request: request}); err != nil {
		utils.Logger.Warn("Rejected inbound friend request", "origin", origin, "error", err)
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.APIResponse{
		Status:  "success",
		Message: "Friend request received",
	})
}

// HandleAcceptFriendRequest handles POST /friend-requests/{id}/accept
func (h *Handler) HandleAcceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	companion, err := h.inbox.Accept(mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.AcceptResponse{Status: "success", Companion: companion})
}

// HandleRejectFriendRequest handles POST /friend-requests/{id}/reject
func (h *Handler) HandleRejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	if err := h.inbox.Reject(mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{
		Status:  "success",
		Message: "Friend request rejected",
	})
}

// HandleSearch handles POST /search
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	var request models.SearchRequest
	if err := decodeBody(r, &request, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	result, err := h.search.Search(r.Context(), request.Term)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SearchResponse{Status: "success", Result: result})
}

// HandleSendRequest handles POST /search/send
func (h *Handler) HandleSendRequest(w http.ResponseWriter, r *http.Request) {
	var result models.SearchResult
	if err := decodeBody(r, &result, false); err != nil {
		badRequest(w, "Invalid JSON format")
		return
	}
	request, err := h.search.SendRequest(r.Context(), result)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.SendRequestResponse{Status: "success", Request: request})
}

// Routes registers every endpoint on router
func (h *Handler) Routes(router *mux.Router) {
	router.HandleFunc("/health", h.HandleHealth).Methods("GET")
	router.HandleFunc("/document-types", h.HandleDocumentTypes).Methods("GET")

	router.HandleFunc("/wizard", h.HandleCreateWizard).Methods("POST")
	router.HandleFunc("/wizard/{token}", h.HandleGetWizard).Methods("GET")
	router.HandleFunc("/wizard/{token}", h.HandleCloseWizard).Methods("DELETE")
	router.HandleFunc("/wizard/{token}/document/upload", h.HandleUploadDocument).Methods("POST")
	router.HandleFunc("/wizard/{token}/document/capture", h.HandleCaptureDocument).Methods("POST")
	router.HandleFunc("/wizard/{token}/document/type", h.HandleSelectDocumentType).Methods("POST")
	router.HandleFunc("/wizard/{token}/document/retake", h.wizardAction((*wizard.Session).Retake)).Methods("POST")
	router.HandleFunc("/wizard/{token}/liveness/upload", h.HandleUploadLiveness).Methods("POST")
	router.HandleFunc("/wizard/{token}/liveness/capture", h.HandleCaptureLiveness).Methods("POST")
	router.HandleFunc("/wizard/{token}/next", h.wizardAction((*wizard.Session).Next)).Methods("POST")
	router.HandleFunc("/wizard/{token}/previous", h.wizardAction((*wizard.Session).Previous)).Methods("POST")
	router.HandleFunc("/wizard/{token}/submit", h.HandleSubmitWizard).Methods("POST")

	router.HandleFunc("/companions", h.HandleGetCompanions).Methods("GET")
	router.HandleFunc("/companions/{id}", h.HandleDeleteCompanion).Methods("DELETE")

	router.HandleFunc("/friend-requests", h.HandleGetFriendRequests).Methods("GET")
	router.HandleFunc("/friend-requests", h.HandlePostFriendRequest).Methods("POST")
	router.HandleFunc("/friend-requests/{id}/accept", h.HandleAcceptFriendRequest).Methods("POST")
	router.HandleFunc("/friend-requests/{id}/reject", h.HandleRejectFriendRequest).Methods("POST")

	router.HandleFunc("/search", h.HandleSearch).Methods("POST")
	router.HandleFunc("/search/send", h.HandleSendRequest).Methods("POST")
}
