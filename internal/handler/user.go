package handler

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/service"
)

// UsersPath is the mount point of the user collection.
const UsersPath = "/api/v1/users/"

// UserHandler handles HTTP requests for user operations.
type UserHandler struct {
	svc     *service.UserService
	baseURL string
	logger  *slog.Logger
}

// NewUserHandler creates a new UserHandler. Page links are made absolute
// against baseURL.
func NewUserHandler(svc *service.UserService, baseURL string, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		svc:     svc,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// List handles GET /api/v1/users/?page=N.
func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListUsers(r.Context(), r.URL.Query().Get("page"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var next, previous string
	if page.HasNext() {
		next = h.pageLink(r.URL.Query(), page.Page+1)
	}
	if page.HasPrevious() {
		previous = h.pageLink(r.URL.Query(), page.Page-1)
	}

	writeJSON(w, http.StatusOK, dto.ToUserPageResponse(page.Users, page.Count, next, previous))
}

// pageLink keeps the client's other query parameters. The first page is
// linked without a page parameter.
func (h *UserHandler) pageLink(query url.Values, page int) string {
	if page <= 1 {
		query.Del("page")
	} else {
		query.Set("page", strconv.Itoa(page))
	}

	link := h.baseURL + UsersPath
	if encoded := query.Encode(); encoded != "" {
		link += "?" + encoded
	}
	return link
}

// Create handles POST /api/v1/users/.
func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.AuthFromContext(r.Context())

	user, err := h.svc.CreateUser(r.Context(), caller, func() (string, error) {
		return dto.DecodeCreateUser(r.Body)
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("user_created",
		"user_id", user.ID,
		"created_by", caller.UserID,
	)

	w.Header().Set("Location", UsersPath+strconv.FormatInt(user.ID, 10)+"/")
	writeJSON(w, http.StatusCreated, dto.ToUserResponse(user))
}

// Get handles GET /api/v1/users/{id}/.
func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
		return
	}

	user, err := h.svc.GetUser(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

func (h *UserHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	handleServiceError(w, h.logger, auth.AuthFromContext(r.Context()), err)
}
