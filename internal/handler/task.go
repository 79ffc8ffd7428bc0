package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/taskboard/taskboard/internal/auth"
	"github.com/taskboard/taskboard/internal/handler/dto"
	"github.com/taskboard/taskboard/internal/model"
	"github.com/taskboard/taskboard/internal/service"
)

// TasksPath is the mount point of the task collection.
const TasksPath = "/api/v1/tasks/"

// TaskHandler handles HTTP requests for task operations.
type TaskHandler struct {
	svc    *service.TaskService
	logger *slog.Logger
}

// NewTaskHandler creates a new TaskHandler.
func NewTaskHandler(svc *service.TaskService, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{
		svc:    svc,
		logger: logger,
	}
}

// List handles GET /api/v1/tasks/?date=YYYY-MM-DD.
func (h *TaskHandler) List(w http.ResponseWriter, r *http.Request) {
	// a present but empty date is still a date the client asked for
	values, hasDate := r.URL.Query()["date"]
	filter := service.TaskFilter{HasDate: hasDate}
	if hasDate {
		filter.Date = values[0]
	}

	tasks, err := h.svc.ListTasks(r.Context(), filter)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskListResponse(tasks))
}

// Create handles POST /api/v1/tasks/.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.AuthFromContext(r.Context())

	task, err := h.svc.CreateTask(r.Context(), caller, h.decoder(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_created",
		"task_id", task.ID,
		"owner_id", task.OwnerID,
		"has_due", task.Due != nil,
	)

	w.Header().Set("Location", TasksPath+strconv.FormatInt(task.ID, 10)+"/")
	writeJSON(w, http.StatusCreated, dto.ToTaskResponse(task))
}

// Get handles GET /api/v1/tasks/{id}/.
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
		return
	}

	task, err := h.svc.GetTask(r.Context(), id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Put handles PUT /api/v1/tasks/{id}/.
func (h *TaskHandler) Put(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
		return
	}

	caller := auth.AuthFromContext(r.Context())
	task, err := h.svc.ReplaceTask(r.Context(), caller, id, h.decoder(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_updated",
		"task_id", task.ID,
		"owner_id", task.OwnerID,
	)

	writeJSON(w, http.StatusOK, dto.ToTaskResponse(task))
}

// Delete handles DELETE /api/v1/tasks/{id}/.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, msgNotFound)
		return
	}

	caller := auth.AuthFromContext(r.Context())
	task, err := h.svc.DeleteTask(r.Context(), caller, id)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.logger.Info("task_deleted",
		"task_id", task.ID,
		"task", task.String(),
	)

	w.WriteHeader(http.StatusNoContent)
}

func (h *TaskHandler) decoder(r *http.Request) service.TaskDecoder {
	return func() (model.TaskChanges, error) {
		return dto.DecodeTaskChanges(r.Body)
	}
}

func (h *TaskHandler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	handleServiceError(w, h.logger, auth.AuthFromContext(r.Context()), err)
}
