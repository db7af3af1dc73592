package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jim-devENG/ispora-engine-sub008/internal/auth"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/realtime"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/store"
)

// requireMember authorizes the caller as an active member of the project.
// Every workspace mutation and read goes through it.
func (a *API) requireMember(w http.ResponseWriter, r *http.Request) (auth.Identity, string, bool) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return auth.Identity{}, "", false
	}
	projectID := chi.URLParam(r, "projectID")

	member, err := a.store.IsProjectMember(r.Context(), projectID, ident.UserID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return auth.Identity{}, "", false
	}
	if !member {
		writeError(w, http.StatusForbidden, "not a project member")
		return auth.Identity{}, "", false
	}
	return ident, projectID, true
}

func (a *API) handleMembersList(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	members, err := a.store.ListMembers(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (a *API) handleMemberAdd(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}

	var payload struct {
		UserID string `json:"userId"`
		Name   string `json:"name"`
		Email  string `json:"email"`
		Role   string `json:"role"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	member, err := a.store.AddMember(r.Context(), store.AddMemberInput{
		ProjectID: projectID,
		UserID:    payload.UserID,
		Name:      payload.Name,
		Email:     payload.Email,
		Role:      payload.Role,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.broker.Emit(realtime.EventMemberAdded, projectID, map[string]any{"member": member})
	writeJSON(w, http.StatusCreated, member)
}

func (a *API) handleTasksList(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	tasks, err := a.store.ListTasks(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *API) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	ident, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		Status      string `json:"status"`
		Priority    string `json:"priority"`
		Assignee    string `json:"assignee"`
		DueDate     string `json:"dueDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	task, err := a.store.CreateTask(r.Context(), store.CreateTaskInput{
		ProjectID:   projectID,
		Title:       payload.Title,
		Description: payload.Description,
		Status:      payload.Status,
		Priority:    payload.Priority,
		Assignee:    payload.Assignee,
		DueDate:     parseTime(payload.DueDate),
		CreatedBy:   ident.UserID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.broker.Emit(realtime.EventTaskCreated, projectID, map[string]any{"task": task})
	writeJSON(w, http.StatusCreated, task)
}

func (a *API) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	var payload struct {
		Title       string  `json:"title"`
		Description *string `json:"description"`
		Status      string  `json:"status"`
		Priority    string  `json:"priority"`
		Assignee    *string `json:"assignee"`
		DueDate     string  `json:"dueDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	task, err := a.store.UpdateTask(r.Context(), projectID, taskID, store.UpdateTaskInput{
		Title:       payload.Title,
		Description: payload.Description,
		Status:      payload.Status,
		Priority:    payload.Priority,
		Assignee:    payload.Assignee,
		DueDate:     parseTime(payload.DueDate),
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}

	a.broker.Emit(realtime.EventTaskUpdated, projectID, map[string]any{"task": task})
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleTaskDelete(w http.ResponseWriter, r *http.Request) {
	ident, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	taskID, err := uuid.Parse(chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}

	task, err := a.store.GetTask(r.Context(), taskID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	if task.ProjectID != projectID {
		writeStoreError(w, store.ErrNotFound)
		return
	}
	if task.CreatedBy != ident.UserID {
		writeError(w, http.StatusForbidden, "not authorized to delete this task")
		return
	}

	if err := a.store.DeleteTask(r.Context(), projectID, taskID); err != nil {
		writeStoreError(w, err)
		return
	}

	a.broker.Emit(realtime.EventTaskDeleted, projectID, map[string]any{"taskId": taskID.String()})
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (a *API) handleMilestonesList(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	milestones, err := a.store.ListMilestones(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, milestones)
}

func (a *API) handleMilestoneCreate(w http.ResponseWriter, r *http.Request) {
	ident, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}

	var payload struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		DueDate     string `json:"dueDate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Title == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	milestone, err := a.store.CreateMilestone(r.Context(), store.CreateMilestoneInput{
		ProjectID:   projectID,
		Title:       payload.Title,
		Description: payload.Description,
		DueDate:     parseTime(payload.DueDate),
		CreatedBy:   ident.UserID,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.broker.Emit(realtime.EventMilestoneCreated, projectID, map[string]any{"milestone": milestone})
	writeJSON(w, http.StatusCreated, milestone)
}

func (a *API) handleMilestoneUpdate(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	milestoneID, err := uuid.Parse(chi.URLParam(r, "milestoneID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid milestone id")
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil ||
		(payload.Status != "open" && payload.Status != "completed") {
		writeError(w, http.StatusBadRequest, "status must be open or completed")
		return
	}

	milestone, err := a.store.UpdateMilestoneStatus(r.Context(), projectID, milestoneID, payload.Status)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	a.broker.Emit(realtime.EventMilestoneUpdated, projectID, map[string]any{"milestone": milestone})
	writeJSON(w, http.StatusOK, milestone)
}

func (a *API) handleMessagesList(w http.ResponseWriter, r *http.Request) {
	_, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}
	messages, err := a.store.ListMessages(r.Context(), projectID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, messages)
}

func (a *API) handleMessageCreate(w http.ResponseWriter, r *http.Request) {
	ident, projectID, ok := a.requireMember(w, r)
	if !ok {
		return
	}

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Body == "" {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}

	message, err := a.store.CreateMessage(r.Context(), projectID, ident.UserID, payload.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	a.broker.Emit(realtime.EventMessageSent, projectID, map[string]any{"message": message})
	writeJSON(w, http.StatusCreated, message)
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "resource not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
