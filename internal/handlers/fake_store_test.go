package handlers_test

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jim-devENG/ispora-engine-sub008/internal/store"
)

// fakeStore is an in-memory stand-in for the Postgres store.
type fakeStore struct {
	mu          sync.Mutex
	memberships map[string]map[string]bool
	members     map[string][]store.ProjectMember
	tasks       map[uuid.UUID]store.Task
	milestones  map[uuid.UUID]store.Milestone
	messages    map[string][]store.Message
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		memberships: map[string]map[string]bool{},
		members:     map[string][]store.ProjectMember{},
		tasks:       map[uuid.UUID]store.Task{},
		milestones:  map[uuid.UUID]store.Milestone{},
		messages:    map[string][]store.Message{},
	}
}

func (f *fakeStore) addMembership(projectID, userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.memberships[projectID] == nil {
		f.memberships[projectID] = map[string]bool{}
	}
	f.memberships[projectID][userID] = true
}

func (f *fakeStore) IsProjectMember(_ context.Context, projectID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.memberships[projectID][userID], nil
}

func (f *fakeStore) ListMembers(_ context.Context, projectID string) ([]store.ProjectMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.ProjectMember(nil), f.members[projectID]...), nil
}

func (f *fakeStore) AddMember(_ context.Context, in store.AddMemberInput) (store.ProjectMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	role := in.Role
	if role == "" {
		role = "collaborator"
	}
	member := store.ProjectMember{
		ID:        uuid.New(),
		ProjectID: in.ProjectID,
		UserID:    in.UserID,
		Name:      in.Name,
		Email:     in.Email,
		Role:      role,
		Status:    "active",
		JoinedAt:  time.Now().UTC(),
	}
	f.members[in.ProjectID] = append(f.members[in.ProjectID], member)
	if f.memberships[in.ProjectID] == nil {
		f.memberships[in.ProjectID] = map[string]bool{}
	}
	f.memberships[in.ProjectID][in.UserID] = true
	return member, nil
}

func (f *fakeStore) ListTasks(_ context.Context, projectID string) ([]store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Task
	for _, task := range f.tasks {
		if task.ProjectID == projectID {
			out = append(out, task)
		}
	}
	return out, nil
}

func (f *fakeStore) GetTask(_ context.Context, id uuid.UUID) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok {
		return store.Task{}, store.ErrNotFound
	}
	return task, nil
}

func (f *fakeStore) CreateTask(_ context.Context, in store.CreateTaskInput) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status := in.Status
	if status == "" {
		status = "todo"
	}
	priority := in.Priority
	if priority == "" {
		priority = "medium"
	}
	now := time.Now().UTC()
	task := store.Task{
		ID:        uuid.New(),
		ProjectID: in.ProjectID,
		Title:     in.Title,
		Status:    status,
		Priority:  priority,
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != "" {
		desc := in.Description
		task.Description = &desc
	}
	if in.Assignee != "" {
		assignee := in.Assignee
		task.Assignee = &assignee
	}
	task.DueDate = in.DueDate
	f.tasks[task.ID] = task
	return task, nil
}

func (f *fakeStore) UpdateTask(_ context.Context, projectID string, id uuid.UUID, in store.UpdateTaskInput) (store.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.ProjectID != projectID {
		return store.Task{}, store.ErrNotFound
	}
	if in.Title != "" {
		task.Title = in.Title
	}
	if in.Description != nil {
		task.Description = in.Description
	}
	if in.Status != "" {
		task.Status = in.Status
		switch in.Status {
		case "done":
			if task.CompletedAt == nil {
				now := time.Now().UTC()
				task.CompletedAt = &now
			}
		case "todo", "in_progress":
			task.CompletedAt = nil
		}
	}
	if in.Priority != "" {
		task.Priority = in.Priority
	}
	if in.Assignee != nil {
		task.Assignee = in.Assignee
	}
	if in.DueDate != nil {
		task.DueDate = in.DueDate
	}
	task.UpdatedAt = time.Now().UTC()
	f.tasks[id] = task
	return task, nil
}

func (f *fakeStore) DeleteTask(_ context.Context, projectID string, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	task, ok := f.tasks[id]
	if !ok || task.ProjectID != projectID {
		return store.ErrNotFound
	}
	delete(f.tasks, id)
	return nil
}

func (f *fakeStore) ListMilestones(_ context.Context, projectID string) ([]store.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Milestone
	for _, milestone := range f.milestones {
		if milestone.ProjectID == projectID {
			out = append(out, milestone)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateMilestone(_ context.Context, in store.CreateMilestoneInput) (store.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	milestone := store.Milestone{
		ID:        uuid.New(),
		ProjectID: in.ProjectID,
		Title:     in.Title,
		Status:    "open",
		CreatedBy: in.CreatedBy,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Description != "" {
		desc := in.Description
		milestone.Description = &desc
	}
	milestone.DueDate = in.DueDate
	f.milestones[milestone.ID] = milestone
	return milestone, nil
}

func (f *fakeStore) UpdateMilestoneStatus(_ context.Context, projectID string, id uuid.UUID, status string) (store.Milestone, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	milestone, ok := f.milestones[id]
	if !ok || milestone.ProjectID != projectID {
		return store.Milestone{}, store.ErrNotFound
	}
	milestone.Status = status
	milestone.UpdatedAt = time.Now().UTC()
	f.milestones[id] = milestone
	return milestone, nil
}

func (f *fakeStore) ListMessages(_ context.Context, projectID string) ([]store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.Message(nil), f.messages[projectID]...), nil
}

func (f *fakeStore) CreateMessage(_ context.Context, projectID, senderID, body string) (store.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	message := store.Message{
		ID:        uuid.New(),
		ProjectID: projectID,
		SenderID:  senderID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
	f.messages[projectID] = append(f.messages[projectID], message)
	return message, nil
}
