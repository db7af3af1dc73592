// Package store wraps database access for workspace projects.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var ErrNotFound = errors.New("resource not found")

// Config defines Store connection settings.
type Config struct {
	DSN string
}

// Store wraps database access for the workspace API.
type Store struct {
	db *sqlx.DB
}

// New initialises the Store.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// ProjectMember is one user's membership in a project workspace.
type ProjectMember struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Name      string    `db:"name" json:"name"`
	Email     string    `db:"email" json:"email"`
	Role      string    `db:"role" json:"role"`
	Status    string    `db:"status" json:"status"`
	JoinedAt  time.Time `db:"joined_at" json:"joined_at"`
}

// Task is a workspace task. Optional columns use pointer fields so the
// JSON representation stays null rather than a wrapped Valid struct.
type Task struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"project_id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	Priority    string     `db:"priority" json:"priority"`
	Assignee    *string    `db:"assignee" json:"assignee,omitempty"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CompletedAt *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Milestone is a workspace milestone.
type Milestone struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	ProjectID   string     `db:"project_id" json:"project_id"`
	Title       string     `db:"title" json:"title"`
	Description *string    `db:"description" json:"description,omitempty"`
	Status      string     `db:"status" json:"status"`
	DueDate     *time.Time `db:"due_date" json:"due_date,omitempty"`
	CreatedBy   string     `db:"created_by" json:"created_by"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// Message is one entry in a project's workspace chat.
type Message struct {
	ID        uuid.UUID `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	SenderID  string    `db:"sender_id" json:"sender_id"`
	Body      string    `db:"body" json:"body"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsProjectMember reports whether userID has an active membership in the
// project.
func (s *Store) IsProjectMember(ctx context.Context, projectID, userID string) (bool, error) {
	var ok bool
	err := s.db.GetContext(ctx, &ok, `
		select exists (
			select 1 from project_members
			where project_id = $1 and user_id = $2 and status = 'active'
		)
	`, projectID, userID)
	return ok, err
}

// ListMembers returns the project's members.
func (s *Store) ListMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	var members []ProjectMember
	err := s.db.SelectContext(ctx, &members, `
		select * from project_members where project_id = $1 order by joined_at asc
	`, projectID)
	return members, err
}

// AddMemberInput captures data for adding a project member.
type AddMemberInput struct {
	ProjectID string
	UserID    string
	Name      string
	Email     string
	Role      string
}

// AddMember inserts a membership, reactivating a previous one if present.
func (s *Store) AddMember(ctx context.Context, in AddMemberInput) (ProjectMember, error) {
	var member ProjectMember
	err := s.db.GetContext(ctx, &member, `
		insert into project_members (project_id, user_id, name, email, role, status)
		values ($1, $2, $3, $4, coalesce(nullif($5, ''), 'collaborator'), 'active')
		on conflict (project_id, user_id) do update set
			role = excluded.role,
			status = 'active'
		returning *
	`, in.ProjectID, in.UserID, in.Name, in.Email, in.Role)
	return member, err
}

// ListTasks returns the project's tasks, newest first.
func (s *Store) ListTasks(ctx context.Context, projectID string) ([]Task, error) {
	var tasks []Task
	err := s.db.SelectContext(ctx, &tasks, `
		select * from tasks where project_id = $1 order by created_at desc limit 200
	`, projectID)
	return tasks, err
}

// GetTask fetches a task by id.
func (s *Store) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, `select * from tasks where id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return task, err
}

// CreateTaskInput captures data for creating a task.
type CreateTaskInput struct {
	ProjectID   string
	Title       string
	Description string
	Status      string
	Priority    string
	Assignee    string
	DueDate     *time.Time
	CreatedBy   string
}

// CreateTask inserts a task record.
func (s *Store) CreateTask(ctx context.Context, in CreateTaskInput) (Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, `
		insert into tasks (project_id, title, description, status, priority, assignee, due_date, created_by)
		values ($1, $2, nullif($3, ''), coalesce(nullif($4, ''), 'todo'),
			coalesce(nullif($5, ''), 'medium'), nullif($6, ''), $7, $8)
		returning *
	`, in.ProjectID, in.Title, in.Description, in.Status, in.Priority, in.Assignee, in.DueDate, in.CreatedBy)
	return task, err
}

// UpdateTaskInput holds the mutable task fields; nil or empty values leave
// the column unchanged.
type UpdateTaskInput struct {
	Title       string
	Description *string
	Status      string
	Priority    string
	Assignee    *string
	DueDate     *time.Time
}

// UpdateTask applies a partial update. Moving a task into done stamps its
// completion time; moving it back out clears it.
func (s *Store) UpdateTask(ctx context.Context, projectID string, id uuid.UUID, in UpdateTaskInput) (Task, error) {
	var task Task
	err := s.db.GetContext(ctx, &task, `
		update tasks set
			title = coalesce(nullif($3, ''), title),
			description = coalesce($4, description),
			status = coalesce(nullif($5, ''), status),
			priority = coalesce(nullif($6, ''), priority),
			assignee = coalesce($7, assignee),
			due_date = coalesce($8, due_date),
			completed_at = case
				when $5 = 'done' then coalesce(completed_at, now())
				when $5 in ('todo', 'in_progress') then null
				else completed_at
			end,
			updated_at = now()
		where id = $1 and project_id = $2
		returning *
	`, id, projectID, in.Title, in.Description, in.Status, in.Priority, in.Assignee, in.DueDate)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	return task, err
}

// DeleteTask removes a task.
func (s *Store) DeleteTask(ctx context.Context, projectID string, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `delete from tasks where id = $1 and project_id = $2`, id, projectID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListMilestones returns the project's milestones by due date.
func (s *Store) ListMilestones(ctx context.Context, projectID string) ([]Milestone, error) {
	var milestones []Milestone
	err := s.db.SelectContext(ctx, &milestones, `
		select * from milestones where project_id = $1 order by due_date asc nulls last
	`, projectID)
	return milestones, err
}

// CreateMilestoneInput captures data for creating a milestone.
type CreateMilestoneInput struct {
	ProjectID   string
	Title       string
	Description string
	DueDate     *time.Time
	CreatedBy   string
}

// CreateMilestone inserts a milestone record.
func (s *Store) CreateMilestone(ctx context.Context, in CreateMilestoneInput) (Milestone, error) {
	var milestone Milestone
	err := s.db.GetContext(ctx, &milestone, `
		insert into milestones (project_id, title, description, status, due_date, created_by)
		values ($1, $2, nullif($3, ''), 'open', $4, $5)
		returning *
	`, in.ProjectID, in.Title, in.Description, in.DueDate, in.CreatedBy)
	return milestone, err
}

// UpdateMilestoneStatus moves a milestone between open and completed.
func (s *Store) UpdateMilestoneStatus(ctx context.Context, projectID string, id uuid.UUID, status string) (Milestone, error) {
	var milestone Milestone
	err := s.db.GetContext(ctx, &milestone, `
		update milestones set status = $3, updated_at = now()
		where id = $1 and project_id = $2
		returning *
	`, id, projectID, status)
	if errors.Is(err, sql.ErrNoRows) {
		return Milestone{}, ErrNotFound
	}
	return milestone, err
}

// ListMessages returns the project's most recent chat messages.
func (s *Store) ListMessages(ctx context.Context, projectID string) ([]Message, error) {
	var messages []Message
	err := s.db.SelectContext(ctx, &messages, `
		select * from messages where project_id = $1 order by created_at desc limit 100
	`, projectID)
	return messages, err
}

// CreateMessage inserts a chat message.
func (s *Store) CreateMessage(ctx context.Context, projectID, senderID, body string) (Message, error) {
	var message Message
	err := s.db.GetContext(ctx, &message, `
		insert into messages (project_id, sender_id, body)
		values ($1, $2, $3)
		returning *
	`, projectID, senderID, body)
	return message, err
}
