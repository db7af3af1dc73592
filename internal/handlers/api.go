package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/Jim-devENG/ispora-engine-sub008/internal/auth"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/realtime"
	"github.com/Jim-devENG/ispora-engine-sub008/internal/store"
)

// Store is the persistence surface the handlers depend on.
type Store interface {
	IsProjectMember(ctx context.Context, projectID, userID string) (bool, error)
	ListMembers(ctx context.Context, projectID string) ([]store.ProjectMember, error)
	AddMember(ctx context.Context, in store.AddMemberInput) (store.ProjectMember, error)
	ListTasks(ctx context.Context, projectID string) ([]store.Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (store.Task, error)
	CreateTask(ctx context.Context, in store.CreateTaskInput) (store.Task, error)
	UpdateTask(ctx context.Context, projectID string, id uuid.UUID, in store.UpdateTaskInput) (store.Task, error)
	DeleteTask(ctx context.Context, projectID string, id uuid.UUID) error
	ListMilestones(ctx context.Context, projectID string) ([]store.Milestone, error)
	CreateMilestone(ctx context.Context, in store.CreateMilestoneInput) (store.Milestone, error)
	UpdateMilestoneStatus(ctx context.Context, projectID string, id uuid.UUID, status string) (store.Milestone, error)
	ListMessages(ctx context.Context, projectID string) ([]store.Message, error)
	CreateMessage(ctx context.Context, projectID, senderID, body string) (store.Message, error)
}

// API wires HTTP handlers for the workspace service.
type API struct {
	log    *slog.Logger
	store  Store
	broker *realtime.Broker
	auth   *auth.Verifier
}

// New constructs the API.
func New(log *slog.Logger, st Store, broker *realtime.Broker, verifier *auth.Verifier) *API {
	return &API{log: log, store: st, broker: broker, auth: verifier}
}

// Routes configures the router.
func (a *API) Routes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Route("/sse", func(r chi.Router) {
			r.Get("/workspace", a.handleStreamOpen)
			r.Get("/workspace/{projectID}", a.handleStreamOpen)

			r.Group(func(r chi.Router) {
				r.Use(a.auth.Middleware)
				r.Post("/workspace/{projectID}/subscribe", a.handleSubscribe)
				r.Post("/workspace/{projectID}/unsubscribe", a.handleUnsubscribe)
				r.Get("/status", a.handleStreamStatus)
			})
		})

		r.Route("/workspace/{projectID}", func(r chi.Router) {
			r.Use(a.auth.Middleware)

			r.Get("/members", a.handleMembersList)
			r.Post("/members", a.handleMemberAdd)

			r.Get("/tasks", a.handleTasksList)
			r.Post("/tasks", a.handleTaskCreate)
			r.Put("/tasks/{taskID}", a.handleTaskUpdate)
			r.Delete("/tasks/{taskID}", a.handleTaskDelete)

			r.Get("/milestones", a.handleMilestonesList)
			r.Post("/milestones", a.handleMilestoneCreate)
			r.Put("/milestones/{milestoneID}", a.handleMilestoneUpdate)

			r.Get("/messages", a.handleMessagesList)
			r.Post("/messages", a.handleMessageCreate)
		})
	})
}

// handleStreamOpen authenticates the credential, registers a connection,
// and serves the push stream. The path project id, when present, seeds
// the subscription set; without it the stream carries global events only.
// Authentication failure is reported once, synchronously, before any
// stream bytes.
func (a *API) handleStreamOpen(w http.ResponseWriter, r *http.Request) {
	ident, err := a.auth.Verify(auth.TokenFromRequest(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid or missing token")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	var topics []string
	if projectID := chi.URLParam(r, "projectID"); projectID != "" {
		topics = []string{projectID}
	}

	conn, err := a.broker.Register(uuid.NewString(), ident.UserID, topics)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "connection registration failed")
		return
	}

	realtime.SetStreamHeaders(w)
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	// The synthetic connected event lets the client distinguish an
	// established stream from network buffering.
	a.broker.SendTo(conn.ID, realtime.EventConnected, map[string]string{
		"message": "stream established",
	})

	a.broker.ServeStream(r, w, flusher, conn)
}

// handleSubscribe adds the project topic to every live connection the
// caller holds. Missed history is not replayed.
func (a *API) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	a.mutateSubscription(w, r, true)
}

// handleUnsubscribe removes the project topic from the caller's live
// connections.
func (a *API) handleUnsubscribe(w http.ResponseWriter, r *http.Request) {
	a.mutateSubscription(w, r, false)
}

func (a *API) mutateSubscription(w http.ResponseWriter, r *http.Request, subscribe bool) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	projectID := chi.URLParam(r, "projectID")

	ack := realtime.EventUnsubscribed
	verb := "unsubscribed from"
	if subscribe {
		ack = realtime.EventSubscribed
		verb = "subscribed to"
	}

	for _, conn := range a.broker.ConnectionsForUser(ident.UserID) {
		if subscribe {
			a.broker.Subscribe(conn.ID, projectID)
		} else {
			a.broker.Unsubscribe(conn.ID, projectID)
		}
		a.broker.SendTo(conn.ID, ack, map[string]string{"projectId": projectID})
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"message": verb + " project " + projectID,
	})
}

// handleStreamStatus reports whether the caller currently holds a live
// stream, the union of its subscribed topics, and the process-wide
// connection count.
func (a *API) handleStreamStatus(w http.ResponseWriter, r *http.Request) {
	ident, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	conns := a.broker.ConnectionsForUser(ident.UserID)
	seen := map[string]struct{}{}
	projectIDs := make([]string, 0)
	for _, conn := range conns {
		for _, t := range conn.Topics() {
			if _, dup := seen[t]; !dup {
				seen[t] = struct{}{}
				projectIDs = append(projectIDs, t)
			}
		}
	}
	sort.Strings(projectIDs)

	writeJSON(w, http.StatusOK, map[string]any{
		"connected":        len(conns) > 0,
		"projectIds":       projectIDs,
		"totalConnections": a.broker.Count(),
	})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}
