package realtime

import "time"

// Stream control events. Clients treat heartbeat as a silent keep-alive,
// never as a domain event.
const (
	EventConnected    = "connected"
	EventHeartbeat    = "heartbeat"
	EventSubscribed   = "subscribed"
	EventUnsubscribed = "unsubscribed"
)

// Workspace domain events, emitted by mutation handlers after a committed
// write.
const (
	EventTaskCreated            = "task_created"
	EventTaskUpdated            = "task_updated"
	EventTaskDeleted            = "task_deleted"
	EventMilestoneCreated       = "milestone_created"
	EventMilestoneUpdated       = "milestone_updated"
	EventSessionCreated         = "session_created"
	EventSessionUpdated         = "session_updated"
	EventMessageSent            = "message_sent"
	EventVoiceNoteCreated       = "voice_note_created"
	EventLearningContentCreated = "learning_content_created"
	EventDeliverableCreated     = "deliverable_created"
	EventDeliverableUpdated     = "deliverable_updated"
	EventCertificateCreated     = "certificate_created"
	EventLiveSessionUpdated     = "live_session_updated"
	EventResearchSourceCreated  = "research_source_created"
	EventResearchNoteCreated    = "research_note_created"
	EventDataSetCreated         = "data_set_created"
	EventStakeholderCreated     = "stakeholder_created"
	EventImpactStoryCreated     = "impact_story_created"
	EventCommunityEventCreated  = "community_event_created"
	EventIdeaCreated            = "idea_created"
	EventIdeaUpdated            = "idea_updated"
	EventMemberAdded            = "member_added"
)

// Event is an immutable record of a domain change, alive only for the
// duration of the emit-route-write pipeline. Events are not persisted and
// are never replayed.
type Event struct {
	ID        uint64    `json:"id"`
	Type      string    `json:"type"`
	Topic     string    `json:"topic,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
