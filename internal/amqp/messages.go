package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// EventType names a change to the project collection.
type EventType string

const (
	EventProjectSaved   EventType = "project.saved"
	EventProjectDeleted EventType = "project.deleted"
)

// ProjectEvent carries only the project id; consumers load the record
// themselves.
type ProjectEvent struct {
	Type      EventType `json:"type"`
	ProjectID string    `json:"projectId"`
	Timestamp time.Time `json:"timestamp"`
}

func NewProjectEvent(t EventType, projectID string, now time.Time) ProjectEvent {
	return ProjectEvent{Type: t, ProjectID: projectID, Timestamp: now.UTC()}
}

func (e ProjectEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// ProjectEventFromJSON decodes and validates a message body.
func ProjectEventFromJSON(data []byte) (ProjectEvent, error) {
	var e ProjectEvent
	if err := json.Unmarshal(data, &e); err != nil {
		return ProjectEvent{}, err
	}
	switch e.Type {
	case EventProjectSaved, EventProjectDeleted:
	default:
		return ProjectEvent{}, fmt.Errorf("unknown event type %q", e.Type)
	}
	if e.ProjectID == "" {
		return ProjectEvent{}, errors.New("event without project id")
	}
	return e, nil
}
