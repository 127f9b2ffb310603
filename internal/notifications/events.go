package notifications

import (
	"context"
	"fmt"
	"strings"
)

// Event names an operator alert.
type Event string

const (
	EventJobDeadLettered Event = "job_dead_lettered"
	EventJobDropped      Event = "job_dropped"
	// EventTest checks that the alert channel is reachable.
	EventTest Event = "test"
)

// Payload carries event fields. Recognized keys: queue, fileId, attempt, error.
type Payload map[string]any

func (p Payload) text(key string) string {
	switch v := p[key].(type) {
	case nil:
		return ""
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) queue() string {
	if q := p.text("queue"); q != "" {
		return q
	}
	return "unknown queue"
}

// Service publishes operator alerts. Unknown events are ignored.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

type alert struct {
	title    string
	body     string
	tags     []string
	priority string
}

var renderers = map[Event]func(Payload) alert{
	EventJobDeadLettered: func(p Payload) alert {
		lines := []string{"Job on " + p.queue() + " moved to dead-letter"}
		if n := p.text("attempt"); n != "" {
			lines[0] += " after " + n + " attempts"
		}
		if id := p.text("fileId"); id != "" {
			lines = append(lines, "File: "+id)
		}
		if e := p.text("error"); e != "" {
			lines = append(lines, "Last error: "+e)
		}
		return alert{
			title:    "Job Dead-Lettered",
			body:     strings.Join(lines, "\n"),
			tags:     []string{"dead-letter", "alert"},
			priority: "high",
		}
	},
	EventJobDropped: func(p Payload) alert {
		body := "Dropped invalid job on " + p.queue()
		if e := p.text("error"); e != "" {
			body += ": " + e
		}
		return alert{title: "Job Dropped", body: body, tags: []string{"dropped", "alert"}, priority: "high"}
	},
	EventTest: func(Payload) alert {
		return alert{title: "Test", body: "Notification system test", tags: []string{"test"}, priority: "low"}
	},
}
