package client

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"
)

// Notification is a short user-facing message about a mutation's outcome.
type Notification struct {
	Title       string
	Description string
	Destructive bool
}

type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to a logrus logger, destructive ones as errors.
type LogNotifier struct {
	Log logrus.FieldLogger
}

func (l LogNotifier) Notify(n Notification) {
	entry := l.Log.WithField("detail", n.Description)
	if n.Destructive {
		entry.Error(n.Title)
		return
	}
	entry.Info(n.Title)
}

// Mutations runs create and process calls and reports their outcome through a Notifier,
// keeping query pointed at the project being worked on.
type Mutations struct {
	client   *Client
	query    *ProjectQuery
	notifier Notifier
}

func NewMutations(c *Client, query *ProjectQuery, notifier Notifier) *Mutations {
	return &Mutations{client: c, query: query, notifier: notifier}
}

// Create uploads a video and, on success, makes the new project the active one.
func (m *Mutations) Create(ctx context.Context, filename string, r io.Reader) (*Project, error) {
	p, err := m.client.CreateProject(ctx, filename, r)
	if err != nil {
		m.notifier.Notify(Notification{Title: "Upload Failed", Description: err.Error(), Destructive: true})
		return nil, err
	}

	m.query.SetActive(p.ID)
	m.notifier.Notify(Notification{Title: "Video Uploaded", Description: "Your project is ready for processing."})
	return p, nil
}

// Process starts processing id and, on success, invalidates the project query so the
// new status is fetched right away.
func (m *Mutations) Process(ctx context.Context, id int) (*Project, error) {
	p, err := m.client.ProcessProject(ctx, id)
	if err != nil {
		m.notifier.Notify(Notification{Title: "Processing Error", Description: err.Error(), Destructive: true})
		return nil, err
	}

	if active, ok := m.query.ActiveID(); ok && active == p.ID {
		// a failed re-fetch surfaces through the query's own state
		_ = m.query.Invalidate(ctx)
	}
	m.notifier.Notify(Notification{Title: "Processing Started", Description: "Extracting motion and frames..."})
	return p, nil
}
