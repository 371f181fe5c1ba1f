// Package events delivers domain events to the notification and mail
// collaborators after the financial transaction that produced them has
// committed. Delivery failures are logged and counted; they never reach the
// workflow that published the event.
package events

import (
	"context"
)

// Event names emitted by the workflows.
const (
	DepositCreated      = "deposit-created"
	DepositApproved     = "deposit-approved"
	DepositRejected     = "deposit-rejected"
	DepositCancelled    = "deposit-cancelled"
	WithdrawalCreated   = "withdrawal-created"
	WithdrawalApproved  = "withdrawal-approved"
	WithdrawalRejected  = "withdrawal-rejected"
	WithdrawalProcessed = "withdrawal-processing"
	WithdrawalCompleted = "withdrawal-completed"
	InvestmentCreated   = "investment-created"
	InvestmentApproved  = "investment-approved"
	InvestmentRejected  = "investment-rejected"
	InvestmentCompleted = "investment-completed"
	InvestmentRenewed   = "investment-renewed"
	InvestmentCancelled = "investment-cancelled"
	ReferralBonusPaid   = "referral-bonus"
)

// RoleAdmin addresses every connected admin.
const RoleAdmin = "admin"

// Target addresses either one user or a role group.
type Target struct {
	UserID string
	Role   string
}

// User targets a single user.
func User(id string) Target { return Target{UserID: id} }

// Role targets a role group.
func Role(role string) Target { return Target{Role: role} }

// Mail is an optional email to send alongside the notification.
type Mail struct {
	Recipient  string
	TemplateID string
	Data       map[string]any
}

// MailTo builds a mail for recipient, or nil when there is no address.
func MailTo(recipient, template string, data map[string]any) *Mail {
	if recipient == "" {
		return nil
	}
	return &Mail{Recipient: recipient, TemplateID: template, Data: data}
}

// Event is one post-commit message.
type Event struct {
	Name    string
	Target  Target
	Payload map[string]any
	Mail    *Mail
}

// Notifier pushes an event to connected clients.
type Notifier interface {
	Notify(ctx context.Context, target Target, name string, payload map[string]any) error
}

// Mailer sends a templated email.
type Mailer interface {
	Send(ctx context.Context, recipient, templateID string, data map[string]any) error
}

// Publisher accepts events for asynchronous delivery. Publish must not block
// on delivery.
type Publisher interface {
	Publish(events ...Event)
}

// Batch collects events inside an atomic scope; the caller publishes it only
// after the scope commits.
type Batch []Event

// Add appends an event.
func (b *Batch) Add(e Event) {
	*b = append(*b, e)
}

// Flush hands the batch to p and empties it.
func (b *Batch) Flush(p Publisher) {
	if len(*b) == 0 || p == nil {
		*b = nil
		return
	}
	p.Publish((*b)...)
	*b = nil
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(...Event) {}

// Recorder keeps published events in memory. Useful in tests.
type Recorder struct {
	events chan Event
}

// NewRecorder returns a recorder buffering up to size events.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Publish(events ...Event) {
	for _, e := range events {
		select {
		case r.events <- e:
		default:
		}
	}
}

// Drain returns everything published so far.
func (r *Recorder) Drain() []Event {
	var out []Event
	for {
		select {
		case e := <-r.events:
			out = append(out, e)
		default:
			return out
		}
	}
}

// Names returns the names of everything published so far, draining the
// recorder.
func (r *Recorder) Names() []string {
	var names []string
	for _, e := range r.Drain() {
		names = append(names, e.Name)
	}
	return names
}
