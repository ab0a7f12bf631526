package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/eaziwage/ewa/internal/advance"
)

// Enqueuer is the part of *asynq.Client the notifier uses.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Notifier turns advance events into asynq tasks. It implements
// advance.Notifier.
type Notifier struct {
	client Enqueuer
	appURL string
}

var _ advance.Notifier = (*Notifier)(nil)

func NewNotifier(client Enqueuer, appURL string) *Notifier {
	return &Notifier{client: client, appURL: strings.TrimRight(appURL, "/")}
}

func (n *Notifier) Notify(ctx context.Context, e advance.Event) error {
	taskType, err := taskFor(e.Type)
	if err != nil {
		return err
	}
	payload := n.render(e)
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	queue := QueueNotifications
	if e.Type == advance.EventDisbursed {
		queue = QueueCritical
	}
	task := asynq.NewTask(taskType, b)
	_, err = n.client.EnqueueContext(ctx, task,
		asynq.Queue(queue),
		asynq.MaxRetry(5),
		asynq.TaskID(taskType+":"+e.Request.ID),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func taskFor(t advance.EventType) (string, error) {
	switch t {
	case advance.EventApproved:
		return TaskAdvanceApproved, nil
	case advance.EventRejected:
		return TaskAdvanceRejected, nil
	case advance.EventDisbursed:
		return TaskAdvanceDisbursed, nil
	}
	return "", fmt.Errorf("no task for event %q", t)
}

var reasonText = map[advance.Reason]string{
	advance.ReasonTimeout:                 "it was not reviewed in time",
	advance.ReasonLimitExceededAtApproval: "your available limit changed before it could be approved",
	advance.ReasonFraudRule:               "it did not pass our automated checks",
	advance.ReasonReviewerDeclined:        "it was declined by a reviewer",
}

func (n *Notifier) render(e advance.Event) AdvancePayload {
	r, w := e.Request, e.Worker
	amount := r.Currency + " " + r.Amount.Format(r.Scale)
	net := r.Currency + " " + r.NetPayout.Format(r.Scale)
	name := w.FullName
	if name == "" {
		name = "there"
	}
	link := n.appURL + "/advances/" + r.ID

	p := AdvancePayload{
		RequestID: r.ID,
		WorkerID:  r.WorkerID,
		Name:      w.FullName,
		Email:     w.Email,
		Status:    string(r.Status),
		Amount:    r.Amount.Format(r.Scale),
		NetPayout: r.NetPayout.Format(r.Scale),
		Currency:  r.Currency,
		Reason:    string(r.RejectReason),
		Reference: r.Reference,
		SentAt:    e.At,
	}
	var body string
	switch e.Type {
	case advance.EventApproved:
		p.Title = "Salary advance approved"
		body = fmt.Sprintf("Hi %s,\n\nYour advance of %s was approved. %s will be sent to %s shortly.\n\nDetails: %s", name, amount, net, r.Destination, link)
	case advance.EventRejected:
		p.Title = "Salary advance not approved"
		why := reasonText[r.RejectReason]
		if why == "" {
			why = "it could not be approved"
		}
		body = fmt.Sprintf("Hi %s,\n\nYour advance request of %s was not approved because %s.\n\nYou can check your available limit and try again: %s", name, amount, why, n.appURL)
	case advance.EventDisbursed:
		p.Title = "Salary advance sent"
		body = fmt.Sprintf("Hi %s,\n\n%s has been sent to %s. Reference: %s.\nThe full %s will be deducted from your next salary.\n\nDetails: %s", name, net, r.Destination, r.Reference, amount, link)
	}
	p.Envelope = EmailEnvelope{To: w.Email, Subject: p.Title, Body: body}
	return p
}
