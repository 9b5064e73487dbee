package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/fulfil/internal/domain"
	"github.com/roach88/fulfil/internal/inventory"
	"github.com/roach88/fulfil/internal/notify"
	"github.com/roach88/fulfil/internal/orders"
	"github.com/roach88/fulfil/internal/store"
)

// OrderTransitioner applies update_status on orders. Implemented by
// *orders.Machine.
type OrderTransitioner interface {
	Transition(ctx context.Context, orderID string, to domain.OrderStatus, actor domain.Role) (orders.Change, error)
}

// InventoryActions applies update_inventory and update_status on
// products. Implemented by *inventory.Ledger.
type InventoryActions interface {
	Adjust(ctx context.Context, productID string, delta int64, reason string) (inventory.Result, error)
	SetListingStatus(ctx context.Context, productID string, status domain.ListingStatus) (inventory.Result, error)
}

// Email is what a send_email action asks the EmailSender to deliver.
type Email struct {
	To         string
	Subject    string
	Template   string
	Body       string
	RuleID     string
	EntityKind Kind
	EntityID   string
}

// EmailSender delivers send_email actions.
type EmailSender interface {
	SendEmail(ctx context.Context, email Email) error
}

// Task is what a create_task action asks the TaskCreator to open.
type Task struct {
	Title       string
	Assignee    string
	Priority    string
	Description string
	RuleID      string
	EntityKind  Kind
	EntityID    string
}

// TaskCreator opens create_task actions.
type TaskCreator interface {
	CreateTask(ctx context.Context, task Task) error
}

// Watermarks records when a rule last fired for an entity. Implemented by
// *store.Store and scheduler.RedisWatermarks.
type Watermarks interface {
	ClaimWatermark(ctx context.Context, key string, now time.Time, cooldown time.Duration) (bool, error)
}

// RunRecorder keeps an audit trail of rule executions. Implemented by
// *store.Store.
type RunRecorder interface {
	RecordRuleRun(ctx context.Context, run store.RuleRun) error
}

// Action outcome statuses.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

// ActionOutcome is the result of one executed action.
type ActionOutcome struct {
	RuleID string            `json:"ruleId"`
	Action domain.ActionType `json:"action"`
	Status string            `json:"status"`
	Error  string            `json:"error,omitempty"`
}

var errNoRecipient = errors.New("no email recipient")

// notifyEmails delivers emails as customer-channel notifications.
type notifyEmails struct {
	sender *notify.Sender
}

func (n notifyEmails) SendEmail(ctx context.Context, email Email) error {
	return n.sender.Send(ctx, notify.Notification{
		Channel:   notify.ChannelCustomer,
		Kind:      notify.KindEmail,
		Recipient: email.To,
		Payload: map[string]any{
			"subject":    email.Subject,
			"template":   email.Template,
			"body":       email.Body,
			"ruleId":     email.RuleID,
			"entityKind": string(email.EntityKind),
			"entityId":   email.EntityID,
		},
	})
}

// notifyTasks opens tasks as admin-channel notifications.
type notifyTasks struct {
	sender *notify.Sender
}

func (n notifyTasks) CreateTask(ctx context.Context, task Task) error {
	return n.sender.Send(ctx, notify.Notification{
		Channel:   notify.ChannelAdmin,
		Kind:      notify.KindTask,
		Recipient: task.Assignee,
		Payload: map[string]any{
			"title":       task.Title,
			"priority":    task.Priority,
			"description": task.Description,
			"ruleId":      task.RuleID,
			"entityKind":  string(task.EntityKind),
			"entityId":    task.EntityID,
		},
	})
}

// execute runs one action against e.
func (eng *Engine) execute(ctx context.Context, ruleID string, a compiledAction, e Entity) error {
	switch a.typ {
	case domain.ActionUpdateStatus:
		status := stringParam(a.params, "status")
		if e.Kind == KindProduct {
			if eng.inventory == nil {
				return errors.New("no inventory ledger configured")
			}
			_, err := eng.inventory.SetListingStatus(ctx, e.ID, domain.ListingStatus(status))
			return err
		}
		if eng.orders == nil {
			return errors.New("no order machine configured")
		}
		_, err := eng.orders.Transition(ctx, e.ID, domain.OrderStatus(status), domain.RoleSystem)
		return err

	case domain.ActionSendNotification:
		return eng.sender.Send(ctx, notify.Notification{
			Channel: notify.ChannelAdmin,
			Kind:    notify.KindAutomationAlert,
			Payload: map[string]any{
				"message":    stringParam(a.params, "message"),
				"ruleId":     ruleID,
				"entityKind": string(e.Kind),
				"entityId":   e.ID,
			},
		})

	case domain.ActionUpdateInventory:
		if eng.inventory == nil {
			return errors.New("no inventory ledger configured")
		}
		adjustment, _ := a.params["adjustment"].(float64)
		_, err := eng.inventory.Adjust(ctx, e.ID, int64(adjustment), "automation rule "+ruleID)
		return err

	case domain.ActionSendEmail:
		email := Email{
			To:         stringParam(a.params, "to"),
			Subject:    stringParam(a.params, "subject"),
			Template:   stringParam(a.params, "template"),
			Body:       stringParam(a.params, "body"),
			RuleID:     ruleID,
			EntityKind: e.Kind,
			EntityID:   e.ID,
		}
		if email.To == "" && e.Customer != nil {
			email.To = e.Customer.Email
		}
		if email.To == "" {
			return errNoRecipient
		}
		return eng.emails.SendEmail(ctx, email)

	case domain.ActionCreateTask:
		return eng.tasks.CreateTask(ctx, Task{
			Title:       stringParam(a.params, "title"),
			Assignee:    stringParam(a.params, "assignee"),
			Priority:    stringParam(a.params, "priority"),
			Description: stringParam(a.params, "description"),
			RuleID:      ruleID,
			EntityKind:  e.Kind,
			EntityID:    e.ID,
		})
	}
	return fmt.Errorf("unsupported action %q", a.typ)
}
