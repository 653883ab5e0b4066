package workflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/refinement-bot/refinery/internal/chat"
	"github.com/refinement-bot/refinery/internal/models"
)

// SendReminders nudges participants who have not acted yet. Two reminders
// fire per batch: one at the halfway point of the voting window and one an
// hour before the deadline. A unique marker row per (batch, kind) makes each
// at-most-once even across process restarts.
func (e *Engine) SendReminders(ctx context.Context) error {
	batch, err := e.ActiveBatch()
	if err != nil {
		return err
	}
	if batch == nil || batch.Status != models.BatchActive {
		return nil
	}

	now := e.now()
	if now.After(batch.Deadline) {
		return nil
	}

	halfway := batch.CreatedAt.Add(batch.Deadline.Sub(batch.CreatedAt) / 2)
	finalHour := batch.Deadline.Add(-time.Hour)

	kind := ""
	switch {
	case !now.Before(finalHour):
		kind = models.ReminderFinalHour
	case !now.Before(halfway):
		kind = models.ReminderHalfway
	default:
		return nil
	}

	idle, err := e.quorum.WithoutAnyAction(batch.ID)
	if err != nil {
		return storage("error loading idle participants", err)
	}
	if len(idle) == 0 {
		return nil
	}

	sent, err := e.markReminderSent(batch.ID, kind)
	if err != nil {
		return err
	}
	if !sent {
		return nil
	}

	text := reminderText(batch, kind, idle, e.clock.FormatDeadline(batch.Deadline))
	if _, err := e.chat.Send(ctx, chat.OutboundMessage{Text: text}); err != nil {
		log.Printf("workflow: send %s reminder for batch %d: %v", kind, batch.ID, err)
		return nil
	}
	log.Printf("workflow: sent %s reminder for batch %d to %d participants", kind, batch.ID, len(idle))
	return nil
}

// markReminderSent claims the (batch, kind) marker. Reports false when
// another wake already claimed it.
func (e *Engine) markReminderSent(batchID uint, kind string) (bool, error) {
	marker := models.ReminderMarker{BatchID: batchID, Kind: kind}
	err := e.db.Create(&marker).Error
	if err != nil {
		if isDuplicate(err) {
			return false, nil
		}
		return false, storage("error recording reminder", err)
	}
	return true, nil
}

func reminderText(batch *models.Batch, kind string, idle []string, deadline string) string {
	mentions := make([]string, len(idle))
	for i, name := range idle {
		mentions[i] = "@" + name
	}

	var b strings.Builder
	if kind == models.ReminderFinalHour {
		fmt.Fprintf(&b, "🚨 **Final hour!** Batch %d closes at %s.\n", batch.ID, deadline)
	} else {
		fmt.Fprintf(&b, "⏳ **Reminder**: batch %d is halfway to its deadline (%s).\n", batch.ID, deadline)
	}
	fmt.Fprintf(&b, "Still waiting on: %s\n", strings.Join(mentions, ", "))

	var example []string
	for _, item := range batch.Items {
		example = append(example, "#"+item.Key+": 5")
	}
	fmt.Fprintf(&b, "Reply with your estimates, e.g. `%s`, or `#N: abstain`.", strings.Join(example, ", "))
	return b.String()
}
