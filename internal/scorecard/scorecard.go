// Package scorecard turns attempt change-feed events into human-readable
// score reports and broadcasts them.
package scorecard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/examgen/internal/model"
	"github.com/pavelanni/examgen/internal/notify"
)

// Subject is both the report title and the broadcast subject line.
const Subject = "Exam-Generator - Score Card"

// Format renders one attempt as a plain-text score card. It is deterministic:
// the same record always renders the same report.
func Format(a model.AttemptResult) string {
	var sb strings.Builder
	sb.WriteString(Subject + "\n\n")
	sb.WriteString("Student: " + a.Email + "\n")
	fmt.Fprintf(&sb, "Score: %d\n", a.Score)
	sb.WriteString("Result: " + strings.ToUpper(a.Result) + "\n\n")
	sb.WriteString("Exam Details:\n")

	for _, d := range a.Details {
		tag := "Incorrect"
		if d.IsCorrect {
			tag = "Correct"
		}
		sb.WriteString("- Question: " + d.Question + "\n")
		fmt.Fprintf(&sb, "  Your Answer: %s (%s)\n", d.UserAnswer, tag)
		sb.WriteString("  Correct Answer: " + d.CorrectAnswer + "\n\n")
	}

	return sb.String()
}

// Consumer reacts to attempt change events by publishing score cards. It
// keeps no state of its own, so processing the same event twice produces the
// same report.
type Consumer struct {
	notifier notify.Publisher
}

// NewConsumer creates a Consumer.
func NewConsumer(notifier notify.Publisher) *Consumer {
	return &Consumer{notifier: notifier}
}

// Handle formats and publishes the score card for one change event. Insert
// and update events are treated identically. A publish failure is logged and
// returned so the delivery layer can redeliver the event.
func (c *Consumer) Handle(ctx context.Context, ev model.ChangeEvent) error {
	report := Format(ev.Attempt)
	msgID, err := c.notifier.Publish(ctx, notify.TopicScoreCard, Subject, report)
	if err != nil {
		slog.Error("score card publish failed", "email", ev.Attempt.Email, "error", err)
		return fmt.Errorf("publish score card: %w", err)
	}
	slog.Info("score card sent", "email", ev.Attempt.Email, "message_id", msgID)
	return nil
}

// Run drains a change feed until the context is done. Failed events are
// logged; the loop keeps serving subsequent events.
func (c *Consumer) Run(ctx context.Context, feed <-chan model.ChangeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-feed:
			if !ok {
				return
			}
			if err := c.Handle(ctx, ev); err != nil {
				slog.Error("score card delivery failed", "error", err)
			}
		}
	}
}
