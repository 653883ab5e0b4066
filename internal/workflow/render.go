package workflow

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/refinement-bot/refinery/internal/chat"
	"github.com/refinement-bot/refinery/internal/consensus"
	"github.com/refinement-bot/refinery/internal/models"
)

// renderStatus builds the live status message: items, deadline, roster, and
// vote progress. The same text backs the initial announcement and every
// in-place edit afterwards.
func (e *Engine) renderStatus(ctx context.Context, batch *models.Batch) string {
	votedCount, err := e.quorum.VotedParticipantCount(batch.ID)
	if err != nil {
		log.Printf("workflow: count votes for status message: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "📦 **Estimation batch %d — %d issue", batch.ID, len(batch.Items))
	if len(batch.Items) != 1 {
		b.WriteString("s")
	}
	b.WriteString("**\n\n")

	for _, item := range batch.Items {
		fmt.Fprintf(&b, "#%s: %s\n", item.Key, e.itemTitle(ctx, item))
	}

	fmt.Fprintf(&b, "\n**Facilitator**: %s\n", batch.Facilitator)
	fmt.Fprintf(&b, "**Deadline**: %s\n", e.clock.FormatDeadline(batch.Deadline))

	if len(batch.Roster) > 0 {
		names := make([]string, len(batch.Roster))
		for i, m := range batch.Roster {
			names[i] = m.Name
		}
		fmt.Fprintf(&b, "**Voters**: %s\n", strings.Join(names, ", "))
	}

	var example []string
	for i, item := range batch.Items {
		points := 5
		if e.cfg != nil && len(e.cfg.Batch.Scale) > 0 {
			points = e.cfg.Batch.Scale[i%len(e.cfg.Batch.Scale)]
		}
		example = append(example, fmt.Sprintf("#%s: %d", item.Key, points))
	}
	fmt.Fprintf(&b, "\nReply with your estimates: `%s`\n", strings.Join(example, ", "))
	b.WriteString("Use `abstain` for issues you cannot estimate.\n")

	fmt.Fprintf(&b, "\n**Votes received**: %d/%d", votedCount, len(batch.Roster))
	return b.String()
}

// StatusText renders the reply to a "status" command, including who has not
// acted yet.
func (e *Engine) StatusText(ctx context.Context) (string, error) {
	batch, err := e.ActiveBatch()
	if err != nil {
		return "", err
	}
	if batch == nil {
		return "ℹ️ No active batch. Start one with `start` followed by GitHub issue URLs.", nil
	}

	var b strings.Builder
	b.WriteString(e.renderStatus(ctx, batch))

	if batch.Status == models.BatchDiscussing {
		fmt.Fprintf(&b, "\n\n🗣️ In discussion — waiting on %s to post `finish #N: points rationale`.", batch.Facilitator)
		return b.String(), nil
	}

	idle, err := e.quorum.WithoutAnyAction(batch.ID)
	if err != nil {
		return "", storage("error loading idle participants", err)
	}
	if len(idle) > 0 {
		fmt.Fprintf(&b, "\n**Waiting on**: %s", strings.Join(idle, ", "))
	}
	return b.String(), nil
}

func (e *Engine) itemTitle(ctx context.Context, item models.WorkItem) string {
	if item.Title != "" {
		return item.Title
	}
	if e.titles == nil {
		return item.URL
	}
	title, ok := e.titles.ResolveTitle(ctx, item.URL)
	if !ok {
		return item.URL
	}
	// Cache on the row so later renders skip the API.
	if err := e.db.Model(&models.WorkItem{}).Where("id = ?", item.ID).Update("title", title).Error; err != nil {
		log.Printf("workflow: cache title for #%s: %v", item.Key, err)
	}
	return title
}

// postStatusMessage announces a new batch and remembers the message ref for
// later in-place edits. Send failures are logged, never fatal.
func (e *Engine) postStatusMessage(ctx context.Context, batch *models.Batch) {
	text := e.renderStatus(ctx, batch)
	ref, err := e.chat.Send(ctx, chat.OutboundMessage{Text: text})
	if err != nil {
		log.Printf("workflow: post status message for batch %d: %v", batch.ID, err)
		return
	}
	updates := map[string]interface{}{
		"status_message_id": ref.ID,
		"channel_id":        ref.ChannelID,
	}
	if err := e.db.Model(batch).Updates(updates).Error; err != nil {
		log.Printf("workflow: save status message ref for batch %d: %v", batch.ID, err)
		return
	}
	batch.StatusMessageID = &ref.ID
	batch.ChannelID = ref.ChannelID
}

// refreshStatusMessage re-renders the status message after progress changes.
func (e *Engine) refreshStatusMessage(ctx context.Context, batch *models.Batch) {
	if batch.StatusMessageID == nil {
		return
	}
	ref := chat.MessageRef{ChannelID: batch.ChannelID, ID: *batch.StatusMessageID}
	if err := e.chat.Update(ctx, ref, e.renderStatus(ctx, batch)); err != nil {
		log.Printf("workflow: refresh status message for batch %d: %v", batch.ID, err)
	}
}

// updateStatusMessage replaces the status message with a terminal summary
// (completed, cancelled, moved to discussion). Falls back to a fresh send
// when no status message was ever posted.
func (e *Engine) updateStatusMessage(ctx context.Context, batch *models.Batch, summary string) {
	if batch.StatusMessageID == nil {
		if _, err := e.chat.Send(ctx, chat.OutboundMessage{Text: summary}); err != nil {
			log.Printf("workflow: send summary for batch %d: %v", batch.ID, err)
		}
		return
	}
	ref := chat.MessageRef{ChannelID: batch.ChannelID, ID: *batch.StatusMessageID}
	if err := e.chat.Update(ctx, ref, summary); err != nil {
		log.Printf("workflow: update status message for batch %d: %v", batch.ID, err)
	}
}

// postResults publishes the consensus analysis when voting closes.
func (e *Engine) postResults(ctx context.Context, batch *models.Batch, votes []models.Vote, outcomes map[string]consensus.Outcome, autoCompleted bool) {
	text := e.renderResults(ctx, batch, votes, outcomes, autoCompleted)
	ref, err := e.chat.Send(ctx, chat.OutboundMessage{Text: text})
	if err != nil {
		log.Printf("workflow: post results for batch %d: %v", batch.ID, err)
		return
	}
	if err := e.db.Model(batch).Update("results_message_id", ref.ID).Error; err != nil {
		log.Printf("workflow: save results message ref for batch %d: %v", batch.ID, err)
		return
	}
	batch.ResultsMessageID = &ref.ID
}

func (e *Engine) renderResults(ctx context.Context, batch *models.Batch, votes []models.Vote, outcomes map[string]consensus.Outcome, autoCompleted bool) string {
	votersByItem := make(map[string][]models.Vote)
	for _, v := range votes {
		votersByItem[v.ItemKey] = append(votersByItem[v.ItemKey], v)
	}

	var b strings.Builder
	if autoCompleted {
		fmt.Fprintf(&b, "🎉 **Batch %d — all votes in!**\n\n", batch.ID)
	} else {
		fmt.Fprintf(&b, "⏰ **Batch %d — voting closed**\n\n", batch.ID)
	}

	var discussion []string
	for _, item := range batch.Items {
		outcome := outcomes[item.Key]
		title := e.itemTitle(ctx, item)
		switch outcome.Kind {
		case consensus.KindPerfect:
			fmt.Fprintf(&b, "🎲 **#%s: %d points** — unanimous (%s)\n", item.Key, outcome.Final, title)
		case consensus.KindCluster:
			fmt.Fprintf(&b, "✅ **#%s: %d points** — consensus (%s)\n", item.Key, outcome.Final, title)
		default:
			fmt.Fprintf(&b, "⚠️ **#%s: needs discussion** (%s)\n", item.Key, title)
			b.WriteString(renderSpread(votersByItem[item.Key], outcome))
			discussion = append(discussion, "#"+item.Key)
		}
	}

	if len(discussion) > 0 {
		fmt.Fprintf(&b, "\n%s: please settle %s and post `finish #N: points rationale` for each.",
			batch.Facilitator, strings.Join(discussion, ", "))
	}
	return b.String()
}

// renderSpread details a contested item: the vote spread plus questions to
// the lowest and highest voters, who hold the context the group is missing.
func renderSpread(votes []models.Vote, outcome consensus.Outcome) string {
	if len(votes) == 0 {
		return "  No votes were cast for this issue.\n"
	}

	sorted := make([]models.Vote, len(votes))
	copy(sorted, votes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Points < sorted[j].Points })

	var parts []string
	for _, v := range sorted {
		parts = append(parts, fmt.Sprintf("%s: %d", v.Participant, v.Points))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  Votes: %s (median %d)\n", strings.Join(parts, ", "), outcome.Median)

	low, high := sorted[0], sorted[len(sorted)-1]
	fmt.Fprintf(&b, "  %s (%d): what makes this simpler than the others think?\n", low.Participant, low.Points)
	fmt.Fprintf(&b, "  %s (%d): what complexity are the others missing?\n", high.Participant, high.Points)
	return b.String()
}

// postFinishResults publishes the facilitator's final estimates after the
// discussion phase closes.
func (e *Engine) postFinishResults(ctx context.Context, batch *models.Batch) {
	var finals []models.FinalEstimate
	if err := e.db.Where("batch_id = ?", batch.ID).Order("item_key").Find(&finals).Error; err != nil {
		log.Printf("workflow: load finals for batch %d: %v", batch.ID, err)
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🎯 **Batch %d — final estimates**\n\n", batch.ID)
	for _, f := range finals {
		fmt.Fprintf(&b, "#%s: %d points", f.ItemKey, f.Points)
		if f.Rationale != "" {
			fmt.Fprintf(&b, " — %s", f.Rationale)
		}
		b.WriteString("\n")
	}

	if _, err := e.chat.Send(ctx, chat.OutboundMessage{Text: b.String()}); err != nil {
		log.Printf("workflow: post finish results for batch %d: %v", batch.ID, err)
	}
}
