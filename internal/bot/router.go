// Package bot classifies inbound chat messages and routes them to the
// workflow engine: batch commands, vote submissions, and roster management.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/refinement-bot/refinery/internal/chat"
	"github.com/refinement-bot/refinery/internal/parse"
	"github.com/refinement-bot/refinery/internal/workflow"
)

// Router maps chat messages to engine operations and sends the replies.
type Router struct {
	engine  *workflow.Engine
	adapter chat.Adapter
}

// Opts holds parameters for creating a Router.
type Opts struct {
	Engine  *workflow.Engine
	Adapter chat.Adapter
}

// NewRouter creates a Router.
func NewRouter(opts Opts) (*Router, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("bot: router: engine is required")
	}
	if opts.Adapter == nil {
		return nil, fmt.Errorf("bot: router: adapter is required")
	}
	return &Router{engine: opts.Engine, adapter: opts.Adapter}, nil
}

// Run consumes inbound messages until the context is cancelled or the
// adapter closes its channel.
func (r *Router) Run(ctx context.Context) error {
	inbound, err := r.adapter.Listen(ctx)
	if err != nil {
		return fmt.Errorf("bot: router: listen: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			r.Handle(ctx, msg)
		}
	}
}

// Handle classifies and routes a single inbound message. Routing paths:
//  1. Keyword commands: help, status, voters, cancel, complete
//  2. Prefix commands: start, finish, add voter, remove voter
//  3. Proxy votes ("vote for NAME ...")
//  4. Vote submissions ("#1234: 5, ...")
//  5. Everything else → usage hint
func (r *Router) Handle(ctx context.Context, msg chat.InboundMessage) {
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	lower := strings.ToLower(text)
	log.Printf("bot: router: recv [user=%s] %q", msg.UserName, truncate(text, 80))

	parser := r.engine.Parser()
	switch {
	case lower == "help":
		r.reply(ctx, msg, helpText)
	case lower == "status":
		r.handleStatus(ctx, msg)
	case lower == "voters" || lower == "list voters":
		r.handleListVoters(ctx, msg)
	case lower == "cancel":
		r.handleCancel(ctx, msg)
	case lower == "complete":
		r.handleComplete(ctx, msg)
	case strings.HasPrefix(lower, "start"):
		r.handleStart(ctx, msg, text)
	case strings.HasPrefix(lower, "finish"):
		r.handleFinish(ctx, msg, text)
	case strings.HasPrefix(lower, "add voter"):
		r.handleAddVoters(ctx, msg, afterPrefix(text, "add voters", "add voter"))
	case strings.HasPrefix(lower, "remove voter"):
		r.handleRemoveVoters(ctx, msg, afterPrefix(text, "remove voters", "remove voter"))
	case parser.IsProxyVote(text):
		r.handleProxyVote(ctx, msg, text)
	case parser.IsVoteFormat(text):
		r.handleVote(ctx, msg, text)
	default:
		r.reply(ctx, msg, "❓ I didn't understand that. Send `help` for the list of commands.")
	}
}

const helpText = "🤖 **Refinery commands**\n\n" +
	"`start` + one GitHub issue URL per line — open an estimation batch\n" +
	"`#1234: 5, #1235: abstain` — submit your estimates\n" +
	"`vote for NAME #1234: 5` — submit on someone's behalf (facilitator)\n" +
	"`status` — show batch progress\n" +
	"`voters` — list the roster\n" +
	"`add voter NAME` / `remove voter NAME` — edit the roster\n" +
	"`complete` — close voting early (facilitator)\n" +
	"`finish #1234: 5 rationale` — settle discussion items (facilitator)\n" +
	"`cancel` — cancel the batch (facilitator)"

func (r *Router) handleStart(ctx context.Context, msg chat.InboundMessage, text string) {
	batch, err := r.engine.CreateBatch(ctx, msg.UserName, text)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("✅ Started estimation batch %d with %d issue(s). Deadline announced in the channel.",
		batch.ID, len(batch.Items)))
}

func (r *Router) handleStatus(ctx context.Context, msg chat.InboundMessage) {
	text, err := r.engine.StatusText(ctx)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, text)
}

func (r *Router) handleCancel(ctx context.Context, msg chat.InboundMessage) {
	batch, err := r.engine.CancelBatch(ctx, msg.UserName)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, fmt.Sprintf("🛑 Batch %d cancelled.", batch.ID))
}

func (r *Router) handleComplete(ctx context.Context, msg chat.InboundMessage) {
	if err := r.engine.CompleteBatch(ctx, msg.UserName); err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, "✅ Voting closed. Results posted in the channel.")
}

func (r *Router) handleFinish(ctx context.Context, msg chat.InboundMessage, text string) {
	done, err := r.engine.FacilitatorFinish(ctx, msg.UserName, text)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	if done {
		r.reply(ctx, msg, "🎯 Final estimates recorded. Batch complete!")
		return
	}
	r.reply(ctx, msg, "📝 Finals recorded. Some items still need a final estimate.")
}

func (r *Router) handleVote(ctx context.Context, msg chat.InboundMessage, text string) {
	result, err := r.engine.RecordSubmission(ctx, msg.UserName, text)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, voteReply(result, ""))
}

func (r *Router) handleProxyVote(ctx context.Context, msg chat.InboundMessage, text string) {
	name, result, err := r.engine.RecordProxySubmission(ctx, msg.UserName, text)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	r.reply(ctx, msg, voteReply(result, name))
}

func (r *Router) handleListVoters(ctx context.Context, msg chat.InboundMessage) {
	names, err := r.engine.Participants()
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	var b strings.Builder
	b.WriteString("📋 **Voters for the active batch**\n\n")
	for _, name := range names {
		fmt.Fprintf(&b, "• %s\n", name)
	}
	fmt.Fprintf(&b, "\n**Total**: %d voters", len(names))
	r.reply(ctx, msg, b.String())
}

func (r *Router) handleAddVoters(ctx context.Context, msg chat.InboundMessage, rest string) {
	names := parse.ParseNames(rest)
	if len(names) == 0 {
		r.reply(ctx, msg, "❓ Who should I add? Use: `add voter Alice, Bob`")
		return
	}
	added, present, err := r.engine.AddParticipants(ctx, names)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	var lines []string
	for _, name := range added {
		lines = append(lines, fmt.Sprintf("✅ Added **%s** to the batch", name))
	}
	for _, name := range present {
		lines = append(lines, fmt.Sprintf("ℹ️ **%s** was already in the batch", name))
	}
	r.reply(ctx, msg, strings.Join(lines, "\n"))
}

func (r *Router) handleRemoveVoters(ctx context.Context, msg chat.InboundMessage, rest string) {
	names := parse.ParseNames(rest)
	if len(names) == 0 {
		r.reply(ctx, msg, "❓ Who should I remove? Use: `remove voter Alice`")
		return
	}
	removed, absent, err := r.engine.RemoveParticipants(ctx, names)
	if err != nil {
		r.replyError(ctx, msg, err)
		return
	}
	var lines []string
	for _, name := range removed {
		lines = append(lines, fmt.Sprintf("✅ Removed **%s** from the batch", name))
	}
	for _, name := range absent {
		lines = append(lines, fmt.Sprintf("ℹ️ **%s** was not in the batch", name))
	}
	r.reply(ctx, msg, strings.Join(lines, "\n"))
}

// voteReply confirms a recorded submission. proxyFor names the participant
// when the facilitator voted on their behalf.
func voteReply(result *workflow.SubmissionResult, proxyFor string) string {
	var b strings.Builder
	whose := "Your"
	if proxyFor != "" {
		whose = fmt.Sprintf("**%s**'s", proxyFor)
	}
	if result.WasUpdate {
		fmt.Fprintf(&b, "🔄 %s votes have been updated:\n", whose)
	} else {
		fmt.Fprintf(&b, "✅ %s votes have been recorded:\n", whose)
	}
	keys := make([]string, 0, len(result.Estimates))
	for key := range result.Estimates {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(&b, "• #%s: %d\n", key, result.Estimates[key])
	}
	for _, key := range result.Abstentions {
		fmt.Fprintf(&b, "• #%s: abstained\n", key)
	}
	if result.Completed {
		b.WriteString("\n🎉 That was the last one — results are up in the channel!")
	}
	return b.String()
}

func (r *Router) reply(ctx context.Context, msg chat.InboundMessage, text string) {
	_, err := r.adapter.Send(ctx, chat.OutboundMessage{ChannelID: msg.ChannelID, Text: text})
	if err != nil {
		log.Printf("bot: router: send reply: %v", err)
	}
}

// replyError turns a workflow error into a chat reply. Storage failures get
// a generic message; the cause goes to the log.
func (r *Router) replyError(ctx context.Context, msg chat.InboundMessage, err error) {
	var werr *workflow.Error
	if errors.As(err, &werr) && werr.Kind != workflow.KindStorage {
		r.reply(ctx, msg, "❌ "+werr.UserMessage())
		return
	}
	log.Printf("bot: router: %s: %v", msg.UserName, err)
	r.reply(ctx, msg, "❌ Something went wrong. Please try again.")
}

// afterPrefix strips the first matching prefix, case-insensitively.
func afterPrefix(text string, prefixes ...string) string {
	lower := strings.ToLower(text)
	for _, p := range prefixes {
		if strings.HasPrefix(lower, p) {
			return strings.TrimSpace(text[len(p):])
		}
	}
	return text
}

// truncate returns s truncated to maxLen with "..." appended if needed.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
