// Package workflow implements the estimation batch state machine: creation,
// vote recording, quorum completion, consensus finalization, and the
// facilitator discussion flow.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/refinement-bot/refinery/internal/calendar"
	"github.com/refinement-bot/refinery/internal/chat"
	"github.com/refinement-bot/refinery/internal/config"
	"github.com/refinement-bot/refinery/internal/consensus"
	"github.com/refinement-bot/refinery/internal/ledger"
	"github.com/refinement-bot/refinery/internal/models"
	"github.com/refinement-bot/refinery/internal/parse"
	"github.com/refinement-bot/refinery/internal/quorum"
)

// TitleResolver resolves work item titles, best-effort.
type TitleResolver interface {
	ResolveTitle(ctx context.Context, url string) (string, bool)
}

// Engine drives estimation batches. All state transitions funnel through a
// single mutex: sqlite offers no row locking, so the engine is the single
// writer for lifecycle decisions.
type Engine struct {
	db     *gorm.DB
	cfg    *config.Config
	clock  *calendar.Clock
	chat   chat.Adapter
	titles TitleResolver
	ledger *ledger.Store
	quorum *quorum.Tracker
	parser *parse.Parser
	policy consensus.Policy
	now    func() time.Time

	mu sync.Mutex
}

// Opts holds parameters for creating an Engine.
type Opts struct {
	DB     *gorm.DB
	Config *config.Config
	Clock  *calendar.Clock
	Chat   chat.Adapter
	Titles TitleResolver    // optional; nil leaves titles unresolved
	Now    func() time.Time // optional; defaults to time.Now
}

// New creates an Engine.
func New(opts Opts) (*Engine, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("workflow: database is required")
	}
	if opts.Config == nil {
		return nil, fmt.Errorf("workflow: config is required")
	}
	if opts.Clock == nil {
		return nil, fmt.Errorf("workflow: calendar clock is required")
	}
	if opts.Chat == nil {
		return nil, fmt.Errorf("workflow: chat adapter is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Engine{
		db:     opts.DB,
		cfg:    opts.Config,
		clock:  opts.Clock,
		chat:   opts.Chat,
		titles: opts.Titles,
		ledger: ledger.New(opts.DB),
		quorum: quorum.New(opts.DB),
		parser: parse.New(opts.Config.Batch.MaxItems, opts.Config.Batch.Scale),
		policy: consensus.Policy{
			GapThreshold: opts.Config.Consensus.GapThreshold,
			ClusterShare: opts.Config.Consensus.ClusterShare,
			MinVotes:     opts.Config.Consensus.MinVotes,
		},
		now: now,
	}, nil
}

// Parser exposes the engine's input parser for message classification.
func (e *Engine) Parser() *parse.Parser { return e.parser }

// ActiveBatch returns the live batch (active or discussing) with items and
// roster loaded, or nil when none exists.
func (e *Engine) ActiveBatch() (*models.Batch, error) {
	var batch models.Batch
	err := e.db.Preload("Items").Preload("Roster").
		Where("status IN ?", []string{models.BatchActive, models.BatchDiscussing}).
		First(&batch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, storage("error loading active batch", err)
	}
	return &batch, nil
}

// CreateBatch opens a new batch from a "start" command body: one GitHub
// issue URL per line. At most one live batch exists at a time.
func (e *Engine) CreateBatch(ctx context.Context, facilitator, content string) (*models.Batch, error) {
	if err := parse.ValidateName(facilitator); err != nil {
		return nil, validationf("invalid facilitator name %q", facilitator)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing, err := e.ActiveBatch()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, conflictf("Active batch already running. Use 'status' to check progress.")
	}

	items, err := e.parser.ParseBatchSpec(content)
	if err != nil {
		return nil, validationf("%s", strings.TrimPrefix(err.Error(), "parse: "))
	}

	deadline := e.clock.AddBusinessHours(e.now(), e.cfg.Batch.DeadlineHours)

	batch := models.Batch{
		Status:      models.BatchActive,
		Facilitator: facilitator,
		Deadline:    deadline,
	}
	err = e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&batch).Error; err != nil {
			return err
		}
		for _, item := range items {
			wi := models.WorkItem{BatchID: batch.ID, Key: item.Key, URL: item.URL}
			if err := tx.Create(&wi).Error; err != nil {
				return err
			}
		}
		for _, name := range e.cfg.Batch.DefaultParticipants {
			if parse.ValidateName(name) != nil {
				continue
			}
			member := models.RosterMember{BatchID: batch.ID, Name: parse.CleanName(name)}
			if err := tx.Create(&member).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, storage("error creating batch", err)
	}

	created, err := e.loadBatch(batch.ID)
	if err != nil {
		return nil, err
	}

	// Posting the announcement is best-effort; the batch exists either way.
	e.postStatusMessage(ctx, created)
	return created, nil
}

// CancelBatch cancels the live batch. Facilitator only.
func (e *Engine) CancelBatch(ctx context.Context, requester string) (*models.Batch, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, conflictf("No active batch to cancel.")
	}
	if requester != batch.Facilitator {
		return nil, authorizationf("Only the facilitator (%s) can cancel this batch.", batch.Facilitator)
	}

	if err := e.db.Model(batch).Update("status", models.BatchCancelled).Error; err != nil {
		return nil, storage("error cancelling batch", err)
	}
	batch.Status = models.BatchCancelled

	e.updateStatusMessage(ctx, batch, fmt.Sprintf("🛑 Estimation batch %d cancelled by %s.", batch.ID, requester))
	return batch, nil
}

// CompleteBatch force-completes the live batch before its deadline.
// Facilitator only; valid while the batch is collecting votes.
func (e *Engine) CompleteBatch(ctx context.Context, requester string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return err
	}
	if batch == nil {
		return conflictf("No active batch to complete.")
	}
	if requester != batch.Facilitator {
		return authorizationf("Only the facilitator (%s) can complete this batch.", batch.Facilitator)
	}
	if batch.Status != models.BatchActive {
		return conflictf("Batch is not collecting votes (current: %s).", batch.Status)
	}
	return e.finalizeLocked(ctx, batch.ID, false)
}

// SubmissionResult reports what a vote submission recorded.
type SubmissionResult struct {
	Estimates   map[string]int
	Abstentions []string
	WasUpdate   bool // at least one triple was revised
	Completed   bool // this submission completed the quorum
}

// RecordSubmission validates and stores one participant's full vote message.
// Unknown participants join the roster automatically. When the submission
// completes the quorum the batch finalizes immediately.
func (e *Engine) RecordSubmission(ctx context.Context, participant, content string) (*SubmissionResult, error) {
	if err := parse.ValidateName(participant); err != nil {
		return nil, validationf("invalid participant name %q", participant)
	}
	participant = parse.CleanName(participant)

	// The batch read, the ledger writes, and the quorum decision must see a
	// consistent state: a deadline firing between them would otherwise let
	// votes land on a batch that already finalized.
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, conflictf("No active batch found. Cannot submit votes.")
	}

	if err := e.ensureRosterMember(batch, participant); err != nil {
		return nil, err
	}

	sub := e.parser.ParseEstimates(content)
	if len(sub.Errors) > 0 {
		return nil, validationf("Invalid values found:\n  • %s\n\nValid story points: %s\nOr use 'abstain' to abstain from voting",
			strings.Join(sub.Errors, "\n  • "), scaleString(e.cfg.Batch.Scale))
	}
	if len(sub.Estimates) == 0 && len(sub.Abstentions) == 0 {
		return nil, validationf("No valid votes or abstentions found. Please use format: `#1234: 5, #1235: 8, #1236: abstain`\nValid story points: %s",
			scaleString(e.cfg.Batch.Scale))
	}
	if err := validateCoverage(batch, sub); err != nil {
		return nil, err
	}

	result := &SubmissionResult{Estimates: sub.Estimates, Abstentions: sub.Abstentions}
	for key, points := range sub.Estimates {
		ok, wasUpdate, err := e.ledger.UpsertVote(batch.ID, participant, key, points)
		if err != nil {
			return nil, storage("error storing vote", err)
		}
		if !ok {
			return nil, storage("vote was not stored", nil)
		}
		result.WasUpdate = result.WasUpdate || wasUpdate
	}
	for _, key := range sub.Abstentions {
		ok, wasUpdate, err := e.ledger.UpsertAbstention(batch.ID, participant, key)
		if err != nil {
			return nil, storage("error storing abstention", err)
		}
		if !ok {
			return nil, storage("abstention was not stored", nil)
		}
		result.WasUpdate = result.WasUpdate || wasUpdate
	}

	complete, err := e.quorumComplete(batch)
	if err != nil {
		return nil, err
	}
	if complete && batch.Status == models.BatchActive {
		if err := e.finalizeLocked(ctx, batch.ID, true); err != nil {
			return nil, err
		}
		result.Completed = true
		return result, nil
	}

	e.refreshStatusMessage(ctx, batch)
	return result, nil
}

// RecordProxySubmission records votes on behalf of another participant.
// Facilitator only.
func (e *Engine) RecordProxySubmission(ctx context.Context, requester, content string) (string, *SubmissionResult, error) {
	batch, err := e.ActiveBatch()
	if err != nil {
		return "", nil, err
	}
	if batch == nil {
		return "", nil, conflictf("No active batch found. Cannot submit proxy votes.")
	}
	if requester != batch.Facilitator {
		return "", nil, authorizationf("Only the facilitator (%s) can submit proxy votes.", batch.Facilitator)
	}

	name, votes, err := e.parser.ParseProxy(content)
	if err != nil {
		return "", nil, validationf("Invalid proxy vote. Use: vote for NAME #1234: 5, #1235: 8")
	}
	result, err := e.RecordSubmission(ctx, name, votes)
	if err != nil {
		return name, nil, err
	}
	return name, result, nil
}

// ForceDeadline finalizes the live batch when its deadline has passed.
// Called by the poller; reports whether a finalization fired. Repeated calls
// after completion are no-ops.
func (e *Engine) ForceDeadline(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return false, err
	}
	if batch == nil || batch.Status != models.BatchActive {
		return false, nil
	}
	if e.now().Before(batch.Deadline) {
		return false, nil
	}
	log.Printf("workflow: batch %d deadline passed, forcing completion", batch.ID)
	if err := e.finalizeLocked(ctx, batch.ID, false); err != nil {
		return false, err
	}
	return true, nil
}

// FacilitatorFinish records facilitator finals after discussion. The batch
// completes only once every item has a final estimate; otherwise it stays
// in discussion.
func (e *Engine) FacilitatorFinish(ctx context.Context, requester, content string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return false, err
	}
	if batch == nil {
		return false, conflictf("No active batch found.")
	}
	if batch.Status != models.BatchDiscussing {
		return false, conflictf("Batch is not in discussion phase (current: %s).", batch.Status)
	}
	if requester != batch.Facilitator {
		return false, authorizationf("Only the facilitator (%s) can finish the discussion.", batch.Facilitator)
	}

	finals := e.parser.ParseFinish(content)
	if len(finals) == 0 {
		return false, validationf("No valid final estimates found. Use: finish #1234: 5 rationale, #1235: 8 rationale")
	}

	itemKeys := make(map[string]bool, len(batch.Items))
	for _, item := range batch.Items {
		itemKeys[item.Key] = true
	}
	for key := range finals {
		if !itemKeys[key] {
			return false, validationf("Issue #%s is not part of this batch.", key)
		}
	}

	for key, final := range finals {
		if err := e.upsertFinal(batch.ID, key, final.Points, final.Rationale); err != nil {
			return false, err
		}
	}

	done, err := e.allItemsFinal(batch)
	if err != nil {
		return false, err
	}
	if !done {
		return false, nil
	}

	if err := e.markCompleted(batch); err != nil {
		return false, err
	}
	e.postFinishResults(ctx, batch)
	e.updateStatusMessage(ctx, batch, fmt.Sprintf("✅ Estimation batch %d complete — discussion finished.", batch.ID))
	return true, nil
}

// Participants returns the live batch's roster names in join order.
func (e *Engine) Participants() ([]string, error) {
	batch, err := e.ActiveBatch()
	if err != nil {
		return nil, err
	}
	if batch == nil {
		return nil, conflictf("No active batch found.")
	}
	names := make([]string, len(batch.Roster))
	for i, m := range batch.Roster {
		names[i] = m.Name
	}
	return names, nil
}

// AddParticipants adds names to the live batch's roster. Returns the names
// actually added and those already present.
func (e *Engine) AddParticipants(ctx context.Context, names []string) (added, present []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return nil, nil, err
	}
	if batch == nil {
		return nil, nil, conflictf("No active batch found.")
	}

	for _, name := range names {
		if err := parse.ValidateName(name); err != nil {
			return nil, nil, validationf("invalid participant name %q", name)
		}
		member := models.RosterMember{BatchID: batch.ID, Name: parse.CleanName(name)}
		createErr := e.db.Create(&member).Error
		switch {
		case createErr == nil:
			added = append(added, member.Name)
		case isDuplicate(createErr):
			present = append(present, member.Name)
		default:
			return nil, nil, storage("error adding participant", createErr)
		}
	}

	if len(added) > 0 {
		e.refreshStatusMessage(ctx, batch)
	}
	return added, present, nil
}

// RemoveParticipants removes names from the live batch's roster. Returns the
// names removed and those that were not on the roster.
func (e *Engine) RemoveParticipants(ctx context.Context, names []string) (removed, absent []string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	batch, err := e.ActiveBatch()
	if err != nil {
		return nil, nil, err
	}
	if batch == nil {
		return nil, nil, conflictf("No active batch found.")
	}

	for _, name := range names {
		clean := parse.CleanName(name)
		res := e.db.Where("batch_id = ? AND name = ?", batch.ID, clean).Delete(&models.RosterMember{})
		if res.Error != nil {
			return nil, nil, storage("error removing participant", res.Error)
		}
		if res.RowsAffected > 0 {
			removed = append(removed, clean)
		} else {
			absent = append(absent, clean)
		}
	}

	if len(removed) > 0 {
		e.refreshStatusMessage(ctx, batch)
	}
	return removed, absent, nil
}

// finalizeLocked runs the shared completion path: classify every item, write
// the consensus finals, and transition to completed or discussing. Callers
// hold e.mu. Idempotent: a batch that already left the active state is left
// untouched.
func (e *Engine) finalizeLocked(ctx context.Context, batchID uint, autoCompleted bool) error {
	batch, err := e.loadBatch(batchID)
	if err != nil {
		return err
	}
	if batch.Status != models.BatchActive {
		return nil
	}

	votes, err := e.ledger.Votes(batch.ID)
	if err != nil {
		return storage("error loading votes", err)
	}

	outcomes := classifyItems(batch, votes, e.policy)

	anyDiscussion := false
	for _, item := range batch.Items {
		outcome := outcomes[item.Key]
		switch outcome.Kind {
		case consensus.KindPerfect, consensus.KindCluster:
			if err := e.upsertFinal(batch.ID, item.Key, outcome.Final, ""); err != nil {
				return err
			}
		default:
			anyDiscussion = true
		}
	}

	if anyDiscussion {
		if err := e.db.Model(batch).Update("status", models.BatchDiscussing).Error; err != nil {
			return storage("error starting discussion phase", err)
		}
		batch.Status = models.BatchDiscussing
	} else {
		if err := e.markCompleted(batch); err != nil {
			return err
		}
	}

	// Everything below is notification; the transition above already
	// committed and a send failure must not unwind it.
	e.postResults(ctx, batch, votes, outcomes, autoCompleted)
	summary := fmt.Sprintf("✅ Estimation batch %d complete.", batch.ID)
	if batch.Status == models.BatchDiscussing {
		summary = fmt.Sprintf("🗣️ Estimation batch %d in discussion — see the results thread.", batch.ID)
	}
	e.updateStatusMessage(ctx, batch, summary)
	return nil
}

// quorumComplete reports whether every roster member covered every item.
func (e *Engine) quorumComplete(batch *models.Batch) (bool, error) {
	if len(batch.Roster) == 0 {
		return false, nil
	}
	count, err := e.quorum.CompletedParticipantCount(batch.ID, len(batch.Items))
	if err != nil {
		return false, storage("error checking completion", err)
	}
	return count >= len(batch.Roster), nil
}

func (e *Engine) ensureRosterMember(batch *models.Batch, participant string) error {
	for _, m := range batch.Roster {
		if m.Name == participant {
			return nil
		}
	}
	member := models.RosterMember{BatchID: batch.ID, Name: participant}
	if err := e.db.Create(&member).Error; err != nil && !isDuplicate(err) {
		return storage("error adding participant to roster", err)
	}
	batch.Roster = append(batch.Roster, member)
	log.Printf("workflow: added %s to batch %d roster", participant, batch.ID)
	return nil
}

func (e *Engine) upsertFinal(batchID uint, itemKey string, points int, rationale string) error {
	var existing models.FinalEstimate
	err := e.db.Where("batch_id = ? AND item_key = ?", batchID, itemKey).First(&existing).Error
	switch {
	case err == nil:
		existing.Points = points
		existing.Rationale = rationale
		if err := e.db.Save(&existing).Error; err != nil {
			return storage("error updating final estimate", err)
		}
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		final := models.FinalEstimate{BatchID: batchID, ItemKey: itemKey, Points: points, Rationale: rationale}
		if err := e.db.Create(&final).Error; err != nil {
			return storage("error storing final estimate", err)
		}
		return nil
	default:
		return storage("error loading final estimate", err)
	}
}

func (e *Engine) allItemsFinal(batch *models.Batch) (bool, error) {
	var count int64
	err := e.db.Model(&models.FinalEstimate{}).Where("batch_id = ?", batch.ID).Count(&count).Error
	if err != nil {
		return false, storage("error counting final estimates", err)
	}
	return count >= int64(len(batch.Items)), nil
}

func (e *Engine) markCompleted(batch *models.Batch) error {
	completedAt := e.now()
	err := e.db.Model(batch).Updates(map[string]interface{}{
		"status":       models.BatchCompleted,
		"completed_at": completedAt,
	}).Error
	if err != nil {
		return storage("error completing batch", err)
	}
	batch.Status = models.BatchCompleted
	batch.CompletedAt = &completedAt
	return nil
}

func (e *Engine) loadBatch(id uint) (*models.Batch, error) {
	var batch models.Batch
	if err := e.db.Preload("Items").Preload("Roster").First(&batch, id).Error; err != nil {
		return nil, storage("error loading batch", err)
	}
	return &batch, nil
}

// classifyItems groups votes per item and runs the consensus analysis.
func classifyItems(batch *models.Batch, votes []models.Vote, policy consensus.Policy) map[string]consensus.Outcome {
	byItem := make(map[string][]int)
	for _, v := range votes {
		byItem[v.ItemKey] = append(byItem[v.ItemKey], v.Points)
	}
	outcomes := make(map[string]consensus.Outcome, len(batch.Items))
	for _, item := range batch.Items {
		outcomes[item.Key] = consensus.Classify(byItem[item.Key], policy)
	}
	return outcomes
}

// validateCoverage checks that a submission addresses exactly the batch's
// items, with no vote/abstention overlap.
func validateCoverage(batch *models.Batch, sub parse.Submission) error {
	batchKeys := make(map[string]bool, len(batch.Items))
	for _, item := range batch.Items {
		batchKeys[item.Key] = true
	}

	addressed := make(map[string]bool, len(sub.Estimates)+len(sub.Abstentions))
	var overlap []string
	for key := range sub.Estimates {
		addressed[key] = true
	}
	for _, key := range sub.Abstentions {
		if addressed[key] {
			overlap = append(overlap, "#"+key)
		}
		addressed[key] = true
	}
	if len(overlap) > 0 {
		return validationf("Cannot both vote and abstain on the same issues: %s", strings.Join(overlap, ", "))
	}

	var missing, extra []string
	for key := range batchKeys {
		if !addressed[key] {
			missing = append(missing, "#"+key)
		}
	}
	for key := range addressed {
		if !batchKeys[key] {
			extra = append(extra, "#"+key)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		var b strings.Builder
		b.WriteString("Vote validation failed:\n")
		if len(missing) > 0 {
			fmt.Fprintf(&b, "Missing votes/abstentions for issues: %s\n", strings.Join(missing, ", "))
		}
		if len(extra) > 0 {
			fmt.Fprintf(&b, "Votes/abstentions for issues not in batch: %s\n", strings.Join(extra, ", "))
		}
		var required []string
		for _, item := range batch.Items {
			required = append(required, "#"+item.Key)
		}
		fmt.Fprintf(&b, "\nPlease vote or abstain for exactly these issues: %s", strings.Join(required, ", "))
		return validationf("%s", b.String())
	}
	return nil
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "Duplicate entry")
}

func scaleString(scale []int) string {
	parts := make([]string, len(scale))
	for i, v := range scale {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, ", ")
}
