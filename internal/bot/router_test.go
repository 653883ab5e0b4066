package bot

import (
	"context"
	"strings"
	"testing"

	"github.com/refinement-bot/refinery/internal/calendar"
	"github.com/refinement-bot/refinery/internal/chat"
	"github.com/refinement-bot/refinery/internal/config"
	"github.com/refinement-bot/refinery/internal/db"
	"github.com/refinement-bot/refinery/internal/workflow"
)

func newTestRouter(t *testing.T) (*Router, *chat.MockAdapter) {
	t.Helper()

	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		Batch: config.BatchConfig{
			MaxItems:            6,
			DeadlineHours:       48,
			Scale:               []int{1, 2, 3, 5, 8, 13, 21},
			DefaultParticipants: []string{"Alice", "Bob", "Carol"},
		},
		Consensus: config.ConsensusConfig{GapThreshold: 2, ClusterShare: 0.6, MinVotes: 3},
		Calendar:  config.CalendarConfig{Timezone: "UTC"},
	}
	clock, err := calendar.New(cfg.Calendar)
	if err != nil {
		t.Fatalf("calendar: %v", err)
	}

	mock := chat.NewMockAdapter()
	if err := mock.Connect(context.Background()); err != nil {
		t.Fatalf("connect mock: %v", err)
	}

	eng, err := workflow.New(workflow.Opts{DB: gdb, Config: cfg, Clock: clock, Chat: mock})
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	router, err := NewRouter(Opts{Engine: eng, Adapter: mock})
	if err != nil {
		t.Fatalf("router: %v", err)
	}
	return router, mock
}

func handle(t *testing.T, r *Router, m *chat.MockAdapter, user, text string) string {
	t.Helper()
	r.Handle(context.Background(), chat.InboundMessage{ChannelID: "D1", UserName: user, Text: text})
	sent, ok := m.LastSent()
	if !ok {
		t.Fatalf("no reply to %q", text)
	}
	return sent.Text
}

const startTwo = "start\nhttps://github.com/acme/widgets/issues/101\nhttps://github.com/acme/widgets/issues/102"

func TestHelp(t *testing.T) {
	r, m := newTestRouter(t)
	reply := handle(t, r, m, "Dana", "help")
	if !strings.Contains(reply, "Refinery commands") {
		t.Errorf("help reply = %q", reply)
	}
}

func TestUnknownCommand(t *testing.T) {
	r, m := newTestRouter(t)
	reply := handle(t, r, m, "Dana", "make me a sandwich")
	if !strings.Contains(reply, "didn't understand") {
		t.Errorf("reply = %q", reply)
	}
}

func TestStartAndStatus(t *testing.T) {
	r, m := newTestRouter(t)

	reply := handle(t, r, m, "Dana", startTwo)
	if !strings.Contains(reply, "Started estimation batch 1") {
		t.Errorf("start reply = %q", reply)
	}

	reply = handle(t, r, m, "Dana", "status")
	if !strings.Contains(reply, "Votes received**: 0/3") {
		t.Errorf("status reply = %q", reply)
	}
}

func TestStartRejectsSecondBatch(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	reply := handle(t, r, m, "Erin", "start\nhttps://github.com/acme/widgets/issues/999")
	if !strings.Contains(reply, "❌") || !strings.Contains(reply, "Active batch already running") {
		t.Errorf("reply = %q", reply)
	}
}

func TestVoteSubmission(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	reply := handle(t, r, m, "Alice", "#101: 5, #102: abstain")
	if !strings.Contains(reply, "✅") || !strings.Contains(reply, "#101: 5") || !strings.Contains(reply, "#102: abstained") {
		t.Errorf("vote reply = %q", reply)
	}

	reply = handle(t, r, m, "Alice", "#101: 8, #102: abstain")
	if !strings.Contains(reply, "🔄") {
		t.Errorf("revision reply = %q", reply)
	}
}

func TestVoteReplyListsItemsInOrder(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	// Confirmation lines come out in item order no matter how the
	// submission was typed.
	reply := handle(t, r, m, "Alice", "#102: 8, #101: 5")
	first := strings.Index(reply, "#101: 5")
	second := strings.Index(reply, "#102: 8")
	if first < 0 || second < 0 || first > second {
		t.Errorf("vote reply out of order: %q", reply)
	}
}

func TestVoteCompletesBatch(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	handle(t, r, m, "Alice", "#101: 5, #102: 5")
	handle(t, r, m, "Bob", "#101: 5, #102: 5")
	reply := handle(t, r, m, "Carol", "#101: 5, #102: 5")
	if !strings.Contains(reply, "last one") {
		t.Errorf("completing vote reply = %q", reply)
	}
}

func TestProxyVote(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	reply := handle(t, r, m, "Alice", "vote for Bob #101: 5, #102: 5")
	if !strings.Contains(reply, "Only the facilitator") {
		t.Errorf("unauthorized proxy reply = %q", reply)
	}

	reply = handle(t, r, m, "Dana", "vote for Bob #101: 5, #102: 5")
	if !strings.Contains(reply, "**Bob**") {
		t.Errorf("proxy reply = %q", reply)
	}
}

func TestRosterCommands(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	reply := handle(t, r, m, "Alice", "add voter Grace and Bob")
	if !strings.Contains(reply, "Added **Grace**") || !strings.Contains(reply, "**Bob** was already") {
		t.Errorf("add reply = %q", reply)
	}

	reply = handle(t, r, m, "Alice", "remove voter Bob, Nobody")
	if !strings.Contains(reply, "Removed **Bob**") || !strings.Contains(reply, "**Nobody** was not") {
		t.Errorf("remove reply = %q", reply)
	}

	reply = handle(t, r, m, "Alice", "voters")
	for _, want := range []string{"• Alice", "• Carol", "• Grace", "Total**: 3 voters"} {
		if !strings.Contains(reply, want) {
			t.Errorf("voters reply missing %q:\n%s", want, reply)
		}
	}
}

func TestCancelFacilitatorOnly(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	reply := handle(t, r, m, "Alice", "cancel")
	if !strings.Contains(reply, "Only the facilitator") {
		t.Errorf("reply = %q", reply)
	}

	reply = handle(t, r, m, "Dana", "cancel")
	if !strings.Contains(reply, "Batch 1 cancelled") {
		t.Errorf("reply = %q", reply)
	}
}

func TestCompleteAndFinishFlow(t *testing.T) {
	r, m := newTestRouter(t)
	handle(t, r, m, "Dana", startTwo)

	// Spread votes so #101 lands in discussion.
	handle(t, r, m, "Alice", "#101: 1, #102: 5")
	handle(t, r, m, "Bob", "#101: 21, #102: 5")

	reply := handle(t, r, m, "Dana", "complete")
	if !strings.Contains(reply, "Voting closed") {
		t.Errorf("complete reply = %q", reply)
	}

	reply = handle(t, r, m, "Dana", "finish #101: 8 met in the middle")
	if !strings.Contains(reply, "Batch complete") {
		t.Errorf("finish reply = %q", reply)
	}
}

func TestStatusWithoutBatch(t *testing.T) {
	r, m := newTestRouter(t)
	reply := handle(t, r, m, "Dana", "status")
	if !strings.Contains(reply, "No active batch") {
		t.Errorf("reply = %q", reply)
	}
}
