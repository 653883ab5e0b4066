package slack

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	slackapi "github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/refinement-bot/refinery/internal/chat"
)

// --- Mock Slack client ---

type mockSlackClient struct {
	mu       sync.Mutex
	authResp *slackapi.AuthTestResponse
	authErr  error
	posted   []postedMessage
	postErr  error
	updated  []updatedMessage
	users    map[string]*slackapi.User
}

type postedMessage struct {
	channelID string
	options   []slackapi.MsgOption
}

type updatedMessage struct {
	channelID string
	timestamp string
}

func newMockSlackClient() *mockSlackClient {
	return &mockSlackClient{
		authResp: &slackapi.AuthTestResponse{UserID: "U_BOT_123"},
		users:    make(map[string]*slackapi.User),
	}
}

func (m *mockSlackClient) AuthTest() (*slackapi.AuthTestResponse, error) {
	return m.authResp, m.authErr
}

func (m *mockSlackClient) PostMessage(channelID string, options ...slackapi.MsgOption) (string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.postErr != nil {
		return "", "", m.postErr
	}
	m.posted = append(m.posted, postedMessage{channelID: channelID, options: options})
	return channelID, "1234567890.123456", nil
}

func (m *mockSlackClient) UpdateMessage(channelID, timestamp string, options ...slackapi.MsgOption) (string, string, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updated = append(m.updated, updatedMessage{channelID: channelID, timestamp: timestamp})
	return channelID, timestamp, "", nil
}

func (m *mockSlackClient) GetUserInfo(userID string) (*slackapi.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("user not found: %s", userID)
}

func (m *mockSlackClient) postedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.posted)
}

// --- Mock Socket Mode client ---

type mockSocketClient struct {
	events chan socketmode.Event
	mu     sync.Mutex
	acked  []socketmode.Request
	done   chan struct{}
}

func newMockSocketClient() *mockSocketClient {
	return &mockSocketClient{
		events: make(chan socketmode.Event, 100),
		done:   make(chan struct{}),
	}
}

func (m *mockSocketClient) Run() error {
	<-m.done
	return nil
}

func (m *mockSocketClient) EventsChan() chan socketmode.Event {
	return m.events
}

func (m *mockSocketClient) Ack(req socketmode.Request, payload ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, req)
}

// --- Helper to create a connected adapter ---

func newTestAdapter(t *testing.T) (*Adapter, *mockSlackClient, *mockSocketClient) {
	t.Helper()
	client := newMockSlackClient()
	socket := newMockSocketClient()

	a, err := New(AdapterOpts{
		Client:    client,
		Socket:    socket,
		ChannelID: "C_DEFAULT",
	})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	if err := a.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return a, client, socket
}

func TestNewRequiresTokens(t *testing.T) {
	if _, err := New(AdapterOpts{}); err == nil {
		t.Fatal("expected error without tokens or injected clients")
	}
}

func TestConnectCapturesBotUserID(t *testing.T) {
	a, _, _ := newTestAdapter(t)
	if a.BotUserID() != "U_BOT_123" {
		t.Errorf("BotUserID = %q, want U_BOT_123", a.BotUserID())
	}
}

func TestSendReturnsRef(t *testing.T) {
	a, client, _ := newTestAdapter(t)

	ref, err := a.Send(context.Background(), outbound("C42", "deadline is tomorrow"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.ChannelID != "C42" || ref.ID != "1234567890.123456" {
		t.Errorf("ref = %+v", ref)
	}
	if client.postedCount() != 1 {
		t.Errorf("postedCount = %d, want 1", client.postedCount())
	}
}

func TestSendDefaultChannel(t *testing.T) {
	a, _, _ := newTestAdapter(t)

	ref, err := a.Send(context.Background(), outbound("", "hello"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if ref.ChannelID != "C_DEFAULT" {
		t.Errorf("ref.ChannelID = %q, want C_DEFAULT", ref.ChannelID)
	}
}

func TestSendSurfacesRateLimitAfterRetries(t *testing.T) {
	a, client, _ := newTestAdapter(t)
	client.postErr = &slackapi.RateLimitedError{RetryAfter: time.Millisecond}

	if _, err := a.Send(context.Background(), outbound("C42", "x")); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestUpdateEditsMessage(t *testing.T) {
	a, client, _ := newTestAdapter(t)

	ref, err := a.Send(context.Background(), outbound("C42", "progress 0/3"))
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := a.Update(context.Background(), ref, "progress 1/3"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	client.mu.Lock()
	defer client.mu.Unlock()
	if len(client.updated) != 1 {
		t.Fatalf("updated = %d, want 1", len(client.updated))
	}
	if client.updated[0].channelID != "C42" || client.updated[0].timestamp != ref.ID {
		t.Errorf("updated[0] = %+v", client.updated[0])
	}
}

func TestListenFiltersSelfAndBotMessages(t *testing.T) {
	a, _, socket := newTestAdapter(t)

	inbound, err := a.Listen(context.Background())
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}

	// Self message, bot message, then a real user message.
	socket.events <- messageEvent("U_BOT_123", "", "ignore me")
	socket.events <- messageEvent("U2", "B99", "bot message")
	socket.events <- messageEvent("U3", "", "#100: 5")

	select {
	case msg := <-inbound:
		if msg.Text != "#100: 5" || msg.UserID != "U3" {
			t.Errorf("got %+v, want the user message", msg)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}

	close(socket.done)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestSendAfterCloseFails(t *testing.T) {
	a, _, socket := newTestAdapter(t)
	close(socket.done)
	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := a.Send(context.Background(), outbound("C42", "x")); err == nil {
		t.Fatal("expected error sending after close")
	}
}

// --- helpers ---

func outbound(channelID, text string) chat.OutboundMessage {
	return chat.OutboundMessage{ChannelID: channelID, Text: text}
}

func messageEvent(userID, botID, text string) socketmode.Event {
	return socketmode.Event{
		Type: socketmode.EventTypeEventsAPI,
		Data: slackevents.EventsAPIEvent{
			Type: slackevents.CallbackEvent,
			InnerEvent: slackevents.EventsAPIInnerEvent{
				Data: &slackevents.MessageEvent{
					Channel:   "D_DM",
					User:      userID,
					BotID:     botID,
					Text:      text,
					TimeStamp: "1700000000.000100",
				},
			},
		},
	}
}
