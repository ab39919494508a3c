package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

func testClient(topics ...string) *Client {
	c := newClient()
	c.Topics = topics
	return c
}

func receive(t *testing.T, c *Client) Event {
	t.Helper()
	select {
	case msg := <-c.Send:
		var ev Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		return ev
	case <-time.After(time.Second):
		t.Fatal("client did not receive event")
	}
	return Event{}
}

func assertNothing(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.Send:
		t.Fatalf("unexpected message %s", msg)
	default:
	}
}

// ---------------------------------------------------------------------------
// Hub
// ---------------------------------------------------------------------------

func TestHub_RegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	client := testClient("appointments", "vaccines")

	if rejected := hub.Register(client); len(rejected) != 0 {
		t.Fatalf("expected no rejected topics, got %v", rejected)
	}
	if hub.ClientCount() != 1 || hub.TopicCount("appointments") != 1 {
		t.Fatalf("expected client registered on appointments")
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 || hub.TopicCount("appointments") != 0 || hub.TopicCount("vaccines") != 0 {
		t.Fatal("expected hub empty after unregister")
	}
	if _, ok := <-client.Send; ok {
		t.Error("expected Send closed")
	}
	hub.Unregister(client)
}

func TestHub_BroadcastToTopic(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	sub := testClient("vaccinations")
	other := testClient("news")
	hub.Register(sub)
	hub.Register(other)

	hub.Broadcast("vaccinations", Event{Type: "vaccinations.created", Topic: "vaccinations", ID: "x1"})

	if ev := receive(t, sub); ev.Type != "vaccinations.created" || ev.ID != "x1" {
		t.Errorf("unexpected event %+v", ev)
	}
	assertNothing(t, other)
}

func TestHub_PublishSetsTimestamp(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := testClient("news")
	hub.Register(c)

	if err := hub.Publish(context.Background(), Event{Type: "news.loaded", Topic: "news"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev := receive(t, c); ev.Timestamp.IsZero() {
		t.Error("expected timestamp filled in")
	}
}

func TestHub_TopicFilter(t *testing.T) {
	signedIn := false
	hub := NewHub(zerolog.Nop(), func(topic string) bool {
		return topic != "appointments" || signedIn
	})
	c := testClient("appointments", "vaccines")

	rejected := hub.Register(c)
	if len(rejected) != 1 || rejected[0] != "appointments" {
		t.Fatalf("expected appointments rejected, got %v", rejected)
	}
	if hub.TopicCount("vaccines") != 1 || hub.TopicCount("appointments") != 0 {
		t.Fatal("unexpected subscriptions")
	}

	signedIn = true
	if rejected := hub.ProcessMessage(c, ClientMessage{Action: "subscribe", Topics: []string{"appointments"}}); len(rejected) != 0 {
		t.Fatalf("expected subscribe allowed once signed in, got %v", rejected)
	}
	if hub.TopicCount("appointments") != 1 {
		t.Error("expected appointments subscription")
	}
}

func TestHub_SubscribeIgnoresDuplicates(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := testClient("news")
	hub.Register(c)
	hub.Subscribe(c, []string{"news", "news"})

	if len(c.Topics) != 1 {
		t.Errorf("expected one topic, got %v", c.Topics)
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := testClient("news", "vaccines", "hospitals")
	hub.Register(c)

	hub.ProcessMessage(c, ClientMessage{Action: "unsubscribe", Topics: []string{"vaccines"}})

	if hub.TopicCount("vaccines") != 0 {
		t.Error("expected vaccines unsubscribed")
	}
	if len(c.Topics) != 2 || c.Topics[0] != "news" || c.Topics[1] != "hospitals" {
		t.Errorf("unexpected remaining topics %v", c.Topics)
	}
}

func TestHub_DropTopics(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	a := testClient("appointments", "news")
	b := testClient("appointments", "covid-tests")
	hub.Register(a)
	hub.Register(b)

	hub.DropTopics("appointments", "covid-tests")

	if hub.TopicCount("appointments") != 0 || hub.TopicCount("covid-tests") != 0 {
		t.Fatal("expected protected topics dropped")
	}
	if hub.TopicCount("news") != 1 || len(a.Topics) != 1 || len(b.Topics) != 0 {
		t.Errorf("unexpected topics a=%v b=%v", a.Topics, b.Topics)
	}
	if hub.ClientCount() != 2 {
		t.Error("expected clients to stay connected")
	}
}

func TestHub_FullBufferDropsEvent(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	c := &Client{ID: "slow", Topics: []string{"news"}, Send: make(chan []byte, 1)}
	hub.Register(c)

	hub.Broadcast("news", Event{Type: "news.created", Topic: "news"})
	hub.Broadcast("news", Event{Type: "news.updated", Topic: "news"})

	if ev := receive(t, c); ev.Type != "news.created" {
		t.Errorf("expected first event kept, got %s", ev.Type)
	}
	assertNothing(t, c)
}

func TestHub_ConcurrentRegisterUnregister(t *testing.T) {
	hub := NewHub(zerolog.Nop(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := testClient("vaccines")
			hub.Register(c)
			hub.Broadcast("vaccines", Event{Type: "vaccines.loaded", Topic: "vaccines"})
			hub.Unregister(c)
		}()
	}
	wg.Wait()
	if hub.ClientCount() != 0 {
		t.Errorf("expected 0 clients, got %d", hub.ClientCount())
	}
}

func TestSplitTopics(t *testing.T) {
	got := splitTopics(" news, ,vaccines,")
	if len(got) != 2 || got[0] != "news" || got[1] != "vaccines" {
		t.Errorf("unexpected %v", got)
	}
	if splitTopics("") != nil {
		t.Error("expected nil for empty input")
	}
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

func TestHandler_RequiresUpgrade(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop(), nil), nil)
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ws", nil), rec)

	if err := h.HandleConnect(c); err == nil && rec.Code < 400 {
		t.Error("expected plain GET to be refused")
	}
}

func TestHandler_CheckOrigin(t *testing.T) {
	h := NewHandler(NewHub(zerolog.Nop(), nil), []string{"http://localhost:3000/"})
	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:3000", true},
		{"", true},
		{"http://evil.example", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if tt.origin != "" {
			req.Header.Set("Origin", tt.origin)
		}
		if got := h.upgrader.CheckOrigin(req); got != tt.want {
			t.Errorf("origin %q: expected %v, got %v", tt.origin, tt.want, got)
		}
	}
}

func TestHandler_FullUpgrade(t *testing.T) {
	hub := NewHub(zerolog.Nop(), func(topic string) bool { return topic != "appointments" })
	e := echo.New()
	NewHandler(hub, nil).RegisterRoutes(e.Group(""))

	server := httptest.NewServer(e)
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?topics=vaccines,appointments"
	conn, resp, err := gorillawebsocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()
	if resp.StatusCode != http.StatusSwitchingProtocols {
		t.Fatalf("expected 101, got %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var rejected Event
	if err := conn.ReadJSON(&rejected); err != nil {
		t.Fatalf("failed to read rejection: %v", err)
	}
	if rejected.Type != "subscription.rejected" || rejected.Topic != "appointments" {
		t.Fatalf("unexpected first event %+v", rejected)
	}

	if err := conn.WriteJSON(ClientMessage{Action: "subscribe", Topics: []string{"news"}}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for hub.TopicCount("news") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if hub.TopicCount("news") != 1 {
		t.Fatal("expected news subscription")
	}

	hub.Publish(context.Background(), Event{Type: "vaccines.created", Topic: "vaccines", ID: "v1"})

	var received Event
	if err := conn.ReadJSON(&received); err != nil {
		t.Fatalf("failed to read event: %v", err)
	}
	if received.Type != "vaccines.created" || received.ID != "v1" {
		t.Fatalf("unexpected event %+v", received)
	}
}
