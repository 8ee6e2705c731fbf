package remote

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// newFeedServer runs a websocket endpoint that verifies the token, pushes
// the given frames, then holds the connection open until the client leaves.
func newFeedServer(t *testing.T, token string, frames []Frame) *httptest.Server {
	t.Helper()

	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("token") != token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for _, frame := range frames {
			data, err := json.Marshal(frame)
			if err != nil {
				t.Errorf("Failed to marshal frame: %v", err)
				return
			}
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}

		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func TestFeed_AppliesRecordFrames(t *testing.T) {
	mgr := newTestRecords(t)

	ctx := context.Background()

	a := addRecord(t, mgr, "A")
	if err := mgr.ApplyRemoteIdentity(ctx, a.LocalID, "rec-a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Failed to apply remote identity: %v", err)
	}

	server := newFeedServer(t, "feed-token", []Frame{
		// A change for a record another device owns is skipped quietly
		{Type: FrameTypeRecord, RemoteID: "rec-elsewhere", Payload: json.RawMessage(`{}`)},
		{Type: FrameTypeRecord, RemoteID: "rec-a", Payload: json.RawMessage(`{"v":2}`)},
	})
	defer server.Close()

	feed := NewFeed(server.URL, "feed-token", mgr, nil, FeedConfig{})
	feed.Start()
	defer feed.Stop()

	applied := waitFor(5*time.Second, func() bool {
		got := mgr.GetPrinter(a.LocalID)
		return got != nil && string(got.RemotePayload) == `{"v":2}`
	})
	if !applied {
		t.Fatal("Record frame not applied to the local record")
	}
	if mgr.GetPrinter(a.LocalID).NeedsRemoteUpdate {
		t.Error("Feed payload refresh flagged the record for upload")
	}
	if !feed.IsConnected() {
		t.Error("Expected feed to report connected")
	}
}

func TestFeed_RemoveFrameDeletesRecord(t *testing.T) {
	mgr := newTestRecords(t)

	ctx := context.Background()

	a := addRecord(t, mgr, "A")
	b := addRecord(t, mgr, "B")
	if err := mgr.ApplyRemoteIdentity(ctx, a.LocalID, "rec-a", nil); err != nil {
		t.Fatalf("Failed to apply remote identity: %v", err)
	}

	server := newFeedServer(t, "feed-token", []Frame{
		{Type: FrameTypeRemove, RemoteID: "rec-a"},
	})
	defer server.Close()

	feed := NewFeed(server.URL, "feed-token", mgr, nil, FeedConfig{})
	feed.Start()
	defer feed.Stop()

	removed := waitFor(5*time.Second, func() bool {
		return mgr.GetPrinter(a.LocalID) == nil
	})
	if !removed {
		t.Fatal("Remove frame did not delete the local record")
	}

	// Default reassignment applies as for any delete, and the deletion is
	// not echoed back as a tombstone
	if def := mgr.GetDefaultPrinter(); def == nil || def.LocalID != b.LocalID {
		t.Error("Successor not promoted after remote deletion")
	}
	stones, err := mgr.ListTombstones(ctx)
	if err != nil {
		t.Fatalf("Failed to list tombstones: %v", err)
	}
	if len(stones) != 0 {
		t.Errorf("Expected no tombstones, got %d", len(stones))
	}
}

func TestFeed_RejectsBadToken(t *testing.T) {
	mgr := newTestRecords(t)

	server := newFeedServer(t, "good-token", nil)
	defer server.Close()

	feed := NewFeed(server.URL, "bad-token", mgr, nil, FeedConfig{})
	feed.Start()
	defer feed.Stop()

	if waitFor(500*time.Millisecond, feed.IsConnected) {
		t.Error("Feed connected with a rejected token")
	}
}

func TestFeed_StartWithUnreachableServer(t *testing.T) {
	mgr := newTestRecords(t)

	feed := NewFeed("http://127.0.0.1:1", "token", mgr, nil, FeedConfig{})
	feed.Start()
	defer feed.Stop()

	if feed.IsConnected() {
		t.Error("Feed reported connected with no server")
	}
}

func TestFeed_HandleFrame(t *testing.T) {
	mgr := newTestRecords(t)

	ctx := context.Background()

	a := addRecord(t, mgr, "A")
	if err := mgr.ApplyRemoteIdentity(ctx, a.LocalID, "rec-a", []byte(`{"v":1}`)); err != nil {
		t.Fatalf("Failed to apply remote identity: %v", err)
	}

	feed := NewFeed("http://unused.invalid", "", mgr, nil, FeedConfig{})

	// Malformed and unknown frames are tolerated without touching records
	feed.handleFrame(Frame{Type: FrameTypeRecord})
	feed.handleFrame(Frame{Type: FrameTypeRemove})
	feed.handleFrame(Frame{Type: FrameTypeRemove, RemoteID: "rec-missing"})
	feed.handleFrame(Frame{Type: FrameTypeError, Error: "server on fire"})
	feed.handleFrame(Frame{Type: "mystery"})

	if got := mgr.GetPrinter(a.LocalID); string(got.RemotePayload) != `{"v":1}` {
		t.Error("Bad frames modified the record")
	}

	feed.handleFrame(Frame{Type: FrameTypeRecord, RemoteID: "rec-a", Payload: json.RawMessage(`{"v":2}`)})
	if got := mgr.GetPrinter(a.LocalID); string(got.RemotePayload) != `{"v":2}` {
		t.Error("Record frame not applied")
	}

	feed.handleFrame(Frame{Type: FrameTypeRemove, RemoteID: "rec-a"})
	if mgr.GetPrinter(a.LocalID) != nil {
		t.Error("Remove frame not applied")
	}
}
