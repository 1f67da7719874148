package chat

import (
	"testing"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

func TestTimelineOrdering(t *testing.T) {
	tl := NewTimeline()
	// arrival order: 3 (t=5), 1 (t=1), 4 (t=5), 2 (t=3)
	tl.Insert(msg(3, 1, "a", 5))
	tl.Insert(msg(1, 1, "a", 1))
	tl.Insert(msg(4, 1, "a", 5))
	tl.Insert(msg(2, 1, "a", 3))

	if got := ids(tl.Messages()); !equalIDs(got, []int64{1, 2, 3, 4}) {
		t.Errorf("expected [1 2 3 4], got %v", got)
	}
	if tl.Insert(msg(2, 1, "a", 3)) {
		t.Error("expected duplicate id to be rejected")
	}
	if tl.Len() != 4 || !tl.Contains(4) {
		t.Errorf("unexpected timeline state: len %d", tl.Len())
	}
}

func TestTimelineReplaceKeepsPending(t *testing.T) {
	tl := NewTimeline()
	pending := msg(0, 1, "me", 9)
	pending.ClientKey = "k1"
	tl.Insert(pending)
	tl.Insert(msg(5, 1, "a", 1))

	tl.Replace([]models.Message{msg(1, 1, "a", 1), msg(2, 1, "a", 2), msg(1, 1, "a", 1)})
	got := tl.Messages()
	if len(got) != 3 || got[2].ClientKey != "k1" {
		t.Fatalf("expected history plus placeholder, got %+v", got)
	}
	if tl.Contains(5) {
		t.Error("expected replaced message to be gone")
	}

	tl.Drop("k1")
	if tl.Len() != 2 {
		t.Errorf("expected placeholder dropped, got %d", tl.Len())
	}
}

func placeholder(key, content string) models.Message {
	m := msg(0, 1, "me", 9)
	m.ClientKey = key
	m.Content = content
	return m
}

func TestTimelineRepeatedEchoKeepsOtherPlaceholder(t *testing.T) {
	tl := NewTimeline()
	tl.Insert(placeholder("k1", "hi"))
	tl.Insert(placeholder("k2", "hi"))

	echo := msg(7, 1, "me", 9)
	echo.Content = "hi"
	if !tl.Resolve(echo) {
		t.Fatal("expected first echo to be added")
	}
	if tl.Resolve(echo) {
		t.Error("expected repeated echo to be rejected")
	}

	got := tl.Messages()
	if len(got) != 2 {
		t.Fatalf("expected echo plus one placeholder, got %+v", got)
	}
	pending := 0
	for _, m := range got {
		if m.Pending() {
			pending++
		}
	}
	if pending != 1 {
		t.Errorf("expected 1 pending placeholder, got %d", pending)
	}
}

func TestTimelineReplaceDropsConfirmedPlaceholder(t *testing.T) {
	tl := NewTimeline()
	tl.Insert(placeholder("k1", "hi"))
	tl.Insert(placeholder("k2", "hi"))
	tl.Insert(placeholder("k3", "bye"))

	confirmed := msg(7, 1, "me", 9)
	confirmed.Content = "hi"
	tl.Replace([]models.Message{msg(1, 1, "a", 1), confirmed})

	var keys []string
	for _, m := range tl.Messages() {
		if m.Pending() {
			keys = append(keys, m.ClientKey)
		}
	}
	if len(keys) != 2 || keys[0] != "k2" || keys[1] != "k3" {
		t.Errorf("expected placeholders [k2 k3], got %v", keys)
	}
	if tl.Len() != 4 {
		t.Errorf("expected 4 messages, got %d", tl.Len())
	}
}

func TestDedupChats(t *testing.T) {
	chats := []models.Chat{chatWith(9, "2"), chatWith(3, "4"), chatWith(9, "5")}
	got := DedupChats(chats)
	if len(got) != 2 || got[0].ID != 9 || got[1].ID != 3 {
		t.Fatalf("unexpected result: %+v", got)
	}
	if peer, _ := got[0].Peer("1"); peer.ID != "2" {
		t.Errorf("expected first-seen row, got peer %q", peer.ID)
	}
}

func TestFilterChats(t *testing.T) {
	anna := models.Chat{ID: 1, Participants: []models.Participant{
		{User: models.User{ID: "1"}},
		{User: models.User{ID: "2", FirstName: "Anna", SecondName: "Karimova", Username: "anna_k"}},
	}}
	bob := models.Chat{ID: 2, Participants: []models.Participant{
		{User: models.User{ID: "1"}},
		{User: models.User{ID: "3", FirstName: "Bob", Username: "bobby"}},
	}}
	chats := []models.Chat{anna, bob}

	tests := []struct {
		query string
		want  []int64
	}{
		{"", []int64{1, 2}},
		{"ANNA", []int64{1}},
		{"karim", []int64{1}},
		{"bobby", []int64{2}},
		{"zzz", nil},
	}
	for _, tt := range tests {
		got := FilterChats(chats, "1", tt.query)
		var gotIDs []int64
		for _, c := range got {
			gotIDs = append(gotIDs, c.ID)
		}
		if !equalIDs(gotIDs, tt.want) {
			t.Errorf("query %q: expected %v, got %v", tt.query, tt.want, gotIDs)
		}
	}
}
