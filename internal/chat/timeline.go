package chat

import (
	"sort"
	"strings"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// Timeline is the ordered message sequence of one chat. Messages are kept in
// non-decreasing SentAt order; equal timestamps keep arrival order. Server
// messages are unique by ID.
type Timeline struct {
	msgs []models.Message
	ids  map[int64]struct{}
}

func NewTimeline() *Timeline {
	return &Timeline{ids: make(map[int64]struct{})}
}

// Insert places m at its position and reports whether it was added. A message
// whose ID is already present is dropped.
func (t *Timeline) Insert(m models.Message) bool {
	if m.ID != 0 {
		if _, ok := t.ids[m.ID]; ok {
			return false
		}
		t.ids[m.ID] = struct{}{}
	}
	i := sort.Search(len(t.msgs), func(i int) bool {
		return t.msgs[i].SentAt.After(m.SentAt)
	})
	t.msgs = append(t.msgs, models.Message{})
	copy(t.msgs[i+1:], t.msgs[i:])
	t.msgs[i] = m
	return true
}

// Replace swaps in a freshly fetched history. Pending placeholders survive
// unless a history entry confirms them; each entry confirms at most one.
func (t *Timeline) Replace(history []models.Message) {
	used := make([]bool, len(history))
	var pending []models.Message
	for _, m := range t.msgs {
		if m.Pending() && !confirmedBy(m, history, used) {
			pending = append(pending, m)
		}
	}
	t.msgs = make([]models.Message, 0, len(history)+len(pending))
	t.ids = make(map[int64]struct{}, len(history))
	for _, m := range history {
		t.Insert(m)
	}
	for _, m := range pending {
		t.Insert(m)
	}
}

func confirmedBy(p models.Message, history []models.Message, used []bool) bool {
	for i, m := range history {
		if !used[i] && confirms(m, p) {
			used[i] = true
			return true
		}
	}
	return false
}

func confirms(m, p models.Message) bool {
	return m.Sender.ID == p.Sender.ID && m.Content == p.Content
}

// Resolve inserts a server message, first removing the oldest pending
// placeholder it confirms. A message already present changes nothing.
func (t *Timeline) Resolve(m models.Message) bool {
	if m.ID != 0 && t.Contains(m.ID) {
		return false
	}
	for i, p := range t.msgs {
		if p.Pending() && confirms(m, p) {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			break
		}
	}
	return t.Insert(m)
}

// Drop removes the placeholder with the given client key.
func (t *Timeline) Drop(clientKey string) {
	for i, p := range t.msgs {
		if p.ClientKey == clientKey && p.Pending() {
			t.msgs = append(t.msgs[:i], t.msgs[i+1:]...)
			return
		}
	}
}

func (t *Timeline) Contains(id int64) bool {
	_, ok := t.ids[id]
	return ok
}

func (t *Timeline) Len() int { return len(t.msgs) }

func (t *Timeline) Messages() []models.Message {
	return append([]models.Message(nil), t.msgs...)
}

// DedupChats drops repeated chat ids, keeping the first occurrence.
func DedupChats(chats []models.Chat) []models.Chat {
	seen := make(map[int64]struct{}, len(chats))
	out := make([]models.Chat, 0, len(chats))
	for _, c := range chats {
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		out = append(out, c)
	}
	return out
}

// FilterChats keeps chats whose peer's first name, second name or username
// contains query, ignoring case. An empty query keeps everything.
func FilterChats(chats []models.Chat, self models.UserID, query string) []models.Chat {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return chats
	}
	var out []models.Chat
	for _, c := range chats {
		peer, ok := c.Peer(self)
		if !ok {
			continue
		}
		for _, field := range []string{peer.FirstName, peer.SecondName, peer.Username} {
			if strings.Contains(strings.ToLower(field), query) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// FindChatWith returns the first chat that includes peer.
func FindChatWith(chats []models.Chat, peer models.UserID) (models.Chat, bool) {
	for _, c := range chats {
		if c.HasParticipant(peer) {
			return c, true
		}
	}
	return models.Chat{}, false
}
