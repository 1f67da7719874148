package devserver

import (
	"errors"
	"testing"
	"time"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createUser(t *testing.T, store *Store, username string) int64 {
	t.Helper()
	u, err := store.CreateUser(userRow{Username: username, Password: "x", FirstName: username})
	if err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	return u.ID
}

func TestCreateUserDuplicate(t *testing.T) {
	store := setupStore(t)
	createUser(t, store, "alice")

	_, err := store.CreateUser(userRow{Username: "alice", Password: "y"})
	if !errors.Is(err, ErrUserExists) {
		t.Errorf("expected ErrUserExists, got %v", err)
	}
}

func TestLikeOncePerUser(t *testing.T) {
	store := setupStore(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	post, err := store.CreatePost(alice, "hello")
	if err != nil {
		t.Fatalf("Failed to create post: %v", err)
	}
	likeID, err := store.Like(post.ID, bob)
	if err != nil {
		t.Fatalf("Failed to like: %v", err)
	}
	if _, err := store.Like(post.ID, bob); !errors.Is(err, ErrAlreadyLiked) {
		t.Errorf("expected ErrAlreadyLiked, got %v", err)
	}
	if err := store.Unlike(likeID, post.ID, alice); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected only the owner to unlike, got %v", err)
	}
	if err := store.Unlike(likeID, post.ID, bob); err != nil {
		t.Errorf("Failed to unlike: %v", err)
	}

	got, err := store.GetPost(post.ID)
	if err != nil {
		t.Fatalf("Failed to get post: %v", err)
	}
	if len(got.Likes) != 0 {
		t.Errorf("expected no likes, got %+v", got.Likes)
	}
	if got.Author == nil || got.Author.Username != "alice" {
		t.Errorf("expected author alice, got %+v", got.Author)
	}
}

func TestGetOrCreateChatIsIdempotent(t *testing.T) {
	store := setupStore(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")

	first, err := store.GetOrCreateChat(alice, bob)
	if err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}
	second, err := store.GetOrCreateChat(bob, alice)
	if err != nil {
		t.Fatalf("Failed to get chat: %v", err)
	}
	if first.ID != second.ID {
		t.Errorf("expected chat %d, got %d", first.ID, second.ID)
	}
	if len(second.Participants) != 2 || second.Participants[0].User.Username != "bob" {
		t.Errorf("expected viewer first, got %+v", second.Participants)
	}
}

func TestUserChatsHasRowPerParticipant(t *testing.T) {
	store := setupStore(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	carol := createUser(t, store, "carol")

	if _, err := store.GetOrCreateChat(alice, bob); err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}
	if _, err := store.GetOrCreateChat(alice, carol); err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}

	chats, err := store.GetUserChats(alice)
	if err != nil {
		t.Fatalf("Failed to get chats: %v", err)
	}
	if len(chats) != 4 {
		t.Errorf("expected 4 rows for 2 chats, got %d", len(chats))
	}
}

func TestMessagesOrderedAndMarkedRead(t *testing.T) {
	store := setupStore(t)
	alice := createUser(t, store, "alice")
	bob := createUser(t, store, "bob")
	chat, err := store.GetOrCreateChat(alice, bob)
	if err != nil {
		t.Fatalf("Failed to create chat: %v", err)
	}

	for _, content := range []string{"one", "two", "three"} {
		if _, err := store.SaveMessage(chat.ID, alice, bob, content); err != nil {
			t.Fatalf("Failed to save message: %v", err)
		}
		time.Sleep(time.Millisecond)
	}
	msgs, err := store.GetChatMessages(chat.ID)
	if err != nil {
		t.Fatalf("Failed to get messages: %v", err)
	}
	if len(msgs) != 3 || msgs[0].Content != "one" || msgs[2].Content != "three" {
		t.Fatalf("expected messages in send order, got %+v", msgs)
	}
	if msgs[0].Sender.ID != userID(alice) || msgs[0].Receiver.ID != userID(bob) {
		t.Errorf("expected alice -> bob, got %s -> %s", msgs[0].Sender.ID, msgs[0].Receiver.ID)
	}

	n, err := store.MarkRead(chat.ID, bob)
	if err != nil {
		t.Fatalf("Failed to mark read: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 messages marked, got %d", n)
	}
	if n, _ := store.MarkRead(chat.ID, bob); n != 0 {
		t.Errorf("expected nothing left to mark, got %d", n)
	}
}

func TestAnonymousComments(t *testing.T) {
	store := setupStore(t)
	msg, err := store.CreateAnonymous("psst")
	if err != nil {
		t.Fatalf("Failed to create anonymous message: %v", err)
	}
	if _, err := store.AddAnonymousComment(msg.ID, "who?"); err != nil {
		t.Fatalf("Failed to comment: %v", err)
	}
	if _, err := store.AddAnonymousComment(msg.ID+100, "nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	got, err := store.GetAnonymous(msg.ID)
	if err != nil {
		t.Fatalf("Failed to get anonymous message: %v", err)
	}
	if len(got.Comments) != 1 || got.Comments[0].Author != nil {
		t.Errorf("expected one authorless comment, got %+v", got.Comments)
	}
}
