package api

import (
	"context"
	"net/http"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

// UserChats lists the chats userID takes part in. The list may contain the
// same chat more than once; callers deduplicate.
func (c *Client) UserChats(ctx context.Context, userID models.UserID) ([]models.Chat, error) {
	var chats []models.Chat
	err := c.get(ctx, idPath("chats", "user", userID), &chats)
	return chats, err
}

func (c *Client) CreateChat(ctx context.Context, userIDs ...models.UserID) (models.Chat, error) {
	var chat models.Chat
	err := c.sendJSON(ctx, http.MethodPost, "/chats", models.CreateChatRequest{UserIDs: userIDs}, &chat)
	return chat, err
}

func (c *Client) ChatMessages(ctx context.Context, chatID int64) ([]models.Message, error) {
	var msgs []models.Message
	err := c.get(ctx, idPath("messages", "chat", chatID), &msgs)
	return msgs, err
}

func (c *Client) MarkRead(ctx context.Context, chatID int64, userID models.UserID) error {
	return c.sendJSON(ctx, http.MethodPost, "/messages/read", models.MarkReadRequest{
		ChatID: chatID,
		UserID: userID,
	}, nil)
}
