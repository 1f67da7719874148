package devserver

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/db"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrAlreadyLiked = errors.New("already liked")
	ErrUserExists   = errors.New("username already exists")
)

// Schema is the devserver database layout.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT UNIQUE NOT NULL,
		password TEXT NOT NULL,
		first_name TEXT NOT NULL DEFAULT '',
		second_name TEXT NOT NULL DEFAULT '',
		third_name TEXT NOT NULL DEFAULT '',
		bio TEXT NOT NULL DEFAULT '',
		group_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'student',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		author_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (author_id) REFERENCES users(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS likes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		UNIQUE (post_id, user_id),
		FOREIGN KEY (post_id) REFERENCES posts(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		post_id INTEGER NOT NULL,
		user_id INTEGER,
		anonymous_id INTEGER,
		text TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS anonymous_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		message TEXT NOT NULL,
		views INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS chat_participants (
		chat_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		PRIMARY KEY (chat_id, user_id),
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL,
		sender_id INTEGER NOT NULL,
		receiver_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		is_read BOOLEAN NOT NULL DEFAULT 0,
		sent_at DATETIME NOT NULL,
		FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS subscriptions (
		follower_id INTEGER NOT NULL,
		target_id INTEGER NOT NULL,
		PRIMARY KEY (follower_id, target_id)
	)`,
}

type userRow struct {
	ID         int64     `db:"id"`
	Username   string    `db:"username"`
	Password   string    `db:"password"`
	FirstName  string    `db:"first_name"`
	SecondName string    `db:"second_name"`
	ThirdName  string    `db:"third_name"`
	Bio        string    `db:"bio"`
	Group      string    `db:"group_name"`
	Role       string    `db:"role"`
	CreatedAt  time.Time `db:"created_at"`
}

func (u userRow) model() models.User {
	return models.User{
		ID:         userID(u.ID),
		Username:   u.Username,
		FirstName:  u.FirstName,
		SecondName: u.SecondName,
		ThirdName:  u.ThirdName,
		Bio:        u.Bio,
		Group:      u.Group,
		Role:       u.Role,
	}
}

func userID(id int64) models.UserID { return models.UserID(models.FormatID(id)) }

const userColumns = `id, username, password, first_name, second_name, third_name, bio, group_name, role, created_at`

// Store is the devserver's SQLite persistence.
type Store struct {
	db *db.DB
}

func OpenStore(path string) (*Store, error) {
	database, err := db.NewDB(path, Schema)
	if err != nil {
		return nil, err
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// User methods
func (s *Store) CreateUser(u userRow) (*userRow, error) {
	if u.Role == "" {
		u.Role = "student"
	}
	u.CreatedAt = time.Now().UTC()
	result, err := s.db.NamedExec(`
		INSERT INTO users (username, password, first_name, second_name, third_name, bio, group_name, role, created_at)
		VALUES (:username, :password, :first_name, :second_name, :third_name, :bio, :group_name, :role, :created_at)
	`, u)
	if err != nil {
		if _, lookupErr := s.GetUserByUsername(u.Username); lookupErr == nil {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	u.ID = id
	return &u, nil
}

func (s *Store) GetUserByUsername(username string) (*userRow, error) {
	var u userRow
	err := s.db.Get(&u, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return &u, notFound(err)
}

func (s *Store) GetUserByID(id int64) (*userRow, error) {
	var u userRow
	err := s.db.Get(&u, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return &u, notFound(err)
}

func (s *Store) GetAllUsers() ([]models.User, error) {
	return s.selectUsers(`SELECT ` + userColumns + ` FROM users ORDER BY username`)
}

func (s *Store) GetAdmins() ([]models.User, error) {
	return s.selectUsers(`SELECT `+userColumns+` FROM users WHERE role = ? ORDER BY username`, "admin")
}

func (s *Store) selectUsers(query string, args ...interface{}) ([]models.User, error) {
	var rows []userRow
	if err := s.db.Select(&rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.model())
	}
	return users, nil
}

func (s *Store) UpdateUser(id int64, update models.ProfileUpdate) (*userRow, error) {
	_, err := s.db.Exec(`
		UPDATE users SET
			first_name = COALESCE(NULLIF(?, ''), first_name),
			second_name = COALESCE(NULLIF(?, ''), second_name),
			third_name = COALESCE(NULLIF(?, ''), third_name),
			bio = COALESCE(NULLIF(?, ''), bio),
			group_name = COALESCE(NULLIF(?, ''), group_name)
		WHERE id = ?
	`, update.FirstName, update.SecondName, update.ThirdName, update.Bio, update.Group, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return s.GetUserByID(id)
}

func (s *Store) DeleteUser(id int64) error {
	result, err := s.db.Exec(`DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return affected(result)
}

func (s *Store) Subscribe(follower, target int64) error {
	_, err := s.db.Exec(`INSERT OR IGNORE INTO subscriptions (follower_id, target_id) VALUES (?, ?)`, follower, target)
	return err
}

func (s *Store) Unsubscribe(follower, target int64) error {
	_, err := s.db.Exec(`DELETE FROM subscriptions WHERE follower_id = ? AND target_id = ?`, follower, target)
	return err
}

// Post methods
type postRow struct {
	ID        int64     `db:"id"`
	AuthorID  int64     `db:"author_id"`
	Content   string    `db:"content"`
	Views     int       `db:"views"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreatePost(authorID int64, content string) (*models.Post, error) {
	result, err := s.db.Exec(`INSERT INTO posts (author_id, content, created_at) VALUES (?, ?, ?)`,
		authorID, content, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create post: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetPost(id)
}

func (s *Store) GetPost(id int64) (*models.Post, error) {
	var row postRow
	if err := notFound(s.db.Get(&row, `SELECT id, author_id, content, views, created_at FROM posts WHERE id = ?`, id)); err != nil {
		return nil, err
	}
	posts, err := s.hydratePosts([]postRow{row})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// GetPosts lists posts newest first. authorID of zero lists everyone's.
func (s *Store) GetPosts(authorID int64) ([]models.Post, error) {
	var rows []postRow
	var err error
	if authorID != 0 {
		err = s.db.Select(&rows, `SELECT id, author_id, content, views, created_at FROM posts WHERE author_id = ? ORDER BY created_at DESC, id DESC`, authorID)
	} else {
		err = s.db.Select(&rows, `SELECT id, author_id, content, views, created_at FROM posts ORDER BY created_at DESC, id DESC`)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query posts: %w", err)
	}
	return s.hydratePosts(rows)
}

func (s *Store) hydratePosts(rows []postRow) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(rows))
	for _, r := range rows {
		author, err := s.GetUserByID(r.AuthorID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		p := models.Post{
			ID:        r.ID,
			Content:   r.Content,
			Views:     r.Views,
			CreatedAt: r.CreatedAt,
			Media:     []models.Media{},
		}
		if err == nil {
			u := author.model()
			p.Author = &u
		}
		if p.Likes, err = s.likes(r.ID); err != nil {
			return nil, err
		}
		if p.Comments, err = s.comments(`post_id = ?`, r.ID); err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, nil
}

type likeRow struct {
	ID     int64 `db:"id"`
	UserID int64 `db:"user_id"`
}

func (s *Store) likes(postID int64) ([]models.Like, error) {
	var rows []likeRow
	if err := s.db.Select(&rows, `SELECT id, user_id FROM likes WHERE post_id = ? ORDER BY id`, postID); err != nil {
		return nil, fmt.Errorf("failed to query likes: %w", err)
	}
	likes := make([]models.Like, 0, len(rows))
	for _, r := range rows {
		likes = append(likes, models.Like{ID: r.ID, User: models.UserRef{ID: userID(r.UserID)}})
	}
	return likes, nil
}

func (s *Store) Like(postID, userID int64) (int64, error) {
	if _, err := s.GetPost(postID); err != nil {
		return 0, err
	}
	var existing int64
	err := s.db.Get(&existing, `SELECT id FROM likes WHERE post_id = ? AND user_id = ?`, postID, userID)
	if err == nil {
		return 0, ErrAlreadyLiked
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}
	result, err := s.db.Exec(`INSERT INTO likes (post_id, user_id) VALUES (?, ?)`, postID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to like post: %w", err)
	}
	return result.LastInsertId()
}

// Unlike removes likeID from postID. Only the like's owner may remove it.
func (s *Store) Unlike(likeID, postID, userID int64) error {
	result, err := s.db.Exec(`DELETE FROM likes WHERE id = ? AND post_id = ? AND user_id = ?`, likeID, postID, userID)
	if err != nil {
		return fmt.Errorf("failed to unlike post: %w", err)
	}
	return affected(result)
}

type commentRow struct {
	ID        int64         `db:"id"`
	UserID    sql.NullInt64 `db:"user_id"`
	Text      string        `db:"text"`
	CreatedAt time.Time     `db:"created_at"`
}

func (s *Store) comments(where string, id int64) ([]models.Comment, error) {
	var rows []commentRow
	if err := s.db.Select(&rows, `SELECT id, user_id, text, created_at FROM comments WHERE `+where+` ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("failed to query comments: %w", err)
	}
	out := make([]models.Comment, 0, len(rows))
	for _, r := range rows {
		c := models.Comment{ID: r.ID, Text: r.Text, CreatedAt: r.CreatedAt}
		if r.UserID.Valid {
			if u, err := s.GetUserByID(r.UserID.Int64); err == nil {
				m := u.model()
				c.Author = &m
			}
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) AddComment(postID, userID int64, text string) (*models.Comment, error) {
	if _, err := s.GetPost(postID); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(`INSERT INTO comments (post_id, user_id, text, created_at) VALUES (?, ?, ?, ?)`,
		postID, userID, text, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	c := &models.Comment{ID: id, Text: text, CreatedAt: now}
	if u, err := s.GetUserByID(userID); err == nil {
		m := u.model()
		c.Author = &m
	}
	return c, nil
}

// Anonymous wall methods
type anonymousRow struct {
	ID        int64     `db:"id"`
	Message   string    `db:"message"`
	Views     int       `db:"views"`
	CreatedAt time.Time `db:"created_at"`
}

func (s *Store) CreateAnonymous(message string) (*models.AnonymousMessage, error) {
	result, err := s.db.Exec(`INSERT INTO anonymous_messages (message, created_at) VALUES (?, ?)`, message, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to create anonymous message: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return s.GetAnonymous(id)
}

func (s *Store) GetAnonymous(id int64) (*models.AnonymousMessage, error) {
	var row anonymousRow
	if err := notFound(s.db.Get(&row, `SELECT id, message, views, created_at FROM anonymous_messages WHERE id = ?`, id)); err != nil {
		return nil, err
	}
	return s.hydrateAnonymous(row)
}

func (s *Store) GetAllAnonymous() ([]models.AnonymousMessage, error) {
	var rows []anonymousRow
	if err := s.db.Select(&rows, `SELECT id, message, views, created_at FROM anonymous_messages ORDER BY created_at DESC, id DESC`); err != nil {
		return nil, fmt.Errorf("failed to query anonymous messages: %w", err)
	}
	out := make([]models.AnonymousMessage, 0, len(rows))
	for _, r := range rows {
		m, err := s.hydrateAnonymous(r)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

func (s *Store) hydrateAnonymous(r anonymousRow) (*models.AnonymousMessage, error) {
	comments, err := s.comments(`anonymous_id = ?`, r.ID)
	if err != nil {
		return nil, err
	}
	return &models.AnonymousMessage{
		ID:        r.ID,
		Message:   r.Message,
		Views:     r.Views,
		CreatedAt: r.CreatedAt,
		Media:     []models.Media{},
		Likes:     []models.Like{},
		Comments:  comments,
	}, nil
}

func (s *Store) AddAnonymousComment(id int64, text string) (*models.Comment, error) {
	if _, err := s.GetAnonymous(id); err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	result, err := s.db.Exec(`INSERT INTO comments (post_id, anonymous_id, text, created_at) VALUES (0, ?, ?, ?)`, id, text, now)
	if err != nil {
		return nil, fmt.Errorf("failed to add comment: %w", err)
	}
	cid, err := result.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.Comment{ID: cid, Text: text, CreatedAt: now}, nil
}

func (s *Store) DeleteAnonymous(id int64) error {
	result, err := s.db.Exec(`DELETE FROM anonymous_messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete anonymous message: %w", err)
	}
	return affected(result)
}

// Chat methods
type chatRow struct {
	ID          int64     `db:"id"`
	UpdatedAt   time.Time `db:"updated_at"`
	Participant int64     `db:"user_id"`
}

// GetUserChats returns one entry per participant row of every chat userID is
// in, so each chat appears once per member. Clients deduplicate by id.
func (s *Store) GetUserChats(userID int64) ([]models.Chat, error) {
	var rows []chatRow
	err := s.db.Select(&rows, `
		SELECT c.id, c.updated_at, cp.user_id
		FROM chats c
		JOIN chat_participants mine ON mine.chat_id = c.id AND mine.user_id = ?
		JOIN chat_participants cp ON cp.chat_id = c.id
		ORDER BY c.updated_at DESC, c.id DESC, cp.user_id
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query chats: %w", err)
	}

	chats := make([]models.Chat, 0, len(rows))
	for _, r := range rows {
		participants, err := s.participants(r.ID, r.Participant)
		if err != nil {
			return nil, err
		}
		chats = append(chats, models.Chat{ID: r.ID, Participants: participants, LastActivity: r.UpdatedAt})
	}
	return chats, nil
}

// participants lists a chat's members with first listed first.
func (s *Store) participants(chatID, first int64) ([]models.Participant, error) {
	ids, err := s.GetChatParticipantIDs(chatID)
	if err != nil {
		return nil, err
	}
	out := make([]models.Participant, 0, len(ids))
	for _, id := range ids {
		u, err := s.GetUserByID(id)
		if err != nil {
			continue
		}
		p := models.Participant{User: u.model()}
		if id == first {
			out = append([]models.Participant{p}, out...)
		} else {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Store) GetChatParticipantIDs(chatID int64) ([]int64, error) {
	var ids []int64
	if err := s.db.Select(&ids, `SELECT user_id FROM chat_participants WHERE chat_id = ? ORDER BY user_id`, chatID); err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	return ids, nil
}

// GetOrCreateChat returns the direct chat between a and b, creating it when
// missing.
func (s *Store) GetOrCreateChat(a, b int64) (*models.Chat, error) {
	var existing int64
	err := s.db.Get(&existing, `
		SELECT c.id
		FROM chats c
		JOIN chat_participants p1 ON p1.chat_id = c.id AND p1.user_id = ?
		JOIN chat_participants p2 ON p2.chat_id = c.id AND p2.user_id = ?
		LIMIT 1
	`, a, b)
	switch {
	case err == nil:
		return s.getChat(existing, a)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, fmt.Errorf("failed to query existing chat: %w", err)
	}

	var chatID int64
	err = s.tx(func(tx *sqlx.Tx) error {
		result, err := tx.Exec(`INSERT INTO chats (updated_at) VALUES (?)`, time.Now().UTC())
		if err != nil {
			return fmt.Errorf("failed to create chat: %w", err)
		}
		if chatID, err = result.LastInsertId(); err != nil {
			return err
		}
		for _, id := range []int64{a, b} {
			if _, err := tx.Exec(`INSERT INTO chat_participants (chat_id, user_id) VALUES (?, ?)`, chatID, id); err != nil {
				return fmt.Errorf("failed to add participant %d: %w", id, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.getChat(chatID, a)
}

func (s *Store) getChat(id, viewer int64) (*models.Chat, error) {
	var updated time.Time
	if err := notFound(s.db.Get(&updated, `SELECT updated_at FROM chats WHERE id = ?`, id)); err != nil {
		return nil, err
	}
	participants, err := s.participants(id, viewer)
	if err != nil {
		return nil, err
	}
	return &models.Chat{ID: id, Participants: participants, LastActivity: updated}, nil
}

type messageRow struct {
	ID         int64     `db:"id"`
	ChatID     int64     `db:"chat_id"`
	SenderID   int64     `db:"sender_id"`
	ReceiverID int64     `db:"receiver_id"`
	Content    string    `db:"content"`
	IsRead     bool      `db:"is_read"`
	SentAt     time.Time `db:"sent_at"`
}

func (r messageRow) model() models.Message {
	return models.Message{
		ID:       r.ID,
		ChatID:   r.ChatID,
		Sender:   models.UserRef{ID: userID(r.SenderID)},
		Receiver: models.UserRef{ID: userID(r.ReceiverID)},
		Content:  r.Content,
		IsRead:   r.IsRead,
		SentAt:   r.SentAt,
	}
}

// SaveMessage stores a message and bumps the chat's activity time.
func (s *Store) SaveMessage(chatID, senderID, receiverID int64, content string) (*models.Message, error) {
	row := messageRow{
		ChatID:     chatID,
		SenderID:   senderID,
		ReceiverID: receiverID,
		Content:    content,
		SentAt:     time.Now().UTC(),
	}
	err := s.tx(func(tx *sqlx.Tx) error {
		result, err := tx.NamedExec(`
			INSERT INTO messages (chat_id, sender_id, receiver_id, content, is_read, sent_at)
			VALUES (:chat_id, :sender_id, :receiver_id, :content, :is_read, :sent_at)
		`, row)
		if err != nil {
			return fmt.Errorf("failed to save message: %w", err)
		}
		if row.ID, err = result.LastInsertId(); err != nil {
			return err
		}
		_, err = tx.Exec(`UPDATE chats SET updated_at = ? WHERE id = ?`, row.SentAt, chatID)
		return err
	})
	if err != nil {
		return nil, err
	}
	m := row.model()
	return &m, nil
}

func (s *Store) GetChatMessages(chatID int64) ([]models.Message, error) {
	var rows []messageRow
	err := s.db.Select(&rows, `
		SELECT id, chat_id, sender_id, receiver_id, content, is_read, sent_at
		FROM messages
		WHERE chat_id = ?
		ORDER BY sent_at, id
	`, chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	out := make([]models.Message, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.model())
	}
	return out, nil
}

// MarkRead marks every message addressed to userID in chatID as read.
func (s *Store) MarkRead(chatID, userID int64) (int64, error) {
	result, err := s.db.Exec(`UPDATE messages SET is_read = 1 WHERE chat_id = ? AND receiver_id = ? AND is_read = 0`, chatID, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to mark messages read: %w", err)
	}
	return result.RowsAffected()
}

func (s *Store) tx(fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func affected(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
