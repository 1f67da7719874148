// Package devserver is a local stand-in for the Campus Stream backend. It
// serves the chat and feed subset of the REST API plus the realtime socket,
// including the quirks real clients have to cope with: chat lists come back
// as bare arrays with one row per participant.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
)

type contextKey string

const (
	userContextKey contextKey = "user"

	maxFormMemory = 10 << 20
)

type Options struct {
	Secret   string
	TokenTTL time.Duration
	// Admins are usernames that get the admin role when they register.
	Admins []string
	// AllowedOrigins restricts browser origins for CORS and the socket
	// handshake. Requests without an Origin header are always accepted.
	AllowedOrigins []string
	Logger         *log.Logger
}

type Server struct {
	store    *Store
	hub      *Hub
	secret   []byte
	ttl      time.Duration
	admins   map[string]bool
	origins  map[string]bool
	logger   *log.Logger
	upgrader gorilla.Upgrader
}

func NewServer(store *Store, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	ttl := opts.TokenTTL
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	s := &Server{
		store:   store,
		hub:     NewHub(store, logger),
		secret:  []byte(opts.Secret),
		ttl:     ttl,
		admins:  make(map[string]bool),
		origins: make(map[string]bool),
		logger:  logger,
	}
	for _, a := range opts.Admins {
		s.admins[a] = true
	}
	for _, o := range opts.AllowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.originAllowed,
	}
	return s
}

// Run serves the realtime hub until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.Run(ctx)
}

func (s *Server) Hub() *Hub { return s.hub }

// Routes registers every endpoint on mux. wrap is applied to each REST
// handler; the socket endpoint is registered unwrapped.
func (s *Server) Routes(mux *http.ServeMux, wrap func(http.HandlerFunc) http.HandlerFunc) {
	if wrap == nil {
		wrap = func(h http.HandlerFunc) http.HandlerFunc { return h }
	}
	mux.HandleFunc("/ws", s.HandleWebSocket)

	mux.HandleFunc("/users/login", wrap(s.HandleLogin))
	mux.HandleFunc("/users/register", wrap(s.HandleRegister))
	mux.HandleFunc("/users/profile", wrap(s.HandleProfile))
	mux.HandleFunc("/users/update", wrap(s.HandleUpdateProfile))
	mux.HandleFunc("/users", wrap(s.HandleUsers))
	mux.HandleFunc("/users/", wrap(s.HandleUser))
	mux.HandleFunc("/admin", wrap(s.HandleAdmin))
	mux.HandleFunc("/subscriptions/", wrap(s.HandleSubscription))

	mux.HandleFunc("/posts", wrap(s.HandlePosts))
	mux.HandleFunc("/posts/", wrap(s.HandlePost))
	mux.HandleFunc("/likes/", wrap(s.HandleLikes))
	mux.HandleFunc("/comments/", wrap(s.HandleComment))

	mux.HandleFunc("/anonymous", wrap(s.HandleAnonymousList))
	mux.HandleFunc("/anonymous/", wrap(s.HandleAnonymous))
	mux.HandleFunc("/anonym-comments/", wrap(s.HandleAnonymousComment))

	mux.HandleFunc("/chats", wrap(s.HandleCreateChat))
	mux.HandleFunc("/chats/user/", wrap(s.HandleUserChats))
	mux.HandleFunc("/messages/chat/", wrap(s.HandleChatMessages))
	mux.HandleFunc("/messages/read", wrap(s.HandleMarkRead))
}

// Handler returns the complete devserver with authentication and CORS.
func (s *Server) Handler(wrap func(http.HandlerFunc) http.HandlerFunc) http.Handler {
	mux := http.NewServeMux()
	s.Routes(mux, wrap)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/ws" {
			s.HandleWebSocket(w, r)
			return
		}
		s.WithCORS(s.WithAuth(mux)).ServeHTTP(w, r)
	})
}

// IssueToken signs an access token for userID.
func (s *Server) IssueToken(userID int64) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     time.Now().Add(s.ttl).Unix(),
		"jti":     uuid.NewString(),
	})
	return token.SignedString(s.secret)
}

// authenticate resolves the user an Authorization header value belongs to.
// Both "Bearer <token>" and the bare token are accepted.
func (s *Server) authenticate(header string) (*userRow, error) {
	raw := strings.TrimSpace(header)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}
	if raw == "" {
		return nil, errors.New("missing token")
	}

	claims := jwt.MapClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, fmt.Errorf("invalid token: %v", err)
	}

	exp, ok := claims["exp"].(float64)
	if !ok || int64(exp) < time.Now().Unix() {
		return nil, errors.New("token expired")
	}
	userID, ok := claims["user_id"].(float64)
	if !ok {
		return nil, errors.New("invalid user ID in token")
	}
	user, err := s.store.GetUserByID(int64(userID))
	if err != nil {
		return nil, errors.New("user not found")
	}
	return user, nil
}

// Middleware
func (s *Server) WithAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/users/login" || r.URL.Path == "/users/register" {
			next.ServeHTTP(w, r)
			return
		}

		user, err := s.authenticate(r.Header.Get("Authorization"))
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) WithCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.origins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || s.origins[origin]
}

func currentUser(r *http.Request) *userRow {
	user, _ := r.Context().Value(userContextKey).(*userRow)
	return user
}

func allowMethods(w http.ResponseWriter, r *http.Request, methods ...string) bool {
	for _, m := range methods {
		if r.Method == m {
			return true
		}
	}
	writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	return false
}

// Auth handlers
func (s *Server) HandleLogin(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}

	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := s.store.GetUserByUsername(req.Username)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}

	s.respondToken(w, http.StatusOK, user.ID)
}

func (s *Server) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid form")
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")
	if username == "" || password == "" {
		writeError(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	row := userRow{
		Username:   username,
		Password:   string(hashedPassword),
		FirstName:  r.FormValue("first_name"),
		SecondName: r.FormValue("second_name"),
		ThirdName:  r.FormValue("third_name"),
		Bio:        r.FormValue("bio"),
		Group:      r.FormValue("group"),
	}
	if s.admins[username] {
		row.Role = "admin"
	}
	user, err := s.store.CreateUser(row)
	if errors.Is(err, ErrUserExists) {
		writeError(w, http.StatusConflict, "Username already exists")
		return
	}
	if err != nil {
		s.logger.Printf("Failed to register %s: %v", username, err)
		writeError(w, http.StatusInternalServerError, "Failed to register")
		return
	}

	s.respondToken(w, http.StatusCreated, user.ID)
}

func (s *Server) respondToken(w http.ResponseWriter, status int, userID int64) {
	token, err := s.IssueToken(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create token")
		return
	}
	writeJSON(w, status, models.LoginResponse{AccessToken: token})
}

// User handlers
func (s *Server) HandleProfile(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	writeJSON(w, http.StatusOK, currentUser(r).model())
}

func (s *Server) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPatch) {
		return
	}
	var update models.ProfileUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	user, err := s.store.UpdateUser(currentUser(r).ID, update)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user.model())
}

func (s *Server) HandleUsers(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	users, err := s.store.GetAllUsers()
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleUser serves GET /users/one/{id} and DELETE /users/{id}.
func (s *Server) HandleUser(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/users/")
	switch {
	case len(parts) == 2 && parts[0] == "one" && r.Method == http.MethodGet:
		id, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		user, err := s.store.GetUserByID(id)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, user.model())

	case len(parts) == 1 && r.Method == http.MethodDelete:
		id, ok := parseID(w, parts[0])
		if !ok {
			return
		}
		me := currentUser(r)
		if me.ID != id && me.Role != "admin" {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		if err := s.store.DeleteUser(id); err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil)

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

// HandleAdmin lists administrators and is only available to them.
func (s *Server) HandleAdmin(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	if currentUser(r).Role != "admin" {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	admins, err := s.store.GetAdmins()
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, admins)
}

func (s *Server) HandleSubscription(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost, http.MethodDelete) {
		return
	}
	parts := pathParts(r, "/subscriptions/")
	if len(parts) != 2 {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	follower, ok := parseID(w, parts[0])
	if !ok {
		return
	}
	target, ok := parseID(w, parts[1])
	if !ok {
		return
	}
	if follower != currentUser(r).ID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}

	var err error
	if r.Method == http.MethodPost {
		err = s.store.Subscribe(follower, target)
	} else {
		err = s.store.Unsubscribe(follower, target)
	}
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// Post handlers
func (s *Server) HandlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		var author int64
		if v := r.URL.Query().Get("userId"); v != "" {
			id, ok := parseID(w, v)
			if !ok {
				return
			}
			author = id
		}
		posts, err := s.store.GetPosts(author)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, posts)

	case http.MethodPost:
		// media parts are accepted and discarded
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form")
			return
		}
		content := strings.TrimSpace(r.FormValue("content"))
		if content == "" {
			writeError(w, http.StatusBadRequest, "Content is required")
			return
		}
		post, err := s.store.CreatePost(currentUser(r).ID, content)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, post)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) HandlePost(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, ok := singleID(w, r, "/posts/")
	if !ok {
		return
	}
	post, err := s.store.GetPost(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// HandleLikes serves POST /likes/{postId} and DELETE /likes/{likeId}/{postId}.
// A repeated like is refused inside a 200 envelope with success false.
func (s *Server) HandleLikes(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r, "/likes/")
	me := currentUser(r)

	switch {
	case r.Method == http.MethodPost && len(parts) == 1:
		postID, ok := parseID(w, parts[0])
		if !ok {
			return
		}
		likeID, err := s.store.Like(postID, me.ID)
		if errors.Is(err, ErrAlreadyLiked) {
			writeError(w, http.StatusOK, "already liked")
			return
		}
		if err != nil {
			s.storeError(w, err)
			return
		}
		var res models.LikeResult
		res.Like.ID = likeID
		writeJSON(w, http.StatusCreated, res)

	case r.Method == http.MethodDelete && len(parts) == 2:
		likeID, ok := parseID(w, parts[0])
		if !ok {
			return
		}
		postID, ok := parseID(w, parts[1])
		if !ok {
			return
		}
		if err := s.store.Unlike(likeID, postID, me.ID); err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil)

	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (s *Server) HandleComment(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	postID, ok := singleID(w, r, "/comments/")
	if !ok {
		return
	}
	text, ok := commentText(w, r)
	if !ok {
		return
	}
	comment, err := s.store.AddComment(postID, currentUser(r).ID, text)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

// Anonymous wall handlers
func (s *Server) HandleAnonymousList(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		msgs, err := s.store.GetAllAnonymous()
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, msgs)

	case http.MethodPost:
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid form")
			return
		}
		message := strings.TrimSpace(r.FormValue("message"))
		if message == "" {
			writeError(w, http.StatusBadRequest, "Message is required")
			return
		}
		msg, err := s.store.CreateAnonymous(message)
		if err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, msg)

	default:
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

func (s *Server) HandleAnonymous(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodDelete) {
		return
	}
	id, ok := singleID(w, r, "/anonymous/")
	if !ok {
		return
	}

	if r.Method == http.MethodDelete {
		if currentUser(r).Role != "admin" {
			writeError(w, http.StatusForbidden, "Forbidden")
			return
		}
		if err := s.store.DeleteAnonymous(id); err != nil {
			s.storeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, nil)
		return
	}

	msg, err := s.store.GetAnonymous(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) HandleAnonymousComment(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	id, ok := singleID(w, r, "/anonym-comments/")
	if !ok {
		return
	}
	text, ok := commentText(w, r)
	if !ok {
		return
	}
	comment, err := s.store.AddAnonymousComment(id, text)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func commentText(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req models.CommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return "", false
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		writeError(w, http.StatusBadRequest, "Text is required")
		return "", false
	}
	return text, true
}

// Chat handlers

// HandleCreateChat returns the existing direct chat between the two users
// when there is one.
func (s *Server) HandleCreateChat(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req models.CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	me := currentUser(r)
	var others []int64
	includesMe := false
	for _, raw := range req.UserIDs {
		id, err := strconv.ParseInt(raw.String(), 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid user ID")
			return
		}
		if id == me.ID {
			includesMe = true
			continue
		}
		if !contains(others, id) {
			others = append(others, id)
		}
	}
	if !includesMe || len(others) != 1 {
		writeError(w, http.StatusBadRequest, "A chat needs you and exactly one other user")
		return
	}
	if _, err := s.store.GetUserByID(others[0]); err != nil {
		s.storeError(w, err)
		return
	}

	chat, err := s.store.GetOrCreateChat(me.ID, others[0])
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

// HandleUserChats responds with a bare array, one entry per participant row.
func (s *Server) HandleUserChats(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	id, ok := singleID(w, r, "/chats/user/")
	if !ok {
		return
	}
	if id != currentUser(r).ID {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	chats, err := s.store.GetUserChats(id)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeBare(w, http.StatusOK, chats)
}

func (s *Server) HandleChatMessages(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	chatID, ok := singleID(w, r, "/messages/chat/")
	if !ok {
		return
	}
	if !s.member(w, chatID, currentUser(r).ID) {
		return
	}
	msgs, err := s.store.GetChatMessages(chatID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (s *Server) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodPost) {
		return
	}
	var req models.MarkReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	me := currentUser(r)
	if req.UserID.String() != strconv.FormatInt(me.ID, 10) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return
	}
	if !s.member(w, req.ChatID, me.ID) {
		return
	}
	n, err := s.store.MarkRead(req.ChatID, me.ID)
	if err != nil {
		s.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"updated": n})
}

func (s *Server) member(w http.ResponseWriter, chatID, userID int64) bool {
	ids, err := s.store.GetChatParticipantIDs(chatID)
	if err != nil {
		s.storeError(w, err)
		return false
	}
	if len(ids) == 0 {
		writeError(w, http.StatusNotFound, "Chat not found")
		return false
	}
	if !contains(ids, userID) {
		writeError(w, http.StatusForbidden, "Forbidden")
		return false
	}
	return true
}

// WebSocket handler
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	s.logger.Printf("WebSocket connection attempt from %s", r.RemoteAddr)

	header := r.Header.Get("Authorization")
	if header == "" {
		header = r.URL.Query().Get("token")
	}
	user, err := s.authenticate(header)
	if err != nil {
		s.logger.Printf("Rejected WebSocket connection: %v", err)
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Printf("Failed to upgrade connection: %v", err)
		return
	}

	s.logger.Printf("WebSocket authenticated for user: %s (ID: %d)", user.Username, user.ID)

	p := &peer{
		hub:      s.hub,
		conn:     conn,
		send:     make(chan []byte, sendBuffer),
		userID:   user.ID,
		username: user.Username,
		id:       uuid.NewString(),
	}
	if !s.hub.add(p) {
		conn.Close()
		return
	}

	go p.WritePump()
	go p.ReadPump()
}

func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "Not found")
	default:
		s.logger.Printf("Store error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	writeBare(w, status, envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeBare(w, status, envelope{Success: false, Message: message})
}

func writeBare(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func pathParts(r *http.Request, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func singleID(w http.ResponseWriter, r *http.Request, prefix string) (int64, bool) {
	parts := pathParts(r, prefix)
	if len(parts) != 1 {
		writeError(w, http.StatusNotFound, "Not found")
		return 0, false
	}
	return parseID(w, parts[0])
}

func parseID(w http.ResponseWriter, s string) (int64, bool) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid ID")
		return 0, false
	}
	return id, true
}
