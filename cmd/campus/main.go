package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/api"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/chat"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/config"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/feed"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/models"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/notify"
	"github.com/ziyatovanazokat5-cmd/social-campus-stream/internal/session"
)

const usage = `usage: campus [-v] <command> [args]

commands:
  login <username>              log in (password read from stdin)
  register <username>           create an account and log in
  logout                        forget the stored session
  whoami                        show the current session
  feed [userId]                 list posts
  post <text>                   publish a post
  like <postId>                 like or unlike a post
  comment <postId> <text>       comment on a post
  anon                          list the anonymous wall
  anon-comment <id> <text>      comment on an anonymous message
  chats [query]                 list chats, optionally filtered by name
  chat <username|userId>        open an interactive chat
`

func setupLogger(verbose bool) *log.Logger {
	if !verbose {
		return log.New(io.Discard, "", 0)
	}
	return log.New(os.Stderr, "[CAMPUS] ", log.LstdFlags|log.Lshortfile)
}

type app struct {
	cfg      *config.Config
	logger   *log.Logger
	store    *session.SQLiteStore
	holder   *session.Holder
	client   *api.Client
	notifier notify.Notifier
	stdin    *bufio.Reader
}

func main() {
	verbose := flag.Bool("v", false, "Log requests and connection events to stderr")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, setupLogger(*verbose))
	if err != nil {
		fmt.Fprintf(os.Stderr, "campus: %v\n", err)
		os.Exit(1)
	}
	defer a.store.Close()

	if err := a.run(ctx, flag.Arg(0), flag.Args()[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "campus: %v\n", err)
		os.Exit(1)
	}
}

func newApp(ctx context.Context, logger *log.Logger) (*app, error) {
	cfg := config.Load()

	store, err := session.OpenSQLiteStore(cfg.CleanSessionPath(), cfg.SessionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}
	holder := session.NewHolder(store, logger)
	if err := holder.Restore(ctx); err != nil {
		logger.Printf("Failed to restore session: %v", err)
	}

	client := api.NewClient(cfg.APIBaseURL, holder,
		api.WithScheme(cfg.AuthScheme),
		api.WithTimeout(cfg.RequestTimeout),
		api.WithLogger(logger),
		api.WithUnauthorizedHook(holder.ForceLogout),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		holder:   holder,
		client:   client,
		notifier: notify.Logger{Log: log.New(os.Stderr, "", 0)},
		stdin:    bufio.NewReader(os.Stdin),
	}, nil
}

var errNotLoggedIn = errors.New("not logged in, run: campus login <username>")

func (a *app) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "login":
		return a.login(ctx, args)
	case "register":
		return a.register(ctx, args)
	case "logout":
		return a.holder.Logout(ctx)
	case "whoami":
		return a.whoami()
	}

	if !a.holder.Current().Authenticated() {
		return errNotLoggedIn
	}
	switch cmd {
	case "feed":
		return a.feed(ctx, args)
	case "post":
		return a.post(ctx, args)
	case "like":
		return a.like(ctx, args)
	case "comment":
		return a.comment(ctx, args)
	case "anon":
		return a.anon(ctx)
	case "anon-comment":
		return a.anonComment(ctx, args)
	case "chats":
		return a.chats(ctx, args)
	case "chat":
		return a.chat(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := a.stdin.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: campus login <username>")
	}
	password, err := a.prompt("Password: ")
	if err != nil {
		return err
	}
	token, err := a.client.Login(ctx, args[0], password)
	if err != nil {
		return err
	}
	return a.startSession(ctx, token)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	first := fs.String("first", "", "First name")
	second := fs.String("second", "", "Second name")
	group := fs.String("group", "", "Study group")
	bio := fs.String("bio", "", "Bio")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: campus register [-first name] [-second name] [-group g] [-bio text] <username>")
	}
	password, err := a.prompt("Password: ")
	if err != nil {
		return err
	}
	token, err := a.client.Register(ctx, models.RegisterRequest{
		Username:   fs.Arg(0),
		Password:   password,
		FirstName:  *first,
		SecondName: *second,
		Group:      *group,
		Bio:        *bio,
	})
	if err != nil {
		return err
	}
	return a.startSession(ctx, token)
}

func (a *app) startSession(ctx context.Context, token string) error {
	user, err := a.client.ProfileWithToken(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if err := a.holder.Login(ctx, token, user); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s (@%s)\n", user.DisplayName(), user.Username)
	return nil
}

func (a *app) whoami() error {
	snap := a.holder.Current()
	if !snap.Authenticated() {
		fmt.Println(snap.State)
		return nil
	}
	u := snap.Session.User
	fmt.Printf("%s (@%s) id=%s group=%s\n", u.DisplayName(), u.Username, u.ID, u.Group)
	return nil
}

func (a *app) board() *feed.Board {
	return feed.NewBoard(api.PostLikes{Client: a.client}, api.PostLikes{Client: a.client},
		feed.Options{Logger: a.logger, Notifier: a.notifier})
}

func (a *app) postFeed(args []string) *feed.PostFeed {
	fetch := a.client.Posts
	if len(args) > 0 {
		author := models.UserID(args[0])
		fetch = func(ctx context.Context) ([]models.Post, error) {
			return a.client.PostsByUser(ctx, author)
		}
	}
	return feed.NewPostFeed(fetch, a.board())
}

func (a *app) feed(ctx context.Context, args []string) error {
	f := a.postFeed(args)
	if err := f.Load(ctx); err != nil {
		return err
	}
	self := a.holder.Current().Session.UserID()
	for _, p := range f.Posts() {
		printPost(p, self)
	}
	return nil
}

func printPost(p models.Post, self models.UserID) {
	author := "Unknown user"
	if p.Author != nil {
		author = p.Author.DisplayName()
	}
	mark := " "
	if feed.Liked(p.Likes, self) {
		mark = "*"
	}
	fmt.Printf("#%d %s  %s\n", p.ID, author, p.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("  %s\n", p.Content)
	fmt.Printf("  %s%d likes, %d comments, %d views\n", mark, len(p.Likes), len(p.Comments), p.Views)
	for _, c := range p.Comments {
		fmt.Printf("    %s: %s\n", c.AuthorName(), c.Text)
	}
}

func (a *app) post(ctx context.Context, args []string) error {
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		return errors.New("usage: campus post <text>")
	}
	p, err := a.client.CreatePost(ctx, text, nil)
	if err != nil {
		return err
	}
	fmt.Printf("Posted #%d\n", p.ID)
	return nil
}

func parseResourceID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

func (a *app) like(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: campus like <postId>")
	}
	id, err := parseResourceID(args[0])
	if err != nil {
		return err
	}
	f := a.postFeed(nil)
	if err := f.Load(ctx); err != nil {
		return err
	}
	if _, ok := f.Post(id); !ok {
		return fmt.Errorf("post %d not found", id)
	}
	me := a.holder.Current().Session.User
	if err := f.Toggle(ctx, id, me); err != nil {
		return err
	}
	p, _ := f.Post(id)
	if feed.Liked(p.Likes, me.ID) {
		fmt.Printf("Liked #%d (%d likes)\n", id, len(p.Likes))
	} else {
		fmt.Printf("Unliked #%d (%d likes)\n", id, len(p.Likes))
	}
	return nil
}

func (a *app) comment(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: campus comment <postId> <text>")
	}
	id, err := parseResourceID(args[0])
	if err != nil {
		return err
	}
	f := a.postFeed(nil)
	if err := f.Load(ctx); err != nil {
		return err
	}
	if err := f.Comment(ctx, id, a.holder.Current().Session.User, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Printf("Commented on #%d\n", id)
	return nil
}

func (a *app) anonFeed() *feed.AnonymousFeed {
	board := feed.NewBoard(nil, api.AnonymousComments{Client: a.client},
		feed.Options{Logger: a.logger, Notifier: a.notifier})
	return feed.NewAnonymousFeed(a.client.AnonymousMessages, board)
}

func (a *app) anon(ctx context.Context) error {
	f := a.anonFeed()
	if err := f.Load(ctx); err != nil {
		return err
	}
	for _, m := range f.Messages() {
		fmt.Printf("#%d  %s\n", m.ID, m.CreatedAt.Local().Format("2006-01-02 15:04"))
		fmt.Printf("  %s\n", m.Message)
		for _, c := range m.Comments {
			fmt.Printf("    %s: %s\n", c.AuthorName(), c.Text)
		}
	}
	return nil
}

func (a *app) anonComment(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: campus anon-comment <id> <text>")
	}
	id, err := parseResourceID(args[0])
	if err != nil {
		return err
	}
	f := a.anonFeed()
	if err := f.Load(ctx); err != nil {
		return err
	}
	if err := f.Comment(ctx, id, strings.Join(args[1:], " ")); err != nil {
		return err
	}
	fmt.Printf("Commented on #%d\n", id)
	return nil
}

func (a *app) chats(ctx context.Context, args []string) error {
	self := a.holder.Current().Session.UserID()
	list, err := a.client.UserChats(ctx, self)
	if err != nil {
		return err
	}
	list = chat.DedupChats(list)
	if len(args) > 0 {
		list = chat.FilterChats(list, self, strings.Join(args, " "))
	}
	for _, c := range list {
		name := "Unknown user"
		if peer, ok := c.Peer(self); ok {
			name = peer.DisplayName()
		}
		fmt.Printf("#%d  %s\n", c.ID, name)
	}
	return nil
}
