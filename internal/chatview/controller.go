// Copyright (c) 2025 Encadri Project
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chatview binds one active conversation to a chat session and
// reconciles pushed events against the local message list shown to the
// user. This is the only place in the client with real state
// reconciliation: everything upstream is typed plumbing.
package chatview

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/bahadhay/encadri-tui/internal/api"
	"github.com/bahadhay/encadri-tui/internal/chat"
	"github.com/bahadhay/encadri-tui/internal/hub"
	"github.com/bahadhay/encadri-tui/internal/model"
)

// defaultHistoryLimit bounds the history fetch on a conversation switch.
const defaultHistoryLimit = 50

// typingInterval is the minimum gap between outbound typing signals and
// the quiet period after which typing stops automatically.
const typingInterval = 3 * time.Second

// cacheKeepFactor sizes the per-conversation cache retention relative to
// the history fetch limit.
const cacheKeepFactor = 4

// Errors returned by the controller.
var (
	// ErrNotBound indicates no conversation is currently active.
	ErrNotBound = errors.New("no active conversation")

	// ErrNoStagedFile indicates an attachment operation with nothing
	// staged.
	ErrNoStagedFile = errors.New("no staged attachment")

	// ErrAttachmentPending indicates a send was attempted while the
	// staged attachment had not been uploaded yet.
	ErrAttachmentPending = errors.New("staged attachment not uploaded")
)

// BindState describes the controller's binding to a conversation.
type BindState int

const (
	// Unbound means no partner is selected.
	Unbound BindState = iota
	// Switching means a conversation switch is in flight: the old room
	// has been left and the message list cleared, but the new room is
	// not joined yet.
	Switching
	// Bound means the active conversation is joined and live.
	Bound
)

// String returns a human-readable state name.
func (s BindState) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Switching:
		return "switching"
	case Bound:
		return "bound"
	default:
		return "unknown"
	}
}

// Partner identifies the active conversation counterpart. ProjectID
// scopes attachment uploads to the shared project.
type Partner struct {
	Email     string
	Name      string
	ProjectID string
}

// Session is the slice of the chat client the controller needs.
// *chat.Client satisfies it; tests substitute fakes.
type Session interface {
	JoinRoom(ctx context.Context, roomID string) error
	LeaveRoom(ctx context.Context, roomID string) error
	SendMessage(ctx context.Context, req chat.SendMessageRequest) error
	SendTypingIndicator(ctx context.Context, roomID string, isTyping bool) error
	MarkMessageAsRead(ctx context.Context, messageID string) error
	ToggleReaction(ctx context.Context, messageID, emoji string) error
	GetMessages(ctx context.Context, conversationID string, limit int, otherEmail string) ([]model.Message, error)
	Identity() hub.Identity
}

// DocumentService stores attachment files, returning durable references,
// and creates server-side notifications so the partner hears about new
// documents. *api.Client satisfies it.
type DocumentService interface {
	UploadDocument(ctx context.Context, projectID, filename, contentType string, r io.Reader) (*api.Document, error)
	CreateNotification(ctx context.Context, req api.CreateNotificationRequest) error
}

// HistoryCache is the optional local fallback for history fetches.
// *cache.MessageCache satisfies it.
type HistoryCache interface {
	History(conversationID string, limit int) ([]model.Message, error)
	Put(msg model.Message) error
	ReplaceConversation(conversationID string, msgs []model.Message) error
	Prune(conversationID string, keep int) error
}

// stagedFile is an attachment selected but not yet part of a message.
type stagedFile struct {
	name        string
	contentType string
	reader      io.Reader
	uploaded    *model.Attachment
}

// =============================================================================
// CHAT VIEW CONTROLLER
// =============================================================================

// Controller binds a single active conversation to a chat session. The
// local message list is a best-effort view of server state: pushed
// events mutate it, lookups that miss are logged and dropped, and
// nothing is queued for replay.
type Controller struct {
	session Session
	docs    DocumentService
	cache   HistoryCache
	logger  *log.Logger

	historyLimit int
	typingLimit  *rate.Limiter
	typingQuiet  time.Duration

	// spawn runs auto-read side effects off the event-handling flow so a
	// handler running on the connection's read loop never blocks on its
	// own invoke reply. Tests replace it with a synchronous runner.
	spawn func(func())

	// schedule arms the typing auto-stop timer. Tests replace it to fire
	// the callback deterministically.
	schedule func(d time.Duration, f func()) *time.Timer

	mu        sync.Mutex
	state     BindState
	partner   Partner
	roomID    string
	messages  []model.Message
	stale     bool
	staged    *stagedFile
	typing    *model.TypingSet
	stopTimer *time.Timer

	onChange func()
}

// New creates a controller over the given session.
func New(session Session, docs DocumentService) *Controller {
	return &Controller{
		session:      session,
		docs:         docs,
		logger:       log.Default(),
		historyLimit: defaultHistoryLimit,
		typingLimit:  rate.NewLimiter(rate.Every(typingInterval), 1),
		typingQuiet:  typingInterval,
		spawn:        func(f func()) { go f() },
		schedule:     time.AfterFunc,
		typing:       model.NewTypingSet(),
	}
}

// WithCache attaches a local history cache used as fallback when the
// server fetch fails.
func (c *Controller) WithCache(hc HistoryCache) *Controller {
	c.cache = hc
	return c
}

// WithLogger sets the logger for dropped-event diagnostics.
func (c *Controller) WithLogger(l *log.Logger) *Controller {
	if l != nil {
		c.logger = l
	}
	return c
}

// WithHistoryLimit bounds the history fetch on switch.
func (c *Controller) WithHistoryLimit(n int) *Controller {
	if n > 0 {
		c.historyLimit = n
	}
	return c
}

// WithTypingInterval sets both the outbound typing throttle and the quiet
// period after which typing stops automatically.
func (c *Controller) WithTypingInterval(d time.Duration) *Controller {
	if d > 0 {
		c.typingLimit = rate.NewLimiter(rate.Every(d), 1)
		c.typingQuiet = d
	}
	return c
}

// OnChange registers the repaint hook, called after every visible
// mutation of the view state.
func (c *Controller) OnChange(f func()) {
	c.mu.Lock()
	c.onChange = f
	c.mu.Unlock()
}

// =============================================================================
// CONVERSATION SWITCH
// =============================================================================

// SwitchTo makes the given partner the active conversation. In order: it
// leaves the previous room, clears the local list, fetches history for
// the new pair, then joins the new room. A failed history fetch falls
// back to the cache and marks the view stale; a failed join aborts the
// switch and leaves the controller unbound.
func (c *Controller) SwitchTo(ctx context.Context, p Partner) error {
	self := c.session.Identity().Email
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if p.Email == "" {
		return fmt.Errorf("partner email is empty")
	}
	newRoom := model.RoomID(self, p.Email)

	c.mu.Lock()
	oldState := c.state
	oldRoom := c.roomID
	c.state = Switching
	c.partner = p
	c.roomID = newRoom
	c.messages = nil
	c.stale = false
	c.staged = nil
	c.typing = model.NewTypingSet()
	c.cancelAutoStopLocked()
	c.mu.Unlock()
	c.notify()

	if oldState == Bound && oldRoom != "" {
		if err := c.session.LeaveRoom(ctx, oldRoom); err != nil {
			// The server expires memberships on its own; log and move on.
			c.logger.Printf("chatview: leave %s failed: %v", oldRoom, err)
		}
	}

	msgs, err := c.session.GetMessages(ctx, newRoom, c.historyLimit, p.Email)
	stale := false
	if err != nil {
		c.logger.Printf("chatview: history fetch for %s failed: %v", newRoom, err)
		msgs = c.cachedHistory(newRoom)
		stale = true
	} else if c.cache != nil {
		if cerr := c.cache.ReplaceConversation(newRoom, msgs); cerr != nil {
			c.logger.Printf("chatview: cache write for %s failed: %v", newRoom, cerr)
		}
	}

	c.mu.Lock()
	if c.roomID != newRoom {
		// A later switch superseded this one.
		c.mu.Unlock()
		return nil
	}
	c.messages = msgs
	c.stale = stale
	c.mu.Unlock()
	c.notify()

	c.mu.Lock()
	if c.roomID != newRoom {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.session.JoinRoom(ctx, newRoom); err != nil {
		c.mu.Lock()
		if c.roomID == newRoom {
			c.state = Unbound
		}
		c.mu.Unlock()
		c.notify()
		return fmt.Errorf("join %s: %w", newRoom, err)
	}

	c.mu.Lock()
	if c.roomID != newRoom {
		// A later switch won while the join was in flight; withdraw the
		// stale membership so it is not rejoined on reconnect.
		c.mu.Unlock()
		if lerr := c.session.LeaveRoom(ctx, newRoom); lerr != nil {
			c.logger.Printf("chatview: leave superseded %s failed: %v", newRoom, lerr)
		}
		return nil
	}
	c.state = Bound
	c.mu.Unlock()
	c.notify()
	return nil
}

// Close leaves the active room and unbinds.
func (c *Controller) Close(ctx context.Context) error {
	c.mu.Lock()
	state := c.state
	room := c.roomID
	c.state = Unbound
	c.partner = Partner{}
	c.roomID = ""
	c.messages = nil
	c.staged = nil
	c.typing = model.NewTypingSet()
	c.cancelAutoStopLocked()
	c.mu.Unlock()
	c.notify()

	if state == Bound && room != "" {
		return c.session.LeaveRoom(ctx, room)
	}
	return nil
}

func (c *Controller) cachedHistory(roomID string) []model.Message {
	if c.cache == nil {
		return nil
	}
	msgs, err := c.cache.History(roomID, c.historyLimit)
	if err != nil {
		c.logger.Printf("chatview: cache read for %s failed: %v", roomID, err)
		return nil
	}
	return msgs
}

// =============================================================================
// EVENT RECONCILIATION
// =============================================================================

// HandleMessage reconciles a pushed message. Messages outside the active
// pair are dropped at this layer; accepted unread messages from the
// partner trigger the auto-read side effect exactly once.
func (c *Controller) HandleMessage(msg model.Message) {
	self := c.session.Identity().Email

	c.mu.Lock()
	if c.state == Unbound || !msg.Between(self, c.partner.Email) {
		c.mu.Unlock()
		return
	}

	markRead := !msg.IsFromSelf(self) && !msg.IsRead
	if markRead {
		// Flip before the async invoke so a duplicate push of the same
		// transition cannot produce a second call.
		msg.IsRead = true
	}
	c.messages = append(c.messages, msg)
	c.typing.Apply(model.TypingIndicator{RoomID: c.roomID, UserEmail: msg.SenderEmail, IsTyping: false})
	c.mu.Unlock()
	c.notify()

	if c.cache != nil && msg.ID != "" {
		if err := c.cache.Put(msg); err != nil {
			c.logger.Printf("chatview: cache put %s failed: %v", msg.ID, err)
		} else if err := c.cache.Prune(msg.ConversationID, c.historyLimit*cacheKeepFactor); err != nil {
			c.logger.Printf("chatview: cache prune %s failed: %v", msg.ConversationID, err)
		}
	}

	if markRead {
		id := msg.ID
		c.spawn(func() {
			if err := c.session.MarkMessageAsRead(context.Background(), id); err != nil {
				c.logger.Printf("chatview: mark read %s failed: %v", id, err)
			}
		})
	}
}

// HandleReadReceipt marks a local message read. Receipts for messages
// not in the current view are logged and dropped, never queued.
func (c *Controller) HandleReadReceipt(r chat.ReadReceipt) {
	c.mu.Lock()
	idx := c.indexOfLocked(r.MessageID)
	if idx < 0 {
		c.mu.Unlock()
		c.logger.Printf("chatview: read receipt for unknown message %s dropped", r.MessageID)
		return
	}
	if c.messages[idx].IsRead && c.messages[idx].ReadAt != nil {
		c.mu.Unlock()
		return
	}
	c.messages[idx].IsRead = true
	at := r.ReadAt
	c.messages[idx].ReadAt = &at
	c.mu.Unlock()
	c.notify()
}

// HandleReaction replaces a local message's reaction list with the
// pushed snapshot. The server is authoritative: no merging.
func (c *Controller) HandleReaction(u chat.ReactionUpdate) {
	c.mu.Lock()
	idx := c.indexOfLocked(u.MessageID)
	if idx < 0 {
		c.mu.Unlock()
		c.logger.Printf("chatview: reaction update for unknown message %s dropped", u.MessageID)
		return
	}
	c.messages[idx].Reactions = u.Reactions
	c.mu.Unlock()
	c.notify()
}

// HandleTyping folds a typing indicator into the active conversation's
// transient typing set. Indicators for other rooms or from self are
// ignored.
func (c *Controller) HandleTyping(ind model.TypingIndicator) {
	self := c.session.Identity().Email
	c.mu.Lock()
	if c.state == Unbound || ind.RoomID != c.roomID || strings.EqualFold(ind.UserEmail, self) {
		c.mu.Unlock()
		return
	}
	c.typing.Apply(ind)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) indexOfLocked(messageID string) int {
	for i := range c.messages {
		if c.messages[i].ID == messageID {
			return i
		}
	}
	return -1
}

// =============================================================================
// SENDING
// =============================================================================

// Send submits a message to the active conversation. Delivery is
// fire-and-forget: the message appears locally only when the server
// echoes it back with an id. A staged attachment must be uploaded
// before send; its durable reference rides along in the DTO.
func (c *Controller) Send(ctx context.Context, content string, replyTo *model.ReplyRef) error {
	c.mu.Lock()
	if c.state != Bound {
		c.mu.Unlock()
		return ErrNotBound
	}
	if c.staged != nil && c.staged.uploaded == nil {
		c.mu.Unlock()
		return ErrAttachmentPending
	}
	req := chat.SendMessageRequest{
		ConversationID: c.roomID,
		RoomID:         c.roomID,
		RecipientEmail: c.partner.Email,
		Content:        content,
		Kind:           model.KindText,
		ReplyTo:        replyTo,
	}
	if c.staged != nil {
		req.Attachment = c.staged.uploaded
		req.Kind = kindFor(c.staged.uploaded.ContentType)
	}
	room := c.roomID
	c.mu.Unlock()

	if strings.TrimSpace(content) == "" && req.Attachment == nil {
		return fmt.Errorf("empty message")
	}

	if err := c.session.SendMessage(ctx, req); err != nil {
		return err
	}

	c.mu.Lock()
	if c.roomID == room {
		c.staged = nil
	}
	c.cancelAutoStopLocked()
	c.mu.Unlock()

	// Sending ends the typing state.
	if err := c.session.SendTypingIndicator(ctx, room, false); err != nil {
		c.logger.Printf("chatview: typing stop failed: %v", err)
	}
	return nil
}

// ToggleReaction toggles the actor's emoji on a message in the view.
func (c *Controller) ToggleReaction(ctx context.Context, messageID, emoji string) error {
	c.mu.Lock()
	if c.indexOfLocked(messageID) < 0 {
		c.mu.Unlock()
		return fmt.Errorf("message %s not in view", messageID)
	}
	c.mu.Unlock()
	return c.session.ToggleReaction(ctx, messageID, emoji)
}

// NotifyTyping signals that the user is typing, throttled so repeated
// keystrokes do not flood the hub. Every call re-arms the quiet-period
// timer: once no keystroke arrives for the typing interval, an automatic
// stop is sent so an abandoned draft never leaves the indicator stuck on
// the partner's screen.
func (c *Controller) NotifyTyping(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Bound {
		c.mu.Unlock()
		return ErrNotBound
	}
	room := c.roomID
	c.cancelAutoStopLocked()
	c.stopTimer = c.schedule(c.typingQuiet, func() { c.autoStopTyping(room) })
	c.mu.Unlock()

	if !c.typingLimit.Allow() {
		return nil
	}
	return c.session.SendTypingIndicator(ctx, room, true)
}

// StopTyping signals that the user stopped typing.
func (c *Controller) StopTyping(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Bound {
		c.mu.Unlock()
		return ErrNotBound
	}
	room := c.roomID
	c.cancelAutoStopLocked()
	c.mu.Unlock()
	return c.session.SendTypingIndicator(ctx, room, false)
}

// autoStopTyping fires when the quiet period elapses without another
// keystroke. A stale timer whose room is no longer active sends nothing.
func (c *Controller) autoStopTyping(room string) {
	c.mu.Lock()
	if c.state != Bound || c.roomID != room {
		c.mu.Unlock()
		return
	}
	c.stopTimer = nil
	c.mu.Unlock()

	if err := c.session.SendTypingIndicator(context.Background(), room, false); err != nil {
		c.logger.Printf("chatview: typing auto-stop failed: %v", err)
	}
}

func (c *Controller) cancelAutoStopLocked() {
	if c.stopTimer != nil {
		c.stopTimer.Stop()
		c.stopTimer = nil
	}
}

// =============================================================================
// ATTACHMENT STAGING
// =============================================================================

// StageFile stages an attachment for the next send. Staging replaces
// any previously staged file.
func (c *Controller) StageFile(name, contentType string, r io.Reader) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Unbound {
		return ErrNotBound
	}
	c.staged = &stagedFile{name: name, contentType: contentType, reader: r}
	return nil
}

// UploadStaged uploads the staged file through the document service and
// records the durable reference the next send will carry. The partner is
// notified about the new project document through the server.
func (c *Controller) UploadStaged(ctx context.Context) error {
	c.mu.Lock()
	if c.staged == nil {
		c.mu.Unlock()
		return ErrNoStagedFile
	}
	staged := c.staged
	partner := c.partner
	c.mu.Unlock()

	doc, err := c.docs.UploadDocument(ctx, partner.ProjectID, staged.name, staged.contentType, staged.reader)
	if err != nil {
		return fmt.Errorf("upload %s: %w", staged.name, err)
	}

	c.mu.Lock()
	if c.staged == staged {
		c.staged.uploaded = &model.Attachment{
			URL:         doc.URL,
			Name:        doc.Name,
			Size:        doc.Size,
			ContentType: doc.ContentType,
		}
	}
	c.mu.Unlock()
	c.notify()

	self := c.session.Identity()
	c.spawn(func() {
		req := api.CreateNotificationRequest{
			UserEmail: partner.Email,
			Type:      "document",
			Title:     doc.Name,
			Message:   self.Name + " shared a document",
			Link:      doc.URL,
		}
		if err := c.docs.CreateNotification(context.Background(), req); err != nil {
			c.logger.Printf("chatview: document notification failed: %v", err)
		}
	})
	return nil
}

// ClearStaged drops the staged attachment.
func (c *Controller) ClearStaged() {
	c.mu.Lock()
	c.staged = nil
	c.mu.Unlock()
	c.notify()
}

// StagedAttachment returns the uploaded reference of the staged file, if
// any, and whether a file is staged at all.
func (c *Controller) StagedAttachment() (*model.Attachment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staged == nil {
		return nil, false
	}
	return c.staged.uploaded, true
}

func kindFor(contentType string) model.Kind {
	if strings.HasPrefix(contentType, "image/") {
		return model.KindImage
	}
	return model.KindFile
}

// =============================================================================
// VIEW STATE
// =============================================================================

// State returns the binding state.
func (c *Controller) State() BindState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ActivePartner returns the active partner, if bound or switching.
func (c *Controller) ActivePartner() (Partner, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Unbound {
		return Partner{}, false
	}
	return c.partner, true
}

// RoomID returns the active conversation id.
func (c *Controller) RoomID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// Messages returns a copy of the local message list, oldest first.
func (c *Controller) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Message{}, c.messages...)
}

// Stale reports whether the view is showing cached history because the
// server fetch failed.
func (c *Controller) Stale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stale
}

// TypingUsers returns who is currently typing in the active
// conversation.
func (c *Controller) TypingUsers() []model.TypingIndicator {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.typing.Typing()
}

func (c *Controller) notify() {
	c.mu.Lock()
	f := c.onChange
	c.mu.Unlock()
	if f != nil {
		f()
	}
}
