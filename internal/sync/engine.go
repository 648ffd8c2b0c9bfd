package sync

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lostfound/chatsync/internal/bus"
	"github.com/lostfound/chatsync/internal/chat"
	"github.com/lostfound/chatsync/internal/status"
	"go.uber.org/zap"
)

// MessageStore is the remote message API the engine reconciles against.
type MessageStore interface {
	History(ctx context.Context, roomID string) ([]chat.Message, error)
	Since(ctx context.Context, roomID string, cursorMs int64) ([]chat.Message, error)
	Persist(ctx context.Context, msg chat.Outgoing) (chat.Receipt, error)
}

// FileStore turns an upload into a durable URL.
type FileStore interface {
	Upload(ctx context.Context, f chat.Upload, uploadedBy string) (string, error)
}

const (
	DefaultPollInterval   = 3 * time.Second
	DefaultRequestTimeout = 15 * time.Second
	DefaultEchoWindow     = 30 * time.Second
)

// Options tunes the engine. Zero values take the defaults above.
type Options struct {
	PollInterval   time.Duration
	RequestTimeout time.Duration
	// EchoWindow is how far apart the timestamps of a pending send and its
	// server copy may be for the copy to be recognised as the same message.
	EchoWindow time.Duration
}

func (o Options) withDefaults() Options {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.EchoWindow <= 0 {
		o.EchoWindow = DefaultEchoWindow
	}
	return o
}

// Snapshot is an immutable view of the engine. Callers must not modify
// Messages or Room.
type Snapshot struct {
	State    status.State
	Room     *chat.Room
	Messages []chat.Message
	Cursor   int64
	Polling  bool
	Sending  int
	Draft    string
	Err      error
}

// roomSession is the lifetime of one room selection. Completion handlers
// compare their session with the current one and drop results on mismatch.
type roomSession struct {
	room     chat.Room
	ctx      context.Context
	cancel   context.CancelFunc
	inFlight atomic.Bool
}

// Engine keeps the ordered message list of the active room in step with the
// MessageStore. All operations return immediately; outcomes are observed
// through Snapshot, Updates and bus events.
type Engine struct {
	messages MessageStore
	files    FileStore
	self     chat.Session
	bus      *bus.Bus
	machine  *status.Machine
	logger   *zap.Logger
	opts     Options
	now      func() time.Time

	root       context.Context
	cancelRoot context.CancelFunc
	wg         sync.WaitGroup

	mu        sync.Mutex
	sess      *roomSession
	list      timeline
	cursor    int64
	seq       uint64
	echoes    map[string]chat.Message // pending local id -> its server copy
	unstamped map[string]bool         // confirmed sends still sorted by local time
	polling   bool
	sending   int
	draft     string
	lastErr   error
	closed    bool

	snap    atomic.Pointer[Snapshot]
	updates chan struct{}
}

// New creates an idle engine. files may be nil, in which case SendFile is
// rejected. machine may be nil to use a fresh one on b.
func New(messages MessageStore, files FileStore, self chat.Session, b *bus.Bus, machine *status.Machine, logger *zap.Logger, opts Options) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if machine == nil {
		machine = status.NewMachine(b)
	}
	root, cancel := context.WithCancel(context.Background())
	e := &Engine{
		messages:   messages,
		files:      files,
		self:       self,
		bus:        b,
		machine:    machine,
		logger:     logger.Named("sync"),
		opts:       opts.withDefaults(),
		now:        time.Now,
		root:       root,
		cancelRoot: cancel,
		echoes:     make(map[string]chat.Message),
		unstamped:  make(map[string]bool),
		updates:    make(chan struct{}, 1),
	}
	e.publishLocked()
	return e
}

// Self returns the identity messages are sent as.
func (e *Engine) Self() chat.Session { return e.self }

// Snapshot returns the latest published state.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// Updates signals after every published snapshot. Signals coalesce.
func (e *Engine) Updates() <-chan struct{} { return e.updates }

// SelectRoom makes room the active room. A nil room deselects.
func (e *Engine) SelectRoom(room *chat.Room) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}

	if room == nil {
		if e.sess == nil {
			return
		}
		e.endSessionLocked()
		e.resetLocked()
		e.transitionLocked(status.Idle)
		e.publishLocked()
		return
	}

	if e.sess != nil && e.sess.room.ID == room.ID && e.machine.Current() != status.LoadFailed {
		return
	}

	e.endSessionLocked()
	e.resetLocked()
	ctx, cancel := context.WithCancel(e.root)
	sess := &roomSession{room: *room, ctx: ctx, cancel: cancel}
	e.sess = sess
	e.transitionLocked(status.Loading)
	e.publishLocked()
	e.logger.Info("room selected", zap.String("room_id", room.ID))

	e.goLocked(func() { e.loadHistory(sess) })
}

// PollNow starts one poll of the active room unless one is already in
// flight. It reports whether a poll was started.
func (e *Engine) PollNow() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.sess == nil || !e.polling {
		return false
	}
	return e.startPoll(e.sess)
}

// SendText queues text for the active room. It returns false when text is
// blank or no room is selected.
func (e *Engine) SendText(text string) bool {
	if strings.TrimSpace(text) == "" {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.sess == nil {
		return false
	}
	sess := e.sess
	pending := e.queueLocked(sess, text, nil)
	out := chat.Outgoing{
		RoomID:        sess.room.ID,
		SenderEmail:   e.self.Email,
		ReceiverEmail: sess.room.PartnerEmail,
		Body:          text,
	}
	e.goLocked(func() { e.persist(sess, pending, out, text) })
	return true
}

// SendFile uploads f and then sends a message referencing it. It returns
// false when f is empty, no room is selected or no FileStore is configured.
func (e *Engine) SendFile(f chat.Upload) bool {
	if len(f.Data) == 0 || strings.TrimSpace(f.FileName) == "" {
		return false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.sess == nil || e.files == nil {
		return false
	}
	sess := e.sess
	pending := e.queueLocked(sess, "", &chat.Attachment{
		FileName:    f.FileName,
		SizeBytes:   int64(len(f.Data)),
		ContentType: f.ContentType,
	})
	e.goLocked(func() { e.sendFile(sess, pending, f) })
	return true
}

// MergeIncoming merges a batch of server messages into the active room's
// list. Messages already present, or for another room, are dropped.
func (e *Engine) MergeIncoming(batch []chat.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess == nil {
		return
	}
	prev := e.cursor
	added := e.mergeLocked(e.sess.room.ID, batch)
	if len(added) == 0 && e.cursor == prev {
		return
	}
	e.publishLocked()
	e.bus.Emit(bus.KindMerged, Batch{Room: e.sess.room, Messages: added, Cursor: e.cursor})
}

// TakeDraft returns the text restored by a failed send and clears it.
func (e *Engine) TakeDraft() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	d := e.draft
	if d != "" {
		e.draft = ""
		e.publishLocked()
	}
	return d
}

// Close stops polling, cancels outstanding requests and waits for all
// background work to finish.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.closed = true
	e.endSessionLocked()
	e.polling = false
	e.mu.Unlock()

	e.cancelRoot()
	e.wg.Wait()
}

func (e *Engine) loadHistory(sess *roomSession) {
	ctx, cancel := context.WithTimeout(sess.ctx, e.opts.RequestTimeout)
	defer cancel()
	msgs, err := e.messages.History(ctx, sess.room.ID)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != sess {
		e.logger.Debug("discarding stale history", zap.String("room_id", sess.room.ID))
		return
	}

	if err != nil {
		e.lastErr = fmt.Errorf("load history for room %s: %w", sess.room.ID, err)
		e.transitionLocked(status.LoadFailed)
		e.publishLocked()
		e.logger.Error("history load failed", zap.String("room_id", sess.room.ID), zap.Error(err))
		e.bus.Emit(bus.KindLoadFailed, LoadFailure{Room: sess.room, Err: e.lastErr})
		return
	}

	added := e.mergeLocked(sess.room.ID, msgs)
	e.transitionLocked(status.Synced)
	e.polling = true
	e.publishLocked()
	e.logger.Info("history loaded",
		zap.String("room_id", sess.room.ID),
		zap.Int("messages", len(added)),
		zap.Int64("cursor", e.cursor),
	)
	e.bus.Emit(bus.KindHistoryLoaded, Batch{Room: sess.room, Messages: added, Cursor: e.cursor})

	e.goLocked(func() { e.pollLoop(sess) })
}

func (e *Engine) pollLoop(sess *roomSession) {
	ticker := time.NewTicker(e.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.startPoll(sess)
		case <-sess.ctx.Done():
			return
		}
	}
}

// startPoll claims the session's in-flight flag and polls in the
// background. A poll already in flight makes this a no-op. Callers either
// hold e.mu or run inside a tracked goroutine.
func (e *Engine) startPoll(sess *roomSession) bool {
	if sess.ctx.Err() != nil {
		return false
	}
	if !sess.inFlight.CompareAndSwap(false, true) {
		e.logger.Debug("poll skipped, previous poll in flight", zap.String("room_id", sess.room.ID))
		return false
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer sess.inFlight.Store(false)
		e.poll(sess)
	}()
	return true
}

func (e *Engine) poll(sess *roomSession) {
	e.mu.Lock()
	if e.sess != sess {
		e.mu.Unlock()
		return
	}
	cursor := e.cursor
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(sess.ctx, e.opts.RequestTimeout)
	defer cancel()
	msgs, err := e.messages.Since(ctx, sess.room.ID, cursor)

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.sess != sess {
		e.logger.Debug("discarding stale poll", zap.String("room_id", sess.room.ID))
		return
	}
	if err != nil {
		e.logger.Warn("poll failed", zap.String("room_id", sess.room.ID), zap.Int64("cursor", cursor), zap.Error(err))
		return
	}

	prev := e.cursor
	added := e.mergeLocked(sess.room.ID, msgs)
	if len(added) == 0 && e.cursor == prev {
		return
	}
	e.publishLocked()
	e.bus.Emit(bus.KindMerged, Batch{Room: sess.room, Messages: added, Cursor: e.cursor})
}

// queueLocked appends a pending entry for an outgoing message.
func (e *Engine) queueLocked(sess *roomSession, body string, att *chat.Attachment) chat.Message {
	pending := chat.Message{
		ID:            chat.NewLocalID(),
		RoomID:        sess.room.ID,
		SenderEmail:   e.self.Email,
		ReceiverEmail: sess.room.PartnerEmail,
		Body:          body,
		Timestamp:     e.now().UnixMilli(),
		Attachment:    att,
		State:         chat.Pending,
		Seq:           e.nextSeqLocked(),
	}
	e.list = e.list.with(pending)
	e.draft = ""
	e.sending++
	e.publishLocked()
	e.bus.Emit(bus.KindSendQueued, pending)
	return pending
}

// persist sends out and reconciles the pending entry with the result.
// Sends run on the engine context rather than the room's, so switching
// rooms does not abort a message the user already sent.
func (e *Engine) persist(sess *roomSession, pending chat.Message, out chat.Outgoing, draft string) {
	ctx, cancel := context.WithTimeout(e.root, e.opts.RequestTimeout)
	defer cancel()
	rcpt, err := e.messages.Persist(ctx, out)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.settleLocked(sess, pending, out, rcpt, err, draft)
}

func (e *Engine) sendFile(sess *roomSession, pending chat.Message, f chat.Upload) {
	ctx, cancel := context.WithTimeout(e.root, e.opts.RequestTimeout)
	url, err := e.files.Upload(ctx, f, e.self.Email)
	cancel()

	if err != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.logger.Error("upload failed", zap.String("file_name", f.FileName), zap.Error(err))
		failure := SendFailure{ClientID: pending.ID, RoomID: sess.room.ID, FileName: f.FileName, Err: err}
		if e.sess == sess {
			e.sending--
			e.list = e.list.without(pending.ID)
			e.lastErr = fmt.Errorf("upload %s: %w", f.FileName, err)
			failure.Err = e.lastErr
			e.publishLocked()
		}
		e.bus.Emit(bus.KindUploadFailed, failure)
		return
	}

	att := &chat.Attachment{
		URL:         url,
		FileName:    f.FileName,
		SizeBytes:   int64(len(f.Data)),
		ContentType: f.ContentType,
	}
	e.mu.Lock()
	if e.sess == sess {
		if i := e.list.indexOf(pending.ID); i >= 0 {
			updated := e.list[i]
			updated.Attachment = att
			e.list = e.list.replace(pending.ID, updated)
			e.publishLocked()
		}
	}
	e.mu.Unlock()

	out := chat.Outgoing{
		RoomID:        sess.room.ID,
		SenderEmail:   e.self.Email,
		ReceiverEmail: sess.room.PartnerEmail,
		Attachment:    att,
	}
	ctx, cancel = context.WithTimeout(e.root, e.opts.RequestTimeout)
	defer cancel()
	rcpt, err := e.messages.Persist(ctx, out)
	if err != nil {
		e.logger.Warn("uploaded file orphaned, message not persisted",
			zap.String("file_url", url),
			zap.String("room_id", sess.room.ID),
			zap.Error(err),
		)
	}

	pending.Attachment = att
	e.mu.Lock()
	defer e.mu.Unlock()
	e.settleLocked(sess, pending, out, rcpt, err, "")
}

// settleLocked applies the outcome of a persist call to the list.
func (e *Engine) settleLocked(sess *roomSession, pending chat.Message, out chat.Outgoing, rcpt chat.Receipt, err error, draft string) {
	if e.sess != sess {
		if err != nil {
			e.logger.Warn("send failed after room switch", zap.String("room_id", sess.room.ID), zap.Error(err))
			e.bus.Emit(bus.KindSendFailed, SendFailure{ClientID: pending.ID, RoomID: sess.room.ID, Draft: draft, Err: err})
			return
		}
		confirmed := pending
		confirmed.ID = rcpt.MessageID
		confirmed.State = chat.Sent
		if rcpt.Timestamp > 0 {
			confirmed.Timestamp = rcpt.Timestamp
		}
		e.bus.Emit(bus.KindSendAck, SendAck{ClientID: pending.ID, Message: confirmed})
		return
	}

	e.sending--
	echo, echoed := e.echoes[pending.ID]
	delete(e.echoes, pending.ID)

	if err != nil {
		e.list = e.list.without(pending.ID)
		e.draft = draft
		e.lastErr = fmt.Errorf("send message: %w", err)
		// The claimed copy may be another session's message, so it stays
		// as an ordinary one.
		if echoed {
			e.releaseEchoLocked(sess, echo)
		}
		e.publishLocked()
		e.logger.Error("send failed", zap.String("client_msg_id", pending.ID), zap.Error(err))
		e.bus.Emit(bus.KindSendFailed, SendFailure{
			ClientID: pending.ID,
			RoomID:   sess.room.ID,
			Draft:    draft,
			FileName: attachmentName(out.Attachment),
			Err:      e.lastErr,
		})
		return
	}

	confirmed := pending
	if i := e.list.indexOf(pending.ID); i >= 0 {
		confirmed = e.list[i]
	}
	confirmed.ID = rcpt.MessageID
	confirmed.State = chat.Sent
	switch {
	case rcpt.Timestamp > 0:
		confirmed.Timestamp = rcpt.Timestamp
	case echoed && echo.ID == rcpt.MessageID:
		confirmed.Timestamp = echo.Timestamp
	case e.list.indexOf(rcpt.MessageID) < 0:
		// Sorted by the local clock until the server copy arrives.
		e.unstamped[rcpt.MessageID] = true
	}

	if e.list.indexOf(rcpt.MessageID) >= 0 {
		e.list = e.list.without(pending.ID)
	} else {
		e.list = e.list.replace(pending.ID, confirmed)
	}
	// An echo claimed by this entry turned out to be a different message.
	if echoed && echo.ID != rcpt.MessageID {
		e.releaseEchoLocked(sess, echo)
	}
	if rcpt.Timestamp > e.cursor {
		e.cursor = rcpt.Timestamp
	}
	e.publishLocked()
	e.logger.Info("message sent", zap.String("client_msg_id", pending.ID), zap.String("msg_id", rcpt.MessageID))
	e.bus.Emit(bus.KindSendAck, SendAck{ClientID: pending.ID, Message: confirmed})
}

// releaseEchoLocked inserts a server message that was held back as the
// echo of a pending entry and announces it like a polled one.
func (e *Engine) releaseEchoLocked(sess *roomSession, echo chat.Message) {
	if e.list.indexOf(echo.ID) >= 0 {
		return
	}
	echo.Seq = e.nextSeqLocked()
	e.list = e.list.with(echo)
	e.bus.Emit(bus.KindMerged, Batch{Room: sess.room, Messages: []chat.Message{echo}, Cursor: e.cursor})
}

// mergeLocked inserts the new messages of batch and advances the cursor to
// the newest timestamp seen. It returns the inserted messages together with
// confirmed sends whose local timestamp was replaced by the server's.
func (e *Engine) mergeLocked(roomID string, batch []chat.Message) []chat.Message {
	if len(batch) == 0 {
		return nil
	}

	seen := make(map[string]bool, len(e.list)+len(e.echoes))
	for _, m := range e.list {
		seen[m.ID] = true
	}
	for _, m := range e.echoes {
		seen[m.ID] = true
	}

	var added []chat.Message
	for _, m := range batch {
		if m.RoomID != "" && m.RoomID != roomID {
			continue
		}
		if m.Timestamp > e.cursor {
			e.cursor = m.Timestamp
		}
		if m.ID == "" || m.IsLocal() {
			continue
		}
		if seen[m.ID] {
			if restamped, ok := e.restampLocked(m); ok {
				added = append(added, restamped)
			}
			continue
		}
		seen[m.ID] = true
		m.RoomID = roomID
		m.State = chat.Sent

		if p, ok := e.matchPendingLocked(m); ok {
			e.echoes[p.ID] = m
			continue
		}
		m.Seq = e.nextSeqLocked()
		added = append(added, m)
	}
	var fresh []chat.Message
	for _, m := range added {
		if e.list.indexOf(m.ID) < 0 {
			fresh = append(fresh, m)
		}
	}
	if len(fresh) > 0 {
		e.list = e.list.with(fresh...)
	}
	return added
}

// restampLocked moves a send that was confirmed without a server timestamp
// to the timestamp of its server copy m.
func (e *Engine) restampLocked(m chat.Message) (chat.Message, bool) {
	if !e.unstamped[m.ID] || m.Timestamp <= 0 {
		return chat.Message{}, false
	}
	delete(e.unstamped, m.ID)
	i := e.list.indexOf(m.ID)
	if i < 0 {
		return chat.Message{}, false
	}
	cur := e.list[i]
	if cur.Timestamp == m.Timestamp {
		return chat.Message{}, false
	}
	cur.Timestamp = m.Timestamp
	e.list = e.list.replace(m.ID, cur)
	return cur, true
}

// matchPendingLocked finds the oldest unclaimed pending entry that m is the
// server copy of.
func (e *Engine) matchPendingLocked(m chat.Message) (chat.Message, bool) {
	if m.SenderEmail == "" || !strings.EqualFold(m.SenderEmail, e.self.Email) {
		return chat.Message{}, false
	}
	window := e.opts.EchoWindow.Milliseconds()
	for _, p := range e.list {
		if p.State != chat.Pending {
			continue
		}
		if _, claimed := e.echoes[p.ID]; claimed {
			continue
		}
		if p.Body != m.Body || attachmentName(p.Attachment) != attachmentName(m.Attachment) {
			continue
		}
		if d := p.Timestamp - m.Timestamp; d > window || d < -window {
			continue
		}
		return p, true
	}
	return chat.Message{}, false
}

func (e *Engine) nextSeqLocked() uint64 {
	e.seq++
	return e.seq
}

func (e *Engine) transitionLocked(to status.State) {
	if err := e.machine.Transition(to); err != nil {
		e.logger.Warn("unexpected state transition", zap.String("to", string(to)), zap.Error(err))
	}
}

func (e *Engine) endSessionLocked() {
	if e.sess != nil {
		e.sess.cancel()
		e.sess = nil
	}
}

func (e *Engine) resetLocked() {
	e.list = nil
	e.cursor = 0
	e.echoes = make(map[string]chat.Message)
	e.unstamped = make(map[string]bool)
	e.polling = false
	e.sending = 0
	e.draft = ""
	e.lastErr = nil
}

// goLocked runs fn in a tracked goroutine. The caller holds e.mu and has
// checked e.closed, which orders the Add before Close's Wait.
func (e *Engine) goLocked(fn func()) {
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		fn()
	}()
}

func (e *Engine) publishLocked() {
	s := &Snapshot{
		State:    e.machine.Current(),
		Messages: e.list,
		Cursor:   e.cursor,
		Polling:  e.polling,
		Sending:  e.sending,
		Draft:    e.draft,
		Err:      e.lastErr,
	}
	if e.sess != nil {
		room := e.sess.room
		s.Room = &room
	}
	e.snap.Store(s)
	select {
	case e.updates <- struct{}{}:
	default:
	}
}

func attachmentName(a *chat.Attachment) string {
	if a == nil {
		return ""
	}
	return a.FileName
}
