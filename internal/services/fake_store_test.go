package services

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
)

// memStore is an in-memory Store that follows the SQL repositories closely
// enough to exercise the service rules. InTx restores the state it started
// from when fn fails.
type memStore struct {
	mu    sync.Mutex
	clock time.Time
	memState

	failSingleFor map[int64]bool
	failList      error
	failInsert    func(models.NewMessage) bool
}

type memState struct {
	users      map[int64]string
	chats      map[int64]*models.Chat
	pairs      map[string]int64
	members    map[int64]map[int64]bool
	pinned     map[noticeKey]bool
	recipients map[int64]map[int64]bool
	nextChat   int64

	messages    []models.Message
	attachments map[int64]models.Attachments
	replies     map[int64]int64
	sysEvents   map[int64]models.SystemEvent
	nextMessage int64

	deletes    map[markKey]models.DeleteMark
	clears     map[noticeKey]time.Time
	receipts   map[markKey]bool
	summaries  map[noticeKey]*models.UnreadSummary
	dispatched map[int64]bool

	schedules    map[int64]*models.Schedule
	nextSchedule int64
}

func newMemStore() *memStore {
	return &memStore{
		clock: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
		memState: memState{
			users:       make(map[int64]string),
			chats:       make(map[int64]*models.Chat),
			pairs:       make(map[string]int64),
			members:     make(map[int64]map[int64]bool),
			pinned:      make(map[noticeKey]bool),
			recipients:  make(map[int64]map[int64]bool),
			attachments: make(map[int64]models.Attachments),
			replies:     make(map[int64]int64),
			sysEvents:   make(map[int64]models.SystemEvent),
			deletes:     make(map[markKey]models.DeleteMark),
			clears:      make(map[noticeKey]time.Time),
			receipts:    make(map[markKey]bool),
			summaries:   make(map[noticeKey]*models.UnreadSummary),
			dispatched:  make(map[int64]bool),
			schedules:   make(map[int64]*models.Schedule),
		},
		failSingleFor: make(map[int64]bool),
	}
}

func cloneValues[K comparable, V any](m map[K]*V) map[K]*V {
	out := make(map[K]*V, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func cloneSets(m map[int64]map[int64]bool) map[int64]map[int64]bool {
	out := make(map[int64]map[int64]bool, len(m))
	for k, set := range m {
		out[k] = maps.Clone(set)
	}
	return out
}

func (st memState) clone() memState {
	c := st
	c.users = maps.Clone(st.users)
	c.chats = cloneValues(st.chats)
	c.pairs = maps.Clone(st.pairs)
	c.members = cloneSets(st.members)
	c.pinned = maps.Clone(st.pinned)
	c.recipients = cloneSets(st.recipients)
	c.messages = slices.Clone(st.messages)
	c.attachments = maps.Clone(st.attachments)
	c.replies = maps.Clone(st.replies)
	c.sysEvents = maps.Clone(st.sysEvents)
	c.deletes = maps.Clone(st.deletes)
	c.clears = maps.Clone(st.clears)
	c.receipts = maps.Clone(st.receipts)
	c.summaries = cloneValues(st.summaries)
	c.dispatched = maps.Clone(st.dispatched)
	c.schedules = cloneValues(st.schedules)
	return c
}

func (s *memStore) now() time.Time {
	s.clock = s.clock.Add(time.Millisecond)
	return s.clock
}

func (s *memStore) Chats() repositories.ChatRepository            { return memChats{s} }
func (s *memStore) Messages() repositories.MessageRepository      { return memMessages{s} }
func (s *memStore) Visibility() repositories.VisibilityRepository { return memVisibility{s} }
func (s *memStore) Receipts() repositories.ReceiptRepository      { return memReceipts{s} }
func (s *memStore) Schedules() repositories.ScheduleRepository    { return memSchedules{s} }
func (s *memStore) Users() repositories.UserRepository            { return memUsers{s} }

func (s *memStore) InTx(ctx context.Context, fn func(repositories.Store) error) error {
	s.mu.Lock()
	saved := s.memState.clone()
	s.mu.Unlock()

	if err := fn(s); err != nil {
		s.mu.Lock()
		s.memState = saved
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) message(id int64) (models.Message, bool) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

func (s *memStore) visible(m models.Message, viewerID int64) bool {
	cleared, ok := s.clears[noticeKey{userID: viewerID, chatID: m.ChatID}]
	return !ok || m.CreatedAt.After(cleared)
}

func setIDs(set map[int64]bool) []int64 {
	out := make([]int64, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	return sortedIDs(out)
}

type memChats struct{ s *memStore }

func (r memChats) newChat(chatType models.ChatType, name *string, createdBy int64, pairKey *string) *models.Chat {
	r.s.nextChat++
	at := r.s.now()
	chat := &models.Chat{ID: r.s.nextChat, Type: chatType, Name: name, CreatedBy: createdBy, PairKey: pairKey, CreatedAt: at, UpdatedAt: at}
	r.s.chats[chat.ID] = chat
	return chat
}

func (r memChats) CreateChat(ctx context.Context, chatType models.ChatType, name *string, createdBy int64) (models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return *r.newChat(chatType, name, createdBy, nil), nil
}

func (r memChats) GetOrCreateSingle(ctx context.Context, creatorID, otherID int64) (models.Chat, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if creatorID == otherID {
		return models.Chat{}, false, errors.New("cannot create chat with self")
	}
	if r.s.failSingleFor[otherID] || r.s.failSingleFor[creatorID] {
		return models.Chat{}, false, errors.New("single chat unavailable")
	}
	key := repositories.PairKey(creatorID, otherID)
	if id, ok := r.s.pairs[key]; ok {
		return *r.s.chats[id], false, nil
	}
	chat := r.newChat(models.ChatSingle, nil, creatorID, &key)
	r.s.pairs[key] = chat.ID
	r.s.members[chat.ID] = map[int64]bool{creatorID: true, otherID: true}
	return *chat, true, nil
}

func (r memChats) AddMembers(ctx context.Context, chatID int64, userIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.members[chatID] == nil {
		r.s.members[chatID] = make(map[int64]bool)
	}
	for _, id := range userIDs {
		r.s.members[chatID][id] = true
	}
	return nil
}

func (r memChats) AddBroadcastRecipients(ctx context.Context, chatID int64, recipientIDs []int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.recipients[chatID] == nil {
		r.s.recipients[chatID] = make(map[int64]bool)
	}
	for _, id := range recipientIDs {
		r.s.recipients[chatID][id] = true
	}
	return nil
}

func (r memChats) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	chat, ok := r.s.chats[chatID]
	if !ok {
		return models.Chat{}, repositories.ErrChatNotFound
	}
	return *chat, nil
}

func (r memChats) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return setIDs(r.s.members[chatID]), nil
}

func (r memChats) RecipientIDs(ctx context.Context, chatID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return setIDs(r.s.recipients[chatID]), nil
}

func (r memChats) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.s.members[chatID][userID], nil
}

func (r memChats) Touch(ctx context.Context, chatID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if chat, ok := r.s.chats[chatID]; ok {
		chat.UpdatedAt = r.s.now()
	}
	return nil
}

func (r memChats) ListForUser(ctx context.Context, userID int64, limit, offset int) ([]models.ChatSummary, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.ChatSummary
	for id, set := range r.s.members {
		if !set[userID] {
			continue
		}
		chat := r.s.chats[id]
		summary := models.ChatSummary{
			ChatID:    chat.ID,
			Name:      chat.Name,
			Type:      chat.Type,
			CreatedAt: chat.CreatedAt,
			UpdatedAt: chat.UpdatedAt,
			Pinned:    r.s.pinned[noticeKey{userID: userID, chatID: id}],
		}
		if sum, ok := r.s.summaries[noticeKey{userID: userID, chatID: id}]; ok {
			summary.UnreadCount = sum.UnreadCount
		}
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Pinned != out[j].Pinned {
			return out[i].Pinned
		}
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ChatID > out[j].ChatID
	})
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memChats) Participants(ctx context.Context, chatIDs []int64) (map[int64][]models.UserRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make(map[int64][]models.UserRef, len(chatIDs))
	for _, id := range chatIDs {
		all := make(map[int64]bool)
		for uid := range r.s.members[id] {
			all[uid] = true
		}
		for uid := range r.s.recipients[id] {
			all[uid] = true
		}
		for _, uid := range setIDs(all) {
			result[id] = append(result[id], models.UserRef{UserID: uid, Name: r.s.users[uid]})
		}
	}
	return result, nil
}

func (r memChats) SetPinned(ctx context.Context, chatID, userID int64, pinned bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.s.members[chatID][userID] {
		return repositories.ErrChatNotFound
	}
	r.s.pinned[noticeKey{userID: userID, chatID: chatID}] = pinned
	return nil
}

func (r memChats) Contacts(ctx context.Context, userID int64) ([]models.UserRef, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[int64]bool)
	for _, set := range r.s.members {
		if !set[userID] {
			continue
		}
		for uid := range set {
			if _, named := r.s.users[uid]; named && uid != userID {
				seen[uid] = true
			}
		}
	}
	var out []models.UserRef
	for _, uid := range setIDs(seen) {
		out = append(out, models.UserRef{UserID: uid, Name: r.s.users[uid]})
	}
	return out, nil
}

type memMessages struct{ s *memStore }

func (r memMessages) Insert(ctx context.Context, msg models.NewMessage, attachments models.Attachments) (models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failInsert != nil && r.s.failInsert(msg) {
		return models.Message{}, errors.New("insert rejected")
	}
	r.s.nextMessage++
	m := models.Message{
		ID:              r.s.nextMessage,
		ChatID:          msg.ChatID,
		SenderID:        msg.SenderID,
		Body:            msg.Body,
		Kind:            msg.Kind,
		ParentMessageID: msg.ParentMessageID,
		CreatedAt:       r.s.now(),
	}
	r.s.messages = append(r.s.messages, m)
	r.s.attachments[m.ID] = attachments
	return m, nil
}

func (r memMessages) InsertReply(ctx context.Context, chatID, messageID, replyToID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.replies[messageID] = replyToID
	return nil
}

func (r memMessages) InsertSystemEvent(ctx context.Context, event models.SystemEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.sysEvents[event.MessageID] = event
	return nil
}

func (r memMessages) Get(ctx context.Context, messageID int64) (models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.message(messageID)
	if !ok {
		return models.Message{}, repositories.ErrMessageNotFound
	}
	return m, nil
}

func (r memMessages) IDsInChat(ctx context.Context, chatID int64, messageIDs []int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for _, id := range messageIDs {
		if m, ok := r.s.message(id); ok && m.ChatID == chatID {
			ids = append(ids, id)
		}
	}
	return sortedIDs(ids), nil
}

func (r memMessages) List(ctx context.Context, q repositories.MessageQuery) ([]models.MessageRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failList != nil {
		return nil, r.s.failList
	}
	var rows []models.MessageRow
	for _, m := range r.s.messages {
		if m.ChatID != q.ChatID || !r.s.visible(m, q.ViewerID) {
			continue
		}
		switch {
		case q.BeforeID != nil && m.ID >= *q.BeforeID:
			continue
		case q.AfterID != nil && m.ID <= *q.AfterID:
			continue
		case q.EqualID != nil && m.ID != *q.EqualID:
			continue
		}
		row := models.MessageRow{
			ID:          m.ID,
			ChatID:      m.ChatID,
			SenderID:    m.SenderID,
			Kind:        m.Kind,
			Body:        m.Body,
			Attachments: r.s.attachments[m.ID],
			CreatedAt:   m.CreatedAt,
		}
		if name, ok := r.s.users[m.SenderID]; ok {
			row.SenderName = &name
		}
		if target, ok := r.s.replies[m.ID]; ok {
			row.ReplyMessageID = &target
		}
		if mark, ok := r.s.deletes[markKey{messageID: m.ID, userID: q.ViewerID}]; ok {
			action := mark.Action
			row.DeleteAction = &action
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if q.AfterID != nil {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].ID > rows[j].ID
	})
	if len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	return rows, nil
}

func (r memMessages) ReplyTargets(ctx context.Context, viewerID int64, messageIDs []int64) (map[int64]models.ReplyData, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make(map[int64]models.ReplyData, len(messageIDs))
	for _, id := range messageIDs {
		m, ok := r.s.message(id)
		if !ok {
			continue
		}
		body := m.Body
		data := models.ReplyData{ID: m.ID, Body: &body, Attachments: r.s.attachments[m.ID], SenderID: m.SenderID, CreatedAt: m.CreatedAt}
		if name, ok := r.s.users[m.SenderID]; ok {
			data.SenderName = &name
		}
		_, data.Deleted = r.s.deletes[markKey{messageID: m.ID, userID: viewerID}]
		result[id] = data
	}
	return result, nil
}

func (r memMessages) SystemEvents(ctx context.Context, messageIDs []int64) (map[int64]models.SystemEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make(map[int64]models.SystemEvent, len(messageIDs))
	for _, id := range messageIDs {
		if ev, ok := r.s.sysEvents[id]; ok {
			result[id] = ev
		}
	}
	return result, nil
}

func (r memMessages) Children(ctx context.Context, parentIDs []int64) ([]models.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Message
	for _, m := range r.s.messages {
		if m.ParentMessageID != nil && containsID(parentIDs, *m.ParentMessageID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (r memMessages) LatestUserMessageID(ctx context.Context, chatID int64) (*int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var latest *int64
	for _, m := range r.s.messages {
		if m.ChatID == chatID && m.Kind == models.KindUser {
			id := m.ID
			latest = &id
		}
	}
	return latest, nil
}

func (r memMessages) LastMessages(ctx context.Context, viewerID int64, chatIDs []int64) (map[int64]repositories.LastMessageRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	result := make(map[int64]repositories.LastMessageRow, len(chatIDs))
	for _, m := range r.s.messages {
		if !containsID(chatIDs, m.ChatID) || !r.s.visible(m, viewerID) {
			continue
		}
		_, deleted := r.s.deletes[markKey{messageID: m.ID, userID: viewerID}]
		result[m.ChatID] = repositories.LastMessageRow{
			ChatID:      m.ChatID,
			LastMessage: models.LastMessage{MessageID: m.ID, Body: m.Body, Attachments: r.s.attachments[m.ID], CreatedAt: m.CreatedAt},
			Deleted:     deleted,
		}
	}
	return result, nil
}

// Search matches on a case-insensitive substring with a constant rank.
func (r memMessages) Search(ctx context.Context, q repositories.SearchQuery) ([]models.SearchHit, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	needle := strings.ToLower(q.Text)
	var hits []models.SearchHit
	for i := len(r.s.messages) - 1; i >= 0; i-- {
		m := r.s.messages[i]
		if m.ChatID != q.ChatID || m.Kind != models.KindUser || !r.s.visible(m, q.ViewerID) {
			continue
		}
		if _, deleted := r.s.deletes[markKey{messageID: m.ID, userID: q.ViewerID}]; deleted {
			continue
		}
		if !strings.Contains(strings.ToLower(m.Body), needle) {
			continue
		}
		if q.After != nil && !m.CreatedAt.Before(q.After.CreatedAt) {
			continue
		}
		hits = append(hits, models.SearchHit{ID: m.ID, Body: m.Body, CreatedAt: m.CreatedAt, Highlighted: m.Body, Rank: 0.1})
		if len(hits) == q.Limit {
			break
		}
	}
	return hits, nil
}

type memVisibility struct{ s *memStore }

func (r memVisibility) UpsertDeleteMarks(ctx context.Context, marks []models.DeleteMark) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	seen := make(map[markKey]bool, len(marks))
	for _, m := range marks {
		k := markKey{messageID: m.MessageID, userID: m.UserID}
		if seen[k] {
			return 0, errors.New("ON CONFLICT DO UPDATE command cannot affect row a second time")
		}
		seen[k] = true
		r.s.deletes[k] = m
	}
	return int64(len(marks)), nil
}

func (r memVisibility) UpsertClearWatermark(ctx context.Context, chatID, userID int64) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	at := r.s.now()
	r.s.clears[noticeKey{userID: userID, chatID: chatID}] = at
	return at, nil
}

type memReceipts struct{ s *memStore }

func (r memReceipts) MarkDispatched(ctx context.Context, messageID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.dispatched[messageID] {
		return false, nil
	}
	r.s.dispatched[messageID] = true
	return true, nil
}

func (r memReceipts) InsertReceipt(ctx context.Context, messageID, chatID, userID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.receipts[markKey{messageID: messageID, userID: userID}] = true
	return nil
}

func (r memReceipts) summary(chatID, userID int64) *models.UnreadSummary {
	k := noticeKey{userID: userID, chatID: chatID}
	if r.s.summaries[k] == nil {
		r.s.summaries[k] = &models.UnreadSummary{ChatID: chatID, UserID: userID}
	}
	return r.s.summaries[k]
}

func (r memReceipts) BumpUnreadOnSend(ctx context.Context, chatID, senderID, messageID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, uid := range setIDs(r.s.members[chatID]) {
		sum := r.summary(chatID, uid)
		if uid == senderID {
			id := messageID
			sum.UnreadCount = 0
			sum.LastReadMessageID = &id
			continue
		}
		sum.UnreadCount++
	}
	return nil
}

func (r memReceipts) InsertMissingReceipts(ctx context.Context, chatID, userID, upToID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ChatID != chatID || m.ID > upToID || m.SenderID == userID || m.Kind != models.KindUser {
			continue
		}
		k := markKey{messageID: m.ID, userID: userID}
		if r.s.receipts[k] {
			continue
		}
		r.s.receipts[k] = true
		n++
	}
	return n, nil
}

func (r memReceipts) ResetUnread(ctx context.Context, chatID, userID, lastReadID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sum := r.summary(chatID, userID)
	id := lastReadID
	sum.UnreadCount = 0
	sum.LastReadMessageID = &id
	return nil
}

func (r memReceipts) Readers(ctx context.Context, messageIDs []int64) ([]models.ReadPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pairs []models.ReadPair
	for k := range r.s.receipts {
		if containsID(messageIDs, k.messageID) {
			pairs = append(pairs, models.ReadPair{MessageID: k.messageID, UserID: k.userID})
		}
	}
	return pairs, nil
}

func (r memReceipts) ChildReaders(ctx context.Context, parentIDs []int64) ([]models.ReadPair, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var pairs []models.ReadPair
	for k := range r.s.receipts {
		m, ok := r.s.message(k.messageID)
		if ok && m.ParentMessageID != nil && containsID(parentIDs, *m.ParentMessageID) {
			pairs = append(pairs, models.ReadPair{MessageID: *m.ParentMessageID, UserID: k.userID})
		}
	}
	return pairs, nil
}

type memSchedules struct{ s *memStore }

func (r memSchedules) Create(ctx context.Context, chatID, senderID int64, body string, at time.Time) (models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.nextSchedule++
	sched := &models.Schedule{ID: r.s.nextSchedule, ChatID: chatID, SenderID: senderID, Body: body, ScheduledAt: at, Status: models.SchedulePending, CreatedAt: r.s.now()}
	r.s.schedules[sched.ID] = sched
	return *sched, nil
}

func (r memSchedules) ListBySender(ctx context.Context, chatID, senderID int64) ([]models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.Schedule
	for _, sched := range r.s.schedules {
		if sched.ChatID == chatID && sched.SenderID == senderID {
			out = append(out, *sched)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (r memSchedules) UpdatePending(ctx context.Context, id, senderID int64, body *string, at *time.Time) (models.Schedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched, ok := r.s.schedules[id]
	if !ok || sched.SenderID != senderID || sched.Status != models.SchedulePending {
		return models.Schedule{}, repositories.ErrScheduleNotFound
	}
	if body != nil {
		sched.Body = *body
	}
	if at != nil {
		sched.ScheduledAt = *at
	}
	return *sched, nil
}

func (r memSchedules) Delete(ctx context.Context, id, senderID int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched, ok := r.s.schedules[id]
	if !ok || sched.SenderID != senderID || sched.Status == models.ScheduleProcessing || sched.Status == models.ScheduleCompleted {
		return repositories.ErrScheduleNotFound
	}
	delete(r.s.schedules, id)
	return nil
}

func (r memSchedules) DueIDs(ctx context.Context, now time.Time, limit int) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []int64
	for id, sched := range r.s.schedules {
		if sched.Status == models.SchedulePending && !sched.ScheduledAt.After(now) {
			ids = append(ids, id)
		}
	}
	ids = sortedIDs(ids)
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

func (r memSchedules) Claim(ctx context.Context, id int64) (models.Schedule, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched, ok := r.s.schedules[id]
	if !ok || sched.Status != models.SchedulePending {
		return models.Schedule{}, false, nil
	}
	sched.Status = models.ScheduleProcessing
	return *sched, true, nil
}

func (r memSchedules) MarkCompleted(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.schedules[id].Status = models.ScheduleCompleted
	return nil
}

func (r memSchedules) Reschedule(ctx context.Context, id int64, at time.Time, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched := r.s.schedules[id]
	sched.Status = models.SchedulePending
	sched.RetryCount++
	sched.ScheduledAt = at
	sched.ErrorMessage = &reason
	return nil
}

func (r memSchedules) MarkFailed(ctx context.Context, id int64, reason string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched := r.s.schedules[id]
	sched.Status = models.ScheduleFailed
	sched.RetryCount++
	sched.ErrorMessage = &reason
	return nil
}

type memUsers struct{ s *memStore }

func (r memUsers) Names(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	names := make(map[int64]string, len(userIDs))
	for _, id := range userIDs {
		if name, ok := r.s.users[id]; ok {
			names[id] = name
		}
	}
	return names, nil
}
