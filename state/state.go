// SPDX-License-Identifier: MIT

// Package state keeps the session's view of the world: guilds,
// channels, users, members, presences, voice states, read states, and
// a bounded per-channel message cache. Dispatch handlers apply gateway
// events here before user handlers run, so lookups observe the event
// being delivered.
package state

import (
	"sync"
	"time"

	"github.com/concordlib/concord/types"
)

// Options bounds the cache.
type Options struct {
	// MessageCacheSize caps cached messages per channel. Zero means
	// the default of 200; negative disables message caching.
	MessageCacheSize int

	// MemberCap caps cached members per guild. Zero means the default
	// of 10000; negative disables the cap.
	MemberCap int
}

const (
	defaultMessageCacheSize = 200
	defaultMemberCap        = 10000
)

// Stats reports cache occupancy.
type Stats struct {
	Guilds     int
	Channels   int
	Users      int
	Members    int
	Messages   int
	ReadStates int
}

// State is safe for concurrent use. All getters return copies.
type State struct {
	mu sync.RWMutex

	me        types.User
	ready     bool
	sessionID string

	users       map[types.Snowflake]types.User
	guilds      map[types.Snowflake]types.Guild
	channels    map[types.Snowflake]types.Channel
	members     map[types.Snowflake]map[types.Snowflake]types.Member
	memberOrder map[types.Snowflake][]types.Snowflake
	voices      map[types.Snowflake]map[types.Snowflake]types.VoiceState
	presences   map[types.Snowflake]types.Presence
	readStates  map[types.Snowflake]types.ReadState
	messages    map[types.Snowflake]*ring

	opts Options
}

// New builds an empty state with the given bounds.
func New(opts Options) *State {
	if opts.MessageCacheSize == 0 {
		opts.MessageCacheSize = defaultMessageCacheSize
	}
	if opts.MemberCap == 0 {
		opts.MemberCap = defaultMemberCap
	}
	return &State{
		users:       map[types.Snowflake]types.User{},
		guilds:      map[types.Snowflake]types.Guild{},
		channels:    map[types.Snowflake]types.Channel{},
		members:     map[types.Snowflake]map[types.Snowflake]types.Member{},
		memberOrder: map[types.Snowflake][]types.Snowflake{},
		voices:      map[types.Snowflake]map[types.Snowflake]types.VoiceState{},
		presences:   map[types.Snowflake]types.Presence{},
		readStates:  map[types.Snowflake]types.ReadState{},
		messages:    map[types.Snowflake]*ring{},
		opts:        opts,
	}
}

// ApplyReady seeds the state from a READY dispatch.
func (s *State) ApplyReady(me types.User, sessionID string, guilds []types.Guild, channels []types.Channel, readStates []types.ReadState) {
	s.mu.Lock()
	s.me = me
	s.sessionID = sessionID
	s.ready = true
	s.users[me.ID] = me
	for _, rs := range readStates {
		s.readStates[rs.ID] = rs
	}
	for _, ch := range channels {
		s.channels[ch.ID] = ch
	}
	s.mu.Unlock()

	for i := range guilds {
		s.UpsertGuild(&guilds[i])
	}
}

// Ready reports whether a READY has been applied since the last Reset.
func (s *State) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ready
}

// Reset empties the state after a non-resumable disconnect. The fresh
// READY re-seeds everything, so stale entries must not linger.
func (s *State) Reset() {
	s.mu.Lock()
	s.ready = false
	s.sessionID = ""
	s.users = map[types.Snowflake]types.User{}
	s.guilds = map[types.Snowflake]types.Guild{}
	s.channels = map[types.Snowflake]types.Channel{}
	s.members = map[types.Snowflake]map[types.Snowflake]types.Member{}
	s.memberOrder = map[types.Snowflake][]types.Snowflake{}
	s.voices = map[types.Snowflake]map[types.Snowflake]types.VoiceState{}
	s.presences = map[types.Snowflake]types.Presence{}
	s.readStates = map[types.Snowflake]types.ReadState{}
	s.messages = map[types.Snowflake]*ring{}
	s.mu.Unlock()
}

// SessionID returns the gateway session the state was seeded from.
func (s *State) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// Me returns the client user.
func (s *State) Me() types.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.me
}

// SetMe replaces the client user (USER_UPDATE).
func (s *State) SetMe(u types.User) {
	s.mu.Lock()
	s.me = u
	s.users[u.ID] = u
	s.mu.Unlock()
}

// UpsertGuild indexes a guild and everything a GUILD_CREATE embeds.
func (s *State) UpsertGuild(g *types.Guild) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *g
	// Embedded slices are indexed separately; keep the guild record lean.
	stored.Members = nil
	stored.Channels = nil
	stored.Threads = nil
	stored.VoiceStates = nil
	stored.Presences = nil
	s.guilds[g.ID] = stored

	for _, ch := range g.Channels {
		ch.GuildID = g.ID
		s.channels[ch.ID] = ch
	}
	for _, th := range g.Threads {
		th.GuildID = g.ID
		s.channels[th.ID] = th
	}
	for i := range g.Members {
		m := g.Members[i]
		m.GuildID = g.ID
		s.upsertMemberLocked(g.ID, m)
	}
	for _, vs := range g.VoiceStates {
		vs.GuildID = g.ID
		s.applyVoiceLocked(vs)
	}
	for _, p := range g.Presences {
		p.GuildID = g.ID
		s.presences[p.User.ID] = p
	}
}

// RemoveGuild drops a guild and all state hanging off it.
func (s *State) RemoveGuild(id types.Snowflake) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.guilds, id)
	delete(s.members, id)
	delete(s.memberOrder, id)
	delete(s.voices, id)
	for cid, ch := range s.channels {
		if ch.GuildID == id {
			delete(s.channels, cid)
			delete(s.messages, cid)
			delete(s.readStates, cid)
		}
	}
}

// Guild looks up a guild by ID.
func (s *State) Guild(id types.Snowflake) (types.Guild, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[id]
	return g, ok
}

// Guilds returns all cached guilds.
func (s *State) Guilds() []types.Guild {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Guild, 0, len(s.guilds))
	for _, g := range s.guilds {
		out = append(out, g)
	}
	return out
}

// UpsertChannel indexes a channel or thread.
func (s *State) UpsertChannel(ch types.Channel) {
	s.mu.Lock()
	s.channels[ch.ID] = ch
	s.mu.Unlock()
}

// RemoveChannel drops a channel and its message cache.
func (s *State) RemoveChannel(id types.Snowflake) {
	s.mu.Lock()
	delete(s.channels, id)
	delete(s.messages, id)
	delete(s.readStates, id)
	s.mu.Unlock()
}

// Channel looks up a channel by ID.
func (s *State) Channel(id types.Snowflake) (types.Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[id]
	return ch, ok
}

// UpsertUser caches a user profile.
func (s *State) UpsertUser(u types.User) {
	s.mu.Lock()
	s.users[u.ID] = u
	s.mu.Unlock()
}

// User looks up a cached user.
func (s *State) User(id types.Snowflake) (types.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok
}

func (s *State) upsertMemberLocked(guildID types.Snowflake, m types.Member) {
	byUser, ok := s.members[guildID]
	if !ok {
		byUser = map[types.Snowflake]types.Member{}
		s.members[guildID] = byUser
	}
	if m.User == nil {
		return
	}
	uid := m.User.ID
	if _, exists := byUser[uid]; !exists {
		s.memberOrder[guildID] = append(s.memberOrder[guildID], uid)
	}
	byUser[uid] = m
	s.users[uid] = *m.User
	s.evictMembersLocked(guildID)
}

// evictMembersLocked enforces the per-guild member cap, oldest first.
// The client user and members holding a voice state are pinned.
func (s *State) evictMembersLocked(guildID types.Snowflake) {
	if s.opts.MemberCap < 0 {
		return
	}
	byUser := s.members[guildID]
	order := s.memberOrder[guildID]
	// Scan each queued ID at most once so a fully pinned cache
	// cannot spin forever.
	for scanned := len(order); len(byUser) > s.opts.MemberCap && len(order) > 0 && scanned > 0; scanned-- {
		uid := order[0]
		order = order[1:]
		if uid == s.me.ID || s.hasVoiceLocked(guildID, uid) {
			// Requeue pinned members at the back.
			order = append(order, uid)
			continue
		}
		delete(byUser, uid)
	}
	s.memberOrder[guildID] = order
}

func (s *State) hasVoiceLocked(guildID, userID types.Snowflake) bool {
	byUser, ok := s.voices[guildID]
	if !ok {
		return false
	}
	_, ok = byUser[userID]
	return ok
}

// UpsertMember caches a guild member.
func (s *State) UpsertMember(guildID types.Snowflake, m types.Member) {
	s.mu.Lock()
	s.upsertMemberLocked(guildID, m)
	s.mu.Unlock()
}

// RemoveMember drops a member (GUILD_MEMBER_REMOVE).
func (s *State) RemoveMember(guildID, userID types.Snowflake) {
	s.mu.Lock()
	if byUser, ok := s.members[guildID]; ok {
		delete(byUser, userID)
	}
	s.mu.Unlock()
}

// Member looks up a member of a guild.
func (s *State) Member(guildID, userID types.Snowflake) (types.Member, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser, ok := s.members[guildID]
	if !ok {
		return types.Member{}, false
	}
	m, ok := byUser[userID]
	return m, ok
}

// MemberCount returns the number of cached members of a guild.
func (s *State) MemberCount(guildID types.Snowflake) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.members[guildID])
}

func (s *State) applyVoiceLocked(vs types.VoiceState) {
	byUser, ok := s.voices[vs.GuildID]
	if !ok {
		byUser = map[types.Snowflake]types.VoiceState{}
		s.voices[vs.GuildID] = byUser
	}
	if vs.ChannelID.IsZero() {
		delete(byUser, vs.UserID)
		return
	}
	byUser[vs.UserID] = vs
}

// ApplyVoiceState records a voice state; a zero channel ID clears it.
func (s *State) ApplyVoiceState(vs types.VoiceState) {
	s.mu.Lock()
	s.applyVoiceLocked(vs)
	s.mu.Unlock()
}

// VoiceState looks up a user's voice state in a guild.
func (s *State) VoiceState(guildID, userID types.Snowflake) (types.VoiceState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byUser, ok := s.voices[guildID]
	if !ok {
		return types.VoiceState{}, false
	}
	vs, ok := byUser[userID]
	return vs, ok
}

// ApplyPresence records a presence update.
func (s *State) ApplyPresence(p types.Presence) {
	s.mu.Lock()
	s.presences[p.User.ID] = p
	s.mu.Unlock()
}

// Presence looks up a user's last seen presence.
func (s *State) Presence(userID types.Snowflake) (types.Presence, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presences[userID]
	return p, ok
}

// ApplyReadState stores a read state record.
func (s *State) ApplyReadState(rs types.ReadState) {
	s.mu.Lock()
	s.readStates[rs.ID] = rs
	s.mu.Unlock()
}

// Ack moves the read marker of a channel and clears its mention count.
func (s *State) Ack(channelID, messageID types.Snowflake) {
	s.mu.Lock()
	rs := s.readStates[channelID]
	rs.ID = channelID
	if messageID > rs.LastMessageID {
		rs.LastMessageID = messageID
	}
	rs.MentionCount = 0
	s.readStates[channelID] = rs
	s.mu.Unlock()
}

// ReadState looks up the read state of a channel.
func (s *State) ReadState(channelID types.Snowflake) (types.ReadState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.readStates[channelID]
	return rs, ok
}

// Unread reports whether the channel has messages past the read marker.
func (s *State) Unread(channelID types.Snowflake) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[channelID]
	if !ok || ch.LastMessageID.IsZero() {
		return false
	}
	rs, ok := s.readStates[channelID]
	if !ok {
		return true
	}
	return rs.Unread(ch.LastMessageID)
}

// AddMessage caches a new message and bumps channel bookkeeping.
func (s *State) AddMessage(m types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ch, ok := s.channels[m.ChannelID]; ok && m.ID > ch.LastMessageID {
		ch.LastMessageID = m.ID
		s.channels[m.ChannelID] = ch
	}
	if m.Author.ID != 0 {
		s.users[m.Author.ID] = m.Author
	}
	if s.opts.MessageCacheSize < 0 {
		return
	}
	r, ok := s.messages[m.ChannelID]
	if !ok {
		r = newRing(s.opts.MessageCacheSize)
		s.messages[m.ChannelID] = r
	}
	r.add(m)
}

// UpdateMessage patches a cached message in place, returning the
// updated copy when the message was cached.
func (s *State) UpdateMessage(patch types.Message) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.messages[patch.ChannelID]
	if !ok {
		return types.Message{}, false
	}
	cur, ok := r.get(patch.ID)
	if !ok {
		return types.Message{}, false
	}
	if patch.Content != "" {
		cur.Content = patch.Content
	}
	if patch.EditedTimestamp != nil {
		cur.EditedTimestamp = patch.EditedTimestamp
	}
	if patch.Embeds != nil {
		cur.Embeds = patch.Embeds
	}
	if patch.Attachments != nil {
		cur.Attachments = patch.Attachments
	}
	if patch.Flags != 0 {
		cur.Flags = patch.Flags
	}
	cur.Pinned = patch.Pinned
	r.put(cur)
	return cur, true
}

// DeleteMessage evicts a message, returning the cached copy if present.
func (s *State) DeleteMessage(channelID, messageID types.Snowflake) (types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.messages[channelID]
	if !ok {
		return types.Message{}, false
	}
	return r.remove(messageID)
}

// Message looks up a cached message.
func (s *State) Message(channelID, messageID types.Snowflake) (types.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.messages[channelID]
	if !ok {
		return types.Message{}, false
	}
	return r.get(messageID)
}

// Messages returns the cached messages of a channel, oldest first.
func (s *State) Messages(channelID types.Snowflake) []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.messages[channelID]
	if !ok {
		return nil
	}
	return r.all()
}

// Stats reports cache occupancy.
func (s *State) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Stats{
		Guilds:     len(s.guilds),
		Channels:   len(s.channels),
		Users:      len(s.users),
		ReadStates: len(s.readStates),
	}
	for _, byUser := range s.members {
		st.Members += len(byUser)
	}
	for _, r := range s.messages {
		st.Messages += r.len()
	}
	return st
}

// TimedOutMembers lists members of a guild under an active timeout.
// Mostly useful for moderation tooling built on the cache.
func (s *State) TimedOutMembers(guildID types.Snowflake, now time.Time) []types.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Member
	for _, m := range s.members[guildID] {
		if m.TimedOut(now) {
			out = append(out, m)
		}
	}
	return out
}
