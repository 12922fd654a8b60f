package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"queuebot/display"
	"queuebot/events"
	"queuebot/models"
)

// memoryStore is an in-memory GuildConfigRepository keeping encoded records,
// so every read goes through the same decode path as the Postgres store.
type memoryStore struct {
	mu      sync.Mutex
	records map[string][]string
	sets    int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: map[string][]string{}}
}

func (s *memoryStore) Get(_ context.Context, guildID string) (*models.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.records[guildID]
	if !ok {
		return nil, nil
	}
	return models.DecodeRecord(guildID, record, testDefaults)
}

func (s *memoryStore) Set(_ context.Context, config *models.GuildConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets++
	s.records[config.GuildID] = models.EncodeRecord(config)
	return nil
}

func (s *memoryStore) Delete(_ context.Context, guildID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, guildID)
	return nil
}

func (s *memoryStore) Entries(_ context.Context) ([]*models.GuildConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	configs := make([]*models.GuildConfig, 0, len(ids))
	for _, id := range ids {
		config, err := models.DecodeRecord(id, s.records[id], testDefaults)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, nil
}

func (s *memoryStore) record(guildID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.records[guildID]...)
}

// memoryUnitOfWork holds events until commit like the real unit of work
type memoryUnitOfWork struct {
	store     *memoryStore
	publisher EventPublisher
	pending   []events.Event
}

type memoryUnitOfWorkFactory struct {
	store     *memoryStore
	publisher EventPublisher
}

func (f *memoryUnitOfWorkFactory) Create() UnitOfWork {
	return &memoryUnitOfWork{store: f.store, publisher: f.publisher}
}

func (u *memoryUnitOfWork) Begin(context.Context) error { return nil }

func (u *memoryUnitOfWork) Commit() error {
	for _, e := range u.pending {
		u.publisher.Publish(e)
	}
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) Rollback() error {
	u.pending = nil
	return nil
}

func (u *memoryUnitOfWork) GuildConfigRepository() GuildConfigRepository { return u.store }

func (u *memoryUnitOfWork) EventBus() EventPublisher { return u }

func (u *memoryUnitOfWork) Publish(e events.Event) { u.pending = append(u.pending, e) }

// eventRecorder collects published events synchronously
type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(e events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t events.EventType) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, e := range r.events {
		if e.Type() == t {
			out = append(out, e)
		}
	}
	return out
}

type move struct {
	MemberID  string
	ChannelID string
}

// fakePlatform models one guild's channels, voice presence and posted messages
type fakePlatform struct {
	mu sync.Mutex

	channels map[string]*Channel
	voice    map[string]string // member id -> voice channel id
	names    map[string]string
	bots     map[string]bool

	messages map[string]display.Page
	owner    map[string]string // message id -> channel id
	nextID   int
	moves    []move
	joined   []string

	channelErr error
	moveErr    error
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: map[string]*Channel{},
		voice:    map[string]string{},
		names:    map[string]string{},
		bots:     map[string]bool{},
		messages: map[string]display.Page{},
		owner:    map[string]string{},
	}
}

func (p *fakePlatform) addText(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[id] = &Channel{ID: id, Name: id}
}

func (p *fakePlatform) addVoice(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels[id] = &Channel{ID: id, Name: id, Voice: true}
}

func (p *fakePlatform) deleteChannel(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.channels, id)
}

func (p *fakePlatform) addMember(id, name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.names[id] = name
}

func (p *fakePlatform) removeMember(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.names, id)
}

func (p *fakePlatform) connect(memberID, channelID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channelID == "" {
		delete(p.voice, memberID)
		return
	}
	p.voice[memberID] = channelID
}

func (p *fakePlatform) moveLog() []move {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]move(nil), p.moves...)
}

// pagesIn returns the pages currently posted in a channel, in posting order
func (p *fakePlatform) pagesIn(channelID string) []display.Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	var ids []string
	for id, ch := range p.owner {
		if ch == channelID {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return messageNumber(ids[i]) < messageNumber(ids[j]) })

	pages := make([]display.Page, 0, len(ids))
	for _, id := range ids {
		pages = append(pages, p.messages[id])
	}
	return pages
}

func messageNumber(id string) int {
	var n int
	fmt.Sscanf(id, "msg%d", &n)
	return n
}

func (p *fakePlatform) ChannelExists(_ context.Context, _, channelID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.channels[channelID]
	return ok, nil
}

func (p *fakePlatform) SendPage(_ context.Context, channelID string, page display.Page) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	id := fmt.Sprintf("msg%d", p.nextID)
	p.messages[id] = page
	p.owner[id] = channelID
	return id, nil
}

func (p *fakePlatform) EditPage(_ context.Context, _, messageID string, page display.Page) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.messages[messageID]; !ok {
		return errors.New("unknown message")
	}
	p.messages[messageID] = page
	return nil
}

func (p *fakePlatform) DeleteMessage(_ context.Context, _, messageID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.messages, messageID)
	delete(p.owner, messageID)
	return nil
}

func (p *fakePlatform) VoiceChannelOf(_ context.Context, _, memberID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.voice[memberID], nil
}

func (p *fakePlatform) Channel(_ context.Context, _, channelID string) (*Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channelErr != nil {
		return nil, p.channelErr
	}
	ch, ok := p.channels[channelID]
	if !ok {
		return nil, nil
	}
	clone := *ch
	return &clone, nil
}

func (p *fakePlatform) VoiceMembers(_ context.Context, _, channelID string) ([]string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var members []string
	for member, ch := range p.voice {
		if ch == channelID && !p.bots[member] {
			members = append(members, member)
		}
	}
	sort.Strings(members)
	return members, nil
}

func (p *fakePlatform) MemberName(_, memberID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	name, ok := p.names[memberID]
	return name, ok
}

func (p *fakePlatform) MoveMember(_ context.Context, _, memberID, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.moveErr != nil {
		return p.moveErr
	}
	p.moves = append(p.moves, move{MemberID: memberID, ChannelID: channelID})
	p.voice[memberID] = channelID
	return nil
}

func (p *fakePlatform) JoinVoice(_ context.Context, _, channelID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.joined = append(p.joined, channelID)
	return nil
}
