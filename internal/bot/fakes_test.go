package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ashureev/chatcord/internal/domain"
	"github.com/ashureev/chatcord/internal/events"
	"github.com/ashureev/chatcord/internal/respond"
	"github.com/ashureev/chatcord/internal/session"
	"github.com/ashureev/chatcord/internal/store"
	"github.com/ashureev/chatcord/internal/transcribe"
	"github.com/ashureev/chatcord/internal/upstream"
	"github.com/ashureev/chatcord/internal/voice"
)

type sentMessage struct {
	ID        string
	ChannelID string
	Content   string
}

type fakeMessenger struct {
	mu        sync.Mutex
	next      int
	sent      []sentMessage
	deleted   []string
	reactions []string
	typing    int
	sendErr   error
}

func (m *fakeMessenger) SendMessage(_ context.Context, channelID, content string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return "", m.sendErr
	}
	m.next++
	id := fmt.Sprintf("m%d", m.next)
	m.sent = append(m.sent, sentMessage{ID: id, ChannelID: channelID, Content: content})
	return id, nil
}

func (m *fakeMessenger) DeleteMessage(_ context.Context, _, messageID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deleted = append(m.deleted, messageID)
	return nil
}

func (m *fakeMessenger) SignalTyping(_ context.Context, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.typing++
	return nil
}

func (m *fakeMessenger) React(_ context.Context, _, _, emoji string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reactions = append(m.reactions, emoji)
	return nil
}

func (m *fakeMessenger) contents() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sent))
	for _, s := range m.sent {
		out = append(out, s.Content)
	}
	return out
}

func (m *fakeMessenger) deletedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// fakeResponder echoes through a callback and records the history it
// would have seen.
type fakeResponder struct {
	mu      sync.Mutex
	calls   []string
	reply   string
	err     error
	onCall  func()
	history *session.Table
}

func (r *fakeResponder) Respond(_ context.Context, channelID, userText string) (string, error) {
	r.mu.Lock()
	r.calls = append(r.calls, userText)
	onCall := r.onCall
	r.mu.Unlock()
	if onCall != nil {
		onCall()
	}
	if r.err != nil {
		return "", r.err
	}
	if r.history != nil {
		r.history.RecordTurn(channelID, domain.RoleUser, userText)
		r.history.RecordTurn(channelID, domain.RoleAssistant, r.reply)
	}
	return r.reply, nil
}

func (r *fakeResponder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

type fakeTranscriber struct {
	text     string
	err      error
	gotBody  string
	gotName  string
	callsNum int
}

func (f *fakeTranscriber) Transcribe(_ context.Context, audio io.Reader, filename string) (string, error) {
	f.callsNum++
	b, _ := io.ReadAll(audio)
	f.gotBody = string(b)
	f.gotName = filename
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

type fakeFetcher struct {
	body string
	err  error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

type fakeConn struct {
	mu           sync.Mutex
	disconnected bool
}

func (c *fakeConn) Play(string) (voice.Playback, error) { return nil, errors.New("not used") }
func (c *fakeConn) IsPlaying() bool                     { return false }
func (c *fakeConn) Stop()                               {}
func (c *fakeConn) Disconnect() error {
	c.mu.Lock()
	c.disconnected = true
	c.mu.Unlock()
	return nil
}

type fakeJoiner struct {
	conn *fakeConn
	err  error
}

func (j *fakeJoiner) JoinUserChannel(_ context.Context, _, _ string) (voice.Connection, string, error) {
	if j.err != nil {
		return nil, "", j.err
	}
	return j.conn, "General", nil
}

type fakeSpeaker struct {
	mu     sync.Mutex
	conns  map[string]voice.Connection
	rates  map[string]float64
	spoken []string
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{conns: map[string]voice.Connection{}, rates: map[string]float64{}}
}

func (s *fakeSpeaker) Attach(guildID string, conn voice.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[guildID]; ok {
		return voice.ErrAlreadyConnected
	}
	s.conns[guildID] = conn
	return nil
}

func (s *fakeSpeaker) Detach(guildID string) (bool, error) {
	s.mu.Lock()
	conn, ok := s.conns[guildID]
	delete(s.conns, guildID)
	s.mu.Unlock()
	if !ok {
		return false, nil
	}
	return true, conn.Disconnect()
}

func (s *fakeSpeaker) Connected(guildID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.conns[guildID]
	return ok
}

func (s *fakeSpeaker) Speak(_ context.Context, guildID, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conns[guildID]; !ok {
		return nil
	}
	s.spoken = append(s.spoken, text)
	return nil
}

func (s *fakeSpeaker) SetSpeechRate(guildID string, rate float64) {
	s.mu.Lock()
	s.rates[guildID] = rate
	s.mu.Unlock()
}

func (s *fakeSpeaker) SpeechRate(guildID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.rates[guildID]; ok {
		return r
	}
	return domain.DefaultSpeechRate
}

func (s *fakeSpeaker) Close() {}

func (s *fakeSpeaker) spokenTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

type harness struct {
	orch        *Orchestrator
	messenger   *fakeMessenger
	responder   *fakeResponder
	transcriber *fakeTranscriber
	fetcher     *fakeFetcher
	joiner      *fakeJoiner
	speaker     *fakeSpeaker
	table       *session.Table
	prefs       *store.JSONStore
	prefsPath   string
	settings    *domain.Settings
	hub         *events.Hub
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	table := session.NewTable(session.DefaultHistoryLimit)
	prefsPath := filepath.Join(t.TempDir(), "prefs.json")
	prefs, err := store.NewJSON(prefsPath)
	if err != nil {
		t.Fatalf("NewJSON failed: %v", err)
	}

	h := &harness{
		messenger:   &fakeMessenger{},
		responder:   &fakeResponder{reply: "Hi there!", history: table},
		transcriber: &fakeTranscriber{text: "hello from audio"},
		fetcher:     &fakeFetcher{body: "RIFFdata"},
		joiner:      &fakeJoiner{conn: &fakeConn{}},
		speaker:     newFakeSpeaker(),
		table:       table,
		prefs:       prefs,
		prefsPath:   prefsPath,
		settings:    domain.NewSettings(domain.DefaultModelAlias, domain.DefaultTemperature),
		hub:         events.NewHub(64, 16),
	}
	h.orch = New(Deps{
		Messenger:   h.messenger,
		Joiner:      h.joiner,
		Fetcher:     h.fetcher,
		Responder:   h.responder,
		Transcriber: h.transcriber,
		Speaker:     h.speaker,
		Table:       table,
		Preferences: prefs,
		Settings:    h.settings,
		Hub:         h.hub,
	}, Config{}, nil)
	h.orch.pick = func(int) int { return 0 }
	t.Cleanup(h.orch.Close)
	return h
}

func mention(content string) Message {
	return Message{
		ID:          "in1",
		ChannelID:   "C1",
		GuildID:     "G1",
		AuthorID:    "U1",
		AuthorName:  "alice",
		Content:     content,
		MentionsBot: true,
	}
}

var (
	errUpstream500 = &respond.ResponseError{Reason: upstream.ReasonStatus, StatusCode: 500}
	errSTT500      = &transcribe.TranscriptionError{Reason: upstream.ReasonStatus, StatusCode: 500}
)
