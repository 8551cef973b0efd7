package handlers_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/pencroft/chat-web-ui/internal/handlers"
	"github.com/pencroft/chat-web-ui/internal/models"
)

type mockBackend struct {
	chats    []models.Chat
	messages map[string][]models.Message
	memories []models.Memory
	configs  []models.ModelConfig

	stream  string
	release chan struct{}

	err error
}

type mockStore struct {
	chats    []models.Chat
	messages map[string][]models.Message
	err      error
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestMain(t *testing.T, backend *mockBackend, store *mockStore) handlers.Main {
	t.Helper()

	main, err := handlers.NewMain(backend, store, testLogger())
	if err != nil {
		t.Fatalf("NewMain() error = %v", err)
	}
	return main
}

func TestNewMain(t *testing.T) {
	main := newTestMain(t, &mockBackend{}, &mockStore{})

	if err := main.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestHandleHome(t *testing.T) {
	backend := &mockBackend{
		chats: []models.Chat{
			{ID: "1", Title: "Test Chat"},
		},
		messages: map[string][]models.Message{
			"1": {{ID: "m1", Role: models.RoleUser, Content: "Hello"}},
		},
	}
	main := newTestMain(t, backend, &mockStore{messages: map[string][]models.Message{}})

	tests := []struct {
		name       string
		url        string
		wantStatus int
		wantBody   string
	}{
		{
			name:       "Home page without chat",
			url:        "/",
			wantStatus: http.StatusOK,
			wantBody:   "Test Chat", // Should contain chat title
		},
		{
			name:       "Home page with chat",
			url:        "/?chat_id=1",
			wantStatus: http.StatusOK,
			wantBody:   "Hello", // Should contain message content
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.url, nil)
			w := httptest.NewRecorder()

			main.HandleHome(w, req)

			if w.Code != tt.wantStatus {
				t.Errorf("HandleHome() status = %v, want %v", w.Code, tt.wantStatus)
			}

			if !strings.Contains(w.Body.String(), tt.wantBody) {
				t.Errorf("HandleHome() body = %v, want to contain %v", w.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestHandleHomeBackendDown(t *testing.T) {
	backend := &mockBackend{err: io.ErrClosedPipe}
	store := &mockStore{
		chats: []models.Chat{
			{ID: "1", Title: "Mirrored Chat"},
		},
		messages: map[string][]models.Message{
			"1": {{ID: "m1", Role: models.RoleAssistant, Content: "mirrored reply"}},
		},
	}
	main := newTestMain(t, backend, store)

	req := httptest.NewRequest(http.MethodGet, "/?chat_id=1", nil)
	w := httptest.NewRecorder()

	main.HandleHome(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleHome() status = %v, want %v", w.Code, http.StatusOK)
	}
	for _, want := range []string{"Mirrored Chat", "mirrored reply"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("HandleHome() body does not contain %q", want)
		}
	}
}

func TestHandleChatTurn(t *testing.T) {
	tests := []struct {
		name       string
		method     string
		message    string
		wantStatus int
	}{
		{
			name:       "Invalid method",
			method:     http.MethodGet,
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Empty message",
			method:     http.MethodPost,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Valid turn",
			method:     http.MethodPost,
			message:    "Hello",
			wantStatus: http.StatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &mockBackend{
				stream: "data: {'chat_id': 'c1', 'is_new': True}\n" +
					"data: {'content': 'reply'}\n" +
					"data: [DONE]\n",
			}
			main := newTestMain(t, backend, &mockStore{messages: map[string][]models.Message{}})

			w := httptest.NewRecorder()
			main.HandleChatTurn(w, postForm(tt.method, "/chats", url.Values{
				"message": {tt.message},
			}))

			if w.Code != tt.wantStatus {
				t.Errorf("HandleChatTurn() status = %v, want %v", w.Code, tt.wantStatus)
			}
			if tt.wantStatus == http.StatusOK && !strings.Contains(w.Body.String(), tt.message) {
				t.Errorf("HandleChatTurn() body = %v, want to contain %v", w.Body.String(), tt.message)
			}
		})
	}
}

func TestHandleChatTurnWhileStreaming(t *testing.T) {
	backend := &mockBackend{
		stream:  "data: {'content': 'slow reply'}\ndata: [DONE]\n",
		release: make(chan struct{}),
	}
	main := newTestMain(t, backend, &mockStore{messages: map[string][]models.Message{}})
	defer close(backend.release)

	w := httptest.NewRecorder()
	main.HandleChatTurn(w, postForm(http.MethodPost, "/chats", url.Values{
		"message": {"first"},
	}))
	if w.Code != http.StatusOK {
		t.Fatalf("first HandleChatTurn() status = %v, want %v", w.Code, http.StatusOK)
	}

	w = httptest.NewRecorder()
	main.HandleChatTurn(w, postForm(http.MethodPost, "/chats", url.Values{
		"message": {"second"},
	}))
	if w.Code != http.StatusConflict {
		t.Errorf("second HandleChatTurn() status = %v, want %v", w.Code, http.StatusConflict)
	}
}

func TestHandleNewChat(t *testing.T) {
	backend := &mockBackend{}
	main := newTestMain(t, backend, &mockStore{messages: map[string][]models.Message{}})

	w := httptest.NewRecorder()
	main.HandleNewChat(w, postForm(http.MethodPost, "/chats/new", url.Values{}))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("HandleNewChat() status = %v, want %v", w.Code, http.StatusSeeOther)
	}
	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/?chat_id=") {
		t.Errorf("HandleNewChat() Location = %q, want chat redirect", loc)
	}
}

func TestHandleSettings(t *testing.T) {
	backend := &mockBackend{
		memories: []models.Memory{
			{ID: "mem-1", Content: "Likes Go", Enabled: true},
		},
		configs: []models.ModelConfig{
			{ID: "cfg-1", Name: "Fast", ModelID: "fast-1", Default: true},
		},
	}
	main := newTestMain(t, backend, &mockStore{})

	req := httptest.NewRequest(http.MethodGet, "/settings", nil)
	w := httptest.NewRecorder()

	main.HandleSettings(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("HandleSettings() status = %v, want %v", w.Code, http.StatusOK)
	}
	for _, want := range []string{"Likes Go", "Fast"} {
		if !strings.Contains(w.Body.String(), want) {
			t.Errorf("HandleSettings() body does not contain %q", want)
		}
	}
}

func TestHandleMemories(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{
			name:       "Add memory",
			form:       url.Values{"action": {"add"}, "content": {"Likes Go"}},
			wantStatus: http.StatusSeeOther,
		},
		{
			name:       "Toggle memory",
			form:       url.Values{"action": {"toggle"}, "memory_id": {"mem-1"}, "enabled": {"false"}},
			wantStatus: http.StatusSeeOther,
		},
		{
			name:       "Toggle with bad flag",
			form:       url.Values{"action": {"toggle"}, "memory_id": {"mem-1"}, "enabled": {"maybe"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown action",
			form:       url.Values{"action": {"explode"}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := newTestMain(t, &mockBackend{}, &mockStore{})

			w := httptest.NewRecorder()
			main.HandleMemories(w, postForm(http.MethodPost, "/memories", tt.form))

			if w.Code != tt.wantStatus {
				t.Errorf("HandleMemories() status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func TestHandleModels(t *testing.T) {
	tests := []struct {
		name       string
		form       url.Values
		wantStatus int
	}{
		{
			name: "Save model",
			form: url.Values{
				"action": {"save"}, "config_id": {"cfg-1"}, "name": {"Fast"},
				"model_id": {"fast-1"}, "max_tokens": {"4096"}, "temperature": {"0.7"},
			},
			wantStatus: http.StatusSeeOther,
		},
		{
			name:       "Set default",
			form:       url.Values{"action": {"set-default"}, "config_id": {"cfg-1"}},
			wantStatus: http.StatusSeeOther,
		},
		{
			name:       "Unknown action",
			form:       url.Values{"action": {"explode"}},
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main := newTestMain(t, &mockBackend{}, &mockStore{})

			w := httptest.NewRecorder()
			main.HandleModels(w, postForm(http.MethodPost, "/models", tt.form))

			if w.Code != tt.wantStatus {
				t.Errorf("HandleModels() status = %v, want %v", w.Code, tt.wantStatus)
			}
		})
	}
}

func postForm(method, target string, form url.Values) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

// gatedReader blocks reads until release is closed.
type gatedReader struct {
	r       io.Reader
	release <-chan struct{}
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.release != nil {
		<-g.release
		g.release = nil
	}
	return g.r.Read(p)
}

func (b *mockBackend) StreamTurn(context.Context, string, string, string) (io.ReadCloser, error) {
	if b.err != nil {
		return nil, b.err
	}
	var r io.Reader = strings.NewReader(b.stream)
	if b.release != nil {
		r = &gatedReader{r: r, release: b.release}
	}
	return io.NopCloser(r), nil
}

func (b *mockBackend) Chats(context.Context) ([]models.Chat, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.chats, nil
}

func (b *mockBackend) Chat(_ context.Context, chatID string) (models.Chat, []models.Message, error) {
	if b.err != nil {
		return models.Chat{}, nil, b.err
	}
	for _, ch := range b.chats {
		if ch.ID == chatID {
			return ch, b.messages[chatID], nil
		}
	}
	return models.Chat{ID: chatID}, b.messages[chatID], nil
}

func (b *mockBackend) CreateChat(_ context.Context, title string) (models.Chat, error) {
	if b.err != nil {
		return models.Chat{}, b.err
	}
	ch := models.Chat{ID: "created-1", Title: title}
	b.chats = append(b.chats, ch)
	return ch, nil
}

func (b *mockBackend) RenameChat(context.Context, string, string) error { return b.err }
func (b *mockBackend) DeleteChat(context.Context, string) error         { return b.err }

func (b *mockBackend) Memories(context.Context) ([]models.Memory, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.memories, nil
}

func (b *mockBackend) AddMemory(_ context.Context, content string) (models.Memory, error) {
	if b.err != nil {
		return models.Memory{}, b.err
	}
	return models.Memory{ID: "mem-new", Content: content, Enabled: true}, nil
}

func (b *mockBackend) UpdateMemory(_ context.Context, memoryID string, _ *string, _ *bool) (models.Memory, error) {
	if b.err != nil {
		return models.Memory{}, b.err
	}
	return models.Memory{ID: memoryID}, nil
}

func (b *mockBackend) DeleteMemory(context.Context, string) error { return b.err }

func (b *mockBackend) Models(context.Context) ([]models.ModelConfig, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.configs, nil
}

func (b *mockBackend) SaveModel(_ context.Context, cfg models.ModelConfig) (models.ModelConfig, error) {
	if b.err != nil {
		return models.ModelConfig{}, b.err
	}
	return cfg, nil
}

func (b *mockBackend) DeleteModel(context.Context, string) error     { return b.err }
func (b *mockBackend) SetDefaultModel(context.Context, string) error { return b.err }

func (s *mockStore) Chats(context.Context) ([]models.Chat, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.chats, nil
}

func (s *mockStore) PutChat(_ context.Context, chat models.Chat) error {
	if s.err != nil {
		return s.err
	}
	for i, ch := range s.chats {
		if ch.ID == chat.ID {
			s.chats[i] = chat
			return nil
		}
	}
	s.chats = append(s.chats, chat)
	return nil
}

func (s *mockStore) DeleteChat(_ context.Context, chatID string) error {
	for i, ch := range s.chats {
		if ch.ID == chatID {
			s.chats = append(s.chats[:i], s.chats[i+1:]...)
			break
		}
	}
	return s.err
}

func (s *mockStore) Messages(_ context.Context, chatID string) ([]models.Message, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.messages[chatID], nil
}

func (s *mockStore) AppendMessage(_ context.Context, chatID string, msg models.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages[chatID] = append(s.messages[chatID], msg)
	return nil
}

func (s *mockStore) ReplaceMessages(_ context.Context, chatID string, msgs []models.Message) error {
	if s.err != nil {
		return s.err
	}
	s.messages[chatID] = msgs
	return nil
}
