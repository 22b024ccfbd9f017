package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"pollstream/internal/broadcast"
	"pollstream/internal/counter"
	"pollstream/internal/domain/poll"
	"pollstream/internal/domain/vote"
	"pollstream/internal/platform/session"
	"pollstream/internal/worker"
)

type testPollRepo struct {
	mu    sync.Mutex
	polls map[uuid.UUID]*poll.Poll
	opts  map[uuid.UUID][]poll.Option
}

func newTestPollRepo() *testPollRepo {
	return &testPollRepo{
		polls: make(map[uuid.UUID]*poll.Poll),
		opts:  make(map[uuid.UUID][]poll.Option),
	}
}

func (r *testPollRepo) Create(ctx context.Context, p *poll.Poll, options []poll.Option) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.CreatedAt = time.Now()
	copyPoll := *p
	r.polls[p.ID] = &copyPoll
	cloned := make([]poll.Option, len(options))
	copy(cloned, options)
	r.opts[p.ID] = cloned
	return nil
}

func (r *testPollRepo) GetByID(ctx context.Context, id uuid.UUID) (*poll.Poll, []poll.Option, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.polls[id]
	if !ok {
		return nil, nil, poll.ErrPollNotFound
	}
	copyPoll := *p
	return &copyPoll, r.opts[id], nil
}

type votePair struct {
	sessionID uuid.UUID
	pollID    uuid.UUID
}

type testVoteRepo struct {
	mu     sync.Mutex
	byPair map[votePair]*vote.Record
	byID   map[uuid.UUID]*vote.Record
}

func newTestVoteRepo() *testVoteRepo {
	return &testVoteRepo{
		byPair: make(map[votePair]*vote.Record),
		byID:   make(map[uuid.UUID]*vote.Record),
	}
}

func (r *testVoteRepo) FindActive(ctx context.Context, sessionID, pollID uuid.UUID) (*vote.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byPair[votePair{sessionID, pollID}]
	if !ok {
		return nil, nil
	}
	copyRec := *rec
	return &copyRec, nil
}

func (r *testVoteRepo) Create(ctx context.Context, rec *vote.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := votePair{rec.SessionID, rec.PollID}
	if _, exists := r.byPair[k]; exists {
		return vote.ErrConflict
	}
	rec.CreatedAt = time.Now()
	copyRec := *rec
	r.byPair[k] = &copyRec
	r.byID[rec.ID] = &copyRec
	return nil
}

func (r *testVoteRepo) Replace(ctx context.Context, oldID uuid.UUID, rec *vote.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	old, ok := r.byID[oldID]
	if ok {
		delete(r.byID, oldID)
		delete(r.byPair, votePair{old.SessionID, old.PollID})
	}
	k := votePair{rec.SessionID, rec.PollID}
	if _, exists := r.byPair[k]; exists {
		return vote.ErrConflict
	}
	rec.CreatedAt = time.Now()
	copyRec := *rec
	r.byPair[k] = &copyRec
	r.byID[rec.ID] = &copyRec
	return nil
}

type testEnv struct {
	router http.Handler
	store  *counter.Memory
	hub    *broadcast.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	store := counter.NewMemory()
	hub := broadcast.NewHub(nil)
	deltas := make(chan []counter.Delta, 64)

	pollSvc := poll.NewService(newTestPollRepo())
	voteSvc := vote.NewService(newTestVoteRepo(), deltas)
	sessions := session.NewManager("test-secret", time.Hour)

	w := worker.NewTallyWorker(deltas, store, hub, time.Millisecond, 10*time.Millisecond, nil)
	go w.Run(ctx)

	router := NewRouter(pollSvc, voteSvc, store, hub, sessions, nil, time.Second)
	return &testEnv{router: router, store: store, hub: hub}
}

func (e *testEnv) createPoll(t *testing.T, title string, options ...string) (string, []string) {
	t.Helper()

	body, _ := json.Marshal(map[string]any{"title": title, "options": options})
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("create poll: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("create poll: bad body: %v", err)
	}

	getReq := httptest.NewRequest(http.MethodGet, "/polls/"+resp["pollId"], nil)
	getRec := httptest.NewRecorder()
	e.router.ServeHTTP(getRec, getReq)
	if getRec.Code != http.StatusOK {
		t.Fatalf("get poll: expected 200, got %d", getRec.Code)
	}
	var getResp struct {
		Poll struct {
			Options []struct {
				ID string `json:"id"`
			} `json:"options"`
		} `json:"poll"`
	}
	if err := json.Unmarshal(getRec.Body.Bytes(), &getResp); err != nil {
		t.Fatalf("get poll: bad body: %v", err)
	}
	optionIDs := make([]string, 0, len(getResp.Poll.Options))
	for _, o := range getResp.Poll.Options {
		optionIDs = append(optionIDs, o.ID)
	}
	return resp["pollId"], optionIDs
}

func (e *testEnv) castVote(t *testing.T, pollID, optionID string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	body, _ := json.Marshal(map[string]string{"pollOptionId": optionID})
	req := httptest.NewRequest(http.MethodPost, "/polls/"+pollID+"/votes", bytes.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestVoteFlow(t *testing.T) {
	env := newTestEnv(t)
	pollID, options := env.createPoll(t, "best language?", "go", "rust")

	// First vote registers and issues a session cookie.
	rec := env.castVote(t, pollID, options[0], nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "Vote registered" {
		t.Fatalf("unexpected message %q", resp["message"])
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 || cookies[0].Name != "sessionId" {
		t.Fatalf("expected sessionId cookie, got %+v", cookies)
	}

	// Same option from the same session is a duplicate.
	rec = env.castVote(t, pollID, options[0], cookies)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if strings.TrimSpace(rec.Body.String()) != `{"error":"You can only vote once"}` {
		t.Fatalf("duplicate body not preserved: %s", rec.Body.String())
	}

	// A different option updates the vote.
	rec = env.castVote(t, pollID, options[1], cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["message"] != "Vote updated" {
		t.Fatalf("unexpected message %q", resp["message"])
	}
}

func TestVoteValidation(t *testing.T) {
	env := newTestEnv(t)
	pollID, options := env.createPoll(t, "best language?", "go", "rust")

	rec := env.castVote(t, "not-a-uuid", options[0], nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad poll id, got %d", rec.Code)
	}

	rec = env.castVote(t, pollID, "not-a-uuid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad option id, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/polls/"+pollID+"/votes", strings.NewReader("{"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad body, got %d", w.Code)
	}
}

func TestCreatePollValidation(t *testing.T) {
	env := newTestEnv(t)

	body, _ := json.Marshal(map[string]any{"title": "lonely", "options": []string{"only one"}})
	req := httptest.NewRequest(http.MethodPost, "/polls", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGetPollReflectsTallies(t *testing.T) {
	env := newTestEnv(t)
	pollID, options := env.createPoll(t, "best language?", "go", "rust")

	rec := env.castVote(t, pollID, options[0], nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	// Counter application is asynchronous; poll until the tally lands.
	deadline := time.Now().Add(2 * time.Second)
	for {
		req := httptest.NewRequest(http.MethodGet, "/polls/"+pollID, nil)
		getRec := httptest.NewRecorder()
		env.router.ServeHTTP(getRec, req)
		if getRec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", getRec.Code)
		}
		var resp struct {
			Poll struct {
				Options []struct {
					ID    string `json:"id"`
					Score int64  `json:"score"`
				} `json:"options"`
			} `json:"poll"`
		}
		_ = json.Unmarshal(getRec.Body.Bytes(), &resp)
		if resp.Poll.Options[0].Score == 1 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("tally never reached 1: %s", getRec.Body.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestResultsStream(t *testing.T) {
	env := newTestEnv(t)
	pollID, options := env.createPoll(t, "best language?", "go", "rust")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/polls/" + pollID + "/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	// Subscribing to another poll must not receive this poll's events.
	otherPollID, _ := env.createPoll(t, "tabs or spaces?", "tabs", "spaces")
	otherURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/polls/" + otherPollID + "/results"
	otherConn, _, err := websocket.DefaultDialer.Dial(otherURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer otherConn.Close()

	// The handler registers the subscription just after the upgrade
	// handshake; wait for it before voting.
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers(uuid.MustParse(pollID)) != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	rec := env.castVote(t, pollID, options[0], nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		PollOptionID string `json:"pollOptionId"`
		Votes        int64  `json:"votes"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read error: %v", err)
	}
	if msg.PollOptionID != options[0] || msg.Votes != 1 {
		t.Fatalf("unexpected message %+v", msg)
	}

	_ = otherConn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if err := otherConn.ReadJSON(&msg); err == nil {
		t.Fatalf("cross-poll event leaked: %+v", msg)
	}
}

func TestWSInvalidPollID(t *testing.T) {
	env := newTestEnv(t)
	req := httptest.NewRequest(http.MethodGet, "/polls/not-a-uuid/results", nil)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestDisconnectUnsubscribes(t *testing.T) {
	env := newTestEnv(t)
	pollID, _ := env.createPoll(t, "best language?", "go", "rust")

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/polls/" + pollID + "/results"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}

	id := uuid.MustParse(pollID)
	deadline := time.Now().Add(2 * time.Second)
	for env.hub.Subscribers(id) != 1 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if env.hub.Subscribers(id) != 1 {
		t.Fatal("subscription never registered")
	}

	conn.Close()

	for env.hub.Subscribers(id) != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if env.hub.Subscribers(id) != 0 {
		t.Fatal("disconnect did not unsubscribe")
	}
}
