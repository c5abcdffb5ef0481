package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/admitchat/backend/internal/domain"
	"github.com/admitchat/backend/internal/nlp"
	"github.com/admitchat/backend/internal/slots"
)

type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domain.Session // keyed by session ID
	saveErr  error
	creates  int

	// hideUserOnce makes the next GetSessionByUser for that user miss,
	// simulating a session created between lookup and insert.
	hideUserOnce string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{sessions: make(map[string]*domain.Session)}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	c.Slots = make(map[string]string, len(s.Slots))
	for k, v := range s.Slots {
		c.Slots[k] = v
	}
	c.Log = append([]domain.LogEntry(nil), s.Log...)
	return &c
}

func (f *fakeRepo) GetSession(_ context.Context, sessionID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.sessions[sessionID]
	if s == nil {
		return nil, nil
	}
	return copySession(s), nil
}

func (f *fakeRepo) GetSessionByUser(_ context.Context, userID string) (*domain.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hideUserOnce == userID {
		f.hideUserOnce = ""
		return nil, nil
	}
	for _, s := range f.sessions {
		if s.UserID == userID {
			return copySession(s), nil
		}
	}
	return nil, nil
}

func (f *fakeRepo) CreateSession(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	for _, s := range f.sessions {
		if s.UserID == session.UserID {
			return errors.New("UNIQUE constraint failed: sessions.user_id")
		}
	}
	f.sessions[session.SessionID] = copySession(session)
	return nil
}

func (f *fakeRepo) SaveSession(_ context.Context, session *domain.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return f.saveErr
	}
	if _, ok := f.sessions[session.SessionID]; !ok {
		return errors.New("session not found")
	}
	f.sessions[session.SessionID] = copySession(session)
	return nil
}

func (f *fakeRepo) Ping(_ context.Context) error { return nil }
func (f *fakeRepo) Close() error                 { return nil }

type fakeExtractor struct {
	fn func(query string) (*nlp.ExtractResult, error)
}

func (f *fakeExtractor) ExtractSlots(_ context.Context, query string) (*nlp.ExtractResult, error) {
	if f.fn == nil {
		return &nlp.ExtractResult{}, nil
	}
	return f.fn(query)
}

type fakeIntent struct {
	intent string
	err    error
}

func (f *fakeIntent) PredictIntent(_ context.Context, _ string) (string, error) {
	return f.intent, f.err
}

type fakeRetriever struct {
	answer *nlp.RetrievalAnswer
	err    error
	gotReq *nlp.RetrievalRequest
}

func (f *fakeRetriever) Query(_ context.Context, req nlp.RetrievalRequest) (*nlp.RetrievalAnswer, error) {
	f.gotReq = &req
	if f.err != nil {
		return nil, f.err
	}
	if f.answer != nil {
		return f.answer, nil
	}
	return &nlp.RetrievalAnswer{Answer: "answer", ContextUsed: map[string]any{}}, nil
}

func strPtr(s string) *string { return &s }

func extractorFor(name, value string) *fakeExtractor {
	return &fakeExtractor{fn: func(string) (*nlp.ExtractResult, error) {
		return &nlp.ExtractResult{Slots: []nlp.ExtractedSlot{{SlotName: name, Value: strPtr(value)}}}, nil
	}}
}

func TestStartIdempotent(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	first, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("first Start: %v", err)
	}
	second, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("second Start: %v", err)
	}

	if first.SessionID != second.SessionID {
		t.Errorf("expected same session id, got %q and %q", first.SessionID, second.SessionID)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("expected one stored session, got %d", len(repo.sessions))
	}
	if first.Text != WelcomeText {
		t.Errorf("unexpected welcome text %q", first.Text)
	}
}

func TestStartCreationRace(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	// A session that appears between the lookup and the insert must win.
	existing := &domain.Session{SessionID: "winner", UserID: "user-1", Slots: slots.Default().Empty()}
	repo.sessions["winner"] = existing
	repo.hideUserOnce = "user-1"

	res, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if res.SessionID != "winner" {
		t.Errorf("expected existing session to win, got %q", res.SessionID)
	}
	if repo.creates != 1 {
		t.Errorf("expected exactly one create attempt, got %d", repo.creates)
	}
	if len(repo.sessions) != 1 {
		t.Errorf("race must not duplicate sessions, got %d", len(repo.sessions))
	}
}

func TestStartMissingUserID(t *testing.T) {
	svc := NewService(newFakeRepo(), slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})
	if _, err := svc.Start(context.Background(), ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("expected ErrInvalidArgument, got %v", err)
	}
}

func TestAdvanceUnknownSession(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	if _, err := svc.Advance(context.Background(), "missing", "hello"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	if len(repo.sessions) != 0 {
		t.Error("not-found advance must not create records")
	}
}

func TestAdvanceExtractionFailure(t *testing.T) {
	repo := newFakeRepo()
	extractor := &fakeExtractor{fn: func(string) (*nlp.ExtractResult, error) {
		return nil, errors.New("extraction service down")
	}}
	svc := NewService(repo, slots.Default(), extractor, &fakeIntent{}, &fakeRetriever{})

	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}

	res, err := svc.Advance(context.Background(), started.SessionID, "I want a BSc")
	if err != nil {
		t.Fatalf("Advance should absorb collaborator failure, got %v", err)
	}
	if res.Complete {
		t.Error("session must not complete on failed extraction")
	}
	if res.NextQuestion != slots.Default().Question("course") {
		t.Errorf("expected first slot question, got %q", res.NextQuestion)
	}

	stored := repo.sessions[started.SessionID]
	if len(stored.Log) != 1 {
		t.Fatalf("expected one log entry, got %d", len(stored.Log))
	}
	if stored.Log[0].Question != domain.InitialQueryLabel {
		t.Errorf("expected initial query label, got %q", stored.Log[0].Question)
	}
	for name, value := range stored.Slots {
		if value != "" {
			t.Errorf("slot %q changed on failed extraction: %q", name, value)
		}
	}
}

func TestAdvanceUnknownSlotName(t *testing.T) {
	repo := newFakeRepo()
	extractor := &fakeExtractor{fn: func(string) (*nlp.ExtractResult, error) {
		return &nlp.ExtractResult{Slots: []nlp.ExtractedSlot{
			{SlotName: "favourite_color", Value: strPtr("blue")},
			{SlotName: "course", Value: strPtr("BSc IT")},
			{SlotName: "location", Value: nil},
		}}, nil
	}}
	svc := NewService(repo, slots.Default(), extractor, &fakeIntent{}, &fakeRetriever{})

	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Advance(context.Background(), started.SessionID, "blue, BSc IT")
	if err != nil {
		t.Fatal(err)
	}

	if res.CurrentSlots["course"] != "BSc IT" {
		t.Errorf("recognized slot not filled: %v", res.CurrentSlots)
	}
	if _, ok := res.CurrentSlots["favourite_color"]; ok {
		t.Error("unknown slot name leaked into session slots")
	}
	if res.CurrentSlots["location"] != "" {
		t.Errorf("null-valued record must be dropped, got %q", res.CurrentSlots["location"])
	}
}

func TestAdvanceOverwritesEarlierAnswer(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), extractorFor("course", "BSc IT"), &fakeIntent{}, &fakeRetriever{})
	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Advance(context.Background(), started.SessionID, "BSc IT"); err != nil {
		t.Fatal(err)
	}

	svc = NewService(repo, slots.Default(), extractorFor("course", "MCA"), &fakeIntent{}, &fakeRetriever{})
	res, err := svc.Advance(context.Background(), started.SessionID, "actually MCA")
	if err != nil {
		t.Fatal(err)
	}
	if res.CurrentSlots["course"] != "MCA" {
		t.Errorf("later extraction must overwrite, got %q", res.CurrentSlots["course"])
	}
}

func TestEndToEndFourteenTurns(t *testing.T) {
	schema := slots.Default()
	repo := newFakeRepo()

	order := schema.Order()
	turn := 0
	extractor := &fakeExtractor{fn: func(string) (*nlp.ExtractResult, error) {
		name := order[turn]
		turn++
		return &nlp.ExtractResult{Slots: []nlp.ExtractedSlot{
			{SlotName: name, Value: strPtr(fmt.Sprintf("value-%s", name))},
		}}, nil
	}}
	retriever := &fakeRetriever{answer: &nlp.RetrievalAnswer{
		Answer:      "Here are your colleges.",
		ContextUsed: map[string]any{"docs": 2},
	}}
	svc := NewService(repo, schema, extractor, &fakeIntent{intent: "college_search"}, retriever)

	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}

	var last *TurnResult
	for i := 0; i < schema.Len(); i++ {
		last, err = svc.Advance(context.Background(), started.SessionID, fmt.Sprintf("answer %d", i+1))
		if err != nil {
			t.Fatalf("turn %d: %v", i+1, err)
		}
		if i < schema.Len()-1 {
			if last.Complete {
				t.Fatalf("turn %d: completed early", i+1)
			}
			wantNext := schema.Question(order[i+1])
			if last.NextQuestion != wantNext {
				t.Fatalf("turn %d: expected question %q, got %q", i+1, wantNext, last.NextQuestion)
			}
		}
	}

	if !last.Complete {
		t.Fatal("expected completion after final turn")
	}
	if last.Reply != CompletionBanner {
		t.Errorf("expected completion banner, got %q", last.Reply)
	}
	if last.RAGAnswer == nil || last.RAGAnswer.Answer != "Here are your colleges." {
		t.Errorf("unexpected retrieval answer: %+v", last.RAGAnswer)
	}

	stored := repo.sessions[started.SessionID]
	if !stored.IsComplete {
		t.Error("stored session should be complete")
	}
	if stored.Intent != "college_search" {
		t.Errorf("expected stored intent, got %q", stored.Intent)
	}

	transcript := stored.Transcript()
	if n := strings.Count(transcript, "\n\n") + 1; n != 14 {
		t.Errorf("expected 14 Q/A pairs, got %d", n)
	}
	// Each turn logs the question the answer responded to; with no prompt
	// ever written into the log that stays the initial-query label.
	for i, entry := range stored.Log {
		if entry.Question != domain.InitialQueryLabel {
			t.Errorf("log entry %d question = %q, want %q", i, entry.Question, domain.InitialQueryLabel)
		}
	}

	if retriever.gotReq == nil {
		t.Fatal("retriever was not called")
	}
	wantQuery := make([]string, 0, len(order))
	for _, name := range order {
		wantQuery = append(wantQuery, "value-"+name)
	}
	if retriever.gotReq.UserQuery != strings.Join(wantQuery, " ") {
		t.Errorf("user_query not joined in schema order: %q", retriever.gotReq.UserQuery)
	}
	if retriever.gotReq.Intent != "college_search" {
		t.Errorf("payload intent = %q", retriever.gotReq.Intent)
	}
	if retriever.gotReq.Logs != transcript {
		t.Error("payload logs differ from session transcript")
	}
}

func TestCompletionWithFailingCollaborators(t *testing.T) {
	schema, err := slots.NewSchema(
		[]string{"course"},
		map[string]string{"course": "Which course?"},
	)
	if err != nil {
		t.Fatal(err)
	}

	repo := newFakeRepo()
	svc := NewService(repo, schema,
		extractorFor("course", "BSc"),
		&fakeIntent{err: errors.New("intent service down")},
		&fakeRetriever{err: errors.New("rag service down")},
	)

	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	res, err := svc.Advance(context.Background(), started.SessionID, "BSc")
	if err != nil {
		t.Fatalf("Advance must absorb collaborator failures, got %v", err)
	}

	if !res.Complete {
		t.Fatal("expected completion")
	}
	if res.RAGAnswer == nil || res.RAGAnswer.Answer != "RAG API failed" {
		t.Errorf("expected failure answer, got %+v", res.RAGAnswer)
	}
	if repo.sessions[started.SessionID].Intent != "unknown" {
		t.Errorf("expected default intent, got %q", repo.sessions[started.SessionID].Intent)
	}
}

func TestAdvancePersistenceFailure(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	started, err := svc.Start(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	repo.saveErr = errors.New("disk full")

	if _, err := svc.Advance(context.Background(), started.SessionID, "hello"); err == nil {
		t.Fatal("persistence failure must surface to the caller")
	}
}

func TestResetClearsEverything(t *testing.T) {
	schema := slots.Default()
	repo := newFakeRepo()
	svc := NewService(repo, schema, &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	filled := schema.Empty()
	for _, name := range schema.Order() {
		filled[name] = "value"
	}
	repo.sessions["s1"] = &domain.Session{
		SessionID:   "s1",
		UserID:      "user-1",
		Slots:       filled,
		Log:         []domain.LogEntry{{Question: "User Query", Answer: "hi"}},
		Intent:      "college_search",
		APIResponse: `{"answer":"cached"}`,
		IsComplete:  true,
	}

	res, err := svc.Reset(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if res.NextQuestion != schema.Question(schema.First()) {
		t.Errorf("expected first slot question, got %q", res.NextQuestion)
	}

	stored := repo.sessions["s1"]
	for name, value := range stored.Slots {
		if value != "" {
			t.Errorf("slot %q not cleared: %q", name, value)
		}
	}
	if len(stored.Slots) != schema.Len() {
		t.Errorf("expected %d slot keys after reset, got %d", schema.Len(), len(stored.Slots))
	}
	if len(stored.Log) != 0 {
		t.Error("log not cleared")
	}
	if stored.Intent != "" {
		t.Error("intent not cleared")
	}
	if stored.APIResponse != "" {
		t.Error("cached API response not cleared")
	}
	if stored.IsComplete {
		t.Error("completion flag not cleared")
	}
}

func TestResetUnknownSession(t *testing.T) {
	svc := NewService(newFakeRepo(), slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})
	if _, err := svc.Reset(context.Background(), "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestQueriesUnknownUser(t *testing.T) {
	svc := NewService(newFakeRepo(), slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})
	ctx := context.Background()

	if _, err := svc.Slots(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Slots: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Transcript(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Transcript: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Intent(ctx, "ghost"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Intent: expected ErrSessionNotFound, got %v", err)
	}
	if _, err := svc.Slots(ctx, ""); !errors.Is(err, ErrInvalidArgument) {
		t.Errorf("Slots: expected ErrInvalidArgument, got %v", err)
	}
}

func TestIntentPlaceholder(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo, slots.Default(), &fakeExtractor{}, &fakeIntent{}, &fakeRetriever{})

	if _, err := svc.Start(context.Background(), "user-1"); err != nil {
		t.Fatal(err)
	}
	intent, err := svc.Intent(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if intent != NoIntentLabel {
		t.Errorf("expected %q, got %q", NoIntentLabel, intent)
	}
}
