// Package dialogue implements the slot-filling session state machine and
// the per-turn orchestration over the AI collaborators.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/admitchat/backend/internal/domain"
	"github.com/admitchat/backend/internal/nlp"
	"github.com/admitchat/backend/internal/shared"
	"github.com/admitchat/backend/internal/slots"
	"github.com/admitchat/backend/internal/store"
	"github.com/google/uuid"
)

// Fixed user-facing strings.
const (
	WelcomeText = "Welcome to the Gujarat University Admission Chatbot! " +
		"You can ask any question about Gujarat University and its colleges."
	CompletionBanner = "✅ All slots are filled! Here are your results:"
	UpdatedReply     = "Got it! I've updated your information."
	ProcessingLabel  = "Thank you. Processing..."
	NoIntentLabel    = "No intent found"

	unknownIntent          = "unknown"
	retrievalFailureAnswer = "RAG API failed"
)

var (
	// ErrSessionNotFound is returned when an identifier does not resolve
	// to a session. No state is mutated.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidArgument is returned for missing required parameters.
	ErrInvalidArgument = errors.New("invalid argument")
)

// Service owns the session lifecycle: creation, per-turn advance, reset,
// and the read queries. Collaborator failures are absorbed with safe
// defaults so a turn always reaches a valid next state; only invalid
// input, unknown sessions, and persistence errors surface to the caller.
//
// Concurrent Advance calls for the same session are not guarded here;
// single-writer-per-session is the caller's responsibility.
type Service struct {
	repo      store.Repository
	schema    slots.Schema
	extractor nlp.SlotExtractor
	intents   nlp.IntentClassifier
	retriever nlp.Retriever
}

// NewService wires the state machine to its store and collaborators.
func NewService(repo store.Repository, schema slots.Schema, extractor nlp.SlotExtractor, intents nlp.IntentClassifier, retriever nlp.Retriever) *Service {
	return &Service{
		repo:      repo,
		schema:    schema,
		extractor: extractor,
		intents:   intents,
		retriever: retriever,
	}
}

// StartResult is the response to Start.
type StartResult struct {
	SessionID string
	Message   string
	Text      string
}

// TurnResult is the response to Advance. Either NextQuestion and
// CurrentSlots are set (incomplete) or RAGAnswer is set (complete).
type TurnResult struct {
	SessionID    string
	Reply        string
	NextQuestion string
	CurrentSlots map[string]string
	RAGAnswer    *nlp.RetrievalAnswer
	Complete     bool
}

// ResetResult is the response to Reset.
type ResetResult struct {
	Message      string
	NextQuestion string
}

// Start fetches or creates the session for userID. Calling it repeatedly
// for the same user returns the same session; the user_id uniqueness
// constraint backs the idempotency under races.
func (s *Service) Start(ctx context.Context, userID string) (*StartResult, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId required", ErrInvalidArgument)
	}

	session, err := s.repo.GetSessionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session for user %s: %w", userID, err)
	}
	if session == nil {
		now := time.Now()
		session = &domain.Session{
			SessionID: uuid.NewString(),
			UserID:    userID,
			Slots:     s.schema.Empty(),
			Log:       []domain.LogEntry{},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.CreateSession(ctx, session); err != nil {
			if !shared.IsSQLiteConstraintError(err) {
				return nil, fmt.Errorf("create session for user %s: %w", userID, err)
			}
			// Lost a creation race; the winner's session is the session.
			session, err = s.repo.GetSessionByUser(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("reload session for user %s: %w", userID, err)
			}
			if session == nil {
				return nil, fmt.Errorf("session for user %s vanished after create conflict", userID)
			}
		} else {
			slog.Info("Session created", "user_id", userID, "session_id", session.SessionID)
		}
	}

	return &StartResult{
		SessionID: session.SessionID,
		Message:   "Session started",
		Text:      WelcomeText,
	}, nil
}

// Advance runs one turn: extract slots from the answer, merge them, log
// the turn, and either prompt for the next slot or complete the dialogue
// with an aggregated retrieval answer.
func (s *Service) Advance(ctx context.Context, sessionID, answer string) (*TurnResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrInvalidArgument)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	// The answer responds to the question asked last turn; before any
	// prompt exists it is treated as the user's initial query. The log
	// entry records that same question, so the log pairs each answer
	// with the question it answered, one turn behind the prompt being
	// sent out. The transcript format depends on this pairing.
	question := session.LastQuestion()

	extracted := s.extractSlots(ctx, question, answer)
	merged, changed := s.schema.Merge(session.Slots, extracted)
	if changed {
		session.Slots = merged
	}
	session.AppendLog(question, answer)

	result := &TurnResult{SessionID: session.SessionID}
	if s.schema.IsComplete(session.Slots) {
		session.IsComplete = true
		result.Complete = true
		result.Reply = CompletionBanner
		result.RAGAnswer = s.completeDialogue(ctx, session)
	} else {
		result.Reply = UpdatedReply
		result.CurrentSlots = session.Slots
		if next, ok := s.schema.NextEmpty(session.Slots); ok {
			result.NextQuestion = s.schema.Question(next)
		} else {
			// Unreachable while IsComplete and NextEmpty agree.
			result.NextQuestion = ProcessingLabel
		}
	}

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", sessionID, err)
	}
	return result, nil
}

// extractSlots calls the extraction service and absorbs failures into an
// empty extraction so the turn still completes.
func (s *Service) extractSlots(ctx context.Context, question, answer string) map[string]string {
	prompt := fmt.Sprintf(
		"This is question %q and the user gave this answer: %q. Extract slots according to the question and answer.",
		question, answer,
	)
	result, err := s.extractor.ExtractSlots(ctx, prompt)
	if err != nil {
		slog.Warn("Slot extraction failed, continuing with no slots", "error", err)
		return map[string]string{}
	}
	return result.Flatten()
}

// completeDialogue runs the terminal transition: classify the intent over
// the joined slot values, aggregate slots+intent+transcript, and fetch the
// retrieval answer. Both collaborator calls degrade to defaults on failure.
func (s *Service) completeDialogue(ctx context.Context, session *domain.Session) *nlp.RetrievalAnswer {
	values := make([]string, 0, s.schema.Len())
	for _, name := range s.schema.Order() {
		values = append(values, session.Slots[name])
	}
	intentText := strings.Join(values, " ")

	intent, err := s.intents.PredictIntent(ctx, intentText)
	if err != nil {
		slog.Warn("Intent prediction failed, using default", "error", err)
		intent = unknownIntent
	}
	session.Intent = intent

	payload := nlp.RetrievalRequest{
		UserID:    session.UserID,
		UserQuery: intentText,
		Slots:     session.Slots,
		Intent:    session.Intent,
		Logs:      session.Transcript(),
	}
	answer, err := s.retriever.Query(ctx, payload)
	if err != nil {
		slog.Warn("Retrieval query failed, using failure answer", "error", err)
		answer = &nlp.RetrievalAnswer{
			Answer:      retrievalFailureAnswer,
			ContextUsed: map[string]any{},
		}
	}

	if raw, err := json.Marshal(answer); err == nil {
		session.APIResponse = string(raw)
	}

	slog.Info("Dialogue complete",
		"user_id", session.UserID,
		"session_id", session.SessionID,
		"intent", session.Intent,
		"turns", len(session.Log),
	)
	return answer
}

// Reset returns the session to its initial state: all slots empty, log
// and intent cleared, cached retrieval answer dropped, completion flag
// down. The first slot's question is returned as the next prompt.
func (s *Service) Reset(ctx context.Context, sessionID string) (*ResetResult, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: sessionId required", ErrInvalidArgument)
	}

	session, err := s.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	session.Slots = s.schema.Empty()
	session.Log = []domain.LogEntry{}
	session.Intent = ""
	session.APIResponse = ""
	session.IsComplete = false

	if err := s.repo.SaveSession(ctx, session); err != nil {
		return nil, fmt.Errorf("persist session %s: %w", sessionID, err)
	}

	slog.Info("Session reset", "user_id", session.UserID, "session_id", sessionID)
	return &ResetResult{
		Message:      "Session reset",
		NextQuestion: s.schema.Question(s.schema.First()),
	}, nil
}

// Slots returns the user's current slot map.
func (s *Service) Slots(ctx context.Context, userID string) (map[string]string, error) {
	session, err := s.loadByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return session.Slots, nil
}

// Transcript returns the user's log rendered as Q/A pairs.
func (s *Service) Transcript(ctx context.Context, userID string) (string, error) {
	session, err := s.loadByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return session.Transcript(), nil
}

// Intent returns the user's stored intent, or a placeholder when the
// dialogue has not completed yet.
func (s *Service) Intent(ctx context.Context, userID string) (string, error) {
	session, err := s.loadByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	if session.Intent == "" {
		return NoIntentLabel, nil
	}
	return session.Intent, nil
}

func (s *Service) loadByUser(ctx context.Context, userID string) (*domain.Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: userId required", ErrInvalidArgument)
	}
	session, err := s.repo.GetSessionByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session for user %s: %w", userID, err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}
	return session, nil
}
