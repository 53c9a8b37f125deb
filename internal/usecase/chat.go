package usecase

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"recordchat-agent/internal/domain"
	"recordchat-agent/internal/integrations/platform"
)

const (
	defaultMaxUtteranceLen  = 500
	defaultMaxQueryLimit    = 50
	defaultQueryLimit       = 5
	defaultCapabilityWait   = 8 * time.Second
	defaultSchemaCacheTTL   = 5 * time.Minute
	defaultTargetObjectName = "Account"
)

// CapabilityClient is the boundary to the external schema-discovery and
// query platform. *platform.Client satisfies it; tests substitute fakes.
type CapabilityClient interface {
	AvailableFields(ctx context.Context, objectName string) ([]string, error)
	ExecuteQuery(ctx context.Context, spec domain.QuerySpec) (platform.QueryResult, error)
	ObjectInsights(ctx context.Context, objectName string) (platform.ObjectInsights, error)
	TopFields(ctx context.Context, objectName string, n int) ([]platform.FieldUsage, error)
	GenerateContextBundle(ctx context.Context, objectName string, opts platform.BundleOptions) (platform.ContextBundle, error)
}

// ConversationStore holds per-user session windows. Append is expected to
// evict the oldest turn once the configured window is exceeded.
type ConversationStore interface {
	Append(ctx context.Context, turn domain.Turn) error
	History(ctx context.Context, userID string) ([]domain.Turn, error)
	Stats(ctx context.Context, userID string) (domain.SessionStats, error)
}

// Config tunes the agent. Zero values fall back to conservative defaults.
type Config struct {
	DefaultObject     string
	KnownObjects      []string
	MaxUtteranceLen   int
	MaxQueryLimit     int
	DefaultQueryLimit int
	CapabilityTimeout time.Duration
	SchemaCacheTTL    time.Duration
}

// ChatService is the conversational agent core: it resolves intents,
// synthesizes bounded queries, dispatches at most one capability call per
// turn, and records every turn in the conversation store.
type ChatService struct {
	capability CapabilityClient
	resolver   *Resolver
	store      ConversationStore
	now        func() time.Time

	maxUtteranceLen   int
	maxQueryLimit     int
	defaultQueryLimit int
	capabilityTimeout time.Duration
	schemaCacheTTL    time.Duration

	locksMu   sync.Mutex
	userLocks map[string]*sync.Mutex

	schemaMu    sync.RWMutex
	schemaCache map[string]schemaEntry
}

type schemaEntry struct {
	fields    []string
	insights  platform.ObjectInsights
	expiresAt time.Time
}

type ProcessInput struct {
	UserID     string
	Text       string
	ObjectHint string
}

type ProcessOutput struct {
	Response       string
	FunctionCalled string
	FunctionResult *domain.CapabilityResult
}

// NewChatService wires the agent. classifier may be nil; resolution then
// degrades to the deterministic heuristic whenever the rule table misses.
func NewChatService(capability CapabilityClient, classifier Classifier, store ConversationStore, cfg Config) (*ChatService, error) {
	if capability == nil {
		return nil, errors.New("usecase: capability client must not be nil")
	}
	if store == nil {
		return nil, errors.New("usecase: conversation store must not be nil")
	}
	if cfg.DefaultObject == "" {
		cfg.DefaultObject = defaultTargetObjectName
	}
	if cfg.MaxUtteranceLen <= 0 {
		cfg.MaxUtteranceLen = defaultMaxUtteranceLen
	}
	if cfg.MaxQueryLimit <= 0 {
		cfg.MaxQueryLimit = defaultMaxQueryLimit
	}
	if cfg.DefaultQueryLimit <= 0 {
		cfg.DefaultQueryLimit = defaultQueryLimit
	}
	if cfg.CapabilityTimeout <= 0 {
		cfg.CapabilityTimeout = defaultCapabilityWait
	}
	if cfg.SchemaCacheTTL <= 0 {
		cfg.SchemaCacheTTL = defaultSchemaCacheTTL
	}
	return &ChatService{
		capability:        capability,
		resolver:          NewResolver(classifier, cfg.KnownObjects, cfg.DefaultObject),
		store:             store,
		now:               time.Now,
		maxUtteranceLen:   cfg.MaxUtteranceLen,
		maxQueryLimit:     cfg.MaxQueryLimit,
		defaultQueryLimit: cfg.DefaultQueryLimit,
		capabilityTimeout: cfg.CapabilityTimeout,
		schemaCacheTTL:    cfg.SchemaCacheTTL,
		userLocks:         make(map[string]*sync.Mutex),
		schemaCache:       make(map[string]schemaEntry),
	}, nil
}

// ProcessMessage handles one turn for one user. Turns for the same user are
// processed strictly sequentially; every internal failure is converted into a
// conversational reply plus a recorded turn, so the only error return is
// input validation.
func (s *ChatService) ProcessMessage(ctx context.Context, in ProcessInput) (ProcessOutput, error) {
	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		return ProcessOutput{}, newError(ErrorInvalidInput, "empty_user_id", nil)
	}
	if len(in.Text) > s.maxUtteranceLen {
		return ProcessOutput{}, newError(ErrorInvalidInput, "utterance_too_long", nil)
	}

	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	start := s.now()

	// History is read before the new turn is appended; recall replies must
	// only ever see turns strictly prior to this one.
	history, err := s.store.History(ctx, userID)
	if err != nil {
		history = nil
	}

	intent := s.resolver.Resolve(ctx, in.Text, in.ObjectHint, lastDiscussedObject(history))
	outcome := s.runTurn(ctx, intent)
	reply := respond(intent, outcome, history)

	turn := domain.Turn{
		ID:             newTurnID(),
		UserID:         userID,
		Utterance:      in.Text,
		Intent:         intent,
		FunctionCalled: outcome.FunctionCalled,
		FunctionResult: outcome.Result,
		Reply:          reply,
		Timestamp:      start,
		DurationMs:     s.now().Sub(start).Milliseconds(),
	}
	if outcome.Err != nil {
		turn.ErrorDetail = outcome.Err.Error()
	}
	// The turn is recorded even when the capability call failed; losing the
	// append only loses diagnostics, never the reply.
	_ = s.store.Append(ctx, turn)

	out := ProcessOutput{Response: reply}
	if outcome.Err == nil {
		out.FunctionCalled = outcome.FunctionCalled
		out.FunctionResult = outcome.Result
	}
	return out, nil
}

// runTurn prepares the query (when the operation needs one) and dispatches
// the turn's single capability call.
func (s *ChatService) runTurn(ctx context.Context, intent domain.Intent) DispatchOutcome {
	if intent.Operation != domain.OpListRecords {
		return s.dispatch(ctx, intent, domain.QuerySpec{})
	}

	fields, insights, err := s.objectSchema(ctx, intent.TargetObject)
	if err != nil {
		return DispatchOutcome{Err: capabilityError("available_fields", err)}
	}
	spec, warnings, synthErr := SynthesizeQuery(intent, fields, insights, s.defaultQueryLimit, s.maxQueryLimit)
	if synthErr != nil {
		var typed *Error
		if !errors.As(synthErr, &typed) {
			typed = newError(ErrorInternal, "synthesis_failed", synthErr)
		}
		return DispatchOutcome{Err: typed}
	}

	outcome := s.dispatch(ctx, intent, spec)
	outcome.Warnings = append(outcome.Warnings, warnings...)
	return outcome
}

// ConversationStats reports session counters for a user. Unknown users get a
// zero-value stats object, never an error.
func (s *ChatService) ConversationStats(ctx context.Context, userID string) domain.SessionStats {
	stats, err := s.store.Stats(ctx, strings.TrimSpace(userID))
	if err != nil {
		return domain.SessionStats{}
	}
	return stats
}

// RefreshObjectContext asks the platform to regenerate its discovery bundle
// for an object and drops the local schema cache entry so the next turn sees
// the refreshed metadata. This is a maintenance action, never part of a chat
// turn.
func (s *ChatService) RefreshObjectContext(ctx context.Context, objectName string) (platform.ContextBundle, error) {
	objectName = strings.TrimSpace(objectName)
	if objectName == "" {
		return platform.ContextBundle{}, newError(ErrorInvalidInput, "empty_object_name", nil)
	}
	bundle, err := s.capability.GenerateContextBundle(ctx, objectName, platform.BundleOptions{IncludeSamples: true})
	if err != nil {
		return platform.ContextBundle{}, capabilityError("generate_context_bundle", err)
	}
	s.schemaMu.Lock()
	delete(s.schemaCache, strings.ToLower(objectName))
	s.schemaMu.Unlock()
	return bundle, nil
}

// objectSchema returns the discovered fields and insights for an object,
// cached for the configured TTL so repeated turns about one object do not
// re-run discovery.
func (s *ChatService) objectSchema(ctx context.Context, objectName string) ([]string, platform.ObjectInsights, error) {
	key := strings.ToLower(objectName)

	s.schemaMu.RLock()
	entry, ok := s.schemaCache[key]
	s.schemaMu.RUnlock()
	if ok && s.now().Before(entry.expiresAt) {
		return entry.fields, entry.insights, nil
	}

	fields, err := s.capability.AvailableFields(ctx, objectName)
	if err != nil {
		return nil, platform.ObjectInsights{}, err
	}
	// Insights enrich field selection but are not load-bearing; discovery
	// still succeeds without them.
	insights, err := s.capability.ObjectInsights(ctx, objectName)
	if err != nil {
		insights = platform.ObjectInsights{}
	}

	s.schemaMu.Lock()
	s.schemaCache[key] = schemaEntry{
		fields:    fields,
		insights:  insights,
		expiresAt: s.now().Add(s.schemaCacheTTL),
	}
	s.schemaMu.Unlock()
	return fields, insights, nil
}

func (s *ChatService) userLock(userID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.userLocks[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.userLocks[userID] = lock
	}
	return lock
}

// lastDiscussedObject finds the most recent turn that targeted a concrete
// object, for grounding follow-up utterances that name none.
func lastDiscussedObject(history []domain.Turn) string {
	for i := len(history) - 1; i >= 0; i-- {
		if obj := history[i].Intent.TargetObject; obj != "" {
			return obj
		}
	}
	return ""
}

var newTurnID = func() string {
	return uuid.NewString()
}
