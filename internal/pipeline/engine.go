package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/wigtn/wigtn-spot-finder/internal/config"
	"github.com/wigtn/wigtn-spot-finder/internal/events"
	"github.com/wigtn/wigtn-spot-finder/internal/lease"
	"github.com/wigtn/wigtn-spot-finder/internal/memory"
	"github.com/wigtn/wigtn-spot-finder/internal/provider"
	"github.com/wigtn/wigtn-spot-finder/internal/summarizer"
	"github.com/wigtn/wigtn-spot-finder/internal/thread"
	"github.com/wigtn/wigtn-spot-finder/internal/tokens"
)

// Engine runs one conversation turn end to end: lease the thread, prepare
// context through the stages, call the model, persist the exchange and emit
// events along the way.
type Engine struct {
	store       *thread.Store
	guard       lease.Guard
	provider    provider.LLMProvider
	model       string
	maxTokens   int
	temperature float64
	counter     *tokens.Counter
	memSvc      *memory.Service
	emitter     *events.Emitter
	stages      []Stage
	maxRetries  int
	retryBase   time.Duration
}

// TurnResult is what a completed turn hands back to the caller.
type TurnResult struct {
	ThreadID   string        `json:"thread_id"`
	Response   string        `json:"response"`
	TurnNumber int           `json:"turn_number"`
	Stage      thread.Stage  `json:"stage"`
	Intent     string        `json:"intent"`
	TokensUsed int           `json:"tokens_used"`
	LatencyMS  int64         `json:"latency_ms"`
	Memories   int           `json:"memories_used"`
	Budget     tokens.Budget `json:"-"`
}

// NewEngine wires the stage sequence from its collaborators. Retriever,
// memSvc and emitter may be nil; the corresponding behavior degrades to a
// no-op.
func NewEngine(
	cfg *config.Config,
	store *thread.Store,
	guard lease.Guard,
	prov provider.LLMProvider,
	counter *tokens.Counter,
	retriever *memory.Retriever,
	memSvc *memory.Service,
	summ *summarizer.Summarizer,
	emitter *events.Emitter,
) *Engine {
	e := &Engine{
		store:       store,
		guard:       guard,
		provider:    prov,
		model:       cfg.Model.Name,
		maxTokens:   cfg.Model.MaxTokens,
		temperature: cfg.Model.Temperature,
		counter:     counter,
		memSvc:      memSvc,
		emitter:     emitter,
		maxRetries:  cfg.Model.MaxRetries,
		retryBase:   cfg.Model.RetryBaseDelay,
	}
	if e.maxRetries <= 0 {
		e.maxRetries = 1
	}
	emit := EmitFunc(e.emit)
	e.stages = []Stage{
		&ValidationStage{MaxChars: cfg.Context.MaxInputChars},
		MetadataStage{},
		&RetrievalStage{Retriever: retriever, WarmupTurns: cfg.Context.WarmupTurns, Emit: emit},
		&TrimmingStage{
			Store:      store,
			Counter:    counter,
			SoftLimit:  cfg.Context.SoftLimitTokens,
			HardLimit:  cfg.Context.HardLimitTokens,
			KeepRecent: cfg.Context.KeepRecentMessages,
			Emit:       emit,
		},
		&SummarizationStage{Store: store, Summarizer: summ, Memory: memSvc, Emit: emit},
		&PromptStage{Store: store},
	}
	return e
}

// HandleTurn processes one user message on a thread. Exactly one turn runs
// per thread at a time; a second concurrent call fails fast with
// lease.ConflictError.
func (e *Engine) HandleTurn(ctx context.Context, threadID, userID, language, message string) (*TurnResult, error) {
	started := time.Now()

	held, err := e.guard.Acquire(ctx, threadID)
	if err != nil {
		if lease.IsConflict(err) {
			e.emit(events.New(events.KindConflictRejected, threadID))
		}
		return nil, err
	}
	defer e.guard.Release(held)

	e.emit(events.New(events.KindRequestStarted, threadID))

	t, err := e.store.GetOrCreate(ctx, threadID, userID, language)
	if err != nil {
		e.emitError(threadID, "STORAGE_ERROR", err)
		return nil, err
	}

	tc := &TurnContext{
		Thread:    t,
		UserID:    userID,
		Language:  t.Language,
		RawInput:  message,
		StartedAt: started,
	}
	for _, stage := range e.stages {
		if err := stage.Run(ctx, tc); err != nil {
			e.emitStageError(tc, stage, err)
			return nil, err
		}
	}

	resp, err := e.chatWithRetry(ctx, tc.Prompt)
	if err != nil {
		e.emitError(threadID, "MODEL_UNAVAILABLE", err)
		return nil, err
	}
	tc.Response = resp

	turnIndex := t.TurnCount
	tc.Entities = ExtractEntities(tc.Input, resp.Content, turnIndex)
	if len(tc.Entities) > 0 {
		e.emit(events.New(events.KindEntityExtracted, threadID).
			WithPayload("count", len(tc.Entities)))
	}

	t.Stage = tc.NextStage
	user := thread.Message{
		ThreadID:   threadID,
		TurnIndex:  turnIndex,
		Role:       thread.RoleUser,
		Content:    tc.Input,
		TokenCount: e.counter.CountMessage(tc.Input),
	}
	assistant := thread.Message{
		ThreadID:   threadID,
		TurnIndex:  turnIndex,
		Role:       thread.RoleAssistant,
		Content:    resp.Content,
		TokenCount: e.counter.CountMessage(resp.Content),
	}
	if err := e.store.CommitTurn(ctx, t, user, assistant, tc.Entities); err != nil {
		e.emitError(threadID, "STORAGE_ERROR", err)
		return nil, err
	}

	// Long-term memory write is best effort; the turn already succeeded.
	if e.memSvc != nil && e.memSvc.Enabled() {
		if err := e.memSvc.RememberTurn(ctx, threadID, turnIndex, tc.Input, resp.Content); err != nil {
			e.emit(events.New(events.KindMemoryDegraded, threadID).
				WithError("MEMORY_UNAVAILABLE", err.Error()))
		} else {
			e.emit(events.New(events.KindMemoryStored, threadID).
				WithPayload("turn_index", turnIndex))
		}
	}

	latency := time.Since(started).Milliseconds()
	tokensUsed := resp.Usage.TotalTokens
	if tokensUsed == 0 {
		tokensUsed = tc.Budget.Used
	}
	done := events.New(events.KindRequestCompleted, threadID)
	done.UserID = userID
	done.LatencyMS = latency
	done.TokenCount = tokensUsed
	e.emit(done)

	return &TurnResult{
		ThreadID:   threadID,
		Response:   resp.Content,
		TurnNumber: t.TurnCount,
		Stage:      t.Stage,
		Intent:     tc.Intent,
		TokensUsed: tokensUsed,
		LatencyMS:  latency,
		Memories:   len(tc.Records),
		Budget:     tc.Budget,
	}, nil
}

// chatWithRetry calls the model with exponential backoff on retryable
// failures. Exhaustion surfaces as ModelUnavailableError.
func (e *Engine) chatWithRetry(ctx context.Context, prompt []provider.Message) (*provider.ChatResponse, error) {
	req := &provider.ChatRequest{
		Messages:    prompt,
		Model:       e.model,
		MaxTokens:   e.maxTokens,
		Temperature: e.temperature,
	}
	var lastErr error
	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		resp, err := e.provider.Chat(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !provider.Retryable(err) || attempt == e.maxRetries {
			break
		}
		delay := e.retryBase * time.Duration(1<<(attempt-1))
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, &provider.ModelUnavailableError{Model: e.model, Attempts: e.maxRetries, Err: lastErr}
}

func (e *Engine) emit(event events.AgentEvent) {
	if e.emitter != nil {
		e.emitter.Emit(event)
	}
}

func (e *Engine) emitError(threadID, code string, err error) {
	e.emit(events.New(events.KindErrorOccurred, threadID).WithError(code, err.Error()))
}

func (e *Engine) emitStageError(tc *TurnContext, stage Stage, err error) {
	var re *RejectedInputError
	if errors.As(err, &re) {
		if re.Code == CodePromptInjection {
			e.emit(events.New(events.KindPromptInjectionDetected, tc.Thread.ThreadID))
		}
		e.emit(events.New(events.KindErrorOccurred, tc.Thread.ThreadID).
			WithError(re.Code, re.Message).
			WithPayload("stage", stage.Name()))
		return
	}
	e.emit(events.New(events.KindErrorOccurred, tc.Thread.ThreadID).
		WithError("STAGE_FAILED", err.Error()).
		WithPayload("stage", stage.Name()))
}
