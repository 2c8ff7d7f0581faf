// Package orchestrator coordinates the full message pipeline: context
// retrieval, knowledge lookup, NLU analysis, generation, personality
// rewriting, context update, and analytics. It is the only package that
// sees the pipeline end to end.
package orchestrator

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/talkpipe/talkpipe/internal/analytics"
	"github.com/talkpipe/talkpipe/internal/conversation"
	"github.com/talkpipe/talkpipe/internal/knowledge"
	"github.com/talkpipe/talkpipe/internal/nlu"
	"github.com/talkpipe/talkpipe/internal/personality"
	"github.com/talkpipe/talkpipe/internal/provider"
)

// Rejection reasons reported on Response.Reason.
const (
	ReasonAlreadyProcessing = "already_processing"
	ReasonEmptyMessage      = "empty_message"
)

// IntentError tags responses produced by the panic boundary.
const IntentError = "error"

const emptyMessageReply = "I didn't catch that. Could you say it again?"

const panicApology = "Something went wrong on my side while answering. " +
	"Please try again in a moment."

// ContextManager is the conversation state the orchestrator reads and
// mutates. *conversation.Manager satisfies it.
type ContextManager interface {
	Get(ctx context.Context, userID int64, address string) *conversation.Context
	Update(ctx context.Context, userID int64, address string, upd conversation.Update) *conversation.Context
	Summarize(ctx context.Context, userID int64, address string) conversation.Summary
}

// Generator produces AI completions. *provider.Pool satisfies it.
type Generator interface {
	Generate(ctx context.Context, req provider.Request) provider.Response
}

// EventSink receives fire-and-forget analytics events. *analytics.Recorder
// satisfies it.
type EventSink interface {
	Record(event analytics.Event)
}

// Request is one inbound user message.
type Request struct {
	UserID    int64
	Address   string
	MessageID string
	Text      string
}

// Response is the pipeline outcome for one inbound message. Success is
// false for rejected, fallback, and panic-recovered responses; Reason is
// set only for rejections.
type Response struct {
	Content        string
	Intent         string
	Confidence     float64
	ProviderID     string
	Success        bool
	Reason         string
	Timestamp      time.Time
	ProcessingTime time.Duration
	Metadata       map[string]string
}

type requestKey struct {
	userID    int64
	address   string
	messageID string
}

// Orchestrator runs the message pipeline. All collaborators are injected;
// nil knowledge and analytics degrade to no-ops.
type Orchestrator struct {
	contexts    ContextManager
	generator   Generator
	analyzer    *nlu.Analyzer
	transformer *personality.Transformer
	knowledge   knowledge.Provider
	events      EventSink
	profile     personality.Profile
	logger      *slog.Logger

	mu       sync.Mutex
	inFlight map[requestKey]struct{}
}

// New creates an Orchestrator.
func New(
	contexts ContextManager,
	generator Generator,
	analyzer *nlu.Analyzer,
	transformer *personality.Transformer,
	knowledgeProvider knowledge.Provider,
	events EventSink,
	profile personality.Profile,
	logger *slog.Logger,
) *Orchestrator {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if knowledgeProvider == nil {
		knowledgeProvider = knowledge.NoopProvider{}
	}
	return &Orchestrator{
		contexts:    contexts,
		generator:   generator,
		analyzer:    analyzer,
		transformer: transformer,
		knowledge:   knowledgeProvider,
		events:      events,
		profile:     profile,
		logger:      logger.With("component", "orchestrator"),
		inFlight:    make(map[requestKey]struct{}),
	}
}

// ProcessMessage runs one message through the pipeline and always returns a
// usable Response. Duplicate in-flight requests are dropped, empty messages
// are answered without touching a provider, and a panic anywhere in the
// pipeline degrades to an apology response.
func (o *Orchestrator) ProcessMessage(ctx context.Context, req Request) Response {
	start := time.Now()

	key := requestKey{userID: req.UserID, address: req.Address, messageID: req.MessageID}
	if !o.markInFlight(key) {
		o.logger.WarnContext(ctx, "Dropping duplicate in-flight request",
			"user_id", req.UserID, "message_id", req.MessageID)
		return Response{
			Success:        false,
			Reason:         ReasonAlreadyProcessing,
			Timestamp:      time.Now().UTC(),
			ProcessingTime: time.Since(start),
		}
	}
	defer o.clearInFlight(key)

	resp, recovered := o.process(ctx, req, start)
	if recovered {
		o.record(analytics.Event{
			EventType: analytics.EventMessageRejected,
			Latency:   resp.ProcessingTime,
			Success:   false,
			Metadata:  map[string]string{"reason": "panic"},
		})
	}
	return resp
}

// process runs the pipeline body under a panic boundary. The second return
// value reports whether a panic was recovered.
func (o *Orchestrator) process(ctx context.Context, req Request, start time.Time) (resp Response, recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.ErrorContext(ctx, "Recovered from pipeline panic",
				"user_id", req.UserID, "panic", r)
			recovered = true
			resp = Response{
				Content:        panicApology,
				Intent:         IntentError,
				Confidence:     0.0,
				Success:        false,
				Timestamp:      time.Now().UTC(),
				ProcessingTime: time.Since(start),
			}
		}
	}()

	text := strings.TrimSpace(req.Text)
	if text == "" {
		o.record(analytics.Event{
			EventType: analytics.EventMessageRejected,
			Latency:   time.Since(start),
			Success:   false,
			Metadata:  map[string]string{"reason": ReasonEmptyMessage},
		})
		return Response{
			Content:        emptyMessageReply,
			Success:        false,
			Reason:         ReasonEmptyMessage,
			Timestamp:      time.Now().UTC(),
			ProcessingTime: time.Since(start),
		}, false
	}

	cctx := o.contexts.Get(ctx, req.UserID, req.Address)

	snapshot, err := o.knowledge.GetSnapshot(ctx, req.UserID, "", nil)
	if err != nil {
		o.logger.WarnContext(ctx, "Knowledge lookup failed, continuing without snapshot",
			"user_id", req.UserID, "error", err)
		snapshot = knowledge.Snapshot{}
	}

	analysis := o.analyzer.Analyze(ctx, text, cctx)

	genResp := o.generator.Generate(ctx, buildRequest(text, cctx, analysis, o.profile, snapshot))

	summary := o.contexts.Summarize(ctx, req.UserID, req.Address)
	content := o.transformer.Apply(genResp.Content, o.profile, personality.Context{
		Intent:  analysis.Intent.Name,
		Emotion: analysis.Emotion.Name,
		Stage:   summary.Stage,
	})

	now := time.Now().UTC()
	emotional := analysis.Emotion.Name
	o.contexts.Update(ctx, req.UserID, req.Address, conversation.Update{
		AppendMessages: []conversation.Message{
			{Role: conversation.RoleUser, Content: text, Timestamp: now},
			{Role: conversation.RoleAssistant, Content: content, Timestamp: now},
		},
		AppendIntents: []conversation.IntentEntry{
			{Name: analysis.Intent.Name, Confidence: analysis.Intent.Confidence, Timestamp: now},
		},
		AppendEmotions: []conversation.EmotionEntry{
			{Name: analysis.Emotion.Name, Intensity: analysis.Emotion.Intensity, Timestamp: now},
		},
		EmotionalState: &emotional,
	})

	processingTime := time.Since(start)

	eventType := analytics.EventMessageProcessed
	if genResp.ProviderID == provider.FallbackProviderID {
		eventType = analytics.EventProviderFallback
	}
	o.record(analytics.Event{
		EventType:  eventType,
		ProviderID: genResp.ProviderID,
		Latency:    processingTime,
		Success:    genResp.Success,
		Metadata: map[string]string{
			"intent":  analysis.Intent.Name,
			"emotion": analysis.Emotion.Name,
		},
	})

	return Response{
		Content:        content,
		Intent:         analysis.Intent.Name,
		Confidence:     genResp.Confidence,
		ProviderID:     genResp.ProviderID,
		Success:        genResp.Success,
		Timestamp:      now,
		ProcessingTime: processingTime,
		Metadata: map[string]string{
			"intent":         analysis.Intent.Name,
			"emotion":        analysis.Emotion.Name,
			"provider":       genResp.ProviderID,
			"knowledge_used": strconv.FormatBool(!snapshot.Empty()),
		},
	}, false
}

func (o *Orchestrator) markInFlight(key requestKey) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, busy := o.inFlight[key]; busy {
		return false
	}
	o.inFlight[key] = struct{}{}
	return true
}

func (o *Orchestrator) clearInFlight(key requestKey) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inFlight, key)
}

func (o *Orchestrator) record(event analytics.Event) {
	if o.events == nil {
		return
	}
	o.events.Record(event)
}
