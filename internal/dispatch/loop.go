package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/mattn/go-runewidth"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/nextlevelbuilder/relaychat/internal/bus"
	"github.com/nextlevelbuilder/relaychat/internal/providers"
	"github.com/nextlevelbuilder/relaychat/internal/sessions"
)

var tracer = otel.Tracer("github.com/nextlevelbuilder/relaychat/internal/dispatch")

// run owns id until its queue is empty. After releasing ownership it checks
// once more so a message enqueued during the release is never stranded.
func (q *Queue) run(id sessions.Identity) {
	defer q.wg.Done()
	defer q.prune(id)
	for {
		drained := q.loop(q.ctx, id)
		q.owners.Release(id)
		if !drained || q.ctx.Err() != nil || q.Pending(id) == 0 {
			return
		}
		if !q.owners.TryClaim(id) {
			return
		}
		slog.Debug("dispatch: reclaimed after late enqueue", "identity", id.String())
	}
}

// loop processes batches until the queue is empty (true) or a batch fails,
// the context ends, or a settings read fails (false).
func (q *Queue) loop(ctx context.Context, id sessions.Identity) bool {
	for {
		if ok, stop := q.checkEnabled(ctx, id); !ok {
			return stop
		}
		if q.Pending(id) == 0 {
			return true
		}

		cfg := q.config()
		class := cfg.class(id)
		if len(class.Delays) > 0 {
			delay := class.Delays[q.pick(len(class.Delays))]
			slog.Debug("dispatch: debouncing", "identity", id.String(), "delay", delay)
			if err := q.sleep(ctx, delay); err != nil {
				return false
			}
		}

		if ok, stop := q.checkEnabled(ctx, id); !ok {
			return stop
		}
		batch := q.drain(ctx, id, class.BatchSize)
		if len(batch) == 0 {
			return true
		}
		if !q.process(ctx, id, cfg, batch) {
			return false
		}
	}
}

// checkEnabled returns ok=false when the loop must stop. stop is the value
// loop should return: true when the queue was discarded, false on error.
func (q *Queue) checkEnabled(ctx context.Context, id sessions.Identity) (ok, stop bool) {
	enabled, err := q.deps.Settings.IsEnabled(ctx, id)
	if err != nil {
		slog.Error("dispatch: read enablement", "identity", id.String(), "error", err)
		return false, false
	}
	if !enabled {
		q.discard(ctx, id)
		return false, true
	}
	return true, false
}

// process runs one batch through resolve, generate and deliver. It returns
// false when the loop should exit.
func (q *Queue) process(ctx context.Context, id sessions.Identity, cfg Config, batch []PendingMessage) bool {
	runID := uuid.NewString()
	ctx, span := tracer.Start(ctx, "dispatch.batch")
	defer span.End()
	span.SetAttributes(
		attribute.String("identity", id.String()),
		attribute.String("run_id", runID),
		attribute.Int("batch_size", len(batch)),
	)

	text := joinBatch(batch)
	speaker := speakerOf(batch)
	log := slog.With("identity", id.String(), "run_id", runID)
	log.Info("dispatch: batch drained", "messages", len(batch), "speaker", speaker)

	fail := func(stage string, err error) bool {
		span.RecordError(err)
		span.SetStatus(codes.Error, stage)
		log.Error("dispatch: batch failed", "stage", stage, "error", err)
		q.requeue(ctx, id, batch)
		q.notify(ctx, fmt.Sprintf("Failed to process messages for %s (%s): %v", id, stage, err))
		return false
	}

	role, err := q.deps.Settings.EffectiveRole(ctx, id)
	if err != nil {
		return fail("resolve role", err)
	}
	history, err := q.deps.History.AppendUserTurn(ctx, id, role, speaker, text)
	if err != nil {
		return fail("append history", err)
	}
	model, err := q.deps.Settings.Model(ctx)
	if err != nil {
		return fail("read model", err)
	}

	if q.deps.Typer != nil {
		if err := q.deps.Typer.Typing(ctx, id); err != nil {
			log.Debug("dispatch: typing indicator failed", "error", err)
		}
	}

	resp, err := q.deps.Generator.Generate(ctx, providers.Request{
		Model:   model,
		Persona: role,
		History: history,
		Message: text,
	})
	if err != nil {
		if errors.Is(err, providers.ErrExhausted) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "exhausted")
			log.Error("dispatch: credentials exhausted", "error", err)
			q.notify(ctx, fmt.Sprintf("All API keys failed for %s: %v", id, err))
			return false
		}
		if ctx.Err() != nil {
			q.requeue(ctx, id, batch)
			return false
		}
		return fail("generate", err)
	}

	if strings.TrimSpace(resp) == "" {
		log.Warn("dispatch: empty response, using fallback text")
		resp = cfg.FallbackText
		q.notify(ctx, fmt.Sprintf("Empty response for %s, sent fallback text.", id))
	}
	resp = truncateResponse(resp, cfg.MaxResponseWidth)

	if err := q.deps.History.AppendResponseTurn(ctx, id, resp); err != nil {
		log.Error("dispatch: append response to history", "error", err)
	}

	q.deliver(ctx, id, cfg, resp, log)
	span.SetStatus(codes.Ok, "")
	return true
}

// deliver sends resp as a voice note when the hook accepts it, text otherwise.
// Failures are logged and not retried.
func (q *Queue) deliver(ctx context.Context, id sessions.Identity, cfg Config, resp string, log *slog.Logger) {
	msg := bus.OutboundMessage{Content: resp}
	if q.deps.Voice != nil {
		if path, fallback, ok := q.deps.Voice.TryVoice(ctx, resp); ok {
			msg.Content = ""
			msg.Media = []bus.MediaAttachment{{URL: path, ContentType: "audio/mpeg"}}
		} else {
			msg.Content = fallback
		}
	}

	if d := cfg.typingDelay(resp); d > 0 {
		if q.deps.Typer != nil {
			if err := q.deps.Typer.Typing(ctx, id); err != nil {
				log.Debug("dispatch: typing indicator failed", "error", err)
			}
		}
		if err := q.sleep(ctx, d); err != nil {
			return
		}
	}

	if err := q.deps.Deliverer.Deliver(ctx, id, msg); err != nil {
		log.Error("dispatch: delivery failed", "error", err)
		return
	}
	log.Info("dispatch: response delivered", "chars", len([]rune(resp)), "voice", len(msg.Media) > 0)
}

func (q *Queue) notify(ctx context.Context, text string) {
	if q.deps.Notifier == nil || ctx.Err() != nil {
		return
	}
	q.deps.Notifier.Notify(ctx, text)
}

func joinBatch(batch []PendingMessage) string {
	parts := make([]string, 0, len(batch))
	for _, m := range batch {
		parts = append(parts, m.Text)
	}
	return strings.Join(parts, " ")
}

// speakerOf labels the batch with its last sender.
func speakerOf(batch []PendingMessage) string {
	if len(batch) == 0 || batch[len(batch)-1].Sender == "" {
		return DefaultSpeaker
	}
	return batch[len(batch)-1].Sender
}

func truncateResponse(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "") + "..."
}
