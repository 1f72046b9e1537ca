package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/must108/agentnow/internal/history"
	"github.com/must108/agentnow/internal/suggestion"
	"github.com/must108/agentnow/pkg/speech"
)

// runStream drives the streaming strategy for one session: audio segments
// are uploaded opportunistically while a poll loop watches the backend's
// live transcription state. Both loops stop when ctx is cancelled or the
// session's chunk channel closes. Upload and poll responses can interleave
// arbitrarily; both funnel into applyLive where the epoch check and the
// consecutive-update dedupe decide what survives.
func (o *Orchestrator) runStream(ctx context.Context, epoch uint64, handle speech.Session) {
	defer o.wg.Done()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return o.uploadLoop(ctx, epoch, handle.Chunks())
	})
	g.Go(func() error {
		return o.pollLoop(ctx, epoch)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("streaming loops ended", "error", err)
	}
}

// uploadLoop ships audio segments to the backend as they arrive. Segments
// below the client's minimum size are skipped inside UploadChunk. Upload
// failures are logged and skipped; the session keeps running on the
// recognition path alone.
func (o *Orchestrator) uploadLoop(ctx context.Context, epoch uint64, chunks <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case segment, ok := <-chunks:
			if !ok {
				return nil
			}
			ack, err := o.client.UploadChunk(ctx, segment)
			if err != nil {
				slog.Warn("chunk upload failed", "error", err)
				continue
			}
			if ack == nil {
				continue
			}
			o.applyLive(ctx, epoch, ack.Utterance, ack.Suggestion, ack.Finalized)
		}
	}
}

// pollLoop fetches the shared live state on a fixed cadence while the
// session is active.
func (o *Orchestrator) pollLoop(ctx context.Context, epoch uint64) error {
	ticker := time.NewTicker(o.client.PollInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			upd, err := o.client.LiveState(ctx)
			if err != nil {
				slog.Warn("live state poll failed", "error", err)
				continue
			}
			if upd == nil {
				continue
			}
			o.applyLive(ctx, epoch, upd.Utterance, upd.Suggestion, false)
		}
	}
}

// applyLive merges one streaming update into the orchestrator state.
//
// Tie-break policy for concurrent upload acks and poll responses: last write
// wins, gated by the session epoch, with consecutive duplicates (same
// utterance and same suggestion text as the previous update) dropped so
// out-of-order repeats of the same backend state do not retrigger the
// reveal. A finalized update additionally records a history entry.
func (o *Orchestrator) applyLive(ctx context.Context, epoch uint64, utterance string, sug *suggestion.Suggestion, finalized bool) {
	o.mu.Lock()
	if epoch != o.epoch {
		o.mu.Unlock()
		return
	}

	text := ""
	if sug != nil {
		text = sug.Text
	}
	if utterance == o.liveUtterance && text == o.liveText {
		o.mu.Unlock()
		return
	}
	o.liveUtterance = utterance
	o.liveText = text

	if utterance != "" {
		o.lastUtterance = utterance
	}
	if sug != nil {
		latest := *sug
		o.latest = &latest
		o.reveal.Set(sug.Text)
	}
	o.mu.Unlock()

	if sug != nil {
		o.metrics.RecordSuggestion(ctx, string(sug.UseCase))
		o.notifySuggestion(*sug)
	}
	if finalized && sug != nil {
		o.ledger.Record(history.Entry{
			Title:     sug.Title,
			Text:      sug.Text,
			UseCase:   sug.UseCase,
			Utterance: utterance,
		})
	}
	if finalized && utterance != "" {
		o.notifyUtterance(utterance)
	}
}
