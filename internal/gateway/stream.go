// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// =============================================================================
// STREAM EVENT TYPES
// =============================================================================

// EventKind classifies a StreamEvent.
type EventKind int

const (
	// EventContent carries an incremental text delta.
	EventContent EventKind = iota
	// EventDone marks successful completion of the stream.
	EventDone
	// EventFailed marks failure of the stream. Err is set.
	EventFailed
)

// String returns the event kind name for logging.
func (k EventKind) String() string {
	switch k {
	case EventContent:
		return "content"
	case EventDone:
		return "done"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StreamEvent is one event on a completion stream. A stream delivers zero
// or more EventContent events followed by exactly one terminal event
// (EventDone or EventFailed).
type StreamEvent struct {
	Kind    EventKind
	Content string
	Err     error
}

// ModelStreamEvent tags a StreamEvent with the model that produced it.
type ModelStreamEvent struct {
	ModelID string
	Event   StreamEvent
}

// sseChunk is the wire shape of one streamed completion chunk.
type sseChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
}

// =============================================================================
// SINGLE-MODEL STREAMING
// =============================================================================

// StreamCompletion starts a streamed chat completion and delivers events on
// the returned channel. The channel is closed after the terminal event.
// Cancelling ctx terminates the stream with EventFailed wrapping ctx.Err().
func (c *Client) StreamCompletion(ctx context.Context, modelID string, messages []Message) (<-chan StreamEvent, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if modelID == "" {
		return nil, fmt.Errorf("%w: model id is empty", ErrBadRequest)
	}

	events := make(chan StreamEvent, 16)
	go c.runStream(ctx, modelID, messages, events)
	return events, nil
}

// runStream owns the events channel: it sends exactly one terminal event
// and then closes the channel, on every path.
func (c *Client) runStream(ctx context.Context, modelID string, messages []Message, events chan<- StreamEvent) {
	defer close(events)

	fail := func(err error) {
		events <- StreamEvent{Kind: EventFailed, Err: err}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		fail(err)
		return
	}

	// The stream gets its own cancellable context so the idle watchdog can
	// tear down the connection without touching the caller's ctx.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	body, err := json.Marshal(completionRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   true,
	})
	if err != nil {
		fail(fmt.Errorf("failed to encode request: %w", err))
		return
	}

	req, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		fail(fmt.Errorf("failed to create request: %w", err))
		return
	}
	c.setHeaders(req)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			fail(ctx.Err())
			return
		}
		fail(fmt.Errorf("%w: %v", ErrNetwork, err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, readErr := readResponse(resp)
		if readErr != nil {
			fail(parseAPIError(resp.StatusCode, nil))
			return
		}
		fail(parseAPIError(resp.StatusCode, errBody))
		return
	}

	c.log.Debugw("stream started", "model", modelID)
	c.consumeSSE(ctx, cancel, modelID, resp, events)
}

// lineResult is one read from the SSE body.
type lineResult struct {
	line string
	err  error
}

// consumeSSE parses the SSE body line by line, enforcing the idle timeout.
// It emits the terminal event; the caller closes the channel.
func (c *Client) consumeSSE(ctx context.Context, cancel context.CancelFunc, modelID string, resp *http.Response, events chan<- StreamEvent) {
	// done lets the reader goroutine exit if the stream terminates
	// while it is blocked handing over a line.
	done := make(chan struct{})
	defer close(done)

	lines := make(chan lineResult)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			select {
			case lines <- lineResult{line: scanner.Text()}:
			case <-done:
				return
			}
		}
		if err := scanner.Err(); err != nil {
			select {
			case lines <- lineResult{err: err}:
			case <-done:
			}
		}
	}()

	idle := time.NewTimer(c.idleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			cancel()
			events <- StreamEvent{Kind: EventFailed, Err: ctx.Err()}
			return

		case <-idle.C:
			// RELIABILITY: A stalled provider must not hang the round.
			cancel()
			events <- StreamEvent{Kind: EventFailed, Err: fmt.Errorf("%w: no data for %s", ErrIdleTimeout, c.idleTimeout)}
			return

		case res, ok := <-lines:
			if !ok {
				// Body ended without a [DONE] marker. Treat EOF as
				// completion; the provider closed the stream cleanly.
				events <- StreamEvent{Kind: EventDone}
				return
			}
			if res.err != nil {
				if ctx.Err() != nil {
					events <- StreamEvent{Kind: EventFailed, Err: ctx.Err()}
					return
				}
				events <- StreamEvent{Kind: EventFailed, Err: fmt.Errorf("%w: %v", ErrNetwork, res.err)}
				return
			}

			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(c.idleTimeout)

			ev, terminal := c.parseSSELine(modelID, res.line)
			if ev != nil {
				events <- *ev
			}
			if terminal {
				return
			}
		}
	}
}

// parseSSELine interprets one line of the event stream. It returns the event
// to emit (nil for lines that produce none) and whether the stream is over.
func (c *Client) parseSSELine(modelID, line string) (*StreamEvent, bool) {
	line = strings.TrimSpace(line)

	// Blank keep-alives and ":" comment lines carry no payload.
	if line == "" || strings.HasPrefix(line, ":") {
		return nil, false
	}
	data, ok := strings.CutPrefix(line, "data: ")
	if !ok {
		data, ok = strings.CutPrefix(line, "data:")
		if !ok {
			return nil, false
		}
	}
	data = strings.TrimSpace(data)

	if data == "[DONE]" {
		return &StreamEvent{Kind: EventDone}, true
	}

	var chunk sseChunk
	if err := json.Unmarshal([]byte(data), &chunk); err != nil {
		// Malformed chunks are dropped rather than failing the stream.
		c.log.Debugw("skipping malformed stream chunk", "model", modelID, "error", err)
		return nil, false
	}
	if len(chunk.Choices) == 0 {
		return nil, false
	}

	choice := chunk.Choices[0]
	switch {
	case choice.FinishReason == "error":
		return &StreamEvent{Kind: EventFailed, Err: fmt.Errorf("%w: provider reported an error finish", ErrServer)}, true
	case choice.FinishReason != "":
		return &StreamEvent{Kind: EventDone}, true
	case choice.Delta.Content != "":
		return &StreamEvent{Kind: EventContent, Content: choice.Delta.Content}, false
	default:
		return nil, false
	}
}

// =============================================================================
// MULTI-MODEL STREAMING
// =============================================================================

// StreamCompletionMulti fans one prompt out to several models concurrently
// and merges their events onto a single channel. Each model contributes its
// own terminal event; one model failing never cancels the others. The merged
// channel closes once every model has terminated.
func (c *Client) StreamCompletionMulti(ctx context.Context, modelIDs []string, messages []Message) (<-chan ModelStreamEvent, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}
	if len(modelIDs) == 0 {
		return nil, fmt.Errorf("%w: no models selected", ErrBadRequest)
	}

	merged := make(chan ModelStreamEvent, 16*len(modelIDs))

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range modelIDs {
		id := id
		g.Go(func() error {
			stream, err := c.StreamCompletion(gctx, id, messages)
			if err != nil {
				merged <- ModelStreamEvent{ModelID: id, Event: StreamEvent{Kind: EventFailed, Err: err}}
				return nil
			}
			for ev := range stream {
				merged <- ModelStreamEvent{ModelID: id, Event: ev}
			}
			// Per-model failures are reported on the channel, never
			// returned: a returned error would cancel sibling streams.
			return nil
		})
	}

	go func() {
		//nolint:errcheck // workers always return nil
		g.Wait()
		close(merged)
	}()

	return merged, nil
}

// CollectStream drains a single-model stream and returns the concatenated
// content, or the terminal error. Useful for non-interactive callers.
func CollectStream(events <-chan StreamEvent) (string, error) {
	var sb strings.Builder
	for ev := range events {
		switch ev.Kind {
		case EventContent:
			sb.WriteString(ev.Content)
		case EventFailed:
			return sb.String(), ev.Err
		case EventDone:
			return sb.String(), nil
		}
	}
	return sb.String(), errors.New("stream closed without terminal event")
}
