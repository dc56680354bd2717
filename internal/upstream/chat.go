package upstream

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/nhlutterodt/localrag/internal/apperr"
)

// Chat streams a chat completion from the upstream runtime: the
// concrete implementation of spec.md §1's "chat(messages, model) ->
// stream of token events" collaborator interface, against Ollama's
// /api/chat NDJSON streaming endpoint. Each decoded line becomes one
// ChatEvent on the returned channel; the channel is closed after a Done
// line, a decode error, or ctx cancellation. Chat calls are not
// serialized by embedMu — only Embed is (spec.md §4.5).
func (c *Client) Chat(ctx context.Context, messages []Message, model string) (<-chan ChatEvent, error) {
	body, err := json.Marshal(chatRequest{Model: model, Messages: messages, Stream: true})
	if err != nil {
		return nil, apperr.Internal("failed to marshal chat request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, apperr.Internal("failed to build chat request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, apperr.UpstreamUnavailable("failed to reach upstream chat model", err)
	}

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, apperr.UpstreamError(fmt.Sprintf("chat request failed with status %d: %s", resp.StatusCode, string(respBody)), nil)
	}

	events := make(chan ChatEvent)
	go streamChatLines(ctx, resp.Body, events)
	return events, nil
}

func streamChatLines(ctx context.Context, body io.ReadCloser, events chan<- ChatEvent) {
	defer close(events)
	defer func() { _ = body.Close() }()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var parsed chatResponseLine
		if err := json.Unmarshal(line, &parsed); err != nil {
			send(ctx, events, ChatEvent{Err: apperr.UpstreamError("failed to decode chat stream line", err)})
			return
		}
		if parsed.Error != "" {
			send(ctx, events, ChatEvent{Err: apperr.UpstreamError(parsed.Error, nil)})
			return
		}

		if !send(ctx, events, ChatEvent{Content: parsed.Message.Content, Done: parsed.Done}) {
			return
		}
		if parsed.Done {
			return
		}
	}
	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			send(ctx, events, ChatEvent{Err: ctx.Err()})
			return
		}
		send(ctx, events, ChatEvent{Err: apperr.UpstreamUnavailable("chat stream read failed", err)})
	}
}

// send delivers ev on events unless ctx is already done, in which case the
// reader (relay's ctx.Done() branch) has already returned and nobody will
// ever drain this channel again; returning false lets the caller stop
// scanning instead of leaking this goroutine and its held response body on
// every client disconnect (spec.md §8 scenario 8).
func send(ctx context.Context, events chan<- ChatEvent, ev ChatEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
