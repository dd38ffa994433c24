// File: internal/usecase/chat_stream.go
package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"architect-studio/internal/domain"
	"architect-studio/internal/domain/model"
	"architect-studio/internal/domain/ports/adapter"
	"architect-studio/internal/infra/logging"
	"architect-studio/internal/infra/metrics"
	"architect-studio/internal/infra/sse"

	"github.com/rs/zerolog"
)

// Action types the assistant can emit on the stream.
const (
	// ActionGenerationStarted announces a job the server already submitted.
	ActionGenerationStarted = "generation_started"
	// ActionGenerate2D asks the client to submit a 2D render itself.
	ActionGenerate2D = "generate_2d"
)

// ErrChatReply is returned when the server reports an error on the stream
// before producing any text.
var ErrChatReply = errors.New("chat reply failed")

type ChatActionArgs struct {
	Prompt string `json:"prompt,omitempty"`
	Model  string `json:"model,omitempty"`
}

// ChatAction is a side-channel signal carried in a stream frame.
type ChatAction struct {
	Type    string         `json:"type"`
	JobID   string         `json:"jobId,omitempty"`
	JobType model.JobType  `json:"jobType,omitempty"`
	Args    ChatActionArgs `json:"args"`
}

// ActionFunc is invoked synchronously for every action frame as it arrives.
type ActionFunc func(ctx context.Context, ws *model.Workspace, action ChatAction)

// chatFrame is the union of every payload shape the server streams.
type chatFrame struct {
	Text        *string     `json:"text"`
	MessageID   string      `json:"messageId"`
	Action      *ChatAction `json:"action"`
	Detail      string      `json:"detail"`
	FullContent *string     `json:"fullContent"`
}

// ChatResult summarises one streamed exchange.
type ChatResult struct {
	MessageID   string
	Content     string
	Actions     []ChatAction
	Frames      int
	Malformed   int
	Partial     bool
	ServerError string
}

const defaultReadChunk = 4096

// ChatStreamer submits a chat message and applies the streamed reply to the
// workspace transcript as it arrives.
type ChatStreamer struct {
	api       adapter.ChatAPI
	notifier  adapter.Notifier
	log       *zerolog.Logger
	readChunk int
}

func NewChatStreamer(api adapter.ChatAPI, notifier adapter.Notifier, log *zerolog.Logger) *ChatStreamer {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	return &ChatStreamer{api: api, notifier: notifier, log: log, readChunk: defaultReadChunk}
}

// Send appends the user's message and an empty assistant placeholder,
// streams the reply into the placeholder and rebinds it to the server's id.
//
// If the request fails outright the placeholder is removed. If the
// connection drops mid-reply, text already received is kept; an empty
// placeholder is removed.
func (c *ChatStreamer) Send(ctx context.Context, ws *model.Workspace, content string, imageURLs []string, onAction ActionFunc) (*ChatResult, error) {
	defer logging.TraceDuration(c.log, "ChatStreamer.Send")()

	content = strings.TrimSpace(content)
	if content == "" && len(imageURLs) == 0 {
		return nil, domain.ErrInvalidArgument
	}
	if ws.Ref.IsProject() {
		return nil, fmt.Errorf("%w: chat needs a room", domain.ErrInvalidArgument)
	}

	placeholder, err := ws.BeginExchange(content, imageURLs)
	if err != nil {
		return nil, err
	}
	defer ws.EndExchange()

	body, err := c.api.StreamChat(ctx, adapter.ChatRequest{
		ProjectID: ws.Ref.ProjectID,
		RoomID:    ws.Ref.RoomID,
		Content:   content,
		ImageURLs: imageURLs,
	})
	if err != nil {
		ws.Rollback(placeholder)
		metrics.IncStream("rolled_back")
		c.log.Error().Err(err).Str("workspace", ws.Ref.Key()).Msg("chat request failed")
		c.notify(ctx, ws, "Message could not be sent: "+err.Error())
		return nil, fmt.Errorf("send chat message: %w", err)
	}
	defer body.Close()

	res := &ChatResult{}
	current := placeholder
	dec := sse.NewDecoder()
	buf := make([]byte, c.readChunk)
	var readErr error
	for {
		n, err := body.Read(buf)
		if n > 0 {
			frames, ferr := dec.Feed(buf[:n])
			if ferr != nil {
				res.Malformed++
				metrics.IncMalformedFrame()
				c.log.Warn().Err(ferr).Msg("stream line dropped")
			}
			for _, f := range frames {
				current = c.apply(ctx, ws, current, f, res, onAction)
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				readErr = err
			}
			break
		}
	}
	if readErr == nil {
		for _, f := range dec.Flush() {
			current = c.apply(ctx, ws, current, f, res, onAction)
		}
	}

	res.MessageID = current
	res.Content, _ = ws.AssistantContent(current)
	empty := res.Content == ""

	switch {
	case readErr != nil && empty:
		ws.Rollback(current)
		metrics.IncStream("rolled_back")
		c.log.Error().Err(readErr).Str("workspace", ws.Ref.Key()).Msg("chat stream broke before any reply")
		c.notify(ctx, ws, "The reply was interrupted. Please try again.")
		return res, fmt.Errorf("read chat stream: %w", readErr)
	case readErr != nil:
		res.Partial = true
		metrics.IncStream("partial")
		c.log.Warn().Err(readErr).Str("message_id", current).Int("bytes", len(res.Content)).Msg("chat stream broke; partial reply kept")
		return res, nil
	case empty && res.ServerError != "":
		ws.Rollback(current)
		metrics.IncStream("rolled_back")
		return res, fmt.Errorf("%w: %s", ErrChatReply, res.ServerError)
	case empty && model.IsTempID(current):
		// Nothing arrived and the server never claimed the message.
		ws.Rollback(current)
	}
	metrics.IncStream("completed")
	c.log.Debug().Str("message_id", current).Int("frames", res.Frames).Int("malformed", res.Malformed).Msg("chat stream completed")
	return res, nil
}

// apply interprets one frame and returns the id the reply is now bound to.
func (c *ChatStreamer) apply(ctx context.Context, ws *model.Workspace, current string, f sse.Frame, res *ChatResult, onAction ActionFunc) string {
	var fr chatFrame
	if err := json.Unmarshal(f.Data, &fr); err != nil {
		res.Malformed++
		metrics.IncMalformedFrame()
		c.log.Debug().Err(err).Int("len", len(f.Data)).Msg("malformed stream frame skipped")
		return current
	}
	res.Frames++

	if fr.Text != nil && *fr.Text != "" {
		if ws.AppendDelta(current, *fr.Text) {
			metrics.IncFrame("text")
		}
	}
	if fr.MessageID != "" && fr.MessageID != current {
		if ws.Rebind(current, fr.MessageID) {
			current = fr.MessageID
			metrics.IncFrame("message_id")
		}
	}
	if fr.FullContent != nil {
		if got, _ := ws.AssistantContent(current); got != *fr.FullContent {
			c.log.Debug().Str("message_id", current).Int("streamed", len(got)).Int("final", len(*fr.FullContent)).Msg("streamed text differs from final content")
		}
	}
	if fr.Detail != "" {
		res.ServerError = fr.Detail
		metrics.IncFrame("error")
		c.log.Warn().Str("detail", fr.Detail).Msg("server reported stream error")
		c.notify(ctx, ws, fr.Detail)
	}
	if fr.Action != nil && fr.Action.Type != "" {
		res.Actions = append(res.Actions, *fr.Action)
		metrics.IncFrame("action")
		if onAction != nil {
			onAction(ctx, ws, *fr.Action)
		}
	}
	return current
}

func (c *ChatStreamer) notify(ctx context.Context, ws *model.Workspace, msg string) {
	if c.notifier == nil {
		return
	}
	if err := c.notifier.Notify(ctx, adapter.Notice{Level: adapter.NoticeError, Workspace: ws.Ref, Message: msg}); err != nil {
		c.log.Warn().Err(err).Msg("notify failed")
	}
}
