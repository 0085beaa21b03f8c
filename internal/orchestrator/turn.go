package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"

	"forge/internal/apperr"
	"forge/internal/chat"
	"forge/internal/contextmgr"
	"forge/internal/events"
	"forge/internal/provider"
)

// ErrStepLimit ends a turn whose model keeps calling tools.
var ErrStepLimit = apperr.New(apperr.KindProvider, "tool step limit reached")

// RunTurn 启动一个对话回合，返回事件流
// RunTurn starts a chat turn and returns its event stream. The turn runs in
// the background; the emitter's channel closes after chat:end or error.
// Only one turn runs per session at a time.
//
// On success the user message and the assistant reply are appended to the
// conversation. On error or cancellation the partial reply is discarded; tool
// effects that already happened are kept.
func (s *Session) RunTurn(ctx context.Context, text string) (*events.Emitter, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, apperr.New(apperr.KindValidation, "message is empty")
	}
	s.mu.Lock()
	if s.busy {
		s.mu.Unlock()
		return nil, ErrTurnInFlight
	}
	ctx, cancel := context.WithCancel(ctx)
	em := events.NewEmitter(s.o.eventBuffer)
	s.busy, s.emitter, s.cancel = true, em, cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer s.finishTurn()
		s.runTurn(ctx, em, text)
	}()
	return em, nil
}

func (s *Session) finishTurn() {
	s.mu.Lock()
	s.busy, s.emitter, s.cancel = false, nil, nil
	s.mu.Unlock()
}

func (s *Session) runTurn(ctx context.Context, em *events.Emitter, text string) {
	messageID := uuid.NewString()
	if err := em.Start(ctx, messageID); err != nil {
		em.Fail(ctx, turnError(ctx, err))
		return
	}

	view := s.View()
	history := s.Messages()
	msgs, stats := s.o.assembler.Assemble(contextmgr.TurnContext{
		Session: view.Session,
		Dials:   view.Dials,
		Notes:   stageNotes(view),
	}, history, text)
	if stats.DroppedCount > 0 {
		s.o.logger.Printf("session %s: context dropped %d of %d messages", view.ID, stats.DroppedCount, stats.OriginalCount)
	}

	defs := s.registry.Definitions()
	p := s.o.provider
	if p == nil {
		em.Fail(ctx, apperr.New(apperr.KindProvider, "no model provider configured"))
		return
	}

	var reply strings.Builder
	var usage provider.Usage
	for step := 0; ; step++ {
		if step >= s.o.maxSteps {
			em.Fail(ctx, ErrStepLimit)
			return
		}
		streamed := false
		resp, err := p.Chat(ctx, provider.ChatRequest{
			Model:    p.CurrentModel(),
			Messages: msgs,
			Tools:    defs,
		}, &provider.StreamCallbacks{
			OnTextChunk: func(chunk string) {
				if chunk == "" {
					return
				}
				streamed = true
				reply.WriteString(chunk)
				_ = em.Delta(ctx, chunk)
			},
		})
		if err != nil {
			em.Fail(ctx, turnError(ctx, err))
			return
		}
		if !streamed && resp.Content != "" {
			reply.WriteString(resp.Content)
			if err := em.Delta(ctx, resp.Content); err != nil {
				em.Fail(ctx, turnError(ctx, err))
				return
			}
		}
		usage = usage.Add(resp.Usage)
		if ctx.Err() != nil {
			em.Fail(ctx, turnError(ctx, ctx.Err()))
			return
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		msgs = append(msgs, chat.Message{Role: chat.RoleAssistant, Content: resp.Content, ToolCalls: resp.ToolCalls})
		for _, call := range resp.ToolCalls {
			result, err := s.runTool(ctx, em, call)
			if err != nil {
				em.Fail(ctx, turnError(ctx, err))
				return
			}
			msgs = append(msgs, chat.Message{
				Role:       chat.RoleTool,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
				Content:    result,
			})
		}
	}

	if err := em.End(ctx, events.Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}); err != nil {
		s.o.logger.Printf("session %s: end turn: %v", view.ID, err)
		return
	}

	now := s.o.now().UTC()
	s.mu.Lock()
	s.messages = append(s.messages, chat.UserMessage(text, now), chat.AssistantMessage(reply.String(), now))
	s.mu.Unlock()
	s.save()
}

// runTool executes one tool call between tool:start and tool:end. A failing
// tool is reported to the model as an error result; only event delivery
// failures end the turn.
func (s *Session) runTool(ctx context.Context, em *events.Emitter, call chat.ToolCall) (string, error) {
	toolUseID := uuid.NewString()
	args := json.RawMessage(strings.TrimSpace(call.Function.Arguments))
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	input := args
	if !json.Valid(args) {
		input, _ = json.Marshal(call.Function.Arguments)
	}
	if err := em.ToolStart(ctx, toolUseID, call.Function.Name, input); err != nil {
		return "", err
	}

	result, err := s.registry.Execute(ctx, call.Function.Name, args)
	isError := err != nil
	if isError {
		result = toolFailure(err)
	}
	if endErr := em.ToolEnd(ctx, toolUseID, result, isError); endErr != nil {
		return "", endErr
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return result, nil
}

func toolFailure(err error) string {
	data, _ := json.Marshal(map[string]any{
		"ok":    false,
		"code":  apperr.KindOf(err),
		"error": err.Error(),
	})
	return string(data)
}

// turnError maps err to the terminal error of a turn.
func turnError(ctx context.Context, err error) error {
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		if apperr.KindOf(err) == apperr.KindCancelled {
			return err
		}
		return apperr.Wrap(apperr.KindCancelled, "turn cancelled", err)
	}
	if apperr.KindOf(err) == apperr.KindUnknown {
		return apperr.Wrap(apperr.KindProvider, "model call", err)
	}
	return err
}
