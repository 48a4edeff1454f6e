package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"home-services-api/internal/presence"
)

type invokeFunc func(ctx context.Context, s *Session, args []json.RawMessage) error

// Invoke decodes one client frame and runs the named operation. Failures,
// including panics, are reported to the caller as an Error event and never
// end the session.
func (h *Hub) Invoke(ctx context.Context, s *Session, frame []byte) {
	var inv Invocation
	err := json.Unmarshal(frame, &inv)
	if err != nil {
		err = fmt.Errorf("%w: malformed frame: %v", ErrBadArguments, err)
	} else {
		err = h.call(ctx, s, inv)
	}
	if err != nil {
		h.logger.Warn().Err(err).Str("identity", s.identity.String()).Str("target", inv.Target).Msg("Invocation failed.")
		h.emit(ctx, s.handle, ErrorEvent(err.Error()))
	}
}

func (h *Hub) call(ctx context.Context, s *Session, inv Invocation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s: %v", ErrOperationFailed, inv.Target, r)
		}
	}()

	if s.State() != StateActive {
		return ErrNotActive
	}
	fn, ok := h.handlers[inv.Target]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownTarget, inv.Target)
	}
	return fn(ctx, s, inv.Arguments)
}

func decodeArgs(args []json.RawMessage, dst ...any) error {
	if len(args) != len(dst) {
		return fmt.Errorf("%w: want %d arguments, got %d", ErrBadArguments, len(dst), len(args))
	}
	for i, raw := range args {
		if err := json.Unmarshal(raw, dst[i]); err != nil {
			return fmt.Errorf("%w: argument %d: %v", ErrBadArguments, i, err)
		}
	}
	return nil
}

func targetIdentity(id int64, kind string) (presence.Identity, error) {
	target, err := presence.NewIdentity(kind, id)
	if err != nil {
		return presence.Identity{}, fmt.Errorf("%w: %v", ErrBadArguments, err)
	}
	return target, nil
}

func (h *Hub) invocationTable() map[string]invokeFunc {
	return map[string]invokeFunc{
		TargetJoinGroup: func(ctx context.Context, s *Session, args []json.RawMessage) error {
			var name string
			if err := decodeArgs(args, &name); err != nil {
				return err
			}
			return h.JoinGroup(ctx, s, name)
		},
		TargetLeaveGroup: func(ctx context.Context, s *Session, args []json.RawMessage) error {
			var name string
			if err := decodeArgs(args, &name); err != nil {
				return err
			}
			return h.LeaveGroup(ctx, s, name)
		},
		TargetJoinConversation: func(ctx context.Context, s *Session, args []json.RawMessage) error {
			var id int64
			if err := decodeArgs(args, &id); err != nil {
				return err
			}
			return h.JoinConversation(ctx, s, id)
		},
		TargetLeaveConversation: func(ctx context.Context, s *Session, args []json.RawMessage) error {
			var id int64
			if err := decodeArgs(args, &id); err != nil {
				return err
			}
			return h.LeaveConversation(ctx, s, id)
		},
		TargetSendNotificationToUser: h.relayTo(EventReceiveNotification),
		TargetSendChatMessage:        h.relayTo(EventReceiveChatMessage),
		TargetNotifyMessageRead:      h.relayTo(EventMessagesMarkedAsRead),
		TargetSendChatMessageToConversation: func(ctx context.Context, s *Session, args []json.RawMessage) error {
			var (
				id      int64
				payload json.RawMessage
			)
			if err := decodeArgs(args, &id, &payload); err != nil {
				return err
			}
			if err := h.SendToConversation(ctx, id, NewEvent(EventReceiveChatMessage, payload)); err != nil {
				if errors.Is(err, ErrInvalidConversation) {
					return err
				}
				h.logger.Warn().Err(err).Int64("conversation", id).Msg("Conversation broadcast failed.")
			}
			return nil
		},
	}
}

// relayTo handles the (targetId, kind, payload) operations. The payload is
// forwarded byte for byte.
func (h *Hub) relayTo(event string) invokeFunc {
	return func(ctx context.Context, s *Session, args []json.RawMessage) error {
		var (
			targetID int64
			kind     string
			payload  json.RawMessage
		)
		if err := decodeArgs(args, &targetID, &kind, &payload); err != nil {
			return err
		}
		target, err := targetIdentity(targetID, kind)
		if err != nil {
			return err
		}
		h.relay(ctx, s, target, NewEvent(event, payload))
		return nil
	}
}
