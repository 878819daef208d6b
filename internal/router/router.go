// Package router decodes and validates inbound WebSocket frames and
// dispatches each to the owning session.Actor. It is the Message Router
// module (§4.6): one decode of the envelope to learn the type, one typed
// decode + struct-tag validation of the full message, then a single
// Enqueue onto the actor so the actual state mutation always runs
// serialized on the actor's own goroutine.
package router

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/classroomgames/tugquiz/internal/session"
	"github.com/classroomgames/tugquiz/internal/wire"
)

var validate = validator.New()

// Dispatch decodes one raw client frame and enqueues its handling onto
// actor. conn must already be authenticated (HELLO is handled separately
// by the transport before a connection is registered).
func Dispatch(actor *session.Actor, conn session.Connection, raw []byte) error {
	var env wire.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	switch env.Type {
	case wire.TypeJoinTeam:
		msg, err := decode[wire.JoinTeam](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleJoinTeam(ctx, conn, msg) })

	case wire.TypeSubmitAnswer:
		msg, err := decode[wire.SubmitAnswer](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleSubmitAnswer(ctx, conn, msg) })

	case wire.TypeTeacherNextQuestion:
		msg, err := decode[wire.TeacherNextQuestion](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleNextQuestion(ctx, conn, msg) })

	case wire.TypeTeacherPause:
		msg, err := decodeSimple(raw, wire.TypeTeacherPause)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandlePause(ctx, conn, msg) })

	case wire.TypeTeacherResume:
		msg, err := decodeSimple(raw, wire.TypeTeacherResume)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleResume(ctx, conn, msg) })

	case wire.TypeTeacherEndGame:
		msg, err := decodeSimple(raw, wire.TypeTeacherEndGame)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleEndGame(ctx, conn, msg) })

	case wire.TypeTeacherManualAdjust:
		msg, err := decode[wire.TeacherManualAdjust](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleManualAdjust(ctx, conn, msg) })

	case wire.TypeTeacherKickPlayer:
		msg, err := decode[wire.TeacherKickPlayer](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandleKickPlayer(ctx, conn, msg) })

	case wire.TypePing:
		msg, err := decode[wire.Ping](raw)
		if err != nil {
			return err
		}
		actor.Enqueue(func(ctx context.Context) { actor.HandlePing(ctx, conn, msg) })

	default:
		return fmt.Errorf("unknown message type %q", env.Type)
	}
	return nil
}

// decode unmarshals raw into T and runs struct-tag validation.
func decode[T any](raw []byte) (*T, error) {
	var msg T
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	if err := validate.Struct(&msg); err != nil {
		return nil, fmt.Errorf("validate message: %w", err)
	}
	return &msg, nil
}

// decodeSimple handles the three teacher commands that carry no payload
// beyond the discriminator, re-checking the concrete type matches t since
// wire.TeacherSimple's own validate tag only requires Type to be present.
func decodeSimple(raw []byte, t wire.ClientMessageType) (*wire.TeacherSimple, error) {
	msg, err := decode[wire.TeacherSimple](raw)
	if err != nil {
		return nil, err
	}
	if msg.Type != t {
		return nil, fmt.Errorf("expected message type %q, got %q", t, msg.Type)
	}
	return msg, nil
}
