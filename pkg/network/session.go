package network

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/cbodonnell/tabletop/pkg/game"
	"github.com/cbodonnell/tabletop/pkg/game/types"
	"github.com/cbodonnell/tabletop/pkg/log"
	"github.com/cbodonnell/tabletop/pkg/messages"
)

// Session serves the requests of one slot against the engine. It is what a
// handler process runs.
type Session struct {
	slot        int
	engine      *game.Engine
	in          io.Reader
	out         io.Writer
	broadcaster game.Broadcaster
	joined      bool
}

// NewSessionOptions contains options for creating a new Session.
type NewSessionOptions struct {
	Slot   int
	Engine *game.Engine
	In     io.Reader
	Out    io.Writer
	// Broadcaster receives the notifications caused by this slot's requests.
	Broadcaster game.Broadcaster
}

func NewSession(opts NewSessionOptions) *Session {
	return &Session{
		slot:        opts.Slot,
		engine:      opts.Engine,
		in:          opts.In,
		out:         opts.Out,
		broadcaster: opts.Broadcaster,
	}
}

// Run reads requests until the client quits, the channel closes or ctx is
// done. A closed channel counts as a quit without a response and is
// reported as *ErrConnectionClosed.
func (s *Session) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			s.leave()
			return ctx.Err()
		}

		msg, err := ReadMessage(s.in)
		if err != nil {
			if IsConnectionClosed(err) {
				log.Debug("Channel of slot %d closed", s.slot)
				s.leave()
				return err
			}
			if errors.Is(err, messages.ErrMalformedMessage) {
				if err := s.replyError(err); err != nil {
					if IsConnectionClosed(err) {
						s.leave()
					}
					return err
				}
				continue
			}
			// A bad length prefix leaves the stream unusable.
			s.replyError(err)
			s.leave()
			return fmt.Errorf("slot %d: %w", s.slot, err)
		}

		quit, err := s.handle(msg)
		if err != nil {
			if IsConnectionClosed(err) {
				s.leave()
			}
			return err
		}
		if quit {
			return nil
		}
	}
}

// handle answers one request and reports whether the session is over.
func (s *Session) handle(msg *messages.Message) (bool, error) {
	if msg.Slot != s.slot {
		return false, s.replyError(fmt.Errorf("message for slot %d sent on the channel of slot %d", msg.Slot, s.slot))
	}

	switch msg.Type {
	case messages.MessageTypeJoin:
		return false, s.handleJoin(msg)
	case messages.MessageTypeRoll:
		return false, s.handleMove(types.Move{Kind: types.MoveRoll})
	case messages.MessageTypePlace:
		req := &messages.PlaceRequest{}
		if err := msg.Decode(req); err != nil {
			return false, s.replyError(err)
		}
		return false, s.handleMove(types.Move{Kind: types.MovePlace, Row: req.Row, Col: req.Col, Value: req.Value})
	case messages.MessageTypeStatus:
		return false, s.reply(messages.MessageTypeStatus, messages.Status{State: s.engine.Status()})
	case messages.MessageTypeQuit:
		s.leave()
		return true, s.reply(messages.MessageTypeGoodbye, nil)
	default:
		return false, s.replyError(fmt.Errorf("unknown message type %q", msg.Type))
	}
}

func (s *Session) handleJoin(msg *messages.Message) error {
	if s.joined {
		return s.replyError(fmt.Errorf("already joined"))
	}
	req := &messages.JoinRequest{}
	if err := msg.Decode(req); err != nil {
		return s.replyError(err)
	}
	res, err := s.engine.Join(s.slot, req.Name)
	if err != nil {
		return s.replyError(err)
	}
	s.joined = true

	joined := messages.Joined{
		Slot:    s.slot,
		Started: res.Started,
		Missing: res.Missing,
		State:   res.Snapshot,
	}
	if p := res.Snapshot.Player(s.slot); p != nil {
		joined.Name = p.Name
	}
	if err := s.reply(messages.MessageTypeJoined, joined); err != nil {
		return err
	}

	if s.broadcaster == nil {
		return nil
	}
	if res.Started {
		s.broadcaster.GameStarted(res.Snapshot)
		s.broadcaster.YourTurn(res.Snapshot.CurrentTurn, res.Snapshot)
	} else {
		s.broadcaster.StateChanged(s.slot, res.Snapshot)
	}
	return nil
}

func (s *Session) handleMove(move types.Move) error {
	if !s.joined {
		return s.replyError(game.ErrNotJoined)
	}
	res, err := s.engine.Move(s.slot, move)
	if err != nil {
		var nyt *game.NotYourTurnError
		switch {
		case errors.As(err, &nyt):
			return s.reply(messages.MessageTypeWait, messages.Wait{
				Message:     nyt.Error(),
				CurrentTurn: nyt.CurrentTurn,
				CurrentName: nyt.CurrentName,
			})
		case errors.Is(err, game.ErrNotInProgress):
			return s.reply(messages.MessageTypeWait, messages.Wait{
				Message:     err.Error(),
				CurrentTurn: -1,
			})
		default:
			return s.replyError(err)
		}
	}

	if err := s.reply(messages.MessageTypeMoveResult, messages.MoveResult{Outcome: res.Outcome, State: res.Snapshot}); err != nil {
		return err
	}
	if s.broadcaster == nil {
		return nil
	}
	if res.Outcome.Finished {
		s.broadcaster.GameOver(res.Snapshot)
		return nil
	}
	s.broadcaster.StateChanged(s.slot, res.Snapshot)
	if res.Outcome.NextTurn != s.slot {
		s.broadcaster.YourTurn(res.Outcome.NextTurn, res.Snapshot)
	}
	return nil
}

func (s *Session) leave() {
	if !s.joined {
		return
	}
	res := s.engine.Leave(s.slot)
	s.joined = false
	if !res.Left {
		return
	}
	log.Info("Player %d (%s) left", s.slot+1, res.Name)
	if s.broadcaster != nil {
		s.broadcaster.PlayerLeft(s.slot, res.Name, res.Snapshot)
	}
}

func (s *Session) reply(messageType string, payload interface{}) error {
	m, err := messages.NewMessage(s.slot, messageType, payload)
	if err != nil {
		return err
	}
	return WriteMessage(s.out, m)
}

func (s *Session) replyError(cause error) error {
	log.Debug("Rejected request from slot %d: %v", s.slot, cause)
	return s.reply(messages.MessageTypeError, messages.Error{Message: cause.Error()})
}
