package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vk/flowloop/internal/broadcast"
	"github.com/vk/flowloop/internal/event"
)

// client is one observer connection.
type client struct {
	server   *Server
	conn     *websocket.Conn
	observer *broadcast.Observer
	logger   *slog.Logger
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		s.logger.Debug("WebSocket upgrade failed.", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	id := uuid.NewString()
	hub := s.engine.Hub()
	obs, err := hub.Register(id)
	if err != nil {
		s.logger.Warn("Rejecting observer connection.", "error", err)
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server shutting down"),
			time.Now().Add(s.opts.WriteWait))
		conn.Close()
		return
	}

	c := &client{
		server:   s,
		conn:     conn,
		observer: obs,
		logger:   s.logger.With("observer", id, "remote_addr", r.RemoteAddr),
	}
	c.logger.Info("Observer connected.", "observers", hub.Count())

	// A new connection always starts from a fresh snapshot.
	c.reply(s.engine.StatusEnvelope())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()
	c.readPump()

	hub.Unregister(id)
	<-done
	c.logger.Info("Observer disconnected.", "reason", obs.Err(), "observers", hub.Count())
}

// readPump handles inbound frames until the connection fails.
func (c *client) readPump() {
	opts := c.server.opts
	c.conn.SetReadLimit(opts.MaxBodyBytes)
	_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Debug("Observer read failed.", "error", err)
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(opts.PongWait))
		c.handle(frame)
	}
}

// writePump drains the observer queue into the socket. It is the only
// writer. It exits when the queue is closed (unregister or eviction) or a
// write fails, and closes the connection so readPump returns too.
func (c *client) writePump() {
	opts := c.server.opts
	ticker := time.NewTicker(opts.pingPeriod())
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.observer.Events():
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if !ok {
				code, text := websocket.CloseNormalClosure, ""
				var bp *broadcast.BackpressureError
				if errors.As(c.observer.Err(), &bp) {
					code, text = websocket.ClosePolicyViolation, "observer too slow"
				}
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(code, text))
				return
			}
			if err := c.conn.WriteJSON(env); err != nil {
				c.logger.Debug("Observer write failed.", "error", err)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(opts.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// reply queues an envelope for this connection only.
func (c *client) reply(env event.Envelope) {
	if err := c.server.engine.Hub().SendTo(c.observer.ID(), env); err != nil {
		c.logger.Debug("Reply dropped.", "type", env.Type, "error", err)
	}
}

func (c *client) replyError(message string) {
	c.reply(event.New(event.TypeError, event.ErrorPayload{Message: message}))
}

// handle processes one inbound control message. Failures are reported to
// this connection only.
func (c *client) handle(frame []byte) {
	msg, err := event.DecodeInbound(frame)
	if err != nil {
		c.logger.Debug("Rejected inbound message.", "error", err)
		c.replyError(err.Error())
		return
	}

	eng := c.server.engine
	switch msg.Type {
	case event.TypePing:
		c.reply(event.New(event.TypePong, event.Pong{ClientTimestamp: msg.Timestamp}))

	case event.TypeGetStatus:
		c.reply(eng.StatusEnvelope())

	case event.TypeSubscribe:
		c.observer.Subscribe(msg.Subscribe.Events...)
		c.reply(event.New(event.TypeSubscriptionConfirmed, event.SubscriptionConfirmed{Events: msg.Subscribe.Events}))

	case event.TypeInputUpdate:
		upd := msg.InputUpdate
		resp := event.InputUpdateResponse{
			NodeID:     upd.NodeID,
			InputName:  upd.InputName,
			InputValue: upd.InputValue,
			Success:    true,
			Message:    "Parameter updated successfully",
		}
		if err := eng.UpdateInput(upd.NodeID, upd.InputName, upd.InputValue); err != nil {
			resp.Success = false
			resp.Message = err.Error()
		}
		c.reply(event.New(event.TypeInputUpdateResponse, resp))
	}
}
