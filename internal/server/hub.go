// Package server coordinates client registration, inbound event dispatch and
// connection cleanup for the chat gateway via the Hub type.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/chaterr"
	"github.com/Tyrowin/nexus-chat-server/internal/fanout"
	"github.com/Tyrowin/nexus-chat-server/internal/presence"
	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
	"github.com/Tyrowin/nexus-chat-server/internal/registry"
	"github.com/Tyrowin/nexus-chat-server/internal/rooms"
	"github.com/Tyrowin/nexus-chat-server/internal/router"
)

// inbound is a decoded client frame, or the reason it could not be decoded.
type inbound struct {
	client *Client
	cmd    protocol.Command
	err    error
}

// Hub is the gateway's single event loop. Every membership and session
// mutation happens on the goroutine running Run.
type Hub struct {
	registry   *registry.Registry
	rooms      *rooms.Manager
	router     *router.Router
	presence   *presence.Notifier
	dispatcher *fanout.Dispatcher
	log        *slog.Logger

	clients  map[string]*Client
	sessions map[string]*session

	register   chan *Client
	unregister chan *Client
	inbound    chan inbound

	evictMu   sync.Mutex
	evictions []string

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a hub over the given components. Connections removed from
// the registry are pruned from their rooms, and connections whose send
// buffer overflows are evicted.
func NewHub(reg *registry.Registry, rm *rooms.Manager, rt *router.Router, pn *presence.Notifier, d *fanout.Dispatcher, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		registry:   reg,
		rooms:      rm,
		router:     rt,
		presence:   pn,
		dispatcher: d,
		log:        log,
		clients:    make(map[string]*Client),
		sessions:   make(map[string]*session),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbound:    make(chan inbound),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
	reg.OnUnregister(h.pruneConnection)
	d.OnDrop(h.evict)
	return h
}

// Register hands c to the hub. It returns false once the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) dispatch(in inbound) bool {
	select {
	case h.inbound <- in:
		return true
	case <-h.done:
		return false
	}
}

// Run starts the hub's event loop. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case c := <-h.register:
			if c == nil {
				h.log.Warn("Received nil client registration; skipping")
				continue
			}
			h.handleRegister(c)

		case c := <-h.unregister:
			h.disconnect(c)

		case in := <-h.inbound:
			h.handleInbound(in)
		}

		h.flushEvictions()
	}
}

// ClientCount returns the number of live connections.
func (h *Hub) ClientCount() int {
	return h.registry.Count()
}

// RoomCount returns the number of known rooms.
func (h *Hub) RoomCount() int {
	return h.rooms.RoomCount()
}

func (h *Hub) handleRegister(c *Client) {
	err := h.registry.Register(registry.Connection{
		SessionID:  c.id,
		UserID:     c.userID,
		RemoteAddr: c.addr,
		Outbox:     c,
	})
	if err != nil {
		h.log.Error("Client registration failed", "sid", c.id, "addr", c.addr, "error", err)
		c.close()
		if c.conn != nil {
			_ = c.conn.Close()
		}
		return
	}

	h.clients[c.id] = c
	h.sessions[c.id] = newSession(c.id)
	h.log.Info("Client registered", "sid", c.id, "user_id", c.userID, "addr", c.addr, "total", len(h.clients))

	if c.conn != nil {
		h.wg.Add(2)
		go func() {
			defer h.wg.Done()
			c.writePump()
		}()
		go func() {
			defer h.wg.Done()
			c.readPump()
		}()
	}

	h.presence.ClientCount()
}

// disconnect removes c from the registry; pruneConnection does the rest.
func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	h.registry.Unregister(c.id)
}

// pruneConnection runs after conn left the registry. The user leaves every
// room the session joined unless another live session still holds it.
func (h *Hub) pruneConnection(conn registry.Connection) {
	sess, ok := h.sessions[conn.SessionID]
	if !ok {
		return
	}
	delete(h.sessions, conn.SessionID)
	held := sess.disconnect()

	if c, ok := h.clients[conn.SessionID]; ok {
		delete(h.clients, conn.SessionID)
		c.close()
	}
	h.log.Info("Client unregistered", "sid", conn.SessionID, "user_id", conn.UserID, "addr", conn.RemoteAddr, "total", len(h.clients))

	for _, roomID := range held {
		if conn.UserID == "" || h.userHoldsRoom(conn.UserID, roomID) {
			continue
		}
		if h.rooms.Leave(roomID, conn.UserID) {
			h.presence.Left(roomID, conn.UserID)
		}
	}

	h.presence.ClientCount()
}

func (h *Hub) userHoldsRoom(userID, roomID string) bool {
	return lo.SomeBy(h.registry.ConnectionsForUser(userID), func(conn registry.Connection) bool {
		sess, ok := h.sessions[conn.SessionID]
		return ok && sess.holds(roomID)
	})
}

func (h *Hub) handleInbound(in inbound) {
	c := in.client
	sess, ok := h.sessions[c.id]
	if !ok {
		return
	}
	if in.err != nil {
		h.reply(c, in.err)
		return
	}

	userID := in.cmd.User()
	if err := h.registry.Bind(c.id, userID); err != nil {
		h.reply(c, err)
		return
	}

	var err error
	switch cmd := in.cmd.(type) {
	case protocol.JoinPublicRoom:
		err = h.join(c, sess, userID, cmd.RoomID, rooms.Public)
	case protocol.JoinPrivateRoom:
		err = h.join(c, sess, userID, cmd.RoomID, rooms.Private)
	case protocol.LeaveRoom:
		err = h.leave(sess, userID, cmd.RoomID)
	case protocol.SendPublic:
		err = h.sendPublic(c, sess, userID, cmd)
	case protocol.SendPrivate:
		err = h.sendPrivate(c, sess, userID, cmd)
	default:
		err = fmt.Errorf("%w: %q", chaterr.ErrUnknownEvent, in.cmd.Event())
	}

	if err != nil {
		h.reply(c, err)
	}
}

func (h *Hub) join(c *Client, sess *session, userID, roomID string, kind rooms.Kind) error {
	if err := sess.can(triggerJoin); err != nil {
		return err
	}
	added, err := h.rooms.Join(roomID, userID, kind)
	if err != nil {
		return err
	}
	if err := sess.join(roomID); err != nil {
		return err
	}

	if added {
		h.presence.Joined(roomID, userID)
		return nil
	}
	if conn, ok := h.registry.Lookup(c.id); ok {
		h.presence.RoomCountTo(roomID, []registry.Connection{conn})
	}
	return nil
}

// leave removes the room from every session of userID.
func (h *Hub) leave(sess *session, userID, roomID string) error {
	if err := sess.can(triggerLeave); err != nil {
		return err
	}
	if !h.rooms.Exists(roomID) {
		return fmt.Errorf("%w: %s", chaterr.ErrRoomNotFound, roomID)
	}
	if !h.rooms.IsMember(roomID, userID) {
		return fmt.Errorf("%w: %s", chaterr.ErrNotInRoom, roomID)
	}

	for _, conn := range h.registry.ConnectionsForUser(userID) {
		other, ok := h.sessions[conn.SessionID]
		if !ok || !other.holds(roomID) {
			continue
		}
		if err := other.leave(roomID); err != nil {
			h.log.Warn("Session could not leave room", "sid", conn.SessionID, "room_id", roomID, "error", err)
		}
	}

	if h.rooms.Leave(roomID, userID) {
		h.presence.Left(roomID, userID)
	}
	return nil
}

func (h *Hub) sendPublic(c *Client, sess *session, userID string, cmd protocol.SendPublic) error {
	if err := sess.canSendPublic(cmd.RoomID); err != nil {
		return err
	}
	_, err := h.router.SendPublic(cmd.RoomID, router.Sender{UserID: userID, SessionID: c.id}, cmd.Message)
	return err
}

func (h *Hub) sendPrivate(c *Client, sess *session, userID string, cmd protocol.SendPrivate) error {
	if err := sess.can(triggerSendPrivate); err != nil {
		return err
	}

	recipientID := cmd.RecipientID
	if recipientID == "" {
		var err error
		if recipientID, err = h.resolveRecipient(cmd.RoomID, userID); err != nil {
			return err
		}
	}

	_, err := h.router.SendPrivate(recipientID, router.Sender{UserID: userID, SessionID: c.id}, cmd.Message, cmd.RoomID)
	return err
}

// resolveRecipient finds the other member of the private room roomID.
func (h *Hub) resolveRecipient(roomID, userID string) (string, error) {
	private, err := h.rooms.IsPrivate(roomID)
	if err != nil {
		return "", err
	}
	if !private {
		return "", fmt.Errorf("%w: %s", chaterr.ErrNotPrivateRoom, roomID)
	}
	if !h.rooms.IsMember(roomID, userID) {
		return "", fmt.Errorf("%w: %s", chaterr.ErrNotInRoom, roomID)
	}

	others := lo.Without(h.rooms.MembersOf(roomID), userID)
	if len(others) == 0 {
		return "", fmt.Errorf("%w: nobody else in %s", chaterr.ErrUnknownRecipient, roomID)
	}
	return others[0], nil
}

func (h *Hub) reply(c *Client, err error) {
	h.log.Debug("Rejected client event", "sid", c.id, "addr", c.addr, "error", err)

	conn, ok := h.registry.Lookup(c.id)
	if !ok {
		return
	}
	h.dispatcher.Deliver([]registry.Connection{conn}, protocol.EncodeError(err))
}

// evict is the dispatcher drop handler. It only records the session; the
// hub disconnects it once the current event is done.
func (h *Hub) evict(conn registry.Connection) {
	h.evictMu.Lock()
	defer h.evictMu.Unlock()
	h.evictions = append(h.evictions, conn.SessionID)
}

func (h *Hub) flushEvictions() {
	for {
		h.evictMu.Lock()
		pending := h.evictions
		h.evictions = nil
		h.evictMu.Unlock()

		if len(pending) == 0 {
			return
		}

		for _, sid := range lo.Uniq(pending) {
			c, ok := h.clients[sid]
			if !ok {
				continue
			}
			h.log.Warn("Client removed due to full send buffer", "sid", sid, "addr", c.addr)
			h.disconnect(c)
		}
	}
}

// shutdownClients closes every active client connection.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	clients := lo.Values(h.clients)
	for _, c := range clients {
		c.close()
		if c.conn == nil {
			continue
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			h.log.Error("Error closing client connection", "addr", c.addr, "error", err)
		}
	}

	h.log.Info("Closed client connections", "count", len(clients))
}

// Shutdown stops the hub and waits for the event loop and every client
// goroutine, or until timeout. A hub whose Run never started times out.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
	case <-timer.C:
		h.log.Warn("Hub shutdown timeout reached, event loop is not running")
		return context.DeadlineExceeded
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-timer.C:
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
