package probe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"

	"github.com/Tyrowin/nexus-chat-server/internal/protocol"
)

// Probe is one scripted connection.
type Probe struct {
	cfg  Config
	conn *websocket.Conn
	out  io.Writer
	log  *slog.Logger

	mu       sync.Mutex
	received map[string]int
	sent     map[string]int
	failures int
}

// Dial connects to cfg.ServerURL as cfg.UserID. Console lines go to out.
func Dial(ctx context.Context, cfg Config, out io.Writer, log *slog.Logger) (*Probe, error) {
	target, err := url.Parse(cfg.ServerURL)
	if err != nil {
		return nil, fmt.Errorf("invalid server url %q: %w", cfg.ServerURL, err)
	}
	if cfg.UserID != "" {
		q := target.Query()
		q.Set("user_id", cfg.UserID)
		target.RawQuery = q.Encode()
	}

	headers := http.Header{}
	if cfg.Origin != "" {
		headers.Set("Origin", cfg.Origin)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, resp, err := dialer.DialContext(ctx, target.String(), headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("connection error: %w", err)
	}

	p := &Probe{
		cfg:      cfg,
		conn:     conn,
		out:      out,
		log:      log,
		received: make(map[string]int),
		sent:     make(map[string]int),
	}
	p.print("", "Connected to the server as "+cfg.UserID)
	return p, nil
}

// Emit sends one event.
func (p *Probe) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	if err := p.conn.WriteJSON(protocol.Envelope{Event: event, Data: raw}); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}

	p.mu.Lock()
	p.sent[event]++
	p.mu.Unlock()
	p.log.Debug("Event emitted", "event", event)
	return nil
}

// Script emits the actions enabled in the configuration: join the public
// room, send to it, join the private room, send to it.
func (p *Probe) Script() error {
	user := p.cfg.UserID
	if room := p.cfg.RoomID; room != "" {
		if err := p.Emit(protocol.JoiningPublicRoom, map[string]string{"room_id": room, "user_id": user}); err != nil {
			return err
		}
		if p.cfg.PublicMessage != "" {
			err := p.Emit(protocol.SendPublicMessage, map[string]string{"room_id": room, "user_id": user, "message": p.cfg.PublicMessage})
			if err != nil {
				return err
			}
		}
	}

	if room := p.cfg.PrivateRoomID; room != "" {
		if err := p.Emit(protocol.JoiningPrivateRoom, map[string]string{"room_id": room, "user_id": user}); err != nil {
			return err
		}
		if p.cfg.PrivateMessage != "" {
			data := map[string]string{"room_id": room, "user_id": user, "message": p.cfg.PrivateMessage}
			if p.cfg.RecipientID != "" {
				data["recipient_id"] = p.cfg.RecipientID
			}
			if err := p.Emit(protocol.SendPrivateMessage, data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Listen prints every event until ctx is done or the server closes the
// connection. A server-side close is not an error.
func (p *Probe) Listen(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = p.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = p.conn.Close()
	})
	defer stop()

	for {
		var env protocol.Envelope
		if err := p.conn.ReadJSON(&env); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				p.print("", "Disconnected from the server")
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		p.handle(env)
	}
}

func (p *Probe) handle(env protocol.Envelope) {
	line, err := Describe(env)
	p.mu.Lock()
	p.received[env.Event]++
	if err != nil {
		p.failures++
	}
	p.mu.Unlock()

	if err != nil {
		p.log.Warn("Undecodable event", "event", env.Event, "error", err)
	}
	p.print(env.Event, line)
}

func (p *Probe) print(event, line string) {
	if p.cfg.Colours {
		line = paint(event, line)
	}
	_, _ = fmt.Fprintln(p.out, line)
}

// Received returns how many events of each kind arrived.
func (p *Probe) Received() map[string]int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo.Assign(p.received)
}

// Summary writes a table of sent and received events.
func (p *Probe) Summary(w io.Writer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	events := lo.Uniq(append(lo.Keys(p.sent), lo.Keys(p.received)...))
	sort.Strings(events)

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Event", "Sent", "Received"})
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	for _, event := range events {
		table.Append([]string{event, strconv.Itoa(p.sent[event]), strconv.Itoa(p.received[event])})
	}
	table.SetFooter([]string{"Undecodable", "", strconv.Itoa(p.failures)})
	table.Render()
}

// Close closes the connection.
func (p *Probe) Close() error {
	return p.conn.Close()
}
