package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"support-gateway/internal/auth"
	"support-gateway/internal/calls"
	"support-gateway/internal/config"
	"support-gateway/internal/messaging"
	"support-gateway/internal/presence"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Gateway upgrades authenticated connections and dispatches their events
// to the presence, chat and call routers.
type Gateway struct {
	auth     *auth.Manager
	presence *presence.Registry
	calls    *calls.Router
	messages *messaging.Router

	cfg      config.WSConfig
	upgrader websocket.Upgrader
	clock    func() time.Time
	log      *slog.Logger
}

func New(am *auth.Manager, reg *presence.Registry, callRouter *calls.Router, msgRouter *messaging.Router, cfg config.WSConfig, log *slog.Logger) *Gateway {
	if log == nil {
		log = slog.Default()
	}
	return &Gateway{
		auth:     am,
		presence: reg,
		calls:    callRouter,
		messages: msgRouter,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Browser clients connect cross-origin; auth is the token, not
			// the origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		clock: time.Now,
		log:   log,
	}
}

// Handle is the gin handler for the /ws endpoint. The connection gate runs
// before the upgrade: a bad token is an HTTP 401, never a half-open socket.
func (g *Gateway) Handle(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		token = bearerToken(c.Request)
	}

	identity, err := g.auth.Authenticate(token, g.clock())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("ws upgrade failed", "identity", identity.ID, "err", err)
		return
	}

	client := newClient(conn, identity, g.cfg.SendBuffer, g.log)
	go client.writePump(g.cfg.WriteTimeout, g.cfg.PingPeriod)

	g.presence.Register(client)
	defer func() {
		g.presence.Unregister(client)
		client.close()
	}()

	g.readLoop(client)
}

func (g *Gateway) readLoop(client *Client) {
	ctx := auth.WithIdentity(context.Background(), client.identity)

	client.conn.SetReadLimit(g.cfg.ReadLimitBytes)
	_ = client.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(g.cfg.PongWait))
	})

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				client.log.Debug("read failed", "err", err)
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			_ = client.Send(EventError, ErrorEvent{Message: "malformed envelope"})
			continue
		}
		if env.Event == "" {
			continue
		}

		if err := g.dispatch(ctx, client, env); err != nil {
			client.log.Warn("event failed", "event", env.Event, "err", err)
			_ = client.Send(EventError, ErrorEvent{Message: err.Error()})
		}
	}
}

func (g *Gateway) dispatch(ctx context.Context, client *Client, env envelope) error {
	switch env.Event {
	case EventJoinConversation:
		var req JoinConversation
		if err := decode(env, &req); err != nil {
			return err
		}
		client.conversationID = req.ConversationID
		return nil

	case EventSendMessage:
		var req messaging.SendRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		if req.ConversationID == "" {
			req.ConversationID = client.conversationID
		}
		return g.messages.Send(ctx, client, req)

	case EventFetchOffline:
		return g.messages.FetchOffline(ctx, client)

	case EventInitiateCall:
		var req calls.InitiateRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.Initiate(ctx, client, req)

	case EventAcceptCall:
		var req calls.AcceptRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.Accept(ctx, client, req)

	case EventRejectCall:
		var req calls.TerminalRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.Reject(ctx, client, req)

	case EventCancelCall:
		var req calls.TerminalRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.Cancel(ctx, client, req)

	case EventEndCall:
		var req calls.TerminalRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.End(ctx, client, req)

	case calls.EventWebRTCOffer, calls.EventWebRTCAnswer, calls.EventWebRTCICECandidate:
		var req calls.RelayRequest
		if err := decode(env, &req); err != nil {
			return err
		}
		return g.calls.Relay(ctx, client, env.Event, req)

	case EventHeartbeatPing:
		var req HeartbeatPing
		if err := decode(env, &req); err != nil {
			return err
		}
		g.presence.Touch(client)
		return client.Send(EventHeartbeatPong, HeartbeatPong{
			Timestamp:       req.Timestamp,
			ServerTimestamp: g.clock().UTC().UnixMilli(),
		})

	default:
		return fmt.Errorf("unknown event %q", env.Event)
	}
}

func decode(env envelope, out any) error {
	if len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("malformed %s payload", env.Event)
	}
	return nil
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}
