package room

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/callvox/salesagent/internal/resilience"
)

// Participant is a remote peer in the room.
type Participant struct {
	Identity string    `json:"identity"`
	JoinedAt time.Time `json:"joined_at"`
}

// Client is the media-room connection the orchestrator drives. Connect
// errors eligible for retry are wrapped with resilience.Retryable.
// ParticipantLeft signals a departing identity; the session treats it as
// the end of the conversation.
type Client interface {
	Connect(ctx context.Context) error
	WaitForParticipant(ctx context.Context) (*Participant, error)
	ParticipantLeft() <-chan string
	Metadata() string
	Disconnect() error
}

// frame is one signaling message from the media server.
type frame struct {
	Type         string  `json:"type"` // "joined", "participant_joined", "participant_left", "room_metadata", "transcript"
	Identity     string  `json:"identity,omitempty"`
	Metadata     string  `json:"metadata,omitempty"`
	Text         string  `json:"text,omitempty"`
	AudioSeconds float64 `json:"audio_seconds,omitempty"`
}

// Transcript is one recognized user speech segment relayed by the media
// server's transcription pipeline.
type Transcript struct {
	Text         string
	AudioSeconds float64
	ReceivedAt   time.Time
}

// WSClient joins a room over the media server's websocket signaling
// endpoint.
type WSClient struct {
	url   string
	token string

	mu       sync.Mutex
	conn     *websocket.Conn
	metadata string

	joined      chan Participant
	left        chan string
	transcripts chan Transcript
	closed      chan struct{}
}

// NewWSClient creates an unconnected room client. url is the signaling
// endpoint (ws:// or wss://), token a join token for the agent identity.
func NewWSClient(url, token string) *WSClient {
	return &WSClient{
		url:         url,
		token:       token,
		joined:      make(chan Participant, 8),
		left:        make(chan string, 8),
		transcripts: make(chan Transcript, 32),
		closed:      make(chan struct{}),
	}
}

// Connect dials the signaling endpoint and starts the read loop.
// Dial failures are transient from the caller's point of view, so they come
// back retryable.
func (c *WSClient) Connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url+"?access_token="+c.token, nil)
	if err != nil {
		return resilience.Retryable(fmt.Errorf("room dial %s: %w", c.url, err))
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	go c.readLoop(conn)
	slog.Info("room connected", "url", c.url)
	return nil
}

func (c *WSClient) readLoop(conn *websocket.Conn) {
	defer close(c.closed)
	defer close(c.transcripts)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("room connection lost", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			slog.Warn("room frame decode failed", "error", err)
			continue
		}

		switch f.Type {
		case "joined", "room_metadata":
			c.mu.Lock()
			if f.Metadata != "" {
				c.metadata = f.Metadata
			}
			c.mu.Unlock()
		case "participant_joined":
			select {
			case c.joined <- Participant{Identity: f.Identity, JoinedAt: time.Now()}:
			default:
			}
		case "participant_left":
			select {
			case c.left <- f.Identity:
			default:
			}
		case "transcript":
			select {
			case c.transcripts <- Transcript{Text: f.Text, AudioSeconds: f.AudioSeconds, ReceivedAt: time.Now()}:
			default:
				slog.Warn("transcript dropped, consumer too slow")
			}
		}
	}
}

// WaitForParticipant blocks until a remote participant joins, the
// connection drops, or ctx expires.
func (c *WSClient) WaitForParticipant(ctx context.Context) (*Participant, error) {
	select {
	case p := <-c.joined:
		slog.Info("participant joined", "identity", p.Identity)
		return &p, nil
	case <-c.closed:
		return nil, fmt.Errorf("room connection closed while waiting for participant")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ParticipantLeft exposes departures for the orchestrator's event loop.
func (c *WSClient) ParticipantLeft() <-chan string { return c.left }

// Transcripts exposes recognized user speech. The channel closes when the
// connection drops.
func (c *WSClient) Transcripts() <-chan Transcript { return c.transcripts }

// Metadata returns the room metadata last sent by the server.
func (c *WSClient) Metadata() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metadata
}

// Disconnect closes the signaling connection.
func (c *WSClient) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return nil
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	return conn.Close()
}
