package main

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/aadithya-v/qibla"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is sent by the browser.
//
//	{"type":"hello","supported":true,"permission_api":true}
//	{"type":"start"} / {"type":"stop"} / {"type":"retry"}
//	{"type":"permission","request_id":1,"granted":true}
//	{"type":"orientation","compass_heading":12.5,"alpha":347.5}
type clientMessage struct {
	Type           string   `json:"type"`
	Supported      bool     `json:"supported"`
	PermissionAPI  bool     `json:"permission_api"`
	RequestID      uint64   `json:"request_id"`
	Granted        bool     `json:"granted"`
	CompassHeading *float64 `json:"compass_heading,omitempty"`
	Alpha          *float64 `json:"alpha,omitempty"`
}

// serverMessage is sent to the browser.
type serverMessage struct {
	Type       string              `json:"type"`
	RequestID  uint64              `json:"request_id,omitempty"`
	SessionID  string              `json:"session_id,omitempty"`
	Bearing    *float64            `json:"bearing,omitempty"`
	DistanceKM *float64            `json:"distance_km,omitempty"`
	State      *qibla.TrackerState `json:"state,omitempty"`
	Heading    *float64            `json:"heading,omitempty"`
	Rotation   *float64            `json:"rotation,omitempty"`
	Error      string              `json:"error,omitempty"`
}

// compassConn is one browser connection carrying one Qibla session.
type compassConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex

	feed *qibla.EventFeed

	// pending receives the answer to the permission request numbered pendingID.
	promptMu  sync.Mutex
	requestID uint64
	pendingID uint64
	pending   chan bool
}

func (cc *compassConn) send(msg serverMessage) error {
	cc.writeMu.Lock()
	defer cc.writeMu.Unlock()
	return cc.ws.WriteJSON(msg)
}

// prompt asks the browser to show its permission dialog and waits for the
// answer carrying the same request id.
func (cc *compassConn) prompt(ctx context.Context) (bool, error) {
	answer := make(chan bool, 1)

	cc.promptMu.Lock()
	cc.requestID++
	id := cc.requestID
	cc.pendingID, cc.pending = id, answer
	cc.promptMu.Unlock()

	defer func() {
		cc.promptMu.Lock()
		if cc.pendingID == id {
			cc.pendingID, cc.pending = 0, nil
		}
		cc.promptMu.Unlock()
	}()

	if err := cc.send(serverMessage{Type: "permission_request", RequestID: id}); err != nil {
		return false, err
	}
	select {
	case granted := <-answer:
		return granted, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// answer delivers a permission answer to the request it names. Answers for
// requests that are no longer pending are dropped.
func (cc *compassConn) answer(id uint64, granted bool) bool {
	cc.promptMu.Lock()
	defer cc.promptMu.Unlock()

	if cc.pending == nil || id != cc.pendingID {
		return false
	}
	cc.pending <- granted
	cc.pendingID, cc.pending = 0, nil
	return true
}

// compass upgrades to a websocket. The device position comes from the lat/lng
// query parameters or GeoIP; the first client message must be "hello".
func (h *handlers) compass(c *gin.Context) {
	userID := c.Query("user_id")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	device := qibla.ExtractDeviceInfo(c.Request)
	loc, err := h.locationFor(c, device)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	defer ws.Close()

	cc := &compassConn{
		ws:   ws,
		feed: qibla.NewEventFeed(),
	}

	var hello clientMessage
	if err := ws.ReadJSON(&hello); err != nil || hello.Type != "hello" {
		_ = cc.send(serverMessage{Type: "error", Error: "expected hello"})
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	hint := qibla.SensorHint{Supported: hello.Supported, PermissionAPI: hello.PermissionAPI}
	sensor := qibla.SelectSensor(device.UserAgent, hint, cc.feed, cc.prompt)
	session, err := h.finder.Begin(ctx, userID, device, loc, sensor)
	if err != nil {
		_ = cc.send(serverMessage{Type: "error", Error: err.Error()})
		return
	}
	defer session.Close()

	session.OnUpdate(func(u qibla.Update) {
		msg := serverMessage{
			Type:     "update",
			State:    &u.State,
			Heading:  u.Heading,
			Rotation: u.Rotation,
		}
		if u.Err != nil {
			msg.Error = userMessage(u.Err)
		}
		if err := cc.send(msg); err != nil {
			h.logger.Debug().Err(err).Str("session_id", session.ID).Msg("update dropped")
		}
	})

	bearing, distance, state := session.Bearing(), session.DistanceKM, session.State()
	if err := cc.send(serverMessage{
		Type:       "session",
		SessionID:  session.ID,
		Bearing:    &bearing,
		DistanceKM: &distance,
		State:      &state,
	}); err != nil {
		return
	}

	for {
		var msg clientMessage
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}

		switch msg.Type {
		case "start":
			// Start blocks on the permission prompt, whose answer arrives on this loop.
			go func() { _ = session.StartCompass(ctx) }()
		case "retry":
			go func() { _ = session.Retry(ctx) }()
		case "stop":
			session.StopCompass()
		case "permission":
			if !cc.answer(msg.RequestID, msg.Granted) {
				h.logger.Debug().Uint64("request_id", msg.RequestID).Str("session_id", session.ID).Msg("stale permission answer dropped")
			}
		case "orientation":
			cc.feed.Publish(qibla.OrientationEvent{
				CompassHeading: msg.CompassHeading,
				Alpha:          msg.Alpha,
			})
		default:
			_ = cc.send(serverMessage{Type: "error", Error: "unknown message type"})
		}
	}
}

// userMessage distinguishes "you denied access" from "your device lacks this".
func userMessage(err error) string {
	switch {
	case errors.Is(err, qibla.ErrSensorPermissionDenied):
		return "Compass access was denied. Allow motion & orientation access and try again."
	case errors.Is(err, qibla.ErrSensorUnsupported):
		return "This device has no compass sensor."
	default:
		return err.Error()
	}
}
