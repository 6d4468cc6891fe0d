package websocket

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/shravanasati/term-tac-toe/internal/apperror"
	"github.com/shravanasati/term-tac-toe/internal/event"
)

// Conn adapts a gorilla websocket connection to the registry's event
// stream. Reads are single-goroutine by construction (the registry's
// reader owns them); writes come from the room loop and the accept path,
// so they are serialized here.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex
}

func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws}
}

// ReadEvent returns the next decoded event. Frames that are not text or
// fail validation are reported as apperror.ErrMalformedEvent; transport
// errors end the stream.
func (that *Conn) ReadEvent() (*event.Event, error) {
	messageType, raw, err := that.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("failed to read frame: %w", err)
	}

	if messageType != websocket.TextMessage {
		return nil, fmt.Errorf("%w: non-text frame", apperror.ErrMalformedEvent)
	}

	return event.Decode(raw)
}

func (that *Conn) WriteEvent(ev *event.Event) error {
	raw, err := ev.Encode()
	if err != nil {
		return err
	}

	that.writeMu.Lock()
	defer that.writeMu.Unlock()

	if err = that.ws.WriteMessage(websocket.TextMessage, raw); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	return nil
}

func (that *Conn) Close() error {
	return that.ws.Close()
}
