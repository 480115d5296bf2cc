package echoapi

import (
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// stream pushes a tracking.Frame to the client every time the map changes, starting with the current one.
func (api *trackingApi) stream(ctx echo.Context) error {
	conn, err := api.upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
	if err != nil {
		return nil // Upgrade already replied
	}
	defer func() { _ = conn.Close() }()

	frames, unsubscribe := api.svc.Subscribe()
	defer unsubscribe()

	reqCtx := ctx.Request().Context()
	snapshot, err := api.svc.Snapshot(reqCtx)
	if err != nil {
		api.closeStream(conn, websocket.CloseGoingAway, "tracking stopped")
		return nil
	}
	if err = api.writeJSON(conn, snapshot); err != nil {
		return nil
	}

	// the client only talks to close the stream
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error { return conn.SetReadDeadline(time.Now().Add(pongWait)) })
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case frame, ok := <-frames:
			if !ok {
				api.closeStream(conn, websocket.CloseGoingAway, "tracking stopped")
				return nil
			}
			if err = api.writeJSON(conn, frame); err != nil {
				return nil
			}
		case <-ticker.C:
			if err = conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return nil
			}
		case <-closed:
			return nil
		case <-reqCtx.Done():
			return nil
		}
	}
}

func (api *trackingApi) writeJSON(conn *websocket.Conn, v interface{}) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		api.logger.Debug("writing to tracking stream", errors.Wrap(err, "writing frame"))
		return err
	}
	return nil
}

func (api *trackingApi) closeStream(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}
