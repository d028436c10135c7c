// Copyright 2025 OneCore Project

package connection

import (
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader accepts incoming websocket connections on a relay or direct
// listener. Origin checking is left to the caller's reverse proxy /
// firewall, consistent with this being a peer-to-peer sync protocol
// rather than a browser-facing API.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Dial opens a websocket connection to url and wraps it as a Connection.
func Dial(url string) (*Connection, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}

// Accept upgrades an incoming HTTP request to a websocket and wraps it as
// a Connection. Intended for use inside a relay's http.HandlerFunc.
func Accept(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, err
	}
	return New(conn), nil
}
