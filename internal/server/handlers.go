// Package server provides HTTP handlers for WebSocket upgrades, liveness
// checks, and the interactive realtime test page.
package server

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     checkOrigin,
}

// WebSocketHandler upgrades GET /ws/{user_id} and hands the connection to the
// hub, which registers it and starts its pumps.
func WebSocketHandler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
			return
		}

		userID := r.PathValue("user_id")
		if userID == "" {
			http.Error(w, "user id required", http.StatusBadRequest)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			ctxzap.Extract(r.Context()).Warn("websocket upgrade failed", zap.Error(err))
			return
		}

		client := NewClient(conn, hub, userID, r.RemoteAddr)

		select {
		case hub.register <- client:
		case <-hub.ctx.Done():
			_ = conn.Close()
		}
	}
}

func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "Xalvion server is running!")
}

func TestPageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPageHTML); err != nil {
		ctxzap.Extract(r.Context()).Warn("error writing HTML response", zap.Error(err))
	}
}

const testPageHTML = `<!DOCTYPE html>
<html>
<head>
    <title>Xalvion Realtime Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 220px; padding: 5px; margin-right: 10px; }
        button {
            padding: 5px 15px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .status { margin: 10px 0; padding: 5px; border-radius: 3px; }
        .connected { background-color: #d4edda; color: #155724; }
        .disconnected { background-color: #f8d7da; color: #721c24; }
    </style>
</head>
<body>
    <h1>Xalvion Realtime Test</h1>

    <div id="status" class="status disconnected">Disconnected</div>

    <div>
        <input type="text" id="userId" placeholder="User id">
        <button id="connectButton" onclick="toggleConnection()">Connect</button>
    </div>
    <div>
        <input type="text" id="serverId" placeholder="Server id">
        <button onclick="joinServer()">Join server</button>
    </div>
    <div>
        <input type="text" id="channelId" placeholder="Channel id">
        <button onclick="sendTyping('typing')">Typing</button>
        <button onclick="sendTyping('stop_typing')">Stop typing</button>
    </div>
    <div>
        <input type="text" id="activity" placeholder="Activity">
        <button onclick="updatePresence()">Update presence</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const eventsDiv = document.getElementById('events');
        const statusDiv = document.getElementById('status');
        const connectButton = document.getElementById('connectButton');

        function value(id) {
            return document.getElementById(id).value.trim();
        }

        function addLine(text) {
            const line = document.createElement('div');
            line.textContent = text;
            eventsDiv.appendChild(line);
            eventsDiv.scrollTop = eventsDiv.scrollHeight;
        }

        function updateStatus(connected) {
            statusDiv.textContent = connected ? 'Connected' : 'Disconnected';
            statusDiv.className = 'status ' + (connected ? 'connected' : 'disconnected');
            connectButton.textContent = connected ? 'Disconnect' : 'Connect';
        }

        function send(event) {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.send(JSON.stringify(event));
                addLine('> ' + JSON.stringify(event));
            }
        }

        function connect() {
            const userId = value('userId');
            if (!userId) {
                addLine('user id required');
                return;
            }
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws/' + encodeURIComponent(userId));
            ws.onopen = function() { addLine('connected as ' + userId); updateStatus(true); };
            ws.onmessage = function(event) { addLine('< ' + event.data); };
            ws.onclose = function() { addLine('connection closed'); updateStatus(false); ws = null; };
            ws.onerror = function() { addLine('connection error'); updateStatus(false); };
        }

        function toggleConnection() {
            if (ws && ws.readyState === WebSocket.OPEN) {
                ws.close();
            } else {
                connect();
            }
        }

        function joinServer() {
            send({type: 'join_server', server_id: value('serverId')});
        }

        function sendTyping(type) {
            send({type: type, channel_id: value('channelId'), username: value('userId')});
        }

        function updatePresence() {
            send({type: 'presence_update', data: {activity: value('activity')}});
        }
    </script>
</body>
</html>`
