package api

import (
	"net/http"
)

const sessionUIHTML = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>ARTutor - Session Console</title>
    <style>
        * { box-sizing: border-box; margin: 0; padding: 0; }
        body {
            font-family: monospace;
            background: #1a1a2e;
            color: #eee;
            height: 100vh;
            display: flex;
            flex-direction: column;
        }
        header {
            background: #16213e;
            padding: 12px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            justify-content: space-between;
            align-items: center;
        }
        header h1 { font-size: 16px; font-weight: normal; }
        #status { padding: 4px 10px; border-radius: 4px; font-size: 12px; }
        #status.connected { background: #1b4332; color: #95d5b2; }
        #status.disconnected { background: #7f1d1d; color: #fca5a5; }
        #status.connecting { background: #78350f; color: #fcd34d; }
        .controls {
            background: #16213e;
            padding: 10px 20px;
            border-bottom: 1px solid #0f3460;
            display: flex;
            gap: 10px;
            align-items: center;
            flex-wrap: wrap;
            font-size: 12px;
        }
        .controls select, .controls input[type=text] {
            background: #1a1a2e;
            border: 1px solid #0f3460;
            border-radius: 4px;
            padding: 6px 10px;
            color: #eee;
            font-family: monospace;
            font-size: 12px;
        }
        .controls button {
            border: none;
            border-radius: 4px;
            padding: 6px 12px;
            color: #fff;
            font-family: monospace;
            font-size: 12px;
            cursor: pointer;
            background: #2563eb;
        }
        .controls button.start { background: #059669; }
        .controls button.stop { background: #dc2626; }
        #view {
            padding: 14px 20px;
            border-bottom: 1px solid #0f3460;
            font-size: 13px;
        }
        #view .phase { color: #60a5fa; font-weight: bold; margin-right: 12px; }
        #view .indicator { background: #1b4332; color: #95d5b2; padding: 2px 8px; border-radius: 4px; }
        #view .indicator.fallback { background: #78350f; color: #fcd34d; }
        #view ul { margin: 8px 0 0 20px; color: #9ca3af; }
        #transitions { color: #6b7280; font-size: 11px; margin-top: 6px; }
        main { flex: 1; overflow-y: auto; padding: 10px; }
        .event {
            padding: 6px 12px;
            margin-bottom: 4px;
            background: #16213e;
            border-radius: 4px;
            border-left: 3px solid #0f3460;
            font-size: 12px;
            display: flex;
            gap: 12px;
        }
        .event.level-error { border-left-color: #dc2626; }
        .event.level-warn { border-left-color: #d97706; }
        .event.scope-mode { border-left-color: #059669; }
        .event.scope-marker { border-left-color: #7c3aed; }
        .ts { color: #6b7280; min-width: 90px; }
        .name { color: #60a5fa; min-width: 160px; }
        .msg { color: #9ca3af; }
    </style>
</head>
<body>
    <header>
        <h1>ARTutor - Session Console</h1>
        <span id="status" class="disconnected">Disconnected</span>
    </header>
    <div class="controls">
        <select id="model"></select>
        <input type="text" id="subject" placeholder="subject">
        <label><input type="checkbox" id="camera" checked> camera</label>
        <button class="start" onclick="post('/session/start', startBody())">Start</button>
        <button onclick="post('/session/select', {model: document.getElementById('model').value})">Select</button>
        <button onclick="post('/session/ready', {})">Scene ready</button>
        <button class="stop" onclick="post('/session/end', {})">End</button>
    </div>
    <div id="view"></div>
    <main id="events"></main>

    <script>
        const eventsEl = document.getElementById('events');
        const statusEl = document.getElementById('status');
        const viewEl = document.getElementById('view');
        let ws = null;
        let reconnectTimer = null;

        function text(s) {
            const span = document.createElement('span');
            span.textContent = s;
            return span.innerHTML;
        }

        function startBody() {
            return {
                model: document.getElementById('model').value,
                subject: document.getElementById('subject').value,
                camera: document.getElementById('camera').checked
            };
        }

        function renderSession(s) {
            const v = s.view;
            let html = '<span class="phase">' + text(v.phase) + '</span>' + text(v.title || '');
            if (v.indicator) {
                const cls = s.status.mode === 'fallback' ? 'indicator fallback' : 'indicator';
                html += ' <span class="' + cls + '">' + text(v.indicator) + '</span>';
            }
            if (v.message) html += '<div>' + text(v.message) + '</div>';
            if (v.instructions) {
                html += '<ul>' + v.instructions.map(function(i) { return '<li>' + text(i) + '</li>'; }).join('') + '</ul>';
            }
            if (s.transitions) {
                html += '<div id="transitions">' + s.transitions.map(text).join(' &rarr; ') + '</div>';
            }
            viewEl.innerHTML = html;
        }

        function refresh() {
            fetch('/session').then(function(r) { return r.json(); }).then(renderSession).catch(function() {});
        }

        function post(path, body) {
            fetch(path, {method: 'POST', headers: {'Content-Type': 'application/json'}, body: JSON.stringify(body)})
                .then(function(r) { return r.json(); })
                .then(function(s) { if (s.view) renderSession(s); else refresh(); })
                .catch(function(err) { console.error(path, err); });
        }

        function renderEvent(e) {
            const div = document.createElement('div');
            div.className = 'event level-' + e.level + ' scope-' + e.event.split('.')[0];
            div.innerHTML =
                '<span class="ts">' + text(new Date(e.ts).toLocaleTimeString('en-US', {hour12: false})) + '</span>' +
                '<span class="name">' + text(e.event) + '</span>' +
                (e.msg ? '<span class="msg">' + text(e.msg) + '</span>' : '');
            eventsEl.appendChild(div);
            eventsEl.scrollTop = eventsEl.scrollHeight;
            while (eventsEl.children.length > 500) eventsEl.removeChild(eventsEl.firstChild);
            if (e.event === 'state.changed') refresh();
        }

        function setStatus(s) {
            statusEl.className = s;
            statusEl.textContent = s.charAt(0).toUpperCase() + s.slice(1);
        }

        function connect() {
            if (ws && ws.readyState === WebSocket.OPEN) return;
            setStatus('connecting');
            const protocol = location.protocol === 'https:' ? 'wss:' : 'ws:';
            ws = new WebSocket(protocol + '//' + location.host + '/ws/events');
            ws.onopen = function() { setStatus('connected'); };
            ws.onmessage = function(msg) {
                try { renderEvent(JSON.parse(msg.data)); } catch (err) { console.error(err); }
            };
            ws.onclose = function() {
                setStatus('disconnected');
                if (!reconnectTimer) {
                    reconnectTimer = setTimeout(function() { reconnectTimer = null; connect(); }, 3000);
                }
            };
            ws.onerror = function() { ws.close(); };
        }

        fetch('/models').then(function(r) { return r.json(); }).then(function(keys) {
            const sel = document.getElementById('model');
            keys.forEach(function(k) {
                const o = document.createElement('option');
                o.value = k;
                o.textContent = k;
                sel.appendChild(o);
            });
        });
        refresh();
        connect();
    </script>
</body>
</html>
`

// uiHandler serves the session console at the root path only.
func uiHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(sessionUIHTML))
}
