package web

import (
	"html/template"
	"net/http"
)

var indexTemplate = template.Must(template.New("index").Parse(htmlTemplate))

const htmlTemplate = `
<!DOCTYPE html>
<html>
<head>
    <title>Bike arcade controller</title>
    <meta charset="utf-8">
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; background-color: #f5f5f5; }
        .container { max-width: 1200px; margin: 0 auto; }
        .card { background: white; padding: 20px; margin: 10px 0; border-radius: 8px; box-shadow: 0 2px 4px rgba(0,0,0,0.1); }
        .buttons { display: flex; flex-wrap: wrap; }
        .button { flex: 1; min-width: 200px; margin: 5px; border: 1px solid #ddd; padding: 10px; border-radius: 4px; }
        .pressed { background-color: #fff3c4; }
        .connected { color: #4CAF50; font-weight: bold; }
        .disconnected { color: #f44336; font-weight: bold; }
        button { background-color: #2196F3; color: white; border: none; padding: 10px 20px; margin: 5px; border-radius: 4px; cursor: pointer; }
        button:hover { background-color: #1976D2; }
        input { padding: 8px; margin: 5px; border: 1px solid #ddd; border-radius: 4px; width: 80px; }
        table { width: 100%; border-collapse: collapse; }
        td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #eee; }
        .response { background-color: #f0f0f0; padding: 10px; margin: 10px 0; border-radius: 4px; min-height: 20px; }
        .log { height: 200px; overflow-y: scroll; background-color: #000; color: #0f0; padding: 10px; font-family: monospace; font-size: 12px; }
        h1 { color: #333; text-align: center; }
        h2 { color: #555; border-bottom: 2px solid #2196F3; padding-bottom: 5px; }
    </style>
</head>
<body>
    <div class="container">
        <h1>🚲 Bike arcade controller</h1>

        <div class="card">
            <h2>📡 Devices</h2>
            <table>
                <thead><tr><th>Port</th><th>State</th><th>Role</th><th>Last activity</th></tr></thead>
                <tbody id="devices"></tbody>
            </table>
            <button onclick="post('/reconnect')">🔄 Rescan ports</button>
        </div>

        <div class="card">
            <h2>🕹️ Buttons</h2>
            <div class="buttons">
            {{range .Buttons}}
                <div class="button" id="button-{{printf "%d" .Role}}">
                    <h3>{{.Color}} ({{.Position}})</h3>
                    <p>LED: <span id="led-{{printf "%d" .Role}}">-</span></p>
                    <button onclick="post('/led', {role: {{.Role}}, on: true})">On</button>
                    <button onclick="post('/led', {role: {{.Role}}, on: false})">Off</button>
                </div>
            {{end}}
            </div>
            <button onclick="post('/led', {all: true, on: true})">All on</button>
            <button onclick="post('/led', {all: true, on: false})">All off</button>
        </div>

        <div class="card">
            <h2>✨ Patterns</h2>
            <button onclick="post('/pattern', {name: 'chase', rounds: 2, speed: 150})">Chase</button>
            <button onclick="post('/pattern', {name: 'flash', times: 3, duration: 200})">Flash all</button>
            <button onclick="post('/pattern', {name: 'random', count: 2, on: 300, off: 100, total: 5})">Random</button>
            <button onclick="post('/pattern', {name: 'cascade', waves: 3, speed: 120})">Cascade</button>
            <button onclick="post('/pattern', {name: 'rhythmic', beats: 8, tempo: 400})">Rhythmic</button>
            <button onclick="post('/pattern/simon', {length: 4, speed: 500})">Simon says (copy)</button>
            <div class="response" id="pattern-response"></div>
        </div>

        <div class="card">
            <h2>🔁 Cadence</h2>
            <p>Revolutions: <span id="cadence-count">{{.Cadence.Count}}</span>, RPM: <span id="cadence-rpm">{{.Cadence.RPM}}</span></p>
            <button onclick="post('/cadence/reset')">Reset counter</button>
            <input type="number" id="sim-count" placeholder="count">
            <input type="number" id="sim-rpm" placeholder="rpm">
            <button onclick="simulate()">Simulate sample</button>
        </div>

        <div class="card">
            <h2>📝 Log</h2>
            <div class="log" id="system-log"></div>
        </div>
    </div>

    <script>
        function post(url, body) {
            const opts = {method: 'POST'};
            if (body) {
                opts.headers = {'Content-Type': 'application/json'};
                opts.body = JSON.stringify(body);
            }
            return fetch(url, opts)
                .then(response => response.text())
                .then(data => {
                    document.getElementById('pattern-response').textContent = data;
                    updateStatus();
                })
                .catch(err => addLog('Request failed: ' + err));
        }

        function simulate() {
            post('/cadence/simulate', {
                count: parseInt(document.getElementById('sim-count').value || '0'),
                rpm: parseInt(document.getElementById('sim-rpm').value || '0'),
            });
        }

        function updateStatus() {
            fetch('/status')
                .then(response => response.json())
                .then(status => {
                    const rows = (status.devices || []).map(d =>
                        '<tr><td>' + d.port + '</td><td class="' + (d.state === 'closed' ? 'disconnected' : 'connected') + '">' +
                        d.state + '</td><td>' + d.role + '</td><td>' + new Date(d.last_activity).toLocaleTimeString() + '</td></tr>');
                    document.getElementById('devices').innerHTML = rows.join('');
                    (status.leds || []).forEach(l => {
                        const el = document.getElementById('led-' + l.role);
                        if (el) el.textContent = (l.on ? 'on' : 'off') + (l.confirmed ? ' (confirmed)' : '');
                    });
                    (status.buttons || []).forEach(b => {
                        const el = document.getElementById('button-' + b.role);
                        if (el) el.classList.toggle('pressed', b.pressed);
                    });
                    document.getElementById('cadence-count').textContent = status.cadence.count;
                    document.getElementById('cadence-rpm').textContent = status.cadence.rpm;
                });
        }

        function connectToLogs() {
            const source = new EventSource('/logs/stream');
            source.onmessage = e => {
                const msg = JSON.parse(e.data);
                addLog('[' + msg.type + '] ' + msg.message);
            };
        }

        function connectToEvents() {
            const ws = new WebSocket((location.protocol === 'https:' ? 'wss://' : 'ws://') + location.host + '/events/ws');
            ws.onmessage = e => {
                const ev = JSON.parse(e.data);
                if (ev.kind === 'cadence-sample' && ev.sample) {
                    document.getElementById('cadence-count').textContent = ev.sample.count;
                    document.getElementById('cadence-rpm').textContent = ev.sample.rpm;
                    return;
                }
                updateStatus();
            };
            ws.onclose = () => setTimeout(connectToEvents, 2000);
        }

        function addLog(message) {
            const log = document.getElementById('system-log');
            const time = new Date().toLocaleTimeString();
            log.textContent += '[' + time + '] ' + message + '\n';
            log.scrollTop = log.scrollHeight;
        }

        setInterval(updateStatus, 2000);
        updateStatus();
        connectToLogs();
        connectToEvents();
    </script>
</body>
</html>
`

func (s *Server) indexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := indexTemplate.Execute(w, s.ctrl.Status()); err != nil {
		s.log.WithError(err).Error("render dashboard")
	}
}
