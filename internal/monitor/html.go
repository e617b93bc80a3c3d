package monitor

import "html/template"

type indexData struct {
	SurfaceID string
	Endpoint  string
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head>
    <title>wsCamera Viewer</title>
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <style>
        body { font-family: sans-serif; background: #111; color: #eee; margin: 20px; }
        img { max-width: 100%; background: #000; display: block; }
        .bar { display: flex; gap: 12px; align-items: center; margin: 10px 0; }
        #status { font-size: 12px; color: #9f9; }
    </style>
</head>
<body>
    <h1>wsCamera</h1>
    <p>Stream: <code>{{.Endpoint}}</code></p>
    <div class="bar">
        <button type="button" id="btn-start">Start</button>
        <button type="button" id="btn-stop">Stop</button>
        <span id="status">Waiting for data...</span>
    </div>
    <img id="{{.SurfaceID}}" src="/stream" alt="Live stream">
    <script>
        const statusEl = document.getElementById('status');
        const post = (path) => fetch(path, { method: 'POST' }).then(r => r.json());
        document.getElementById('btn-start').onclick = () => post('/api/viewer/start');
        document.getElementById('btn-stop').onclick = () => post('/api/viewer/stop');

        const events = new EventSource('/api/status/stream');
        events.onmessage = (e) => {
            const s = JSON.parse(e.data);
            statusEl.textContent = s.viewer.streaming
                ? 'streaming, frame ' + s.viewer.last_frame_seq + ' (' + s.viewer.last_frame_bytes + ' bytes)'
                : 'stopped';
        };
    </script>
</body>
</html>
`))
