package api

// docsHTML is a static index of the control API; the full schema is served
// by huma at /openapi.json.
const docsHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>BTC P&amp;L controller</title>
<style>
body { font: 14px/1.5 system-ui, sans-serif; max-width: 720px; margin: 2rem auto; color: #1f2328; }
code { background: #f3f4f6; padding: 0 4px; border-radius: 3px; }
td { padding: 2px 12px 2px 0; vertical-align: top; }
</style>
</head>
<body>
<h1>BTC P&amp;L controller</h1>
<table>
<tr><td><code>GET /api/v1/health</code></td><td>CDP connection and history tab</td></tr>
<tr><td><code>POST /api/v1/refresh</code></td><td>run one refresh cycle and return its outcome</td></tr>
<tr><td><code>GET /api/v1/summary</code></td><td>outcome of the last rendered cycle</td></tr>
<tr><td><code>POST /api/v1/messages</code></td><td>price broker, <code>{"type":"GET_BTC_PRICE"}</code></td></tr>
<tr><td><code>GET /api/v1/prices/history?at=</code></td><td>historical price nearest a time</td></tr>
</table>
<p>Schema: <a href="/openapi.json">openapi.json</a>, <a href="/openapi.yaml">openapi.yaml</a></p>
</body>
</html>`
