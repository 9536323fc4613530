package oauth

import (
	"html/template"
	"io"
)

// consentPageData feeds the consent page template
type consentPageData struct {
	ClientName  string
	ClientID    string
	Scope       string
	TempCode    string
	State       string
	ApprovePath string
}

// errorPageData feeds the error page template
type errorPageData struct {
	Title   string
	Message string
}

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Authorize {{.ClientName}}</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
    margin: 0;
  }
  .card {
    background: #fff;
    border-radius: 12px;
    box-shadow: 0 10px 40px rgba(0, 0, 0, 0.2);
    padding: 40px;
    max-width: 420px;
    width: 90%;
  }
  h1 { font-size: 1.4em; margin: 0 0 8px; color: #1a1a2e; }
  p { color: #555; line-height: 1.5; }
  .scope {
    background: #f5f6fa;
    border-radius: 6px;
    padding: 10px 14px;
    font-family: monospace;
    font-size: 0.9em;
    color: #333;
    margin: 16px 0;
    word-break: break-all;
  }
  button {
    width: 100%;
    padding: 12px;
    border: none;
    border-radius: 8px;
    background: #667eea;
    color: #fff;
    font-size: 1em;
    cursor: pointer;
  }
  button:hover { background: #5a6fd6; }
</style>
</head>
<body>
<div class="card">
  <h1>Authorize Access</h1>
  <p><strong>{{.ClientName}}</strong> is requesting access to your account.</p>
  {{if .Scope}}<div class="scope">{{.Scope}}</div>{{end}}
  <form method="POST" action="{{.ApprovePath}}">
    <input type="hidden" name="auth_code" value="{{.TempCode}}">
    <input type="hidden" name="state" value="{{.State}}">
    <button type="submit">Approve</button>
  </form>
</div>
</body>
</html>
`))

var errorTemplate = template.Must(template.New("error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
  body {
    font-family: -apple-system, BlinkMacSystemFont, "Segoe UI", Roboto, sans-serif;
    background: linear-gradient(135deg, #667eea 0%, #764ba2 100%);
    min-height: 100vh;
    display: flex;
    align-items: center;
    justify-content: center;
    margin: 0;
  }
  .card {
    background: #fff;
    border-radius: 12px;
    box-shadow: 0 10px 40px rgba(0, 0, 0, 0.2);
    padding: 40px;
    max-width: 420px;
    width: 90%;
  }
  h1 { font-size: 1.4em; margin: 0 0 8px; color: #c0392b; }
  p { color: #555; line-height: 1.5; }
</style>
</head>
<body>
<div class="card">
  <h1>{{.Title}}</h1>
  <p>{{.Message}}</p>
</div>
</body>
</html>
`))

func renderConsentPage(w io.Writer, data consentPageData) error {
	return consentTemplate.Execute(w, data)
}

func renderErrorPage(w io.Writer, data errorPageData) error {
	return errorTemplate.Execute(w, data)
}
