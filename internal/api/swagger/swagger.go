package swagger

import (
	"bytes"
	_ "embed"
	"html/template"
	"net/http"
	"path"
)

//go:embed openapi.yaml
var openAPIDocument []byte

// uiVersion pins the swagger-ui-dist release loaded from the CDN.
const uiVersion = "5.11.0"

var pageTmpl = template.Must(template.New("swagger").Parse(`<!DOCTYPE html>
<html lang="fr">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="{{.Assets}}/swagger-ui.css">
<style>body{margin:0}.swagger-ui .topbar{display:none}</style>
</head>
<body>
<div id="docs"></div>
<script src="{{.Assets}}/swagger-ui-bundle.js"></script>
<script>
SwaggerUIBundle({url: {{.SpecURL}}, dom_id: "#docs", docExpansion: "list", tryItOutEnabled: true});
</script>
</body>
</html>
`))

type page struct {
	Title   string
	Assets  string
	SpecURL string
}

// Handler serves the API documentation for a mux mounted at prefix with
// http.StripPrefix: the rendered UI at the root and the raw OpenAPI document
// at /openapi.yaml.
func Handler(prefix string) http.Handler {
	var rendered bytes.Buffer
	err := pageTmpl.Execute(&rendered, page{
		Title:   "FactureManager API",
		Assets:  "https://unpkg.com/swagger-ui-dist@" + uiVersion,
		SpecURL: path.Join("/", prefix, "openapi.yaml"),
	})
	if err != nil {
		panic(err)
	}
	ui := rendered.Bytes()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/yaml")
		_, _ = w.Write(openAPIDocument)
	})
	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(ui)
	})
	return mux
}
