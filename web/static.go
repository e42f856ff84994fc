package web

import (
	"embed"
	"html/template"
)

//go:embed index.html
var indexHTML string

//go:embed js/*
var staticContent embed.FS

var indexTemplate = template.Must(template.New("index.html").Parse(indexHTML))

func GetStaticContent() embed.FS {
	return staticContent
}
