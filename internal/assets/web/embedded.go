// Package webassets provides the embedded single-page frontend served by the
// ops gateway.
//
// The files are embedded at compile time so the gateway binary works
// regardless of the working directory or installation location.
package webassets

import "embed"

// FS holds the frontend files (index.html, style.css, app.js).
//
//go:embed index.html style.css app.js
var FS embed.FS
