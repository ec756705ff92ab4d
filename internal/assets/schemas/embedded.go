// Package schemasassets provides embedded JSON schemas for standalone binary behavior.
//
// Schemas are embedded at compile time to ensure the CLI and gateway work
// correctly regardless of the working directory or installation location.
package schemasassets

import _ "embed"

// PredictRequestSchema is the embedded prediction-request JSON schema.
//
// The gateway validates /predict bodies against it before proxying, so the
// model API never sees malformed feature vectors.
//
//go:embed predict-request.schema.json
var PredictRequestSchema []byte
