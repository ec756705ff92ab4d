package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"

	"github.com/santhosh-tekuri/jsonschema/v5"

	schemasassets "github.com/absenteeism-ml/absdeploy/internal/assets/schemas"
	apperrors "github.com/absenteeism-ml/absdeploy/internal/errors"
)

const maxPredictBody = 1 << 20

var predictSchema = mustCompilePredictSchema()

func mustCompilePredictSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("predict-request.schema.json",
		bytes.NewReader(schemasassets.PredictRequestSchema)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("predict-request.schema.json")
}

// validatedPredict rejects malformed prediction requests before they reach
// the model API. The body is restored for the proxied request.
func validatedPredict(next http.Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPredictBody))
		if err != nil {
			apperrors.RespondWithError(w, http.StatusBadRequest,
				apperrors.CodeValidationFailed, "cannot read request body", nil)
			return
		}
		_ = r.Body.Close()

		var payload any
		if err := json.Unmarshal(body, &payload); err != nil {
			apperrors.RespondWithError(w, http.StatusBadRequest,
				apperrors.CodeValidationFailed, "request body is not valid JSON", nil)
			return
		}
		if err := predictSchema.Validate(payload); err != nil {
			apperrors.RespondWithError(w, http.StatusBadRequest,
				apperrors.CodeValidationFailed, "request does not match the prediction schema",
				map[string]any{"cause": err.Error()})
			return
		}

		r.Body = io.NopCloser(bytes.NewReader(body))
		r.ContentLength = int64(len(body))
		next.ServeHTTP(w, r)
	}
}
