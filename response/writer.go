package response

import (
	"encoding/json"
	"net/http"
)

// V1Response is the JSON envelope returned to the client
type V1Response struct {
	Result   interface{} `json:"result"`
	Messages []string    `json:"messages"`
}

// WriteResponse will write the result to the client as JSON with a 200 status
func WriteResponse(w http.ResponseWriter, r *http.Request, result interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(V1Response{
		Result:   result,
		Messages: []string{},
	})
}

// WriteError will write the Error to the client as JSON, using its StatusCode
func WriteError(w http.ResponseWriter, r *http.Request, e *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	messages := e.Messages
	if len(messages) == 0 && len(e.Message) > 0 {
		messages = []string{e.Message}
	}
	json.NewEncoder(w).Encode(V1Response{
		Result:   e.Result,
		Messages: messages,
	})
}
