package model

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	CommandSubmit = "submit"
	CommandQuery  = "query"
)

const (
	CodeEmptyInput       = "EMPTY_INPUT"
	CodeInvalidJSON      = "INVALID_JSON"
	CodeMissingURL       = "MISSING_URL"
	CodeUnknownCommand   = "UNKNOWN_COMMAND"
	CodeMissingRequestID = "MISSING_REQUEST_ID"
	CodeInternal         = "INTERNAL_ERROR"
)

// Placeholder returns the token the host substitutes with the delivered
// payload once it arrives.
func Placeholder(plugin, requestID string) string {
	return fmt.Sprintf("{{VCP_ASYNC_RESULT::%s::%s}}", plugin, requestID)
}

// WriteSuccess prints the single synchronous success line.
func WriteSuccess(w io.Writer, result string) error {
	return writeLine(w, map[string]any{
		"status": "success",
		"result": result,
	})
}

// WriteError prints the single synchronous error line. Extra keys never
// replace status, code or error.
func WriteError(w io.Writer, code string, err error, extra map[string]any) error {
	line := make(map[string]any, len(extra)+3)
	for k, v := range extra {
		line[k] = v
	}
	line["status"] = "error"
	line["code"] = code
	line["error"] = err.Error()
	return writeLine(w, line)
}

func writeLine(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding response: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
