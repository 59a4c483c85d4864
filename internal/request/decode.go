// Package request turns the raw JSON job request into typed jobs.
//
// A request is a flat object. Batches are encoded with an ordinal suffix on
// the field names: {"command0":"submit","url0":"a","url1":"b"} describes two
// jobs. Non indexed fields are shared by every job, indexed fields win.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/vidfetch/vidfetch/internal/model"
)

// ordinals with a leading zero (url00) are not batch fields, so every index
// has exactly one spelling
var indexedRx = regexp.MustCompile(`^([A-Za-z_]+)(0|[1-9]\d*)$`)

// Fields is a request with every value coerced to its string form.
type Fields map[string]string

// Request is the decoded form of one submission.
type Request struct {
	Command   string
	RequestID string
	Batch     bool
	Fields    Fields
	// Specs holds the merged fields of every job, aligned with Jobs.
	Specs []Fields
	Jobs  []model.Job
}

// Decode parses raw and resolves every job. now is used for generated ids.
// Errors are *model.RequestError and are fatal for the whole request.
func Decode(raw []byte, now time.Time) (Request, error) {
	fields, err := Parse(raw)
	if err != nil {
		return Request{}, err
	}

	base, indexed := split(fields)
	req := Request{
		Command:   strings.ToLower(strings.TrimSpace(base["command"])),
		RequestID: firstNonEmpty(base["requestId"], base["taskId"]),
		Batch:     len(indexed) > 0,
		Fields:    fields,
	}

	if req.Batch {
		indices := make([]int, 0, len(indexed))
		for idx := range indexed {
			indices = append(indices, idx)
		}
		slices.Sort(indices)
		// a batch is a submission, item commands are checked per item
		if req.Command == "" {
			req.Command = model.CommandSubmit
		}
		for _, idx := range indices {
			merged := make(Fields, len(base)+len(indexed[idx]))
			for k, v := range base {
				merged[k] = v
			}
			for k, v := range indexed[idx] {
				merged[k] = v
			}
			req.Specs = append(req.Specs, merged)
			req.Jobs = append(req.Jobs, batchJob(idx, merged, req.Command))
		}
	} else {
		if req.Command == "" {
			req.Command = model.CommandSubmit
		}
		if req.Command == model.CommandSubmit {
			job := JobFromFields(base)
			if job.URL == "" {
				return Request{}, model.NewRequestError(model.CodeMissingURL, model.ErrMissingURL)
			}
			job.Command = req.Command
			req.Specs = []Fields{base}
			req.Jobs = []model.Job{job}
		}
	}

	if req.RequestID == "" && req.Command == model.CommandSubmit {
		req.RequestID = model.NewRequestID(now)
	}
	return req, nil
}

// Parse decodes a JSON object into string fields. Booleans and numbers keep
// their JSON spelling, nested values are re-encoded as JSON text.
func Parse(raw []byte) (Fields, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, model.NewRequestError(model.CodeEmptyInput, model.ErrEmptyInput)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, model.NewRequestError(model.CodeInvalidJSON, fmt.Errorf("decoding request: %w", err))
	}
	if obj == nil {
		return nil, model.NewRequestError(model.CodeInvalidJSON, fmt.Errorf("decoding request: expected a JSON object"))
	}

	fields := make(Fields, len(obj))
	for k, v := range obj {
		switch x := v.(type) {
		case nil:
			continue
		case string:
			fields[k] = x
		case bool:
			fields[k] = strconv.FormatBool(x)
		case json.Number:
			fields[k] = x.String()
		default:
			b, err := json.Marshal(x)
			if err != nil {
				return nil, model.NewRequestError(model.CodeInvalidJSON, fmt.Errorf("field %s: %w", k, err))
			}
			fields[k] = string(b)
		}
	}
	return fields, nil
}

func split(fields Fields) (Fields, map[int]Fields) {
	base := make(Fields)
	indexed := make(map[int]Fields)
	for k, v := range fields {
		m := indexedRx.FindStringSubmatch(k)
		if m == nil {
			base[k] = v
			continue
		}
		idx, err := strconv.Atoi(m[2])
		if err != nil {
			// ordinal overflows int, not a batch field
			base[k] = v
			continue
		}
		if indexed[idx] == nil {
			indexed[idx] = make(Fields)
		}
		indexed[idx][m[1]] = v
	}
	return base, indexed
}

func batchJob(idx int, fields Fields, command string) model.Job {
	job := JobFromFields(fields)
	job.Index = &idx
	job.Command = strings.ToLower(strings.TrimSpace(fields["command"]))
	if job.Command == "" {
		job.Command = command
	}
	switch {
	case job.Command != model.CommandSubmit:
		job.Err = fmt.Errorf("%w: %q", model.ErrUnsupportedItem, job.Command)
	case job.URL == "":
		job.Err = model.ErrMissingURL
	}
	return job
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
