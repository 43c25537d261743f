package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"expenses/internal/core"
)

// RequestBodyParser reads an expense body sent either as JSON or as a
// urlencoded form.
type RequestBodyParser struct {
	body   []byte
	isJSON bool
	json   map[string]any
	form   url.Values
}

// NewRequestBodyParser reads at most maxBytes of the request body. A larger
// body yields an *http.MaxBytesError.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request, maxBytes int64) (*RequestBodyParser, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBytes))
	if err != nil {
		return nil, err
	}

	p := &RequestBodyParser{body: body}
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return p, nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "application/x-www-form-urlencoded":
		p.form, err = url.ParseQuery(string(trimmed))
		if err != nil {
			return nil, core.ErrInvalidBody
		}
	case mediaType == "application/json" || trimmed[0] == '{':
		p.isJSON = true
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		if err := dec.Decode(&p.json); err != nil || p.json == nil {
			return nil, core.ErrInvalidBody
		}
		if dec.More() {
			return nil, core.ErrInvalidBody
		}
	default:
		p.form, err = url.ParseQuery(string(trimmed))
		if err != nil {
			return nil, core.ErrInvalidBody
		}
	}
	return p, nil
}

// Get returns a field as a string. Missing, null and false values are "".
func (p *RequestBodyParser) Get(key string) (string, error) {
	if p.isJSON {
		v, ok := p.json[key]
		if !ok {
			return "", nil
		}
		return stringValue(v)
	}
	if p.form == nil {
		return "", nil
	}
	return p.form.Get(key), nil
}

// ExpenseInput collects the four expense fields from the body.
func (p *RequestBodyParser) ExpenseInput() (core.ExpenseInput, error) {
	var in core.ExpenseInput
	fields := []struct {
		key string
		dst *string
	}{
		{"description", &in.Description},
		{"amount", &in.Amount},
		{"category", &in.Category},
		{"date", &in.Date},
	}
	for _, f := range fields {
		v, err := p.Get(f.key)
		if err != nil {
			return core.ExpenseInput{}, err
		}
		*f.dst = v
	}
	return in, nil
}

func stringValue(v any) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case json.Number:
		return t.String(), nil
	case bool:
		if !t {
			return "", nil
		}
		return "true", nil
	default:
		return "", core.ErrInvalidBody
	}
}

func parseID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", core.ErrInvalidID, raw)
	}
	return id, nil
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
