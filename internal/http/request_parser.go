// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data.
// Bodies are accepted as JSON or form-encoded, so both API clients and plain
// HTML forms can talk to the same endpoints.

package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"budget/internal/core"
	"budget/internal/services"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// RequestBodyParser handles different content types for request body parsing.
type RequestBodyParser struct {
	body     []byte
	jsonData map[string]any
	formData url.Values
	parsed   bool
	err      error
}

// NewRequestBodyParser reads the body once and stores it for subsequent parsing.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// Parse attempts to parse the body as JSON or form data. Any failure is a
// validation error.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		p.err = core.NewValidationError("body", "request body too large or unreadable")
		return p.err
	}

	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		p.formData = url.Values{}
		return nil
	}

	if trimmed[0] == '{' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		p.jsonData = make(map[string]any)
		if err := dec.Decode(&p.jsonData); err != nil {
			p.err = core.NewValidationError("body", "malformed JSON")
			return p.err
		}
		return nil
	}
	if trimmed[0] == '[' {
		p.err = core.NewValidationError("body", "expected a JSON object")
		return p.err
	}

	form, err := url.ParseQuery(string(trimmed))
	if err != nil {
		p.err = core.NewValidationError("body", "malformed form data")
		return p.err
	}
	p.formData = form
	return nil
}

// Get returns a sanitised string value from the parsed data (JSON or form).
func (p *RequestBodyParser) Get(key string) string {
	if p.jsonData != nil {
		if val, ok := p.jsonData[key]; ok {
			return sanitizeInput(stringValue(val))
		}
		return ""
	}
	if p.formData != nil {
		return sanitizeInput(p.formData.Get(key))
	}
	return ""
}

// IsJSON returns true if the parsed content was JSON.
func (p *RequestBodyParser) IsJSON() bool {
	return p.jsonData != nil
}

func stringValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return ""
	}
}

// parseTransaction builds a NewTransaction from the request body. Validation
// of the resulting value happens in the store.
func parseTransaction(p *RequestBodyParser) (core.NewTransaction, error) {
	if err := p.Parse(); err != nil {
		return core.NewTransaction{}, err
	}

	amount, err := core.ParseAmount(p.Get("amount"))
	if err != nil {
		return core.NewTransaction{}, err
	}
	occurredAt, err := parseOccurredAt(p.Get("date"))
	if err != nil {
		return core.NewTransaction{}, err
	}

	kind := core.ParseKind(p.Get("type"))
	if !kind.Valid() {
		return core.NewTransaction{}, core.NewValidationError("type", "type must be income or expense")
	}

	return core.NewTransaction{
		Kind:        kind,
		Amount:      amount,
		Category:    p.Get("category"),
		Description: p.Get("description"),
		OccurredAt:  occurredAt,
	}, nil
}

// parseOccurredAt accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
// An empty value yields the zero time, which the store replaces with now.
func parseOccurredAt(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.DateOnly, s); err == nil {
		return t, nil
	}
	return time.Time{}, core.NewValidationError("date", "date must be YYYY-MM-DD or RFC 3339")
}

// parsePeriod reads the optional year/month query parameters.
func parsePeriod(query url.Values) (services.Period, error) {
	return services.ParsePeriod(strings.TrimSpace(query.Get("year")), strings.TrimSpace(query.Get("month")))
}

type credentials struct {
	Name     string
	Email    string
	Password string
}

func parseCredentials(p *RequestBodyParser) (credentials, error) {
	if err := p.Parse(); err != nil {
		return credentials{}, err
	}
	var c credentials
	c.Name = p.Get("name")
	c.Email = p.Get("email")
	// passwords are taken verbatim
	if p.jsonData != nil {
		c.Password = stringValue(p.jsonData["password"])
	} else {
		c.Password = p.formData.Get("password")
	}
	return c, nil
}
