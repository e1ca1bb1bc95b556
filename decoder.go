package main

import (
	"errors"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// DecodeEnvelope takes the first message body out of env and decodes it into
// a Record, returning it together with the envelope's Date header.
//
// The producer's null token is JSON null, so it decodes to a nil value and no
// textual rewriting of the body happens before decoding.
func DecodeEnvelope(env *Envelope) (Record, string, error) {
	if env == nil || len(env.Messages) == 0 {
		return nil, "", ErrEmptyEnvelope
	}

	rec, err := decodeBody(env.Messages[0].Body)
	if err != nil {
		return nil, "", err
	}

	date := strings.TrimSpace(env.Date)
	if date == "" {
		return nil, "", decodeErrorf("response has no date header")
	}

	return rec, date, nil
}

func decodeBody(body string) (Record, error) {
	if strings.TrimSpace(body) == "" {
		return nil, decodeErrorf("message body is empty")
	}

	dec := json.NewDecoder(strings.NewReader(body))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, decodeErrorf("message body is not valid JSON: %v", err)
	}

	var extra any
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, decodeErrorf("message body has trailing data")
	}

	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, decodeErrorf("message body is not an object")
	}

	rec := make(Record, len(fields))
	for k, v := range fields {
		val, err := columnValue(v)
		if err != nil {
			return nil, decodeErrorf("field %q: %v", k, err)
		}
		rec[k] = val
	}
	return rec, nil
}

// columnValue turns a decoded JSON value into something a sql driver can bind.
// Nested objects and arrays are kept as JSON text for json/jsonb columns.
func columnValue(v any) (any, error) {
	switch t := v.(type) {
	case nil, string, bool:
		return t, nil
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, nil
		}
		return t.Float64()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return t, nil
	}
}
