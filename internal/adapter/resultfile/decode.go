// Package resultfile reads saved query results: the execution layer's
// {"data": [...]} envelope, or a bare array of row objects.
package resultfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/buger/jsonparser"

	"github.com/choibumgyu/HYU-CDW/internal/core/domain"
)

// ErrQueryFailed is returned when the envelope carries an error instead of rows.
var ErrQueryFailed = errors.New("query failed")

// LoadFile decodes the result file at path.
func LoadFile(path string) (*domain.ResultSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening result file: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Decode(f)
}

// Decode reads a whole result document from r and parses it like DecodeBytes.
func Decode(r io.Reader) (*domain.ResultSet, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading result: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes parses rows keeping the key order of the document: columns
// are listed as first seen, the first row's keys leading. Numbers are kept
// as json.Number so integer ids survive unchanged.
func DecodeBytes(data []byte) (*domain.ResultSet, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty document", domain.ErrInvalidResultSet)
	}

	var rowsJSON []byte
	switch data[0] {
	case '[':
		rowsJSON = data
	case '{':
		if msg, typ, _, err := jsonparser.Get(data, "error"); err == nil && (typ == jsonparser.String || typ == jsonparser.Object) {
			return nil, fmt.Errorf("%w: %s", ErrQueryFailed, errorText(msg, typ))
		}
		value, typ, _, err := jsonparser.Get(data, "data")
		if err != nil || typ != jsonparser.Array {
			return nil, fmt.Errorf("%w: expected a \"data\" array", domain.ErrInvalidResultSet)
		}
		rowsJSON = value
	default:
		return nil, fmt.Errorf("%w: expected an object or array", domain.ErrInvalidResultSet)
	}

	var (
		columns []string
		seen    = map[string]bool{}
		rows    []domain.Row
		rowErr  error
	)
	_, err := jsonparser.ArrayEach(rowsJSON, func(value []byte, typ jsonparser.ValueType, _ int, err error) {
		if rowErr != nil {
			return
		}
		if err != nil {
			rowErr = err
			return
		}
		if typ != jsonparser.Object {
			rowErr = fmt.Errorf("row %d is %s, not an object", len(rows), typ)
			return
		}
		row := domain.Row{}
		rowErr = jsonparser.ObjectEach(value, func(key, v []byte, vt jsonparser.ValueType, _ int) error {
			name, err := jsonparser.ParseString(key)
			if err != nil {
				return err
			}
			scalar, err := convert(v, vt)
			if err != nil {
				return fmt.Errorf("column %q: %w", name, err)
			}
			row[name] = scalar
			if !seen[name] {
				seen[name] = true
				columns = append(columns, name)
			}
			return nil
		})
		rows = append(rows, row)
	})
	if rowErr == nil {
		rowErr = err
	}
	if rowErr != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInvalidResultSet, rowErr)
	}

	return domain.NewResultSet(columns, rows), nil
}

func convert(v []byte, vt jsonparser.ValueType) (any, error) {
	switch vt {
	case jsonparser.Null:
		return nil, nil
	case jsonparser.String:
		return jsonparser.ParseString(v)
	case jsonparser.Number:
		return json.Number(v), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(v)
	case jsonparser.Object, jsonparser.Array:
		dec := json.NewDecoder(bytes.NewReader(v))
		dec.UseNumber()
		var out any
		if err := dec.Decode(&out); err != nil {
			return nil, err
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported value %q", v)
	}
}

func errorText(v []byte, vt jsonparser.ValueType) string {
	if vt == jsonparser.String {
		if s, err := jsonparser.ParseString(v); err == nil {
			return s
		}
	}
	if vt == jsonparser.Object {
		if s, err := jsonparser.GetString(v, "message"); err == nil {
			return s
		}
	}
	return string(v)
}
