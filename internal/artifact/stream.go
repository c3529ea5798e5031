package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Stream decodes a JSON array from r one element at a time and calls emit for
// each. A root object is treated as an envelope and its first array-valued
// field is streamed.
func Stream[T any](ctx context.Context, r io.Reader, emit func(T) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("json: read first token: %w", err)
	}
	delim, ok := tok.(json.Delim)
	if !ok {
		return fmt.Errorf("json: unsupported root token %T (want object or array)", tok)
	}

	switch delim {
	case '[':
		if err := streamArray(ctx, dec, emit); err != nil {
			return err
		}
		return expect(dec, ']')
	case '{':
		for dec.More() {
			if _, err := dec.Token(); err != nil {
				return fmt.Errorf("json: read key: %w", err)
			}
			peek, err := dec.Token()
			if err != nil {
				return fmt.Errorf("json: read value: %w", err)
			}
			if peek == json.Delim('[') {
				if err := streamArray(ctx, dec, emit); err != nil {
					return err
				}
				return expect(dec, ']')
			}
			if peek == json.Delim('{') {
				if err := skipObject(dec); err != nil {
					return err
				}
			}
		}
		return fmt.Errorf("json: object has no array field")
	default:
		return fmt.Errorf("json: unsupported root delimiter %q", delim)
	}
}

// StreamFile is Stream over the file at path.
func StreamFile[T any](ctx context.Context, path string, emit func(T) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := Stream(ctx, f, emit); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func streamArray[T any](ctx context.Context, dec *json.Decoder, emit func(T) error) error {
	i := 0
	for dec.More() {
		var v T
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("json: decode element %d: %w", i, err)
		}
		if err := emit(v); err != nil {
			return err
		}
		i++

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func expect(dec *json.Decoder, want json.Delim) error {
	end, err := dec.Token()
	if err != nil {
		return fmt.Errorf("json: read %q: %w", want, err)
	}
	if end != want {
		return fmt.Errorf("json: expected %q, got %v", want, end)
	}
	return nil
}

// skipObject consumes tokens until the object opened by the last '{' closes.
func skipObject(dec *json.Decoder) error {
	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("json: skip object: %w", err)
		}
		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
	return nil
}
