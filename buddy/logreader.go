package buddy

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// LogReadOptions controls ReadLog.
type LogReadOptions struct {
	// ArrayField names the field holding the entries when the top-level value is an object.
	// When empty, a top-level object is read as the first record of a JSON Lines stream.
	ArrayField string
}

// ReadLog streams log entries from r, calling fn for each. It accepts:
// - a top-level JSON array: [ {...}, ... ]
// - an object holding the array under opts.ArrayField: { "logs": [ ... ] }
// - JSON Lines: one object per line
//
// It returns the number of entries passed to fn. Reading stops at the first error from fn.
func ReadLog(ctx context.Context, r io.Reader, opts LogReadOptions, fn func(LogEntry) error) (int, error) {
	if ctx == nil {
		return 0, errors.New("ReadLog: ctx is nil")
	}
	br := bufio.NewReaderSize(r, 1<<20)
	first, err := peekNonSpace(br)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("ReadLog: %w", err)
	}

	dec := json.NewDecoder(br)
	n := 0

	switch {
	case first == '[':
		if _, err := dec.Token(); err != nil {
			return 0, fmt.Errorf("ReadLog: read opening token: %w", err)
		}
		if err := readArrayFromOpen(ctx, dec, fn, &n); err != nil {
			return n, err
		}
		if err := expectDelim(dec, ']'); err != nil {
			return n, err
		}
		return n, nil

	case first == '{' && opts.ArrayField != "":
		if _, err := dec.Token(); err != nil {
			return 0, fmt.Errorf("ReadLog: read opening token: %w", err)
		}
		found := false
		for dec.More() {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			keyTok, err := dec.Token()
			if err != nil {
				return n, fmt.Errorf("ReadLog: read object key: %w", err)
			}
			key, ok := keyTok.(string)
			if !ok {
				return n, fmt.Errorf("ReadLog: expected string key, got %T", keyTok)
			}
			valTok, err := dec.Token()
			if err != nil {
				return n, fmt.Errorf("ReadLog: read value for key %q: %w", key, err)
			}
			if key != opts.ArrayField {
				if err := skipValue(dec, valTok); err != nil {
					return n, fmt.Errorf("ReadLog: skip key %q: %w", key, err)
				}
				continue
			}
			if d, ok := valTok.(json.Delim); !ok || d != '[' {
				return n, fmt.Errorf("ReadLog: field %q is not an array", key)
			}
			found = true
			if err := readArrayFromOpen(ctx, dec, fn, &n); err != nil {
				return n, err
			}
			if err := expectDelim(dec, ']'); err != nil {
				return n, err
			}
		}
		if err := expectDelim(dec, '}'); err != nil {
			return n, err
		}
		if !found {
			return n, fmt.Errorf("ReadLog: no %q array in top-level object", opts.ArrayField)
		}
		return n, nil

	case first == '{':
		for {
			if err := ctx.Err(); err != nil {
				return n, err
			}
			var ent LogEntry
			if err := dec.Decode(&ent); err != nil {
				if errors.Is(err, io.EOF) {
					return n, nil
				}
				return n, fmt.Errorf("ReadLog: decode line %d: %w", n+1, err)
			}
			if err := fn(ent); err != nil {
				return n, err
			}
			n++
		}

	default:
		return 0, fmt.Errorf("ReadLog: expected JSON array or object, got %q", first)
	}
}

func readArrayFromOpen(ctx context.Context, dec *json.Decoder, fn func(LogEntry) error, n *int) error {
	for dec.More() {
		if err := ctx.Err(); err != nil {
			return err
		}
		var ent LogEntry
		if err := dec.Decode(&ent); err != nil {
			return fmt.Errorf("ReadLog: decode entry %d: %w", *n+1, err)
		}
		if err := fn(ent); err != nil {
			return err
		}
		*n++
	}
	return nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("ReadLog: read closing %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("ReadLog: expected closing %q, got %v", want, tok)
	}
	return nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	// UTF-8 byte order mark.
	if bom, err := br.Peek(3); err == nil && bom[0] == 0xEF && bom[1] == 0xBB && bom[2] == 0xBF {
		_, _ = br.Discard(3)
	}
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}

func skipValue(dec *json.Decoder, first json.Token) error {
	d, ok := first.(json.Delim)
	if !ok {
		return nil
	}
	switch d {
	case '{', '[':
	default:
		return fmt.Errorf("skipValue: unexpected delimiter %q", d)
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.ErrUnexpectedEOF
			}
			return err
		}
		if dd, ok := tok.(json.Delim); ok {
			switch dd {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
	}
	return nil
}
