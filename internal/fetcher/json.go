package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"io"

	"github.com/rotisserie/eris"
)

// DecodeJSONArray streams the elements of a top-level JSON array.
func DecodeJSONArray[T any](ctx context.Context, r io.Reader) (<-chan T, <-chan error) {
	return streamJSON[T](ctx, r, "")
}

// DecodeJSONField streams the elements of the array stored under field of a
// top-level object, such as "features" of a GeoJSON FeatureCollection. Other
// keys are skipped.
func DecodeJSONField[T any](ctx context.Context, r io.Reader, field string) (<-chan T, <-chan error) {
	return streamJSON[T](ctx, r, field)
}

func streamJSON[T any](ctx context.Context, r io.Reader, field string) (<-chan T, <-chan error) {
	outCh := make(chan T, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(outCh)
		defer close(errCh)

		dec := json.NewDecoder(r)
		if field != "" {
			found, err := seekField(dec, field)
			if err != nil {
				errCh <- err
				return
			}
			if !found {
				errCh <- eris.Errorf("json: field %q not found", field)
				return
			}
		}

		if err := expectDelim(dec, '['); err != nil {
			if errors.Is(err, io.EOF) && field == "" {
				return
			}
			errCh <- err
			return
		}

		for dec.More() {
			var item T
			if err := dec.Decode(&item); err != nil {
				errCh <- eris.Wrap(err, "json: decode element")
				return
			}
			select {
			case outCh <- item:
			case <-ctx.Done():
				errCh <- eris.Wrap(ctx.Err(), "json: context cancelled")
				return
			}
		}
	}()

	return outCh, errCh
}

// seekField advances dec to the value of key field in the top-level object.
func seekField(dec *json.Decoder, field string) (bool, error) {
	if err := expectDelim(dec, '{'); err != nil {
		return false, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false, eris.Wrap(err, "json: read key")
		}
		if key, _ := tok.(string); key == field {
			return true, nil
		}
		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return false, eris.Wrap(err, "json: skip value")
		}
	}
	return false, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return eris.Wrap(err, "json: read token")
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return eris.Errorf("json: expected %q, got %v", want, tok)
	}
	return nil
}
