package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/hyperjump/colindex/internal/models"
)

// DecodeRecords streams records from r, one JSON object per line (or any whitespace-separated
// sequence of objects). The channel closes at EOF, on the first malformed record, or when ctx is
// done; wait then returns the decode error, if any.
func DecodeRecords(ctx context.Context, r io.Reader) (records <-chan *models.VectorRecord, wait func() error) {
	out := make(chan *models.VectorRecord)
	done := make(chan struct{})
	var decodeErr error
	go func() {
		defer close(done)
		defer close(out)
		dec := json.NewDecoder(r)
		for n := 1; ; n++ {
			var rec models.VectorRecord
			if err := dec.Decode(&rec); err != nil {
				if !errors.Is(err, io.EOF) {
					decodeErr = fmt.Errorf("record %d: %w", n, decodeError(err))
				}
				return
			}
			select {
			case out <- &rec:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, func() error {
		<-done
		return decodeErr
	}
}

func decodeError(err error) error {
	if models.Kind(err) != models.KindInternal {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrConfiguration, err)
}
