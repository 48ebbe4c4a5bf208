package upload

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hyperjump/colindex/internal/models"
)

func TestDecodeRecords(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		ids     []string
		wantErr error
	}{
		{
			name:  "lines",
			input: "{\"id\": 1, \"vector\": [1, 0]}\n{\"id\": \"b\", \"vector\": [[0, 1]]}\n",
			ids:   []string{"1", "b"},
		},
		{
			name:  "no trailing newline",
			input: `{"vector": [1]}`,
			ids:   []string{""},
		},
		{
			name:  "empty",
			input: "",
		},
		{
			name:    "missing vector stops the stream",
			input:   "{\"id\": \"a\", \"vector\": [1]}\n{\"id\": \"b\"}\n{\"id\": \"c\", \"vector\": [1]}\n",
			ids:     []string{"a"},
			wantErr: models.ErrConfiguration,
		},
		{
			name:    "malformed json",
			input:   "{\"id\": \"a\", \"vector\": [1]}\n{nope\n",
			ids:     []string{"a"},
			wantErr: models.ErrConfiguration,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, wait := DecodeRecords(context.Background(), strings.NewReader(tt.input))
			var ids []string
			for r := range records {
				ids = append(ids, r.ID)
			}
			err := wait()
			if tt.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if strings.Join(ids, ",") != strings.Join(tt.ids, ",") {
				t.Errorf("ids: got %v, want %v", ids, tt.ids)
			}
		})
	}
}

func TestDecodeRecordsCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	records, wait := DecodeRecords(ctx, strings.NewReader(strings.Repeat("{\"vector\": [1]}\n", 10)))
	<-records
	cancel()
	for range records {
	}
	if err := wait(); err != nil {
		t.Errorf("cancellation is not a decode error: %v", err)
	}
}
