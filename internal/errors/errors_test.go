package errors

import (
	"fmt"
	"io"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitOK},
		{"bucket", NewBucketNotFound("raw"), ExitNotFound},
		{"object", NewObjectNotFound("raw", "a.csv"), ExitNotFound},
		{"format", fmt.Errorf("load: %w", ErrUnsupportedFormat), ExitUnsupportedIO},
		{"query", Wrap(ErrQueryExecution, "run step"), ExitQuery},
		{"schema", Wrapf(ErrSchemaIncompatible, "write %s", "t"), ExitSchema},
		{"transport", NewTransport("get object", io.ErrUnexpectedEOF), ExitTransport},
		{"conflict", ErrConcurrentModification, ExitConflict},
		{"validation", NewMissingField("bucket"), ExitInvalidInput},
		{"other", io.EOF, ExitInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %s, want %s", ExitName(got), ExitName(tt.want))
			}
		})
	}
}

func TestNewTransportKeepsCause(t *testing.T) {
	err := NewTransport("put object", io.ErrUnexpectedEOF)

	if !Is(err, ErrTransport) {
		t.Error("expected ErrTransport in chain")
	}
	if !Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected original cause in chain")
	}
	if !IsRetriable(err) {
		t.Error("transport errors should be retriable")
	}
}

func TestWrapNil(t *testing.T) {
	if Wrap(nil, "x") != nil {
		t.Error("Wrap(nil) should be nil")
	}
	if Wrapf(nil, "x %d", 1) != nil {
		t.Error("Wrapf(nil) should be nil")
	}
}

func TestValidationErrors(t *testing.T) {
	v := NewValidationErrors()
	if v.Err() != nil {
		t.Fatal("empty collector should return nil")
	}

	v.AddMissing("object_store.endpoint")
	v.AddField("table_store.compression", "unknown codec")
	v.Add(nil)

	if len(v.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(v.Errors))
	}

	err := v.Err()
	if !Is(err, ErrMissingField) {
		t.Error("expected ErrMissingField to be reachable")
	}
	if !Is(err, ErrInvalidConfig) {
		t.Error("expected ErrInvalidConfig to be reachable")
	}
	if !IsValidation(err) {
		t.Error("expected validation category")
	}
}
