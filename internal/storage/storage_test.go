package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/offstore/internal/record"
)

func TestError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "full",
			err:  &Error{Kind: KindConfig, Op: "find", Table: "formData", Message: "unknown table"},
			want: "config: find formData: unknown table",
		},
		{
			name: "no table",
			err:  &Error{Kind: KindNotImplemented, Op: "delete", Message: "missing"},
			want: "not_implemented: delete: missing",
		},
		{
			name: "wrapped cause",
			err:  &Error{Kind: KindIO, Op: "update", Table: "t", Err: errors.New("disk gone")},
			want: "io: update t: disk gone",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindPredicates_SeeThroughWrapping(t *testing.T) {
	base := NewError(KindQuotaExceeded, "create", "formData", "store is full")
	wrapped := fmt.Errorf("offline create: %w", base)

	assert.True(t, IsQuotaExceeded(wrapped))
	assert.False(t, IsConfig(wrapped))
	assert.Equal(t, KindQuotaExceeded, KindOf(wrapped))
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
	assert.False(t, IsKind(nil, KindConfig))
}

func TestWrapError_KeepsExistingKind(t *testing.T) {
	inner := UnknownTable("find", "ghost")
	err := WrapError(KindIO, "find", "ghost", fmt.Errorf("ctx: %w", inner))
	assert.True(t, IsConfig(err), "existing classification must survive")

	cause := errors.New("boom")
	err = WrapError(KindIO, "find", "t", cause)
	assert.True(t, IsKind(err, KindIO))
	assert.ErrorIs(t, err, cause)

	assert.NoError(t, WrapError(KindIO, "find", "t", nil))
}

type partialBackend struct {
	Unimplemented
}

func (partialBackend) Find(context.Context, string, record.Record) ([]record.Record, error) {
	return []record.Record{}, nil
}

func TestUnimplemented_SignalsNotImplemented(t *testing.T) {
	var m Method = partialBackend{}
	ctx := context.Background()

	_, err := m.Find(ctx, "t", nil)
	require.NoError(t, err)

	_, err = m.Create(ctx, "t", record.Record{})
	assert.True(t, IsNotImplemented(err))
	assert.True(t, IsNotImplemented(m.Update(ctx, "t", nil)))
	assert.True(t, IsNotImplemented(m.Delete(ctx, "t", nil)))
}

func TestMatch(t *testing.T) {
	rec := record.Record{"species": record.String("grouper"), "count": record.Int(2)}

	assert.True(t, Match(rec, nil))
	assert.True(t, Match(rec, record.Record{"species": record.String("grouper")}))
	assert.True(t, Match(rec, record.Record{"species": record.String("grouper"), "count": record.Int(2)}))
	assert.False(t, Match(rec, record.Record{"species": record.String("salmon")}))
	assert.False(t, Match(rec, record.Record{"count": record.Float(2)}), "type must match")
	assert.False(t, Match(rec, record.Record{"missing": record.Bool(true)}))
}
