package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeBackends(t *testing.T) map[string]func(now func() time.Time) Store {
	t.Helper()
	return map[string]func(now func() time.Time) Store{
		"memory": func(now func() time.Time) Store {
			ms := NewMemoryStore(0)
			ms.now = now
			return ms
		},
		"sqlite": func(now func() time.Time) Store {
			s, err := OpenSQLite(filepath.Join(t.TempDir(), "intake.db"))
			require.NoError(t, err)
			s.now = now
			return s
		},
	}
}

func TestStore_Contract(t *testing.T) {
	for name, open := range storeBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			clock := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
			s := open(func() time.Time { return clock })
			defer s.Close()

			_, err := s.Get(ctx, "missing")
			assert.ErrorIs(t, err, ErrKeyNotFound)

			require.NoError(t, s.Set(ctx, Key("intake", "c1", "projectFormData"), []byte(`{"a":"1"}`), 0))
			require.NoError(t, s.Set(ctx, Key("intake", "c2", "projectFormData"), []byte(`{}`), time.Minute))
			require.NoError(t, s.Set(ctx, "other", []byte("x"), 0))

			got, err := s.Get(ctx, "intake:c1:projectFormData")
			require.NoError(t, err)
			assert.Equal(t, `{"a":"1"}`, string(got))

			keys, err := s.Keys(ctx, "intake:")
			require.NoError(t, err)
			assert.Equal(t, []string{"intake:c1:projectFormData", "intake:c2:projectFormData"}, keys)

			// Overwrite replaces the record.
			require.NoError(t, s.Set(ctx, "intake:c1:projectFormData", []byte(`{}`), 0))
			got, err = s.Get(ctx, "intake:c1:projectFormData")
			require.NoError(t, err)
			assert.Equal(t, `{}`, string(got))

			clock = clock.Add(2 * time.Minute)
			ok, err := s.Exists(ctx, "intake:c2:projectFormData")
			require.NoError(t, err)
			assert.False(t, ok, "expired key must not exist")

			require.NoError(t, s.Delete(ctx, "intake:c1:projectFormData"))
			require.NoError(t, s.Delete(ctx, "intake:c1:projectFormData"))
			ok, err = s.Exists(ctx, "intake:c1:projectFormData")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, s.Ping(ctx))
			assert.ErrorIs(t, s.Set(ctx, "", nil, 0), ErrEmptyKey)
		})
	}
}

func TestMemoryStore_Closed(t *testing.T) {
	ms := NewMemoryStore(time.Hour)
	require.NoError(t, ms.Close())
	require.NoError(t, ms.Close())

	_, err := ms.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, ms.Ping(context.Background()), ErrStoreClosed)
}

func TestSQLiteStore_Purge(t *testing.T) {
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "purge.db"))
	require.NoError(t, err)
	defer s.Close()

	clock := time.Now()
	s.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "short", []byte("1"), time.Second))
	require.NoError(t, s.Set(ctx, "forever", []byte("2"), 0))

	clock = clock.Add(time.Minute)
	n, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestOpenSQLite_RequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

type record struct {
	ID     string            `msgpack:"id" json:"id"`
	Values map[string]string `msgpack:"values" json:"values"`
}

func TestTypedStore_Serializers(t *testing.T) {
	big := make(map[string]string)
	for i := 0; i < 200; i++ {
		big[string(rune('a'+i%26))+time.Duration(i).String()] = "some repeated value"
	}

	serializers := map[string]Serializer[record]{
		"msgpack": NewMsgPackSerializer[record](),
		"json":    NewJSONSerializer[record](),
	}

	for name, ser := range serializers {
		t.Run(name, func(t *testing.T) {
			ts := NewTypedStore[record](NewMemoryStore(0), ser)
			ctx := context.Background()
			in := record{ID: "r1", Values: big}

			require.NoError(t, ts.Set(ctx, "r1", in, 0))
			out, err := ts.Get(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, in, out)

			require.NoError(t, ts.Delete(ctx, "r1"))
			_, err = ts.Get(ctx, "r1")
			assert.ErrorIs(t, err, ErrKeyNotFound)
		})
	}
}

func TestMsgPackSerializer_RejectsGarbage(t *testing.T) {
	ser := NewMsgPackSerializer[record]()

	_, err := ser.Deserialize(nil)
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = ser.Deserialize([]byte{7, 1, 2})
	assert.ErrorIs(t, err, ErrInvalidData)

	_, err = ser.Deserialize([]byte{markerCompressed, 1, 2})
	assert.ErrorIs(t, err, ErrInvalidData)
}
