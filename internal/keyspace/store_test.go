package keyspace

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adred-codev/kvstore-core/internal/object"
)

func TestStoreAddLookupDelete(t *testing.T) {
	s := NewStore()
	s.Add("greeting", object.NewStringRaw([]byte("hello")))

	v, ok := s.Lookup("greeting")
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), object.Decoded(v))

	assert.True(t, s.Delete("greeting"))
	_, ok = s.Lookup("greeting")
	assert.False(t, ok)

	assert.False(t, s.Delete("greeting"))
}

func TestStoreLookupMissingKey(t *testing.T) {
	s := NewStore()
	_, ok := s.Lookup("absent")
	assert.False(t, ok)
}

func TestStoreExpiryIsLazilyDeletedOnLookup(t *testing.T) {
	s := NewStore()
	s.Add("temp", object.NewStringRaw([]byte("x")))
	s.SetExpire("temp", time.Now().Add(-time.Second))

	assert.Equal(t, 1, s.Len())
	_, ok := s.Lookup("temp")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len())
}

func TestStoreGetExpireReportsNoTTLByDefault(t *testing.T) {
	s := NewStore()
	s.Add("k", object.NewStringRaw([]byte("v")))
	_, hasTTL := s.GetExpire("k")
	assert.False(t, hasTTL)

	when := time.Now().Add(time.Hour)
	s.SetExpire("k", when)
	got, hasTTL := s.GetExpire("k")
	require.True(t, hasTTL)
	assert.WithinDuration(t, when, got, time.Millisecond)
}

func TestStoreSetExpireOnMissingKeyIsNoop(t *testing.T) {
	s := NewStore()
	assert.NotPanics(t, func() {
		s.SetExpire("ghost", time.Now())
	})
}

func TestStoreAddClearsPriorExpiry(t *testing.T) {
	s := NewStore()
	s.Add("k", object.NewStringRaw([]byte("v1")))
	s.SetExpire("k", time.Now().Add(-time.Second))

	s.Add("k", object.NewStringRaw([]byte("v2")))
	_, hasTTL := s.GetExpire("k")
	assert.False(t, hasTTL)

	v, ok := s.Lookup("k")
	require.True(t, ok)
	assert.Equal(t, []byte("v2"), object.Decoded(v))
}

func TestStoreLenCountsAcrossShards(t *testing.T) {
	s := NewStore()
	for i := 0; i < 100; i++ {
		s.Add("key-"+strconv.Itoa(i), object.NewStringRaw([]byte("v")))
	}
	assert.Equal(t, 100, s.Len())
}
