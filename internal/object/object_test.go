package object

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStringIntRoundTrip(t *testing.T) {
	for _, n := range []int64{0, 1, 9999, 10000, -5, 1 << 40} {
		o := NewStringInt(n)
		got, err := ToInt64(o)
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}
}

func TestTryEncodeConvertsIntegerRawString(t *testing.T) {
	o := NewStringRaw([]byte("12345"))
	out := TryEncode(o)
	assert.Equal(t, EncodingInt, out.EncodingKind())
	n, err := ToInt64(out)
	require.NoError(t, err)
	assert.Equal(t, int64(12345), n)
}

func TestTryEncodeLeavesNonIntegerStringUnchanged(t *testing.T) {
	o := NewStringRaw([]byte("hello world"))
	out := TryEncode(o)
	assert.Equal(t, EncodingRaw, out.EncodingKind())
	assert.Equal(t, []byte("hello world"), Decoded(out))
}

func TestTryEncodeRejectsNonCanonicalIntegerForms(t *testing.T) {
	for _, s := range []string{"+5", "007", " 5", "5 ", ""} {
		o := NewStringRaw([]byte(s))
		out := TryEncode(o)
		assert.Equal(t, EncodingRaw, out.EncodingKind(), "input %q should stay raw", s)
	}
}

func TestTryEncodeShortCircuitsWhenSharedByMoreThanOneHolder(t *testing.T) {
	o := NewStringRaw([]byte("42"))
	o.IncRef() // refcount now 2
	out := TryEncode(o)
	assert.Same(t, o, out)
	assert.Equal(t, EncodingRaw, out.EncodingKind())
}

func TestSharedIntegersAreNeverFreed(t *testing.T) {
	o := NewStringInt(5)
	require.True(t, o.shared)
	for i := 0; i < 10; i++ {
		o.DecRef()
	}
	assert.EqualValues(t, 1, o.RefCount())
}

func TestRefCountNeverGoesBelowOneForLiveObjects(t *testing.T) {
	o := NewStringRaw([]byte("x"))
	o.IncRef()
	o.IncRef()
	assert.EqualValues(t, 3, o.RefCount())
	o.DecRef()
	o.DecRef()
	assert.EqualValues(t, 1, o.RefCount())
}

func TestCompareNumericAwareWithoutAllocatingDecoded(t *testing.T) {
	a := NewStringInt(10)
	b := NewStringInt(20)
	assert.Equal(t, -1, Compare(a, b, CompareBinary))
	assert.Equal(t, 1, Compare(b, a, CompareBinary))
	assert.True(t, Equal(NewStringInt(7), NewStringInt(7)))
}

func TestCompareMixedIntAndRaw(t *testing.T) {
	a := NewStringInt(10)
	b := NewStringRaw([]byte("10"))
	assert.Equal(t, 0, Compare(a, b, CompareBinary))
}

func TestToFloat64RejectsNaNAndTrailingGarbage(t *testing.T) {
	_, err := ToFloat64(NewStringRaw([]byte("NaN")))
	assert.Error(t, err)
	_, err = ToFloat64(NewStringRaw([]byte("1.5 ")))
	assert.Error(t, err)
	f, err := ToFloat64(NewStringRaw([]byte("3.14")))
	require.NoError(t, err)
	assert.InDelta(t, 3.14, f, 1e-9)
}

func TestListEncodingTransition(t *testing.T) {
	SetThresholds(Thresholds{ListMaxZiplistLen: 4, ListMaxZiplistSize: 64, SetMaxIntsetLen: 512, HashMaxZiplistLen: 128, HashMaxZiplistSize: 64, ZSetMaxZiplistLen: 128, ZSetMaxZiplistSize: 64})
	defer SetThresholds(DefaultThresholds())

	o := NewListZiplist()
	for i := 0; i < 4; i++ {
		ListPush(o, []byte("v"))
		assert.Equal(t, EncodingZiplist, o.EncodingKind())
	}
	ListPush(o, []byte("v"))
	assert.Equal(t, EncodingLinkedList, o.EncodingKind())
	assert.Equal(t, 5, ListLen(o))

	// one-way: further pushes never revert to ziplist.
	ListPush(o, []byte("w"))
	assert.Equal(t, EncodingLinkedList, o.EncodingKind())
}

func TestSetEncodingTransitionOnNonInteger(t *testing.T) {
	o := NewSetIntset()
	SetAdd(o, []byte("1"))
	SetAdd(o, []byte("2"))
	assert.Equal(t, EncodingIntset, o.EncodingKind())
	SetAdd(o, []byte("not-an-int"))
	assert.Equal(t, EncodingHashtable, o.EncodingKind())
	assert.True(t, SetContains(o, []byte("1")))
	assert.True(t, SetContains(o, []byte("not-an-int")))
	assert.Equal(t, 3, SetLen(o))
}

func TestHashEncodingTransition(t *testing.T) {
	SetThresholds(Thresholds{ListMaxZiplistLen: 128, ListMaxZiplistSize: 64, SetMaxIntsetLen: 512, HashMaxZiplistLen: 2, HashMaxZiplistSize: 64, ZSetMaxZiplistLen: 128, ZSetMaxZiplistSize: 64})
	defer SetThresholds(DefaultThresholds())

	o := NewHashZiplist()
	HashSet(o, []byte("a"), []byte("1"))
	HashSet(o, []byte("b"), []byte("2"))
	assert.Equal(t, EncodingZiplist, o.EncodingKind())
	HashSet(o, []byte("c"), []byte("3"))
	assert.Equal(t, EncodingHashtable, o.EncodingKind())

	v, ok := HashGet(o, []byte("a"))
	require.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	assert.Equal(t, 3, HashLen(o))
}

func TestZSetEncodingTransitionAndOrdering(t *testing.T) {
	o := NewZSetZiplist()
	ZSetAdd(o, []byte("a"), 3)
	ZSetAdd(o, []byte("b"), 1)
	ZSetAdd(o, []byte("c"), 2)
	assert.Equal(t, EncodingZiplist, o.EncodingKind())
	assert.Equal(t, 3, ZSetLen(o))

	score, ok := ZSetScore(o, []byte("b"))
	require.True(t, ok)
	assert.Equal(t, float64(1), score)
}

func TestZSetSkiplistUpdateScore(t *testing.T) {
	SetThresholds(Thresholds{ListMaxZiplistLen: 128, ListMaxZiplistSize: 64, SetMaxIntsetLen: 512, HashMaxZiplistLen: 128, HashMaxZiplistSize: 64, ZSetMaxZiplistLen: 1, ZSetMaxZiplistSize: 64})
	defer SetThresholds(DefaultThresholds())

	o := NewZSetZiplist()
	ZSetAdd(o, []byte("a"), 1)
	ZSetAdd(o, []byte("b"), 2)
	require.Equal(t, EncodingSkiplist, o.EncodingKind())

	ZSetAdd(o, []byte("a"), 99)
	score, ok := ZSetScore(o, []byte("a"))
	require.True(t, ok)
	assert.Equal(t, float64(99), score)
	assert.Equal(t, 2, ZSetLen(o))
}

func TestIdleTimeWrapsModularly(t *testing.T) {
	o := NewStringRaw([]byte("x"))
	o.SetLRU(lruClockMax - 2)
	assert.EqualValues(t, 3, o.IdleTime(1))
}
