package ltp_test

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ltp/ltptest"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/ndb/ndbtest"
)

var (
	messageNID = ndb.MakeNID(ndb.NIDTypeNormalMessage, 1)
	bodyNID    = ndb.MakeNID(ndb.NIDTypeLTP, 1)
	guidBytes  = []byte{0x33, 0x22, 0x11, 0x00, 0x55, 0x44, 0x77, 0x66, 0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
)

const (
	pidMessageFlags ltp.PropID = 0x0E07
	pidSubject      ltp.PropID = 0x0037
	pidBody         ltp.PropID = 0x1000
	pidDisplayName  ltp.PropID = 0x3001
	pidSize         ltp.PropID = 0x0E08
	pidSubmitTime   ltp.PropID = 0x0039
	pidHasAttach    ltp.PropID = 0x0E1B
	pidImportance   ltp.PropID = 0x0017
	pidEntryID      ltp.PropID = 0x0FFF
	pidClass        ltp.PropID = 0x001A
	pidCategories   ltp.PropID = 0x6801
	pidCounts       ltp.PropID = 0x6802
	pidRecordKey    ltp.PropID = 0x0FF9
	pidAttachData   ltp.PropID = 0x3701
	pidRestriction  ltp.PropID = 0x6803
)

func messagePC(counts []byte) *ltptest.PC {
	ft := binary.LittleEndian.AppendUint64(nil, 133170048000000000)
	return ltptest.NewPC().
		Inline(pidMessageFlags, ltp.PtypInteger32, 0x11).
		Inline(pidHasAttach, ltp.PtypBoolean, 1).
		Inline(pidImportance, ltp.PtypInteger16, 0xFFFF).
		Heaped(pidSubject, ltp.PtypString, ltptest.UTF16("Subject")).
		Heaped(pidSubmitTime, ltp.PtypTime, ft).
		Heaped(pidSize, ltp.PtypInteger64, ltptest.U64(1<<40)).
		Heaped(pidEntryID, ltp.PtypBinary, []byte{1, 2, 3}).
		Heaped(pidClass, ltp.PtypString8, []byte("IPM.Note")).
		Heaped(pidCounts, ltp.PtypMultipleInteger32, counts).
		Heaped(pidCategories, ltp.PtypMultipleString, ltptest.MultiValue(ltptest.UTF16("red"), ltptest.UTF16("blue"))).
		Heaped(pidRecordKey, ltp.PtypGuid, guidBytes).
		Heaped(pidAttachData, ltp.PtypObject, append(ltptest.U32(uint32(bodyNID)), ltptest.U32(44)...)).
		Subnode(pidBody, ltp.PtypString, bodyNID).
		Inline(pidDisplayName, ltp.PtypString, 0)
}

func TestPropertyContext(t *testing.T) {
	for _, f := range []ndb.Format{ndb.FormatANSI, ndb.FormatUnicode, ndb.FormatUnicode4K} {
		t.Run(f.String(), func(t *testing.T) {
			counts := append(append(ltptest.U32(1), ltptest.U32(2)...), append(ltptest.U32(3), ltptest.U32(0xFFFFFFFF)...)...)
			b := ndbtest.New(f).Crypt(ndb.CryptPermute)
			body := b.AddBlock(ltptest.UTF16("long body in a subnode"))
			messagePC(counts).Store(b, messageNID, ndb.SubnodeEntry{NID: bodyNID, DataBID: body})
			db := b.Open(t)

			pc, err := ltp.ReadPropertyContext(db, messageNID, ltp.Options{})
			require.NoError(t, err)
			require.Equal(t, 14, pc.Len())
			require.Equal(t, pidImportance, pc.IDs()[0])

			typ, ok := pc.Type(pidBody)
			require.True(t, ok)
			require.Equal(t, ltp.PtypString, typ)

			expect := map[ltp.PropID]ltp.Value{
				pidMessageFlags: ltp.Int32(0x11),
				pidHasAttach:    ltp.Bool(true),
				pidImportance:   ltp.Int16(-1),
				pidSubject:      ltp.String("Subject"),
				pidSubmitTime:   ltp.Time{Time: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)},
				pidSize:         ltp.Int64(1 << 40),
				pidEntryID:      ltp.Binary{1, 2, 3},
				pidClass:        ltp.String8("IPM.Note"),
				pidCounts:       ltp.MultiInt32{1, 2, 3, -1},
				pidCategories:   ltp.MultiString{"red", "blue"},
				pidRecordKey:    ltp.GUID(uuid.MustParse("00112233-4455-6677-8899-aabbccddeeff")),
				pidAttachData:   ltp.ObjectRef{NID: bodyNID, Size: 44},
				pidBody:         ltp.String("long body in a subnode"),
				pidDisplayName:  ltp.String(""),
			}
			for id, want := range expect {
				v, ok, err := pc.Get(id)
				require.NoError(t, err, "property %s", id)
				require.True(t, ok)
				require.Equal(t, want, v, "property %s", id)
			}

			all, err := pc.All()
			require.NoError(t, err)
			require.Equal(t, expect, all)

			_, ok, err = pc.Get(0x7777)
			require.NoError(t, err)
			require.False(t, ok)

			_, err = pc.Require(0x7777)
			require.ErrorIs(t, err, ltp.ErrMissingRequiredProperty)

			v, err := pc.Require(pidSubject)
			require.NoError(t, err)
			s, err := ltp.AsString(v)
			require.NoError(t, err)
			require.Equal(t, "Subject", s)
		})
	}
}

type countingReader struct {
	ltp.SubnodeReader
	calls atomic.Int32
}

func (c *countingReader) ReadSubnodeBlock(tree *ndb.SubnodeTree, nid ndb.NID) ([]byte, error) {
	c.calls.Add(1)
	return c.SubnodeReader.ReadSubnodeBlock(tree, nid)
}

func TestPropertyContext_CachesValues(t *testing.T) {
	b := ndbtest.New(ndb.FormatUnicode)
	body := b.AddBlock([]byte{9, 8, 7, 6})
	ltptest.NewPC().
		Subnode(pidEntryID, ltp.PtypBinary, bodyNID).
		Store(b, messageNID, ndb.SubnodeEntry{NID: bodyNID, DataBID: body})
	db := b.Open(t)

	node, err := db.Node(messageNID)
	require.NoError(t, err)
	dt, err := db.ReadBlocks(node.DataBID)
	require.NoError(t, err)
	sub, err := db.ReadSubnodeTree(node.SubnodeBID)
	require.NoError(t, err)

	counter := &countingReader{SubnodeReader: db}
	h, err := ltp.NewHeap(db.Format(), dt.Blocks, sub, counter)
	require.NoError(t, err)
	pc, err := ltp.OpenPropertyContext(h, ltp.Options{})
	require.NoError(t, err)
	require.Zero(t, counter.calls.Load())

	var wg sync.WaitGroup
	values := make([]ltp.Value, 8)
	for i := range values {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			values[i], _, _ = pc.Get(pidEntryID)
		}(i)
	}
	wg.Wait()

	require.EqualValues(t, 1, counter.calls.Load())
	for _, v := range values {
		require.Equal(t, ltp.Binary{9, 8, 7, 6}, v)
	}
	again, _, err := pc.Get(pidEntryID)
	require.NoError(t, err)
	require.Equal(t, values[0], again)
	require.EqualValues(t, 1, counter.calls.Load())
}

func TestPropertyContext_Lenient(t *testing.T) {
	b := ndbtest.New(ndb.FormatUnicode)
	ltptest.NewPC().
		Inline(pidMessageFlags, ltp.PtypInteger32, 7).
		Inline(pidRestriction, ltp.PtypRestriction, 0).
		Heaped(pidSize, ltp.PtypInteger64, []byte{1, 2, 3}).
		Store(b, messageNID)
	db := b.Open(t)

	strict, err := ltp.ReadPropertyContext(db, messageNID, ltp.Options{})
	require.NoError(t, err)
	_, err = strict.All()
	require.Error(t, err)

	_, _, err = strict.Get(pidRestriction)
	require.ErrorIs(t, err, ndb.ErrUnsupported)
	var pe *ltp.PropertyError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, pidRestriction, pe.ID)

	_, _, err = strict.Get(pidSize)
	require.ErrorIs(t, err, ndb.ErrStructural)
	var se *ltp.InvalidPropertySizeError
	require.ErrorAs(t, err, &se)
	require.Equal(t, 8, se.Expected)
	require.Equal(t, 3, se.Actual)

	lenient, err := ltp.ReadPropertyContext(db, messageNID, ltp.Options{Lenient: true})
	require.NoError(t, err)
	all, err := lenient.All()
	require.Error(t, err)
	require.ErrorIs(t, err, ndb.ErrUnsupported)
	require.Equal(t, map[ltp.PropID]ltp.Value{pidMessageFlags: ltp.Int32(7)}, all)

	props, err := lenient.Properties()
	require.Error(t, err)
	require.Len(t, props, 1)
	require.Equal(t, ltp.Property{ID: pidMessageFlags, Type: ltp.PtypInteger32, Value: ltp.Int32(7)}, props[0])
}

func TestPropertyContext_WrongContext(t *testing.T) {
	b := ndbtest.New(ndb.FormatUnicode)
	tableNID := ndb.MakeNID(ndb.NIDTypeHierarchyTable, 1)
	ltptest.NewTC(ltp.MakeTag(pidMessageFlags, ltp.PtypInteger32)).Store(b, tableNID, 0)
	messagePC(ltptest.U32(1)).Store(b, messageNID)
	db := b.Open(t)

	_, err := ltp.ReadPropertyContext(db, tableNID, ltp.Options{})
	require.ErrorIs(t, err, ltp.ErrWrongContext)

	_, err = ltp.ReadTableContext(db, messageNID, ltp.Options{})
	require.ErrorIs(t, err, ltp.ErrWrongContext)

	_, err = ltp.ReadPropertyContext(db, ndb.MakeNID(ndb.NIDTypeNormalMessage, 77), ltp.Options{})
	require.ErrorIs(t, err, ndb.ErrNotFound)
}
