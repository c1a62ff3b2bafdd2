package ltp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ltp/ltptest"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/ndb/ndbtest"
)

var (
	tagDisplayName = ltp.MakeTag(0x3001, ltp.PtypString)
	tagContentCnt  = ltp.MakeTag(0x3602, ltp.PtypInteger32)
	tagSubfolders  = ltp.MakeTag(0x360A, ltp.PtypBoolean)
	tagSize        = ltp.MakeTag(0x0E08, ltp.PtypInteger64)
	tagImportance  = ltp.MakeTag(0x0017, ltp.PtypInteger16)
	tagRecordKey   = ltp.MakeTag(0x0FF9, ltp.PtypGuid)
	tagAttachment  = ltp.MakeTag(0x3701, ltp.PtypObject)

	tableNID = ndb.MakeNID(ndb.NIDTypeHierarchyTable, 1)
	rowsNID  = ndb.MakeNID(ndb.NIDTypeLTP, 2)
)

func TestTableContext(t *testing.T) {
	for _, f := range []ndb.Format{ndb.FormatANSI, ndb.FormatUnicode, ndb.FormatUnicode4K} {
		t.Run(f.String(), func(t *testing.T) {
			b := ndbtest.New(f).Crypt(ndb.CryptCyclic)
			tc := ltptest.NewTC(tagDisplayName, tagContentCnt, tagSubfolders, tagSize, tagImportance, tagRecordKey, tagAttachment)
			inbox := tc.Item(ltptest.UTF16("Inbox"))
			guid := tc.Item(guidBytes)
			tc.Row(0x8022, map[ltp.PropTag][]byte{
				tagDisplayName: ltptest.U32(uint32(inbox)),
				tagContentCnt:  ltptest.U32(12),
				tagSubfolders:  {1},
				tagSize:        ltptest.U64(4096),
				tagImportance:  {2, 0},
				tagRecordKey:   ltptest.U32(uint32(guid)),
				tagAttachment:  ltptest.U32(uint32(bodyNID)),
			})
			// Lower id, but second in row order.
			tc.Row(0x0042, map[ltp.PropTag][]byte{
				tagContentCnt: ltptest.U32(0),
			})
			tc.Store(b, tableNID, 0)
			db := b.Open(t)

			table, err := ltp.ReadTableContext(db, tableNID, ltp.Options{})
			require.NoError(t, err)
			require.Equal(t, 2, table.Len())
			require.Len(t, table.Columns(), 7)
			require.Equal(t, tc.RowWidth(), table.RowWidth())
			require.Equal(t, []uint32{0x8022, 0x0042}, table.RowIDs())
			require.Equal(t, []ltp.RowRef{{ID: 0x8022, Index: 0}, {ID: 0x0042, Index: 1}}, table.RowRefs())

			rows, err := table.Rows()
			require.NoError(t, err)
			require.Len(t, rows, 2)
			require.Equal(t, map[ltp.PropID]ltp.Value{
				0x3001: ltp.String("Inbox"),
				0x3602: ltp.Int32(12),
				0x360A: ltp.Bool(true),
				0x0E08: ltp.Int64(4096),
				0x0017: ltp.Int16(2),
				0x0FF9: ltp.GUID(ltp.GUIDFromBytes(guidBytes)),
				0x3701: ltp.ObjectRef{NID: bodyNID},
			}, rows[0].Values)
			require.Equal(t, &ltp.Row{ID: 0x0042, Index: 1, Values: map[ltp.PropID]ltp.Value{0x3602: ltp.Int32(0)}}, rows[1])

			row, ok, err := table.FindRow(0x0042)
			require.NoError(t, err)
			require.True(t, ok)
			require.Equal(t, rows[1], row)

			_, ok, err = table.FindRow(0x9999)
			require.NoError(t, err)
			require.False(t, ok)

			_, err = table.Row(2)
			require.ErrorIs(t, err, ndb.ErrNotFound)
		})
	}
}

func TestTableContext_Empty(t *testing.T) {
	b := ndbtest.New(ndb.FormatUnicode)
	ltptest.NewTC(tagDisplayName).Store(b, tableNID, 0)
	db := b.Open(t)

	table, err := ltp.ReadTableContext(db, tableNID, ltp.Options{})
	require.NoError(t, err)
	require.Zero(t, table.Len())
	require.Empty(t, table.RowIDs())
	rows, err := table.Rows()
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestTableContext_RowsInSubnode(t *testing.T) {
	for _, f := range []ndb.Format{ndb.FormatUnicode, ndb.FormatUnicode4K} {
		t.Run(f.String(), func(t *testing.T) {
			var tags []ltp.PropTag
			for i := 0; i < 120; i++ {
				tags = append(tags, ltp.MakeTag(ltp.PropID(0x6000+i), ltp.PtypInteger64))
			}
			tc := ltptest.NewTC(tags...)
			perBlock := f.MaxBlockData() / tc.RowWidth()
			n := perBlock + 2
			for id := 1; id <= n; id++ {
				tc.Row(uint32(id), map[ltp.PropTag][]byte{
					tags[0]:   ltptest.U64(uint64(id)),
					tags[119]: ltptest.U64(uint64(id * 100)),
				})
			}

			b := ndbtest.New(f)
			tc.Store(b, tableNID, rowsNID)
			db := b.Open(t)

			node, err := db.Node(tableNID)
			require.NoError(t, err)
			sub, err := db.ReadSubnodeTree(node.SubnodeBID)
			require.NoError(t, err)
			dt, err := db.ReadSubnodeBlocks(sub, rowsNID)
			require.NoError(t, err)
			require.Len(t, dt.Blocks, 2)

			table, err := ltp.ReadTableContext(db, tableNID, ltp.Options{})
			require.NoError(t, err)
			require.Equal(t, n, table.Len())

			rows, err := table.Rows()
			require.NoError(t, err)
			require.Len(t, rows, n)
			for i, row := range rows {
				id := int64(i + 1)
				require.EqualValues(t, id, row.ID)
				require.Equal(t, map[ltp.PropID]ltp.Value{
					0x6000: ltp.Int64(id),
					0x6077: ltp.Int64(id * 100),
				}, row.Values)
			}
		})
	}
}

func TestTableContext_ExistenceBitmapPastFirstByte(t *testing.T) {
	var tags []ltp.PropTag
	for i := 0; i < 10; i++ {
		tags = append(tags, ltp.MakeTag(ltp.PropID(0x7000+i), ltp.PtypInteger32))
	}
	tc := ltptest.NewTC(tags...).
		Row(1, map[ltp.PropTag][]byte{tags[9]: ltptest.U32(99)}).
		Row(2, map[ltp.PropTag][]byte{tags[0]: ltptest.U32(7), tags[8]: ltptest.U32(8)})

	b := ndbtest.New(ndb.FormatUnicode)
	tc.Store(b, tableNID, 0)
	db := b.Open(t)

	table, err := ltp.ReadTableContext(db, tableNID, ltp.Options{})
	require.NoError(t, err)
	require.Equal(t, 10*4+2, table.RowWidth())

	rows, err := table.Rows()
	require.NoError(t, err)
	require.Equal(t, map[ltp.PropID]ltp.Value{0x7009: ltp.Int32(99)}, rows[0].Values)
	require.Equal(t, map[ltp.PropID]ltp.Value{0x7000: ltp.Int32(7), 0x7008: ltp.Int32(8)}, rows[1].Values)
}

func TestTableContext_CellWidthMismatch(t *testing.T) {
	tagFlags := ltp.MakeTag(0x0E07, ltp.PtypInteger32)
	tc := ltptest.NewTC(tagFlags, tagContentCnt)
	tc.Column(0).Size = 2
	tc.Row(5, map[ltp.PropTag][]byte{tagFlags: {1, 0}, tagContentCnt: ltptest.U32(3)})

	b := ndbtest.New(ndb.FormatUnicode)
	tc.Store(b, tableNID, 0)
	db := b.Open(t)

	strict, err := ltp.ReadTableContext(db, tableNID, ltp.Options{})
	require.NoError(t, err)
	_, err = strict.Rows()
	require.ErrorIs(t, err, ndb.ErrStructural)
	var re *ltp.RowError
	require.ErrorAs(t, err, &re)
	require.EqualValues(t, 5, re.RowID)
	var pe *ltp.PropertyError
	require.ErrorAs(t, err, &pe)
	require.Equal(t, ltp.PropID(0x0E07), pe.ID)

	lenient, err := ltp.ReadTableContext(db, tableNID, ltp.Options{Lenient: true})
	require.NoError(t, err)
	rows, err := lenient.Rows()
	require.ErrorIs(t, err, ndb.ErrStructural)
	require.Len(t, rows, 1)
	require.Equal(t, map[ltp.PropID]ltp.Value{0x3602: ltp.Int32(3)}, rows[0].Values)
}

func TestTableContext_MissingRowsSubnode(t *testing.T) {
	b := ndbtest.New(ndb.FormatUnicode)
	ltptest.NewTC(tagContentCnt).
		Row(1, map[ltp.PropTag][]byte{tagContentCnt: ltptest.U32(1)}).
		Store(b, tableNID, rowsNID)
	db := b.Open(t)

	node, err := db.Node(tableNID)
	require.NoError(t, err)
	dt, err := db.ReadBlocks(node.DataBID)
	require.NoError(t, err)

	// Without the node's subnode tree the row matrix cannot be found.
	h, err := ltp.NewHeap(db.Format(), dt.Blocks, nil, db)
	require.NoError(t, err)
	table, err := ltp.OpenTableContext(h, ltp.Options{Lenient: true})
	require.NoError(t, err)
	require.Equal(t, []uint32{1}, table.RowIDs())

	rows, err := table.Rows()
	require.ErrorIs(t, err, ndb.ErrNotFound)
	require.Empty(t, rows)
}
