// Package pstdbtest builds a small mailbox container for tests of the
// store and the surfaces over it.
package pstdbtest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ltp/ltptest"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
	"github.com/S0me0neR0man/ourpst/internal/ndb/ndbtest"
	"github.com/S0me0neR0man/ourpst/internal/pstdb"
)

const (
	PidDisplayName  ltp.PropID = 0x3001
	PidContentCount ltp.PropID = 0x3602
	PidSubfolders   ltp.PropID = 0x360A
	PidSubject      ltp.PropID = 0x0037
	PidMessageSize  ltp.PropID = 0x0E08
	PidMessageFlags ltp.PropID = 0x0E07
	PidRecordKey    ltp.PropID = 0x0FF9
	PidBucketCount  ltp.PropID = 0x0001
	PidRestriction  ltp.PropID = 0x6803
)

const StoreDisplayName = "Personal Folders"

// Fixture nodes.
var (
	InboxNID   = ndb.MakeNID(ndb.NIDTypeNormalFolder, 0x401)
	SentNID    = ndb.MakeNID(ndb.NIDTypeNormalFolder, 0x402)
	MessageNID = ndb.MakeNID(ndb.NIDTypeNormalMessage, 0x10001)
	// BrokenNID is a message with one property of an undecodable type.
	BrokenNID = ndb.MakeNID(ndb.NIDTypeNormalMessage, 0x10002)
	// CorruptNID is a message whose data is not a heap.
	CorruptNID = ndb.MakeNID(ndb.NIDTypeNormalMessage, 0x10003)
	// QueueNID carries raw data that is not a heap, as search queues do.
	QueueNID = ndb.NIDSearchManagementQueue

	RootHierarchyNID  = ndb.NIDRootFolder.WithType(ndb.NIDTypeHierarchyTable)
	InboxHierarchyNID = InboxNID.WithType(ndb.NIDTypeHierarchyTable)
	InboxContentsNID  = InboxNID.WithType(ndb.NIDTypeContentsTable)
)

var (
	tagDisplayName  = ltp.MakeTag(PidDisplayName, ltp.PtypString)
	tagContentCount = ltp.MakeTag(PidContentCount, ltp.PtypInteger32)
	tagSubfolders   = ltp.MakeTag(PidSubfolders, ltp.PtypBoolean)
	tagSubject      = ltp.MakeTag(PidSubject, ltp.PtypString)
	tagMessageSize  = ltp.MakeTag(PidMessageSize, ltp.PtypInteger32)
)

func folder(name string, count uint32, subfolders bool) *ltptest.PC {
	var sub uint32
	if subfolders {
		sub = 1
	}
	return ltptest.NewPC().
		Heaped(PidDisplayName, ltp.PtypString, ltptest.UTF16(name)).
		Inline(PidContentCount, ltp.PtypInteger32, count).
		Inline(PidSubfolders, ltp.PtypBoolean, sub)
}

func folderRow(tc *ltptest.TC, nid ndb.NID, name string, count uint32) {
	tc.Row(uint32(nid), map[ltp.PropTag][]byte{
		tagDisplayName:  ltptest.U32(uint32(tc.Item(ltptest.UTF16(name)))),
		tagContentCount: ltptest.U32(count),
		tagSubfolders:   {0},
	})
}

func messageRow(tc *ltptest.TC, nid ndb.NID, subject string, size uint32) {
	tc.Row(uint32(nid), map[ltp.PropTag][]byte{
		tagSubject:     ltptest.U32(uint32(tc.Item(ltptest.UTF16(subject)))),
		tagMessageSize: ltptest.U32(size),
	})
}

// Build lays out the mailbox:
//
//	message store, name-to-id map
//	root folder
//	  Inbox: Hello, Broken
//	  Sent Items
//
// plus CorruptNID and QueueNID.
func Build(f ndb.Format) []byte {
	b := ndbtest.New(f).Crypt(ndb.CryptPermute)

	ltptest.NewPC().
		Heaped(PidDisplayName, ltp.PtypString, ltptest.UTF16(StoreDisplayName)).
		Heaped(PidRecordKey, ltp.PtypBinary, []byte{0xDE, 0xAD, 0xBE, 0xEF}).
		Store(b, ndb.NIDMessageStore)
	ltptest.NewPC().
		Inline(PidBucketCount, ltp.PtypInteger32, 251).
		Store(b, ndb.NIDNameToIDMap)

	folder("", 0, true).Store(b, ndb.NIDRootFolder)
	root := ltptest.NewTC(tagDisplayName, tagContentCount, tagSubfolders)
	folderRow(root, InboxNID, "Inbox", 2)
	folderRow(root, SentNID, "Sent Items", 0)
	root.Store(b, RootHierarchyNID, 0)

	folder("Inbox", 2, false).Store(b, InboxNID)
	ltptest.NewTC(tagDisplayName, tagContentCount, tagSubfolders).Store(b, InboxHierarchyNID, 0)
	contents := ltptest.NewTC(tagSubject, tagMessageSize)
	messageRow(contents, MessageNID, "Hello", 1024)
	messageRow(contents, BrokenNID, "Broken", 10)
	contents.Store(b, InboxContentsNID, 0)

	folder("Sent Items", 0, false).Store(b, SentNID)

	ltptest.NewPC().
		Heaped(PidSubject, ltp.PtypString, ltptest.UTF16("Hello")).
		Inline(PidMessageSize, ltp.PtypInteger32, 1024).
		Inline(PidMessageFlags, ltp.PtypInteger32, 0x1).
		Store(b, MessageNID)
	ltptest.NewPC().
		Heaped(PidSubject, ltp.PtypString, ltptest.UTF16("Broken")).
		Inline(PidRestriction, ltp.PtypRestriction, 0).
		Store(b, BrokenNID)

	b.AddNode(ndb.NodeEntry{NID: CorruptNID, DataBID: b.AddBlock([]byte("definitely not a heap"))})
	b.AddNode(ndb.NodeEntry{NID: QueueNID, DataBID: b.AddBlock(make([]byte, 32))})

	return b.Build()
}

// Write stores the mailbox in a temporary file and returns its path.
func Write(t testing.TB, f ndb.Format) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mailbox.pst")
	require.NoError(t, os.WriteFile(path, Build(f), 0o600))
	return path
}

// Open opens the mailbox as a store closed at test cleanup.
func Open(t testing.TB, f ndb.Format, opts pstdb.Options) *pstdb.Store {
	t.Helper()
	s, err := pstdb.Open(Write(t, f), opts, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}
