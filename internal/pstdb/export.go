package pstdb

import (
	"encoding/base64"
	"time"

	"github.com/google/uuid"

	"github.com/S0me0neR0man/ourpst/internal/ltp"
	"github.com/S0me0neR0man/ourpst/internal/ndb"
)

// Plain converts a value to JSON-friendly Go values: bool, int64, float64,
// string, []any and map[string]any. Times are RFC 3339, GUIDs canonical text
// and binary base64.
func Plain(v ltp.Value) any {
	switch v := v.(type) {
	case ltp.Int16:
		return int64(v)
	case ltp.Int32:
		return int64(v)
	case ltp.Int64:
		return int64(v)
	case ltp.Currency:
		return int64(v)
	case ltp.ErrorCode:
		return int64(v)
	case ltp.Float32:
		return float64(v)
	case ltp.Float64:
		return float64(v)
	case ltp.FloatingTime:
		return float64(v)
	case ltp.Bool:
		return bool(v)
	case ltp.String:
		return string(v)
	case ltp.String8:
		return string(v)
	case ltp.Time:
		return v.Format(time.RFC3339Nano)
	case ltp.GUID:
		return uuid.UUID(v).String()
	case ltp.Binary:
		return base64.StdEncoding.EncodeToString(v)
	case ltp.ServerID:
		return base64.StdEncoding.EncodeToString(v)
	case ltp.ObjectRef:
		return map[string]any{"nid": int64(v.NID), "size": int64(v.Size)}
	case ltp.MultiInt16:
		return list(v, func(x int16) any { return int64(x) })
	case ltp.MultiInt32:
		return list(v, func(x int32) any { return int64(x) })
	case ltp.MultiInt64:
		return list(v, func(x int64) any { return x })
	case ltp.MultiCurrency:
		return list(v, func(x int64) any { return x })
	case ltp.MultiFloat32:
		return list(v, func(x float32) any { return float64(x) })
	case ltp.MultiFloat64:
		return list(v, func(x float64) any { return x })
	case ltp.MultiFloatingTime:
		return list(v, func(x float64) any { return x })
	case ltp.MultiString:
		return list(v, func(x string) any { return x })
	case ltp.MultiString8:
		return list(v, func(x string) any { return x })
	case ltp.MultiTime:
		return list(v, func(x time.Time) any { return x.Format(time.RFC3339Nano) })
	case ltp.MultiGUID:
		return list(v, func(x uuid.UUID) any { return x.String() })
	case ltp.MultiBinary:
		return list(v, func(x []byte) any { return base64.StdEncoding.EncodeToString(x) })
	}
	return nil
}

func list[S ~[]E, E any](s S, conv func(E) any) []any {
	out := make([]any, len(s))
	for i, x := range s {
		out[i] = conv(x)
	}
	return out
}

// PlainProperties converts a property map, keyed by the hex property id.
func PlainProperties(props map[ltp.PropID]ltp.Value) map[string]any {
	out := make(map[string]any, len(props))
	for id, v := range props {
		out[id.String()] = Plain(v)
	}
	return out
}

// PlainRow converts a table row.
func PlainRow(r *ltp.Row) map[string]any {
	return map[string]any{
		"row_id": int64(r.ID),
		"values": PlainProperties(r.Values),
	}
}

// PlainNode converts a node-tree entry.
func PlainNode(e ndb.NodeEntry) map[string]any {
	return map[string]any{
		"nid":         int64(e.NID),
		"data_bid":    int64(e.DataBID),
		"subnode_bid": int64(e.SubnodeBID),
		"parent_nid":  int64(e.ParentNID),
	}
}
