// Package events fans committed market events out to the signal bus, the
// audit log and operator notifications.
package events

import (
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/alanyoungcy/escrowmarket/internal/domain"
)

// Encode serializes ev as a protobuf Struct. Order ids and amounts travel as
// decimal strings since Struct numbers are doubles.
func Encode(ev domain.Event) ([]byte, error) {
	st, err := toStruct(ev)
	if err != nil {
		return nil, err
	}
	b, err := proto.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("events: marshal %s: %w", ev.Type, err)
	}
	return b, nil
}

// Decode is the inverse of Encode.
func Decode(b []byte) (domain.Event, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(b, &st); err != nil {
		return domain.Event{}, fmt.Errorf("events: unmarshal: %w", err)
	}
	f := st.GetFields()
	str := func(k string) string { return f[k].GetStringValue() }

	ev := domain.Event{
		ID:     str("id"),
		Type:   domain.EventType(str("type")),
		Actor:  common.HexToAddress(str("actor")),
		Medium: common.HexToAddress(str("medium")),
	}
	if s := str("order_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return domain.Event{}, fmt.Errorf("events: order_id %q: %w", s, err)
		}
		ev.OrderID = id
	}
	if s := str("amount"); s != "" {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return domain.Event{}, fmt.Errorf("events: amount %q", s)
		}
		ev.Amount = v
	}
	if s := str("at"); s != "" {
		at, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return domain.Event{}, fmt.Errorf("events: at %q: %w", s, err)
		}
		ev.At = at
	}
	if d := f["detail"].GetStructValue(); d != nil {
		ev.Detail = d.AsMap()
	}
	return ev, nil
}

func toStruct(ev domain.Event) (*structpb.Struct, error) {
	m := map[string]any{
		"id":       ev.ID,
		"type":     string(ev.Type),
		"order_id": strconv.FormatUint(ev.OrderID, 10),
		"actor":    ev.Actor.Hex(),
		"medium":   ev.Medium.Hex(),
		"at":       ev.At.UTC().Format(time.RFC3339Nano),
	}
	if ev.Amount != nil {
		m["amount"] = ev.Amount.String()
	}
	if len(ev.Detail) > 0 {
		m["detail"] = plain(ev.Detail)
	}
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, fmt.Errorf("events: encode %s: %w", ev.Type, err)
	}
	return st, nil
}

// plain rewrites detail values that structpb cannot hold.
func plain(detail map[string]any) map[string]any {
	out := make(map[string]any, len(detail))
	for k, v := range detail {
		switch x := v.(type) {
		case nil, bool, string, int, int32, int64, uint, uint32, uint64, float32, float64:
			out[k] = x
		case time.Time:
			out[k] = x.UTC().Format(time.RFC3339Nano)
		case *big.Int:
			out[k] = x.String()
		case common.Address:
			out[k] = x.Hex()
		case fmt.Stringer:
			out[k] = x.String()
		default:
			out[k] = fmt.Sprint(x)
		}
	}
	return out
}

// auditDetail flattens ev for the audit log.
func auditDetail(ev domain.Event) map[string]any {
	d := map[string]any{
		"id":       ev.ID,
		"order_id": ev.OrderID,
		"actor":    ev.Actor.Hex(),
		"at":       ev.At,
	}
	if ev.Medium != domain.NativeMedium || ev.Amount != nil {
		d["medium"] = ev.Medium.Hex()
	}
	if ev.Amount != nil {
		d["amount"] = ev.Amount.String()
	}
	for k, v := range plain(ev.Detail) {
		d[k] = v
	}
	return d
}
