// Package preload writes the startup artifact that lets the engine resume
// prior learning.
//
// The artifact is a Lua chunk of history_preload(domain, strategy,
// successes, failures) calls, one per history record. It deliberately
// contains no lock preloads: the engine becomes unstable when fed many
// direct strategy preloads, while history preloads let it re-derive its
// locks on its own.
//
// Read executes an artifact in a bare gopher-lua state where the only
// global is history_preload, which both validates a freshly written file
// before the engine sees it and lets tests inspect the contents.
package preload

import (
	"bytes"
	"fmt"
	"os"

	lua "github.com/yuin/gopher-lua"

	"github.com/roach88/bypassd/internal/model"
)

// FuncName is the engine-side Lua function each line calls.
const FuncName = "history_preload"

// Render produces the artifact for the given records, in the given order.
func Render(records []model.HistoryRecord) []byte {
	var buf bytes.Buffer
	buf.WriteString("-- bypassd history preload\n")
	fmt.Fprintf(&buf, "-- records: %d\n", len(records))
	for _, r := range records {
		fmt.Fprintf(&buf, "%s(%s, %d, %d, %d)\n",
			FuncName, luaQuote(r.Domain), r.Strategy, r.Successes, r.Failures)
	}
	return buf.Bytes()
}

// Write renders records to path. Returns the number of calls written.
func Write(path string, records []model.HistoryRecord) (int, error) {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, Render(records), 0o644); err != nil {
		return 0, fmt.Errorf("write preload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return 0, fmt.Errorf("write preload: %w", err)
	}
	return len(records), nil
}

// Read executes the artifact at path and returns the records it preloads.
// Any statement other than well-formed history_preload calls is an error.
func Read(path string) ([]model.HistoryRecord, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	var records []model.HistoryRecord
	L.SetGlobal(FuncName, L.NewFunction(func(L *lua.LState) int {
		domain := L.CheckString(1)
		strategy := L.CheckInt(2)
		successes := L.CheckInt(3)
		failures := L.CheckInt(4)
		if domain == "" || strategy <= 0 || successes < 0 || failures < 0 {
			L.RaiseError("invalid %s(%q, %d, %d, %d)", FuncName, domain, strategy, successes, failures)
			return 0
		}
		records = append(records, model.HistoryRecord{
			Domain:   domain,
			Strategy: strategy,
			Counters: model.Counters{Successes: successes, Failures: failures},
		})
		return 0
	}))

	if err := L.DoFile(path); err != nil {
		return nil, fmt.Errorf("read preload %s: %w", path, err)
	}
	return records, nil
}

// luaQuote renders s as a double-quoted Lua string literal. Bytes outside
// printable ASCII use Lua's three-digit decimal escape.
func luaQuote(s string) string {
	var b bytes.Buffer
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"' || c == '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case c < 0x20 || c >= 0x7f:
			fmt.Fprintf(&b, "\\%03d", c)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}
