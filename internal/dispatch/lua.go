package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/Shopify/go-lua"
)

// LuaUnit is a work unit backed by a sandboxed Lua script. The script sees
// its decoded input as the local `input` and returns the output value
type LuaUnit struct {
	bytecode  []byte
	statePool chan *lua.State
}

const (
	luaStatePoolSize    = 4
	luaGlobalTableIndex = -2
	luaArrayTableIndex  = -3
	luaGlobalTableName  = "_G"
	luaInputPrelude     = "local input = ...\n"
)

var (
	ErrLuaLoad      = errors.New("lua load error")
	ErrLuaExecution = errors.New("lua execution error")
)

var luaExclude = [...]string{
	"io", "os", "debug", "package", "require", "dofile", "loadfile", "load",
}

// NewLuaUnit compiles script into a WorkUnit
func NewLuaUnit(script string) (WorkUnit, error) {
	L := lua.NewState()
	sandbox(L)
	if err := lua.LoadString(L, luaInputPrelude+script); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	var buf bytes.Buffer
	if err := L.Dump(&buf); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	u := &LuaUnit{
		bytecode:  buf.Bytes(),
		statePool: make(chan *lua.State, luaStatePoolSize),
	}
	return u.Execute, nil
}

// Execute runs the compiled script against input
func (u *LuaUnit) Execute(
	_ context.Context, input json.RawMessage,
) (any, error) {
	var in any
	if len(input) > 0 {
		if err := json.Unmarshal(input, &in); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}

	L := u.getState()
	defer u.returnState(L)

	sandbox(L)
	err := L.Load(bytes.NewReader(u.bytecode), "unit", "b")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaLoad, err)
	}
	goToLua(L, in)
	if err := L.ProtectedCall(1, 1, 0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLuaExecution, err)
	}
	return luaToGo(L, -1), nil
}

func (u *LuaUnit) getState() *lua.State {
	select {
	case L := <-u.statePool:
		return L
	default:
		return lua.NewState()
	}
}

func (u *LuaUnit) returnState(L *lua.State) {
	L.SetTop(0)
	select {
	case u.statePool <- L:
	default:
	}
}

func sandbox(L *lua.State) {
	lua.OpenLibraries(L)
	L.Global(luaGlobalTableName)
	for _, name := range luaExclude {
		L.PushNil()
		L.SetField(luaGlobalTableIndex, name)
	}
	L.Pop(1)
}

func goToLua(L *lua.State, value any) {
	switch v := value.(type) {
	case string:
		L.PushString(v)
	case bool:
		L.PushBoolean(v)
	case float64:
		if v == float64(int(v)) {
			L.PushInteger(int(v))
			return
		}
		L.PushNumber(v)
	case []any:
		L.CreateTable(len(v), 0)
		for i, item := range v {
			L.PushInteger(i + 1)
			goToLua(L, item)
			L.SetTable(luaArrayTableIndex)
		}
	case map[string]any:
		L.CreateTable(0, len(v))
		for k, item := range v {
			L.PushString(k)
			goToLua(L, item)
			L.SetTable(luaArrayTableIndex)
		}
	default:
		L.PushNil()
	}
}

func luaToGo(L *lua.State, index int) any {
	switch L.TypeOf(index) {
	case lua.TypeBoolean:
		return L.ToBoolean(index)
	case lua.TypeNumber:
		num, _ := L.ToNumber(index)
		if num == float64(int(num)) {
			return int(num)
		}
		return num
	case lua.TypeString:
		s, _ := L.ToString(index)
		return s
	case lua.TypeTable:
		return luaTableToGo(L, index)
	default:
		return nil
	}
}

func luaTableToGo(L *lua.State, index int) any {
	abs := index
	if index < 0 {
		abs = L.Top() + index + 1
	}

	fields := map[string]any{}
	numeric := 0
	L.PushNil()
	for L.Next(abs) {
		if L.TypeOf(-2) == lua.TypeString {
			key, _ := L.ToString(-2)
			fields[key] = luaToGo(L, -1)
		} else {
			key, _ := L.ToNumber(-2)
			fields[strconv.FormatFloat(key, 'f', -1, 64)] = luaToGo(L, -1)
			numeric++
		}
		L.Pop(1)
	}

	if numeric == 0 || numeric != len(fields) {
		return fields
	}
	arr := make([]any, 0, numeric)
	for i := 1; i <= numeric; i++ {
		L.RawGetInt(abs, i)
		if L.TypeOf(-1) == lua.TypeNil {
			L.Pop(1)
			return fields
		}
		arr = append(arr, luaToGo(L, -1))
		L.Pop(1)
	}
	return arr
}
