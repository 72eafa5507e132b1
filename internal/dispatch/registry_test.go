package dispatch_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kode4food/braid/internal/dispatch"
)

func TestRegistry(t *testing.T) {
	r := dispatch.NewRegistry()
	fn := dispatch.Typed(multiply)

	assert.NoError(t, r.Register("mul", fn))
	assert.ErrorIs(t, r.Register("mul", fn), dispatch.ErrWorkUnitExists)
	assert.ErrorIs(t, r.Register("", fn), dispatch.ErrInvalidWorkUnit)
	assert.ErrorIs(t, r.Register("nil", nil), dispatch.ErrInvalidWorkUnit)
	assert.NoError(t, r.Register("add", fn))

	_, ok := r.Get("mul")
	assert.True(t, ok)
	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"add", "mul"}, r.Names())
}

func TestTyped(t *testing.T) {
	fn := dispatch.Typed(multiply)

	res, err := fn(context.Background(), json.RawMessage(`[6,7]`))
	require.NoError(t, err)
	assert.Equal(t, 42, res)

	_, err = fn(context.Background(), json.RawMessage(`"bad"`))
	assert.ErrorIs(t, err, dispatch.ErrInvalidInput)
}

func TestLuaUnit(t *testing.T) {
	fn, err := dispatch.NewLuaUnit(`return input[1] * input[2]`)
	require.NoError(t, err)

	res, err := fn(context.Background(), json.RawMessage(`[8,9]`))
	require.NoError(t, err)
	assert.Equal(t, 72, res)
}

func TestLuaUnitTables(t *testing.T) {
	fn, err := dispatch.NewLuaUnit(`
		local out = {}
		for i, v in ipairs(input.values) do
			out[i] = v * 2
		end
		return { doubled = out, label = input.label }
	`)
	require.NoError(t, err)

	res, err := fn(context.Background(),
		json.RawMessage(`{"values":[1,2,3],"label":"x"}`),
	)
	require.NoError(t, err)

	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"doubled":[2,4,6],"label":"x"}`, string(raw))
}

func TestLuaUnitErrors(t *testing.T) {
	_, err := dispatch.NewLuaUnit(`return (`)
	assert.ErrorIs(t, err, dispatch.ErrLuaLoad)

	fn, err := dispatch.NewLuaUnit(`error("nope")`)
	require.NoError(t, err)
	_, err = fn(context.Background(), nil)
	assert.ErrorIs(t, err, dispatch.ErrLuaExecution)

	fn, err = dispatch.NewLuaUnit(`return os`)
	require.NoError(t, err)
	res, err := fn(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}
