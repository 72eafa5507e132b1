package demo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tidwall/gjson"

	"github.com/kode4food/braid/internal/dispatch"
	"github.com/kode4food/braid/internal/engine"
	"github.com/kode4food/braid/pkg/log"
)

// Pair is two factors to multiply
type Pair [2]int

const (
	Calculator              = "Calculator"
	MultiplySubOrchestrator = "MultiplySubOrchestrator"
	MultiplyNumbers         = "MultiplyNumbers"
)

// DefaultPairs are multiplied when Calculator is started without input
var DefaultPairs = []Pair{{6, 7}, {8, 9}, {10, 11}}

var ErrInvalidPair = errors.New("expected a pair of integers")

// Register adds the demo orchestrations and work unit
func Register(orchs *engine.Registry, units *dispatch.Registry) error {
	return errors.Join(
		orchs.Register(Calculator, engine.Typed(calculator)),
		orchs.Register(MultiplySubOrchestrator, engine.Typed(multiplyAll)),
		units.Register(MultiplyNumbers, multiplyNumbers),
	)
}

func calculator(ctx *engine.Context, pairs []Pair) ([]int, error) {
	logger := ctx.Logger()
	logger.Info("Starting orchestration")

	if len(pairs) == 0 {
		pairs = DefaultPairs
	}
	res, err := engine.Await[[]int](
		ctx.CallSubOrchestration(MultiplySubOrchestrator, pairs),
	)
	if err != nil {
		return nil, err
	}

	logger.Info("Total result from sub-orchestrator",
		slog.Any("total", res))
	return res, nil
}

// multiplyAll fans a MultiplyNumbers call out per pair and fans the
// products back in, in pair order
func multiplyAll(ctx *engine.Context, pairs []Pair) ([]int, error) {
	logger := ctx.Logger()
	logger.Info("Starting multiply sub-orchestrator",
		slog.Int("pairs", len(pairs)))

	calls := make([]engine.Call, len(pairs))
	for i, p := range pairs {
		calls[i] = engine.WorkUnit(MultiplyNumbers, p)
	}
	res, err := engine.JoinAs[int](ctx.FanOut(calls...))
	if err != nil {
		return nil, err
	}

	logger.Info("Total result of all multiplications",
		slog.Any("total", res))
	return res, nil
}

func multiplyNumbers(_ context.Context, input json.RawMessage) (any, error) {
	nums := gjson.ParseBytes(input)
	if !nums.IsArray() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPair, input)
	}
	factors := nums.Array()
	if len(factors) != 2 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPair, input)
	}
	for _, f := range factors {
		if f.Type != gjson.Number {
			return nil, fmt.Errorf("%w: %s", ErrInvalidPair, input)
		}
	}

	a, b := factors[0].Int(), factors[1].Int()
	res := a * b
	slog.Debug("Multiplied numbers",
		log.WorkUnit(MultiplyNumbers),
		slog.Int64("a", a),
		slog.Int64("b", b),
		slog.Int64("result", res))
	return res, nil
}
