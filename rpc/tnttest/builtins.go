package tnttest

import (
	"context"
	"fmt"
	"time"
)

// registerBuiltins registers the functions every server provides:
//
//	test1()        returns {1, 2, 3}    -> [[1, 2, 3]]
//	test2()        returns 1, 2, 3      -> [1, 2, 3]
//	test3(p1, p2)  returns p1, p2
//	fiber.sleep(s) blocks for s seconds or until the connection closes
//	error(msg)     raises msg
func registerBuiltins(s *Server) {
	s.Register("test1", func(context.Context, []interface{}) ([]interface{}, error) {
		return []interface{}{[]interface{}{1, 2, 3}}, nil
	})
	s.Register("test2", func(context.Context, []interface{}) ([]interface{}, error) {
		return []interface{}{1, 2, 3}, nil
	})
	s.Register("test3", func(_ context.Context, args []interface{}) ([]interface{}, error) {
		return args, nil
	})
	s.Register("fiber.sleep", sleep)
	s.Register("error", func(_ context.Context, args []interface{}) ([]interface{}, error) {
		if len(args) == 0 {
			return nil, fmt.Errorf("error")
		}
		return nil, fmt.Errorf("%v", args[0])
	})
}

func sleep(ctx context.Context, args []interface{}) ([]interface{}, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("usage: fiber.sleep(seconds)")
	}
	seconds, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("bad argument #1 to 'sleep' (number expected, got %T)", args[0])
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// toFloat converts the numeric types produced by the msgpack decoder
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
