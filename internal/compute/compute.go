// Package compute holds the pure, CPU-bound functions workers run per job.
package compute

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNegativeInput は負の入力が渡されたことを表す
var ErrNegativeInput = errors.New("negative input")

// Func はジョブ1件分の計算
// 同じ入力には常に同じ結果を返し、副作用を持たない
type Func func(n int) (int64, error)

// Fibonacci は素朴な再帰でフィボナッチ数を計算する
// 負の入力はエラー
func Fibonacci(n int) (int64, error) {
	if n < 0 {
		return 0, fmt.Errorf("fibonacci(%d): %w", n, ErrNegativeInput)
	}
	return fib(n), nil
}

func fib(n int) int64 {
	if n < 2 {
		return int64(n)
	}
	return fib(n-1) + fib(n-2)
}

// Collatz はnが1に到達するまでのステップ数を返す
func Collatz(n int) (int64, error) {
	if n < 1 {
		return 0, fmt.Errorf("collatz(%d): %w", n, ErrNegativeInput)
	}
	var steps int64
	v := uint64(n)
	for v != 1 {
		if v%2 == 0 {
			v /= 2
		} else {
			v = 3*v + 1
		}
		steps++
	}
	return steps, nil
}

// DefaultName はデフォルトの計算関数名
const DefaultName = "fibonacci"

var registry = map[string]Func{
	"fibonacci": Fibonacci,
	"collatz":   Collatz,
}

// Lookup は名前から計算関数を取得する
func Lookup(name string) (Func, bool) {
	if name == "" {
		name = DefaultName
	}
	fn, ok := registry[name]
	return fn, ok
}

// Names は登録済みの関数名をソートして返す
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
