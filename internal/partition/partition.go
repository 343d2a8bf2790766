// Package partition splits an ordered job list across a fixed number of
// workers using round-robin assignment: the job at index i belongs to
// worker i mod n. Only per-worker order is preserved.
package partition

import (
	"errors"
	"sync/atomic"
)

// ErrInvalidWorkerCount はワーカー数が1未満であることを表す
var ErrInvalidWorkerCount = errors.New("worker count must be positive")

// Assignment はワーカー1つに割り当てられたジョブ列
type Assignment[T any] struct {
	WorkerID int
	Jobs     []T
}

// Len は割り当てジョブ数を返す
func (a Assignment[T]) Len() int {
	return len(a.Jobs)
}

// RoundRobin はジョブをn個の割り当てに分割する
// 入力スライスは変更しない
func RoundRobin[T any](jobs []T, n int) ([]Assignment[T], error) {
	if n <= 0 {
		return nil, ErrInvalidWorkerCount
	}

	assignments := make([]Assignment[T], n)
	for w := range n {
		size := len(jobs) / n
		if w < len(jobs)%n {
			size++
		}
		assignments[w] = Assignment[T]{WorkerID: w, Jobs: make([]T, 0, size)}
	}
	for i, job := range jobs {
		w := i % n
		assignments[w].Jobs = append(assignments[w].Jobs, job)
	}
	return assignments, nil
}

// Sizes は各割り当てのジョブ数を返す
func Sizes[T any](assignments []Assignment[T]) []int {
	sizes := make([]int, len(assignments))
	for i, a := range assignments {
		sizes[i] = a.Len()
	}
	return sizes
}

// Source はワーカーがジョブを順に取り出す元
type Source[T any] interface {
	Next() (T, bool)
}

// SliceSource は事前に割り当てたジョブ列を順に返す
type SliceSource[T any] struct {
	jobs []T
	pos  int
}

// NewSliceSource は割り当てからSourceを作る
func NewSliceSource[T any](a Assignment[T]) *SliceSource[T] {
	return &SliceSource[T]{jobs: a.Jobs}
}

// Next は次のジョブを返す
func (s *SliceSource[T]) Next() (T, bool) {
	var zero T
	if s.pos >= len(s.jobs) {
		return zero, false
	}
	job := s.jobs[s.pos]
	s.pos++
	return job, true
}

// Strided はジョブを要求時にラウンドロビンで払い出す
// 払い出される内容はRoundRobinと同じで、割り当てを事前に作らない
type Strided[T any] struct {
	jobs    []T
	n       int
	handed  atomic.Int64
	cursors []int
}

// NewStrided は要求時割り当ての払い出し元を作る
func NewStrided[T any](jobs []T, n int) (*Strided[T], error) {
	if n <= 0 {
		return nil, ErrInvalidWorkerCount
	}
	s := &Strided[T]{jobs: jobs, n: n, cursors: make([]int, n)}
	for w := range n {
		s.cursors[w] = w
	}
	return s, nil
}

// For はワーカーw専用のSourceを返す
// 各カーソルは1つのワーカーだけが進める
func (s *Strided[T]) For(workerID int) Source[T] {
	return &stridedSource[T]{parent: s, workerID: workerID}
}

// Handed は払い出し済みのジョブ数を返す
func (s *Strided[T]) Handed() int {
	return int(s.handed.Load())
}

// Sizes は各ワーカーが最終的に受け取るジョブ数を返す
func (s *Strided[T]) Sizes() []int {
	sizes := make([]int, s.n)
	for w := range s.n {
		sizes[w] = len(s.jobs) / s.n
		if w < len(s.jobs)%s.n {
			sizes[w]++
		}
	}
	return sizes
}

type stridedSource[T any] struct {
	parent   *Strided[T]
	workerID int
}

func (s *stridedSource[T]) Next() (T, bool) {
	var zero T
	p := s.parent
	if s.workerID < 0 || s.workerID >= p.n {
		return zero, false
	}
	i := p.cursors[s.workerID]
	if i >= len(p.jobs) {
		return zero, false
	}
	p.cursors[s.workerID] = i + p.n
	p.handed.Add(1)
	return p.jobs[i], true
}
