package partition

import (
	"errors"
	"slices"
	"testing"
)

func seq(m int) []int {
	jobs := make([]int, m)
	for i := range jobs {
		jobs[i] = i
	}
	return jobs
}

func TestRoundRobinInvalidWorkerCount(t *testing.T) {
	for _, n := range []int{0, -1} {
		if _, err := RoundRobin(seq(3), n); !errors.Is(err, ErrInvalidWorkerCount) {
			t.Errorf("n=%d: expected ErrInvalidWorkerCount, got %v", n, err)
		}
	}
}

func TestRoundRobinAssignsIndexModN(t *testing.T) {
	assignments, err := RoundRobin(seq(10), 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := [][]int{
		{0, 3, 6, 9},
		{1, 4, 7},
		{2, 5, 8},
	}
	for w, a := range assignments {
		if a.WorkerID != w {
			t.Errorf("expected worker id %d, got %d", w, a.WorkerID)
		}
		if !slices.Equal(a.Jobs, expected[w]) {
			t.Errorf("worker %d: expected %v, got %v", w, expected[w], a.Jobs)
		}
	}
}

func TestRoundRobinBalance(t *testing.T) {
	for m := 0; m <= 50; m++ {
		for n := 1; n <= 12; n++ {
			assignments, err := RoundRobin(seq(m), n)
			if err != nil {
				t.Fatalf("m=%d n=%d: %v", m, n, err)
			}
			if len(assignments) != n {
				t.Fatalf("m=%d n=%d: expected %d assignments, got %d", m, n, n, len(assignments))
			}

			total := 0
			for _, size := range Sizes(assignments) {
				total += size
				if size != m/n && size != (m+n-1)/n {
					t.Errorf("m=%d n=%d: unbalanced size %d", m, n, size)
				}
			}
			if total != m {
				t.Errorf("m=%d n=%d: expected %d jobs in total, got %d", m, n, m, total)
			}
		}
	}
}

func TestRoundRobinDeterministic(t *testing.T) {
	a, _ := RoundRobin(seq(17), 4)
	b, _ := RoundRobin(seq(17), 4)
	for w := range a {
		if !slices.Equal(a[w].Jobs, b[w].Jobs) {
			t.Errorf("worker %d: assignment differs between calls", w)
		}
	}
}

func TestRoundRobinMoreWorkersThanJobs(t *testing.T) {
	assignments, err := RoundRobin(seq(5), 8)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for w, a := range assignments {
		want := 0
		if w < 5 {
			want = 1
		}
		if a.Len() != want {
			t.Errorf("worker %d: expected %d jobs, got %d", w, want, a.Len())
		}
	}
}

func TestRoundRobinSingleWorkerKeepsOrder(t *testing.T) {
	jobs := seq(9)
	assignments, _ := RoundRobin(jobs, 1)
	if !slices.Equal(assignments[0].Jobs, jobs) {
		t.Errorf("expected original order, got %v", assignments[0].Jobs)
	}
}

func TestSliceSource(t *testing.T) {
	src := NewSliceSource(Assignment[int]{WorkerID: 0, Jobs: []int{4, 5, 6}})

	var got []int
	for {
		job, ok := src.Next()
		if !ok {
			break
		}
		got = append(got, job)
	}
	if !slices.Equal(got, []int{4, 5, 6}) {
		t.Errorf("unexpected jobs: %v", got)
	}
	if _, ok := src.Next(); ok {
		t.Error("expected exhausted source to stay exhausted")
	}
}

func TestStridedMatchesRoundRobin(t *testing.T) {
	jobs := seq(23)
	const n = 5

	strided, err := NewStrided(jobs, n)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assignments, _ := RoundRobin(jobs, n)

	for w := range n {
		src := strided.For(w)
		var got []int
		for {
			job, ok := src.Next()
			if !ok {
				break
			}
			got = append(got, job)
		}
		if !slices.Equal(got, assignments[w].Jobs) {
			t.Errorf("worker %d: expected %v, got %v", w, assignments[w].Jobs, got)
		}
	}

	if strided.Handed() != len(jobs) {
		t.Errorf("expected %d jobs handed out, got %d", len(jobs), strided.Handed())
	}
	if !slices.Equal(strided.Sizes(), Sizes(assignments)) {
		t.Errorf("expected sizes %v, got %v", Sizes(assignments), strided.Sizes())
	}
}

func TestStridedInvalid(t *testing.T) {
	if _, err := NewStrided(seq(3), 0); !errors.Is(err, ErrInvalidWorkerCount) {
		t.Errorf("expected ErrInvalidWorkerCount, got %v", err)
	}

	s, _ := NewStrided(seq(3), 2)
	if _, ok := s.For(5).Next(); ok {
		t.Error("expected out-of-range worker to get no jobs")
	}
}
