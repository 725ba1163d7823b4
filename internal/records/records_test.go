package records_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/autotune/internal/records"
)

func rec(workload string, cost string) string {
	return `{"input": ["c", "` + workload + `"], "result": [[` + cost + `], 0, 1.0, 0]}`
}

func TestMergeKeepsOrder(t *testing.T) {
	a := rec("w0", "0.1") + "\n" + rec("w0", "0.2") + "\n"
	b := ""
	c := rec("w2", "0.3")
	merged := records.Merge(a, b, c)
	assert.Equal(t, a+c+"\n", merged)
	assert.Len(t, records.Lines(merged), 3)
}

func TestCount(t *testing.T) {
	log := strings.Join([]string{
		rec("w0", "0.1"),
		"",
		rec("w0", records.FailureSentinel),
		"   ",
		rec("w1", "0.4"),
	}, "\n")
	c := records.Count(log)
	assert.Equal(t, 3, c.Total)
	assert.Equal(t, 1, c.Failed)
	assert.Equal(t, 2, c.Tuned())
}

func TestEarlyStopped(t *testing.T) {
	tests := []struct {
		name          string
		total         int
		trials, early int
		space         int
		want          bool
	}{
		{"not armed", 3, 10, 10, 100, false},
		{"armed and short", 3, 10, 5, 100, true},
		{"armed, space exhausted", 4, 10, 5, 4, false},
		{"armed, budget exhausted", 10, 10, 5, 100, false},
		{"early above trials", 1, 10, 20, 100, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := records.EarlyStopped(records.Counts{Total: tt.total}, tt.trials, tt.early, tt.space)
			assert.Equal(t, tt.want, got)
		})
	}
}

// lastPerWorkload keeps the last line per workload, standing in for the
// external picker.
type lastPerWorkload struct {
	calls int
}

func (p *lastPerWorkload) PickBest(ctx context.Context, in, out string) error {
	p.calls++
	data, err := os.ReadFile(in)
	if err != nil {
		return err
	}
	best := map[string]string{}
	var order []string
	for _, line := range records.Lines(string(data)) {
		key := strings.SplitN(line, `"`, 7)[5]
		if _, ok := best[key]; !ok {
			order = append(order, key)
		}
		best[key] = line
	}
	var b strings.Builder
	for _, k := range order {
		b.WriteString(best[k] + "\n")
	}
	return os.WriteFile(out, []byte(b.String()), 0o644)
}

func TestPickBestEmptySkipsPicker(t *testing.T) {
	p := &lastPerWorkload{}
	best, err := records.PickBest(context.Background(), p, "\n  \n", t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, best)
	assert.Zero(t, p.calls)
}

func TestPickBestSubsetAndIdempotent(t *testing.T) {
	merged := records.Merge(
		rec("w0", "0.3")+"\n"+rec("w0", "0.1")+"\n",
		rec("w1", "0.2")+"\n",
	)
	p := &lastPerWorkload{}
	dir := t.TempDir()

	first, err := records.PickBest(context.Background(), p, merged, dir)
	require.NoError(t, err)
	second, err := records.PickBest(context.Background(), p, merged, dir)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, records.Lines(first), 2)
	for _, line := range records.Lines(first) {
		assert.Contains(t, merged, line)
	}
}

func TestAppendStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", "records.log")

	got, err := records.ReadStore(path)
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))
	require.NoError(t, records.AppendStore(path, "new1\nnew2\n"))

	got, err = records.ReadStore(path)
	require.NoError(t, err)
	assert.Equal(t, "old\nnew1\nnew2\n", got)
}

func TestAppendStoreConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "records.log")
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, records.AppendStore(path, "a\nb\n"))
		}()
	}
	wg.Wait()

	got, err := records.ReadStore(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a\nb\n", 8), got)
}
