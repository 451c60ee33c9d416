package dedup

import (
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testOpts() Opts {
	return Opts{
		KmerLen:           4,
		WindowLen:         8,
		NumWindows:        1,
		MaxOffset:         1,
		MaxErrorFrac:      0.2,
		ExpectedReads:     100,
		ScratchArenaBytes: 1 << 20,
		ResultArenaBytes:  1 << 20,
	}
}

type testRead struct {
	id, fwd, rev, fwdQual, revQual string
}

func processAll(t *testing.T, d *Deduper, reads []testRead) map[string]string {
	t.Helper()
	initial := map[string]string{}
	for _, r := range reads {
		initial[r.id] = d.ProcessRead(
			[]byte(r.id), []byte(r.fwd), []byte(r.rev), []byte(r.fwdQual), []byte(r.revQual))
	}
	return initial
}

func TestNewDeduperValidation(t *testing.T) {
	for _, bad := range []Opts{
		{},
		{KmerLen: 4, WindowLen: 8, NumWindows: 0, ExpectedReads: 10},
		{KmerLen: 4, WindowLen: 8, NumWindows: 1, MaxOffset: -1, ExpectedReads: 10},
		{KmerLen: 4, WindowLen: 8, NumWindows: 1, MaxErrorFrac: 1.5, ExpectedReads: 10},
		{KmerLen: 4, WindowLen: 8, NumWindows: 1, ExpectedReads: 0},
		{KmerLen: 4, WindowLen: 8, NumWindows: 1, ExpectedReads: 10, ScratchArenaBytes: -1},
	} {
		d, err := NewDeduper(bad)
		assert.Error(t, err, "opts: %+v", bad)
		assert.Nil(t, d)
	}
}

func TestReflexivity(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	ex := d.ProcessRead([]byte("solo"), []byte("ACGTTGCAAC"), []byte("TTGGCCAATT"), nil, nil)
	assert.Equal(t, "solo", ex)
	d.Finalize()
	assert.Equal(t, "solo", d.FinalExemplar("solo"))
}

func TestQualityWeightedPromotion(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	// A scores 20+40, its exact duplicate B only 20+2, and the longer C
	// 24+40.  All three land in A's cluster, and C must end up the
	// representative for every member.
	reads := []testRead{
		{"A", "ACGTTGCAAC", "TTGGCCAATT", "IIIIIIIIII", "IIIIIIIIII"},
		{"B", "ACGTTGCAAC", "TTGGCCAATT", "##########", "##########"},
		{"C", "ACGTTGCAACTT", "TTGGCCAATTTT", "IIIIIIIIIIII", "IIIIIIIIIIII"},
	}
	initial := processAll(t, d, reads)
	assert.Equal(t, "A", initial["A"])
	assert.Equal(t, "A", initial["B"])
	assert.Equal(t, "A", initial["C"])

	stats := d.Stats()
	assert.Equal(t, 3, stats.ReadsProcessed)
	assert.Equal(t, 1, stats.UniqueClusters)

	d.Finalize()
	assert.Equal(t, "C", d.FinalExemplar("A"))
	assert.Equal(t, "C", d.FinalExemplar("B"))
	assert.Equal(t, "C", d.FinalExemplar("C"))
}

func TestFirstSeenWinsTies(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	// Identical score: the earlier read keeps the cluster.
	processAll(t, d, []testRead{
		{"first", "ACGTTGCAAC", "TTGGCCAATT", "IIIIIIIIII", "IIIIIIIIII"},
		{"second", "ACGTTGCAAC", "TTGGCCAATT", "IIIIIIIIII", "IIIIIIIIII"},
	})
	d.Finalize()
	assert.Equal(t, "first", d.FinalExemplar("second"))
}

func TestOrientationSwap(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	ex := d.ProcessRead([]byte("A"), []byte("ACGTTGCAAC"), []byte("TTGGCCAATT"), nil, nil)
	require.Equal(t, "A", ex)

	// Mates swapped relative to A: still the same fragment.
	ex = d.ProcessRead([]byte("D"), []byte("TTGGCCAATT"), []byte("ACGTTGCAAC"), nil, nil)
	assert.Equal(t, "A", ex)
}

func TestOffsetTolerance(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	// The all-A k-mer keeps the window minimizer stable under small shifts,
	// so the shifted read still reaches the exemplar's bucket.
	base := "TTAAAACGGTCG"
	shift1 := base[1:] + "A"
	shift2 := base[2:] + "AA"

	require.Equal(t, "E1", d.ProcessRead([]byte("E1"), []byte(base), []byte(base), nil, nil))
	assert.Equal(t, "E1", d.ProcessRead([]byte("E2"), []byte(shift1), []byte(shift1), nil, nil))
	// A 2-base shift exceeds MaxOffset=1 and founds a new cluster.
	assert.Equal(t, "E3", d.ProcessRead([]byte("E3"), []byte(shift2), []byte(shift2), nil, nil))
}

func TestDegenerateAllN(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	// No window yields a key, so identical all-N reads never see each other.
	require.Equal(t, "N1", d.ProcessRead([]byte("N1"), []byte("NNNNNNNNNN"), []byte("NNNNNNNNNN"), nil, nil))
	require.Equal(t, "N2", d.ProcessRead([]byte("N2"), []byte("NNNNNNNNNN"), []byte("NNNNNNNNNN"), nil, nil))

	stats := d.Stats()
	assert.Equal(t, 2, stats.UniqueClusters)

	d.Finalize()
	assert.Equal(t, "N1", d.FinalExemplar("N1"))
	assert.Equal(t, "N2", d.FinalExemplar("N2"))
}

func TestIdempotence(t *testing.T) {
	reads := []testRead{
		{"A", "ACGTTGCAAC", "TTGGCCAATT", "IIIIIIIIII", "IIIIIIIIII"},
		{"B", "ACGTTGCAAC", "TTGGCCAATT", "##########", "##########"},
		{"C", "ACGTTGCAACTT", "TTGGCCAATTTT", "IIIIIIIIIIII", "IIIIIIIIIIII"},
		{"D", "TTGGCCAATT", "ACGTTGCAAC", "", ""},
		{"N1", "NNNNNNNNNN", "NNNNNNNNNN", "", ""},
		{"E1", "TTAAAACGGTCG", "TTAAAACGGTCG", "", ""},
	}
	run := func() map[string]string {
		d, err := NewDeduper(testOpts())
		require.NoError(t, err)
		defer d.Close()
		processAll(t, d, reads)
		d.Finalize()
		final := map[string]string{}
		for _, r := range reads {
			final[r.id] = d.FinalExemplar(r.id)
		}
		return final
	}
	assert.Equal(t, run(), run())
}

func TestStatsAccounting(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	processAll(t, d, []testRead{
		{"A", "ACGTTGCAAC", "TTGGCCAATT", "", ""},
		{"B", "ACGTTGCAAC", "TTGGCCAATT", "", ""},
		{"N1", "NNNNNNNNNN", "NNNNNNNNNN", "", ""},
	})
	stats := d.Stats()
	assert.Equal(t, 3, stats.ReadsProcessed)
	assert.Equal(t, 2, stats.UniqueClusters)
	// A's id and mates were copied into the scratch arena; the all-N read
	// was not.
	assert.True(t, stats.ScratchBytesUsed > 0)
	assert.True(t, stats.ResultBytesUsed > 0)

	d.Finalize()
	stats = d.Stats()
	assert.Equal(t, 0, stats.ScratchBytesUsed)
	assert.Equal(t, 2, stats.UniqueClusters)
	assert.True(t, stats.ResultBytesUsed > 0)
}

func TestOutOfPhaseCallsAreNoOps(t *testing.T) {
	d, err := NewDeduper(testOpts())
	require.NoError(t, err)
	defer d.Close()

	// Query before Finalize: permissive default, no state change.
	assert.Equal(t, "A", d.FinalExemplar("A"))

	processAll(t, d, []testRead{{"A", "ACGTTGCAAC", "TTGGCCAATT", "", ""}})
	d.Finalize()
	d.Finalize() // second call is a no-op

	// Mutation after Finalize: not counted, id returned unchanged.
	assert.Equal(t, "Z", d.ProcessRead([]byte("Z"), []byte("ACGTTGCAAC"), []byte("TTGGCCAATT"), nil, nil))
	assert.Equal(t, 1, d.Stats().ReadsProcessed)

	// Unseen ids resolve to themselves.
	assert.Equal(t, "ghost", d.FinalExemplar("ghost"))

	d.Close()
	d.Close() // idempotent
	assert.Equal(t, Stats{}, d.Stats())
}

func TestMergeStats(t *testing.T) {
	a := Stats{ReadsProcessed: 3, UniqueClusters: 2, ScratchBytesUsed: 64, ResultBytesUsed: 32}
	b := Stats{ReadsProcessed: 5, UniqueClusters: 1, ScratchBytesUsed: 8, ResultBytesUsed: 16}
	assert.Equal(t,
		Stats{ReadsProcessed: 8, UniqueClusters: 3, ScratchBytesUsed: 72, ResultBytesUsed: 48},
		a.Merge(b))
}

// Arena exhaustion mid-stream must terminate the process, so the crashing
// half runs in a re-executed test binary.
func TestArenaExhaustionFatal(t *testing.T) {
	if os.Getenv("DEDUP_ARENA_CRASH_TEST") == "1" {
		opts := testOpts()
		opts.ScratchArenaBytes = 64
		d, err := NewDeduper(opts)
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		big := strings.Repeat("ACGT", 256)
		d.ProcessRead([]byte("huge"), []byte(big), []byte(big), nil, nil)
		t.Fatal("ProcessRead returned despite an exhausted arena")
	}

	cmd := exec.Command(os.Args[0], "-test.run=TestArenaExhaustionFatal$")
	cmd.Env = append(os.Environ(), "DEDUP_ARENA_CRASH_TEST=1")
	out, err := cmd.CombinedOutput()
	exitErr, ok := err.(*exec.ExitError)
	require.True(t, ok, "expected a fatal exit, got err=%v, output:\n%s", err, out)
	assert.False(t, exitErr.Success())
	assert.Contains(t, string(out), "scratch arena exhausted")
}
