package watcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(rs []Record) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.Field("KCH"))
	}
	return out
}

func TestDetectorSeedSuppressesBaseline(t *testing.T) {
	d := NewDetector("KCH")
	seen := NewSeenSet()

	n := d.Seed(records("101", "102"), seen)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"101", "102"}, seen.Sorted())

	fresh, unchanged := d.Partition(records("101", "102"), seen)
	assert.Empty(t, fresh)
	assert.Len(t, unchanged, 2)
}

func TestDetectorPartitionReportsOnlyUnseen(t *testing.T) {
	d := NewDetector("KCH")
	seen := NewSeenSet()
	seen.Add("101")
	seen.Add("102")

	fresh, unchanged := d.Partition(records("103", "101", "104", "102"), seen)
	assert.Equal(t, []string{"103", "104"}, ids(fresh), "order follows input")
	assert.Equal(t, []string{"101", "102"}, ids(unchanged))
	assert.Equal(t, []string{"101", "102", "103", "104"}, seen.Sorted())

	again, _ := d.Partition(records("103", "101", "104", "102"), seen)
	assert.Empty(t, again, "same list twice yields nothing new")
}

func TestDetectorSkipsEmptyIdentity(t *testing.T) {
	d := NewDetector("KCH")
	seen := NewSeenSet()
	rs := []Record{
		NewRecord(map[string]string{"KCH": ""}),
		NewRecord(map[string]string{"KCH": "   "}),
		NewRecord(map[string]string{"KCM": "no code"}),
	}

	for i := 0; i < 3; i++ {
		fresh, unchanged := d.Partition(rs, seen)
		require.Empty(t, fresh)
		require.Empty(t, unchanged)
	}
	assert.Zero(t, seen.Len())
	assert.Zero(t, d.Seed(rs, seen))
}

func TestDetectorIgnoresRevisionsOfSeenIdentity(t *testing.T) {
	d := NewDetector("KCH")
	seen := NewSeenSet()
	d.Seed([]Record{NewRecord(map[string]string{"KCH": "101", "ZCJ": "80"})}, seen)

	fresh, unchanged := d.Partition([]Record{NewRecord(map[string]string{"KCH": "101", "ZCJ": "95"})}, seen)
	assert.Empty(t, fresh)
	require.Len(t, unchanged, 1)
	assert.Equal(t, "95", unchanged[0].Field("ZCJ"))
}

func TestDetectorDuplicateWithinOneFetch(t *testing.T) {
	d := NewDetector("KCH")
	seen := NewSeenSet()

	fresh, unchanged := d.Partition(records("105", "105"), seen)
	assert.Equal(t, []string{"105"}, ids(fresh))
	assert.Equal(t, []string{"105"}, ids(unchanged))
}

func TestIdentityTrimsWhitespace(t *testing.T) {
	r := NewRecord(map[string]string{"KCH": " 00010 "})
	assert.Equal(t, "00010", Identity(r, "KCH"))
	assert.Equal(t, "", Identity(r, "missing"))
}

func TestRecordIsImmutable(t *testing.T) {
	src := map[string]string{"KCH": "1"}
	r := NewRecord(src)
	src["KCH"] = "2"
	r.Fields()["KCH"] = "3"
	assert.Equal(t, "1", r.Field("KCH"))
}
