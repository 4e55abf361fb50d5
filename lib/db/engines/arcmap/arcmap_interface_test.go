package arcmap

import (
	"testing"

	"github.com/cbergmann/permafrost/lib/db"
	dbtesting "github.com/cbergmann/permafrost/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunTableTests(t, "Arcmap", func() db.Table {
		return NewArcmapTable(nil)
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunTableBenchmarks(b, "Arcmap", func() db.Table {
		return NewArcmapTable(nil)
	})
}
