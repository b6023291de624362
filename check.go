package kvdir

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/hupe1980/kvdir/kv"
)

// CheckReport describes how the catalog and the data region agree.
type CheckReport struct {
	// Files is the number of catalog entries.
	Files int
	// OrphanData lists file ids that have content records but no catalog
	// entry, in ascending order.
	OrphanData []int64
	// DanglingEntries lists catalog names whose file id has no content
	// records.
	DanglingEntries []string
}

// OK reports whether no inconsistency was found.
func (r *CheckReport) OK() bool {
	return len(r.OrphanData) == 0 && len(r.DanglingEntries) == 0
}

// Check cross-references the catalog with the data region.
//
// The data region is walked one file id at a time so the scan reads a single
// record per file regardless of file size.
func (d *Directory) Check(ctx context.Context) (*CheckReport, error) {
	var report *CheckReport
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		var err error
		report, err = d.check(ctx, tr)
		return err
	})
	d.logger.LogCheck(ctx, report, err)
	if err != nil {
		return nil, err
	}
	return report, nil
}

// ClearOrphans removes content records that no catalog entry refers to and
// returns the cleared file ids.
func (d *Directory) ClearOrphans(ctx context.Context) ([]int64, error) {
	var cleared []int64
	err := d.t.Transact(ctx, func(tr kv.Transaction) error {
		report, err := d.check(ctx, tr)
		if err != nil {
			return err
		}
		for _, id := range report.OrphanData {
			d.chunks.clear(tr, id)
		}
		cleared = report.OrphanData
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cleared, nil
}

func (d *Directory) check(ctx context.Context, tr kv.Transaction) (*CheckReport, error) {
	entries, err := d.catalog.entries(ctx, tr)
	if err != nil {
		return nil, err
	}
	cataloged := roaring64.New()
	for _, e := range entries {
		cataloged.Add(uint64(e.id))
	}

	stored := roaring64.New()
	var from int64
	for {
		id, ok, err := d.chunks.nextID(ctx, tr, from)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		stored.Add(uint64(id))
		from = id + 1
	}

	report := &CheckReport{Files: len(entries)}
	orphans := roaring64.AndNot(stored, cataloged)
	it := orphans.Iterator()
	for it.HasNext() {
		report.OrphanData = append(report.OrphanData, int64(it.Next()))
	}
	for _, e := range entries {
		if !stored.Contains(uint64(e.id)) {
			report.DanglingEntries = append(report.DanglingEntries, e.name)
		}
	}
	return report, nil
}
