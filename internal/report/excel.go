package report

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/Spok95/milk-pool/internal/domain/pool"
)

const timeFormat = "2006-01-02 15:04:05"

// BookExcel renders an archived pool book as an xlsx workbook: a Summary
// sheet plus the ordered Collections and Usage histories.
func BookExcel(b *pool.Book) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	summary := f.GetSheetName(f.GetActiveSheetIndex())
	if err := f.SetSheetName(summary, "Summary"); err != nil {
		return nil, err
	}
	if err := writeSummary(f, b); err != nil {
		return nil, err
	}
	if err := writeCollections(f, b.Additions); err != nil {
		return nil, err
	}
	if err := writeUsage(f, b.Withdrawals); err != nil {
		return nil, err
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSummary(f *excelize.File, b *pool.Book) error {
	rows := [][]interface{}{
		{"book_id", b.ID},
		{"pool", b.PoolName},
		{"archived_at", b.ArchivedAt.Format(timeFormat)},
		{"opening_liters", b.OpeningLiters},
		{"opening_fat_units", b.OpeningFatUnits},
		{"opening_snf_units", b.OpeningSnfUnits},
		{"original_avg_fat", b.OriginalAvgFat},
		{"original_avg_snf", b.OriginalAvgSnf},
		{"closing_liters", b.ClosingLiters},
		{"closing_fat_units", b.ClosingFatUnits},
		{"closing_snf_units", b.ClosingSnfUnits},
		{"closing_avg_fat", b.ClosingAvgFat},
		{"closing_avg_snf", b.ClosingAvgSnf},
		{"total_used_liters", b.TotalUsedLiters},
		{"additions_count", b.AdditionsCount},
		{"withdrawals_count", b.WithdrawalsCount},
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		row := r
		if err := f.SetSheetRow("Summary", cell, &row); err != nil {
			return err
		}
	}
	return nil
}

func writeCollections(f *excelize.File, adds []pool.Addition) error {
	if _, err := f.NewSheet("Collections"); err != nil {
		return err
	}
	header := []interface{}{
		"id", "collection_id", "supplier", "liters", "fat_percent", "snf_percent",
		"fat_units", "snf_units", "avg_fat_after", "avg_snf_after", "added_at",
	}
	if err := f.SetSheetRow("Collections", "A1", &header); err != nil {
		return err
	}
	row := 2
	for _, a := range adds {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		excelRow := []interface{}{
			a.ID, a.CollectionID, a.Supplier, a.Liters, a.FatPercent, a.SnfPercent,
			a.FatUnits, a.SnfUnits, a.AvgFatAfter, a.AvgSnfAfter, a.CreatedAt.Format(timeFormat),
		}
		if err := f.SetSheetRow("Collections", cell, &excelRow); err != nil {
			return err
		}
		row++
	}
	return nil
}

func writeUsage(f *excelize.File, uses []pool.Withdrawal) error {
	if _, err := f.NewSheet("Usage"); err != nil {
		return err
	}
	header := []interface{}{
		"id", "used_liters", "manual_fat_percent", "manual_snf_percent",
		"used_fat_units", "used_snf_units",
		"remaining_liters_after", "avg_fat_after", "avg_snf_after",
		"purpose", "used_at",
	}
	if err := f.SetSheetRow("Usage", "A1", &header); err != nil {
		return err
	}
	row := 2
	for _, w := range uses {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		excelRow := []interface{}{
			w.ID, w.UsedLiters, w.ManualFatPercent, w.ManualSnfPercent,
			w.UsedFatUnits, w.UsedSnfUnits,
			w.RemainingLitersAfter, w.AvgFatAfter, w.AvgSnfAfter,
			w.Purpose, w.CreatedAt.Format(timeFormat),
		}
		if err := f.SetSheetRow("Usage", cell, &excelRow); err != nil {
			return err
		}
		row++
	}
	return nil
}
