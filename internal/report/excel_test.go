package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/milk-pool/internal/domain/pool"
)

func TestBookExcel(t *testing.T) {
	archived := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	b := &pool.Book{
		ID:       3,
		PoolID:   7,
		PoolName: "Milk Pool 2026-08-01 06:00",

		OpeningLiters:   100,
		OpeningFatUnits: 400,
		OpeningSnfUnits: 850,
		OriginalAvgFat:  4.0,
		OriginalAvgSnf:  8.5,

		ClosingLiters:   70,
		ClosingFatUnits: 250,
		ClosingSnfUnits: 610,
		ClosingAvgFat:   250.0 / 70.0,
		ClosingAvgSnf:   610.0 / 70.0,

		TotalUsedLiters:  30,
		AdditionsCount:   1,
		WithdrawalsCount: 1,
		ArchivedAt:       archived,

		Additions: []pool.Addition{{
			ID: 1, PoolID: 7, CollectionID: 12, Supplier: "Ramesh",
			Liters: 100, FatPercent: 4.0, SnfPercent: 8.5,
			FatUnits: 400, SnfUnits: 850, AvgFatAfter: 4.0, AvgSnfAfter: 8.5,
			CreatedAt: archived.Add(-48 * time.Hour),
		}},
		Withdrawals: []pool.Withdrawal{{
			ID: 1, PoolID: 7, UsedLiters: 30,
			ManualFatPercent: 5.0, ManualSnfPercent: 8.0,
			UsedFatUnits: 150, UsedSnfUnits: 240,
			RemainingLitersAfter: 70, RemainingFatUnitsAfter: 250, RemainingSnfUnitsAfter: 610,
			AvgFatAfter: 250.0 / 70.0, AvgSnfAfter: 610.0 / 70.0,
			Purpose:   "paneer batch",
			CreatedAt: archived.Add(-24 * time.Hour),
		}},
	}

	data, err := BookExcel(b)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	assert.ElementsMatch(t, []string{"Summary", "Collections", "Usage"}, f.GetSheetList())

	name, err := f.GetCellValue("Summary", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Milk Pool 2026-08-01 06:00", name)
	closing, err := f.GetCellValue("Summary", "B9")
	require.NoError(t, err)
	assert.Equal(t, "70", closing)

	supplier, err := f.GetCellValue("Collections", "C2")
	require.NoError(t, err)
	assert.Equal(t, "Ramesh", supplier)

	purpose, err := f.GetCellValue("Usage", "J2")
	require.NoError(t, err)
	assert.Equal(t, "paneer batch", purpose)
}

func TestBookExcelEmptyHistory(t *testing.T) {
	data, err := BookExcel(&pool.Book{ID: 1, PoolName: "empty"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()

	rows, err := f.GetRows("Usage")
	require.NoError(t, err)
	assert.Len(t, rows, 1) // header only
}
