package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"perfoptima-api/pkg/models"

	"github.com/xuri/excelize/v2"
)

// ErrInvalidUpload アップロードされたファイルの内容が不正
var ErrInvalidUpload = errors.New("invalid upload")

// 列名の候補（小文字・前後空白除去後に比較）
var (
	dateColumns    = []string{"date", "month", "period", "日付"}
	revenueColumns = []string{"revenue", "sales", "amount", "売上"}
	unitsColumns   = []string{"units_sold", "units", "quantity", "販売数"}
	regionColumns  = []string{"region", "地域"}
)

// 受け付ける日付フォーマット
var uploadDateLayouts = []string{
	models.DateLayout,
	"2006/01/02",
	"2006/1/2",
	"2006-1-2",
	"01/02/2006",
	"1/2/2006",
	"01-02-06",
	"1/2/06",
	"2006-01",
	"2006/01",
	time.RFC3339,
}

// ParseSalesFile CSV/XLSXファイルから売上レコードを読み込む（日付順に整列）
func ParseSalesFile(filename string, r io.Reader) ([]models.SalesRecord, error) {
	var (
		rows [][]string
		err  error
	)
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		rows, err = readCSVRows(r)
	case ".xlsx":
		rows, err = readXLSXRows(r)
	default:
		return nil, fmt.Errorf("%w: unsupported file type %q, upload a .csv or .xlsx file", ErrInvalidUpload, filepath.Ext(filename))
	}
	if err != nil {
		return nil, err
	}
	return parseSalesRows(rows)
}

func readCSVRows(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse CSV: %v", ErrInvalidUpload, err)
	}
	return rows, nil
}

func readXLSXRows(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open Excel file: %v", ErrInvalidUpload, err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read Excel sheet: %v", ErrInvalidUpload, err)
	}
	return rows, nil
}

// parseSalesRows 1行目をヘッダーとして解釈する。エラーの行番号はファイル上の行（1始まり）。
func parseSalesRows(rows [][]string) ([]models.SalesRecord, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}

	header := normalizeHeaders(rows[0])
	dateIdx := columnIndex(header, dateColumns)
	revenueIdx := columnIndex(header, revenueColumns)
	unitsIdx := columnIndex(header, unitsColumns)
	regionIdx := columnIndex(header, regionColumns)
	if dateIdx < 0 {
		return nil, fmt.Errorf("%w: row 1: missing required column %q", ErrInvalidUpload, "date")
	}
	if revenueIdx < 0 {
		return nil, fmt.Errorf("%w: row 1: missing required column %q", ErrInvalidUpload, "revenue")
	}

	records := make([]models.SalesRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		line := i + 2
		if isBlankRow(row) {
			continue
		}

		date, ok := parseSalesDate(cell(row, dateIdx))
		if !ok {
			return nil, fmt.Errorf("%w: row %d: invalid date %q", ErrInvalidUpload, line, cell(row, dateIdx))
		}
		revenue, err := parseAmount(cell(row, revenueIdx))
		if err != nil {
			return nil, fmt.Errorf("%w: row %d: invalid revenue %q", ErrInvalidUpload, line, cell(row, revenueIdx))
		}
		if revenue < 0 {
			return nil, fmt.Errorf("%w: row %d: revenue must not be negative", ErrInvalidUpload, line)
		}

		units := UnitsForRevenue(revenue)
		if raw := cell(row, unitsIdx); raw != "" {
			u, err := parseAmount(raw)
			if err != nil || u < 0 {
				return nil, fmt.Errorf("%w: row %d: invalid units_sold %q", ErrInvalidUpload, line, raw)
			}
			units = int(math.Floor(u))
		}

		region := cell(row, regionIdx)
		if region == "" {
			region = models.DefaultRegion
		}

		records = append(records, models.SalesRecord{
			Date:      date,
			Revenue:   revenue,
			UnitsSold: units,
			Region:    region,
		})
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("%w: file needs a header row and at least one data row", ErrInvalidUpload)
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Date.Before(records[j].Date.Time)
	})
	return records, nil
}

// normalizeHeaders BOMを除去し、前後空白を取り除いて小文字化
func normalizeHeaders(hdr []string) []string {
	out := make([]string, len(hdr))
	for i, v := range hdr {
		v = strings.TrimPrefix(v, "\ufeff")
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func columnIndex(hdr []string, candidates []string) int {
	for _, c := range candidates {
		for i, v := range hdr {
			if v == c {
				return i
			}
		}
	}
	return -1
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func isBlankRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// parseSalesDate 複数のフォーマットとExcelのシリアル値を受け付ける
func parseSalesDate(s string) (models.Date, bool) {
	if s == "" {
		return models.Date{}, false
	}
	for _, layout := range uploadDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return models.NewDate(t), true
		}
	}
	// 時刻付きの場合は日付部分のみ
	if i := strings.IndexAny(s, " T"); i > 0 {
		for _, layout := range uploadDateLayouts {
			if t, err := time.Parse(layout, s[:i]); err == nil {
				return models.NewDate(t), true
			}
		}
	}
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 0 {
		if t, err := excelize.ExcelDateToTime(serial, false); err == nil {
			return models.NewDate(t), true
		}
	}
	return models.Date{}, false
}

// parseAmount "¥35,000" や "$1,200.50" のような表記から数値を取り出す
func parseAmount(s string) (float64, error) {
	b := make([]rune, 0, len(s))
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b = append(b, r)
		}
	}
	if len(b) == 0 {
		return 0, fmt.Errorf("no digits in %q", s)
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
