package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Export file names expected by the admin client
const (
	SubmissionExportFile = "payment_submissions_export.xlsx"
	BatchExportFile      = "payment_submission_batches_export.xlsx"
	SettlementExportFile = "settlement_batches_export.xlsx"

	SpreadsheetContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	exportLimit = 50000
)

// ExportService spreadsheet exports of filtered lists
type ExportService struct {
	deps   Deps
	logger *zap.Logger
}

// Export generated workbook
type Export struct {
	Filename string
	Data     []byte
}

var submissionHeaders = []string{"Code", "Order ID", "Shipper ID", "Batch ID", "System Amount", "Actual Amount", "Difference", "Status", "Paid At", "Checked At", "Checked By", "Notes"}

func (s *ExportService) Submissions(ctx context.Context, filters map[string]string) (*Export, error) {
	start := time.Now()
	items, err := s.deps.Repos.Submission.FindForExport(ctx, filters, exportLimit)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, []interface{}{
			it.Code, it.OrderID, it.ShipperID, optionalID(it.BatchID),
			money(it.SystemAmount), money(it.ActualAmount), money(it.Difference()),
			it.Status, formatTime(&it.PaidAt), formatTime(it.CheckedAt), optionalString(it.CheckedBy), it.Notes,
		})
	}
	return s.finish(ctx, "submissions", SubmissionExportFile, "Submissions", submissionHeaders, rows, start)
}

var batchHeaders = []string{"Code", "Shipper ID", "Declared Amount", "Total System Amount", "Total Actual Amount", "Total Orders", "Status", "Checked At", "Checked By", "Created By", "Created At", "Notes"}

func (s *ExportService) Batches(ctx context.Context, filters map[string]string) (*Export, error) {
	start := time.Now()
	items, err := s.deps.Repos.Batch.FindForExport(ctx, filters, exportLimit)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, []interface{}{
			it.Code, it.ShipperID, money(it.DeclaredAmount), money(it.TotalSystemAmount), money(it.TotalActualAmount),
			it.TotalOrders, it.Status, formatTime(it.CheckedAt), optionalString(it.CheckedBy), it.CreatedBy,
			formatTime(&it.CreatedAt), it.Notes,
		})
	}
	return s.finish(ctx, "batches", BatchExportFile, "Batches", batchHeaders, rows, start)
}

var settlementHeaders = []string{"Code", "Shop ID", "Balance Amount", "Paid Amount", "Remain Amount", "Status", "Period Start", "Period End", "Created At", "Updated At"}

func (s *ExportService) Settlements(ctx context.Context, filters map[string]string) (*Export, error) {
	start := time.Now()
	items, err := s.deps.Repos.Settlement.FindForExport(ctx, filters, exportLimit)
	if err != nil {
		return nil, err
	}

	rows := make([][]interface{}, 0, len(items))
	for _, it := range items {
		rows = append(rows, []interface{}{
			it.Code, it.ShopID, money(it.BalanceAmount), money(it.PaidAmount()), money(it.RemainAmount), it.Status,
			formatDate(it.PeriodStart), formatDate(it.PeriodEnd), formatTime(&it.CreatedAt), formatTime(&it.UpdatedAt),
		})
	}
	return s.finish(ctx, "settlements", SettlementExportFile, "Settlements", settlementHeaders, rows, start)
}

func (s *ExportService) finish(ctx context.Context, kind, filename, sheet string, headers []string, rows [][]interface{}, start time.Time) (*Export, error) {
	data, err := buildWorkbook(sheet, headers, rows)
	if err != nil {
		return nil, fmt.Errorf("build %s export: %w", kind, err)
	}
	s.deps.Metrics.ExportDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	if s.deps.Archiver != nil {
		object := fmt.Sprintf("exports/%s/%s_%s", kind, s.deps.Now().Format("20060102_150405"), filename)
		if path, err := s.deps.Archiver.Put(ctx, object, data, SpreadsheetContentType); err != nil {
			s.logger.Error("archive export failed", zap.String("object", object), zap.Error(err))
		} else {
			s.logger.Debug("export archived", zap.String("path", path))
		}
	}
	s.logger.Info("export generated", zap.String("kind", kind), zap.Int("rows", len(rows)))
	return &Export{Filename: filename, Data: data}, nil
}

func buildWorkbook(sheet string, headers []string, rows [][]interface{}) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	f.SetSheetName("Sheet1", sheet)

	boldStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, boldStyle)
		f.SetColWidth(sheet, col, col, 18)
	}
	for r, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return nil, err
		}
	}
	if len(rows) > 0 {
		f.SetPanes(sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

func optionalID(id *uint64) interface{} {
	if id == nil {
		return ""
	}
	return *id
}

func optionalString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
