package sync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var exportColumns = []string{"Date", "Action", "Status", "Message", "User", "Details"}

// ExportLogs renders a form's sync history as an xlsx workbook.
func (s *SyncServiceImpl) ExportLogs(ctx context.Context, formID string, limit int64) ([]byte, string, error) {
	f, err := s.FormRepo.Get(ctx, formID)
	if err != nil {
		return nil, "", err
	}
	logs, err := s.LogRepo.ListByForm(ctx, f.ID, limit)
	if err != nil {
		return nil, "", err
	}

	xl := excelize.NewFile()
	defer xl.Close()

	sheetName := "Sync Logs"
	index, err := xl.NewSheet(sheetName)
	if err != nil {
		return nil, "", err
	}
	xl.SetActiveSheet(index)
	xl.DeleteSheet("Sheet1")

	headerStyle, _ := xl.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	for i, col := range exportColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		xl.SetCellValue(sheetName, cell, col)
		xl.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for rowIdx, entry := range logs {
		details := ""
		if len(entry.Details) > 0 {
			if raw, err := json.Marshal(entry.Details); err == nil {
				details = string(raw)
			}
		}
		values := []interface{}{
			entry.CreatedAt.Format("2006-01-02 15:04:05"),
			string(entry.Action),
			string(entry.Status),
			entry.Message,
			entry.UserID,
			details,
		}
		for colIdx, val := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			xl.SetCellValue(sheetName, cell, val)
		}
	}

	for i := range exportColumns {
		col, _ := excelize.ColumnNumberToName(i + 1)
		xl.SetColWidth(sheetName, col, col, 20)
	}

	buffer, err := xl.WriteToBuffer()
	if err != nil {
		return nil, "", err
	}

	filename := fmt.Sprintf("sync_logs_%s.xlsx", f.KoboUID)
	return buffer.Bytes(), filename, nil
}
