// Package export writes Excel snapshots of task state and dead-letter
// items for manual review outside the sync surfaces.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tasksync/internal/domain"

	"github.com/xuri/excelize/v2"
)

type Exporter struct {
	path  string
	store domain.Store
	queue domain.ChangeQueue
}

func NewExporter(path string, store domain.Store, queue domain.ChangeQueue) *Exporter {
	return &Exporter{path: path, store: store, queue: queue}
}

// WriteReport creates an .xlsx with a sheet of tasks and a sheet of
// dead-letter items, returning the file path.
func (e *Exporter) WriteReport(ctx context.Context) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %w", err)
	}

	tasks, err := e.store.ListTasks(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing tasks: %w", err)
	}
	deadLetters, err := e.queue.DeadLetters(ctx)
	if err != nil {
		return "", fmt.Errorf("error listing dead letters: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const tasksSheet = "Tasks"
	index, err := f.NewSheet(tasksSheet)
	if err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	taskHeaders := []string{"ID", "Title", "Priority", "Status", "Sync status", "Source", "Updated at"}
	for i, h := range taskHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(tasksSheet, cell, h)
	}
	for row, task := range tasks {
		values := []any{task.ID, task.Title, task.Priority, task.Status, task.SyncStatus, task.Source, task.UpdatedAt.Format(time.RFC3339)}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(tasksSheet, cell, v)
		}
	}
	_ = f.SetColWidth(tasksSheet, "A", "A", 38)
	_ = f.SetColWidth(tasksSheet, "B", "G", 20)

	const deadSheet = "Dead letters"
	if _, err := f.NewSheet(deadSheet); err != nil {
		return "", fmt.Errorf("error creating sheet: %w", err)
	}
	deadHeaders := []string{"ID", "Type", "Attempts", "Last error", "Enqueued at", "Payload"}
	for i, h := range deadHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(deadSheet, cell, h)
	}
	for row, item := range deadLetters {
		lastErr := ""
		if item.LastError != nil {
			lastErr = *item.LastError
		}
		values := []any{item.ID, item.Type, item.Attempts, lastErr, item.EnqueuedAt.Format(time.RFC3339), item.Payload}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(deadSheet, cell, v)
		}
	}
	_ = f.SetColWidth(deadSheet, "A", "F", 24)

	// The default sheet excelize creates is unused.
	_ = f.DeleteSheet("Sheet1")

	name := fmt.Sprintf("tasksync_report_%s.xlsx", time.Now().Format("20060102_150405"))
	fullPath := filepath.Join(e.path, name)
	if err := f.SaveAs(fullPath); err != nil {
		return "", fmt.Errorf("error saving export: %w", err)
	}
	return fullPath, nil
}
