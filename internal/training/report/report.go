// Package report renders a training session's results as an XLSX workbook,
// the audit artifact handed to compliance reviewers.
package report

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/artioladoli/security-awareness-training/internal/catalog"
	"github.com/artioladoli/security-awareness-training/internal/training"
)

const sheetName = "Training Results"

var headers = []string{"Topic", "Required Score", "Score", "Passed", "Completed At"}

// WriteSession writes one row per assigned topic plus a summary row.
func WriteSession(w io.Writer, user catalog.User, status *training.SessionStatus) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	meta := [][]any{
		{"Learner", user.Name},
		{"Email", user.Email},
		{"Session", status.Session.ID},
		{"Started", status.Session.StartedAt.Format("2006-01-02 15:04")},
	}
	if status.Session.CompletedAt != nil {
		meta = append(meta, []any{"Completed", status.Session.CompletedAt.Format("2006-01-02 15:04")})
	} else {
		meta = append(meta, []any{"Completed", "in progress"})
	}
	row := 1
	for _, kv := range meta {
		if err := setRow(f, row, kv); err != nil {
			return err
		}
		row++
	}

	row++ // blank separator
	if err := setRow(f, row, toAny(headers)); err != nil {
		return err
	}
	row++

	for _, ts := range status.Topics {
		cells := []any{ts.Topic.Name, ts.Topic.RequiredScore}
		if ts.Attempted {
			cells = append(cells, ts.Score, passLabel(ts.Passed), ts.CompletedAt.Format("2006-01-02 15:04"))
		} else {
			cells = append(cells, "-", "not attempted", "-")
		}
		if err := setRow(f, row, cells); err != nil {
			return err
		}
		row++
	}

	row++
	overall := "INCOMPLETE"
	if status.AllPassed {
		overall = "COMPLETE"
	}
	if err := setRow(f, row, []any{"Overall", overall}); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, cells []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("cell name for row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("setting row %d: %w", row, err)
	}
	return nil
}

func passLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
