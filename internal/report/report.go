// Package report exports course progress as an xlsx workbook.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-learn/internal/certificate"
	"github.com/p-n-ai/pai-learn/internal/course"
	"github.com/p-n-ai/pai-learn/internal/learner"
	"github.com/p-n-ai/pai-learn/internal/progression"
)

const (
	SummarySheet  = "Summary"
	ProgressSheet = "Progress"
)

// Source provides the learner data of a course.
type Source interface {
	Enrollments(ctx context.Context, courseID string) ([]learner.Enrollment, error)
	State(ctx context.Context, learnerID, courseID string) (progression.State, error)
	Certificate(ctx context.Context, learnerID, courseID string) (certificate.Certificate, bool, error)
}

var (
	summaryHeader  = []any{"Learner", "Enrolled At", "Progress %", "Completed", "Certificate Serial", "Issued At"}
	progressHeader = []any{"Learner", "Module", "Title", "Required", "Locked", "Completed", "Progress %", "Time Spent (s)"}
)

// Build creates a workbook with one summary row per enrolled learner and one progress
// row per learner and module. The caller must close the returned file.
func Build(ctx context.Context, src Source, c *course.Course) (*excelize.File, error) {
	enrollments, err := src.Enrollments(ctx, c.ID)
	if err != nil {
		return nil, fmt.Errorf("loading enrollments: %w", err)
	}

	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		f.Close()
		return nil, err
	}
	if _, err := f.NewSheet(ProgressSheet); err != nil {
		f.Close()
		return nil, err
	}

	w := &sheetWriter{f: f}
	w.row(SummarySheet, 1, summaryHeader)
	w.row(ProgressSheet, 1, progressHeader)

	summaryRow, progressRow := 2, 2
	for _, e := range enrollments {
		st, err := src.State(ctx, e.LearnerID, c.ID)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("state for %s: %w", e.LearnerID, err)
		}
		cert, issued, err := src.Certificate(ctx, e.LearnerID, c.ID)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("certificate for %s: %w", e.LearnerID, err)
		}

		serial, issuedAt := "", ""
		if issued {
			serial, issuedAt = cert.Serial, cert.IssuedAt.UTC().Format(time.RFC3339)
		}
		w.row(SummarySheet, summaryRow, []any{
			e.LearnerID,
			e.EnrolledAt.UTC().Format(time.RFC3339),
			st.Progress,
			st.Completed,
			serial,
			issuedAt,
		})
		summaryRow++

		for _, id := range st.ModuleIDs {
			m := st.Modules[id]
			spent := 0
			for _, nid := range m.NodeIDs {
				spent += st.Nodes[nid].TimeSpent
			}
			w.row(ProgressSheet, progressRow, []any{
				e.LearnerID, m.ID, m.Title, m.IsRequired, m.IsLocked, m.IsCompleted, m.Progress, spent,
			})
			progressRow++
		}
	}
	if w.err != nil {
		f.Close()
		return nil, w.err
	}
	return f, nil
}

// Write builds the workbook and writes it to out.
func Write(ctx context.Context, out io.Writer, src Source, c *course.Course) error {
	f, err := Build(ctx, src, c)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.WriteTo(out); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}

type sheetWriter struct {
	f   *excelize.File
	err error
}

func (w *sheetWriter) row(sheet string, n int, values []any) {
	if w.err != nil {
		return
	}
	cell, err := excelize.CoordinatesToCellName(1, n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(sheet, cell, &values); err != nil {
		w.err = fmt.Errorf("writing %s row %d: %w", sheet, n, err)
	}
}
