package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"sitebook/internal/model"
)

const importColumns = `id, project_id, filename, status, reason_code, line_count, report_json, created_at, committed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// CreateImport 保存草稿导入记录（报告与预览明细一并保存）
func (s *Store) CreateImport(ctx context.Context, imp *model.Import) error {
	report, err := json.Marshal(imp.Report)
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	lines := imp.Lines
	if lines == nil {
		lines = []model.LineItem{}
	}
	draft, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("failed to encode draft lines: %w", err)
	}

	_, err = s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO imports (id, project_id, filename, status, reason_code, line_count, report_json, draft_lines_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), imp.ID, imp.ProjectID, imp.Filename, string(model.ImportStatusDraft), string(imp.ReasonCode),
		imp.LineCount, string(report), string(draft), formatTime(imp.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to create import: %w", err)
	}
	imp.Status = model.ImportStatusDraft
	return nil
}

// GetImport 获取导入记录（不含明细）
func (s *Store) GetImport(ctx context.Context, id string) (*model.Import, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+importColumns+` FROM imports WHERE id = ?`), id)
	imp, err := scanImport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	return imp, nil
}

// ListImports 按创建时间倒序列出导入记录，projectID 为空时不过滤
func (s *Store) ListImports(ctx context.Context, projectID string, limit int) ([]model.Import, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + importColumns + ` FROM imports`
	args := []any{}
	if projectID != "" {
		query += ` WHERE project_id = ?`
		args = append(args, projectID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list imports: %w", err)
	}
	defer rows.Close()

	out := []model.Import{}
	for rows.Next() {
		imp, err := scanImport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan import: %w", err)
		}
		out = append(out, *imp)
	}
	return out, rows.Err()
}

// ListImportLines 已提交的返回明细表数据，草稿返回预览明细
func (s *Store) ListImportLines(ctx context.Context, id string) ([]model.LineItem, error) {
	var status, draft string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT status, draft_lines_json FROM imports WHERE id = ?`), id).Scan(&status, &draft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}

	if model.ImportStatus(status) == model.ImportStatusDraft {
		lines := []model.LineItem{}
		if err := json.Unmarshal([]byte(draft), &lines); err != nil {
			return nil, fmt.Errorf("failed to decode draft lines: %w", err)
		}
		return lines, nil
	}
	return s.committedLines(ctx, id)
}

func (s *Store) committedLines(ctx context.Context, id string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT sheet_name, source_row, section_no, header_row, group_name, name, breakdown,
		       quantity, unit, unit_price, amount, note, category, category_source
		FROM import_lines WHERE import_id = ? ORDER BY line_no
	`), id)
	if err != nil {
		return nil, fmt.Errorf("failed to list import lines: %w", err)
	}
	defer rows.Close()

	lines := []model.LineItem{}
	for rows.Next() {
		var (
			l                  model.LineItem
			qty, price, amount sql.NullFloat64
			unit, note         sql.NullString
			category           string
		)
		if err := rows.Scan(&l.SheetName, &l.SourceRow, &l.Section, &l.HeaderRow, &l.Group, &l.Name, &l.Breakdown,
			&qty, &unit, &price, &amount, &note, &category, &l.CategorySource); err != nil {
			return nil, fmt.Errorf("failed to scan import line: %w", err)
		}
		l.Quantity = nullFloat(qty)
		l.UnitPrice = nullFloat(price)
		l.Amount = nullFloat(amount)
		l.Unit = nullString(unit)
		l.Note = nullString(note)
		l.Category = model.CostCategory(category)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// CommitImport 在一个事务内写入全部明细并将状态改为 committed
func (s *Store) CommitImport(ctx context.Context, id string) (*model.Import, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status, draft string
	err = tx.QueryRowContext(ctx, s.rebind(`SELECT status, draft_lines_json FROM imports WHERE id = ?`), id).Scan(&status, &draft)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get import: %w", err)
	}
	if model.ImportStatus(status) == model.ImportStatusCommitted {
		return nil, ErrAlreadyCommitted
	}

	var lines []model.LineItem
	if err := json.Unmarshal([]byte(draft), &lines); err != nil {
		return nil, fmt.Errorf("failed to decode draft lines: %w", err)
	}

	insert := s.rebind(`
		INSERT INTO import_lines (import_id, line_no, sheet_name, source_row, section_no, header_row, group_name, name,
			breakdown, quantity, unit, unit_price, amount, note, category, category_source)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for i, l := range lines {
		if _, err := tx.ExecContext(ctx, insert, id, i+1, l.SheetName, l.SourceRow, l.Section, l.HeaderRow, l.Group, l.Name,
			l.Breakdown, l.Quantity, l.Unit, l.UnitPrice, l.Amount, l.Note, string(l.Category), l.CategorySource); err != nil {
			return nil, fmt.Errorf("failed to insert line %d: %w", i+1, err)
		}
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, s.rebind(`
		UPDATE imports SET status = ?, line_count = ?, committed_at = ?
		WHERE id = ? AND status = ?
	`), string(model.ImportStatusCommitted), len(lines), formatTime(now), id, string(model.ImportStatusDraft))
	if err != nil {
		return nil, fmt.Errorf("failed to update import status: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to update import status: %w", err)
	} else if n != 1 {
		return nil, ErrAlreadyCommitted
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return s.GetImport(ctx, id)
}

func scanImport(row rowScanner) (*model.Import, error) {
	var (
		imp               model.Import
		status, reason    string
		report, createdAt string
		committedAt       sql.NullString
	)
	if err := row.Scan(&imp.ID, &imp.ProjectID, &imp.Filename, &status, &reason, &imp.LineCount,
		&report, &createdAt, &committedAt); err != nil {
		return nil, err
	}
	imp.Status = model.ImportStatus(status)
	imp.ReasonCode = model.ReasonCode(reason)
	if err := json.Unmarshal([]byte(report), &imp.Report); err != nil {
		return nil, fmt.Errorf("failed to decode report: %w", err)
	}
	imp.CreatedAt = parseTime(createdAt)
	if committedAt.Valid {
		t := parseTime(committedAt.String)
		imp.CommittedAt = &t
	}
	return &imp, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}
