// Package mysql implements the plugin.Plugin interface (C9) for MySQL,
// generalizing internal/dialect/mysql from a diff-driven generator into a
// transition.Step-driven one.
package mysql

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"strings"

	tidbparser "github.com/pingcap/tidb/pkg/parser"
	"github.com/pingcap/tidb/pkg/parser/format"
	_ "github.com/pingcap/tidb/pkg/parser/test_driver"

	"github.com/betagors/yama/internal/collateral"
	"github.com/betagors/yama/internal/plugin"
	"github.com/betagors/yama/internal/transition"
)

// advisoryLockTimeoutSeconds bounds how long GET_LOCK waits before giving
// up, so a dead session holding the lock can't wedge Apply forever.
const advisoryLockTimeoutSeconds = 10

// Plugin is the MySQL implementation of plugin.Plugin. It holds a TiDB
// SQL parser instance (reused across calls, same as apply.StatementAnalyzer)
// purely for checksum canonicalization; it carries no connection state.
type Plugin struct {
	caps   plugin.Capabilities
	parser *tidbparser.Parser
}

// New returns a MySQL plugin with its full native capability set.
func New() *Plugin {
	return &Plugin{parser: tidbparser.New(), caps: plugin.Capabilities{
		AddTable:             true,
		DropTable:            true,
		AddColumn:            true,
		DropColumn:           true,
		ModifyColumnType:     true,
		ModifyColumnNullable: true,
		ModifyColumnDefault:  true,
		RenameColumn:         true,
		AddIndex:             true,
		DropIndex:            true,
		ForeignKeys:          true,
		TransactionalDDL:     false, // MySQL DDL auto-commits; no transactional wrap around it.
		ShadowColumns:        true,
		ConcurrentIndexes:    false,
		OnlineDDL:            false,
	}}
}

// Capabilities implements plugin.Plugin.
func (p *Plugin) Capabilities() plugin.Capabilities {
	return p.caps
}

// GenerateStepSQL implements plugin.Plugin.
func (p *Plugin) GenerateStepSQL(step transition.Step) ([]string, bool) {
	if !p.caps.Supports(step) {
		return nil, false
	}
	switch step.Kind {
	case transition.AddTable:
		return []string{generateCreateTable(step.Table, step.Columns)}, true
	case transition.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s;", quoteIdentifier(step.Table))}, true
	case transition.CopyTable:
		return []string{fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s;", quoteIdentifier(step.NewName), quoteIdentifier(step.Table))}, true
	case transition.AddColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s;", quoteIdentifier(step.Table), columnDefinition(step.ColDef))}, true
	case transition.DropColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s;", quoteIdentifier(step.Table), quoteIdentifier(step.Column))}, true
	case transition.ModifyColumn:
		return generateModifyColumn(step), true
	case transition.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", quoteIdentifier(step.Table), quoteIdentifier(step.Column), quoteIdentifier(step.NewName))}, true
	case transition.AddIndex:
		return []string{createIndex(step.Table, step.Index)}, true
	case transition.DropIndex:
		return []string{fmt.Sprintf("DROP INDEX %s ON %s;", quoteIdentifier(step.Index.Name), quoteIdentifier(step.Table))}, true
	case transition.AddForeignKey:
		return []string{addForeignKey(step.Table, step.ForeignKey)}, true
	case transition.DropForeignKey:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s;", quoteIdentifier(step.Table), quoteIdentifier(step.ForeignKey.Name))}, true
	default:
		return nil, false
	}
}

// ShadowStepSQL generates the rename-instead-of-drop substitution for a
// drop_column step when policy and capability both permit it: the column
// is renamed to the shadow name rather than dropped, and the returned
// ShadowColumn is the metadata for the caller to hand to a
// collateral.Recorder.
func (p *Plugin) ShadowStepSQL(step transition.Step, snapshot, snapshotPrefix, createdAt string) (stmt string, shadow collateral.ShadowColumn, err error) {
	if step.Kind != transition.DropColumn {
		return "", collateral.ShadowColumn{}, fmt.Errorf("mysql: ShadowStepSQL only applies to drop_column steps")
	}
	shadow, err = collateral.NewShadowColumn(step.Table, step.Column, snapshot, snapshotPrefix, createdAt, 0)
	if err != nil {
		return "", collateral.ShadowColumn{}, err
	}
	stmt = fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s;", quoteIdentifier(step.Table), quoteIdentifier(step.Column), quoteIdentifier(shadow.Column))
	return stmt, shadow, nil
}

// DataSnapshotStepSQL generates the physical table-copy statement a
// drop_table is staged behind, per spec.md §4.8: `{table}_before_{snapshotPrefix}`
// holds a full row copy so the data stays queryable after the drop. The
// returned DataSnapshot is the metadata for the caller to hand to a
// collateral.Recorder.
func (p *Plugin) DataSnapshotStepSQL(step transition.Step, snapshot, snapshotPrefix, createdAt string) (stmt string, snap collateral.DataSnapshot, err error) {
	if step.Kind != transition.DropTable {
		return "", collateral.DataSnapshot{}, fmt.Errorf("mysql: DataSnapshotStepSQL only applies to drop_table steps")
	}
	snap, err = collateral.NewDataSnapshot(step.Table, snapshot, snapshotPrefix, createdAt, 0)
	if err != nil {
		return "", collateral.DataSnapshot{}, err
	}
	stmt = fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s;", quoteIdentifier(snap.CopyTable), quoteIdentifier(step.Table))
	return stmt, snap, nil
}

// AdvisoryLock acquires a session-scoped MySQL advisory lock named name
// via GET_LOCK, enforcing spec.md §5's "two appliers targeting the same
// environment must not run concurrently" invariant. The returned unlock
// releases it via RELEASE_LOCK; the caller must call it on every exit
// path from Apply.
func (p *Plugin) AdvisoryLock(ctx context.Context, db *sql.DB, name string) (unlock func(context.Context) error, err error) {
	var acquired int
	row := db.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", name, advisoryLockTimeoutSeconds)
	if err := row.Scan(&acquired); err != nil {
		return nil, fmt.Errorf("mysql: GET_LOCK(%q): %w", name, err)
	}
	if acquired != 1 {
		return nil, fmt.Errorf("mysql: GET_LOCK(%q): lock held by another session", name)
	}
	unlock = func(ctx context.Context) error {
		var released int
		row := db.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", name)
		if err := row.Scan(&released); err != nil {
			return fmt.Errorf("mysql: RELEASE_LOCK(%q): %w", name, err)
		}
		return nil
	}
	return unlock, nil
}

// GenerateSQL implements plugin.Plugin.
func (p *Plugin) GenerateSQL(steps []transition.Step) (plugin.Plan, error) {
	var all []string
	for _, s := range steps {
		stmts, ok := p.GenerateStepSQL(s)
		if !ok {
			return plugin.Plan{}, fmt.Errorf("mysql: step %q on %s.%s is unsupported by this plugin's capabilities", s.Kind, s.Table, s.Column)
		}
		all = append(all, stmts...)
	}
	return plugin.Plan{Statements: all, Checksum: p.Checksum(all)}, nil
}

// TrackingTableDDL implements plugin.Plugin, per spec.md §6.2.
func (p *Plugin) TrackingTableDDL() string {
	return strings.TrimSpace(`
CREATE TABLE IF NOT EXISTS ` + "`_yama_migrations`" + ` (
  ` + "`id`" + ` BIGINT AUTO_INCREMENT PRIMARY KEY,
  ` + "`name`" + ` VARCHAR(255) NOT NULL UNIQUE,
  ` + "`type`" + ` VARCHAR(50) NOT NULL DEFAULT 'schema',
  ` + "`from_model_hash`" + ` VARCHAR(64),
  ` + "`to_model_hash`" + ` VARCHAR(64),
  ` + "`checksum`" + ` VARCHAR(64),
  ` + "`description`" + ` TEXT,
  ` + "`applied_at`" + ` TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);`) + "\n"
}

// Checksum implements plugin.Plugin: SHA-256 over the newline-joined,
// parser-canonicalized statement list, so the checksum stays stable
// across cosmetic differences (whitespace, quoting style) between
// generator runs that don't change the statement's meaning.
func (p *Plugin) Checksum(stmts []string) string {
	normalized := p.canonicalize(stmts)
	sum := sha256.Sum256([]byte(strings.Join(normalized, "\n")))
	return hex.EncodeToString(sum[:])
}

// canonicalize re-renders each statement through the TiDB parser's AST
// restore path, the same round-trip apply.Applier.splitStatementsUsingTiDBParser
// uses to normalize SQL text. A statement the parser can't handle (e.g. a
// MySQL syntax TiDB's grammar doesn't cover) falls back to its trimmed
// original form rather than failing the checksum.
func (p *Plugin) canonicalize(stmts []string) []string {
	out := make([]string, len(stmts))
	for i, s := range stmts {
		trimmed := strings.TrimSpace(s)
		stmtNodes, _, err := p.parser.Parse(trimmed, "", "")
		if err != nil || len(stmtNodes) == 0 || stmtNodes[0] == nil {
			out[i] = trimmed
			continue
		}
		var sb strings.Builder
		ctx := format.NewRestoreCtx(format.DefaultRestoreFlags, &sb)
		if restoreErr := stmtNodes[0].Restore(ctx); restoreErr != nil {
			out[i] = trimmed
			continue
		}
		out[i] = strings.TrimSpace(sb.String())
	}
	return out
}

func quoteIdentifier(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "`", "``")
	return "`" + name + "`"
}

func generateCreateTable(table string, cols []transition.ColumnDef) string {
	lines := make([]string, 0, len(cols))
	for _, c := range cols {
		cd := c
		lines = append(lines, "  "+columnDefinition(&cd))
	}
	return fmt.Sprintf("CREATE TABLE %s (\n%s\n) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4;", quoteIdentifier(table), strings.Join(lines, ",\n"))
}

func columnDefinition(c *transition.ColumnDef) string {
	parts := []string{quoteIdentifier(c.Name), c.SQLType}
	if c.Generated {
		parts = append(parts, "GENERATED ALWAYS AS", "STORED")
	}
	if c.Nullable {
		parts = append(parts, "NULL")
	} else {
		parts = append(parts, "NOT NULL")
	}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
	}
	if c.Default != nil {
		parts = append(parts, "DEFAULT", formatDefault(c.Default))
	}
	return strings.Join(parts, " ")
}

func formatDefault(v any) string {
	switch val := v.(type) {
	case string:
		if isSymbolicDefault(val) {
			return val
		}
		return quoteString(val)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// isSymbolicDefault reports whether v is a SQL expression (e.g. "now()")
// rather than a literal value to be quoted, mirroring the distinction
// model.FieldDescriptor.Default documents.
func isSymbolicDefault(v string) bool {
	return strings.HasSuffix(strings.TrimSpace(v), ")")
}

func quoteString(value string) string {
	var b strings.Builder
	b.WriteByte('\'')
	for _, r := range value {
		if r == '\'' {
			b.WriteString("''")
		} else {
			b.WriteRune(r)
		}
	}
	b.WriteByte('\'')
	return b.String()
}

// generateModifyColumn builds a MODIFY COLUMN statement. MySQL's MODIFY
// COLUMN restates the column's entire definition, not just the aspect
// that changed, so any aspect step.Changes left nil (because it didn't
// change) must be filled in from step.ColDef's resolved target state,
// never defaulted — defaulting nullability to NOT NULL on a type-only
// change would silently flip a nullable column to NOT NULL.
func generateModifyColumn(step transition.Step) []string {
	table := quoteIdentifier(step.Table)
	col := quoteIdentifier(step.Column)
	c := step.Changes
	if c == nil {
		return nil
	}

	sqlType := ""
	if step.ColDef != nil {
		sqlType = step.ColDef.SQLType
	}
	if c.Type != nil {
		sqlType = *c.Type
	}
	if sqlType == "" {
		sqlType = "VARCHAR(255)"
	}

	columnNullable := step.ColDef != nil && step.ColDef.Nullable
	if c.Nullable != nil {
		columnNullable = *c.Nullable
	}
	nullable := "NOT NULL"
	if columnNullable {
		nullable = "NULL"
	}

	stmt := fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s %s", table, col, sqlType, nullable)

	var def any
	if c.Default != nil {
		def = *c.Default
	} else if step.ColDef != nil {
		def = step.ColDef.Default
	}
	if def != nil {
		stmt += " DEFAULT " + formatDefault(def)
	}
	return []string{stmt + ";"}
}

func createIndex(table string, idx *transition.IndexDef) string {
	kind := "INDEX"
	if idx.Unique {
		kind = "UNIQUE INDEX"
	}
	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		cols[i] = quoteIdentifier(c)
	}
	return fmt.Sprintf("CREATE %s %s ON %s (%s);", kind, quoteIdentifier(idx.Name), quoteIdentifier(table), strings.Join(cols, ", "))
}

func addForeignKey(table string, fk *transition.ForeignKeyDef) string {
	cols := make([]string, len(fk.Columns))
	for i, c := range fk.Columns {
		cols[i] = quoteIdentifier(c)
	}
	refCols := make([]string, len(fk.ReferencedColumns))
	for i, c := range fk.ReferencedColumns {
		refCols[i] = quoteIdentifier(c)
	}
	return fmt.Sprintf(
		"ALTER TABLE %s ADD CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s);",
		quoteIdentifier(table), quoteIdentifier(fk.Name), strings.Join(cols, ", "),
		quoteIdentifier(fk.ReferencedTable), strings.Join(refCols, ", "),
	)
}
