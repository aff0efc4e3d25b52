package rowsource

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb" // registers the "duckdb" driver
	"github.com/rs/zerolog"

	"github.com/23skdu/rowgraph/internal/core"
	rgerrors "github.com/23skdu/rowgraph/internal/errors"
)

// OpenDuckDB opens a DuckDB database. An empty dsn is an in-memory database.
func OpenDuckDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping duckdb: %w", err)
	}
	return db, nil
}

var columnNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQL reads relationships straight from database tables.
type SQL struct {
	db     *sql.DB
	logger zerolog.Logger

	mu       sync.Mutex
	verified map[string]bool
}

// NewSQL wraps db. The caller keeps ownership of db.
func NewSQL(db *sql.DB, logger zerolog.Logger) *SQL {
	return &SQL{
		db:       db,
		logger:   logger.With().Str("component", "sql_source").Logger(),
		verified: make(map[string]bool),
	}
}

// Name implements Source.
func (s *SQL) Name() string { return "sql" }

// DB exposes the handle for health checks.
func (s *SQL) DB() *sql.DB { return s.db }

func quote(ident string) string {
	return `"` + ident + `"`
}

// verify checks identifiers and that every named column exists. Successful
// checks are remembered per relationship.
func (s *SQL) verify(ctx context.Context, op string, rel core.Relationship) error {
	if err := rel.Validate(); err != nil {
		return rgerrors.WrapConfigurationError(err, op, "invalid relationship")
	}
	key := rel.Descriptor()

	s.mu.Lock()
	done := s.verified[key]
	s.mu.Unlock()
	if done {
		return nil
	}

	rows, qerr := s.db.QueryContext(ctx,
		`SELECT column_name FROM information_schema.columns WHERE lower(table_name) = lower(?)`, rel.Table)
	if qerr != nil {
		return s.wrap(ctx, qerr, op, "schema lookup failed")
	}
	defer rows.Close()

	have := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return s.wrap(ctx, err, op, "schema scan failed")
		}
		have[strings.ToLower(name)] = true
	}
	if err := rows.Err(); err != nil {
		return s.wrap(ctx, err, op, "schema scan failed")
	}

	var err error
	var want []string
	switch rel.Kind {
	case core.ForeignKey:
		want = []string{rel.Key(), rel.Column}
	case core.EdgeTable:
		want = []string{rel.SourceColumn, rel.TargetColumn}
		if rel.WeightColumn != "" {
			want = append(want, rel.WeightColumn)
		}
	}

	switch {
	case len(have) == 0:
		err = rgerrors.NewRelationshipError(op, fmt.Sprintf("table %s does not exist", rel.Table))
	default:
		for _, col := range want {
			if !have[strings.ToLower(col)] {
				err = rgerrors.NewRelationshipError(op, fmt.Sprintf("column %s.%s does not exist", rel.Table, col))
				break
			}
		}
	}

	if err != nil {
		return err
	}
	s.mu.Lock()
	s.verified[key] = true
	s.mu.Unlock()
	return nil
}

func (s *SQL) wrap(ctx context.Context, err error, op, msg string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return rgerrors.Cancelled(ctxErr, op)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return rgerrors.Cancelled(err, op)
	}
	return rgerrors.WrapDataSourceError(err, op, msg)
}

func (s *SQL) queryNeighbors(ctx context.Context, op, query string, weighted bool, id core.NodeID) ([]core.Neighbor, error) {
	rows, err := s.db.QueryContext(ctx, query, int64(id))
	if err != nil {
		return nil, s.wrap(ctx, err, op, "neighbor query failed")
	}
	defer rows.Close()

	var out []core.Neighbor
	for rows.Next() {
		var (
			nid sql.NullInt64
			w   sql.NullFloat64
		)
		if weighted {
			err = rows.Scan(&nid, &w)
		} else {
			err = rows.Scan(&nid)
		}
		if err != nil {
			return nil, s.wrap(ctx, err, op, "neighbor scan failed")
		}
		if !nid.Valid {
			continue
		}
		n := core.Neighbor{ID: core.NodeID(nid.Int64), Weight: core.DefaultWeight}
		if w.Valid {
			n.Weight = w.Float64
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, err, op, "neighbor scan failed")
	}
	return out, nil
}

func (s *SQL) exists(ctx context.Context, op string, rel core.Relationship, id core.NodeID) error {
	var query string
	var args []any
	switch rel.Kind {
	case core.ForeignKey:
		query = fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ? LIMIT 1`, quote(rel.Table), quote(rel.Key()))
		args = []any{int64(id)}
	default:
		query = fmt.Sprintf(`SELECT 1 FROM %s WHERE %s = ? OR %s = ? LIMIT 1`,
			quote(rel.Table), quote(rel.SourceColumn), quote(rel.TargetColumn))
		args = []any{int64(id), int64(id)}
	}

	var one int
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return rgerrors.NewNotFoundError(op, int64(id))
	case err != nil:
		return s.wrap(ctx, err, op, "existence check failed")
	}
	return nil
}

// Neighbors implements Source.
func (s *SQL) Neighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	const op = "sql.neighbors"
	if err := s.verify(ctx, op, rel); err != nil {
		return nil, err
	}

	var query string
	switch rel.Kind {
	case core.ForeignKey:
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY 1`,
			quote(rel.Key()), quote(rel.Table), quote(rel.Column))
	default:
		cols := quote(rel.TargetColumn)
		if rel.Weighted() {
			cols += ", " + quote(rel.WeightColumn)
		}
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY 1`,
			cols, quote(rel.Table), quote(rel.SourceColumn))
	}

	out, err := s.queryNeighbors(ctx, op, query, rel.Weighted(), id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if err := s.exists(ctx, op, rel, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// ReverseNeighbors implements Source.
func (s *SQL) ReverseNeighbors(ctx context.Context, rel core.Relationship, id core.NodeID) ([]core.Neighbor, error) {
	const op = "sql.reverse_neighbors"
	if err := s.verify(ctx, op, rel); err != nil {
		return nil, err
	}

	var query string
	switch rel.Kind {
	case core.ForeignKey:
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ?`,
			quote(rel.Column), quote(rel.Table), quote(rel.Key()))
	default:
		cols := quote(rel.SourceColumn)
		if rel.Weighted() {
			cols += ", " + quote(rel.WeightColumn)
		}
		query = fmt.Sprintf(`SELECT %s FROM %s WHERE %s = ? ORDER BY 1`,
			cols, quote(rel.Table), quote(rel.TargetColumn))
	}

	out, err := s.queryNeighbors(ctx, op, query, rel.Weighted(), id)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		if err := s.exists(ctx, op, rel, id); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQL) count(ctx context.Context, op, query string) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, s.wrap(ctx, err, op, "count failed")
	}
	return n, nil
}

func (s *SQL) ids(ctx context.Context, op, query string, limit int) ([]core.NodeID, error) {
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, s.wrap(ctx, err, op, "root query failed")
	}
	defer rows.Close()

	var out []core.NodeID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, s.wrap(ctx, err, op, "root scan failed")
		}
		out = append(out, core.NodeID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, err, op, "root scan failed")
	}
	return out, nil
}

// Census implements Source.
func (s *SQL) Census(ctx context.Context, rel core.Relationship, maxRoots int) (*Census, error) {
	const op = "sql.census"
	if err := s.verify(ctx, op, rel); err != nil {
		return nil, err
	}

	t := quote(rel.Table)
	var nodesQ, edgesQ, rootsQ, fallbackQ string
	switch rel.Kind {
	case core.ForeignKey:
		key, ref := quote(rel.Key()), quote(rel.Column)
		nodesQ = fmt.Sprintf(`SELECT count(*) FROM %s`, t)
		edgesQ = fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s IS NOT NULL`, t, ref)
		rootsQ = fmt.Sprintf(`SELECT %s FROM %s WHERE %s IS NULL ORDER BY 1 LIMIT ?`, key, t, ref)
		fallbackQ = fmt.Sprintf(`SELECT %s FROM %s ORDER BY 1 LIMIT ?`, key, t)
	default:
		src, dst := quote(rel.SourceColumn), quote(rel.TargetColumn)
		union := fmt.Sprintf(`SELECT %s AS n FROM %s UNION SELECT %s FROM %s`, src, t, dst, t)
		nodesQ = fmt.Sprintf(`SELECT count(*) FROM (%s) AS u WHERE n IS NOT NULL`, union)
		edgesQ = fmt.Sprintf(`SELECT count(*) FROM %s WHERE %s IS NOT NULL AND %s IS NOT NULL`, t, src, dst)
		rootsQ = fmt.Sprintf(`SELECT DISTINCT %s FROM %s WHERE %s IS NOT NULL AND %s NOT IN (SELECT %s FROM %s WHERE %s IS NOT NULL) ORDER BY 1 LIMIT ?`,
			src, t, src, src, dst, t, dst)
		fallbackQ = fmt.Sprintf(`SELECT n FROM (%s) AS u WHERE n IS NOT NULL ORDER BY 1 LIMIT ?`, union)
	}

	c := &Census{Weighted: rel.Weighted()}
	var err error
	if c.Nodes, err = s.count(ctx, op, nodesQ); err != nil {
		return nil, err
	}
	if c.Edges, err = s.count(ctx, op, edgesQ); err != nil {
		return nil, err
	}
	if maxRoots <= 0 || c.Nodes == 0 {
		return c, nil
	}
	if c.Roots, err = s.ids(ctx, op, rootsQ, maxRoots); err != nil {
		return nil, err
	}
	if len(c.Roots) == 0 {
		if c.Roots, err = s.ids(ctx, op, fallbackQ, maxRoots); err != nil {
			return nil, err
		}
	}

	s.logger.Debug().
		Str("relationship", rel.Descriptor()).
		Int64("nodes", c.Nodes).
		Int64("edges", c.Edges).
		Int("roots", len(c.Roots)).
		Msg("census complete")
	return c, nil
}

// Capabilities implements Source. SQL tables can always be read backwards.
func (s *SQL) Capabilities(core.Relationship) Capabilities {
	return Capabilities{Reverse: true}
}

// ProjectRows implements RowProjector for foreign key relationships, whose
// rows are the nodes themselves. Rows come back in ids order; unknown ids are skipped.
func (s *SQL) ProjectRows(ctx context.Context, rel core.Relationship, ids []core.NodeID, columns []string) ([]Row, error) {
	const op = "sql.project_rows"
	if rel.Kind != core.ForeignKey {
		return nil, rgerrors.NewRelationshipError(op, "projection needs a foreign key relationship whose rows are nodes")
	}
	if err := s.verify(ctx, op, rel); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if len(columns) == 0 {
		columns = []string{rel.Key()}
	}

	selected := make([]string, 0, len(columns)+1)
	selected = append(selected, quote(rel.Key()))
	for _, c := range columns {
		if !columnNamePattern.MatchString(c) {
			return nil, rgerrors.NewConfigurationError(op, fmt.Sprintf("invalid column %q", c))
		}
		selected = append(selected, quote(c))
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = int64(id)
	}
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE %s IN (%s)`,
		strings.Join(selected, ", "), quote(rel.Table), quote(rel.Key()), placeholders)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, s.wrap(ctx, err, op, "projection failed")
	}
	defer rows.Close()

	byID := make(map[core.NodeID]Row, len(ids))
	for rows.Next() {
		vals := make([]any, len(selected))
		ptrs := make([]any, len(selected))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, s.wrap(ctx, err, op, "projection scan failed")
		}
		key, ok := toInt64(vals[0])
		if !ok {
			continue
		}
		row := make(Row, len(columns))
		for i, c := range columns {
			row[c] = vals[i+1]
		}
		byID[core.NodeID(key)] = row
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(ctx, err, op, "projection scan failed")
	}

	out := make([]Row, 0, len(byID))
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int32:
		return int64(x), true
	case int:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	default:
		return 0, false
	}
}
