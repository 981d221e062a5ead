package sqlbackend

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/metagrid-platform/metagrid/internal/data"
	"github.com/metagrid-platform/metagrid/internal/meta"
	"github.com/metagrid-platform/metagrid/internal/query"
)

// Repository serves one entity type from its table. Multi-value reference
// attributes live in junction tables named <entity>_<attribute> with a
// sequence column preserving value order.
type Repository struct {
	engine *Engine
	et     *meta.EntityType
}

func newRepository(engine *Engine, et *meta.EntityType) *Repository {
	return &Repository{engine: engine, et: et}
}

// EntityType returns the entity type served by this repository
func (r *Repository) EntityType() *meta.EntityType {
	return r.et
}

// Close is a no-op, the engine owns the database handle
func (r *Repository) Close() error { return nil }

func (r *Repository) tableName() string {
	return r.engine.dialect.QuoteIdentifier(r.et.ID)
}

func (r *Repository) junctionName(attr *meta.Attribute) string {
	return r.engine.dialect.QuoteIdentifier(r.et.ID + "_" + attr.Name)
}

// scalarAttrs returns the attributes stored as columns of the main table
func (r *Repository) scalarAttrs() []*meta.Attribute {
	var attrs []*meta.Attribute
	for _, attr := range r.et.AtomicAttributes() {
		if attr.Type.IsMultiReference() || attr.Expression != "" {
			continue
		}
		attrs = append(attrs, attr)
	}
	return attrs
}

// multiRefAttrs returns the attributes stored in junction tables
func (r *Repository) multiRefAttrs() []*meta.Attribute {
	var attrs []*meta.Attribute
	for _, attr := range r.et.AtomicAttributes() {
		if attr.Type.IsMultiReference() && attr.MappedBy == "" {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// createStatements renders the DDL of the entity type
func (r *Repository) createStatements() []string {
	d := r.engine.dialect
	idAttr := r.et.IDAttribute()

	var cols []string
	for _, attr := range r.scalarAttrs() {
		col := fmt.Sprintf("%s %s", d.QuoteIdentifier(attr.Name), d.ColumnType(attr.Type))
		if attr.Name == idAttr.Name {
			col += " PRIMARY KEY"
		} else {
			if !attr.Nillable {
				col += " NOT NULL"
			}
			if attr.Unique {
				col += " UNIQUE"
			}
		}
		cols = append(cols, col)
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", r.tableName(), strings.Join(cols, ", "))}

	for _, attr := range r.multiRefAttrs() {
		stmts = append(stmts, fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS %s (%s %s NOT NULL, %s %s NOT NULL, %s integer NOT NULL)",
			r.junctionName(attr),
			d.QuoteIdentifier("src"), d.ColumnType(idAttr.Type),
			d.QuoteIdentifier("ref"), d.ColumnType(refIDType(attr)),
			d.QuoteIdentifier("seq")))
	}
	return stmts
}

// dropStatements renders the teardown DDL, junction tables first
func (r *Repository) dropStatements() []string {
	var stmts []string
	for _, attr := range r.multiRefAttrs() {
		stmts = append(stmts, "DROP TABLE IF EXISTS "+r.junctionName(attr))
	}
	return append(stmts, "DROP TABLE IF EXISTS "+r.tableName())
}

func refIDType(attr *meta.Attribute) meta.AttributeType {
	if attr.RefEntity != nil {
		if idAttr := attr.RefEntity.IDAttribute(); idAttr != nil {
			return idAttr.Type
		}
	}
	return meta.TypeString
}

// Add persists a new entity
func (r *Repository) Add(ctx context.Context, entity *data.Entity) error {
	return r.AddAll(ctx, []*data.Entity{entity})
}

// AddAll persists a batch of new entities, preserving order
func (r *Repository) AddAll(ctx context.Context, entities []*data.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	for _, entity := range entities {
		if entity.ID() == nil {
			return data.NewInvariant("entity of type %s has no id value", r.et.ID)
		}
	}
	if err := r.checkDuplicates(ctx, entities); err != nil {
		return err
	}

	d := r.engine.dialect
	attrs := r.scalarAttrs()
	cols := make([]string, len(attrs))
	for i, attr := range attrs {
		cols[i] = d.QuoteIdentifier(attr.Name)
	}

	q := r.engine.querier(ctx)
	for _, entity := range entities {
		placeholders := make([]string, len(attrs))
		args := make([]interface{}, len(attrs))
		for i, attr := range attrs {
			placeholders[i] = d.Placeholder(i + 1)
			args[i] = toColumnValue(entity.Get(attr.Name))
		}
		stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			r.tableName(), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return r.wrap("insert", err)
		}
		if err := r.writeMultiRefs(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) checkDuplicates(ctx context.Context, entities []*data.Entity) error {
	ids := make([]interface{}, len(entities))
	for i, entity := range entities {
		ids[i] = entity.ID()
	}
	existing, err := r.existingIDs(ctx, ids)
	if err != nil {
		return err
	}
	for _, entity := range entities {
		if existing[fmt.Sprintf("%v", entity.ID())] {
			return data.NewValidation(fmt.Sprintf("Duplicate id [%v] for entity [%s]", entity.ID(), r.et.ID))
		}
	}
	return nil
}

func (r *Repository) existingIDs(ctx context.Context, ids []interface{}) (map[string]bool, error) {
	d := r.engine.dialect
	idCol := d.QuoteIdentifier(r.et.IDAttributeName)
	placeholders := make([]string, len(ids))
	for i := range ids {
		placeholders[i] = d.Placeholder(i + 1)
	}
	stmt := fmt.Sprintf("SELECT %s FROM %s WHERE %s IN (%s)",
		idCol, r.tableName(), idCol, strings.Join(placeholders, ", "))
	rows, err := r.engine.querier(ctx).QueryContext(ctx, stmt, ids...)
	if err != nil {
		return nil, r.wrap("select", err)
	}
	defer rows.Close()
	existing := make(map[string]bool)
	for rows.Next() {
		var id interface{}
		if err := rows.Scan(&id); err != nil {
			return nil, r.wrap("scan", err)
		}
		existing[fmt.Sprintf("%v", normalizeScanned(r.et.IDAttribute(), id))] = true
	}
	return existing, rows.Err()
}

// Update persists changes to an existing entity
func (r *Repository) Update(ctx context.Context, entity *data.Entity) error {
	return r.UpdateAll(ctx, []*data.Entity{entity})
}

// UpdateAll persists changes to a batch of entities
func (r *Repository) UpdateAll(ctx context.Context, entities []*data.Entity) error {
	d := r.engine.dialect
	idAttr := r.et.IDAttribute()
	q := r.engine.querier(ctx)

	for _, entity := range entities {
		var sets []string
		var args []interface{}
		for _, attr := range r.scalarAttrs() {
			if attr.Name == idAttr.Name {
				continue
			}
			args = append(args, toColumnValue(entity.Get(attr.Name)))
			sets = append(sets, fmt.Sprintf("%s = %s", d.QuoteIdentifier(attr.Name), d.Placeholder(len(args))))
		}
		args = append(args, toColumnValue(entity.ID()))
		stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
			r.tableName(), strings.Join(sets, ", "),
			d.QuoteIdentifier(idAttr.Name), d.Placeholder(len(args)))
		result, err := q.ExecContext(ctx, stmt, args...)
		if err != nil {
			return r.wrap("update", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return r.wrap("update", err)
		}
		if affected == 0 {
			return data.NewUnknownEntity(r.et.ID, entity.ID())
		}
		if err := r.clearMultiRefs(ctx, entity.ID()); err != nil {
			return err
		}
		if err := r.writeMultiRefs(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) writeMultiRefs(ctx context.Context, entity *data.Entity) error {
	d := r.engine.dialect
	q := r.engine.querier(ctx)
	for _, attr := range r.multiRefAttrs() {
		for seq, refID := range entity.GetRefIDs(attr.Name) {
			stmt := fmt.Sprintf("INSERT INTO %s (%s, %s, %s) VALUES (%s, %s, %s)",
				r.junctionName(attr),
				d.QuoteIdentifier("src"), d.QuoteIdentifier("ref"), d.QuoteIdentifier("seq"),
				d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))
			if _, err := q.ExecContext(ctx, stmt, toColumnValue(entity.ID()), toColumnValue(refID), seq); err != nil {
				return r.wrap("insert", err)
			}
		}
	}
	return nil
}

func (r *Repository) clearMultiRefs(ctx context.Context, id interface{}) error {
	d := r.engine.dialect
	q := r.engine.querier(ctx)
	for _, attr := range r.multiRefAttrs() {
		stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
			r.junctionName(attr), d.QuoteIdentifier("src"), d.Placeholder(1))
		if _, err := q.ExecContext(ctx, stmt, toColumnValue(id)); err != nil {
			return r.wrap("delete", err)
		}
	}
	return nil
}

// Delete removes an entity
func (r *Repository) Delete(ctx context.Context, entity *data.Entity) error {
	return r.DeleteByID(ctx, entity.ID())
}

// DeleteByID removes the entity with the given id
func (r *Repository) DeleteByID(ctx context.Context, id interface{}) error {
	return r.DeleteAllByID(ctx, []interface{}{id})
}

// DeleteAllByID removes the entities with the given ids
func (r *Repository) DeleteAllByID(ctx context.Context, ids []interface{}) error {
	if len(ids) == 0 {
		return nil
	}
	for _, id := range ids {
		if err := r.clearMultiRefs(ctx, id); err != nil {
			return err
		}
	}
	d := r.engine.dialect
	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = d.Placeholder(i + 1)
		args[i] = toColumnValue(id)
	}
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s IN (%s)",
		r.tableName(), d.QuoteIdentifier(r.et.IDAttributeName), strings.Join(placeholders, ", "))
	if _, err := r.engine.querier(ctx).ExecContext(ctx, stmt, args...); err != nil {
		return r.wrap("delete", err)
	}
	return nil
}

// DeleteAll removes every entity
func (r *Repository) DeleteAll(ctx context.Context) error {
	q := r.engine.querier(ctx)
	for _, attr := range r.multiRefAttrs() {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+r.junctionName(attr)); err != nil {
			return r.wrap("delete", err)
		}
	}
	if _, err := q.ExecContext(ctx, "DELETE FROM "+r.tableName()); err != nil {
		return r.wrap("delete", err)
	}
	return nil
}

// FindOneByID returns the entity with the given id, or nil when absent
func (r *Repository) FindOneByID(ctx context.Context, id interface{}, fetch *query.Fetch) (*data.Entity, error) {
	q := query.New().Eq(r.et.IDAttributeName, id).WithFetch(fetch)
	return r.FindOne(ctx, q)
}

// FindOne returns the first entity matching the query, or nil
func (r *Repository) FindOne(ctx context.Context, q *query.Query) (*data.Entity, error) {
	limited := q.Clone()
	limited.PageSize = 1
	entities, err := r.findEntities(ctx, limited)
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return entities[0], nil
}

// FindAll returns a lazy sequence of entities matching the query
func (r *Repository) FindAll(ctx context.Context, q *query.Query) (data.Iterator, error) {
	entities, err := r.findEntities(ctx, q)
	if err != nil {
		return nil, err
	}
	return data.NewSliceIterator(entities), nil
}

// Iterator returns a restartable full-scan sequence
func (r *Repository) Iterator(ctx context.Context) (data.Iterator, error) {
	return r.FindAll(ctx, query.New())
}

// Count returns the number of entities matching the query, ignoring paging
func (r *Repository) Count(ctx context.Context, q *query.Query) (int64, error) {
	c := newCompiler(r.et, r.engine.dialect)
	where, err := c.where(q.Rules)
	if err != nil {
		return 0, err
	}
	stmt := "SELECT COUNT(*) FROM " + r.tableName()
	if where != "" {
		stmt += " WHERE " + where
	}
	var count int64
	if err := r.engine.querier(ctx).QueryRowContext(ctx, stmt, c.args...).Scan(&count); err != nil {
		return 0, r.wrap("count", err)
	}
	return count, nil
}

func (r *Repository) findEntities(ctx context.Context, q *query.Query) ([]*data.Entity, error) {
	d := r.engine.dialect
	c := newCompiler(r.et, d)
	where, err := c.where(q.Rules)
	if err != nil {
		return nil, err
	}
	orderBy, err := c.orderBy(q.Sort)
	if err != nil {
		return nil, err
	}

	attrs := r.selectAttrs(q.Fetch)
	cols := make([]string, len(attrs))
	for i, attr := range attrs {
		cols[i] = d.QuoteIdentifier(attr.Name)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(cols, ", "), r.tableName())
	if where != "" {
		sb.WriteString(" WHERE " + where)
	}
	if orderBy != "" {
		sb.WriteString(" ORDER BY " + orderBy)
	}
	if q.PageSize > query.UnlimitedPageSize {
		fmt.Fprintf(&sb, " LIMIT %d", q.PageSize)
	} else if q.Offset > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", int64(math.MaxInt64))
	}
	if q.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", q.Offset)
	}

	rows, err := r.engine.querier(ctx).QueryContext(ctx, sb.String(), c.args...)
	if err != nil {
		return nil, r.wrap("select", err)
	}
	defer rows.Close()

	var entities []*data.Entity
	for rows.Next() {
		dests := make([]interface{}, len(attrs))
		for i := range dests {
			dests[i] = new(interface{})
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, r.wrap("scan", err)
		}
		entity := data.NewEntity(r.et)
		for i, attr := range attrs {
			if value := normalizeScanned(attr, *dests[i].(*interface{})); value != nil {
				entity.Set(attr.Name, value)
			}
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, r.wrap("select", err)
	}

	if err := r.loadMultiRefs(ctx, entities, q.Fetch); err != nil {
		return nil, err
	}
	return entities, nil
}

// selectAttrs resolves the fetch to the scalar columns of the select list.
// The id attribute is always included.
func (r *Repository) selectAttrs(fetch *query.Fetch) []*meta.Attribute {
	var attrs []*meta.Attribute
	for _, attr := range r.scalarAttrs() {
		if attr.Name == r.et.IDAttributeName || fetch.Includes(attr.Name) {
			attrs = append(attrs, attr)
		}
	}
	return attrs
}

// loadMultiRefs bulk loads junction table values for a result page
func (r *Repository) loadMultiRefs(ctx context.Context, entities []*data.Entity, fetch *query.Fetch) error {
	if len(entities) == 0 {
		return nil
	}
	d := r.engine.dialect
	byID := make(map[string]*data.Entity, len(entities))
	placeholders := make([]string, len(entities))
	args := make([]interface{}, len(entities))
	for i, entity := range entities {
		byID[fmt.Sprintf("%v", entity.ID())] = entity
		placeholders[i] = d.Placeholder(i + 1)
		args[i] = toColumnValue(entity.ID())
	}

	for _, attr := range r.multiRefAttrs() {
		if !fetch.Includes(attr.Name) {
			continue
		}
		stmt := fmt.Sprintf("SELECT %s, %s FROM %s WHERE %s IN (%s) ORDER BY %s",
			d.QuoteIdentifier("src"), d.QuoteIdentifier("ref"),
			r.junctionName(attr),
			d.QuoteIdentifier("src"), strings.Join(placeholders, ", "),
			d.QuoteIdentifier("seq"))
		rows, err := r.engine.querier(ctx).QueryContext(ctx, stmt, args...)
		if err != nil {
			return r.wrap("select", err)
		}
		values := make(map[string][]interface{})
		for rows.Next() {
			var src, ref interface{}
			if err := rows.Scan(&src, &ref); err != nil {
				rows.Close()
				return r.wrap("scan", err)
			}
			key := fmt.Sprintf("%v", normalizeScanned(r.et.IDAttribute(), src))
			values[key] = append(values[key], normalizeScanned(refIDAttr(attr), ref))
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return r.wrap("select", err)
		}
		rows.Close()
		for key, refs := range values {
			if entity := byID[key]; entity != nil {
				entity.Set(attr.Name, refs)
			}
		}
	}
	return nil
}

func refIDAttr(attr *meta.Attribute) *meta.Attribute {
	if attr.RefEntity != nil {
		if idAttr := attr.RefEntity.IDAttribute(); idAttr != nil {
			return idAttr
		}
	}
	return &meta.Attribute{Name: attr.Name, Type: meta.TypeString}
}

func (r *Repository) wrap(op string, err error) error {
	return data.NewError(data.KindDataAccess, "%s on entity type %s failed", op, r.et.ID).WithCause(err)
}

// toColumnValue converts an entity value to a driver value
func toColumnValue(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Time:
		return v
	case []interface{}:
		// Multi value lists never reach scalar columns
		return nil
	default:
		return value
	}
}

// normalizeScanned converts a scanned driver value to the entity value
// space of the attribute type
func normalizeScanned(attr *meta.Attribute, value interface{}) interface{} {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case []byte:
		value = string(v)
	}
	switch attr.Type {
	case meta.TypeBool:
		switch v := value.(type) {
		case bool:
			return v
		case int64:
			return v != 0
		case string:
			return v == "true" || v == "1"
		}
	case meta.TypeInt, meta.TypeLong:
		switch v := value.(type) {
		case int64:
			return v
		case float64:
			return int64(v)
		}
	case meta.TypeDecimal:
		switch v := value.(type) {
		case float64:
			return v
		case int64:
			return float64(v)
		}
	case meta.TypeDate:
		if t, ok := value.(time.Time); ok {
			return t.Format(meta.DateLayout)
		}
	case meta.TypeDateTime:
		if t, ok := value.(time.Time); ok {
			return t.Format(meta.DateTimeLayout)
		}
	}
	return value
}
