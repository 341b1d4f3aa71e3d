package postgres

// Catalog queries read pg_catalog directly. Queries taking a %s receive a
// schema predicate from schemaPredicate; the others address one relation
// through relationOID with $1 = schema and $2 = table.

const relationOID = `(quote_ident($1) || '.' || quote_ident($2))::regclass`

// relkinds covers ordinary and partitioned tables, views, materialized views
// and foreign tables.
const relkinds = `('r', 'p', 'v', 'm', 'f')`

const queryListSchemas = `
	SELECT n.nspname
	FROM pg_namespace n
	WHERE %s
	ORDER BY n.nspname`

const queryListTables = `
	SELECT
		n.nspname,
		c.relname,
		CASE c.relkind
			WHEN 'v' THEN 'view'
			WHEN 'm' THEN 'materialized_view'
			WHEN 'f' THEN 'foreign_table'
			ELSE 'table'
		END,
		GREATEST(c.reltuples, 0)::bigint,
		(SELECT count(*) FROM pg_attribute a
		 WHERE a.attrelid = c.oid AND a.attnum > 0 AND NOT a.attisdropped)::int,
		COALESCE(obj_description(c.oid, 'pg_class'), '')
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relkind IN ` + relkinds + `
		AND NOT c.relispartition
		AND %s
	ORDER BY n.nspname, c.relname`

// queryRelation finds a relation by name ($1). Without an explicit schema
// the first match on the session search_path wins, then alphabetical order.
const queryRelation = `
	SELECT
		n.nspname,
		c.relkind::text,
		COALESCE(obj_description(c.oid, 'pg_class'), ''),
		GREATEST(c.reltuples, 0)::bigint
	FROM pg_class c
	JOIN pg_namespace n ON n.oid = c.relnamespace
	WHERE c.relname = $1
		AND c.relkind IN ` + relkinds + `
		AND %s
	ORDER BY array_position(current_schemas(false), n.nspname) NULLS LAST, n.nspname
	LIMIT 1`

const queryColumns = `
	SELECT
		a.attname,
		format_type(a.atttypid, a.atttypmod),
		NOT a.attnotnull,
		COALESCE(pg_get_expr(d.adbin, d.adrelid), ''),
		COALESCE(col_description(a.attrelid, a.attnum), ''),
		EXISTS (
			SELECT 1 FROM pg_index i
			WHERE i.indrelid = a.attrelid AND i.indisprimary AND a.attnum = ANY(i.indkey)
		)
	FROM pg_attribute a
	LEFT JOIN pg_attrdef d ON d.adrelid = a.attrelid AND d.adnum = a.attnum
	WHERE a.attrelid = ` + relationOID + `
		AND a.attnum > 0
		AND NOT a.attisdropped
	ORDER BY a.attnum`

const queryForeignKeys = `
	SELECT con.conname, a.attname, rc.relname, ra.attname
	FROM pg_constraint con
	CROSS JOIN LATERAL unnest(con.conkey, con.confkey) AS k(attnum, ref_attnum)
	JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
	JOIN pg_class rc ON rc.oid = con.confrelid
	JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.ref_attnum
	WHERE con.conrelid = ` + relationOID + `
		AND con.contype = 'f'
	ORDER BY a.attname, con.conname`

// queryColumnStats reads planner statistics. Array columns are recast to
// text[] so pgx scans them without knowing the element type.
const queryColumnStats = `
	SELECT DISTINCT ON (s.attname)
		s.attname,
		s.null_frac::float8,
		s.n_distinct::float8,
		s.most_common_vals::text::text[],
		s.most_common_freqs::float8[],
		s.histogram_bounds::text::text[]
	FROM pg_stats s
	WHERE s.schemaname = $1 AND s.tablename = $2
	ORDER BY s.attname, s.inherited`
