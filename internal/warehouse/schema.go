package warehouse

import (
	"context"
	"fmt"
)

// Table is one warehouse table with its columns in catalog order.
type Table struct {
	Name    string
	Columns []string
}

// Schema is the warehouse metadata snapshot used to build the model's
// system instructions. It is fetched once per process start and never
// persisted.
type Schema []Table

// SchemaSnapshot fetches the table and column catalog from the warehouse.
// SHOW TABLES and DESCRIBE TABLE both expose the object name in a "name"
// column, which is what the snapshot reads.
func (a *Adapter) SchemaSnapshot(ctx context.Context) (Schema, error) {
	tables := a.runStatement(ctx, "SHOW TABLES")
	if tables.Failed() {
		return nil, fmt.Errorf("list tables: %s", tables.Error)
	}

	var schema Schema
	for _, row := range tables.Rows {
		name, ok := row["name"].(string)
		if !ok || name == "" {
			continue
		}

		desc := a.runStatement(ctx, "DESCRIBE TABLE "+quoteIdentifier(name))
		if desc.Failed() {
			return nil, fmt.Errorf("describe table %s: %s", name, desc.Error)
		}

		table := Table{Name: name}
		for _, col := range desc.Rows {
			if colName, ok := col["name"].(string); ok && colName != "" {
				table.Columns = append(table.Columns, colName)
			}
		}
		schema = append(schema, table)
	}

	return schema, nil
}

// quoteIdentifier double-quotes an identifier so catalog names with
// unusual characters cannot alter the statement shape.
func quoteIdentifier(name string) string {
	quoted := make([]byte, 0, len(name)+2)
	quoted = append(quoted, '"')
	for i := 0; i < len(name); i++ {
		if name[i] == '"' {
			quoted = append(quoted, '"', '"')
			continue
		}
		quoted = append(quoted, name[i])
	}
	return string(append(quoted, '"'))
}
