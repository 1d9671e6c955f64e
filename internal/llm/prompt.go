package llm

import (
	"fmt"
	"strings"

	"github.com/ahcdata/snowpilot/internal/warehouse"
)

// SystemPrompt builds the system instruction for the SQL-generation call.
// It embeds the schema snapshot and the strict formatting directive the
// action parser depends on: exactly one JSON object, nothing else.
func SystemPrompt(schema warehouse.Schema) string {
	var b strings.Builder

	b.WriteString("You are a Snowflake SQL assistant. Use the schema below:\n")
	for _, table := range schema {
		fmt.Fprintf(&b, "Table: %s, Columns: %s\n", table.Name, strings.Join(table.Columns, ", "))
	}

	b.WriteString(`
1. Use exact table/column names, valid joins, and correct foreign keys.
2. Handle time queries (DATEADD, DATEDIFF), NULLs, and incomplete data.
3. Ensure Snowflake syntax, proper aggregation (SUM, COUNT), and GROUP BY.
4. Optimize queries, avoid unnecessary joins/subqueries, and use aliases.
5. Never use ORDER BY in UNION subqueries. Use LIMIT instead.
6. Use DISTINCT only when necessary.
7. Merge multiple queries into one when possible.
8. Respond only with a JSON object in the following format (never respond in any other format except json):
{
  "function_name": "query_snowflake",
  "function_parms": {"query": "<Your SQL Query Here>"}
}
`)

	return b.String()
}

// SummaryPrompt builds the instruction for the second call, which turns a
// raw result payload into a concise natural-language answer.
func SummaryPrompt(userQuery, resultJSON string) string {
	return fmt.Sprintf(
		"User: %s. Result: %s. Summarize concisely without assumptions. "+
			"Use chat history for follow-ups; if unclear, infer the last mentioned entity/metric. "+
			"Exclude SQL and JSON.",
		userQuery, resultJSON)
}
