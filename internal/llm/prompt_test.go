package llm

import (
	"strings"
	"testing"

	"github.com/ahcdata/snowpilot/internal/warehouse"
)

func TestSystemPrompt_EmbedsSchema(t *testing.T) {
	schema := warehouse.Schema{
		{Name: "ORDERS", Columns: []string{"ID", "AMOUNT"}},
		{Name: "CUSTOMERS", Columns: []string{"ID", "NAME", "REGION"}},
	}

	prompt := SystemPrompt(schema)

	if !strings.Contains(prompt, "Table: ORDERS, Columns: ID, AMOUNT") {
		t.Error("prompt missing first table")
	}
	if !strings.Contains(prompt, "Table: CUSTOMERS, Columns: ID, NAME, REGION") {
		t.Error("prompt missing second table")
	}
	// The parser depends on this response contract.
	if !strings.Contains(prompt, `"function_name"`) || !strings.Contains(prompt, `"function_parms"`) {
		t.Error("prompt missing the JSON response contract")
	}
}

func TestSystemPrompt_EmptySchema(t *testing.T) {
	prompt := SystemPrompt(nil)
	if !strings.Contains(prompt, "query_snowflake") {
		t.Error("prompt without a schema still carries the response contract")
	}
}

func TestSummaryPrompt(t *testing.T) {
	prompt := SummaryPrompt("How many orders last month?", `[{"COUNT(*)": 42}]`)

	if !strings.Contains(prompt, "How many orders last month?") {
		t.Error("prompt missing the user query")
	}
	if !strings.Contains(prompt, `[{"COUNT(*)": 42}]`) {
		t.Error("prompt missing the result payload")
	}
}
