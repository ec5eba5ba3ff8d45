package prompts

import (
	"fmt"
	"strings"
)

// TableContext provides schema context for the queryable table.
type TableContext struct {
	Name        string
	Description string
	Columns     []ColumnContext
}

// ColumnContext provides column details for SQL generation.
type ColumnContext struct {
	Name        string
	DataType    string
	Description string
}

// BuildSQLGenerationSystemMessage returns the system message for SQL
// generation. The rules mirror what the read-only validator enforces so a
// compliant model never trips the gate.
func BuildSQLGenerationSystemMessage(dialect string, resultCap int) string {
	var msg strings.Builder

	msg.WriteString("You are a SQL generation assistant. Convert the user's question into a single SQL query.\n\n")
	msg.WriteString("Rules:\n")
	msg.WriteString("- Generate exactly ONE SELECT statement. Never generate INSERT, UPDATE, DELETE, DROP, ALTER, CREATE, TRUNCATE, MERGE, GRANT or EXEC.\n")
	msg.WriteString("- Do not include semicolons, SQL comments, markdown fences or explanations. Return the bare SQL statement only.\n")
	switch dialect {
	case "postgres":
		msg.WriteString(fmt.Sprintf("- Use PostgreSQL syntax. Cap results with LIMIT %d unless the question asks for fewer.\n", resultCap))
		msg.WriteString("- Quote mixed-case identifiers with double quotes.\n")
	default:
		msg.WriteString(fmt.Sprintf("- Use Microsoft SQL Server (T-SQL) syntax. Cap results with TOP %d unless the question asks for fewer.\n", resultCap))
		msg.WriteString("- Every ORDER BY must be paired with a TOP clause.\n")
	}
	msg.WriteString("- Only reference the table and columns described in the prompt.\n")

	return msg.String()
}

// BuildSQLGenerationPrompt creates the SQL generation prompt with the table
// schema and the user's question.
func BuildSQLGenerationPrompt(question string, table TableContext) string {
	var prompt strings.Builder

	prompt.WriteString("## Schema\n\n")
	prompt.WriteString(fmt.Sprintf("### %s\n", table.Name))
	if table.Description != "" {
		prompt.WriteString(table.Description + "\n")
	}
	prompt.WriteString("Columns:\n")
	for _, col := range table.Columns {
		if col.Description != "" {
			prompt.WriteString(fmt.Sprintf("- %s (%s): %s\n", col.Name, col.DataType, col.Description))
		} else {
			prompt.WriteString(fmt.Sprintf("- %s (%s)\n", col.Name, col.DataType))
		}
	}

	prompt.WriteString("\n## Question\n\n")
	prompt.WriteString(question)
	prompt.WriteString("\n\nReturn ONLY the SQL statement.\n")

	return prompt.String()
}

// BuildAnswerPrompt asks the model to answer the question from the returned
// rows, serialized as JSON.
func BuildAnswerPrompt(question, data string) string {
	return fmt.Sprintf("Question: %s\n\nData: %s\n\nAnswer the question based on this data.", question, data)
}

// BuildAnswerSystemMessage returns the system message for answer formatting.
func BuildAnswerSystemMessage() string {
	return "Format the answer clearly and concisely."
}
