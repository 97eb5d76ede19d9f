package repository

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/notification-pipeline/internal/domain"
	"gorm.io/gorm/clause"
)

const DefaultSort = "-created_at"

// sortableColumns maps accepted sort keys to columns. Both the API's camelCase
// names and the column names are accepted.
var sortableColumns = map[string]string{
	"created_at":        "created_at",
	"createdat":         "created_at",
	"updated_at":        "updated_at",
	"updatedat":         "updated_at",
	"last_sent_at":      "last_sent_at",
	"lastsentat":        "last_sent_at",
	"subject":           "subject",
	"status":            "status",
	"user_id":           "user_id",
	"recipientid":       "user_id",
	"user_name":         "user_name",
	"recipientname":     "user_name",
	"notification_type": "notification_type",
	"type":              "notification_type",
}

// Sort is a parsed "-field" / "+field" / "field" expression.
type Sort struct {
	Column string
	Desc   bool
}

// ParseSort parses a sort expression. An empty expression yields -created_at.
func ParseSort(raw string) (Sort, error) {
	expr := strings.TrimSpace(raw)
	if expr == "" {
		expr = DefaultSort
	}

	desc := false
	switch expr[0] {
	case '-':
		desc = true
		expr = expr[1:]
	case '+':
		expr = expr[1:]
	}

	column, ok := sortableColumns[strings.ToLower(strings.TrimSpace(expr))]
	if !ok {
		return Sort{}, fmt.Errorf("%w: unsupported sort field %q", domain.ErrValidation, raw)
	}

	return Sort{Column: column, Desc: desc}, nil
}

// orderBy returns the ORDER BY columns, with id as a stable tie-break.
func (s Sort) orderBy() clause.OrderBy {
	return clause.OrderBy{Columns: []clause.OrderByColumn{
		{Column: clause.Column{Name: s.Column}, Desc: s.Desc},
		{Column: clause.Column{Name: "id"}, Desc: s.Desc},
	}}
}
