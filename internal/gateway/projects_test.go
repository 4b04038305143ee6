package gateway

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// An item's fieldValues page must be as large as the schema fields page, or
// items on field-heavy boards silently lose values.
func TestFieldValuePageCoversFullSchema(t *testing.T) {
	assert.Contains(t, projectPageQuery, fmt.Sprintf("fields(first: %d)", fieldPageSize))
	assert.Contains(t, itemPageQuery, fmt.Sprintf("fieldValues(first: %d)", fieldPageSize))
	assert.GreaterOrEqual(t, fieldPageSize, 50)
}
