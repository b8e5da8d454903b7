package service

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/certichain/internal/database"
)

// columnFor maps request JSON names that differ from their column.
var columnFor = map[string]string{"name": "subject_name"}

func varcharSizes(t *testing.T, ddl string) map[string]int {
	t.Helper()
	sizes := map[string]int{}
	re := regexp.MustCompile(`(?m)^\s*(\w+)\s+VARCHAR\((\d+)\)`)
	for _, m := range re.FindAllStringSubmatch(ddl, -1) {
		n, err := strconv.Atoi(m[2])
		require.NoError(t, err)
		sizes[m[1]] = n
	}
	return sizes
}

func TestIssueRequestLimitsFitColumns(t *testing.T) {
	stmts := database.Statements()
	require.Len(t, stmts, 3)
	sizes := varcharSizes(t, stmts[2])
	require.NotEmpty(t, sizes)

	typ := reflect.TypeOf(IssueRequest{})
	checked := 0
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		name := strings.Split(f.Tag.Get("json"), ",")[0]
		var limit int
		for _, rule := range strings.Split(f.Tag.Get("validate"), ",") {
			if v, ok := strings.CutPrefix(rule, "max="); ok {
				n, err := strconv.Atoi(v)
				require.NoError(t, err)
				limit = n
			}
		}
		if limit == 0 {
			continue
		}
		col := name
		if c, ok := columnFor[name]; ok {
			col = c
		}
		size, ok := sizes[col]
		if !assert.True(t, ok, "no VARCHAR column %q for field %s", col, f.Name) {
			continue
		}
		assert.LessOrEqual(t, limit, size, "%s allows %d characters, column %s holds %d", f.Name, limit, col, size)
		checked++
	}
	assert.Equal(t, 10, checked)
}

func TestSectionLongerThanColumnRejected(t *testing.T) {
	req := ashaRao()
	req.Section = strings.Repeat("A", 33)
	err := ValidateStruct(req)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields, "section")

	req.Section = strings.Repeat("A", 32)
	assert.NoError(t, ValidateStruct(req))
}
