package sqlite

import (
	"database/sql/driver"
	"fmt"
	"strings"

	"modernc.org/sqlite"
)

// LowerFunc is a Unicode-aware replacement for SQLite's lower(), which only folds ASCII.
const LowerFunc = "go_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(LowerFunc, 1, goLower)
}

func goLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case nil:
		return nil, nil
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return nil, fmt.Errorf("%s: unsupported argument type %T", LowerFunc, v)
	}
}
