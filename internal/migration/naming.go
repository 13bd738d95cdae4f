package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// DeterministicSuffix derives the 8-hex-character suffix used for every
// auxiliary identifier: SHA-256 over the lower-cased pipe-joined inputs.
// The same inputs always yield the same suffix, so regeneration is
// byte-for-byte idempotent across runs and machines.
func DeterministicSuffix(parts ...string) string {
	folded := make([]string, len(parts))
	for i, part := range parts {
		folded[i] = strings.ToLower(part)
	}
	sum := sha256.Sum256([]byte(strings.Join(folded, "|")))
	return hex.EncodeToString(sum[:])[:8]
}

// DefaultConstraintName derives the canonical name for a generated default
// constraint.
func DefaultConstraintName(table, column, normalizedDefault string) string {
	return fmt.Sprintf("DF_%s_%s_%s", table, column,
		DeterministicSuffix(table, column, normalizedDefault, "default"))
}

// TempDefaultName derives the name of a transient default constraint used
// to backfill NOT NULL columns mid-script.
func TempDefaultName(table, column, fill string) string {
	return fmt.Sprintf("DF_%s_%s_%s", table, column,
		DeterministicSuffix(table, column, fill, "tempdefault"))
}

// TempColumnName derives the name of the temp column used by the
// safe-wrapper protocol.
func TempColumnName(table, column string) string {
	return fmt.Sprintf("%s_tmp_%s", column,
		DeterministicSuffix(table, column, "tempcolumn"))
}

// TempTableName derives the name of the temp table used by the
// whole-table reorder protocol.
func TempTableName(table string) string {
	return fmt.Sprintf("%s_tmp_%s", table,
		DeterministicSuffix(table, "temptable"))
}

// SqlVariableName derives the name of a dynamic-SQL variable, unique per
// contributing inputs so one batch can declare many without collision.
func SqlVariableName(prefix string, parts ...string) string {
	return fmt.Sprintf("@%s_%s", prefix, DeterministicSuffix(append(parts, prefix)...))
}
