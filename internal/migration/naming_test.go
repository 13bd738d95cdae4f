package migration

import (
	"regexp"
	"strings"
	"testing"
)

func TestDeterministicSuffixIsStable(t *testing.T) {
	first := DeterministicSuffix("Users", "Name", "0", "default")
	second := DeterministicSuffix("Users", "Name", "0", "default")
	if first != second {
		t.Fatalf("same inputs must yield the same suffix: %q vs %q", first, second)
	}
	if len(first) != 8 {
		t.Errorf("suffix must be 8 hex characters, got %q", first)
	}
	if !regexp.MustCompile(`^[0-9a-f]{8}$`).MatchString(first) {
		t.Errorf("suffix must be lower-case hex, got %q", first)
	}
}

func TestDeterministicSuffixFoldsCase(t *testing.T) {
	if DeterministicSuffix("Users", "Name") != DeterministicSuffix("users", "name") {
		t.Error("suffix derivation must fold input case")
	}
}

func TestDeterministicSuffixVariesWithInputs(t *testing.T) {
	if DeterministicSuffix("users", "name") == DeterministicSuffix("users", "email") {
		t.Error("different inputs should yield different suffixes")
	}
	if DeterministicSuffix("users", "name") == DeterministicSuffix("user", "sname") {
		t.Error("the joiner must separate inputs")
	}
}

func TestDerivedNames(t *testing.T) {
	if name := DefaultConstraintName("users", "age", "0"); !strings.HasPrefix(name, "DF_users_age_") {
		t.Errorf("unexpected default constraint name %q", name)
	}
	if name := TempColumnName("users", "id"); !strings.HasPrefix(name, "id_tmp_") {
		t.Errorf("unexpected temp column name %q", name)
	}
	if name := TempTableName("users"); !strings.HasPrefix(name, "users_tmp_") {
		t.Errorf("unexpected temp table name %q", name)
	}
	if name := SqlVariableName("df", "dbo", "users", "age"); !strings.HasPrefix(name, "@df_") {
		t.Errorf("unexpected variable name %q", name)
	}
	// temp and canonical default names must not collide
	if TempDefaultName("users", "age", "0") == DefaultConstraintName("users", "age", "0") {
		t.Error("temp and canonical default names must differ")
	}
}
