package migration

import (
	"strings"
	"testing"

	"github.com/lofcz/minfold/internal/errors"
	"github.com/lofcz/minfold/internal/logging"
	"github.com/lofcz/minfold/internal/schema"
)

func testGenerator() *Generator {
	return NewGeneratorWithLogger(logging.NewSilentLogger())
}

func column(name string, position int, sqlType schema.SqlType) *schema.Column {
	return &schema.Column{Name: name, OrdinalPosition: position, Type: sqlType}
}

func nullable(c *schema.Column) *schema.Column {
	c.IsNullable = true
	return c
}

func pk(c *schema.Column) *schema.Column {
	c.IsPrimaryKey = true
	return c
}

func identity(c *schema.Column) *schema.Column {
	c.IsIdentity = true
	c.IdentitySeed = 1
	c.IdentityStep = 1
	return c
}

func tableOf(name string, columns ...*schema.Column) *schema.Table {
	table := schema.NewTable(name)
	for _, c := range columns {
		table.Columns[schema.Key(c.Name)] = c
	}
	return table
}

func databaseOf(tables ...*schema.Table) *schema.Database {
	db := schema.NewDatabase("testdb")
	for _, table := range tables {
		db.Tables[schema.Key(table.Name)] = table
	}
	return db
}

func fk(name, table, col, refTable, refCol string) *schema.ForeignKey {
	return &schema.ForeignKey{
		Name: name, Schema: "dbo", Table: table, Column: col,
		RefSchema: "dbo", RefTable: refTable, RefColumn: refCol,
	}
}

func mustGenerate(t *testing.T, current, target *schema.Database) *Migration {
	t.Helper()
	m, err := testGenerator().GenerateMigration("test_migration", current, target)
	if err != nil {
		t.Fatalf("GenerateMigration() error = %v", err)
	}
	return m
}

func TestGenerateNullDiff(t *testing.T) {
	build := func() *schema.Database {
		return databaseOf(tableOf("users", pk(column("id", 1, schema.NewSqlType(schema.TypeInt)))))
	}

	_, err := testGenerator().GenerateMigration("noop", build(), build())
	if !errors.IsNoChanges(err) {
		t.Fatalf("identical schemas must yield ErrNoChangesToMigrate, got %v", err)
	}
}

func TestGenerateIsByteIdentical(t *testing.T) {
	build := func() (*schema.Database, *schema.Database) {
		current := databaseOf(tableOf("users",
			pk(identity(column("id", 1, schema.NewSqlType(schema.TypeInt)))),
			nullable(column("name", 2, schema.NewStringType(schema.TypeVarChar, 100)))))
		target := databaseOf(tableOf("users",
			pk(identity(column("id", 1, schema.NewSqlType(schema.TypeInt)))),
			nullable(column("name", 2, schema.NewSqlType(schema.TypeText))),
			column("age", 3, schema.NewSqlType(schema.TypeInt))))
		return current, target
	}

	currentA, targetA := build()
	currentB, targetB := build()
	first := mustGenerate(t, currentA, targetA)
	second := mustGenerate(t, currentB, targetB)

	if first.Up.Render() != second.Up.Render() {
		t.Error("up scripts must be byte-identical across runs")
	}
	if first.Down.Render() != second.Down.Render() {
		t.Error("down scripts must be byte-identical across runs")
	}
}

func TestGenerateScriptHeaderAndPhases(t *testing.T) {
	current := databaseOf()
	target := databaseOf(tableOf("users", pk(column("id", 1, schema.NewSqlType(schema.TypeInt)))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()

	if !strings.HasPrefix(up, "-- Generated using Minfold, do not edit manually\n") {
		t.Error("script must start with the generation header")
	}
	if !strings.Contains(up, "SET XACT_ABORT ON;") {
		t.Error("script must enable XACT_ABORT")
	}
	if !strings.Contains(up, "-- ============ Phase 1: Create tables ============") {
		t.Errorf("phases must be numbered among the non-empty ones:\n%s", up)
	}
}

// Scenario: VARCHAR(100) NULL column becomes TEXT NULL. SQL Server cannot
// convert to a legacy LOB in place, so the column is dropped and re-added;
// the down script reverses it.
func TestScenarioVarcharToText(t *testing.T) {
	current := databaseOf(tableOf("customers",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
		nullable(column("Name", 2, schema.NewStringType(schema.TypeVarChar, 100)))))
	target := databaseOf(tableOf("customers",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
		nullable(column("NAME", 2, schema.NewSqlType(schema.TypeText)))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()
	down := m.Down.Render()

	if !strings.Contains(up, "DROP COLUMN [Name]") {
		t.Errorf("up must drop the varchar column:\n%s", up)
	}
	if !strings.Contains(up, "ADD [NAME] TEXT NULL") {
		t.Errorf("up must re-add the column as TEXT:\n%s", up)
	}
	if !strings.Contains(down, "DROP COLUMN [NAME]") {
		t.Errorf("down must drop the text column:\n%s", down)
	}
	if !strings.Contains(down, "ADD [Name] VARCHAR(100) NULL") {
		t.Errorf("down must restore the varchar column:\n%s", down)
	}
}

// Scenario: adding a NOT NULL column to a table that may contain rows. The
// backfill default rides in the same ALTER TABLE ADD so existing rows
// receive the fill value.
func TestScenarioAddNotNullColumn(t *testing.T) {
	current := databaseOf(tableOf("orders",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt)))))
	target := databaseOf(tableOf("orders",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
		column("myColumn", 2, schema.NewSqlType(schema.TypeInt))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()

	if !strings.Contains(up, "ADD [myColumn] INT NOT NULL CONSTRAINT [DF_") {
		t.Errorf("up must attach the backfill default in the ADD statement:\n%s", up)
	}
	if !strings.Contains(up, "] DEFAULT 0;") {
		t.Errorf("the backfill default for INT must be 0:\n%s", up)
	}
}

// Scenario: identity toggle on the table's only data column. The safe
// wrapper preserves the values through a temp column and the primary key
// is recreated.
func TestScenarioIdentityToggleOnSoleColumn(t *testing.T) {
	current := databaseOf(tableOf("counters",
		pk(identity(column("id", 1, schema.NewSqlType(schema.TypeInt))))))
	target := databaseOf(tableOf("counters",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt)))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()

	tempColumn := TempColumnName("counters", "id")
	if !strings.Contains(up, "ADD ["+tempColumn+"] INT NOT NULL") {
		t.Errorf("up must introduce the temp column:\n%s", up)
	}
	if !strings.Contains(up, "EXEC sp_executesql N'UPDATE [dbo].[counters] SET ["+tempColumn+"] = [id];';") {
		t.Errorf("up must copy values through dynamic SQL:\n%s", up)
	}
	if !strings.Contains(up, "EXEC sp_rename '[dbo].[counters].["+tempColumn+"]', 'id', 'COLUMN';") {
		t.Errorf("up must rename the temp column back to id:\n%s", up)
	}
	if !strings.Contains(up, "Drop primary keys") || !strings.Contains(up, "Recreate primary keys") {
		t.Errorf("the PK must be dropped and recreated around the rebuild:\n%s", up)
	}
	if strings.Index(up, "DROP COLUMN [id]") > strings.Index(up, "sp_rename") {
		t.Errorf("the old column must be dropped before the rename:\n%s", up)
	}
}

// Scenario: column reorder with an index on a moved column. The table is
// copied through a temp table under IDENTITY_INSERT, the index and PK are
// reestablished.
func TestScenarioReorderWithIndex(t *testing.T) {
	build := func(firstPos, lastPos int) *schema.Database {
		table := tableOf("people",
			pk(identity(column("id", 1, schema.NewSqlType(schema.TypeInt)))),
			nullable(column("firstName", firstPos, schema.NewStringType(schema.TypeNVarChar, 100))),
			nullable(column("lastName", lastPos, schema.NewStringType(schema.TypeNVarChar, 100))))
		table.Indexes = []*schema.Index{{
			Name: "IX_people_lastName", Schema: "dbo", Table: "people", Columns: []string{"lastName"},
		}}
		return databaseOf(table)
	}

	m := mustGenerate(t, build(2, 3), build(3, 2))
	up := m.Up.Render()

	tempTable := TempTableName("people")
	if !strings.Contains(up, "CREATE TABLE [dbo].["+tempTable+"]") {
		t.Errorf("up must build the temp table:\n%s", up)
	}
	if !strings.Contains(up, "SET IDENTITY_INSERT [dbo].["+tempTable+"] ON;") {
		t.Errorf("the copy must run under IDENTITY_INSERT:\n%s", up)
	}
	if !strings.Contains(up, "DROP TABLE [dbo].[people];") {
		t.Errorf("the original table must be dropped:\n%s", up)
	}
	if !strings.Contains(up, "EXEC sp_rename '[dbo].["+tempTable+"]', 'people';") {
		t.Errorf("the temp table must take the original name:\n%s", up)
	}
	if !strings.Contains(up, "DROP INDEX [IX_people_lastName]") ||
		!strings.Contains(up, "CREATE INDEX [IX_people_lastName]") {
		t.Errorf("the index must be dropped and recreated:\n%s", up)
	}
	if !strings.Contains(up, "Recreate primary keys") {
		t.Errorf("the PK must be reestablished after the swap:\n%s", up)
	}
	// column order in the temp table follows the target
	lastIdx := strings.Index(up, "[lastName] NVARCHAR(100)")
	firstIdx := strings.Index(up, "[firstName] NVARCHAR(100)")
	if lastIdx == -1 || firstIdx == -1 || lastIdx > firstIdx {
		t.Errorf("the temp table must carry the target column order:\n%s", up)
	}

	down := m.Down.Render()
	if !strings.Contains(down, "CREATE TABLE [dbo].["+tempTable+"]") {
		t.Errorf("the down direction must reorder too:\n%s", down)
	}
}

// Scenario: cyclical foreign keys. Every constraint is created WITH
// NOCHECK first, then the enforced ones are dropped and recreated WITH
// CHECK so is_not_trusted clears; a NOT ENFORCED constraint stays that way.
func TestScenarioCyclicalFkTrustRestoration(t *testing.T) {
	users := tableOf("Users",
		pk(identity(column("Id", 1, schema.NewSqlType(schema.TypeInt)))),
		nullable(column("InvitedById", 2, schema.NewSqlType(schema.TypeInt))),
		nullable(column("TeamId", 3, schema.NewSqlType(schema.TypeInt))))
	users.Columns[schema.Key("InvitedById")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_Users_Users", "Users", "InvitedById", "Users", "Id")}
	users.Columns[schema.Key("TeamId")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_Users_Teams", "Users", "TeamId", "Teams", "Id")}

	teams := tableOf("Teams",
		pk(identity(column("Id", 1, schema.NewSqlType(schema.TypeInt)))),
		column("OwnerId", 2, schema.NewSqlType(schema.TypeInt)))
	teams.Columns[schema.Key("OwnerId")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_Teams_Users", "Teams", "OwnerId", "Users", "Id")}

	projects := tableOf("Projects",
		pk(identity(column("Id", 1, schema.NewSqlType(schema.TypeInt)))),
		column("TeamId", 2, schema.NewSqlType(schema.TypeInt)))
	projects.Columns[schema.Key("TeamId")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_Projects_Teams", "Projects", "TeamId", "Teams", "Id")}

	userProjects := tableOf("UserProjects",
		pk(column("UserId", 1, schema.NewSqlType(schema.TypeInt))),
		pk(column("ProjectId", 2, schema.NewSqlType(schema.TypeInt))))
	notEnforced := fk("FK_UserProjects_Users", "UserProjects", "UserId", "Users", "Id")
	notEnforced.NotEnforced = true
	userProjects.Columns[schema.Key("UserId")].ForeignKeys = []*schema.ForeignKey{notEnforced}
	userProjects.Columns[schema.Key("ProjectId")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_UserProjects_Projects", "UserProjects", "ProjectId", "Projects", "Id")}

	m := mustGenerate(t, databaseOf(), databaseOf(users, teams, projects, userProjects))
	up := m.Up.Render()

	// every constraint appears WITH NOCHECK before any WITH CHECK
	firstWithCheck := strings.Index(up, "WITH CHECK ADD CONSTRAINT")
	if firstWithCheck == -1 {
		t.Fatalf("enforced constraints must be recreated WITH CHECK:\n%s", up)
	}
	for _, name := range []string{"FK_Users_Users", "FK_Users_Teams", "FK_Teams_Users",
		"FK_Projects_Teams", "FK_UserProjects_Users", "FK_UserProjects_Projects"} {
		nocheck := strings.Index(up, "WITH NOCHECK ADD CONSTRAINT ["+name+"]")
		if nocheck == -1 {
			t.Errorf("constraint %s must first be added WITH NOCHECK", name)
			continue
		}
		if nocheck > firstWithCheck {
			t.Errorf("all NOCHECK adds must precede the trust restoration pass:\n%s", up)
		}
	}

	// the enforced ones are dropped and recreated WITH CHECK
	for _, name := range []string{"FK_Users_Users", "FK_Teams_Users", "FK_Projects_Teams", "FK_UserProjects_Projects"} {
		if !strings.Contains(up, "WITH CHECK ADD CONSTRAINT ["+name+"]") {
			t.Errorf("enforced constraint %s must be recreated WITH CHECK:\n%s", name, up)
		}
		if !strings.Contains(up, "CHECK CONSTRAINT ["+name+"];") {
			t.Errorf("enforced constraint %s must end enabled:\n%s", name, up)
		}
	}

	// the NOT ENFORCED one is never trust-restored
	if strings.Contains(up, "WITH CHECK ADD CONSTRAINT [FK_UserProjects_Users]") {
		t.Errorf("a NOT ENFORCED constraint must stay untrusted:\n%s", up)
	}
}

// Scenario: dropping both data columns while adding a new one in the same
// diff. The add must come first so the table never passes through a
// zero-column state.
func TestScenarioZeroColumnPassThrough(t *testing.T) {
	current := databaseOf(tableOf("widgets",
		nullable(column("a", 1, schema.NewStringType(schema.TypeVarChar, 50))),
		nullable(column("b", 2, schema.NewStringType(schema.TypeVarChar, 50)))))
	target := databaseOf(tableOf("widgets",
		nullable(column("c", 1, schema.NewStringType(schema.TypeVarChar, 50)))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()

	addIdx := strings.Index(up, "ADD [c]")
	dropAIdx := strings.Index(up, "DROP COLUMN [a]")
	dropBIdx := strings.Index(up, "DROP COLUMN [b]")
	if addIdx == -1 || dropAIdx == -1 || dropBIdx == -1 {
		t.Fatalf("expected add and two drops:\n%s", up)
	}
	if addIdx > dropAIdx || addIdx > dropBIdx {
		t.Errorf("the add must precede the drops:\n%s", up)
	}
}

// The INSERT and SELECT lists of a whole-table copy must have the same
// cardinality; a column flipping between data and computed while the table
// reorders makes them diverge, and generation must refuse.
func TestReorderListCardinalityMismatchIsRejected(t *testing.T) {
	current := databaseOf(func() *schema.Table {
		table := tableOf("ledger",
			pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
			nullable(column("a", 2, schema.NewStringType(schema.TypeVarChar, 50))),
			nullable(column("total", 3, schema.NewSqlType(schema.TypeInt))))
		table.Indexes = []*schema.Index{{
			Name: "IX_ledger_a", Schema: "dbo", Table: "ledger", Columns: []string{"a"},
		}}
		return table
	}())
	target := databaseOf(func() *schema.Table {
		computed := column("total", 2, schema.NewSqlType(schema.TypeInt))
		computed.IsComputed = true
		computed.ComputedExpr = "([id]*2)"
		computed.IsNullable = true
		table := tableOf("ledger",
			pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
			nullable(column("a", 3, schema.NewStringType(schema.TypeVarChar, 50))),
			computed)
		table.Indexes = []*schema.Index{{
			Name: "IX_ledger_a", Schema: "dbo", Table: "ledger", Columns: []string{"a"},
		}}
		return table
	}())

	diff := schema.NewDifferWithLogger(logging.NewSilentLogger()).Diff(current, target)
	for _, tableDiff := range diff.ModifiedTables {
		tableDiff.Reorder = true
	}

	_, err := testGenerator().GenerateScript(diff, current, target)
	if err == nil {
		t.Fatal("expected an incoherent-diff error")
	}
	if errors.GetErrorType(err) != errors.ErrorTypeIncoherentDiff {
		t.Errorf("expected incoherent_diff, got %v", errors.GetErrorType(err))
	}
}

func TestGenerateAlterDropsDefaultFirst(t *testing.T) {
	withDefault := func(length int) *schema.Database {
		c := nullable(column("name", 1, schema.NewStringType(schema.TypeVarChar, length)))
		c.Default = &schema.Default{Name: "DF_legacy", Expression: "('x')"}
		return databaseOf(tableOf("users", pk(column("id", 2, schema.NewSqlType(schema.TypeInt))), c))
	}

	m := mustGenerate(t, withDefault(50), withDefault(100))
	up := m.Up.Render()

	dynamicDrop := strings.Index(up, "sys.default_constraints")
	alter := strings.Index(up, "ALTER COLUMN [name] VARCHAR(100) NULL;")
	readd := strings.Index(up, "ADD CONSTRAINT [DF_users_name_")
	if dynamicDrop == -1 || alter == -1 || readd == -1 {
		t.Fatalf("expected default drop, alter, default re-add:\n%s", up)
	}
	if !(dynamicDrop < alter && alter < readd) {
		t.Errorf("the default must be dropped before the alter and re-added after:\n%s", up)
	}
}

func TestGenerateIncoherentDiffIsRejected(t *testing.T) {
	// an index referencing a column the target table does not carry
	broken := tableOf("users", pk(column("id", 1, schema.NewSqlType(schema.TypeInt))))
	broken.Indexes = []*schema.Index{{
		Name: "IX_users_ghost", Schema: "dbo", Table: "users", Columns: []string{"ghost"},
	}}
	target := databaseOf(broken)
	current := databaseOf(tableOf("users",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
		nullable(column("extra", 2, schema.NewSqlType(schema.TypeInt)))))

	_, err := testGenerator().GenerateMigration("broken", current, target)
	if err == nil {
		t.Fatal("expected an incoherent-diff error")
	}
	if errors.GetErrorType(err) != errors.ErrorTypeIncoherentDiff {
		t.Errorf("expected incoherent_diff, got %v", errors.GetErrorType(err))
	}
}

func TestGenerateIdentitySeedChangeIsUnsupported(t *testing.T) {
	build := func(seed int64) *schema.Database {
		c := identity(column("id", 1, schema.NewSqlType(schema.TypeInt)))
		c.IdentitySeed = seed
		return databaseOf(tableOf("users", pk(c), nullable(column("name", 2, schema.NewStringType(schema.TypeVarChar, 50)))))
	}

	_, err := testGenerator().GenerateMigration("reseed", build(1), build(1000))
	if err == nil {
		t.Fatal("expected an unsupported error")
	}
	if errors.GetErrorType(err) != errors.ErrorTypeUnsupported {
		t.Errorf("expected unsupported, got %v", errors.GetErrorType(err))
	}
}

func TestGenerateProceduresAreBracketedByGo(t *testing.T) {
	build := func(body string) *schema.Database {
		db := schema.NewDatabase("testdb")
		db.Procedures[schema.Key("usp_report")] = &schema.StoredProcedure{
			Name: "usp_report", Schema: "dbo", Definition: body,
		}
		return db
	}

	m := mustGenerate(t, build("CREATE PROCEDURE [dbo].[usp_report] AS SELECT 1;"),
		build("CREATE PROCEDURE [dbo].[usp_report] AS SELECT 2;"))
	up := m.Up.Render()

	if !strings.Contains(up, "DROP PROCEDURE [dbo].[usp_report];") {
		t.Errorf("the replaced procedure must be dropped first:\n%s", up)
	}
	if !strings.Contains(up, "GO\nCREATE PROCEDURE [dbo].[usp_report] AS SELECT 2;\nGO") {
		t.Errorf("procedure creation must be bracketed by GO markers:\n%s", up)
	}
}

func TestGenerateSequenceModificationIsDropCreate(t *testing.T) {
	build := func(increment int64) *schema.Database {
		db := schema.NewDatabase("testdb")
		db.Sequences[schema.Key("seq_orders")] = &schema.Sequence{
			Name: "seq_orders", Schema: "dbo", Type: schema.NewSqlType(schema.TypeBigInt),
			Start: 1, Increment: increment,
		}
		return db
	}

	m := mustGenerate(t, build(1), build(5))
	up := m.Up.Render()

	dropIdx := strings.Index(up, "DROP SEQUENCE [dbo].[seq_orders];")
	createIdx := strings.Index(up, "CREATE SEQUENCE [dbo].[seq_orders] AS BIGINT START WITH 1 INCREMENT BY 5")
	if dropIdx == -1 || createIdx == -1 {
		t.Fatalf("sequence modification must drop and recreate:\n%s", up)
	}
	if dropIdx > createIdx {
		t.Errorf("the drop must precede the create:\n%s", up)
	}
}

func TestGenerateDroppedTableSeversInboundFks(t *testing.T) {
	users := tableOf("users", pk(column("id", 1, schema.NewSqlType(schema.TypeInt))))
	teams := tableOf("teams",
		pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
		column("owner_id", 2, schema.NewSqlType(schema.TypeInt)))
	teams.Columns[schema.Key("owner_id")].ForeignKeys = []*schema.ForeignKey{
		fk("FK_teams_users", "teams", "owner_id", "users", "id")}

	current := databaseOf(users, teams)
	target := databaseOf(
		tableOf("teams",
			pk(column("id", 1, schema.NewSqlType(schema.TypeInt))),
			column("owner_id", 2, schema.NewSqlType(schema.TypeInt))))

	m := mustGenerate(t, current, target)
	up := m.Up.Render()

	dropFkIdx := strings.Index(up, "DROP CONSTRAINT [FK_teams_users]")
	dropTableIdx := strings.Index(up, "DROP TABLE [dbo].[users];")
	if dropFkIdx == -1 || dropTableIdx == -1 {
		t.Fatalf("expected FK drop and table drop:\n%s", up)
	}
	if dropFkIdx > dropTableIdx {
		t.Errorf("the inbound FK must be severed before the table drop:\n%s", up)
	}
}

func TestDownRestoresDroppedProcedure(t *testing.T) {
	body := "CREATE PROCEDURE [dbo].[usp_cleanup] AS DELETE FROM [dbo].[log];"
	current := schema.NewDatabase("testdb")
	current.Procedures[schema.Key("usp_cleanup")] = &schema.StoredProcedure{
		Name: "usp_cleanup", Schema: "dbo", Definition: body,
	}
	current.Tables[schema.Key("log")] = tableOf("log", pk(column("id", 1, schema.NewSqlType(schema.TypeInt))))
	target := databaseOf(tableOf("log", pk(column("id", 1, schema.NewSqlType(schema.TypeInt)))))

	m := mustGenerate(t, current, target)
	if !strings.Contains(m.Up.Render(), "DROP PROCEDURE [dbo].[usp_cleanup];") {
		t.Error("up must drop the procedure")
	}
	if !strings.Contains(m.Down.Render(), body) {
		t.Error("down must restore the full recorded definition")
	}
}
