package schema

import (
	"fmt"
	"strings"
)

// SqlTypeKind enumerates the SQL Server type universe the engine understands.
type SqlTypeKind int

const (
	TypeBit SqlTypeKind = iota
	TypeTinyInt
	TypeSmallInt
	TypeInt
	TypeBigInt
	TypeDecimal
	TypeNumeric
	TypeMoney
	TypeSmallMoney
	TypeFloat
	TypeReal
	TypeChar
	TypeVarChar
	TypeNChar
	TypeNVarChar
	TypeBinary
	TypeVarBinary
	TypeDate
	TypeTime
	TypeSmallDateTime
	TypeDateTime
	TypeDateTime2
	TypeDateTimeOffset
	TypeUniqueIdentifier
	TypeRowVersion
	TypeText
	TypeNText
	TypeImage
	TypeXml
)

// TypeFamily groups kinds whose values are mutually assignable for the
// purposes of ALTER COLUMN classification.
type TypeFamily int

const (
	FamilyInteger TypeFamily = iota
	FamilyExact
	FamilyApproximate
	FamilyAnsiString
	FamilyUnicodeString
	FamilyBinary
	FamilyDateTime
	FamilyBit
	FamilyGuid
	FamilyRowVersion
	FamilyLegacyLob
	FamilyXml
)

// MaxLength is the Length value denoting (MAX) for variable types.
const MaxLength = -1

// SqlType is a tagged variant over the SQL Server type universe. Length
// carries character/byte length for string and binary kinds (MaxLength for
// MAX), Precision/Scale carry decimal shape, and Scale doubles as the
// fractional-second precision for time/datetime2/datetimeoffset.
type SqlType struct {
	Kind      SqlTypeKind
	Length    int
	Precision int
	Scale     int
}

var typeNames = map[SqlTypeKind]string{
	TypeBit:              "BIT",
	TypeTinyInt:          "TINYINT",
	TypeSmallInt:         "SMALLINT",
	TypeInt:              "INT",
	TypeBigInt:           "BIGINT",
	TypeDecimal:          "DECIMAL",
	TypeNumeric:          "NUMERIC",
	TypeMoney:            "MONEY",
	TypeSmallMoney:       "SMALLMONEY",
	TypeFloat:            "FLOAT",
	TypeReal:             "REAL",
	TypeChar:             "CHAR",
	TypeVarChar:          "VARCHAR",
	TypeNChar:            "NCHAR",
	TypeNVarChar:         "NVARCHAR",
	TypeBinary:           "BINARY",
	TypeVarBinary:        "VARBINARY",
	TypeDate:             "DATE",
	TypeTime:             "TIME",
	TypeSmallDateTime:    "SMALLDATETIME",
	TypeDateTime:         "DATETIME",
	TypeDateTime2:        "DATETIME2",
	TypeDateTimeOffset:   "DATETIMEOFFSET",
	TypeUniqueIdentifier: "UNIQUEIDENTIFIER",
	TypeRowVersion:       "ROWVERSION",
	TypeText:             "TEXT",
	TypeNText:            "NTEXT",
	TypeImage:            "IMAGE",
	TypeXml:              "XML",
}

var typesByName = func() map[string]SqlTypeKind {
	m := make(map[string]SqlTypeKind, len(typeNames)+2)
	for kind, name := range typeNames {
		m[strings.ToLower(name)] = kind
	}
	// catalog aliases
	m["timestamp"] = TypeRowVersion
	m["dec"] = TypeDecimal
	return m
}()

// ParseTypeKind resolves a SQL Server type name as reported by sys.types.
func ParseTypeKind(name string) (SqlTypeKind, bool) {
	kind, ok := typesByName[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// Name returns the canonical upper-case type name without shape.
func (t SqlType) Name() string {
	return typeNames[t.Kind]
}

// Render returns the full SQL Server type expression, e.g. NVARCHAR(MAX),
// DECIMAL(18,2), DATETIME2(7).
func (t SqlType) Render() string {
	switch t.Kind {
	case TypeDecimal, TypeNumeric:
		return fmt.Sprintf("%s(%d,%d)", t.Name(), t.Precision, t.Scale)
	case TypeChar, TypeVarChar, TypeNChar, TypeNVarChar, TypeBinary, TypeVarBinary:
		if t.Length == MaxLength {
			return fmt.Sprintf("%s(MAX)", t.Name())
		}
		return fmt.Sprintf("%s(%d)", t.Name(), t.Length)
	case TypeTime, TypeDateTime2, TypeDateTimeOffset:
		return fmt.Sprintf("%s(%d)", t.Name(), t.Scale)
	case TypeFloat:
		if t.Precision > 0 {
			return fmt.Sprintf("FLOAT(%d)", t.Precision)
		}
		return "FLOAT"
	default:
		return t.Name()
	}
}

// Family returns the assignability family of the type.
func (t SqlType) Family() TypeFamily {
	switch t.Kind {
	case TypeTinyInt, TypeSmallInt, TypeInt, TypeBigInt:
		return FamilyInteger
	case TypeDecimal, TypeNumeric, TypeMoney, TypeSmallMoney:
		return FamilyExact
	case TypeFloat, TypeReal:
		return FamilyApproximate
	case TypeChar, TypeVarChar:
		return FamilyAnsiString
	case TypeNChar, TypeNVarChar:
		return FamilyUnicodeString
	case TypeBinary, TypeVarBinary:
		return FamilyBinary
	case TypeDate, TypeTime, TypeSmallDateTime, TypeDateTime, TypeDateTime2, TypeDateTimeOffset:
		return FamilyDateTime
	case TypeBit:
		return FamilyBit
	case TypeUniqueIdentifier:
		return FamilyGuid
	case TypeRowVersion:
		return FamilyRowVersion
	case TypeText, TypeNText, TypeImage:
		return FamilyLegacyLob
	default:
		return FamilyXml
	}
}

// IsLegacyLob reports whether the type is one of text/ntext/image, which
// SQL Server cannot convert with ALTER COLUMN.
func (t SqlType) IsLegacyLob() bool {
	return t.Family() == FamilyLegacyLob
}

// IsRowVersion reports whether the type is timestamp/rowversion.
func (t SqlType) IsRowVersion() bool {
	return t.Kind == TypeRowVersion
}

// Equal reports structural equality of two types.
func (t SqlType) Equal(other SqlType) bool {
	if t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case TypeDecimal, TypeNumeric:
		return t.Precision == other.Precision && t.Scale == other.Scale
	case TypeChar, TypeVarChar, TypeNChar, TypeNVarChar, TypeBinary, TypeVarBinary:
		return t.Length == other.Length
	case TypeTime, TypeDateTime2, TypeDateTimeOffset:
		return t.Scale == other.Scale
	case TypeFloat:
		return t.Precision == other.Precision
	default:
		return true
	}
}

// Narrows reports whether changing a column from t to other risks data
// truncation: shorter strings or binary, reduced decimal precision or
// scale, or a smaller integer kind.
func (t SqlType) Narrows(other SqlType) bool {
	if t.Family() != other.Family() {
		return false
	}
	switch t.Family() {
	case FamilyInteger:
		return integerRank(other.Kind) < integerRank(t.Kind)
	case FamilyExact:
		return other.Precision < t.Precision || other.Scale < t.Scale
	case FamilyAnsiString, FamilyUnicodeString, FamilyBinary:
		if t.Length == MaxLength {
			return other.Length != MaxLength
		}
		return other.Length != MaxLength && other.Length < t.Length
	default:
		return false
	}
}

func integerRank(kind SqlTypeKind) int {
	switch kind {
	case TypeTinyInt:
		return 1
	case TypeSmallInt:
		return 2
	case TypeInt:
		return 3
	default:
		return 4
	}
}

// NewSqlType builds a shapeless type.
func NewSqlType(kind SqlTypeKind) SqlType {
	return SqlType{Kind: kind}
}

// NewStringType builds a string or binary type with the given length
// (MaxLength for MAX).
func NewStringType(kind SqlTypeKind, length int) SqlType {
	return SqlType{Kind: kind, Length: length}
}

// NewDecimalType builds a decimal/numeric type.
func NewDecimalType(kind SqlTypeKind, precision, scale int) SqlType {
	return SqlType{Kind: kind, Precision: precision, Scale: scale}
}
