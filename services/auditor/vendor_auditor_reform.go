package auditor

// generated with gopkg.in/reform.v1

import (
	"fmt"
	"strings"

	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/parse"
)

type vendorCallTableType struct {
	s parse.StructInfo
	z []interface{}
}

// Schema returns a schema name in SQL database ("").
func (v *vendorCallTableType) Schema() string {
	return v.s.SQLSchema
}

// Name returns a view or table name in SQL database ("vendor_calls").
func (v *vendorCallTableType) Name() string {
	return v.s.SQLName
}

// Columns returns a new slice of column names for that view or table in SQL database.
func (v *vendorCallTableType) Columns() []string {
	return []string{"id", "vendor", "method", "path", "status_code", "duration_ms", "error", "request_id", "created_at"}
}

// NewStruct makes a new struct for that view or table.
func (v *vendorCallTableType) NewStruct() reform.Struct {
	return new(VendorCall)
}

// NewRecord makes a new record for that table.
func (v *vendorCallTableType) NewRecord() reform.Record {
	return new(VendorCall)
}

// PKColumnIndex returns an index of primary key column for that table in SQL database.
func (v *vendorCallTableType) PKColumnIndex() uint {
	return uint(v.s.PKFieldIndex)
}

// VendorCallTable represents vendor_calls view or table in SQL database.
var VendorCallTable = &vendorCallTableType{
	s: parse.StructInfo{Type: "VendorCall", SQLSchema: "", SQLName: "vendor_calls", Fields: []parse.FieldInfo{{Name: "ID", Column: "id"}, {Name: "Vendor", Column: "vendor"}, {Name: "Method", Column: "method"}, {Name: "Path", Column: "path"}, {Name: "StatusCode", Column: "status_code"}, {Name: "DurationMS", Column: "duration_ms"}, {Name: "Error", Column: "error"}, {Name: "RequestID", Column: "request_id"}, {Name: "CreatedAt", Column: "created_at"}}, PKFieldIndex: 0},
	z: new(VendorCall).Values(),
}

// String returns a string representation of this struct or record.
func (s VendorCall) String() string {
	res := make([]string, 9)
	res[0] = "ID: " + reform.Inspect(s.ID, true)
	res[1] = "Vendor: " + reform.Inspect(s.Vendor, true)
	res[2] = "Method: " + reform.Inspect(s.Method, true)
	res[3] = "Path: " + reform.Inspect(s.Path, true)
	res[4] = "StatusCode: " + reform.Inspect(s.StatusCode, true)
	res[5] = "DurationMS: " + reform.Inspect(s.DurationMS, true)
	res[6] = "Error: " + reform.Inspect(s.Error, true)
	res[7] = "RequestID: " + reform.Inspect(s.RequestID, true)
	res[8] = "CreatedAt: " + reform.Inspect(s.CreatedAt, true)
	return strings.Join(res, ", ")
}

// Values returns a slice of struct or record field values.
// Returned interface{} values are never untyped nils.
func (s *VendorCall) Values() []interface{} {
	return []interface{}{
		s.ID,
		s.Vendor,
		s.Method,
		s.Path,
		s.StatusCode,
		s.DurationMS,
		s.Error,
		s.RequestID,
		s.CreatedAt,
	}
}

// Pointers returns a slice of pointers to struct or record fields.
// Returned interface{} values are never untyped nils.
func (s *VendorCall) Pointers() []interface{} {
	return []interface{}{
		&s.ID,
		&s.Vendor,
		&s.Method,
		&s.Path,
		&s.StatusCode,
		&s.DurationMS,
		&s.Error,
		&s.RequestID,
		&s.CreatedAt,
	}
}

// View returns View object for that struct.
func (s *VendorCall) View() reform.View {
	return VendorCallTable
}

// Table returns Table object for that record.
func (s *VendorCall) Table() reform.Table {
	return VendorCallTable
}

// PKValue returns a value of primary key for that record.
// Returned interface{} value is never untyped nil.
func (s *VendorCall) PKValue() interface{} {
	return s.ID
}

// PKPointer returns a pointer to primary key field for that record.
// Returned interface{} value is never untyped nil.
func (s *VendorCall) PKPointer() interface{} {
	return &s.ID
}

// HasPK returns true if record has non-zero primary key set, false otherwise.
func (s *VendorCall) HasPK() bool {
	return s.ID != VendorCallTable.z[VendorCallTable.s.PKFieldIndex]
}

// SetPK sets record primary key.
func (s *VendorCall) SetPK(pk interface{}) {
	if i64, ok := pk.(int64); ok {
		s.ID = int64(i64)
	} else {
		s.ID = pk.(int64)
	}
}

// check interfaces
var (
	_ reform.View   = VendorCallTable
	_ reform.Struct = new(VendorCall)
	_ reform.Table  = VendorCallTable
	_ reform.Record = new(VendorCall)
	_ fmt.Stringer  = new(VendorCall)
)
