package provider

// generated with gopkg.in/reform.v1

import (
	"fmt"
	"strings"

	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/parse"
)

type paymentOrderTableType struct {
	s parse.StructInfo
	z []interface{}
}

// Schema returns a schema name in SQL database ("").
func (v *paymentOrderTableType) Schema() string {
	return v.s.SQLSchema
}

// Name returns a view or table name in SQL database ("payment_orders").
func (v *paymentOrderTableType) Name() string {
	return v.s.SQLName
}

// Columns returns a new slice of column names for that view or table in SQL database.
func (v *paymentOrderTableType) Columns() []string {
	return []string{"order_number", "payment_system_name", "raw_order_status", "amount", "currency", "phone_number", "created_at", "updated_at"}
}

// NewStruct makes a new struct for that view or table.
func (v *paymentOrderTableType) NewStruct() reform.Struct {
	return new(PaymentOrder)
}

// NewRecord makes a new record for that table.
func (v *paymentOrderTableType) NewRecord() reform.Record {
	return new(PaymentOrder)
}

// PKColumnIndex returns an index of primary key column for that table in SQL database.
func (v *paymentOrderTableType) PKColumnIndex() uint {
	return uint(v.s.PKFieldIndex)
}

// PaymentOrderTable represents payment_orders view or table in SQL database.
var PaymentOrderTable = &paymentOrderTableType{
	s: parse.StructInfo{Type: "PaymentOrder", SQLSchema: "", SQLName: "payment_orders", Fields: []parse.FieldInfo{{Name: "OrderNumber", Column: "order_number"}, {Name: "PaymentSystemName", Column: "payment_system_name"}, {Name: "RawOrderStatus", Column: "raw_order_status"}, {Name: "Amount", Column: "amount"}, {Name: "Currency", Column: "currency"}, {Name: "PhoneNumber", Column: "phone_number"}, {Name: "CreatedAt", Column: "created_at"}, {Name: "UpdatedAt", Column: "updated_at"}}, PKFieldIndex: 0},
	z: new(PaymentOrder).Values(),
}

// String returns a string representation of this struct or record.
func (s PaymentOrder) String() string {
	res := make([]string, 8)
	res[0] = "OrderNumber: " + reform.Inspect(s.OrderNumber, true)
	res[1] = "PaymentSystemName: " + reform.Inspect(s.PaymentSystemName, true)
	res[2] = "RawOrderStatus: " + reform.Inspect(s.RawOrderStatus, true)
	res[3] = "Amount: " + reform.Inspect(s.Amount, true)
	res[4] = "Currency: " + reform.Inspect(s.Currency, true)
	res[5] = "PhoneNumber: " + reform.Inspect(s.PhoneNumber, true)
	res[6] = "CreatedAt: " + reform.Inspect(s.CreatedAt, true)
	res[7] = "UpdatedAt: " + reform.Inspect(s.UpdatedAt, true)
	return strings.Join(res, ", ")
}

// Values returns a slice of struct or record field values.
// Returned interface{} values are never untyped nils.
func (s *PaymentOrder) Values() []interface{} {
	return []interface{}{
		s.OrderNumber,
		s.PaymentSystemName,
		s.RawOrderStatus,
		s.Amount,
		s.Currency,
		s.PhoneNumber,
		s.CreatedAt,
		s.UpdatedAt,
	}
}

// Pointers returns a slice of pointers to struct or record fields.
// Returned interface{} values are never untyped nils.
func (s *PaymentOrder) Pointers() []interface{} {
	return []interface{}{
		&s.OrderNumber,
		&s.PaymentSystemName,
		&s.RawOrderStatus,
		&s.Amount,
		&s.Currency,
		&s.PhoneNumber,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
}

// View returns View object for that struct.
func (s *PaymentOrder) View() reform.View {
	return PaymentOrderTable
}

// Table returns Table object for that record.
func (s *PaymentOrder) Table() reform.Table {
	return PaymentOrderTable
}

// PKValue returns a value of primary key for that record.
// Returned interface{} value is never untyped nil.
func (s *PaymentOrder) PKValue() interface{} {
	return s.OrderNumber
}

// PKPointer returns a pointer to primary key field for that record.
// Returned interface{} value is never untyped nil.
func (s *PaymentOrder) PKPointer() interface{} {
	return &s.OrderNumber
}

// HasPK returns true if record has non-zero primary key set, false otherwise.
func (s *PaymentOrder) HasPK() bool {
	return s.OrderNumber != PaymentOrderTable.z[PaymentOrderTable.s.PKFieldIndex]
}

// SetPK sets record primary key.
func (s *PaymentOrder) SetPK(pk interface{}) {
	s.OrderNumber = pk.(string)
}

// check interfaces
var (
	_ reform.View   = PaymentOrderTable
	_ reform.Struct = new(PaymentOrder)
	_ reform.Table  = PaymentOrderTable
	_ reform.Record = new(PaymentOrder)
	_ fmt.Stringer  = new(PaymentOrder)
)
