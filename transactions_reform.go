package airtime

// generated with gopkg.in/reform.v1

import (
	"fmt"
	"strings"

	"gopkg.in/reform.v1"
	"gopkg.in/reform.v1/parse"
)

type transactionRecordTableType struct {
	s parse.StructInfo
	z []interface{}
}

// Schema returns a schema name in SQL database ("").
func (v *transactionRecordTableType) Schema() string {
	return v.s.SQLSchema
}

// Name returns a view or table name in SQL database ("transactions").
func (v *transactionRecordTableType) Name() string {
	return v.s.SQLName
}

// Columns returns a new slice of column names for that view or table in SQL database.
func (v *transactionRecordTableType) Columns() []string {
	return []string{"transaction_id", "upstream_id", "product_id", "phone_number", "payment_id", "status_id", "status_message", "status_class", "operator_name", "product_description", "retail_price", "wholesale_price", "confirmed_at", "created_at"}
}

// NewStruct makes a new struct for that view or table.
func (v *transactionRecordTableType) NewStruct() reform.Struct {
	return new(TransactionRecord)
}

// NewRecord makes a new record for that table.
func (v *transactionRecordTableType) NewRecord() reform.Record {
	return new(TransactionRecord)
}

// PKColumnIndex returns an index of primary key column for that table in SQL database.
func (v *transactionRecordTableType) PKColumnIndex() uint {
	return uint(v.s.PKFieldIndex)
}

// TransactionRecordTable represents transactions view or table in SQL database.
var TransactionRecordTable = &transactionRecordTableType{
	s: parse.StructInfo{Type: "TransactionRecord", SQLSchema: "", SQLName: "transactions", Fields: []parse.FieldInfo{{Name: "TransactionID", Column: "transaction_id"}, {Name: "UpstreamID", Column: "upstream_id"}, {Name: "ProductID", Column: "product_id"}, {Name: "PhoneNumber", Column: "phone_number"}, {Name: "PaymentID", Column: "payment_id"}, {Name: "StatusID", Column: "status_id"}, {Name: "StatusMessage", Column: "status_message"}, {Name: "StatusClass", Column: "status_class"}, {Name: "OperatorName", Column: "operator_name"}, {Name: "ProductDescription", Column: "product_description"}, {Name: "RetailPrice", Column: "retail_price"}, {Name: "WholesalePrice", Column: "wholesale_price"}, {Name: "ConfirmedAt", Column: "confirmed_at"}, {Name: "CreatedAt", Column: "created_at"}}, PKFieldIndex: 0},
	z: new(TransactionRecord).Values(),
}

// String returns a string representation of this struct or record.
func (s TransactionRecord) String() string {
	res := make([]string, 14)
	res[0] = "TransactionID: " + reform.Inspect(s.TransactionID, true)
	res[1] = "UpstreamID: " + reform.Inspect(s.UpstreamID, true)
	res[2] = "ProductID: " + reform.Inspect(s.ProductID, true)
	res[3] = "PhoneNumber: " + reform.Inspect(s.PhoneNumber, true)
	res[4] = "PaymentID: " + reform.Inspect(s.PaymentID, true)
	res[5] = "StatusID: " + reform.Inspect(s.StatusID, true)
	res[6] = "StatusMessage: " + reform.Inspect(s.StatusMessage, true)
	res[7] = "StatusClass: " + reform.Inspect(s.StatusClass, true)
	res[8] = "OperatorName: " + reform.Inspect(s.OperatorName, true)
	res[9] = "ProductDescription: " + reform.Inspect(s.ProductDescription, true)
	res[10] = "RetailPrice: " + reform.Inspect(s.RetailPrice, true)
	res[11] = "WholesalePrice: " + reform.Inspect(s.WholesalePrice, true)
	res[12] = "ConfirmedAt: " + reform.Inspect(s.ConfirmedAt, true)
	res[13] = "CreatedAt: " + reform.Inspect(s.CreatedAt, true)
	return strings.Join(res, ", ")
}

// Values returns a slice of struct or record field values.
// Returned interface{} values are never untyped nils.
func (s *TransactionRecord) Values() []interface{} {
	return []interface{}{
		s.TransactionID,
		s.UpstreamID,
		s.ProductID,
		s.PhoneNumber,
		s.PaymentID,
		s.StatusID,
		s.StatusMessage,
		s.StatusClass,
		s.OperatorName,
		s.ProductDescription,
		s.RetailPrice,
		s.WholesalePrice,
		s.ConfirmedAt,
		s.CreatedAt,
	}
}

// Pointers returns a slice of pointers to struct or record fields.
// Returned interface{} values are never untyped nils.
func (s *TransactionRecord) Pointers() []interface{} {
	return []interface{}{
		&s.TransactionID,
		&s.UpstreamID,
		&s.ProductID,
		&s.PhoneNumber,
		&s.PaymentID,
		&s.StatusID,
		&s.StatusMessage,
		&s.StatusClass,
		&s.OperatorName,
		&s.ProductDescription,
		&s.RetailPrice,
		&s.WholesalePrice,
		&s.ConfirmedAt,
		&s.CreatedAt,
	}
}

// View returns View object for that struct.
func (s *TransactionRecord) View() reform.View {
	return TransactionRecordTable
}

// Table returns Table object for that record.
func (s *TransactionRecord) Table() reform.Table {
	return TransactionRecordTable
}

// PKValue returns a value of primary key for that record.
// Returned interface{} value is never untyped nil.
func (s *TransactionRecord) PKValue() interface{} {
	return s.TransactionID
}

// PKPointer returns a pointer to primary key field for that record.
// Returned interface{} value is never untyped nil.
func (s *TransactionRecord) PKPointer() interface{} {
	return &s.TransactionID
}

// HasPK returns true if record has non-zero primary key set, false otherwise.
func (s *TransactionRecord) HasPK() bool {
	return s.TransactionID != TransactionRecordTable.z[TransactionRecordTable.s.PKFieldIndex]
}

// SetPK sets record primary key.
func (s *TransactionRecord) SetPK(pk interface{}) {
	s.TransactionID = pk.(string)
}

// check interfaces
var (
	_ reform.View   = TransactionRecordTable
	_ reform.Struct = new(TransactionRecord)
	_ reform.Table  = TransactionRecordTable
	_ reform.Record = new(TransactionRecord)
	_ fmt.Stringer  = new(TransactionRecord)
)

type escalationTableType struct {
	s parse.StructInfo
	z []interface{}
}

// Schema returns a schema name in SQL database ("").
func (v *escalationTableType) Schema() string {
	return v.s.SQLSchema
}

// Name returns a view or table name in SQL database ("escalations").
func (v *escalationTableType) Name() string {
	return v.s.SQLName
}

// Columns returns a new slice of column names for that view or table in SQL database.
func (v *escalationTableType) Columns() []string {
	return []string{"transaction_id", "payment_id", "phone_number", "product_id", "amount", "currency", "reason", "status", "attempts", "created_at", "updated_at"}
}

// NewStruct makes a new struct for that view or table.
func (v *escalationTableType) NewStruct() reform.Struct {
	return new(Escalation)
}

// NewRecord makes a new record for that table.
func (v *escalationTableType) NewRecord() reform.Record {
	return new(Escalation)
}

// PKColumnIndex returns an index of primary key column for that table in SQL database.
func (v *escalationTableType) PKColumnIndex() uint {
	return uint(v.s.PKFieldIndex)
}

// EscalationTable represents escalations view or table in SQL database.
var EscalationTable = &escalationTableType{
	s: parse.StructInfo{Type: "Escalation", SQLSchema: "", SQLName: "escalations", Fields: []parse.FieldInfo{{Name: "TransactionID", Column: "transaction_id"}, {Name: "PaymentID", Column: "payment_id"}, {Name: "PhoneNumber", Column: "phone_number"}, {Name: "ProductID", Column: "product_id"}, {Name: "Amount", Column: "amount"}, {Name: "Currency", Column: "currency"}, {Name: "Reason", Column: "reason"}, {Name: "Status", Column: "status"}, {Name: "Attempts", Column: "attempts"}, {Name: "CreatedAt", Column: "created_at"}, {Name: "UpdatedAt", Column: "updated_at"}}, PKFieldIndex: 0},
	z: new(Escalation).Values(),
}

// String returns a string representation of this struct or record.
func (s Escalation) String() string {
	res := make([]string, 11)
	res[0] = "TransactionID: " + reform.Inspect(s.TransactionID, true)
	res[1] = "PaymentID: " + reform.Inspect(s.PaymentID, true)
	res[2] = "PhoneNumber: " + reform.Inspect(s.PhoneNumber, true)
	res[3] = "ProductID: " + reform.Inspect(s.ProductID, true)
	res[4] = "Amount: " + reform.Inspect(s.Amount, true)
	res[5] = "Currency: " + reform.Inspect(s.Currency, true)
	res[6] = "Reason: " + reform.Inspect(s.Reason, true)
	res[7] = "Status: " + reform.Inspect(s.Status, true)
	res[8] = "Attempts: " + reform.Inspect(s.Attempts, true)
	res[9] = "CreatedAt: " + reform.Inspect(s.CreatedAt, true)
	res[10] = "UpdatedAt: " + reform.Inspect(s.UpdatedAt, true)
	return strings.Join(res, ", ")
}

// Values returns a slice of struct or record field values.
// Returned interface{} values are never untyped nils.
func (s *Escalation) Values() []interface{} {
	return []interface{}{
		s.TransactionID,
		s.PaymentID,
		s.PhoneNumber,
		s.ProductID,
		s.Amount,
		s.Currency,
		s.Reason,
		s.Status,
		s.Attempts,
		s.CreatedAt,
		s.UpdatedAt,
	}
}

// Pointers returns a slice of pointers to struct or record fields.
// Returned interface{} values are never untyped nils.
func (s *Escalation) Pointers() []interface{} {
	return []interface{}{
		&s.TransactionID,
		&s.PaymentID,
		&s.PhoneNumber,
		&s.ProductID,
		&s.Amount,
		&s.Currency,
		&s.Reason,
		&s.Status,
		&s.Attempts,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
}

// View returns View object for that struct.
func (s *Escalation) View() reform.View {
	return EscalationTable
}

// Table returns Table object for that record.
func (s *Escalation) Table() reform.Table {
	return EscalationTable
}

// PKValue returns a value of primary key for that record.
// Returned interface{} value is never untyped nil.
func (s *Escalation) PKValue() interface{} {
	return s.TransactionID
}

// PKPointer returns a pointer to primary key field for that record.
// Returned interface{} value is never untyped nil.
func (s *Escalation) PKPointer() interface{} {
	return &s.TransactionID
}

// HasPK returns true if record has non-zero primary key set, false otherwise.
func (s *Escalation) HasPK() bool {
	return s.TransactionID != EscalationTable.z[EscalationTable.s.PKFieldIndex]
}

// SetPK sets record primary key.
func (s *Escalation) SetPK(pk interface{}) {
	s.TransactionID = pk.(string)
}

// check interfaces
var (
	_ reform.View   = EscalationTable
	_ reform.Struct = new(Escalation)
	_ reform.Table  = EscalationTable
	_ reform.Record = new(Escalation)
	_ fmt.Stringer  = new(Escalation)
)
