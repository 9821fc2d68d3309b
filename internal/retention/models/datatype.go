package models

import (
	dErrors "vitalis/pkg/domain-errors"
)

// DataType names a category of stored record covered by retention.
type DataType string

const (
	DataTypeGlucoseReadings DataType = "glucose_readings"
	DataTypeMealLogs        DataType = "meal_logs"
	DataTypeExerciseLogs    DataType = "exercise_logs"
	DataTypeMedicationLogs  DataType = "medication_logs"
	DataTypeAppointments    DataType = "appointments"
	DataTypePrescriptions   DataType = "prescriptions"
	DataTypeAuditLogs       DataType = "audit_logs"
)

// KnownDataTypes lists every data type a policy may name, in display order.
var KnownDataTypes = []DataType{
	DataTypeAppointments,
	DataTypeAuditLogs,
	DataTypeExerciseLogs,
	DataTypeGlucoseReadings,
	DataTypeMealLogs,
	DataTypeMedicationLogs,
	DataTypePrescriptions,
}

func (d DataType) String() string { return string(d) }

func (d DataType) IsKnown() bool {
	for _, k := range KnownDataTypes {
		if k == d {
			return true
		}
	}
	return false
}

// Purgeable reports whether a retention review may erase records of this type.
// Audit log entries are append-only, so their flags are only ever marked.
func (d DataType) Purgeable() bool {
	return d != DataTypeAuditLogs
}

func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.IsKnown() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown data type: "+s)
	}
	return d, nil
}

// storageEstimateKB is the approximate on-disk size of one record per data type.
var storageEstimateKB = map[DataType]int{
	DataTypeGlucoseReadings: 1,
	DataTypeMealLogs:        5,
	DataTypeExerciseLogs:    2,
	DataTypeMedicationLogs:  1,
	DataTypeAppointments:    2,
	DataTypePrescriptions:   3,
	DataTypeAuditLogs:       1,
}

// EstimatedSizeKB returns the storage estimate for one record. Types without
// an entry count as 1 KB.
func (d DataType) EstimatedSizeKB() int {
	if kb, ok := storageEstimateKB[d]; ok {
		return kb
	}
	return 1
}
