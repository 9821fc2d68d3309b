package main

import (
	"time"

	"github.com/google/uuid"

	"vitalis/internal/export"
	"vitalis/internal/retention/domains"
	"vitalis/internal/retention/models"
	id "vitalis/pkg/domain"
)

// demoPatient owns the in-memory dataset. Mint a token for it with
// `devtoken -user <id>` to see scans and exports return data.
var demoPatient = id.UserID(uuid.MustParse("6f1c2d3e-4b5a-4c6d-8e7f-90a1b2c3d4e5"))

// demoRecord is one health record, visible to both the retention scanner
// and the export aggregator.
type demoRecord struct {
	dataType  models.DataType
	exportKey string
	recordID  string
	age       time.Duration
	row       export.Row
}

const (
	day     = 24 * time.Hour
	demoAge = 8 * 365 * day
)

// demoRecords mixes records past every default retention window with
// recent ones that a scan must leave alone.
func demoRecords() []demoRecord {
	old := demoAge
	return []demoRecord{
		{models.DataTypeGlucoseReadings, "glucoseReadings", "demo-glucose-old", old, export.Row{"test_time": "07:30", "glucose_value": 112, "notes": "fasting"}},
		{models.DataTypeGlucoseReadings, "glucoseReadings", "demo-glucose-new", 2 * day, export.Row{"test_time": "08:05", "glucose_value": 98}},
		{models.DataTypeMealLogs, "mealLogs", "demo-meal-old", old, export.Row{"meal_type": "breakfast", "description": "oatmeal", "portion_size": "1 bowl"}},
		{models.DataTypeExerciseLogs, "exerciseLogs", "demo-exercise-old", old, export.Row{"exercise_type": "walking", "duration_minutes": 30, "intensity": "low"}},
		{models.DataTypeMedicationLogs, "medicationLogs", "demo-medlog-new", day, export.Row{"status": "taken"}},
		{models.DataTypeAppointments, "appointments", "demo-appointment-old", old, export.Row{"status": "completed", "notes": "annual review"}},
		{models.DataTypePrescriptions, "prescriptions", "demo-prescription-new", 30 * day, export.Row{"medication_name": "Metformin", "instructions": "500mg twice daily", "status": "active"}},
		{models.DataTypeAuditLogs, "", "demo-audit-old", old, nil},
	}
}

// seedDemoData writes the demo records into the retention tables and the
// export sources, so development mode has something to scan and export.
func seedDemoData(tables map[models.DataType]*domains.MemoryTable, sources map[string]*export.MemorySource, now time.Time) int {
	if src, ok := sources["profile"]; ok {
		src.Put(demoPatient, export.Row{"full_name": "Demo Patient", "email": "demo.patient@example.com", "created_at": now.Add(-demoAge).Format(time.RFC3339)})
	}

	var n int
	for _, rec := range demoRecords() {
		createdAt := now.Add(-rec.age)
		if t, ok := tables[rec.dataType]; ok {
			t.Put(rec.recordID, demoPatient, createdAt)
			n++
		}
		src, ok := sources[rec.exportKey]
		if !ok {
			continue
		}
		row := export.Row{"id": rec.recordID}
		for k, v := range rec.row {
			row[k] = v
		}
		stamp := createdAt.Format(time.RFC3339)
		// each export domain orders and dates by one of these
		for _, col := range []string{"created_at", "date_time", "taken_at", "start_time"} {
			row[col] = stamp
		}
		src.Put(demoPatient, row)
	}
	return n
}
