// Package export gathers everything a user owns across the health record
// domains and renders it as a structured JSON file or a paginated PDF.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	id "vitalis/pkg/domain"
)

// Row is one record as the store returns it, keyed by column name.
type Row map[string]any

// Source fetches the records one user owns in a single domain.
type Source interface {
	FetchByOwner(ctx context.Context, userID id.UserID) ([]Row, error)
}

// Field is a column of a domain's table in the document rendering.
type Field struct {
	Header string
	Column string
	Format func(v any) string
}

// Domain describes one section of an export.
type Domain struct {
	// Key names the domain in the structured export.
	Key   string
	Title string
	// Single domains hold at most one row per user and export as an object.
	Single bool
	Fields []Field
	Source Source
}

func DefaultDomains(db *sql.DB) []Domain {
	return defaultDomains(func(table, owner, order string) Source {
		return NewSQLSource(db, table, owner, order)
	})
}

// MemoryDomains returns the default domain set backed by in-memory sources,
// keyed by Domain.Key for seeding.
func MemoryDomains() ([]Domain, map[string]*MemorySource) {
	domains := defaultDomains(func(_, _, order string) Source {
		return NewMemorySource(order)
	})
	byKey := make(map[string]*MemorySource, len(domains))
	for _, d := range domains {
		byKey[d.Key] = d.Source.(*MemorySource)
	}
	return domains, byKey
}

func defaultDomains(source func(table, owner, order string) Source) []Domain {
	return []Domain{
		{
			Key: "profile", Title: "Personal Information", Single: true,
			Fields: []Field{
				{Header: "Full Name", Column: "full_name", Format: orNA},
				{Header: "Email", Column: "email", Format: orNA},
				{Header: "Phone", Column: "phone", Format: orNA},
				{Header: "Date of Birth", Column: "date_of_birth", Format: orNA},
			},
			Source: source("profiles", "user_id", "created_at"),
		},
		{
			Key: "patientDetails", Title: "Medical Information", Single: true,
			Fields: []Field{
				{Header: "Medical History", Column: "medical_history", Format: orNA},
				{Header: "Allergies", Column: "allergies", Format: joined},
				{Header: "Current Medications", Column: "current_medications", Format: joined},
				{Header: "Emergency Contact", Column: "emergency_contact_name", Format: orNA},
				{Header: "Emergency Phone", Column: "emergency_contact_phone", Format: orNA},
				{Header: "Insurance Provider", Column: "insurance_provider", Format: orNA},
				{Header: "Insurance ID", Column: "insurance_id", Format: orNA},
			},
			Source: source("patient_details", "user_id", "created_at"),
		},
		{
			Key: "glucoseReadings", Title: "Glucose Readings",
			Fields: []Field{
				{Header: "Date", Column: "created_at", Format: dateOnly},
				{Header: "Time", Column: "test_time", Format: orNA},
				{Header: "Value (mg/dL)", Column: "glucose_value", Format: plain},
				{Header: "Notes", Column: "notes", Format: plain},
			},
			Source: source("glucose_readings", "patient_id", "created_at"),
		},
		{
			Key: "medications", Title: "Medications",
			Fields: []Field{
				{Header: "Name", Column: "medication_name", Format: plain},
				{Header: "Dosage", Column: "dosage", Format: plain},
				{Header: "Frequency", Column: "frequency", Format: plain},
				{Header: "Start Date", Column: "start_date", Format: dateOnly},
				{Header: "Status", Column: "is_active", Format: activeStatus},
			},
			Source: source("medications", "patient_id", "created_at"),
		},
		{
			Key: "medicationLogs", Title: "Medication Logs",
			Fields: []Field{
				{Header: "Date", Column: "taken_at", Format: dateOnly},
				{Header: "Time", Column: "taken_at", Format: clockTime},
				{Header: "Status", Column: "status", Format: orNA},
				{Header: "Notes", Column: "notes", Format: plain},
			},
			Source: source("medication_logs", "patient_id", "taken_at"),
		},
		{
			Key: "appointments", Title: "Appointments",
			Fields: []Field{
				{Header: "Date", Column: "start_time", Format: dateOnly},
				{Header: "Time", Column: "start_time", Format: clockTime},
				{Header: "Status", Column: "status", Format: plain},
				{Header: "Notes", Column: "notes", Format: plain},
			},
			Source: source("appointments", "patient_id", "start_time"),
		},
		{
			Key: "exerciseLogs", Title: "Exercise Logs",
			Fields: []Field{
				{Header: "Date", Column: "date_time", Format: dateOnly},
				{Header: "Type", Column: "exercise_type", Format: plain},
				{Header: "Duration (min)", Column: "duration_minutes", Format: plain},
				{Header: "Intensity", Column: "intensity", Format: orNA},
			},
			Source: source("exercise_logs", "patient_id", "date_time"),
		},
		{
			Key: "mealLogs", Title: "Meal Logs",
			Fields: []Field{
				{Header: "Date", Column: "date_time", Format: dateOnly},
				{Header: "Type", Column: "meal_type", Format: orNA},
				{Header: "Description", Column: "description", Format: plain},
				{Header: "Portion", Column: "portion_size", Format: orNA},
			},
			Source: source("meal_logs", "patient_id", "date_time"),
		},
		{
			Key: "prescriptions", Title: "Prescriptions",
			Fields: []Field{
				{Header: "Issued", Column: "created_at", Format: dateOnly},
				{Header: "Medication", Column: "medication_name", Format: plain},
				{Header: "Instructions", Column: "instructions", Format: plain},
				{Header: "Status", Column: "status", Format: orNA},
			},
			Source: source("prescriptions", "patient_id", "created_at"),
		},
		{
			Key: "medicationReminders", Title: "Medication Reminders",
			Fields: []Field{
				{Header: "Remind At", Column: "remind_at", Format: orNA},
				{Header: "Status", Column: "is_active", Format: activeStatus},
			},
			Source: source("medication_reminders", "patient_id", "created_at"),
		},
	}
}

func plain(v any) string {
	if v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func orNA(v any) string {
	if s := plain(v); s != "" {
		return s
	}
	return "N/A"
}

func joined(v any) string {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		return "None"
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, plain(item))
	}
	return strings.Join(parts, ", ")
}

func activeStatus(v any) string {
	if active, ok := v.(bool); ok && active {
		return "Active"
	}
	return "Inactive"
}

func dateOnly(v any) string {
	if t, ok := parseTime(v); ok {
		return t.UTC().Format("2006-01-02")
	}
	return orNA(v)
}

func clockTime(v any) string {
	if t, ok := parseTime(v); ok {
		return t.UTC().Format("15:04")
	}
	return orNA(v)
}

func parseTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02"} {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed, true
			}
		}
	}
	return time.Time{}, false
}
