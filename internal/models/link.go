package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentLink - запись о привязке повторного отчета к существующему инциденту.
// Ведется как аудит решений о слиянии дубликатов.
type IncidentLink struct {
	ID             int64     `json:"id"`
	IncidentID     uuid.UUID `json:"incident_id"`
	ReporterID     string    `json:"reporter_id"`
	Confidence     int       `json:"confidence"`
	DistanceMeters float64   `json:"distance_meters"`
	LinkedAt       time.Time `json:"linked_at"`
}
