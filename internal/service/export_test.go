package service

import "time"

// SetNowFunc фиксирует часы сервиса в тестах.
func SetNowFunc(s IncidentService, now func() time.Time) {
	s.(*incidentService).now = now
}
