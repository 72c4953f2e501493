package model

import "time"

// Service is the bookable offering of a specialist.
type Service struct {
	ID       int64  `json:"id"`
	OwnerID  int64  `json:"ownerId"`
	Title    string `json:"title"`
	Capacity int    `json:"capacity"`
	Timezone string `json:"timezone"`
	IsActive bool   `json:"isActive"`
}

// Location resolves the service timezone, falling back to fallback.
func (s *Service) Location(fallback *time.Location) *time.Location {
	if s.Timezone == "" {
		return fallback
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// Tariff is a priced variant of a service.
type Tariff struct {
	ID              int64  `json:"id"`
	ServiceID       int64  `json:"serviceId"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"durationMinutes"`
	Price           int64  `json:"price"`
	SessionsCount   int    `json:"sessionsCount"`
	IsDefault       bool   `json:"isDefault"`
	IsActive        bool   `json:"isActive"`
}

// Duration returns the session length; zero duration means one hour.
func (t *Tariff) Duration() time.Duration {
	if t.DurationMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(t.DurationMinutes) * time.Minute
}
