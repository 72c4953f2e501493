package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// ServiceConfig describes one bookable service of the catalog.
type ServiceConfig struct {
	ID       int64          `yaml:"id"`
	OwnerID  int64          `yaml:"owner_id"`
	Title    string         `yaml:"title"`
	Capacity int            `yaml:"capacity"`
	Timezone string         `yaml:"timezone"`
	IsActive bool           `yaml:"is_active"`
	Tariffs  []TariffConfig `yaml:"tariffs"`
}

// TariffConfig is a priced variant of a service.
type TariffConfig struct {
	ID              int64  `yaml:"id"`
	Name            string `yaml:"name"`
	DurationMinutes int    `yaml:"duration_minutes"`
	Price           int64  `yaml:"price"`
	SessionsCount   int    `yaml:"sessions_count"`
	IsDefault       bool   `yaml:"is_default"`
	IsActive        *bool  `yaml:"is_active,omitempty"`
}

// HolidayConfig closes a date for one service, or for all when ServiceID is 0.
type HolidayConfig struct {
	Date      string `yaml:"date"` // "2026-01-01"
	Name      string `yaml:"name"`
	ServiceID int64  `yaml:"service_id,omitempty"`
}

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Services []ServiceConfig `yaml:"services"`
	Holidays []HolidayConfig `yaml:"holidays"`
}

// LoadCatalog loads and validates the catalog from a YAML file.
func LoadCatalog(path string) (*CatalogConfig, error) {
	if path == "" {
		path = "configs/catalog.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}

	var cfg CatalogConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate catalog: %w", err)
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// Validate checks the catalog for errors.
func (c *CatalogConfig) Validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("no services defined")
	}

	ids := make(map[int64]bool)
	tariffIDs := make(map[int64]bool)

	for i, svc := range c.Services {
		if svc.ID <= 0 {
			return fmt.Errorf("service[%d]: id must be positive, got %d", i, svc.ID)
		}
		if ids[svc.ID] {
			return fmt.Errorf("service[%d]: duplicate id %d", i, svc.ID)
		}
		ids[svc.ID] = true

		if svc.OwnerID <= 0 {
			return fmt.Errorf("service[%d]: owner_id is required", i)
		}
		if svc.Capacity < 0 {
			return fmt.Errorf("service[%d]: capacity cannot be negative", i)
		}
		if svc.Timezone != "" {
			if _, err := time.LoadLocation(svc.Timezone); err != nil {
				return fmt.Errorf("service[%d]: invalid timezone '%s'", i, svc.Timezone)
			}
		}

		for j, t := range svc.Tariffs {
			if t.ID <= 0 {
				return fmt.Errorf("service[%d].tariffs[%d]: id must be positive", i, j)
			}
			if tariffIDs[t.ID] {
				return fmt.Errorf("service[%d].tariffs[%d]: duplicate tariff id %d", i, j, t.ID)
			}
			tariffIDs[t.ID] = true

			if t.DurationMinutes < 0 {
				return fmt.Errorf("service[%d].tariffs[%d]: duration cannot be negative", i, j)
			}
			if t.Price < 0 {
				return fmt.Errorf("service[%d].tariffs[%d]: price cannot be negative", i, j)
			}
		}
	}

	for i, h := range c.Holidays {
		if h.Date == "" {
			return fmt.Errorf("holiday[%d]: date is required", i)
		}
		if _, err := time.Parse("2006-01-02", h.Date); err != nil {
			return fmt.Errorf("holiday[%d]: invalid date format '%s', expected YYYY-MM-DD", i, h.Date)
		}
		if h.ServiceID != 0 && !ids[h.ServiceID] {
			return fmt.Errorf("holiday[%d]: unknown service %d", i, h.ServiceID)
		}
	}

	return nil
}

func (c *CatalogConfig) applyDefaults() {
	for i := range c.Services {
		if c.Services[i].Capacity == 0 {
			c.Services[i].Capacity = 1
		}
		for j := range c.Services[i].Tariffs {
			t := &c.Services[i].Tariffs[j]
			if t.DurationMinutes == 0 {
				t.DurationMinutes = 60
			}
			if t.SessionsCount == 0 {
				t.SessionsCount = 1
			}
			if t.IsActive == nil {
				active := true
				t.IsActive = &active
			}
		}
	}
}

// GetServiceByID returns the service config by ID.
func (c *CatalogConfig) GetServiceByID(id int64) *ServiceConfig {
	for i := range c.Services {
		if c.Services[i].ID == id {
			return &c.Services[i]
		}
	}
	return nil
}

// String returns a summary of the catalog.
func (c *CatalogConfig) String() string {
	active := 0
	tariffs := 0
	for _, svc := range c.Services {
		if svc.IsActive {
			active++
		}
		tariffs += len(svc.Tariffs)
	}
	return fmt.Sprintf("CatalogConfig: %d services (%d active), %d tariffs, %d holidays",
		len(c.Services), active, tariffs, len(c.Holidays))
}
