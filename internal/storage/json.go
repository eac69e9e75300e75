package storage

import (
	"encoding/json"
	"fmt"
	"os"

	"ptsplit/internal/domain"
)

// Save writes the run report to the configured JSON file.
func (s *JSONStorage) Save(report *domain.RunReport) error {
	if report.Details == nil {
		report.Details = []domain.FailureRecord{}
	}
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	if err := writeFileAtomic(s.cfg.GetReportPath(), data, 0644); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	return nil
}

// Load reads the last run report from the configured JSON file.
func (s *JSONStorage) Load() (*domain.RunReport, error) {
	data, err := os.ReadFile(s.cfg.GetReportPath())
	if err != nil {
		return nil, fmt.Errorf("read report file: %w", err)
	}
	var report domain.RunReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}
	return &report, nil
}
