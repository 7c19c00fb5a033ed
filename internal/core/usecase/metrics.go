package usecase

import (
	"time"

	"github.com/kirillkom/scan-triage/internal/core/domain"
)

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(domain.DocumentStatus, domain.DocumentStatus) {}
func (nopMetrics) ObserveClassification(string, time.Duration)                    {}
func (nopMetrics) ObserveSweep(string, time.Duration, int, error)                 {}
func (nopMetrics) SetStatusCounts(map[domain.DocumentStatus]int)                  {}
