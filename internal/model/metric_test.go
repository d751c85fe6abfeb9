package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPerformanceScore(t *testing.T) {
	tests := []struct {
		name       string
		employment float64
		work       float64
		wage       float64
		want       int
	}{
		{"all zero", 0, 0, 0, 0},
		{"all perfect", 100, 100, 100, 100},
		{"weighted mix", 80, 50, 90, 74},
		{"employment only", 100, 0, 0, 40},
		{"work only", 0, 100, 0, 30},
		{"wage only", 0, 0, 100, 30},
		{"rounds to nearest", 81.25, 0, 0, 33},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Metric{
				EmploymentRate:     tt.employment,
				WorkCompletionRate: tt.work,
				WagePaymentRate:    tt.wage,
			}
			assert.Equal(t, tt.want, m.PerformanceScore())
		})
	}
}

func TestMetricKey(t *testing.T) {
	m := Metric{DistrictID: "D1", Year: 2024, Month: 3}
	assert.Equal(t, Key{DistrictID: "D1", Year: 2024, Month: 3}, m.Key())
}
