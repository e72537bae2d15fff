package tenant

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParsePlan(t *testing.T) {
	tests := []struct {
		in     string
		want   Plan
		wantOK bool
	}{
		{"sandbox", PlanSandbox, true},
		{"team", PlanTeam, true},
		{"professional", PlanProfessional, true},
		{"enterprise", PlanSandbox, false},
		{"", PlanSandbox, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParsePlan(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestOwnerLocation(t *testing.T) {
	t.Run("valid timezone", func(t *testing.T) {
		tn := &Tenant{OwnerTimezone: "Asia/Tokyo"}
		want, _ := time.LoadLocation("Asia/Tokyo")
		assert.Equal(t, want, tn.OwnerLocation())
	})

	t.Run("empty falls back to UTC", func(t *testing.T) {
		tn := &Tenant{}
		assert.Equal(t, time.UTC, tn.OwnerLocation())
	})

	t.Run("garbage falls back to UTC", func(t *testing.T) {
		tn := &Tenant{OwnerTimezone: "Mars/Olympus"}
		assert.Equal(t, time.UTC, tn.OwnerLocation())
	})
}
