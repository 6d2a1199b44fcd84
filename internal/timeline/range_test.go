package timeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chronozoom/pkg/models"
)

func TestValidateRange(t *testing.T) {
	parent := &models.Timeline{FromYear: 0, ToYear: 100}

	tests := []struct {
		name     string
		parent   *models.Timeline
		from, to float64
		want     bool
	}{
		{"root ordered", nil, -10, 10, true},
		{"root point", nil, 5, 5, true},
		{"root reversed", nil, 10, -10, false},
		{"child inside", parent, 10, 20, true},
		{"child equals parent", parent, 0, 100, true},
		{"child below parent", parent, -1, 100, false},
		{"child above parent", parent, 0, 101, false},
		{"child starting after parent end", parent, 101, 101, false},
		{"child reversed", parent, 20, 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ValidateRange(tt.parent, tt.from, tt.to))
		})
	}
}

func TestEncloses(t *testing.T) {
	children := []models.Timeline{{FromYear: 10, ToYear: 20}, {FromYear: 30, ToYear: 40}}

	assert.True(t, encloses(children, 0, 50))
	assert.True(t, encloses(children, 10, 40))
	assert.False(t, encloses(children, 15, 50))
	assert.False(t, encloses(children, 0, 35))
	assert.True(t, encloses(nil, 1, 1))
}
