package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParamsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Params)
		wantErr string
	}{
		{name: "defaults", mutate: func(*Params) {}},
		{name: "zero minimum fill", mutate: func(p *Params) { p.MPG.MinGallons = 0 }, wantErr: "MinGallons"},
		{name: "negative distance", mutate: func(p *Params) { p.DistanceThresholdMiles = -1 }, wantErr: "DistanceThresholdMiles"},
		{name: "excess factor below one", mutate: func(p *Params) { p.Enhanced.PriceExcessFactor = 0.9 }, wantErr: "PriceExcessFactor"},
		{name: "std-dev floor of the whole mean", mutate: func(p *Params) { p.Enhanced.DeviationMinStdFrac = 1 }, wantErr: "DeviationMinStdFrac"},
		{name: "trailing minimum above window", mutate: func(p *Params) { p.MPG.TrailingMin = 9 }, wantErr: "trailing_min"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)

			err := p.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidParams)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
