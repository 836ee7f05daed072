package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateConfig(t *testing.T) {
	valid := func() config {
		return config{
			PublicEndpoint:     "http://localhost:4000",
			SyncClockInterval:  time.Second,
			ClientIdleTimeout:  time.Minute,
			LogSummaryInterval: time.Minute,
			Simulation: simConfig{
				MaxDepth:       32,
				QueryRangeSize: 80,
			},
		}
	}

	tests := []struct {
		name        string
		edit        func(*config)
		expectedErr bool
	}{
		{
			name: "valid config",
			edit: func(*config) {},
		},
		{
			name:        "invalid public endpoint",
			edit:        func(c *config) { c.PublicEndpoint = "localhost" },
			expectedErr: true,
		},
		{
			name:        "zero sync clock interval",
			edit:        func(c *config) { c.SyncClockInterval = 0 },
			expectedErr: true,
		},
		{
			name:        "zero idle timeout",
			edit:        func(c *config) { c.ClientIdleTimeout = 0 },
			expectedErr: true,
		},
		{
			name:        "negative max depth",
			edit:        func(c *config) { c.Simulation.MaxDepth = -1 },
			expectedErr: true,
		},
		{
			name:        "zero query range size",
			edit:        func(c *config) { c.Simulation.QueryRangeSize = 0 },
			expectedErr: true,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			conf := valid()
			test.edit(&conf)

			err := validateConfig(conf)
			if test.expectedErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
		})
	}
}
