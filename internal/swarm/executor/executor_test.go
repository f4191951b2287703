package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		field   string
		wantErr bool
	}{
		{
			name:   "valid spawn-rate",
			config: Config{Type: TypeSpawnRate, Users: 10, SpawnRate: 2, Duration: time.Second},
		},
		{
			name:   "valid constant-users without spawn rate",
			config: Config{Type: TypeConstantUsers, Users: 10, Duration: time.Second},
		},
		{
			name:   "zero users",
			config: Config{Type: TypeSpawnRate, Users: 0, SpawnRate: 1, Duration: time.Second},
		},
		{
			name:    "missing type",
			config:  Config{Users: 1, SpawnRate: 1, Duration: time.Second},
			field:   "type",
			wantErr: true,
		},
		{
			name:    "unknown type",
			config:  Config{Type: "ramping-vus", Users: 1, Duration: time.Second},
			field:   "type",
			wantErr: true,
		},
		{
			name:    "negative users",
			config:  Config{Type: TypeSpawnRate, Users: -1, SpawnRate: 1, Duration: time.Second},
			field:   "users",
			wantErr: true,
		},
		{
			name:    "zero spawn rate",
			config:  Config{Type: TypeSpawnRate, Users: 1, SpawnRate: 0, Duration: time.Second},
			field:   "spawnRate",
			wantErr: true,
		},
		{
			name:    "negative spawn rate",
			config:  Config{Type: TypeSpawnRate, Users: 1, SpawnRate: -5, Duration: time.Second},
			field:   "spawnRate",
			wantErr: true,
		},
		{
			name:    "zero duration",
			config:  Config{Type: TypeConstantUsers, Users: 1},
			field:   "duration",
			wantErr: true,
		},
		{
			name:    "negative graceful stop",
			config:  Config{Type: TypeConstantUsers, Users: 1, Duration: time.Second, GracefulStop: -time.Second},
			field:   "gracefulStop",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.True(t, errors.As(err, &verr), "got %v", err)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestConfig_GracefulStopOrDefault(t *testing.T) {
	c := Config{}
	assert.Equal(t, 30*time.Second, c.GracefulStopOrDefault())

	c.GracefulStop = time.Second
	assert.Equal(t, time.Second, c.GracefulStopOrDefault())
}

func TestSpawnRate_CalculateTargetUsers(t *testing.T) {
	e := NewSpawnRate()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:      TypeSpawnRate,
		Users:     100000,
		SpawnRate: 1000,
		Duration:  300 * time.Second,
	}))

	tests := []struct {
		elapsed time.Duration
		want    int
	}{
		{0, 1},
		{-time.Second, 1},
		{500 * time.Microsecond, 1},
		{time.Millisecond, 2},
		{100 * time.Millisecond, 101},
		{time.Second, 1001},
		{99 * time.Second, 99001},
		{100 * time.Second, 100000},
		{5 * time.Minute, 100000},
	}

	for _, tt := range tests {
		t.Run(tt.elapsed.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, e.calculateTargetUsers(tt.elapsed))
		})
	}
}

func TestSpawnRate_FractionalRate(t *testing.T) {
	e := NewSpawnRate()
	require.NoError(t, e.Init(context.Background(), &Config{
		Type:      TypeSpawnRate,
		Users:     3,
		SpawnRate: 0.5,
		Duration:  time.Minute,
	}))

	assert.Equal(t, 1, e.calculateTargetUsers(1900*time.Millisecond))
	assert.Equal(t, 2, e.calculateTargetUsers(2*time.Second))
	assert.Equal(t, 3, e.calculateTargetUsers(4*time.Second))
	assert.Equal(t, 3, e.calculateTargetUsers(time.Hour))
}

func TestFactory(t *testing.T) {
	for _, typ := range SupportedTypes() {
		exec, err := NewExecutor(typ)
		require.NoError(t, err)
		assert.Equal(t, typ, exec.Type())
		assert.True(t, IsValidType(string(typ)))
	}

	_, err := NewExecutor("constant-arrival-rate")
	assert.Error(t, err)
	assert.False(t, IsValidType("constant-arrival-rate"))

	_, err = CreateAndInitExecutor(context.Background(), &Config{Type: TypeSpawnRate, Users: 1, Duration: time.Second})
	assert.Error(t, err)

	exec, err := CreateAndInitExecutor(context.Background(), &Config{Type: TypeConstantUsers, Users: 1, Duration: time.Second})
	require.NoError(t, err)
	assert.IsType(t, &ConstantUsers{}, exec)
}

func TestInit_WrongType(t *testing.T) {
	err := NewConstantUsers().Init(context.Background(), &Config{Type: TypeSpawnRate, Users: 1, SpawnRate: 1, Duration: time.Second})
	assert.Error(t, err)

	err = NewSpawnRate().Init(context.Background(), &Config{Type: TypeConstantUsers, Users: 1, Duration: time.Second})
	assert.Error(t, err)
}
