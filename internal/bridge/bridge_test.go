package bridge

import (
	"errors"
	"fmt"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/corrreia/modcoreclr/internal/clr"
	"github.com/corrreia/modcoreclr/internal/config"
	"github.com/corrreia/modcoreclr/internal/host"
	"github.com/corrreia/modcoreclr/internal/module"
	"github.com/corrreia/modcoreclr/internal/xmlbridge"
)

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Status
	}{
		{"nil", nil, StatusOK},
		{"config", fmt.Errorf("%w: loader.assembly_path", config.ErrInvalidConfig), StatusConfig},
		{"bootstrap", fmt.Errorf("load: %w", &clr.BootstrapError{Stage: clr.StageOpen, Err: errors.New("dlopen")}), StatusBootstrap},
		{"register", fmt.Errorf("%w: boom", host.ErrRegistration), StatusRegister},
		{"other", errors.New("something"), StatusInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(tt.err))
		})
	}
}

func TestSafeCallRecoversPanic(t *testing.T) {
	clearLastError()
	status := safeCall(zap.NewNop(), "test", func() Status {
		panic("kaboom")
	})
	assert.Equal(t, StatusPanic, status)
	assert.Contains(t, getLastError(), "panic in test: kaboom")

	clearLastError()
	assert.Empty(t, getLastError())
}

func TestSafeCallPassesStatus(t *testing.T) {
	assert.Equal(t, StatusRegister, safeCall(zap.NewNop(), "test", func() Status { return StatusRegister }))
}

func TestFailLoad(t *testing.T) {
	defer clearLastError()

	status := failLoad(zap.NewNop(), "Unable to load module", fmt.Errorf("%w: x", config.ErrInvalidConfig))
	assert.Equal(t, StatusConfig, status)
	assert.Contains(t, getLastError(), "x")

	assert.Equal(t, StatusInvalid, failLoad(zap.NewNop(), "again", module.ErrShutdown))
}

func TestSearchTable(t *testing.T) {
	var table searchTable
	b := xmlbridge.New[clr.ConfigQuery, unsafe.Pointer](nil, nil, nil)

	id := table.add(b)
	got, err := table.lookup(id)
	require.NoError(t, err)
	assert.Same(t, b, got)

	_, err = got.Query(clr.ConfigQuery{})
	assert.ErrorIs(t, err, xmlbridge.ErrNoDocument)
	assert.Equal(t, xmlbridge.Stats{Queries: 1, Misses: 1}, table.stats())

	table.remove(id)
	_, err = table.lookup(id)
	assert.ErrorIs(t, err, errUnknownSearch)

	table.add(b)
	table.add(b)
	assert.Equal(t, 2, table.releaseAll())
	assert.Equal(t, 0, table.releaseAll())
	_, err = table.lookup(12345)
	assert.ErrorIs(t, err, errUnknownSearch)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "ok", StatusOK.String())
	assert.Equal(t, "panic", StatusPanic.String())
	assert.Equal(t, "unknown", Status(99).String())
	assert.Equal(t, 1, ABIVersion)
}
