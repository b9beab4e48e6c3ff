package webgpu

import (
	"testing"

	"github.com/Carmen-Shannon/oxy-geosphere/common"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeErrors_NoErrorCompletesClean(t *testing.T) {
	s := newScopeErrors([]string{"deform vertices", "recompute normals"})
	s.record(wgpu.ErrorTypeNoError, "")
	s.record(wgpu.ErrorTypeNoError, "")
	assert.NoError(t, s.err())
}

func TestScopeErrors_ReportedErrorIsDispatchError(t *testing.T) {
	s := newScopeErrors([]string{"deform vertices", "recompute normals"})
	s.record(wgpu.ErrorTypeNoError, "")
	s.record(wgpu.ErrorTypeValidation, "binding 2 is too small")

	err := s.err()
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrDispatch)
	assert.ErrorIs(t, err, ErrDeviceReported)
	assert.ErrorContains(t, err, "binding 2 is too small")

	var de *common.DispatchError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "deform vertices, recompute normals", de.Pass)
}

func TestScopeFilters_CoverValidationAndMemory(t *testing.T) {
	assert.Equal(t, []wgpu.ErrorFilter{wgpu.ErrorFilterOutOfMemory, wgpu.ErrorFilterValidation}, scopeFilters)
}
