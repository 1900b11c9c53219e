package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Idempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	require.NoError(t, Register(reg))
}

func TestObservers(t *testing.T) {
	before := testutil.ToFloat64(apiRequests.WithLabelValues("catalog", ResultError))
	ObserveAPIRequest("catalog", errors.New("boom"))
	assert.Equal(t, before+1, testutil.ToFloat64(apiRequests.WithLabelValues("catalog", ResultError)))

	before = testutil.ToFloat64(refreshTotal.WithLabelValues("contract", ResultSuccess))
	ObserveRefresh("contract", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(refreshTotal.WithLabelValues("contract", ResultSuccess)))

	SetRegistrySize("entry-1", 4)
	assert.Equal(t, 4.0, testutil.ToFloat64(registryContracts.WithLabelValues("entry-1")))

	IncDesignationChange("entry-1")
	assert.Equal(t, 1.0, testutil.ToFloat64(designationChanges.WithLabelValues("entry-1")))
}
