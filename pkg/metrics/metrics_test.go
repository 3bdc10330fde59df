package metrics_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stateforward/go-hfsm/pkg/metrics"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.New(reg)

	c.Transition("m1", "idle", "crouch", 10*time.Millisecond)
	c.Transition("m1", "idle", "crouch", 20*time.Millisecond)
	c.Replaced("m1")
	c.Fault("m1", "exiting")
	c.InFlight("m1", true)

	expected := `
# HELP hfsm_machine_transitions_total Completed transitions by source leaf and target state
# TYPE hfsm_machine_transitions_total counter
hfsm_machine_transitions_total{from="idle",machine="m1",to="crouch"} 2
# HELP hfsm_machine_pending_replaced_total Pending transition requests overwritten before they ran
# TYPE hfsm_machine_pending_replaced_total counter
hfsm_machine_pending_replaced_total{machine="m1"} 1
# HELP hfsm_machine_in_flight 1 while a transition is in flight
# TYPE hfsm_machine_in_flight gauge
hfsm_machine_in_flight{machine="m1"} 1
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"hfsm_machine_transitions_total", "hfsm_machine_pending_replaced_total", "hfsm_machine_in_flight"))
	count, err := testutil.GatherAndCount(reg, "hfsm_machine_faults_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	c.InFlight("m1", false)
	count, err = testutil.GatherAndCount(reg, "hfsm_machine_transition_duration_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestNilCollector(t *testing.T) {
	var c *metrics.Collector
	assert.NotPanics(t, func() {
		c.Transition("m", "a", "b", time.Second)
		c.Replaced("m")
		c.Fault("m", "entering")
		c.InFlight("m", true)
	})
}
