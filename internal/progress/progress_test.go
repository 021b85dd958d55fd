package progress

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMultiBar_BarAdvancesAndCloses(t *testing.T) {
	var out bytes.Buffer
	mb := NewMultiBar(&out)

	bar := mb.Bar("widget", 100)
	require.NoError(t, bar.Add(40))
	require.NoError(t, bar.Add(60))
	require.NoError(t, bar.Close())

	require.True(t, out.Len() > 0, "rendering a bar must write something to the sink")
}

func TestMultiBar_IndependentHandles(t *testing.T) {
	var out bytes.Buffer
	mb := NewMultiBar(&out)

	a := mb.Bar("widget", 10)
	b := mb.Bar("gadget", 10)

	require.NoError(t, a.Add(5))
	require.NoError(t, b.Add(10))

	require.NotEqual(t, a, b, "each display key must get its own bar handle")
}

func TestTransportReporter_SatisfiesBarContract(t *testing.T) {
	var out bytes.Buffer
	reporter := NewTransportReporter(NewMultiBar(&out))

	bar := reporter.Bar("widget", 0)
	require.NoError(t, bar.Add(10))
	require.NoError(t, bar.Close())
}
