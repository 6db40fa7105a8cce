package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseDefaultsWithNoOverrides(t *testing.T) {
	s, err := Parse([]string{"4"})
	require.NoError(t, err)
	require.Equal(t, 4, s.NThreads)
	require.Equal(t, 600, s.MaxWaiting)
	require.Equal(t, AlgorithmRTV, s.Algorithm)
}

func TestParseAppliesKeyValueOverrides(t *testing.T) {
	s, err := Parse([]string{"2", "MAX_WAITING", "120", "CARSIZE", "3", "ASSIGNMENT_OBJECTIVE", "RMT"})
	require.NoError(t, err)
	require.Equal(t, 120, s.MaxWaiting)
	require.Equal(t, 3, s.CarSize)
	require.Equal(t, ObjectiveRMT, s.AssignmentObjective)
}

func TestParseRejectsMissingNThreads(t *testing.T) {
	_, err := Parse(nil)
	require.Error(t, err)
}

func TestParseRejectsOddKeyValuePairs(t *testing.T) {
	_, err := Parse([]string{"1", "MAX_WAITING"})
	require.Error(t, err)
}

func TestParseRejectsUnknownKey(t *testing.T) {
	_, err := Parse([]string{"1", "NOT_A_REAL_KEY", "1"})
	require.Error(t, err)
}

func TestParseRejectsUnknownCTSPObjective(t *testing.T) {
	_, err := Parse([]string{"1", "CTSP_OBJECTIVE", "NOT_A_MODE"})
	require.Error(t, err)
}

func TestParseRejectsUnparseableInt(t *testing.T) {
	_, err := Parse([]string{"1", "MAX_DETOUR", "not-a-number"})
	require.Error(t, err)
}
