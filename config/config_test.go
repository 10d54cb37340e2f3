package config_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/sphtree/config"
	"github.com/outofforest/sphtree/types"
)

func validParams() config.Params {
	return config.Params{
		BoxSize:               100,
		ThetaCrit:             0.5,
		MaxRelDx:              0.1,
		MultipoleOrder:        4,
		DebugVerifyMultipoles: false,
		Workers:               4,
		LocalRank:             0,
	}
}

func TestValidateAcceptsSaneParams(t *testing.T) {
	require.NoError(t, validParams().Validate())
}

func TestValidateRejectsNonPositiveBoxSize(t *testing.T) {
	p := validParams()
	p.BoxSize = 0
	require.Error(t, p.Validate())
}

func TestValidateRejectsThetaCritOutOfRange(t *testing.T) {
	p := validParams()
	p.ThetaCrit = 0
	require.Error(t, p.Validate())

	p.ThetaCrit = 1.5
	require.Error(t, p.Validate())
}

func TestValidateRejectsNegativeMultipoleOrder(t *testing.T) {
	p := validParams()
	p.MultipoleOrder = -1
	require.Error(t, p.Validate())
}

func TestValidateRejectsNonPositiveWorkers(t *testing.T) {
	p := validParams()
	p.Workers = 0
	require.Error(t, p.Validate())
}

func TestActivateSquaresThetaCritAndCarriesRankAndBoxSize(t *testing.T) {
	p := validParams()
	p.LocalRank = types.RankID(3)
	cfg := p.Activate()

	require.InDelta(t, 0.25, cfg.ThetaCritSq, 1e-12)
	require.Equal(t, p.MaxRelDx, cfg.MaxRelDx)
	require.Equal(t, p.BoxSize, cfg.BoxSize)
	require.Equal(t, types.RankID(3), cfg.LocalRank)
}

func TestMultipoleCarriesOrderAndDebugFlag(t *testing.T) {
	p := validParams()
	p.MultipoleOrder = 6
	p.DebugVerifyMultipoles = true
	cfg := p.Multipole()

	require.Equal(t, 6, cfg.Order)
	require.True(t, cfg.DebugVerify)
}
