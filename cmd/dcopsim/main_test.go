package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bnbadopt/dcop/go/core"
)

func TestRun_RejectsMaximization(t *testing.T) {
	err := run("[scenario=chain,n=3,obj=max]")
	assert.ErrorIs(t, err, core.ErrMaximization)
}

func TestRun_ChainConverges(t *testing.T) {
	err := run("[scenario=chain,n=3]")
	assert.NoError(t, err)
}
