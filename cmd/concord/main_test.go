package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"pkg.mon.icu/concord"
	"pkg.mon.icu/concord/model"
)

func TestLogEventToleratesSparsePayloads(t *testing.T) {
	a := &app{logger: zap.NewNop()}

	assert.NotPanics(t, func() {
		a.logEvent(&concord.ReadyEvent{Self: nil, GuildIDs: []model.Snowflake{1}})
		a.logEvent(&concord.ConnectedEvent{})
		a.logEvent(&concord.DisconnectedEvent{Reason: "test"})
	})
}
