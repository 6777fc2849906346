package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestShutdownRunsEveryStepInOrder(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	var ran []string
	step := func(name string, err error) shutdownStep {
		return shutdownStep{name, func(context.Context) error {
			ran = append(ran, name)
			return err
		}}
	}

	shutdown(context.Background(), zap.New(core), []shutdownStep{
		step("http", nil),
		step("kafka writer", errors.New("broker gone")),
		step("tracing", nil),
	})

	assert.Equal(t, []string{"http", "kafka writer", "tracing"}, ran)
	failed := logs.FilterMessage("shutdown").All()
	if assert.Len(t, failed, 1) {
		assert.Equal(t, "kafka writer", failed[0].ContextMap()["step"])
	}
	assert.Equal(t, 1, logs.FilterMessage("stopped").Len())
}
