package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestWithFieldsDoesNotMutateParent(t *testing.T) {
	base := New(Config{Level: "debug", Format: "json"})
	child := base.WithFields(zap.String("component", "executor"))

	assert.NotSame(t, base, child)
	// Both should remain independently usable without panicking.
	base.Info("base message")
	child.Info("child message")
}

func TestDefaultIsSingleton(t *testing.T) {
	a := Default()
	b := Default()
	assert.Same(t, a, b)
}

func TestComponentHelper(t *testing.T) {
	l := New(Config{})
	c := l.Component("registry")
	assert.NotNil(t, c)
}
