package errctx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrom_NoContextAttached(t *testing.T) {
	assert.Nil(t, From(context.Background()))
}

func TestNilSafeSetters(t *testing.T) {
	var ec *ErrorContext
	assert.NotPanics(t, func() {
		ec.Activity("x").SQL("select 1").Cause(errors.New("boom")).Reset()
	})
	assert.Equal(t, "", ec.String())
	assert.True(t, ec.IsEmpty())
}

func TestAttachAndRender(t *testing.T) {
	ctx, ec := Attach(context.Background())
	require.Same(t, ec, From(ctx))

	ec.Resource("orders.yaml").
		Activity("executing an update").
		Object("orders.insert").
		SQL("INSERT INTO orders\n   (id) VALUES (?)").
		Cause(errors.New("disk full"))

	out := ec.String()
	assert.Contains(t, out, "### The error may exist in orders.yaml")
	assert.Contains(t, out, "### The error may involve orders.insert")
	assert.Contains(t, out, "### The error occurred while executing an update")
	assert.Contains(t, out, "### SQL: INSERT INTO orders (id) VALUES (?)")
	assert.Contains(t, out, "### Cause: disk full")
}

func TestEnsure_ReusesExisting(t *testing.T) {
	ctx, ec := Attach(context.Background())
	ctx2, ec2 := Ensure(ctx)
	assert.Same(t, ec, ec2)
	assert.Equal(t, ctx, ctx2)

	_, fresh := Ensure(context.Background())
	assert.NotNil(t, fresh)
}

func TestReset(t *testing.T) {
	_, ec := Attach(context.Background())
	ec.Activity("opening session").Message("note")
	require.False(t, ec.IsEmpty())

	ec.Reset()
	assert.True(t, ec.IsEmpty())
}

func TestConcurrentWrites(t *testing.T) {
	_, ec := Attach(context.Background())
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ec.Activity("a").SQL("select 1")
			_ = ec.String()
		}()
	}
	wg.Wait()
	assert.Contains(t, ec.String(), "select 1")
}
