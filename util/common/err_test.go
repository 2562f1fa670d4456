package common

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCombine(t *testing.T) {
	assert.NoError(t, Combine(nil, nil))

	stop := errors.New("stop failed")
	err := Combine(nil, stop)
	assert.ErrorIs(t, err, stop)
}

func TestNewErrorf(t *testing.T) {
	assert.EqualError(t, NewErrorf("bad chat id %q", "x"), `bad chat id "x"`)
}

func TestRecover(t *testing.T) {
	var got any
	func() {
		defer func() { got = recover() }()
		func() {
			defer Recover("enrich job")
			panic("boom")
		}()
	}()
	assert.Nil(t, got, "Recover must swallow the panic")
}
