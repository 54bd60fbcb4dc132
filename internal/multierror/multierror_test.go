package multierror

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMultiError_Error(t *testing.T) {
	m := New[string]()
	m.Add("2", errors.New("error2"))
	m.Add("1", errors.New("error1"))
	assert.Equal(t, "1:error1; 2:error2", m.Error())
}

func TestMultiError_Ret(t *testing.T) {
	m := New[string]()
	assert.Nil(t, m.Ret())

	m.Add("0", nil)
	assert.Nil(t, m.Ret())

	m.Add("1", errors.New("error"))
	assert.NotNil(t, m.Ret())

	err, ok := m.Get("1")
	assert.True(t, ok)
	assert.EqualError(t, err, "error")
}

func TestMultiError_Is(t *testing.T) {
	target := errors.New("target")

	m := New[string]()
	m.Add("a", target)

	assert.ErrorIs(t, m.Ret(), target)
}
