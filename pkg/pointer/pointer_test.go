// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package pointer_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/taibuivan/otpgate/pkg/pointer"
)

func TestVal(t *testing.T) {
	assert.Equal(t, "", pointer.Val[string](nil))
	assert.Equal(t, "x", pointer.Val(pointer.To("x")))
}

func TestNilIfZero(t *testing.T) {
	assert.Nil(t, pointer.NilIfZero(""))
	assert.Nil(t, pointer.NilIfZero(0))

	got := pointer.NilIfZero("Ada")
	if assert.NotNil(t, got) {
		assert.Equal(t, "Ada", *got)
	}
}
