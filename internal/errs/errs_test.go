package errs_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vthamada/territorial-intelligence-platform-sub001/internal/errs"
)

func TestKindOfWrapped(t *testing.T) {
	base := errs.E(errs.KindContextNotReady, "resolve municipality", errors.New("no row"))
	wrapped := fmt.Errorf("run job: %w", base)

	assert.Equal(t, errs.KindContextNotReady, errs.KindOf(wrapped))
	assert.True(t, errs.Is(wrapped, errs.KindContextNotReady))
	assert.False(t, errs.Is(wrapped, errs.KindWarehouse))
	assert.Equal(t, "resolve municipality: no row", base.Error())
}

func TestENilIsNil(t *testing.T) {
	assert.NoError(t, errs.E(errs.KindParse, "op", nil))
	assert.Equal(t, errs.KindUnknown, errs.KindOf(errors.New("plain")))
}
