package privilege

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHint(t *testing.T) {
	assert.NotEmpty(t, Hint())
}

func TestIsElevated_MatchesChecker(t *testing.T) {
	var check Checker = IsElevated
	assert.Equal(t, IsElevated(), check())
}
