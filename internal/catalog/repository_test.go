package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLikeEscaper(t *testing.T) {
	assert.Equal(t, `100\% cotton`, likeEscaper.Replace("100% cotton"))
	assert.Equal(t, `snake\_case`, likeEscaper.Replace("snake_case"))
	assert.Equal(t, `C:\\books`, likeEscaper.Replace(`C:\books`))
	assert.Equal(t, "Go", likeEscaper.Replace("Go"))
}
