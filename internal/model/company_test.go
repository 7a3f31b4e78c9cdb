package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContact_FullName(t *testing.T) {
	assert.Equal(t, "Jo Lee", Contact{FirstName: "Jo", LastName: "Lee"}.FullName())
	assert.Equal(t, "Jo", Contact{FirstName: "Jo"}.FullName())
	assert.Equal(t, "Lee", Contact{LastName: "Lee"}.FullName())
	assert.Empty(t, Contact{}.FullName())
}
