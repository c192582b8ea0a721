package server

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClosersReleaseInReverseOrder(t *testing.T) {
	var order []string
	var clients closers
	clients.add("database", func() error {
		order = append(order, "database")
		return nil
	})
	clients.add("object storage", func() error {
		order = append(order, "object storage")
		return errors.New("bucket gone")
	})
	clients.add("message queue", func() error {
		order = append(order, "message queue")
		return nil
	})

	err := clients.close()

	assert.Equal(t, []string{"message queue", "object storage", "database"}, order)
	assert.ErrorContains(t, err, "close object storage: bucket gone")
}

func TestClosersEmpty(t *testing.T) {
	var clients closers
	assert.NoError(t, clients.close())
}
