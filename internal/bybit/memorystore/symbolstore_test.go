package memorystore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSymbolStoreDedupes(t *testing.T) {
	s := NewSymbolStore()

	assert.True(t, s.Add("solusdt"))
	assert.False(t, s.Add(" SOLUSDT "))
	assert.False(t, s.Add(""))
	assert.True(t, s.Add("BTCUSDT"))

	assert.Equal(t, []string{"SOLUSDT", "BTCUSDT"}, s.GetAll())
}

func TestSymbolStoreWorker(t *testing.T) {
	s := NewSymbolStore()
	s.Add("ETHUSDT")

	ch := make(chan string, 4)
	done := s.StartWorker(ch)
	ch <- "BTCUSDT"
	ch <- "ETHUSDT"
	ch <- "XRPUSDT"
	close(ch)
	<-done

	assert.Equal(t, []string{"ETHUSDT", "BTCUSDT", "XRPUSDT"}, s.GetAll())
	assert.Equal(t, 3, s.Len())
}
