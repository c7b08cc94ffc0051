package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/humanlink/humanlink/internal/interaction"
)

func TestStoreResolveFirstWriterWins(t *testing.T) {
	s := NewStore()
	d := s.Create(&interaction.Request{Message: "Pick", Type: interaction.TypeNotify})

	require.NoError(t, s.Resolve(d.ID, interaction.NewSuccess("first")))
	err := s.Resolve(d.ID, interaction.NewSuccess("second"))
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	resp := <-d.done
	assert.Equal(t, []string{"first"}, resp.SelectedValues)
}

func TestStoreResolveUnknown(t *testing.T) {
	s := NewStore()
	err := s.Resolve("nope", interaction.NewSuccess())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreRemove(t *testing.T) {
	s := NewStore()
	d := s.Create(&interaction.Request{Message: "Pick", Type: interaction.TypeNotify})
	s.Remove(d.ID)

	_, ok := s.Get(d.ID)
	assert.False(t, ok)
	assert.ErrorIs(t, s.Resolve(d.ID, interaction.NewSuccess()), ErrNotFound)
}

func TestStoreListOldestFirst(t *testing.T) {
	s := NewStore()
	first := s.Create(&interaction.Request{Message: "one", Type: interaction.TypeNotify})
	second := s.Create(&interaction.Request{Message: "two", Type: interaction.TypeNotify})

	views := s.List()
	require.Len(t, views, 2)
	assert.Equal(t, first.ID, views[0].ID)
	assert.Equal(t, second.ID, views[1].ID)
}
