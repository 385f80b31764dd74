package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/quizflow/models"
	"github.com/use-agent/quizflow/store"
)

func TestKey_StablePerURL(t *testing.T) {
	url := "https://www.coursera.org/learn/go/quiz/1"
	if Key(url) != Key(url) {
		t.Fatal("same URL produced different keys")
	}
	if Key(url) == Key(url+"/2") {
		t.Fatal("different URLs produced the same key")
	}
}

func TestGetPut(t *testing.T) {
	s, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	c := New(s)
	url := "https://www.coursera.org/learn/go/quiz/1"

	_, hit := c.Get(url)
	assert.False(t, hit)

	questions := []models.Question{
		{QuestionID: "q-1", Text: "What is a channel?", Kind: models.KindText},
	}
	require.NoError(t, c.Put(url, questions, "1. What is a channel?"))

	entry, hit := c.Get(url)
	require.True(t, hit)
	assert.Equal(t, questions, entry.Questions)
	assert.Equal(t, "1. What is a channel?", entry.CombinedPrompt)
	assert.Equal(t, url, entry.URL)
}
