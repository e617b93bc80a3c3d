package surface

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageStartsNeutral(t *testing.T) {
	img := NewImage("camview")
	assert.Equal(t, "camview", img.ID())
	assert.Equal(t, NeutralSource, img.Source())
	assert.Zero(t, img.Updates())
}

func TestSetSourceNotifiesSubscribers(t *testing.T) {
	img := NewImage("camview")
	id, ch := img.Subscribe()
	defer img.Unsubscribe(id)

	img.SetSource("blob:o/1")

	select {
	case src := <-ch:
		assert.Equal(t, "blob:o/1", src)
	case <-time.After(time.Second):
		t.Fatal("no notification")
	}
	assert.Equal(t, "blob:o/1", img.Source())
	assert.Equal(t, uint64(1), img.Updates())
}

func TestSlowSubscriberDoesNotBlock(t *testing.T) {
	img := NewImage("camview")
	id, ch := img.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			img.SetSource("blob:o/x")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("SetSource blocked on a slow subscriber")
	}
	assert.Len(t, ch, 2)

	img.Unsubscribe(id)
	_, open := <-ch
	for open {
		_, open = <-ch
	}
	assert.Zero(t, img.Subscribers())
}

func TestUnsubscribeTwice(t *testing.T) {
	img := NewImage("camview")
	id, _ := img.Subscribe()
	img.Unsubscribe(id)
	img.Unsubscribe(id)
	assert.Zero(t, img.Subscribers())
}

func TestDocument(t *testing.T) {
	doc := NewDocument()
	cam := doc.NewImage("camview")
	doc.NewImage("aux")

	got, ok := doc.GetElementByID("camview")
	require.True(t, ok)
	assert.Same(t, cam, got)

	_, ok = doc.GetElementByID("missing")
	assert.False(t, ok)

	assert.Equal(t, []string{"aux", "camview"}, doc.IDs())
}

func TestImageImplementsSurface(t *testing.T) {
	var _ Surface = NewImage("x")
}
