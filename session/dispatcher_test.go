package session

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/driftforge/netplay/logx"
)

func TestDispatchExactMatch(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	var got map[string]interface{}
	d.RegisterHandler("chat", func(msg map[string]interface{}) error {
		got = msg
		return nil
	})

	d.Dispatch([]byte(`{"type":"chat","message":"hi"}`))
	assert.Equal(t, "hi", got["message"])
}

func TestDispatchWildcardFallback(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	var gotType string
	d.RegisterHandler(WildcardType, func(msg map[string]interface{}) error {
		gotType, _ = msg["type"].(string)
		return nil
	})

	d.Dispatch([]byte(`{"type":"unregistered"}`))
	assert.Equal(t, "unregistered", gotType)
}

func TestDispatchExactMatchTakesPriorityOverWildcard(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	exactCalled, wildcardCalled := false, false
	d.RegisterHandler("move", func(map[string]interface{}) error { exactCalled = true; return nil })
	d.RegisterHandler(WildcardType, func(map[string]interface{}) error { wildcardCalled = true; return nil })

	d.Dispatch([]byte(`{"type":"move"}`))
	assert.True(t, exactCalled)
	assert.False(t, wildcardCalled)
}

func TestDispatchDropsWhenNoHandler(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	assert.NotPanics(t, func() {
		d.Dispatch([]byte(`{"type":"nobody-home"}`))
	})
}

func TestDispatchUnregisterHandler(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	called := false
	d.RegisterHandler("chat", func(map[string]interface{}) error { called = true; return nil })
	d.UnregisterHandler("chat")

	d.Dispatch([]byte(`{"type":"chat"}`))
	assert.False(t, called)
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	d := NewDispatcher(logx.NewNop())
	d.RegisterHandler("chat", func(map[string]interface{}) error {
		panic("boom")
	})
	assert.NotPanics(t, func() {
		d.Dispatch([]byte(`{"type":"chat"}`))
	})
}
