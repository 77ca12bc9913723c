package interact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDataMergesAndNotifies(t *testing.T) {
	hub := NewHub(nil)
	child := hub.ForApp("app-a")

	var got []Data
	child.AddDataListener(func(d Data) { got = append(got, d) }, false)

	require.NoError(t, hub.SetData("app-a", Data{"user": "ann"}))
	require.NoError(t, hub.SetData("app-a", Data{"theme": "dark"}))

	require.Len(t, got, 2)
	assert.Equal(t, Data{"user": "ann"}, got[0])
	assert.Equal(t, Data{"user": "ann", "theme": "dark"}, got[1])
	assert.Equal(t, Data{"user": "ann", "theme": "dark"}, child.GetData())
	assert.Equal(t, Data{"user": "ann", "theme": "dark"}, hub.GetData("app-a", true))
	assert.Nil(t, hub.GetData("app-a", false))
}

func TestDataIsDeepCopied(t *testing.T) {
	hub := NewHub(nil)
	payload := Data{"list": []interface{}{"x"}, "nested": map[string]interface{}{"n": 1}}
	require.NoError(t, hub.SetGlobalData(payload))

	payload["nested"].(map[string]interface{})["n"] = 2

	a := hub.ForApp("a").GetGlobalData()
	b := hub.ForApp("b").GetGlobalData()
	a["nested"].(map[string]interface{})["n"] = 99

	assert.Equal(t, float64(1), b["nested"].(map[string]interface{})["n"])
	assert.Equal(t, float64(1), hub.GetGlobalData()["nested"].(map[string]interface{})["n"])
}

func TestAutoTrigger(t *testing.T) {
	hub := NewHub(nil)
	child := hub.ForApp("app")

	calls := 0
	child.AddDataListener(func(Data) { calls++ }, true)
	assert.Equal(t, 0, calls, "no data yet")

	require.NoError(t, hub.SetData("app", Data{"k": "v"}))
	assert.Equal(t, 1, calls)

	var seen Data
	child.AddDataListener(func(d Data) { seen = d }, true)
	assert.Equal(t, Data{"k": "v"}, seen)

	late := 0
	child.AddDataListener(func(Data) { late++ }, false)
	assert.Equal(t, 0, late)
}

func TestChildDispatchReachesBase(t *testing.T) {
	hub := NewHub(nil)
	var got Data
	id := hub.AddDataListener("app", func(d Data) { got = d }, false)

	require.NoError(t, hub.ForApp("app").Dispatch(Data{"ready": true}))
	assert.Equal(t, Data{"ready": true}, got)
	assert.Equal(t, Data{"ready": true}, hub.GetData("app", false))

	hub.RemoveDataListener("app", id)
	got = nil
	require.NoError(t, hub.ForApp("app").Dispatch(Data{"again": 1}))
	assert.Nil(t, got)
}

func TestRemoveAndClearListeners(t *testing.T) {
	hub := NewHub(nil)
	child := hub.ForApp("app")

	first, second := 0, 0
	id := child.AddDataListener(func(Data) { first++ }, false)
	child.AddDataListener(func(Data) { second++ }, false)

	child.RemoveDataListener(id)
	require.NoError(t, hub.SetData("app", Data{"a": 1}))
	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)

	child.ClearDataListener()
	require.NoError(t, hub.SetData("app", Data{"a": 2}))
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, child.DataListenerCount())
}

func TestGlobalListenersAreOwnedPerApp(t *testing.T) {
	hub := NewHub(nil)
	a, b := hub.ForApp("a"), hub.ForApp("b")

	var calls []string
	a.AddGlobalDataListener(func(Data) { calls = append(calls, "a") }, false)
	b.AddGlobalDataListener(func(Data) { calls = append(calls, "b") }, false)
	hub.AddGlobalDataListener(func(Data) { calls = append(calls, "base") }, false)

	require.NoError(t, a.SetGlobalData(Data{"x": 1}))
	assert.Equal(t, []string{"a", "b", "base"}, calls)

	a.ClearGlobalDataListener()
	calls = nil
	require.NoError(t, hub.SetGlobalData(Data{"x": 2}))
	assert.Equal(t, []string{"b", "base"}, calls)

	hub.ClearGlobalDataListener()
	calls = nil
	require.NoError(t, hub.SetGlobalData(Data{"x": 3}))
	assert.Equal(t, []string{"b"}, calls)
	assert.Equal(t, 1, b.GlobalListenerCount())
	assert.Equal(t, Data{"x": float64(3)}, b.GetGlobalData())
}

func TestListenerPanicDoesNotStopOthers(t *testing.T) {
	hub := NewHub(nil)
	child := hub.ForApp("app")

	reached := false
	child.AddDataListener(func(Data) { panic("boom") }, false)
	child.AddDataListener(func(Data) { reached = true }, false)

	require.NoError(t, hub.SetData("app", Data{"k": 1}))
	assert.True(t, reached)
}

func TestUnserializableData(t *testing.T) {
	hub := NewHub(nil)
	err := hub.SetData("app", Data{"fn": func() {}})
	assert.Error(t, err)
	assert.Nil(t, hub.GetData("app", true))
}

func TestSnapshotRoundTrip(t *testing.T) {
	hub := NewHub(nil)
	child := hub.ForApp("app")

	dataCalls, globalCalls := 0, 0
	child.AddDataListener(func(Data) { dataCalls++ }, false)
	child.AddGlobalDataListener(func(Data) { globalCalls++ }, false)

	hub.RecordSnapshot("app")
	child.ClearDataListener()
	child.ClearGlobalDataListener()
	assert.Equal(t, 0, child.DataListenerCount())

	hub.RebuildSnapshot("app")
	hub.RebuildSnapshot("app")
	assert.Equal(t, 1, child.DataListenerCount())
	assert.Equal(t, 1, child.GlobalListenerCount())

	require.NoError(t, hub.SetData("app", Data{"k": 1}))
	require.NoError(t, hub.SetGlobalData(Data{"g": 1}))
	assert.Equal(t, 1, dataCalls)
	assert.Equal(t, 1, globalCalls)
}

func TestClearDataAndClearAll(t *testing.T) {
	hub := NewHub(nil)
	require.NoError(t, hub.SetData("app", Data{"k": 1}))
	require.NoError(t, hub.ForApp("app").Dispatch(Data{"r": 1}))

	hub.ClearData("app")
	assert.Nil(t, hub.GetData("app", true))
	assert.Nil(t, hub.GetData("app", false))

	require.NoError(t, hub.SetGlobalData(Data{"g": 1}))
	hub.ClearAll()
	assert.Nil(t, hub.GetGlobalData())
}
