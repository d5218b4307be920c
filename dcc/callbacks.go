package dcc

// CallbackType names a host-application event that can be pushed to a client
// over the callback side-channel.
type CallbackType string

const (
	CallbackShutdown               CallbackType = "Shutdown"
	CallbackTick                   CallbackType = "Tick"
	CallbackScenePreCreated        CallbackType = "ScenePreCreated"
	CallbackScenePostCreated       CallbackType = "ScenePostCreated"
	CallbackSceneNewRequested      CallbackType = "SceneNewRequested"
	CallbackSceneNewFinished       CallbackType = "SceneNewFinished"
	CallbackSceneSaveRequested     CallbackType = "SceneSaveRequested"
	CallbackSceneSaveFinished      CallbackType = "SceneSaveFinished"
	CallbackSceneOpenRequested     CallbackType = "SceneOpenRequested"
	CallbackSceneOpenFinished      CallbackType = "SceneOpenFinished"
	CallbackUserPropertyPreChanged CallbackType = "UserPropertyPreChanged"
	CallbackUserPropertyChanged    CallbackType = "UserPropertyPostChanged"
	CallbackNodeSelect             CallbackType = "NodeSelect"
	CallbackNodeAdded              CallbackType = "NodeAdded"
	CallbackNodeDeleted            CallbackType = "NodeDeleted"
)

// Callbacks lists every callback type a host can emit.
var Callbacks = []CallbackType{
	CallbackShutdown,
	CallbackTick,
	CallbackScenePreCreated,
	CallbackScenePostCreated,
	CallbackSceneNewRequested,
	CallbackSceneNewFinished,
	CallbackSceneSaveRequested,
	CallbackSceneSaveFinished,
	CallbackSceneOpenRequested,
	CallbackSceneOpenFinished,
	CallbackUserPropertyPreChanged,
	CallbackUserPropertyChanged,
	CallbackNodeSelect,
	CallbackNodeAdded,
	CallbackNodeDeleted,
}
