package stream

// NoticeKind enumerates upward notifications from the sub-players.
type NoticeKind int

const (
	// NoticeLive reports the pipeline process is up and transmitting.
	NoticeLive NoticeKind = iota
	// NoticeHealthy reports a confirmed delivery progress sample.
	NoticeHealthy
	// NoticeItemChanged reports the sequencer moved to a new item. Sent
	// before the item's pipeline spawns.
	NoticeItemChanged
	// NoticeError reports a pipeline failure. WillRecover tells the
	// supervisor whether a retry or advance is already scheduled.
	NoticeError
	// NoticeEnded reports the pipeline exited cleanly with no stop
	// request pending.
	NoticeEnded
	// NoticeStopped reports a terminal self-stop: the rotation finished
	// and looping is off.
	NoticeStopped
)

// Notice is one normalized upward notification. The player and the
// sequencer send these on a channel the supervisor owns and consumes;
// nothing else reads it.
type Notice struct {
	Kind        NoticeKind
	Err         error
	WillRecover bool
	Item        *ItemRef
	Index       int
	Total       int
}
