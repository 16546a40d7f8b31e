package loop

import (
	"github.com/concatime/dasynq/api"
	"github.com/concatime/dasynq/internal/dispatch"
)

// queueReceiver adapts *dispatch.Queue to reactor.Receiver: the backend
// only knows about opaque userdata values, so this is where they get
// type-asserted back to the concrete *dispatch.Watcher the register
// call originally handed it.
type queueReceiver struct {
	q *dispatch.Queue
}

func (r *queueReceiver) Lock()   { r.q.Lock() }
func (r *queueReceiver) Unlock() { r.q.Unlock() }

func (r *queueReceiver) ReceiveFdEvent(userdata any, flags api.EventMask) {
	r.q.ReceiveFdEvent(userdata.(*dispatch.Watcher), flags)
}

func (r *queueReceiver) ReceiveSignal(userdata any, info api.SigInfo) {
	r.q.ReceiveSignal(userdata.(*dispatch.Watcher), info)
}

func (r *queueReceiver) ReceiveChildStat(userdata any, status int) {
	r.q.ReceiveChildStat(userdata.(*dispatch.Watcher), status)
}
