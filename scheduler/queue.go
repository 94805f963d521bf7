package scheduler

import (
	"time"

	"github.com/aukilabs/tessera/models"
)

type request struct {
	cmd       *models.Command
	future    *models.Future
	seq       uint64
	index     int
	startedAt time.Time
}

// commandQueue is a container/heap ordered by priority, highest first, and by
// submission order among equal priorities.
type commandQueue []*request

func (q commandQueue) Len() int {
	return len(q)
}

func (q commandQueue) Less(i, j int) bool {
	if q[i].cmd.Priority != q[j].cmd.Priority {
		return q[i].cmd.Priority > q[j].cmd.Priority
	}
	return q[i].seq < q[j].seq
}

func (q commandQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *commandQueue) Push(x any) {
	r := x.(*request)
	r.index = len(*q)
	*q = append(*q, r)
}

func (q *commandQueue) Pop() any {
	old := *q
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*q = old[:n-1]
	return r
}
